package tree

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// memberFingerprint is the subset of member fields that affect how the tree
// renders. Contact and location details are deliberately excluded so that
// editing a phone number does not invalidate a cached tree.
type memberFingerprint struct {
	ID         string `json:"id"`
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	DOB        string `json:"dob"`
	IsDeceased bool   `json:"is_deceased"`
	SpouseID   string `json:"spouse_id"`
}

type relationFingerprint struct {
	ChildID  string `json:"child_id"`
	ParentID string `json:"parent_id"`
}

// ContentHash computes a deterministic fingerprint over the render-relevant
// subset of a tree's members and relations. Records are serialized in
// canonical order, so identical content always yields the same hash
// regardless of input ordering.
func ContentHash(members []*Member, relations []Relation) string {
	mf := make([]memberFingerprint, 0, len(members))
	for _, m := range members {
		mf = append(mf, memberFingerprint{
			ID:         m.ID,
			FirstName:  m.FirstName,
			LastName:   m.LastName,
			DOB:        m.DOB,
			IsDeceased: m.IsDeceased,
			SpouseID:   m.SpouseID,
		})
	}
	sort.Slice(mf, func(i, j int) bool { return mf[i].ID < mf[j].ID })

	rf := make([]relationFingerprint, 0, len(relations))
	for _, r := range relations {
		parent := ""
		if r.ParentID != nil {
			parent = *r.ParentID
		}
		rf = append(rf, relationFingerprint{ChildID: r.ChildID, ParentID: parent})
	}
	sort.Slice(rf, func(i, j int) bool {
		if rf[i].ChildID != rf[j].ChildID {
			return rf[i].ChildID < rf[j].ChildID
		}
		return rf[i].ParentID < rf[j].ParentID
	})

	payload := struct {
		Members   []memberFingerprint   `json:"members"`
		Relations []relationFingerprint `json:"relations"`
	}{Members: mf, Relations: rf}

	data, err := json.Marshal(payload)
	if err != nil {
		// Marshal of plain structs cannot fail; keep the signature simple.
		return ""
	}

	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// TreeContentHash fingerprints an assembled tree by flattening it back to
// member and relation records.
func TreeContentHash(t *Tree) string {
	if t == nil {
		return ""
	}
	var relations []Relation
	var walk func(parent *string, nodes []*Node)
	walk = func(parent *string, nodes []*Node) {
		for _, n := range nodes {
			id := n.Member.ID
			relations = append(relations, Relation{ChildID: id, ParentID: parent})
			walk(&id, n.Children)
		}
	}
	walk(nil, t.Roots)
	return ContentHash(t.Members, relations)
}
