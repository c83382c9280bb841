package tree

import (
	"sort"
	"strings"

	apperrors "github.com/heirloom-app/heirloom/pkg/errors"
)

// Node is a render-ready tree node. Spouses are paired onto a single node
// rather than appearing twice, and children are listed in birth order.
// Nodes are a pure projection of Member + Relation records; they are
// rebuilt from scratch on every assembly and never persisted.
type Node struct {
	Member   *Member `json:"member"`
	Spouse   *Member `json:"spouse,omitempty"`
	Children []*Node `json:"children"`
}

// Tree is the assembled forest for a space.
type Tree struct {
	Roots   []*Node   `json:"roots"`
	Members []*Member `json:"members"`
}

// rootKey is the adjacency key for relations with a nil parent.
const rootKey = ""

// Assemble builds a rooted forest from flat member and relation records.
//
// Roots are members with an explicit nil-parent relation plus members with no
// relation at all, except that a member whose spouse already appears as a
// child elsewhere pairs under the spouse instead of becoming a root. A
// member's children are the union of relations recorded under the member and
// under its spouse, so a couple's children appear once beneath the paired
// node.
//
// The relation set is expected to be acyclic; a cycle is reported as a
// structure error rather than trusted to the caller's validation.
func Assemble(members []*Member, relations []Relation) (*Tree, error) {
	byID := make(map[string]*Member, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	children := make(map[string][]string)
	for _, rel := range relations {
		key := rootKey
		if rel.ParentID != nil {
			key = *rel.ParentID
		}
		children[key] = append(children[key], rel.ChildID)
	}

	spouseOf := make(map[string]string)
	for _, m := range members {
		if m.SpouseID != "" {
			spouseOf[m.ID] = m.SpouseID
		}
	}

	a := &assembly{
		byID:     byID,
		children: children,
		spouseOf: spouseOf,
	}

	rootIDs := a.rootIDs(members, relations)
	roots, err := a.buildGroup(rootIDs, make(map[string]bool))
	if err != nil {
		return nil, err
	}

	if err := a.checkDetachedCycles(relations); err != nil {
		return nil, err
	}

	out := make([]*Member, 0, len(members))
	out = append(out, members...)

	return &Tree{Roots: roots, Members: out}, nil
}

type assembly struct {
	byID     map[string]*Member
	children map[string][]string
	spouseOf map[string]string
}

// rootIDs determines the forest roots in deterministic order: explicit
// nil-parent relations first (relation order), then members with no relation
// at all in member order.
func (a *assembly) rootIDs(members []*Member, relations []Relation) []string {
	relatedChildren := make(map[string]bool)
	for _, ids := range a.children {
		for _, id := range ids {
			relatedChildren[id] = true
		}
	}

	explicit := make(map[string]bool)
	var roots []string
	for _, id := range a.children[rootKey] {
		if !explicit[id] {
			explicit[id] = true
			roots = append(roots, id)
		}
	}

	for _, m := range members {
		if relatedChildren[m.ID] || explicit[m.ID] {
			continue
		}
		// A member whose spouse is placed as a child pairs under the
		// spouse instead of standing as a separate root.
		if sid := a.spouseOf[m.ID]; sid != "" && relatedChildren[sid] {
			continue
		}
		roots = append(roots, m.ID)
	}

	return roots
}

// checkDetachedCycles walks every child's parent chain, catching cycles that
// never connect to a root and so are invisible to the recursive build. A
// chain ending at a missing parent is tolerated; only a revisit fails.
func (a *assembly) checkDetachedCycles(relations []Relation) error {
	parentOf := make(map[string]string, len(relations))
	for _, rel := range relations {
		if rel.ParentID != nil {
			parentOf[rel.ChildID] = *rel.ParentID
		}
	}

	cleared := make(map[string]bool, len(parentOf))
	for child := range parentOf {
		walked := map[string]bool{}
		for id := child; ; {
			if cleared[id] {
				break
			}
			if walked[id] {
				return apperrors.NewStructureError("relation cycle detected at member " + id)
			}
			walked[id] = true
			next, ok := parentOf[id]
			if !ok {
				break
			}
			id = next
		}
		for id := range walked {
			cleared[id] = true
		}
	}
	return nil
}

// buildGroup builds the nodes for one sibling group (or the root set),
// pairing spouses within the group and recursing into children. path holds
// the ancestor ids of the current branch for cycle detection.
func (a *assembly) buildGroup(ids []string, path map[string]bool) ([]*Node, error) {
	sorted := a.sortByBirth(ids)

	seen := make(map[string]bool)
	nodes := make([]*Node, 0, len(sorted))
	for _, id := range sorted {
		if seen[id] {
			continue
		}
		member, ok := a.byID[id]
		if !ok {
			continue
		}
		if path[id] {
			return nil, apperrors.NewStructureError("relation cycle detected at member " + id)
		}

		path[id] = true
		childNodes, err := a.buildGroup(a.coupleChildren(id), path)
		delete(path, id)
		if err != nil {
			return nil, err
		}

		node := &Node{Member: member, Children: childNodes}
		if pid := a.spouseOf[id]; pid != "" {
			if partner, ok := a.byID[pid]; ok {
				node.Spouse = partner
				seen[pid] = true
			}
		}
		seen[id] = true
		nodes = append(nodes, node)
	}

	return nodes, nil
}

// coupleChildren returns the deduplicated union of children recorded under a
// member and under its spouse, preserving relation order.
func (a *assembly) coupleChildren(id string) []string {
	combined := a.children[id]
	if pid := a.spouseOf[id]; pid != "" {
		combined = append(append([]string(nil), combined...), a.children[pid]...)
	}

	uniq := make(map[string]bool, len(combined))
	out := make([]string, 0, len(combined))
	for _, cid := range combined {
		if uniq[cid] {
			continue
		}
		uniq[cid] = true
		out = append(out, cid)
	}
	return out
}

// sortByBirth orders sibling ids ascending by date of birth. Members with a
// resolvable birth date sort before those without; undated siblings fall
// back to case-insensitive (first, last) name order. The sort is stable
// over the incoming order.
func (a *assembly) sortByBirth(ids []string) []string {
	sorted := append([]string(nil), ids...)
	sort.SliceStable(sorted, func(i, j int) bool {
		mi, iok := a.byID[sorted[i]]
		mj, jok := a.byID[sorted[j]]
		if !iok || !jok {
			return jok
		}
		ti, tiok := mi.BirthTime()
		tj, tjok := mj.BirthTime()
		switch {
		case tiok && tjok:
			if !ti.Equal(tj) {
				return ti.Before(tj)
			}
			return nameLess(mi, mj)
		case tiok:
			return true
		case tjok:
			return false
		default:
			return nameLess(mi, mj)
		}
	})
	return sorted
}

func nameLess(a, b *Member) bool {
	af, bf := strings.ToLower(a.FirstName), strings.ToLower(b.FirstName)
	if af != bf {
		return af < bf
	}
	return strings.ToLower(a.LastName) < strings.ToLower(b.LastName)
}
