package tree

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func member(id, first, last, dob string) *Member {
	m := &Member{ID: id, SpaceID: "fam", FirstName: first, LastName: last, DOB: dob}
	m.RefreshDOBTS()
	return m
}

func rel(childID string, parentID *string) Relation {
	return Relation{ID: "rel-" + childID, SpaceID: "fam", ChildID: childID, ParentID: parentID}
}

func ptr(s string) *string { return &s }

func TestAssembleBasicTree(t *testing.T) {
	grandpa := member("g1", "Elias", "Stone", "03/01/1940")
	parent := member("p1", "Mara", "Stone", "07/15/1965")
	child := member("c1", "Noa", "Stone", "09/30/1990")

	members := []*Member{grandpa, parent, child}
	relations := []Relation{
		rel("g1", nil),
		rel("p1", ptr("g1")),
		rel("c1", ptr("p1")),
	}

	tr, err := Assemble(members, relations)
	require.NoError(t, err)
	require.Len(t, tr.Roots, 1)

	root := tr.Roots[0]
	assert.Equal(t, "g1", root.Member.ID)
	require.Len(t, root.Children, 1)
	assert.Equal(t, "p1", root.Children[0].Member.ID)
	require.Len(t, root.Children[0].Children, 1)
	assert.Equal(t, "c1", root.Children[0].Children[0].Member.ID)
}

func TestAssembleIsIdempotent(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1952")
	a.SpouseID = "b"
	b.SpouseID = "a"
	kid1 := member("k1", "Cora", "Reyes", "05/05/1975")
	kid2 := member("k2", "Dan", "Reyes", "02/02/1973")

	members := []*Member{a, b, kid1, kid2}
	relations := []Relation{
		rel("a", nil),
		rel("k1", ptr("a")),
		rel("k2", ptr("b")),
	}

	first, err := Assemble(members, relations)
	require.NoError(t, err)
	second, err := Assemble(members, relations)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, TreeContentHash(first), TreeContentHash(second))
}

func TestSpousePairedOnSingleNode(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1952")
	a.SpouseID = "b"
	b.SpouseID = "a"
	kidA := member("k1", "Cora", "Reyes", "02/02/1973")
	kidB := member("k2", "Dan", "Reyes", "05/05/1975")

	members := []*Member{a, b, kidA, kidB}
	relations := []Relation{
		rel("a", nil),
		rel("k1", ptr("a")),
		rel("k2", ptr("b")), // recorded under the other partner
	}

	tr, err := Assemble(members, relations)
	require.NoError(t, err)
	require.Len(t, tr.Roots, 1)

	root := tr.Roots[0]
	assert.Equal(t, "a", root.Member.ID)
	require.NotNil(t, root.Spouse)
	assert.Equal(t, "b", root.Spouse.ID)

	// Couple children merged under the paired node, each exactly once.
	ids := make([]string, 0, len(root.Children))
	for _, c := range root.Children {
		ids = append(ids, c.Member.ID)
	}
	assert.ElementsMatch(t, []string{"k1", "k2"}, ids)
}

func TestOneWaySpouseReferenceTolerated(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1952")
	a.SpouseID = "b" // b does not point back

	tr, err := Assemble([]*Member{a, b}, []Relation{rel("a", nil)})
	require.NoError(t, err)

	var node *Node
	for _, r := range tr.Roots {
		if r.Member.ID == "a" {
			node = r
		}
	}
	require.NotNil(t, node)
	require.NotNil(t, node.Spouse)
	assert.Equal(t, "b", node.Spouse.ID)
}

func TestDanglingSpouseIDTreatedAsAbsent(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	a.SpouseID = "ghost"

	tr, err := Assemble([]*Member{a}, []Relation{rel("a", nil)})
	require.NoError(t, err)
	require.Len(t, tr.Roots, 1)
	assert.Nil(t, tr.Roots[0].Spouse)
}

func TestSiblingSortByBirthThenName(t *testing.T) {
	parent := member("p", "Pat", "Lund", "01/01/1940")
	older := member("s1", "Zed", "Lund", "01/01/1960")
	younger := member("s2", "Amy", "Lund", "01/01/1970")
	noDOB1 := member("s3", "Carl", "Lund", "")
	noDOB2 := member("s4", "Beth", "Lund", "")

	members := []*Member{parent, older, younger, noDOB1, noDOB2}
	relations := []Relation{
		rel("p", nil),
		rel("s3", ptr("p")),
		rel("s2", ptr("p")),
		rel("s4", ptr("p")),
		rel("s1", ptr("p")),
	}

	tr, err := Assemble(members, relations)
	require.NoError(t, err)
	require.Len(t, tr.Roots, 1)

	got := make([]string, 0, 4)
	for _, c := range tr.Roots[0].Children {
		got = append(got, c.Member.FirstName)
	}
	// Resolvable birth dates sort first by time; the rest fall back to
	// case-insensitive (first, last) name order.
	assert.Equal(t, []string{"Zed", "Amy", "Beth", "Carl"}, got)
}

func TestUnrelatedMemberBecomesRoot(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	loner := member("x", "Xavi", "Sol", "01/01/1980")

	tr, err := Assemble([]*Member{a, loner}, []Relation{rel("a", nil)})
	require.NoError(t, err)

	ids := make([]string, 0, len(tr.Roots))
	for _, r := range tr.Roots {
		ids = append(ids, r.Member.ID)
	}
	assert.ElementsMatch(t, []string{"a", "x"}, ids)
}

func TestSpouseOfPlacedChildNotARoot(t *testing.T) {
	parent := member("p", "Pat", "Lund", "01/01/1940")
	child := member("c", "Cam", "Lund", "01/01/1965")
	inLaw := member("i", "Ida", "Moss", "01/01/1966")
	child.SpouseID = "i"
	inLaw.SpouseID = "c"

	members := []*Member{parent, child, inLaw}
	relations := []Relation{
		rel("p", nil),
		rel("c", ptr("p")),
	}

	tr, err := Assemble(members, relations)
	require.NoError(t, err)
	require.Len(t, tr.Roots, 1)
	assert.Equal(t, "p", tr.Roots[0].Member.ID)

	require.Len(t, tr.Roots[0].Children, 1)
	got := tr.Roots[0].Children[0]
	assert.Equal(t, "c", got.Member.ID)
	require.NotNil(t, got.Spouse)
	assert.Equal(t, "i", got.Spouse.ID)
}

func TestCyclicRelationsFailWithStructureError(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1952")
	c := member("c", "Cora", "Reyes", "01/01/1975")

	t.Run("cycle reachable from a root", func(t *testing.T) {
		relations := []Relation{
			rel("a", nil),
			rel("b", ptr("a")),
			rel("c", ptr("b")),
			rel("a", ptr("c")), // closes the loop
		}
		_, err := Assemble([]*Member{a, b, c}, relations)
		require.Error(t, err)
	})

	t.Run("detached cycle with no root", func(t *testing.T) {
		relations := []Relation{
			rel("b", ptr("c")),
			rel("c", ptr("b")),
		}
		_, err := Assemble([]*Member{b, c}, relations)
		require.Error(t, err)
	})
}

func TestRefreshDOBTS(t *testing.T) {
	m := member("a", "Ana", "Reyes", "06/15/1980")
	require.NotNil(t, m.DOBTS)
	assert.Equal(t, time.Date(1980, 6, 15, 0, 0, 0, 0, time.UTC), m.DOBTS.UTC())

	m.DOB = "not-a-date"
	m.RefreshDOBTS()
	assert.Nil(t, m.DOBTS)
}
