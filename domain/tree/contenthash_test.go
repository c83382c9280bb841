package tree

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContentHashStableAcrossOrdering(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1952")
	relations := []Relation{rel("a", nil), rel("b", ptr("a"))}

	h1 := ContentHash([]*Member{a, b}, relations)
	h2 := ContentHash([]*Member{b, a}, []Relation{rel("b", ptr("a")), rel("a", nil)})

	assert.Equal(t, h1, h2)
}

func TestContentHashIgnoresNonIdentityFields(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	relations := []Relation{rel("a", nil)}

	before := ContentHash([]*Member{a}, relations)

	a.Phone = "+1 555 0100"
	a.Email = "ana@example.com"
	a.Hobbies = []string{"chess"}
	after := ContentHash([]*Member{a}, relations)

	assert.Equal(t, before, after)
}

func TestContentHashChangesWithIdentityFields(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	relations := []Relation{rel("a", nil)}

	before := ContentHash([]*Member{a}, relations)

	a.FirstName = "Anna"
	assert.NotEqual(t, before, ContentHash([]*Member{a}, relations))
}

func TestContentHashChangesWithStructure(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1975")
	members := []*Member{a, b}

	flat := ContentHash(members, []Relation{rel("a", nil), rel("b", nil)})
	nested := ContentHash(members, []Relation{rel("a", nil), rel("b", ptr("a"))})

	assert.NotEqual(t, flat, nested)
}

func TestTreeContentHashMatchesFlatHash(t *testing.T) {
	a := member("a", "Ana", "Reyes", "01/01/1950")
	b := member("b", "Ben", "Reyes", "01/01/1975")
	relations := []Relation{rel("a", nil), rel("b", ptr("a"))}

	tr, err := Assemble([]*Member{a, b}, relations)
	require.NoError(t, err)

	assert.Equal(t, ContentHash([]*Member{a, b}, relations), TreeContentHash(tr))
}
