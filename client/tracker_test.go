package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTrackerStartsClean(t *testing.T) {
	tr := NewChangeTracker()
	assert.False(t, tr.IsDirty())
}

func TestMarkDirtySticksUntilCleared(t *testing.T) {
	tr := NewChangeTracker()

	tr.MarkDirty()
	assert.True(t, tr.IsDirty())

	tr.MarkDirty()
	assert.True(t, tr.IsDirty())

	tr.Clear()
	assert.False(t, tr.IsDirty())
}

func TestReconcileOverridesLocalHint(t *testing.T) {
	tr := NewChangeTracker()

	tr.MarkDirty()
	tr.Reconcile(false)
	assert.False(t, tr.IsDirty())

	tr.Reconcile(true)
	assert.True(t, tr.IsDirty())
}

func TestMarkDirtyDropsStaleConfirmation(t *testing.T) {
	tr := NewChangeTracker()

	// A clean answer from the server followed by a local mutation: the
	// mutation is newer, so the tracker must report dirty.
	tr.Reconcile(false)
	tr.MarkDirty()
	assert.True(t, tr.IsDirty())
}

func TestOnDirtyChangeFiresOnlyOnFlips(t *testing.T) {
	tr := NewChangeTracker()

	var calls []bool
	tr.OnDirtyChange(func(dirty bool) { calls = append(calls, dirty) })

	tr.MarkDirty()
	tr.MarkDirty()
	tr.Reconcile(true)
	tr.Clear()
	tr.Clear()
	tr.Reconcile(false)

	assert.Equal(t, []bool{true, false}, calls)
}
