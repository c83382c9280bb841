package client

import "sync"

// ChangeTracker mirrors the server's unsaved flag on the client. It keeps
// two signals: a local hint set optimistically after successful mutations,
// and a confirmed value from a server round trip. The confirmed value wins
// once present.
type ChangeTracker struct {
	mu        sync.Mutex
	localHint bool
	confirmed *bool
	onChange  func(bool)
}

// NewChangeTracker creates an empty tracker.
func NewChangeTracker() *ChangeTracker {
	return &ChangeTracker{}
}

// OnDirtyChange registers a callback fired whenever the effective dirty
// state flips. An embedding UI uses this to arm or tear down its
// leave-confirmation guard. Replaces any previous callback.
func (t *ChangeTracker) OnDirtyChange(fn func(bool)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onChange = fn
}

// MarkDirty records a successful local mutation. Any earlier server answer
// is stale at this point and dropped.
func (t *ChangeTracker) MarkDirty() {
	t.mu.Lock()
	before := t.dirtyLocked()
	t.localHint = true
	t.confirmed = nil
	after := t.dirtyLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil && before != after {
		fn(after)
	}
}

// Reconcile overwrites both signals with the server's answer.
func (t *ChangeTracker) Reconcile(serverUnsaved bool) {
	t.mu.Lock()
	before := t.dirtyLocked()
	t.localHint = serverUnsaved
	t.confirmed = &serverUnsaved
	after := t.dirtyLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil && before != after {
		fn(after)
	}
}

// Clear resets the tracker, typically after a successful save or recover.
func (t *ChangeTracker) Clear() {
	t.mu.Lock()
	before := t.dirtyLocked()
	t.localHint = false
	t.confirmed = nil
	after := t.dirtyLocked()
	fn := t.onChange
	t.mu.Unlock()

	if fn != nil && before != after {
		fn(after)
	}
}

// IsDirty reports the effective dirty state.
func (t *ChangeTracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirtyLocked()
}

func (t *ChangeTracker) dirtyLocked() bool {
	if t.confirmed != nil {
		return *t.confirmed
	}
	return t.localHint
}
