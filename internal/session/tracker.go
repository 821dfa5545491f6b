package session

import "sync"

// Tracker owns the "last known sim JSON" value. Renders, swipe captures
// and regenerate captures overwrite it whole; macro expansion reads it.
// The mutex keeps the preview server's handlers safe, every pipeline
// write still happens on the single event loop.
type Tracker struct {
	mu  sync.Mutex
	raw string
}

func NewTracker() *Tracker {
	return &Tracker{}
}

// Capture replaces the stored JSON. Empty input is ignored so a failed
// extraction never clobbers the last good value.
func (t *Tracker) Capture(raw string) {
	if raw == "" {
		return
	}
	t.mu.Lock()
	t.raw = raw
	t.mu.Unlock()
}

// Last returns the stored JSON, "" when nothing was captured yet.
func (t *Tracker) Last() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.raw
}

// Clear drops the stored JSON. Called on chat change and teardown.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.raw = ""
	t.mu.Unlock()
}
