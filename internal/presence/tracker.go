package presence

import (
	"sync"

	"retroboard/internal/retro"
)

// Tracker keeps the connected set for one client's view of a session.
// Connected is who is live right now; the document roster is who has ever
// joined. A participant can be known but offline.
//
// The broadcast latch guards the one-time merge of an incoming roster
// announcement into the session document: without it, every repeated
// roster broadcast would re-add already-known users.
type Tracker struct {
	mu          sync.Mutex
	connected   map[string]retro.Participant
	broadcasted bool
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{connected: make(map[string]retro.Participant)}
}

// Join marks a participant as connected.
func (t *Tracker) Join(p retro.Participant) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected[p.ID] = p
}

// Leave marks a participant as disconnected.
func (t *Tracker) Leave(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.connected, userID)
}

// Connected reports whether the user is live right now.
func (t *Tracker) Connected(userID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.connected[userID]
	return ok
}

// Snapshot returns the current connected set.
func (t *Tracker) Snapshot() []retro.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]retro.Participant, 0, len(t.connected))
	for _, p := range t.connected {
		out = append(out, p)
	}
	return out
}

// SetRoster replaces the connected set with a full roster announcement and
// reports whether this is the first announcement since the latch was reset.
// Callers merge the roster into the document only when this returns true.
func (t *Tracker) SetRoster(members []retro.Participant) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = make(map[string]retro.Participant, len(members))
	for _, p := range members {
		t.connected[p.ID] = p
	}
	first := !t.broadcasted
	t.broadcasted = true
	return first
}

// Reset clears the connected set and re-arms the broadcast latch, for use
// when the client leaves or rejoins a session.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = make(map[string]retro.Participant)
	t.broadcasted = false
}
