package presence

import (
	"testing"
	"time"

	"retroboard/internal/retro"
)

func runningSettings(initial int, startedAt time.Time) retro.Settings {
	return retro.Settings{
		TimerInitial:      initial,
		TimerSeconds:      initial,
		TimerRunning:      true,
		TimerStartedAt:    &startedAt,
		TimerAcknowledged: true,
	}
}

func TestRemainingRecomputesFromAnchor(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := runningSettings(120, start)

	if got := Remaining(s, start); got != 120 {
		t.Fatalf("at start = %d, want 120", got)
	}
	if got := Remaining(s, start.Add(30*time.Second)); got != 90 {
		t.Fatalf("after 30s = %d, want 90", got)
	}
	// A suspended tab that skipped every tick still lands on the right
	// value.
	if got := Remaining(s, start.Add(10*time.Minute)); got != 0 {
		t.Fatalf("long after expiry = %d, want 0", got)
	}
}

func TestRemainingStoppedReportsPinnedValue(t *testing.T) {
	s := retro.Settings{TimerInitial: 120, TimerSeconds: 45}
	if got := Remaining(s, time.Now()); got != 45 {
		t.Fatalf("stopped = %d, want 45", got)
	}
}

func TestExpired(t *testing.T) {
	start := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	s := runningSettings(60, start)

	if Expired(s, start.Add(30*time.Second)) {
		t.Fatal("not yet expired")
	}
	if !Expired(s, start.Add(61*time.Second)) {
		t.Fatal("should be expired")
	}
	s.TimerRunning = false
	s.TimerSeconds = 0
	if Expired(s, start.Add(61*time.Second)) {
		t.Fatal("a stopped timer never expires")
	}
}

func TestTrackerConnectedSet(t *testing.T) {
	tr := NewTracker()
	tr.Join(retro.Participant{ID: "u1", Name: "Alice"})
	tr.Join(retro.Participant{ID: "u2", Name: "Bob"})
	if !tr.Connected("u1") {
		t.Fatal("u1 should be connected")
	}
	tr.Leave("u1")
	if tr.Connected("u1") {
		t.Fatal("u1 should be gone")
	}
	if got := len(tr.Snapshot()); got != 1 {
		t.Fatalf("snapshot size = %d, want 1", got)
	}
}

func TestTrackerRosterLatch(t *testing.T) {
	tr := NewTracker()
	members := []retro.Participant{{ID: "u1"}, {ID: "u2"}}

	if !tr.SetRoster(members) {
		t.Fatal("first announcement must report true")
	}
	if tr.SetRoster(members) {
		t.Fatal("repeat announcement must report false")
	}
	tr.Reset()
	if !tr.SetRoster(members) {
		t.Fatal("reset must re-arm the latch")
	}
}
