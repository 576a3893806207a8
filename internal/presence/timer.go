// Package presence tracks who is live in a session and computes the
// facilitation countdown. The countdown is recomputed from a wall-clock
// anchor on every tick instead of being decremented, so it self-corrects
// across reconnects, tab suspension and client clock skew; only start, stop
// and expiry are ever synced.
package presence

import (
	"time"

	"retroboard/internal/retro"
)

// Remaining returns the seconds left on the session timer as of now. A
// stopped timer reports its pinned value.
func Remaining(s retro.Settings, now time.Time) int {
	if !s.TimerRunning || s.TimerStartedAt == nil {
		return s.TimerSeconds
	}
	elapsed := int(now.Sub(*s.TimerStartedAt).Seconds())
	left := s.TimerInitial - elapsed
	if left < 0 {
		return 0
	}
	return left
}

// Expired reports whether a running timer has reached zero as of now. Any
// number of ticks may have been skipped in between; only the anchor matters.
func Expired(s retro.Settings, now time.Time) bool {
	return s.TimerRunning && Remaining(s, now) == 0
}
