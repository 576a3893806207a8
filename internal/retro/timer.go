package retro

import "time"

// StartTimer starts the countdown from the configured initial duration,
// anchored at now. An expired timer must be acknowledged before it can run
// again, so an unnoticed expiry cannot silently reset.
func (d *Document) StartTimer(now time.Time) error {
	if d.Status == StatusClosed {
		return ErrSessionClosed
	}
	if !d.Settings.TimerAcknowledged {
		return ErrNotAcknowledged
	}
	at := now.UTC()
	d.Settings.TimerRunning = true
	d.Settings.TimerStartedAt = &at
	d.Settings.TimerSeconds = d.Settings.TimerInitial
	return nil
}

// StopTimer halts the countdown, pinning the remaining seconds as of now.
func (d *Document) StopTimer(now time.Time) {
	if d.Settings.TimerRunning && d.Settings.TimerStartedAt != nil {
		elapsed := int(now.Sub(*d.Settings.TimerStartedAt).Seconds())
		remaining := d.Settings.TimerInitial - elapsed
		if remaining < 0 {
			remaining = 0
		}
		d.Settings.TimerSeconds = remaining
	}
	d.Settings.TimerRunning = false
	d.Settings.TimerStartedAt = nil
}

// ExpireTimer records an observed expiry: stopped, zeroed, awaiting an
// explicit acknowledgment click.
func (d *Document) ExpireTimer() {
	d.Settings.TimerRunning = false
	d.Settings.TimerStartedAt = nil
	d.Settings.TimerSeconds = 0
	d.Settings.TimerAcknowledged = false
}

// AcknowledgeTimer clears an expired timer back to its initial duration.
func (d *Document) AcknowledgeTimer() {
	d.Settings.TimerAcknowledged = true
	d.Settings.TimerSeconds = d.Settings.TimerInitial
}
