package retro

// Phase is one step of the facilitation workflow. The order below is the
// nominal flow, but the facilitator may jump to any phase for correction;
// every transition resets the per-phase ephemeral state either way.
type Phase string

const (
	PhaseIcebreaker  Phase = "ICEBREAKER"
	PhaseWelcome     Phase = "WELCOME"
	PhaseOpenActions Phase = "OPEN_ACTIONS"
	PhaseBrainstorm  Phase = "BRAINSTORM"
	PhaseGroup       Phase = "GROUP"
	PhaseVote        Phase = "VOTE"
	PhaseDiscuss     Phase = "DISCUSS"
	PhaseReview      Phase = "REVIEW"
	PhaseClose       Phase = "CLOSE"
)

// Phases lists every phase in workflow order. PhaseIcebreaker is initial,
// PhaseClose is terminal.
var Phases = []Phase{
	PhaseIcebreaker,
	PhaseWelcome,
	PhaseOpenActions,
	PhaseBrainstorm,
	PhaseGroup,
	PhaseVote,
	PhaseDiscuss,
	PhaseReview,
	PhaseClose,
}

// Valid reports whether p is a known phase.
func (p Phase) Valid() bool {
	for _, known := range Phases {
		if p == known {
			return true
		}
	}
	return false
}

// Next returns the phase after p in workflow order. The terminal phase
// returns itself.
func (p Phase) Next() Phase {
	for i, known := range Phases {
		if p == known && i < len(Phases)-1 {
			return Phases[i+1]
		}
	}
	return p
}

// SetPhase moves the document to the given phase. Any phase is reachable
// from any other; the reset of ephemeral state happens on every transition,
// including backward jumps, so a correction jump deliberately clears
// finished users and the running timer.
func (d *Document) SetPhase(next Phase) error {
	if !next.Valid() {
		return ErrInvalidPhase
	}
	d.Phase = next
	d.FinishedUsers = []string{}
	d.AutoFinishedUsers = []string{}
	d.DiscussionFocusID = ""
	d.Settings.TimerRunning = false
	d.Settings.TimerStartedAt = nil
	d.Settings.TimerSeconds = d.Settings.TimerInitial
	d.Settings.TimerAcknowledged = true
	if next == PhaseClose {
		d.Status = StatusClosed
	}
	return nil
}

// AdvancePhase moves to the next phase in workflow order.
func (d *Document) AdvancePhase() error {
	return d.SetPhase(d.Phase.Next())
}
