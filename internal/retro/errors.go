package retro

import "errors"

var (
	ErrSessionClosed    = errors.New("session is closed")
	ErrWrongPhase       = errors.New("operation not allowed in current phase")
	ErrNotAuthor        = errors.New("only the author can modify this ticket")
	ErrTicketNotFound   = errors.New("ticket not found")
	ErrGroupNotFound    = errors.New("group not found")
	ErrColumnNotFound   = errors.New("column not found")
	ErrActionNotFound   = errors.New("action not found")
	ErrEmptyText        = errors.New("text must not be empty")
	ErrInvalidRating    = errors.New("rating must be between 1 and 5")
	ErrVoteBudget       = errors.New("vote budget exhausted")
	ErrDuplicateVote    = errors.New("one vote per ticket is enforced")
	ErrInvalidPhase     = errors.New("unknown phase")
	ErrNotAcknowledged  = errors.New("timer expiry must be acknowledged first")
	ErrNotProposal      = errors.New("action is not a proposal")
	ErrInvalidDirection = errors.New("proposal vote must be up, down or neutral")
)
