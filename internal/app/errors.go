package app

import (
	"errors"
	"fmt"
)

// ErrForbidden reports a non-facilitator attempting a facilitator-only
// action. The domain state is untouched; the UI should never offer the
// affordance, but the service enforces it independently.
var ErrForbidden = errors.New("facilitator role required")

type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}
