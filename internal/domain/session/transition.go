package session

import "strings"

// RejectionCode identifies why a status transition was refused.
type RejectionCode string

// Rejection codes
const (
	MissingCancellationReason RejectionCode = "missing_cancellation_reason"
	UnknownStatus             RejectionCode = "unknown_status"
	TransitionNotAllowed      RejectionCode = "transition_not_allowed"
)

// TransitionError is returned when ValidateTransition rejects a change.
type TransitionError struct {
	Code    RejectionCode
	From    Status
	To      Status
	wrapped error
}

// Error implements the error interface.
func (e *TransitionError) Error() string {
	switch e.Code {
	case MissingCancellationReason:
		return "cancelling a session requires a reason"
	case UnknownStatus:
		return "unknown status " + string(e.To)
	default:
		return "cannot move session from " + string(e.From) + " to " + string(e.To)
	}
}

// Unwrap lets callers match the domain sentinel with errors.Is.
func (e *TransitionError) Unwrap() error {
	return e.wrapped
}

// Transition is an accepted status change with its sanitised reason.
// CancellationReason is empty unless Status is cancelled.
type Transition struct {
	Status             Status
	CancellationReason string
}

// allowedTransitions lists the reachable next states for each state.
// Every state currently reaches every other state; tighten here if the
// business rule changes (e.g. forbid completed -> scheduled).
var allowedTransitions = map[Status][]Status{
	StatusScheduled: {StatusScheduled, StatusCompleted, StatusCancelled},
	StatusCompleted: {StatusScheduled, StatusCompleted, StatusCancelled},
	StatusCancelled: {StatusScheduled, StatusCompleted, StatusCancelled},
}

// ValidateTransition checks a status change and the cancellation-reason rule.
// An empty current status is treated as scheduled (the default for new slots).
// PRE: none
// POST: Returns the sanitised transition, or a *TransitionError
// INVARIANT: the returned reason is non-empty iff the returned status is cancelled
func ValidateTransition(current, next Status, reason string) (Transition, error) {
	if current == "" {
		current = StatusScheduled
	}
	if !IsValidStatus(next) {
		return Transition{}, &TransitionError{Code: UnknownStatus, From: current, To: next, wrapped: ErrUnknownStatus}
	}
	if !isAllowed(current, next) {
		return Transition{}, &TransitionError{Code: TransitionNotAllowed, From: current, To: next}
	}
	if next != StatusCancelled {
		return Transition{Status: next}, nil
	}
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return Transition{}, &TransitionError{Code: MissingCancellationReason, From: current, To: next, wrapped: ErrMissingReason}
	}
	return Transition{Status: StatusCancelled, CancellationReason: reason}, nil
}

func isAllowed(from, to Status) bool {
	targets, ok := allowedTransitions[from]
	if !ok {
		// Records written outside this service may carry an unrecognised status;
		// let them move into any valid state.
		return true
	}
	for _, t := range targets {
		if t == to {
			return true
		}
	}
	return false
}
