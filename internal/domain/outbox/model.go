// Package outbox models notices whose first delivery failed and that are
// retried in the background until they succeed or run out of attempts.
package outbox

import (
	"errors"
	"time"
)

// Entry statuses.
const (
	StatusPending = "pending"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// KindCancellationNotice is the only entry kind the academy queues today.
const KindCancellationNotice = "cancellation_notice"

// DefaultMaxAttempts applies when an entry is saved without a limit.
const DefaultMaxAttempts = 5

// Domain errors.
var (
	ErrEmptyID      = errors.New("outbox entry id is required")
	ErrEmptyKind    = errors.New("outbox entry kind is required")
	ErrEmptyPayload = errors.New("outbox entry payload is required")
	ErrNoCreatedAt  = errors.New("outbox entry created_at must be set")
)

// Entry is one queued delivery.
type Entry struct {
	ID              string
	Kind            string
	Payload         string // JSON, decoded by the worker for Kind
	Status          string
	Attempts        int
	MaxAttempts     int
	LastError       string
	CreatedAt       time.Time
	LastAttemptedAt time.Time
}

// Validate checks required fields and fills defaults for status and attempt limit.
// PRE: none
// POST: Returns nil and a pending-or-later entry with MaxAttempts > 0, or an error
func (e *Entry) Validate() error {
	switch {
	case e.ID == "":
		return ErrEmptyID
	case e.Kind == "":
		return ErrEmptyKind
	case e.Payload == "":
		return ErrEmptyPayload
	case e.CreatedAt.IsZero():
		return ErrNoCreatedAt
	}
	if e.Status == "" {
		e.Status = StatusPending
	}
	if e.MaxAttempts <= 0 {
		e.MaxAttempts = DefaultMaxAttempts
	}
	return nil
}

// NextRetryDelay returns base doubled once per attempt, capped at max.
func (e *Entry) NextRetryDelay(base, max time.Duration) time.Duration {
	if e.Attempts <= 0 {
		return 0
	}
	shift := e.Attempts - 1
	if shift >= 30 {
		return max
	}
	d := base * time.Duration(1<<shift)
	if d <= 0 || d > max {
		return max
	}
	return d
}

// Due reports whether a pending entry's backoff has elapsed at now.
// PRE: none
// POST: Returns false for done and failed entries
func (e *Entry) Due(now time.Time, base, max time.Duration) bool {
	if e.Status != StatusPending {
		return false
	}
	if e.LastAttemptedAt.IsZero() {
		return true
	}
	return !now.Before(e.LastAttemptedAt.Add(e.NextRetryDelay(base, max)))
}

// MarkAttempt records the start of a delivery attempt.
func (e *Entry) MarkAttempt(now time.Time) {
	e.Attempts++
	e.LastAttemptedAt = now
}

// MarkSuccess moves the entry to done.
func (e *Entry) MarkSuccess() {
	e.Status = StatusDone
	e.LastError = ""
}

// MarkFailed records err and gives up once the attempt limit is reached.
// PRE: MarkAttempt was called for this attempt
// POST: Status is failed when Attempts >= MaxAttempts, pending otherwise
func (e *Entry) MarkFailed(err error) {
	if err != nil {
		e.LastError = err.Error()
	}
	if e.Attempts >= e.MaxAttempts {
		e.Status = StatusFailed
		return
	}
	e.Status = StatusPending
}
