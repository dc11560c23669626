package session

import (
	"errors"
	"strconv"
	"strings"
)

// Status is the lifecycle state of a class session.
type Status string

// Status constants
const (
	StatusScheduled Status = "scheduled"
	StatusCompleted Status = "completed"
	StatusCancelled Status = "cancelled"
)

// ValidStatuses contains all valid status values.
var ValidStatuses = []Status{StatusScheduled, StatusCompleted, StatusCancelled}

// Domain errors
var (
	ErrEmptyBatchID         = errors.New("batch ID cannot be empty")
	ErrInvalidSessionNumber = errors.New("session number must be a positive integer")
	ErrUnknownStatus        = errors.New("status must be scheduled, completed or cancelled")
	ErrMissingReason        = errors.New("cancellation reason is required when status is cancelled")
)

// SessionRecord is a scheduled class session persisted by the session store.
// RecordID is empty until the record has been created.
// SessionNumber is zero when the store returned a record without one.
type SessionRecord struct {
	RecordID           string `json:"record_id,omitempty"`
	BatchID            string `json:"batch_id"`
	SessionNumber      int    `json:"session_number"`
	Title              string `json:"title"`
	Date               string `json:"date,omitempty"`
	Time               string `json:"time,omitempty"`
	MeetLink           string `json:"meet_link,omitempty"`
	Note               string `json:"note,omitempty"`
	Status             Status `json:"status"`
	CancellationReason string `json:"cancellation_reason,omitempty"`
	IsCurrent          bool   `json:"is_current"`
}

// Validate checks that the record can be persisted.
// PRE: record fields are populated
// POST: Returns nil if valid, error otherwise
func (r *SessionRecord) Validate() error {
	if strings.TrimSpace(r.BatchID) == "" {
		return ErrEmptyBatchID
	}
	if r.SessionNumber < 1 {
		return ErrInvalidSessionNumber
	}
	if !IsValidStatus(r.Status) {
		return ErrUnknownStatus
	}
	if r.Status == StatusCancelled && strings.TrimSpace(r.CancellationReason) == "" {
		return ErrMissingReason
	}
	return nil
}

// Slot is the reconciled view of "session N of this batch".
// A slot either wraps a persisted record or is a placeholder with no RecordID.
// Index is the display position; it equals SessionNumber unless the record had none.
type Slot struct {
	Index int `json:"index"`
	SessionRecord
}

// Bound reports whether the slot is backed by a persisted record.
func (s Slot) Bound() bool {
	return s.RecordID != ""
}

// DefaultTitle returns the placeholder title for a session number.
func DefaultTitle(sessionNumber int) string {
	return "Session " + strconv.Itoa(sessionNumber)
}

// DefaultSlot builds an unbound placeholder for the given session number.
// PRE: sessionNumber >= 1
// POST: Returns a scheduled slot titled "Session N" with no RecordID
func DefaultSlot(batchID string, sessionNumber int) Slot {
	return Slot{
		Index: sessionNumber,
		SessionRecord: SessionRecord{
			BatchID:       batchID,
			SessionNumber: sessionNumber,
			Title:         DefaultTitle(sessionNumber),
			Status:        StatusScheduled,
		},
	}
}

// Bind wraps a persisted record as a slot at the given display index.
// Unset titles and statuses fall back to the placeholder defaults.
func Bind(index int, r SessionRecord) Slot {
	if strings.TrimSpace(r.Title) == "" {
		n := r.SessionNumber
		if n < 1 {
			n = index
		}
		r.Title = DefaultTitle(n)
	}
	if r.Status == "" {
		r.Status = StatusScheduled
	}
	return Slot{Index: index, SessionRecord: r}
}

// Patch lists the fields a save changes. Nil fields are left untouched.
type Patch struct {
	Title              *string `json:"title,omitempty"`
	Date               *string `json:"date,omitempty"`
	Time               *string `json:"time,omitempty"`
	MeetLink           *string `json:"meet_link,omitempty"`
	Note               *string `json:"note,omitempty"`
	Status             *Status `json:"status,omitempty"`
	CancellationReason *string `json:"cancellation_reason,omitempty"`
	IsCurrent          *bool   `json:"is_current,omitempty"`
}

// IsEmpty reports whether the patch changes nothing.
func (p Patch) IsEmpty() bool {
	return p.Title == nil && p.Date == nil && p.Time == nil && p.MeetLink == nil &&
		p.Note == nil && p.Status == nil && p.CancellationReason == nil && p.IsCurrent == nil
}

// TouchesStatus reports whether the patch changes the status or its reason.
func (p Patch) TouchesStatus() bool {
	return p.Status != nil || p.CancellationReason != nil
}

// Apply returns a copy of r with the patch fields written over it.
// PRE: none
// POST: r is not mutated
func (p Patch) Apply(r SessionRecord) SessionRecord {
	if p.Title != nil {
		r.Title = *p.Title
	}
	if p.Date != nil {
		r.Date = *p.Date
	}
	if p.Time != nil {
		r.Time = *p.Time
	}
	if p.MeetLink != nil {
		r.MeetLink = *p.MeetLink
	}
	if p.Note != nil {
		r.Note = *p.Note
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.CancellationReason != nil {
		r.CancellationReason = *p.CancellationReason
	}
	if p.IsCurrent != nil {
		r.IsCurrent = *p.IsCurrent
	}
	return r
}

// NormalizeStatus lower-cases and trims a user-supplied status name. The
// result is not checked; ValidateTransition rejects unknown values.
func NormalizeStatus(s string) Status {
	return Status(strings.ToLower(strings.TrimSpace(s)))
}

// IsValidStatus reports whether s is one of ValidStatuses.
func IsValidStatus(s Status) bool {
	for _, v := range ValidStatuses {
		if v == s {
			return true
		}
	}
	return false
}
