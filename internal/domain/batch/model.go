package batch

import (
	"errors"
	"net/mail"
	"strings"
)

// Domain errors
var (
	ErrEmptyID               = errors.New("batch ID cannot be empty")
	ErrNegativeTotalSessions = errors.New("total sessions cannot be negative")
	ErrInvalidTeacherEmail   = errors.New("teacher email is not a valid address")
)

// Batch is a scheduled course offering.
// TotalSessions is the declared number of planned sessions; nil means the
// batch has no declared plan and its schedule is whatever has been persisted.
type Batch struct {
	ID            string `json:"batch_id"`
	Name          string `json:"name"`
	TotalSessions *int   `json:"total_sessions"`
	TeacherEmail  string `json:"teacher_email,omitempty"`
}

// Validate checks if the Batch has valid data.
// PRE: Batch struct is populated
// POST: Returns nil if valid, error otherwise
func (b *Batch) Validate() error {
	if strings.TrimSpace(b.ID) == "" {
		return ErrEmptyID
	}
	if b.TotalSessions != nil && *b.TotalSessions < 0 {
		return ErrNegativeTotalSessions
	}
	if b.TeacherEmail != "" {
		if _, err := mail.ParseAddress(b.TeacherEmail); err != nil {
			return ErrInvalidTeacherEmail
		}
	}
	return nil
}

// TemplateRows returns how many rows an import template should carry:
// the declared capacity when known, otherwise the given slot count.
func (b Batch) TemplateRows(slotCount int) int {
	if b.TotalSessions != nil {
		return *b.TotalSessions
	}
	return slotCount
}
