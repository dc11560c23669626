// Package email delivers outbound notices through an external provider.
package email

import (
	"context"
	"time"
)

// Message is one outbound email.
type Message struct {
	To      []string `json:"to"`
	From    string   `json:"from,omitempty"` // overrides the sender's default when set
	ReplyTo string   `json:"reply_to,omitempty"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Receipt is the provider's acknowledgement of a Message.
type Receipt struct {
	MessageID string
	SentAt    time.Time
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) (Receipt, error)
}
