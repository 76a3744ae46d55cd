package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

// Protocol gatekeeps message shape and fills derivable defaults. It is the
// single normalization point: every message entering the Router must have
// passed through FormatMessage.
type Protocol struct {
	now   func() time.Time // for testing
	newID func() string
}

// NewProtocol creates a Protocol handler.
func NewProtocol() *Protocol {
	return &Protocol{
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// ValidationResult reports the outcome of ValidateMessage. Errors lists
// every violation found, not just the first.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Errors []string `json:"errors,omitempty"`
}

// ValidateMessage checks the structural rules a message must satisfy before
// routing. It never mutates its input and never panics on a nil message.
func (p *Protocol) ValidateMessage(msg *a2a.Message) ValidationResult {
	var errs []string

	if msg == nil {
		return ValidationResult{Valid: false, Errors: []string{"message is nil"}}
	}
	if !msg.Type.Valid() {
		errs = append(errs, fmt.Sprintf("unknown message type %q", msg.Type))
	}
	if msg.Sender.ID == "" {
		errs = append(errs, "sender.id is required")
	}
	if !msg.IsBroadcast() && msg.Recipient.ID == "" {
		errs = append(errs, "recipient.id is required for non-broadcast messages")
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs}
}

// FormatMessage returns a normalized copy of msg with id, timestamp, and
// correlation id filled when absent. Fields already present are never
// overwritten, so FormatMessage is idempotent on complete messages.
func (p *Protocol) FormatMessage(msg *a2a.Message) *a2a.Message {
	out := msg.Clone()

	if out.ID == "" {
		out.ID = p.newID()
	}
	if out.Metadata.Timestamp == 0 {
		out.Metadata.Timestamp = p.now().UnixMilli()
	}
	if out.Metadata.CorrelationID == "" {
		out.Metadata.CorrelationID = p.newID()
	}
	return out
}
