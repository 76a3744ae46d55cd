// Package domain provides shared domain-level sentinel errors.
package domain

import "errors"

// ErrNoHandler indicates no inbound handler is registered for the recipient.
var ErrNoHandler = errors.New("no handler registered for recipient")

// ErrInvalidMessage indicates a message failed structural validation.
var ErrInvalidMessage = errors.New("invalid message")
