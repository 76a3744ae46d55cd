// Package agent defines the port through which the protocol core sees a
// host-supplied agent. The core never inspects an agent's internal execution
// logic; it only reads identity and the declared tool list, and hands work
// back through the optional execution interfaces.
package agent

import (
	"context"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

// Agent is the minimal surface every registrable agent provides.
type Agent interface {
	// ID returns the agent's stable, unique identifier.
	ID() string

	// Name returns the agent's display name.
	Name() string

	// Tools returns the declared tool names. One capability is derived
	// per tool on registration.
	Tools() []string
}

// Executor is implemented by agents that accept delegated tasks.
// ExecuteTask runs the work and returns an opaque result payload.
type Executor interface {
	ExecuteTask(ctx context.Context, task *a2a.Task) (string, error)
}

// Responder is implemented by agents that answer generic REQUEST messages.
type Responder interface {
	HandleRequest(ctx context.Context, msg *a2a.Message) (string, error)
}
