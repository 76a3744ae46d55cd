// Package bus defines the notification channel port (interface).
//
// The protocol core only emits and filters notifications; it does not own
// the channel's implementation. Hosts plug in the in-process adapter or the
// NATS adapter.
package bus

import "context"

// Handler processes a notification received from the bus.
type Handler func(ctx context.Context, subject string, data []byte) error

// Bus is the port interface for publishing and subscribing to cross-cutting
// notifications.
type Bus interface {
	// Publish sends a notification to the given subject.
	Publish(ctx context.Context, subject string, data []byte) error

	// Subscribe registers a handler for notifications on the given subject.
	// A trailing ".>" token matches any suffix. The returned function
	// cancels the subscription; after it returns the handler is never
	// invoked again.
	Subscribe(ctx context.Context, subject string, handler Handler) (cancel func(), err error)

	// Close shuts down the bus connection.
	Close() error
}

// Subject constants for notifications emitted by the protocol core.
const (
	SubjectAgentRegistered = "a2a.agents.registered"
	SubjectTaskUpdate      = "a2a.tasks.update" // a2a.tasks.update.{taskID}
	SubjectLifecycle       = "a2a.system.lifecycle"
)

// TaskUpdateSubject returns the per-task subject under SubjectTaskUpdate.
func TaskUpdateSubject(taskID string) string {
	return SubjectTaskUpdate + "." + taskID
}

// AgentRegistered is the payload published on SubjectAgentRegistered.
type AgentRegistered struct {
	AgentID string `json:"agent_id"`
	Name    string `json:"name"`
}
