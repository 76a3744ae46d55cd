package service

import (
	"context"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

// Client is the per-agent augmentation: the connector's operations bound to
// one agent's identity. A registered agent holds a Client instead of
// reimplementing addressing and validation itself.
type Client struct {
	agentID   string
	connector *Connector
}

// NewClient binds the connector's operations to the given agent id.
func NewClient(agentID string, connector *Connector) *Client {
	return &Client{agentID: agentID, connector: connector}
}

// Send delivers an opaque content payload to another agent as a REQUEST and
// returns the response message.
func (c *Client) Send(ctx context.Context, toAgent, content string) *a2a.Message {
	return c.connector.SendMessage(ctx, c.agentID, &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: toAgent},
		Content:   content,
	})
}

// Discover returns the capabilities visible in the directory, optionally
// restricted to the given capability ids.
func (c *Client) Discover(ctx context.Context, filter ...string) []a2a.Capability {
	return c.connector.DiscoverCapabilities(ctx, c.agentID, filter)
}

// Delegate hands a task to another agent and returns its terminal result.
func (c *Client) Delegate(ctx context.Context, toAgent string, task *a2a.Task) *a2a.TaskResult {
	return c.connector.DelegateTask(ctx, c.agentID, toAgent, task)
}

// SubscribeTaskUpdates observes status transitions for one task.
func (c *Client) SubscribeTaskUpdates(ctx context.Context, taskID string, callback func(a2a.TaskUpdate)) (*Subscription, error) {
	return c.connector.SubscribeToTaskUpdates(ctx, taskID, callback)
}
