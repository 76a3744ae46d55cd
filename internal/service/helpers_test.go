package service

import (
	"context"
	"testing"

	"github.com/crosstalk-ai/crosstalk/internal/adapter/membus"
	"github.com/crosstalk-ai/crosstalk/internal/config"
	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

// fakeAgent implements the agent port with pluggable task and request
// behavior.
type fakeAgent struct {
	id    string
	name  string
	tools []string
	exec  func(ctx context.Context, task *a2a.Task) (string, error)
	reply func(ctx context.Context, msg *a2a.Message) (string, error)
}

func (a *fakeAgent) ID() string      { return a.id }
func (a *fakeAgent) Name() string    { return a.name }
func (a *fakeAgent) Tools() []string { return a.tools }

func (a *fakeAgent) ExecuteTask(ctx context.Context, task *a2a.Task) (string, error) {
	if a.exec == nil {
		return "ok", nil
	}
	return a.exec(ctx, task)
}

func (a *fakeAgent) HandleRequest(ctx context.Context, msg *a2a.Message) (string, error) {
	if a.reply == nil {
		return "reply:" + msg.Content, nil
	}
	return a.reply(ctx, msg)
}

// bareAgent has no Executor or Responder implementation.
type bareAgent struct {
	id   string
	name string
}

func (a *bareAgent) ID() string      { return a.id }
func (a *bareAgent) Name() string    { return a.name }
func (a *bareAgent) Tools() []string { return nil }

// newTestComponents wires a protocol core over a fresh in-memory bus.
func newTestComponents(t *testing.T) (*Components, *membus.Bus) {
	t.Helper()

	b := membus.New()
	t.Cleanup(func() { _ = b.Close() })

	cfg := config.Defaults().Protocol
	return New(cfg, b), b
}

// mustRegister registers an agent or fails the test.
func mustRegister(t *testing.T, c *Connector, agents ...*fakeAgent) {
	t.Helper()

	for _, ag := range agents {
		if err := c.RegisterAgent(context.Background(), ag); err != nil {
			t.Fatalf("RegisterAgent(%s): %v", ag.id, err)
		}
	}
}
