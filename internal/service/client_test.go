package service

import (
	"context"
	"testing"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

func TestClientSend(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	alice := NewClient("alice", c.Connector)
	resp := alice.Send(context.Background(), "bob", "ping")

	if resp.Type != a2a.TypeResponse {
		t.Fatalf("response type = %s, want response", resp.Type)
	}
	if resp.Content != "reply:ping" {
		t.Errorf("content = %q", resp.Content)
	}
	if resp.Recipient == nil || resp.Recipient.ID != "alice" {
		t.Errorf("response not addressed to the bound agent: %+v", resp.Recipient)
	}
}

func TestClientDiscoverAndDelegate(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", tools: []string{"search"}, exec: func(_ context.Context, task *a2a.Task) (string, error) {
			return "found: " + task.Description, nil
		}},
	)

	alice := NewClient("alice", c.Connector)

	caps := alice.Discover(ctx, "search")
	if len(caps) != 1 || caps[0].ID != "search" {
		t.Fatalf("discover = %+v, want the search capability", caps)
	}

	result := alice.Delegate(ctx, "bob", &a2a.Task{Description: "x"})
	if result.Status != a2a.StatusCompleted {
		t.Fatalf("status = %s (error: %+v)", result.Status, result.Error)
	}
	if result.Result != "found: x" {
		t.Errorf("result = %q", result.Result)
	}
	if result.TaskID == "" {
		t.Error("expected a generated task id")
	}
}

func TestClientSubscribeTaskUpdates(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	alice := NewClient("alice", c.Connector)

	var seen []a2a.TaskStatus
	sub, err := alice.SubscribeTaskUpdates(ctx, "t1", func(update a2a.TaskUpdate) {
		seen = append(seen, update.Status)
	})
	if err != nil {
		t.Fatalf("SubscribeTaskUpdates: %v", err)
	}
	defer sub.Unsubscribe()

	alice.Delegate(ctx, "bob", &a2a.Task{ID: "t1"})
	if len(seen) == 0 || seen[len(seen)-1] != a2a.StatusCompleted {
		t.Errorf("observed statuses = %v, want trailing completed", seen)
	}
}
