package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
)

func TestRegisterAgentDerivesCapabilities(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector, &fakeAgent{id: "bob", name: "Bob", tools: []string{"search", "summarize"}})

	entry, ok := c.Registry.GetAgent("bob")
	if !ok {
		t.Fatal("bob not in registry")
	}
	if len(entry.Capabilities) != 2 {
		t.Fatalf("expected 2 capabilities, got %d", len(entry.Capabilities))
	}
	if !entry.HasCapability("search") || !entry.HasCapability("summarize") {
		t.Errorf("capabilities = %+v", entry.Capabilities)
	}
	for _, cp := range entry.Capabilities {
		if cp.Version != "1.0.0" {
			t.Errorf("capability %s version = %q", cp.ID, cp.Version)
		}
	}
}

func TestRegisterAgentReplaces(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	mustRegister(t, c.Connector, &fakeAgent{id: "bob", name: "Bob", tools: []string{"old"}})
	mustRegister(t, c.Connector, &fakeAgent{
		id: "bob", name: "Bob", tools: []string{"new"},
		reply: func(context.Context, *a2a.Message) (string, error) { return "v2", nil },
	})

	entry, _ := c.Registry.GetAgent("bob")
	if entry.HasCapability("old") || !entry.HasCapability("new") {
		t.Errorf("capabilities not replaced: %+v", entry.Capabilities)
	}

	resp := c.Connector.SendMessage(ctx, "alice", &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: "bob"},
	})
	if resp.Content != "v2" {
		t.Errorf("handler not replaced, response = %q", resp.Content)
	}
}

func TestSendMessageRoundTrip(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	var seenSender string
	var calls int
	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", reply: func(_ context.Context, msg *a2a.Message) (string, error) {
			calls++
			seenSender = msg.Sender.ID
			return "pong", nil
		}},
	)

	resp := c.Connector.SendMessage(ctx, "alice", &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: "bob"},
		Content:   "ping",
	})

	if calls != 1 {
		t.Fatalf("handler invoked %d times, want 1", calls)
	}
	if seenSender != "alice" {
		t.Errorf("handler saw sender %q, want alice", seenSender)
	}
	if resp.Type != a2a.TypeResponse || resp.Content != "pong" {
		t.Errorf("response = %s %q", resp.Type, resp.Content)
	}
	if resp.Sender.ID != "bob" {
		t.Errorf("response sender = %q, want bob", resp.Sender.ID)
	}
	if resp.Metadata.CorrelationID == "" {
		t.Error("response lost the correlation id")
	}
}

func TestSendMessageDoesNotMutateInput(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	msg := &a2a.Message{Type: a2a.TypeRequest, Recipient: &a2a.Address{ID: "bob"}}
	c.Connector.SendMessage(context.Background(), "alice", msg)

	if msg.ID != "" || msg.Sender.ID != "" {
		t.Errorf("SendMessage mutated its input: %+v", msg)
	}
}

func TestSendMessageInvalidMessage(t *testing.T) {
	c, _ := newTestComponents(t)

	var calls int
	mustRegister(t, c.Connector, &fakeAgent{
		id: "bob", name: "Bob",
		reply: func(context.Context, *a2a.Message) (string, error) { calls++; return "", nil },
	})

	resp := c.Connector.SendMessage(context.Background(), "alice", &a2a.Message{
		Type:      a2a.MessageType("bogus"),
		Recipient: &a2a.Address{ID: "bob"},
	})

	if resp.Type != a2a.TypeError {
		t.Fatalf("response type = %s, want error", resp.Type)
	}
	if resp.Error.Code != "invalid_message" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
	if calls != 0 {
		t.Error("invalid message must not reach the handler")
	}
}

func TestSendMessageUnknownRecipient(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector, &fakeAgent{id: "alice", name: "Alice"})

	resp := c.Connector.SendMessage(context.Background(), "alice", &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: "ghost"},
	})

	if resp.Type != a2a.TypeError {
		t.Fatalf("response type = %s, want error", resp.Type)
	}
	if resp.Error.Code != "delivery_failed" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestSendMessageBroadcastAck(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
		&fakeAgent{id: "carol", name: "Carol"},
	)

	resp := c.Connector.SendMessage(context.Background(), "alice", &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: a2a.BroadcastID},
		Content:   "hello all",
	})

	if resp.Type != a2a.TypeResponse {
		t.Fatalf("response type = %s, want response", resp.Type)
	}
	var ack map[string]int
	if err := json.Unmarshal([]byte(resp.Content), &ack); err != nil {
		t.Fatalf("decode ack: %v", err)
	}
	if ack["delivered"] != 2 {
		t.Errorf("delivered = %d, want 2", ack["delivered"])
	}
}

func TestInboundUnsupportedType(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	resp := c.Connector.SendMessage(context.Background(), "alice", &a2a.Message{
		Type:      a2a.TypeTaskCompletion,
		Recipient: &a2a.Address{ID: "bob"},
	})

	if resp.Type != a2a.TypeError {
		t.Fatalf("response type = %s, want error", resp.Type)
	}
	if resp.Error.Code != "unsupported_type" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestDiscoverCapabilitiesAll(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", tools: []string{"search"}},
		&fakeAgent{id: "carol", name: "Carol", tools: []string{"math"}},
	)

	caps := c.Connector.DiscoverCapabilities(context.Background(), "alice", nil)
	if len(caps) != 2 {
		t.Fatalf("expected 2 capabilities, got %d: %+v", len(caps), caps)
	}
}

func TestDiscoverCapabilitiesFiltered(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", tools: []string{"search"}},
		&fakeAgent{id: "carol", name: "Carol", tools: []string{"math"}},
	)

	caps := c.Connector.DiscoverCapabilities(context.Background(), "alice", []string{"search"})
	if len(caps) != 1 || caps[0].ID != "search" {
		t.Fatalf("capabilities = %+v, want search only", caps)
	}

	if got := c.Connector.DiscoverCapabilities(context.Background(), "alice", []string{"nothing"}); len(got) != 0 {
		t.Errorf("expected no capabilities for unknown filter, got %+v", got)
	}
}

func TestDiscoverCapabilitiesDeduplicates(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "bob", name: "Bob", tools: []string{"search"}},
		&fakeAgent{id: "carol", name: "Carol", tools: []string{"search"}},
	)

	caps := c.Connector.DiscoverCapabilities(context.Background(), "alice", nil)
	if len(caps) != 1 {
		t.Fatalf("expected the shared capability once, got %d", len(caps))
	}
}

func TestDelegateTaskCompleted(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", exec: func(_ context.Context, task *a2a.Task) (string, error) {
			return "answer for " + task.Description, nil
		}},
	)

	task := &a2a.Task{ID: "task-7", Description: "find x"}
	result := c.Connector.DelegateTask(context.Background(), "alice", "bob", task)

	if result.Status != a2a.StatusCompleted {
		t.Fatalf("status = %s, want completed (error: %+v)", result.Status, result.Error)
	}
	if result.TaskID != "task-7" {
		t.Errorf("task id = %q, want task-7", result.TaskID)
	}
	if result.Result != "answer for find x" {
		t.Errorf("result = %q", result.Result)
	}
	if result.CompletedBy.ID != "bob" {
		t.Errorf("completed by %q, want bob", result.CompletedBy.ID)
	}
}

func TestDelegateTaskGeneratesID(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	result := c.Connector.DelegateTask(context.Background(), "alice", "bob", &a2a.Task{Description: "x"})
	if result.TaskID == "" {
		t.Fatal("expected a generated task id")
	}
	if result.Status != a2a.StatusCompleted {
		t.Errorf("status = %s", result.Status)
	}
}

func TestDelegateTaskExecutorError(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", exec: func(context.Context, *a2a.Task) (string, error) {
			return "", errors.New("boom")
		}},
	)

	result := c.Connector.DelegateTask(context.Background(), "alice", "bob", &a2a.Task{ID: "t1"})
	if result.Status != a2a.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Error == nil || result.Error.Message != "boom" {
		t.Errorf("error = %+v, want message boom", result.Error)
	}
}

func TestDelegateTaskUnknownAgent(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector, &fakeAgent{id: "alice", name: "Alice"})

	result := c.Connector.DelegateTask(context.Background(), "alice", "ghost", &a2a.Task{ID: "t1"})
	if result.Status != a2a.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Error == nil || result.Error.Message == "" {
		t.Fatal("expected a populated error detail")
	}
	if result.CompletedBy.ID != connectorID {
		t.Errorf("completed by %q, want the connector", result.CompletedBy.ID)
	}
}

func TestDelegateTaskNoExecutor(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	if err := c.Connector.RegisterAgent(ctx, &bareAgent{id: "bob", name: "Bob"}); err != nil {
		t.Fatal(err)
	}

	result := c.Connector.DelegateTask(ctx, "alice", "bob", &a2a.Task{ID: "t1"})
	if result.Status != a2a.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if result.Error.Code != "not_supported" {
		t.Errorf("error code = %q, want not_supported", result.Error.Code)
	}
}

func TestDelegateTaskTimeout(t *testing.T) {
	c, _ := newTestComponents(t)
	c.Connector.SetDelegateTimeout(20 * time.Millisecond)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob", exec: func(context.Context, *a2a.Task) (string, error) {
			time.Sleep(500 * time.Millisecond)
			return "late", nil
		}},
	)

	start := time.Now()
	result := c.Connector.DelegateTask(context.Background(), "alice", "bob", &a2a.Task{ID: "t1"})
	if elapsed := time.Since(start); elapsed > 300*time.Millisecond {
		t.Fatalf("delegation did not respect the timeout, took %s", elapsed)
	}
	if result.Status != a2a.StatusFailed {
		t.Fatalf("status = %s, want failed", result.Status)
	}
	if !strings.Contains(result.Error.Message, "timed out") {
		t.Errorf("error message = %q", result.Error.Message)
	}
}

func TestRequestToNonResponder(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	if err := c.Connector.RegisterAgent(ctx, &bareAgent{id: "bob", name: "Bob"}); err != nil {
		t.Fatal(err)
	}

	resp := c.Connector.SendMessage(ctx, "alice", &a2a.Message{
		Type:      a2a.TypeRequest,
		Recipient: &a2a.Address{ID: "bob"},
	})
	if resp.Type != a2a.TypeError {
		t.Fatalf("response type = %s, want error", resp.Type)
	}
	if resp.Error.Code != "not_supported" {
		t.Errorf("error code = %q", resp.Error.Code)
	}
}

func TestTaskUpdatesLifecycle(t *testing.T) {
	c, _ := newTestComponents(t)

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	result := c.Connector.DelegateTask(context.Background(), "alice", "bob", &a2a.Task{ID: "t1", Description: "x"})
	if result.Status != a2a.StatusCompleted {
		t.Fatalf("status = %s", result.Status)
	}

	updates := c.Connector.TaskUpdates("t1")
	if len(updates) != 3 {
		t.Fatalf("expected pending, in_progress, completed, got %d updates", len(updates))
	}
	want := []a2a.TaskStatus{a2a.StatusPending, a2a.StatusInProgress, a2a.StatusCompleted}
	for i, update := range updates {
		if update.Status != want[i] {
			t.Errorf("update[%d] = %s, want %s", i, update.Status, want[i])
		}
	}
}

func TestSubscribeToTaskUpdates(t *testing.T) {
	c, _ := newTestComponents(t)
	ctx := context.Background()

	mustRegister(t, c.Connector,
		&fakeAgent{id: "alice", name: "Alice"},
		&fakeAgent{id: "bob", name: "Bob"},
	)

	var statuses []a2a.TaskStatus
	sub, err := c.Connector.SubscribeToTaskUpdates(ctx, "t1", func(update a2a.TaskUpdate) {
		statuses = append(statuses, update.Status)
	})
	if err != nil {
		t.Fatalf("SubscribeToTaskUpdates: %v", err)
	}

	c.Connector.DelegateTask(ctx, "alice", "bob", &a2a.Task{ID: "t1"})

	// The in-memory bus delivers synchronously.
	if len(statuses) != 3 {
		t.Fatalf("observed %d updates, want 3: %v", len(statuses), statuses)
	}
	if statuses[len(statuses)-1] != a2a.StatusCompleted {
		t.Errorf("final status = %s, want completed", statuses[len(statuses)-1])
	}

	sub.Unsubscribe()
	c.Connector.DelegateTask(ctx, "alice", "bob", &a2a.Task{ID: "t1"})
	if len(statuses) != 3 {
		t.Errorf("unsubscribed callback still invoked, saw %d updates", len(statuses))
	}
}
