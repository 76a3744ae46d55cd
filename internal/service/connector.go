package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crosstalk-ai/crosstalk/internal/domain"
	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
	"github.com/crosstalk-ai/crosstalk/internal/port/agent"
	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
)

// connectorID attributes synthesized task results to the connector itself.
const connectorID = "connector"

// defaultTaskLogSize bounds the per-task update history kept in memory.
const defaultTaskLogSize = 32

// Connector is the facade agents use for protocol-level behavior. It
// registers agents (deriving capabilities and installing their inbound
// handler), dispatches inbound traffic by message type, and exposes the
// outbound operations: send, discover, delegate, and task-update
// subscriptions.
type Connector struct {
	registry *Registry
	router   *Router
	protocol *Protocol
	bus      bus.Bus

	delegateTimeout time.Duration
	taskLog         *taskLog
	now             func() time.Time // for testing
}

// NewConnector creates a Connector over the given components.
func NewConnector(registry *Registry, router *Router, protocol *Protocol, b bus.Bus) *Connector {
	return &Connector{
		registry: registry,
		router:   router,
		protocol: protocol,
		bus:      b,
		taskLog:  newTaskLog(defaultTaskLogSize),
		now:      time.Now,
	}
}

// SetDelegateTimeout bounds DelegateTask's round trip. Expiry yields the
// same synthesized FAILED result shape as a delivery failure. Zero disables
// the bound.
func (c *Connector) SetDelegateTimeout(d time.Duration) {
	c.delegateTimeout = d
}

// RegisterAgent derives one capability per declared tool, stores the agent
// in the registry, and installs its inbound handler into the router.
// Re-registering the same id replaces both the directory entry and the
// handler.
func (c *Connector) RegisterAgent(ctx context.Context, ag agent.Agent) error {
	caps := DeriveCapabilities(ag)
	if err := c.registry.RegisterAgent(ctx, ag.ID(), ag.Name(), caps); err != nil {
		return fmt.Errorf("register agent: %w", err)
	}
	c.router.RegisterHandler(ag.ID(), c.inboundHandler(ag))

	slog.Info("agent registered", "agent_id", ag.ID(), "capabilities", len(caps))
	return nil
}

// DeriveCapabilities maps an agent's declared tool list to capabilities,
// one per tool.
func DeriveCapabilities(ag agent.Agent) []a2a.Capability {
	tools := ag.Tools()
	caps := make([]a2a.Capability, 0, len(tools))
	for _, tool := range tools {
		caps = append(caps, a2a.Capability{
			ID:          tool,
			Name:        tool,
			Version:     "1.0.0",
			Description: fmt.Sprintf("%s tool provided by %s", tool, ag.Name()),
		})
	}
	return caps
}

// inboundHandler builds the router handler for one agent: validate the
// inbound message, then dispatch by type. Every failure inside the handler
// is converted into an ERROR response rather than propagated.
func (c *Connector) inboundHandler(ag agent.Agent) Handler {
	return func(ctx context.Context, msg *a2a.Message) (resp *a2a.Message, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				resp = c.errorResponse(ag, msg, "internal_error", fmt.Sprintf("panic handling message: %v", rec))
				err = nil
			}
		}()

		if vr := c.protocol.ValidateMessage(msg); !vr.Valid {
			return c.errorResponse(ag, msg, "invalid_message", fmt.Sprintf("%v: %s", domain.ErrInvalidMessage, strings.Join(vr.Errors, "; "))), nil
		}

		switch msg.Type {
		case a2a.TypeCapabilityDiscovery:
			return c.handleDiscovery(ag, msg), nil
		case a2a.TypeTaskDelegation:
			return c.handleDelegation(ctx, ag, msg), nil
		case a2a.TypeRequest:
			return c.handleRequest(ctx, ag, msg), nil
		case a2a.TypeResponse, a2a.TypeError, a2a.TypeCapabilityResponse, a2a.TypeTaskCompletion:
			return c.errorResponse(ag, msg, "unsupported_type", fmt.Sprintf("unsupported message type %q", msg.Type)), nil
		default:
			return c.errorResponse(ag, msg, "unsupported_type", fmt.Sprintf("unsupported message type %q", msg.Type)), nil
		}
	}
}

// handleDiscovery answers a CAPABILITY_DISCOVERY message with the agent's
// own capability list, optionally filtered by a JSON array of capability
// ids in the message content.
func (c *Connector) handleDiscovery(ag agent.Agent, msg *a2a.Message) *a2a.Message {
	entry, _ := c.registry.GetAgent(ag.ID())
	caps := entry.Capabilities

	if msg.Content != "" {
		var wanted []string
		if err := json.Unmarshal([]byte(msg.Content), &wanted); err != nil {
			return c.errorResponse(ag, msg, "invalid_filter", fmt.Sprintf("capability filter: %v", err))
		}
		if len(wanted) > 0 {
			filtered := caps[:0:0]
			for _, cp := range caps {
				for _, id := range wanted {
					if cp.ID == id {
						filtered = append(filtered, cp)
						break
					}
				}
			}
			caps = filtered
		}
	}

	content, err := json.Marshal(caps)
	if err != nil {
		return c.errorResponse(ag, msg, "internal_error", fmt.Sprintf("marshal capabilities: %v", err))
	}
	return c.reply(ag, msg, a2a.TypeCapabilityResponse, string(content), nil, nil)
}

// handleDelegation accepts a TASK_DELEGATION message: transition the task
// to IN_PROGRESS, run the agent's own execution logic, and answer with a
// TASK_COMPLETION carrying the terminal task result.
func (c *Connector) handleDelegation(ctx context.Context, ag agent.Agent, msg *a2a.Message) *a2a.Message {
	task := msg.Task
	if task == nil {
		task = &a2a.Task{}
		if err := json.Unmarshal([]byte(msg.Content), task); err != nil {
			return c.errorResponse(ag, msg, "invalid_task", fmt.Sprintf("decode task: %v", err))
		}
	}
	if task.ID == "" {
		return c.errorResponse(ag, msg, "invalid_task", "task id is required")
	}

	task.Status = a2a.StatusInProgress
	c.publishTaskUpdate(ctx, task.ID, a2a.StatusInProgress, fmt.Sprintf("accepted by %s", ag.ID()))

	result := c.executeTask(ctx, ag, task)
	c.publishTaskUpdate(ctx, task.ID, result.Status, resultMessage(result))

	content, err := json.Marshal(result)
	if err != nil {
		return c.errorResponse(ag, msg, "internal_error", fmt.Sprintf("marshal task result: %v", err))
	}

	summary := *task
	summary.Status = result.Status
	return c.reply(ag, msg, a2a.TypeTaskCompletion, string(content), &summary, nil)
}

// executeTask runs the delegated work through the agent's Executor
// interface and folds the outcome into a terminal task result.
func (c *Connector) executeTask(ctx context.Context, ag agent.Agent, task *a2a.Task) *a2a.TaskResult {
	exec, ok := ag.(agent.Executor)
	if !ok {
		return &a2a.TaskResult{
			TaskID:      task.ID,
			Status:      a2a.StatusFailed,
			Error:       &a2a.ErrorDetail{Code: "not_supported", Message: fmt.Sprintf("agent %q does not accept delegated tasks", ag.ID())},
			CompletedBy: a2a.Address{ID: ag.ID(), Name: ag.Name()},
			CompletedAt: c.now(),
		}
	}

	out, err := exec.ExecuteTask(ctx, task)
	if err != nil {
		return &a2a.TaskResult{
			TaskID:      task.ID,
			Status:      a2a.StatusFailed,
			Error:       &a2a.ErrorDetail{Code: "execution_failed", Message: err.Error()},
			CompletedBy: a2a.Address{ID: ag.ID(), Name: ag.Name()},
			CompletedAt: c.now(),
		}
	}
	return &a2a.TaskResult{
		TaskID:      task.ID,
		Status:      a2a.StatusCompleted,
		Result:      out,
		CompletedBy: a2a.Address{ID: ag.ID(), Name: ag.Name()},
		CompletedAt: c.now(),
	}
}

// handleRequest passes a generic REQUEST through to the agent's own request
// handling.
func (c *Connector) handleRequest(ctx context.Context, ag agent.Agent, msg *a2a.Message) *a2a.Message {
	responder, ok := ag.(agent.Responder)
	if !ok {
		return c.errorResponse(ag, msg, "not_supported", fmt.Sprintf("agent %q does not handle requests", ag.ID()))
	}

	content, err := responder.HandleRequest(ctx, msg)
	if err != nil {
		return c.errorResponse(ag, msg, "request_failed", err.Error())
	}
	return c.reply(ag, msg, a2a.TypeResponse, content, nil, nil)
}

// SendMessage normalizes, validates, and routes a message on behalf of
// fromAgent. Validation and routing failures are returned as ERROR
// messages addressed to the caller, never as panics or errors. A message
// addressed to the broadcast id fans out to every registered agent; the
// returned message then acknowledges the fan-out with the recipient count.
func (c *Connector) SendMessage(ctx context.Context, fromAgent string, msg *a2a.Message) *a2a.Message {
	cp := msg.Clone()
	if cp.Sender.ID == "" {
		cp.Sender = c.senderAddress(fromAgent)
	}
	cp = c.protocol.FormatMessage(cp)

	if vr := c.protocol.ValidateMessage(cp); !vr.Valid {
		return c.callerError(fromAgent, cp, "invalid_message", fmt.Sprintf("%v: %s", domain.ErrInvalidMessage, strings.Join(vr.Errors, "; ")))
	}

	if cp.IsBroadcast() {
		responses := c.router.BroadcastMessage(ctx, cp)
		ack, err := json.Marshal(map[string]int{"delivered": len(responses)})
		if err != nil {
			return c.callerError(fromAgent, cp, "internal_error", err.Error())
		}
		return &a2a.Message{
			ID:        uuid.NewString(),
			Type:      a2a.TypeResponse,
			Sender:    a2a.Address{ID: connectorID},
			Recipient: &cp.Sender,
			Content:   string(ack),
			Metadata: a2a.Metadata{
				Timestamp:     c.now().UnixMilli(),
				CorrelationID: cp.Metadata.CorrelationID,
			},
		}
	}

	return c.router.RouteMessage(ctx, cp)
}

// DiscoverCapabilities broadcasts a CAPABILITY_DISCOVERY message, then
// answers from the registry's current state. The broadcast is advisory —
// for passive listeners — and its responses are not collected; the registry
// snapshot is authoritative. With a filter, the union of capabilities
// matching any filtered id is returned; otherwise the capabilities of every
// registered agent. Duplicated capability ids across agents are reported
// once.
func (c *Connector) DiscoverCapabilities(ctx context.Context, fromAgent string, filter []string) []a2a.Capability {
	discovery := &a2a.Message{
		Type:      a2a.TypeCapabilityDiscovery,
		Sender:    c.senderAddress(fromAgent),
		Recipient: &a2a.Address{ID: a2a.BroadcastID},
	}
	if len(filter) > 0 {
		if content, err := json.Marshal(filter); err == nil {
			discovery.Content = string(content)
		}
	}
	c.router.BroadcastMessage(ctx, c.protocol.FormatMessage(discovery))

	seen := make(map[string]bool)
	var caps []a2a.Capability
	collect := func(entry a2a.AgentEntry, wanted string) {
		for _, cp := range entry.Capabilities {
			if wanted != "" && cp.ID != wanted {
				continue
			}
			if seen[cp.ID] {
				continue
			}
			seen[cp.ID] = true
			caps = append(caps, cp)
		}
	}

	if len(filter) == 0 {
		for _, entry := range c.registry.AllAgents() {
			collect(entry, "")
		}
		return caps
	}
	for _, id := range filter {
		for _, entry := range c.registry.FindAgentsByCapability(id) {
			collect(entry, id)
		}
	}
	return caps
}

// DelegateTask hands a task to another agent and waits for the round trip.
// Every failure mode — unknown recipient, handler error, timeout, decode
// failure — is returned as a terminal FAILED result attributed to the
// connector, never as an error.
func (c *Connector) DelegateTask(ctx context.Context, fromAgent, toAgent string, task *a2a.Task) *a2a.TaskResult {
	t := *task
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	t.Status = a2a.StatusPending
	if t.DelegatedBy.ID == "" {
		t.DelegatedBy = c.senderAddress(fromAgent)
	}

	c.publishTaskUpdate(ctx, t.ID, a2a.StatusPending, fmt.Sprintf("delegated to %s", toAgent))

	content, err := json.Marshal(&t)
	if err != nil {
		return c.failedResult(ctx, t.ID, fmt.Sprintf("encode task: %v", err))
	}

	recipient := a2a.Address{ID: toAgent}
	if entry, ok := c.registry.GetAgent(toAgent); ok {
		recipient.Name = entry.Name
	}
	msg := &a2a.Message{
		Type:      a2a.TypeTaskDelegation,
		Sender:    c.senderAddress(fromAgent),
		Recipient: &recipient,
		Content:   string(content),
		Task:      &t,
	}

	resp := c.sendWithTimeout(ctx, fromAgent, msg, t.ID)
	if resp == nil {
		return c.failedResult(ctx, t.ID, fmt.Sprintf("delegation timed out after %s", c.delegateTimeout))
	}

	switch resp.Type {
	case a2a.TypeTaskCompletion:
		var result a2a.TaskResult
		if err := json.Unmarshal([]byte(resp.Content), &result); err != nil {
			return c.failedResult(ctx, t.ID, fmt.Sprintf("decode task result: %v", err))
		}
		return &result
	case a2a.TypeError:
		detail := "delegation failed"
		if resp.Error != nil && resp.Error.Message != "" {
			detail = resp.Error.Message
		}
		return c.failedResult(ctx, t.ID, detail)
	default:
		return c.failedResult(ctx, t.ID, fmt.Sprintf("unexpected response type %q", resp.Type))
	}
}

// sendWithTimeout runs SendMessage, bounding the round trip by the
// configured delegation timeout. Returns nil when the bound expires before
// the response arrives; the in-flight handler keeps running but its
// response is discarded.
func (c *Connector) sendWithTimeout(ctx context.Context, fromAgent string, msg *a2a.Message, taskID string) *a2a.Message {
	if c.delegateTimeout <= 0 {
		return c.SendMessage(ctx, fromAgent, msg)
	}

	ctx, cancel := context.WithTimeout(ctx, c.delegateTimeout)
	defer cancel()

	done := make(chan *a2a.Message, 1)
	go func() {
		done <- c.SendMessage(ctx, fromAgent, msg)
	}()

	select {
	case resp := <-done:
		return resp
	case <-ctx.Done():
		slog.Warn("delegation timed out", "task_id", taskID, "timeout", c.delegateTimeout)
		return nil
	}
}

// SubscribeToTaskUpdates filters the shared task-update channel down to one
// task id. The returned subscription stops callback delivery when
// unsubscribed.
func (c *Connector) SubscribeToTaskUpdates(ctx context.Context, taskID string, callback func(a2a.TaskUpdate)) (*Subscription, error) {
	cancel, err := c.bus.Subscribe(ctx, bus.TaskUpdateSubject(taskID), func(_ context.Context, _ string, data []byte) error {
		var update a2a.TaskUpdate
		if err := json.Unmarshal(data, &update); err != nil {
			return fmt.Errorf("decode task update: %w", err)
		}
		callback(update)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("subscribe task updates: %w", err)
	}
	return &Subscription{cancel: cancel}, nil
}

// TaskUpdates returns the recent status transitions recorded for a task,
// oldest first. The log is advisory: DelegateTask never reads it, the
// round-trip response alone is authoritative.
func (c *Connector) TaskUpdates(taskID string) []a2a.TaskUpdate {
	return c.taskLog.updates(taskID)
}

// publishTaskUpdate records and announces one task status transition.
func (c *Connector) publishTaskUpdate(ctx context.Context, taskID string, status a2a.TaskStatus, message string) {
	update := a2a.TaskUpdate{
		TaskID:    taskID,
		Status:    status,
		Message:   message,
		UpdatedAt: c.now(),
	}
	c.taskLog.record(update)

	if c.bus == nil {
		return
	}
	data, err := json.Marshal(update)
	if err != nil {
		slog.Error("marshal task update", "task_id", taskID, "error", err)
		return
	}
	if err := c.bus.Publish(ctx, bus.TaskUpdateSubject(taskID), data); err != nil {
		slog.Warn("publish task update", "task_id", taskID, "error", err)
	}
}

// failedResult synthesizes the terminal result for a delegation that failed
// before a TASK_COMPLETION arrived, attributed to the connector itself.
func (c *Connector) failedResult(ctx context.Context, taskID, detail string) *a2a.TaskResult {
	c.publishTaskUpdate(ctx, taskID, a2a.StatusFailed, detail)
	return &a2a.TaskResult{
		TaskID:      taskID,
		Status:      a2a.StatusFailed,
		Error:       &a2a.ErrorDetail{Code: "delegation_failed", Message: detail},
		CompletedBy: a2a.Address{ID: connectorID},
		CompletedAt: c.now(),
	}
}

// senderAddress resolves an agent id to a full address using the registry,
// falling back to the bare id for unregistered callers.
func (c *Connector) senderAddress(agentID string) a2a.Address {
	if entry, ok := c.registry.GetAgent(agentID); ok {
		return a2a.Address{ID: entry.ID, Name: entry.Name}
	}
	return a2a.Address{ID: agentID}
}

// reply builds a response message from ag back to the sender of msg,
// carrying the request's correlation id.
func (c *Connector) reply(ag agent.Agent, msg *a2a.Message, typ a2a.MessageType, content string, task *a2a.Task, detail *a2a.ErrorDetail) *a2a.Message {
	out := &a2a.Message{
		Type:      typ,
		Sender:    a2a.Address{ID: ag.ID(), Name: ag.Name()},
		Recipient: &a2a.Address{ID: msg.Sender.ID, Name: msg.Sender.Name},
		Content:   content,
		Task:      task,
		Error:     detail,
		Metadata:  a2a.Metadata{CorrelationID: msg.Metadata.CorrelationID},
	}
	return c.protocol.FormatMessage(out)
}

// errorResponse builds an ERROR reply from ag for a message it could not
// handle.
func (c *Connector) errorResponse(ag agent.Agent, msg *a2a.Message, code, detail string) *a2a.Message {
	return c.reply(ag, msg, a2a.TypeError, "", nil, &a2a.ErrorDetail{Code: code, Message: detail})
}

// callerError builds an ERROR message addressed back to the caller of an
// outbound operation that failed before routing.
func (c *Connector) callerError(fromAgent string, msg *a2a.Message, code, detail string) *a2a.Message {
	return &a2a.Message{
		ID:        uuid.NewString(),
		Type:      a2a.TypeError,
		Sender:    a2a.Address{ID: connectorID},
		Recipient: &a2a.Address{ID: fromAgent},
		Error:     &a2a.ErrorDetail{Code: code, Message: detail},
		Metadata: a2a.Metadata{
			Timestamp:     c.now().UnixMilli(),
			CorrelationID: msg.Metadata.CorrelationID,
		},
	}
}

// resultMessage summarizes a task result for the update notification.
func resultMessage(r *a2a.TaskResult) string {
	if r.Error != nil {
		return r.Error.Message
	}
	return "completed"
}

// taskLog is the bounded in-memory record of recent task updates.
type taskLog struct {
	mu      sync.Mutex
	perTask map[string][]a2a.TaskUpdate
	max     int
}

func newTaskLog(maxPerTask int) *taskLog {
	return &taskLog{
		perTask: make(map[string][]a2a.TaskUpdate),
		max:     maxPerTask,
	}
}

func (l *taskLog) record(update a2a.TaskUpdate) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entries := append(l.perTask[update.TaskID], update)
	if len(entries) > l.max {
		entries = entries[len(entries)-l.max:]
	}
	l.perTask[update.TaskID] = entries
}

func (l *taskLog) updates(taskID string) []a2a.TaskUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]a2a.TaskUpdate(nil), l.perTask[taskID]...)
}
