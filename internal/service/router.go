package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/crosstalk-ai/crosstalk/internal/domain"
	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
	"github.com/crosstalk-ai/crosstalk/internal/logger"
	"github.com/crosstalk-ai/crosstalk/internal/resilience"
)

// Handler is an agent's inbound message handler, installed via the
// Connector. It returns the response message for the inbound message.
type Handler func(ctx context.Context, msg *a2a.Message) (*a2a.Message, error)

// MessageFilter constrains which routed messages a subscription observes.
// Zero-valued fields match everything; set fields must equal the message's
// corresponding field.
type MessageFilter struct {
	SenderID string
	Type     a2a.MessageType
}

func (f MessageFilter) matches(msg *a2a.Message) bool {
	if f.SenderID != "" && f.SenderID != msg.Sender.ID {
		return false
	}
	if f.Type != "" && f.Type != msg.Type {
		return false
	}
	return true
}

// Subscription is a caller-owned registration on the Router. Unsubscribe
// guarantees the callback is never invoked again.
type Subscription struct {
	once   sync.Once
	cancel func()
}

// Unsubscribe removes the registration. Safe to call more than once.
func (s *Subscription) Unsubscribe() {
	s.once.Do(s.cancel)
}

type subscription struct {
	id       uint64
	filter   MessageFilter
	callback func(*a2a.Message)
}

// Router delivers point-to-point messages, fans broadcasts out to every
// registered agent, and notifies filtered observers. It is independent of
// message semantics: validation and normalization happen in the Connector
// and Protocol before a message reaches RouteMessage.
type Router struct {
	registry *Registry

	mu        sync.RWMutex
	handlers  map[string]Handler
	subs      []*subscription
	nextSubID uint64
	breakers  map[string]*resilience.Breaker

	breakerMaxFailures int
	breakerCooldown    time.Duration
	now                func() time.Time // for testing
}

// NewRouter creates a Router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{
		registry: registry,
		handlers: make(map[string]Handler),
		breakers: make(map[string]*resilience.Breaker),
		now:      time.Now,
	}
}

// SetBreaker enables the per-recipient delivery circuit breaker. After
// maxFailures consecutive delivery failures to one recipient, deliveries to
// that recipient fail fast until cooldown elapses. maxFailures <= 0 leaves
// the breaker disabled.
func (r *Router) SetBreaker(maxFailures int, cooldown time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.breakerMaxFailures = maxFailures
	r.breakerCooldown = cooldown
}

// RegisterHandler associates exactly one inbound handler with agentID. A
// later call for the same id replaces the former handler.
func (r *Router) RegisterHandler(agentID string, h Handler) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.handlers[agentID] = h
}

// RouteMessage delivers msg to its recipient's handler and returns the
// handler's response. Delivery failure — unknown recipient, handler error,
// or handler panic — is always expressed as a returned ERROR message
// addressed back to the sender, never as an error or panic escaping to the
// caller. After the routing attempt settles, matching subscriptions are
// notified with the original request.
func (r *Router) RouteMessage(ctx context.Context, msg *a2a.Message) *a2a.Message {
	resp := r.deliver(ctx, msg)
	r.notify(msg)
	return resp
}

// BroadcastMessage delivers a copy of msg to every agent in the registry
// except the sender. Deliveries run concurrently; the call returns only
// after all have settled. Per-recipient failures are isolated and appear as
// ERROR messages in the returned slice. Subscriptions are notified once,
// with the original message, after all deliveries settle.
func (r *Router) BroadcastMessage(ctx context.Context, msg *a2a.Message) []*a2a.Message {
	entries := r.registry.AllAgents()

	recipients := entries[:0]
	for _, e := range entries {
		if e.ID != msg.Sender.ID {
			recipients = append(recipients, e)
		}
	}

	responses := make([]*a2a.Message, len(recipients))
	var g errgroup.Group
	for i, entry := range recipients {
		i, entry := i, entry
		g.Go(func() error {
			cp := msg.Clone()
			cp.Recipient = &a2a.Address{ID: entry.ID, Name: entry.Name}
			responses[i] = r.deliver(ctx, cp)
			return nil
		})
	}
	_ = g.Wait() // deliveries never return errors; failures become messages

	r.notify(msg)
	return responses
}

// SubscribeToMessages registers a filtered observer over routed messages.
// Observers are notified in registration order.
func (r *Router) SubscribeToMessages(filter MessageFilter, callback func(*a2a.Message)) *Subscription {
	r.mu.Lock()
	r.nextSubID++
	sub := &subscription{id: r.nextSubID, filter: filter, callback: callback}
	r.subs = append(r.subs, sub)
	r.mu.Unlock()

	return &Subscription{cancel: func() { r.removeSubscription(sub.id) }}
}

func (r *Router) removeSubscription(id uint64) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, s := range r.subs {
		if s.id == id {
			r.subs = append(r.subs[:i], r.subs[i+1:]...)
			return
		}
	}
}

// deliver invokes the recipient's handler, converting every failure mode
// into a synthesized ERROR message.
func (r *Router) deliver(ctx context.Context, msg *a2a.Message) *a2a.Message {
	if msg.Recipient == nil || msg.Recipient.ID == "" {
		return r.errorReply(msg, "message has no recipient")
	}

	r.mu.RLock()
	h, ok := r.handlers[msg.Recipient.ID]
	r.mu.RUnlock()

	if !ok {
		return r.errorReply(msg, fmt.Sprintf("%v: %q", domain.ErrNoHandler, msg.Recipient.ID))
	}

	breaker := r.breakerFor(msg.Recipient.ID)
	ctx = logger.WithCorrelationID(ctx, msg.Metadata.CorrelationID)

	var resp *a2a.Message
	call := func() (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("handler panic: %v", rec)
			}
		}()
		resp, err = h(ctx, msg)
		return err
	}

	var err error
	if breaker != nil {
		err = breaker.Execute(call)
	} else {
		err = call()
	}

	if err != nil {
		slog.Debug("delivery failed",
			"recipient", msg.Recipient.ID,
			"message_id", msg.ID,
			"error", err,
		)
		return r.errorReply(msg, err.Error())
	}
	if resp == nil {
		return r.errorReply(msg, fmt.Sprintf("agent %q returned no response", msg.Recipient.ID))
	}
	return resp
}

// breakerFor returns the recipient's circuit breaker, creating it lazily.
// Returns nil when the breaker is disabled.
func (r *Router) breakerFor(agentID string) *resilience.Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.breakerMaxFailures <= 0 {
		return nil
	}
	b, ok := r.breakers[agentID]
	if !ok {
		b = resilience.NewBreaker(r.breakerMaxFailures, r.breakerCooldown)
		r.breakers[agentID] = b
	}
	return b
}

// notify runs matching subscription callbacks for msg in registration
// order. A callback's panic is isolated: it neither prevents later
// callbacks nor propagates to the router's caller.
func (r *Router) notify(msg *a2a.Message) {
	r.mu.RLock()
	subs := append([]*subscription(nil), r.subs...)
	r.mu.RUnlock()

	for _, s := range subs {
		if !s.filter.matches(msg) {
			continue
		}
		func() {
			defer func() {
				if rec := recover(); rec != nil {
					slog.Error("subscription callback panic", "message_id", msg.ID, "panic", rec)
				}
			}()
			s.callback(msg)
		}()
	}
}

// errorReply synthesizes an ERROR message addressed back to the sender of
// req, carrying the failure description and the request's correlation id.
func (r *Router) errorReply(req *a2a.Message, detail string) *a2a.Message {
	sender := a2a.Address{ID: "router"}
	if req.Recipient != nil && req.Recipient.ID != "" {
		sender = *req.Recipient
	}
	return &a2a.Message{
		ID:        uuid.NewString(),
		Type:      a2a.TypeError,
		Sender:    sender,
		Recipient: &a2a.Address{ID: req.Sender.ID, Name: req.Sender.Name},
		Error:     &a2a.ErrorDetail{Code: "delivery_failed", Message: detail},
		Metadata: a2a.Metadata{
			Timestamp:     r.now().UnixMilli(),
			CorrelationID: req.Metadata.CorrelationID,
		},
	}
}
