// Package nats implements the notification bus port using core NATS
// publish/subscribe. Notifications are advisory and fire-and-forget, so no
// JetStream durability is involved; a host that needs cross-process
// visibility of registrations and task updates points the core at a NATS
// URL and keeps everything else unchanged.
package nats

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
)

// Bus implements bus.Bus over a NATS connection.
type Bus struct {
	nc *nats.Conn
}

// Connect establishes a connection to NATS.
func Connect(url string) (*Bus, error) {
	nc, err := nats.Connect(url,
		nats.Name("crosstalk-a2a"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("nats connect: %w", err)
	}

	slog.Info("nats connected", "url", url)
	return &Bus{nc: nc}, nil
}

// Publish sends a notification to the given subject.
func (b *Bus) Publish(_ context.Context, subject string, data []byte) error {
	if err := b.nc.Publish(subject, data); err != nil {
		return fmt.Errorf("nats publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe registers a handler for notifications on the given subject.
// The ".>" wildcard tail is handled natively by NATS. The returned cancel
// unsubscribes; handler errors are logged and dropped, matching the
// advisory nature of the channel.
func (b *Bus) Subscribe(ctx context.Context, subject string, handler bus.Handler) (func(), error) {
	sub, err := b.nc.Subscribe(subject, func(msg *nats.Msg) {
		if err := handler(ctx, msg.Subject, msg.Data); err != nil {
			slog.Warn("notification handler failed", "subject", msg.Subject, "error", err)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("nats subscribe %s: %w", subject, err)
	}

	return func() {
		if err := sub.Unsubscribe(); err != nil {
			slog.Warn("nats unsubscribe failed", "subject", subject, "error", err)
		}
	}, nil
}

// Close flushes pending publishes and shuts down the connection.
func (b *Bus) Close() error {
	if err := b.nc.Flush(); err != nil {
		slog.Warn("nats flush failed", "error", err)
	}
	b.nc.Close()
	return nil
}

// IsConnected reports whether the underlying connection is up.
func (b *Bus) IsConnected() bool {
	return b.nc.IsConnected()
}
