package service

import (
	"context"
	"fmt"

	"github.com/crosstalk-ai/crosstalk/internal/config"
	"github.com/crosstalk-ai/crosstalk/internal/port/agent"
	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
)

// Components bundles the four protocol components wired together. Each call
// to New produces an independent instance — there is no process-wide
// singleton, so hosts (and tests) can run multiple protocol cores without
// cross-contamination.
type Components struct {
	Registry  *Registry
	Protocol  *Protocol
	Router    *Router
	Connector *Connector
}

// New wires the protocol components over the given notification bus using
// the protocol configuration.
func New(cfg config.Protocol, b bus.Bus) *Components {
	registry := NewRegistry(b)
	protocol := NewProtocol()
	router := NewRouter(registry)
	router.SetBreaker(cfg.BreakerMaxFailures, cfg.BreakerCooldown)

	connector := NewConnector(registry, router, protocol, b)
	connector.SetDelegateTimeout(cfg.DelegateTimeout)

	return &Components{
		Registry:  registry,
		Protocol:  protocol,
		Router:    router,
		Connector: connector,
	}
}

// RegisterAll registers every given agent with the connector. It is the
// host-level initialization hook: call it once with all known agent
// identities after constructing the components.
func RegisterAll(ctx context.Context, connector *Connector, agents ...agent.Agent) error {
	for _, ag := range agents {
		if err := connector.RegisterAgent(ctx, ag); err != nil {
			return fmt.Errorf("register %q: %w", ag.ID(), err)
		}
	}
	return nil
}
