// Package config provides hierarchical configuration loading for crosstalk.
// Precedence: defaults < YAML file < environment variables.
package config

import "time"

// Config holds all runtime configuration for the crosstalk protocol core.
type Config struct {
	Server   Server   `yaml:"server"`
	NATS     NATS     `yaml:"nats"`
	Logging  Logging  `yaml:"logging"`
	Protocol Protocol `yaml:"protocol"`
}

// Server holds the introspection HTTP server configuration.
type Server struct {
	Port string `yaml:"port"`
}

// NATS holds the optional NATS notification bus configuration.
// An empty URL keeps notifications on the in-process bus.
type NATS struct {
	URL string `yaml:"url"`
}

// Logging holds structured logging configuration.
type Logging struct {
	Level   string `yaml:"level"`
	Service string `yaml:"service"`
	Async   bool   `yaml:"async"`
}

// Protocol holds the agent-to-agent protocol tuning knobs.
type Protocol struct {
	// DelegateTimeout bounds one task delegation round trip.
	// Zero disables the bound.
	DelegateTimeout time.Duration `yaml:"delegate_timeout"`

	// BreakerMaxFailures is the consecutive delivery failures to one
	// recipient before its circuit opens. Zero disables the breaker.
	BreakerMaxFailures int `yaml:"breaker_max_failures"`

	// BreakerCooldown is how long an open circuit stays open before a
	// trial delivery is allowed.
	BreakerCooldown time.Duration `yaml:"breaker_cooldown"`
}

// Defaults returns a Config with sensible default values for local development.
func Defaults() Config {
	return Config{
		Server: Server{
			Port: "8080",
		},
		NATS: NATS{
			URL: "",
		},
		Logging: Logging{
			Level:   "info",
			Service: "crosstalk-core",
		},
		Protocol: Protocol{
			DelegateTimeout:    30 * time.Second,
			BreakerMaxFailures: 0,
			BreakerCooldown:    30 * time.Second,
		},
	}
}
