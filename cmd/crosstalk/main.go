package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	cthttp "github.com/crosstalk-ai/crosstalk/internal/adapter/http"
	"github.com/crosstalk-ai/crosstalk/internal/adapter/membus"
	ctnats "github.com/crosstalk-ai/crosstalk/internal/adapter/nats"
	"github.com/crosstalk-ai/crosstalk/internal/config"
	"github.com/crosstalk-ai/crosstalk/internal/logger"
	"github.com/crosstalk-ai/crosstalk/internal/port/bus"
	"github.com/crosstalk-ai/crosstalk/internal/service"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"delegate_timeout", cfg.Protocol.DelegateTimeout,
	)

	ctx := context.Background()

	// --- Notification bus ---
	// An empty NATS URL keeps notifications in process.
	var b bus.Bus
	if cfg.NATS.URL != "" {
		nb, err := ctnats.Connect(cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		b = nb
	} else {
		b = membus.New()
		slog.Info("using in-process notification bus")
	}
	defer func() { _ = b.Close() }()

	// --- Protocol core ---
	components := service.New(cfg.Protocol, b)

	if err := b.Publish(ctx, bus.SubjectLifecycle, []byte(`{"event":"started"}`)); err != nil {
		slog.Warn("publish lifecycle event", "error", err)
	}
	defer func() {
		if err := b.Publish(ctx, bus.SubjectLifecycle, []byte(`{"event":"stopping"}`)); err != nil {
			slog.Warn("publish lifecycle event", "error", err)
		}
	}()

	if err := service.RegisterAll(ctx, components.Connector,
		&echoAgent{id: "echo", name: "Echo"},
	); err != nil {
		return fmt.Errorf("register agents: %w", err)
	}

	// --- HTTP (read-only introspection) ---
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(chimw.Timeout(30 * time.Second))

	r.Get("/health", healthHandler(cfg, components))

	baseURL := "http://localhost:" + cfg.Server.Port
	cthttp.NewHandler(baseURL, components.Registry, components.Connector).MountRoutes(r)

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Graceful shutdown
	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)

	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
		}
	}()

	<-done
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return srv.Shutdown(shutdownCtx)
}

// healthHandler returns an http.HandlerFunc that reports service health.
func healthHandler(cfg *config.Config, components *service.Components) http.HandlerFunc {
	type healthStatus struct {
		Status string `json:"status"`
		Agents int    `json:"agents"`
		NATS   string `json:"nats,omitempty"`
	}

	return func(w http.ResponseWriter, _ *http.Request) {
		status := healthStatus{
			Status: "ok",
			Agents: components.Registry.Count(),
			NATS:   cfg.NATS.URL,
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_ = json.NewEncoder(w).Encode(status)
	}
}
