// Package http serves the read-only introspection endpoints: the aggregate
// agent card, the agent directory, and per-task update history. There is no
// message ingress here — agent messaging stays in-process.
package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/crosstalk-ai/crosstalk/internal/domain/a2a"
	"github.com/crosstalk-ai/crosstalk/internal/service"
)

// AgentCard describes the host and its registered agents' capabilities.
type AgentCard struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	URL         string           `json:"url"`
	Version     string           `json:"version"`
	Skills      []a2a.Capability `json:"skills"`
}

// Handler serves the introspection endpoints over the live registry.
type Handler struct {
	baseURL   string
	registry  *service.Registry
	connector *service.Connector
}

// NewHandler creates an introspection handler.
func NewHandler(baseURL string, registry *service.Registry, connector *service.Connector) *Handler {
	return &Handler{
		baseURL:   baseURL,
		registry:  registry,
		connector: connector,
	}
}

// MountRoutes registers the introspection routes on the given chi router.
// These are mounted at the root level.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/.well-known/agent.json", h.handleAgentCard)
	r.Get("/a2a/agents", h.handleListAgents)
	r.Get("/a2a/agents/{id}", h.handleGetAgent)
	r.Get("/a2a/tasks/{id}/updates", h.handleTaskUpdates)
}

// handleAgentCard builds the aggregate card from the registry's current
// state: one skill per distinct capability id across all agents.
func (h *Handler) handleAgentCard(w http.ResponseWriter, _ *http.Request) {
	seen := make(map[string]bool)
	skills := []a2a.Capability{}
	for _, entry := range h.registry.AllAgents() {
		for _, cp := range entry.Capabilities {
			if seen[cp.ID] {
				continue
			}
			seen[cp.ID] = true
			skills = append(skills, cp)
		}
	}

	card := AgentCard{
		Name:        "crosstalk",
		Description: "in-process agent-to-agent protocol core",
		URL:         h.baseURL,
		Version:     "0.1.0",
		Skills:      skills,
	}
	writeJSON(w, http.StatusOK, card)
}

func (h *Handler) handleListAgents(w http.ResponseWriter, _ *http.Request) {
	entries := h.registry.AllAgents()
	if entries == nil {
		entries = []a2a.AgentEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	entry, ok := h.registry.GetAgent(id)
	if !ok {
		http.Error(w, `{"error":"agent not found"}`, http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (h *Handler) handleTaskUpdates(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	updates := h.connector.TaskUpdates(id)
	if updates == nil {
		updates = []a2a.TaskUpdate{}
	}
	writeJSON(w, http.StatusOK, updates)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
