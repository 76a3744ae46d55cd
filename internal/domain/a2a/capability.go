package a2a

import "time"

// Capability is one discrete ability an agent exposes. Capabilities are
// derived from the agent's declared tool list (one per tool) and recomputed
// each time the agent registers.
type Capability struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Version     string `json:"version"`
	Description string `json:"description,omitempty"`
}

// AgentEntry is the directory record kept by the registry for one agent.
// Endpoints are logical addressing paths used for discovery, not physical
// transport.
type AgentEntry struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Capabilities []Capability `json:"capabilities"`
	Endpoints    []string     `json:"endpoints"`
	RegisteredAt time.Time    `json:"registered_at"`
}

// HasCapability reports whether the entry declares a capability with the
// given id.
func (e *AgentEntry) HasCapability(capabilityID string) bool {
	for _, c := range e.Capabilities {
		if c.ID == capabilityID {
			return true
		}
	}
	return false
}
