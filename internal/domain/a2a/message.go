// Package a2a defines the agent-to-agent protocol entities: messages,
// capabilities, tasks, and directory entries.
package a2a

// BroadcastID is the recipient id that addresses every registered agent.
const BroadcastID = "*"

// MessageType identifies the kind of protocol message.
type MessageType string

const (
	TypeRequest             MessageType = "request"
	TypeResponse            MessageType = "response"
	TypeError               MessageType = "error"
	TypeCapabilityDiscovery MessageType = "capability_discovery"
	TypeCapabilityResponse  MessageType = "capability_response"
	TypeTaskDelegation      MessageType = "task_delegation"
	TypeTaskCompletion      MessageType = "task_completion"
)

// messageTypes is the closed set of valid message types.
var messageTypes = map[MessageType]bool{
	TypeRequest:             true,
	TypeResponse:            true,
	TypeError:               true,
	TypeCapabilityDiscovery: true,
	TypeCapabilityResponse:  true,
	TypeTaskDelegation:      true,
	TypeTaskCompletion:      true,
}

// Valid reports whether t is one of the enumerated message types.
func (t MessageType) Valid() bool {
	return messageTypes[t]
}

// Address identifies one end of a message exchange.
type Address struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// ErrorDetail carries a machine-readable failure description inside a
// message or task result.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Metadata holds the routing bookkeeping every message must carry.
// Timestamp is epoch milliseconds; CorrelationID ties a response to the
// request that produced it.
type Metadata struct {
	Timestamp     int64  `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
}

// Message is the unit of exchange between agents. Content is an opaque
// string payload; callers encode structured data as serialized JSON.
type Message struct {
	ID        string       `json:"id"`
	Type      MessageType  `json:"type"`
	Sender    Address      `json:"sender"`
	Recipient *Address     `json:"recipient,omitempty"`
	Content   string       `json:"content,omitempty"`
	Task      *Task        `json:"task,omitempty"`
	Metadata  Metadata     `json:"metadata"`
	Error     *ErrorDetail `json:"error,omitempty"`
}

// IsBroadcast reports whether the message addresses every registered agent
// rather than a single recipient.
func (m *Message) IsBroadcast() bool {
	return m.Recipient == nil || m.Recipient.ID == BroadcastID
}

// Clone returns a deep copy of the message. Routing hands each broadcast
// recipient its own copy so handlers cannot observe each other's mutations.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	if m.Recipient != nil {
		r := *m.Recipient
		cp.Recipient = &r
	}
	if m.Task != nil {
		t := *m.Task
		cp.Task = &t
	}
	if m.Error != nil {
		e := *m.Error
		cp.Error = &e
	}
	return &cp
}
