package a2a

import "time"

// TaskStatus represents the lifecycle state of a delegated task.
type TaskStatus string

const (
	StatusPending    TaskStatus = "pending"
	StatusInProgress TaskStatus = "in_progress"
	StatusCompleted  TaskStatus = "completed"
	StatusFailed     TaskStatus = "failed"
)

// Terminal reports whether the status is a final state.
func (s TaskStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Task is one unit of work handed from one agent to another.
type Task struct {
	ID          string     `json:"id"`
	Description string     `json:"description"`
	Status      TaskStatus `json:"status"`
	DelegatedBy Address    `json:"delegated_by"`
}

// TaskResult is produced exactly once per delegated task, either by the
// receiving agent or synthesized by the connector when delegation fails
// before reaching the receiver.
type TaskResult struct {
	TaskID      string       `json:"task_id"`
	Status      TaskStatus   `json:"status"`
	Result      string       `json:"result,omitempty"`
	Error       *ErrorDetail `json:"error,omitempty"`
	CompletedBy Address      `json:"completed_by"`
	CompletedAt time.Time    `json:"completed_at"`
}

// TaskUpdate announces a task status transition on the notification bus.
type TaskUpdate struct {
	TaskID    string     `json:"task_id"`
	Status    TaskStatus `json:"status"`
	Message   string     `json:"message,omitempty"`
	UpdatedAt time.Time  `json:"updated_at"`
}
