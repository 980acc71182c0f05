package taskqueue

import (
	"time"

	"github.com/google/uuid"

	"github.com/BaSui01/orchestra/types"
)

// Status is the terminal state of a task.
type Status string

const (
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Task is one unit of queued work. Payload must be JSON-serialisable so
// tasks can travel through the Redis backend.
type Task struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	Payload   map[string]any `json:"payload"`
	CreatedAt time.Time      `json:"created_at"`
}

// NewTask creates a task with a fresh id.
func NewTask(taskType string, payload map[string]any) *Task {
	if payload == nil {
		payload = map[string]any{}
	}
	return &Task{
		ID:        uuid.NewString(),
		Type:      taskType,
		Payload:   payload,
		CreatedAt: time.Now(),
	}
}

// Result is the outcome of one task execution.
type Result struct {
	TaskID     string          `json:"task_id"`
	Type       string          `json:"type"`
	Status     Status          `json:"status"`
	Result     any             `json:"result,omitempty"`
	Error      string          `json:"error,omitempty"`
	ErrorCode  types.ErrorCode `json:"error_code,omitempty"`
	WorkerID   string          `json:"worker_id"`
	Duration   time.Duration   `json:"duration"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Succeeded reports whether the task completed.
func (r *Result) Succeeded() bool {
	return r != nil && r.Status == StatusCompleted
}
