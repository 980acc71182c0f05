package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/BaSui01/orchestra/taskqueue"
	"github.com/BaSui01/orchestra/types"
	"github.com/BaSui01/orchestra/workflow"
)

// WorkflowRun is the persisted summary of one ExecuteGoal call.
type WorkflowRun struct {
	ID             string                `gorm:"primaryKey;size:64"`
	Goal           string                `gorm:"type:text"`
	Complexity     string                `gorm:"size:16"`
	Status         string                `gorm:"size:32;index"`
	SuccessRate    float64
	Completed      int
	Failed         int
	Skipped        int
	AgentsInvolved []string              `gorm:"serializer:json;type:text"`
	Steps          []workflow.StepResult `gorm:"serializer:json;type:text"`
	Error          string                `gorm:"type:text"`
	StartedAt      time.Time             `gorm:"index"`
	DurationMS     int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TableName pins the table name across dialects.
func (WorkflowRun) TableName() string { return "workflow_runs" }

// NewWorkflowRun flattens an executor result into a row.
func NewWorkflowRun(r *workflow.Result) *WorkflowRun {
	return &WorkflowRun{
		ID:             r.WorkflowID,
		Goal:           r.Goal,
		Complexity:     string(r.Complexity),
		Status:         string(r.Status),
		SuccessRate:    r.SuccessRate,
		Completed:      r.Completed,
		Failed:         r.Failed,
		Skipped:        r.Skipped,
		AgentsInvolved: r.AgentsInvolved,
		Steps:          r.Steps,
		Error:          r.Error,
		StartedAt:      r.StartedAt,
		DurationMS:     r.Duration.Milliseconds(),
	}
}

// Result rebuilds the workflow result the row was saved from.
func (w *WorkflowRun) Result() *workflow.Result {
	agents := w.AgentsInvolved
	if agents == nil {
		agents = []string{}
	}
	return &workflow.Result{
		WorkflowID:     w.ID,
		Goal:           w.Goal,
		Complexity:     workflow.Complexity(w.Complexity),
		Status:         workflow.Status(w.Status),
		Steps:          w.Steps,
		AgentsInvolved: agents,
		SuccessRate:    w.SuccessRate,
		Completed:      w.Completed,
		Failed:         w.Failed,
		Skipped:        w.Skipped,
		Error:          w.Error,
		StartedAt:      w.StartedAt,
		Duration:       time.Duration(w.DurationMS) * time.Millisecond,
	}
}

// TaskRecord is the persisted outcome of one pool task.
type TaskRecord struct {
	ID         string `gorm:"primaryKey;size:64"`
	Type       string `gorm:"size:128;index"`
	Status     string `gorm:"size:32;index"`
	ResultJSON string `gorm:"column:result;type:text"`
	Error      string `gorm:"type:text"`
	ErrorCode  string `gorm:"size:32"`
	WorkerID   string `gorm:"size:64"`
	DurationMS int64
	FinishedAt time.Time `gorm:"index"`
	CreatedAt  time.Time
}

// TableName pins the table name across dialects.
func (TaskRecord) TableName() string { return "task_records" }

// NewTaskRecord converts a pool result into a row. A result value that
// cannot be encoded is stored as its error text.
func NewTaskRecord(r taskqueue.Result) *TaskRecord {
	var encoded string
	if r.Result != nil {
		if b, err := json.Marshal(r.Result); err == nil {
			encoded = string(b)
		} else {
			encoded = fmt.Sprintf("%q", err.Error())
		}
	}
	return &TaskRecord{
		ID:         r.TaskID,
		Type:       r.Type,
		Status:     string(r.Status),
		ResultJSON: encoded,
		Error:      r.Error,
		ErrorCode:  string(r.ErrorCode),
		WorkerID:   r.WorkerID,
		DurationMS: r.Duration.Milliseconds(),
		FinishedAt: r.FinishedAt,
	}
}

// TaskResult rebuilds the pool result. Structured payloads come back as
// generic JSON values.
func (t *TaskRecord) TaskResult() taskqueue.Result {
	var value any
	if t.ResultJSON != "" {
		_ = json.Unmarshal([]byte(t.ResultJSON), &value)
	}
	return taskqueue.Result{
		TaskID:     t.ID,
		Type:       t.Type,
		Status:     taskqueue.Status(t.Status),
		Result:     value,
		Error:      t.Error,
		ErrorCode:  types.ErrorCode(t.ErrorCode),
		WorkerID:   t.WorkerID,
		Duration:   time.Duration(t.DurationMS) * time.Millisecond,
		FinishedAt: t.FinishedAt,
	}
}
