package workflow

import (
	"time"

	"github.com/BaSui01/orchestra/types"
)

// StepStatus is the terminal state of a step.
type StepStatus string

const (
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Status is the overall workflow outcome.
type Status string

const (
	StatusCompleted          Status = "completed"
	StatusPartiallyCompleted Status = "partially_completed"
	StatusFailed             Status = "failed"
)

// StepResult records how one step ended.
type StepResult struct {
	StepID       string          `json:"step_id"`
	Name         string          `json:"name"`
	Action       ActionKind      `json:"action"`
	AgentType    string          `json:"agent_type"`
	AgentID      string          `json:"agent_id,omitempty"`
	Status       StepStatus      `json:"status"`
	Success      bool            `json:"success"`
	Result       any             `json:"result,omitempty"`
	Error        string          `json:"error,omitempty"`
	ErrorCode    types.ErrorCode `json:"error_code,omitempty"`
	Dependencies []string        `json:"dependencies,omitempty"`
	DispatchedAt time.Time       `json:"dispatched_at,omitempty"`
	FinishedAt   time.Time       `json:"finished_at"`
	Duration     time.Duration   `json:"duration"`
}

// Result is the structured outcome of a workflow run. Partial failure is
// reported here, never as an error.
type Result struct {
	WorkflowID     string        `json:"workflow_id"`
	Goal           string        `json:"goal"`
	Complexity     Complexity    `json:"complexity"`
	Status         Status        `json:"status"`
	Steps          []StepResult  `json:"steps"`
	AgentsInvolved []string      `json:"agents_involved"`
	SuccessRate    float64       `json:"success_rate"`
	Completed      int           `json:"completed"`
	Failed         int           `json:"failed"`
	Skipped        int           `json:"skipped"`
	Error          string        `json:"error,omitempty"`
	StartedAt      time.Time     `json:"started_at"`
	Duration       time.Duration `json:"duration"`
}

// Step returns the result of step id.
func (r *Result) Step(id string) (StepResult, bool) {
	for _, s := range r.Steps {
		if s.StepID == id {
			return s, true
		}
	}
	return StepResult{}, false
}

// summarize fills counts, rate and status from Steps. A run with no steps
// is completed with success rate 0.
func (r *Result) summarize() {
	r.Completed, r.Failed, r.Skipped = 0, 0, 0
	for _, s := range r.Steps {
		switch s.Status {
		case StepCompleted:
			r.Completed++
		case StepFailed:
			r.Failed++
		case StepSkipped:
			r.Skipped++
		}
	}
	total := len(r.Steps)
	switch {
	case total == 0:
		r.SuccessRate = 0
		r.Status = StatusCompleted
	case r.Completed == total:
		r.SuccessRate = 1
		r.Status = StatusCompleted
	case r.Completed == 0:
		r.SuccessRate = 0
		r.Status = StatusFailed
	default:
		r.SuccessRate = float64(r.Completed) / float64(total)
		r.Status = StatusPartiallyCompleted
	}
}
