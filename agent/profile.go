package agent

import (
	"slices"
	"time"

	"github.com/BaSui01/orchestra/types"
)

// HealthStatus classifies the last health check of an agent.
type HealthStatus string

const (
	HealthHealthy   HealthStatus = "healthy"
	HealthDegraded  HealthStatus = "degraded"
	HealthUnhealthy HealthStatus = "unhealthy"
	HealthOffline   HealthStatus = "offline"
	// HealthUnknown is reported until the first check completes.
	HealthUnknown HealthStatus = "unknown"
)

// Usable reports whether calls may be routed to an agent with this status.
func (s HealthStatus) Usable() bool {
	return s == HealthHealthy || s == HealthDegraded || s == HealthUnknown
}

// Profile describes what an agent can do and how it has performed.
type Profile struct {
	AgentID      string              `json:"agent_id"`
	TaskTypes    []string            `json:"task_types,omitempty"`
	Capabilities types.CapabilitySet `json:"-"`

	CurrentWorkload    int `json:"current_workload"`
	MaxConcurrentTasks int `json:"max_concurrent_tasks"`

	// SuccessRate is successful/total; it keeps its initial value until the first sample.
	SuccessRate float64 `json:"success_rate"`
	// AverageCompletionTime is an EWMA of call durations.
	AverageCompletionTime time.Duration `json:"average_completion_time"`
	TotalTasks            int           `json:"total_tasks"`
	SuccessfulTasks       int           `json:"successful_tasks"`
}

// Available reports whether the agent can accept another task.
func (p Profile) Available() bool {
	return p.CurrentWorkload < p.MaxConcurrentTasks
}

// Load returns workload / max workload in [0, 1].
func (p Profile) Load() float64 {
	if p.MaxConcurrentTasks <= 0 {
		return 1
	}
	l := float64(p.CurrentWorkload) / float64(p.MaxConcurrentTasks)
	if l > 1 {
		return 1
	}
	return l
}

// HandlesTaskType reports whether taskType is this agent's own type or one it declares.
func (p Profile) HandlesTaskType(taskType string) bool {
	if taskType == "" {
		return false
	}
	return taskType == p.AgentID || slices.Contains(p.TaskTypes, taskType)
}

func (p Profile) clone() Profile {
	p.TaskTypes = slices.Clone(p.TaskTypes)
	p.Capabilities = p.Capabilities.Clone()
	return p
}

// Health is the cached result of the most recent health check.
type Health struct {
	Status              HealthStatus `json:"status"`
	LastHeartbeat       time.Time    `json:"last_heartbeat,omitempty"`
	LastCheck           time.Time    `json:"last_check,omitempty"`
	ResponseTimeMs      float64      `json:"response_time_ms"`
	SuccessRate         float64      `json:"success_rate"`
	ErrorCount          int          `json:"error_count"`
	ConsecutiveFailures int          `json:"consecutive_failures"`
	LastError           string       `json:"last_error,omitempty"`
}
