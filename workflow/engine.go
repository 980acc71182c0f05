package workflow

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/types"
)

// RunRecorder persists finished workflow runs.
type RunRecorder interface {
	RecordWorkflowRun(ctx context.Context, result *Result) error
}

// Engine plans and executes goals end to end.
type Engine struct {
	planner  *Planner
	executor *Executor
	recorder RunRecorder
	metrics  *metrics.Collector
	logger   *zap.Logger
}

// NewEngine creates an engine. recorder may be nil.
func NewEngine(planner *Planner, executor *Executor, recorder RunRecorder, collector *metrics.Collector, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		planner:  planner,
		executor: executor,
		recorder: recorder,
		metrics:  collector,
		logger:   logger.With(zap.String("component", "workflow_engine")),
	}
}

// ExecuteGoal plans goal, executes the plan and records the run. Planning
// failures are reported as a failed result.
func (e *Engine) ExecuteGoal(ctx context.Context, goal string, goalCtx map[string]any) *Result {
	workflowID, ok := types.WorkflowID(ctx)
	if !ok {
		workflowID = uuid.NewString()
		ctx = types.WithWorkflowID(ctx, workflowID)
	}

	var res *Result
	plan, err := e.planner.Plan(ctx, goal, goalCtx)
	if err != nil {
		e.logger.Warn("workflow planning failed",
			zap.String("workflow_id", workflowID),
			zap.Error(err),
		)
		res = &Result{
			WorkflowID:     workflowID,
			Goal:           goal,
			Status:         StatusFailed,
			Steps:          []StepResult{},
			AgentsInvolved: []string{},
			Error:          err.Error(),
			StartedAt:      time.Now(),
		}
	} else {
		res = e.executor.Execute(ctx, plan)
	}

	e.metrics.RecordWorkflow(string(res.Complexity), string(res.Status), res.Duration)

	if e.recorder != nil {
		if err := e.recorder.RecordWorkflowRun(ctx, res); err != nil {
			e.logger.Error("failed to record workflow run",
				zap.String("workflow_id", res.WorkflowID),
				zap.Error(err),
			)
		}
	}
	return res
}

// Planner returns the engine's planner.
func (e *Engine) Planner() *Planner { return e.planner }
