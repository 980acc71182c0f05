package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/orchestra/agent"
	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/types"
)

const tracerName = "github.com/BaSui01/orchestra/workflow"

// ContextKeyDependencyResults carries upstream step results in the
// request context of a dispatched step.
const ContextKeyDependencyResults = "dependency_results"

// ExecutorConfig configures the executor.
type ExecutorConfig struct {
	// MaxParallelSteps bounds how many ready steps run at once.
	MaxParallelSteps int
	// StepTimeout bounds each agent attempt of a step.
	StepTimeout time.Duration
	// BusyWait bounds how long a step waits for its agent to have capacity.
	BusyWait time.Duration
	// BusyPollInterval is the first backoff while waiting; it doubles up
	// to one second.
	BusyPollInterval time.Duration
	Now              func() time.Time
}

// DefaultExecutorConfig returns sensible defaults.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxParallelSteps: 4,
		StepTimeout:      2 * time.Minute,
		BusyWait:         30 * time.Second,
		BusyPollInterval: 50 * time.Millisecond,
	}
}

func (c ExecutorConfig) withDefaults() ExecutorConfig {
	d := DefaultExecutorConfig()
	if c.MaxParallelSteps <= 0 {
		c.MaxParallelSteps = d.MaxParallelSteps
	}
	if c.StepTimeout <= 0 {
		c.StepTimeout = d.StepTimeout
	}
	if c.BusyWait < 0 {
		c.BusyWait = 0
	}
	if c.BusyPollInterval <= 0 {
		c.BusyPollInterval = d.BusyPollInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Executor walks a plan in topological waves and dispatches each ready
// step to an agent through the client.
type Executor struct {
	registry *agent.Registry
	client   *agent.Client
	config   ExecutorConfig
	metrics  *metrics.Collector
	logger   *zap.Logger
	tracer   trace.Tracer
}

// NewExecutor creates an executor.
func NewExecutor(registry *agent.Registry, client *agent.Client, config ExecutorConfig, collector *metrics.Collector, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		registry: registry,
		client:   client,
		config:   config.withDefaults(),
		metrics:  collector,
		logger:   logger.With(zap.String("component", "workflow_executor")),
		tracer:   otel.Tracer(tracerName),
	}
}

// Execute runs every step of plan. A step runs only after all of its
// dependencies completed; a step with a failed, skipped or unknown
// dependency is skipped, as is every step left in a cycle.
func (e *Executor) Execute(ctx context.Context, plan *Plan) *Result {
	start := e.config.Now()
	res := &Result{
		WorkflowID: plan.WorkflowID,
		Goal:       plan.Goal,
		Complexity: plan.Complexity,
		StartedAt:  start,
	}

	ctx = types.WithWorkflowID(ctx, plan.WorkflowID)
	ctx, span := e.tracer.Start(ctx, "workflow.execute", trace.WithAttributes(
		attribute.String("workflow.id", plan.WorkflowID),
		attribute.String("workflow.complexity", string(plan.Complexity)),
		attribute.Int("workflow.steps", len(plan.Steps)),
	))
	defer span.End()

	known := make(map[string]struct{}, len(plan.Steps))
	for _, s := range plan.Steps {
		known[s.ID] = struct{}{}
	}

	results := make(map[string]StepResult, len(plan.Steps))
	var mu sync.Mutex
	pending := append([]*Step(nil), plan.Steps...)

	for wave := 1; len(pending) > 0; wave++ {
		var ready, waiting []*Step
		for _, s := range pending {
			if dep, blocked := e.unmetDependency(s, results, known); blocked {
				results[s.ID] = e.skip(s, types.NewDependencyUnmetError(s.ID, dep))
				continue
			}
			if e.dependenciesDone(s, results) {
				ready = append(ready, s)
			} else {
				waiting = append(waiting, s)
			}
		}

		if len(ready) == 0 {
			if len(waiting) == len(pending) {
				// nothing progressed: the rest wait on each other
				for _, s := range waiting {
					results[s.ID] = e.skip(s, types.NewError(types.ErrDependencyUnmet,
						fmt.Sprintf("step %s skipped: dependency cycle", s.ID)).WithTarget(s.ID))
				}
				waiting = nil
			}
			pending = waiting
			continue
		}

		e.logger.Debug("dispatching wave",
			zap.String("workflow_id", plan.WorkflowID),
			zap.Int("wave", wave),
			zap.Int("steps", len(ready)),
		)

		// results is only read and written between waves; steps of the
		// current wave report into finished.
		finished := make(map[string]StepResult, len(ready))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(e.config.MaxParallelSteps)
		for _, s := range ready {
			depResults := dependencyResults(s, results)
			g.Go(func() error {
				sr := e.runStep(gctx, plan, s, depResults)
				mu.Lock()
				finished[s.ID] = sr
				mu.Unlock()
				return nil
			})
		}
		_ = g.Wait()
		for id, sr := range finished {
			results[id] = sr
		}
		pending = waiting
	}

	agents := make(map[string]struct{})
	for _, s := range plan.Steps {
		sr := results[s.ID]
		res.Steps = append(res.Steps, sr)
		if sr.AgentID != "" && sr.Status != StepSkipped {
			agents[sr.AgentID] = struct{}{}
		}
	}
	for id := range agents {
		res.AgentsInvolved = append(res.AgentsInvolved, id)
	}
	sort.Strings(res.AgentsInvolved)
	if res.AgentsInvolved == nil {
		res.AgentsInvolved = []string{}
	}

	res.summarize()
	res.Duration = e.config.Now().Sub(start)

	span.SetAttributes(
		attribute.String("workflow.status", string(res.Status)),
		attribute.Float64("workflow.success_rate", res.SuccessRate),
	)
	if res.Status == StatusFailed {
		span.SetStatus(codes.Error, "workflow failed")
	}
	e.logger.Info("workflow finished",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("status", string(res.Status)),
		zap.Int("completed", res.Completed),
		zap.Int("failed", res.Failed),
		zap.Int("skipped", res.Skipped),
		zap.Duration("duration", res.Duration),
	)
	return res
}

// unmetDependency returns the first dependency that can never succeed.
func (e *Executor) unmetDependency(s *Step, results map[string]StepResult, known map[string]struct{}) (string, bool) {
	for _, dep := range s.Dependencies {
		if _, ok := known[dep]; !ok {
			return dep, true
		}
		if r, done := results[dep]; done && !r.Success {
			return dep, true
		}
	}
	return "", false
}

func (e *Executor) dependenciesDone(s *Step, results map[string]StepResult) bool {
	for _, dep := range s.Dependencies {
		r, done := results[dep]
		if !done || !r.Success {
			return false
		}
	}
	return true
}

func dependencyResults(s *Step, results map[string]StepResult) map[string]any {
	out := make(map[string]any, len(s.Dependencies))
	for _, dep := range s.Dependencies {
		out[dep] = results[dep].Result
	}
	return out
}

func (e *Executor) skip(s *Step, err *types.Error) StepResult {
	e.logger.Info("step skipped",
		zap.String("step_id", s.ID),
		zap.String("reason", err.Message),
	)
	e.metrics.RecordWorkflowStep(s.AgentType, string(StepSkipped))
	return StepResult{
		StepID:       s.ID,
		Name:         s.Name,
		Action:       s.Action,
		AgentType:    s.AgentType,
		Status:       StepSkipped,
		Error:        err.Message,
		ErrorCode:    err.Code,
		Dependencies: s.Dependencies,
		FinishedAt:   e.config.Now(),
	}
}

func (e *Executor) runStep(ctx context.Context, plan *Plan, s *Step, depResults map[string]any) StepResult {
	ctx = types.WithStepID(ctx, s.ID)
	ctx, span := e.tracer.Start(ctx, "workflow.step", trace.WithAttributes(
		attribute.String("step.id", s.ID),
		attribute.String("step.action", string(s.Action)),
		attribute.String("step.agent_type", s.AgentType),
	))
	defer span.End()

	sr := StepResult{
		StepID:       s.ID,
		Name:         s.Name,
		Action:       s.Action,
		AgentType:    s.AgentType,
		Dependencies: s.Dependencies,
		DispatchedAt: e.config.Now(),
	}
	fail := func(err error) StepResult {
		sr.Status = StepFailed
		sr.ErrorCode = types.GetErrorCode(err)
		if te, ok := types.AsError(err); ok {
			sr.Error = te.Message
		} else {
			sr.Error = err.Error()
		}
		sr.FinishedAt = e.config.Now()
		sr.Duration = sr.FinishedAt.Sub(sr.DispatchedAt)
		span.SetStatus(codes.Error, sr.Error)
		e.metrics.RecordWorkflowStep(s.AgentType, string(StepFailed))
		e.logger.Warn("step failed",
			zap.String("workflow_id", plan.WorkflowID),
			zap.String("step_id", s.ID),
			zap.String("agent_id", sr.AgentID),
			zap.String("error_code", string(sr.ErrorCode)),
			zap.String("error", sr.Error),
		)
		return sr
	}

	agentID, err := e.acquire(ctx, s)
	if err != nil {
		return fail(err)
	}
	defer e.registry.Release(agentID)
	sr.AgentID = agentID
	span.SetAttributes(attribute.String("step.agent_id", agentID))

	req := types.NewAgentRequest(agentID, string(s.Action), map[string]any{
		"goal":        plan.Goal,
		"step_id":     s.ID,
		"step_name":   s.Name,
		"description": s.Description,
	})
	req.Timeout = e.config.StepTimeout
	req.Context["workflow_id"] = plan.WorkflowID
	req.Context["step_id"] = s.ID
	req.Context[ContextKeyDependencyResults] = depResults
	for k, v := range plan.Context {
		if _, taken := req.Context[k]; !taken {
			req.Context[k] = v
		}
	}

	resp := e.client.Do(ctx, req)
	if !resp.IsSuccess() {
		code := resp.ErrorCode
		if code == "" {
			code = types.ErrUpstreamError
		}
		msg := resp.Error
		if msg == "" {
			msg = fmt.Sprintf("agent %s returned status %s", agentID, resp.Status)
		}
		sr.Result = resp.Result
		return fail(types.NewError(code, msg).WithTarget(agentID))
	}

	sr.Status = StepCompleted
	sr.Success = true
	sr.Result = resp.Result
	sr.FinishedAt = e.config.Now()
	sr.Duration = sr.FinishedAt.Sub(sr.DispatchedAt)
	e.metrics.RecordWorkflowStep(s.AgentType, string(StepCompleted))
	e.logger.Debug("step completed",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("step_id", s.ID),
		zap.String("agent_id", agentID),
		zap.Duration("duration", sr.Duration),
	)
	return sr
}

// acquire re-validates the planned assignee and reserves an agent for s.
// While every candidate is busy it waits with backoff up to BusyWait.
func (e *Executor) acquire(ctx context.Context, s *Step) (string, error) {
	deadline := e.config.Now().Add(e.config.BusyWait)
	delay := e.config.BusyPollInterval

	for {
		id, err := e.selectAgent(s)
		if err != nil {
			return "", err
		}
		err = e.registry.Reserve(id)
		if err == nil {
			return id, nil
		}
		if !types.IsErrorCode(err, types.ErrAgentBusy) {
			return "", err
		}
		if !e.config.Now().Before(deadline) {
			return "", types.NewError(types.ErrAgentBusy,
				fmt.Sprintf("no capacity for step %s within %s", s.ID, e.config.BusyWait)).WithTarget(id)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
		if delay *= 2; delay > time.Second {
			delay = time.Second
		}
	}
}

// selectAgent keeps the planned assignee while it is registered and has
// capacity, otherwise re-runs selection, then falls back to an agent
// registered under the step's agent type.
func (e *Executor) selectAgent(s *Step) (string, error) {
	if s.AssignedAgent != "" {
		if p, ok := e.registry.Profile(s.AssignedAgent); ok && p.Available() {
			return s.AssignedAgent, nil
		}
	}
	if id, ok := e.registry.FindBestAgent(s.AgentType, s.RequiredCapabilities); ok {
		return id, nil
	}
	if s.AssignedAgent != "" {
		if _, ok := e.registry.Profile(s.AssignedAgent); ok {
			return s.AssignedAgent, nil
		}
	}
	if _, ok := e.registry.Profile(s.AgentType); ok {
		return s.AgentType, nil
	}
	return "", types.NewNotFoundError(fmt.Sprintf("no agent available for step %s (%s)", s.ID, s.AgentType)).
		WithTarget(s.ID)
}
