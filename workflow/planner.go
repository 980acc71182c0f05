package workflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/agent"
	"github.com/BaSui01/orchestra/types"
)

type stepTemplate struct {
	name      string
	action    ActionKind
	agentType string
	deps      []int
}

// 1-based indexes into the same template.
var (
	moderateTemplate = []stepTemplate{
		{name: "Research", action: ActionResearch, agentType: AgentResearch},
		{name: "Analyze findings", action: ActionAnalyze, agentType: AgentAnalysis, deps: []int{1}},
		{name: "Execute", action: ActionExecute, agentType: AgentExecution, deps: []int{2}},
		{name: "Report", action: ActionReport, agentType: AgentReporting, deps: []int{3}},
	}
	complexTemplate = []stepTemplate{
		{name: "Plan approach", action: ActionPlan, agentType: AgentPlanning},
		{name: "Research context", action: ActionResearch, agentType: AgentResearch, deps: []int{1}},
		{name: "Scan targets", action: ActionScan, agentType: AgentSecurity, deps: []int{1}},
		{name: "Collect telemetry", action: ActionMonitor, agentType: AgentMonitoring, deps: []int{1}},
		{name: "Analyze results", action: ActionAnalyze, agentType: AgentAnalysis, deps: []int{2, 3, 4}},
		{name: "Execute remediation", action: ActionExecute, agentType: AgentExecution, deps: []int{5}},
		{name: "Validate outcome", action: ActionValidate, agentType: AgentValidation, deps: []int{6}},
		{name: "Report", action: ActionReport, agentType: AgentReporting, deps: []int{5, 7}},
	}
)

// Planner decomposes a goal into a dependency-ordered plan.
type Planner struct {
	registry   *agent.Registry
	classifier *Classifier
	now        func() time.Time
	logger     *zap.Logger
}

// NewPlanner creates a planner. A nil registry skips agent assignment.
func NewPlanner(registry *agent.Registry, classifier *Classifier, logger *zap.Logger) *Planner {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classifier == nil {
		classifier = NewClassifier()
	}
	return &Planner{
		registry:   registry,
		classifier: classifier,
		now:        time.Now,
		logger:     logger.With(zap.String("component", "workflow_planner")),
	}
}

// Classifier returns the planner's classifier.
func (p *Planner) Classifier() *Classifier { return p.classifier }

// Plan builds the plan for goal. An empty goal is a VALIDATION error.
func (p *Planner) Plan(ctx context.Context, goal string, planCtx map[string]any) (*Plan, error) {
	goal = strings.TrimSpace(goal)
	if goal == "" {
		return nil, types.NewValidationError("goal is empty")
	}
	if planCtx == nil {
		planCtx = map[string]any{}
	}

	workflowID, ok := types.WorkflowID(ctx)
	if !ok {
		workflowID = uuid.NewString()
	}
	complexity := p.classifier.Classify(goal, planCtx)

	var tmpl []stepTemplate
	switch complexity {
	case ComplexityComplex:
		tmpl = complexTemplate
	case ComplexityModerate:
		tmpl = moderateTemplate
	default:
		action := p.classifier.PrimaryAction(goal)
		tmpl = []stepTemplate{{name: "Complete goal", action: action, agentType: DefaultAgentType(action)}}
	}

	plan := &Plan{
		WorkflowID: workflowID,
		Goal:       goal,
		Complexity: complexity,
		Context:    planCtx,
		Steps:      make([]*Step, 0, len(tmpl)),
		CreatedAt:  p.now(),
	}
	for i, t := range tmpl {
		step := &Step{
			ID:                   stepID(i + 1),
			Name:                 t.name,
			Description:          fmt.Sprintf("%s: %s", t.name, goal),
			Action:               t.action,
			AgentType:            t.agentType,
			RequiredCapabilities: RequiredCapabilities(t.action, t.agentType),
		}
		for _, d := range t.deps {
			step.Dependencies = append(step.Dependencies, stepID(d))
		}
		if p.registry != nil {
			if id, found := p.registry.FindBestAgent(step.AgentType, step.RequiredCapabilities); found {
				step.AssignedAgent = id
			}
		}
		plan.Steps = append(plan.Steps, step)
	}

	p.logger.Info("workflow planned",
		zap.String("workflow_id", plan.WorkflowID),
		zap.String("complexity", string(complexity)),
		zap.Int("steps", len(plan.Steps)),
	)
	return plan, nil
}

func stepID(n int) string {
	return fmt.Sprintf("step_%d", n)
}
