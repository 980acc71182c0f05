package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/types"
)

func TestPlanner_EmptyGoal(t *testing.T) {
	p := NewPlanner(nil, nil, zap.NewNop())
	_, err := p.Plan(context.Background(), "   ", nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
}

func TestPlanner_ComplexGoalHasEightSteps(t *testing.T) {
	p := NewPlanner(nil, nil, zap.NewNop())
	plan, err := p.Plan(context.Background(), "scan network", nil)
	require.NoError(t, err)

	assert.Equal(t, ComplexityComplex, plan.Complexity)
	require.Len(t, plan.Steps, 8)
	for i, s := range plan.Steps {
		assert.Equal(t, stepID(i+1), s.ID)
		assert.NotEmpty(t, s.RequiredCapabilities)
	}
	assert.Empty(t, plan.Steps[0].Dependencies)
	for _, s := range plan.Steps[1:] {
		assert.NotEmpty(t, s.Dependencies, s.ID)
	}
	assert.Equal(t, []string{"step_2", "step_3", "step_4"}, plan.Steps[4].Dependencies)

	scan := plan.Steps[2]
	assert.Equal(t, ActionScan, scan.Action)
	assert.Equal(t, []string{"NETWORK", "SECURITY"}, scan.RequiredCapabilities.Strings())
	assert.NoError(t, plan.Validate())
}

func TestPlanner_ModerateAndSimple(t *testing.T) {
	p := NewPlanner(nil, nil, zap.NewNop())

	plan, err := p.Plan(context.Background(), "research vector databases", nil)
	require.NoError(t, err)
	assert.Equal(t, ComplexityModerate, plan.Complexity)
	require.Len(t, plan.Steps, 4)
	assert.Equal(t, []string{"step_3"}, plan.Steps[3].Dependencies)

	plan, err = p.Plan(context.Background(), "verify the nightly backup", nil)
	require.NoError(t, err)
	assert.Equal(t, ComplexitySimple, plan.Complexity)
	require.Len(t, plan.Steps, 1)
	assert.Equal(t, ActionValidate, plan.Steps[0].Action)
	assert.Equal(t, AgentValidation, plan.Steps[0].AgentType)
}

func TestPlanner_UsesWorkflowIDFromContext(t *testing.T) {
	p := NewPlanner(nil, nil, zap.NewNop())
	ctx := types.WithWorkflowID(context.Background(), "wf-42")
	plan, err := p.Plan(ctx, "say hello", nil)
	require.NoError(t, err)
	assert.Equal(t, "wf-42", plan.WorkflowID)
}

func TestPlanner_SoftAssignment(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, AgentResearch, 1, nil)
	env.register(t, "research_agent_b", 1, nil)

	p := NewPlanner(env.registry, nil, zap.NewNop())
	plan, err := p.Plan(context.Background(), "research caching", nil)
	require.NoError(t, err)

	assert.Equal(t, AgentResearch, plan.Steps[0].AssignedAgent, "type match wins")
	// every registered agent has all capabilities, so later steps get some agent
	for _, s := range plan.Steps[1:] {
		assert.NotEmpty(t, s.AssignedAgent, s.ID)
	}
}

func TestPlan_Validate(t *testing.T) {
	dup := &Plan{Steps: []*Step{{ID: "a"}, {ID: "a"}}}
	assert.Error(t, dup.Validate())

	unknown := &Plan{Steps: []*Step{{ID: "a", Dependencies: []string{"ghost"}}}}
	assert.Error(t, unknown.Validate())

	cycle := &Plan{Steps: []*Step{
		{ID: "a", Dependencies: []string{"c"}},
		{ID: "b", Dependencies: []string{"a"}},
		{ID: "c", Dependencies: []string{"b"}},
	}}
	err := cycle.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cycle")

	ok := &Plan{Steps: []*Step{{ID: "a"}, {ID: "b", Dependencies: []string{"a"}}}}
	assert.NoError(t, ok.Validate())
	s, found := ok.Step("b")
	require.True(t, found)
	assert.Equal(t, []string{"a"}, s.Dependencies)
}
