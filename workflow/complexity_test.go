package workflow

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifier_Classify(t *testing.T) {
	c := NewClassifier()
	tests := []struct {
		goal string
		ctx  map[string]any
		want Complexity
	}{
		{goal: "scan network", want: ComplexityComplex},
		{goal: "Run a security AUDIT of the cluster", want: ComplexityComplex},
		{goal: "research the history of Go generics", want: ComplexityModerate},
		{goal: "compare two logging libraries", want: ComplexityModerate},
		{goal: "say hello", want: ComplexitySimple},
		{goal: "networking", want: ComplexitySimple},
		{goal: "say hello", ctx: map[string]any{"complexity": "complex"}, want: ComplexityComplex},
		{goal: "scan network", ctx: map[string]any{"complexity": "SIMPLE"}, want: ComplexitySimple},
		{goal: "scan network", ctx: map[string]any{"complexity": "huge"}, want: ComplexityComplex},
	}
	for _, tt := range tests {
		t.Run(tt.goal, func(t *testing.T) {
			assert.Equal(t, tt.want, c.Classify(tt.goal, tt.ctx))
		})
	}
}

func TestClassifier_LongGoalIsModerate(t *testing.T) {
	c := NewClassifier()
	c.LongGoalTokens = 5
	assert.Equal(t, ComplexityModerate, c.Classify("one two three four five", nil))
	assert.Equal(t, ComplexitySimple, c.Classify("one two three four", nil))
}

func TestClassifier_PrimaryAction(t *testing.T) {
	c := NewClassifier()
	assert.Equal(t, ActionValidate, c.PrimaryAction("verify the backup"))
	assert.Equal(t, ActionReport, c.PrimaryAction("Summarize yesterday"))
	assert.Equal(t, ActionExecute, c.PrimaryAction("say hello"))
}

func TestRequiredCapabilities(t *testing.T) {
	caps := RequiredCapabilities(ActionResearch, AgentResearch)
	assert.Equal(t, []string{"ANALYSIS", "RESEARCH"}, caps.Strings())

	caps = RequiredCapabilities(ActionScan, AgentSecurity)
	assert.Equal(t, []string{"NETWORK", "SECURITY"}, caps.Strings())

	caps = RequiredCapabilities(ActionReport, "custom_agent")
	assert.Equal(t, []string{"REPORTING"}, caps.Strings())

	// tables are not shared with callers
	ActionCapabilities(ActionPlan)["SYSTEM"] = struct{}{}
	assert.Equal(t, []string{"PLANNING"}, ActionCapabilities(ActionPlan).Strings())
}
