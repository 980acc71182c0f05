package workflow

import (
	"fmt"
	"strings"
	"unicode"
)

// Complexity selects the plan template for a goal.
type Complexity string

const (
	ComplexitySimple   Complexity = "simple"
	ComplexityModerate Complexity = "moderate"
	ComplexityComplex  Complexity = "complex"
)

// ParseComplexity parses a complexity name.
func ParseComplexity(s string) (Complexity, error) {
	switch c := Complexity(strings.ToLower(strings.TrimSpace(s))); c {
	case ComplexitySimple, ComplexityModerate, ComplexityComplex:
		return c, nil
	default:
		return "", fmt.Errorf("unknown complexity %q", s)
	}
}

// ContextKeyComplexity lets callers force the complexity of a goal.
const ContextKeyComplexity = "complexity"

// Classifier maps goal text to a complexity and a primary action using
// whole-token keyword tables.
type Classifier struct {
	complex  map[string]struct{}
	moderate map[string]struct{}
	actions  map[string]ActionKind
	// LongGoalTokens promotes goals with at least this many tokens to
	// moderate. Zero disables the rule.
	LongGoalTokens int
}

var (
	defaultComplexKeywords = []string{
		"scan", "network", "security", "audit", "vulnerability", "vulnerabilities",
		"penetration", "pentest", "infrastructure", "deploy", "deployment", "migrate",
		"migration", "orchestrate", "comprehensive", "incident", "forensics",
	}
	defaultModerateKeywords = []string{
		"analyze", "analyse", "analysis", "research", "investigate", "compare",
		"evaluate", "review", "assess", "summarize", "summarise", "plan", "design",
		"monitor", "report",
	}
	defaultActionKeywords = map[string]ActionKind{
		"research":    ActionResearch,
		"find":        ActionResearch,
		"search":      ActionResearch,
		"investigate": ActionResearch,
		"analyze":     ActionAnalyze,
		"analyse":     ActionAnalyze,
		"compare":     ActionAnalyze,
		"evaluate":    ActionAnalyze,
		"plan":        ActionPlan,
		"design":      ActionPlan,
		"scan":        ActionScan,
		"audit":       ActionScan,
		"monitor":     ActionMonitor,
		"watch":       ActionMonitor,
		"validate":    ActionValidate,
		"verify":      ActionValidate,
		"test":        ActionValidate,
		"report":      ActionReport,
		"summarize":   ActionReport,
		"summarise":   ActionReport,
		"explain":     ActionRetrieve,
		"lookup":      ActionRetrieve,
		"chat":        ActionConverse,
		"ask":         ActionConverse,
	}
)

// NewClassifier returns a classifier with the default keyword tables.
func NewClassifier() *Classifier {
	c := &Classifier{
		complex:        toSet(defaultComplexKeywords),
		moderate:       toSet(defaultModerateKeywords),
		actions:        make(map[string]ActionKind, len(defaultActionKeywords)),
		LongGoalTokens: 25,
	}
	for k, v := range defaultActionKeywords {
		c.actions[k] = v
	}
	return c
}

func toSet(words []string) map[string]struct{} {
	s := make(map[string]struct{}, len(words))
	for _, w := range words {
		s[w] = struct{}{}
	}
	return s
}

func tokenize(goal string) []string {
	return strings.FieldsFunc(strings.ToLower(goal), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// Classify returns the complexity of goal. A valid "complexity" entry in
// ctx overrides the keyword tables.
func (c *Classifier) Classify(goal string, ctx map[string]any) Complexity {
	if v, ok := ctx[ContextKeyComplexity].(string); ok {
		if forced, err := ParseComplexity(v); err == nil {
			return forced
		}
	}

	tokens := tokenize(goal)
	moderate := false
	for _, tok := range tokens {
		if _, ok := c.complex[tok]; ok {
			return ComplexityComplex
		}
		if _, ok := c.moderate[tok]; ok {
			moderate = true
		}
	}
	if moderate || (c.LongGoalTokens > 0 && len(tokens) >= c.LongGoalTokens) {
		return ComplexityModerate
	}
	return ComplexitySimple
}

// PrimaryAction returns the action named by the first action keyword in
// goal, or ActionExecute.
func (c *Classifier) PrimaryAction(goal string) ActionKind {
	for _, tok := range tokenize(goal) {
		if a, ok := c.actions[tok]; ok {
			return a
		}
	}
	return ActionExecute
}
