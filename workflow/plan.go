package workflow

import (
	"fmt"
	"time"

	"github.com/BaSui01/orchestra/types"
)

// Step is one planned unit of a workflow.
type Step struct {
	ID                   string              `json:"id"`
	Name                 string              `json:"name"`
	Description          string              `json:"description"`
	Action               ActionKind          `json:"action"`
	AgentType            string              `json:"agent_type"`
	RequiredCapabilities types.CapabilitySet `json:"-"`
	Dependencies         []string            `json:"dependencies,omitempty"`
	// AssignedAgent is the planning-time choice. The executor re-validates
	// it before dispatch.
	AssignedAgent string `json:"assigned_agent,omitempty"`
}

// Plan is an ordered list of steps whose dependencies form a DAG.
type Plan struct {
	WorkflowID string         `json:"workflow_id"`
	Goal       string         `json:"goal"`
	Complexity Complexity     `json:"complexity"`
	Context    map[string]any `json:"context,omitempty"`
	Steps      []*Step        `json:"steps"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Step returns the step with id.
func (p *Plan) Step(id string) (*Step, bool) {
	for _, s := range p.Steps {
		if s.ID == id {
			return s, true
		}
	}
	return nil, false
}

// Validate checks for duplicate ids, unknown dependencies and cycles.
func (p *Plan) Validate() error {
	index := make(map[string]*Step, len(p.Steps))
	for _, s := range p.Steps {
		if s.ID == "" {
			return types.NewValidationError("step id is empty")
		}
		if _, dup := index[s.ID]; dup {
			return types.NewValidationError(fmt.Sprintf("duplicate step id %s", s.ID))
		}
		index[s.ID] = s
	}
	for _, s := range p.Steps {
		for _, dep := range s.Dependencies {
			if _, ok := index[dep]; !ok {
				return types.NewValidationError(fmt.Sprintf("step %s depends on unknown step %s", s.ID, dep))
			}
		}
	}

	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(p.Steps))
	var visit func(id string) error
	visit = func(id string) error {
		switch state[id] {
		case visiting:
			return types.NewValidationError(fmt.Sprintf("dependency cycle through step %s", id))
		case done:
			return nil
		}
		state[id] = visiting
		for _, dep := range index[id].Dependencies {
			if err := visit(dep); err != nil {
				return err
			}
		}
		state[id] = done
		return nil
	}
	for _, s := range p.Steps {
		if err := visit(s.ID); err != nil {
			return err
		}
	}
	return nil
}
