package workflow

import (
	"github.com/BaSui01/orchestra/types"
)

// ActionKind is the kind of work a step performs.
type ActionKind string

const (
	ActionResearch ActionKind = "research"
	ActionAnalyze  ActionKind = "analyze"
	ActionPlan     ActionKind = "plan"
	ActionExecute  ActionKind = "execute"
	ActionScan     ActionKind = "scan"
	ActionMonitor  ActionKind = "monitor"
	ActionValidate ActionKind = "validate"
	ActionReport   ActionKind = "report"
	ActionRetrieve ActionKind = "retrieve"
	ActionConverse ActionKind = "converse"
)

// Well-known agent types used by the plan templates.
const (
	AgentResearch     = "research_agent"
	AgentAnalysis     = "analysis_agent"
	AgentPlanning     = "planning_agent"
	AgentExecution    = "execution_agent"
	AgentSecurity     = "security_agent"
	AgentNetwork      = "network_agent"
	AgentMonitoring   = "monitoring_agent"
	AgentReporting    = "reporting_agent"
	AgentValidation   = "validation_agent"
	AgentKnowledge    = "knowledge_agent"
	AgentConversation = "conversation_agent"
	AgentSystem       = "system_agent"
)

var actionCapabilities = map[ActionKind]types.CapabilitySet{
	ActionResearch: types.NewCapabilitySet(types.CapabilityResearch, types.CapabilityAnalysis),
	ActionAnalyze:  types.NewCapabilitySet(types.CapabilityAnalysis),
	ActionPlan:     types.NewCapabilitySet(types.CapabilityPlanning),
	ActionExecute:  types.NewCapabilitySet(types.CapabilityExecution),
	ActionScan:     types.NewCapabilitySet(types.CapabilitySecurity, types.CapabilityNetwork),
	ActionMonitor:  types.NewCapabilitySet(types.CapabilityMonitoring),
	ActionValidate: types.NewCapabilitySet(types.CapabilityValidation),
	ActionReport:   types.NewCapabilitySet(types.CapabilityReporting),
	ActionRetrieve: types.NewCapabilitySet(types.CapabilityKnowledge),
	ActionConverse: types.NewCapabilitySet(types.CapabilityConversation),
}

var agentTypeCapabilities = map[string]types.CapabilitySet{
	AgentResearch:     types.NewCapabilitySet(types.CapabilityResearch),
	AgentAnalysis:     types.NewCapabilitySet(types.CapabilityAnalysis),
	AgentPlanning:     types.NewCapabilitySet(types.CapabilityPlanning),
	AgentExecution:    types.NewCapabilitySet(types.CapabilityExecution),
	AgentSecurity:     types.NewCapabilitySet(types.CapabilitySecurity),
	AgentNetwork:      types.NewCapabilitySet(types.CapabilityNetwork),
	AgentMonitoring:   types.NewCapabilitySet(types.CapabilityMonitoring),
	AgentReporting:    types.NewCapabilitySet(types.CapabilityReporting),
	AgentValidation:   types.NewCapabilitySet(types.CapabilityValidation),
	AgentKnowledge:    types.NewCapabilitySet(types.CapabilityKnowledge),
	AgentConversation: types.NewCapabilitySet(types.CapabilityConversation),
	AgentSystem:       types.NewCapabilitySet(types.CapabilitySystem),
}

// ActionCapabilities returns the capabilities an action requires.
func ActionCapabilities(a ActionKind) types.CapabilitySet {
	return actionCapabilities[a].Clone()
}

// AgentTypeCapabilities returns the capabilities implied by an agent type.
// Unknown types imply none.
func AgentTypeCapabilities(agentType string) types.CapabilitySet {
	return agentTypeCapabilities[agentType].Clone()
}

// RequiredCapabilities is the union of the action's and the agent type's
// capabilities.
func RequiredCapabilities(a ActionKind, agentType string) types.CapabilitySet {
	return ActionCapabilities(a).Union(AgentTypeCapabilities(agentType))
}

// DefaultAgentType returns the agent type that handles an action.
func DefaultAgentType(a ActionKind) string {
	switch a {
	case ActionResearch:
		return AgentResearch
	case ActionAnalyze:
		return AgentAnalysis
	case ActionPlan:
		return AgentPlanning
	case ActionScan:
		return AgentSecurity
	case ActionMonitor:
		return AgentMonitoring
	case ActionValidate:
		return AgentValidation
	case ActionReport:
		return AgentReporting
	case ActionRetrieve:
		return AgentKnowledge
	case ActionConverse:
		return AgentConversation
	default:
		return AgentExecution
	}
}
