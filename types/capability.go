package types

import (
	"fmt"
	"sort"
	"strings"
)

// Capability tags a kind of work an agent can perform.
type Capability string

const (
	CapabilityResearch     Capability = "RESEARCH"
	CapabilityAnalysis     Capability = "ANALYSIS"
	CapabilityPlanning     Capability = "PLANNING"
	CapabilityExecution    Capability = "EXECUTION"
	CapabilitySecurity     Capability = "SECURITY"
	CapabilityNetwork      Capability = "NETWORK"
	CapabilityMonitoring   Capability = "MONITORING"
	CapabilityReporting    Capability = "REPORTING"
	CapabilityValidation   Capability = "VALIDATION"
	CapabilityKnowledge    Capability = "KNOWLEDGE"
	CapabilityConversation Capability = "CONVERSATION"
	CapabilitySystem       Capability = "SYSTEM"
)

var knownCapabilities = map[Capability]struct{}{
	CapabilityResearch: {}, CapabilityAnalysis: {}, CapabilityPlanning: {},
	CapabilityExecution: {}, CapabilitySecurity: {}, CapabilityNetwork: {},
	CapabilityMonitoring: {}, CapabilityReporting: {}, CapabilityValidation: {},
	CapabilityKnowledge: {}, CapabilityConversation: {}, CapabilitySystem: {},
}

// ParseCapability parses a capability name case-insensitively.
func ParseCapability(s string) (Capability, error) {
	c := Capability(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := knownCapabilities[c]; !ok {
		return "", NewValidationError(fmt.Sprintf("unknown capability %q", s))
	}
	return c, nil
}

// CapabilitySet is an unordered set of capabilities.
type CapabilitySet map[Capability]struct{}

// NewCapabilitySet builds a set from caps.
func NewCapabilitySet(caps ...Capability) CapabilitySet {
	s := make(CapabilitySet, len(caps))
	for _, c := range caps {
		s[c] = struct{}{}
	}
	return s
}

// ParseCapabilitySet parses a list of capability names.
func ParseCapabilitySet(names []string) (CapabilitySet, error) {
	s := make(CapabilitySet, len(names))
	for _, n := range names {
		c, err := ParseCapability(n)
		if err != nil {
			return nil, err
		}
		s[c] = struct{}{}
	}
	return s, nil
}

// Has reports whether c is in the set.
func (s CapabilitySet) Has(c Capability) bool {
	_, ok := s[c]
	return ok
}

// ContainsAll reports whether s is a superset of other.
// Every set contains the empty set.
func (s CapabilitySet) ContainsAll(other CapabilitySet) bool {
	for c := range other {
		if _, ok := s[c]; !ok {
			return false
		}
	}
	return true
}

// Union returns a new set holding the members of s and other.
func (s CapabilitySet) Union(other CapabilitySet) CapabilitySet {
	out := make(CapabilitySet, len(s)+len(other))
	for c := range s {
		out[c] = struct{}{}
	}
	for c := range other {
		out[c] = struct{}{}
	}
	return out
}

// Clone returns a copy of s.
func (s CapabilitySet) Clone() CapabilitySet {
	return s.Union(nil)
}

// Slice returns the members sorted by name.
func (s CapabilitySet) Slice() []Capability {
	out := make([]Capability, 0, len(s))
	for c := range s {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Strings returns the sorted member names.
func (s CapabilitySet) Strings() []string {
	caps := s.Slice()
	out := make([]string, len(caps))
	for i, c := range caps {
		out[i] = string(c)
	}
	return out
}
