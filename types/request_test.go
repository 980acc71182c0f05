package types

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAgentRequest_UniqueIDs(t *testing.T) {
	t.Parallel()

	a := NewAgentRequest("research_agent", "research", nil)
	b := NewAgentRequest("research_agent", "research", nil)
	assert.NotEmpty(t, a.RequestID)
	assert.NotEqual(t, a.RequestID, b.RequestID)
	assert.NotNil(t, a.Payload)
	assert.Equal(t, 1, a.Priority)
}

func TestAgentRequest_TimeoutInSeconds(t *testing.T) {
	t.Parallel()

	req := NewAgentRequest("network_agent", "scan", map[string]any{"target": "10.0.0.0/24"})
	req.Timeout = 1500 * time.Millisecond

	data, err := json.Marshal(req)
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, 1.5, raw["timeout"])

	var decoded AgentRequest
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, req.Timeout, decoded.Timeout)
	assert.Equal(t, req.RequestID, decoded.RequestID)
}

func TestAgentResponse_Decode(t *testing.T) {
	t.Parallel()

	body := `{"request_id":"r1","agent_type":"research_agent","status":"success","result":{"ok":true},"execution_time":0.25}`
	var resp AgentResponse
	require.NoError(t, json.Unmarshal([]byte(body), &resp))
	assert.True(t, resp.IsSuccess())
	assert.Equal(t, 250*time.Millisecond, resp.ExecutionTime)
}

func TestNewErrorResponse(t *testing.T) {
	t.Parallel()

	req := NewAgentRequest("x", "run", nil)
	resp := NewErrorResponse(req, NewNotFoundError("Agent type 'x' not registered"))
	assert.Equal(t, StatusError, resp.Status)
	assert.Equal(t, "Agent type 'x' not registered", resp.Error)
	assert.Equal(t, ErrNotFound, resp.ErrorCode)
	assert.Equal(t, req.RequestID, resp.RequestID)
	assert.False(t, resp.Retryable())

	plain := NewErrorResponse(req, errors.New("connection refused"))
	assert.Equal(t, ErrTransient, plain.ErrorCode)
	assert.True(t, plain.Retryable())
}

func TestCapabilitySet(t *testing.T) {
	t.Parallel()

	s := NewCapabilitySet(CapabilityResearch, CapabilityAnalysis)
	assert.True(t, s.Has(CapabilityResearch))
	assert.True(t, s.ContainsAll(NewCapabilitySet(CapabilityAnalysis)))
	assert.True(t, s.ContainsAll(nil))
	assert.False(t, s.ContainsAll(NewCapabilitySet(CapabilityNetwork)))
	assert.Equal(t, []string{"ANALYSIS", "RESEARCH"}, s.Strings())

	u := s.Union(NewCapabilitySet(CapabilityNetwork))
	assert.Len(t, u, 3)
	assert.Len(t, s, 2)

	parsed, err := ParseCapabilitySet([]string{"research", " Network "})
	require.NoError(t, err)
	assert.Equal(t, []Capability{CapabilityNetwork, CapabilityResearch}, parsed.Slice())

	_, err = ParseCapability("telepathy")
	assert.True(t, IsErrorCode(err, ErrValidation))
}
