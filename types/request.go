package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ResponseStatus is the outcome of one agent call.
type ResponseStatus string

const (
	StatusSuccess ResponseStatus = "success"
	StatusError   ResponseStatus = "error"
	StatusPartial ResponseStatus = "partial"
)

// AgentRequest is the standardized unit of work sent to an agent.
// It is immutable once created and answered by exactly one AgentResponse.
type AgentRequest struct {
	RequestID string         `json:"request_id"`
	AgentType string         `json:"agent_type"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Priority  int            `json:"priority"`
	Timeout   time.Duration  `json:"-"`
}

// NewAgentRequest creates a request with a fresh request ID.
func NewAgentRequest(agentType, action string, payload map[string]any) *AgentRequest {
	if payload == nil {
		payload = map[string]any{}
	}
	return &AgentRequest{
		RequestID: uuid.NewString(),
		AgentType: agentType,
		Action:    action,
		Payload:   payload,
		Context:   map[string]any{},
		Priority:  1,
	}
}

// agentRequestJSON carries Timeout as seconds on the wire.
type agentRequestJSON struct {
	RequestID string         `json:"request_id"`
	AgentType string         `json:"agent_type"`
	Action    string         `json:"action"`
	Payload   map[string]any `json:"payload,omitempty"`
	Context   map[string]any `json:"context,omitempty"`
	Priority  int            `json:"priority"`
	Timeout   float64        `json:"timeout,omitempty"`
}

// MarshalJSON implements json.Marshaler.
func (r AgentRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(agentRequestJSON{
		RequestID: r.RequestID,
		AgentType: r.AgentType,
		Action:    r.Action,
		Payload:   r.Payload,
		Context:   r.Context,
		Priority:  r.Priority,
		Timeout:   r.Timeout.Seconds(),
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AgentRequest) UnmarshalJSON(data []byte) error {
	var aux agentRequestJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = AgentRequest{
		RequestID: aux.RequestID,
		AgentType: aux.AgentType,
		Action:    aux.Action,
		Payload:   aux.Payload,
		Context:   aux.Context,
		Priority:  aux.Priority,
		Timeout:   time.Duration(aux.Timeout * float64(time.Second)),
	}
	return nil
}

// AgentResponse is the result of processing one AgentRequest.
type AgentResponse struct {
	RequestID     string         `json:"request_id"`
	AgentType     string         `json:"agent_type"`
	Status        ResponseStatus `json:"status"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     ErrorCode      `json:"error_code,omitempty"`
	ExecutionTime time.Duration  `json:"-"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

type agentResponseJSON struct {
	RequestID     string         `json:"request_id"`
	AgentType     string         `json:"agent_type"`
	Status        ResponseStatus `json:"status"`
	Result        any            `json:"result,omitempty"`
	Error         string         `json:"error,omitempty"`
	ErrorCode     ErrorCode      `json:"error_code,omitempty"`
	ExecutionTime float64        `json:"execution_time"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// MarshalJSON implements json.Marshaler. ExecutionTime is encoded in seconds.
func (r AgentResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(agentResponseJSON{
		RequestID:     r.RequestID,
		AgentType:     r.AgentType,
		Status:        r.Status,
		Result:        r.Result,
		Error:         r.Error,
		ErrorCode:     r.ErrorCode,
		ExecutionTime: r.ExecutionTime.Seconds(),
		Metadata:      r.Metadata,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *AgentResponse) UnmarshalJSON(data []byte) error {
	var aux agentResponseJSON
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	*r = AgentResponse{
		RequestID:     aux.RequestID,
		AgentType:     aux.AgentType,
		Status:        aux.Status,
		Result:        aux.Result,
		Error:         aux.Error,
		ErrorCode:     aux.ErrorCode,
		ExecutionTime: time.Duration(aux.ExecutionTime * float64(time.Second)),
		Metadata:      aux.Metadata,
	}
	return nil
}

// IsSuccess reports whether the call fully succeeded.
func (r *AgentResponse) IsSuccess() bool {
	return r != nil && r.Status == StatusSuccess
}

// Retryable reports whether an error response may be retried.
// Responses without an error code are treated as transport-class.
func (r *AgentResponse) Retryable() bool {
	if r == nil || r.Status == StatusSuccess {
		return false
	}
	if r.ErrorCode == "" {
		return true
	}
	return defaultRetryable(r.ErrorCode)
}

// NewErrorResponse converts err into an error response for req.
func NewErrorResponse(req *AgentRequest, err error) *AgentResponse {
	resp := &AgentResponse{
		Status:    StatusError,
		ErrorCode: GetErrorCode(err),
	}
	if req != nil {
		resp.RequestID = req.RequestID
		resp.AgentType = req.AgentType
	}
	if e, ok := AsError(err); ok {
		resp.Error = e.Message
	} else if err != nil {
		resp.Error = err.Error()
	}
	return resp
}
