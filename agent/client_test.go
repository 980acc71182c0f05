package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/resilience/retry"
	"github.com/BaSui01/orchestra/testutil"
	"github.com/BaSui01/orchestra/types"
)

func fastClientConfig() ClientConfig {
	return ClientConfig{
		Retry: retry.Policy{
			MaxAttempts:  3,
			InitialDelay: time.Millisecond,
			MaxDelay:     5 * time.Millisecond,
			Multiplier:   2,
		},
		DefaultTimeout: time.Second,
	}
}

func newTestClient(t *testing.T) (*Client, *Registry) {
	t.Helper()
	r := NewRegistry(DefaultRegistryConfig(), zap.NewNop())
	return NewClient(r, fastClientConfig(), nil, zap.NewNop()), r
}

func TestClient_UnregisteredAgent(t *testing.T) {
	c, _ := newTestClient(t)

	var resp *types.AgentResponse
	assert.NotPanics(t, func() {
		resp = c.Call(context.Background(), "x", "run", nil)
	})
	require.NotNil(t, resp)
	assert.Equal(t, types.StatusError, resp.Status)
	assert.Equal(t, "Agent type 'x' not registered", resp.Error)
	assert.Equal(t, types.ErrNotFound, resp.ErrorCode)
	assert.Equal(t, "x", resp.AgentType)
	assert.NotEmpty(t, resp.RequestID)
	assert.Greater(t, resp.ExecutionTime, time.Duration(0))
}

func TestClient_Success(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.SucceedingAgent(map[string]any{"summary": "done"})
	require.NoError(t, r.Register("research_agent", Profile{}, a))

	resp := c.Call(context.Background(), "research_agent", "research", map[string]any{"topic": "go"},
		WithPriority(5), WithContext(map[string]any{"workflow_id": "wf-1"}), WithTimeout(3*time.Second))

	require.True(t, resp.IsSuccess())
	assert.Equal(t, 1, a.Calls())
	req := a.Requests()[0]
	assert.Equal(t, 5, req.Priority)
	assert.Equal(t, "wf-1", req.Context["workflow_id"])
	assert.Equal(t, 3*time.Second, req.Timeout)
	assert.Equal(t, "go", req.Payload["topic"])

	stats, ok := c.Stats("research_agent")
	require.True(t, ok)
	assert.Equal(t, int64(1), stats.TotalRequests)
	assert.Equal(t, int64(1), stats.SuccessfulRequests)

	p, _ := r.Profile("research_agent")
	assert.Equal(t, 1, p.TotalTasks, "registry performance updated")
}

func TestClient_RetriesUntilSuccess(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.NewScriptedAgent(
		testutil.Step{Err: types.NewTransientError("connection reset", nil)},
		testutil.Step{Response: &types.AgentResponse{Status: types.StatusPartial, Result: "half"}},
		testutil.Step{Response: &types.AgentResponse{Status: types.StatusSuccess, Result: "full"}},
	)
	require.NoError(t, r.Register("a", Profile{}, a))

	resp := c.Call(context.Background(), "a", "run", nil)
	require.True(t, resp.IsSuccess())
	assert.Equal(t, "full", resp.Result)
	assert.Equal(t, 3, a.Calls())
}

func TestClient_ReturnsLastResponseWhenExhausted(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.NewScriptedAgent(
		testutil.Step{Err: types.NewTransientError("reset", nil)},
		testutil.Step{Err: types.NewTransientError("reset", nil)},
		testutil.Step{Response: &types.AgentResponse{Status: types.StatusPartial, Result: "partial"}},
	)
	require.NoError(t, r.Register("a", Profile{}, a))

	resp := c.Call(context.Background(), "a", "run", nil)
	assert.Equal(t, 3, a.Calls())
	assert.Equal(t, types.StatusPartial, resp.Status, "last attempt returned regardless of status")
	assert.Equal(t, "partial", resp.Result)

	stats, _ := c.Stats("a")
	assert.Equal(t, int64(1), stats.FailedRequests)
}

func TestClient_NonRetryableStopsImmediately(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.FailingAgent(types.NewValidationError("missing field target"))
	require.NoError(t, r.Register("a", Profile{}, a))

	resp := c.Call(context.Background(), "a", "run", nil)
	assert.Equal(t, 1, a.Calls())
	assert.Equal(t, types.StatusError, resp.Status)
	assert.Equal(t, types.ErrValidation, resp.ErrorCode)
	assert.Equal(t, "missing field target", resp.Error)
}

func TestClient_AgentErrorResponseWithCode(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.NewScriptedAgent(testutil.Step{Response: &types.AgentResponse{
		Status: types.StatusError, Error: "bad input", ErrorCode: types.ErrValidation,
	}})
	require.NoError(t, r.Register("a", Profile{}, a))

	resp := c.Call(context.Background(), "a", "run", nil)
	assert.Equal(t, 1, a.Calls(), "agent-declared validation errors are not retried")
	assert.Equal(t, "bad input", resp.Error)
}

func TestClient_FailsFastWhenUnhealthy(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.SucceedingAgent(nil)
	a.SetPingError(types.NewTransientError("down", nil))
	require.NoError(t, r.Register("x", Profile{}, a))

	resp := c.Call(context.Background(), "x", "run", nil)
	assert.Equal(t, types.StatusError, resp.Status)
	assert.Equal(t, "Agent 'x' is unhealthy", resp.Error)
	assert.Equal(t, types.ErrUnhealthy, resp.ErrorCode)
	assert.Equal(t, 0, a.Calls(), "no call to a known-bad agent")
}

func TestClient_PerAttemptTimeout(t *testing.T) {
	c, r := newTestClient(t)
	a := testutil.NewScriptedAgent(testutil.Step{
		Response: &types.AgentResponse{Status: types.StatusSuccess},
		Delay:    time.Minute,
	})
	require.NoError(t, r.Register("slow", Profile{}, a))

	start := time.Now()
	resp := c.Call(context.Background(), "slow", "run", nil, WithTimeout(20*time.Millisecond))
	assert.Equal(t, types.ErrTimeout, resp.ErrorCode)
	assert.Equal(t, 3, a.Calls(), "timeouts are retried")
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestClient_RetryBudget(t *testing.T) {
	r := NewRegistry(DefaultRegistryConfig(), zap.NewNop())
	cfg := fastClientConfig()
	cfg.Retry.MaxAttempts = 5
	cfg.RetryBudget = 0.001
	cfg.RetryBurst = 2
	c := NewClient(r, cfg, nil, zap.NewNop())

	a := testutil.FailingAgent(types.NewTransientError("reset", nil))
	require.NoError(t, r.Register("a", Profile{}, a))

	c.Call(context.Background(), "a", "run", nil)
	assert.Equal(t, 3, a.Calls(), "1 attempt + 2 budgeted retries")

	c.Call(context.Background(), "a", "run", nil)
	assert.Equal(t, 4, a.Calls(), "budget empty: single attempt")
}

func TestClient_RemoteAgentEndToEnd(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/health":
			w.WriteHeader(http.StatusOK)
		case "/process":
			if hits.Add(1) == 1 {
				http.Error(w, "warming up", http.StatusServiceUnavailable)
				return
			}
			var req types.AgentRequest
			_ = json.NewDecoder(r.Body).Decode(&req)
			_ = json.NewEncoder(w).Encode(types.AgentResponse{
				RequestID: req.RequestID,
				Status:    types.StatusSuccess,
				Result:    "scanned",
			})
		}
	}))
	defer srv.Close()

	c, r := newTestClient(t)
	remote, err := NewHTTPAgent(HTTPAgentConfig{BaseURL: srv.URL}, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, r.Register("network_agent", Profile{}, remote))

	resp := c.Call(context.Background(), "network_agent", "scan", nil)
	require.True(t, resp.IsSuccess(), resp.Error)
	assert.Equal(t, "scanned", resp.Result)
	assert.Equal(t, int32(2), hits.Load())
}

func TestClient_AllStats(t *testing.T) {
	c, r := newTestClient(t)
	require.NoError(t, r.Register("b", Profile{}, testutil.SucceedingAgent(nil)))
	require.NoError(t, r.Register("a", Profile{}, testutil.SucceedingAgent(nil)))

	c.Call(context.Background(), "b", "run", nil)
	c.Call(context.Background(), "a", "run", nil)
	c.Call(context.Background(), "a", "run", nil)

	all := c.AllStats()
	require.Len(t, all, 2)
	assert.Equal(t, "a", all[0].AgentType)
	assert.Equal(t, int64(2), all[0].TotalRequests)
}
