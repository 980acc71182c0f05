package workflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/agent"
	"github.com/BaSui01/orchestra/resilience/retry"
	"github.com/BaSui01/orchestra/types"
)

var allCapabilities = types.NewCapabilitySet(
	types.CapabilityResearch, types.CapabilityAnalysis, types.CapabilityPlanning,
	types.CapabilityExecution, types.CapabilitySecurity, types.CapabilityNetwork,
	types.CapabilityMonitoring, types.CapabilityReporting, types.CapabilityValidation,
	types.CapabilityKnowledge, types.CapabilityConversation, types.CapabilitySystem,
)

// stepClock hands out strictly increasing instants so dispatch and finish
// order is observable independent of timer resolution.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func newStepClock() *stepClock {
	return &stepClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Millisecond)
	return c.now
}

type testEnv struct {
	registry *agent.Registry
	client   *agent.Client
	mu       sync.Mutex
	requests map[string][]*types.AgentRequest
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	reg := agent.NewRegistry(agent.DefaultRegistryConfig(), zap.NewNop())
	client := agent.NewClient(reg, agent.ClientConfig{
		Retry:          retry.Policy{MaxAttempts: 1},
		DefaultTimeout: time.Second,
	}, nil, zap.NewNop())
	return &testEnv{registry: reg, client: client, requests: make(map[string][]*types.AgentRequest)}
}

// register adds an agent whose handler is fn. A nil fn succeeds with the
// step id as result.
func (e *testEnv) register(t *testing.T, id string, maxConcurrent int, fn agent.HandlerFunc) {
	t.Helper()
	if fn == nil {
		fn = func(_ context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
			return &types.AgentResponse{Status: types.StatusSuccess, Result: req.Payload["step_id"]}, nil
		}
	}
	record := func(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
		e.mu.Lock()
		e.requests[id] = append(e.requests[id], req)
		e.mu.Unlock()
		return fn(ctx, req)
	}
	require.NoError(t, e.registry.Register(id, agent.Profile{
		Capabilities:       allCapabilities,
		MaxConcurrentTasks: maxConcurrent,
	}, agent.NewLocalAgent(id, record, zap.NewNop())))
}

func (e *testEnv) registerAll(t *testing.T) {
	t.Helper()
	for agentType := range agentTypeCapabilities {
		e.register(t, agentType, 4, nil)
	}
}

func (e *testEnv) requestsFor(id string) []*types.AgentRequest {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*types.AgentRequest(nil), e.requests[id]...)
}

func (e *testEnv) executor(cfg ExecutorConfig) *Executor {
	return NewExecutor(e.registry, e.client, cfg, nil, zap.NewNop())
}
