package agent

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/resilience/retry"
	"github.com/BaSui01/orchestra/types"
)

const tracerName = "github.com/BaSui01/orchestra/agent"

// ClientConfig configures the agent client.
type ClientConfig struct {
	Retry retry.Policy
	// DefaultTimeout bounds each attempt when the caller sets no timeout.
	DefaultTimeout time.Duration
	// RetryBudget is the sustained retries per second allowed per agent;
	// zero disables the budget.
	RetryBudget float64
	// RetryBurst is the retry token bucket size.
	RetryBurst int
}

// DefaultClientConfig returns 3 attempts with 1s exponential backoff and a
// 10s per-attempt timeout.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Retry:          retry.DefaultPolicy(),
		DefaultTimeout: 10 * time.Second,
		RetryBudget:    1,
		RetryBurst:     10,
	}
}

// CallOption customizes a single call.
type CallOption func(*types.AgentRequest)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) CallOption {
	return func(r *types.AgentRequest) { r.Timeout = d }
}

// WithContext merges values into the request context map.
func WithContext(values map[string]any) CallOption {
	return func(r *types.AgentRequest) {
		for k, v := range values {
			r.Context[k] = v
		}
	}
}

// WithPriority sets the request priority.
func WithPriority(p int) CallOption {
	return func(r *types.AgentRequest) { r.Priority = p }
}

// Stats are per-agent-type call counters.
type Stats struct {
	AgentType            string        `json:"agent_type"`
	TotalRequests        int64         `json:"total_requests"`
	SuccessfulRequests   int64         `json:"successful_requests"`
	FailedRequests       int64         `json:"failed_requests"`
	AverageExecutionTime time.Duration `json:"average_execution_time"`
}

// Client dispatches standardized requests to registered agents.
// Call never returns an error: every failure becomes a response with
// status error.
type Client struct {
	registry *Registry
	config   ClientConfig
	metrics  *metrics.Collector
	tracer   trace.Tracer
	logger   *zap.Logger

	mu      sync.Mutex
	stats   map[string]*Stats
	budgets map[string]*rate.Limiter
}

// NewClient creates an agent client over registry.
func NewClient(registry *Registry, config ClientConfig, collector *metrics.Collector, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.DefaultTimeout <= 0 {
		config.DefaultTimeout = 10 * time.Second
	}
	if config.RetryBurst <= 0 {
		config.RetryBurst = 1
	}
	return &Client{
		registry: registry,
		config:   config,
		metrics:  collector,
		tracer:   otel.Tracer(tracerName),
		logger:   logger.With(zap.String("component", "agent_client")),
		stats:    make(map[string]*Stats),
		budgets:  make(map[string]*rate.Limiter),
	}
}

// Call sends action with payload to the agent registered as agentType.
//
// The agent must be registered and must not be known-unhealthy. Attempts
// are retried on retryable failures with exponential backoff; a success
// ends the loop and otherwise the last attempt's response is returned.
// ExecutionTime always covers the whole call.
func (c *Client) Call(ctx context.Context, agentType, action string, payload map[string]any, opts ...CallOption) *types.AgentResponse {
	req := types.NewAgentRequest(agentType, action, payload)
	for _, opt := range opts {
		opt(req)
	}
	if req.Timeout <= 0 {
		req.Timeout = c.config.DefaultTimeout
	}
	return c.Do(ctx, req)
}

// Do sends an already built request.
func (c *Client) Do(ctx context.Context, req *types.AgentRequest) *types.AgentResponse {
	start := time.Now()
	if req.Timeout <= 0 {
		req.Timeout = c.config.DefaultTimeout
	}
	agentType := req.AgentType

	ctx, span := c.tracer.Start(ctx, "agent.call", trace.WithAttributes(
		attribute.String("agent.type", agentType),
		attribute.String("agent.action", req.Action),
		attribute.String("agent.request_id", req.RequestID),
	))
	defer span.End()

	log := c.logger.With(
		zap.String("agent_type", agentType),
		zap.String("action", req.Action),
		zap.String("request_id", req.RequestID),
	)

	finish := func(resp *types.AgentResponse, record bool) *types.AgentResponse {
		resp.ExecutionTime = time.Since(start)
		if resp.RequestID == "" {
			resp.RequestID = req.RequestID
		}
		if resp.AgentType == "" {
			resp.AgentType = agentType
		}
		if record {
			c.recordStats(agentType, resp)
			c.registry.UpdatePerformance(agentType, resp.IsSuccess(), resp.ExecutionTime)
		}
		c.metrics.RecordAgentRequest(agentType, string(resp.Status), resp.ExecutionTime)

		span.SetAttributes(attribute.String("agent.status", string(resp.Status)))
		if !resp.IsSuccess() {
			span.SetStatus(codes.Error, resp.Error)
		}
		return resp
	}

	ag, ok := c.registry.Lookup(agentType)
	if !ok {
		log.Warn("agent not registered")
		return finish(types.NewErrorResponse(req,
			types.NewNotFoundError(fmt.Sprintf("Agent type '%s' not registered", agentType))), false)
	}

	health, err := c.registry.RefreshHealth(ctx, agentType, false)
	if err != nil {
		return finish(types.NewErrorResponse(req, err), false)
	}
	if !health.Status.Usable() {
		log.Warn("agent unhealthy, failing fast", zap.String("status", string(health.Status)))
		return finish(types.NewErrorResponse(req,
			types.NewUnhealthyError(agentType, fmt.Sprintf("Agent '%s' is unhealthy", agentType))), true)
	}

	var last *types.AgentResponse
	policy := c.config.Retry
	policy.Classifier = func(err error) bool {
		if !types.IsRetryable(err) {
			return false
		}
		if !c.allowRetry(agentType) {
			log.Warn("retry budget exhausted")
			return false
		}
		return true
	}
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		c.metrics.RecordAgentRetry(agentType)
		span.AddEvent("retry", trace.WithAttributes(
			attribute.Int("attempt", attempt),
			attribute.String("error", err.Error()),
		))
	}
	retryer := retry.NewBackoffRetryer(policy, log)

	_ = retryer.Do(ctx, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, req.Timeout)
		defer cancel()

		resp, err := ag.Process(attemptCtx, req)
		if err != nil {
			last = types.NewErrorResponse(req, err)
			return err
		}
		if resp == nil {
			err := types.NewError(types.ErrInternalError, "agent returned no response")
			last = types.NewErrorResponse(req, err)
			return err
		}
		last = resp
		if resp.IsSuccess() {
			return nil
		}
		return responseError(resp)
	})

	if last == nil {
		last = types.NewErrorResponse(req, types.NewError(types.ErrInternalError, "agent call did not run"))
	}
	if !last.IsSuccess() {
		log.Warn("agent call failed",
			zap.String("status", string(last.Status)),
			zap.String("error_code", string(last.ErrorCode)),
			zap.String("error", last.Error),
		)
	}
	return finish(last, true)
}

// responseError turns a non-success response into an error for the retry loop.
// Partial results are retried like transport failures.
func responseError(resp *types.AgentResponse) error {
	code := resp.ErrorCode
	if code == "" {
		code = types.ErrTransient
	}
	msg := resp.Error
	if msg == "" {
		msg = fmt.Sprintf("agent returned status %s", resp.Status)
	}
	return types.NewError(code, msg).WithRetryable(resp.Status == types.StatusPartial || resp.Retryable())
}

func (c *Client) allowRetry(agentType string) bool {
	if c.config.RetryBudget <= 0 {
		return true
	}
	c.mu.Lock()
	lim, ok := c.budgets[agentType]
	if !ok {
		lim = rate.NewLimiter(rate.Limit(c.config.RetryBudget), c.config.RetryBurst)
		c.budgets[agentType] = lim
	}
	c.mu.Unlock()
	return lim.Allow()
}

func (c *Client) recordStats(agentType string, resp *types.AgentResponse) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.stats[agentType]
	if !ok {
		s = &Stats{AgentType: agentType}
		c.stats[agentType] = s
	}
	s.TotalRequests++
	if resp.IsSuccess() {
		s.SuccessfulRequests++
	} else {
		s.FailedRequests++
	}
	// Running mean over all calls.
	n := time.Duration(s.TotalRequests)
	s.AverageExecutionTime += (resp.ExecutionTime - s.AverageExecutionTime) / n
}

// Stats returns the counters for one agent type.
func (c *Client) Stats(agentType string) (Stats, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.stats[agentType]
	if !ok {
		return Stats{}, false
	}
	return *s, true
}

// AllStats returns counters for every agent type that has been called,
// sorted by agent type.
func (c *Client) AllStats() []Stats {
	c.mu.Lock()
	out := make([]Stats, 0, len(c.stats))
	for _, s := range c.stats {
		out = append(out, *s)
	}
	c.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentType < out[j].AgentType })
	return out
}
