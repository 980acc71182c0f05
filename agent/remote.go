package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/internal/tlsutil"
	"github.com/BaSui01/orchestra/types"
)

const maxErrorBodyBytes = 64 << 10

// HTTPAgentConfig configures a remote agent proxy.
type HTTPAgentConfig struct {
	// BaseURL is the agent root; requests go to {BaseURL}/process and {BaseURL}/health.
	BaseURL string
	// Timeout bounds a single request when the caller did not set one.
	Timeout time.Duration
	// Client overrides the HTTP client.
	Client *http.Client
}

// HTTPAgent forwards requests to a remote agent over HTTP.
type HTTPAgent struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *zap.Logger
}

// NewHTTPAgent creates a remote agent proxy.
func NewHTTPAgent(cfg HTTPAgentConfig, logger *zap.Logger) (*HTTPAgent, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("http agent: base url is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	client := cfg.Client
	if client == nil {
		client = tlsutil.HTTPClient(0)
	}
	return &HTTPAgent{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: cfg.Timeout,
		client:  client,
		logger:  logger.With(zap.String("component", "http_agent"), zap.String("base_url", cfg.BaseURL)),
	}, nil
}

// BaseURL returns the agent root URL.
func (a *HTTPAgent) BaseURL() string { return a.baseURL }

// Process POSTs the request to {base}/process.
// A 200 body is decoded into the response; any other status is an error
// carrying the status code and body text.
func (a *HTTPAgent) Process(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, types.NewValidationError("encode agent request").WithCause(err)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = a.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+"/process", bytes.NewReader(body))
	if err != nil {
		return nil, types.NewValidationError("build agent request").WithCause(err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if rid, ok := types.RequestID(ctx); ok {
		httpReq.Header.Set("X-Request-ID", rid)
	}

	resp, err := a.client.Do(httpReq)
	if err != nil {
		return nil, classifyTransportError(ctx, err).WithTarget(req.AgentType)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		text, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
		return nil, statusError(resp.StatusCode, string(text)).WithTarget(req.AgentType)
	}

	var out types.AgentResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, types.NewError(types.ErrUpstreamError, "decode agent response").
			WithCause(err).
			WithRetryable(false).
			WithTarget(req.AgentType)
	}
	if out.RequestID == "" {
		out.RequestID = req.RequestID
	}
	if out.AgentType == "" {
		out.AgentType = req.AgentType
	}
	return &out, nil
}

// Ping issues GET {base}/health; 200 means alive.
func (a *HTTPAgent) Ping(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := a.client.Do(httpReq)
	if err != nil {
		return classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodyBytes))

	if resp.StatusCode != http.StatusOK {
		return statusError(resp.StatusCode, "")
	}
	return nil
}

// statusError maps a non-200 reply: 5xx and 429 are retryable, other 4xx are not.
func statusError(code int, body string) *types.Error {
	msg := fmt.Sprintf("agent returned HTTP %d", code)
	if body = strings.TrimSpace(body); body != "" {
		msg += ": " + body
	}
	retryable := code >= 500 || code == http.StatusTooManyRequests
	return types.NewError(types.ErrUpstreamError, msg).
		WithHTTPStatus(code).
		WithRetryable(retryable)
}

func classifyTransportError(ctx context.Context, err error) *types.Error {
	if errors.Is(err, context.Canceled) && ctx.Err() == context.Canceled {
		return types.NewError(types.ErrInternalError, "agent request canceled").WithCause(err)
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return types.NewTimeoutError("agent request timed out", err)
	}
	return types.NewTransientError("agent request failed", err)
}
