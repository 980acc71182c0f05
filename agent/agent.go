package agent

import (
	"context"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/types"
)

// Agent is a capability-tagged unit of work execution, local or remote.
type Agent interface {
	// Process handles one request. Transport-level failures are returned as
	// errors; agent-level failures may also come back as a response with
	// status error or partial.
	Process(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error)

	// Ping performs a cheap liveness check.
	Ping(ctx context.Context) error
}

// HandlerFunc processes a request in-process.
type HandlerFunc func(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error)

// PingFunc reports in-process agent liveness.
type PingFunc func(ctx context.Context) error

// LocalAgent adapts a HandlerFunc to the Agent interface.
type LocalAgent struct {
	id      string
	handler HandlerFunc
	ping    PingFunc
	logger  *zap.Logger
}

// NewLocalAgent wraps handler as an in-process agent.
func NewLocalAgent(id string, handler HandlerFunc, logger *zap.Logger) *LocalAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LocalAgent{
		id:      id,
		handler: handler,
		logger:  logger.With(zap.String("component", "local_agent"), zap.String("agent_id", id)),
	}
}

// WithPing sets a custom liveness check. Without one the agent is always alive.
func (a *LocalAgent) WithPing(fn PingFunc) *LocalAgent {
	a.ping = fn
	return a
}

// Process calls the handler, converting panics into INTERNAL_ERROR.
func (a *LocalAgent) Process(ctx context.Context, req *types.AgentRequest) (resp *types.AgentResponse, err error) {
	defer func() {
		if r := recover(); r != nil {
			a.logger.Error("agent handler panicked",
				zap.Any("panic", r),
				zap.String("stack", string(debug.Stack())),
			)
			resp = nil
			err = types.NewError(types.ErrInternalError, fmt.Sprintf("agent %s panicked: %v", a.id, r)).
				WithTarget(a.id)
		}
	}()
	if a.handler == nil {
		return nil, types.NewError(types.ErrInternalError, "agent has no handler").WithTarget(a.id)
	}
	return a.handler(ctx, req)
}

// Ping runs the configured liveness check.
func (a *LocalAgent) Ping(ctx context.Context) error {
	if a.ping == nil {
		return ctx.Err()
	}
	return a.ping(ctx)
}
