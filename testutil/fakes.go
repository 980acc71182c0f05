package testutil

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/orchestra/types"
)

// =============================================================================
// ⏰ 假时钟
// =============================================================================

// FakeClock 可手动推进的时钟，Now 可直接注入各组件 Config.Now
type FakeClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewFakeClock 创建固定起点的假时钟
func NewFakeClock() *FakeClock {
	return &FakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

// Now 返回当前假时间
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance 推进时钟
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// =============================================================================
// 🤖 脚本化 Agent
// =============================================================================

// Step 一次 Process 调用的脚本结果
type Step struct {
	Response *types.AgentResponse
	Err      error
	Delay    time.Duration
}

// ScriptedAgent 按脚本依次返回结果的假 Agent，满足 agent.Agent 接口。
// 脚本用尽后重复最后一步；空脚本返回成功。
type ScriptedAgent struct {
	mu       sync.Mutex
	script   []Step
	requests []*types.AgentRequest
	pingErr  error
	pingWait time.Duration

	calls atomic.Int32
	pings atomic.Int32
}

// NewScriptedAgent 创建脚本化 Agent
func NewScriptedAgent(steps ...Step) *ScriptedAgent {
	return &ScriptedAgent{script: steps}
}

// SucceedingAgent 每次都返回 result 的 Agent
func SucceedingAgent(result any) *ScriptedAgent {
	return NewScriptedAgent(Step{Response: &types.AgentResponse{Status: types.StatusSuccess, Result: result}})
}

// FailingAgent 每次都返回 err 的 Agent
func FailingAgent(err error) *ScriptedAgent {
	return NewScriptedAgent(Step{Err: err})
}

// SetPingError 设置 Ping 返回的错误
func (a *ScriptedAgent) SetPingError(err error) {
	a.mu.Lock()
	a.pingErr = err
	a.mu.Unlock()
}

// SetPingDelay 设置 Ping 延迟
func (a *ScriptedAgent) SetPingDelay(d time.Duration) {
	a.mu.Lock()
	a.pingWait = d
	a.mu.Unlock()
}

// Process 实现 agent.Agent
func (a *ScriptedAgent) Process(ctx context.Context, req *types.AgentRequest) (*types.AgentResponse, error) {
	n := int(a.calls.Add(1))

	a.mu.Lock()
	a.requests = append(a.requests, req)
	var step Step
	if len(a.script) > 0 {
		idx := n - 1
		if idx >= len(a.script) {
			idx = len(a.script) - 1
		}
		step = a.script[idx]
	} else {
		step = Step{Response: &types.AgentResponse{Status: types.StatusSuccess}}
	}
	a.mu.Unlock()

	if step.Delay > 0 {
		timer := time.NewTimer(step.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, types.NewTimeoutError("scripted agent timed out", ctx.Err())
		case <-timer.C:
		}
	}
	if step.Err != nil {
		return nil, step.Err
	}
	if step.Response == nil {
		return nil, nil
	}
	resp := *step.Response
	resp.RequestID = req.RequestID
	resp.AgentType = req.AgentType
	return &resp, nil
}

// Ping 实现 agent.Agent
func (a *ScriptedAgent) Ping(ctx context.Context) error {
	a.pings.Add(1)
	a.mu.Lock()
	err, wait := a.pingErr, a.pingWait
	a.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return err
}

// Calls 返回 Process 调用次数
func (a *ScriptedAgent) Calls() int { return int(a.calls.Load()) }

// Pings 返回 Ping 调用次数
func (a *ScriptedAgent) Pings() int { return int(a.pings.Load()) }

// Requests 返回收到的请求副本
func (a *ScriptedAgent) Requests() []*types.AgentRequest {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]*types.AgentRequest, len(a.requests))
	copy(out, a.requests)
	return out
}
