package circuitbreaker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/types"
)

// State 熔断器状态
type State int

const (
	// StateClosed 关闭状态（正常工作）
	StateClosed State = iota
	// StateOpen 打开状态（熔断中）
	StateOpen
	// StateHalfOpen 半开状态（试探性恢复）
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config 熔断器配置
type Config struct {
	// Threshold 连续失败次数阈值（触发熔断）
	Threshold int

	// Cooldown 熔断持续时间（open_until = now + Cooldown）
	Cooldown time.Duration

	// HalfOpenMaxCalls 半开状态下允许的探测请求数
	HalfOpenMaxCalls int

	// IsFailure 判断 Call 返回的错误是否计入失败，nil 时使用 DefaultIsFailure
	IsFailure func(err error) bool

	// Now 时钟，测试中可注入
	Now func() time.Time

	// OnStateChange 状态变更回调（在锁外同步调用）
	OnStateChange func(target string, from, to State)
}

// DefaultConfig 返回默认配置
func DefaultConfig() Config {
	return Config{
		Threshold:        5,
		Cooldown:         60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// DefaultIsFailure 客户端错误（参数校验、未找到）不计入熔断失败
func DefaultIsFailure(err error) bool {
	if err == nil {
		return false
	}
	switch types.GetErrorCode(err) {
	case types.ErrValidation, types.ErrNotFound:
		return false
	default:
		return true
	}
}

func (c Config) withDefaults() Config {
	// 参数校验
	if c.Threshold <= 0 {
		c.Threshold = 5
	}
	if c.Cooldown <= 0 {
		c.Cooldown = 60 * time.Second
	}
	if c.HalfOpenMaxCalls <= 0 {
		c.HalfOpenMaxCalls = 1
	}
	if c.IsFailure == nil {
		c.IsFailure = DefaultIsFailure
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Snapshot 熔断器状态快照
type Snapshot struct {
	Target       string    `json:"target"`
	State        State     `json:"-"`
	StateName    string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	OpenUntil    time.Time `json:"open_until,omitempty"`
	LastFailure  time.Time `json:"last_failure,omitempty"`
}

// Breaker 单目标熔断器
type Breaker struct {
	target string
	config Config
	logger *zap.Logger

	mu                sync.Mutex
	state             State
	failureCount      int       // 连续失败次数
	openUntil         time.Time // 熔断截止时间
	lastFailure       time.Time
	halfOpenCallCount int // 半开状态下已放行的探测数
}

// New 创建熔断器
func New(target string, config Config, logger *zap.Logger) *Breaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Breaker{
		target: target,
		config: config.withDefaults(),
		logger: logger.With(zap.String("component", "circuit_breaker"), zap.String("target", target)),
		state:  StateClosed,
	}
}

// Target 返回熔断器保护的目标名
func (b *Breaker) Target() string { return b.target }

// Allow 判断是否放行请求。
// Open 状态在 now >= openUntil 时转入 HalfOpen 并放行本次请求作为探测。
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	var change *transition
	allowed := false

	switch b.state {
	case StateClosed:
		allowed = true

	case StateOpen:
		if !b.config.Now().Before(b.openUntil) {
			change = b.setState(StateHalfOpen)
			b.halfOpenCallCount = 1
			allowed = true
			b.logger.Info("熔断器进入半开状态")
		}

	case StateHalfOpen:
		if b.halfOpenCallCount < b.config.HalfOpenMaxCalls {
			b.halfOpenCallCount++
			allowed = true
		}
	}
	b.mu.Unlock()

	b.notify(change)
	return allowed
}

// RecordSuccess 重置失败计数并关闭熔断器
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	var change *transition
	if b.state != StateClosed {
		b.logger.Info("熔断器恢复正常",
			zap.String("from_state", b.state.String()),
		)
		change = b.setState(StateClosed)
	}
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()

	b.notify(change)
}

// RecordFailure 记录一次失败
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	var change *transition
	now := b.config.Now()
	b.failureCount++
	b.lastFailure = now

	switch b.state {
	case StateClosed:
		// 关闭状态，检查是否达到阈值
		if b.failureCount >= b.config.Threshold {
			b.openUntil = now.Add(b.config.Cooldown)
			b.logger.Warn("熔断器打开",
				zap.Int("failure_count", b.failureCount),
				zap.Int("threshold", b.config.Threshold),
				zap.Time("open_until", b.openUntil),
			)
			change = b.setState(StateOpen)
		}

	case StateHalfOpen:
		// 半开状态，探测失败后重新打开
		b.openUntil = now.Add(b.config.Cooldown)
		b.halfOpenCallCount = 0
		b.logger.Warn("熔断器半开状态探测失败，重新打开",
			zap.Time("open_until", b.openUntil),
		)
		change = b.setState(StateOpen)

	case StateOpen:
		// 熔断前已放行的请求回报失败，维持 openUntil 不变
		b.logger.Debug("熔断器打开状态收到失败响应")
	}
	b.mu.Unlock()

	b.notify(change)
}

// Call 在熔断保护下执行 fn。
// 熔断打开时返回 CIRCUIT_OPEN 错误且不执行 fn。
func (b *Breaker) Call(ctx context.Context, fn func(ctx context.Context) error) error {
	if !b.Allow() {
		return types.NewCircuitOpenError(b.target)
	}
	err := fn(ctx)
	if b.config.IsFailure(err) {
		b.RecordFailure()
	} else {
		b.RecordSuccess()
	}
	return err
}

// State 获取当前状态（不触发状态迁移）
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Snapshot 返回状态快照
func (b *Breaker) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Snapshot{
		Target:       b.target,
		State:        b.state,
		StateName:    b.state.String(),
		FailureCount: b.failureCount,
		OpenUntil:    b.openUntil,
		LastFailure:  b.lastFailure,
	}
}

// Reset 重置熔断器（手动恢复）
func (b *Breaker) Reset() {
	b.mu.Lock()
	oldState := b.state
	change := b.setState(StateClosed)
	b.failureCount = 0
	b.halfOpenCallCount = 0
	b.openUntil = time.Time{}
	b.mu.Unlock()

	b.logger.Info("熔断器已重置",
		zap.String("from_state", oldState.String()),
	)
	b.notify(change)
}

type transition struct {
	from, to State
}

// setState 设置状态，调用方持有锁；回调在锁外由 notify 触发
func (b *Breaker) setState(newState State) *transition {
	oldState := b.state
	b.state = newState
	if oldState == newState {
		return nil
	}
	return &transition{from: oldState, to: newState}
}

func (b *Breaker) notify(t *transition) {
	if t == nil || b.config.OnStateChange == nil {
		return
	}
	b.config.OnStateChange(b.target, t.from, t.to)
}
