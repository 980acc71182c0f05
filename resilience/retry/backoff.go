package retry

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/types"
)

// Policy 定义重试策略配置
type Policy struct {
	MaxAttempts  int           // 最大执行次数（含首次，至少为 1）
	InitialDelay time.Duration // 第一次重试前的延迟
	MaxDelay     time.Duration // 最大延迟时间
	Multiplier   float64       // 延迟时间倍增因子（指数退避）
	Jitter       bool          // 是否添加 ±25% 随机抖动

	// Classifier 判断错误是否可重试，nil 时使用 types.IsRetryable
	Classifier func(err error) bool

	// OnRetry 重试回调，attempt 为即将执行的尝试序号（从 2 开始）
	OnRetry func(attempt int, err error, delay time.Duration)
}

// DefaultPolicy 返回默认的重试策略：3 次尝试，1s 起步指数退避
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:  3,
		InitialDelay: 1 * time.Second,
		MaxDelay:     30 * time.Second,
		Multiplier:   2.0,
	}
}

// ExhaustedError 所有尝试均失败，Last 为最后一次观察到的错误
type ExhaustedError struct {
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("重试 %d 次后仍失败: %v", e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Last
}

// Retryer 基于指数退避的重试器
type Retryer struct {
	policy Policy
	logger *zap.Logger
}

// NewBackoffRetryer 创建指数退避重试器
func NewBackoffRetryer(policy Policy, logger *zap.Logger) *Retryer {
	if logger == nil {
		logger = zap.NewNop()
	}

	// 参数校验
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}
	if policy.InitialDelay < 0 {
		policy.InitialDelay = 0
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 30 * time.Second
	}
	if policy.Multiplier < 1.0 {
		policy.Multiplier = 2.0
	}
	if policy.Classifier == nil {
		policy.Classifier = types.IsRetryable
	}

	return &Retryer{
		policy: policy,
		logger: logger.With(zap.String("component", "retry")),
	}
}

// Policy 返回校验后的策略副本
func (r *Retryer) Policy() Policy {
	return r.policy
}

// Do 执行函数，失败时根据策略重试
func (r *Retryer) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	_, err := r.DoWithResult(ctx, func(ctx context.Context) (any, error) {
		return nil, fn(ctx)
	})
	return err
}

// DoWithResult 执行函数并返回结果。
// fn 至少执行一次、至多 MaxAttempts 次；尚有剩余次数时遇到不可重试的错误原样返回，
// 最后一次失败包装为 *ExhaustedError。
func (r *Retryer) DoWithResult(ctx context.Context, fn func(ctx context.Context) (any, error)) (any, error) {
	var lastErr error

	for attempt := 1; attempt <= r.policy.MaxAttempts; attempt++ {
		// 第一次执行不延迟
		if attempt > 1 {
			delay := r.Delay(attempt - 2)

			r.logger.Debug("重试中",
				zap.Int("attempt", attempt),
				zap.Int("max_attempts", r.policy.MaxAttempts),
				zap.Duration("delay", delay),
				zap.Error(lastErr),
			)

			if r.policy.OnRetry != nil {
				r.policy.OnRetry(attempt, lastErr, delay)
			}

			// 等待延迟，同时监听 context 取消
			if err := sleep(ctx, delay); err != nil {
				return nil, fmt.Errorf("重试被取消: %w", err)
			}
		}

		result, err := fn(ctx)
		if err == nil {
			if attempt > 1 {
				r.logger.Info("重试成功", zap.Int("attempt", attempt))
			}
			return result, nil
		}
		lastErr = err

		// 最后一次尝试不再询问分类器
		if attempt == r.policy.MaxAttempts {
			break
		}

		// 检查是否可重试
		if !r.policy.Classifier(err) {
			r.logger.Debug("错误不可重试", zap.Error(err))
			return result, err
		}
	}

	r.logger.Warn("重试次数耗尽",
		zap.Int("attempts", r.policy.MaxAttempts),
		zap.Error(lastErr),
	)
	return nil, &ExhaustedError{Attempts: r.policy.MaxAttempts, Last: lastErr}
}

// Delay 返回第 failureIndex 次失败（从 0 开始）之后的等待时间：
// InitialDelay * Multiplier^failureIndex，受 MaxDelay 限制。
func (r *Retryer) Delay(failureIndex int) time.Duration {
	delay := float64(r.policy.InitialDelay) * math.Pow(r.policy.Multiplier, float64(failureIndex))

	// 限制最大延迟
	if delay > float64(r.policy.MaxDelay) {
		delay = float64(r.policy.MaxDelay)
	}

	if r.policy.Jitter {
		jitter := delay * 0.25
		delay = delay + (rand.Float64()*2-1)*jitter
		if delay < 0 {
			delay = 0
		}
	}

	return time.Duration(delay)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
