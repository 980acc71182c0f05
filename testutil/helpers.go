// =============================================================================
// 🧪 测试辅助函数
// =============================================================================
// 并发组件（工作池、健康巡检、事件总线）的测试需要等待异步状态，
// 这里集中提供带超时的 context 和轮询等待工具
//
// 使用方法:
//
//	ctx := testutil.TestContext(t)
//	testutil.AssertEventuallyTrue(t, func() bool { return pool.Stats(ctx).Completed == 1 }, time.Second)
// =============================================================================
package testutil

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// defaultTestTimeout 单个测试上下文的最长存活时间
const defaultTestTimeout = 10 * time.Second

// pollInterval 轮询等待的间隔
const pollInterval = 5 * time.Millisecond

// TestContext 返回测试结束时自动取消的上下文，
// 截止时间取 defaultTestTimeout 与 go test -timeout 中较早者
func TestContext(t *testing.T) context.Context {
	t.Helper()
	deadline := time.Now().Add(defaultTestTimeout)
	if d, ok := t.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	ctx, cancel := context.WithDeadline(context.Background(), deadline)
	t.Cleanup(cancel)
	return ctx
}

// WaitFor 轮询 condition 直到为真或超时，返回最后一次结果
func WaitFor(condition func() bool, timeout time.Duration) bool {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		if condition() {
			return true
		}
		select {
		case <-ticker.C:
		case <-timer.C:
			return condition()
		}
	}
}

// WaitForChannel 等待通道接收一个值或通道关闭，超时返回 false
func WaitForChannel[T any](ch <-chan T, timeout time.Duration) (T, bool) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case v := <-ch:
		return v, true
	case <-timer.C:
		var zero T
		return zero, false
	}
}

// AssertEventuallyTrue 断言 condition 在 timeout 内变为真
func AssertEventuallyTrue(t *testing.T, condition func() bool, timeout time.Duration, msgAndArgs ...any) bool {
	t.Helper()
	return assert.Eventually(t, condition, timeout, pollInterval, msgAndArgs...)
}
