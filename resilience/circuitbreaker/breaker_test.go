package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/types"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int, cooldown time.Duration, clock *fakeClock) *Breaker {
	return New("target", Config{
		Threshold: threshold,
		Cooldown:  cooldown,
		Now:       clock.Now,
	}, zap.NewNop())
}

// ---------------------------------------------------------------------------
// DefaultConfig
// ---------------------------------------------------------------------------

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, 5, cfg.Threshold)
	assert.Equal(t, 60*time.Second, cfg.Cooldown)
	assert.Equal(t, 1, cfg.HalfOpenMaxCalls)
	assert.Nil(t, cfg.OnStateChange)
}

func TestNew_ZeroValuesCorrected(t *testing.T) {
	cb := New("x", Config{Threshold: 0, Cooldown: -1, HalfOpenMaxCalls: -1}, nil)
	assert.Equal(t, 5, cb.config.Threshold)
	assert.Equal(t, 60*time.Second, cb.config.Cooldown)
	assert.Equal(t, 1, cb.config.HalfOpenMaxCalls)
	assert.NotNil(t, cb.config.Now)
	assert.Equal(t, StateClosed, cb.State())
}

// ---------------------------------------------------------------------------
// State machine
// ---------------------------------------------------------------------------

func TestBreaker_OpensAtThreshold(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(3, 10*time.Second, clock)

	for i := 0; i < 2; i++ {
		cb.RecordFailure()
		assert.True(t, cb.Allow(), "failure %d below threshold must allow", i+1)
	}
	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.False(t, cb.Allow())

	snap := cb.Snapshot()
	assert.Equal(t, 3, snap.FailureCount)
	assert.Equal(t, clock.Now().Add(10*time.Second), snap.OpenUntil)
	assert.Equal(t, "open", snap.StateName)
}

func TestBreaker_HalfOpenSingleProbe(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, 10*time.Second, clock)

	cb.RecordFailure()
	clock.Advance(9 * time.Second)
	assert.False(t, cb.Allow())

	clock.Advance(time.Second)
	assert.True(t, cb.Allow(), "probe allowed once cooldown elapsed")
	assert.Equal(t, StateHalfOpen, cb.State())
	assert.False(t, cb.Allow(), "only one probe in half-open")
}

func TestBreaker_ProbeSuccessCloses(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(2, time.Second, clock)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(time.Second)
	require.True(t, cb.Allow())

	cb.RecordSuccess()
	assert.Equal(t, StateClosed, cb.State())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
	assert.True(t, cb.Allow())
	assert.True(t, cb.Allow())
}

func TestBreaker_ProbeFailureReopens(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(2, 5*time.Second, clock)

	cb.RecordFailure()
	cb.RecordFailure()
	clock.Advance(5 * time.Second)
	require.True(t, cb.Allow())

	cb.RecordFailure()
	assert.Equal(t, StateOpen, cb.State())
	assert.Equal(t, clock.Now().Add(5*time.Second), cb.Snapshot().OpenUntil)
	assert.False(t, cb.Allow())

	clock.Advance(5 * time.Second)
	assert.True(t, cb.Allow())
}

func TestBreaker_SuccessResetsStreak(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(3, time.Second, clock)

	cb.RecordFailure()
	cb.RecordFailure()
	cb.RecordSuccess()
	cb.RecordFailure()
	cb.RecordFailure()
	assert.Equal(t, StateClosed, cb.State())
}

func TestBreaker_OnStateChange(t *testing.T) {
	clock := newFakeClock()
	var transitions []string
	cb := New("redis", Config{
		Threshold: 1,
		Cooldown:  time.Second,
		Now:       clock.Now,
		OnStateChange: func(target string, from, to State) {
			transitions = append(transitions, target+":"+from.String()+"->"+to.String())
		},
	}, zap.NewNop())

	cb.RecordFailure()
	clock.Advance(time.Second)
	cb.Allow()
	cb.RecordSuccess()

	assert.Equal(t, []string{
		"redis:closed->open",
		"redis:open->half_open",
		"redis:half_open->closed",
	}, transitions)
}

func TestBreaker_Reset(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, time.Hour, clock)
	cb.RecordFailure()
	require.False(t, cb.Allow())

	cb.Reset()
	assert.True(t, cb.Allow())
	assert.Equal(t, 0, cb.Snapshot().FailureCount)
}

// ---------------------------------------------------------------------------
// Call
// ---------------------------------------------------------------------------

func TestBreaker_Call(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(2, time.Minute, clock)
	ctx := context.Background()
	boom := errors.New("boom")

	require.ErrorIs(t, cb.Call(ctx, func(context.Context) error { return boom }), boom)
	require.ErrorIs(t, cb.Call(ctx, func(context.Context) error { return boom }), boom)

	called := false
	err := cb.Call(ctx, func(context.Context) error {
		called = true
		return nil
	})
	assert.False(t, called, "fn must not run while open")
	assert.True(t, types.IsErrorCode(err, types.ErrCircuitOpen))
}

func TestBreaker_Call_ClientErrorsNotCounted(t *testing.T) {
	clock := newFakeClock()
	cb := newTestBreaker(1, time.Minute, clock)

	err := cb.Call(context.Background(), func(context.Context) error {
		return types.NewValidationError("bad payload")
	})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	assert.Equal(t, StateClosed, cb.State())
}

func TestCallWithResultTyped(t *testing.T) {
	cb := New("typed", DefaultConfig(), zap.NewNop())
	got, err := CallWithResultTyped(cb, context.Background(), func(context.Context) (int, error) {
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, got)

	_, err = CallWithResultTyped(cb, context.Background(), func(context.Context) (string, error) {
		return "ignored", errors.New("fail")
	})
	assert.Error(t, err)
}

func TestBreaker_ConcurrentAccess(t *testing.T) {
	cb := New("concurrent", Config{Threshold: 1000, Cooldown: time.Second}, zap.NewNop())
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			if cb.Allow() {
				if i%2 == 0 {
					cb.RecordFailure()
				} else {
					cb.RecordSuccess()
				}
			}
			_ = cb.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, StateClosed, cb.State())
}
