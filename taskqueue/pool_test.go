package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/orchestra/types"
)

func testPool(t *testing.T, cfg PoolConfig) *Pool {
	t.Helper()
	if cfg.DequeueTimeout == 0 {
		cfg.DequeueTimeout = 20 * time.Millisecond
	}
	p := NewPool(NewMemoryQueue(100), cfg, nil, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})
	return p
}

func TestPool_CompletesTask(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 2})
	p.RegisterHandler("echo", func(ctx context.Context, task *Task) (any, error) {
		id, ok := types.TaskID(ctx)
		if !ok || id != task.ID {
			return nil, errors.New("task id missing from context")
		}
		return task.Payload["msg"], nil
	})
	p.Start(context.Background())

	id, err := p.Submit(context.Background(), NewTask("echo", map[string]any{"msg": "hi"}))
	require.NoError(t, err)

	res, err := p.AwaitResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "hi", res.Result)
	assert.NotEmpty(t, res.WorkerID)
	assert.False(t, res.FinishedAt.IsZero())

	cached, ok := p.Result(id)
	require.True(t, ok)
	assert.Equal(t, res.TaskID, cached.TaskID)

	owner, ok := p.ClaimedBy(id)
	assert.True(t, ok)
	assert.Equal(t, res.WorkerID, owner)
}

func TestPool_UnknownTaskTypeFails(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1})

	events := make(chan Event, 1)
	p.Events().Subscribe(func(ev Event) { events <- ev })
	p.Start(context.Background())

	id, err := p.Submit(context.Background(), NewTask("nonexistent", nil))
	require.NoError(t, err)

	res, err := p.AwaitResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, types.ErrNotFound, res.ErrorCode)
	assert.Contains(t, res.Error, "nonexistent")

	select {
	case ev := <-events:
		assert.Equal(t, EventTaskFailed, ev.Type)
		assert.Equal(t, id, ev.Result.TaskID)
	case <-time.After(2 * time.Second):
		t.Fatal("task_failed event not published")
	}
}

func TestPool_HandlerPanicDoesNotKillWorker(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1})
	p.RegisterHandler("boom", func(context.Context, *Task) (any, error) { panic("kaboom") })
	p.RegisterHandler("echo", func(context.Context, *Task) (any, error) { return "ok", nil })
	p.Start(context.Background())

	bad, err := p.Submit(context.Background(), NewTask("boom", nil))
	require.NoError(t, err)
	good, err := p.Submit(context.Background(), NewTask("echo", nil))
	require.NoError(t, err)

	res, err := p.AwaitResult(context.Background(), bad, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, types.ErrInternalError, res.ErrorCode)
	assert.Contains(t, res.Error, "kaboom")

	res, err = p.AwaitResult(context.Background(), good, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
}

func TestPool_TaskTimeout(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1, TaskTimeout: 30 * time.Millisecond})
	p.RegisterHandler("slow", func(ctx context.Context, _ *Task) (any, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p.Start(context.Background())

	id, err := p.Submit(context.Background(), NewTask("slow", nil))
	require.NoError(t, err)

	res, err := p.AwaitResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, res.Status)
	assert.Equal(t, types.ErrTimeout, res.ErrorCode)
}

func TestPool_HandlerTypedError(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1})
	p.RegisterHandler("validate", func(context.Context, *Task) (any, error) {
		return nil, types.NewValidationError("payload missing target")
	})
	p.Start(context.Background())

	id, err := p.Submit(context.Background(), NewTask("validate", nil))
	require.NoError(t, err)
	res, err := p.AwaitResult(context.Background(), id, 2*time.Second)
	require.NoError(t, err)
	assert.Equal(t, types.ErrValidation, res.ErrorCode)
	assert.Equal(t, "payload missing target", res.Error)
}

func TestPool_AwaitResultTimeout(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1})
	release := make(chan struct{})
	p.RegisterHandler("wait", func(context.Context, *Task) (any, error) {
		<-release
		return nil, nil
	})
	p.Start(context.Background())
	defer close(release)

	id, err := p.Submit(context.Background(), NewTask("wait", nil))
	require.NoError(t, err)

	_, err = p.AwaitResult(context.Background(), id, 30*time.Millisecond)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrTimeout))
}

func TestPool_SubmitValidation(t *testing.T) {
	p := testPool(t, PoolConfig{Workers: 1})
	_, err := p.Submit(context.Background(), &Task{})
	assert.True(t, types.IsErrorCode(err, types.ErrValidation))
	assert.Equal(t, int64(1), p.Stats(context.Background()).Rejected)
}

func TestPool_ShutdownDrainsQueue(t *testing.T) {
	p := NewPool(NewMemoryQueue(100), PoolConfig{Workers: 2, DequeueTimeout: 20 * time.Millisecond}, nil, zap.NewNop())

	var done atomic.Int32
	p.RegisterHandler("work", func(context.Context, *Task) (any, error) {
		time.Sleep(5 * time.Millisecond)
		done.Add(1)
		return nil, nil
	})
	for i := 0; i < 10; i++ {
		_, err := p.Submit(context.Background(), NewTask("work", nil))
		require.NoError(t, err)
	}
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))

	assert.Equal(t, int32(10), done.Load())
	stats := p.Stats(context.Background())
	assert.Equal(t, int64(10), stats.Completed)
	assert.Equal(t, 0, stats.Workers)

	_, err := p.Submit(context.Background(), NewTask("work", nil))
	assert.ErrorIs(t, err, ErrPoolClosed)
}

func TestPool_ShutdownDeadlineCancelsHandlers(t *testing.T) {
	p := NewPool(NewMemoryQueue(10), PoolConfig{Workers: 1, DequeueTimeout: 20 * time.Millisecond}, nil, zap.NewNop())
	started := make(chan struct{})
	p.RegisterHandler("stuck", func(ctx context.Context, _ *Task) (any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})
	p.Start(context.Background())
	id, err := p.Submit(context.Background(), NewTask("stuck", nil))
	require.NoError(t, err)
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.Shutdown(ctx), context.DeadlineExceeded)

	res, ok := p.Result(id)
	require.True(t, ok)
	assert.Equal(t, StatusFailed, res.Status)
}

func TestPool_DuplicateDeliveryRunsOnce(t *testing.T) {
	q := NewMemoryQueue(10)
	p := NewPool(q, PoolConfig{Workers: 3, DequeueTimeout: 20 * time.Millisecond}, nil, zap.NewNop())

	var calls atomic.Int32
	p.RegisterHandler("once", func(context.Context, *Task) (any, error) {
		calls.Add(1)
		return nil, nil
	})

	task := NewTask("once", nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, q.Enqueue(context.Background(), task))
	}
	p.Start(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Shutdown(ctx))
	assert.Equal(t, int32(1), calls.Load())
}

func TestProperty_ClaimIsExclusive(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		workers := rapid.IntRange(2, 16).Draw(rt, "workers")
		tasks := rapid.IntRange(1, 20).Draw(rt, "tasks")

		p := NewPool(NewMemoryQueue(1), PoolConfig{}, nil, zap.NewNop())
		defer p.Events().Stop()

		wins := make([]atomic.Int32, tasks)
		var wg sync.WaitGroup
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				for i := 0; i < tasks; i++ {
					if p.claim(fmt.Sprintf("task-%d", i), fmt.Sprintf("worker-%d", w)) {
						wins[i].Add(1)
					}
				}
			}(w)
		}
		wg.Wait()

		for i := range wins {
			if got := wins[i].Load(); got != 1 {
				rt.Fatalf("task-%d claimed %d times", i, got)
			}
		}
	})
}
