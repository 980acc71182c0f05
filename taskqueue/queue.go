package taskqueue

import (
	"context"
	"errors"
	"sync"
	"time"
)

var (
	ErrQueueClosed = errors.New("task queue is closed")
	ErrQueueFull   = errors.New("task queue is full")
)

// Queue is a FIFO of pending tasks shared by the pool's workers.
type Queue interface {
	Enqueue(ctx context.Context, task *Task) error
	// Dequeue waits up to timeout for a task. It returns (nil, nil) when
	// the wait times out.
	Dequeue(ctx context.Context, timeout time.Duration) (*Task, error)
	Len(ctx context.Context) (int, error)
	Close() error
}

// MemoryQueue is a bounded in-process queue.
type MemoryQueue struct {
	ch        chan *Task
	done      chan struct{}
	closeOnce sync.Once
}

// NewMemoryQueue creates a queue holding at most size pending tasks.
func NewMemoryQueue(size int) *MemoryQueue {
	if size <= 0 {
		size = 1000
	}
	return &MemoryQueue{
		ch:   make(chan *Task, size),
		done: make(chan struct{}),
	}
}

// Enqueue adds a task without blocking. A full queue returns ErrQueueFull.
func (q *MemoryQueue) Enqueue(ctx context.Context, task *Task) error {
	select {
	case <-q.done:
		return ErrQueueClosed
	default:
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	select {
	case q.ch <- task:
		return nil
	default:
		return ErrQueueFull
	}
}

// Dequeue implements Queue. Pending tasks are still handed out after Close.
func (q *MemoryQueue) Dequeue(ctx context.Context, timeout time.Duration) (*Task, error) {
	select {
	case t := <-q.ch:
		return t, nil
	default:
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case t := <-q.ch:
		return t, nil
	case <-timer.C:
		return nil, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.done:
		select {
		case t := <-q.ch:
			return t, nil
		default:
			return nil, ErrQueueClosed
		}
	}
}

// Len implements Queue.
func (q *MemoryQueue) Len(context.Context) (int, error) {
	return len(q.ch), nil
}

// Close stops accepting tasks.
func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.done) })
	return nil
}
