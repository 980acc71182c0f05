package taskqueue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/types"
)

// ErrPoolClosed is returned by Submit once Shutdown has begun.
var ErrPoolClosed = errors.New("worker pool is shutting down")

// Handler executes one task type.
type Handler func(ctx context.Context, task *Task) (any, error)

// PoolConfig configures the worker pool.
type PoolConfig struct {
	Workers         int              `json:"workers"`
	DequeueTimeout  time.Duration    `json:"dequeue_timeout"`
	TaskTimeout     time.Duration    `json:"task_timeout"`
	ResultRetention time.Duration    `json:"result_retention"`
	EventBuffer     int              `json:"event_buffer"`
	Now             func() time.Time `json:"-"`
}

// DefaultPoolConfig returns sensible defaults.
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         4,
		DequeueTimeout:  time.Second,
		TaskTimeout:     5 * time.Minute,
		ResultRetention: 10 * time.Minute,
		EventBuffer:     256,
	}
}

func (c PoolConfig) withDefaults() PoolConfig {
	d := DefaultPoolConfig()
	if c.Workers <= 0 {
		c.Workers = d.Workers
	}
	if c.DequeueTimeout <= 0 {
		c.DequeueTimeout = d.DequeueTimeout
	}
	if c.TaskTimeout <= 0 {
		c.TaskTimeout = d.TaskTimeout
	}
	if c.ResultRetention <= 0 {
		c.ResultRetention = d.ResultRetention
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = d.EventBuffer
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// Stats contains pool statistics.
type Stats struct {
	Workers   int   `json:"workers"`
	Active    int   `json:"active"`
	Queued    int   `json:"queued"`
	Submitted int64 `json:"submitted"`
	Completed int64 `json:"completed"`
	Failed    int64 `json:"failed"`
	Rejected  int64 `json:"rejected"`
}

type storedResult struct {
	result Result
	expiry time.Time
}

// Pool runs a fixed set of workers that pull tasks from a Queue and
// dispatch them to handlers registered by task type.
type Pool struct {
	config  PoolConfig
	queue   Queue
	events  *EventBus
	metrics *metrics.Collector
	logger  *zap.Logger

	handlersMu sync.RWMutex
	handlers   map[string]Handler

	mu      sync.Mutex
	claims  map[string]string
	results map[string]storedResult
	waiters map[string][]chan Result

	started  atomic.Bool
	closing  atomic.Bool
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	workers  atomic.Int32
	inFlight atomic.Int32

	submitted atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	rejected  atomic.Int64
}

// NewPool creates a pool over queue. The pool owns the queue and closes it
// on Shutdown.
func NewPool(queue Queue, config PoolConfig, collector *metrics.Collector, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	config = config.withDefaults()
	logger = logger.With(zap.String("component", "worker_pool"))
	return &Pool{
		config:   config,
		queue:    queue,
		events:   NewEventBus(config.EventBuffer, logger),
		metrics:  collector,
		logger:   logger,
		handlers: make(map[string]Handler),
		claims:   make(map[string]string),
		results:  make(map[string]storedResult),
		waiters:  make(map[string][]chan Result),
	}
}

// Events returns the task lifecycle bus.
func (p *Pool) Events() *EventBus { return p.events }

// RegisterHandler binds handler to taskType, replacing any previous one.
func (p *Pool) RegisterHandler(taskType string, handler Handler) {
	p.handlersMu.Lock()
	p.handlers[taskType] = handler
	p.handlersMu.Unlock()
	p.logger.Debug("task handler registered", zap.String("task_type", taskType))
}

func (p *Pool) handler(taskType string) (Handler, bool) {
	p.handlersMu.RLock()
	defer p.handlersMu.RUnlock()
	h, ok := p.handlers[taskType]
	return h, ok
}

// Start launches the workers. Calling Start twice is a no-op.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	for i := 0; i < p.config.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d", i+1)
		p.wg.Add(1)
		p.workers.Add(1)
		go p.worker(runCtx, workerID)
	}
	p.logger.Info("worker pool started", zap.Int("workers", p.config.Workers))
}

// Submit enqueues a task and returns its id. Tasks of unregistered types
// are accepted and fail when a worker picks them up.
func (p *Pool) Submit(ctx context.Context, task *Task) (string, error) {
	if p.closing.Load() {
		p.rejected.Add(1)
		return "", ErrPoolClosed
	}
	if task == nil || task.Type == "" {
		p.rejected.Add(1)
		return "", types.NewValidationError("task type is required")
	}
	if task.ID == "" {
		task.ID = uuid.NewString()
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = p.config.Now()
	}
	if task.Payload == nil {
		task.Payload = map[string]any{}
	}

	if err := p.queue.Enqueue(ctx, task); err != nil {
		p.rejected.Add(1)
		return "", fmt.Errorf("enqueue task %s: %w", task.ID, err)
	}
	p.submitted.Add(1)
	p.updateQueueDepth(ctx)

	p.logger.Debug("task submitted",
		zap.String("task_id", task.ID),
		zap.String("task_type", task.Type),
	)
	return task.ID, nil
}

func (p *Pool) updateQueueDepth(ctx context.Context) {
	if p.metrics == nil {
		return
	}
	if n, err := p.queue.Len(ctx); err == nil {
		p.metrics.SetQueueDepth(n)
	}
}

func (p *Pool) worker(ctx context.Context, workerID string) {
	defer p.wg.Done()
	defer p.workers.Add(-1)

	log := p.logger.With(zap.String("worker_id", workerID))
	log.Debug("worker started")

	for {
		if ctx.Err() != nil {
			return
		}
		task, err := p.queue.Dequeue(ctx, p.config.DequeueTimeout)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) || ctx.Err() != nil {
				return
			}
			log.Warn("dequeue failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.config.DequeueTimeout):
			}
			continue
		}
		if task == nil {
			if p.closing.Load() {
				log.Debug("queue drained, worker exiting")
				return
			}
			continue
		}
		if !p.claim(task.ID, workerID) {
			log.Warn("task already claimed, skipping duplicate delivery", zap.String("task_id", task.ID))
			continue
		}

		p.inFlight.Add(1)
		result := p.execute(ctx, workerID, task)
		p.inFlight.Add(-1)
		p.finish(result)
	}
}

// claim records workerID as the owner of taskID. It fails when the task
// is already owned.
func (p *Pool) claim(taskID, workerID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, taken := p.claims[taskID]; taken {
		return false
	}
	p.claims[taskID] = workerID
	return true
}

// ClaimedBy returns the worker that claimed taskID.
func (p *Pool) ClaimedBy(taskID string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	w, ok := p.claims[taskID]
	return w, ok
}

func (p *Pool) execute(ctx context.Context, workerID string, task *Task) (result Result) {
	start := time.Now()
	result = Result{TaskID: task.ID, Type: task.Type, WorkerID: workerID}

	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("task handler panicked",
				zap.String("task_id", task.ID),
				zap.String("task_type", task.Type),
				zap.Any("recover", r),
			)
			result.Status = StatusFailed
			result.Result = nil
			result.Error = fmt.Sprintf("task handler panicked: %v", r)
			result.ErrorCode = types.ErrInternalError
		}
		result.Duration = time.Since(start)
		result.FinishedAt = p.config.Now()
	}()

	h, ok := p.handler(task.Type)
	if !ok {
		result.Status = StatusFailed
		result.Error = fmt.Sprintf("no handler registered for task type '%s'", task.Type)
		result.ErrorCode = types.ErrNotFound
		return result
	}

	taskCtx, cancel := context.WithTimeout(types.WithTaskID(ctx, task.ID), p.config.TaskTimeout)
	defer cancel()

	out, err := h(taskCtx, task)
	if err == nil && errors.Is(taskCtx.Err(), context.DeadlineExceeded) {
		err = taskCtx.Err()
	}
	if err != nil {
		result.Status = StatusFailed
		result.ErrorCode = types.GetErrorCode(err)
		if e, ok := types.AsError(err); ok {
			result.Error = e.Message
		} else if errors.Is(err, context.DeadlineExceeded) {
			result.Error = fmt.Sprintf("task exceeded timeout of %s", p.config.TaskTimeout)
		} else {
			result.Error = err.Error()
		}
		return result
	}
	result.Status = StatusCompleted
	result.Result = out
	return result
}

func (p *Pool) finish(result Result) {
	eventType := EventTaskCompleted
	if result.Status == StatusCompleted {
		p.completed.Add(1)
		p.logger.Debug("task completed",
			zap.String("task_id", result.TaskID),
			zap.String("worker_id", result.WorkerID),
			zap.Duration("duration", result.Duration),
		)
	} else {
		eventType = EventTaskFailed
		p.failed.Add(1)
		p.logger.Warn("task failed",
			zap.String("task_id", result.TaskID),
			zap.String("task_type", result.Type),
			zap.String("error_code", string(result.ErrorCode)),
			zap.String("error", result.Error),
		)
	}
	p.metrics.RecordTask(result.Type, string(result.Status), result.Duration)

	now := p.config.Now()
	p.mu.Lock()
	p.pruneLocked(now)
	p.results[result.TaskID] = storedResult{result: result, expiry: now.Add(p.config.ResultRetention)}
	waiters := p.waiters[result.TaskID]
	delete(p.waiters, result.TaskID)
	p.mu.Unlock()

	for _, w := range waiters {
		w <- result
	}
	p.events.Publish(Event{Type: eventType, Result: result, Timestamp: now})
}

func (p *Pool) pruneLocked(now time.Time) {
	for id, sr := range p.results {
		if now.After(sr.expiry) {
			delete(p.results, id)
			delete(p.claims, id)
		}
	}
}

// Result returns a retained result without waiting.
func (p *Pool) Result(taskID string) (Result, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	sr, ok := p.results[taskID]
	if !ok || p.config.Now().After(sr.expiry) {
		return Result{}, false
	}
	return sr.result, true
}

// AwaitResult waits until taskID finishes. Exceeding timeout yields a
// TIMEOUT error.
func (p *Pool) AwaitResult(ctx context.Context, taskID string, timeout time.Duration) (*Result, error) {
	p.mu.Lock()
	if sr, ok := p.results[taskID]; ok {
		p.mu.Unlock()
		r := sr.result
		return &r, nil
	}
	ch := make(chan Result, 1)
	p.waiters[taskID] = append(p.waiters[taskID], ch)
	p.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case r := <-ch:
		return &r, nil
	case <-timer.C:
		p.dropWaiter(taskID, ch)
		return nil, types.NewTimeoutError(fmt.Sprintf("task %s did not finish within %s", taskID, timeout), nil).
			WithTarget(taskID)
	case <-ctx.Done():
		p.dropWaiter(taskID, ch)
		return nil, ctx.Err()
	}
}

func (p *Pool) dropWaiter(taskID string, ch chan Result) {
	p.mu.Lock()
	defer p.mu.Unlock()
	ws := p.waiters[taskID]
	for i, w := range ws {
		if w == ch {
			p.waiters[taskID] = append(ws[:i], ws[i+1:]...)
			break
		}
	}
	if len(p.waiters[taskID]) == 0 {
		delete(p.waiters, taskID)
	}
}

// Stats returns pool statistics.
func (p *Pool) Stats(ctx context.Context) Stats {
	queued, _ := p.queue.Len(ctx)
	return Stats{
		Workers:   int(p.workers.Load()),
		Active:    int(p.inFlight.Load()),
		Queued:    queued,
		Submitted: p.submitted.Load(),
		Completed: p.completed.Load(),
		Failed:    p.failed.Load(),
		Rejected:  p.rejected.Load(),
	}
}

// Shutdown stops accepting tasks, lets workers drain the queue and finish
// in-flight tasks, then closes the queue and the event bus. If ctx ends
// first, running handlers are cancelled and ctx's error is returned.
func (p *Pool) Shutdown(ctx context.Context) error {
	if p.closing.Swap(true) {
		return nil
	}
	p.logger.Info("worker pool shutting down")

	var err error
	if p.started.Load() {
		drained := make(chan struct{})
		go func() {
			p.wg.Wait()
			close(drained)
		}()

		select {
		case <-drained:
		case <-ctx.Done():
			err = ctx.Err()
			p.logger.Warn("shutdown deadline reached, cancelling in-flight tasks",
				zap.Int32("in_flight", p.inFlight.Load()),
			)
			p.cancel()
			<-drained
		}
		p.cancel()
	}

	if cerr := p.queue.Close(); cerr != nil && err == nil {
		err = cerr
	}
	p.events.Stop()
	p.logger.Info("worker pool stopped",
		zap.Int64("completed", p.completed.Load()),
		zap.Int64("failed", p.failed.Load()),
	)
	return err
}
