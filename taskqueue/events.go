package taskqueue

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// EventType identifies a task lifecycle event.
type EventType string

const (
	EventTaskCompleted EventType = "task_completed"
	EventTaskFailed    EventType = "task_failed"
)

// Event carries a finished task's result.
type Event struct {
	Type      EventType
	Result    Result
	Timestamp time.Time
}

// EventHandler receives events on the bus goroutine.
type EventHandler func(Event)

// EventBus fans task events out to subscribers asynchronously.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[string]EventHandler
	nextID   atomic.Int64
	dropped  atomic.Int64

	publishTimeout time.Duration

	events   chan Event
	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
	logger   *zap.Logger
}

// EventBusOption configures an EventBus.
type EventBusOption func(*EventBus)

// WithPublishTimeout bounds how long Publish waits for buffer space before
// dropping the event. Zero drops immediately.
func WithPublishTimeout(d time.Duration) EventBusOption {
	return func(b *EventBus) { b.publishTimeout = d }
}

// NewEventBus starts a bus with the given buffer size. Publish waits up to
// one second for buffer space unless WithPublishTimeout says otherwise.
func NewEventBus(buffer int, logger *zap.Logger, opts ...EventBusOption) *EventBus {
	if logger == nil {
		logger = zap.NewNop()
	}
	if buffer <= 0 {
		buffer = 256
	}
	b := &EventBus{
		handlers: make(map[string]EventHandler),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
		logger:   logger.With(zap.String("component", "task_events")),

		publishTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	go b.run()
	return b
}

// Subscribe registers handler for every event and returns its id.
func (b *EventBus) Subscribe(handler EventHandler) string {
	id := fmt.Sprintf("sub-%d", b.nextID.Add(1))
	b.mu.Lock()
	b.handlers[id] = handler
	b.mu.Unlock()
	return id
}

// Unsubscribe removes a subscription.
func (b *EventBus) Unsubscribe(id string) {
	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
}

// Publish queues an event. When the buffer stays full for the publish
// timeout the event is dropped and counted.
func (b *EventBus) Publish(event Event) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- event:
		return
	default:
	}

	if b.publishTimeout > 0 {
		timer := time.NewTimer(b.publishTimeout)
		defer timer.Stop()
		select {
		case b.events <- event:
			return
		case <-b.done:
			return
		case <-timer.C:
		}
	}

	b.dropped.Add(1)
	b.logger.Warn("event buffer full, dropping event",
		zap.String("type", string(event.Type)),
		zap.String("task_id", event.Result.TaskID),
	)
}

// Dropped returns the number of events lost to a full buffer.
func (b *EventBus) Dropped() int64 { return b.dropped.Load() }

func (b *EventBus) run() {
	defer close(b.stopped)
	for {
		select {
		case ev := <-b.events:
			b.dispatch(ev)
		case <-b.done:
			// deliver what was already accepted
			for {
				select {
				case ev := <-b.events:
					b.dispatch(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *EventBus) dispatch(ev Event) {
	b.mu.RLock()
	handlers := make([]EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.logger.Error("event handler panicked", zap.Any("recover", r))
				}
			}()
			h(ev)
		}()
	}
}

// Stop delivers buffered events and stops the bus.
func (b *EventBus) Stop() {
	b.stopOnce.Do(func() { close(b.done) })
	<-b.stopped
}
