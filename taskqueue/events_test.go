package taskqueue

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestEventBus_DeliversToSubscribers(t *testing.T) {
	bus := NewEventBus(8, zap.NewNop())

	var mu sync.Mutex
	var got []EventType
	id := bus.Subscribe(func(ev Event) {
		mu.Lock()
		got = append(got, ev.Type)
		mu.Unlock()
	})
	bus.Subscribe(func(Event) { panic("bad subscriber") })

	bus.Publish(Event{Type: EventTaskCompleted, Timestamp: time.Now()})
	bus.Publish(Event{Type: EventTaskFailed, Timestamp: time.Now()})
	bus.Stop()

	mu.Lock()
	assert.Equal(t, []EventType{EventTaskCompleted, EventTaskFailed}, got)
	mu.Unlock()

	bus.Unsubscribe(id)
	bus.Publish(Event{Type: EventTaskCompleted})
}

// blockedBus returns a bus whose only subscriber is stuck in its first
// event, with the one-slot buffer already full.
func blockedBus(t *testing.T, opts ...EventBusOption) (*EventBus, chan struct{}, *atomic.Int32) {
	t.Helper()
	bus := NewEventBus(1, zap.NewNop(), opts...)
	release := make(chan struct{})
	entered := make(chan struct{}, 1)
	var delivered atomic.Int32
	bus.Subscribe(func(Event) {
		select {
		case entered <- struct{}{}:
		default:
		}
		<-release
		delivered.Add(1)
	})

	bus.Publish(Event{Type: EventTaskCompleted})
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber never received the first event")
	}
	bus.Publish(Event{Type: EventTaskCompleted})
	return bus, release, &delivered
}

func TestEventBus_DropsWhenBufferStaysFull(t *testing.T) {
	bus, release, delivered := blockedBus(t, WithPublishTimeout(10*time.Millisecond))

	start := time.Now()
	bus.Publish(Event{Type: EventTaskFailed, Result: Result{TaskID: "lost"}})
	assert.GreaterOrEqual(t, time.Since(start), 10*time.Millisecond)
	assert.Equal(t, int64(1), bus.Dropped())

	close(release)
	bus.Stop()
	assert.Equal(t, int32(2), delivered.Load())
}

func TestEventBus_PublishWaitsForBufferSpace(t *testing.T) {
	bus, release, delivered := blockedBus(t, WithPublishTimeout(2*time.Second))

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(release)
	}()
	bus.Publish(Event{Type: EventTaskFailed})
	bus.Stop()

	assert.Zero(t, bus.Dropped())
	assert.Equal(t, int32(3), delivered.Load())
}
