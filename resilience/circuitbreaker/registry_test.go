package circuitbreaker

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestRegistry_GetOrCreate(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())

	a := r.Get("research_agent")
	b := r.Get("research_agent")
	assert.Same(t, a, b)
	assert.NotSame(t, a, r.Get("network_agent"))
}

func TestRegistry_ConcurrentGet(t *testing.T) {
	r := NewRegistry(DefaultConfig(), zap.NewNop())
	results := make([]*Breaker, 20)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = r.Get("shared")
		}(i)
	}
	wg.Wait()
	for _, cb := range results {
		assert.Same(t, results[0], cb)
	}
}

func TestRegistry_PerTargetIsolation(t *testing.T) {
	clock := newFakeClock()
	r := NewRegistry(Config{Threshold: 2, Cooldown: time.Minute, Now: clock.Now}, zap.NewNop())

	r.RecordFailure("redis")
	r.RecordFailure("redis")
	assert.False(t, r.Allow("redis"))
	assert.True(t, r.Allow("postgres"))

	r.RecordSuccess("redis")
	assert.True(t, r.Allow("redis"))
}

func TestRegistry_ConfigureInheritsCallbacks(t *testing.T) {
	clock := newFakeClock()
	var opened []string
	r := NewRegistry(Config{
		Now: clock.Now,
		OnStateChange: func(target string, _, to State) {
			if to == StateOpen {
				opened = append(opened, target)
			}
		},
	}, zap.NewNop())

	cb := r.Configure("redis", Config{Threshold: 1, Cooldown: time.Second})
	assert.Same(t, cb, r.Get("redis"))
	r.RecordFailure("redis")
	assert.Equal(t, []string{"redis"}, opened)

	clock.Advance(time.Second)
	assert.True(t, r.Allow("redis"))
}

func TestRegistry_StatesAndReset(t *testing.T) {
	r := NewRegistry(Config{Threshold: 1, Cooldown: time.Hour}, zap.NewNop())
	r.RecordFailure("b")
	r.Get("a")

	states := r.States()
	if assert.Len(t, states, 2) {
		assert.Equal(t, "a", states[0].Target)
		assert.Equal(t, StateClosed, states[0].State)
		assert.Equal(t, StateOpen, states[1].State)
	}

	r.ResetAll()
	assert.True(t, r.Allow("b"))

	r.Remove("b")
	assert.Len(t, r.States(), 1)
}
