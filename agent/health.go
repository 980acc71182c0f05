package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/orchestra/types"
)

// freshLocked reports whether e's health was checked within HealthMaxAge.
// Callers hold r.mu.
func (r *Registry) freshLocked(e *entry, now time.Time) bool {
	if e.health.LastCheck.IsZero() {
		return false
	}
	return now.Sub(e.health.LastCheck) <= r.config.HealthMaxAge
}

// IsHealthy reports whether the agent was checked within maxAge and found
// healthy or degraded. A stale entry is never healthy, whatever it cached.
// A non-positive maxAge uses the registry default.
func (r *Registry) IsHealthy(id string, maxAge time.Duration) bool {
	if maxAge <= 0 {
		maxAge = r.config.HealthMaxAge
	}
	now := r.config.Now()

	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok || e.health.LastCheck.IsZero() {
		return false
	}
	if now.Sub(e.health.LastCheck) > maxAge {
		return false
	}
	return e.health.Status == HealthHealthy || e.health.Status == HealthDegraded
}

// RefreshHealth pings the agent unless it was checked within
// HealthRefreshInterval and force is false. Concurrent refreshes of the same
// agent share one ping. The ping runs without holding the registry lock.
// When ctx ends first the cached health is returned with ctx's error and
// nothing is recorded.
func (r *Registry) RefreshHealth(ctx context.Context, id string, force bool) (Health, error) {
	now := r.config.Now()

	r.mu.RLock()
	e, ok := r.entries[id]
	var cached Health
	if ok {
		cached = e.health
	}
	r.mu.RUnlock()

	if !ok {
		return Health{}, types.NewNotFoundError(fmt.Sprintf("Agent '%s' not registered", id)).WithTarget(id)
	}
	if !force && !cached.LastCheck.IsZero() && now.Sub(cached.LastCheck) < r.config.HealthRefreshInterval {
		return cached, nil
	}

	if err := ctx.Err(); err != nil {
		return cached, err
	}

	// The shared ping is bounded by PingTimeout, not by any caller's ctx.
	ch := r.refresh.DoChan(id, func() (any, error) {
		return r.ping(context.WithoutCancel(ctx), id, e), nil
	})
	select {
	case res := <-ch:
		return res.Val.(Health), nil
	case <-ctx.Done():
		return cached, ctx.Err()
	}
}

func (r *Registry) ping(ctx context.Context, id string, e *entry) Health {
	var err error
	start := r.config.Now()

	if r.breakers != nil && !r.breakers.Allow(id) {
		err = types.NewCircuitOpenError(id)
	} else {
		pingCtx, cancel := context.WithTimeout(ctx, r.config.PingTimeout)
		err = e.agent.Ping(pingCtx)
		cancel()
		if r.breakers != nil {
			if err == nil {
				r.breakers.RecordSuccess(id)
			} else {
				r.breakers.RecordFailure(id)
			}
		}
	}

	end := r.config.Now()
	elapsed := end.Sub(start)

	r.mu.Lock()
	// The agent may have been replaced or removed while the ping was in flight.
	if cur, ok := r.entries[id]; !ok || cur != e {
		h := e.health
		r.mu.Unlock()
		return h
	}
	h := &e.health
	prev := h.Status
	h.LastCheck = end
	h.SuccessRate = e.profile.SuccessRate
	if err == nil {
		h.LastHeartbeat = end
		h.ResponseTimeMs = float64(elapsed) / float64(time.Millisecond)
		h.ConsecutiveFailures = 0
		h.LastError = ""
		if elapsed >= r.config.DegradedThreshold {
			h.Status = HealthDegraded
		} else {
			h.Status = HealthHealthy
		}
	} else {
		h.ErrorCount++
		h.ConsecutiveFailures++
		h.LastError = err.Error()
		if h.ConsecutiveFailures >= r.config.OfflineAfter {
			h.Status = HealthOffline
		} else {
			h.Status = HealthUnhealthy
		}
	}
	snapshot := *h
	r.mu.Unlock()

	if snapshot.Status != prev {
		fields := []zap.Field{
			zap.String("agent_id", id),
			zap.String("from", string(prev)),
			zap.String("to", string(snapshot.Status)),
			zap.Float64("response_time_ms", snapshot.ResponseTimeMs),
		}
		if err != nil {
			r.logger.Warn("agent health changed", append(fields, zap.Error(err))...)
		} else {
			r.logger.Info("agent health changed", fields...)
		}
	}
	r.metrics.SetAgentHealth(id, snapshot.Status.Usable())
	return snapshot
}

// RefreshAll refreshes every registered agent concurrently.
func (r *Registry) RefreshAll(ctx context.Context, force bool) map[string]Health {
	r.mu.RLock()
	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	r.mu.RUnlock()

	results := make([]Health, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxParallelRefresh)
	for i, id := range ids {
		g.Go(func() error {
			h, err := r.RefreshHealth(gctx, id, force)
			if types.IsErrorCode(err, types.ErrNotFound) {
				// Unregistered mid-refresh.
				h = Health{Status: HealthOffline, LastError: err.Error()}
			}
			results[i] = h
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Health, len(ids))
	for i, id := range ids {
		out[id] = results[i]
	}
	return out
}
