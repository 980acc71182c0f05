package agent

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/resilience/circuitbreaker"
	"github.com/BaSui01/orchestra/types"
)

// ScoringWeights weight the three terms of the selection score.
type ScoringWeights struct {
	TaskTypeMatch float64 `yaml:"task_type_match" json:"task_type_match"`
	Load          float64 `yaml:"load" json:"load"`
	SuccessRate   float64 `yaml:"success_rate" json:"success_rate"`
}

// DefaultScoringWeights returns 0.4 / 0.3 / 0.3.
func DefaultScoringWeights() ScoringWeights {
	return ScoringWeights{TaskTypeMatch: 0.4, Load: 0.3, SuccessRate: 0.3}
}

// RegistryConfig holds configuration for the agent registry.
type RegistryConfig struct {
	// HealthRefreshInterval is the minimum time between non-forced health checks.
	HealthRefreshInterval time.Duration
	// HealthMaxAge is how long a cached health entry is trusted for routing.
	HealthMaxAge time.Duration
	// PingTimeout bounds a single health ping.
	PingTimeout time.Duration
	// DegradedThreshold separates healthy from degraded ping latency.
	DegradedThreshold time.Duration
	// OfflineAfter marks an agent offline after this many consecutive ping failures.
	OfflineAfter int
	// DefaultMaxConcurrent applies when a profile does not set MaxConcurrentTasks.
	DefaultMaxConcurrent int
	// EWMAWeight is the weight given to the newest completion time sample.
	EWMAWeight float64
	Weights    ScoringWeights
	// MaxParallelRefresh bounds concurrent pings in RefreshAll.
	MaxParallelRefresh int
	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

// DefaultRegistryConfig returns a RegistryConfig with sensible defaults.
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HealthRefreshInterval: 60 * time.Second,
		HealthMaxAge:          5 * time.Minute,
		PingTimeout:           5 * time.Second,
		DegradedThreshold:     2 * time.Second,
		OfflineAfter:          3,
		DefaultMaxConcurrent:  1,
		EWMAWeight:            0.3,
		Weights:               DefaultScoringWeights(),
		MaxParallelRefresh:    8,
	}
}

func (c RegistryConfig) withDefaults() RegistryConfig {
	d := DefaultRegistryConfig()
	if c.HealthRefreshInterval < 0 {
		c.HealthRefreshInterval = 0
	}
	if c.HealthMaxAge <= 0 {
		c.HealthMaxAge = d.HealthMaxAge
	}
	if c.PingTimeout <= 0 {
		c.PingTimeout = d.PingTimeout
	}
	if c.DegradedThreshold <= 0 {
		c.DegradedThreshold = d.DegradedThreshold
	}
	if c.OfflineAfter <= 0 {
		c.OfflineAfter = d.OfflineAfter
	}
	if c.DefaultMaxConcurrent <= 0 {
		c.DefaultMaxConcurrent = d.DefaultMaxConcurrent
	}
	if c.EWMAWeight <= 0 || c.EWMAWeight > 1 {
		c.EWMAWeight = d.EWMAWeight
	}
	if c.Weights == (ScoringWeights{}) {
		c.Weights = d.Weights
	}
	if c.MaxParallelRefresh <= 0 {
		c.MaxParallelRefresh = d.MaxParallelRefresh
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// RegistryOption configures optional registry collaborators.
type RegistryOption func(*Registry)

// WithBreakers gates health pings through per-agent circuit breakers.
func WithBreakers(breakers *circuitbreaker.Registry) RegistryOption {
	return func(r *Registry) { r.breakers = breakers }
}

// WithMetrics records health and workload gauges.
func WithMetrics(collector *metrics.Collector) RegistryOption {
	return func(r *Registry) { r.metrics = collector }
}

type entry struct {
	agent   Agent
	profile Profile
	health  Health
}

// Registry is the in-memory directory of agents. One mutex guards every
// entry; pings run outside it.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	refresh  singleflight.Group
	breakers *circuitbreaker.Registry
	metrics  *metrics.Collector
	config   RegistryConfig
	logger   *zap.Logger
}

// NewRegistry creates an agent registry.
func NewRegistry(config RegistryConfig, logger *zap.Logger, opts ...RegistryOption) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Registry{
		entries: make(map[string]*entry),
		config:  config.withDefaults(),
		logger:  logger.With(zap.String("component", "agent_registry")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Config returns the effective registry configuration.
func (r *Registry) Config() RegistryConfig {
	return r.config
}

// Register inserts or replaces an agent. Workload and history of a
// replaced agent are discarded.
func (r *Registry) Register(id string, profile Profile, agent Agent) error {
	if id == "" {
		return types.NewValidationError("agent id is empty")
	}
	if agent == nil {
		return types.NewValidationError(fmt.Sprintf("agent %s has no implementation", id))
	}

	profile = profile.clone()
	profile.AgentID = id
	profile.CurrentWorkload = 0
	if profile.MaxConcurrentTasks <= 0 {
		profile.MaxConcurrentTasks = r.config.DefaultMaxConcurrent
	}
	if profile.Capabilities == nil {
		profile.Capabilities = types.NewCapabilitySet()
	}
	if profile.TotalTasks == 0 && profile.SuccessRate == 0 {
		profile.SuccessRate = 1.0
	}

	r.mu.Lock()
	_, replaced := r.entries[id]
	r.entries[id] = &entry{
		agent:   agent,
		profile: profile,
		health:  Health{Status: HealthUnknown, SuccessRate: profile.SuccessRate},
	}
	r.mu.Unlock()

	r.logger.Info("agent registered",
		zap.String("agent_id", id),
		zap.Strings("capabilities", profile.Capabilities.Strings()),
		zap.Int("max_concurrent_tasks", profile.MaxConcurrentTasks),
		zap.Bool("replaced", replaced),
	)
	r.metrics.SetAgentWorkload(id, 0)
	return nil
}

// Unregister removes an agent. It reports whether the agent existed.
func (r *Registry) Unregister(id string) bool {
	r.mu.Lock()
	_, ok := r.entries[id]
	delete(r.entries, id)
	r.mu.Unlock()

	if ok {
		r.logger.Info("agent unregistered", zap.String("agent_id", id))
	}
	return ok
}

// Lookup returns the agent implementation registered under id.
func (r *Registry) Lookup(id string) (Agent, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return nil, false
	}
	return e.agent, true
}

// Profile returns a copy of the agent's profile.
func (r *Registry) Profile(id string) (Profile, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Profile{}, false
	}
	return e.profile.clone(), true
}

// Health returns the cached health entry without refreshing it.
func (r *Registry) Health(id string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[id]
	if !ok {
		return Health{}, false
	}
	return e.health, true
}

// List returns all profiles sorted by agent id.
func (r *Registry) List() []Profile {
	r.mu.RLock()
	out := make([]Profile, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.profile.clone())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].AgentID < out[j].AgentID })
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// =============================================================================
// Selection
// =============================================================================

const scoreEpsilon = 1e-9

// FindBestAgent returns the best available agent whose capabilities cover
// required. Agents at capacity, and agents whose fresh health says they are
// unhealthy or offline, are not candidates. Ties go to the lower workload,
// then the lexicographically smaller id.
func (r *Registry) FindBestAgent(taskType string, required types.CapabilitySet) (string, bool) {
	now := r.config.Now()
	w := r.config.Weights

	r.mu.RLock()
	defer r.mu.RUnlock()

	var (
		bestID    string
		bestScore float64
		bestLoad  int
		found     bool
	)
	for id, e := range r.entries {
		p := e.profile
		if !p.Available() || !p.Capabilities.ContainsAll(required) {
			continue
		}
		if r.freshLocked(e, now) && !e.health.Status.Usable() {
			continue
		}

		match := 0.0
		if p.HandlesTaskType(taskType) {
			match = 1.0
		}
		score := w.TaskTypeMatch*match + w.Load*(1-p.Load()) + w.SuccessRate*p.SuccessRate

		if !found || better(score, p.CurrentWorkload, id, bestScore, bestLoad, bestID) {
			bestID, bestScore, bestLoad, found = id, score, p.CurrentWorkload, true
		}
	}
	return bestID, found
}

func better(score float64, load int, id string, bestScore float64, bestLoad int, bestID string) bool {
	if score > bestScore+scoreEpsilon {
		return true
	}
	if score < bestScore-scoreEpsilon {
		return false
	}
	if load != bestLoad {
		return load < bestLoad
	}
	return id < bestID
}

// =============================================================================
// Workload
// =============================================================================

// Reserve increments the agent's workload. It fails with AGENT_BUSY when
// the agent is at capacity and NOT_FOUND when it is unknown.
func (r *Registry) Reserve(id string) error {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return types.NewNotFoundError(fmt.Sprintf("Agent '%s' not registered", id)).WithTarget(id)
	}
	if !e.profile.Available() {
		r.mu.Unlock()
		return types.NewError(types.ErrAgentBusy, fmt.Sprintf("Agent '%s' is at capacity", id)).WithTarget(id)
	}
	e.profile.CurrentWorkload++
	workload := e.profile.CurrentWorkload
	r.mu.Unlock()

	r.metrics.SetAgentWorkload(id, workload)
	return nil
}

// Release decrements the agent's workload, never below zero.
func (r *Registry) Release(id string) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if !ok {
		r.mu.Unlock()
		return
	}
	if e.profile.CurrentWorkload > 0 {
		e.profile.CurrentWorkload--
	}
	workload := e.profile.CurrentWorkload
	r.mu.Unlock()

	r.metrics.SetAgentWorkload(id, workload)
}

// UpdatePerformance folds one call outcome into the agent's statistics.
// SuccessRate is a running ratio; AverageCompletionTime is an EWMA.
func (r *Registry) UpdatePerformance(id string, success bool, duration time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.entries[id]
	if !ok {
		return
	}
	p := &e.profile
	if p.TotalTasks == 0 {
		p.AverageCompletionTime = duration
	} else {
		alpha := r.config.EWMAWeight
		p.AverageCompletionTime = time.Duration(alpha*float64(duration) + (1-alpha)*float64(p.AverageCompletionTime))
	}
	p.TotalTasks++
	if success {
		p.SuccessfulTasks++
	}
	p.SuccessRate = float64(p.SuccessfulTasks) / float64(p.TotalTasks)
	e.health.SuccessRate = p.SuccessRate
}
