package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/resilience/circuitbreaker"
	"github.com/BaSui01/orchestra/resilience/retry"
	"github.com/BaSui01/orchestra/types"
)

// RegistryConfig holds configuration for the service registry.
type RegistryConfig struct {
	// Mode selects host patterns. Empty means DetectMode().
	Mode Mode
	// Domain is appended to service names in distributed mode.
	Domain string
	// ProbeRetryDelay is the initial backoff between probe attempts of one check.
	ProbeRetryDelay time.Duration
	// MaxParallelChecks bounds CheckAll concurrency.
	MaxParallelChecks int
	// Now is the clock; tests inject a fake one.
	Now func() time.Time
}

// Option configures optional registry collaborators.
type Option func(*Registry)

// WithProber overrides the prober for a scheme.
func WithProber(scheme string, p Prober) Option {
	return func(r *Registry) { r.probers[scheme] = p }
}

// WithBreakers uses an existing breaker registry, so service breakers show
// up next to agent breakers.
func WithBreakers(b *circuitbreaker.Registry) Option {
	return func(r *Registry) { r.breakers = b }
}

// WithMetrics records check outcomes.
func WithMetrics(c *metrics.Collector) Option {
	return func(r *Registry) { r.metrics = c }
}

type serviceEntry struct {
	config   Config
	endpoint Endpoint
	breaker  *circuitbreaker.Breaker
}

// Registry resolves logical service names to endpoints for the current
// deployment mode and tracks their health behind per-service breakers.
type Registry struct {
	mode     Mode
	domain   string
	config   RegistryConfig
	services map[string]*serviceEntry
	probers  map[string]Prober
	breakers *circuitbreaker.Registry
	metrics  *metrics.Collector
	logger   *zap.Logger

	mu     sync.RWMutex
	health map[string]Health
}

// NewRegistry validates services and builds the registry. Invalid
// configuration is a startup error.
func NewRegistry(cfg RegistryConfig, services []Config, logger *zap.Logger, opts ...Option) (*Registry, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Mode == "" {
		cfg.Mode = DetectMode()
	}
	mode, err := ParseMode(string(cfg.Mode))
	if err != nil {
		return nil, err
	}
	cfg.Mode = mode
	if cfg.ProbeRetryDelay <= 0 {
		cfg.ProbeRetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxParallelChecks <= 0 {
		cfg.MaxParallelChecks = 8
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	redisProber := NewRedisProber()
	r := &Registry{
		mode:     cfg.Mode,
		domain:   cfg.Domain,
		config:   cfg,
		services: make(map[string]*serviceEntry, len(services)),
		probers: map[string]Prober{
			"http":     &HTTPProber{},
			"https":    &HTTPProber{},
			"redis":    redisProber,
			"tcp":      TCPProber{},
			"postgres": TCPProber{},
			"mysql":    TCPProber{},
		},
		logger: logger.With(zap.String("component", "service_registry"), zap.String("mode", string(cfg.Mode))),
		health: make(map[string]Health, len(services)),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.breakers == nil {
		r.breakers = circuitbreaker.NewRegistry(circuitbreaker.Config{Now: cfg.Now}, logger)
	}

	for _, sc := range services {
		if err := sc.validate(); err != nil {
			return nil, err
		}
		if _, dup := r.services[sc.Name]; dup {
			return nil, fmt.Errorf("service %s configured twice", sc.Name)
		}
		sc = sc.withDefaults()
		if _, ok := r.probers[sc.Scheme]; !ok {
			return nil, fmt.Errorf("service %s: unsupported scheme %q", sc.Name, sc.Scheme)
		}
		e := &serviceEntry{
			config: sc,
			endpoint: Endpoint{
				Name:           sc.Name,
				Scheme:         sc.Scheme,
				Host:           r.resolveHost(sc),
				Port:           sc.Port,
				HealthEndpoint: sc.HealthEndpoint,
			},
			breaker: r.breakers.Configure(sc.Name, circuitbreaker.Config{
				Threshold: sc.CircuitBreakerThreshold,
				Cooldown:  sc.CircuitBreakerTimeout,
				Now:       cfg.Now,
			}),
		}
		r.services[sc.Name] = e
		r.health[sc.Name] = Health{Name: sc.Name, Status: StatusUnknown, URL: e.endpoint.URL()}
	}

	r.logger.Info("service registry initialized", zap.Int("services", len(r.services)))
	return r, nil
}

// Mode returns the deployment mode in effect.
func (r *Registry) Mode() Mode { return r.mode }

func (r *Registry) resolveHost(sc Config) string {
	if sc.Host != "" {
		return sc.Host
	}
	if h, ok := sc.Hosts[r.mode]; ok && h != "" {
		return h
	}
	switch r.mode {
	case ModeContainerized:
		return sc.Name
	case ModeDistributed:
		if r.domain != "" {
			return sc.Name + "." + r.domain
		}
		return sc.Name
	default:
		return "localhost"
	}
}

// Names returns the configured service names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.services))
	for name := range r.services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Resolve returns scheme://host:port for name, or a NOT_FOUND error.
func (r *Registry) Resolve(name string) (string, error) {
	e, ok := r.services[name]
	if !ok {
		return "", serviceNotFound(name)
	}
	return e.endpoint.URL(), nil
}

// Endpoint returns the resolved endpoint for name.
func (r *Registry) Endpoint(name string) (Endpoint, bool) {
	e, ok := r.services[name]
	if !ok {
		return Endpoint{}, false
	}
	return e.endpoint, true
}

func serviceNotFound(name string) *types.Error {
	return types.NewNotFoundError(fmt.Sprintf("service '%s' not found", name)).WithTarget(name)
}

// CheckHealth probes one service. An open breaker answers circuit_open
// without touching the network. Probe retries within one check count as a
// single breaker failure. A check cut short by ctx records nothing and
// returns the cached health.
func (r *Registry) CheckHealth(ctx context.Context, name string) Health {
	e, ok := r.services[name]
	if !ok {
		return Health{Name: name, Status: StatusNotFound, Error: serviceNotFound(name).Message}
	}

	if !e.breaker.Allow() {
		snap := e.breaker.Snapshot()
		h := Health{
			Name:             name,
			Status:           StatusCircuitOpen,
			URL:              e.endpoint.URL(),
			FailureCount:     snap.FailureCount,
			CircuitOpenUntil: snap.OpenUntil,
			LastCheck:        r.config.Now(),
			Error:            "circuit breaker open",
		}
		r.store(h)
		r.metrics.RecordServiceHealth(name, string(h.Status), 0)
		return h
	}

	start := time.Now()
	err := r.probe(ctx, e)
	elapsed := time.Since(start)

	if err != nil && ctx.Err() != nil {
		// cancelled by the caller: keep the last recorded health
		if cached, ok := r.Health(name); ok {
			return cached
		}
		return Health{Name: name, Status: StatusUnknown, URL: e.endpoint.URL(), Error: ctx.Err().Error()}
	}

	if err == nil {
		e.breaker.RecordSuccess()
	} else {
		e.breaker.RecordFailure()
	}
	snap := e.breaker.Snapshot()

	h := Health{
		Name:           name,
		URL:            e.endpoint.URL(),
		FailureCount:   snap.FailureCount,
		LastCheck:      r.config.Now(),
		ResponseTimeMs: float64(elapsed) / float64(time.Millisecond),
	}
	if err == nil {
		h.Status = StatusHealthy
	} else {
		h.Status = StatusUnhealthy
		h.Error = err.Error()
		if snap.State == circuitbreaker.StateOpen {
			h.CircuitOpenUntil = snap.OpenUntil
		}
		r.logger.Warn("service health check failed",
			zap.String("service", name),
			zap.String("url", h.URL),
			zap.Int("failure_count", h.FailureCount),
			zap.Error(err),
		)
	}

	r.store(h)
	r.metrics.RecordServiceHealth(name, string(h.Status), elapsed)
	return h
}

func (r *Registry) probe(ctx context.Context, e *serviceEntry) error {
	prober := r.probers[e.config.Scheme]
	retryer := retry.NewBackoffRetryer(retry.Policy{
		MaxAttempts:  e.config.RetryAttempts,
		InitialDelay: r.config.ProbeRetryDelay,
		MaxDelay:     e.config.Timeout,
		Multiplier:   2,
		Classifier:   func(error) bool { return ctx.Err() == nil },
	}, r.logger)

	return retryer.Do(ctx, func(ctx context.Context) error {
		probeCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
		defer cancel()
		return prober.Probe(probeCtx, e.endpoint)
	})
}

func (r *Registry) store(h Health) {
	r.mu.Lock()
	r.health[h.Name] = h
	r.mu.Unlock()
}

// CheckAll checks every service concurrently. A panicking prober only
// fails its own service.
func (r *Registry) CheckAll(ctx context.Context) map[string]Health {
	names := r.Names()
	results := make([]Health, len(names))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.config.MaxParallelChecks)
	for i, name := range names {
		g.Go(func() error {
			defer func() {
				if rec := recover(); rec != nil {
					r.logger.Error("service health check panicked",
						zap.String("service", name),
						zap.Any("panic", rec),
					)
					h := Health{
						Name:      name,
						Status:    StatusUnhealthy,
						LastCheck: r.config.Now(),
						Error:     fmt.Sprintf("health check panicked: %v", rec),
					}
					r.store(h)
					results[i] = h
				}
			}()
			results[i] = r.CheckHealth(gctx, name)
			return nil
		})
	}
	_ = g.Wait()

	out := make(map[string]Health, len(names))
	for i, name := range names {
		out[name] = results[i]
	}
	return out
}

// Health returns the cached health of name.
func (r *Registry) Health(name string) (Health, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.health[name]
	return h, ok
}

// AllHealth returns every cached health entry.
func (r *Registry) AllHealth() map[string]Health {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]Health, len(r.health))
	for k, v := range r.health {
		out[k] = v
	}
	return out
}

// IsHealthy reports whether name was healthy at a check within maxAge.
func (r *Registry) IsHealthy(name string, maxAge time.Duration) bool {
	h, ok := r.Health(name)
	if !ok || h.LastCheck.IsZero() {
		return false
	}
	if r.config.Now().Sub(h.LastCheck) > maxAge {
		return false
	}
	return h.IsHealthy()
}

// StartMonitor runs CheckAll every interval until ctx is done.
// The returned channel is closed once the monitor has stopped.
func (r *Registry) StartMonitor(ctx context.Context, interval time.Duration) <-chan struct{} {
	done := make(chan struct{})
	if interval <= 0 {
		interval = 60 * time.Second
	}
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		r.CheckAll(ctx)
		for {
			select {
			case <-ctx.Done():
				r.logger.Debug("service monitor stopped")
				return
			case <-ticker.C:
				r.CheckAll(ctx)
			}
		}
	}()
	return done
}

// Close releases prober resources.
func (r *Registry) Close() error {
	if rp, ok := r.probers["redis"].(*RedisProber); ok {
		return rp.Close()
	}
	return nil
}
