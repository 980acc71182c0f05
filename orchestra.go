package orchestra

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra/agent"
	"github.com/BaSui01/orchestra/config"
	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/internal/tlsutil"
	"github.com/BaSui01/orchestra/resilience/circuitbreaker"
	"github.com/BaSui01/orchestra/resilience/retry"
	"github.com/BaSui01/orchestra/service"
	"github.com/BaSui01/orchestra/store"
	"github.com/BaSui01/orchestra/taskqueue"
	"github.com/BaSui01/orchestra/types"
	"github.com/BaSui01/orchestra/workflow"
)

// TaskTypeWorkflow is the built-in task type that runs a goal through the
// workflow engine. Its payload carries "goal" and an optional "context" map.
const TaskTypeWorkflow = "workflow"

// Option configures optional collaborators of an App.
type Option func(*options)

type options struct {
	metrics     *metrics.Collector
	redisClient redis.UniversalClient
	store       *store.Store
	probers     map[string]service.Prober
	now         func() time.Time
}

// WithMetrics records Prometheus metrics through c.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) { o.metrics = c }
}

// WithRedisClient backs the task queue with an existing client when the
// pool backend is redis. The App does not close it.
func WithRedisClient(c redis.UniversalClient) Option {
	return func(o *options) { o.redisClient = c }
}

// WithStore persists workflow runs and task records to s instead of opening
// the configured database.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithServiceProber overrides the health probe for a service scheme.
func WithServiceProber(scheme string, p service.Prober) Option {
	return func(o *options) {
		if o.probers == nil {
			o.probers = make(map[string]service.Prober)
		}
		o.probers[scheme] = p
	}
}

// WithClock injects the clock used by registries and breakers.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// App holds every registry of one orchestration process. Components receive
// their collaborators here instead of reaching for package-level instances.
type App struct {
	config  *config.Config
	logger  *zap.Logger
	metrics *metrics.Collector

	agentBreakers   *circuitbreaker.Registry
	serviceBreakers *circuitbreaker.Registry
	services        *service.Registry
	agents          *agent.Registry
	client          *agent.Client
	engine          *workflow.Engine
	pool            *taskqueue.Pool
	store           *store.Store
	ownsStore       bool

	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	loops   sync.WaitGroup
}

// New validates cfg and builds the application graph. A nil cfg means
// config.DefaultConfig().
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	a := &App{
		config:  cfg,
		logger:  logger.With(zap.String("component", "app")),
		metrics: o.metrics,
	}

	breakerCfg := circuitbreaker.Config{
		Threshold:        cfg.Breaker.Threshold,
		Cooldown:         cfg.Breaker.Cooldown,
		HalfOpenMaxCalls: cfg.Breaker.HalfOpenMaxCalls,
		Now:              o.now,
		OnStateChange: func(target string, from, to circuitbreaker.State) {
			a.metrics.RecordBreakerTransition(target, from.String(), to.String())
		},
	}
	a.agentBreakers = circuitbreaker.NewRegistry(breakerCfg, logger)
	a.serviceBreakers = circuitbreaker.NewRegistry(breakerCfg, logger)

	svcOpts := []service.Option{
		service.WithBreakers(a.serviceBreakers),
		service.WithMetrics(a.metrics),
	}
	for scheme, p := range o.probers {
		svcOpts = append(svcOpts, service.WithProber(scheme, p))
	}
	services, err := service.NewRegistry(service.RegistryConfig{
		Mode:   service.Mode(strings.ToLower(cfg.Deployment.Mode)),
		Domain: cfg.Deployment.Domain,
		Now:    o.now,
	}, ServiceConfigs(cfg.Services), logger, svcOpts...)
	if err != nil {
		return nil, fmt.Errorf("build service registry: %w", err)
	}
	a.services = services

	regCfg := agentRegistryConfig(cfg.Registry)
	regCfg.Now = o.now
	a.agents = agent.NewRegistry(regCfg, logger,
		agent.WithBreakers(a.agentBreakers),
		agent.WithMetrics(a.metrics))
	if err := a.registerRemoteAgents(cfg.Agents); err != nil {
		_ = a.services.Close()
		return nil, err
	}

	a.client = agent.NewClient(a.agents, agentClientConfig(cfg.Client), a.metrics, logger)

	if err := a.openStore(cfg.Database, o.store); err != nil {
		_ = a.services.Close()
		return nil, err
	}

	var recorder workflow.RunRecorder
	if a.store != nil {
		recorder = a.store
	}
	planner := workflow.NewPlanner(a.agents, workflow.NewClassifier(), logger)
	executor := workflow.NewExecutor(a.agents, a.client, workflow.ExecutorConfig{
		MaxParallelSteps: cfg.Workflow.MaxParallelSteps,
		StepTimeout:      cfg.Workflow.StepTimeout,
		BusyWait:         cfg.Workflow.BusyWait,
		Now:              o.now,
	}, a.metrics, logger)
	a.engine = workflow.NewEngine(planner, executor, recorder, a.metrics, logger)

	queue, err := newQueue(cfg, o.redisClient)
	if err != nil {
		a.closeStore()
		_ = a.services.Close()
		return nil, err
	}
	a.pool = taskqueue.NewPool(queue, taskqueue.PoolConfig{
		Workers:         cfg.Pool.Workers,
		DequeueTimeout:  cfg.Pool.DequeueTimeout,
		TaskTimeout:     cfg.Pool.TaskTimeout,
		ResultRetention: cfg.Pool.ResultRetention,
		Now:             o.now,
	}, a.metrics, logger)
	a.pool.RegisterHandler(TaskTypeWorkflow, a.runWorkflowTask)
	if a.store != nil {
		a.pool.Events().Subscribe(a.store.TaskEventHandler(5 * time.Second))
	}

	a.logger.Info("app initialized",
		zap.String("deployment_mode", string(a.services.Mode())),
		zap.Int("services", len(cfg.Services)),
		zap.Int("remote_agents", len(cfg.Agents)),
		zap.String("queue_backend", cfg.Pool.Backend),
		zap.Bool("persistence", a.store != nil),
	)
	return a, nil
}

func (a *App) registerRemoteAgents(remotes []config.RemoteAgentConfig) error {
	for _, rc := range remotes {
		caps, err := types.ParseCapabilitySet(rc.Capabilities)
		if err != nil {
			return fmt.Errorf("agent %s: %w", rc.ID, err)
		}
		remote, err := agent.NewHTTPAgent(agent.HTTPAgentConfig{BaseURL: rc.BaseURL, Timeout: rc.Timeout}, a.logger)
		if err != nil {
			return fmt.Errorf("agent %s: %w", rc.ID, err)
		}
		profile := agent.Profile{
			TaskTypes:          rc.TaskTypes,
			Capabilities:       caps,
			MaxConcurrentTasks: rc.MaxConcurrentTasks,
		}
		if err := a.agents.Register(rc.ID, profile, remote); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) openStore(cfg config.DatabaseConfig, provided *store.Store) error {
	if provided != nil {
		a.store = provided
		return nil
	}
	if !cfg.Enabled {
		return nil
	}
	st, err := store.Open(cfg, a.metrics, a.logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.store = st
	a.ownsStore = true
	return nil
}

func (a *App) closeStore() error {
	if a.store != nil && a.ownsStore {
		return a.store.Close()
	}
	return nil
}

func newQueue(cfg *config.Config, client redis.UniversalClient) (taskqueue.Queue, error) {
	if cfg.Pool.Backend != "redis" {
		return taskqueue.NewMemoryQueue(cfg.Pool.QueueSize), nil
	}
	if client != nil {
		return taskqueue.NewRedisQueue(client, cfg.Pool.RedisKey), nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	opts := &redis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
	}
	if cfg.Redis.TLS {
		opts.TLSConfig = tlsutil.ClientConfig("")
	}
	q, err := taskqueue.DialRedisQueue(ctx, opts, cfg.Pool.RedisKey)
	if err != nil {
		return nil, fmt.Errorf("connect task queue: %w", err)
	}
	return q, nil
}

// =============================================================================
// Accessors
// =============================================================================

func (a *App) Config() *config.Config { return a.config }
func (a *App) Agents() *agent.Registry { return a.agents }
func (a *App) Services() *service.Registry { return a.services }
func (a *App) Client() *agent.Client { return a.client }
func (a *App) Engine() *workflow.Engine { return a.engine }
func (a *App) Pool() *taskqueue.Pool { return a.pool }
func (a *App) Metrics() *metrics.Collector { return a.metrics }
func (a *App) AgentBreakers() *circuitbreaker.Registry { return a.agentBreakers }

// Store returns the persistence layer, or nil when persistence is disabled.
func (a *App) Store() *store.Store { return a.store }

// =============================================================================
// Operations
// =============================================================================

// RegisterLocalAgent registers an in-process agent backed by handler.
func (a *App) RegisterLocalAgent(id string, profile agent.Profile, handler agent.HandlerFunc) error {
	return a.agents.Register(id, profile, agent.NewLocalAgent(id, handler, a.logger))
}

// RegisterTaskHandler adds a handler for a custom task type.
func (a *App) RegisterTaskHandler(taskType string, handler taskqueue.Handler) {
	a.pool.RegisterHandler(taskType, handler)
}

// Start launches the worker pool and the background health loops. It is a
// no-op after the first call.
func (a *App) Start(ctx context.Context) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.started {
		return
	}
	a.started = true

	loopCtx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.pool.Start(loopCtx)

	if interval := a.config.Deployment.HealthCheckInterval; interval > 0 && len(a.services.Names()) > 0 {
		done := a.services.StartMonitor(loopCtx, interval)
		a.loops.Add(1)
		go func() {
			defer a.loops.Done()
			<-done
		}()
	}
	if interval := a.config.Registry.HealthRefreshInterval; interval > 0 {
		a.loops.Add(1)
		go func() {
			defer a.loops.Done()
			ticker := time.NewTicker(interval)
			defer ticker.Stop()
			a.refreshAgents(loopCtx, ticker.C)
		}()
	}
	a.logger.Info("app started", zap.Int("workers", a.config.Pool.Workers))
}

// refreshAgents pings every agent on each tick. The ticker already runs at
// HealthRefreshInterval, so refreshes are forced past the interval check.
func (a *App) refreshAgents(ctx context.Context, ticks <-chan time.Time) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticks:
			a.agents.RefreshAll(ctx, true)
		}
	}
}

// Submit queues a task and returns its ID.
func (a *App) Submit(ctx context.Context, taskType string, payload map[string]any) (string, error) {
	return a.pool.Submit(ctx, taskqueue.NewTask(taskType, payload))
}

// SubmitGoal queues a goal for the workflow engine.
func (a *App) SubmitGoal(ctx context.Context, goal string, goalCtx map[string]any) (string, error) {
	payload := map[string]any{"goal": goal}
	if goalCtx != nil {
		payload["context"] = goalCtx
	}
	return a.Submit(ctx, TaskTypeWorkflow, payload)
}

// AwaitResult blocks until the task finishes or timeout elapses.
func (a *App) AwaitResult(ctx context.Context, taskID string, timeout time.Duration) (*taskqueue.Result, error) {
	return a.pool.AwaitResult(ctx, taskID, timeout)
}

// ExecuteGoal plans and runs a goal synchronously.
func (a *App) ExecuteGoal(ctx context.Context, goal string, goalCtx map[string]any) *workflow.Result {
	return a.engine.ExecuteGoal(ctx, goal, goalCtx)
}

// Call sends one request to an agent through the resilient client.
func (a *App) Call(ctx context.Context, agentType, action string, payload map[string]any, opts ...agent.CallOption) *types.AgentResponse {
	return a.client.Call(ctx, agentType, action, payload, opts...)
}

// CheckServices runs a health check of every configured service now.
func (a *App) CheckServices(ctx context.Context) map[string]service.Health {
	return a.services.CheckAll(ctx)
}

func (a *App) runWorkflowTask(ctx context.Context, task *taskqueue.Task) (any, error) {
	goal, _ := task.Payload["goal"].(string)
	if goal == "" {
		return nil, types.NewValidationError("workflow task requires a non-empty goal")
	}
	goalCtx, _ := task.Payload["context"].(map[string]any)
	if _, ok := types.WorkflowID(ctx); !ok {
		ctx = types.WithWorkflowID(ctx, task.ID)
	}
	return a.engine.ExecuteGoal(ctx, goal, goalCtx), nil
}

// Shutdown drains the pool, stops background loops and releases
// connections. Tasks still queued when ctx ends are abandoned.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.Lock()
	cancel := a.cancel
	a.mu.Unlock()

	var errs []error
	if err := a.pool.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("shutdown pool: %w", err))
	}
	if cancel != nil {
		cancel()
	}
	a.loops.Wait()

	if err := a.services.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close service registry: %w", err))
	}
	if err := a.closeStore(); err != nil {
		errs = append(errs, fmt.Errorf("close store: %w", err))
	}
	a.logger.Info("app stopped")
	return errors.Join(errs...)
}

// =============================================================================
// Config mapping
// =============================================================================

// ServiceConfigs converts configured services to registry entries sorted by name.
func ServiceConfigs(in map[string]config.ServiceConfig) []service.Config {
	names := make([]string, 0, len(in))
	for name := range in {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]service.Config, 0, len(in))
	for _, name := range names {
		sc := in[name]
		var hosts map[service.Mode]string
		if len(sc.Hosts) > 0 {
			hosts = make(map[service.Mode]string, len(sc.Hosts))
			for mode, host := range sc.Hosts {
				hosts[service.Mode(mode)] = host
			}
		}
		out = append(out, service.Config{
			Name:                    name,
			Host:                    sc.Host,
			Hosts:                   hosts,
			Port:                    sc.Port,
			Scheme:                  sc.Scheme,
			HealthEndpoint:          sc.HealthEndpoint,
			Timeout:                 sc.Timeout,
			RetryAttempts:           sc.RetryAttempts,
			CircuitBreakerThreshold: sc.CircuitBreakerThreshold,
			CircuitBreakerTimeout:   sc.CircuitBreakerTimeout,
		})
	}
	return out
}

func agentRegistryConfig(rc config.RegistryConfig) agent.RegistryConfig {
	cfg := agent.DefaultRegistryConfig()
	cfg.HealthRefreshInterval = rc.HealthRefreshInterval
	cfg.HealthMaxAge = rc.HealthMaxAge
	cfg.PingTimeout = rc.PingTimeout
	cfg.DegradedThreshold = rc.DegradedThreshold
	cfg.OfflineAfter = rc.OfflineAfter
	cfg.Weights = agent.ScoringWeights{
		TaskTypeMatch: rc.Weights.TaskType,
		Load:          rc.Weights.Load,
		SuccessRate:   rc.Weights.SuccessRate,
	}
	return cfg
}

func agentClientConfig(cc config.ClientConfig) agent.ClientConfig {
	return agent.ClientConfig{
		Retry: retry.Policy{
			MaxAttempts:  cc.MaxAttempts,
			InitialDelay: cc.InitialBackoff,
			MaxDelay:     cc.MaxBackoff,
			Multiplier:   cc.Multiplier,
			Jitter:       cc.Jitter,
		},
		DefaultTimeout: cc.DefaultTimeout,
		RetryBudget:    cc.RetryBudget,
		RetryBurst:     cc.RetryBurst,
	}
}
