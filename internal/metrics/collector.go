// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，未启用指标时可直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// Agent 指标
	agentRequestsTotal   *prometheus.CounterVec
	agentRequestDuration *prometheus.HistogramVec
	agentRetriesTotal    *prometheus.CounterVec
	agentHealthy         *prometheus.GaugeVec
	agentWorkload        *prometheus.GaugeVec

	// 熔断器指标
	breakerTransitions *prometheus.CounterVec

	// 服务健康指标
	serviceHealthy       *prometheus.GaugeVec
	serviceCheckDuration *prometheus.HistogramVec

	// 任务队列指标
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec
	queueDepth   prometheus.Gauge

	// 工作流指标
	workflowRunsTotal  *prometheus.CounterVec
	workflowDuration   *prometheus.HistogramVec
	workflowStepsTotal *prometheus.CounterVec

	// 数据库指标
	dbQueryDuration *prometheus.HistogramVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器，注册到 Prometheus 默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWithRegistry(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWithRegistry 创建指标收集器，注册到指定 Registerer
func NewCollectorWithRegistry(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Agent 指标
	c.agentRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_requests_total",
			Help:      "Total number of agent calls",
		},
		[]string{"agent_type", "status"},
	)

	c.agentRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_request_duration_seconds",
			Help:      "Agent call duration in seconds, retries included",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"agent_type"},
	)

	c.agentRetriesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_retries_total",
			Help:      "Total number of agent call retries",
		},
		[]string{"agent_type"},
	)

	c.agentHealthy = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_health_status",
			Help:      "Agent health status (1 = healthy or degraded, 0 = unhealthy or offline)",
		},
		[]string{"agent_id"},
	)

	c.agentWorkload = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "agent_current_workload",
			Help:      "Number of tasks currently reserved on an agent",
		},
		[]string{"agent_id"},
	)

	// 熔断器指标
	c.breakerTransitions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "circuit_breaker_transitions_total",
			Help:      "Total number of circuit breaker state transitions",
		},
		[]string{"target", "from_state", "to_state"},
	)

	// 服务健康指标
	c.serviceHealthy = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "service_health_status",
			Help:      "Backing service health status (1 = healthy, 0 = otherwise)",
		},
		[]string{"service"},
	)

	c.serviceCheckDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "service_health_check_duration_seconds",
			Help:      "Backing service health check duration in seconds",
			Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.5, 1, 5, 10},
		},
		[]string{"service", "status"},
	)

	// 任务队列指标
	c.tasksTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_total",
			Help:      "Total number of processed tasks",
		},
		[]string{"task_type", "status"},
	)

	c.taskDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "task_duration_seconds",
			Help:      "Task handler duration in seconds",
			Buckets:   []float64{0.01, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
		},
		[]string{"task_type"},
	)

	c.queueDepth = factory.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "task_queue_depth",
			Help:      "Number of tasks waiting in the queue",
		},
	)

	// 工作流指标
	c.workflowRunsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_runs_total",
			Help:      "Total number of workflow runs",
		},
		[]string{"complexity", "status"},
	)

	c.workflowDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "workflow_duration_seconds",
			Help:      "Workflow run duration in seconds",
			Buckets:   []float64{0.1, 1, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"complexity"},
	)

	c.workflowStepsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workflow_steps_total",
			Help:      "Total number of workflow steps by terminal status",
		},
		[]string{"agent_type", "status"},
	)

	// 数据库指标
	c.dbQueryDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "db_query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🎭 Agent 指标记录
// =============================================================================

// RecordAgentRequest 记录一次 Agent 调用（含重试的总耗时）
func (c *Collector) RecordAgentRequest(agentType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.agentRequestsTotal.WithLabelValues(agentType, status).Inc()
	c.agentRequestDuration.WithLabelValues(agentType).Observe(duration.Seconds())
}

// RecordAgentRetry 记录一次 Agent 调用重试
func (c *Collector) RecordAgentRetry(agentType string) {
	if c == nil {
		return
	}
	c.agentRetriesTotal.WithLabelValues(agentType).Inc()
}

// SetAgentHealth 记录 Agent 健康状态
func (c *Collector) SetAgentHealth(agentID string, healthy bool) {
	if c == nil {
		return
	}
	c.agentHealthy.WithLabelValues(agentID).Set(boolGauge(healthy))
}

// SetAgentWorkload 记录 Agent 当前负载
func (c *Collector) SetAgentWorkload(agentID string, workload int) {
	if c == nil {
		return
	}
	c.agentWorkload.WithLabelValues(agentID).Set(float64(workload))
}

// =============================================================================
// 🔌 熔断器与服务健康指标记录
// =============================================================================

// RecordBreakerTransition 记录熔断器状态转换
func (c *Collector) RecordBreakerTransition(target, fromState, toState string) {
	if c == nil {
		return
	}
	c.breakerTransitions.WithLabelValues(target, fromState, toState).Inc()
}

// RecordServiceHealth 记录一次服务健康检查
func (c *Collector) RecordServiceHealth(service, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.serviceHealthy.WithLabelValues(service).Set(boolGauge(status == "healthy"))
	c.serviceCheckDuration.WithLabelValues(service, status).Observe(duration.Seconds())
}

// =============================================================================
// 📦 任务队列指标记录
// =============================================================================

// RecordTask 记录任务处理结果
func (c *Collector) RecordTask(taskType, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(taskType, status).Inc()
	c.taskDuration.WithLabelValues(taskType).Observe(duration.Seconds())
}

// SetQueueDepth 记录队列长度
func (c *Collector) SetQueueDepth(depth int) {
	if c == nil {
		return
	}
	c.queueDepth.Set(float64(depth))
}

// =============================================================================
// 🧭 工作流指标记录
// =============================================================================

// RecordWorkflow 记录工作流运行结果
func (c *Collector) RecordWorkflow(complexity, status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.workflowRunsTotal.WithLabelValues(complexity, status).Inc()
	c.workflowDuration.WithLabelValues(complexity).Observe(duration.Seconds())
}

// RecordWorkflowStep 记录工作流步骤终态
func (c *Collector) RecordWorkflowStep(agentType, status string) {
	if c == nil {
		return
	}
	c.workflowStepsTotal.WithLabelValues(agentType, status).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBQuery 记录数据库查询
func (c *Collector) RecordDBQuery(operation string, duration time.Duration) {
	if c == nil {
		return
	}
	c.dbQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
