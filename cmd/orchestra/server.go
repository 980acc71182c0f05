package main

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/orchestra"
	"github.com/BaSui01/orchestra/api/handlers"
	"github.com/BaSui01/orchestra/config"
	"github.com/BaSui01/orchestra/internal/metrics"
	"github.com/BaSui01/orchestra/internal/server"
	"github.com/BaSui01/orchestra/internal/telemetry"
)

// =============================================================================
// 🖥️ Server 结构
// =============================================================================

// Server 是 Orchestra 的主服务器，持有 App 与两个 HTTP 端口
type Server struct {
	cfg       *config.Config
	logger    *zap.Logger
	telemetry *telemetry.Providers
	appOpts   []orchestra.Option

	app *orchestra.App

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager

	healthHandler *handlers.HealthHandler

	// 指标收集器，注册到独立的 Registry
	promRegistry     *prometheus.Registry
	metricsCollector *metrics.Collector

	// Rate limiter 生命周期管理
	rateLimiterCancel context.CancelFunc
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, logger *zap.Logger, providers *telemetry.Providers, appOpts ...orchestra.Option) *Server {
	return &Server{
		cfg:       cfg,
		logger:    logger,
		telemetry: providers,
		appOpts:   appOpts,
	}
}

// =============================================================================
// 🚀 启动流程
// =============================================================================

// Start 构建 App 并启动所有服务
func (s *Server) Start(ctx context.Context) error {
	if err := s.startApp(ctx); err != nil {
		return err
	}

	// 4. 启动 HTTP 服务器
	if err := s.startHTTPServer(); err != nil {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	// 5. 启动 Metrics 服务器
	if err := s.startMetricsServer(); err != nil {
		return fmt.Errorf("failed to start metrics server: %w", err)
	}

	s.logger.Info("All servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
	)

	return nil
}

// startApp 初始化指标、App 与 handlers，并启动工作池和健康巡检
func (s *Server) startApp(ctx context.Context) error {
	// 1. 初始化指标收集器
	s.promRegistry = prometheus.NewRegistry()
	s.promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	s.metricsCollector = metrics.NewCollectorWithRegistry(s.promRegistry, "orchestra", s.logger)

	// 2. 构建 App
	opts := append([]orchestra.Option{orchestra.WithMetrics(s.metricsCollector)}, s.appOpts...)
	app, err := orchestra.New(s.cfg, s.logger, opts...)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	// 3. 初始化 Handlers
	s.initHandlers()

	s.app.Start(ctx)
	return nil
}

// =============================================================================
// 🔧 初始化方法
// =============================================================================

// initHandlers 初始化健康检查 handler，就绪检查覆盖所有后端服务和数据库
func (s *Server) initHandlers() {
	s.healthHandler = handlers.NewHealthHandler(s.logger)

	maxAge := 2 * s.cfg.Deployment.HealthCheckInterval
	s.healthHandler.RegisterCheck(handlers.ServiceChecks(s.app.Services(), maxAge)...)

	if st := s.app.Store(); st != nil {
		s.healthHandler.RegisterCheck(handlers.NewPingCheck("database", st.Ping))
	}

	s.logger.Info("Handlers initialized")
}

// routes 构建 API 路由和中间件链
func (s *Server) routes(rateLimiterCtx context.Context) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", s.healthHandler.HandleHealth)
	mux.HandleFunc("/healthz", s.healthHandler.HandleHealth)
	mux.HandleFunc("/ready", s.healthHandler.HandleReady)
	mux.HandleFunc("/readyz", s.healthHandler.HandleReady)

	// 版本信息端点
	mux.HandleFunc("/version", s.healthHandler.HandleVersion(Version, BuildTime, GitCommit))

	middlewares := []Middleware{
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.metricsCollector),
		OTelTracing(s.telemetry),
	}
	if s.cfg.Server.RateLimitRPS > 0 {
		middlewares = append(middlewares,
			RateLimiter(rateLimiterCtx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger))
	}
	return Chain(mux, middlewares...)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

// startHTTPServer 启动 HTTP 服务器
func (s *Server) startHTTPServer() error {
	rateLimiterCtx, rateLimiterCancel := context.WithCancel(context.Background())
	s.rateLimiterCancel = rateLimiterCancel

	s.httpManager = server.NewManager(s.routes(rateLimiterCtx), server.ConfigFrom(s.cfg.Server, s.cfg.Server.HTTPPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.httpManager.Start(); err != nil {
		return err
	}

	s.logger.Info("HTTP server started", zap.String("addr", s.httpManager.Addr()))
	return nil
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

// metricsHandler 暴露独立 Registry 中的指标
func (s *Server) metricsHandler() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(s.promRegistry, promhttp.HandlerOpts{Registry: s.promRegistry}))
	return mux
}

// startMetricsServer 启动 Metrics 服务器，端口为 0 时不启动
func (s *Server) startMetricsServer() error {
	if s.cfg.Server.MetricsPort == 0 {
		s.logger.Info("Metrics server disabled")
		return nil
	}

	s.metricsManager = server.NewManager(s.metricsHandler(), server.ConfigFrom(s.cfg.Server, s.cfg.Server.MetricsPort), s.logger)

	// 启动服务器（非阻塞）
	if err := s.metricsManager.Start(); err != nil {
		return err
	}

	s.logger.Info("Metrics server started", zap.String("addr", s.metricsManager.Addr()))
	return nil
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// WaitForShutdown 等待关闭信号并优雅关闭
func (s *Server) WaitForShutdown(ctx context.Context) {
	if s.httpManager != nil {
		if err := s.httpManager.WaitForShutdown(ctx); err != nil {
			s.logger.Error("HTTP server failed", zap.Error(err))
		}
	}

	// 执行清理
	s.Shutdown()
}

// Shutdown 优雅关闭所有服务
func (s *Server) Shutdown() {
	s.logger.Info("Starting graceful shutdown...")

	timeout := s.cfg.Server.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	// 0. 停止 rate limiter 清理 goroutine
	if s.rateLimiterCancel != nil {
		s.rateLimiterCancel()
	}

	// 1. 关闭 HTTP 服务器，不再接收新请求
	if s.httpManager != nil {
		if err := s.httpManager.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server shutdown error", zap.Error(err))
		}
	}

	// 2. 排空工作池，关闭服务注册表和数据库
	if s.app != nil {
		if err := s.app.Shutdown(ctx); err != nil {
			s.logger.Error("App shutdown error", zap.Error(err))
		}
	}

	// 3. 关闭 Metrics 服务器
	if s.metricsManager != nil {
		if err := s.metricsManager.Shutdown(ctx); err != nil {
			s.logger.Error("Metrics server shutdown error", zap.Error(err))
		}
	}

	// 4. 刷新遥测数据
	if err := s.telemetry.Shutdown(ctx); err != nil {
		s.logger.Error("Telemetry shutdown error", zap.Error(err))
	}

	s.logger.Info("Graceful shutdown completed")
}
