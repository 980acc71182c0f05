// =============================================================================
// Orchestra 主入口
// =============================================================================
// 任务编排服务入口点，包含工作池、服务健康巡检、HTTP 健康端点、Prometheus 指标
//
// 使用方法:
//
//	orchestra serve                       # 启动服务
//	orchestra serve --config config.yaml  # 指定配置文件
//	orchestra services --config c.yaml    # 一次性检查所有后端服务
//	orchestra version                     # 显示版本信息
//	orchestra health                      # 健康检查
// =============================================================================

package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/orchestra"
	"github.com/BaSui01/orchestra/config"
	"github.com/BaSui01/orchestra/internal/telemetry"
	"github.com/BaSui01/orchestra/service"
)

// =============================================================================
// 📦 版本信息（构建时注入）
// =============================================================================

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// =============================================================================
// 🎯 主函数
// =============================================================================

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		runServe(os.Args[2:])
	case "services":
		runServices(os.Args[2:])
	case "version":
		printVersion()
	case "health":
		runHealthCheck(os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// loadConfig 加载并校验配置，失败直接退出
func loadConfig(path string) *config.Config {
	loader := config.NewLoader()
	if path != "" {
		loader = loader.WithConfigPath(path)
	}

	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\n", err)
		os.Exit(1)
	}
	return cfg
}

// =============================================================================
// 🖥️ serve 命令
// =============================================================================

func runServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)

	logger := initLogger(cfg.Log)
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting Orchestra",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	srv := NewServer(cfg, logger, otelProviders)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		logger.Fatal("Failed to start server", zap.Error(err))
	}

	// 等待关闭信号
	srv.WaitForShutdown(ctx)

	logger.Info("Orchestra stopped")
}

// =============================================================================
// 🔎 services 命令
// =============================================================================

func runServices(args []string) {
	fs := flag.NewFlagSet("services", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	timeout := fs.Duration("timeout", 30*time.Second, "Overall check timeout")
	_ = fs.Parse(args)

	cfg := loadConfig(*configPath)
	logger := initLogger(config.LogConfig{Level: "error", Format: "console", OutputPaths: []string{"stderr"}})

	healthy, err := checkServices(cfg, logger, *timeout, os.Stdout)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service check failed: %v\n", err)
		os.Exit(1)
	}
	if !healthy {
		os.Exit(2)
	}
}

// checkServices 检查所有配置的服务并输出表格，返回是否全部健康
func checkServices(cfg *config.Config, logger *zap.Logger, timeout time.Duration, out io.Writer, opts ...service.Option) (bool, error) {
	reg, err := service.NewRegistry(service.RegistryConfig{
		Mode:   service.Mode(strings.ToLower(cfg.Deployment.Mode)),
		Domain: cfg.Deployment.Domain,
	}, orchestra.ServiceConfigs(cfg.Services), logger, opts...)
	if err != nil {
		return false, err
	}
	defer func() { _ = reg.Close() }()

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	results := reg.CheckAll(ctx)

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "SERVICE\tSTATUS\tURL\tLATENCY\tERROR\n")
	allHealthy := true
	for _, name := range names {
		h := results[name]
		if !h.IsHealthy() {
			allHealthy = false
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.1fms\t%s\n", name, h.Status, h.URL, h.ResponseTimeMs, h.Error)
	}
	if err := tw.Flush(); err != nil {
		return false, err
	}
	fmt.Fprintf(out, "mode: %s\n", reg.Mode())
	return allHealthy, nil
}

// =============================================================================
// 🏥 健康检查命令
// =============================================================================

func runHealthCheck(args []string) {
	fs := flag.NewFlagSet("health", flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:8080", "Server address")
	_ = fs.Parse(args)

	client := &http.Client{Timeout: 5 * time.Second}
	resp, err := client.Get(*addr + "/health")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Health check failed: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		fmt.Fprintf(os.Stderr, "Health check failed: status %d\n", resp.StatusCode)
		os.Exit(1)
	}

	fmt.Println("OK")
}

// =============================================================================
// 📋 版本和帮助
// =============================================================================

func printVersion() {
	fmt.Printf("Orchestra %s\n", Version)
	fmt.Printf("  Build Time: %s\n", BuildTime)
	fmt.Printf("  Git Commit: %s\n", GitCommit)
}

func printUsage() {
	fmt.Println(`Orchestra - Task orchestration and resilient dispatch

Usage:
  orchestra <command> [options]

Commands:
  serve     Start the worker pool, health monitors and HTTP endpoints
  services  Check every configured backend service once and exit
  version   Show version information
  health    Check server health
  help      Show this help message

Options for 'serve' and 'services':
  --config <path>   Path to configuration file (YAML)

Options for 'services':
  --timeout <dur>   Overall check timeout (default 30s)

Exit codes for 'services':
  0 all healthy, 1 check error, 2 at least one service unhealthy

Examples:
  orchestra serve
  orchestra serve --config /etc/orchestra/config.yaml
  orchestra services --config /etc/orchestra/config.yaml
  orchestra health --addr http://localhost:8080
  orchestra version`)
}

// =============================================================================
// 🔧 日志初始化
// =============================================================================

func initLogger(cfg config.LogConfig) *zap.Logger {
	// 解析日志级别
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	// 配置编码器
	var encoderConfig zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encoding = "console"
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		encoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		encoderConfig = zap.NewProductionEncoderConfig()
		encoderConfig.TimeKey = "timestamp"
		encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}

	outputs := cfg.OutputPaths
	if len(outputs) == 0 {
		outputs = []string{"stdout"}
	}

	zapConfig := zap.Config{
		Level:            zap.NewAtomicLevelAt(level),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encoderConfig,
		OutputPaths:      outputs,
		ErrorOutputPaths: []string{"stderr"},
	}

	var opts []zap.Option
	if cfg.EnableCaller {
		opts = append(opts, zap.AddCaller())
	}
	if cfg.EnableStacktrace {
		opts = append(opts, zap.AddStacktrace(zapcore.ErrorLevel))
	}

	logger, err := zapConfig.Build(opts...)
	if err != nil {
		// 回退到基本 logger
		logger, _ = zap.NewProduction()
	}

	return logger
}
