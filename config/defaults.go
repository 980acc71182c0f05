// =============================================================================
// 📦 Orchestra 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Server:     DefaultServerConfig(),
		Log:        DefaultLogConfig(),
		Telemetry:  DefaultTelemetryConfig(),
		Deployment: DefaultDeploymentConfig(),
		Services:   map[string]ServiceConfig{},
		Registry:   DefaultRegistryConfig(),
		Client:     DefaultClientConfig(),
		Breaker:    DefaultBreakerConfig(),
		Pool:       DefaultPoolConfig(),
		Workflow:   DefaultWorkflowConfig(),
		Redis:      DefaultRedisConfig(),
		Database:   DefaultDatabaseConfig(),
	}
}

// DefaultServerConfig 返回默认服务器配置
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		HTTPPort:        8080,
		MetricsPort:     9091,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 15 * time.Second,
		RateLimitRPS:    100,
		RateLimitBurst:  200,
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:            "info",
		Format:           "json",
		OutputPaths:      []string{"stdout"},
		EnableCaller:     true,
		EnableStacktrace: false,
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "orchestra",
		SampleRate:   0.1,
	}
}

// DefaultDeploymentConfig 返回默认部署配置（模式自动探测）
func DefaultDeploymentConfig() DeploymentConfig {
	return DeploymentConfig{
		Mode:                "",
		Domain:              "",
		HealthCheckInterval: 60 * time.Second,
	}
}

// DefaultRegistryConfig 返回默认注册表配置
func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{
		HealthRefreshInterval: 60 * time.Second,
		HealthMaxAge:          5 * time.Minute,
		PingTimeout:           5 * time.Second,
		DegradedThreshold:     2 * time.Second,
		OfflineAfter:          3,
		Weights: WeightsConfig{
			TaskType:    0.4,
			Load:        0.3,
			SuccessRate: 0.3,
		},
	}
}

// DefaultClientConfig 返回默认客户端配置
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		MaxAttempts:    3,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		Multiplier:     2,
		Jitter:         false,
		DefaultTimeout: 10 * time.Second,
		RetryBudget:    1,
		RetryBurst:     10,
	}
}

// DefaultBreakerConfig 返回默认熔断器配置
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		Threshold:        5,
		Cooldown:         60 * time.Second,
		HalfOpenMaxCalls: 1,
	}
}

// DefaultPoolConfig 返回默认工作池配置
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		Workers:         4,
		Backend:         "memory",
		QueueSize:       1000,
		RedisKey:        "orchestra:tasks",
		DequeueTimeout:  time.Second,
		TaskTimeout:     5 * time.Minute,
		ResultRetention: 10 * time.Minute,
	}
}

// DefaultWorkflowConfig 返回默认工作流配置
func DefaultWorkflowConfig() WorkflowConfig {
	return WorkflowConfig{
		MaxParallelSteps: 4,
		StepTimeout:      2 * time.Minute,
		BusyWait:         30 * time.Second,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// DefaultDatabaseConfig 返回默认数据库配置（默认关闭，启用时落到本地 sqlite）
func DefaultDatabaseConfig() DatabaseConfig {
	return DatabaseConfig{
		Enabled:         false,
		Driver:          "sqlite",
		Host:            "localhost",
		Port:            5432,
		User:            "orchestra",
		Password:        "",
		Name:            "orchestra.db",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
	}
}
