// =============================================================================
// 📦 Orchestra 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("ORCHESTRA").
//	    Load()
//
// 配置优先级: 默认值 → YAML 文件 → 环境变量
// =============================================================================
package config

import (
	"fmt"
	"os"
	"reflect"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// =============================================================================
// 🎯 核心配置结构
// =============================================================================

// Config 是 Orchestra 的完整配置结构，构造期一次性传入各组件
type Config struct {
	// Server 服务器配置
	Server ServerConfig `yaml:"server" env:"SERVER"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`

	// Deployment 部署模式配置
	Deployment DeploymentConfig `yaml:"deployment" env:"DEPLOYMENT"`

	// Services 后端服务，key 为服务名（只能通过 YAML 配置）
	Services map[string]ServiceConfig `yaml:"services" env:"-"`

	// Agents 远程 Agent 列表（只能通过 YAML 配置）
	Agents []RemoteAgentConfig `yaml:"agents" env:"-"`

	// Registry Agent 注册表配置
	Registry RegistryConfig `yaml:"registry" env:"REGISTRY"`

	// Client Agent 客户端重试配置
	Client ClientConfig `yaml:"client" env:"CLIENT"`

	// Breaker 熔断器默认配置
	Breaker BreakerConfig `yaml:"breaker" env:"BREAKER"`

	// Pool 任务工作池配置
	Pool PoolConfig `yaml:"pool" env:"POOL"`

	// Workflow 工作流执行配置
	Workflow WorkflowConfig `yaml:"workflow" env:"WORKFLOW"`

	// Redis 配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Database 数据库配置
	Database DatabaseConfig `yaml:"database" env:"DATABASE"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	// HTTP 端口
	HTTPPort int `yaml:"http_port" env:"HTTP_PORT"`
	// Metrics 端口
	MetricsPort int `yaml:"metrics_port" env:"METRICS_PORT"`
	// 读取超时
	ReadTimeout time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	// 写入超时
	WriteTimeout time.Duration `yaml:"write_timeout" env:"WRITE_TIMEOUT"`
	// 优雅关闭超时
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	// 每个客户端 IP 每秒请求数
	RateLimitRPS float64 `yaml:"rate_limit_rps" env:"RATE_LIMIT_RPS"`
	// 令牌桶容量
	RateLimitBurst int `yaml:"rate_limit_burst" env:"RATE_LIMIT_BURST"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
	// 是否启用调用者信息
	EnableCaller bool `yaml:"enable_caller" env:"ENABLE_CALLER"`
	// 是否启用堆栈跟踪
	EnableStacktrace bool `yaml:"enable_stacktrace" env:"ENABLE_STACKTRACE"`
}

// TelemetryConfig 遥测配置
type TelemetryConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// OTLP 端点
	OTLPEndpoint string `yaml:"otlp_endpoint" env:"OTLP_ENDPOINT"`
	// 服务名称
	ServiceName string `yaml:"service_name" env:"SERVICE_NAME"`
	// 采样率
	SampleRate float64 `yaml:"sample_rate" env:"SAMPLE_RATE"`
}

// DeploymentConfig 部署模式配置
type DeploymentConfig struct {
	// 模式: local, containerized, distributed；为空时自动探测
	Mode string `yaml:"mode" env:"MODE"`
	// distributed 模式下追加在服务名后的域名
	Domain string `yaml:"domain" env:"DOMAIN"`
	// 服务健康巡检间隔
	HealthCheckInterval time.Duration `yaml:"health_check_interval" env:"HEALTH_CHECK_INTERVAL"`
}

// ServiceConfig 单个后端服务
type ServiceConfig struct {
	// 显式主机，优先于按模式解析
	Host string `yaml:"host"`
	// 按部署模式指定主机
	Hosts map[string]string `yaml:"hosts"`
	Port  int               `yaml:"port"`
	// 协议: http, https, redis, tcp, postgres, mysql
	Scheme         string        `yaml:"scheme"`
	HealthEndpoint string        `yaml:"health_endpoint"`
	Timeout        time.Duration `yaml:"timeout"`
	// 单次检查内的探测次数
	RetryAttempts           int           `yaml:"retry_attempts"`
	CircuitBreakerThreshold int           `yaml:"circuit_breaker_threshold"`
	CircuitBreakerTimeout   time.Duration `yaml:"circuit_breaker_timeout"`
}

// RemoteAgentConfig 通过 HTTP 接入的远程 Agent
type RemoteAgentConfig struct {
	ID                 string        `yaml:"id"`
	BaseURL            string        `yaml:"base_url"`
	TaskTypes          []string      `yaml:"task_types"`
	Capabilities       []string      `yaml:"capabilities"`
	MaxConcurrentTasks int           `yaml:"max_concurrent_tasks"`
	Timeout            time.Duration `yaml:"timeout"`
}

// RegistryConfig Agent 注册表配置
type RegistryConfig struct {
	// 两次健康刷新的最小间隔
	HealthRefreshInterval time.Duration `yaml:"health_refresh_interval" env:"HEALTH_REFRESH_INTERVAL"`
	// 健康缓存最大有效期
	HealthMaxAge time.Duration `yaml:"health_max_age" env:"HEALTH_MAX_AGE"`
	// 单次 Ping 超时
	PingTimeout time.Duration `yaml:"ping_timeout" env:"PING_TIMEOUT"`
	// 响应时间超过该值判定为 degraded
	DegradedThreshold time.Duration `yaml:"degraded_threshold" env:"DEGRADED_THRESHOLD"`
	// 连续失败多少次判定为 offline
	OfflineAfter int `yaml:"offline_after" env:"OFFLINE_AFTER"`
	// 打分权重
	Weights WeightsConfig `yaml:"weights" env:"WEIGHTS"`
}

// WeightsConfig 选择 Agent 时的打分权重
type WeightsConfig struct {
	TaskType    float64 `yaml:"task_type" env:"TASK_TYPE"`
	Load        float64 `yaml:"load" env:"LOAD"`
	SuccessRate float64 `yaml:"success_rate" env:"SUCCESS_RATE"`
}

// ClientConfig Agent 客户端配置
type ClientConfig struct {
	MaxAttempts    int           `yaml:"max_attempts" env:"MAX_ATTEMPTS"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"MAX_BACKOFF"`
	Multiplier     float64       `yaml:"multiplier" env:"MULTIPLIER"`
	Jitter         bool          `yaml:"jitter" env:"JITTER"`
	DefaultTimeout time.Duration `yaml:"default_timeout" env:"DEFAULT_TIMEOUT"`
	// 每个 Agent 每秒允许的重试数，0 表示不限
	RetryBudget float64 `yaml:"retry_budget" env:"RETRY_BUDGET"`
	RetryBurst  int     `yaml:"retry_burst" env:"RETRY_BURST"`
}

// BreakerConfig 熔断器默认配置
type BreakerConfig struct {
	Threshold        int           `yaml:"threshold" env:"THRESHOLD"`
	Cooldown         time.Duration `yaml:"cooldown" env:"COOLDOWN"`
	HalfOpenMaxCalls int           `yaml:"half_open_max_calls" env:"HALF_OPEN_MAX_CALLS"`
}

// PoolConfig 任务工作池配置
type PoolConfig struct {
	Workers int `yaml:"workers" env:"WORKERS"`
	// 队列后端: memory, redis
	Backend         string        `yaml:"backend" env:"BACKEND"`
	QueueSize       int           `yaml:"queue_size" env:"QUEUE_SIZE"`
	RedisKey        string        `yaml:"redis_key" env:"REDIS_KEY"`
	DequeueTimeout  time.Duration `yaml:"dequeue_timeout" env:"DEQUEUE_TIMEOUT"`
	TaskTimeout     time.Duration `yaml:"task_timeout" env:"TASK_TIMEOUT"`
	ResultRetention time.Duration `yaml:"result_retention" env:"RESULT_RETENTION"`
}

// WorkflowConfig 工作流执行配置
type WorkflowConfig struct {
	MaxParallelSteps int           `yaml:"max_parallel_steps" env:"MAX_PARALLEL_STEPS"`
	StepTimeout      time.Duration `yaml:"step_timeout" env:"STEP_TIMEOUT"`
	BusyWait         time.Duration `yaml:"busy_wait" env:"BUSY_WAIT"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 连接池大小
	PoolSize int `yaml:"pool_size" env:"POOL_SIZE"`
	// 最小空闲连接
	MinIdleConns int `yaml:"min_idle_conns" env:"MIN_IDLE_CONNS"`
	// 是否使用 TLS 连接
	TLS bool `yaml:"tls" env:"TLS"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	// 是否启用持久化
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 驱动类型: postgres, mysql, sqlite
	Driver string `yaml:"driver" env:"DRIVER"`
	// 主机
	Host string `yaml:"host" env:"HOST"`
	// 端口
	Port int `yaml:"port" env:"PORT"`
	// 用户名
	User string `yaml:"user" env:"USER"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库名；sqlite 下为文件路径
	Name string `yaml:"name" env:"NAME"`
	// SSL 模式
	SSLMode string `yaml:"ssl_mode" env:"SSL_MODE"`
	// 最大连接数
	MaxOpenConns int `yaml:"max_open_conns" env:"MAX_OPEN_CONNS"`
	// 最大空闲连接
	MaxIdleConns int `yaml:"max_idle_conns" env:"MAX_IDLE_CONNS"`
	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" env:"CONN_MAX_LIFETIME"`
}

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	lookupEnv  func(string) (string, bool)
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "ORCHESTRA",
		lookupEnv:  os.LookupEnv,
		validators: make([]func(*Config) error, 0),
	}
}

// WithConfigPath 设置配置文件路径
func (l *Loader) WithConfigPath(path string) *Loader {
	l.configPath = path
	return l
}

// WithEnvPrefix 设置环境变量前缀
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// WithEnvLookup 替换环境变量来源（测试用）
func (l *Loader) WithEnvLookup(fn func(string) (string, bool)) *Loader {
	l.lookupEnv = fn
	return l
}

// WithValidator 添加配置验证器
func (l *Loader) WithValidator(v func(*Config) error) *Loader {
	l.validators = append(l.validators, v)
	return l
}

// Load 加载配置
// 优先级: 默认值 → YAML 文件 → 环境变量
func (l *Loader) Load() (*Config, error) {
	// 1. 从默认值开始
	cfg := DefaultConfig()

	// 2. 如果指定了配置文件，从文件加载
	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			return nil, fmt.Errorf("failed to load config from file: %w", err)
		}
	}

	// 3. 从环境变量覆盖
	if err := l.loadFromEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to load config from env: %w", err)
	}

	// 4. 运行验证器
	for _, v := range l.validators {
		if err := v(cfg); err != nil {
			return nil, fmt.Errorf("config validation failed: %w", err)
		}
	}

	return cfg, nil
}

// loadFromFile 从 YAML 文件加载配置
func (l *Loader) loadFromFile(cfg *Config) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		if os.IsNotExist(err) {
			// 文件不存在，使用默认值
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	return nil
}

// loadFromEnv 从环境变量加载配置
func (l *Loader) loadFromEnv(cfg *Config) error {
	return l.setFieldsFromEnv(reflect.ValueOf(cfg).Elem(), l.envPrefix)
}

// setFieldsFromEnv 递归设置结构体字段
func (l *Loader) setFieldsFromEnv(v reflect.Value, prefix string) error {
	t := v.Type()

	for i := 0; i < v.NumField(); i++ {
		field := v.Field(i)
		fieldType := t.Field(i)

		// 获取 env tag
		envTag := fieldType.Tag.Get("env")
		if envTag == "" || envTag == "-" {
			continue
		}

		envKey := prefix + "_" + envTag

		// 如果是结构体，递归处理
		if field.Kind() == reflect.Struct {
			if err := l.setFieldsFromEnv(field, envKey); err != nil {
				return err
			}
			continue
		}

		envValue, ok := l.lookupEnv(envKey)
		if !ok || envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

var durationType = reflect.TypeOf(time.Duration(0))

// setFieldValue 设置字段值
func setFieldValue(field reflect.Value, value string) error {
	if !field.CanSet() {
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		// 特殊处理 time.Duration
		if field.Type() == durationType {
			d, err := time.ParseDuration(value)
			if err != nil {
				return err
			}
			field.SetInt(int64(d))
		} else {
			i, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return err
			}
			field.SetInt(i)
		}

	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		field.SetFloat(f)

	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		field.SetBool(b)

	case reflect.Slice:
		// 支持逗号分隔的字符串切片
		if field.Type().Elem().Kind() == reflect.String {
			parts := strings.Split(value, ",")
			for i := range parts {
				parts[i] = strings.TrimSpace(parts[i])
			}
			field.Set(reflect.ValueOf(parts))
		}

	default:
		return fmt.Errorf("unsupported field kind %s", field.Kind())
	}

	return nil
}

// =============================================================================
// 🔍 辅助函数
// =============================================================================

// MustLoad 加载配置，失败时 panic
func MustLoad(path string) *Config {
	cfg, err := NewLoader().WithConfigPath(path).Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}
	return cfg
}

// DSN 返回数据库连接字符串
func (d *DatabaseConfig) DSN() string {
	switch d.Driver {
	case "postgres":
		return fmt.Sprintf(
			"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			d.Host, d.Port, d.User, d.Password, d.Name, d.SSLMode,
		)
	case "mysql":
		return fmt.Sprintf(
			"%s:%s@tcp(%s:%d)/%s?parseTime=true",
			d.User, d.Password, d.Host, d.Port, d.Name,
		)
	case "sqlite":
		return d.Name
	default:
		return ""
	}
}
