// =============================================================================
// 📦 StreamFlow 配置加载器
// =============================================================================
// 统一配置加载，支持 YAML 文件 + 环境变量覆盖
//
// 使用方法:
//
//	cfg, err := config.NewLoader().
//	    WithConfigPath("config.yaml").
//	    WithEnvPrefix("STREAMFLOW").
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

// Config 是 StreamFlow 的完整配置结构
type Config struct {
	// Stream 流路由配置
	Stream StreamConfig `yaml:"stream" env:"STREAM"`

	// Scheduler 分发调度器配置
	Scheduler SchedulerConfig `yaml:"scheduler" env:"SCHEDULER"`

	// OneBot 接入层配置
	OneBot OneBotConfig `yaml:"onebot" env:"ONEBOT"`

	// Redis 历史消息缓存配置
	Redis RedisConfig `yaml:"redis" env:"REDIS"`

	// Metrics 指标配置
	Metrics MetricsConfig `yaml:"metrics" env:"METRICS"`

	// Log 日志配置
	Log LogConfig `yaml:"log" env:"LOG"`

	// Telemetry 遥测配置
	Telemetry TelemetryConfig `yaml:"telemetry" env:"TELEMETRY"`
}

// StreamConfig 流路由配置
type StreamConfig struct {
	// 最大活跃流数量（软上限）
	MaxStreams int `yaml:"max_streams" env:"MAX_STREAMS"`
	// 流空闲淘汰阈值
	StreamTimeout time.Duration `yaml:"stream_timeout" env:"STREAM_TIMEOUT"`
	// 单流事件队列容量
	QueueSize int `yaml:"queue_size" env:"QUEUE_SIZE"`
	// 后台清理周期
	CleanupInterval time.Duration `yaml:"cleanup_interval" env:"CLEANUP_INTERVAL"`
	// 停止消费者时等待 worker 退出的上限
	StopTimeout time.Duration `yaml:"stop_timeout" env:"STOP_TIMEOUT"`
}

// SchedulerConfig 分发调度器配置
type SchedulerConfig struct {
	// 全局并发处理上限（信号量容量）
	MaxConcurrent int `yaml:"max_concurrent" env:"MAX_CONCURRENT"`
	// 强制分发的未读消息阈值
	ForceDispatchThreshold int `yaml:"force_dispatch_threshold" env:"FORCE_DISPATCH_THRESHOLD"`
	// 有积压时的轮询间隔
	PollIntervalBusy time.Duration `yaml:"poll_interval_busy" env:"POLL_INTERVAL_BUSY"`
	// 空闲时的轮询间隔
	PollIntervalIdle time.Duration `yaml:"poll_interval_idle" env:"POLL_INTERVAL_IDLE"`
	// 会话上下文尚未就绪时的重试退避
	ContextRetryBackoff time.Duration `yaml:"context_retry_backoff" env:"CONTEXT_RETRY_BACKOFF"`
}

// OneBotConfig OneBot v11 反向 WebSocket 接入配置
type OneBotConfig struct {
	// 监听地址
	ListenAddr string `yaml:"listen_addr" env:"LISTEN_ADDR"`
	// WebSocket 路径
	Path string `yaml:"path" env:"PATH"`
	// 访问令牌（为空则不校验）
	AccessToken string `yaml:"access_token" env:"ACCESS_TOKEN"`
	// 平台标识（写入流键）
	Platform string `yaml:"platform" env:"PLATFORM"`
	// 单帧读取上限
	ReadLimit int64 `yaml:"read_limit" env:"READ_LIMIT"`
}

// RedisConfig Redis 历史消息缓存配置
type RedisConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// 地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 密码
	Password string `yaml:"password" env:"PASSWORD"`
	// 数据库编号
	DB int `yaml:"db" env:"DB"`
	// 每个流保留的历史消息条数
	HistoryLimit int `yaml:"history_limit" env:"HISTORY_LIMIT"`
	// 历史键过期时间
	HistoryTTL time.Duration `yaml:"history_ttl" env:"HISTORY_TTL"`
}

// MetricsConfig 指标配置
type MetricsConfig struct {
	// 是否启用
	Enabled bool `yaml:"enabled" env:"ENABLED"`
	// Prometheus 指标监听地址
	Addr string `yaml:"addr" env:"ADDR"`
	// 指标命名空间
	Namespace string `yaml:"namespace" env:"NAMESPACE"`
}

// LogConfig 日志配置
type LogConfig struct {
	// 日志级别: debug, info, warn, error
	Level string `yaml:"level" env:"LEVEL"`
	// 输出格式: json, console
	Format string `yaml:"format" env:"FORMAT"`
	// 输出路径
	OutputPaths []string `yaml:"output_paths" env:"OUTPUT_PATHS"`
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

// =============================================================================
// 🔧 配置加载器
// =============================================================================

// Loader 配置加载器（Builder 模式）
type Loader struct {
	configPath string
	envPrefix  string
	validators []func(*Config) error
}

// NewLoader 创建新的配置加载器
func NewLoader() *Loader {
	return &Loader{
		envPrefix:  "STREAMFLOW",
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

	// 4. 内置校验 + 自定义验证器
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
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

		envValue := os.Getenv(envKey)
		if envValue == "" {
			continue
		}

		if err := setFieldValue(field, envValue); err != nil {
			return fmt.Errorf("failed to set %s: %w", envKey, err)
		}
	}

	return nil
}

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
		if field.Type() == reflect.TypeOf(time.Duration(0)) {
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

// Validate 验证配置
func (c *Config) Validate() error {
	var errs []string

	if c.Stream.MaxStreams <= 0 {
		errs = append(errs, "stream.max_streams must be positive")
	}
	if c.Stream.QueueSize <= 0 {
		errs = append(errs, "stream.queue_size must be positive")
	}
	if c.Stream.StreamTimeout <= 0 {
		errs = append(errs, "stream.stream_timeout must be positive")
	}
	if c.Stream.CleanupInterval <= 0 {
		errs = append(errs, "stream.cleanup_interval must be positive")
	}

	if c.Scheduler.MaxConcurrent <= 0 {
		errs = append(errs, "scheduler.max_concurrent must be positive")
	}
	if c.Scheduler.ForceDispatchThreshold <= 0 {
		errs = append(errs, "scheduler.force_dispatch_threshold must be positive")
	}
	if c.Scheduler.PollIntervalBusy <= 0 || c.Scheduler.PollIntervalIdle <= 0 {
		errs = append(errs, "scheduler poll intervals must be positive")
	}
	if c.Scheduler.PollIntervalBusy > c.Scheduler.PollIntervalIdle {
		errs = append(errs, "scheduler.poll_interval_busy must not exceed poll_interval_idle")
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr required when redis.enabled")
	}
	if c.Telemetry.Enabled && c.Telemetry.OTLPEndpoint == "" {
		errs = append(errs, "telemetry.otlp_endpoint required when telemetry.enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(errs, "; "))
	}
	return nil
}
