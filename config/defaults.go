// =============================================================================
// 📦 StreamFlow 默认配置
// =============================================================================
// 提供所有配置项的合理默认值
// =============================================================================
package config

import "time"

// DefaultConfig 返回默认配置
func DefaultConfig() *Config {
	return &Config{
		Stream:    DefaultStreamConfig(),
		Scheduler: DefaultSchedulerConfig(),
		OneBot:    DefaultOneBotConfig(),
		Redis:     DefaultRedisConfig(),
		Metrics:   DefaultMetricsConfig(),
		Log:       DefaultLogConfig(),
		Telemetry: DefaultTelemetryConfig(),
	}
}

// DefaultStreamConfig 返回默认流路由配置
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		MaxStreams:      50,
		StreamTimeout:   30 * time.Minute,
		QueueSize:       100,
		CleanupInterval: 5 * time.Minute,
		StopTimeout:     5 * time.Second,
	}
}

// DefaultSchedulerConfig 返回默认调度器配置
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		MaxConcurrent:          10,
		ForceDispatchThreshold: 10,
		PollIntervalBusy:       5 * time.Millisecond,
		PollIntervalIdle:       20 * time.Millisecond,
		ContextRetryBackoff:    100 * time.Millisecond,
	}
}

// DefaultOneBotConfig 返回默认 OneBot 接入配置
func DefaultOneBotConfig() OneBotConfig {
	return OneBotConfig{
		ListenAddr: ":9800",
		Path:       "/onebot/v11/ws",
		Platform:   "qq",
		ReadLimit:  1 << 20,
	}
}

// DefaultRedisConfig 返回默认 Redis 配置
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Enabled:      false,
		Addr:         "localhost:6379",
		Password:     "",
		DB:           0,
		HistoryLimit: 200,
		HistoryTTL:   72 * time.Hour,
	}
}

// DefaultMetricsConfig 返回默认指标配置
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		Enabled:   true,
		Addr:      ":9801",
		Namespace: "streamflow",
	}
}

// DefaultLogConfig 返回默认日志配置
func DefaultLogConfig() LogConfig {
	return LogConfig{
		Level:       "info",
		Format:      "json",
		OutputPaths: []string{"stdout"},
	}
}

// DefaultTelemetryConfig 返回默认遥测配置
func DefaultTelemetryConfig() TelemetryConfig {
	return TelemetryConfig{
		Enabled:      false,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "streamflow",
		SampleRate:   1.0,
	}
}
