// =============================================================================
// StreamFlow 服务装配
// =============================================================================
// 将流水线、遥测与旁路 HTTP 端点（指标、健康检查）组装为一个可
// 启停的服务。消息处理器默认是日志回显实现，接入真实 LLM 后端时
// 在这里替换。
// =============================================================================

package main

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/BaSui01/streamflow"
	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/internal/server"
	"github.com/BaSui01/streamflow/internal/telemetry"
	"github.com/BaSui01/streamflow/processor"
	"github.com/BaSui01/streamflow/scheduler"
)

const shutdownTimeout = 15 * time.Second

// App 聚合服务的全部运行组件。
type App struct {
	cfg    *config.Config
	logger *zap.Logger

	pipeline       *streamflow.Pipeline
	otelProviders  *telemetry.Providers
	metricsManager *server.Manager
}

// NewApp 按配置组装服务。此时尚未监听任何端口。
func NewApp(cfg *config.Config, logger *zap.Logger) (*App, error) {
	// Initialize OpenTelemetry
	otelProviders, err := telemetry.Init(cfg.Telemetry, logger)
	if err != nil {
		logger.Warn("failed to initialize telemetry", zap.Error(err))
	}

	// 准入阈值随处理失败情况自适应调整
	policyFactory := func() scheduler.AdmissionPolicy {
		return scheduler.NewFeedbackPolicy(
			cfg.Scheduler.ForceDispatchThreshold,
			cfg.Scheduler.ForceDispatchThreshold*8,
		)
	}

	pipeline, err := streamflow.New(cfg, newLogProcessor(logger), logger,
		streamflow.WithPolicyFactory(policyFactory))
	if err != nil {
		return nil, err
	}

	app := &App{
		cfg:           cfg,
		logger:        logger,
		pipeline:      pipeline,
		otelProviders: otelProviders,
	}

	if cfg.Metrics.Enabled {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/health", app.handleHealth)

		serverConfig := server.DefaultConfig()
		serverConfig.Addr = cfg.Metrics.Addr
		app.metricsManager = server.NewManager(mux, serverConfig, logger)
	}

	return app, nil
}

// Start 启动流水线与指标端点。
func (a *App) Start() error {
	if err := a.pipeline.Start(); err != nil {
		return err
	}

	if a.metricsManager != nil {
		if err := a.metricsManager.Start(); err != nil {
			ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = a.pipeline.Stop(ctx)
			return err
		}
		a.logger.Info("Metrics server started", zap.String("addr", a.metricsManager.Addr()))
	}

	return nil
}

// WaitForShutdown 等待关闭信号并优雅关闭
func (a *App) WaitForShutdown() {
	if a.metricsManager != nil {
		a.metricsManager.WaitForShutdown()
	} else {
		// 没有指标端点时直接用一个空服务管理器监听信号
		noop := server.NewManager(http.NewServeMux(), server.DefaultConfig(), a.logger)
		noop.WaitForShutdown()
	}

	a.Shutdown()
}

// Shutdown 优雅关闭所有组件：先断外部接入，再停调度，最后刷遥测。
func (a *App) Shutdown() {
	a.logger.Info("Starting graceful shutdown...")

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := a.pipeline.Stop(ctx); err != nil {
		a.logger.Error("Pipeline shutdown error", zap.Error(err))
	}

	if err := a.otelProviders.Shutdown(ctx); err != nil {
		a.logger.Error("Telemetry shutdown error", zap.Error(err))
	}
}

// handleHealth 汇报路由器与调度器的运行概况。
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	summary := a.pipeline.Router().Summary()
	counters := a.pipeline.Scheduler().Counters()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":         "ok",
		"active_streams": summary.TotalStreams,
		"active_loops":   counters.ActiveStreams,
		"process_cycles": counters.TotalProcessCycles,
		"failures":       counters.TotalFailures,
	})
}

// logProcessor 把每个周期的未读消息整体消费并写入日志。
// 真实部署中这里换成调用 LLM 后端的 Processor 实现。
type logProcessor struct {
	logger *zap.Logger
}

func newLogProcessor(logger *zap.Logger) *logProcessor {
	return &logProcessor{logger: logger.With(zap.String("component", "log_processor"))}
}

func (p *logProcessor) Process(ctx context.Context, streamID string, conv processor.Conversation) (*processor.Result, error) {
	consumed := conv.ConsumeUnread(0)
	for _, m := range consumed {
		p.logger.Info("处理消息",
			zap.String("stream_id", streamID),
			zap.Int64("message_id", m.MessageID),
			zap.String("sender", m.Nickname),
			zap.String("content", m.Content))
	}
	return &processor.Result{Success: true, Consumed: consumed}, nil
}
