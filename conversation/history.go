package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/BaSui01/streamflow/config"
	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 📜 历史消息缓存
// =============================================================================

const historyKeyPrefix = "streamflow:history:"

// HistoryRecorder 把每个处理周期消费掉的消息追加到按流分键的 Redis 列表，
// 供操作面板和后续会话回溯使用。它只是观测辅助：队列本身仍是纯内存、
// 不做投递保证。nil *HistoryRecorder 是合法的空实现。
type HistoryRecorder struct {
	redis  *redis.Client
	limit  int64
	ttl    time.Duration
	logger *zap.Logger
}

// NewHistoryRecorder 连接 Redis 并创建记录器。
func NewHistoryRecorder(cfg config.RedisConfig, logger *zap.Logger) (*HistoryRecorder, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	logger.Info("history recorder initialized",
		zap.String("addr", cfg.Addr),
		zap.Int("history_limit", cfg.HistoryLimit),
	)

	return &HistoryRecorder{
		redis:  client,
		limit:  int64(cfg.HistoryLimit),
		ttl:    cfg.HistoryTTL,
		logger: logger.With(zap.String("component", "history_recorder")),
	}, nil
}

// Record 追加一批已消费消息。记录失败只打日志，绝不影响处理周期。
func (h *HistoryRecorder) Record(ctx context.Context, streamID string, msgs []types.Message) {
	if h == nil || len(msgs) == 0 {
		return
	}

	key := historyKeyPrefix + streamID
	values := make([]interface{}, 0, len(msgs))
	for _, m := range msgs {
		data, err := json.Marshal(m)
		if err != nil {
			h.logger.Error("failed to marshal history message",
				zap.String("stream", streamID), zap.Error(err))
			continue
		}
		values = append(values, data)
	}
	if len(values) == 0 {
		return
	}

	pipe := h.redis.Pipeline()
	pipe.LPush(ctx, key, values...)
	pipe.LTrim(ctx, key, 0, h.limit-1)
	if h.ttl > 0 {
		pipe.Expire(ctx, key, h.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		h.logger.Error("failed to record history",
			zap.String("stream", streamID), zap.Error(err))
	}
}

// Recent 返回某个流最近的至多 n 条历史消息，新的在前。
func (h *HistoryRecorder) Recent(ctx context.Context, streamID string, n int64) ([]types.Message, error) {
	if h == nil {
		return nil, nil
	}

	raw, err := h.redis.LRange(ctx, historyKeyPrefix+streamID, 0, n-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read history: %w", err)
	}

	msgs := make([]types.Message, 0, len(raw))
	for _, item := range raw {
		var m types.Message
		if err := json.Unmarshal([]byte(item), &m); err != nil {
			h.logger.Warn("skipping malformed history entry",
				zap.String("stream", streamID), zap.Error(err))
			continue
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// Close 关闭 Redis 连接。
func (h *HistoryRecorder) Close() error {
	if h == nil {
		return nil
	}
	return h.redis.Close()
}
