package conversation

import (
	"sync"

	"go.uber.org/zap"
)

// =============================================================================
// 🗂️ 会话存储
// =============================================================================

// Store 持有流 ID → 会话上下文的映射。与流路由器同生命周期：
// 路由器淘汰一个流时由淘汰回调移除对应上下文。
type Store struct {
	mu       sync.RWMutex
	contexts map[string]*Context
	logger   *zap.Logger
}

// NewStore 创建会话存储。
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		contexts: make(map[string]*Context),
		logger:   logger.With(zap.String("component", "conversation_store")),
	}
}

// Get 查找会话上下文。
func (s *Store) Get(streamID string) (*Context, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.contexts[streamID]
	return c, ok
}

// GetOrCreate 查找会话上下文，不存在则创建。
func (s *Store) GetOrCreate(streamID string) *Context {
	s.mu.RLock()
	c, ok := s.contexts[streamID]
	s.mu.RUnlock()
	if ok {
		return c
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.contexts[streamID]; ok {
		return c
	}
	c = NewContext(streamID)
	s.contexts[streamID] = c
	s.logger.Debug("conversation context created", zap.String("stream", streamID))
	return c
}

// Remove 移除会话上下文。
func (s *Store) Remove(streamID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.contexts[streamID]; ok {
		delete(s.contexts, streamID)
		s.logger.Debug("conversation context removed", zap.String("stream", streamID))
	}
}

// Len 返回当前会话数。
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.contexts)
}

// StreamIDs 返回所有会话的流 ID。
func (s *Store) StreamIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.contexts))
	for id := range s.contexts {
		ids = append(ids, id)
	}
	return ids
}
