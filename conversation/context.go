// Package conversation owns the per-stream conversation state read by the
// dispatch scheduler: the ordered unread list, the staging buffer inbound
// messages land in, and the processing guard that keeps processing cycles
// for one stream mutually exclusive.
package conversation

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 💬 会话上下文
// =============================================================================

// Context 单个流的会话状态。入站消息先进入 cached 暂存区，由调度循环
// 在每个 tick 把暂存区冲入 unread；Processor 消费 unread。
type Context struct {
	streamID  string
	createdAt time.Time

	mu     sync.Mutex
	cached []types.Message
	unread []types.Message

	processing atomic.Bool
}

// NewContext 创建会话上下文。
func NewContext(streamID string) *Context {
	return &Context{
		streamID:  streamID,
		createdAt: time.Now(),
	}
}

// StreamID 返回所属流。
func (c *Context) StreamID() string { return c.streamID }

// AppendCached 把一条新消息放入暂存区。
func (c *Context) AppendCached(msg types.Message) {
	c.mu.Lock()
	c.cached = append(c.cached, msg)
	c.mu.Unlock()
}

// FlushCached 把暂存区整体冲入未读列表（带副作用的排空），
// 返回本次冲入的消息。
func (c *Context) FlushCached() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	flushed := c.cached
	c.cached = nil
	c.unread = append(c.unread, flushed...)
	return flushed
}

// UnreadCount 返回未读消息数。
func (c *Context) UnreadCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.unread)
}

// UnreadMessages 返回未读消息的副本（保持顺序）。
func (c *Context) UnreadMessages() []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.Message(nil), c.unread...)
}

// ConsumeUnread 按序取走最多 n 条未读消息。n <= 0 表示全部取走。
func (c *Context) ConsumeUnread(n int) []types.Message {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n <= 0 || n > len(c.unread) {
		n = len(c.unread)
	}
	consumed := append([]types.Message(nil), c.unread[:n]...)
	c.unread = c.unread[n:]
	return consumed
}

// TryBeginProcessing 尝试取得处理权。同一流上已有处理周期在途时返回
// false——这是单流处理互斥的唯一闸门。
func (c *Context) TryBeginProcessing() bool {
	return c.processing.CompareAndSwap(false, true)
}

// EndProcessing 释放处理权。
func (c *Context) EndProcessing() {
	c.processing.Store(false)
}

// IsProcessing 返回是否有处理周期在途。
func (c *Context) IsProcessing() bool {
	return c.processing.Load()
}
