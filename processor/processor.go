// Package processor defines the boundary to the expensive downstream
// processing stage (LLM-backed response generation). The scheduler drives
// implementations of Processor; their internals — prompt construction,
// provider calls, reply delivery — live entirely on the other side of this
// interface.
package processor

import (
	"context"

	"github.com/BaSui01/streamflow/types"
)

// Conversation is the read/consume surface a Processor sees. It is the
// narrow slice of the conversation context a processing cycle needs:
// processors decide themselves how many unread messages one cycle consumes.
type Conversation interface {
	// UnreadMessages returns the ordered unread messages without consuming them.
	UnreadMessages() []types.Message
	// ConsumeUnread removes and returns up to n unread messages in order;
	// n <= 0 consumes all.
	ConsumeUnread(n int) []types.Message
}

// Result reports the outcome of one processing cycle.
type Result struct {
	// Success is false when the processor ran but declined or failed to
	// produce a response. The scheduler counts it as a failure either way.
	Success bool
	// Consumed holds the messages this cycle consumed, for history recording.
	Consumed []types.Message
	// Reply optionally carries the generated response for logging.
	Reply string
}

// Processor is invoked by the dispatch scheduler, at most once concurrently
// per stream, under the global admission semaphore.
type Processor interface {
	Process(ctx context.Context, streamID string, conv Conversation) (*Result, error)
}

// Func adapts a function to the Processor interface.
type Func func(ctx context.Context, streamID string, conv Conversation) (*Result, error)

// Process implements Processor.
func (f Func) Process(ctx context.Context, streamID string, conv Conversation) (*Result, error) {
	return f(ctx, streamID, conv)
}
