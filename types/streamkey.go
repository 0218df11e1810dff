package types

import "fmt"

// StreamKind classifies what a stream key points at.
type StreamKind string

const (
	KindGroup   StreamKind = "group"
	KindPrivate StreamKind = "private"
	KindSystem  StreamKind = "system"
	KindUnknown StreamKind = "unknown"
)

// StreamKey uniquely identifies one independently-ordered conversation
// endpoint. It is comparable and used directly as a map key; it is the sole
// sharding key for both FIFO ordering and concurrency.
type StreamKey struct {
	Platform string
	Entity   string
	Kind     StreamKind
}

// NewStreamKey creates a StreamKey from its three parts.
func NewStreamKey(platform, entity string, kind StreamKind) StreamKey {
	return StreamKey{Platform: platform, Entity: entity, Kind: kind}
}

// String returns the stable "platform:entity:kind" form used in logs,
// metrics labels and as the conversation stream id.
func (k StreamKey) String() string {
	return fmt.Sprintf("%s:%s:%s", k.Platform, k.Entity, k.Kind)
}

// IsConversational reports whether the key identifies a real conversation
// (as opposed to the coalesced system/unknown buckets). Only conversational
// streams get a dispatch loop.
func (k StreamKey) IsConversational() bool {
	return k.Kind == KindGroup || k.Kind == KindPrivate
}

// SystemBucketKey is the single shared key that all meta and otherwise
// unclassifiable events coalesce onto, so that heartbeat noise can never
// grow the stream map.
func SystemBucketKey() StreamKey {
	return StreamKey{Platform: "system", Entity: "meta_event", Kind: KindSystem}
}
