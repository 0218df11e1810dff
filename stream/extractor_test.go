package stream

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/BaSui01/streamflow/types"
)

func TestKeyFor_GroupMessage(t *testing.T) {
	ev := types.MessageEvent{Platform: "qq", Scope: types.ScopeGroup, GroupID: 66600, UserID: 1}
	key := KeyFor(ev)
	assert.Equal(t, types.NewStreamKey("qq", "66600", types.KindGroup), key)
}

func TestKeyFor_PrivateMessage(t *testing.T) {
	ev := types.MessageEvent{Platform: "qq", Scope: types.ScopePrivate, UserID: 42}
	key := KeyFor(ev)
	assert.Equal(t, types.NewStreamKey("qq", "42", types.KindPrivate), key)
}

func TestKeyFor_NoticePrefersGroup(t *testing.T) {
	ev := types.NoticeEvent{Platform: "qq", NoticeType: "notify", GroupID: 7, UserID: 3}
	assert.Equal(t, types.KindGroup, KeyFor(ev).Kind)
	assert.Equal(t, "7", KeyFor(ev).Entity)

	ev.GroupID = 0
	assert.Equal(t, types.KindPrivate, KeyFor(ev).Kind)
	assert.Equal(t, "3", KeyFor(ev).Entity)

	// 既无群号也无用户号的通知落入系统桶
	ev.UserID = 0
	assert.Equal(t, types.SystemBucketKey(), KeyFor(ev))
}

func TestKeyFor_MetaAndUnknownCoalesce(t *testing.T) {
	meta := types.MetaEvent{Platform: "qq", MetaType: "heartbeat"}
	unknown := types.UnknownEvent{Platform: "qq", PostType: "request"}

	// 所有非会话事件共用同一个低流量桶
	assert.Equal(t, types.SystemBucketKey(), KeyFor(meta))
	assert.Equal(t, types.SystemBucketKey(), KeyFor(unknown))
	assert.Equal(t, types.SystemBucketKey(), KeyFor(nil))
}

func TestKeyFor_EmptyPlatform(t *testing.T) {
	ev := types.MessageEvent{Scope: types.ScopePrivate, UserID: 9}
	assert.Equal(t, "unknown", KeyFor(ev).Platform)
}
