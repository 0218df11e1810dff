package stream

import (
	"testing"

	"pgregory.net/rapid"

	"github.com/BaSui01/streamflow/types"
)

// 键提取是全函数：任意字段组合都必须产出确定的、可比较的流键，
// 且同一事件重复提取结果一致。
func TestProperty_KeyForIsTotalAndDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		platform := rapid.SampledFrom([]string{"qq", "telegram", ""}).Draw(rt, "platform")
		kind := rapid.IntRange(0, 2).Draw(rt, "kind")
		groupID := rapid.Int64Range(0, 1<<32).Draw(rt, "groupID")
		userID := rapid.Int64Range(0, 1<<32).Draw(rt, "userID")

		var ev types.Event
		switch kind {
		case 0:
			scope := rapid.SampledFrom([]types.MessageScope{types.ScopeGroup, types.ScopePrivate}).Draw(rt, "scope")
			ev = types.MessageEvent{Platform: platform, Scope: scope, GroupID: groupID, UserID: userID}
		case 1:
			ev = types.NoticeEvent{Platform: platform, GroupID: groupID, UserID: userID}
		default:
			ev = types.MetaEvent{Platform: platform}
		}

		key1 := KeyFor(ev)
		key2 := KeyFor(ev)

		if key1 != key2 {
			rt.Fatalf("extraction not deterministic: %v vs %v", key1, key2)
		}
		if key1.Kind == "" || key1.Entity == "" || key1.Platform == "" {
			rt.Fatalf("incomplete key: %+v", key1)
		}
		if key1.Kind != types.KindGroup && key1.Kind != types.KindPrivate &&
			key1.Kind != types.KindSystem && key1.Kind != types.KindUnknown {
			rt.Fatalf("unexpected kind: %q", key1.Kind)
		}
	})
}

// 会话消息永远不会落入系统桶：丢进系统桶的只能是非会话事件。
func TestProperty_MessagesNeverCoalesce(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		scope := rapid.SampledFrom([]types.MessageScope{types.ScopeGroup, types.ScopePrivate}).Draw(rt, "scope")
		ev := types.MessageEvent{
			Platform: "qq",
			Scope:    scope,
			GroupID:  rapid.Int64Range(1, 1<<32).Draw(rt, "groupID"),
			UserID:   rapid.Int64Range(1, 1<<32).Draw(rt, "userID"),
		}

		key := KeyFor(ev)
		if key == types.SystemBucketKey() {
			rt.Fatalf("conversational event coalesced into system bucket")
		}
		if !key.IsConversational() {
			rt.Fatalf("message event produced non-conversational key %v", key)
		}
	})
}
