package stream

import (
	"github.com/BaSui01/streamflow/types"
)

// =============================================================================
// 🔑 流键提取
// =============================================================================

// KeyFor 从事件推导流键。这是一个全函数：任何事件（包括 nil）都会得到
// 一个确定的键，无法归类的事件统一落入共享的 system 桶，避免键空间
// 被心跳等低价值事件撑大。
func KeyFor(ev types.Event) types.StreamKey {
	if ev == nil {
		return types.SystemBucketKey()
	}

	switch e := ev.(type) {
	case types.MessageEvent:
		if e.Scope == types.ScopeGroup {
			return types.NewStreamKey(platformOf(e), types.FormatEntityID(e.GroupID), types.KindGroup)
		}
		return types.NewStreamKey(platformOf(e), types.FormatEntityID(e.UserID), types.KindPrivate)

	case types.NoticeEvent:
		// 通知事件优先归入所属群聊，否则归入私聊对端
		if e.GroupID != 0 {
			return types.NewStreamKey(platformOf(e), types.FormatEntityID(e.GroupID), types.KindGroup)
		}
		if e.UserID != 0 {
			return types.NewStreamKey(platformOf(e), types.FormatEntityID(e.UserID), types.KindPrivate)
		}
		return types.SystemBucketKey()

	default:
		// meta_event 与未识别事件共用一个低流量桶
		return types.SystemBucketKey()
	}
}

func platformOf(ev types.Event) string {
	if p := ev.Source(); p != "" {
		return p
	}
	return "unknown"
}
