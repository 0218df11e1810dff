package types

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent_GroupMessage(t *testing.T) {
	data := []byte(`{
		"post_type": "message",
		"message_type": "group",
		"message_id": 12001,
		"group_id": 66600,
		"user_id": 10086,
		"self_id": 99999,
		"raw_message": "hello there",
		"sender": {"nickname": "alice", "card": "Alice A"},
		"time": 1700000000
	}`)

	ev, err := ParseEvent("qq", data)
	require.NoError(t, err)

	msg, ok := ev.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, EventMessage, msg.Type())
	assert.Equal(t, "qq", msg.Source())
	assert.Equal(t, ScopeGroup, msg.Scope)
	assert.Equal(t, int64(66600), msg.GroupID)
	assert.Equal(t, int64(10086), msg.UserID)
	assert.Equal(t, "hello there", msg.Content)
	assert.Equal(t, time.Unix(1700000000, 0), msg.Time)
}

func TestParseEvent_PrivateMessage(t *testing.T) {
	data := []byte(`{"post_type":"message","message_type":"private","user_id":42,"raw_message":"hi"}`)

	ev, err := ParseEvent("qq", data)
	require.NoError(t, err)

	msg, ok := ev.(MessageEvent)
	require.True(t, ok)
	assert.Equal(t, ScopePrivate, msg.Scope)
	assert.Equal(t, int64(42), msg.UserID)
	assert.False(t, msg.Time.IsZero())
}

func TestParseEvent_Notice(t *testing.T) {
	data := []byte(`{"post_type":"notice","notice_type":"notify","group_id":7,"user_id":3}`)

	ev, err := ParseEvent("qq", data)
	require.NoError(t, err)

	notice, ok := ev.(NoticeEvent)
	require.True(t, ok)
	assert.Equal(t, "notify", notice.NoticeType)
	assert.Equal(t, int64(7), notice.GroupID)
}

func TestParseEvent_Meta(t *testing.T) {
	data := []byte(`{"post_type":"meta_event","meta_event_type":"heartbeat"}`)

	ev, err := ParseEvent("qq", data)
	require.NoError(t, err)

	meta, ok := ev.(MetaEvent)
	require.True(t, ok)
	assert.Equal(t, "heartbeat", meta.MetaType)
}

func TestParseEvent_UnknownPostType(t *testing.T) {
	data := []byte(`{"post_type":"request","request_type":"friend"}`)

	ev, err := ParseEvent("qq", data)
	require.NoError(t, err)

	unknown, ok := ev.(UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "request", unknown.PostType)
	assert.JSONEq(t, string(data), string(unknown.Raw))
}

func TestParseEvent_MissingFields(t *testing.T) {
	// 字段缺失不应导致解析失败
	ev, err := ParseEvent("qq", []byte(`{}`))
	require.NoError(t, err)
	assert.Equal(t, EventUnknown, ev.Type())
}

func TestParseEvent_MalformedJSON(t *testing.T) {
	_, err := ParseEvent("qq", []byte(`{not json`))
	require.Error(t, err)
	assert.Equal(t, ErrCodeInvalidEvent, CodeOf(err))
}

func TestStreamKey_String(t *testing.T) {
	key := NewStreamKey("qq", "66600", KindGroup)
	assert.Equal(t, "qq:66600:group", key.String())
	assert.True(t, key.IsConversational())

	sys := SystemBucketKey()
	assert.Equal(t, "system:meta_event:system", sys.String())
	assert.False(t, sys.IsConversational())
}

func TestStreamKey_Comparable(t *testing.T) {
	a := NewStreamKey("qq", "1", KindPrivate)
	b := NewStreamKey("qq", "1", KindPrivate)
	m := map[StreamKey]int{a: 1}
	assert.Equal(t, 1, m[b])
}

func TestMessageFromEvent(t *testing.T) {
	ev := MessageEvent{
		MessageID: 5,
		UserID:    10,
		Content:   "ping",
		Sender:    Sender{Nickname: "bob", Card: "Bob B"},
		Time:      time.Unix(1700000000, 0),
	}

	msg := MessageFromEvent("qq:1:group", ev)
	assert.Equal(t, "qq:1:group", msg.StreamID)
	assert.Equal(t, "Bob B", msg.Nickname) // 群名片优先于昵称
	assert.Equal(t, "ping", msg.Content)

	ev.Sender.Card = ""
	msg = MessageFromEvent("qq:1:group", ev)
	assert.Equal(t, "bob", msg.Nickname)
}
