package types

import (
	"encoding/json"
	"time"
)

// EventType discriminates the inbound event union.
type EventType string

const (
	EventMessage EventType = "message"
	EventNotice  EventType = "notice"
	EventMeta    EventType = "meta_event"
	EventUnknown EventType = "unknown"
)

// MessageScope is the conversation scope of a message event.
type MessageScope string

const (
	ScopeGroup   MessageScope = "group"
	ScopePrivate MessageScope = "private"
)

// Event is the tagged union of inbound chat events. Exactly one of
// MessageEvent, NoticeEvent, MetaEvent or UnknownEvent implements it.
type Event interface {
	// Type returns the union tag.
	Type() EventType
	// Source returns the platform the event originated from.
	Source() string
}

// MessageEvent is a chat message from a group or private conversation.
type MessageEvent struct {
	Platform  string       `json:"platform"`
	Scope     MessageScope `json:"message_type"`
	MessageID int64        `json:"message_id"`
	GroupID   int64        `json:"group_id,omitempty"`
	UserID    int64        `json:"user_id"`
	SelfID    int64        `json:"self_id,omitempty"`
	Content   string       `json:"raw_message"`
	Sender    Sender       `json:"sender,omitempty"`
	Time      time.Time    `json:"-"`
}

// Sender carries the optional sender profile attached to a message event.
type Sender struct {
	Nickname string `json:"nickname,omitempty"`
	Card     string `json:"card,omitempty"`
	Role     string `json:"role,omitempty"`
}

func (e MessageEvent) Type() EventType { return EventMessage }
func (e MessageEvent) Source() string  { return e.Platform }

// NoticeEvent is a platform notification (poke, recall, member change, ...).
type NoticeEvent struct {
	Platform   string    `json:"platform"`
	NoticeType string    `json:"notice_type"`
	GroupID    int64     `json:"group_id,omitempty"`
	UserID     int64     `json:"user_id,omitempty"`
	Time       time.Time `json:"-"`
}

func (e NoticeEvent) Type() EventType { return EventNotice }
func (e NoticeEvent) Source() string  { return e.Platform }

// MetaEvent is a protocol-level event (heartbeat, lifecycle).
type MetaEvent struct {
	Platform string    `json:"platform"`
	MetaType string    `json:"meta_event_type"`
	Time     time.Time `json:"-"`
}

func (e MetaEvent) Type() EventType { return EventMeta }
func (e MetaEvent) Source() string  { return e.Platform }

// UnknownEvent preserves events whose post_type is not recognized. The
// original payload is kept for diagnostics.
type UnknownEvent struct {
	Platform string          `json:"platform"`
	PostType string          `json:"post_type"`
	Raw      json.RawMessage `json:"-"`
}

func (e UnknownEvent) Type() EventType { return EventUnknown }
func (e UnknownEvent) Source() string  { return e.Platform }

// rawEvent mirrors the loosely-typed OneBot v11 wire shape.
type rawEvent struct {
	PostType    string          `json:"post_type"`
	MessageType string          `json:"message_type"`
	NoticeType  string          `json:"notice_type"`
	MetaType    string          `json:"meta_event_type"`
	MessageID   int64           `json:"message_id"`
	GroupID     int64           `json:"group_id"`
	UserID      int64           `json:"user_id"`
	SelfID      int64           `json:"self_id"`
	RawMessage  string          `json:"raw_message"`
	Sender      Sender          `json:"sender"`
	Time        int64           `json:"time"`
}

// ParseEvent decodes a OneBot v11 JSON frame into the event union. It is
// tolerant: missing or unexpected fields never fail the decode; an
// unrecognized post_type yields an UnknownEvent. Only malformed JSON
// returns an error.
func ParseEvent(platform string, data []byte) (Event, error) {
	var re rawEvent
	if err := json.Unmarshal(data, &re); err != nil {
		return nil, NewError(ErrCodeInvalidEvent, "malformed event frame").WithCause(err)
	}

	ts := time.Unix(re.Time, 0)
	if re.Time == 0 {
		ts = time.Now()
	}

	switch re.PostType {
	case "message", "message_sent":
		scope := ScopePrivate
		if re.MessageType == "group" {
			scope = ScopeGroup
		}
		return MessageEvent{
			Platform:  platform,
			Scope:     scope,
			MessageID: re.MessageID,
			GroupID:   re.GroupID,
			UserID:    re.UserID,
			SelfID:    re.SelfID,
			Content:   re.RawMessage,
			Sender:    re.Sender,
			Time:      ts,
		}, nil
	case "notice":
		return NoticeEvent{
			Platform:   platform,
			NoticeType: re.NoticeType,
			GroupID:    re.GroupID,
			UserID:     re.UserID,
			Time:       ts,
		}, nil
	case "meta_event":
		return MetaEvent{
			Platform: platform,
			MetaType: re.MetaType,
			Time:     ts,
		}, nil
	default:
		return UnknownEvent{
			Platform: platform,
			PostType: re.PostType,
			Raw:      append(json.RawMessage(nil), data...),
		}, nil
	}
}
