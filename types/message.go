package types

import (
	"strconv"
	"time"
)

// Message is the internal chat message shape staged into a conversation
// after protocol-level handling of a MessageEvent.
type Message struct {
	MessageID int64     `json:"message_id"`
	StreamID  string    `json:"stream_id"`
	UserID    int64     `json:"user_id"`
	Nickname  string    `json:"nickname,omitempty"`
	Content   string    `json:"content"`
	Time      time.Time `json:"time"`
}

// MessageFromEvent converts a MessageEvent into the internal message shape
// for the given stream.
func MessageFromEvent(streamID string, ev MessageEvent) Message {
	name := ev.Sender.Card
	if name == "" {
		name = ev.Sender.Nickname
	}
	return Message{
		MessageID: ev.MessageID,
		StreamID:  streamID,
		UserID:    ev.UserID,
		Nickname:  name,
		Content:   ev.Content,
		Time:      ev.Time,
	}
}

// FormatEntityID renders a numeric platform id as a stream key entity.
func FormatEntityID(id int64) string {
	return strconv.FormatInt(id, 10)
}
