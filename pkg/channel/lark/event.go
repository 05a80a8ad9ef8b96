package lark

import (
	"encoding/json"
	"strconv"

	"walletbot/pkg/bus"
)

const eventTypeMessageReceive = "im.message.receive_v1"

// Envelope is the schema 2.0 webhook payload. Verification challenges carry
// Type and Challenge; message events carry Header and Event.
type Envelope struct {
	Type      string `json:"type,omitempty"`
	Challenge string `json:"challenge,omitempty"`
	Token     string `json:"token,omitempty"`

	Schema string      `json:"schema,omitempty"`
	Header EventHeader `json:"header,omitempty"`
	Event  EventBody   `json:"event,omitempty"`
}

type EventHeader struct {
	EventID    string `json:"event_id"`
	EventType  string `json:"event_type"`
	CreateTime string `json:"create_time"`
	Token      string `json:"token"`
}

type EventBody struct {
	Sender  EventSender  `json:"sender"`
	Message EventMessage `json:"message"`
}

type EventSender struct {
	SenderID   SenderID `json:"sender_id"`
	SenderType string   `json:"sender_type"`
}

type SenderID struct {
	UserID  string `json:"user_id"`
	OpenID  string `json:"open_id"`
	UnionID string `json:"union_id"`
}

type EventMessage struct {
	MessageID   string `json:"message_id"`
	ChatID      string `json:"chat_id"`
	ThreadID    string `json:"thread_id"`
	CreateTime  string `json:"create_time"`
	MessageType string `json:"message_type"`
	Content     string `json:"content"`
}

// resolve picks the most specific sender identifier available.
func (s SenderID) resolve() string {
	if s.UserID != "" {
		return s.UserID
	}
	if s.OpenID != "" {
		return s.OpenID
	}
	return s.UnionID
}

// parseContent extracts the text from a message content payload. Text
// messages arrive as JSON `{"text": "..."}`; only payloads that fail to
// decode fall back to the raw string.
func parseContent(raw string) string {
	if raw == "" {
		return ""
	}
	var text struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal([]byte(raw), &text); err != nil {
		return raw
	}
	return text.Text
}

// ToInbound converts a message event into the bus envelope.
func (e *Envelope) ToInbound() bus.InboundMessage {
	msg := e.Event.Message
	createdAt, _ := strconv.ParseInt(msg.CreateTime, 10, 64)

	return bus.InboundMessage{
		Channel:         channelName,
		EventID:         e.Header.EventID,
		MessageID:       msg.MessageID,
		SenderID:        e.Event.Sender.SenderID.resolve(),
		ChatID:          msg.ChatID,
		ThreadID:        msg.ThreadID,
		Content:         parseContent(msg.Content),
		FromBot:         e.Event.Sender.SenderType == "bot",
		CreatedAtMillis: createdAt,
		Metadata: map[string]string{
			"message_type": msg.MessageType,
		},
	}
}
