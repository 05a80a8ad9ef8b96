package bus

// InboundMessage is the normalized view of one chat event, independent of
// the transport wire format. Adapters fill every field they can; the
// dispatch pipeline never looks at raw platform payloads.
type InboundMessage struct {
	Channel string `json:"channel"`

	// Transport-assigned identifiers, opaque. Used only for deduplication.
	EventID   string `json:"event_id,omitempty"`
	MessageID string `json:"message_id,omitempty"`

	SenderID string `json:"sender_id"`
	ChatID   string `json:"chat_id"`
	ThreadID string `json:"thread_id,omitempty"`

	Content string `json:"content"`

	// FromBot is true for any non-human account, including our own replies.
	FromBot bool `json:"from_bot,omitempty"`

	// CreatedAtMillis is the origination timestamp in epoch milliseconds.
	CreatedAtMillis int64 `json:"created_at_millis"`

	Metadata map[string]string `json:"metadata,omitempty"`
}

// OutboundKind distinguishes plain text from rich card content.
type OutboundKind string

const (
	KindText OutboundKind = "text"
	KindCard OutboundKind = "card"
)

// OutboundMessage is one reply heading back to a chat surface. Card content
// is a JSON document in the platform's card format.
type OutboundMessage struct {
	Channel  string            `json:"channel"`
	ChatID   string            `json:"chat_id"`
	ThreadID string            `json:"thread_id,omitempty"`
	Kind     OutboundKind      `json:"kind"`
	Content  string            `json:"content"`
	IsError  bool              `json:"is_error,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}
