package eventstream

import (
	"time"

	"github.com/google/uuid"
)

const (
	// SchemaVersionV1 is the first version of the event payload schema.
	SchemaVersionV1 = 1

	// EventTypeMessagePersisted is emitted after an assistant reply is persisted.
	EventTypeMessagePersisted = "streamchat.message.persisted"
)

// MessagePersistedEvent is a transport-neutral event payload for a persisted
// chat message.
type MessagePersistedEvent struct {
	SchemaVersion int         `json:"schema_version"`
	EventType     string      `json:"event_type"`
	EventID       string      `json:"event_id"`
	EmittedAt     time.Time   `json:"emitted_at"`
	Source        EventSource `json:"source"`
	Session       SessionMeta `json:"session"`
	Message       MessageMeta `json:"message"`
	Stream        StreamMeta  `json:"stream"`
}

// EventSource identifies which upstream produced the message.
type EventSource struct {
	Provider string `json:"provider"`
	Model    string `json:"model,omitempty"`
}

// SessionMeta identifies the conversation.
type SessionMeta struct {
	ID     string `json:"id"`
	UserID string `json:"user_id"`
}

// MessageMeta is the persisted message.
type MessageMeta struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamMeta captures how the reply was streamed.
type StreamMeta struct {
	StartedAt   time.Time `json:"started_at"`
	CompletedAt time.Time `json:"completed_at"`
	DurationMs  int64     `json:"duration_ms"`
	Fragments   int       `json:"fragments"`
	EndReason   string    `json:"end_reason"`
}

// NewMessagePersistedEvent fills in the envelope fields.
func NewMessagePersistedEvent(source EventSource, session SessionMeta, message MessageMeta, stream StreamMeta) *MessagePersistedEvent {
	if stream.DurationMs == 0 && !stream.StartedAt.IsZero() && !stream.CompletedAt.IsZero() {
		stream.DurationMs = stream.CompletedAt.Sub(stream.StartedAt).Milliseconds()
	}
	return &MessagePersistedEvent{
		SchemaVersion: SchemaVersionV1,
		EventType:     EventTypeMessagePersisted,
		EventID:       uuid.NewString(),
		EmittedAt:     time.Now().UTC(),
		Source:        source,
		Session:       session,
		Message:       message,
		Stream:        stream,
	}
}
