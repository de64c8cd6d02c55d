// Package sse reads and writes the SSE (Server-Sent Events) framing used
// between the streamchat API and its clients. The API relays decoded LLM
// fragments with a Writer; the CLI consumes them with a Reader.
//
// Upstream LLM streams are not parsed here. They go through pkg/stream, which
// tolerates the looser framing those endpoints produce.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

// Event types the API relay emits.
const (
	EventFragment = "fragment"
	EventReplace  = "replace"
	EventComplete = "complete"
	EventError    = "error"
	EventChunk    = "chunk"
)

// Event represents a single parsed SSE event, delimited by a blank line
// in the byte stream.
type Event struct {
	// Type is the SSE event type from the "event:" field.
	// An empty string means the default "message" type per the SSE spec.
	Type string

	// Data is the concatenated contents of all "data:" lines for this event,
	// joined with "\n" (per the SSE spec, multiple data fields are joined
	// with a single newline).
	Data string

	// ID is the last event ID from the "id:" field, if present.
	ID string
}
