package sse

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
)

// flusher matches *bufio.Writer, which is what fasthttp hands a body stream
// writer.
type flusher interface {
	Flush() error
}

// Writer frames events onto w, flushing after each one when w supports it.
type Writer struct {
	w io.Writer
}

// NewWriter returns a Writer over w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// WriteEvent writes ev. Multi-line data is split across several data fields
// so it survives the round trip.
func (w *Writer) WriteEvent(ev Event) error {
	var b strings.Builder
	if ev.ID != "" {
		fmt.Fprintf(&b, "id: %s\n", ev.ID)
	}
	if ev.Type != "" {
		fmt.Fprintf(&b, "event: %s\n", ev.Type)
	}
	for line := range strings.SplitSeq(ev.Data, "\n") {
		fmt.Fprintf(&b, "data: %s\n", line)
	}
	b.WriteString("\n")

	if _, err := io.WriteString(w.w, b.String()); err != nil {
		return err
	}
	return w.flush()
}

// WriteJSON writes an event whose data is v encoded as JSON.
func (w *Writer) WriteJSON(eventType string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encoding %s event: %w", eventType, err)
	}
	return w.WriteEvent(Event{Type: eventType, Data: string(data)})
}

// Comment writes a comment line, typically as a keep-alive.
func (w *Writer) Comment(text string) error {
	if _, err := fmt.Fprintf(w.w, ": %s\n\n", text); err != nil {
		return err
	}
	return w.flush()
}

func (w *Writer) flush() error {
	if f, ok := w.w.(flusher); ok {
		return f.Flush()
	}
	return nil
}
