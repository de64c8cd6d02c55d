package stream

import (
	"encoding/json"
	"strings"
)

// Terminator is the sentinel payload that ends a stream.
const Terminator = "[DONE]"

// LineKind classifies one trimmed line of a streamed response body.
type LineKind int

const (
	// LineIgnored is an empty line or a field the decoder has no use for.
	LineIgnored LineKind = iota

	// LineData carries a payload after a "data:" prefix.
	LineData

	// LineEvent names the type of the following event ("event:").
	LineEvent

	// LineStatus is a transport status marker or comment, such as
	// ":HTTP_STATUS/200" or a ":" keep-alive.
	LineStatus

	// LineTerminator is the [DONE] sentinel, bare or as a data payload.
	LineTerminator
)

func (k LineKind) String() string {
	switch k {
	case LineData:
		return "data"
	case LineEvent:
		return "event"
	case LineStatus:
		return "status"
	case LineTerminator:
		return "terminator"
	default:
		return "ignored"
	}
}

// Line is a classified line. Value holds the payload of data lines (with one
// wrapping quote pair removed) and the event name of event lines.
type Line struct {
	Kind  LineKind
	Raw   string
	Value string
}

// ClassifyLine trims raw and decides what kind of line it is.
func ClassifyLine(raw string) Line {
	line := strings.TrimSpace(raw)
	if line == "" {
		return Line{Kind: LineIgnored, Raw: line}
	}

	if line == Terminator {
		return Line{Kind: LineTerminator, Raw: line}
	}

	if strings.HasPrefix(line, ":") {
		return Line{Kind: LineStatus, Raw: line}
	}

	field, value, ok := strings.Cut(line, ":")
	if !ok {
		return Line{Kind: LineIgnored, Raw: line}
	}
	value = strings.TrimPrefix(value, " ")

	switch field {
	case "data":
		value = unquote(strings.TrimSpace(value))
		if value == Terminator {
			return Line{Kind: LineTerminator, Raw: line, Value: value}
		}
		return Line{Kind: LineData, Raw: line, Value: value}
	case "event":
		return Line{Kind: LineEvent, Raw: line, Value: strings.TrimSpace(value)}
	default:
		// "id", "retry" and unknown fields carry nothing we use.
		return Line{Kind: LineIgnored, Raw: line}
	}
}

// unquote removes one wrapping pair of quotes from a data payload. A payload
// that is a valid JSON string literal is decoded as one, so escaped JSON
// objects like "{\"a\":1}" come back as {"a":1}.
func unquote(v string) string {
	if len(v) < 2 {
		return v
	}

	first, last := v[0], v[len(v)-1]
	if first == '"' && last == '"' {
		var decoded string
		if err := json.Unmarshal([]byte(v), &decoded); err == nil {
			return decoded
		}
		return v[1 : len(v)-1]
	}
	if first == '\'' && last == '\'' {
		return v[1 : len(v)-1]
	}
	return v
}
