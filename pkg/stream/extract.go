package stream

import "encoding/json"

// Shape names the wire form a payload text was found in.
type Shape int

const (
	ShapeUnknown Shape = iota

	// ShapeNative is the provider's native form: output.text.
	ShapeNative

	// ShapeDelta is the chat-completion chunk form: choices[0].delta.content.
	ShapeDelta

	// ShapeCompletion is the legacy completion form: choices[0].text.
	ShapeCompletion

	// ShapeMessage is the non-streaming chat form: choices[0].message.content.
	ShapeMessage
)

func (s Shape) String() string {
	switch s {
	case ShapeNative:
		return "native"
	case ShapeDelta:
		return "delta"
	case ShapeCompletion:
		return "completion"
	case ShapeMessage:
		return "message"
	default:
		return "unknown"
	}
}

// Envelope is the JSON object carried by one data line. Only the fields the
// extractors look at are decoded.
type Envelope struct {
	Output    *Output  `json:"output,omitempty"`
	Choices   []Choice `json:"choices,omitempty"`
	Usage     *Usage   `json:"usage,omitempty"`
	RequestID string   `json:"request_id,omitempty"`
}

// FinishReason reads output.finish_reason or choices[0].finish_reason
// directly, whether or not the envelope carries any text.
func (e *Envelope) FinishReason() string {
	if e.Output != nil && e.Output.FinishReason != "" && e.Output.FinishReason != "null" {
		return e.Output.FinishReason
	}
	if len(e.Choices) > 0 {
		return finishReason(e.Choices[0].FinishReason)
	}
	return ""
}

// Output is the native-form body.
type Output struct {
	Text         string `json:"text"`
	FinishReason string `json:"finish_reason,omitempty"`
}

// Choice is one entry of a chat-completion style choices array.
type Choice struct {
	Index        int             `json:"index"`
	Text         *string         `json:"text,omitempty"`
	Delta        *ChoiceContent  `json:"delta,omitempty"`
	Message      *ChoiceContent  `json:"message,omitempty"`
	FinishReason json.RawMessage `json:"finish_reason,omitempty"`
}

// ChoiceContent is the role/content pair of a delta or message.
type ChoiceContent struct {
	Role    string `json:"role,omitempty"`
	Content string `json:"content"`
}

// Usage holds token counts when the upstream reports them. Native and
// compatible forms name the fields differently; both are accepted.
type Usage struct {
	InputTokens      int `json:"input_tokens,omitempty"`
	OutputTokens     int `json:"output_tokens,omitempty"`
	PromptTokens     int `json:"prompt_tokens,omitempty"`
	CompletionTokens int `json:"completion_tokens,omitempty"`
	TotalTokens      int `json:"total_tokens,omitempty"`
}

// Payload is what an extractor pulled out of an Envelope.
type Payload struct {
	Shape        Shape
	Text         string
	FinishReason string
}

// Finished reports whether the payload carries a real finish reason. The
// literal "null" some upstreams send mid-stream does not count.
func (p Payload) Finished() bool {
	return p.FinishReason != "" && p.FinishReason != "null"
}

// Extractor recognizes one payload shape. ok is false when the shape is not
// present in env.
type Extractor func(env *Envelope) (p Payload, ok bool)

// StreamExtractors is the precedence order used for streamed payloads.
func StreamExtractors() []Extractor {
	return []Extractor{ExtractNative, ExtractDelta, ExtractCompletion}
}

// ResponseExtractors is the precedence order used for complete,
// non-streamed response bodies.
func ResponseExtractors() []Extractor {
	return []Extractor{ExtractNative, ExtractMessage, ExtractCompletion}
}

// Extract runs extractors in order and returns the first payload with
// non-empty text. A shape that is present but empty falls through to the
// next one. The finish reason is taken from any shape that matched, and from
// the envelope itself, so ok is also true for a bare finish marker with no
// text.
func Extract(env *Envelope, extractors []Extractor) (Payload, bool) {
	var out Payload
	for _, ex := range extractors {
		p, ok := ex(env)
		if !ok {
			continue
		}
		if out.FinishReason == "" && p.Finished() {
			out.FinishReason = p.FinishReason
		}
		if p.Text != "" && out.Text == "" {
			out.Shape = p.Shape
			out.Text = p.Text
		}
	}
	if out.FinishReason == "" {
		out.FinishReason = env.FinishReason()
	}
	if out.Text == "" && !out.Finished() {
		return Payload{}, false
	}
	return out, true
}

// ExtractText returns the first payload with non-empty text and ignores
// finish markers. Complete response bodies use it.
func ExtractText(env *Envelope, extractors []Extractor) (Payload, bool) {
	for _, ex := range extractors {
		if p, ok := ex(env); ok && p.Text != "" {
			return p, true
		}
	}
	return Payload{}, false
}

// ExtractNative reads output.text.
func ExtractNative(env *Envelope) (Payload, bool) {
	if env.Output == nil {
		return Payload{}, false
	}
	return Payload{
		Shape:        ShapeNative,
		Text:         env.Output.Text,
		FinishReason: env.Output.FinishReason,
	}, true
}

// ExtractDelta reads choices[0].delta.content.
func ExtractDelta(env *Envelope) (Payload, bool) {
	if len(env.Choices) == 0 || env.Choices[0].Delta == nil {
		return Payload{}, false
	}
	c := env.Choices[0]
	return Payload{
		Shape:        ShapeDelta,
		Text:         c.Delta.Content,
		FinishReason: finishReason(c.FinishReason),
	}, true
}

// ExtractCompletion reads choices[0].text.
func ExtractCompletion(env *Envelope) (Payload, bool) {
	if len(env.Choices) == 0 || env.Choices[0].Text == nil {
		return Payload{}, false
	}
	c := env.Choices[0]
	return Payload{
		Shape:        ShapeCompletion,
		Text:         *c.Text,
		FinishReason: finishReason(c.FinishReason),
	}, true
}

// ExtractMessage reads choices[0].message.content.
func ExtractMessage(env *Envelope) (Payload, bool) {
	if len(env.Choices) == 0 || env.Choices[0].Message == nil {
		return Payload{}, false
	}
	c := env.Choices[0]
	return Payload{
		Shape:        ShapeMessage,
		Text:         c.Message.Content,
		FinishReason: finishReason(c.FinishReason),
	}, true
}

// finishReason accepts a JSON string, a JSON null, or nothing.
func finishReason(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
