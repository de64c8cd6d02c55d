package provider

import (
	"net/http"

	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

// Provider defines the interface for an upstream LLM wire format.
// Each implementation knows how to build its request body and parse its
// non-streaming response into the internal representation. Streaming
// responses are decoded by stream.Decoder in the mode the provider names.
type Provider interface {
	// Name returns the canonical provider name (e.g., "dashscope", "openai")
	Name() string

	// CanHandle returns true if the endpoint URL looks like this provider's.
	CanHandle(apiURL string) bool

	// BuildRequest converts the internal request into the provider's body.
	BuildRequest(req *llm.ChatRequest) ([]byte, error)

	// SetHeaders adds provider-specific headers. Authorization is set by the
	// caller.
	SetHeaders(h http.Header, streaming bool)

	// ParseResponse converts a complete, non-streamed response body.
	// Returns llm.ErrUnrecognizedResponse when no reply text can be found.
	ParseResponse(payload []byte) (*llm.ChatResponse, error)

	// StreamMode reports how streamed payload texts combine for req.
	StreamMode(req *llm.ChatRequest) stream.Mode
}
