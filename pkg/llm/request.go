package llm

// ChatRequest represents a provider-agnostic chat completion request.
// Providers translate it into their own wire format.
type ChatRequest struct {
	// Model name (e.g., "qwen-plus", "qwen-turbo")
	Model string `json:"model"`

	// Conversation messages
	Messages []Message `json:"messages"`

	// Whether to stream the response
	Stream bool `json:"stream"`

	// Generation parameters
	MaxTokens   int     `json:"max_tokens,omitempty"`
	Temperature float64 `json:"temperature,omitempty"`

	// AppID routes the request to a hosted application on native-form
	// endpoints.
	AppID string `json:"app_id,omitempty"`

	// Incremental asks native-form endpoints to stream deltas rather than
	// growing snapshots.
	Incremental bool `json:"incremental,omitempty"`
}
