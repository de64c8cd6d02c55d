package dashscope

// dashscopeRequest is the native text-generation request body.
type dashscopeRequest struct {
	Model      string              `json:"model"`
	Input      dashscopeInput      `json:"input"`
	Parameters dashscopeParameters `json:"parameters"`
}

type dashscopeInput struct {
	Messages []dashscopeMessage `json:"messages"`
}

type dashscopeMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type dashscopeParameters struct {
	Temperature       float64 `json:"temperature"`
	MaxTokens         int     `json:"max_tokens"`
	Stream            bool    `json:"stream"`
	IncrementalOutput bool    `json:"incremental_output,omitempty"`
	AppID             string  `json:"app_id,omitempty"`
}

// dashscopeResponse holds the envelope fields of a native response. Reply
// text is read through the shared extractors.
type dashscopeResponse struct {
	RequestID string          `json:"request_id"`
	Usage     *dashscopeUsage `json:"usage,omitempty"`
}

type dashscopeUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
	TotalTokens  int `json:"total_tokens"`
}
