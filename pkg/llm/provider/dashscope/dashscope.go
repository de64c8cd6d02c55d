// Package dashscope implements the native DashScope text-generation format:
// messages nested under "input" and sampling settings under "parameters".
package dashscope

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

type provider struct{}

func New() *provider { return &provider{} }

func (d *provider) Name() string {
	return "dashscope"
}

func (d *provider) CanHandle(apiURL string) bool {
	u := strings.ToLower(apiURL)
	return strings.Contains(u, "dashscope") && !strings.Contains(u, "compatible-mode")
}

func (d *provider) BuildRequest(req *llm.ChatRequest) ([]byte, error) {
	messages := make([]dashscopeMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, dashscopeMessage{Role: m.Role, Content: m.GetText()})
	}

	body, err := json.Marshal(dashscopeRequest{
		Model: req.Model,
		Input: dashscopeInput{Messages: messages},
		Parameters: dashscopeParameters{
			Temperature:       req.Temperature,
			MaxTokens:         req.MaxTokens,
			Stream:            req.Stream,
			IncrementalOutput: req.Stream && req.Incremental,
			AppID:             req.AppID,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encoding dashscope request: %w", err)
	}
	return body, nil
}

func (d *provider) SetHeaders(h http.Header, streaming bool) {
	h.Set("Content-Type", "application/json")
	if streaming {
		h.Set("Accept", "text/event-stream")
		h.Set("X-DashScope-SSE", "enable")
	}
}

func (d *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp dashscopeResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	var env stream.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}

	reply, ok := stream.ExtractText(&env, stream.ResponseExtractors())
	if !ok {
		// With result_format=message the reply sits in output.choices.
		if reply, ok = extractOutputChoices(payload); !ok {
			return nil, llm.ErrUnrecognizedResponse
		}
	}

	var usage *llm.Usage
	if resp.Usage != nil {
		usage = &llm.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	stop := reply.FinishReason
	if stop == "null" {
		stop = ""
	}

	return &llm.ChatResponse{
		Message:     llm.NewTextMessage(llm.RoleAssistant, reply.Text),
		Done:        true,
		StopReason:  stop,
		Usage:       usage,
		RequestID:   resp.RequestID,
		RawResponse: payload,
	}, nil
}

// extractOutputChoices reads output.choices[0].message.content, the
// result_format=message variant of the native response.
func extractOutputChoices(payload []byte) (stream.Payload, bool) {
	var wrapped struct {
		Output *stream.Envelope `json:"output"`
	}
	if err := json.Unmarshal(payload, &wrapped); err != nil || wrapped.Output == nil {
		return stream.Payload{}, false
	}
	return stream.ExtractText(wrapped.Output, []stream.Extractor{stream.ExtractMessage})
}

// StreamMode is delta when incremental output was requested, otherwise
// every event carries the full reply so far.
func (d *provider) StreamMode(req *llm.ChatRequest) stream.Mode {
	if req != nil && req.Incremental {
		return stream.ModeDelta
	}
	return stream.ModeSnapshot
}
