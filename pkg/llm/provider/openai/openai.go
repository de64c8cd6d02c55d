// Package openai
package openai

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

// provider implements the Provider interface for OpenAI-compatible chat
// completion endpoints, including DashScope's compatible mode.
type provider struct{}

func New() *provider { return &provider{} }

func (o *provider) Name() string {
	return "openai"
}

// CanHandle matches compatible-mode hosts and any .../chat/completions path.
func (o *provider) CanHandle(apiURL string) bool {
	u := strings.ToLower(strings.TrimRight(apiURL, "/"))
	return strings.Contains(u, "compatible-mode") || strings.HasSuffix(u, "/chat/completions")
}

func (o *provider) BuildRequest(req *llm.ChatRequest) ([]byte, error) {
	messages := make([]openaiMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		messages = append(messages, openaiMessage{Role: m.Role, Content: m.GetText()})
	}

	body, err := json.Marshal(openaiRequest{
		Model:       req.Model,
		Messages:    messages,
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
		Stream:      req.Stream,
	})
	if err != nil {
		return nil, fmt.Errorf("encoding openai request: %w", err)
	}
	return body, nil
}

func (o *provider) SetHeaders(h http.Header, streaming bool) {
	h.Set("Content-Type", "application/json")
	if streaming {
		h.Set("Accept", "text/event-stream")
	}
}

func (o *provider) ParseResponse(payload []byte) (*llm.ChatResponse, error) {
	var resp openaiResponse
	if err := json.Unmarshal(payload, &resp); err != nil {
		return nil, err
	}

	var env stream.Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, err
	}

	reply, ok := stream.ExtractText(&env, stream.ResponseExtractors())
	if !ok {
		return nil, llm.ErrUnrecognizedResponse
	}

	var usage *llm.Usage
	if resp.Usage != nil {
		usage = &llm.Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		}
	}

	result := &llm.ChatResponse{
		Model:       resp.Model,
		Message:     llm.NewTextMessage(llm.RoleAssistant, reply.Text),
		Done:        true,
		StopReason:  reply.FinishReason,
		Usage:       usage,
		RequestID:   resp.ID,
		RawResponse: payload,
	}
	if resp.Created > 0 {
		result.CreatedAt = time.Unix(resp.Created, 0)
	}
	return result, nil
}

// StreamMode is always delta: compatible endpoints send increments.
func (o *provider) StreamMode(*llm.ChatRequest) stream.Mode {
	return stream.ModeDelta
}
