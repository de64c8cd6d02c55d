// Package client talks to an LLM chat endpoint in either the native DashScope
// form or the OpenAI-compatible form, with or without streaming.
package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/llm/provider"
	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/metrics"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

const (
	probePrompt = `Reply with exactly "connection ok".`
	probeReply  = "connection ok"
)

// Client is an LLM endpoint client. It is safe for concurrent use.
type Client struct {
	cfg        Config
	provider   provider.Provider
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the HTTP client. Its Timeout should be zero so
// long streams are not cut off.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithLogger sets the client's logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// Result describes a finished stream.
type Result struct {
	Text        string
	End         stream.EndReason
	Stats       stream.Stats
	Usage       *stream.Usage
	Provider    string
	Model       string
	StartedAt   time.Time
	CompletedAt time.Time
}

// New validates cfg and returns a Client. A missing API key, URL or model is
// reported as a *ConfigError before any request is made.
func New(cfg Config, opts ...Option) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	cfg = cfg.withDefaults()

	p, err := provider.Resolve(cfg.Provider, cfg.APIURL)
	if err != nil {
		return nil, err
	}

	c := &Client{
		cfg:        cfg,
		provider:   p,
		httpClient: &http.Client{},
		logger:     logger.Nop(),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst)
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("provider", p.Name(), "model", cfg.Model)
	return c, nil
}

// Provider returns the wire format in use.
func (c *Client) Provider() string {
	return c.provider.Name()
}

// Model returns the configured model name.
func (c *Client) Model() string {
	return c.cfg.Model
}

// Chat sends a non-streaming request and returns the parsed reply.
func (c *Client) Chat(ctx context.Context, messages []llm.Message) (*llm.ChatResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, chatReq, err := c.do(ctx, messages, false)
	if err != nil {
		metrics.ObserveUpstream("llm", "chat", err, time.Since(start))
		return nil, err
	}
	defer resp.Body.Close()

	if err := stream.CheckResponse(resp); err != nil {
		metrics.ObserveUpstream("llm", "chat", err, time.Since(start))
		return nil, describeStatus(err)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		metrics.ObserveUpstream("llm", "chat", err, time.Since(start))
		return nil, fmt.Errorf("reading llm response: %w", err)
	}

	parsed, err := c.provider.ParseResponse(body)
	metrics.ObserveUpstream("llm", "chat", err, time.Since(start))
	if err != nil {
		c.logger.Debug("unparseable llm response", "body", string(body), "error", err)
		return nil, fmt.Errorf("parsing llm response: %w", err)
	}
	if parsed.Model == "" {
		parsed.Model = chatReq.Model
	}
	if parsed.CreatedAt.IsZero() {
		parsed.CreatedAt = time.Now()
	}
	return parsed, nil
}

// Stream sends a streaming request and returns a decoder over the response.
// The caller must drain or Close the decoder.
func (c *Client) Stream(ctx context.Context, messages []llm.Message) (*stream.Decoder, error) {
	start := time.Now()
	resp, chatReq, err := c.do(ctx, messages, true)
	if err != nil {
		metrics.ObserveUpstream("llm", "stream", err, time.Since(start))
		return nil, err
	}

	d, err := stream.FromResponse(resp,
		stream.WithMode(c.provider.StreamMode(chatReq)),
		stream.WithLogger(c.logger),
	)
	metrics.ObserveUpstream("llm", "stream", err, time.Since(start))
	if err != nil {
		return nil, describeStatus(err)
	}
	return d, nil
}

// StreamTo streams a reply into sink. The sink sees every fragment and then
// exactly one of OnComplete or OnError, including for failures that happen
// before the stream opens.
func (c *Client) StreamTo(ctx context.Context, messages []llm.Message, sink stream.Sink) (*Result, error) {
	res := &Result{
		Provider:  c.provider.Name(),
		Model:     c.cfg.Model,
		StartedAt: time.Now(),
	}

	d, err := c.Stream(ctx, messages)
	if err != nil {
		c.logger.Error("llm stream failed to open", "error", err)
		res.End = stream.EndError
		res.CompletedAt = time.Now()
		sink.OnError(err)
		return res, err
	}

	err = d.Drain(ctx, sink)

	res.Text = d.Text()
	res.End = d.End()
	res.Stats = d.Stats()
	res.Usage = d.Usage()
	res.CompletedAt = time.Now()
	metrics.ObserveStream(res.Provider, res.End.String(), res.Stats.Fragments, res.Stats.ParseFailures)

	if err != nil {
		c.logger.Error("llm stream failed", "error", err, "fragments", res.Stats.Fragments)
		return res, err
	}

	c.logger.Debug("llm stream complete",
		"end", res.End.String(),
		"fragments", res.Stats.Fragments,
		"parse_failures", res.Stats.ParseFailures,
		"duration", res.CompletedAt.Sub(res.StartedAt),
	)
	return res, nil
}

// Send streams the reply to a single user prompt.
func (c *Client) Send(ctx context.Context, prompt string, sink stream.Sink) (*Result, error) {
	return c.StreamTo(ctx, []llm.Message{llm.NewTextMessage(llm.RoleUser, prompt)}, sink)
}

// TestConnection sends a probe prompt and reports whether the endpoint
// answered with the probe phrase.
func (c *Client) TestConnection(ctx context.Context) bool {
	resp, err := c.Chat(ctx, []llm.Message{llm.NewTextMessage(llm.RoleUser, probePrompt)})
	if err != nil {
		c.logger.Warn("llm connection test failed", "error", err)
		return false
	}
	return strings.Contains(strings.ToLower(resp.Message.GetText()), probeReply)
}

func (c *Client) do(ctx context.Context, messages []llm.Message, streaming bool) (*http.Response, *llm.ChatRequest, error) {
	chatReq := &llm.ChatRequest{
		Model:       c.cfg.Model,
		Messages:    messages,
		Stream:      streaming,
		MaxTokens:   c.cfg.MaxTokens,
		Temperature: c.cfg.Temperature,
		AppID:       c.cfg.AppID,
		Incremental: c.cfg.Incremental,
	}

	body, err := c.provider.BuildRequest(chatReq)
	if err != nil {
		return nil, nil, err
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, nil, fmt.Errorf("waiting for rate limiter: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.APIURL, bytes.NewReader(body))
	if err != nil {
		return nil, nil, fmt.Errorf("creating llm request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	c.provider.SetHeaders(req.Header, streaming)

	c.logger.Debug("sending llm request", "url", c.cfg.APIURL, "stream", streaming, "messages", len(messages))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil, err
		}
		return nil, nil, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	return resp, chatReq, nil
}
