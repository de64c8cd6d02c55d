// Package webhook calls the video-parsing workflow exposed as an n8n webhook.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/papercomputeco/streamchat/pkg/logger"
	"github.com/papercomputeco/streamchat/pkg/metrics"
	"github.com/papercomputeco/streamchat/pkg/stream"
)

const (
	DefaultTimeout     = 30 * time.Second
	probeTimeout       = 5 * time.Second
	emptyResultMessage = "Video parsing finished but the workflow returned no data."
)

var (
	// ErrMissingURL is returned when no webhook URL is configured.
	ErrMissingURL = errors.New("webhook url is not configured")

	// ErrTimeout is returned when a non-streaming call exceeds its timeout.
	ErrTimeout = errors.New("webhook request timed out")

	// ErrWorkflowInactive is returned for a 404 that says the webhook is not
	// registered, which n8n does until the workflow is activated or run.
	ErrWorkflowInactive = errors.New("workflow is not active: activate it or run \"Execute workflow\" in the n8n editor to register the webhook")
)

// Config configures a Client.
type Config struct {
	WebhookURL string
	APIKey     string
	Timeout    time.Duration
}

// Validate reports a missing webhook URL.
func (c Config) Validate() error {
	if strings.TrimSpace(c.WebhookURL) == "" {
		return ErrMissingURL
	}
	return nil
}

// Client posts messages to the workflow webhook.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time
}

// New validates cfg and returns a Client.
func New(cfg Config, l *slog.Logger) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultTimeout
	}
	if l == nil {
		l = logger.Nop()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{},
		logger:     l,
		now:        time.Now,
	}, nil
}

// ParseVideo posts message and waits for the workflow's full reply.
func (c *Client) ParseVideo(ctx context.Context, message string) (*Response, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	start := time.Now()
	resp, err := c.post(ctx, message)
	if err != nil {
		metrics.ObserveUpstream("webhook", "parse", err, time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, err
	}
	defer resp.Body.Close()

	if err := stream.CheckResponse(resp); err != nil {
		metrics.ObserveUpstream("webhook", "parse", err, time.Since(start))
		return nil, describeStatus(err)
	}

	var out Response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		metrics.ObserveUpstream("webhook", "parse", err, time.Since(start))
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("decoding webhook response: %w", err)
	}
	metrics.ObserveUpstream("webhook", "parse", nil, time.Since(start))

	c.logger.Debug("webhook parse complete", "success", out.Success, "request_id", out.RequestID)
	return &out, nil
}

// ParseVideoStream posts message and forwards the reply body to onChunk as
// text chunks, as it arrives. The last chunk has Final set; if nothing
// arrived it carries a notice instead of being empty. On failure an error
// chunk is sent and the error returned. ctx bounds the whole stream.
func (c *Client) ParseVideoStream(ctx context.Context, message string, onChunk func(Chunk)) error {
	err := c.parseVideoStream(ctx, message, onChunk)
	if err != nil {
		c.logger.Error("webhook stream failed", "error", err)
		onChunk(Chunk{Type: ChunkError, Data: err.Error()})
	}
	return err
}

func (c *Client) parseVideoStream(ctx context.Context, message string, onChunk func(Chunk)) error {
	start := time.Now()
	resp, err := c.post(ctx, message)
	if err != nil {
		metrics.ObserveUpstream("webhook", "stream", err, time.Since(start))
		return err
	}
	defer resp.Body.Close()

	if err := stream.CheckResponse(resp); err != nil {
		metrics.ObserveUpstream("webhook", "stream", err, time.Since(start))
		return describeStatus(err)
	}
	metrics.ObserveUpstream("webhook", "stream", nil, time.Since(start))

	td := stream.NewTextDecoder(stream.EncodingFromContentType(resp.Header.Get("Content-Type")))
	buf := make([]byte, 4096)
	received := false
	chunks := 0

	for {
		n, readErr := resp.Body.Read(buf)
		atEOF := errors.Is(readErr, io.EOF)
		if readErr != nil && !atEOF {
			return fmt.Errorf("reading webhook stream: %w", readErr)
		}

		text, err := td.Decode(buf[:n], atEOF)
		if err != nil {
			return fmt.Errorf("decoding webhook stream: %w", err)
		}
		if text != "" {
			chunks++
			received = true
			onChunk(Chunk{Type: ChunkText, Data: text})
		}
		if atEOF {
			break
		}
	}

	c.logger.Debug("webhook stream complete", "chunks", chunks)
	if !received {
		c.logger.Warn("webhook stream returned no data")
		onChunk(Chunk{Type: ChunkText, Data: emptyResultMessage, Final: true})
		return nil
	}
	onChunk(Chunk{Type: ChunkText, Final: true})
	return nil
}

// TestConnection reports whether a GET to the webhook answers 200.
func (c *Client) TestConnection(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.WebhookURL, nil)
	if err != nil {
		return false
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("webhook connection test failed", "error", err)
		return false
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	return resp.StatusCode == http.StatusOK
}

func (c *Client) post(ctx context.Context, message string) (*http.Response, error) {
	now := c.now()
	body, err := json.Marshal(Request{
		Message:   message,
		UserID:    DefaultUserID,
		SessionID: strconv.FormatInt(now.UnixMilli(), 10),
		Timestamp: now.UTC(),
	})
	if err != nil {
		return nil, fmt.Errorf("encoding webhook request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.cfg.WebhookURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	c.logger.Debug("sending webhook request", "url", c.cfg.WebhookURL, "message", message)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling webhook: %w", err)
	}
	return resp, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.cfg.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	}
}

// describeStatus turns a 404 about an unregistered webhook into
// ErrWorkflowInactive. Other statuses keep the transport error.
func describeStatus(err error) error {
	var terr *stream.TransportError
	if !errors.As(err, &terr) || terr.StatusCode != http.StatusNotFound {
		return err
	}

	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal([]byte(terr.Body), &body) != nil {
		return err
	}
	if strings.Contains(strings.ToLower(body.Message), "webhook") {
		return fmt.Errorf("%w (%s): %w", ErrWorkflowInactive, body.Message, terr)
	}
	return err
}
