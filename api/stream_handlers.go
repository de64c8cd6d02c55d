package api

import (
	"context"
	"io"
	"log/slog"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/sse"
	"github.com/papercomputeco/streamchat/pkg/stream"
	"github.com/papercomputeco/streamchat/pkg/webhook"
)

// TextEvent is the data of fragment, replace and complete events.
type TextEvent struct {
	Text string `json:"text"`
}

// handleStreamMessage stores the caller's message and streams the model's
// reply as SSE: fragment or replace events while text arrives, then exactly
// one complete or error event.
func (s *Server) handleStreamMessage(c *fiber.Ctx) error {
	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}
	if err := s.chat.Ready(); err != nil {
		return s.fail(c, err)
	}

	userID := currentUser(c).ID
	sessionID := strings.Clone(c.Params("id"))
	if _, err := s.chat.Session(c.UserContext(), userID, sessionID); err != nil {
		return s.fail(c, err)
	}

	s.streamBody(c, func(ctx context.Context, r *eventRelay) {
		_, err := s.chat.Send(ctx, userID, sessionID, req.Message, r.replySink())
		if err != nil {
			s.logger.Debug("streamed reply ended with error", "session_id", sessionID, "error", err)
		}
	})
	return nil
}

// handleParseVideoStream relays the workflow's chunks as "chunk" events.
func (s *Server) handleParseVideoStream(c *fiber.Ctx) error {
	if s.config.Video == nil {
		return s.fail(c, webhook.ErrMissingURL)
	}

	var req sendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}
	if strings.TrimSpace(req.Message) == "" {
		return badRequest(c, "message is required")
	}

	s.streamBody(c, func(ctx context.Context, r *eventRelay) {
		_ = s.config.Video.ParseVideoStream(ctx, req.Message, func(chunk webhook.Chunk) {
			r.send(sse.EventChunk, chunk)
		})
	})
	return nil
}

// streamBody runs produce in its own goroutine and sends what it writes as
// the chunked response body. io.Pipe is used rather than
// SetBodyStreamWriter so every event reaches the socket as it is written.
// produce gets a context of its own because fasthttp recycles the request
// context once the handler returns; it is cancelled when the client goes
// away or the server shuts down.
func (s *Server) streamBody(c *fiber.Ctx, produce func(ctx context.Context, r *eventRelay)) {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	pr, pw := io.Pipe()
	go func() {
		defer pw.Close()

		ctx, cancel := context.WithCancel(s.ctx)
		defer cancel()

		produce(ctx, &eventRelay{w: sse.NewWriter(pw), cancel: cancel, logger: s.logger})
	}()

	c.Context().Response.SetBodyStream(pr, -1)
}

// eventRelay writes events to one client. After the first failed write it
// drops everything and cancels the producer.
type eventRelay struct {
	w      *sse.Writer
	cancel context.CancelFunc
	logger *slog.Logger
	failed bool
}

func (r *eventRelay) send(eventType string, v any) {
	if r.failed {
		return
	}
	if err := r.w.WriteJSON(eventType, v); err != nil {
		r.failed = true
		r.logger.Debug("stream client went away", "error", err)
		r.cancel()
	}
}

func (r *eventRelay) replySink() stream.Sink {
	return stream.SinkFuncs{
		Fragment: func(text string) { r.send(sse.EventFragment, TextEvent{Text: text}) },
		Replace:  func(text string) { r.send(sse.EventReplace, TextEvent{Text: text}) },
		Complete: func(text string) { r.send(sse.EventComplete, TextEvent{Text: text}) },
		Error: func(err error) {
			_, body := errorBody(err)
			r.send(sse.EventError, body)
		},
	}
}
