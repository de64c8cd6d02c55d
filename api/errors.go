package api

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/auth"
	"github.com/papercomputeco/streamchat/pkg/chat"
	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/llm/client"
	"github.com/papercomputeco/streamchat/pkg/storage"
	"github.com/papercomputeco/streamchat/pkg/stream"
	"github.com/papercomputeco/streamchat/pkg/webhook"
)

// errorBody maps err to an HTTP status and the JSON body describing it.
// Upstream failures carry the upstream's status in the body.
func errorBody(err error) (int, llm.ErrorResponse) {
	body := llm.ErrorResponse{Error: err.Error()}

	var (
		terr *stream.TransportError
		cerr *client.ConfigError
	)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials), errors.Is(err, auth.ErrUnauthorized):
		return fiber.StatusUnauthorized, body

	case errors.Is(err, auth.ErrEmailTaken):
		return fiber.StatusConflict, body

	case errors.Is(err, auth.ErrWeakPassword),
		errors.Is(err, auth.ErrInvalidEmail),
		errors.Is(err, auth.ErrEmptyUsername),
		errors.Is(err, chat.ErrEmptyContent),
		errors.Is(err, chat.ErrEmptyTitle),
		errors.Is(err, chat.ErrInvalidRole):
		return fiber.StatusBadRequest, body

	case storage.IsNotFound(err):
		return fiber.StatusNotFound, body

	case errors.Is(err, chat.ErrNoCompleter),
		errors.Is(err, webhook.ErrMissingURL),
		errors.As(err, &cerr):
		return fiber.StatusServiceUnavailable, body

	case errors.Is(err, webhook.ErrTimeout):
		return fiber.StatusGatewayTimeout, body

	case errors.As(err, &terr):
		body.Status = terr.StatusCode
		return fiber.StatusBadGateway, body

	case errors.Is(err, client.ErrUnreachable), errors.Is(err, chat.ErrEmptyReply):
		return fiber.StatusBadGateway, body
	}

	return fiber.StatusInternalServerError, llm.ErrorResponse{Error: "internal error"}
}

// fail writes err as a JSON error response.
func (s *Server) fail(c *fiber.Ctx, err error) error {
	code, body := errorBody(err)
	switch {
	case code == fiber.StatusInternalServerError:
		s.logger.Error("request failed", "path", c.Path(), "error", err)
	case code >= fiber.StatusBadGateway:
		s.logger.Warn("upstream failed", "path", c.Path(), "error", err)
	}
	return c.Status(code).JSON(body)
}

func badRequest(c *fiber.Ctx, msg string) error {
	return c.Status(fiber.StatusBadRequest).JSON(llm.ErrorResponse{Error: msg})
}
