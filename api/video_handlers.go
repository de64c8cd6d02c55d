package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/webhook"
)

// handleParseVideo passes the message to the workflow and returns its reply.
func (s *Server) handleParseVideo(c *fiber.Ctx) error {
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

	resp, err := s.config.Video.ParseVideo(c.UserContext(), req.Message)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(resp)
}
