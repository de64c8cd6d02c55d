package api

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/storage"
)

type sessionRequest struct {
	Title string `json:"title"`
}

// sendMessageRequest is the body of POST /chat/messages and of the stream
// route, which ignores SessionID in favor of the path.
type sendMessageRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"sessionId,omitempty"`
}

// SessionDetail is a session together with its messages, oldest first.
type SessionDetail struct {
	Session  *storage.Session   `json:"session"`
	Messages []*storage.Message `json:"messages"`
}

// SendMessageResponse is the reply to POST /chat/messages.
type SendMessageResponse struct {
	Message *storage.Message `json:"message"`
	Session *storage.Session `json:"session"`
}

func (s *Server) handleListSessions(c *fiber.Ctx) error {
	sessions, err := s.chat.Sessions(c.UserContext(), currentUser(c).ID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sessions)
}

func (s *Server) handleCreateSession(c *fiber.Ctx) error {
	var req sessionRequest
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	sess, err := s.chat.CreateSession(c.UserContext(), currentUser(c).ID, req.Title)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (s *Server) handleGetSession(c *fiber.Ctx) error {
	ctx := c.UserContext()
	userID := currentUser(c).ID
	id := c.Params("id")

	sess, err := s.chat.Session(ctx, userID, id)
	if err != nil {
		return s.fail(c, err)
	}
	msgs, err := s.chat.Messages(ctx, userID, id)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SessionDetail{Session: sess, Messages: msgs})
}

func (s *Server) handleRenameSession(c *fiber.Ctx) error {
	var req sessionRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := s.chat.RenameSession(c.UserContext(), currentUser(c).ID, c.Params("id"), req.Title)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleDeleteSession(c *fiber.Ctx) error {
	if err := s.chat.DeleteSession(c.UserContext(), currentUser(c).ID, c.Params("id")); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// handleSendMessage answers a message without streaming. A new session is
// started when the request names none.
func (s *Server) handleSendMessage(c *fiber.Ctx) error {
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

	ctx := c.UserContext()
	userID := currentUser(c).ID

	sessionID := req.SessionID
	if sessionID == "" {
		sess, err := s.chat.CreateSession(ctx, userID, "")
		if err != nil {
			return s.fail(c, err)
		}
		sessionID = sess.ID
	}

	msg, err := s.chat.Reply(ctx, userID, sessionID, req.Message)
	if err != nil {
		return s.fail(c, err)
	}

	sess, err := s.chat.Session(ctx, userID, sessionID)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(SendMessageResponse{Message: msg, Session: sess})
}
