package api

import (
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/papercomputeco/streamchat/pkg/auth"
	"github.com/papercomputeco/streamchat/pkg/llm"
	"github.com/papercomputeco/streamchat/pkg/metrics"
	"github.com/papercomputeco/streamchat/pkg/storage"
)

const (
	localUser  = "user"
	localToken = "token"
)

// requireAuth resolves the bearer token and stores the caller's profile and
// token in the request locals.
func (s *Server) requireAuth(c *fiber.Ctx) error {
	token, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
	if !ok {
		return s.fail(c, auth.ErrUnauthorized)
	}

	user, err := s.auth.CurrentUser(c.UserContext(), token)
	if err != nil {
		return s.fail(c, err)
	}

	c.Locals(localUser, user)
	c.Locals(localToken, token)
	return c.Next()
}

// observe records request count and latency per route pattern.
func (s *Server) observe(c *fiber.Ctx) error {
	start := time.Now()
	err := c.Next()

	status := c.Response().StatusCode()
	var ferr *fiber.Error
	if errors.As(err, &ferr) {
		status = ferr.Code
	}

	metrics.ObserveHTTP(c.Method(), c.Route().Path, strconv.Itoa(status), time.Since(start))
	return err
}

func bearerToken(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func currentUser(c *fiber.Ctx) *storage.Profile {
	user, _ := c.Locals(localUser).(*storage.Profile)
	return user
}

func currentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localToken).(string)
	return token
}

// errorHandler answers errors that escape a handler, such as unknown routes,
// with the API's JSON error shape.
func errorHandler(l *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var ferr *fiber.Error
		if errors.As(err, &ferr) {
			code = ferr.Code
		} else {
			l.Error("unhandled api error", "path", c.Path(), "error", err)
		}

		msg := err.Error()
		if code == fiber.StatusInternalServerError {
			msg = "internal error"
		}
		return c.Status(code).JSON(llm.ErrorResponse{Error: msg})
	}
}
