package api

import (
	"github.com/gofiber/fiber/v2"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Username string `json:"username"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type updateUserRequest struct {
	Username string `json:"username"`
}

type changePasswordRequest struct {
	OldPassword string `json:"oldPassword"`
	NewPassword string `json:"newPassword"`
}

// handleRegister creates an account and signs it in.
func (s *Server) handleRegister(c *fiber.Ctx) error {
	var req registerRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := s.auth.SignUp(c.UserContext(), req.Email, req.Password, req.Username)
	if err != nil {
		return s.fail(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sess)
}

func (s *Server) handleLogin(c *fiber.Ctx) error {
	var req loginRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	sess, err := s.auth.SignIn(c.UserContext(), req.Email, req.Password)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleLogout(c *fiber.Ctx) error {
	if err := s.auth.SignOut(c.UserContext(), currentToken(c)); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) handleProfile(c *fiber.Ctx) error {
	return c.JSON(currentUser(c))
}

// handleRefresh swaps the caller's token for a fresh one.
func (s *Server) handleRefresh(c *fiber.Ctx) error {
	sess, err := s.auth.Refresh(c.UserContext(), currentToken(c))
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(sess)
}

func (s *Server) handleUpdateUser(c *fiber.Ctx) error {
	var req updateUserRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	user, err := s.auth.UpdateUsername(c.UserContext(), currentToken(c), req.Username)
	if err != nil {
		return s.fail(c, err)
	}
	return c.JSON(user)
}

func (s *Server) handleChangePassword(c *fiber.Ctx) error {
	var req changePasswordRequest
	if err := c.BodyParser(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	if err := s.auth.ChangePassword(c.UserContext(), currentToken(c), req.OldPassword, req.NewPassword); err != nil {
		return s.fail(c, err)
	}
	return c.SendStatus(fiber.StatusNoContent)
}
