package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"github.com/kokossimo/backend/internal/middleware"
	"github.com/kokossimo/backend/internal/services"
)

// AuthHandler bundles dependencies for password and email-code authentication.
type AuthHandler struct {
	accounts     *services.AccountService
	sessions     *services.SessionService
	verification *services.VerificationService
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(accounts *services.AccountService, sessions *services.SessionService, verification *services.VerificationService) *AuthHandler {
	return &AuthHandler{accounts: accounts, sessions: sessions, verification: verification}
}

// Register creates an account identified by email or phone.
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req services.RegisterInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	token, err := h.accounts.Register(c.UserContext(), req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"token": token})
}

// Login checks a password and issues a token.
func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req services.LoginInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	token, err := h.accounts.Login(c.UserContext(), req)
	if err != nil {
		return authFailure(err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// Logout revokes the token of the current request.
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.sessions.Revoke(c.UserContext(), middleware.GetCurrentToken(c)); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// SendEmailCode mails a one-time code for login, registration or reset.
func (h *AuthHandler) SendEmailCode(c *fiber.Ctx) error {
	var req services.SendCodeInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	if err := h.verification.SendCode(c.UserContext(), req); err != nil {
		return err
	}
	return c.JSON(fiber.Map{"detail": "Code sent"})
}

// VerifyEmailCode consumes a code and returns a token.
func (h *AuthHandler) VerifyEmailCode(c *fiber.Ctx) error {
	var req services.VerifyCodeInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	token, err := h.verification.VerifyCode(c.UserContext(), req)
	if err != nil {
		return authFailure(err)
	}
	return c.JSON(fiber.Map{"token": token})
}

// authFailure keeps the response of a failed credential check to a plain
// detail message. Field errors are flattened into it.
func authFailure(err error) error {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.NewError(fiber.StatusBadRequest, validationErr.Error())
	}
	return err
}
