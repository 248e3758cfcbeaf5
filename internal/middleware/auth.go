package middleware

import (
	"context"
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
)

const (
	userContextKey  = "currentUserID"
	tokenContextKey = "currentToken"
)

// SessionResolver maps a token to the user owning its session.
type SessionResolver interface {
	Resolve(ctx context.Context, token string) (uuid.UUID, error)
}

// AuthMiddleware validates session tokens and loads the authenticated user ID into context.
// Both "Token <t>" and "Bearer <t>" schemes are accepted.
func AuthMiddleware(sessions SessionResolver) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication credentials were not provided")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || !(strings.EqualFold(parts[0], "Token") || strings.EqualFold(parts[0], "Bearer")) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid authorization header")
		}
		token := strings.TrimSpace(parts[1])

		userID, err := sessions.Resolve(c.UserContext(), token)
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}

		c.Locals(userContextKey, userID)
		c.Locals(tokenContextKey, token)
		return c.Next()
	}
}

// RequireStaff rejects callers whose account is not flagged as staff.
// It must run after AuthMiddleware.
func RequireStaff(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userID, ok := GetCurrentUserID(c)
		if !ok {
			return fiber.NewError(fiber.StatusUnauthorized, "authentication credentials were not provided")
		}

		var user models.User
		err := db.WithContext(c.UserContext()).Select("id", "is_staff", "is_active").
			First(&user, "id = ?", userID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid token")
		}
		if err != nil {
			return err
		}
		if !user.IsStaff || !user.IsActive {
			return fiber.NewError(fiber.StatusForbidden, "staff access required")
		}
		return c.Next()
	}
}

// GetCurrentUserID extracts the authenticated user ID from context.
func GetCurrentUserID(c *fiber.Ctx) (uuid.UUID, bool) {
	value := c.Locals(userContextKey)
	if value == nil {
		return uuid.Nil, false
	}

	if id, ok := value.(uuid.UUID); ok {
		return id, true
	}

	return uuid.Nil, false
}

// GetCurrentToken returns the raw token the request authenticated with.
func GetCurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(tokenContextKey).(string)
	return token
}
