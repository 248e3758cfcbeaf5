package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/kokossimo/backend/internal/middleware"
	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
)

// ProfileHandler manages the current user's account details.
type ProfileHandler struct {
	accounts *services.AccountService
}

// NewProfileHandler constructs ProfileHandler.
func NewProfileHandler(accounts *services.AccountService) *ProfileHandler {
	return &ProfileHandler{accounts: accounts}
}

// GetProfile returns the authenticated user with profile fields flattened in.
func (h *ProfileHandler) GetProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	user, err := h.accounts.Me(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.JSON(profileResponse(user))
}

// UpdateProfile applies a partial update of user and profile fields.
func (h *ProfileHandler) UpdateProfile(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.ProfileUpdate
	if err := parseBody(c, &req); err != nil {
		return err
	}

	user, err := h.accounts.UpdateProfile(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.JSON(profileResponse(user))
}

func profileResponse(user *models.User) fiber.Map {
	resp := fiber.Map{
		"id":          user.ID,
		"username":    user.Username,
		"email":       user.Email,
		"first_name":  user.FirstName,
		"last_name":   user.LastName,
		"is_staff":    user.IsStaff,
		"phone":       "",
		"city":        "",
		"street":      "",
		"house":       "",
		"apartment":   "",
		"postal_code": "",
	}
	if p := user.Profile; p != nil {
		resp["phone"] = p.Phone
		resp["city"] = p.City
		resp["street"] = p.Street
		resp["house"] = p.House
		resp["apartment"] = p.Apartment
		resp["postal_code"] = p.PostalCode
	}
	return resp
}
