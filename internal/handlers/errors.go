package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/kokossimo/backend/internal/services"
)

// ErrorHandler renders every failed request as {"detail": ...}. Validation
// failures also carry "errors" with one message per field.
func ErrorHandler(c *fiber.Ctx, err error) error {
	status, body := translate(err)
	if status == fiber.StatusInternalServerError {
		log.Printf("[HTTP] %s %s: %v", c.Method(), c.Path(), err)
	}
	return c.Status(status).JSON(body)
}

func translate(err error) (int, fiber.Map) {
	var validationErr *services.ValidationError
	if errors.As(err, &validationErr) {
		return fiber.StatusBadRequest, fiber.Map{
			"detail": validationErr.Message,
			"errors": validationErr.Fields,
		}
	}

	var deliveryErr *services.DeliveryError
	if errors.As(err, &deliveryErr) {
		return fiber.StatusBadGateway, fiber.Map{"detail": "failed to send email, try again later"}
	}

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		return fiberErr.Code, fiber.Map{"detail": fiberErr.Message}
	}

	switch {
	case errors.Is(err, services.ErrProductsNotFound),
		errors.Is(err, services.ErrInvalidCode),
		errors.Is(err, services.ErrInvalidCredentials),
		errors.Is(err, services.ErrEmailTaken):
		return fiber.StatusBadRequest, fiber.Map{"detail": err.Error()}
	case errors.Is(err, services.ErrUserExists):
		return fiber.StatusConflict, fiber.Map{"detail": err.Error()}
	case errors.Is(err, services.ErrOrderNotFound),
		errors.Is(err, services.ErrProductNotFound),
		errors.Is(err, services.ErrCategoryNotFound),
		errors.Is(err, services.ErrFeedbackNotFound),
		errors.Is(err, services.ErrUserNotFound):
		return fiber.StatusNotFound, fiber.Map{"detail": err.Error()}
	case errors.Is(err, services.ErrInvalidToken),
		errors.Is(err, services.ErrOwnerRequired):
		return fiber.StatusUnauthorized, fiber.Map{"detail": err.Error()}
	case errors.Is(err, services.ErrInactiveUser):
		return fiber.StatusForbidden, fiber.Map{"detail": err.Error()}
	}

	return fiber.StatusInternalServerError, fiber.Map{"detail": "internal server error"}
}

// parseBody decodes the request body, reporting malformed JSON as a 400.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}
