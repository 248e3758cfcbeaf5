package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/kokossimo/backend/internal/middleware"
	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
	"github.com/kokossimo/backend/internal/utils"
)

// ProductHandler serves products and their ratings.
type ProductHandler struct {
	catalog *services.CatalogService
	ratings *services.RatingService
}

// NewProductHandler constructs ProductHandler.
func NewProductHandler(catalog *services.CatalogService, ratings *services.RatingService) *ProductHandler {
	return &ProductHandler{catalog: catalog, ratings: ratings}
}

// ListProducts returns paginated products with optional filters:
// is_new=true, is_bestseller=true and a repeatable category=<slug>.
func (h *ProductHandler) ListProducts(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	filter := services.ProductFilter{
		IsNew:        c.Query("is_new") == "true",
		IsBestseller: c.Query("is_bestseller") == "true",
	}
	for _, raw := range c.Context().QueryArgs().PeekMulti("category") {
		if slug := strings.TrimSpace(string(raw)); slug != "" {
			filter.CategorySlugs = append(filter.CategorySlugs, slug)
		}
	}

	products, total, err := h.catalog.ListProducts(c.UserContext(), filter, pg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       products,
		"pagination": pg.Meta(total),
	})
}

// GetProduct returns a product with its rating summary.
func (h *ProductHandler) GetProduct(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	product, err := h.catalog.GetProduct(c.UserContext(), id)
	if err != nil {
		return err
	}
	return c.JSON(product)
}

// RateProduct stores the caller's rating, replacing an earlier one.
func (h *ProductHandler) RateProduct(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}
	productID, err := parseID(c)
	if err != nil {
		return err
	}

	var req services.RateInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	ctx := c.UserContext()
	rating, err := h.ratings.Rate(ctx, userID, productID, req)
	if err != nil {
		return err
	}
	summary, err := h.ratings.Summary(ctx, productID)
	if err != nil {
		return err
	}

	resp := ratingResponse(*rating)
	resp["average"] = summary.Average
	resp["count"] = summary.Count
	return c.JSON(resp)
}

// ListRatings returns every rating of a product with the aggregate.
func (h *ProductHandler) ListRatings(c *fiber.Ctx) error {
	productID, err := parseID(c)
	if err != nil {
		return err
	}

	ctx := c.UserContext()
	ratings, err := h.ratings.List(ctx, productID)
	if err != nil {
		return err
	}
	summary, err := h.ratings.Summary(ctx, productID)
	if err != nil {
		return err
	}

	results := make([]fiber.Map, 0, len(ratings))
	for _, r := range ratings {
		results = append(results, ratingResponse(r))
	}
	return c.JSON(fiber.Map{
		"average": summary.Average,
		"count":   summary.Count,
		"results": results,
	})
}

// RegisterProductRoutes attaches product routes. auth guards rating writes.
func (h *ProductHandler) RegisterProductRoutes(router fiber.Router, auth fiber.Handler) {
	router.Get("/", h.ListProducts)
	router.Get("/:id", h.GetProduct)
	router.Get("/:id/ratings", h.ListRatings)
	router.Post("/:id/rate", auth, h.RateProduct)
}

func ratingResponse(r models.ProductRating) fiber.Map {
	user := ""
	if r.User != nil {
		user = r.User.FirstName
		if user == "" {
			user = r.User.Username
		}
	}
	return fiber.Map{
		"id":         r.ID,
		"user":       user,
		"rating":     r.Rating,
		"comment":    r.Comment,
		"created_at": r.CreatedAt,
		"updated_at": r.UpdatedAt,
	}
}
