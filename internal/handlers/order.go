package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/kokossimo/backend/internal/middleware"
	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
	"github.com/kokossimo/backend/internal/utils"
)

// OrderHandler manages order endpoints.
type OrderHandler struct {
	orders *services.OrderService
}

// NewOrderHandler constructs OrderHandler.
func NewOrderHandler(orders *services.OrderService) *OrderHandler {
	return &OrderHandler{orders: orders}
}

// CreateOrder allows authenticated users to place an order.
func (h *OrderHandler) CreateOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	var req services.CreateOrderInput
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.CreateOrder(c.UserContext(), userID, req)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(orderResponse(order))
}

// ListOrders returns the caller's orders newest first as a plain array.
// The whole history is returned unless page or limit is given; the total is
// always reported in X-Total-Count.
func (h *OrderHandler) ListOrders(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	pg := utils.Pagination{Page: 1, Limit: -1}
	if c.Query("page") != "" || c.Query("limit") != "" {
		pg = utils.ParsePagination(c)
	}

	orders, total, err := h.orders.ListOrders(c.UserContext(), userID, pg)
	if err != nil {
		return err
	}
	c.Set("X-Total-Count", strconv.FormatInt(total, 10))

	resp := make([]fiber.Map, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, fiber.Map{
			"id":              o.ID,
			"status":          o.Status,
			"delivery_method": o.DeliveryMethod,
			"payment_method":  o.PaymentMethod,
			"total_price":     o.TotalPrice,
			"created_at":      o.CreatedAt,
			"items_count":     o.ItemsCount,
		})
	}
	return c.JSON(resp)
}

// GetOrder returns a single order for the authenticated user.
func (h *OrderHandler) GetOrder(c *fiber.Ctx) error {
	userID, ok := middleware.GetCurrentUserID(c)
	if !ok {
		return fiber.NewError(fiber.StatusUnauthorized, "unauthorized")
	}

	id, err := parseID(c)
	if err != nil {
		return fiber.NewError(fiber.StatusNotFound, services.ErrOrderNotFound.Error())
	}

	order, err := h.orders.GetOrder(c.UserContext(), userID, id)
	if err != nil {
		return err
	}
	return c.JSON(orderResponse(order))
}

func orderResponse(order *models.Order) fiber.Map {
	items := make([]fiber.Map, 0, len(order.Items))
	for _, item := range order.Items {
		image := ""
		if item.Product != nil {
			image = item.Product.Image
		}
		items = append(items, fiber.Map{
			"product_id":          item.ProductID,
			"product_name":        item.DisplayName(),
			"product_image":       image,
			"is_gift_certificate": item.IsGiftCertificate,
			"quantity":            item.Quantity,
			"price":               item.Price,
			"line_total":          item.LineTotal(),
		})
	}

	return fiber.Map{
		"id":              order.ID,
		"status":          order.Status,
		"delivery_method": order.DeliveryMethod,
		"payment_method":  order.PaymentMethod,
		"full_name":       order.FullName,
		"phone":           order.Phone,
		"email":           order.Email,
		"city":            order.City,
		"street":          order.Street,
		"house":           order.House,
		"apartment":       order.Apartment,
		"postal_code":     order.PostalCode,
		"comment":         order.Comment,
		"total_price":     order.TotalPrice,
		"created_at":      order.CreatedAt,
		"items":           items,
	}
}
