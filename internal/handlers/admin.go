package handlers

import (
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
	"github.com/kokossimo/backend/internal/utils"
)

// AdminHandler manages staff-only endpoints.
type AdminHandler struct {
	db       *gorm.DB
	orders   *services.OrderService
	feedback *services.FeedbackService
}

// NewAdminHandler constructs AdminHandler.
func NewAdminHandler(db *gorm.DB, orders *services.OrderService, feedback *services.FeedbackService) *AdminHandler {
	return &AdminHandler{db: db, orders: orders, feedback: feedback}
}

// DashboardStats returns aggregate statistics for the back office.
func (h *AdminHandler) DashboardStats(c *fiber.Ctx) error {
	db := h.db.WithContext(c.UserContext())

	var totalUsers int64
	if err := db.Model(&models.User{}).Count(&totalUsers).Error; err != nil {
		return err
	}

	var totalOrders int64
	if err := db.Model(&models.Order{}).Count(&totalOrders).Error; err != nil {
		return err
	}

	type statusCount struct {
		Status string
		Count  int64
	}
	var statusCounts []statusCount
	if err := db.Model(&models.Order{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&statusCounts).Error; err != nil {
		return err
	}

	ordersByStatus := make(map[string]int64, len(models.OrderStatuses))
	for _, status := range models.OrderStatuses {
		ordersByStatus[status] = 0
	}
	for _, sc := range statusCounts {
		ordersByStatus[sc.Status] = sc.Count
	}

	var revenue struct {
		Total decimal.Decimal
	}
	if err := db.Model(&models.Order{}).
		Where("status <> ?", models.OrderStatusCancelled).
		Select("COALESCE(SUM(total_price), 0) as total").
		Scan(&revenue).Error; err != nil {
		return err
	}

	var unprocessedFeedback int64
	if err := db.Model(&models.Feedback{}).
		Where("is_processed = ?", false).
		Count(&unprocessedFeedback).Error; err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total_users":          totalUsers,
			"total_orders":         totalOrders,
			"orders_by_status":     ordersByStatus,
			"total_revenue":        revenue.Total.StringFixed(2),
			"unprocessed_feedback": unprocessedFeedback,
			"sections":             models.AdminSectionOrder,
		},
	})
}

type updateOrderStatusRequest struct {
	Status string `json:"status"`
}

// UpdateOrderStatus moves an order to another status.
func (h *AdminHandler) UpdateOrderStatus(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req updateOrderStatusRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}

	order, err := h.orders.UpdateStatus(c.UserContext(), id, req.Status)
	if err != nil {
		return err
	}
	return c.JSON(fiber.Map{"id": order.ID, "status": order.Status})
}

// ListFeedback returns bot feedback newest first. ?is_processed=true|false filters.
func (h *AdminHandler) ListFeedback(c *fiber.Ctx) error {
	pg := utils.ParsePagination(c)

	var processed *bool
	if raw := c.Query("is_processed"); raw != "" {
		value, err := strconv.ParseBool(raw)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "is_processed must be true or false")
		}
		processed = &value
	}

	items, total, err := h.feedback.List(c.UserContext(), processed, pg)
	if err != nil {
		return err
	}

	return c.JSON(fiber.Map{
		"success":    true,
		"data":       items,
		"pagination": pg.Meta(total),
	})
}

type updateFeedbackRequest struct {
	IsProcessed *bool `json:"is_processed"`
}

// UpdateFeedback marks a feedback entry processed or unprocessed.
func (h *AdminHandler) UpdateFeedback(c *fiber.Ctx) error {
	id, err := parseID(c)
	if err != nil {
		return err
	}

	var req updateFeedbackRequest
	if err := parseBody(c, &req); err != nil {
		return err
	}
	if req.IsProcessed == nil {
		return services.NewValidationError("is_processed", "this field is required")
	}

	item, err := h.feedback.SetProcessed(c.UserContext(), id, *req.IsProcessed)
	if err != nil {
		return err
	}
	return c.JSON(item)
}
