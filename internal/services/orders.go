package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// OrderNotifier is told about every committed order.
type OrderNotifier interface {
	NotifyNewOrder(order OrderNotification) error
}

// OrderService places and reads orders.
type OrderService struct {
	db       *gorm.DB
	notifier OrderNotifier
}

// NewOrderService constructs an OrderService. notifier may be nil.
func NewOrderService(db *gorm.DB, notifier OrderNotifier) *OrderService {
	return &OrderService{db: db, notifier: notifier}
}

// LineItemInput is one cart line: either a product or a gift certificate.
type LineItemInput struct {
	ProductID             *uuid.UUID       `json:"product_id"`
	GiftCertificateAmount *decimal.Decimal `json:"gift_certificate_amount"`
	GiftCertificateName   string           `json:"gift_certificate_name" validate:"max=200"`
	Quantity              *int             `json:"quantity" validate:"omitempty,min=1,max=1000"`
}

// CreateOrderInput is a checkout submission.
type CreateOrderInput struct {
	FullName       string          `json:"full_name" validate:"required,max=200"`
	Phone          string          `json:"phone" validate:"required,max=30"`
	Email          string          `json:"email" validate:"omitempty,email,max=254"`
	City           string          `json:"city" validate:"required,max=150"`
	Street         string          `json:"street" validate:"required,max=200"`
	House          string          `json:"house" validate:"required,max=50"`
	Apartment      string          `json:"apartment" validate:"max=50"`
	PostalCode     string          `json:"postal_code" validate:"max=20"`
	Comment        string          `json:"comment"`
	DeliveryMethod string          `json:"delivery_method" validate:"omitempty,oneof=courier pickup"`
	PaymentMethod  string          `json:"payment_method" validate:"omitempty,oneof=cash_on_delivery cash_pickup"`
	Items          []LineItemInput `json:"items" validate:"required,min=1,dive"`
}

// OrderSummary is one row of a user's order history.
type OrderSummary struct {
	models.Order
	ItemsCount int
}

// CreateOrder validates the cart, snapshots every line's price and title, and
// stores the order with its items and total in one transaction.
func (s *OrderService) CreateOrder(ctx context.Context, buyer uuid.UUID, in CreateOrderInput) (*models.Order, error) {
	if buyer == uuid.Nil {
		return nil, ErrOwnerRequired
	}
	if err := validateOrderInput(&in); err != nil {
		return nil, err
	}

	products, err := s.loadProducts(ctx, in.Items)
	if err != nil {
		return nil, err
	}

	order := models.Order{
		UserID:         &buyer,
		Status:         models.OrderStatusNew,
		DeliveryMethod: in.DeliveryMethod,
		PaymentMethod:  in.PaymentMethod,
		FullName:       in.FullName,
		Phone:          in.Phone,
		Email:          in.Email,
		City:           in.City,
		Street:         in.Street,
		House:          in.House,
		Apartment:      in.Apartment,
		PostalCode:     in.PostalCode,
		Comment:        in.Comment,
	}

	total := decimal.Zero
	items := make([]models.OrderItem, 0, len(in.Items))
	for i, line := range in.Items {
		item := models.OrderItem{
			Position: i,
			Quantity: *line.Quantity,
		}
		if line.ProductID != nil {
			product := products[*line.ProductID]
			productID := product.ID
			item.ProductID = &productID
			item.Price = product.Price
		} else {
			amount := line.GiftCertificateAmount.Round(2)
			item.IsGiftCertificate = true
			item.Price = amount
			item.Title = giftCertificateTitle(line.GiftCertificateName, amount)
		}
		total = total.Add(item.LineTotal())
		items = append(items, item)
	}
	if total.GreaterThanOrEqual(maxPrice) {
		return nil, NewValidationError("items", "order total is too large")
	}
	order.TotalPrice = total

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&order).Error; err != nil {
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
			if err := tx.Omit(clause.Associations).Create(&items[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	order.Items = items

	for i := range order.Items {
		if id := order.Items[i].ProductID; id != nil {
			product := products[*id]
			order.Items[i].Product = &product
		}
	}

	log.Printf("[Order] order %s created for user %s, %d items, total %s",
		order.ID, buyer, len(order.Items), order.TotalPrice.StringFixed(2))

	if s.notifier != nil {
		go s.notify(order)
	}
	return &order, nil
}

// ListOrders returns the user's orders newest first. A negative pg.Limit
// returns all of them.
func (s *OrderService) ListOrders(ctx context.Context, userID uuid.UUID, pg utils.Pagination) ([]OrderSummary, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Order{}).Where("user_id = ?", userID)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var orders []models.Order
	if err := query.Preload("Items").
		Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&orders).Error; err != nil {
		return nil, 0, err
	}

	summaries := make([]OrderSummary, len(orders))
	for i, order := range orders {
		summaries[i] = OrderSummary{Order: order, ItemsCount: len(order.Items)}
	}
	return summaries, total, nil
}

// GetOrder returns one order owned by userID. Orders of other users are
// reported as not found.
func (s *OrderService) GetOrder(ctx context.Context, userID, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).
		Preload("Items", func(db *gorm.DB) *gorm.DB { return db.Order("position asc") }).
		Preload("Items.Product").
		First(&order, "id = ? AND user_id = ?", orderID, userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// UpdateStatus changes an order's status. Used by staff only.
func (s *OrderService) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	if !isOrderStatus(status) {
		return nil, NewValidationError("status", "must be one of: "+strings.Join(models.OrderStatuses, ", "))
	}

	var order models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			First(&order, "id = ?", orderID).Error; err != nil {
			return err
		}
		if order.Status == status {
			return nil
		}
		if err := tx.Model(&order).Update("status", status).Error; err != nil {
			return err
		}
		log.Printf("[Order] order %s status %s -> %s", order.ID, order.Status, status)
		order.Status = status
		return nil
	})
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// loadProducts fetches every referenced product in one query. Any missing id
// fails the whole cart.
func (s *OrderService) loadProducts(ctx context.Context, items []LineItemInput) (map[uuid.UUID]models.Product, error) {
	seen := make(map[uuid.UUID]struct{})
	ids := make([]uuid.UUID, 0, len(items))
	for _, item := range items {
		if item.ProductID == nil {
			continue
		}
		if _, ok := seen[*item.ProductID]; ok {
			continue
		}
		seen[*item.ProductID] = struct{}{}
		ids = append(ids, *item.ProductID)
	}

	products := make(map[uuid.UUID]models.Product, len(ids))
	if len(ids) == 0 {
		return products, nil
	}

	var found []models.Product
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&found).Error; err != nil {
		return nil, err
	}
	for _, p := range found {
		products[p.ID] = p
	}
	if len(products) < len(ids) {
		return nil, ErrProductsNotFound
	}
	return products, nil
}

func (s *OrderService) notify(order models.Order) {
	items := make([]OrderItemNotification, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, OrderItemNotification{
			Name:     item.DisplayName(),
			Quantity: item.Quantity,
			Price:    item.Price,
		})
	}

	notification := OrderNotification{
		OrderID:        order.ID.String(),
		Items:          items,
		TotalPrice:     order.TotalPrice,
		CustomerName:   order.FullName,
		CustomerPhone:  order.Phone,
		DeliveryMethod: order.DeliveryMethod,
		PaymentMethod:  order.PaymentMethod,
		Address:        formatAddress(order),
	}
	if err := s.notifier.NotifyNewOrder(notification); err != nil {
		log.Printf("[Order] Telegram notification failed for order %s: %v", order.ID, err)
	}
}

// validateOrderInput checks field rules and the product-or-certificate rule
// of every line, and fills defaults.
func validateOrderInput(in *CreateOrderInput) error {
	trimOrderInput(in)

	fields, err := utils.ValidateStruct(in)
	if err != nil {
		return err
	}
	if fields == nil {
		fields = map[string]string{}
	}

	for i := range in.Items {
		line := &in.Items[i]
		key := fmt.Sprintf("items[%d]", i)
		switch {
		case line.ProductID == nil && line.GiftCertificateAmount == nil:
			fields[key] = "provide product_id or gift_certificate_amount"
		case line.ProductID != nil && line.GiftCertificateAmount != nil:
			fields[key] = "provide either product_id or gift_certificate_amount, not both"
		case line.GiftCertificateAmount != nil && !line.GiftCertificateAmount.Round(2).IsPositive():
			fields[key+".gift_certificate_amount"] = "must be greater than zero"
		case line.GiftCertificateAmount != nil && line.GiftCertificateAmount.Round(2).GreaterThanOrEqual(maxPrice):
			fields[key+".gift_certificate_amount"] = "is too large"
		}
		if line.Quantity == nil {
			one := 1
			line.Quantity = &one
		}
	}
	if err := fieldsError(fields); err != nil {
		return err
	}

	if in.DeliveryMethod == "" {
		in.DeliveryMethod = models.DeliveryCourier
	}
	if in.PaymentMethod == "" {
		in.PaymentMethod = models.PaymentCashOnDelivery
	}
	return nil
}

// maxPrice is the first value that does not fit numeric(10,2), for a single
// amount and for the order total alike.
var maxPrice = decimal.New(1, 8)

func trimOrderInput(in *CreateOrderInput) {
	for _, field := range []*string{
		&in.FullName, &in.Phone, &in.Email, &in.City, &in.Street,
		&in.House, &in.Apartment, &in.PostalCode, &in.Comment,
	} {
		*field = strings.TrimSpace(*field)
	}
	for i := range in.Items {
		in.Items[i].GiftCertificateName = strings.TrimSpace(in.Items[i].GiftCertificateName)
	}
}

func giftCertificateTitle(name string, amount decimal.Decimal) string {
	if name != "" {
		return name
	}
	return "Подарочный сертификат на " + amount.StringFixed(2)
}

func isOrderStatus(status string) bool {
	for _, s := range models.OrderStatuses {
		if s == status {
			return true
		}
	}
	return false
}

func formatAddress(order models.Order) string {
	parts := []string{order.City, order.Street, order.House}
	if order.Apartment != "" {
		parts = append(parts, "кв. "+order.Apartment)
	}
	if order.PostalCode != "" {
		parts = append(parts, order.PostalCode)
	}
	return strings.Join(parts, ", ")
}
