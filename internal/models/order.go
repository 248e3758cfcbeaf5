package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Order statuses.
const (
	OrderStatusNew        = "new"
	OrderStatusProcessing = "processing"
	OrderStatusPaid       = "paid"
	OrderStatusShipped    = "shipped"
	OrderStatusDelivered  = "delivered"
	OrderStatusCancelled  = "cancelled"
)

// Delivery and payment methods.
const (
	DeliveryCourier = "courier"
	DeliveryPickup  = "pickup"

	PaymentCashOnDelivery = "cash_on_delivery"
	PaymentCashPickup     = "cash_pickup"
)

// OrderStatuses lists every valid order status.
var OrderStatuses = []string{
	OrderStatusNew,
	OrderStatusProcessing,
	OrderStatusPaid,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// Order is a placed purchase. Owner and address are fixed after creation;
// UserID becomes NULL when the account is deleted.
type Order struct {
	BaseModel
	UserID         *uuid.UUID      `gorm:"type:uuid;index" json:"user_id"`
	Status         string          `gorm:"size:20;index;not null" json:"status"`
	DeliveryMethod string          `gorm:"size:20;not null" json:"delivery_method"`
	PaymentMethod  string          `gorm:"size:20;not null" json:"payment_method"`
	FullName       string          `gorm:"size:200;not null" json:"full_name"`
	Phone          string          `gorm:"size:30;not null" json:"phone"`
	Email          string          `gorm:"size:254" json:"email"`
	City           string          `gorm:"size:150;not null" json:"city"`
	Street         string          `gorm:"size:200;not null" json:"street"`
	House          string          `gorm:"size:50;not null" json:"house"`
	Apartment      string          `gorm:"size:50" json:"apartment"`
	PostalCode     string          `gorm:"size:20" json:"postal_code"`
	Comment        string          `json:"comment"`
	TotalPrice     decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"total_price"`
	Items          []OrderItem     `gorm:"constraint:OnDelete:CASCADE;" json:"items,omitempty"`
}

// OrderItem is an immutable line of an Order. Price and Title are snapshots
// taken when the order was placed. Gift certificates have no ProductID.
// Position is the line's index in the submitted cart.
type OrderItem struct {
	BaseModel
	OrderID           uuid.UUID       `gorm:"type:uuid;index;not null" json:"order_id"`
	Position          int             `gorm:"not null;default:0" json:"position"`
	ProductID         *uuid.UUID      `gorm:"type:uuid;index" json:"product_id"`
	Product           *Product        `gorm:"constraint:OnDelete:RESTRICT;" json:"product,omitempty"`
	Title             string          `gorm:"size:200" json:"title"`
	IsGiftCertificate bool            `json:"is_gift_certificate"`
	Quantity          int             `gorm:"not null" json:"quantity"`
	Price             decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// DisplayName prefers the snapshot title and falls back to the product name.
func (i OrderItem) DisplayName() string {
	if i.Title != "" {
		return i.Title
	}
	if i.Product != nil {
		return i.Product.Name
	}
	return ""
}
