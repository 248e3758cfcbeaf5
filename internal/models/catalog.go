package models

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Category groups products on the storefront.
type Category struct {
	BaseModel
	Name  string `gorm:"size:100;not null" json:"name"`
	Slug  string `gorm:"size:50;uniqueIndex;not null" json:"slug"`
	Image string `json:"image"`
}

// Product is a sellable catalog entry. Price has two decimal places.
type Product struct {
	BaseModel
	CategoryID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"category_id"`
	Category     *Category       `gorm:"constraint:OnDelete:CASCADE;" json:"category,omitempty"`
	Name         string          `gorm:"size:200;not null" json:"name"`
	Description  string          `json:"description"`
	Price        decimal.Decimal `gorm:"type:numeric(10,2);not null" json:"price"`
	Image        string          `json:"image"`
	IsBestseller bool            `json:"is_bestseller"`
	IsNew        bool            `json:"is_new"`
	Discount     int             `json:"discount"`
}
