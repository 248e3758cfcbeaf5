package models

import "github.com/google/uuid"

// ProductRating is one user's score for one product.
type ProductRating struct {
	BaseModel
	ProductID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:unique_product_user_rating,priority:1" json:"product_id"`
	Product   *Product  `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:unique_product_user_rating,priority:2" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;" json:"user,omitempty"`
	Rating    int       `gorm:"not null" json:"rating"`
	Comment   string    `json:"comment"`
}
