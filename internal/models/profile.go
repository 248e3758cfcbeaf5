package models

import "github.com/google/uuid"

// Profile extends User with contact and address data.
type Profile struct {
	BaseModel
	UserID     uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"user_id"`
	Phone      string    `gorm:"size:20" json:"phone"`
	FirstName  string    `gorm:"size:150" json:"first_name"`
	LastName   string    `gorm:"size:150" json:"last_name"`
	City       string    `gorm:"size:150" json:"city"`
	Street     string    `gorm:"size:200" json:"street"`
	House      string    `gorm:"size:50" json:"house"`
	Apartment  string    `gorm:"size:50" json:"apartment"`
	PostalCode string    `gorm:"size:20" json:"postal_code"`
}
