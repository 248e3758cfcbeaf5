package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents an authenticated customer or a staff member.
type User struct {
	BaseModel
	Username           string   `gorm:"size:150;not null" json:"username"`
	UsernameNormalized string   `gorm:"size:150;uniqueIndex;not null" json:"-"`
	Email              string   `gorm:"size:254" json:"email"`
	EmailNormalized    string   `gorm:"size:254;index" json:"-"`
	FirstName          string   `gorm:"size:150" json:"first_name"`
	LastName           string   `gorm:"size:150" json:"last_name"`
	PasswordHash       string   `json:"-"`
	IsActive           bool     `json:"is_active"`
	IsStaff            bool     `json:"is_staff"`
	Profile            *Profile `gorm:"constraint:OnDelete:CASCADE;" json:"profile,omitempty"`
	Orders             []Order  `gorm:"constraint:OnDelete:SET NULL;" json:"orders,omitempty"`
}

// BeforeSave keeps the lower-cased lookup columns in sync.
func (u *User) BeforeSave(tx *gorm.DB) error {
	u.UsernameNormalized = NormalizeIdentifier(u.Username)
	u.EmailNormalized = NormalizeIdentifier(u.Email)
	return nil
}

// NormalizeIdentifier is the canonical form used for case-insensitive lookups.
func NormalizeIdentifier(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

// Session backs an issued auth token. Removing the row revokes the token.
type Session struct {
	BaseModel
	UserID    uuid.UUID `gorm:"type:uuid;index;not null" json:"user_id"`
	User      *User     `gorm:"constraint:OnDelete:CASCADE;" json:"-"`
	TokenID   uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Verification code purposes.
const (
	PurposeLogin    = "login"
	PurposeRegister = "register"
	PurposeReset    = "reset"
)

// EmailVerificationCode is a single-use numeric code scoped to an email and purpose.
type EmailVerificationCode struct {
	BaseModel
	Email   string `gorm:"size:254;index:idx_code_lookup,priority:1;not null" json:"email"`
	Purpose string `gorm:"size:20;index:idx_code_lookup,priority:2;not null" json:"purpose"`
	Code    string `gorm:"size:6;not null" json:"-"`
	IsUsed  bool   `gorm:"index" json:"is_used"`
}
