package models

// Feedback types.
const (
	FeedbackReview         = "review"
	FeedbackSuggestion     = "suggestion"
	FeedbackContactRequest = "contact_request"
)

// Feedback is a free-text customer message collected by the Telegram bot.
type Feedback struct {
	BaseModel
	FeedbackType     string `gorm:"size:20;not null;index" json:"feedback_type"`
	Text             string `gorm:"not null" json:"text"`
	TelegramUserID   *int64 `json:"telegram_user_id"`
	TelegramUsername string `gorm:"size:100" json:"telegram_username"`
	ContactPhone     string `gorm:"size:30" json:"contact_phone"`
	ContactEmail     string `gorm:"size:254" json:"contact_email"`
	IsProcessed      bool   `gorm:"index" json:"is_processed"`
}
