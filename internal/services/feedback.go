package services

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

var (
	emailPattern       = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)
	phoneSymbolPattern = regexp.MustCompile(`[\d+]`)
)

// FeedbackService stores customer messages from the Telegram bot.
type FeedbackService struct {
	db *gorm.DB
}

// NewFeedbackService constructs a FeedbackService.
func NewFeedbackService(db *gorm.DB) *FeedbackService {
	return &FeedbackService{db: db}
}

// FeedbackInput is one completed bot conversation.
type FeedbackInput struct {
	FeedbackType     string `json:"feedback_type" validate:"required,oneof=review suggestion contact_request"`
	Text             string `json:"text" validate:"required"`
	TelegramUserID   *int64 `json:"telegram_user_id"`
	TelegramUsername string `json:"telegram_username" validate:"max=100"`
	ContactPhone     string `json:"contact_phone" validate:"max=30"`
	ContactEmail     string `json:"contact_email" validate:"max=254"`
}

// Submit validates and stores a feedback message. Contact details are
// required only for contact requests and are dropped for other types.
func (s *FeedbackService) Submit(ctx context.Context, in FeedbackInput) (*models.Feedback, error) {
	in.Text = strings.TrimSpace(in.Text)
	in.ContactPhone = strings.TrimSpace(in.ContactPhone)
	in.ContactEmail = strings.TrimSpace(in.ContactEmail)

	fields, err := utils.ValidateStruct(in)
	if err != nil {
		return nil, err
	}
	if fields == nil {
		fields = map[string]string{}
	}

	if in.FeedbackType == models.FeedbackContactRequest {
		if in.ContactPhone == "" && in.ContactEmail == "" {
			fields["contact"] = "leave a phone number or an email"
		}
		if in.ContactPhone != "" && !IsValidPhone(in.ContactPhone) {
			fields["contact_phone"] = "use the format +7 999 123-45-67 or 89991234567"
		}
		if in.ContactEmail != "" && !IsValidEmail(in.ContactEmail) {
			fields["contact_email"] = "use the format example@mail.ru"
		}
	} else {
		in.ContactPhone = ""
		in.ContactEmail = ""
	}
	if err := fieldsError(fields); err != nil {
		return nil, err
	}

	feedback := models.Feedback{
		FeedbackType:     in.FeedbackType,
		Text:             in.Text,
		TelegramUserID:   in.TelegramUserID,
		TelegramUsername: in.TelegramUsername,
		ContactPhone:     in.ContactPhone,
		ContactEmail:     in.ContactEmail,
	}
	if err := s.db.WithContext(ctx).Create(&feedback).Error; err != nil {
		return nil, fmt.Errorf("save feedback: %w", err)
	}
	return &feedback, nil
}

// List returns feedback newest first, optionally filtered by processed state.
func (s *FeedbackService) List(ctx context.Context, processed *bool, pg utils.Pagination) ([]models.Feedback, int64, error) {
	query := s.db.WithContext(ctx).Model(&models.Feedback{})
	if processed != nil {
		query = query.Where("is_processed = ?", *processed)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []models.Feedback
	if err := query.Order("created_at desc").
		Limit(pg.Limit).Offset(pg.Offset).
		Find(&items).Error; err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// SetProcessed toggles the processed flag of one feedback entry.
func (s *FeedbackService) SetProcessed(ctx context.Context, id uuid.UUID, processed bool) (*models.Feedback, error) {
	var feedback models.Feedback
	db := s.db.WithContext(ctx)
	if err := db.First(&feedback, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrFeedbackNotFound
		}
		return nil, err
	}
	if err := db.Model(&feedback).Update("is_processed", processed).Error; err != nil {
		return nil, err
	}
	feedback.IsProcessed = processed
	return &feedback, nil
}

// NormalizePhone keeps only digits and plus signs.
func NormalizePhone(raw string) string {
	return strings.Join(phoneSymbolPattern.FindAllString(raw, -1), "")
}

// IsValidPhone accepts Russian-style numbers: 10 digits starting with 7, 8 or 9,
// or 11 digits starting with 7 or 8, optionally prefixed with +.
func IsValidPhone(phone string) bool {
	digits := strings.TrimPrefix(NormalizePhone(phone), "+")
	if digits == "" || strings.Contains(digits, "+") {
		return false
	}
	switch len(digits) {
	case 10:
		return strings.ContainsRune("789", rune(digits[0]))
	case 11:
		return strings.ContainsRune("78", rune(digits[0]))
	}
	return false
}

// IsValidEmail reports whether email looks like an address.
func IsValidEmail(email string) bool {
	email = strings.TrimSpace(email)
	return email != "" && emailPattern.MatchString(email)
}

// ParseContactLine splits a free-form contact message into phone and email.
// Tokens containing "@" and "." are treated as the email; everything else is
// joined into the phone. A line with neither becomes the phone as-is.
func ParseContactLine(line string) (phone, email string) {
	for _, part := range strings.Fields(strings.ReplaceAll(line, ",", " ")) {
		if strings.Contains(part, "@") && strings.Contains(part, ".") {
			email = part
			continue
		}
		if phone == "" {
			phone = part
		} else {
			phone = phone + ", " + part
		}
	}
	if phone == "" && email == "" {
		phone = line
	}
	return phone, email
}
