package services

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// DefaultCodeTTL is how long an issued code stays acceptable.
const DefaultCodeTTL = 10 * time.Minute

// VerificationService issues and consumes single-use email codes.
//
// Per (email, purpose) a code moves none -> issued -> used. Issuing a new code
// marks every earlier unused code for the same pair as used.
type VerificationService struct {
	db       *gorm.DB
	mailer   Mailer
	accounts *AccountService
	sessions *SessionService
	ttl      time.Duration
	now      func() time.Time
}

// NewVerificationService constructs a VerificationService. A non-positive ttl
// falls back to DefaultCodeTTL.
func NewVerificationService(db *gorm.DB, mailer Mailer, accounts *AccountService, sessions *SessionService, ttl time.Duration) *VerificationService {
	if ttl <= 0 {
		ttl = DefaultCodeTTL
	}
	return &VerificationService{
		db:       db,
		mailer:   mailer,
		accounts: accounts,
		sessions: sessions,
		ttl:      ttl,
		now:      time.Now,
	}
}

// WithClock replaces the time source.
func (s *VerificationService) WithClock(now func() time.Time) *VerificationService {
	s.now = now
	s.sessions.now = now
	return s
}

// SendCodeInput requests a code for an email and purpose.
type SendCodeInput struct {
	Email   string `json:"email" validate:"required,email,max=254"`
	Purpose string `json:"purpose" validate:"required,oneof=login register reset"`
}

// VerifyCodeInput submits a code. Password is required for register and reset.
type VerifyCodeInput struct {
	Email     string `json:"email" validate:"required,email,max=254"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
	Purpose   string `json:"purpose" validate:"required,oneof=login register reset"`
	Password  string `json:"password" validate:"omitempty,min=6,max=128"`
	FirstName string `json:"first_name" validate:"max=150"`
	LastName  string `json:"last_name" validate:"max=150"`
}

// SendCode generates a code for (email, purpose) and mails it.
func (s *VerificationService) SendCode(ctx context.Context, in SendCodeInput) error {
	in.Email = strings.TrimSpace(in.Email)
	if fields, err := utils.ValidateStruct(in); err != nil {
		return err
	} else if len(fields) > 0 {
		return fieldsError(fields)
	}
	email := models.NormalizeIdentifier(in.Email)

	exists, err := s.accounts.Exists(ctx, email)
	if err != nil {
		return err
	}
	switch {
	case in.Purpose == models.PurposeRegister && exists:
		return ErrUserExists
	case in.Purpose != models.PurposeRegister && !exists:
		return ErrUserNotFound
	}

	if _, err := s.PurgeExpired(ctx); err != nil {
		return err
	}

	code, err := generateCode()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}

	record := models.EmailVerificationCode{
		Email:   email,
		Purpose: in.Purpose,
		Code:    code,
	}
	record.CreatedAt = s.now().UTC()
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.EmailVerificationCode{}).
			Where("email = ? AND purpose = ? AND is_used = ?", email, in.Purpose, false).
			Update("is_used", true).Error; err != nil {
			return err
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return err
	}

	if err := s.mailer.Send(in.Email, codeSubject(in.Purpose), codeBody(code, s.ttl)); err != nil {
		log.Printf("[Email] failed to send %s code to %s: %v", in.Purpose, email, err)
		if delErr := s.db.WithContext(ctx).Delete(&models.EmailVerificationCode{}, "id = ?", record.ID).Error; delErr != nil {
			log.Printf("[Email] failed to discard undelivered code %s: %v", record.ID, delErr)
		}
		return &DeliveryError{Err: err}
	}

	log.Printf("[Email] %s code sent to %s", in.Purpose, email)
	return nil
}

// VerifyCode consumes a code and performs the purpose's effect, returning a
// session token. Wrong and expired codes are reported identically.
func (s *VerificationService) VerifyCode(ctx context.Context, in VerifyCodeInput) (string, error) {
	in.Email = strings.TrimSpace(in.Email)
	in.Code = strings.TrimSpace(in.Code)
	fields, err := utils.ValidateStruct(in)
	if err != nil {
		return "", err
	}
	if fields == nil {
		fields = map[string]string{}
	}
	if (in.Purpose == models.PurposeRegister || in.Purpose == models.PurposeReset) && in.Password == "" {
		fields["password"] = "this field is required"
	}
	if err := fieldsError(fields); err != nil {
		return "", err
	}
	email := models.NormalizeIdentifier(in.Email)

	if _, err := s.PurgeExpired(ctx); err != nil {
		return "", err
	}

	db := s.db.WithContext(ctx)
	var record models.EmailVerificationCode
	err = db.Where("email = ? AND purpose = ? AND is_used = ? AND created_at >= ?",
		email, in.Purpose, false, s.cutoff()).
		Order("created_at desc").
		First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrInvalidCode
	}
	if err != nil {
		return "", err
	}
	if subtle.ConstantTimeCompare([]byte(record.Code), []byte(in.Code)) != 1 {
		return "", ErrInvalidCode
	}

	// Only the caller whose update flips is_used may continue.
	res := db.Model(&models.EmailVerificationCode{}).
		Where("id = ? AND is_used = ?", record.ID, false).
		Update("is_used", true)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected != 1 {
		return "", ErrInvalidCode
	}

	switch in.Purpose {
	case models.PurposeLogin:
		return s.completeLogin(ctx, email)
	case models.PurposeReset:
		return s.completeReset(ctx, email, in.Password)
	default:
		return s.completeRegister(ctx, email, in)
	}
}

// PurgeExpired deletes every code older than the TTL, for all emails.
func (s *VerificationService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("created_at < ?", s.cutoff()).
		Delete(&models.EmailVerificationCode{})
	return res.RowsAffected, res.Error
}

func (s *VerificationService) completeLogin(ctx context.Context, email string) (string, error) {
	user, err := s.accounts.FindByIdentifier(ctx, email)
	if err != nil {
		return "", err
	}
	if !user.IsActive {
		return "", ErrInactiveUser
	}
	return s.sessions.Issue(ctx, user.ID)
}

func (s *VerificationService) completeReset(ctx context.Context, email, password string) (string, error) {
	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := findByIdentifier(tx, email)
		if err != nil {
			return err
		}
		if err := s.accounts.setPassword(tx, user, password); err != nil {
			return err
		}
		token, err = s.sessions.issue(tx, user.ID)
		return err
	})
	return token, err
}

func (s *VerificationService) completeRegister(ctx context.Context, email string, in VerifyCodeInput) (string, error) {
	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.accounts.createAccount(tx, newAccount{
			username:  email,
			email:     email,
			password:  in.Password,
			firstName: strings.TrimSpace(in.FirstName),
			lastName:  strings.TrimSpace(in.LastName),
		})
		if err != nil {
			return err
		}
		token, err = s.sessions.issue(tx, user.ID)
		return err
	})
	return token, err
}

func (s *VerificationService) cutoff() time.Time {
	return s.now().UTC().Add(-s.ttl)
}

// generateCode returns a uniformly random six-digit string, zero padded.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1000000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

func codeSubject(purpose string) string {
	switch purpose {
	case models.PurposeRegister:
		return "Код подтверждения регистрации"
	case models.PurposeReset:
		return "Код для сброса пароля"
	default:
		return "Код для входа"
	}
}

func codeBody(code string, ttl time.Duration) string {
	return fmt.Sprintf("Ваш код подтверждения: %s\n\nКод действителен %d минут. Если вы не запрашивали код, просто проигнорируйте это письмо.\n",
		code, int(ttl.Minutes()))
}
