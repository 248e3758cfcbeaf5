package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// Registration methods.
const (
	MethodEmail = "email"
	MethodPhone = "phone"
)

// AccountService manages users, their profiles and password credentials.
type AccountService struct {
	db       *gorm.DB
	sessions *SessionService
}

// NewAccountService constructs an AccountService.
func NewAccountService(db *gorm.DB, sessions *SessionService) *AccountService {
	return &AccountService{db: db, sessions: sessions}
}

// RegisterInput is a password registration request.
type RegisterInput struct {
	Method     string `json:"method" validate:"omitempty,oneof=email phone"`
	Identifier string `json:"identifier" validate:"required,max=150"`
	Password   string `json:"password" validate:"required,min=6,max=128"`
	FirstName  string `json:"first_name" validate:"max=150"`
	LastName   string `json:"last_name" validate:"max=150"`
}

// LoginInput is a password login request.
type LoginInput struct {
	Identifier string `json:"identifier" validate:"required"`
	Password   string `json:"password" validate:"required"`
}

// ProfileUpdate carries the fields a user may change. Nil fields are left untouched.
type ProfileUpdate struct {
	FirstName  *string `json:"first_name" validate:"omitempty,max=150"`
	LastName   *string `json:"last_name" validate:"omitempty,max=150"`
	Email      *string `json:"email" validate:"omitempty,email,max=254"`
	Phone      *string `json:"phone" validate:"omitempty,max=20"`
	City       *string `json:"city" validate:"omitempty,max=150"`
	Street     *string `json:"street" validate:"omitempty,max=200"`
	House      *string `json:"house" validate:"omitempty,max=50"`
	Apartment  *string `json:"apartment" validate:"omitempty,max=50"`
	PostalCode *string `json:"postal_code" validate:"omitempty,max=20"`
}

type newAccount struct {
	username  string
	email     string
	phone     string
	password  string
	firstName string
	lastName  string
}

// Register creates an account with a password and returns a session token.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (string, error) {
	if fields, err := utils.ValidateStruct(in); err != nil {
		return "", err
	} else if len(fields) > 0 {
		return "", fieldsError(fields)
	}

	account := newAccount{
		password:  in.Password,
		firstName: strings.TrimSpace(in.FirstName),
		lastName:  strings.TrimSpace(in.LastName),
	}

	identifier := strings.TrimSpace(in.Identifier)
	switch in.Method {
	case MethodPhone:
		if !IsValidPhone(identifier) {
			return "", NewValidationError("identifier", "enter a valid phone number")
		}
		account.username = NormalizePhone(identifier)
		account.phone = identifier
	default:
		if !looksLikeEmail(identifier) {
			return "", NewValidationError("identifier", "enter a valid email address")
		}
		account.username = identifier
		account.email = identifier
	}

	var token string
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, err := s.createAccount(tx, account)
		if err != nil {
			return err
		}
		token, err = s.sessions.issue(tx, user.ID)
		return err
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

// Login checks a password against the account found by username or email.
func (s *AccountService) Login(ctx context.Context, in LoginInput) (string, error) {
	if fields, err := utils.ValidateStruct(in); err != nil {
		return "", err
	} else if len(fields) > 0 {
		return "", fieldsError(fields)
	}

	user, err := s.FindByIdentifier(ctx, in.Identifier)
	if errors.Is(err, ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}
	if !utils.CheckPassword(user.PasswordHash, in.Password) {
		return "", ErrInvalidCredentials
	}
	if !user.IsActive {
		return "", ErrInactiveUser
	}
	return s.sessions.Issue(ctx, user.ID)
}

// FindByIdentifier looks an account up by username or email, ignoring case.
func (s *AccountService) FindByIdentifier(ctx context.Context, identifier string) (*models.User, error) {
	return findByIdentifier(s.db.WithContext(ctx), identifier)
}

// Exists reports whether identifier is claimed by any account.
func (s *AccountService) Exists(ctx context.Context, identifier string) (bool, error) {
	return identifierExists(s.db.WithContext(ctx), identifier)
}

// Me returns the user with its profile, creating an empty profile if missing.
func (s *AccountService) Me(ctx context.Context, userID uuid.UUID) (*models.User, error) {
	var user models.User
	err := s.db.WithContext(ctx).Preload("Profile").First(&user, "id = ?", userID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, err
	}

	if user.Profile == nil {
		profile := models.Profile{UserID: user.ID, FirstName: user.FirstName, LastName: user.LastName}
		if err := s.db.WithContext(ctx).Create(&profile).Error; err != nil {
			return nil, err
		}
		user.Profile = &profile
	}
	return &user, nil
}

// UpdateProfile applies a partial update to the user and its profile.
// Names are kept identical on both records.
func (s *AccountService) UpdateProfile(ctx context.Context, userID uuid.UUID, in ProfileUpdate) (*models.User, error) {
	if fields, err := utils.ValidateStruct(in); err != nil {
		return nil, err
	} else if len(fields) > 0 {
		return nil, fieldsError(fields)
	}

	user, err := s.Me(ctx, userID)
	if err != nil {
		return nil, err
	}
	profile := user.Profile

	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if in.Email != nil {
			email := strings.TrimSpace(*in.Email)
			if email != "" && models.NormalizeIdentifier(email) != user.EmailNormalized {
				var count int64
				if err := tx.Model(&models.User{}).
					Where("email_normalized = ? AND id <> ?", models.NormalizeIdentifier(email), user.ID).
					Count(&count).Error; err != nil {
					return err
				}
				if count > 0 {
					return ErrEmailTaken
				}
			}
			user.Email = email
		}
		if in.FirstName != nil {
			user.FirstName = strings.TrimSpace(*in.FirstName)
			profile.FirstName = user.FirstName
		}
		if in.LastName != nil {
			user.LastName = strings.TrimSpace(*in.LastName)
			profile.LastName = user.LastName
		}
		assign(&profile.Phone, in.Phone)
		assign(&profile.City, in.City)
		assign(&profile.Street, in.Street)
		assign(&profile.House, in.House)
		assign(&profile.Apartment, in.Apartment)
		assign(&profile.PostalCode, in.PostalCode)

		if err := tx.Omit("Profile", "Orders").Save(user).Error; err != nil {
			return err
		}
		return tx.Save(profile).Error
	})
	if err != nil {
		return nil, err
	}
	return user, nil
}

// setPassword replaces the user's password hash.
func (s *AccountService) setPassword(tx *gorm.DB, user *models.User, password string) error {
	hash, err := utils.HashPassword(password)
	if err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("password_hash", hash).Error
}

// createAccount inserts a user and its profile. The existence check is
// repeated here; a concurrent insert that wins anyway trips the unique index.
func (s *AccountService) createAccount(tx *gorm.DB, account newAccount) (*models.User, error) {
	exists, err := identifierExists(tx, account.username)
	if err != nil {
		return nil, err
	}
	if !exists && account.email != "" {
		exists, err = identifierExists(tx, account.email)
		if err != nil {
			return nil, err
		}
	}
	if exists {
		return nil, ErrUserExists
	}

	var hash string
	if account.password != "" {
		if hash, err = utils.HashPassword(account.password); err != nil {
			return nil, err
		}
	}

	user := models.User{
		Username:     account.username,
		Email:        account.email,
		FirstName:    account.firstName,
		LastName:     account.lastName,
		PasswordHash: hash,
		IsActive:     true,
	}
	if err := tx.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	profile := models.Profile{
		UserID:    user.ID,
		Phone:     account.phone,
		FirstName: account.firstName,
		LastName:  account.lastName,
	}
	if err := tx.Create(&profile).Error; err != nil {
		return nil, err
	}
	user.Profile = &profile
	return &user, nil
}

func findByIdentifier(db *gorm.DB, identifier string) (*models.User, error) {
	normalized := models.NormalizeIdentifier(identifier)
	if normalized == "" {
		return nil, ErrUserNotFound
	}

	var users []models.User
	if err := db.Where("username_normalized = ? OR email_normalized = ?", normalized, normalized).
		Limit(2).
		Find(&users).Error; err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, ErrUserNotFound
	}

	// A username match wins over an email match on a different account.
	for i := range users {
		if users[i].UsernameNormalized == normalized {
			return &users[i], nil
		}
	}
	return &users[0], nil
}

func identifierExists(db *gorm.DB, identifier string) (bool, error) {
	normalized := models.NormalizeIdentifier(identifier)
	var count int64
	err := db.Model(&models.User{}).
		Where("username_normalized = ? OR email_normalized = ?", normalized, normalized).
		Count(&count).Error
	return count > 0, err
}

func assign(dst *string, value *string) {
	if value != nil {
		*dst = strings.TrimSpace(*value)
	}
}

func looksLikeEmail(value string) bool {
	return emailPattern.MatchString(value)
}
