package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/utils"
)

// SessionService issues and revokes auth tokens. A token is valid only while
// its signature verifies and its session row exists.
type SessionService struct {
	db     *gorm.DB
	secret string
	ttl    time.Duration
	now    func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(db *gorm.DB, secret string, ttl time.Duration) *SessionService {
	return &SessionService{db: db, secret: secret, ttl: ttl, now: time.Now}
}

// Issue creates a session for userID and returns its token.
func (s *SessionService) Issue(ctx context.Context, userID uuid.UUID) (string, error) {
	return s.issue(s.db.WithContext(ctx), userID)
}

func (s *SessionService) issue(tx *gorm.DB, userID uuid.UUID) (string, error) {
	now := s.now().UTC()
	session := models.Session{
		UserID:    userID,
		TokenID:   uuid.New(),
		ExpiresAt: now.Add(s.ttl),
	}
	if err := tx.Create(&session).Error; err != nil {
		return "", err
	}
	return utils.GenerateToken(s.secret, userID, session.TokenID, now, s.ttl)
}

// Resolve returns the user that owns token.
func (s *SessionService) Resolve(ctx context.Context, token string) (uuid.UUID, error) {
	claims, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}

	var session models.Session
	err = s.db.WithContext(ctx).
		Where("token_id = ? AND user_id = ? AND expires_at > ?", claims.TokenID, claims.UserID, s.now().UTC()).
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return uuid.Nil, ErrInvalidToken
	}
	if err != nil {
		return uuid.Nil, err
	}
	return session.UserID, nil
}

// Revoke deletes the session behind token. Unknown tokens are ignored.
func (s *SessionService) Revoke(ctx context.Context, token string) error {
	claims, err := utils.ParseToken(s.secret, token)
	if err != nil {
		return ErrInvalidToken
	}
	return s.db.WithContext(ctx).
		Where("token_id = ?", claims.TokenID).
		Delete(&models.Session{}).Error
}

// PurgeExpired removes sessions past their expiry.
func (s *SessionService) PurgeExpired(ctx context.Context) (int64, error) {
	res := s.db.WithContext(ctx).
		Where("expires_at <= ?", s.now().UTC()).
		Delete(&models.Session{})
	return res.RowsAffected, res.Error
}
