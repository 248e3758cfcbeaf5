package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
	"github.com/kokossimo/backend/internal/testutil"
)

func newAccounts(t *testing.T) (*gorm.DB, *services.SessionService, *services.AccountService) {
	t.Helper()
	db := testutil.NewDB(t)
	sessions := services.NewSessionService(db, "test-secret", time.Hour)
	return db, sessions, services.NewAccountService(db, sessions)
}

func strPtr(v string) *string { return &v }

func TestRegisterByEmailAndLogin(t *testing.T) {
	_, sessions, accounts := newAccounts(t)
	ctx := context.Background()

	token, err := accounts.Register(ctx, services.RegisterInput{
		Method:     services.MethodEmail,
		Identifier: "Olga@Example.com",
		Password:   "secret1",
		FirstName:  "Ольга",
	})
	require.NoError(t, err)
	_, err = sessions.Resolve(ctx, token)
	require.NoError(t, err)

	_, err = accounts.Register(ctx, services.RegisterInput{Identifier: "olga@example.com", Password: "another1"})
	assert.ErrorIs(t, err, services.ErrUserExists)

	_, err = accounts.Login(ctx, services.LoginInput{Identifier: "OLGA@example.COM", Password: "secret1"})
	assert.NoError(t, err)

	_, err = accounts.Login(ctx, services.LoginInput{Identifier: "olga@example.com", Password: "wrong-pass"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)

	_, err = accounts.Login(ctx, services.LoginInput{Identifier: "ghost@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, services.ErrInvalidCredentials)
}

func TestRegisterByPhone(t *testing.T) {
	_, sessions, accounts := newAccounts(t)
	ctx := context.Background()

	token, err := accounts.Register(ctx, services.RegisterInput{
		Method:     services.MethodPhone,
		Identifier: "+7 (999) 123-45-67",
		Password:   "secret1",
	})
	require.NoError(t, err)

	userID, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	user, err := accounts.Me(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, "+79991234567", user.Username)
	assert.Equal(t, "+7 (999) 123-45-67", user.Profile.Phone)

	_, err = accounts.Register(ctx, services.RegisterInput{
		Method:     services.MethodPhone,
		Identifier: "12345",
		Password:   "secret1",
	})
	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "identifier")
}

func TestRegisterRejectsShortPassword(t *testing.T) {
	_, _, accounts := newAccounts(t)

	_, err := accounts.Register(context.Background(), services.RegisterInput{Identifier: gofakeit.Email(), Password: "123"})

	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "password")
}

func TestLoginRejectsInactiveUser(t *testing.T) {
	db, _, accounts := newAccounts(t)
	ctx := context.Background()

	_, err := accounts.Register(ctx, services.RegisterInput{Identifier: "idle@example.com", Password: "secret1"})
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.User{}).Where("email_normalized = ?", "idle@example.com").
		UpdateColumn("is_active", false).Error)

	_, err = accounts.Login(ctx, services.LoginInput{Identifier: "idle@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, services.ErrInactiveUser)
}

func TestUpdateProfileMirrorsNames(t *testing.T) {
	db, _, accounts := newAccounts(t)
	user := testutil.CreateUser(t, db)
	ctx := context.Background()

	updated, err := accounts.UpdateProfile(ctx, user.ID, services.ProfileUpdate{
		FirstName: strPtr(" Ирина "),
		City:      strPtr("Казань"),
		House:     strPtr("3"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Ирина", updated.FirstName)
	assert.Equal(t, "Ирина", updated.Profile.FirstName)
	assert.Equal(t, "Казань", updated.Profile.City)
	assert.Equal(t, user.LastName, updated.LastName, "untouched fields keep their value")

	reloaded, err := accounts.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ирина", reloaded.FirstName)
	assert.Equal(t, "Ирина", reloaded.Profile.FirstName)
	assert.Equal(t, "3", reloaded.Profile.House)
	assert.Equal(t, models.NormalizeIdentifier(user.Email), reloaded.EmailNormalized)
}

func TestUpdateProfileRejectsTakenEmail(t *testing.T) {
	db, _, accounts := newAccounts(t)
	user := testutil.CreateUser(t, db)
	other := testutil.CreateUser(t, db)

	_, err := accounts.UpdateProfile(context.Background(), user.ID, services.ProfileUpdate{Email: strPtr(other.Email)})
	assert.ErrorIs(t, err, services.ErrEmailTaken)

	_, err = accounts.UpdateProfile(context.Background(), user.ID, services.ProfileUpdate{Email: strPtr(user.Email)})
	assert.NoError(t, err, "keeping the own email is allowed")
}

func TestSessionRevokeAndExpiry(t *testing.T) {
	db, sessions, _ := newAccounts(t)
	user := testutil.CreateUser(t, db)
	ctx := context.Background()

	token, err := sessions.Issue(ctx, user.ID)
	require.NoError(t, err)

	id, err := sessions.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, id)

	require.NoError(t, sessions.Revoke(ctx, token))
	_, err = sessions.Resolve(ctx, token)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	_, err = sessions.Resolve(ctx, "garbage")
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	stale, err := sessions.Issue(ctx, user.ID)
	require.NoError(t, err)
	require.NoError(t, db.Model(&models.Session{}).Where("user_id = ?", user.ID).
		UpdateColumn("expires_at", time.Now().UTC().Add(-time.Minute)).Error)

	_, err = sessions.Resolve(ctx, stale)
	assert.ErrorIs(t, err, services.ErrInvalidToken)

	removed, err := sessions.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 1, removed)
}
