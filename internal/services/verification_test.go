package services_test

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/models"
	"github.com/kokossimo/backend/internal/services"
	"github.com/kokossimo/backend/internal/testutil"
	"github.com/kokossimo/backend/internal/utils"
)

var codePattern = regexp.MustCompile(`\d{6}`)

type verificationFixture struct {
	db       *gorm.DB
	outbox   *testutil.Outbox
	clock    *testutil.Clock
	sessions *services.SessionService
	accounts *services.AccountService
	svc      *services.VerificationService
}

func newVerificationFixture(t *testing.T) *verificationFixture {
	t.Helper()
	db := testutil.NewDB(t)
	outbox := &testutil.Outbox{}
	clock := testutil.NewClock(time.Now().UTC())
	sessions := services.NewSessionService(db, "test-secret", 24*time.Hour)
	accounts := services.NewAccountService(db, sessions)
	svc := services.NewVerificationService(db, outbox, accounts, sessions, 10*time.Minute).WithClock(clock.Now)
	return &verificationFixture{db: db, outbox: outbox, clock: clock, sessions: sessions, accounts: accounts, svc: svc}
}

func (f *verificationFixture) send(t *testing.T, email, purpose string) string {
	t.Helper()
	require.NoError(t, f.svc.SendCode(context.Background(), services.SendCodeInput{Email: email, Purpose: purpose}))
	mail, ok := f.outbox.Last()
	require.True(t, ok)
	code := codePattern.FindString(mail.Body)
	require.Len(t, code, 6)
	return code
}

func (f *verificationFixture) verify(email, code, purpose, password string) (string, error) {
	return f.svc.VerifyCode(context.Background(), services.VerifyCodeInput{
		Email:    email,
		Code:     code,
		Purpose:  purpose,
		Password: password,
	})
}

func TestRegisterByCodeCreatesAccount(t *testing.T) {
	f := newVerificationFixture(t)

	code := f.send(t, "New.Buyer@Example.com", models.PurposeRegister)
	mail, _ := f.outbox.Last()
	assert.Equal(t, "New.Buyer@Example.com", mail.To)

	token, err := f.svc.VerifyCode(context.Background(), services.VerifyCodeInput{
		Email:     "new.buyer@example.com",
		Code:      code,
		Purpose:   models.PurposeRegister,
		Password:  "secret123",
		FirstName: "Мария",
	})
	require.NoError(t, err)
	require.NotEmpty(t, token)

	userID, err := f.sessions.Resolve(context.Background(), token)
	require.NoError(t, err)

	user, err := f.accounts.Me(context.Background(), userID)
	require.NoError(t, err)
	assert.Equal(t, "new.buyer@example.com", user.Email)
	assert.Equal(t, "Мария", user.FirstName)
	require.NotNil(t, user.Profile)
	assert.Equal(t, "Мария", user.Profile.FirstName)
	assert.True(t, utils.CheckPassword(user.PasswordHash, "secret123"))
}

func TestCodeIsSingleUse(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	code := f.send(t, user.Email, models.PurposeLogin)

	_, err := f.verify(user.Email, code, models.PurposeLogin, "")
	require.NoError(t, err)

	_, err = f.verify(user.Email, code, models.PurposeLogin, "")
	assert.ErrorIs(t, err, services.ErrInvalidCode)
}

func TestConcurrentVerifyConsumesOnce(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)
	code := f.send(t, user.Email, models.PurposeLogin)

	const attempts = 2
	var (
		wg     sync.WaitGroup
		start  = make(chan struct{})
		tokens = make([]string, attempts)
		errs   = make([]error, attempts)
	)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			tokens[i], errs[i] = f.verify(user.Email, code, models.PurposeLogin, "")
		}(i)
	}
	close(start)
	wg.Wait()

	var issued, rejected int
	for i := 0; i < attempts; i++ {
		switch {
		case errs[i] == nil:
			assert.NotEmpty(t, tokens[i])
			issued++
		case errors.Is(errs[i], services.ErrInvalidCode):
			rejected++
		default:
			t.Fatalf("unexpected error: %v", errs[i])
		}
	}
	assert.Equal(t, 1, issued)
	assert.Equal(t, 1, rejected)
}

func TestNewCodeSupersedesOld(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	first := f.send(t, user.Email, models.PurposeLogin)
	second := f.send(t, user.Email, models.PurposeLogin)
	if first == second {
		t.Skip("random codes collided")
	}

	_, err := f.verify(user.Email, first, models.PurposeLogin, "")
	assert.ErrorIs(t, err, services.ErrInvalidCode)

	_, err = f.verify(user.Email, second, models.PurposeLogin, "")
	assert.NoError(t, err)
}

func TestExpiredCodeRejected(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	code := f.send(t, user.Email, models.PurposeLogin)
	f.clock.Advance(11 * time.Minute)

	_, err := f.verify(user.Email, code, models.PurposeLogin, "")
	assert.ErrorIs(t, err, services.ErrInvalidCode)
}

func TestCodeWithinTTLAccepted(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	code := f.send(t, user.Email, models.PurposeLogin)
	f.clock.Advance(9 * time.Minute)

	_, err := f.verify(user.Email, code, models.PurposeLogin, "")
	assert.NoError(t, err)
}

func TestWrongCodeDoesNotConsume(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	code := f.send(t, user.Email, models.PurposeLogin)
	wrong := "000000"
	if code == wrong {
		wrong = "111111"
	}

	_, err := f.verify(user.Email, wrong, models.PurposeLogin, "")
	require.ErrorIs(t, err, services.ErrInvalidCode)

	_, err = f.verify(user.Email, code, models.PurposeLogin, "")
	assert.NoError(t, err)
}

func TestCodeScopedToPurpose(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)

	code := f.send(t, user.Email, models.PurposeLogin)

	_, err := f.verify(user.Email, code, models.PurposeReset, "newpassword")
	assert.ErrorIs(t, err, services.ErrInvalidCode)
}

func TestResetPasswordByCode(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)
	ctx := context.Background()

	code := f.send(t, user.Email, models.PurposeReset)

	// Password presence is checked before the code is spent.
	_, err := f.verify(user.Email, code, models.PurposeReset, "")
	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "password")

	token, err := f.verify(user.Email, code, models.PurposeReset, "brand-new-pass")
	require.NoError(t, err)
	assert.NotEmpty(t, token)

	_, err = f.accounts.Login(ctx, services.LoginInput{Identifier: user.Email, Password: "brand-new-pass"})
	assert.NoError(t, err)
}

func TestSendCodeExistenceRules(t *testing.T) {
	f := newVerificationFixture(t)
	user := testutil.CreateUser(t, f.db)
	ctx := context.Background()

	err := f.svc.SendCode(ctx, services.SendCodeInput{Email: user.Email, Purpose: models.PurposeRegister})
	assert.ErrorIs(t, err, services.ErrUserExists)

	err = f.svc.SendCode(ctx, services.SendCodeInput{Email: "nobody@example.com", Purpose: models.PurposeLogin})
	assert.ErrorIs(t, err, services.ErrUserNotFound)

	err = f.svc.SendCode(ctx, services.SendCodeInput{Email: "not-an-email", Purpose: models.PurposeLogin})
	var validationErr *services.ValidationError
	require.ErrorAs(t, err, &validationErr)
	assert.Contains(t, validationErr.Fields, "email")

	assert.Empty(t, f.outbox.Sent)
}

func TestSendCodeDeliveryFailureLeavesNoCode(t *testing.T) {
	f := newVerificationFixture(t)
	f.outbox.Err = errors.New("smtp down")

	err := f.svc.SendCode(context.Background(), services.SendCodeInput{Email: "buyer@example.com", Purpose: models.PurposeRegister})

	var deliveryErr *services.DeliveryError
	require.ErrorAs(t, err, &deliveryErr)

	var count int64
	require.NoError(t, f.db.Model(&models.EmailVerificationCode{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestPurgeExpiredRemovesAllEmails(t *testing.T) {
	f := newVerificationFixture(t)
	f.send(t, "a@example.com", models.PurposeRegister)
	f.send(t, "b@example.com", models.PurposeRegister)

	f.clock.Advance(15 * time.Minute)
	f.send(t, "c@example.com", models.PurposeRegister)

	removed, err := f.svc.PurgeExpired(context.Background())
	require.NoError(t, err)
	assert.Zero(t, removed, "send already purged the stale codes")

	var remaining []models.EmailVerificationCode
	require.NoError(t, f.db.Find(&remaining).Error)
	require.Len(t, remaining, 1)
	assert.Equal(t, "c@example.com", remaining[0].Email)
}
