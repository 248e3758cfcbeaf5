// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/kokossimo/backend/internal/database"
	"github.com/kokossimo/backend/internal/models"
)

// NewDB opens an isolated in-memory SQLite database with the full schema.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sqlite pool: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

// CreateCategory inserts a category with a random slug.
func CreateCategory(t testing.TB, db *gorm.DB) models.Category {
	t.Helper()
	category := models.Category{
		Name: gofakeit.ProductCategory(),
		Slug: fmt.Sprintf("cat-%s", uuid.NewString()[:8]),
	}
	if err := db.Create(&category).Error; err != nil {
		t.Fatalf("create category: %v", err)
	}
	return category
}

// CreateProduct inserts a product priced at price inside a fresh category.
func CreateProduct(t testing.TB, db *gorm.DB, price string) models.Product {
	t.Helper()
	category := CreateCategory(t, db)
	product := models.Product{
		CategoryID:  category.ID,
		Name:        gofakeit.ProductName(),
		Description: gofakeit.ProductDescription(),
		Price:       decimal.RequireFromString(price),
		Image:       "products/" + uuid.NewString() + ".jpg",
		IsNew:       true,
	}
	if err := db.Create(&product).Error; err != nil {
		t.Fatalf("create product: %v", err)
	}
	return product
}

// CreateUser inserts an active user with an empty profile.
func CreateUser(t testing.TB, db *gorm.DB) models.User {
	t.Helper()
	email := gofakeit.Email()
	user := models.User{
		Username:  email,
		Email:     email,
		FirstName: gofakeit.FirstName(),
		LastName:  gofakeit.LastName(),
		IsActive:  true,
		Profile:   &models.Profile{},
	}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("create user: %v", err)
	}
	return user
}

// Mail is a message captured by Outbox.
type Mail struct {
	To      string
	Subject string
	Body    string
}

// Outbox is an in-memory mailer. Setting Err makes every send fail.
type Outbox struct {
	mu   sync.Mutex
	Sent []Mail
	Err  error
}

// Send records the message or returns Err.
func (o *Outbox) Send(to, subject, body string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.Err != nil {
		return o.Err
	}
	o.Sent = append(o.Sent, Mail{To: to, Subject: subject, Body: body})
	return nil
}

// Last returns the most recent message.
func (o *Outbox) Last() (Mail, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.Sent) == 0 {
		return Mail{}, false
	}
	return o.Sent[len(o.Sent)-1], true
}

// Clock is a manually advanced time source.
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock starts a clock at start.
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
