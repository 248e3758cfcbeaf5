package routes

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"github.com/kokossimo/backend/internal/handlers"
	"github.com/kokossimo/backend/internal/middleware"
	"github.com/kokossimo/backend/internal/services"
)

// Services is everything the HTTP layer depends on.
type Services struct {
	Sessions     *services.SessionService
	Accounts     *services.AccountService
	Verification *services.VerificationService
	Catalog      *services.CatalogService
	Ratings      *services.RatingService
	Orders       *services.OrderService
	Feedback     *services.FeedbackService
}

// Options configures the service graph.
type Options struct {
	JWTSecret string
	TokenTTL  time.Duration
	CodeTTL   time.Duration
	Mailer    services.Mailer
	Notifier  services.OrderNotifier
}

// NewServices builds the service graph over db.
func NewServices(db *gorm.DB, opts Options) *Services {
	sessions := services.NewSessionService(db, opts.JWTSecret, opts.TokenTTL)
	accounts := services.NewAccountService(db, sessions)
	ratings := services.NewRatingService(db)

	return &Services{
		Sessions:     sessions,
		Accounts:     accounts,
		Verification: services.NewVerificationService(db, opts.Mailer, accounts, sessions, opts.CodeTTL),
		Catalog:      services.NewCatalogService(db, ratings),
		Ratings:      ratings,
		Orders:       services.NewOrderService(db, opts.Notifier),
		Feedback:     services.NewFeedbackService(db),
	}
}

// Register wires up all HTTP routes.
func Register(app *fiber.App, db *gorm.DB, svc *Services) {
	authHandler := handlers.NewAuthHandler(svc.Accounts, svc.Sessions, svc.Verification)
	profileHandler := handlers.NewProfileHandler(svc.Accounts)
	catalogHandler := handlers.NewCatalogHandler(svc.Catalog)
	productHandler := handlers.NewProductHandler(svc.Catalog, svc.Ratings)
	orderHandler := handlers.NewOrderHandler(svc.Orders)
	adminHandler := handlers.NewAdminHandler(db, svc.Orders, svc.Feedback)

	requireAuth := middleware.AuthMiddleware(svc.Sessions)

	api := app.Group("/api")

	// Auth routes
	auth := api.Group("/auth")
	auth.Post("/register", authHandler.Register)
	auth.Post("/login", authHandler.Login)
	auth.Post("/logout", requireAuth, authHandler.Logout)
	auth.Post("/email/send", authHandler.SendEmailCode)
	auth.Post("/email/verify", authHandler.VerifyEmailCode)
	auth.Get("/me", requireAuth, profileHandler.GetProfile)
	auth.Patch("/profile", requireAuth, profileHandler.UpdateProfile)

	// Catalog routes
	categories := api.Group("/categories")
	categories.Get("/", catalogHandler.ListCategories)
	categories.Get("/:id", catalogHandler.GetCategory)

	products := api.Group("/products")
	productHandler.RegisterProductRoutes(products, requireAuth)

	// Orders
	orders := api.Group("/orders", requireAuth)
	orders.Post("/", orderHandler.CreateOrder)
	orders.Get("/list", orderHandler.ListOrders)
	orders.Get("/:id", orderHandler.GetOrder)

	// Staff
	admin := api.Group("/admin", requireAuth, middleware.RequireStaff(db))
	admin.Get("/stats", adminHandler.DashboardStats)
	admin.Patch("/orders/:id/status", adminHandler.UpdateOrderStatus)
	admin.Get("/feedback", adminHandler.ListFeedback)
	admin.Patch("/feedback/:id", adminHandler.UpdateFeedback)
}
