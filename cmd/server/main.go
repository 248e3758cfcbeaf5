package main

import (
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"github.com/kokossimo/backend/internal/config"
	"github.com/kokossimo/backend/internal/database"
	"github.com/kokossimo/backend/internal/handlers"
	"github.com/kokossimo/backend/internal/jobs"
	"github.com/kokossimo/backend/internal/routes"
	"github.com/kokossimo/backend/internal/services"
)

func main() {
	cfg := config.Load()
	db := database.Connect(cfg.DatabaseURL)

	svc := routes.NewServices(db, routes.Options{
		JWTSecret: cfg.JWTSecret,
		TokenTTL:  cfg.TokenExpires,
		CodeTTL:   cfg.EmailCodeTTL,
		Mailer:    services.NewSMTPMailer(cfg),
		Notifier:  services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat),
	})

	app := fiber.New(fiber.Config{
		AppName:      "Kokossimo Backend",
		ErrorHandler: handlers.ErrorHandler,
	})

	app.Use(recover.New())
	app.Use(logger.New())

	routes.Register(app, db, svc)

	scheduler, err := jobs.StartPurge(cfg.EmailCodePurgeSpec, map[string]jobs.Purger{
		"verification codes": svc.Verification,
		"sessions":           svc.Sessions,
	})
	if err != nil {
		log.Fatalf("invalid purge schedule %q: %v", cfg.EmailCodePurgeSpec, err)
	}
	defer scheduler.Stop()

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
		<-quit
		log.Println("Shutting down server")
		if err := app.Shutdown(); err != nil {
			log.Printf("fiber.Shutdown error: %v", err)
		}
	}()

	log.Printf("Starting server on :%s", cfg.AppPort)
	if err := app.Listen(":" + cfg.AppPort); err != nil {
		log.Fatalf("fiber.Listen error: %v", err)
	}
}
