package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/kokossimo/backend/internal/bot"
	"github.com/kokossimo/backend/internal/config"
	"github.com/kokossimo/backend/internal/database"
	"github.com/kokossimo/backend/internal/services"
)

func main() {
	cfg := config.Load()
	if cfg.TelegramBotToken == "" {
		log.Fatal("TELEGRAM_BOT_TOKEN must be set")
	}

	db := database.Connect(cfg.DatabaseURL)
	telegram := services.NewTelegramService(cfg.TelegramBotToken, cfg.TelegramAdminChat)
	feedbackBot := bot.New(telegram, services.NewFeedbackService(db))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.Println("[Bot] polling started, Ctrl+C to stop")
	if err := feedbackBot.Run(ctx, telegram, cfg.TelegramPollTimeout); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("[Bot] stopped: %v", err)
	}
	log.Println("[Bot] stopped")
}
