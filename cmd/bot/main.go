package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xaenox/notekeeper/internal/bot"
	"github.com/xaenox/notekeeper/internal/classifier"
	"github.com/xaenox/notekeeper/internal/client"
	"github.com/xaenox/notekeeper/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	configPath := os.Getenv("NOTEKEEPER_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", configPath))
	}
	if cfg.Telegram.Token == "" {
		logger.Fatal("Telegram token is not set; use telegram.token or TELEGRAM_TOKEN")
	}

	notes := client.New(cfg.API.BaseURL)
	clf := classifier.NewSimpleClassifier(cfg.Classifier.MaxTags)

	b, err := bot.New(cfg.Telegram.Token, notes, clf, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Using notes service", zap.String("base_url", cfg.API.BaseURL))
	if err := b.Start(ctx); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
