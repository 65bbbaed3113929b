package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/example/orderfunnel/pkg/audit"
	"github.com/example/orderfunnel/pkg/bot"
	"github.com/example/orderfunnel/pkg/config"
	"github.com/example/orderfunnel/pkg/gateway"
	"github.com/example/orderfunnel/pkg/intent"
	"github.com/example/orderfunnel/pkg/reminder"
	"github.com/example/orderfunnel/pkg/store"
	"github.com/example/orderfunnel/server"
)

func main() {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	// Load config
	cfg, err := config.Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	// Setup logger
	logger, err := zap.NewProduction()
	if err != nil {
		panic(fmt.Sprintf("Failed to create logger: %v", err))
	}
	defer logger.Sync()

	logger.Info("Starting order funnel",
		zap.Int("port", cfg.Server.Port),
		zap.String("host", cfg.Server.Host))

	// Optional infra: the funnel runs without redis and mongo, just with
	// weaker persistence.
	contacts := store.NewContactStore(&cfg.Redis, logger.Named("contacts"))
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := contacts.Ping(pingCtx); err != nil {
		logger.Warn("Redis unreachable, contacts stay in memory", zap.Error(err))
	}
	cancel()

	var trail *audit.Trail
	if cfg.MongoDB.URI != "" {
		trail, err = audit.NewTrail(&cfg.MongoDB, logger.Named("audit"))
		if err != nil {
			logger.Warn("Failed to connect to mongo, continuing without audit trail", zap.Error(err))
			trail = nil
		}
	}

	// Gateways
	messenger := gateway.NewMessenger(&cfg.WhatsApp, logger.Named("whatsapp"))
	shipper := gateway.NewShippingClient(&cfg.Shipping, logger.Named("shipping"))
	payments := gateway.NewPaymentClient(&cfg.Payment, logger.Named("payment"))
	sheet := gateway.NewSheetClient(&cfg.Sheets, logger.Named("sheets"))
	responder := gateway.NewAIClient(&cfg.AI, logger.Named("ai"))

	// Core
	sessions := store.NewSessionStore()
	intents := intent.NewTable()
	scheduler := reminder.NewScheduler(messenger, cfg.Reminder.IdleDelay, logger.Named("reminder"))

	dispatcher := bot.NewDispatcher(
		logger.Named("dispatcher"),
		sessions, contacts, intents, scheduler,
		messenger, shipper, sheet, responder, trail,
		bot.Options{
			OriginPincode: cfg.Shipping.OriginPincode,
			WeightFor:     cfg.Shipping.WeightFor,
		},
	)

	srv := server.NewServer(cfg, logger, dispatcher, payments)
	srv.SetupRoutes()

	// Start server in goroutine
	srvErr := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			srvErr <- err
		}
	}()

	logger.Info("Order funnel started successfully")

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Received shutdown signal")
	case err := <-srvErr:
		logger.Fatal("Server error", zap.Error(err))
	}

	scheduler.Stop()
	if err := contacts.Close(); err != nil {
		logger.Warn("Redis close failed", zap.Error(err))
	}
	closeCtx, cancelClose := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelClose()
	if err := trail.Close(closeCtx); err != nil {
		logger.Warn("Mongo close failed", zap.Error(err))
	}

	logger.Info("Order funnel stopped")
}
