package main

import (
	"context"
	"log"

	"go.uber.org/zap"

	"github.com/teamforge/collab-roles/internal/app"
	"github.com/teamforge/collab-roles/internal/config"
	"github.com/teamforge/collab-roles/internal/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zapLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zapLogger.Sync() }()

	zapLogger = zapLogger.With(zap.String("service", "collab-roles"))

	ctx := context.Background()
	application, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("init app failed", zap.Error(err))
	}

	if err := application.Run(ctx); err != nil {
		zapLogger.Fatal("app stopped", zap.Error(err))
	}
	zapLogger.Info("app stopped")
}
