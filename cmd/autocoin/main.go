// Command autocoin runs the momentum trading pipeline against the Upbit
// exchange. It streams trades over websocket, detects price surges, sizes
// market orders and manages a single position with stop-loss and
// take-profit exits.
//
// Usage:
//
//	autocoin --config config.yaml
//
// Required environment variables:
//
//	UPBIT_ACCESS_KEY, UPBIT_SECRET_KEY
package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/kanghyeon/autocoin/config"
	"github.com/kanghyeon/autocoin/internal"
	"github.com/kanghyeon/autocoin/pkg/logging"
)

func main() {
	configPath := flag.String("config", "", "path to YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal(err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.JSONFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	pipeline, err := internal.NewPipeline(cfg, logger)
	if err != nil {
		logger.Fatal("failed to build pipeline", zap.Error(err))
	}
	defer pipeline.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := pipeline.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatal("pipeline terminated", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
