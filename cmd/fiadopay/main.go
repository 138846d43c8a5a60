// Команда fiadopay запускает платёжный шлюз: gRPC API, асинхронную обработку
// платежей, доставку webhook и публикацию событий.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/fiadopay/internal/app"
	"github.com/vladislavdragonenkov/fiadopay/internal/version"
)

func main() {
	if err := run(context.Background(), nil); err != nil {
		log.WithError(err).Fatal("fiadopay stopped with error")
	}
}

// run загружает конфигурацию из environ (nil означает окружение процесса)
// и работает до SIGINT/SIGTERM.
func run(parent context.Context, environ map[string]string) error {
	cfg, err := app.LoadConfig(environ)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := app.ConfigureLogging(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":        version.String(),
		"grpc_addr":      cfg.GRPCAddr,
		"metrics_addr":   cfg.MetricsAddr,
		"storage_driver": cfg.StorageDriver,
		"kafka_enabled":  cfg.KafkaBrokers != "",
	}).Info("starting fiadopay")

	if err := app.Run(ctx, cfg); err != nil && ctx.Err() == nil {
		return err
	}

	log.Info("fiadopay stopped")
	return nil
}
