// Command dialogbot runs the echo bot: a Telegram bot whose conversations
// are driven by a durable per-chat state machine backed by Postgres.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/m3rciful/dialogbot/core/bootstrap"
	"github.com/m3rciful/dialogbot/core/buildinfo"
	coreconfig "github.com/m3rciful/dialogbot/core/config"
	coredatabase "github.com/m3rciful/dialogbot/core/database"
	"github.com/m3rciful/dialogbot/core/diagnostics"
	"github.com/m3rciful/dialogbot/core/logger"
	"github.com/m3rciful/dialogbot/core/metrics"
	coretelegram "github.com/m3rciful/dialogbot/core/telegram"
	"github.com/m3rciful/dialogbot/states"
)

type appConfig struct {
	Core     coreconfig.Config   `yaml:",inline"`
	Database coredatabase.Config `yaml:"database"`
}

func loadConfig(path string) (*appConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	var cfg appConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse YAML config: %w", err)
	}
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	if err := coreconfig.Normalize(&cfg.Core); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func main() {
	if err := run(); err != nil {
		log.Fatalf("dialogbot: %v", err)
	}
}

func run() error {
	startedAt := time.Now()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "config.yaml"
	}
	log.Printf("loading config: %s", cfgPath)
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		return err
	}

	boot, err := bootstrap.Run(bootstrap.Options{
		Config:   &cfg.Core,
		Database: cfg.Database,
	})
	if err != nil {
		return err
	}
	defer func() {
		_ = boot.DB.Close()
		if err := logger.Shutdown(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	set := metrics.New()

	app := logger.Component("app")
	if app != nil {
		app.Info("starting",
			slog.String("event", "startup"),
			slog.String("version", buildinfo.Version),
			slog.String("commit", buildinfo.Commit),
			slog.Duration("startup_duration", logger.RoundMS(time.Since(startedAt))),
		)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	err = coretelegram.RunTelegram(ctx, coretelegram.RunOptions{
		Config:      &cfg.Core,
		Registry:    states.NewRouter(),
		Store:       boot.Store,
		Diagnostics: diagnostics.NewLogReporter(set),
		Metrics:     set,
	})

	if app != nil {
		app.Info("shutting down",
			slog.String("event", "shutdown"),
			slog.Duration("uptime", logger.RoundMS(time.Since(startedAt))),
		)
	}
	return err
}
