// Package app assembles the engine from configuration for the api and ledgerctl binaries.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"os"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/integrations/cbr"
	"github.com/Dan9191/microfin/internal/metrics"
	"github.com/Dan9191/microfin/internal/repository"
	"github.com/Dan9191/microfin/internal/service"
	"github.com/Dan9191/microfin/internal/utils"
	"github.com/Dan9191/microfin/internal/utils/email"
)

// NewLogger returns the JSON logger used by every binary.
func NewLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	logger.SetOutput(os.Stdout)
	logLevel, err := logrus.ParseLevel(level)
	if err != nil {
		logLevel = logrus.InfoLevel
	}
	logger.SetLevel(logLevel)
	return logger
}

// OpenDB connects to Postgres and verifies the connection.
func OpenDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.DBConn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return db, nil
}

// Engine is the assembled service with the collaborators the binaries expose.
type Engine struct {
	Service *service.Service
	Rates   *cbr.CBRClient
	Metrics *metrics.EngineMetrics
}

// NewEngine wires the Postgres store, notifier, code gateway and key-rate client into the service.
func NewEngine(db *sql.DB, cfg *config.Config, log *logrus.Logger, reg prometheus.Registerer) *Engine {
	rates := cbr.NewCBRClient(cfg, log)
	engineMetrics := metrics.New(reg)
	svc := service.NewService(service.Params{
		Store:    repository.NewRepository(db),
		Log:      log,
		Config:   cfg,
		Notifier: email.NewSender(cfg, log),
		Codes:    utils.NewCodeGenerator(cfg.HMACSecret),
		Rates:    rates,
		Metrics:  engineMetrics,
	})
	return &Engine{Service: svc, Rates: rates, Metrics: engineMetrics}
}
