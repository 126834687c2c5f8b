package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/Dan9191/microfin/internal/app"
	"github.com/Dan9191/microfin/internal/config"
	"github.com/Dan9191/microfin/internal/handler"
	"github.com/Dan9191/microfin/internal/repository"
	"github.com/Dan9191/microfin/internal/scheduler"
)

func main() {
	// Load configuration
	cfg, err := config.NewConfig()
	if err != nil {
		app.NewLogger("").Fatalf("Failed to load config: %v", err)
	}
	logger := app.NewLogger(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize database
	db, err := app.OpenDB(ctx, cfg)
	if err != nil {
		logger.Fatalf("Database unavailable: %v", err)
	}
	defer db.Close()

	if cfg.AutoMigrate {
		if err := repository.Migrate(ctx, db, "up"); err != nil {
			logger.Fatalf("Failed to migrate database: %v", err)
		}
		logger.Info("Database migrated")
	}

	// Initialize layers
	engine := app.NewEngine(db, cfg, logger, prometheus.DefaultRegisterer)
	sched, err := scheduler.New(scheduler.Params{
		Log:      logger,
		Metrics:  engine.Metrics,
		Location: cfg.Location(),
		Entries:  scheduler.SweepEntries(engine.Service, cfg),
	})
	if err != nil {
		logger.Fatalf("Failed to configure scheduler: %v", err)
	}
	h := handler.NewHandler(engine.Service, engine.Rates, logger)
	router := handler.NewRouter(h, cfg, logger, promhttp.Handler())

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Port)
	server := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
	sched.Start()
	go func() {
		logger.Infof("Starting server on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("Server failed: %v", err)
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Server shutdown failed: %v", err)
	}
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Errorf("Scheduler shutdown failed: %v", err)
	}
}
