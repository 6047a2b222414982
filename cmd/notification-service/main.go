package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/fjod/coffee_saga/internal/config"
	"github.com/fjod/coffee_saga/internal/metrics"
	"github.com/fjod/coffee_saga/internal/notification/consumer"
	"github.com/fjod/coffee_saga/internal/notification/repository"
	"github.com/fjod/coffee_saga/internal/notification/service"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
	"github.com/fjod/coffee_saga/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(logger.Config{Service: "notification-service", Level: cfg.LogLevel, File: cfg.LogFile})
	slog.SetDefault(log)
	log.Info("notification-service starting...")

	var wg sync.WaitGroup

	db, err := postgres.Open(&postgres.Credentials{
		Host:     cfg.DB.Host,
		Port:     cfg.DB.Port,
		User:     cfg.DB.User,
		Password: cfg.DB.Password,
		DBName:   cfg.DB.Name,
	})
	if err != nil {
		fatal(log, "failed to connect to database", err)
	}
	defer db.Close()

	dir := filepath.Join(cfg.MigrationsPath, "notification/repository/migrations")
	if err := postgres.RunMigrations(db, dir, repository.MigrationsTable); err != nil {
		fatal(log, "failed to run migrations", err)
	}
	log.Info("database migrations completed")

	reg := prometheus.NewRegistry()
	svc := service.NewNotificationService(repository.NewRepository(db), log, metrics.NewDomain(reg))

	reader := consumer.NewKafkaReader(cfg.KafkaOrderTopic, cfg.KafkaGroupID, cfg.KafkaBrokers...)
	kafkaConsumer := consumer.NewConsumer(reader, svc, log)
	consumerCtx, consumerCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		kafkaConsumer.Run(consumerCtx)
	}()

	r := chi.NewRouter()
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler(reg))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("notification-service listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down notification-service...")
	consumerCancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("consumer stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("consumer didn't stop in time")
	}

	kafkaConsumer.Close()
	log.Info("notification-service stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
