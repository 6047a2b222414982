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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/fjod/coffee_saga/internal/cart/cache"
	cartrepo "github.com/fjod/coffee_saga/internal/cart/repository"
	cartservice "github.com/fjod/coffee_saga/internal/cart/service"
	"github.com/fjod/coffee_saga/internal/checkout"
	"github.com/fjod/coffee_saga/internal/config"
	h "github.com/fjod/coffee_saga/internal/http"
	loyaltyrepo "github.com/fjod/coffee_saga/internal/loyalty/repository"
	loyaltyservice "github.com/fjod/coffee_saga/internal/loyalty/service"
	"github.com/fjod/coffee_saga/internal/metrics"
	notificationrepo "github.com/fjod/coffee_saga/internal/notification/repository"
	notificationservice "github.com/fjod/coffee_saga/internal/notification/service"
	"github.com/fjod/coffee_saga/internal/orders/publisher"
	orderrepo "github.com/fjod/coffee_saga/internal/orders/repository"
	orderservice "github.com/fjod/coffee_saga/internal/orders/service"
	"github.com/fjod/coffee_saga/internal/payment/gateway"
	paymentrepo "github.com/fjod/coffee_saga/internal/payment/repository"
	paymentservice "github.com/fjod/coffee_saga/internal/payment/service"
	"github.com/fjod/coffee_saga/internal/product"
	"github.com/fjod/coffee_saga/internal/storage/postgres"
	"github.com/fjod/coffee_saga/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log := logger.New(logger.Config{Service: "saga-api", Level: cfg.LogLevel, File: cfg.LogFile})
	slog.SetDefault(log)
	log.Info("saga-api starting...")

	var wg sync.WaitGroup
	ctx := context.Background()

	// Postgres: orders, payments, loyalty and notifications share one database
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

	migrations := []struct{ dir, table string }{
		{"orders/repository/migrations", orderrepo.MigrationsTable},
		{"payment/repository/migrations", paymentrepo.MigrationsTable},
		{"loyalty/repository/migrations", loyaltyrepo.MigrationsTable},
		{"notification/repository/migrations", notificationrepo.MigrationsTable},
	}
	for _, m := range migrations {
		if err := postgres.RunMigrations(db, filepath.Join(cfg.MigrationsPath, m.dir), m.table); err != nil {
			fatal(log, "failed to run migrations", err)
		}
	}
	log.Info("database migrations completed")

	// MongoDB and Redis back the cart
	carts, err := cartrepo.OpenMongo(ctx, cartrepo.MongoOptions{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		MaxPool:        cfg.MongoMaxPool,
		AbandonedAfter: cfg.Cart.AbandonedAfter,
	})
	if err != nil {
		fatal(log, "failed to open cart store", err)
	}
	defer carts.Close(context.Background())
	log.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))

	redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		fatal(log, "redis connection failed", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	domainMetrics := metrics.NewDomain(reg)

	products := product.NewGateway(product.NewHTTPClient(cfg.Product.URL, nil), product.GatewayConfig{
		Timeout:          cfg.Product.Timeout,
		MaxRetries:       cfg.Product.MaxRetries,
		FailureThreshold: cfg.Product.FailureThreshold,
		OpenTimeout:      cfg.Product.OpenTimeout,
	}, log, domainMetrics)

	writer := publisher.NewKafkaWriter(cfg.KafkaOrderTopic, cfg.KafkaBrokers...)
	events := publisher.NewAsyncPublisher(writer, cfg.EventQueueSize, log, domainMetrics)
	publisherCtx, publisherCancel := context.WithCancel(context.Background())
	wg.Add(1)
	go func() {
		defer wg.Done()
		events.Run(publisherCtx)
	}()

	cartSvc := cartservice.NewCartService(carts, cache.NewRedisCache(redisClient, cache.Options{TTL: cfg.Cart.CacheTTL, Jitter: cfg.Cart.CacheJitter}), products, log)
	loyaltySvc := loyaltyservice.NewLoyaltyService(loyaltyrepo.NewRepository(db), log, domainMetrics)
	orderSvc := orderservice.NewOrderService(orderrepo.NewRepository(db), cartSvc, events, loyaltySvc, log, domainMetrics)
	paymentSvc := paymentservice.NewPaymentService(paymentrepo.NewRepository(db), gateway.NewSimulatedGateway(gateway.RandomRoll{}), log, domainMetrics)
	checkoutSvc := checkout.NewService(orderSvc, paymentSvc, loyaltySvc, cfg.PaymentTimeout, log)
	notificationSvc := notificationservice.NewNotificationService(notificationrepo.NewRepository(db), log, domainMetrics)

	router := h.NewRouter(h.Handlers{
		Cart:          h.NewCartHandler(cartSvc, cfg.RequestTimeout, log),
		Orders:        h.NewOrdersHandler(orderSvc, cfg.RequestTimeout, log),
		Payments:      h.NewPaymentsHandler(paymentSvc, cfg.RequestTimeout, log),
		Loyalty:       h.NewLoyaltyHandler(loyaltySvc, cfg.RequestTimeout, log),
		Checkout:      h.NewCheckoutHandler(checkoutSvc, orderSvc, cfg.RequestTimeout, log),
		Notifications: h.NewNotificationHandler(notificationSvc, cfg.RequestTimeout, log),
	}, h.RouterOptions{
		RequestTimeout: cfg.RequestTimeout,
		Metrics:        metrics.NewServerMetrics(reg, "api"),
		MetricsHandler: metrics.Handler(reg),
	})

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("saga-api listening", slog.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fatal(log, "server error", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down saga-api...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", slog.String("error", err.Error()))
	}

	// the publisher flushes queued events once its context is cancelled
	publisherCancel()
	doneChan := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneChan)
	}()

	select {
	case <-doneChan:
		log.Info("event publisher stopped cleanly")
	case <-shutdownCtx.Done():
		log.Warn("event publisher didn't stop in time")
	}

	if err := events.Close(); err != nil {
		log.Error("failed to close kafka writer", slog.String("error", err.Error()))
	}
	log.Info("saga-api stopped")
}

func fatal(log *slog.Logger, msg string, err error) {
	log.Error(msg, slog.String("error", err.Error()))
	os.Exit(1)
}
