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

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/ordercore/internal/app"
	"github.com/angelmondragon/ordercore/internal/payments"
	"github.com/angelmondragon/ordercore/pkg/config"
	"github.com/angelmondragon/ordercore/pkg/db"
	"github.com/angelmondragon/ordercore/pkg/instance"
	"github.com/angelmondragon/ordercore/pkg/kafka"
	"github.com/angelmondragon/ordercore/pkg/logger"
	"github.com/angelmondragon/ordercore/pkg/migrate"
	"github.com/angelmondragon/ordercore/pkg/outbox/idempotency"
	"github.com/angelmondragon/ordercore/pkg/pubsub"
	"github.com/angelmondragon/ordercore/pkg/redis"
)

const (
	kafkaMaxAttempts = 5
	kafkaRetryDelay  = 2 * time.Second
)

func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: payments.ConsumerName})

	_ = godotenv.Load()

	cfg, err := config.Load()
	requireResource(ctx, logg, "config", err)
	cfg.Service.Kind = payments.ConsumerName

	logg = logger.New(logger.Options{
		ServiceName: payments.ConsumerName,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "failed to close database", err)
		}
	}()
	requireResource(ctx, logg, "dev migrations", migrate.MaybeRunDev(ctx, cfg, logg, dbClient))

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "failed to close redis client", err)
		}
	}()

	reg := prometheus.NewRegistry()
	core, err := app.NewCore(app.Params{
		Config:   cfg,
		Logger:   logg,
		DB:       dbClient,
		Counter:  redisClient,
		Registry: reg,
	})
	requireResource(ctx, logg, "order services", err)

	manager, err := idempotency.NewManager(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	requireResource(ctx, logg, "idempotency manager", err)

	consumer, err := payments.NewConsumer(core.Orders, manager, logg, core.Metrics)
	requireResource(ctx, logg, "payment consumer", err)

	source, closeSource := buildSource(ctx, cfg, logg)
	defer closeSource()

	runCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = logg.WithFields(runCtx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"transport":   cfg.PaymentEvents.Transport,
		"instance":    instance.ID(),
	})

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.MetricsPort,
		Handler:           promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(runCtx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(runCtx, "payments worker ready")
	if err := consumer.Run(runCtx, source); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(runCtx, "payments worker failed", err)
		os.Exit(1)
	}
	logg.Info(runCtx, "payments worker shutting down gracefully")
}

// buildSource opens the configured transport and returns its closer.
func buildSource(ctx context.Context, cfg *config.Config, logg *logger.Logger) (payments.Source, func()) {
	if cfg.PaymentEvents.UsesKafka() {
		reader, err := kafka.NewReader(cfg.Kafka)
		requireResource(ctx, logg, "kafka reader", err)
		source, err := payments.NewKafkaSource(reader, logg, kafkaMaxAttempts, kafkaRetryDelay)
		requireResource(ctx, logg, "kafka source", err)
		return source, func() {
			if err := reader.Close(); err != nil {
				logg.Error(ctx, "failed to close kafka reader", err)
			}
		}
	}

	pubsubClient, err := pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, logg)
	requireResource(ctx, logg, "pubsub", err)
	subscription, err := pubsubClient.PaymentSubscription()
	requireResource(ctx, logg, "payment subscription", err)
	source, err := payments.NewPubSubSource(subscription)
	requireResource(ctx, logg, "pubsub source", err)
	return source, func() {
		if err := pubsubClient.Close(); err != nil {
			logg.Error(ctx, "failed to close pubsub client", err)
		}
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, fmt.Sprintf("resource not working: %s", resource), err)
	os.Exit(1)
}
