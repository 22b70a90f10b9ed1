package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fjod/go_cart/cloudshelf-cart/internal/config"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/domain"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/events"
	h "github.com/fjod/go_cart/cloudshelf-cart/internal/http"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/metrics"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/observability"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/order"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/service"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/stock"
	"github.com/fjod/go_cart/cloudshelf-cart/internal/store"
	"github.com/fjod/go_cart/cloudshelf-cart/pkg/circuitbreaker"
	"github.com/fjod/go_cart/cloudshelf-cart/pkg/logger"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	serviceName    = "cart-service"
	serviceVersion = "1.0.0"
)

func main() {
	cfg := config.Load()

	log := logger.New(logger.Options{
		Service:   serviceName,
		Env:       cfg.AppEnv,
		Level:     cfg.LogLevel,
		AddSource: !cfg.IsProduction(),
	})
	slog.SetDefault(log)

	if err := run(cfg, log); err != nil {
		log.Error("cart service stopped", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx := context.Background()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TracingOptions{
		ServiceName:    serviceName,
		ServiceVersion: serviceVersion,
		Environment:    cfg.AppEnv,
		Endpoint:       cfg.OTLPEndpoint,
	})
	if err != nil {
		log.Warn("tracing disabled", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("tracing shutdown failed", "error", err)
		}
	}()

	cartStore, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	// Outbound HTTP carries trace context to the stock and order services
	client := &http.Client{Transport: otelhttp.NewTransport(http.DefaultTransport)}

	stockSettings := circuitbreaker.Settings{
		Name:             "stock-check",
		MaxFailures:      cfg.BreakerMaxFailures,
		OpenTimeout:      cfg.BreakerOpenTimeout,
		HalfOpenRequests: 1,
	}
	orderSettings := stockSettings
	orderSettings.Name = "order-submit"

	verifier := stock.NewHTTPVerifier(cfg.StockServiceURL, client,
		circuitbreaker.New[domain.StockCheckResult](stockSettings, log))
	submitter := order.NewHTTPSubmitter(cfg.OrderServiceURL, client,
		circuitbreaker.New[domain.OrderOutcome](orderSettings, log))

	opts := []service.Option{
		service.WithTimeouts(service.Timeouts{
			Store: cfg.StoreTimeout,
			Stock: cfg.StockTimeout,
			Order: cfg.OrderTimeout,
			Event: cfg.StoreTimeout,
		}),
		service.WithMetrics(metrics.NewCartMetrics()),
		service.WithLogger(log),
	}
	if len(cfg.KafkaBrokers) > 0 {
		publisher := events.NewKafkaPublisher(cfg.CheckoutTopic, cfg.KafkaBrokers...)
		defer func() {
			if err := publisher.Close(); err != nil {
				log.Warn("kafka writer close failed", "error", err)
			}
		}()
		opts = append(opts, service.WithEvents(publisher))
		log.Info("checkout events enabled", "brokers", cfg.KafkaBrokers, "topic", cfg.CheckoutTopic)
	}

	cartService := service.NewCartService(cartStore, verifier, submitter, opts...)

	router := h.NewRouter(h.NewCartHandler(cartService, log), cartStore, h.RouterConfig{
		RequestTimeout: cfg.RequestTimeout,
		HealthTimeout:  cfg.StoreTimeout,
	}, log)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("cart service starting", "port", cfg.HTTPPort, "store", cfg.StoreBackend)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-errCh:
		return err
	case <-quit:
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}

	log.Info("server exited")
	return nil
}

func openStore(ctx context.Context, cfg config.Config, log *slog.Logger) (store.CartStore, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendMongo:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		db, err := store.ConnectMongoDB(connectCtx, cfg.MongoURI, cfg.MongoDBName)
		if err != nil {
			return nil, nil, err
		}
		mongoStore := store.NewMongoStore(db, cfg.CartTTL)
		if err := mongoStore.CreateIndexes(connectCtx); err != nil {
			return nil, nil, err
		}
		log.Info("connected to MongoDB", "uri", cfg.MongoURI, "database", cfg.MongoDBName)

		return mongoStore, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := db.Client().Disconnect(ctx); err != nil {
				log.Warn("mongo disconnect failed", "error", err)
			}
		}, nil

	default:
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		redisStore := store.NewRedisStore(redisClient, cfg.CartTTL)

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := redisStore.Ping(pingCtx); err != nil {
			// Start anyway: requests report StoreUnavailable until Redis is back.
			log.Warn("redis ping failed", "addr", cfg.RedisAddr, "error", err)
		} else {
			log.Info("redis ping succeeded", "addr", cfg.RedisAddr)
		}

		return redisStore, func() {
			if err := redisClient.Close(); err != nil {
				log.Warn("redis close failed", "error", err)
			}
		}, nil
	}
}
