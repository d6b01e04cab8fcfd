package main

import (
	"context"
	"errors"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/safar/shop-orders/internal/auth"
	"github.com/safar/shop-orders/internal/catalog"
	"github.com/safar/shop-orders/internal/config"
	"github.com/safar/shop-orders/internal/database"
	"github.com/safar/shop-orders/internal/events"
	"github.com/safar/shop-orders/internal/fulfillment"
	"github.com/safar/shop-orders/internal/httpapi"
	"github.com/safar/shop-orders/internal/observability"
	"github.com/safar/shop-orders/internal/seed"
	"github.com/safar/shop-orders/internal/store"
	"github.com/safar/shop-orders/internal/store/memstore"
	"github.com/safar/shop-orders/internal/store/sqlstore"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Load config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Log, cfg.Telemetry.ServiceName)
	if err != nil {
		log.Fatalf("Create logger: %v", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("Server stopped with error", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	shutdownTracing, err := observability.SetupTracing(ctx, cfg.Telemetry)
	if err != nil {
		return err
	}
	tracer := otel.Tracer(observability.InstrumentationName)

	var closers []io.Closer
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			if err := closers[i].Close(); err != nil {
				logger.Warn("Failed to close resource", zap.Error(err))
			}
		}
	}()

	repo, closer, err := openRepository(ctx, cfg, logger)
	if err != nil {
		return err
	}
	if closer != nil {
		closers = append(closers, closer)
	}

	var cache catalog.ProductCache = catalog.NopCache{}
	if cfg.Redis.Enabled() {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := client.Ping(ctx).Err(); err != nil {
			logger.Warn("Redis unreachable, product lookups will miss the cache", zap.String("addr", cfg.Redis.Addr), zap.Error(err))
		}
		closers = append(closers, client)
		cache = catalog.NewRedisCache(client, cfg.Redis.ProductTTL)
		logger.Info("Product cache enabled", zap.String("addr", cfg.Redis.Addr), zap.Duration("ttl", cfg.Redis.ProductTTL))
	}

	publisher := events.Fanout{catalog.CacheInvalidator{Cache: cache}}
	switch cfg.Events.Backend {
	case config.EventsRabbitMQ:
		rabbit, err := events.DialRabbitMQ(cfg.Events.AMQPURL, cfg.Events.AMQPExchange, logger)
		if err != nil {
			return err
		}
		closers = append(closers, rabbit)
		publisher = append(publisher, rabbit)
	case config.EventsKafka:
		kafka := events.NewKafkaPublisher(cfg.Events.KafkaBrokers, cfg.Events.KafkaTopic)
		closers = append(closers, kafka)
		publisher = append(publisher, kafka)
	}
	logger.Info("Order events configured", zap.String("backend", cfg.Events.Backend))

	orders := fulfillment.NewService(repo, publisher, logger, tracer)
	products := catalog.NewService(repo, cache, logger, tracer)
	users := auth.NewService(repo, logger)

	if cfg.Auth.Enabled {
		if cfg.Auth.AdminPassword == "" {
			logger.Warn("ADMIN_PASSWORD not set, no admin user will be created")
		} else {
			created, err := users.EnsureAdmin(ctx, cfg.Auth.AdminUsername, cfg.Auth.AdminPassword)
			if err != nil {
				return err
			}
			if created {
				logger.Info("Admin user created", zap.String("username", cfg.Auth.AdminUsername))
			}
		}
	}

	if cfg.SeedData {
		if err := seed.Preload(ctx, products, orders, logger); err != nil {
			return err
		}
	}

	app := httpapi.New(httpapi.Deps{
		Orders:       orders,
		Catalog:      products,
		Auth:         users,
		Logger:       logger,
		Tracer:       tracer,
		AuthEnabled:  cfg.Auth.Enabled,
		BodyLimit:    cfg.Server.BodyLimit,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("Server starting", zap.String("port", cfg.Server.Port), zap.String("driver", cfg.Database.Driver))
		serverErr <- app.Listen(":" + cfg.Server.Port)
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down", zap.Duration("timeout", cfg.Server.ShutdownTimeout))
	if err := app.ShutdownWithTimeout(cfg.Server.ShutdownTimeout); err != nil {
		logger.Warn("Server shutdown incomplete", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := shutdownTracing(flushCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		logger.Warn("Failed to flush traces", zap.Error(err))
	}
	return nil
}

func openRepository(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Repository, io.Closer, error) {
	if cfg.Database.Driver == config.DriverMemory {
		logger.Info("Using in-memory storage")
		return memstore.New(), nil, nil
	}

	db, err := database.NewConnection(&cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	logger.Info("Connected to database", zap.String("driver", cfg.Database.Driver))

	if cfg.Database.AutoMigrate {
		n, err := database.Migrate(ctx, db, database.MigrateUp)
		if err != nil {
			db.Close()
			return nil, nil, err
		}
		logger.Info("Applied migrations", zap.Int("count", n))
	}

	return sqlstore.New(db, cfg.Database.TxMaxRetries), db, nil
}
