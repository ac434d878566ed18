// Package app wires the storefront's dependency graph and owns its lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/amelbenhazem/SmartShopTn/internal/config"
	"github.com/amelbenhazem/SmartShopTn/internal/event"
	handler "github.com/amelbenhazem/SmartShopTn/internal/handler/http"
	"github.com/amelbenhazem/SmartShopTn/internal/ledger"
	redisrepo "github.com/amelbenhazem/SmartShopTn/internal/repository/redis"
	pgrepo "github.com/amelbenhazem/SmartShopTn/internal/repository/postgres"
	"github.com/amelbenhazem/SmartShopTn/internal/service"
	"github.com/amelbenhazem/SmartShopTn/pkg/database"
	"github.com/amelbenhazem/SmartShopTn/pkg/health"
	pkgkafka "github.com/amelbenhazem/SmartShopTn/pkg/kafka"
)

// leaseSweepInterval is how often the reservation janitor scans for expired leases.
const leaseSweepInterval = 30 * time.Second

// App wires together all dependencies and runs the storefront service.
type App struct {
	cfg        *config.Config
	logger     *slog.Logger
	pool       *pgxpool.Pool
	rdb        *redis.Client
	producer   *pkgkafka.Producer
	ledger     *ledger.Ledger
	httpServer *http.Server
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// PostgreSQL pool (catalog, stock, orders).
	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPool(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Redis client (carts).
	rdb, err := database.NewRedisClient(ctx, cfg.Redis())
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis",
		slog.String("addr", cfg.Redis().Addr()),
		slog.Int("db", cfg.RedisDB),
	)

	// Kafka producer.
	kafkaCfg := pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers)
	producer := pkgkafka.NewProducer(kafkaCfg, logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	// Build the dependency graph.
	cartTTL := time.Duration(cfg.CartTTL) * time.Hour
	reservationTTL := time.Duration(cfg.ReservationTTL) * time.Second

	cartRepo := redisrepo.NewCartRepository(rdb, cartTTL)
	productRepo := pgrepo.NewProductRepository(pool)
	orderRepo := pgrepo.NewOrderRepository(pool)

	eventProducer := event.NewProducer(producer, logger)
	led := ledger.New(productRepo, logger, reservationTTL)

	cartService := service.NewCartService(cartRepo, productRepo, eventProducer, logger, cartTTL)
	checkoutService := service.NewCheckoutService(cartRepo, productRepo, orderRepo, led, eventProducer, logger)
	orderService := service.NewOrderService(orderRepo, productRepo, eventProducer, logger)

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.Register("redis", func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	})
	healthHandler.Register("kafka", producer.Ping)

	// HTTP router.
	router := handler.NewRouter(cartService, checkoutService, orderService, healthHandler, logger, cfg.PprofAllowedCIDRs)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &App{
		cfg:        cfg,
		logger:     logger,
		pool:       pool,
		rdb:        rdb,
		producer:   producer,
		ledger:     led,
		httpServer: httpServer,
	}, nil
}

// Run starts the HTTP server and the reservation janitor, blocking until the
// context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	// Expired-reservation janitor.
	go a.ledger.Run(ctx, leaseSweepInterval)

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}

	if err := a.rdb.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return nil
}
