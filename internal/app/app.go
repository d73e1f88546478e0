package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/omendivilg/CoffeeBox/internal/config"
	"github.com/omendivilg/CoffeeBox/internal/event"
	handler "github.com/omendivilg/CoffeeBox/internal/handler/http"
	"github.com/omendivilg/CoffeeBox/internal/identity"
	"github.com/omendivilg/CoffeeBox/internal/reconcile"
	"github.com/omendivilg/CoffeeBox/internal/repository"
	"github.com/omendivilg/CoffeeBox/internal/service"
	"github.com/omendivilg/CoffeeBox/internal/store"
	"github.com/omendivilg/CoffeeBox/internal/store/memory"
	"github.com/omendivilg/CoffeeBox/internal/store/postgres"
	"github.com/omendivilg/CoffeeBox/migrations"
	"github.com/omendivilg/CoffeeBox/pkg/database"
	"github.com/omendivilg/CoffeeBox/pkg/health"
	pkgkafka "github.com/omendivilg/CoffeeBox/pkg/kafka"
	"github.com/omendivilg/CoffeeBox/pkg/middleware"
	"github.com/omendivilg/CoffeeBox/pkg/tracing"
)

// App wires together all dependencies and runs the CoffeeBox API.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	consumer       backgroundConsumer
	reconciler     *reconcile.Reconciler
	httpServer     *http.Server
	tracerShutdown func(context.Context) error

	stopConsumer context.CancelFunc
	consumerDone chan struct{}
}

// backgroundConsumer is the part of pkgkafka.Consumer the app drives.
type backgroundConsumer interface {
	Start(ctx context.Context) error
	Close() error
}

// NewApp creates a new application instance, initializing all dependencies.
// Anything opened before a failure is closed again.
func NewApp(cfg *config.Config, logger *slog.Logger) (_ *App, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	a := &App{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.closeResources()
		}
	}()

	// Initialize OpenTelemetry tracing.
	a.tracerShutdown, err = tracing.InitTracer(ctx, cfg.Tracing())
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	healthHandler := health.NewHandler()

	docs, err := a.openStore(ctx, healthHandler)
	if err != nil {
		return nil, err
	}

	// Initialize the Kafka producer when events are enabled. A nil publisher
	// makes the event producer drop events.
	var publisher event.Publisher
	if cfg.EventsEnabled {
		a.producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = a.producer
		healthHandler.RegisterOptional("kafka", a.producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	eventProducer := event.NewProducer(publisher, logger)

	// Build the dependency graph.
	coffeeRepo := repository.NewCoffeeRepository(docs)
	reviewRepo := repository.NewReviewRepository(docs)
	a.reconciler = reconcile.New(reviewRepo, coffeeRepo, eventProducer, reconcile.Config{
		Tolerance:    cfg.ReconcileTolerance,
		Concurrency:  cfg.ReconcileConcurrency,
		WriteTimeout: cfg.ReconcileWriteTimeout,
	}, logger)
	coffeeService := service.NewCoffeeService(coffeeRepo, a.reconciler, cfg.ListingLimit, logger)
	reviewService := service.NewReviewService(reviewRepo, coffeeRepo, a.reconciler, eventProducer, logger)

	if cfg.ReconcileConsumerEnabled {
		if err := a.openConsumer(ctx, coffeeRepo, healthHandler); err != nil {
			return nil, err
		}
	}

	// Identity.
	verifier := identity.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	var userInfo *identity.UserInfoClient
	if cfg.IdentityUserInfoURL != "" {
		userInfo = identity.NewDefaultUserInfoClient(cfg.IdentityUserInfoURL, logger)
	}

	corsCfg := middleware.DefaultCORSConfig()
	corsCfg.AllowedOrigins = cfg.CORSAllowedOrigins
	corsCfg.Environment = cfg.Environment

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		ServiceName:  config.ServiceName,
		Coffees:      coffeeService,
		Reviews:      reviewService,
		Authenticate: identity.Authenticator(verifier, userInfo),
		Health:       healthHandler,
		CORS:         corsCfg,
		ReviewLimit:  cfg.ReviewRateLimit(),
		Logger:       logger,
	})

	a.httpServer = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       cfg.HTTPReadTimeout,
		WriteTimeout:      cfg.HTTPWriteTimeout,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// openStore connects the configured document store backend.
func (a *App) openStore(ctx context.Context, healthHandler *health.Handler) (store.DocumentStore, error) {
	cfg, logger := a.cfg, a.logger

	if cfg.StoreDriver == config.StoreDriverMemory {
		logger.Warn("using in-memory document store, data is lost on restart")
		return memory.New(), nil
	}

	pgCfg := cfg.Postgres()
	pool, err := database.NewPostgresPoolWithLogger(ctx, &pgCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	a.pool = pool
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.PostgresHost),
		slog.Int("port", cfg.PostgresPort),
		slog.String("database", cfg.PostgresDB),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, config.ServiceName); err != nil {
		logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
	}

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	// Configure slow query logging.
	if threshold := cfg.SlowQueryThreshold(); threshold > 0 {
		database.SetSlowQueryLogging(threshold, logger)
	}

	healthHandler.Register("postgres", pool.Ping)
	return postgres.New(pool, cfg.StoreRequireIndexes), nil
}

// openConsumer starts the Redis-deduplicated review.submitted consumer that
// heals aggregates after incremental updates.
func (a *App) openConsumer(ctx context.Context, shops event.ShopGetter, healthHandler *health.Handler) error {
	cfg, logger := a.cfg, a.logger

	client, err := database.NewRedisClient(ctx, cfg.Redis(), logger)
	if err != nil {
		return err
	}
	a.redis = client
	healthHandler.RegisterOptional("redis", func(ctx context.Context) error {
		return client.Ping(ctx).Err()
	})

	dedup := pkgkafka.NewRedisIdempotencyStore(client, "", cfg.IdempotencyTTL())
	handle := pkgkafka.IdempotentHandler(dedup, event.NewReconcileHandler(shops, a.reconciler, logger), logger)

	a.consumer = pkgkafka.NewConsumer(pkgkafka.ConsumerConfig{
		Brokers:  cfg.KafkaBrokers,
		GroupID:  cfg.ReconcileConsumerGroup,
		Topic:    event.TopicReviewSubmitted,
		MinBytes: 1,
		MaxBytes: 10e6,
	}, handle, logger).WithDeadLetter(pkgkafka.NewDeadLetterWriter(cfg.KafkaBrokers))

	logger.Info("reconcile consumer initialized",
		slog.String("topic", event.TopicReviewSubmitted),
		slog.String("group", cfg.ReconcileConsumerGroup),
	)
	return nil
}

// Run starts the HTTP server and the optional consumer, and blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 2)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
			slog.String("store", a.cfg.StoreDriver),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	if a.consumer != nil {
		consumer := a.consumer
		consumerCtx, stop := context.WithCancel(ctx)
		done := make(chan struct{})
		a.stopConsumer, a.consumerDone = stop, done

		go func() {
			defer close(done)
			if err := consumer.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("reconcile consumer: %w", err)
			}
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case runErr = <-errCh:
	}

	return errors.Join(runErr, a.Shutdown())
}

// Shutdown gracefully stops all components in order:
// 1. HTTP server (drain in-flight requests)
// 2. Kafka consumer (cancel the loop and wait for the current message)
// 3. Background aggregate writes started by requests or the consumer
// 4. Tracer (flush pending spans)
// 5. Kafka producer, Redis and PostgreSQL
//
// Nothing can start a corrective write once step 2 returns, so step 3
// drains them all before the pool is closed.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), a.cfg.HTTPShutdownTimeout)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.stopConsumer != nil {
		a.stopConsumer()
		<-a.consumerDone
		a.stopConsumer, a.consumerDone = nil, nil
	}
	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.consumer = nil
	}

	if a.reconciler != nil {
		a.reconciler.Wait()
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.tracerShutdown = nil
	}

	if err := a.closeResources(); err != nil {
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}

// closeResources releases connections. It is safe to call on a partially
// built App.
func (a *App) closeResources() error {
	var errs []error

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close kafka consumer: %w", err))
		}
		a.consumer = nil
	}
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.producer = nil
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.logger.Error("redis close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
		a.redis = nil
	}
	if a.pool != nil {
		a.pool.Close()
		a.pool = nil
	}
	return errors.Join(errs...)
}
