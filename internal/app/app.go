package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.mongodb.org/mongo-driver/v2/mongo"

	"github.com/utafrali/authservice/internal/auth"
	"github.com/utafrali/authservice/internal/config"
	"github.com/utafrali/authservice/internal/event"
	handler "github.com/utafrali/authservice/internal/handler/http"
	mongorepo "github.com/utafrali/authservice/internal/repository/mongo"
	"github.com/utafrali/authservice/internal/service"
	"github.com/utafrali/authservice/pkg/database"
	"github.com/utafrali/authservice/pkg/health"
	pkgkafka "github.com/utafrali/authservice/pkg/kafka"
	"github.com/utafrali/authservice/pkg/middleware"
	"github.com/utafrali/authservice/pkg/tracing"
)

// ServiceName labels logs, metrics and traces emitted by this process.
const ServiceName = "auth-service"

// Version is reported as the service.version trace resource attribute.
var Version = "0.1.0"

// App wires together all dependencies and runs the auth service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	mongo          *mongo.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     cfg.OTelSampleRate,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Connect to MongoDB with pool metrics attached.
	poolStats := database.NewPoolStatsCollector(ServiceName, cfg.MongoMaxPoolSize)
	if err := prometheus.Register(poolStats); err != nil {
		logger.Warn("mongodb pool metrics not registered", slog.String("error", err.Error()))
	}

	client, err := database.NewMongoClient(ctx, database.MongoConfig{
		URI:            cfg.MongoURI,
		Database:       cfg.MongoDatabase,
		MaxPoolSize:    cfg.MongoMaxPoolSize,
		MinPoolSize:    cfg.MongoMinPoolSize,
		ConnectTimeout: cfg.MongoConnectTimeout,
		PoolMonitor:    poolStats.Monitor(),
	}, logger)
	if err != nil {
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("connect to mongodb: %w", err)
	}
	logger.Info("connected to MongoDB", slog.String("database", cfg.MongoDatabase))

	// Configure slow command logging.
	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowCommandLogging(cfg.SlowQueryThreshold, logger)
	}

	userRepo := mongorepo.NewUserRepository(client.Database(cfg.MongoDatabase))
	if err := userRepo.EnsureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		_ = tracerShutdown(context.Background())
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	logger.Info("user indexes ensured")

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.RegisterCritical("mongodb", database.PingChecker(client))

	// Initialize the Kafka producer when enabled.
	var (
		producer  *pkgkafka.Producer
		publisher event.Publisher = event.NoopPublisher{}
	)
	if cfg.KafkaEnabled {
		producer = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		publisher = event.NewProducer(producer, logger)
		healthHandler.RegisterNonCritical("kafka", producer.Ping)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}

	// Build the dependency graph.
	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	issuer := auth.NewTokenIssuer(auth.TokenConfig{
		AccessSecret:  cfg.AccessTokenKey,
		AccessTTL:     cfg.AccessTokenExpiry,
		RefreshSecret: cfg.RefreshTokenKey,
		RefreshTTL:    cfg.RefreshTokenExpiry,
	})
	authService := service.NewAuthService(userRepo, hasher, issuer, publisher, logger)

	// HTTP router.
	router := handler.NewRouter(authService, healthHandler, logger, routerConfig(cfg))

	return &App{
		cfg:            cfg,
		logger:         logger,
		mongo:          client,
		producer:       producer,
		httpServer:     newHTTPServer(cfg.HTTPPort, router),
		tracerShutdown: tracerShutdown,
	}, nil
}

func routerConfig(cfg *config.Config) handler.RouterConfig {
	cors := middleware.DefaultCORSConfig()
	if len(cfg.AllowedOrigins) > 0 {
		cors.AllowedOrigins = cfg.AllowedOrigins
	}
	return handler.RouterConfig{
		ServiceName:  ServiceName,
		CORS:         cors,
		MaxBodyBytes: handler.DefaultMaxBodyBytes,
		CredentialRateLimit: middleware.RateLimitConfig{
			RPS:   cfg.CredentialRateLimitRPS,
			Burst: cfg.CredentialRateLimitBurst,
		},
	}
}

func newHTTPServer(port int, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		_ = a.Shutdown()
		return err
	}

	return a.Shutdown()
}

// Shutdown gracefully stops all components in the correct order:
// 1. HTTP server (drain in-flight requests)
// 2. Tracer (flush pending spans from drained requests)
// 3. Kafka producer
// 4. MongoDB client
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	// 1. Drain in-flight HTTP requests (5s budget).
	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// 2. Flush pending spans after HTTP drain so in-flight request spans are captured.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 3. Close Kafka producer.
	if a.producer != nil {
		if err := a.producer.Close(); err != nil {
			a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	// 4. Disconnect from MongoDB.
	if a.mongo != nil {
		mongoCtx, mongoCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer mongoCancel()
		if err := a.mongo.Disconnect(mongoCtx); err != nil {
			a.logger.Error("mongodb disconnect error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
