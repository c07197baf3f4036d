package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/akylbek/payment-system/mobile-money-service/internal/api"
	"github.com/akylbek/payment-system/mobile-money-service/internal/config"
	"github.com/akylbek/payment-system/mobile-money-service/internal/events"
	"github.com/akylbek/payment-system/mobile-money-service/internal/gateway"
	"github.com/akylbek/payment-system/mobile-money-service/internal/interfaces"
	"github.com/akylbek/payment-system/mobile-money-service/internal/metrics"
	"github.com/akylbek/payment-system/mobile-money-service/internal/middleware"
	"github.com/akylbek/payment-system/mobile-money-service/internal/repository"
	"github.com/akylbek/payment-system/mobile-money-service/internal/service"
	"github.com/akylbek/payment-system/mobile-money-service/internal/verification"
)

// App owns every long-lived dependency of the service.
type App struct {
	Config    config.Config
	Logger    *zap.Logger
	DB        *sql.DB
	Redis     *redis.Client
	Repo      interfaces.PaymentRepository
	Gateway   interfaces.PaymentGateway
	Publisher interfaces.EventPublisher
	Metrics   *metrics.Metrics
	Registry  *prometheus.Registry
	Verifier  *verification.Verifier
	Job       *verification.Job
	Service   *service.PaymentService
	Server    *http.Server
}

// New wires the application from cfg. Close releases whatever New opened,
// also when New fails halfway.
func New(cfg config.Config, logger *zap.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &App{Config: cfg, Logger: logger}

	if err := a.initStore(); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initGateway(); err != nil {
		a.Close()
		return nil, err
	}
	a.initRedis()
	a.initPublisher()

	a.Registry = prometheus.NewRegistry()
	a.Registry.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	a.Metrics = metrics.NewMetrics(a.Registry)

	var locker verification.Locker = verification.NopLocker{}
	if a.Redis != nil {
		locker = verification.NewRedisLocker(a.Redis, cfg.VerificationLockTTL)
	}

	a.Verifier = verification.NewVerifier(a.Repo, a.Gateway, a.Publisher, locker, a.Metrics, logger, verification.VerifierConfig{
		Policy: verification.Policy{
			FirstCheckDelay: cfg.VerificationFirstCheckDelay,
			RecheckInterval: cfg.VerificationRecheckInterval,
			Expiry:          cfg.PaymentExpiry,
		},
		Timeout: cfg.VerificationTimeout,
	})

	a.Job = verification.NewJob(a.Repo, a.Verifier, a.Metrics, logger, verification.JobConfig{
		Interval:   cfg.VerificationInterval,
		BatchSize:  cfg.VerificationBatchSize,
		BatchPause: cfg.VerificationBatchPause,
		StartDelay: cfg.VerificationStartDelay,
	})

	a.Service = service.NewPaymentService(a.Repo, a.Gateway, a.Publisher, a.Verifier, a.Metrics, logger, service.Config{
		WebhookBaseURL: cfg.PublicBaseURL,
		GatewayTimeout: cfg.GatewayTimeout,
	})

	var cache middleware.ResponseCache
	if a.Redis != nil {
		cache = middleware.NewRedisResponseCache(a.Redis)
	}
	router := api.NewRouter(a.Service, api.RouterConfig{
		ServiceName:    cfg.ServiceName,
		AllowedOrigins: cfg.AllowedOrigins(),
		IdempotencyTTL: cfg.IdempotencyTTL,
		Cache:          cache,
		Gatherer:       a.Registry,
		MockCheckout:   cfg.GatewayProvider == config.GatewayMock,
	})

	a.Server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

func (a *App) initStore() error {
	switch a.Config.StoreDriver {
	case config.StorePostgres:
		db, err := OpenDatabase(a.Config.DatabaseURL)
		if err != nil {
			return err
		}
		a.DB = db
		if err := repository.RunMigrations(db); err != nil {
			return err
		}
		a.Repo = repository.NewPaymentRepository(db)
	default:
		a.Repo = repository.NewMemoryPaymentRepository()
	}
	a.Logger.Info("Payment store ready", zap.String("driver", a.Config.StoreDriver))
	return nil
}

// OpenDatabase connects to PostgreSQL and checks the connection.
func OpenDatabase(url string) (*sql.DB, error) {
	db, err := sql.Open("postgres", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func (a *App) initGateway() error {
	switch a.Config.GatewayProvider {
	case config.GatewayHTTP:
		a.Gateway = gateway.NewHTTPGateway(a.Config.GatewayBaseURL, a.Config.GatewayAPIKey, a.Config.GatewayTimeout)
	default:
		mock, err := gateway.NewMockGateway(a.Config.MockGatewaySuccessRate,
			gateway.WithLatency(a.Config.MockGatewayLatency),
			gateway.WithCheckoutBaseURL(a.Config.PublicBaseURL+gateway.MockCheckoutPath),
		)
		if err != nil {
			return err
		}
		a.Gateway = mock
	}
	a.Logger.Info("Payment gateway ready", zap.String("provider", a.Gateway.Name()))
	return nil
}

func (a *App) initRedis() {
	if a.Config.RedisURL == "" {
		a.Logger.Warn("REDIS_URL not set; idempotency replay and verification locks disabled")
		return
	}

	var opts *redis.Options
	if parsed, err := redis.ParseURL(a.Config.RedisURL); err == nil {
		opts = parsed
	} else {
		opts = &redis.Options{Addr: a.Config.RedisURL}
	}
	a.Redis = redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := a.Redis.Ping(ctx).Err(); err != nil {
		a.Logger.Warn("Redis not reachable at startup", zap.Error(err))
	}
}

func (a *App) initPublisher() {
	var publishers []interfaces.EventPublisher

	if brokers := a.Config.KafkaBrokerList(); len(brokers) > 0 {
		publishers = append(publishers, events.NewKafkaPublisher(brokers, a.Config.KafkaStatusTopic))
		a.Logger.Info("Kafka status events enabled", zap.String("topic", a.Config.KafkaStatusTopic))
	}

	if a.Config.NatsURL != "" {
		nc, err := events.NewNatsPublisher(a.Config.NatsURL, a.Config.NatsSubjectPrefix)
		if err != nil {
			a.Logger.Warn("NATS status events disabled", zap.Error(err))
		} else {
			publishers = append(publishers, nc)
			a.Logger.Info("NATS status events enabled", zap.String("prefix", a.Config.NatsSubjectPrefix))
		}
	}

	if len(publishers) == 0 {
		a.Publisher = events.NopPublisher{}
		return
	}
	a.Publisher = events.NewMultiPublisher(publishers...)
}

// Run starts the verification job and the HTTP server, and blocks until ctx
// is cancelled. It then shuts both down.
func (a *App) Run(ctx context.Context) error {
	a.Job.Start()

	serverErr := make(chan error, 1)
	go func() {
		a.Logger.Info("Mobile money service starting", zap.String("port", a.Config.Port))
		if err := a.Server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serverErr:
		runErr = fmt.Errorf("http server: %w", err)
	}

	a.Logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		a.Logger.Error("Server forced to shutdown", zap.Error(err))
	}

	select {
	case <-a.Job.Stop().Done():
	case <-shutdownCtx.Done():
		a.Logger.Warn("Verification pass still running at shutdown")
	}

	a.Logger.Info("Server exited")
	return runErr
}

func (a *App) Close() {
	if a.Publisher != nil {
		if err := a.Publisher.Close(); err != nil {
			a.Logger.Warn("Failed to close event publisher", zap.Error(err))
		}
	}
	if a.Redis != nil {
		_ = a.Redis.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
