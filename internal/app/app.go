package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/utafrali/mobileshop/internal/config"
	"github.com/utafrali/mobileshop/internal/domain"
	"github.com/utafrali/mobileshop/internal/event"
	handler "github.com/utafrali/mobileshop/internal/handler/http"
	"github.com/utafrali/mobileshop/internal/notification"
	"github.com/utafrali/mobileshop/internal/service"
	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/pkg/health"
	pkgkafka "github.com/utafrali/mobileshop/pkg/kafka"
	"github.com/utafrali/mobileshop/pkg/middleware"
	"github.com/utafrali/mobileshop/pkg/tracing"
)

const (
	serviceName    = "mobileshop"
	idempotencyTTL = 24 * time.Hour
)

// App wires together all dependencies and runs the shop server.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	store          store.Store
	publisher      pkgkafka.Publisher
	consumer       *pkgkafka.Consumer
	rateLimiter    *middleware.RateLimiter
	httpServer     *http.Server
	shutdownTracer tracing.ShutdownFunc
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	shutdownTracer, err := tracing.InitTracer(ctx, tracing.Config{
		ServiceName:    serviceName,
		ServiceVersion: "0.1.0",
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.OTelEndpoint,
		SampleRate:     1.0,
		Enabled:        cfg.OTelEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("init tracing: %w", err)
	}

	st, redisClient, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	// Kafka publisher.
	var publisher pkgkafka.Publisher = pkgkafka.NopPublisher{}
	if cfg.KafkaEnabled {
		publisher = pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
		logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))
	}
	events := event.NewProducer(publisher, logger)

	blobs, blobReader, err := openBlobs(cfg)
	if err != nil {
		return nil, err
	}
	mail := newMailer(cfg, logger)

	// Build the dependency graph.
	cartService := service.NewCartService(st, events, logger)
	ledgerService := service.NewLedgerService(st, events, logger)
	orderService := service.NewOrderService(st, events, logger, service.OrderOptions{
		ClearCartOnOrder: cfg.OrderClearCart,
	})
	reviewService := service.NewReviewService(st, blobs, events, logger, service.ReviewOptions{
		Rules: domain.ReviewRules{
			MinBodyLength: cfg.ReviewMinBodyLength,
			MaxImages:     cfg.ReviewMaxImages,
		},
		RewardPoints:  cfg.ReviewRewardPoints,
		MaxImageBytes: cfg.ReviewMaxImageBytes,
	})
	profileService := service.NewProfileService(st, logger)

	// Notification consumer.
	var consumer *pkgkafka.Consumer
	if cfg.NotificationsEnabled {
		var seen pkgkafka.IdempotencyStore = pkgkafka.NewMemoryIdempotencyStore(idempotencyTTL)
		if redisClient != nil {
			seen = pkgkafka.NewRedisIdempotencyStore(redisClient, cfg.StoreKeyPrefix+"notifications:", idempotencyTTL)
		}
		consumer = notification.NewConsumer(notification.ConsumerConfig{
			Brokers:    cfg.KafkaBrokers,
			GroupID:    cfg.KafkaConsumerGroup,
			DeadLetter: publisher,
		}, notification.NewHandler(profileService, mail, logger), seen, logger)
		logger.Info("notification consumer initialized", slog.String("group", cfg.KafkaConsumerGroup))
	}

	// Health checks.
	healthHandler := health.NewHandler()
	healthHandler.Register("store", st.Ping)
	if cfg.KafkaEnabled {
		healthHandler.Register("kafka", func(ctx context.Context) error {
			return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
		})
	}

	auth := middleware.AuthConfig{TrustHeaders: cfg.AuthTrustUserHeader, Logger: logger}
	if cfg.AuthTrustUserHeader && cfg.IsProduction() {
		logger.Warn("identity headers are trusted in production; the server must sit behind a gateway that sets them")
	}
	if cfg.JWTSecret != "" {
		auth.Validate = middleware.NewJWTValidator(cfg.JWTSecret)
	}
	cors := middleware.DefaultCORSConfig()
	cors.AllowedOrigins = cfg.CORSAllowedOrigins
	rateLimiter := middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, logger)

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Cart:        cartService,
		Ledger:      ledgerService,
		Orders:      orderService,
		Reviews:     reviewService,
		Profiles:    profileService,
		Store:       st,
		Health:      healthHandler,
		Auth:        auth,
		CORS:        cors,
		RateLimiter: rateLimiter,
		Blobs:       blobReader,
		Logger:      logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		store:          st,
		publisher:      publisher,
		consumer:       consumer,
		rateLimiter:    rateLimiter,
		httpServer:     httpServer,
		shutdownTracer: shutdownTracer,
	}, nil
}

// Handler returns the HTTP handler of the app.
func (a *App) Handler() http.Handler {
	return a.httpServer.Handler
}

// Run starts the HTTP server and the notification consumer, then blocks until
// the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	if a.consumer != nil {
		go func() {
			if err := a.consumer.Start(ctx); err != nil {
				a.logger.Error("kafka consumer error", slog.String("error", err.Error()))
			}
		}()
	}

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

// Shutdown gracefully stops all components.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
	}
	a.rateLimiter.Stop()

	if a.consumer != nil {
		if err := a.consumer.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
		}
	}
	if err := a.publisher.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
	}
	if err := a.store.Close(); err != nil {
		a.logger.Error("store close error", slog.String("error", err.Error()))
	}
	if err := a.shutdownTracer(shutdownCtx); err != nil {
		a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
	}

	a.logger.Info("application shutdown complete")
	return nil
}
