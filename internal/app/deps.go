package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/utafrali/mobileshop/internal/blob"
	"github.com/utafrali/mobileshop/internal/config"
	handler "github.com/utafrali/mobileshop/internal/handler/http"
	"github.com/utafrali/mobileshop/internal/mailer"
	"github.com/utafrali/mobileshop/internal/store"
	"github.com/utafrali/mobileshop/internal/store/memory"
	pgstore "github.com/utafrali/mobileshop/internal/store/postgres"
	redisstore "github.com/utafrali/mobileshop/internal/store/redis"
	"github.com/utafrali/mobileshop/pkg/database"
	"github.com/utafrali/mobileshop/pkg/httpclient"
)

// OpenStore connects the configured store backend. The redis client is
// returned for reuse when the backend is redis.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, *redis.Client, error) {
	switch cfg.StoreBackend {
	case config.StoreRedis:
		client, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to redis: %w", err)
		}
		logger.Info("connected to Redis", slog.String("key_prefix", cfg.StoreKeyPrefix))
		return redisstore.New(client, redisstore.Options{
			KeyPrefix:  cfg.StoreKeyPrefix,
			MaxRetries: cfg.StoreTxMaxRetries,
		}), client, nil

	case config.StorePostgres:
		pool, err := database.NewPostgresPool(ctx, database.DefaultPostgresConfig(cfg.DatabaseURL), logger)
		if err != nil {
			return nil, nil, fmt.Errorf("connect to postgres: %w", err)
		}
		if err := pgstore.Migrate(ctx, pool, logger); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("migrate postgres store: %w", err)
		}
		if cfg.StoreSlowQuery > 0 {
			database.SetSlowQueryLogging(cfg.StoreSlowQuery, logger)
		}
		if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
			logger.Warn("pool metrics not registered", slog.String("error", err.Error()))
		}
		logger.Info("connected to PostgreSQL")
		return pgstore.New(pool, cfg.StoreTxMaxRetries), nil, nil

	default:
		logger.Warn("using in-memory store, data is lost on restart")
		return memory.New(), nil, nil
	}
}

// openBlobs returns the upload storage and, for the in-process backend, the
// reader that serves it back.
func openBlobs(cfg *config.Config) (blob.Storage, handler.BlobReader, error) {
	if cfg.BlobBackend == config.BlobS3 {
		s3, err := blob.NewS3Storage(blob.S3Config{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			PublicBaseURL: cfg.BlobPublicBaseURL,
		})
		if err != nil {
			return nil, nil, fmt.Errorf("open s3 storage: %w", err)
		}
		return s3, nil, nil
	}
	mem := blob.NewMemoryStorage(cfg.BlobPublicBaseURL)
	return mem, mem, nil
}

func newMailer(cfg *config.Config, logger *slog.Logger) mailer.Mailer {
	if cfg.MailerBackend != config.MailerMailjet {
		return mailer.NewLogMailer(logger)
	}
	client := httpclient.NewCircuitBreakerClient(
		httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("mailjet"),
		logger,
	)
	return mailer.NewMailjetMailer(mailer.MailjetConfig{
		APIKey:    cfg.MailjetAPIKey,
		SecretKey: cfg.MailjetSecretKey,
		BaseURL:   cfg.MailjetBaseURL,
		FromEmail: cfg.MailFromEmail,
		FromName:  cfg.MailFromName,
	}, client, logger)
}
