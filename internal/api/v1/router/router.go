package router

import (
	"context"
	"net/http"
	"strings"
	"time"

	"app/internal/api/v1/handler"
	"app/internal/blob"
	"app/internal/cache"
	"app/internal/config"
	"app/internal/imaging"
	"app/internal/middleware"
	"app/internal/notify"
	"app/internal/pgmq"
	"app/internal/pubsub"
	"app/internal/queue"
	"app/internal/repository"
	"app/internal/scope"
	"app/internal/service"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/rs/zerolog"
)

func New(cfg *config.Config, logger zerolog.Logger) (http.Handler, *pgxpool.Pool, error) {
	logger.Info().Msg("Router initialized")
	logger.Info().Str("environment", cfg.Environment).Msg("App environment loaded")

	// 1. Open DB connection pool
	pool, err := pgxpool.New(context.Background(), normalizeDSN(cfg))
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB pool: %v", err)
		return nil, nil, err
	}
	if err := pool.Ping(context.Background()); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
		return nil, nil, err
	}
	logger.Info().Msg("Database connection successful")

	// 2. Initialize Redis client (shared cache tier)
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(context.Background()).Err(); err != nil {
		logger.Fatal().Msgf("Failed to ping Redis: %v", err)
		return nil, nil, err
	}

	// 3. Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(context.TODO(),
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load S3 config: %v", err)
		return nil, nil, err
	}
	s3Client := s3.NewFromConfig(s3Config, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(cfg.S3URL)
		o.UsePathStyle = true
	})
	blobStore := blob.NewS3Store(s3Client, cfg.S3Bucket, blob.RetryPolicy{
		MaxRetries:     cfg.BlobMaxRetries,
		InitialBackoff: time.Duration(cfg.BlobBackoffInitialSec) * time.Second,
		MaxBackoff:     time.Duration(cfg.BlobBackoffMaxSec) * time.Second,
	}, logger)

	// 4. Initialize validator
	validate := validator.New(validator.WithRequiredStructEnabled())

	// 5. Initialize the limit-warning notifier. Without a GCP project the
	// warnings are dropped rather than blocking startup.
	var notifier notify.Notifier = notify.NopNotifier{}
	if cfg.GCPProjectID != "" {
		publisher, err := pubsub.NewPublisher(context.Background(), cfg.GCPProjectID)
		if err != nil {
			logger.Fatal().Msgf("Failed to create Pub/Sub publisher: %v", err)
			return nil, nil, err
		}
		notifier = notify.NewPubSubNotifier(
			publisher,
			cfg.LimitWarningTopic,
			cfg.WarningDedupMaxEntries,
			time.Duration(cfg.WarningDedupTTLHours)*time.Hour,
			logger,
		)
	}

	// 6. Initialize repositories & services & handlers
	counterRepo := repository.NewCounterRepo(pool)
	auditRepo := repository.NewAuditRepo(pool)
	jobRepo := repository.NewJobRepo(pool)
	subscriptionRepo := repository.NewSubscriptionRepo(pool)

	resolver := scope.NewResolver(subscriptionRepo, logger)

	localTier, err := cache.NewLocalTier(cfg.CacheLocalMaxEntries)
	if err != nil {
		return nil, nil, err
	}
	resultCache := cache.New(localTier, cache.NewRedisStore(redisClient, logger), cache.Options{
		BaseTTL:     time.Duration(cfg.CacheBaseTTLMin) * time.Minute,
		InFlightTTL: time.Duration(cfg.CacheInFlightTTLSec) * time.Second,
	}, logger)

	dispatcher := queue.NewDispatcher(pgmq.New(pool), jobRepo, cfg.QueuePrefix, logger)

	operationSvc := service.NewOperationService(resolver, counterRepo, auditRepo, notifier, cfg.QuotaStrictEnforcement, logger)
	conversionSvc := service.NewConversionService(
		resultCache,
		dispatcher,
		validate,
		time.Duration(cfg.CacheJoinTimeoutSec)*time.Second,
		logger,
	)

	encoder := imaging.NewHTTPEncoder(cfg.EncoderBaseURL, time.Duration(cfg.EncoderRequestTimeoutSec)*time.Second, logger)

	conversionHandler := handler.NewConversionHandler(conversionSvc, operationSvc, blobStore, encoder, validate, logger)
	usageHandler := handler.NewUsageHandler(operationSvc, blobStore, logger)
	subscriptionHandler := handler.NewSubscriptionHandler(subscriptionRepo, logger)

	// 7. Initialize middleware
	identityMiddleware := middleware.IdentityMiddleware(cfg.JWTSecret, cfg.SessionIPSalt, logger)

	// 8. Create ServeMux router
	mux := http.NewServeMux()

	apiV1Mux := http.NewServeMux()
	conversionHandler.RegisterRoutes(apiV1Mux, identityMiddleware)
	usageHandler.RegisterRoutes(apiV1Mux, identityMiddleware)
	subscriptionHandler.RegisterRoutes(apiV1Mux, identityMiddleware)

	// Mount the API v1 routes under /v1
	mux.Handle("/v1/", http.StripPrefix("/v1", apiV1Mux))

	// Redirect root-level requests to /v1/{path}
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/v1/") {
			http.NotFound(w, r)
			return
		}
		http.Redirect(w, r, "/v1"+r.URL.Path, http.StatusMovedPermanently)
	})

	// 9. Apply CORS middleware
	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		Debug:            false,
	})

	return middleware.LoggerMiddleware(logger)(c.Handler(mux)), pool, nil
}

// normalizeDSN adjusts the connection string for the environment: local
// development disables SSL, pooled production connections use the simple
// query protocol.
func normalizeDSN(cfg *config.Config) string {
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += dsnSeparator(dsn) + "sslmode=disable"
	}
	if cfg.Environment != "development" && !strings.Contains(dsn, "prefer_simple_protocol") {
		dsn += dsnSeparator(dsn) + "prefer_simple_protocol=true"
	}
	return dsn
}

func dsnSeparator(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		if strings.Contains(dsn, "?") {
			return "&"
		}
		return "?"
	}
	return " "
}

// removeDisableGzip is a workaround for S3 signature errors with some
// S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}
