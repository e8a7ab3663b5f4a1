package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"app/internal/blob"
	"app/internal/cache"
	"app/internal/config"
	"app/internal/imaging"
	"app/internal/logger"
	"app/internal/pgmq"
	"app/internal/queue"
	"app/internal/repository"
	"app/internal/worker/convert"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	goredis "github.com/redis/go-redis/v9"
)

func main() {
	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize DB pool
	pool, err := pgxpool.New(ctx, cfg.DBConnectionString)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB pool: %v", err)
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	// Initialize Redis client (shared cache tier)
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Msgf("Failed to ping Redis: %v", err)
	}
	defer redisClient.Close()

	// Initialize S3 client
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
	)
	if err != nil {
		logger.Fatal().Msgf("Failed to load S3 config: %v", err)
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

	// Initialize result cache
	localTier, err := cache.NewLocalTier(cfg.CacheLocalMaxEntries)
	if err != nil {
		logger.Fatal().Msgf("Failed to create local cache tier: %v", err)
	}
	resultCache := cache.New(localTier, cache.NewRedisStore(redisClient, logger), cache.Options{
		BaseTTL:     time.Duration(cfg.CacheBaseTTLMin) * time.Minute,
		InFlightTTL: time.Duration(cfg.CacheInFlightTTLSec) * time.Second,
	}, logger)

	// Initialize PGMQ client and job plumbing
	pgmqClient := pgmq.New(pool)
	logger.Info().Msg("PGMQ client initialized")

	jobRepo := repository.NewJobRepo(pool)
	dispatcher := queue.NewDispatcher(pgmqClient, jobRepo, cfg.QueuePrefix, logger)
	encoder := imaging.NewHTTPEncoder(cfg.EncoderBaseURL, time.Duration(cfg.EncoderRequestTimeoutSec)*time.Second, logger)

	// Background sweepers: stale shared-cache entries and finished jobs past
	// retention.
	go resultCache.RunSweeper(ctx,
		time.Duration(cfg.CacheSweepIntervalMin)*time.Minute,
		time.Duration(cfg.CacheStaleThresholdHour)*time.Hour,
	)
	go dispatcher.RunRetentionSweeper(ctx,
		time.Duration(cfg.JobSweepIntervalMin)*time.Minute,
		time.Duration(cfg.JobRetentionHours)*time.Hour,
	)

	if err := convert.Run(ctx, logger, convert.Deps{
		Client:  pgmqClient,
		Jobs:    jobRepo,
		Blobs:   blobStore,
		Encoder: encoder,
		Cache:   resultCache,
		Cfg:     cfg,
	}); err != nil {
		logger.Fatal().Msgf("Conversion worker exited with error: %v", err)
	}
	logger.Info().Msg("Conversion worker shut down gracefully")
}
