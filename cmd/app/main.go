package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"app/internal/api/v1/router"
	"app/internal/config"
	"app/internal/logger"
	"app/internal/secrets"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
)

func main() {
	logger := logger.New()

	// 1. Load configuration
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}
	resolveSecrets(cfg, logger)

	// 2. Build router (and get DB pool)
	r, pool, err := router.New(cfg, logger)
	if err != nil {
		logger.Fatal().Msgf("Failed to build router: %v", err)
	}
	defer pool.Close()

	// 3. Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// 4. Start server in a goroutine
	go func() {
		logger.Info().Msgf("🚀 Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Msgf("Listen: %s\n", err)
		}
	}()

	// 5. Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info().Msg("Shutdown signal received, exiting...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal().Msgf("Server forced to shutdown: %v", err)
	}
	logger.Info().Msg("Server shut down gracefully")
}

// resolveSecrets fills credentials referenced by *_SECRET_NAME env vars from
// Secret Manager. Literal env values win when both are set.
func resolveSecrets(cfg *config.Config, logger zerolog.Logger) {
	if cfg.JWTSecretSecretName == "" && cfg.RedisPasswordSecretName == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	mgr, err := secrets.NewManager(ctx, cfg.GCPProjectID)
	if err != nil {
		logger.Fatal().Msgf("Failed to create secrets manager: %v", err)
	}
	defer mgr.Close()

	if cfg.JWTSecret == "" && cfg.JWTSecretSecretName != "" {
		cfg.JWTSecret, err = mgr.Resolve(ctx, cfg.JWTSecretSecretName)
		if err != nil {
			logger.Fatal().Msgf("Failed to resolve JWT secret: %v", err)
		}
	}
	if cfg.RedisPassword == "" && cfg.RedisPasswordSecretName != "" {
		cfg.RedisPassword, err = mgr.Resolve(ctx, cfg.RedisPasswordSecretName)
		if err != nil {
			logger.Fatal().Msgf("Failed to resolve Redis password: %v", err)
		}
	}
}
