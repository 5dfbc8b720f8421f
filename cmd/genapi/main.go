package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/wb-go/wbf/dbpg"
	"github.com/wb-go/wbf/retry"
	"github.com/wb-go/wbf/zlog"

	cataloghdl "github.com/pixmint/genapi/internal/api/handlers/catalog"
	generationhdl "github.com/pixmint/genapi/internal/api/handlers/generation"
	"github.com/pixmint/genapi/internal/api/router"
	"github.com/pixmint/genapi/internal/api/server"
	"github.com/pixmint/genapi/internal/config"
	"github.com/pixmint/genapi/internal/genai"
	catalogrepo "github.com/pixmint/genapi/internal/repository/catalog"
	taskrepo "github.com/pixmint/genapi/internal/repository/task"
	generationsvc "github.com/pixmint/genapi/internal/service/generation"
	"github.com/pixmint/genapi/internal/storage"
	"github.com/pixmint/genapi/internal/storage/bucket"
	"github.com/pixmint/genapi/internal/storage/pinning"
)

func main() {
	// Context & signals: used for graceful shutdown on system interrupts.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize logger, development env vars and configuration.
	zlog.Init()
	_ = godotenv.Load()
	cfg := config.MustLoad("./config/config.yml")

	// Connect to PostgreSQL (master and replicas).
	opts := &dbpg.Options{
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}

	db, err := dbpg.New(cfg.Database.DSN(), cfg.Database.Slaves, opts)
	if err != nil {
		zlog.Logger.Fatal().Err(err).Msg("failed to connect to database")
	}

	// Storage backend is a static choice: a configured pinning
	// credential selects the content-addressed store exclusively,
	// otherwise the bucket store is used.
	var gw storage.Gateway
	if cfg.Storage.Pinning.JWT != "" {
		gw = pinning.New(
			cfg.Storage.Pinning.APIURL,
			cfg.Storage.Pinning.GatewayURL,
			cfg.Storage.Pinning.JWT,
			cfg.Storage.Pinning.Mode,
		)
		zlog.Logger.Info().Str("mode", cfg.Storage.Pinning.Mode).Msg("using pinning storage backend")
	} else {
		gw, err = bucket.New(
			ctx,
			cfg.Storage.Bucket.Endpoint,
			cfg.Storage.Bucket.AccessKey,
			cfg.Storage.Bucket.SecretKey,
			cfg.Storage.Bucket.BucketName,
			cfg.Storage.Bucket.UseSSL,
			cfg.Storage.Bucket.PublicBaseURL,
		)
		if err != nil {
			zlog.Logger.Fatal().Err(err).Msg("failed to connect to storage")
		}
		zlog.Logger.Info().Str("bucket", cfg.Storage.Bucket.BucketName).Msg("using bucket storage backend")
	}

	// Generative backend client.
	backend := genai.New(cfg.Backend.APIBase, cfg.Backend.APIKey, cfg.Backend.Model)

	// Repositories and the generation service.
	tasks := taskrepo.NewRepository(db)
	catalog := catalogrepo.NewRepository(db)

	svc := generationsvc.NewService(tasks, catalog, backend, gw, generationsvc.Options{
		Bucket:         cfg.Storage.Bucket.BucketName,
		InlineMaxBytes: cfg.Result.InlineMaxBytes,
		URLTTL:         cfg.Result.URLTTL,
		Retry: retry.Strategy{
			Attempts: cfg.Retry.Attempts,
			Delay:    cfg.Retry.Delay,
			Backoff:  cfg.Retry.Backoff,
		},
	})

	// HTTP handlers and server.
	genHandler := generationhdl.NewHandler(svc)
	catHandler := cataloghdl.NewHandler(catalog)

	r := router.Setup(genHandler, catHandler, cfg.Auth.DevToken)
	s := server.New(cfg.Server.HTTPPort, r)
	go func() {
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zlog.Logger.Fatal().Err(err).Msg("failed to start server")
		}
	}()

	zlog.Logger.Info().Str("addr", cfg.Server.HTTPPort).Msg("server started")

	// Block until context is canceled (SIGINT/SIGTERM).
	<-ctx.Done()
	zlog.Logger.Info().Msg("context done")

	// Graceful shutdown with timeout for HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	zlog.Logger.Info().Msg("shutting down server")
	if err := s.Shutdown(shutdownCtx); err != nil {
		zlog.Logger.Error().Err(err).Msg("failed to shutdown server")
	}
	if errors.Is(shutdownCtx.Err(), context.DeadlineExceeded) {
		zlog.Logger.Info().Msg("timeout exceeded, forcing shutdown")
	}

	// Close master and replica databases.
	if err := db.Master.Close(); err != nil {
		zlog.Logger.Printf("failed to close master DB: %v", err)
	}
	for i, slave := range db.Slaves {
		if err := slave.Close(); err != nil {
			zlog.Logger.Printf("failed to close slave DB %d: %v", i, err)
		}
	}
}
