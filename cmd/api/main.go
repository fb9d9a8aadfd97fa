package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/privatefit/vodcache/internal/api/handler"
	"github.com/privatefit/vodcache/internal/api/middleware"
	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/codec"
	"github.com/privatefit/vodcache/internal/config"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/cache"
	"github.com/privatefit/vodcache/internal/infrastructure/postgres"
	"github.com/privatefit/vodcache/internal/infrastructure/queue"
	"github.com/privatefit/vodcache/internal/infrastructure/storage"
	"github.com/privatefit/vodcache/internal/pathresolver"
	"github.com/privatefit/vodcache/internal/transcoder"
	"github.com/privatefit/vodcache/internal/usecase"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	pgClient, err := postgres.NewClient(ctx, postgres.DefaultClientConfig(cfg.Database.DSN()))
	if err != nil {
		return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
	}
	defer pgClient.Close()
	logger.Info("connected to PostgreSQL")

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer redisClient.Close()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}
	logger.Info("connected to Redis")

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	archiver, err := newArchiver(ctx, cfg.MinIO, logger)
	if err != nil {
		return err
	}

	resolver, err := pathresolver.New(cfg.Media.Root)
	if err != nil {
		return fmt.Errorf("failed to initialize media path resolver: %w", err)
	}

	store, err := cachestore.New(cachestore.Config{
		Dir:          cfg.Cache.ResolvedDir(),
		SizeLimit:    cfg.Cache.SizeLimitBytes,
		TTL:          cfg.Cache.TTL,
		TargetFactor: 0.8,
	}, archiver)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

	prober := codec.NewProber(codec.Config{
		FFprobePath: cfg.Media.FFprobePath,
		Timeout:     cfg.Media.ProbeTimeout,
	})
	probeCache := cache.NewRedisProbeCache(redisClient)
	jobRepo := postgres.NewJobRepository(pgClient.Pool())
	tc := transcoder.NewFFmpegTranscoder(transcoder.FFmpegConfig{
		FFmpegPath:   cfg.Media.FFmpegPath,
		VideoCodec:   "libx264",
		VideoPreset:  "fast",
		CRF:          23,
		AudioCodec:   "aac",
		AudioBitrate: "192k",
		Timeout:      cfg.Cache.TranscodeTimeout,
	})
	runner := usecase.NewTranscodeRunner(jobRepo, tc, store)

	streamSvc := usecase.NewStreamService(store, prober, probeCache, jobRepo, queueClient, usecase.DefaultStreamServiceConfig())
	controlSvc := usecase.NewControlService(store, prober, jobRepo, runner)

	streamHandler := handler.NewStreamHandler(resolver, streamSvc)
	controlHandler := handler.NewControlHandler(resolver, controlSvc)
	healthHandler := handler.NewHealthHandler(pgClient, redisPinger{redisClient}, queueClient)

	r := setupRouter(logger, streamHandler, controlHandler, healthHandler)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down server", slog.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	logger.Info("server stopped")
	return nil
}

// newArchiver connects the optional cold-storage archiver. A blank
// ArchiveBucket disables it entirely rather than attempting to reach MinIO
// for a deployment that never configured it. Returns a nil interface (not a
// typed nil *storage.Client) when disabled, so cachestore's nil check works.
func newArchiver(ctx context.Context, cfg config.MinIOConfig, logger *slog.Logger) (repository.Archiver, error) {
	if !cfg.ArchiveEnabled() {
		logger.Info("cold storage archiving disabled, ARCHIVE_BUCKET not set")
		return nil, nil
	}

	archiver, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:  cfg.Endpoint,
		AccessKey: cfg.AccessKey,
		SecretKey: cfg.SecretKey,
		Bucket:    cfg.ArchiveBucket,
		UseSSL:    cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO", slog.String("bucket", cfg.ArchiveBucket))
	return archiver, nil
}

// redisPinger adapts *redis.Client's Ping (which returns a *redis.StatusCmd)
// to the plain Ping(ctx) error shape handler.Pinger expects.
type redisPinger struct {
	client *redis.Client
}

func (p redisPinger) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}

func setupRouter(logger *slog.Logger, streamHandler *handler.StreamHandler, controlHandler *handler.ControlHandler, healthHandler *handler.HealthHandler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Recoverer(logger))

	r.Get("/healthz", healthHandler.Health)
	r.Handle("/metrics", promhttp.Handler())

	r.Get("/stream/*", streamHandler.Stream)
	r.Get("/transcode-status/*", controlHandler.Status)
	r.Post("/transcode", controlHandler.Trigger)
	r.Get("/cache/stats", controlHandler.Stats)

	return r
}
