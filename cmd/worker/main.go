package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/privatefit/vodcache/internal/cachestore"
	"github.com/privatefit/vodcache/internal/config"
	"github.com/privatefit/vodcache/internal/domain/repository"
	"github.com/privatefit/vodcache/internal/infrastructure/postgres"
	"github.com/privatefit/vodcache/internal/infrastructure/queue"
	"github.com/privatefit/vodcache/internal/infrastructure/storage"
	"github.com/privatefit/vodcache/internal/transcoder"
	"github.com/privatefit/vodcache/internal/usecase"
	"github.com/privatefit/vodcache/internal/worker"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

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

	store, err := cachestore.New(cachestore.Config{
		Dir:          cfg.Cache.ResolvedDir(),
		SizeLimit:    cfg.Cache.SizeLimitBytes,
		TTL:          cfg.Cache.TTL,
		TargetFactor: 0.8,
	}, archiver)
	if err != nil {
		return fmt.Errorf("failed to initialize cache store: %w", err)
	}

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

	w := worker.New(jobRepo, queueClient, runner, worker.Config{
		PollInterval:    cfg.Worker.PollInterval,
		ShutdownTimeout: cfg.Worker.ShutdownTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("worker started")
		if err := w.Run(ctx); err != nil {
			errCh <- fmt.Errorf("worker error: %w", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	cancel()
	w.Wait()

	logger.Info("worker stopped")
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
