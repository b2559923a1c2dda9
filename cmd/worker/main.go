package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hszk-dev/mediagate/internal/config"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/extractor"
	"github.com/hszk-dev/mediagate/internal/infrastructure/queue"
	"github.com/hszk-dev/mediagate/internal/infrastructure/storage"
	"github.com/hszk-dev/mediagate/internal/infrastructure/tracing"
	"github.com/hszk-dev/mediagate/internal/usecase"
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

	// In-flight tasks keep running after consumption stops, until the
	// shutdown timeout elapses.
	taskCtx, taskCancel := context.WithCancel(context.Background())
	defer taskCancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	tp, err := tracing.Init(ctx, tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		Endpoint:    cfg.Tracing.Endpoint,
		ServiceName: cfg.Tracing.ServiceName + "-worker",
		Insecure:    cfg.Tracing.Insecure,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return fmt.Errorf("failed to init tracing: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracer shutdown failed", slog.String("error", err.Error()))
		}
	}()

	if err := os.MkdirAll(cfg.Download.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create download directory: %w", err)
	}

	storageClient, err := storage.NewClient(ctx, storage.ClientConfig{
		Endpoint:       cfg.MinIO.Endpoint,
		PublicEndpoint: cfg.MinIO.PublicEndpoint,
		AccessKey:      cfg.MinIO.AccessKey,
		SecretKey:      cfg.MinIO.SecretKey,
		Bucket:         cfg.MinIO.Bucket,
		UseSSL:         cfg.MinIO.UseSSL,
	})
	if err != nil {
		return fmt.Errorf("failed to connect to MinIO: %w", err)
	}
	logger.Info("connected to MinIO", slog.String("bucket", storageClient.Bucket()))

	queueClient, err := queue.NewClient(ctx, queue.DefaultClientConfig(cfg.RabbitMQ.URL()))
	if err != nil {
		return fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	defer queueClient.Close()
	logger.Info("connected to RabbitMQ")

	// The queue prefetch bounds concurrency, so the downloader runs unpooled.
	downloader := extractor.NewYtDlpDownloader(
		extractor.NewCommandRunner(cfg.Download.Timeout),
		extractor.YtDlpConfig{Path: cfg.Extractor.YtDlpPath, ExtraArgs: cfg.Extractor.YtDlpArgs},
		cfg.Download.Dir,
	)
	taskSvc := usecase.NewDownloadTaskService(downloader, storageClient, usecase.DownloadTaskServiceConfig{
		MaxRetries: cfg.Worker.MaxRetries,
	})

	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Worker.MetricsPort),
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	// Tasks run synchronously inside the consumer, so waiting for the
	// consumer to return waits for the in-flight task.
	var wg sync.WaitGroup
	wg.Add(1)

	errCh := make(chan error, 1)
	go func() {
		defer wg.Done()

		logger.Info("starting worker, consuming download tasks",
			slog.Int("metrics_port", cfg.Worker.MetricsPort),
		)
		err := queueClient.ConsumeDownloadTasks(ctx, func(task repository.DownloadTask) error {
			log := logger.With(
				slog.String("job_id", task.JobID.String()),
				slog.Int("retry_count", task.RetryCount),
			)
			log.Info("processing task", slog.String("object_key", task.ObjectKey))

			if err := taskSvc.ProcessTask(taskCtx, task); err != nil {
				log.Error("task processing failed", slog.String("error", err.Error()))
				return err
			}

			log.Info("task completed")
			return nil
		})
		if err != nil && ctx.Err() == nil {
			errCh <- fmt.Errorf("consumer error: %w", err)
		}
	}()

	select {
	case err := <-errCh:
		return err
	case sig := <-quit:
		logger.Info("shutting down worker", slog.String("signal", sig.String()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Worker.ShutdownTimeout)
	defer shutdownCancel()

	// Stop consuming new messages.
	cancel()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info("all in-flight tasks completed")
	case <-shutdownCtx.Done():
		logger.Warn("shutdown timeout exceeded, cancelling in-flight task")
		taskCancel()
		// Give the cancelled task time to be republished before the
		// queue connection closes.
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			logger.Warn("in-flight task did not stop, it may be redelivered by the broker")
		}
	}

	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	logger.Info("worker stopped")
	return nil
}
