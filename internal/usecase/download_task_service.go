package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

const (
	// DefaultMaxRetries is the default number of attempts before a task is dropped.
	DefaultMaxRetries = 3
)

// DownloadTaskServiceConfig holds configuration for DownloadTaskService.
type DownloadTaskServiceConfig struct {
	// MaxRetries is the number of failed attempts after which a task is dropped.
	MaxRetries int
}

// DefaultDownloadTaskServiceConfig returns the default configuration.
func DefaultDownloadTaskServiceConfig() DownloadTaskServiceConfig {
	return DownloadTaskServiceConfig{
		MaxRetries: DefaultMaxRetries,
	}
}

// DownloadTaskService processes queued download tasks on the worker.
type DownloadTaskService interface {
	// ProcessTask materializes the task and uploads it to its object key.
	// Returns nil on success or when the task is dropped after MaxRetries.
	// Returns an error for failures that should be retried.
	ProcessTask(ctx context.Context, task repository.DownloadTask) error
}

type downloadTaskService struct {
	materializer repository.Materializer
	storage      repository.ObjectStorage

	maxRetries int
}

// NewDownloadTaskService creates a new DownloadTaskService instance.
func NewDownloadTaskService(
	materializer repository.Materializer,
	storage repository.ObjectStorage,
	cfg DownloadTaskServiceConfig,
) DownloadTaskService {
	return &downloadTaskService{
		materializer: materializer,
		storage:      storage,
		maxRetries:   cfg.MaxRetries,
	}
}

func (s *downloadTaskService) ProcessTask(ctx context.Context, task repository.DownloadTask) error {
	if task.RetryCount >= s.maxRetries {
		slog.Error("dropping download task after max retries",
			"job_id", task.JobID,
			"retry_count", task.RetryCount,
		)
		metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeWorker, metrics.DownloadError).Inc()
		return nil
	}

	exists, err := s.storage.Exists(ctx, task.ObjectKey)
	if err != nil {
		return fmt.Errorf("check object: %w", err)
	}
	if exists {
		slog.Info("download already materialized", "job_id", task.JobID, "object_key", task.ObjectKey)
		return nil
	}

	result, err := s.materializer.Materialize(ctx, repository.DownloadRequest{
		Link:     task.Link,
		FormatID: task.FormatID,
		Title:    task.Title,
		Video:    task.Video,
	})
	if err != nil {
		if errors.Is(err, repository.ErrInvalidInput) || errors.Is(err, repository.ErrNotFound) {
			// Retrying cannot fix these.
			slog.Error("dropping unprocessable download task", "job_id", task.JobID, "error", err)
			metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeWorker, metrics.DownloadError).Inc()
			return nil
		}
		metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeWorker, metrics.DownloadRetried).Inc()
		return fmt.Errorf("materialize: %w", err)
	}
	defer s.cleanup(result.Path)

	if err := s.storage.UploadFile(ctx, task.ObjectKey, result.Path, result.ContentType); err != nil {
		metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeWorker, metrics.DownloadRetried).Inc()
		return fmt.Errorf("upload: %w", err)
	}

	metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeWorker, metrics.DownloadSuccess).Inc()
	return nil
}

// cleanup removes the local file once it is in object storage or the
// attempt failed.
func (s *downloadTaskService) cleanup(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to remove materialized file", "path", path, "error", err)
	}
}
