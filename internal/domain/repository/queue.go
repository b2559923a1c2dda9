package repository

import (
	"context"

	"github.com/google/uuid"
)

// DownloadTask represents a download materialization job message.
type DownloadTask struct {
	JobID      uuid.UUID `json:"job_id"`
	Link       string    `json:"link"`
	FormatID   string    `json:"format_id"`
	Title      string    `json:"title"`
	Video      bool      `json:"video"`
	ObjectKey  string    `json:"object_key"`
	RetryCount int       `json:"retry_count"`
}

// MessageQueue defines the interface for message queue operations.
// Implementations should be provided by the infrastructure layer (e.g., RabbitMQ).
type MessageQueue interface {
	// PublishDownloadTask sends a download task to the queue.
	PublishDownloadTask(ctx context.Context, task DownloadTask) error

	// ConsumeDownloadTasks blocks consuming download tasks until ctx is done.
	// The handler function is called for each received task.
	// Used by the worker service.
	ConsumeDownloadTasks(ctx context.Context, handler func(task DownloadTask) error) error

	// Close gracefully closes the connection to the message queue.
	Close() error
}
