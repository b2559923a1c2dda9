package repository

import (
	"context"
	"io"
	"time"
)

// ObjectStorage stores materialized downloads.
// Implementations should be provided by the infrastructure layer (e.g., MinIO, S3).
type ObjectStorage interface {
	// GeneratePresignedDownloadURL creates a presigned URL for downloading an object.
	// The URL is valid for the specified duration.
	GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error)

	// Upload stores an object in the storage.
	Upload(ctx context.Context, key string, reader io.Reader, contentType string) error

	// UploadFile stores the local file at filePath under key.
	UploadFile(ctx context.Context, key, filePath, contentType string) error

	// Delete removes an object from the storage.
	Delete(ctx context.Context, key string) error

	// Exists checks if an object exists in the storage.
	Exists(ctx context.Context, key string) (bool, error)
}
