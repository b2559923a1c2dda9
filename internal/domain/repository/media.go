package repository

import (
	"context"

	"github.com/hszk-dev/mediagate/internal/domain/model"
)

// MediaResolver turns a media link into structured metadata.
// Implementations wrap an external extractor (yt-dlp, in-process client).
type MediaResolver interface {
	// Resolve returns the record for url including its format list.
	// Returns ErrNotFound when the upstream reports the item missing,
	// ErrUpstreamUnavailable on transport failure and
	// ErrMalformedUpstreamResponse when the answer cannot be parsed.
	Resolve(ctx context.Context, url string) (*model.MediaRecord, error)

	// ListFormats returns every format the upstream offers for url.
	ListFormats(ctx context.Context, url string) ([]model.FormatDescriptor, error)

	// Playlist lists at most limit entries of a playlist.
	Playlist(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error)
}

// SearchProvider runs free-text searches against the upstream catalog.
type SearchProvider interface {
	// Search returns up to limit candidates in upstream order.
	Search(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error)
}

// DownloadRequest describes a file to materialize locally.
type DownloadRequest struct {
	Link     string
	FormatID string
	Title    string
	// Video selects a merged mp4; otherwise audio is extracted to mp3.
	Video bool
}

// DownloadResult is the outcome of a materialization.
type DownloadResult struct {
	Path        string
	ContentType string
}

// Materializer downloads media to the local filesystem.
type Materializer interface {
	Materialize(ctx context.Context, req DownloadRequest) (*DownloadResult, error)
}
