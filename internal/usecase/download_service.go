package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/extractor"
	"github.com/hszk-dev/mediagate/internal/infrastructure/metrics"
)

// Download modes for materialized files.
const (
	DownloadModeLocal = "local"
	DownloadModeQueue = "queue"
)

// Default yt-dlp selectors when the client names no format.
const (
	defaultAudioFormat = "bestaudio"
	defaultVideoFormat = "bestvideo"
)

// DownloadInput mirrors the download form.
type DownloadInput struct {
	Link     string
	VideoID  bool
	FormatID string
	Title    string
	// Video selects a video stream in direct mode.
	Video bool
	// SongAudio and SongVideo request a materialized mp3 or mp4.
	SongAudio bool
	SongVideo bool
}

// Materialize reports whether the request asks for a server-side file.
func (in DownloadInput) Materialize() bool {
	return in.SongAudio || in.SongVideo
}

// DownloadOutput is the result of a download request. Exactly one of the
// direct, materialized or queued shapes is populated.
type DownloadOutput struct {
	Title        string
	DownloadURL  string
	DownloadPath string
	JobID        uuid.UUID
	Queued       bool
}

// DownloadService resolves direct download URLs and materializes files.
type DownloadService interface {
	Download(ctx context.Context, input DownloadInput) (*DownloadOutput, error)
}

// DownloadServiceConfig holds configuration for DownloadService.
type DownloadServiceConfig struct {
	// Mode is DownloadModeLocal or DownloadModeQueue.
	Mode string
	// PublicBaseURL prefixes handle URLs returned in direct mode.
	PublicBaseURL string
	HandleTTL     time.Duration
	// PresignExpiry is the validity of presigned object URLs.
	PresignExpiry time.Duration
	// ObjectPrefix namespaces uploaded files in the bucket.
	ObjectPrefix string
}

// DefaultDownloadServiceConfig returns the default configuration.
func DefaultDownloadServiceConfig() DownloadServiceConfig {
	return DownloadServiceConfig{
		Mode:          DownloadModeLocal,
		PublicBaseURL: "http://localhost:8080",
		HandleTTL:     30 * time.Minute,
		PresignExpiry: time.Hour,
		ObjectPrefix:  "downloads",
	}
}

type downloadService struct {
	resolver     repository.MediaResolver
	handles      HandleIssuer
	materializer repository.Materializer
	storage      repository.ObjectStorage
	queue        repository.MessageQueue

	cfg DownloadServiceConfig
}

// NewDownloadService creates a new DownloadService instance.
// storage may be nil in local mode, in which case files stay on disk.
// queue is required in queue mode.
func NewDownloadService(
	resolver repository.MediaResolver,
	handles HandleIssuer,
	materializer repository.Materializer,
	storage repository.ObjectStorage,
	queue repository.MessageQueue,
	cfg DownloadServiceConfig,
) DownloadService {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &downloadService{
		resolver:     resolver,
		handles:      handles,
		materializer: materializer,
		storage:      storage,
		queue:        queue,
		cfg:          cfg,
	}
}

func (s *downloadService) Download(ctx context.Context, input DownloadInput) (*DownloadOutput, error) {
	link, err := canonicalize(input.Link, input.VideoID)
	if err != nil {
		return nil, err
	}

	rec, err := s.resolver.Resolve(ctx, link)
	if err != nil {
		return nil, err
	}

	if input.FormatID != "" {
		if _, ok := rec.FindFormat(input.FormatID); !ok {
			return nil, fmt.Errorf("%w: %s", repository.ErrFormatNotFound, input.FormatID)
		}
	}

	title := strings.TrimSpace(input.Title)
	if title == "" {
		title = rec.Title
	}

	if input.Materialize() {
		req := repository.DownloadRequest{
			Link:     link,
			FormatID: input.FormatID,
			Title:    title,
			Video:    input.SongVideo,
		}
		if req.FormatID == "" {
			req.FormatID = defaultAudioFormat
			if req.Video {
				req.FormatID = defaultVideoFormat
			}
		}
		if s.cfg.Mode == DownloadModeQueue {
			return s.enqueue(ctx, req)
		}
		return s.materializeLocal(ctx, req)
	}

	return s.direct(ctx, rec, input, title)
}

// direct hands out a stream handle for the chosen format instead of the
// upstream URL itself.
func (s *downloadService) direct(ctx context.Context, rec *model.MediaRecord, input DownloadInput, title string) (*DownloadOutput, error) {
	var target string
	if input.FormatID != "" {
		f, _ := rec.FindFormat(input.FormatID)
		target = f.DirectURL
	} else {
		kind := model.StreamKindAudio
		if input.Video {
			kind = model.StreamKindVideo
		}
		target, _ = rec.StreamURLFor(kind)
	}
	if target == "" {
		return nil, fmt.Errorf("%w: %s", repository.ErrNoPlayableFormat, rec.ID)
	}

	handleID, err := s.handles.Issue(ctx, target, s.cfg.HandleTTL)
	if err != nil {
		return nil, fmt.Errorf("issue stream handle: %w", err)
	}

	return &DownloadOutput{
		Title:       title,
		DownloadURL: s.cfg.PublicBaseURL + StreamPathPrefix + handleID,
	}, nil
}

func (s *downloadService) materializeLocal(ctx context.Context, req repository.DownloadRequest) (*DownloadOutput, error) {
	result, err := s.materializer.Materialize(ctx, req)
	if err != nil {
		metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeLocal, metrics.DownloadError).Inc()
		return nil, err
	}
	metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeLocal, metrics.DownloadSuccess).Inc()

	out := &DownloadOutput{Title: req.Title, DownloadPath: result.Path}
	if s.storage == nil {
		return out, nil
	}

	key := objectKey(s.cfg.ObjectPrefix, uuid.New(), filepath.Base(result.Path))
	if err := s.storage.UploadFile(ctx, key, result.Path, result.ContentType); err != nil {
		return nil, fmt.Errorf("upload materialized file: %w", err)
	}
	downloadURL, err := s.storage.GeneratePresignedDownloadURL(ctx, key, s.cfg.PresignExpiry)
	if err != nil {
		return nil, fmt.Errorf("presign materialized file: %w", err)
	}
	out.DownloadURL = downloadURL
	return out, nil
}

func (s *downloadService) enqueue(ctx context.Context, req repository.DownloadRequest) (*DownloadOutput, error) {
	if s.queue == nil {
		return nil, fmt.Errorf("download queue is not configured")
	}

	jobID := uuid.New()
	ext := ".mp3"
	if req.Video {
		ext = ".mp4"
	}
	task := repository.DownloadTask{
		JobID:     jobID,
		Link:      req.Link,
		FormatID:  req.FormatID,
		Title:     req.Title,
		Video:     req.Video,
		ObjectKey: objectKey(s.cfg.ObjectPrefix, jobID, safeName(req.Title)+ext),
	}

	if err := s.queue.PublishDownloadTask(ctx, task); err != nil {
		metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeQueue, metrics.DownloadError).Inc()
		return nil, fmt.Errorf("enqueue download: %w", err)
	}
	metrics.DownloadTasksTotal.WithLabelValues(metrics.DownloadModeQueue, metrics.DownloadSuccess).Inc()

	slog.Info("download task queued", "job_id", jobID, "object_key", task.ObjectKey)

	return &DownloadOutput{
		Title:        req.Title,
		DownloadPath: task.ObjectKey,
		JobID:        jobID,
		Queued:       true,
	}, nil
}

// objectKey builds "<prefix>/<job id>/<file name>".
func objectKey(prefix string, jobID uuid.UUID, name string) string {
	return path.Join(prefix, jobID.String(), name)
}

func safeName(title string) string {
	if name := extractor.SanitizeFileName(title); name != "" {
		return name
	}
	return "download"
}
