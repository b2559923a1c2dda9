package usecase

import (
	"context"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// mockResolver provides a configurable mock for MediaResolver.
type mockResolver struct {
	resolveFn     func(ctx context.Context, url string) (*model.MediaRecord, error)
	listFormatsFn func(ctx context.Context, url string) ([]model.FormatDescriptor, error)
	playlistFn    func(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error)
	resolveCount  atomic.Int32
	lastURL       atomic.Value
}

func (m *mockResolver) Resolve(ctx context.Context, url string) (*model.MediaRecord, error) {
	m.resolveCount.Add(1)
	m.lastURL.Store(url)
	if m.resolveFn != nil {
		return m.resolveFn(ctx, url)
	}
	return nil, repository.ErrNotFound
}

func (m *mockResolver) ListFormats(ctx context.Context, url string) ([]model.FormatDescriptor, error) {
	m.lastURL.Store(url)
	if m.listFormatsFn != nil {
		return m.listFormatsFn(ctx, url)
	}
	return nil, nil
}

func (m *mockResolver) Playlist(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error) {
	m.lastURL.Store(url)
	if m.playlistFn != nil {
		return m.playlistFn(ctx, url, limit)
	}
	return nil, nil
}

// mockSearch provides a configurable mock for SearchProvider.
type mockSearch struct {
	searchFn    func(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error)
	searchCount atomic.Int32
}

func (m *mockSearch) Search(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error) {
	m.searchCount.Add(1)
	if m.searchFn != nil {
		return m.searchFn(ctx, query, limit)
	}
	return nil, nil
}

// mockHandles is an in-memory HandleIssuer.
type mockHandles struct {
	mu      sync.Mutex
	targets map[string]string
	next    int
	issueFn func(ctx context.Context, targetURL string, ttl time.Duration) (string, error)
	lastTTL time.Duration
}

func newMockHandles() *mockHandles {
	return &mockHandles{targets: make(map[string]string)}
}

func (m *mockHandles) Issue(ctx context.Context, targetURL string, ttl time.Duration) (string, error) {
	if m.issueFn != nil {
		return m.issueFn(ctx, targetURL, ttl)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	id := fmt.Sprintf("%032x", m.next)
	m.targets[id] = targetURL
	m.lastTTL = ttl
	return id, nil
}

func (m *mockHandles) Lookup(ctx context.Context, handleID string) (*model.StreamHandle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	target, ok := m.targets[handleID]
	if !ok {
		return nil, repository.ErrHandleNotFound
	}
	return &model.StreamHandle{ID: handleID, TargetURL: target}, nil
}

func (m *mockHandles) target(handleID string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.targets[handleID]
}

// mockObjectStorage provides a configurable mock for ObjectStorage.
type mockObjectStorage struct {
	generatePresignedDownloadURLFn func(ctx context.Context, key string, expiry time.Duration) (string, error)
	uploadFn                       func(ctx context.Context, key string, reader io.Reader, contentType string) error
	uploadFileFn                   func(ctx context.Context, key, filePath, contentType string) error
	deleteFn                       func(ctx context.Context, key string) error
	existsFn                       func(ctx context.Context, key string) (bool, error)
}

func (m *mockObjectStorage) GeneratePresignedDownloadURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	if m.generatePresignedDownloadURLFn != nil {
		return m.generatePresignedDownloadURLFn(ctx, key, expiry)
	}
	return "http://minio.local/" + key + "?X-Amz-Signature=abc", nil
}

func (m *mockObjectStorage) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if m.uploadFn != nil {
		return m.uploadFn(ctx, key, reader, contentType)
	}
	return nil
}

func (m *mockObjectStorage) UploadFile(ctx context.Context, key, filePath, contentType string) error {
	if m.uploadFileFn != nil {
		return m.uploadFileFn(ctx, key, filePath, contentType)
	}
	return nil
}

func (m *mockObjectStorage) Delete(ctx context.Context, key string) error {
	if m.deleteFn != nil {
		return m.deleteFn(ctx, key)
	}
	return nil
}

func (m *mockObjectStorage) Exists(ctx context.Context, key string) (bool, error) {
	if m.existsFn != nil {
		return m.existsFn(ctx, key)
	}
	return false, nil
}

// mockMessageQueue provides a configurable mock for MessageQueue.
type mockMessageQueue struct {
	publishDownloadTaskFn  func(ctx context.Context, task repository.DownloadTask) error
	consumeDownloadTasksFn func(ctx context.Context, handler func(task repository.DownloadTask) error) error
}

func (m *mockMessageQueue) PublishDownloadTask(ctx context.Context, task repository.DownloadTask) error {
	if m.publishDownloadTaskFn != nil {
		return m.publishDownloadTaskFn(ctx, task)
	}
	return nil
}

func (m *mockMessageQueue) ConsumeDownloadTasks(ctx context.Context, handler func(task repository.DownloadTask) error) error {
	if m.consumeDownloadTasksFn != nil {
		return m.consumeDownloadTasksFn(ctx, handler)
	}
	return nil
}

func (m *mockMessageQueue) Close() error {
	return nil
}

// mockMaterializer provides a configurable mock for Materializer.
type mockMaterializer struct {
	materializeFn func(ctx context.Context, req repository.DownloadRequest) (*repository.DownloadResult, error)
	lastReq       repository.DownloadRequest
}

func (m *mockMaterializer) Materialize(ctx context.Context, req repository.DownloadRequest) (*repository.DownloadResult, error) {
	m.lastReq = req
	if m.materializeFn != nil {
		return m.materializeFn(ctx, req)
	}
	return &repository.DownloadResult{Path: "/tmp/" + req.Title + ".mp3", ContentType: "audio/mpeg"}, nil
}

func strPtr(s string) *string { return &s }

func intPtr(i int) *int { return &i }

// testRecord returns a record with one audio-only and one progressive format.
func testRecord() *model.MediaRecord {
	return &model.MediaRecord{
		ID:              "dQw4w9WgXcQ",
		Title:           "Never Gonna Give You Up",
		DurationSeconds: intPtr(213),
		CanonicalLink:   "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
		ThumbnailURL:    strPtr("https://i.ytimg.com/vi/dQw4w9WgXcQ/hqdefault.jpg"),
		Channel:         strPtr("Rick Astley"),
		Formats: []model.FormatDescriptor{
			{FormatID: "140", Ext: "m4a", AudioCodec: "mp4a.40.2", VideoCodec: "none", DirectURL: "https://rr1.googlevideo.com/140", AudioBitrate: 129},
			{FormatID: "251", Ext: "webm", AudioCodec: "opus", VideoCodec: "none", DirectURL: "https://rr1.googlevideo.com/251", AudioBitrate: 160},
			{FormatID: "18", Ext: "mp4", AudioCodec: "mp4a.40.2", VideoCodec: "avc1", DirectURL: "https://rr1.googlevideo.com/18", Height: 360},
			{FormatID: "137", Ext: "mp4", AudioCodec: "none", VideoCodec: "avc1", DirectURL: "https://rr1.googlevideo.com/137", Height: 1080, Protocol: "http_dash_segments"},
		},
	}
}
