package extractor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// YtDlpDownloader materializes media files with yt-dlp.
type YtDlpDownloader struct {
	runner Runner
	config YtDlpConfig
	dir    string
}

var _ repository.Materializer = (*YtDlpDownloader)(nil)

// NewYtDlpDownloader creates a downloader writing into dir.
func NewYtDlpDownloader(runner Runner, cfg YtDlpConfig, dir string) *YtDlpDownloader {
	if cfg.Path == "" {
		cfg.Path = DefaultYtDlpConfig().Path
	}
	return &YtDlpDownloader{runner: runner, config: cfg, dir: dir}
}

// Materialize downloads req into the download directory. Audio requests
// are extracted to 192K mp3; video requests merge the format with audio
// stream 140 into mp4. An existing file with the same name is reused.
func (d *YtDlpDownloader) Materialize(ctx context.Context, req repository.DownloadRequest) (*repository.DownloadResult, error) {
	if strings.TrimSpace(req.Link) == "" || req.FormatID == "" {
		return nil, fmt.Errorf("%w: link and format id are required", repository.ErrInvalidInput)
	}

	name := SanitizeFileName(req.Title)
	if name == "" {
		return nil, fmt.Errorf("%w: title is required", repository.ErrInvalidInput)
	}

	ext, contentType := "mp3", "audio/mpeg"
	if req.Video {
		ext, contentType = "mp4", "video/mp4"
	}
	path := filepath.Join(d.dir, name+"."+ext)

	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return &repository.DownloadResult{Path: path, ContentType: contentType}, nil
	}

	if err := os.MkdirAll(d.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download dir: %w", err)
	}

	if _, err := run(ctx, d.runner, d.config, false, d.buildArgs(req, name)...); err != nil {
		// yt-dlp prints nothing on stdout for downloads
		if !errors.Is(err, repository.ErrMalformedUpstreamResponse) {
			return nil, err
		}
	}

	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: yt-dlp did not produce %s", repository.ErrUpstreamUnavailable, filepath.Base(path))
	}

	return &repository.DownloadResult{Path: path, ContentType: contentType}, nil
}

func (d *YtDlpDownloader) buildArgs(req repository.DownloadRequest, name string) []string {
	output := filepath.Join(d.dir, name+".%(ext)s")
	args := []string{"--no-playlist", "--no-warnings", "--quiet", "-o", output}

	if req.Video {
		args = append(args,
			"-f", req.FormatID+"+140",
			"--merge-output-format", "mp4",
		)
	} else {
		args = append(args,
			"-f", req.FormatID,
			"-x",
			"--audio-format", "mp3",
			"--audio-quality", "192K",
		)
	}

	return append(args, req.Link)
}

// SanitizeFileName turns a media title into a safe file name.
func SanitizeFileName(title string) string {
	var b strings.Builder
	for _, r := range strings.TrimSpace(title) {
		switch {
		case r == '/' || r == '\\' || r == ':' || r == '*' || r == '?' || r == '"' || r == '<' || r == '>' || r == '|':
			b.WriteRune('_')
		case unicode.IsControl(r):
		default:
			b.WriteRune(r)
		}
	}
	name := strings.Trim(b.String(), ". ")
	if len(name) > 200 {
		name = strings.ToValidUTF8(name[:200], "")
	}
	return name
}
