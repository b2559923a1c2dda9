package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

const sampleVideoJSON = `{
  "id": "dQw4w9WgXcQ",
  "title": "Never Gonna Give You Up",
  "duration": 212.0,
  "webpage_url": "https://www.youtube.com/watch?v=dQw4w9WgXcQ",
  "thumbnail": "https://i.ytimg.com/vi/dQw4w9WgXcQ/maxresdefault.jpg",
  "channel": "Rick Astley",
  "view_count": 1500000000,
  "formats": [
    {"format_id": "140", "ext": "m4a", "acodec": "mp4a.40.2", "vcodec": "none", "abr": 129.5, "url": "https://rr1.example/140", "filesize": 3433000, "format_note": "medium", "protocol": "https"},
    {"format_id": "251", "ext": "webm", "acodec": "opus", "vcodec": "none", "abr": 135.1, "url": "https://rr1.example/251", "filesize_approx": 3600000.7},
    {"format_id": "18", "ext": "mp4", "acodec": "mp4a.40.2", "vcodec": "avc1.42001E", "height": 360, "resolution": "640x360", "url": "https://rr1.example/18"}
  ]
}`

const samplePlaylistJSON = `{
  "_type": "playlist",
  "id": "PL123",
  "entries": [
    {"id": "a1", "title": "One", "thumbnails": [{"url": "https://i/a1-small.jpg"}, {"url": "https://i/a1-big.jpg"}]},
    {"id": "", "title": "Broken"},
    {"id": "b2", "title": "Two"},
    {"id": "c3", "title": "Three"}
  ]
}`

const sampleSearchJSON = `{
  "_type": "playlist",
  "entries": [
    {"id": "v1", "title": "First", "url": "https://www.youtube.com/watch?v=v1", "duration": 3723.0, "channel": "Chan"},
    {"id": "v2", "title": "Second", "duration": 59.4, "uploader": "Up"}
  ]
}`

func okRunner(stdout string) *mockRunner {
	return &mockRunner{
		RunFunc: func(ctx context.Context, name string, args ...string) (*Result, error) {
			return &Result{Stdout: []byte(stdout)}, nil
		},
	}
}

func TestYtDlpResolver_Resolve(t *testing.T) {
	runner := okRunner(sampleVideoJSON)
	r := NewYtDlpResolver(runner, YtDlpConfig{ExtraArgs: []string{"--cookies", "c.txt"}})

	rec, err := r.Resolve(context.Background(), "https://www.youtube.com/watch?v=dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("Resolve failed: %v", err)
	}

	if rec.ID != "dQw4w9WgXcQ" || rec.Title != "Never Gonna Give You Up" {
		t.Errorf("unexpected record %+v", rec)
	}
	if rec.DurationSeconds == nil || *rec.DurationSeconds != 212 {
		t.Errorf("DurationSeconds = %v, want 212", rec.DurationSeconds)
	}
	if rec.ViewCount == nil || *rec.ViewCount != 1500000000 {
		t.Errorf("ViewCount = %v", rec.ViewCount)
	}
	if len(rec.Formats) != 3 {
		t.Fatalf("len(Formats) = %d, want 3", len(rec.Formats))
	}
	if rec.Formats[1].FileSizeBytes == nil || *rec.Formats[1].FileSizeBytes != 3600000 {
		t.Errorf("approximate filesize not used: %v", rec.Formats[1].FileSizeBytes)
	}

	best, ok := rec.BestAudio()
	if !ok || best.FormatID != "251" {
		t.Errorf("BestAudio = %v, %v; want 251", best.FormatID, ok)
	}

	args := runner.lastArgs()
	if !strings.HasPrefix(args, "yt-dlp --cookies c.txt -J --no-playlist") {
		t.Errorf("unexpected invocation %q", args)
	}
}

func TestYtDlpResolver_Resolve_Errors(t *testing.T) {
	tests := []struct {
		name    string
		result  *Result
		runErr  error
		url     string
		wantErr error
	}{
		{
			name:    "unavailable video",
			result:  &Result{ExitCode: 1, Stderr: []byte("ERROR: [youtube] abc: Video unavailable")},
			wantErr: repository.ErrNotFound,
		},
		{
			name:    "private video",
			result:  &Result{ExitCode: 1, Stderr: []byte("ERROR: [youtube] abc: Private video. Sign in")},
			wantErr: repository.ErrNotFound,
		},
		{
			name:    "network failure",
			result:  &Result{ExitCode: 1, Stderr: []byte("ERROR: Unable to download webpage: <urlopen error timed out>")},
			wantErr: repository.ErrUpstreamUnavailable,
		},
		{
			name:    "timeout",
			runErr:  ErrTimeout,
			wantErr: repository.ErrUpstreamUnavailable,
		},
		{
			name:    "garbage output",
			result:  &Result{Stdout: []byte("not json")},
			wantErr: repository.ErrMalformedUpstreamResponse,
		},
		{
			name:    "missing id",
			result:  &Result{Stdout: []byte(`{"title":"x"}`)},
			wantErr: repository.ErrMalformedUpstreamResponse,
		},
		{
			name:    "empty output",
			result:  &Result{},
			wantErr: repository.ErrMalformedUpstreamResponse,
		},
		{
			name:    "empty url",
			url:     " ",
			wantErr: repository.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &mockRunner{
				RunFunc: func(ctx context.Context, name string, args ...string) (*Result, error) {
					return tt.result, tt.runErr
				},
			}
			r := NewYtDlpResolver(runner, DefaultYtDlpConfig())

			url := tt.url
			if url == "" {
				url = "https://youtu.be/abc"
			}
			_, err := r.Resolve(context.Background(), url)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestYtDlpResolver_Playlist(t *testing.T) {
	runner := okRunner(samplePlaylistJSON)
	r := NewYtDlpResolver(runner, DefaultYtDlpConfig())

	entries, err := r.Playlist(context.Background(), "https://www.youtube.com/playlist?list=PL123", 2)
	if err != nil {
		t.Fatalf("Playlist failed: %v", err)
	}

	if len(entries) != 2 {
		t.Fatalf("len(entries) = %d, want 2", len(entries))
	}
	if entries[0].Link != "https://youtu.be/a1" {
		t.Errorf("Link = %q", entries[0].Link)
	}
	if entries[0].Thumbnail == nil || *entries[0].Thumbnail != "https://i/a1-big.jpg" {
		t.Errorf("Thumbnail = %v", entries[0].Thumbnail)
	}
	if entries[1].ID != "b2" || entries[1].Thumbnail != nil {
		t.Errorf("second entry = %+v", entries[1])
	}
	if !strings.Contains(runner.lastArgs(), "--flat-playlist --playlist-end 2") {
		t.Errorf("unexpected invocation %q", runner.lastArgs())
	}
}

func TestYtDlpResolver_Playlist_HiddenEntriesTolerated(t *testing.T) {
	runner := &mockRunner{
		RunFunc: func(ctx context.Context, name string, args ...string) (*Result, error) {
			return &Result{
				ExitCode: 1,
				Stdout:   []byte(samplePlaylistJSON),
				Stderr:   []byte("WARNING: [youtube:tab] YouTube said: INFO - 2 unavailable videos are hidden"),
			}, nil
		},
	}
	r := NewYtDlpResolver(runner, DefaultYtDlpConfig())

	entries, err := r.Playlist(context.Background(), "https://www.youtube.com/playlist?list=PL123", 100)
	if err != nil {
		t.Fatalf("Playlist failed: %v", err)
	}
	if len(entries) != 3 {
		t.Errorf("len(entries) = %d, want 3", len(entries))
	}
}

func TestYtDlpResolver_ListFormats(t *testing.T) {
	r := NewYtDlpResolver(okRunner(sampleVideoJSON), DefaultYtDlpConfig())

	formats, err := r.ListFormats(context.Background(), "https://youtu.be/dQw4w9WgXcQ")
	if err != nil {
		t.Fatalf("ListFormats failed: %v", err)
	}
	if len(formats) != 3 || formats[0].FormatID != "140" {
		t.Errorf("formats = %+v", formats)
	}
}

func TestYtDlpSearch_Search(t *testing.T) {
	runner := okRunner(sampleSearchJSON)
	s := NewYtDlpSearch(runner, DefaultYtDlpConfig())

	results, err := s.Search(context.Background(), "lofi beats", 5)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}

	if len(results) != 2 {
		t.Fatalf("len(results) = %d, want 2", len(results))
	}
	if *results[0].DurationText != "1:02:03" {
		t.Errorf("DurationText = %q, want 1:02:03", *results[0].DurationText)
	}
	if results[1].Link != "https://www.youtube.com/watch?v=v2" {
		t.Errorf("Link = %q", results[1].Link)
	}
	if results[1].Channel == nil || *results[1].Channel != "Up" {
		t.Errorf("Channel = %v, want uploader fallback", results[1].Channel)
	}
	if !strings.HasSuffix(runner.lastArgs(), "ytsearch5:lofi beats") {
		t.Errorf("unexpected invocation %q", runner.lastArgs())
	}
}

func TestYtDlpSearch_EmptyQuery(t *testing.T) {
	s := NewYtDlpSearch(&mockRunner{}, DefaultYtDlpConfig())

	if _, err := s.Search(context.Background(), "  ", 5); !errors.Is(err, repository.ErrInvalidInput) {
		t.Errorf("err = %v, want ErrInvalidInput", err)
	}
}

func TestFormatClock(t *testing.T) {
	tests := []struct {
		in   int
		want string
	}{
		{0, "0:00"},
		{59, "0:59"},
		{225, "3:45"},
		{3723, "1:02:03"},
	}
	for _, tt := range tests {
		if got := formatClock(tt.in); got != tt.want {
			t.Errorf("formatClock(%d) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
