package extractor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
)

// YtDlpConfig holds configuration for yt-dlp invocations.
type YtDlpConfig struct {
	// Path is the yt-dlp binary. If empty, "yt-dlp" is looked up in PATH.
	Path string

	// ExtraArgs are prepended to every invocation (cookies, proxies).
	ExtraArgs []string
}

// DefaultYtDlpConfig returns a YtDlpConfig with defaults.
func DefaultYtDlpConfig() YtDlpConfig {
	return YtDlpConfig{Path: "yt-dlp"}
}

// notFoundMarkers are stderr fragments yt-dlp prints for media that does
// not exist or cannot be played.
var notFoundMarkers = []string{
	"video unavailable",
	"private video",
	"unsupported url",
	"is not a valid url",
	"does not exist",
	"has been removed",
	"http error 404",
	"this video is not available",
	"members-only content",
}

// hiddenEntriesMarker is the warning yt-dlp emits when a playlist skips
// entries it cannot list. The remaining entries are still valid.
const hiddenEntriesMarker = "unavailable videos are hidden"

// YtDlpResolver implements MediaResolver by running yt-dlp.
type YtDlpResolver struct {
	runner Runner
	config YtDlpConfig
}

var _ repository.MediaResolver = (*YtDlpResolver)(nil)

// NewYtDlpResolver creates a resolver that runs yt-dlp through runner.
func NewYtDlpResolver(runner Runner, cfg YtDlpConfig) *YtDlpResolver {
	if cfg.Path == "" {
		cfg.Path = DefaultYtDlpConfig().Path
	}
	return &YtDlpResolver{runner: runner, config: cfg}
}

// Resolve dumps the single-item JSON for url.
func (r *YtDlpResolver) Resolve(ctx context.Context, url string) (*model.MediaRecord, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", repository.ErrInvalidInput)
	}

	out, err := run(ctx, r.runner, r.config, false, "-J", "--no-playlist", "--no-warnings", url)
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: decode yt-dlp output: %v", repository.ErrMalformedUpstreamResponse, err)
	}

	return info.toRecord(url)
}

// ListFormats returns the formats of url.
func (r *YtDlpResolver) ListFormats(ctx context.Context, url string) ([]model.FormatDescriptor, error) {
	rec, err := r.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return rec.Formats, nil
}

// Playlist lists up to limit flat entries of a playlist.
func (r *YtDlpResolver) Playlist(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", repository.ErrInvalidInput)
	}
	if limit <= 0 {
		return []model.PlaylistEntry{}, nil
	}

	out, err := run(ctx, r.runner, r.config, true,
		"-J", "--flat-playlist", "--playlist-end", strconv.Itoa(limit), url)
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: decode yt-dlp playlist: %v", repository.ErrMalformedUpstreamResponse, err)
	}

	entries := make([]model.PlaylistEntry, 0, min(len(info.Entries), limit))
	for _, e := range info.Entries {
		if len(entries) == limit {
			break
		}
		if e.ID == "" {
			continue
		}
		entries = append(entries, model.NewPlaylistEntry(e.ID, e.Title, e.thumbnail()))
	}
	return entries, nil
}

// YtDlpSearch implements SearchProvider with yt-dlp's ytsearch extractor.
type YtDlpSearch struct {
	runner Runner
	config YtDlpConfig
}

var _ repository.SearchProvider = (*YtDlpSearch)(nil)

// NewYtDlpSearch creates a yt-dlp backed search provider.
func NewYtDlpSearch(runner Runner, cfg YtDlpConfig) *YtDlpSearch {
	if cfg.Path == "" {
		cfg.Path = DefaultYtDlpConfig().Path
	}
	return &YtDlpSearch{runner: runner, config: cfg}
}

// Search runs "ytsearchN:query" in flat mode.
func (s *YtDlpSearch) Search(ctx context.Context, query string, limit int) ([]model.CandidateRecord, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("%w: empty query", repository.ErrInvalidInput)
	}
	if limit <= 0 {
		return []model.CandidateRecord{}, nil
	}

	out, err := run(ctx, s.runner, s.config, false,
		"-J", "--flat-playlist", "--no-warnings", fmt.Sprintf("ytsearch%d:%s", limit, query))
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: decode yt-dlp search: %v", repository.ErrMalformedUpstreamResponse, err)
	}

	results := make([]model.CandidateRecord, 0, len(info.Entries))
	for _, e := range info.Entries {
		if e.ID == "" {
			continue
		}
		results = append(results, e.toCandidate())
		if len(results) == limit {
			break
		}
	}
	return results, nil
}

// run executes yt-dlp and maps failures onto repository errors.
// With tolerateHidden set, a nonzero exit whose only complaint is hidden
// playlist entries still returns stdout.
func run(ctx context.Context, runner Runner, cfg YtDlpConfig, tolerateHidden bool, args ...string) ([]byte, error) {
	argv := append(append([]string{}, cfg.ExtraArgs...), args...)

	res, err := runner.Run(ctx, cfg.Path, argv...)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", repository.ErrUpstreamUnavailable, err)
	}

	if !res.Success() {
		stderr := strings.ToLower(string(res.Stderr))
		if tolerateHidden && len(res.Stdout) > 0 && strings.Contains(stderr, hiddenEntriesMarker) {
			return res.Stdout, nil
		}
		return nil, classifyFailure(res.ExitCode, stderr)
	}

	if len(res.Stdout) == 0 {
		return nil, fmt.Errorf("%w: empty yt-dlp output", repository.ErrMalformedUpstreamResponse)
	}
	return res.Stdout, nil
}

func classifyFailure(exitCode int, stderr string) error {
	msg := lastLine(stderr)
	for _, marker := range notFoundMarkers {
		if strings.Contains(stderr, marker) {
			return fmt.Errorf("%w: %s", repository.ErrNotFound, msg)
		}
	}
	return fmt.Errorf("%w: yt-dlp exited with status %d: %s", repository.ErrUpstreamUnavailable, exitCode, msg)
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

type ytdlpThumbnail struct {
	URL string `json:"url"`
}

type ytdlpFormat struct {
	FormatID       string   `json:"format_id"`
	Ext            string   `json:"ext"`
	Resolution     *string  `json:"resolution"`
	FileSize       *int64   `json:"filesize"`
	FileSizeApprox *float64 `json:"filesize_approx"`
	FormatNote     string   `json:"format_note"`
	ACodec         string   `json:"acodec"`
	VCodec         string   `json:"vcodec"`
	URL            string   `json:"url"`
	ABR            *float64 `json:"abr"`
	Height         *int     `json:"height"`
	Protocol       string   `json:"protocol"`
}

type ytdlpEntry struct {
	ID         string           `json:"id"`
	Title      string           `json:"title"`
	URL        string           `json:"url"`
	Duration   *float64         `json:"duration"`
	Channel    *string          `json:"channel"`
	Uploader   *string          `json:"uploader"`
	Thumbnail  *string          `json:"thumbnail"`
	Thumbnails []ytdlpThumbnail `json:"thumbnails"`
	LiveStatus string           `json:"live_status"`
}

type ytdlpInfo struct {
	ytdlpEntry
	Type           string        `json:"_type"`
	WebpageURL     string        `json:"webpage_url"`
	DurationString *string       `json:"duration_string"`
	ViewCount      *int64        `json:"view_count"`
	Formats        []ytdlpFormat `json:"formats"`
	Entries        []ytdlpEntry  `json:"entries"`
}

func (e ytdlpEntry) thumbnail() *string {
	if e.Thumbnail != nil && *e.Thumbnail != "" {
		return e.Thumbnail
	}
	if n := len(e.Thumbnails); n > 0 && e.Thumbnails[n-1].URL != "" {
		u := e.Thumbnails[n-1].URL
		return &u
	}
	return nil
}

func (e ytdlpEntry) channel() *string {
	if e.Channel != nil {
		return e.Channel
	}
	return e.Uploader
}

func (e ytdlpEntry) toCandidate() model.CandidateRecord {
	link := e.URL
	if !strings.HasPrefix(link, "http") {
		link = model.WatchURL(e.ID)
	}

	var durationText *string
	if e.Duration != nil {
		s := formatClock(int(math.Round(*e.Duration)))
		durationText = &s
	}

	return model.CandidateRecord{
		ID:           e.ID,
		Title:        e.Title,
		Link:         link,
		DurationText: durationText,
		ThumbnailURL: e.thumbnail(),
		Channel:      e.channel(),
		Type:         model.ItemTypeVideo,
	}
}

func (i *ytdlpInfo) toRecord(requested string) (*model.MediaRecord, error) {
	link := i.WebpageURL
	if link == "" {
		link = requested
	}

	rec, err := model.NewMediaRecord(i.ID, i.Title, link)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrMalformedUpstreamResponse, err)
	}

	if i.Duration != nil && *i.Duration >= 0 {
		d := int(math.Round(*i.Duration))
		rec.DurationSeconds = &d
	}
	rec.ThumbnailURL = i.thumbnail()
	rec.Channel = i.channel()
	rec.ViewCount = i.ViewCount
	rec.DirectURL = i.URL

	rec.Formats = make([]model.FormatDescriptor, 0, len(i.Formats))
	for _, f := range i.Formats {
		rec.Formats = append(rec.Formats, f.toDescriptor())
	}

	return rec, nil
}

func (f ytdlpFormat) toDescriptor() model.FormatDescriptor {
	d := model.FormatDescriptor{
		FormatID:      f.FormatID,
		Ext:           f.Ext,
		Resolution:    f.Resolution,
		FileSizeBytes: f.FileSize,
		FormatNote:    f.FormatNote,
		AudioCodec:    f.ACodec,
		VideoCodec:    f.VCodec,
		DirectURL:     f.URL,
		Protocol:      f.Protocol,
	}
	if d.FileSizeBytes == nil && f.FileSizeApprox != nil {
		n := int64(*f.FileSizeApprox)
		d.FileSizeBytes = &n
	}
	if f.ABR != nil {
		d.AudioBitrate = *f.ABR
	}
	if f.Height != nil {
		d.Height = *f.Height
	}
	return d
}

// formatClock renders seconds as H:MM:SS or M:SS.
func formatClock(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	h, m, s := seconds/3600, seconds/60%60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
