package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/kkdai/youtube/v2"
)

// youtubeClient is the subset of youtube.Client used by NativeResolver.
type youtubeClient interface {
	GetVideoContext(ctx context.Context, url string) (*youtube.Video, error)
	GetStreamURLContext(ctx context.Context, video *youtube.Video, format *youtube.Format) (string, error)
	GetPlaylistContext(ctx context.Context, url string) (*youtube.Playlist, error)
}

// NativeResolver implements MediaResolver in-process without yt-dlp.
type NativeResolver struct {
	client youtubeClient
}

var _ repository.MediaResolver = (*NativeResolver)(nil)

// NewNativeResolver creates a resolver using httpClient for upstream calls.
func NewNativeResolver(httpClient *http.Client) *NativeResolver {
	return &NativeResolver{
		client: &youtube.Client{HTTPClient: httpClient},
	}
}

// newNativeResolverWithClient creates a NativeResolver with a custom client.
// This is used for testing with mock clients.
func newNativeResolverWithClient(client youtubeClient) *NativeResolver {
	return &NativeResolver{client: client}
}

// Resolve fetches the video and signs every format URL.
func (r *NativeResolver) Resolve(ctx context.Context, url string) (*model.MediaRecord, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", repository.ErrInvalidInput)
	}

	video, err := r.client.GetVideoContext(ctx, url)
	if err != nil {
		return nil, mapNativeError(err)
	}

	rec, err := model.NewMediaRecord(video.ID, video.Title, model.WatchURL(video.ID))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", repository.ErrMalformedUpstreamResponse, err)
	}

	if video.Duration > 0 {
		d := int(video.Duration.Seconds())
		rec.DurationSeconds = &d
	}
	if video.Author != "" {
		author := video.Author
		rec.Channel = &author
	}
	views := int64(video.Views)
	rec.ViewCount = &views
	if n := len(video.Thumbnails); n > 0 {
		u := video.Thumbnails[n-1].URL
		rec.ThumbnailURL = &u
	}

	rec.Formats = make([]model.FormatDescriptor, 0, len(video.Formats))
	for i := range video.Formats {
		f := &video.Formats[i]
		d := nativeDescriptor(f)
		if d.DirectURL == "" {
			streamURL, err := r.client.GetStreamURLContext(ctx, video, f)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				continue
			}
			d.DirectURL = streamURL
		}
		rec.Formats = append(rec.Formats, d)
	}

	return rec, nil
}

// ListFormats returns the formats of url.
func (r *NativeResolver) ListFormats(ctx context.Context, url string) ([]model.FormatDescriptor, error) {
	rec, err := r.Resolve(ctx, url)
	if err != nil {
		return nil, err
	}
	return rec.Formats, nil
}

// Playlist lists up to limit entries.
func (r *NativeResolver) Playlist(ctx context.Context, url string, limit int) ([]model.PlaylistEntry, error) {
	if strings.TrimSpace(url) == "" {
		return nil, fmt.Errorf("%w: empty url", repository.ErrInvalidInput)
	}

	pl, err := r.client.GetPlaylistContext(ctx, url)
	if err != nil {
		return nil, mapNativeError(err)
	}

	entries := make([]model.PlaylistEntry, 0, min(len(pl.Videos), max(limit, 0)))
	for _, v := range pl.Videos {
		if len(entries) >= limit {
			break
		}
		if v == nil || v.ID == "" {
			continue
		}
		var thumb *string
		if n := len(v.Thumbnails); n > 0 {
			u := v.Thumbnails[n-1].URL
			thumb = &u
		}
		entries = append(entries, model.NewPlaylistEntry(v.ID, v.Title, thumb))
	}
	return entries, nil
}

func mapNativeError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	switch {
	case errors.Is(err, youtube.ErrVideoPrivate),
		errors.Is(err, youtube.ErrLoginRequired),
		errors.Is(err, youtube.ErrNotPlayableInEmbed),
		errors.Is(err, youtube.ErrInvalidCharactersInVideoID),
		errors.Is(err, youtube.ErrVideoIDMinLength),
		errors.Is(err, youtube.ErrInvalidPlaylist):
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "unavailable") || strings.Contains(msg, "not found") {
		return fmt.Errorf("%w: %v", repository.ErrNotFound, err)
	}
	return fmt.Errorf("%w: %v", repository.ErrUpstreamUnavailable, err)
}

// nativeDescriptor converts a client format. Codecs come from the mime
// type, e.g. `video/mp4; codecs="avc1.42001E, mp4a.40.2"`.
func nativeDescriptor(f *youtube.Format) model.FormatDescriptor {
	mediaType, codecs := splitMimeType(f.MimeType)
	kind, ext, _ := strings.Cut(mediaType, "/")

	d := model.FormatDescriptor{
		FormatID:   strconv.Itoa(f.ItagNo),
		Ext:        ext,
		FormatNote: f.QualityLabel,
		AudioCodec: codecNone,
		VideoCodec: codecNone,
		DirectURL:  f.URL,
		Height:     f.Height,
		Protocol:   "https",
	}
	if d.FormatNote == "" {
		d.FormatNote = f.AudioQuality
	}

	switch kind {
	case "audio":
		if len(codecs) > 0 {
			d.AudioCodec = codecs[0]
		}
		d.AudioBitrate = float64(f.Bitrate) / 1000
	case "video":
		if len(codecs) > 0 {
			d.VideoCodec = codecs[0]
		}
		if len(codecs) > 1 {
			d.AudioCodec = codecs[1]
		}
		if f.Width > 0 && f.Height > 0 {
			res := fmt.Sprintf("%dx%d", f.Width, f.Height)
			d.Resolution = &res
		}
	}

	if f.ContentLength > 0 {
		size := f.ContentLength
		d.FileSizeBytes = &size
	}

	return d
}

const codecNone = "none"

func splitMimeType(mime string) (string, []string) {
	mediaType, params, _ := strings.Cut(mime, ";")
	mediaType = strings.TrimSpace(mediaType)

	_, list, ok := strings.Cut(params, "codecs=")
	if !ok {
		return mediaType, nil
	}
	list = strings.Trim(strings.TrimSpace(list), `"`)

	var codecs []string
	for _, c := range strings.Split(list, ",") {
		if c = strings.TrimSpace(c); c != "" {
			codecs = append(codecs, c)
		}
	}
	return mediaType, codecs
}
