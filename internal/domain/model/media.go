package model

import (
	"errors"
	"strings"
	"time"
)

// StreamKind is the kind of media a client asks a stream for.
type StreamKind string

const (
	StreamKindAudio StreamKind = "audio"
	StreamKindVideo StreamKind = "video"
)

func (k StreamKind) String() string {
	return string(k)
}

// Item types reported by search providers.
const (
	ItemTypeVideo    = "video"
	ItemTypePlaylist = "playlist"
	ItemTypeChannel  = "channel"
)

// codecNone is the codec marker extractors use for a missing stream.
const codecNone = "none"

const (
	watchBaseURL    = "https://www.youtube.com/watch?v="
	shortBaseURL    = "https://youtu.be/"
	playlistBaseURL = "https://youtube.com/playlist?list="
)

var ErrEmptyMediaID = errors.New("media ID cannot be empty")

// MediaRecord describes one playable item as returned by the extractor.
// Optional fields are nil when the upstream did not report them.
type MediaRecord struct {
	ID              string
	Title           string
	DurationSeconds *int
	CanonicalLink   string
	ThumbnailURL    *string
	Channel         *string
	ViewCount       *int64
	// DirectURL is the record-level playable URL some extractors report
	// alongside the format list.
	DirectURL string
	Formats   []FormatDescriptor
}

// NewMediaRecord validates the mandatory fields of a record.
func NewMediaRecord(id, title, link string) (*MediaRecord, error) {
	if strings.TrimSpace(id) == "" {
		return nil, ErrEmptyMediaID
	}
	return &MediaRecord{
		ID:            id,
		Title:         title,
		CanonicalLink: link,
	}, nil
}

// FormatDescriptor is one encoding variant of a MediaRecord.
type FormatDescriptor struct {
	FormatID      string  `json:"format_id"`
	Ext           string  `json:"ext"`
	Resolution    *string `json:"resolution"`
	FileSizeBytes *int64  `json:"filesize"`
	FormatNote    string  `json:"format_note"`
	AudioCodec    string  `json:"acodec"`
	VideoCodec    string  `json:"vcodec"`
	DirectURL     string  `json:"url"`
	AudioBitrate  float64 `json:"-"`
	Height        int     `json:"-"`
	Protocol      string  `json:"-"`
}

// HasAudio reports whether the format carries an audio stream.
func (f FormatDescriptor) HasAudio() bool {
	return f.AudioCodec != "" && f.AudioCodec != codecNone
}

// HasVideo reports whether the format carries a video stream.
func (f FormatDescriptor) HasVideo() bool {
	return f.VideoCodec != "" && f.VideoCodec != codecNone
}

// IsAudioOnly reports whether the format is an audio stream without video.
func (f FormatDescriptor) IsAudioOnly() bool {
	return f.HasAudio() && f.VideoCodec == codecNone
}

// IsProgressive reports whether the format muxes audio and video together.
func (f FormatDescriptor) IsProgressive() bool {
	return f.HasAudio() && f.HasVideo()
}

// BestAudio returns the audio-only format with the highest audio bitrate.
func (m *MediaRecord) BestAudio() (FormatDescriptor, bool) {
	var best FormatDescriptor
	found := false
	for _, f := range m.Formats {
		if !f.IsAudioOnly() || f.DirectURL == "" {
			continue
		}
		if !found || f.AudioBitrate > best.AudioBitrate {
			best = f
			found = true
		}
	}
	return best, found
}

// BestVideoURL returns the record-level direct URL when the extractor
// reported one, otherwise the URL of the tallest progressive format.
func (m *MediaRecord) BestVideoURL() (string, bool) {
	if m.DirectURL != "" {
		return m.DirectURL, true
	}
	var best FormatDescriptor
	found := false
	for _, f := range m.Formats {
		if !f.IsProgressive() || f.DirectURL == "" {
			continue
		}
		if !found || f.Height > best.Height {
			best = f
			found = true
		}
	}
	if !found {
		return "", false
	}
	return best.DirectURL, true
}

// StreamURLFor picks the upstream URL for the requested kind.
func (m *MediaRecord) StreamURLFor(kind StreamKind) (string, bool) {
	if kind == StreamKindVideo {
		return m.BestVideoURL()
	}
	f, ok := m.BestAudio()
	if !ok {
		return "", false
	}
	return f.DirectURL, true
}

// FindFormat returns the format with the given identifier.
func (m *MediaRecord) FindFormat(formatID string) (FormatDescriptor, bool) {
	for _, f := range m.Formats {
		if f.FormatID == formatID {
			return f, true
		}
	}
	return FormatDescriptor{}, false
}

// CandidateRecord is one search hit. It is never persisted.
type CandidateRecord struct {
	ID           string  `json:"id"`
	Title        string  `json:"title"`
	Link         string  `json:"link"`
	DurationText *string `json:"duration"`
	ThumbnailURL *string `json:"thumbnail"`
	Channel      *string `json:"channel"`
	Type         string  `json:"type"`
}

// IsVideo reports whether the hit is a playable video.
func (c CandidateRecord) IsVideo() bool {
	return c.Type == ItemTypeVideo
}

// PlaylistEntry is one item of a playlist listing.
type PlaylistEntry struct {
	Title     string  `json:"title"`
	ID        string  `json:"id"`
	Link      string  `json:"link"`
	Thumbnail *string `json:"thumbnail"`
}

// NewPlaylistEntry builds an entry whose link points at the short watch URL.
func NewPlaylistEntry(id, title string, thumbnail *string) PlaylistEntry {
	return PlaylistEntry{
		Title:     title,
		ID:        id,
		Link:      shortBaseURL + id,
		Thumbnail: thumbnail,
	}
}

// StreamHandle binds an opaque identifier to a time-limited upstream URL.
type StreamHandle struct {
	ID        string    `json:"id"`
	TargetURL string    `json:"target_url"`
	IssuedAt  time.Time `json:"issued_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// IsLive reports whether the handle is readable at the given instant.
func (h StreamHandle) IsLive(now time.Time) bool {
	return now.Before(h.ExpiresAt)
}

// WatchURL builds the canonical watch link for a bare video ID.
func WatchURL(id string) string {
	return watchBaseURL + id
}

// PlaylistURL builds the playlist link for a bare playlist ID.
func PlaylistURL(id string) string {
	return playlistBaseURL + strings.TrimSpace(id)
}

// CanonicalLink turns user input into the link handed to extractors.
// When isID is set the input is a bare video ID. Anything after the
// first '&' (playlist index, tracking params) is dropped.
func CanonicalLink(input string, isID bool) string {
	link := strings.TrimSpace(input)
	if isID {
		link = WatchURL(link)
	}
	if i := strings.IndexByte(link, '&'); i >= 0 {
		link = link[:i]
	}
	return link
}
