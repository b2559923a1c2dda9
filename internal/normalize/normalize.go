// Package normalize maps upstream records onto the fixed client response shape.
package normalize

import (
	"math"
	"strconv"
	"strings"

	"github.com/hszk-dev/mediagate/internal/domain/model"
)

// Response is the fixed shape returned by metadata and resolve endpoints.
// Every key is always present; absent values encode as JSON null.
type Response struct {
	ID         *string `json:"id"`
	Title      *string `json:"title"`
	Duration   *int    `json:"duration"`
	Link       *string `json:"link"`
	Channel    *string `json:"channel"`
	Views      *int64  `json:"views"`
	Thumbnail  *string `json:"thumbnail"`
	StreamURL  *string `json:"stream_url"`
	StreamType *string `json:"stream_type"`
}

// Fields is a partial record. Nil means the source did not report the field.
type Fields struct {
	ID              *string
	Title           *string
	DurationSeconds *int
	// DurationText is used when DurationSeconds is nil.
	DurationText *string
	Link         *string
	Channel      *string
	Views        *int64
	Thumbnail    *string
	StreamURL    *string
	StreamType   *string
}

// Normalize builds the fixed response. Duration is reported in whole seconds:
// numeric durations pass through (negatives clamp to zero), textual ones are
// converted with ParseDuration, and a record with neither yields null.
func Normalize(f Fields) Response {
	r := Response{
		ID:         f.ID,
		Title:      f.Title,
		Link:       f.Link,
		Channel:    f.Channel,
		Views:      f.Views,
		Thumbnail:  f.Thumbnail,
		StreamURL:  f.StreamURL,
		StreamType: f.StreamType,
	}

	switch {
	case f.DurationSeconds != nil:
		d := max(*f.DurationSeconds, 0)
		r.Duration = &d
	case f.DurationText != nil:
		d := ParseDuration(*f.DurationText)
		r.Duration = &d
	}

	return r
}

// ParseDuration converts "HH:MM:SS", "MM:SS" or "SS" into seconds as
// sum(component * 60^position_from_right). Empty, unparsable or
// overflowing text is 0.
func ParseDuration(text string) int {
	text = strings.TrimSpace(text)
	if text == "" {
		return 0
	}

	parts := strings.Split(text, ":")
	total := 0
	mult := 1
	for i := len(parts) - 1; i >= 0; i-- {
		n, err := strconv.Atoi(strings.TrimSpace(parts[i]))
		if err != nil || n < 0 || n > (math.MaxInt-total)/mult {
			return 0
		}
		total += n * mult
		if i > 0 {
			if mult > math.MaxInt/60 {
				return 0
			}
			mult *= 60
		}
	}
	return total
}

// FromMedia maps a resolved record onto Fields.
func FromMedia(m *model.MediaRecord) Fields {
	if m == nil {
		return Fields{}
	}
	f := Fields{
		ID:              nonEmpty(m.ID),
		Title:           nonEmpty(m.Title),
		DurationSeconds: m.DurationSeconds,
		Link:            nonEmpty(m.CanonicalLink),
		Channel:         m.Channel,
		Views:           m.ViewCount,
		Thumbnail:       m.ThumbnailURL,
	}
	return f
}

// FromCandidate maps a search hit onto Fields.
func FromCandidate(c model.CandidateRecord) Fields {
	return Fields{
		ID:           nonEmpty(c.ID),
		Title:        nonEmpty(c.Title),
		DurationText: c.DurationText,
		Link:         nonEmpty(c.Link),
		Channel:      c.Channel,
		Thumbnail:    c.ThumbnailURL,
	}
}

// WithStream returns f with the stream fields set.
func (f Fields) WithStream(streamURL string, kind model.StreamKind) Fields {
	k := kind.String()
	f.StreamURL = &streamURL
	f.StreamType = &k
	return f
}

func nonEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
