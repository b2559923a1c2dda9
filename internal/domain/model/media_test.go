package model

import (
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func TestNewMediaRecord(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr error
	}{
		{name: "valid id", id: "dQw4w9WgXcQ"},
		{name: "empty id", id: "", wantErr: ErrEmptyMediaID},
		{name: "blank id", id: "   ", wantErr: ErrEmptyMediaID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NewMediaRecord(tt.id, "title", "https://youtu.be/x")
			if err != tt.wantErr {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
			if tt.wantErr == nil && rec.ID != tt.id {
				t.Errorf("ID = %q, want %q", rec.ID, tt.id)
			}
		})
	}
}

func TestMediaRecord_BestAudio(t *testing.T) {
	rec := &MediaRecord{
		ID: "abc",
		Formats: []FormatDescriptor{
			{FormatID: "18", AudioCodec: "mp4a.40.2", VideoCodec: "avc1", DirectURL: "http://v/18", Height: 360},
			{FormatID: "139", AudioCodec: "mp4a.40.5", VideoCodec: "none", DirectURL: "http://a/139", AudioBitrate: 48},
			{FormatID: "251", AudioCodec: "opus", VideoCodec: "none", DirectURL: "http://a/251", AudioBitrate: 160},
			{FormatID: "140", AudioCodec: "mp4a.40.2", VideoCodec: "none", DirectURL: "http://a/140", AudioBitrate: 129},
		},
	}

	got, ok := rec.BestAudio()
	if !ok {
		t.Fatal("expected an audio format")
	}
	if got.FormatID != "251" {
		t.Errorf("FormatID = %q, want 251", got.FormatID)
	}
}

func TestMediaRecord_BestAudio_NoneAvailable(t *testing.T) {
	rec := &MediaRecord{
		ID: "abc",
		Formats: []FormatDescriptor{
			{FormatID: "18", AudioCodec: "mp4a.40.2", VideoCodec: "avc1", DirectURL: "http://v/18"},
			{FormatID: "137", AudioCodec: "none", VideoCodec: "avc1", DirectURL: "http://v/137"},
		},
	}

	if _, ok := rec.BestAudio(); ok {
		t.Error("expected no audio-only format")
	}
	if _, ok := rec.StreamURLFor(StreamKindAudio); ok {
		t.Error("expected no audio stream URL")
	}
}

func TestMediaRecord_BestVideoURL(t *testing.T) {
	tests := []struct {
		name   string
		rec    *MediaRecord
		want   string
		wantOK bool
	}{
		{
			name:   "record level url wins",
			rec:    &MediaRecord{DirectURL: "http://direct", Formats: []FormatDescriptor{{AudioCodec: "aac", VideoCodec: "avc1", DirectURL: "http://f", Height: 1080}}},
			want:   "http://direct",
			wantOK: true,
		},
		{
			name: "tallest progressive format",
			rec: &MediaRecord{Formats: []FormatDescriptor{
				{AudioCodec: "aac", VideoCodec: "avc1", DirectURL: "http://360", Height: 360},
				{AudioCodec: "aac", VideoCodec: "avc1", DirectURL: "http://720", Height: 720},
				{AudioCodec: "none", VideoCodec: "avc1", DirectURL: "http://1080", Height: 1080},
			}},
			want:   "http://720",
			wantOK: true,
		},
		{
			name:   "no progressive format",
			rec:    &MediaRecord{Formats: []FormatDescriptor{{AudioCodec: "opus", VideoCodec: "none", DirectURL: "http://a"}}},
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.rec.StreamURLFor(StreamKindVideo)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if got != tt.want {
				t.Errorf("url = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMediaRecord_FindFormat(t *testing.T) {
	rec := &MediaRecord{Formats: []FormatDescriptor{{FormatID: "18"}, {FormatID: "22"}}}

	if f, ok := rec.FindFormat("22"); !ok || f.FormatID != "22" {
		t.Errorf("FindFormat(22) = %v, %v", f, ok)
	}
	if _, ok := rec.FindFormat("999"); ok {
		t.Error("FindFormat(999) should not be found")
	}
}

func TestCanonicalLink(t *testing.T) {
	tests := []struct {
		input string
		isID  bool
		want  string
	}{
		{"https://www.youtube.com/watch?v=abc&list=PL1&index=2", false, "https://www.youtube.com/watch?v=abc"},
		{"  https://youtu.be/abc  ", false, "https://youtu.be/abc"},
		{"abc", true, "https://www.youtube.com/watch?v=abc"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := CanonicalLink(tt.input, tt.isID); got != tt.want {
				t.Errorf("CanonicalLink(%q, %v) = %q, want %q", tt.input, tt.isID, got, tt.want)
			}
		})
	}
}

func TestPlaylistURL(t *testing.T) {
	if got := PlaylistURL(" PL123 "); got != "https://youtube.com/playlist?list=PL123" {
		t.Errorf("PlaylistURL() = %q", got)
	}
}

func TestNewPlaylistEntry(t *testing.T) {
	e := NewPlaylistEntry("abc", "Title", strPtr("http://thumb"))
	if e.Link != "https://youtu.be/abc" {
		t.Errorf("Link = %q", e.Link)
	}
}

func TestStreamHandle_IsLive(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := StreamHandle{ExpiresAt: now.Add(time.Minute)}

	if !h.IsLive(now) {
		t.Error("handle should be live before expiry")
	}
	if h.IsLive(now.Add(time.Minute)) {
		t.Error("handle must not be live at expiresAt")
	}
}
