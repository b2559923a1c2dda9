package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/hszk-dev/mediagate/internal/domain/repository"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

type mockDownloadService struct {
	downloadFn func(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error)
}

func (m *mockDownloadService) Download(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error) {
	if m.downloadFn != nil {
		return m.downloadFn(ctx, input)
	}
	return &usecase.DownloadOutput{}, nil
}

func postForm(target string, form url.Values) *http.Request {
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func TestDownloadHandler_Download(t *testing.T) {
	jobID := uuid.New()

	tests := []struct {
		name           string
		form           url.Values
		setupMock      func(m *mockDownloadService)
		wantStatusCode int
		checkResponse  func(t *testing.T, body map[string]any)
	}{
		{
			name: "direct",
			form: url.Values{"link": {"https://youtu.be/x"}, "formatId": {"140"}},
			setupMock: func(m *mockDownloadService) {
				m.downloadFn = func(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error) {
					if input.FormatID != "140" || input.Materialize() {
						t.Errorf("input = %+v", input)
					}
					return &usecase.DownloadOutput{Title: "T", DownloadURL: "http://gw/v1/stream/h"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]any) {
				if body["title"] != "T" || body["download_url"] != "http://gw/v1/stream/h" {
					t.Errorf("body = %v", body)
				}
				if len(body) != 2 {
					t.Errorf("unexpected keys in %v", body)
				}
			},
		},
		{
			name: "materialized without storage",
			form: url.Values{"link": {"abc"}, "videoid": {"true"}, "songaudio": {"1"}, "title": {"Song"}},
			setupMock: func(m *mockDownloadService) {
				m.downloadFn = func(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error) {
					if !input.SongAudio || !input.VideoID || input.Title != "Song" {
						t.Errorf("input = %+v", input)
					}
					return &usecase.DownloadOutput{Title: "Song", DownloadPath: "/downloads/Song.mp3"}, nil
				}
			},
			wantStatusCode: http.StatusOK,
			checkResponse: func(t *testing.T, body map[string]any) {
				if body["download_path"] != "/downloads/Song.mp3" {
					t.Errorf("body = %v", body)
				}
				if _, ok := body["download_url"]; ok {
					t.Error("download_url should be omitted without storage")
				}
			},
		},
		{
			name: "queued",
			form: url.Values{"link": {"https://youtu.be/x"}, "songvideo": {"true"}},
			setupMock: func(m *mockDownloadService) {
				m.downloadFn = func(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error) {
					return &usecase.DownloadOutput{JobID: jobID, DownloadPath: "downloads/" + jobID.String() + "/x.mp4", Queued: true}, nil
				}
			},
			wantStatusCode: http.StatusAccepted,
			checkResponse: func(t *testing.T, body map[string]any) {
				if body["job_id"] != jobID.String() {
					t.Errorf("job_id = %v", body["job_id"])
				}
			},
		},
		{
			name: "unknown format",
			form: url.Values{"link": {"https://youtu.be/x"}, "formatId": {"999"}},
			setupMock: func(m *mockDownloadService) {
				m.downloadFn = func(ctx context.Context, input usecase.DownloadInput) (*usecase.DownloadOutput, error) {
					return nil, repository.ErrFormatNotFound
				}
			},
			wantStatusCode: http.StatusNotFound,
			checkResponse: func(t *testing.T, body map[string]any) {
				if body["error"] != "Format ID not found" {
					t.Errorf("error = %v", body["error"])
				}
			},
		},
		{
			name:           "missing link",
			form:           url.Values{"formatId": {"140"}},
			wantStatusCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mockSvc := &mockDownloadService{}
			if tt.setupMock != nil {
				tt.setupMock(mockSvc)
			}
			h := NewDownloadHandler(mockSvc)

			rec := httptest.NewRecorder()
			h.Download(rec, postForm("/v1/download", tt.form))

			if rec.Code != tt.wantStatusCode {
				t.Fatalf("status code = %d, want %d (body %s)", rec.Code, tt.wantStatusCode, rec.Body.String())
			}
			if tt.checkResponse != nil {
				var body map[string]any
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("failed to decode response: %v", err)
				}
				tt.checkResponse(t, body)
			}
		})
	}
}
