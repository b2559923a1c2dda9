package handler

import (
	"net/http"
	"strings"

	"github.com/hszk-dev/mediagate/internal/usecase"
)

type DirectDownloadResponse struct {
	Title       string `json:"title"`
	DownloadURL string `json:"download_url"`
}

type MaterializedDownloadResponse struct {
	DownloadPath string `json:"download_path"`
	DownloadURL  string `json:"download_url,omitempty"`
}

type QueuedDownloadResponse struct {
	JobID        string `json:"job_id"`
	DownloadPath string `json:"download_path"`
}

// DownloadHandler handles download requests.
type DownloadHandler struct {
	svc usecase.DownloadService
}

// NewDownloadHandler creates a new DownloadHandler.
func NewDownloadHandler(svc usecase.DownloadService) *DownloadHandler {
	return &DownloadHandler{svc: svc}
}

// Download handles POST /v1/download
func (h *DownloadHandler) Download(w http.ResponseWriter, r *http.Request) {
	input, err := parseDownloadForm(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out, err := h.svc.Download(r.Context(), input)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	switch {
	case out.Queued:
		JSON(w, http.StatusAccepted, QueuedDownloadResponse{
			JobID:        out.JobID.String(),
			DownloadPath: out.DownloadPath,
		})
	case input.Materialize():
		JSON(w, http.StatusOK, MaterializedDownloadResponse{
			DownloadPath: out.DownloadPath,
			DownloadURL:  out.DownloadURL,
		})
	default:
		JSON(w, http.StatusOK, DirectDownloadResponse{
			Title:       out.Title,
			DownloadURL: out.DownloadURL,
		})
	}
}

func parseDownloadForm(r *http.Request) (usecase.DownloadInput, error) {
	var in usecase.DownloadInput

	link, err := requiredParam(r, "link")
	if err != nil {
		return in, err
	}
	in.Link = link
	in.FormatID = strings.TrimSpace(r.FormValue("formatId"))
	in.Title = strings.TrimSpace(r.FormValue("title"))

	flags := []struct {
		name string
		dst  *bool
	}{
		{"videoid", &in.VideoID},
		{"video", &in.Video},
		{"songaudio", &in.SongAudio},
		{"songvideo", &in.SongVideo},
	}
	for _, f := range flags {
		if *f.dst, err = boolParam(r, f.name); err != nil {
			return in, err
		}
	}
	return in, nil
}
