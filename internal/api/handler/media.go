package handler

import (
	"net/http"

	"github.com/hszk-dev/mediagate/internal/domain/model"
	"github.com/hszk-dev/mediagate/internal/usecase"
)

type SearchResponse struct {
	Results []model.CandidateRecord `json:"results"`
}

type FormatsResponse struct {
	Formats []model.FormatDescriptor `json:"formats"`
}

type PlaylistResponse struct {
	Videos []model.PlaylistEntry `json:"videos"`
}

// MediaHandler handles search, metadata and resolve requests.
type MediaHandler struct {
	svc usecase.MediaService
}

// NewMediaHandler creates a new MediaHandler.
func NewMediaHandler(svc usecase.MediaService) *MediaHandler {
	return &MediaHandler{svc: svc}
}

// Search handles GET /v1/search
func (h *MediaHandler) Search(w http.ResponseWriter, r *http.Request) {
	query, err := requiredParam(r, "query")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	videoOnly, err := boolParam(r, "videoOnly")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	results, err := h.svc.Search(r.Context(), usecase.SearchInput{
		Query:     query,
		Limit:     limit,
		VideoOnly: videoOnly,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if results == nil {
		results = []model.CandidateRecord{}
	}

	JSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Slider handles GET /v1/slider
func (h *MediaHandler) Slider(w http.ResponseWriter, r *http.Request) {
	query, err := requiredParam(r, "query")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	index, err := intParam(r, "index", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp, err := h.svc.Slider(r.Context(), usecase.SliderInput{Query: query, Index: index})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Details handles GET /v1/details
func (h *MediaHandler) Details(w http.ResponseWriter, r *http.Request) {
	link, videoID, err := linkParams(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp, err := h.svc.Details(r.Context(), usecase.MetadataInput{Link: link, VideoID: videoID})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Track handles GET /v1/track
func (h *MediaHandler) Track(w http.ResponseWriter, r *http.Request) {
	link, videoID, err := linkParams(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	resp, err := h.svc.Track(r.Context(), usecase.MetadataInput{Link: link, VideoID: videoID})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, resp)
}

// Resolve handles GET /v1/resolve
func (h *MediaHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	link, videoID, err := linkParams(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	wantVideo, err := boolParam(r, "wantVideo")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out, err := h.svc.Resolve(r.Context(), usecase.ResolveInput{
		Link:    link,
		VideoID: videoID,
		Video:   wantVideo,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, out.Response)
}

// Stream handles POST /v1/stream
func (h *MediaHandler) Stream(w http.ResponseWriter, r *http.Request) {
	query, err := requiredParam(r, "query")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	video, err := boolParam(r, "video")
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	out, err := h.svc.StreamQuery(r.Context(), usecase.StreamQueryInput{Query: query, Video: video})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, out.Response)
}

// Formats handles GET /v1/formats
func (h *MediaHandler) Formats(w http.ResponseWriter, r *http.Request) {
	link, videoID, err := linkParams(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	formats, err := h.svc.Formats(r.Context(), usecase.MetadataInput{Link: link, VideoID: videoID})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	JSON(w, http.StatusOK, FormatsResponse{Formats: formats})
}

// Playlist handles GET /v1/playlist
func (h *MediaHandler) Playlist(w http.ResponseWriter, r *http.Request) {
	link, videoID, err := linkParams(r)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	limit, err := intParam(r, "limit", 0)
	if err != nil {
		handleServiceError(w, r, err)
		return
	}

	entries, err := h.svc.Playlist(r.Context(), usecase.PlaylistInput{
		Link:    link,
		VideoID: videoID,
		Limit:   limit,
	})
	if err != nil {
		handleServiceError(w, r, err)
		return
	}
	if entries == nil {
		entries = []model.PlaylistEntry{}
	}

	JSON(w, http.StatusOK, PlaylistResponse{Videos: entries})
}
