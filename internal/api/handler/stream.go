package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Relay streams the upstream bound to a handle.
// *streamproxy.Proxy satisfies this interface.
type Relay interface {
	ServeHandle(w http.ResponseWriter, r *http.Request, handleID string) error
}

// StreamHandler serves GET /v1/stream/{handleID}.
type StreamHandler struct {
	relay Relay
}

// NewStreamHandler creates a new StreamHandler.
func NewStreamHandler(relay Relay) *StreamHandler {
	return &StreamHandler{relay: relay}
}

// Serve relays the handle. Errors arrive only before the first byte, so
// they can still be reported as JSON.
func (h *StreamHandler) Serve(w http.ResponseWriter, r *http.Request) {
	handleID := chi.URLParam(r, "handleID")

	if err := h.relay.ServeHandle(w, r, handleID); err != nil {
		if r.Context().Err() != nil {
			return
		}
		handleServiceError(w, r, err)
	}
}
