// Package control is the daemon's local HTTP surface: recording status,
// display enumeration, and pause/resume. It is observability plumbing for
// the operator; the capture core itself has no network dependency.
package control

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"capture-orchestrator/internal/capture"
	"capture-orchestrator/internal/segment"
)

// Handler exposes the daemon's control endpoints.
type Handler struct {
	orc      *capture.Orchestrator
	segments *segment.Manager
	log      *slog.Logger
}

// NewHandler returns a Handler over the given orchestrator and segment
// manager.
func NewHandler(orc *capture.Orchestrator, segments *segment.Manager, log *slog.Logger) *Handler {
	return &Handler{orc: orc, segments: segments, log: log}
}

type statusResponse struct {
	State           string   `json:"state"`
	ActiveDisplays  []string `json:"active_displays"`
	PartialSegments int      `json:"partial_segments"`
}

type displayResponse struct {
	ID        string `json:"id"`
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	IsPrimary bool   `json:"is_primary"`
}

// Status handles GET /status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	active := h.orc.ActiveDisplays()
	ids := make([]string, len(active))
	for i, id := range active {
		ids[i] = string(id)
	}
	resp := statusResponse{
		State:           h.orc.State().String(),
		ActiveDisplays:  ids,
		PartialSegments: len(h.segments.Partials()),
	}
	writeJSON(w, http.StatusOK, resp)
}

// Displays handles GET /displays.
func (h *Handler) Displays(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	displays, err := h.orc.EnumerateDisplays()
	if err != nil {
		h.log.Error("display enumeration failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusBadGateway)
		return
	}
	out := make([]displayResponse, len(displays))
	for i, d := range displays {
		out[i] = displayResponse{
			ID:        string(d.ID),
			Width:     d.Width,
			Height:    d.Height,
			IsPrimary: d.IsPrimary,
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// Pause handles POST /pause.
func (h *Handler) Pause(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	if err := h.orc.Pause(r.Context()); err != nil {
		h.log.Error("pause failed", slog.String("error", err.Error()))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	h.log.Info("recording paused via control surface")
	w.WriteHeader(http.StatusOK)
}

// Resume handles POST /resume.
func (h *Handler) Resume(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	err := h.orc.Resume(r.Context())
	if err != nil {
		var startErr *capture.StartError
		switch {
		case errors.As(err, &startErr):
			h.log.Error("resume failed on every display", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusConflict)
		case errors.Is(err, capture.ErrNoDisplaysSelected):
			w.WriteHeader(http.StatusConflict)
		default:
			h.log.Error("resume failed", slog.String("error", err.Error()))
			w.WriteHeader(http.StatusInternalServerError)
		}
		return
	}
	h.log.Info("recording resumed via control surface")
	w.WriteHeader(http.StatusOK)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
