package rest

import (
	"errors"
	"log"
	"net/http"

	"github.com/ewilliams-labs/voicecanvas/internal/canvas"
	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/mapping"
)

const errCodeUnknownProfile = "UNKNOWN_PROFILE"

// pointerRequest is one pointer event in display coordinates.
type pointerRequest struct {
	Type          string  `json:"type"`
	X             float64 `json:"x"`
	Y             float64 `json:"y"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
}

type pointerResponse struct {
	Drawn   bool   `json:"drawn"`
	State   string `json:"state"`
	Strokes int    `json:"strokes"`
}

type micResponse struct {
	Active bool `json:"active"`
}

type profileRequest struct {
	Name string `json:"name"`
}

type profileResponse struct {
	Name     string   `json:"name"`
	Profiles []string `json:"profiles"`
}

// GetStatus handles GET /status
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.session.Status())
}

// StartMic handles POST /mic/start. A denied or missing device still answers
// 200 with active=false; drawing continues with the fallback parameters.
func (h *Handler) StartMic(w http.ResponseWriter, r *http.Request) {
	active := h.session.StartMicrophone(r.Context())
	writeJSON(w, http.StatusOK, micResponse{Active: active})
}

// StopMic handles POST /mic/stop
func (h *Handler) StopMic(w http.ResponseWriter, r *http.Request) {
	h.session.StopMicrophone()
	writeJSON(w, http.StatusOK, micResponse{Active: false})
}

// Pointer handles POST /pointer
func (h *Handler) Pointer(w http.ResponseWriter, r *http.Request) {
	var req pointerRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.DisplayWidth < 0 || req.DisplayHeight < 0 {
		writeError(w, http.StatusBadRequest, "display size must not be negative")
		return
	}

	p := domain.Point{X: req.X, Y: req.Y}
	vp := canvas.Viewport{DisplayWidth: req.DisplayWidth, DisplayHeight: req.DisplayHeight}

	drawn := false
	switch req.Type {
	case "down":
		h.session.PointerDown(p, vp)
	case "move":
		drawn = h.session.PointerMove(p, vp)
	case "up":
		h.session.PointerUp()
	case "leave":
		h.session.PointerLeave()
	default:
		writeError(w, http.StatusBadRequest, "type must be one of down, move, up, leave")
		return
	}

	st := h.session.Status()
	state := canvas.Idle
	if st.Drawing {
		state = canvas.Drawing
	}
	writeJSON(w, http.StatusOK, pointerResponse{Drawn: drawn, State: state.String(), Strokes: st.Strokes})
}

// Clear handles POST /clear
func (h *Handler) Clear(w http.ResponseWriter, r *http.Request) {
	h.session.Clear()
	w.WriteHeader(http.StatusNoContent)
}

// SetProfile handles PUT /profile
func (h *Handler) SetProfile(w http.ResponseWriter, r *http.Request) {
	var req profileRequest
	if !decodeJSON(w, r, &req, false) {
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := h.session.SetProfile(req.Name); err != nil {
		if errors.Is(err, domain.ErrUnknownProfile) {
			writeErrorWithCode(w, http.StatusBadRequest, err.Error(), errCodeUnknownProfile)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, profileResponse{Name: req.Name, Profiles: mapping.Names()})
}

// Snapshot handles GET /snapshot.png
func (h *Handler) Snapshot(w http.ResponseWriter, r *http.Request) {
	png, err := h.session.Snapshot()
	if err != nil {
		log.Printf("WARN rest: snapshot failed: %v", err)
		writeError(w, http.StatusInternalServerError, "snapshot failed")
		return
	}
	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}
