package rest

import (
	"errors"
	"net/http"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

const (
	errCodeInFlight      = "SUBMISSION_IN_FLIGHT"
	errCodeEmptyCanvas   = "EMPTY_CANVAS"
	errCodeSessionClosed = "SESSION_CLOSED"
)

type submitRequest struct {
	Model string `json:"model"`
}

type modelsResponse struct {
	Models  []string `json:"models"`
	Current string   `json:"current"`
}

// Submit handles POST /submit. The body is optional. Rate limits and remote
// failures are not HTTP errors: they come back as a classified result.
func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if !decodeJSON(w, r, &req, true) {
		return
	}

	res, err := h.session.Submit(r.Context(), req.Model)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrSubmissionInFlight):
			writeErrorWithCode(w, http.StatusConflict, err.Error(), errCodeInFlight)
		case errors.Is(err, domain.ErrSessionClosed):
			writeErrorWithCode(w, http.StatusServiceUnavailable, err.Error(), errCodeSessionClosed)
		case errors.Is(err, domain.ErrInvalidInput):
			writeErrorWithCode(w, http.StatusBadRequest, err.Error(), errCodeEmptyCanvas)
		default:
			writeError(w, http.StatusInternalServerError, err.Error())
		}
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ListModels handles GET /models
func (h *Handler) ListModels(w http.ResponseWriter, r *http.Request) {
	models := h.models
	if models == nil {
		models = []string{}
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models, Current: h.session.Status().Model})
}
