package rest

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
	"github.com/ewilliams-labs/voicecanvas/internal/core/services"
)

const defaultStreamInterval = 100 * time.Millisecond

// Handler manages the HTTP interface for our application.
type Handler struct {
	session *services.Session        // Dependency on the Core Service
	history ports.AnalysisRepository // Optional; history routes answer 503 without it
	models  []string
	router  *http.ServeMux // Standard library router

	upgrader websocket.Upgrader
	// streamInterval paces live level updates while the microphone is on.
	streamInterval time.Duration
}

// NewHandler initializes the HTTP adapter and sets up routes.
func NewHandler(session *services.Session, history ports.AnalysisRepository, models []string) *Handler {
	h := &Handler{
		session: session,
		history: history,
		models:  models,
		router:  http.NewServeMux(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		streamInterval: defaultStreamInterval,
	}

	// Register Routes
	h.routes()

	return h
}

// ServeHTTP satisfies the http.Handler interface.
// It acts as a proxy, passing the request to our internal router.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// routes defines the mapping between URLs and methods.
func (h *Handler) routes() {
	// Health Check
	h.router.HandleFunc("GET /health", h.HealthCheck)
	// Status read model
	h.router.HandleFunc("GET /status", h.GetStatus)
	h.router.HandleFunc("GET /status/stream", h.StreamStatus)
	// Microphone
	h.router.HandleFunc("POST /mic/start", h.StartMic)
	h.router.HandleFunc("POST /mic/stop", h.StopMic)
	// Drawing
	h.router.HandleFunc("POST /pointer", h.Pointer)
	h.router.HandleFunc("POST /clear", h.Clear)
	h.router.HandleFunc("PUT /profile", h.SetProfile)
	h.router.HandleFunc("GET /snapshot.png", h.Snapshot)
	// Analysis
	h.router.HandleFunc("POST /submit", h.Submit)
	h.router.HandleFunc("GET /models", h.ListModels)
	h.router.HandleFunc("GET /history", h.ListHistory)
	h.router.HandleFunc("GET /history.html", h.HistoryPage)
	h.router.HandleFunc("GET /history/{id}", h.GetHistory)
}

// HealthCheck is a simple endpoint to verify the API is running.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "message": "voicecanvas is live 🎨"})
}
