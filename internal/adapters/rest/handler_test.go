package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ewilliams-labs/voicecanvas/internal/adapters/sqlite"
	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
	"github.com/ewilliams-labs/voicecanvas/internal/core/ports"
	"github.com/ewilliams-labs/voicecanvas/internal/core/services"
)

// --- Mocks ---

type mockAnalyzer struct {
	mu      sync.Mutex
	text    string
	err     error
	block   chan struct{}
	started chan struct{}
}

func (m *mockAnalyzer) Describe(ctx context.Context, req domain.SubmissionRequest) (string, error) {
	m.mu.Lock()
	started, block := m.started, m.block
	m.mu.Unlock()
	if started != nil {
		started <- struct{}{}
	}
	if block != nil {
		<-block
	}
	return m.text, m.err
}

func newTestHandler(t *testing.T, analyzer ports.VisionAnalyzer, history ports.AnalysisRepository) (*Handler, *services.Session) {
	t.Helper()
	session, err := services.NewSession(services.SessionConfig{
		Width:        100,
		Height:       100,
		DefaultModel: "default/model",
		SplatterTTL:  time.Hour,
		Rand:         func() float64 { return 0.99 },
	}, services.SessionDeps{Analyzer: analyzer})
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	t.Cleanup(session.Close)
	return NewHandler(session, history, []string{"default/model", "other/model"}), session
}

func doJSON(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func draw(t *testing.T, h http.Handler) {
	t.Helper()
	for _, body := range []string{
		`{"type":"down","x":10,"y":10,"displayWidth":100,"displayHeight":100}`,
		`{"type":"move","x":50,"y":50,"displayWidth":100,"displayHeight":100}`,
		`{"type":"up"}`,
	} {
		if rec := doJSON(h, http.MethodPost, "/pointer", body); rec.Code != http.StatusOK {
			t.Fatalf("pointer %s: status %d body %s", body, rec.Code, rec.Body.String())
		}
	}
}

// --- Tests ---

func TestHandler_HealthCheck(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnalyzer{}, nil)
	rec := doJSON(h, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_Pointer(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		contentType    string
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Success: down starts drawing",
			body:           `{"type":"down","x":1,"y":1,"displayWidth":50,"displayHeight":50}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"state":"drawing"`,
		},
		{
			name:           "Success: move without down draws nothing",
			body:           `{"type":"move","x":1,"y":1}`,
			expectedStatus: http.StatusOK,
			expectedBody:   `"drawn":false`,
		},
		{
			name:           "Bad Request: unknown type",
			body:           `{"type":"hover","x":1,"y":1}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "type must be one of",
		},
		{
			name:           "Bad Request: negative display size",
			body:           `{"type":"down","x":1,"y":1,"displayWidth":-5}`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "display size",
		},
		{
			name:           "Bad Request: malformed json",
			body:           `{invalid-json`,
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Invalid request body",
		},
		{
			name:           "Unsupported: wrong content type",
			body:           `type=down`,
			contentType:    "application/x-www-form-urlencoded",
			expectedStatus: http.StatusUnsupportedMediaType,
			expectedBody:   "Content-Type must be application/json",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &mockAnalyzer{}, nil)

			req := httptest.NewRequest(http.MethodPost, "/pointer", bytes.NewBufferString(tt.body))
			ct := tt.contentType
			if ct == "" {
				ct = "application/json"
			}
			req.Header.Set("Content-Type", ct)
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, strings.TrimSpace(rec.Body.String()))
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_DrawAndClear(t *testing.T) {
	h, session := newTestHandler(t, &mockAnalyzer{}, nil)
	draw(t, h)

	if got := session.Status().Strokes; got != 1 {
		t.Fatalf("expected 1 stroke, got %d", got)
	}

	rec := doJSON(h, http.MethodGet, "/status", "")
	var st domain.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if st.Strokes != 1 || st.Drawing || st.Phase != domain.PhaseIdle {
		t.Fatalf("unexpected status %+v", st)
	}

	for i := 0; i < 2; i++ {
		if rec := doJSON(h, http.MethodPost, "/clear", ""); rec.Code != http.StatusNoContent {
			t.Fatalf("clear: expected 204, got %d", rec.Code)
		}
	}
	if got := session.Status().Strokes; got != 0 {
		t.Fatalf("expected cleared canvas, got %d strokes", got)
	}
}

func TestHandler_Submit(t *testing.T) {
	tests := []struct {
		name           string
		drawFirst      bool
		body           string
		analyzer       *mockAnalyzer
		expectedStatus int
		expectedBody   string
	}{
		{
			name:           "Bad Request: empty canvas",
			analyzer:       &mockAnalyzer{text: "a boat"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   `"code":"EMPTY_CANVAS"`,
		},
		{
			name:           "Success: description",
			drawFirst:      true,
			analyzer:       &mockAnalyzer{text: "a boat"},
			expectedStatus: http.StatusOK,
			expectedBody:   `"text":"a boat"`,
		},
		{
			name:           "Success: explicit model",
			drawFirst:      true,
			body:           `{"model":"other/model"}`,
			analyzer:       &mockAnalyzer{text: "a fish"},
			expectedStatus: http.StatusOK,
			expectedBody:   `"kind":"success"`,
		},
		{
			name:           "Rate limited is a result not an error",
			drawFirst:      true,
			analyzer:       &mockAnalyzer{err: &domain.RateLimitError{RetryAfter: time.Second}},
			expectedStatus: http.StatusOK,
			expectedBody:   `"kind":"rate_limited"`,
		},
		{
			name:           "Bad Request: malformed json",
			drawFirst:      true,
			body:           `{"model":`,
			analyzer:       &mockAnalyzer{text: "a boat"},
			expectedStatus: http.StatusBadRequest,
			expectedBody:   "Invalid request body",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, tt.analyzer, nil)
			if tt.drawFirst {
				draw(t, h)
			}

			rec := doJSON(h, http.MethodPost, "/submit", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, strings.TrimSpace(rec.Body.String()))
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_SubmitInFlight(t *testing.T) {
	analyzer := &mockAnalyzer{text: "a boat", block: make(chan struct{}), started: make(chan struct{}, 1)}
	h, _ := newTestHandler(t, analyzer, nil)
	draw(t, h)

	first := make(chan *httptest.ResponseRecorder, 1)
	go func() { first <- doJSON(h, http.MethodPost, "/submit", "") }()
	<-analyzer.started

	rec := doJSON(h, http.MethodPost, "/submit", "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"code":"SUBMISSION_IN_FLIGHT"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}

	close(analyzer.block)
	if res := <-first; res.Code != http.StatusOK {
		t.Fatalf("first submit: expected 200, got %d", res.Code)
	}
}

func TestHandler_SubmitAfterClose(t *testing.T) {
	h, session := newTestHandler(t, &mockAnalyzer{text: "a boat"}, nil)
	draw(t, h)
	session.Close()

	rec := doJSON(h, http.MethodPost, "/submit", "")
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d, body: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), `"code":"SESSION_CLOSED"`) {
		t.Fatalf("unexpected body %q", rec.Body.String())
	}
}

func TestHandler_SetProfile(t *testing.T) {
	tests := []struct {
		name           string
		body           string
		expectedStatus int
		expectedBody   string
	}{
		{name: "Success", body: `{"name":"spectrum"}`, expectedStatus: http.StatusOK, expectedBody: `"name":"spectrum"`},
		{name: "Unknown profile", body: `{"name":"sepia"}`, expectedStatus: http.StatusBadRequest, expectedBody: `"code":"UNKNOWN_PROFILE"`},
		{name: "Missing name", body: `{}`, expectedStatus: http.StatusBadRequest, expectedBody: "name is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &mockAnalyzer{}, nil)
			rec := doJSON(h, http.MethodPut, "/profile", tt.body)
			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d", tt.expectedStatus, rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
		})
	}
}

func TestHandler_SnapshotAndModels(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnalyzer{}, nil)
	draw(t, h)

	rec := doJSON(h, http.MethodGet, "/snapshot.png", "")
	if rec.Code != http.StatusOK || rec.Header().Get("Content-Type") != "image/png" {
		t.Fatalf("snapshot: status %d type %q", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !bytes.HasPrefix(rec.Body.Bytes(), []byte("\x89PNG")) {
		t.Fatalf("snapshot is not a png")
	}

	rec = doJSON(h, http.MethodGet, "/models", "")
	var models modelsResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &models); err != nil {
		t.Fatalf("decode models: %v", err)
	}
	if len(models.Models) != 2 || models.Current != "default/model" {
		t.Fatalf("unexpected models %+v", models)
	}
}

func TestHandler_MicWithoutSource(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnalyzer{}, nil)
	rec := doJSON(h, http.MethodPost, "/mic/start", "")
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"active":false`) {
		t.Fatalf("mic start: status %d body %q", rec.Code, rec.Body.String())
	}
	rec = doJSON(h, http.MethodPost, "/mic/stop", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("mic stop: status %d", rec.Code)
	}
}

func TestHandler_History(t *testing.T) {
	repo, err := sqlite.NewAdapter(":memory:")
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	defer repo.Close()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for _, rec := range []domain.AnalysisRecord{
		{ID: "r1", SessionID: "s", ModelID: "m", Kind: domain.ResultSuccess, Text: "Arr, a **boat** <script>alert(1)</script>", CreatedAt: created},
		{ID: "r2", SessionID: "s", ModelID: "m", Kind: domain.ResultFailure, Text: "spirits", Reason: "timeout", CreatedAt: created.Add(time.Second)},
	} {
		if err := repo.Save(context.Background(), rec); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	tests := []struct {
		name           string
		history        ports.AnalysisRepository
		path           string
		expectedStatus int
		expectedBody   string
		forbiddenBody  string
	}{
		{name: "disabled", history: nil, path: "/history", expectedStatus: http.StatusServiceUnavailable, expectedBody: "history is disabled"},
		{name: "list newest first", history: repo, path: "/history", expectedStatus: http.StatusOK, expectedBody: `[{"id":"r2"`},
		{name: "limit", history: repo, path: "/history?limit=1", expectedStatus: http.StatusOK, expectedBody: `"id":"r2"`, forbiddenBody: `"id":"r1"`},
		{name: "bad limit", history: repo, path: "/history?limit=zero", expectedStatus: http.StatusBadRequest, expectedBody: "limit"},
		{name: "get one", history: repo, path: "/history/r1", expectedStatus: http.StatusOK, expectedBody: `"id":"r1"`},
		{name: "get missing", history: repo, path: "/history/nope", expectedStatus: http.StatusNotFound, expectedBody: domain.ErrNotFound.Error()},
		{name: "html", history: repo, path: "/history.html", expectedStatus: http.StatusOK, expectedBody: "<strong>boat</strong>", forbiddenBody: "<script>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestHandler(t, &mockAnalyzer{}, tt.history)
			rec := doJSON(h, http.MethodGet, tt.path, "")
			if rec.Code != tt.expectedStatus {
				t.Errorf("expected status %d, got %d, body: %s", tt.expectedStatus, rec.Code, rec.Body.String())
			}
			if !strings.Contains(rec.Body.String(), tt.expectedBody) {
				t.Errorf("expected body to contain %q, got %q", tt.expectedBody, rec.Body.String())
			}
			if tt.forbiddenBody != "" && strings.Contains(rec.Body.String(), tt.forbiddenBody) {
				t.Errorf("body must not contain %q", tt.forbiddenBody)
			}
		})
	}
}

func TestHandler_StreamStatus(t *testing.T) {
	h, _ := newTestHandler(t, &mockAnalyzer{}, nil)
	srv := httptest.NewServer(h)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/status/stream"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer resp.Body.Close()
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var st domain.Status
	if err := conn.ReadJSON(&st); err != nil {
		t.Fatalf("read initial status: %v", err)
	}
	if st.Drawing {
		t.Fatalf("expected idle canvas")
	}

	res, err := http.Post(srv.URL+"/pointer", "application/json",
		strings.NewReader(`{"type":"down","x":5,"y":5,"displayWidth":100,"displayHeight":100}`))
	if err != nil {
		t.Fatalf("post pointer: %v", err)
	}
	res.Body.Close()

	for {
		if err := conn.ReadJSON(&st); err != nil {
			t.Fatalf("read update: %v", err)
		}
		if st.Drawing {
			break
		}
	}
}
