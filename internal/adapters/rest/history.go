package rest

import (
	"bytes"
	"errors"
	"html/template"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/yuin/goldmark"

	"github.com/ewilliams-labs/voicecanvas/internal/core/domain"
)

const maxHistoryLimit = 200

type historyRow struct {
	domain.AnalysisRecord
	RenderedHTML template.HTML
}

var historyPage = template.Must(template.New("history").Funcs(template.FuncMap{
	"formatTime": func(t time.Time) string { return t.UTC().Format("2006-01-02 15:04:05") },
	"ms":         func(d time.Duration) int64 { return d.Milliseconds() },
}).Parse(`<!doctype html>
<html>
<head><meta charset="utf-8"><title>voicecanvas history</title></head>
<body>
<h1>Sketch readings</h1>
{{if not .}}<p>No sketches submitted yet.</p>{{end}}
{{range .}}<article class="{{.Kind}}">
<header>{{formatTime .CreatedAt}} &middot; {{.ModelID}} &middot; {{.Kind}} &middot; {{ms .Latency}} ms</header>
{{.RenderedHTML}}
{{if .Reason}}<p><small>{{.Reason}}</small></p>{{end}}
</article>
{{end}}
</body>
</html>
`))

// ListHistory handles GET /history?limit=N
func (h *Handler) ListHistory(w http.ResponseWriter, r *http.Request) {
	records, ok := h.recentHistory(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, records)
}

// GetHistory handles GET /history/{id}
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return
	}
	rec, err := h.history.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HistoryPage handles GET /history.html. Model output is treated as markdown.
func (h *Handler) HistoryPage(w http.ResponseWriter, r *http.Request) {
	records, ok := h.recentHistory(w, r)
	if !ok {
		return
	}

	rows := make([]historyRow, 0, len(records))
	for _, rec := range records {
		rows = append(rows, historyRow{AnalysisRecord: rec, RenderedHTML: renderMarkdown(rec.Text)})
	}

	var buf bytes.Buffer
	if err := historyPage.Execute(&buf, rows); err != nil {
		log.Printf("WARN rest: render history: %v", err)
		writeError(w, http.StatusInternalServerError, "failed to render history")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

func (h *Handler) recentHistory(w http.ResponseWriter, r *http.Request) ([]domain.AnalysisRecord, bool) {
	if h.history == nil {
		writeError(w, http.StatusServiceUnavailable, "history is disabled")
		return nil, false
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return nil, false
		}
		limit = min(parsed, maxHistoryLimit)
	}

	records, err := h.history.ListRecent(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return nil, false
	}
	return records, true
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is dropped by goldmark's default renderer.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String()) // #nosec G203 -- goldmark escapes raw HTML by default
}
