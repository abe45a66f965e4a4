// Package statusapi serves a read-only JSON view of the tracking table.
package statusapi

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/maloquacious/catscrape/internal/catalogue"
	"github.com/maloquacious/catscrape/internal/logger"
	"github.com/maloquacious/catscrape/internal/store"
)

// Info describes the running binary in /api/summary.
type Info struct {
	Version       string `json:"version"`
	SchemaVersion string `json:"schemaVersion,omitempty"`
	Storage       string `json:"storage"`
	Location      string `json:"location"`
}

// Handler reads the store on every request, so a concurrent run's saves
// show up without a restart.
type Handler struct {
	store store.Store
	info  Info
	log   logger.Logger
	now   func() time.Time
}

// New returns a Handler over s.
func New(s store.Store, info Info, log logger.Logger) *Handler {
	if log == nil {
		log = logger.Nop
	}
	return &Handler{store: s, info: info, log: log, now: time.Now}
}

// Router mounts the endpoints.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/live", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})
	r.Get("/ready", h.handleReady)

	r.Route("/api", func(r chi.Router) {
		r.Use(jsonOnly)
		r.Get("/summary", h.handleSummary)
		r.Get("/catalogues", h.handleList)
		r.Get("/catalogues/{slug}", h.handleGet)
	})
	return r
}

// handleReady is not ready until the store can be read.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := h.store.Load(r.Context()); err != nil {
		h.log.Warn("readiness: %v", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		w.Write([]byte("NOT READY"))
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("READY"))
}

func (h *Handler) handleSummary(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Info
		Time string `json:"time"`
		catalogue.Summary
	}{Info: h.info, Time: h.now().UTC().Format(time.RFC3339), Summary: t.Summary()})
}

// handleList accepts ?store=a,b and ?pending=true.
func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	if s := q.Get("store"); s != "" {
		t = t.Filter(strings.Split(strings.ToLower(s), ",")...)
	}
	switch q.Get("pending") {
	case "", "false":
	case "true":
		t = t.Pending()
	default:
		writeJSONError(w, http.StatusBadRequest, "invalid_request", "pending must be true or false")
		return
	}
	if t == nil {
		t = catalogue.Table{}
	}
	writeJSON(w, http.StatusOK, t)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	t, ok := h.load(w, r)
	if !ok {
		return
	}
	slug := chi.URLParam(r, "slug")
	i := t.Index(slug)
	if i < 0 {
		writeJSONError(w, http.StatusNotFound, "not_found", "no catalogue with slug "+slug)
		return
	}
	writeJSON(w, http.StatusOK, t[i])
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request) (catalogue.Table, bool) {
	t, err := h.store.Load(r.Context())
	if err != nil {
		h.log.Error("load %s: %v", h.store.Location(), err)
		status := http.StatusInternalServerError
		if r.Context().Err() != nil {
			status = http.StatusServiceUnavailable
		}
		writeJSONError(w, status, "store_unavailable", "tracking store could not be read")
		return nil, false
	}
	return t, true
}

// jsonOnly rejects clients that will not accept JSON.
func jsonOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept := r.Header.Get("Accept")
		if accept != "" && !strings.Contains(accept, "application/json") && !strings.Contains(accept, "*/*") {
			writeJSONError(w, http.StatusNotAcceptable, "not_acceptable", "Accept must include application/json")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, map[string]string{
		"error":   code,
		"message": msg,
	})
}
