// Package server exposes the doiwatch HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hazz-dev/doiwatch/internal/dashboard"
	"github.com/hazz-dev/doiwatch/internal/doi"
	"github.com/hazz-dev/doiwatch/internal/health"
	"github.com/hazz-dev/doiwatch/internal/monitor"
	"github.com/hazz-dev/doiwatch/internal/storage"
)

// Store defines the storage operations the server needs.
type Store interface {
	ListIdentifiers(ctx context.Context) ([]string, error)
	GetStatus(ctx context.Context, doi string) (*health.Record, error)
	AddIdentifier(ctx context.Context, doi string) error
	RemoveIdentifier(ctx context.Context, doi string) error
}

// CycleRunner runs one on-demand check cycle.
type CycleRunner interface {
	RunCycle(ctx context.Context) (monitor.Summary, error)
}

// Server holds the chi router and its dependencies.
type Server struct {
	store  Store
	runner CycleRunner
	router chi.Router
	logger *slog.Logger
}

// New creates a new Server and registers all routes. Pass nil logger to use
// the default logger.
func New(store Store, runner CycleRunner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		store:  store,
		runner: runner,
		router: chi.NewRouter(),
		logger: logger,
	}
	s.registerRoutes()
	return s
}

// Router returns the chi router (for mounting or testing).
func (s *Server) Router() chi.Router {
	return s.router
}

func (s *Server) registerRoutes() {
	r := s.router
	r.Use(middleware.Recoverer)
	r.Use(s.requestLogger)

	r.Get("/api/health", s.handleHealth)
	r.Get("/api/dois", s.handleListDOIs)
	r.Post("/api/dois", s.handleAddDOI)
	r.Delete("/api/dois/*", s.handleRemoveDOI)
	r.Post("/api/cycle", s.handleRunCycle)
	r.Handle("/metrics", promhttp.Handler())

	// Everything else is the status page.
	r.Handle("/*", dashboard.Handler())
}

// --- Response helpers ---

type envelope struct {
	Data  interface{} `json:"data"`
	Error string      `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Data: data})
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(envelope{Error: msg})
}

// --- Handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

type doiDetail struct {
	DOI            string     `json:"doi"`
	URL            string     `json:"url"`
	Status         string     `json:"status"`
	HTTPStatus     *int       `json:"http_status"`
	Error          string     `json:"error,omitempty"`
	LastCheckedAt  *time.Time `json:"last_checked_at"`
	FirstCheckedAt *time.Time `json:"first_checked_at"`
	FirstFailureAt *time.Time `json:"first_failure_at"`
	FirstSuccessAt *time.Time `json:"first_success_at"`
}

func detailFor(id string, rec *health.Record) doiDetail {
	d := doiDetail{
		DOI:    id,
		URL:    doi.ResolverURL(id),
		Status: "unknown",
	}
	if rec == nil || rec.Healthy == nil {
		return d
	}
	if *rec.Healthy {
		d.Status = "healthy"
	} else {
		d.Status = "broken"
	}
	d.HTTPStatus = rec.HTTPStatus
	d.Error = rec.Error
	last, first := rec.LastCheckedAt, rec.FirstCheckedAt
	d.LastCheckedAt = &last
	d.FirstCheckedAt = &first
	d.FirstFailureAt = rec.FirstFailureAt
	d.FirstSuccessAt = rec.FirstSuccessAt
	return d
}

func (s *Server) handleListDOIs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := s.store.ListIdentifiers(ctx)
	if err != nil {
		s.logger.Error("ListIdentifiers", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	details := make([]doiDetail, 0, len(ids))
	for _, id := range ids {
		rec, err := s.store.GetStatus(ctx, id)
		if err != nil {
			if errors.Is(err, health.ErrCorruptRecord) {
				s.logger.Warn("corrupt status record", "doi", id, "error", err)
				rec = nil
			} else {
				s.logger.Error("GetStatus", "doi", id, "error", err)
				writeError(w, http.StatusInternalServerError, "internal error")
				return
			}
		}
		details = append(details, detailFor(id, rec))
	}

	writeJSON(w, http.StatusOK, details)
}

type addDOIRequest struct {
	DOI string `json:"doi"`
}

func (s *Server) handleAddDOI(w http.ResponseWriter, r *http.Request) {
	var req addDOIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	normalized, err := doi.Normalize(req.DOI)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.AddIdentifier(r.Context(), normalized); err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			writeError(w, http.StatusConflict, "DOI already monitored")
			return
		}
		s.logger.Error("AddIdentifier", "doi", normalized, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusCreated, detailFor(normalized, nil))
}

func (s *Server) handleRemoveDOI(w http.ResponseWriter, r *http.Request) {
	// DOIs contain slashes, so the route uses a wildcard.
	raw := chi.URLParam(r, "*")
	normalized, err := doi.Normalize(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.store.RemoveIdentifier(r.Context(), normalized); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			writeError(w, http.StatusNotFound, "DOI not monitored")
			return
		}
		s.logger.Error("RemoveIdentifier", "doi", normalized, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"removed": normalized})
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	summary, err := s.runner.RunCycle(r.Context())
	if err != nil {
		s.logger.Error("RunCycle", "error", err)
		writeError(w, http.StatusInternalServerError, "cycle failed: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summary)
}

// --- Middleware ---

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration", time.Since(start),
		)
	})
}
