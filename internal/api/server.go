package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/benaskins/secretkit/vault"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server serves a vault over a Unix socket.
type Server struct {
	store    vault.Store
	listener net.Listener
	server   *http.Server
	logger   *slog.Logger
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logs     LogSource
}

// LogSource supplies the daemon's recent log lines.
type LogSource interface {
	Last(n int) []string
}

// Option configures a Server.
type Option func(*Server)

// WithLogs serves the lines held by logs at GET /v1/logs.
func WithLogs(logs LogSource) Option {
	return func(s *Server) {
		s.logs = logs
	}
}

// NewServer creates an API server backed by the given store. Metrics are
// registered on reg and served at /metrics.
func NewServer(store vault.Store, reg *prometheus.Registry, opts ...Option) *Server {
	s := &Server{
		store:  store,
		logger: slog.With("component", "api"),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "secretd",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of API requests by route and status code",
		}, []string{"route", "status_code"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "secretd",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of API requests in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
	for _, opt := range opts {
		opt(s)
	}
	reg.MustRegister(s.requests, s.duration)

	mux := http.NewServeMux()
	s.handle(mux, "GET /v1/collections", s.listCollections)
	s.handle(mux, "POST /v1/collections", s.createCollection)
	s.handle(mux, "DELETE /v1/collections/{id}", s.deleteCollection)
	s.handle(mux, "PUT /v1/collections/{id}/lock", s.setLocked)
	s.handle(mux, "GET /v1/aliases/{alias}", s.resolveAlias)
	s.handle(mux, "POST /v1/items", s.createItem)
	s.handle(mux, "DELETE /v1/collections/{id}/items/{item}", s.deleteItem)
	s.handle(mux, "POST /v1/search", s.search)
	s.handle(mux, "GET /v1/health", s.health)
	if s.logs != nil {
		s.handle(mux, "GET /v1/logs", s.recentLogs)
	}
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	s.server = &http.Server{Handler: mux}
	return s
}

// Handler exposes the routes for in-process use.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) handle(mux *http.ServeMux, pattern string, h http.HandlerFunc) {
	mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		h(rec, r)
		s.requests.WithLabelValues(pattern, strconv.Itoa(rec.status)).Inc()
		s.duration.WithLabelValues(pattern).Observe(time.Since(start).Seconds())
	})
}

// ListenUnix starts the server on a Unix socket.
func (s *Server) ListenUnix(path string) error {
	ln, err := net.Listen("unix", path)
	if err != nil {
		return err
	}
	s.listener = ln
	s.logger.Info("API listening", "socket", path)
	return s.server.Serve(ln)
}

// Shutdown gracefully shuts down the API server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) listCollections(w http.ResponseWriter, r *http.Request) {
	collections, err := s.store.Collections(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, collections)
}

func (s *Server) createCollection(w http.ResponseWriter, r *http.Request) {
	var req vault.CreateCollectionRequest
	if !decode(w, r, &req) {
		return
	}
	c, err := s.store.CreateCollection(r.Context(), req.Label, req.Alias)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

func (s *Server) deleteCollection(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteCollection(r.Context(), r.PathValue("id")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setLocked(w http.ResponseWriter, r *http.Request) {
	var req vault.LockRequest
	if !decode(w, r, &req) {
		return
	}
	if err := s.store.SetLocked(r.Context(), r.PathValue("id"), req.Locked); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) resolveAlias(w http.ResponseWriter, r *http.Request) {
	c, err := s.store.ResolveAlias(r.Context(), r.PathValue("alias"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

func (s *Server) createItem(w http.ResponseWriter, r *http.Request) {
	var req vault.CreateItemRequest
	if !decode(w, r, &req) {
		return
	}
	item, err := s.store.CreateItem(r.Context(), req.Item, req.Replace)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

func (s *Server) deleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteItem(r.Context(), r.PathValue("id"), r.PathValue("item")); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) search(w http.ResponseWriter, r *http.Request) {
	var q vault.Query
	if !decode(w, r, &q) {
		return
	}
	items, err := s.store.Search(r.Context(), q)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if items == nil {
		items = []vault.ItemRecord{}
	}
	writeJSON(w, http.StatusOK, items)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) recentLogs(w http.ResponseWriter, r *http.Request) {
	n := 100
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, vault.ErrorResponse{Error: "n must be an integer", Code: vault.CodeInvalid})
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, vault.LogsResponse{Lines: s.logs.Last(n)})
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code := vault.ErrorCode(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, vault.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, vault.ErrLocked):
		status = http.StatusConflict
	default:
		s.logger.Error("vault operation failed", "error", err)
	}
	writeJSON(w, status, vault.ErrorResponse{Error: err.Error(), Code: code})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, vault.ErrorResponse{Error: err.Error(), Code: vault.CodeInvalid})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
