// Package api serves the analysis pipeline over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medlens/internal/common/logger"
	"medlens/internal/lastresult"
	"medlens/internal/pipeline"
)

const requestIDHeader = "X-Request-ID"

// ReadinessCheck reports whether a dependency can serve traffic.
type ReadinessCheck func(ctx context.Context) error

type Options struct {
	Runner         pipeline.Runner
	Store          lastresult.Store
	Logger         logger.Logger
	MaxUploadBytes int64
	Version        string
	Checks         map[string]ReadinessCheck
}

type Server struct {
	runner    pipeline.Runner
	store     lastresult.Store
	logger    logger.Logger
	maxUpload int64
	version   string
	checks    map[string]ReadinessCheck
}

func NewServer(opts Options) *Server {
	maxUpload := opts.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 20 << 20
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoOpLogger()
	}
	return &Server{
		runner:    opts.Runner,
		store:     opts.Store,
		logger:    log,
		maxUpload: maxUpload,
		version:   opts.Version,
		checks:    opts.Checks,
	}
}

// Routes returns the full HTTP surface, including health and metrics.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("POST /api/analyze/demo", s.handleDemo)
	mux.HandleFunc("POST /api/reanalyze", s.handleReanalyze)
	mux.HandleFunc("GET /api/last-result", s.handleGetLastResult)
	mux.HandleFunc("DELETE /api/last-result", s.handleClearLastResult)
	mux.HandleFunc("GET /api/languages", s.handleLanguages)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /ready", s.handleReady)
	mux.Handle("GET /metrics", promhttp.Handler())
	return s.withRequestID(mux)
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(withRequestID(r.Context(), id)))
		s.logger.Debug("request served", map[string]interface{}{
			"requestId": id,
			"method":    r.Method,
			"path":      r.URL.Path,
			"duration":  time.Since(start).String(),
		})
	})
}

type requestIDKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestID returns the id assigned to the current request, if any.
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
