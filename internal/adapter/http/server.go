package http

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/heatspot-etl-service/internal/domain"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ReadinessChecker reports whether the service is ready to serve traffic.
type ReadinessChecker interface {
	CheckReadiness(ctx context.Context) error
}

// ResultsProvider exposes the output of the latest completed pipeline run.
type ResultsProvider interface {
	Records() ([]domain.EnrichedRecord, bool)
	Statistics() (domain.RunStatistics, bool)
}

// Server exposes health, readiness, metrics, and run result endpoints.
type Server struct {
	httpServer *http.Server
	results    ResultsProvider
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api result routes.
func NewServer(addr string, ready ReadinessChecker, results ResultsProvider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:         addr,
			Handler:      mux,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		results: results,
		logger:  logger,
	}

	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", handleReady(ready))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/focos", s.handleRecords(false))
	mux.HandleFunc("GET /api/focos/dashboard", s.handleRecords(true))
	mux.HandleFunc("GET /api/estatisticas", s.handleStatistics)

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func handleReady(checker ReadinessChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		if err := checker.CheckReadiness(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "not ready",
				"error":  err.Error(),
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

// recordFilter narrows /api/focos by exact, case-insensitive label matches.
type recordFilter struct {
	biome, state, municipality, date string
	limit                            int
}

func parseFilter(r *http.Request) (recordFilter, error) {
	q := r.URL.Query()
	f := recordFilter{
		biome:        q.Get("biome"),
		state:        q.Get("state"),
		municipality: q.Get("municipality"),
		date:         q.Get("date"),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return f, errInvalidLimit
		}
		f.limit = n
	}
	return f, nil
}

var errInvalidLimit = errors.New("limit must be a positive integer")

func (f recordFilter) match(rec *domain.EnrichedRecord) bool {
	return matchLabel(f.biome, rec.Biome) &&
		matchLabel(f.state, rec.State) &&
		matchLabel(f.municipality, rec.Municipality) &&
		matchLabel(f.date, rec.Date)
}

func matchLabel(want, got string) bool {
	return want == "" || strings.EqualFold(want, got)
}

func (s *Server) handleRecords(dashboard bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		f, err := parseFilter(r)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		records, ok := s.results.Records()
		if !ok {
			writeNoResults(w)
			return
		}

		var full []domain.EnrichedRecord
		var projected []domain.DashboardRecord
		for i := range records {
			if !f.match(&records[i]) {
				continue
			}
			if dashboard {
				projected = append(projected, records[i].Dashboard())
			} else {
				full = append(full, records[i])
			}
			if f.limit > 0 && len(full)+len(projected) >= f.limit {
				break
			}
		}

		if dashboard {
			if projected == nil {
				projected = []domain.DashboardRecord{}
			}
			writeJSON(w, http.StatusOK, projected)
			return
		}
		if full == nil {
			full = []domain.EnrichedRecord{}
		}
		writeJSON(w, http.StatusOK, full)
	}
}

func (s *Server) handleStatistics(w http.ResponseWriter, _ *http.Request) {
	stats, ok := s.results.Statistics()
	if !ok {
		writeNoResults(w)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func writeNoResults(w http.ResponseWriter) {
	writeJSON(w, http.StatusServiceUnavailable, map[string]string{
		"status": "no results",
		"error":  "no pipeline run has completed yet",
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // client may have gone away
}
