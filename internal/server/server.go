// Package server exposes the scanner over HTTP: live stream, Prometheus
// metrics, health and recent results.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"arbscan/internal/domain"
	"arbscan/internal/engine"
	"arbscan/internal/infra"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// ScannerStatus is the read-only view of the scan loop.
type ScannerStatus interface {
	State() engine.State
	Cycles() int
	LastResult() *domain.ScanCycleResult
}

// OpportunityStore serves persisted opportunities.
type OpportunityStore interface {
	RecentOpportunities(ctx context.Context, limit int) ([]domain.OpportunityRow, error)
}

// QuoteProvider serves the quotes of the latest cycle.
type QuoteProvider interface {
	Latest() ([]domain.Quote, time.Time)
}

// Deps wires the server to the running components. Nil members disable
// their routes.
type Deps struct {
	Scanner ScannerStatus
	Metrics *infra.Metrics
	Stream  http.Handler
	Store   OpportunityStore
	Quotes  QuoteProvider
}

// Server is the optional HTTP surface.
type Server struct {
	addr   string
	deps   Deps
	mux    *http.ServeMux
	logger *slog.Logger
}

// New builds the route table.
func New(addr string, deps Deps) *Server {
	s := &Server{
		addr:   addr,
		deps:   deps,
		mux:    http.NewServeMux(),
		logger: slog.Default().With("module", "server"),
	}

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	if deps.Metrics != nil {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			infra.NewMetricsCollector(deps.Metrics),
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		s.mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	}
	if deps.Stream != nil {
		s.mux.Handle("GET /ws", deps.Stream)
	}
	if deps.Store != nil {
		s.mux.HandleFunc("GET /opportunities/recent", s.handleRecent)
	}
	if deps.Quotes != nil {
		s.mux.HandleFunc("GET /quotes", s.handleQuotes)
	}
	return s
}

// Handler returns the route table (tests).
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("🌐 HTTP server started", slog.String("addr", s.addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type healthResponse struct {
	Status         string    `json:"status"`
	State          string    `json:"state"`
	Cycles         int       `json:"cycles"`
	LastCycleID    string    `json:"last_cycle_id,omitempty"`
	LastCycleAt    time.Time `json:"last_cycle_at,omitempty"`
	LastDurationMS int64     `json:"last_cycle_duration_ms,omitempty"`
	Opportunities  int       `json:"last_cycle_opportunities"`
	Errors         int       `json:"last_cycle_errors"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", State: "unknown"}
	code := http.StatusOK
	if sc := s.deps.Scanner; sc != nil {
		state := sc.State()
		resp.State = state.String()
		resp.Cycles = sc.Cycles()
		if state == engine.StateStopped {
			resp.Status = "stopped"
			code = http.StatusServiceUnavailable
		}
		if last := sc.LastResult(); last != nil {
			resp.LastCycleID = last.ID
			resp.LastCycleAt = last.StartedAt.UTC()
			resp.LastDurationMS = last.Duration.Milliseconds()
			resp.Opportunities = len(last.Opportunities)
			resp.Errors = len(last.Errors)
		}
	}
	writeJSON(w, code, resp)
}

func (s *Server) handleRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 1000 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "limit must be between 1 and 1000"})
			return
		}
		limit = n
	}

	rows, err := s.deps.Store.RecentOpportunities(r.Context(), limit)
	if err != nil {
		s.logger.Error("Recent opportunities query failed", slog.Any("error", err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

type quotesResponse struct {
	FetchedAt time.Time      `json:"fetched_at"`
	Quotes    []domain.Quote `json:"quotes"`
}

func (s *Server) handleQuotes(w http.ResponseWriter, r *http.Request) {
	quotes, at := s.deps.Quotes.Latest()
	writeJSON(w, http.StatusOK, quotesResponse{FetchedAt: at.UTC(), Quotes: quotes})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("Failed to encode response", slog.Any("error", err))
	}
}
