package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ovclabs/ovc/internal/models"
	"github.com/ovclabs/ovc/internal/store"
)

// MergeService is the merge engine surface the HTTP layer depends on.
type MergeService interface {
	AnalyzeConflicts(ctx context.Context, database, sourceBranch, targetBranch string) (*models.ConflictReport, error)
	MergeBranches(ctx context.Context, database, sourceBranch, targetBranch string, opts models.MergeOptions) (*models.MergeResult, error)
	ApplyManualResolution(ctx context.Context, database string, doc *models.ManualResolutionDoc) (*models.MergeResult, error)
}

// HistoryStore lists persisted merge audit records.
type HistoryStore interface {
	ListMergeRecords(limit int) ([]*store.MergeRecord, error)
}

// StatsStore aggregates resolution strategy statistics.
type StatsStore interface {
	StrategyStats() ([]store.StrategyStat, error)
}

// Pinger checks backing store reachability for readiness probes.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ServerConfig holds configurable limits for the server.
type ServerConfig struct {
	MaxRequestBody    int64 // bytes, for JSON endpoints
	RequestsPerMinute int
}

// DefaultServerConfig returns reasonable defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		MaxRequestBody:    16 * 1024 * 1024, // 16MB
		RequestsPerMinute: 300,
	}
}

// Handler creates the HTTP handler with all routes and middleware.
// The returned cleanup function stops background goroutines and should be
// called on server shutdown.
func Handler(engine MergeService, history HistoryStore, stats StatsStore, pinger Pinger, cfg *ServerConfig, logger *slog.Logger) (http.Handler, func()) {
	if cfg == nil {
		cfg = DefaultServerConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	rl := newRateLimiter(cfg.RequestsPerMinute)

	mux := http.NewServeMux()

	// Health and observability endpoints
	mux.HandleFunc("GET /healthz", handleHealthz)
	mux.HandleFunc("GET /readyz", func(w http.ResponseWriter, r *http.Request) {
		if pinger != nil {
			if err := pinger.Ping(r.Context()); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				w.Write([]byte("not ready: graph store unavailable"))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})
	mux.Handle("GET /metrics", promhttp.Handler())

	// Merge operations
	mux.Handle("POST /api/v1/databases/{db}/conflicts/analyze",
		rl.middleware(makeAnalyzeHandler(engine, cfg)))
	mux.Handle("POST /api/v1/databases/{db}/merges",
		rl.middleware(makeMergeHandler(engine, cfg)))
	mux.Handle("POST /api/v1/databases/{db}/merges/resolve",
		rl.middleware(makeResolveHandler(engine, cfg)))

	// Audit and statistics
	mux.Handle("GET /api/v1/merges/history", rl.middleware(makeHistoryHandler(history)))
	mux.Handle("GET /api/v1/strategies/stats", rl.middleware(makeStatsHandler(stats)))

	// Apply global middleware
	handler := applyMiddleware(mux,
		recoveryMiddleware(logger),
		loggingMiddleware(logger),
		requestIDMiddleware,
	)

	cleanup := func() {
		rl.Stop()
	}

	return handler, cleanup
}

// applyMiddleware applies middleware in reverse order so the first in the list runs first.
func applyMiddleware(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}

// branchesRequest names the two branches a merge-family request targets.
type branchesRequest struct {
	SourceBranch string `json:"source_branch"`
	TargetBranch string `json:"target_branch"`
	AutoResolve  bool   `json:"auto_resolve,omitempty"`
	DryRun       bool   `json:"dry_run,omitempty"`
	Message      string `json:"message,omitempty"`
	Author       string `json:"author,omitempty"`
}

func makeAnalyzeHandler(engine MergeService, cfg *ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := r.PathValue("db")
		var req branchesRequest
		if err := readJSON(r, cfg.MaxRequestBody, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		if req.SourceBranch == "" || req.TargetBranch == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "source_branch and target_branch are required"})
			return
		}

		report, err := engine.AnalyzeConflicts(r.Context(), database, req.SourceBranch, req.TargetBranch)
		if err != nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "analysis_failed", "message": err.Error()})
			return
		}

		writeJSON(w, http.StatusOK, report)
	}
}

func makeMergeHandler(engine MergeService, cfg *ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := r.PathValue("db")
		var req branchesRequest
		if err := readJSON(r, cfg.MaxRequestBody, &req); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		if req.SourceBranch == "" || req.TargetBranch == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "source_branch and target_branch are required"})
			return
		}

		opts := models.MergeOptions{
			AutoResolve: req.AutoResolve,
			DryRun:      req.DryRun,
			Message:     req.Message,
			Author:      req.Author,
		}
		result, err := engine.MergeBranches(r.Context(), database, req.SourceBranch, req.TargetBranch, opts)
		if err != nil && result == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "merge_failed", "message": err.Error()})
			return
		}

		writeJSON(w, mergeStatusCode(result.Status), result)
	}
}

func makeResolveHandler(engine MergeService, cfg *ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		database := r.PathValue("db")
		var doc models.ManualResolutionDoc
		if err := readJSON(r, cfg.MaxRequestBody, &doc); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": err.Error()})
			return
		}
		if doc.SourceBranch == "" || doc.TargetBranch == "" {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "source_branch and target_branch are required"})
			return
		}
		if len(doc.Resolutions) == 0 {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "resolutions are required"})
			return
		}

		result, err := engine.ApplyManualResolution(r.Context(), database, &doc)
		if err != nil && result == nil {
			writeJSON(w, http.StatusUnprocessableEntity, map[string]string{"error": "resolve_failed", "message": err.Error()})
			return
		}

		writeJSON(w, mergeStatusCode(result.Status), result)
	}
}

// mergeStatusCode maps a merge outcome to the HTTP status of the response
// that carries it. Every outcome still returns the full result body.
func mergeStatusCode(status models.MergeStatus) int {
	switch status {
	case models.MergeSuccess, models.MergeDryRunSuccess:
		return http.StatusOK
	case models.MergeManualRequired:
		return http.StatusConflict
	case models.MergeBlocked:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func makeHistoryHandler(history HistoryStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if history == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not_implemented", "message": "audit store not configured"})
			return
		}

		limit := 50
		if raw := r.URL.Query().Get("limit"); raw != "" {
			parsed, err := strconv.Atoi(raw)
			if err != nil || parsed < 0 {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad_request", "message": "limit must be a non-negative integer"})
				return
			}
			limit = parsed
		}

		records, err := history.ListMergeRecords(limit)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}
		if records == nil {
			records = []*store.MergeRecord{}
		}

		writeJSON(w, http.StatusOK, records)
	}
}

func makeStatsHandler(stats StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if stats == nil {
			writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "not_implemented", "message": "resolution ledger not configured"})
			return
		}

		list, err := stats.StrategyStats()
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal_error", "message": err.Error()})
			return
		}
		if list == nil {
			list = []store.StrategyStat{}
		}

		writeJSON(w, http.StatusOK, list)
	}
}

// --- Health Handlers ---

func handleHealthz(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// --- Helpers ---

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, maxSize int64, v interface{}) error {
	limited := io.LimitReader(r.Body, maxSize)
	if err := json.NewDecoder(limited).Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}
