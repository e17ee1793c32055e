// Package router configures the forecaster's HTTP API.
//
// Routes configured:
//   - GET /runs/latest?name=<run>[&format=json|csv|arrow] - Latest stored run
//   - GET /healthz - Liveness (always 200 OK)
//   - GET /readyz - Readiness (503 until the first run is stored)
//   - GET /metrics - Prometheus metrics
//
// Runs older than the stale threshold carry an X-Panelcast-Stale header.
package router

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/HatiCode/panelcast/pkg/httpx"
	"github.com/HatiCode/panelcast/pkg/panel"
	"github.com/HatiCode/panelcast/pkg/storage"
)

// ArrowContentType is the media type of Arrow IPC file responses.
const ArrowContentType = "application/vnd.apache.arrow.file"

// SetupRoutes configures HTTP endpoints for the forecaster. ready backs
// /readyz; gatherer backs /metrics and defaults to prometheus.DefaultGatherer.
func SetupRoutes(store storage.Store, staleAfter time.Duration, ready func() error, gatherer prometheus.Gatherer, logger *slog.Logger) *http.ServeMux {
	if logger == nil {
		logger = slog.Default()
	}
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if ready == nil {
		ready = func() error { return nil }
	}

	mux := http.NewServeMux()
	mux.Handle("GET /healthz", httpx.HealthHandler())
	mux.Handle("GET /readyz", httpx.HealthHandlerWithCheck(ready))
	mux.HandleFunc("GET /runs/latest", handleGetRun(store, staleAfter, logger))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return mux
}

type runResponse struct {
	Name        string       `json:"name"`
	Mode        string       `json:"mode"`
	GeneratedAt string       `json:"generatedAt"`
	Horizon     int          `json:"horizon"`
	Freq        string       `json:"freq,omitempty"`
	Levels      []int        `json:"levels,omitempty"`
	Models      []string     `json:"models"`
	Groups      int          `json:"groups"`
	Table       *panel.Table `json:"table"`
}

// handleGetRun returns a handler for GET /runs/latest?name=<run>.
func handleGetRun(store storage.Store, staleAfter time.Duration, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := r.URL.Query().Get("name")
		if name == "" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "name parameter required")
			return
		}
		if err := storage.ValidateName(name); err != nil {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, "invalid run name format")
			return
		}

		format := r.URL.Query().Get("format")
		if format == "" {
			format = "json"
		}
		if format != "json" && format != "csv" && format != "arrow" {
			httpx.WriteErrorMessage(w, http.StatusBadRequest, fmt.Sprintf("unsupported format %q", format))
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		run, found, err := store.GetLatest(ctx, name)
		if err != nil {
			logger.Error("failed to get run", "name", name, "error", err)
			httpx.WriteErrorMessage(w, http.StatusInternalServerError, "internal server error")
			return
		}
		if !found || run.Table == nil {
			httpx.WriteErrorMessage(w, http.StatusNotFound, fmt.Sprintf("run not found: %q", name))
			return
		}

		if staleAfter > 0 && time.Since(run.GeneratedAt) > staleAfter {
			w.Header().Set("X-Panelcast-Stale", "true")
		}

		switch format {
		case "csv":
			w.Header().Set("Content-Type", "text/csv")
			if err := panel.WriteCSV(w, run.Table); err != nil {
				logger.Error("failed to write CSV response", "name", name, "error", err)
			}
		case "arrow":
			w.Header().Set("Content-Type", ArrowContentType)
			if err := panel.WriteArrow(w, run.Table); err != nil {
				logger.Error("failed to write Arrow response", "name", name, "error", err)
			}
		default:
			resp := runResponse{
				Name:        run.Name,
				Mode:        run.Mode,
				GeneratedAt: run.GeneratedAt.Format(time.RFC3339),
				Horizon:     run.Horizon,
				Freq:        run.Freq,
				Levels:      run.Levels,
				Models:      run.Models,
				Groups:      run.Groups,
				Table:       run.Table,
			}
			if err := httpx.WriteJSON(w, http.StatusOK, resp); err != nil {
				logger.Error("failed to write JSON response", "error", err)
			}
		}
	}
}
