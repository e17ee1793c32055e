package adapters

import (
	"context"
	"errors"
	"net/http"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// VictoriaMetricsAdapter fetches series from VictoriaMetrics via its
// Prometheus-compatible HTTP API. Grouping follows PrometheusAdapter.
type VictoriaMetricsAdapter struct {
	// ServerURL is the base URL to VictoriaMetrics, e.g. http://victoria-metrics:8428
	ServerURL string
	// Query is the MetricsQL/PromQL expression to evaluate.
	Query string
	// StepSeconds controls the resolution (defaults to 60s if <= 0).
	StepSeconds int
	// IDLabel names the label whose value identifies a series.
	IDLabel string
	// Aggregate sums all series into one group.
	Aggregate bool
	// HTTPClient is optional; if nil a default client with timeout is used.
	HTTPClient *http.Client
}

func (v *VictoriaMetricsAdapter) Name() string { return "victoria-metrics" }

// Collect implements Adapter.
func (v *VictoriaMetricsAdapter) Collect(ctx context.Context, windowSeconds int) (*panel.Frame, error) {
	if v.ServerURL == "" || v.Query == "" {
		return nil, errors.New("victoria metrics adapter: ServerURL and Query are required")
	}
	matrix, err := queryRange(ctx, v.HTTPClient, v.ServerURL, v.Query, v.StepSeconds, windowSeconds)
	if err != nil {
		return nil, err
	}
	if v.Aggregate {
		return AggregateRangeResult(v.Query, matrix), nil
	}
	return SeriesFrame(matrix, v.IDLabel), nil
}
