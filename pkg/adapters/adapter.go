// Package adapters provides panel sources that retrieve series from external
// systems and normalize them into a panel.Frame of (unique_id, ds, y) rows.
//
// Each adapter implements the Adapter interface and feeds the forecast engine.
// Available adapters:
//   - CSVAdapter             - reads a long-format CSV file
//   - PrometheusAdapter      - one series per label set via the Prometheus HTTP API
//   - VictoriaMetricsAdapter - the same over the VictoriaMetrics Prometheus-compatible API
//   - HTTPAdapter            - generic adapter for any REST API with JSON responses
//
// Adapters only pull and shape raw data; grouping, sorting and forecasting
// are left to the engine.
package adapters

import (
	"context"
	"time"

	"github.com/HatiCode/panelcast/pkg/panel"
)

// Adapter is the interface that all panel sources implement.
//
// Collect is synchronous and should respect context cancellation and
// deadlines. Sources that read historical windows use windowSeconds; static
// sources ignore it.
type Adapter interface {
	// Collect fetches the panel for the last windowSeconds.
	Collect(ctx context.Context, windowSeconds int) (*panel.Frame, error)

	// Name returns a short, unique identifier for the adapter.
	// Example: "prometheus", "csv", "http".
	Name() string
}

// AlignTimestamp truncates ts to a multiple of stepSec.
func AlignTimestamp(ts time.Time, stepSec int) time.Time {
	return ts.Truncate(time.Duration(stepSec) * time.Second)
}
