// Package models turns the MODELS setting into bound forecasting models.
package models

import (
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/HatiCode/panelcast/pkg/models"
)

// Registry maps a model kind to its descriptor.
type Registry map[string]models.Descriptor

// DefaultRegistry returns the built-in models plus byom when byomURL is set.
func DefaultRegistry(byomURL string, client *http.Client, levels bool) Registry {
	r := Registry{}
	for _, d := range []models.Descriptor{
		models.Naive(),
		models.SeasonalNaive(),
		models.HistoricAverage(),
		models.WindowAverage(),
		models.RandomWalkWithDrift(),
		models.Regression(),
		models.AutoRegressive(),
	} {
		r[d.Name] = d
	}
	if byomURL != "" {
		r["byom"] = models.BYOM(models.BYOMConfig{
			Endpoint:   byomURL,
			Intervals:  levels,
			HTTPClient: client,
		})
	}
	return r
}

// Kinds returns the registered kinds, sorted.
func (r Registry) Kinds() []string {
	out := make([]string, 0, len(r))
	for k := range r {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Parse binds a comma-separated model list such as
// "naive,seasonal_naive:12,window_average:5". Arguments after the kind are
// colon-separated and bound in order.
func (r Registry) Parse(spec string, logger *slog.Logger) ([]models.Model, error) {
	if logger == nil {
		logger = slog.Default()
	}

	var out []models.Model
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		parts := strings.Split(entry, ":")
		desc, ok := r[parts[0]]
		if !ok {
			return nil, fmt.Errorf("unknown model %q (available: %s)", parts[0], strings.Join(r.Kinds(), ", "))
		}

		args := make([]any, 0, len(parts)-1)
		for _, a := range parts[1:] {
			args = append(args, parseArg(a))
		}

		m, err := models.New(desc, args...)
		if err != nil {
			return nil, err
		}
		logger.Info("initializing model", "model", m.Name(), "intervals", m.SupportsIntervals())
		out = append(out, m)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no models in %q", spec)
	}
	return out, nil
}

func parseArg(s string) any {
	if i, err := strconv.Atoi(s); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
