// Package kernel runs a single model over every group of a ragged store.
//
// ComputeForecasts produces h-step forecasts (optionally with prediction
// intervals) per group. ComputeCV produces rolling-origin backtests anchored at
// each series end. Both walk groups in store order and fail on the first error;
// they are safe to run concurrently on disjoint stores.
package kernel

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/HatiCode/panelcast/pkg/models"
	"github.com/HatiCode/panelcast/pkg/ragged"
)

var (
	// ErrHorizonMismatch is returned when a model returns a series whose length is not h.
	ErrHorizonMismatch = errors.New("forecast length does not match horizon")

	// ErrInconsistentArity is returned when interval outputs differ between groups
	// or do not match the requested levels.
	ErrInconsistentArity = errors.New("inconsistent interval output")

	// ErrShape is returned for invalid horizons, window sizes or exogenous shapes.
	ErrShape = errors.New("invalid shape")
)

// Forecasts is a dense (h*G) x Cols matrix in row-major order, grouped by
// group then step.
type Forecasts struct {
	Values []float32
	Cols   int

	// Names are the interval series names in column order; nil in point mode.
	Names []string
}

// At returns the value for a row and column.
func (f *Forecasts) At(row, col int) float32 {
	return f.Values[row*f.Cols+col]
}

// Rows returns the number of forecast rows.
func (f *Forecasts) Rows() int {
	if f.Cols == 0 {
		return 0
	}
	return len(f.Values) / f.Cols
}

// ComputeForecasts fits model on every group of store and returns h steps per group.
//
// Interval mode is used when the model declares interval support and at least
// one level is requested; the output then has 2*len(levels)+1 columns whose
// names and order are fixed by the first group. xreg, when non-nil, must have
// the same number of groups as store and h rows per group.
func ComputeForecasts(ctx context.Context, store *ragged.Store, h int, model models.Model, xreg *ragged.Store, levels []int) (*Forecasts, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: horizon must be >= 1, got %d", ErrShape, h)
	}
	groups := store.NGroups()
	if xreg != nil && xreg.NGroups() != groups {
		return nil, fmt.Errorf("%w: exogenous store has %d groups, want %d", ErrShape, xreg.NGroups(), groups)
	}

	interval := model.SupportsIntervals() && len(levels) > 0
	cols := 1
	if interval {
		cols = 2*len(levels) + 1
	}

	out := &Forecasts{Values: make([]float32, h*groups*cols), Cols: cols}
	nan := float32(math.NaN())
	for i := range out.Values {
		out.Values[i] = nan
	}

	for i := 0; i < groups; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		y, err := store.Get(i)
		if err != nil {
			return nil, err
		}

		var x *ragged.Block
		if xreg != nil {
			xb, err := xreg.Get(i)
			if err != nil {
				return nil, err
			}
			if xb.Rows() != h {
				return nil, fmt.Errorf("group %d: %w: exogenous block has %d rows, want %d", i, ErrShape, xb.Rows(), h)
			}
			x = &xb
		}

		if !interval {
			res, err := model.Forecast(ctx, y, h, x)
			if err != nil {
				return nil, fmt.Errorf("model %s, group %d: %w", model.Name(), i, err)
			}
			if len(res) != h {
				return nil, fmt.Errorf("model %s, group %d: %w: got %d, want %d", model.Name(), i, ErrHorizonMismatch, len(res), h)
			}
			for k, v := range res {
				out.Values[(i*h+k)*cols] = float32(v)
			}
			continue
		}

		series, err := model.ForecastIntervals(ctx, y, h, x, levels)
		if err != nil {
			return nil, fmt.Errorf("model %s, group %d: %w", model.Name(), i, err)
		}
		if out.Names == nil {
			if len(series) != cols {
				return nil, fmt.Errorf("model %s, group %d: %w: got %d series, want %d", model.Name(), i, ErrInconsistentArity, len(series), cols)
			}
			out.Names = make([]string, len(series))
			for j, s := range series {
				out.Names[j] = s.Name
			}
		}
		if err := placeSeries(out, series, i, h); err != nil {
			return nil, fmt.Errorf("model %s, group %d: %w", model.Name(), i, err)
		}
	}

	return out, nil
}

// placeSeries writes one group's interval series into out, matching by name.
func placeSeries(out *Forecasts, series []models.Series, group, h int) error {
	if len(series) != len(out.Names) {
		return fmt.Errorf("%w: got %d series, want %d", ErrInconsistentArity, len(series), len(out.Names))
	}
	byName := make(map[string][]float64, len(series))
	for _, s := range series {
		byName[s.Name] = s.Values
	}
	for j, name := range out.Names {
		values, ok := byName[name]
		if !ok {
			return fmt.Errorf("%w: missing series %q", ErrInconsistentArity, name)
		}
		if len(values) != h {
			return fmt.Errorf("series %q: %w: got %d, want %d", name, ErrHorizonMismatch, len(values), h)
		}
		for k, v := range values {
			out.Values[(group*h+k)*out.Cols+j] = float32(v)
		}
	}
	return nil
}
