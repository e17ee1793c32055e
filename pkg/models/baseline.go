package models

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

var (
	// ErrEmptySeries is returned when a model receives no training observations.
	ErrEmptySeries = errors.New("empty training series")

	// ErrMissingExogenous is returned by models that need future regressors and got none.
	ErrMissingExogenous = errors.New("exogenous regressors required")
)

// Naive repeats the last observed value.
// Intervals assume random-walk errors: the one-step residual standard
// deviation grows with the square root of the step.
func Naive() Descriptor {
	return Descriptor{
		Name: "naive",
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			y := in.Y.Target()
			if len(y) == 0 {
				return nil, ErrEmptySeries
			}
			return repeat(y[len(y)-1], in.H), nil
		},
		Interval: func(ctx context.Context, in Input, levels []int) ([]Series, error) {
			y := in.Y.Target()
			if len(y) == 0 {
				return nil, ErrEmptySeries
			}
			mean := repeat(y[len(y)-1], in.H)
			sigma := residualStdDev(y, 1)
			return withIntervals(mean, levels, func(step int) float64 {
				return sigma * math.Sqrt(float64(step+1))
			}), nil
		},
	}
}

// SeasonalNaive repeats the last observed season.
func SeasonalNaive() Descriptor {
	return Descriptor{
		Name:   "seasonal_naive",
		Params: []Param{{Name: "season_length", Default: 7}},
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			season, err := intArg(in.Args, 0)
			if err != nil {
				return nil, fmt.Errorf("seasonal_naive: %w", err)
			}
			if season < 1 {
				return nil, fmt.Errorf("seasonal_naive: season_length must be >= 1, got %d", season)
			}
			y := in.Y.Target()
			if len(y) < season {
				return nil, fmt.Errorf("seasonal_naive: need %d observations, got %d", season, len(y))
			}
			last := y[len(y)-season:]
			out := make([]float64, in.H)
			for i := range out {
				out[i] = last[i%season]
			}
			return out, nil
		},
	}
}

// HistoricAverage forecasts the mean of the whole training series.
func HistoricAverage() Descriptor {
	return Descriptor{
		Name: "historic_average",
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			y := in.Y.Target()
			if len(y) == 0 {
				return nil, ErrEmptySeries
			}
			return repeat(stat.Mean(y, nil), in.H), nil
		},
		Interval: func(ctx context.Context, in Input, levels []int) ([]Series, error) {
			y := in.Y.Target()
			if len(y) == 0 {
				return nil, ErrEmptySeries
			}
			mean := repeat(stat.Mean(y, nil), in.H)
			var sigma float64
			if len(y) > 1 {
				sigma = stat.StdDev(y, nil) * math.Sqrt(1+1/float64(len(y)))
			}
			return withIntervals(mean, levels, func(int) float64 { return sigma }), nil
		},
	}
}

// WindowAverage forecasts the mean of the last window_size observations.
func WindowAverage() Descriptor {
	return Descriptor{
		Name:   "window_average",
		Params: []Param{{Name: "window_size", Default: 3}},
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			window, err := intArg(in.Args, 0)
			if err != nil {
				return nil, fmt.Errorf("window_average: %w", err)
			}
			y := in.Y.Target()
			if window < 1 || len(y) < window {
				return nil, fmt.Errorf("window_average: window_size %d with %d observations", window, len(y))
			}
			tail := y[len(y)-window:]
			return repeat(floats.Sum(tail)/float64(window), in.H), nil
		},
	}
}

// RandomWalkWithDrift extends the line through the first and last observations.
func RandomWalkWithDrift() Descriptor {
	return Descriptor{
		Name: "random_walk_with_drift",
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			y := in.Y.Target()
			if len(y) == 0 {
				return nil, ErrEmptySeries
			}
			last := y[len(y)-1]
			var slope float64
			if len(y) > 1 {
				slope = (last - y[0]) / float64(len(y)-1)
			}
			out := make([]float64, in.H)
			for i := range out {
				out[i] = last + slope*float64(i+1)
			}
			return out, nil
		},
	}
}

// Regression fits ordinary least squares of the target on the exogenous
// columns (plus an intercept) and applies it to the future regressors.
func Regression() Descriptor {
	return Descriptor{
		Name: "regression",
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			if in.X == nil || in.Y.Cols() < 2 {
				return nil, ErrMissingExogenous
			}
			n, p := in.Y.Rows(), in.Y.Cols()
			if n < p {
				return nil, fmt.Errorf("regression: need at least %d observations, got %d", p, n)
			}

			design := mat.NewDense(n, p, nil)
			for r := 0; r < n; r++ {
				design.Set(r, 0, 1)
				for c := 1; c < p; c++ {
					design.Set(r, c, float64(in.Y.At(r, c)))
				}
			}

			var beta mat.VecDense
			if err := beta.SolveVec(design, mat.NewVecDense(n, in.Y.Target())); err != nil {
				return nil, fmt.Errorf("regression: solve: %w", err)
			}

			if in.X.Cols() != p-1 {
				return nil, fmt.Errorf("regression: %d future regressors, trained on %d", in.X.Cols(), p-1)
			}
			out := make([]float64, in.H)
			for i := range out {
				v := beta.AtVec(0)
				for c := 1; c < p; c++ {
					v += beta.AtVec(c) * float64(in.X.At(i, c-1))
				}
				out[i] = v
			}
			return out, nil
		},
	}
}

// withIntervals builds the mean series followed by lo/hi bounds per level.
// spread returns the standard error at a given step.
func withIntervals(mean []float64, levels []int, spread func(step int) float64) []Series {
	out := make([]Series, 0, 2*len(levels)+1)
	out = append(out, Series{Name: "mean", Values: mean})
	for _, level := range levels {
		z := distuv.UnitNormal.Quantile(0.5 + float64(level)/200)
		lo := make([]float64, len(mean))
		hi := make([]float64, len(mean))
		for i, m := range mean {
			d := z * spread(i)
			lo[i] = m - d
			hi[i] = m + d
		}
		out = append(out,
			Series{Name: fmt.Sprintf("lo-%d", level), Values: lo},
			Series{Name: fmt.Sprintf("hi-%d", level), Values: hi},
		)
	}
	return out
}

// residualStdDev is the standard deviation of lag-k differences.
func residualStdDev(y []float64, lag int) float64 {
	if len(y) <= lag+1 {
		return 0
	}
	diffs := make([]float64, len(y)-lag)
	for i := lag; i < len(y); i++ {
		diffs[i-lag] = y[i] - y[i-lag]
	}
	return stat.StdDev(diffs, nil)
}

func repeat(v float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = v
	}
	return out
}

func intArg(args []any, i int) (int, error) {
	if i >= len(args) {
		return 0, fmt.Errorf("argument %d missing", i)
	}
	switch v := args[i].(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		n, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("argument %d: %w", i, err)
		}
		return n, nil
	default:
		return 0, fmt.Errorf("argument %d: unsupported type %T", i, v)
	}
}
