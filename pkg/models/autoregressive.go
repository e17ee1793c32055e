package models

import (
	"context"
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/stat"
)

// AutoRegressive fits an AR(p) model to the series differenced d times,
// estimating the coefficients from the Yule-Walker equations, and integrates
// the forecasts back. Intervals widen with the square root of the step around
// the one-step residual standard deviation.
func AutoRegressive() Descriptor {
	return Descriptor{
		Name: "autoregressive",
		Params: []Param{
			{Name: "p", Default: 1},
			{Name: "d", Default: 1},
		},
		Point: func(ctx context.Context, in Input) ([]float64, error) {
			fit, err := fitAutoRegressive(in)
			if err != nil {
				return nil, err
			}
			return fit.forecast(in.H), nil
		},
		Interval: func(ctx context.Context, in Input, levels []int) ([]Series, error) {
			fit, err := fitAutoRegressive(in)
			if err != nil {
				return nil, err
			}
			sigma := fit.residualStdDev()
			return withIntervals(fit.forecast(in.H), levels, func(step int) float64 {
				return sigma * math.Sqrt(float64(step+1))
			}), nil
		},
	}
}

type arFit struct {
	// levels[k] is the series differenced k times; the last is the one fitted.
	levels [][]float64
	mean   float64
	coeffs []float64
}

func fitAutoRegressive(in Input) (*arFit, error) {
	p, err := intArg(in.Args, 0)
	if err != nil {
		return nil, fmt.Errorf("autoregressive: %w", err)
	}
	d, err := intArg(in.Args, 1)
	if err != nil {
		return nil, fmt.Errorf("autoregressive: %w", err)
	}
	if p < 0 || d < 0 || d > 2 {
		return nil, fmt.Errorf("autoregressive: need p >= 0 and d in [0, 2], got p=%d d=%d", p, d)
	}

	y := in.Y.Target()
	if len(y) == 0 {
		return nil, ErrEmptySeries
	}
	if len(y) < p+d+2 {
		return nil, fmt.Errorf("autoregressive: need %d observations, got %d", p+d+2, len(y))
	}

	levels := [][]float64{y}
	for k := 0; k < d; k++ {
		levels = append(levels, difference(levels[k]))
	}
	w := levels[d]

	fit := &arFit{levels: levels, mean: stat.Mean(w, nil)}
	fit.coeffs, err = yuleWalker(fit.centered(), p)
	if err != nil {
		return nil, fmt.Errorf("autoregressive: %w", err)
	}
	return fit, nil
}

func (f *arFit) centered() []float64 {
	w := f.levels[len(f.levels)-1]
	out := make([]float64, len(w))
	for i, v := range w {
		out[i] = v - f.mean
	}
	return out
}

// forecast runs the recursion h steps ahead and undoes the differencing.
func (f *arFit) forecast(h int) []float64 {
	hist := f.centered()
	p := len(f.coeffs)

	out := make([]float64, h)
	for i := range out {
		var v float64
		for j := 0; j < p; j++ {
			v += f.coeffs[j] * hist[len(hist)-1-j]
		}
		hist = append(hist, v)
		out[i] = v + f.mean
	}

	for k := len(f.levels) - 2; k >= 0; k-- {
		last := f.levels[k][len(f.levels[k])-1]
		for i := range out {
			last += out[i]
			out[i] = last
		}
	}
	return out
}

// residualStdDev is the standard deviation of the in-sample one-step errors.
func (f *arFit) residualStdDev() float64 {
	c := f.centered()
	p := len(f.coeffs)
	if len(c) <= p+1 {
		return 0
	}

	res := make([]float64, 0, len(c)-p)
	for t := p; t < len(c); t++ {
		var pred float64
		for j := 0; j < p; j++ {
			pred += f.coeffs[j] * c[t-1-j]
		}
		res = append(res, c[t]-pred)
	}
	return stat.StdDev(res, nil)
}

func difference(y []float64) []float64 {
	out := make([]float64, len(y)-1)
	for i := range out {
		out[i] = y[i+1] - y[i]
	}
	return out
}

// yuleWalker estimates AR coefficients from the sample autocorrelations with
// the Levinson-Durbin recursion. A constant series gets zero coefficients.
func yuleWalker(centered []float64, p int) ([]float64, error) {
	if p == 0 {
		return nil, nil
	}
	if stat.Variance(centered, nil) < 1e-10 {
		return make([]float64, p), nil
	}

	acf := make([]float64, p+1)
	for k := range acf {
		acf[k] = autocorr(centered, k)
	}
	return levinsonDurbin(acf, p)
}

// autocorr is the lag-k sample autocorrelation of a zero-mean series.
func autocorr(c []float64, lag int) float64 {
	if lag >= len(c) {
		return 0
	}
	var c0, ck float64
	for i, v := range c {
		c0 += v * v
		if i+lag < len(c) {
			ck += v * c[i+lag]
		}
	}
	if c0 == 0 {
		return 0
	}
	return ck / c0
}

func levinsonDurbin(acf []float64, p int) ([]float64, error) {
	phi := make([]float64, p+1)
	prev := make([]float64, p+1)
	v := acf[0]

	for k := 1; k <= p; k++ {
		if v <= 0 {
			return nil, errors.New("levinson-durbin: non-positive innovation variance")
		}
		num := acf[k]
		for j := 1; j < k; j++ {
			num -= prev[j] * acf[k-j]
		}
		phi[k] = num / v
		for j := 1; j < k; j++ {
			phi[j] = prev[j] - phi[k]*prev[k-j]
		}
		v *= 1 - phi[k]*phi[k]
		copy(prev, phi)
	}

	return phi[1:], nil
}
