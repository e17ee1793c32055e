// Package models defines the forecasting-function contract and the registration
// entries the forecast engine runs per group.
//
// A model is described once, at registration time, by a Descriptor: its name,
// its extra parameters with their declared defaults, a point function and an
// optional interval function. Whether a model supports prediction intervals is
// decided by the presence of the interval function, never by inspecting the
// function at call time.
//
// Bound models (Model) carry the extra positional arguments and a display name
// derived from the arguments that differ from their defaults:
//
//	m, _ := models.New(models.SeasonalNaive(), 12)
//	m.Name() // "seasonal_naive_season_length-12"
package models

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/HatiCode/panelcast/pkg/ragged"
)

// ErrTooManyArgs is returned when more arguments are bound than the descriptor declares.
var ErrTooManyArgs = errors.New("too many model arguments")

// Input is what a forecasting function receives for one group.
type Input struct {
	// Y is the training block. Column 0 is the target, columns 1.. are
	// exogenous regressors aligned with it.
	Y ragged.Block

	// H is the forecast horizon in steps.
	H int

	// X holds the future exogenous values (H rows), or nil when there are none.
	X *ragged.Block

	// Args are the bound extra arguments, one per declared parameter.
	Args []any
}

// Series is one named output of an interval forecast, e.g. "mean" or "lo-80".
type Series struct {
	Name   string
	Values []float64
}

// PointFunc returns H point forecasts for one group.
type PointFunc func(ctx context.Context, in Input) ([]float64, error)

// IntervalFunc returns a point series followed by a lower and upper bound
// series per requested level, each of length H.
type IntervalFunc func(ctx context.Context, in Input, levels []int) ([]Series, error)

// Param is an extra positional parameter and its declared default.
type Param struct {
	Name    string
	Default any
}

// Descriptor describes a forecasting function.
type Descriptor struct {
	Name     string
	Params   []Param
	Point    PointFunc
	Interval IntervalFunc
}

// SupportsIntervals reports whether the model can produce prediction intervals.
func (d Descriptor) SupportsIntervals() bool {
	return d.Interval != nil
}

// Model is a descriptor bound to a fixed tuple of extra arguments.
// It is read-only and safe to share between goroutines.
type Model struct {
	desc Descriptor
	args []any
	name string
}

// New binds args to the descriptor's parameters in order. Parameters without an
// argument take their declared default.
func New(desc Descriptor, args ...any) (Model, error) {
	if desc.Name == "" {
		return Model{}, errors.New("model name cannot be empty")
	}
	if desc.Point == nil {
		return Model{}, fmt.Errorf("model %q: point function is required", desc.Name)
	}
	if len(args) > len(desc.Params) {
		return Model{}, fmt.Errorf("model %q: %w: got %d, accepts %d", desc.Name, ErrTooManyArgs, len(args), len(desc.Params))
	}

	bound := make([]any, len(desc.Params))
	for i, p := range desc.Params {
		if i < len(args) {
			bound[i] = args[i]
		} else {
			bound[i] = p.Default
		}
	}

	return Model{
		desc: desc,
		args: bound,
		name: DisplayName(desc, args...),
	}, nil
}

// MustNew is like New but panics on error.
func MustNew(desc Descriptor, args ...any) Model {
	m, err := New(desc, args...)
	if err != nil {
		panic(fmt.Sprintf("bind model: %v", err))
	}
	return m
}

// DisplayName returns desc.Name followed by "_<param>-<value>" for every
// argument whose value differs from that parameter's default, in order.
func DisplayName(desc Descriptor, args ...any) string {
	var changed []string
	for i, arg := range args {
		if i >= len(desc.Params) {
			break
		}
		p := desc.Params[i]
		value := fmt.Sprint(arg)
		if value == fmt.Sprint(p.Default) {
			continue
		}
		changed = append(changed, p.Name+"-"+value)
	}

	if len(changed) == 0 {
		return desc.Name
	}
	return desc.Name + "_" + strings.Join(changed, "_")
}

// Name returns the display name.
func (m Model) Name() string {
	return m.name
}

// Args returns a copy of the bound arguments.
func (m Model) Args() []any {
	out := make([]any, len(m.args))
	copy(out, m.args)
	return out
}

// SupportsIntervals reports whether the underlying descriptor has an interval function.
func (m Model) SupportsIntervals() bool {
	return m.desc.SupportsIntervals()
}

// Forecast runs the point function.
func (m Model) Forecast(ctx context.Context, y ragged.Block, h int, x *ragged.Block) ([]float64, error) {
	return m.desc.Point(ctx, Input{Y: y, H: h, X: x, Args: m.args})
}

// ForecastIntervals runs the interval function. It fails if the model has none.
func (m Model) ForecastIntervals(ctx context.Context, y ragged.Block, h int, x *ragged.Block, levels []int) ([]Series, error) {
	if m.desc.Interval == nil {
		return nil, fmt.Errorf("model %q does not support intervals", m.name)
	}
	return m.desc.Interval(ctx, Input{Y: y, H: h, X: x, Args: m.args}, levels)
}
