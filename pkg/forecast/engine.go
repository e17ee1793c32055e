// Package forecast fits a set of models to every series of a panel and
// assembles the results into tables with reconstructed timestamps.
//
// An Engine is built once per panel. It converts the input frame into a
// ragged store, decides how many workers to use and then runs forecasts or
// rolling-window cross-validation for each model. With more than one worker
// the store is split into contiguous chunks of groups, each chunk runs on its
// own goroutine and the results are concatenated in chunk order, so the output
// does not depend on the worker count.
package forecast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/HatiCode/panelcast/pkg/cluster"
	"github.com/HatiCode/panelcast/pkg/kernel"
	"github.com/HatiCode/panelcast/pkg/models"
	"github.com/HatiCode/panelcast/pkg/panel"
	"github.com/HatiCode/panelcast/pkg/ragged"
	"github.com/HatiCode/panelcast/pkg/workers"
)

var (
	// ErrDuplicateModel is returned when two models share a display name.
	ErrDuplicateModel = errors.New("duplicate model name")

	// ErrNoModels is returned when an engine is built without models.
	ErrNoModels = errors.New("at least one model is required")
)

// Option configures an Engine.
type Option func(*Engine)

// WithJobs sets the worker count. Zero or negative uses every local core.
func WithJobs(n int) Option {
	return func(e *Engine) { e.jobs = n }
}

// WithCluster sizes workers from a resource manager instead of the job count.
func WithCluster(address string, manager cluster.Manager) Option {
	return func(e *Engine) {
		e.clusterAddress = address
		e.manager = manager
	}
}

// WithLogger sets the logger. nil keeps slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithObserver adds an observer notified around every model run.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observers = append(e.observers, o)
		}
	}
}

// Engine runs models over a fixed panel. It is safe for concurrent use once built.
type Engine struct {
	store      *ragged.Store
	columns    []string
	ids        []string
	last       []panel.Stamp
	sharedLast bool
	freq       panel.Freq
	models     []models.Model

	jobs           int
	clusterAddress string
	manager        cluster.Manager
	workers        int

	logger    *slog.Logger
	observers []Observer
	observer  Observer
}

// New builds the store from frame and sizes the worker pool.
func New(ctx context.Context, frame *panel.Frame, ms []models.Model, freq panel.Freq, opts ...Option) (*Engine, error) {
	if len(ms) == 0 {
		return nil, ErrNoModels
	}
	if freq.IsZero() {
		return nil, fmt.Errorf("%w: frequency is required", panel.ErrUnsupportedFreq)
	}
	seen := make(map[string]bool, len(ms))
	for _, m := range ms {
		if seen[m.Name()] {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, m.Name())
		}
		seen[m.Name()] = true
	}

	e := &Engine{
		freq:   freq,
		models: slices.Clone(ms),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.observer = Observers(append([]Observer{LogObserver(e.logger)}, e.observers...)...)

	built, err := panel.Build(frame)
	if err != nil {
		return nil, fmt.Errorf("build store: %w", err)
	}
	e.store = built.Store
	e.columns = slices.Clone(frame.Columns)
	e.ids = built.IDs
	e.last = built.Last
	e.sharedLast = built.SharedLast()

	available, err := e.availableCPUs(ctx)
	if err != nil {
		return nil, err
	}
	e.workers = max(min(e.store.NGroups(), available), 1)

	e.logger.Info("engine ready",
		"groups", e.store.NGroups(),
		"rows", e.store.Rows(),
		"models", len(e.models),
		"workers", e.workers,
		"freq", freq.String(),
	)
	return e, nil
}

// availableCPUs asks the resource manager when one is configured, otherwise
// uses the job count or the local core count.
func (e *Engine) availableCPUs(ctx context.Context) (int, error) {
	if e.manager == nil {
		if e.clusterAddress != "" {
			return 0, cluster.ErrNoManager
		}
		if e.jobs > 0 {
			return e.jobs, nil
		}
		return cluster.Local{}.AvailableCPUCount(ctx)
	}

	if err := e.manager.EnsureInitialized(ctx, e.clusterAddress); err != nil {
		return 0, unavailable(err)
	}
	n, err := e.manager.AvailableCPUCount(ctx)
	if err != nil {
		return 0, unavailable(err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: manager reported %d cpus", cluster.ErrUnavailable, n)
	}
	return n, nil
}

func unavailable(err error) error {
	if errors.Is(err, cluster.ErrUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", cluster.ErrUnavailable, err)
}

// Workers returns the number of workers runs are spread over.
func (e *Engine) Workers() int {
	return e.workers
}

// Groups returns the number of series.
func (e *Engine) Groups() int {
	return e.store.NGroups()
}

// IDs returns the group ids in store order.
func (e *Engine) IDs() []string {
	return slices.Clone(e.ids)
}

// Models returns the display names of the engine's models in order.
func (e *Engine) Models() []string {
	names := make([]string, len(e.models))
	for i, m := range e.models {
		names[i] = m.Name()
	}
	return names
}

// Forecast predicts h steps for every group with every model.
//
// xreg, when non-nil, holds the future exogenous values: h rows per group
// with the same exogenous columns the training frame carried after its
// target. levels requests prediction intervals from models that support them.
// The result has one row per (group, step) and one column per point model or
// "<model>_<series>" per interval series.
func (e *Engine) Forecast(ctx context.Context, h int, xreg *panel.Frame, levels []int) (*panel.Table, error) {
	if h < 1 {
		return nil, fmt.Errorf("%w: horizon must be >= 1, got %d", kernel.ErrShape, h)
	}
	for _, l := range levels {
		if l <= 0 || l >= 100 {
			return nil, fmt.Errorf("invalid level %d: must be in (0, 100)", l)
		}
	}

	xstore, err := e.exogenous(h, xreg)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	groups := e.store.NGroups()
	table := &panel.Table{
		IDs: repeatIDs(e.ids, h),
		DS:  e.forecastStamps(h),
	}

	var blocks []*kernel.Forecasts
	for _, m := range e.models {
		fc, err := e.forecastModel(ctx, m, h, xstore, levels)
		if err != nil {
			return nil, err
		}
		if fc.Names == nil {
			table.Columns = append(table.Columns, m.Name())
		} else {
			for _, n := range fc.Names {
				table.Columns = append(table.Columns, m.Name()+"_"+n)
			}
		}
		blocks = append(blocks, fc)
	}

	table.Values = interleave(blocks, groups*h)

	e.logger.Info("forecast complete",
		"groups", groups,
		"horizon", h,
		"models", len(e.models),
		"columns", len(table.Columns),
		"workers", e.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

// exogenous validates the future regressors against the training store and
// converts them to a store aligned with its groups.
func (e *Engine) exogenous(h int, xreg *panel.Frame) (*ragged.Store, error) {
	if xreg == nil {
		return nil, nil
	}
	groups := e.store.NGroups()
	width := len(xreg.Columns) + 1
	if xreg.Len() != h*groups || width != e.store.Cols() {
		return nil, fmt.Errorf("%w: expected exogenous shape (%d, %d), got (%d, %d)",
			panel.ErrShape, h*groups, e.store.Cols(), xreg.Len(), width)
	}

	if !slices.Equal(xreg.Columns, e.columns[1:]) {
		return nil, fmt.Errorf("%w: exogenous columns %v do not match the training regressors %v",
			panel.ErrShape, xreg.Columns, e.columns[1:])
	}

	built, err := panel.Build(xreg)
	if err != nil {
		return nil, fmt.Errorf("build exogenous store: %w", err)
	}
	if !slices.Equal(built.IDs, e.ids) {
		return nil, fmt.Errorf("%w: exogenous ids do not match the training ids", panel.ErrShape)
	}
	offsets := built.Store.Offsets()
	for i, id := range built.IDs {
		if n := offsets[i+1] - offsets[i]; n != h {
			return nil, fmt.Errorf("%w: exogenous group %s has %d rows, want %d", panel.ErrShape, id, n, h)
		}
	}
	return built.Store, nil
}

func (e *Engine) forecastModel(ctx context.Context, m models.Model, h int, xstore *ragged.Store, levels []int) (*kernel.Forecasts, error) {
	start := time.Now()
	e.observer.ModelStarted(m.Name(), ModeForecast)

	fc, err := e.runForecast(ctx, m, h, xstore, levels)
	e.observer.ModelFinished(m.Name(), ModeForecast, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("forecast %s: %w", m.Name(), err)
	}
	return fc, nil
}

type forecastChunk struct {
	y *ragged.Store
	x *ragged.Store
}

func (e *Engine) runForecast(ctx context.Context, m models.Model, h int, xstore *ragged.Store, levels []int) (*kernel.Forecasts, error) {
	if e.workers == 1 {
		return kernel.ComputeForecasts(ctx, e.store, h, m, xstore, levels)
	}

	ys := e.store.Split(e.workers)
	chunks := make([]forecastChunk, len(ys))
	var xs []*ragged.Store
	if xstore != nil {
		xs = xstore.Split(e.workers)
	}
	for i, y := range ys {
		chunks[i].y = y
		if xs != nil {
			chunks[i].x = xs[i]
		}
	}

	parts, err := workers.Map(ctx, e.workers, chunks, func(ctx context.Context, c forecastChunk) (*kernel.Forecasts, error) {
		return kernel.ComputeForecasts(ctx, c.y, h, m, c.x, levels)
	})
	if err != nil {
		return nil, err
	}

	out := &kernel.Forecasts{Cols: parts[0].Cols, Names: parts[0].Names}
	for i, p := range parts {
		values, err := alignColumns(p, out.Names)
		if err != nil {
			return nil, fmt.Errorf("%w: chunk %d returned series %v, chunk 0 returned %v",
				err, i, p.Names, out.Names)
		}
		out.Values = append(out.Values, values...)
	}
	return out, nil
}

// alignColumns returns p's values with its interval columns reordered to
// names. Chunks must return the same set of series; the order may differ, as
// it may between groups of a single chunk.
func alignColumns(p *kernel.Forecasts, names []string) ([]float32, error) {
	if slices.Equal(p.Names, names) {
		return p.Values, nil
	}
	if len(p.Names) != len(names) {
		return nil, kernel.ErrInconsistentArity
	}

	pos := make(map[string]int, len(p.Names))
	for j, n := range p.Names {
		pos[n] = j
	}
	src := make([]int, len(names))
	for j, n := range names {
		k, ok := pos[n]
		if !ok {
			return nil, kernel.ErrInconsistentArity
		}
		src[j] = k
	}

	cols := p.Cols
	out := make([]float32, len(p.Values))
	for r := 0; r < p.Rows(); r++ {
		for j, k := range src {
			out[r*cols+j] = p.Values[r*cols+k]
		}
	}
	return out, nil
}

// CrossValidation backtests every model with testSize-h+1 windows per group,
// anchored at each group's last observation. inputSize > 0 limits training to
// the most recent inputSize rows. The result has one row per (group, window,
// step) with the observed value in column "y" followed by one column per model.
func (e *Engine) CrossValidation(ctx context.Context, h, testSize, inputSize int) (*panel.Table, error) {
	if h < 1 || testSize < h {
		return nil, fmt.Errorf("%w: need test_size >= h >= 1, got h=%d test_size=%d", kernel.ErrShape, h, testSize)
	}

	start := time.Now()
	groups := e.store.NGroups()
	windows := kernel.Windows(testSize, h)
	rows := groups * windows * h

	ds, cutoffs := e.cvStamps(h, testSize)
	table := &panel.Table{
		Columns: []string{"y"},
		IDs:     repeatIDs(e.ids, windows*h),
		DS:      ds,
		Cutoffs: cutoffs,
	}

	var blocks []*kernel.Forecasts
	for i, m := range e.models {
		cv, err := e.crossValidateModel(ctx, m, h, testSize, inputSize)
		if err != nil {
			return nil, err
		}
		if i == 0 {
			blocks = append(blocks, &kernel.Forecasts{Values: cv.Actuals, Cols: 1})
		}
		blocks = append(blocks, &kernel.Forecasts{Values: cv.Preds, Cols: 1})
		table.Columns = append(table.Columns, m.Name())
	}

	table.Values = interleave(blocks, rows)

	e.logger.Info("cross validation complete",
		"groups", groups,
		"horizon", h,
		"test_size", testSize,
		"windows", windows,
		"models", len(e.models),
		"workers", e.workers,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return table, nil
}

func (e *Engine) crossValidateModel(ctx context.Context, m models.Model, h, testSize, inputSize int) (*kernel.CV, error) {
	start := time.Now()
	e.observer.ModelStarted(m.Name(), ModeCV)

	cv, err := e.runCV(ctx, m, h, testSize, inputSize)
	e.observer.ModelFinished(m.Name(), ModeCV, time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("cross validation %s: %w", m.Name(), err)
	}
	return cv, nil
}

func (e *Engine) runCV(ctx context.Context, m models.Model, h, testSize, inputSize int) (*kernel.CV, error) {
	if e.workers == 1 {
		return kernel.ComputeCV(ctx, e.store, h, testSize, m, inputSize)
	}

	parts, err := workers.Map(ctx, e.workers, e.store.Split(e.workers), func(ctx context.Context, s *ragged.Store) (*kernel.CV, error) {
		return kernel.ComputeCV(ctx, s, h, testSize, m, inputSize)
	})
	if err != nil {
		return nil, err
	}

	out := &kernel.CV{Windows: parts[0].Windows, H: parts[0].H}
	for _, p := range parts {
		out.Preds = append(out.Preds, p.Preds...)
		out.Actuals = append(out.Actuals, p.Actuals...)
		out.Groups += p.Groups
	}
	return out, nil
}

// interleave merges per-model column blocks of the same row count into one
// row-major matrix.
func interleave(blocks []*kernel.Forecasts, rows int) []float32 {
	width := 0
	for _, b := range blocks {
		width += b.Cols
	}

	out := make([]float32, rows*width)
	offset := 0
	for _, b := range blocks {
		for r := 0; r < rows; r++ {
			copy(out[r*width+offset:r*width+offset+b.Cols], b.Values[r*b.Cols:(r+1)*b.Cols])
		}
		offset += b.Cols
	}
	return out
}
