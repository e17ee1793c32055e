// This file contains the Forecaster type, which runs one job per tick:
//
//	collect → engine → forecast or cross-validate → write output → store run
//
// In serve mode Run repeats the job every interval; otherwise main calls Tick once.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"
	"time"

	"github.com/HatiCode/panelcast/cmd/forecaster/metrics"
	"github.com/HatiCode/panelcast/pkg/adapters"
	"github.com/HatiCode/panelcast/pkg/forecast"
	"github.com/HatiCode/panelcast/pkg/models"
	"github.com/HatiCode/panelcast/pkg/panel"
	"github.com/HatiCode/panelcast/pkg/storage"
)

// errNoRun is reported by Ready until the first run has been stored.
var errNoRun = errors.New("no run stored yet")

// Job describes what each tick computes.
type Job struct {
	Mode      forecast.Mode
	Horizon   int
	TestSize  int
	InputSize int
	Freq      panel.Freq
	Levels    []int

	// XReg is a CSV file with future exogenous values (forecast mode only).
	XReg string

	// Output is the result file; "-" writes to stdout and "" skips writing.
	Output       string
	OutputFormat string

	// Window is the history requested from the adapter.
	Window time.Duration
}

// Forecaster runs forecast jobs against a panel source and stores the results.
type Forecaster struct {
	name       string
	adapter    adapters.Adapter
	models     []models.Model
	store      storage.Store
	job        Job
	engineOpts []forecast.Option
	logger     *slog.Logger
	metrics    *metrics.Metrics
	stdout     io.Writer

	stored   atomic.Bool
	onStored func(storage.Run)
}

// New creates a Forecaster. engineOpts are passed to every engine it builds.
func New(
	name string,
	adapter adapters.Adapter,
	ms []models.Model,
	store storage.Store,
	job Job,
	logger *slog.Logger,
	m *metrics.Metrics,
	engineOpts ...forecast.Option,
) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}

	return &Forecaster{
		name:       name,
		adapter:    adapter,
		models:     ms,
		store:      store,
		job:        job,
		engineOpts: engineOpts,
		logger:     logger,
		metrics:    m,
		stdout:     os.Stdout,
	}
}

// OnStored registers fn to be called after every stored run.
func (f *Forecaster) OnStored(fn func(storage.Run)) {
	f.onStored = fn
}

// Ready returns nil once a run has been stored.
func (f *Forecaster) Ready() error {
	if !f.stored.Load() {
		return errNoRun
	}
	return nil
}

// Run executes a job immediately and then every interval.
// Blocks until context is canceled.
func (f *Forecaster) Run(ctx context.Context, interval time.Duration) error {
	f.logger.Info("starting forecast loop", "interval", interval, "mode", f.job.Mode)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	if _, err := f.Tick(ctx); err != nil {
		f.logger.Error("initial forecast tick failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			f.logger.Info("forecast loop stopped")
			return ctx.Err()
		case <-ticker.C:
			if _, err := f.Tick(ctx); err != nil {
				f.logger.Error("forecast tick failed", "error", err)
			}
		}
	}
}

// Tick performs one job and returns the stored run.
func (f *Forecaster) Tick(ctx context.Context) (*storage.Run, error) {
	start := time.Now()
	f.logger.Debug("starting forecast tick")

	frame, collectDuration, err := f.collect(ctx)
	if err != nil {
		f.recordError("adapter", "collect_failed")
		return nil, fmt.Errorf("collect: %w", err)
	}

	opts := append([]forecast.Option{forecast.WithLogger(f.logger)}, f.engineOpts...)
	if f.metrics != nil {
		opts = append(opts, forecast.WithObserver(f.metrics))
	}
	engine, err := forecast.New(ctx, frame, f.models, f.job.Freq, opts...)
	if err != nil {
		f.recordError("engine", "build_failed")
		return nil, fmt.Errorf("build engine: %w", err)
	}

	table, computeDuration, err := f.compute(ctx, engine)
	if err != nil {
		f.recordError("engine", string(f.job.Mode)+"_failed")
		return nil, err
	}

	if err := f.writeOutput(table); err != nil {
		f.recordError("output", "write_failed")
		return nil, fmt.Errorf("write output: %w", err)
	}

	run := storage.Run{
		Name:        f.name,
		Mode:        string(f.job.Mode),
		GeneratedAt: time.Now(),
		Horizon:     f.job.Horizon,
		Freq:        f.job.Freq.String(),
		Levels:      f.job.Levels,
		Models:      engine.Models(),
		Groups:      engine.Groups(),
		Table:       table,
	}
	if err := f.store.Put(ctx, run); err != nil {
		f.recordError("store", "put_failed")
		return nil, fmt.Errorf("store: %w", err)
	}
	f.stored.Store(true)
	if f.onStored != nil {
		f.onStored(run)
	}

	if f.metrics != nil {
		f.metrics.RecordRun(f.job.Mode, engine.Workers(), engine.Groups(), table.Len(), run.GeneratedAt)
	}

	f.logger.Info("forecast tick complete",
		"run", f.name,
		"mode", f.job.Mode,
		"groups", engine.Groups(),
		"workers", engine.Workers(),
		"rows", table.Len(),
		"collect_ms", collectDuration.Milliseconds(),
		"compute_ms", computeDuration.Milliseconds(),
		"total_ms", time.Since(start).Milliseconds(),
	)

	return &run, nil
}

// collect retrieves the panel from the adapter.
func (f *Forecaster) collect(ctx context.Context) (*panel.Frame, time.Duration, error) {
	start := time.Now()

	frame, err := f.adapter.Collect(ctx, int(f.job.Window.Seconds()))
	if err != nil {
		return nil, 0, err
	}

	duration := time.Since(start)
	if f.metrics != nil {
		f.metrics.RecordCollect(duration.Seconds())
	}

	f.logger.Info("collected panel",
		"adapter", f.adapter.Name(),
		"rows", frame.Len(),
		"columns", len(frame.Columns),
		"duration_ms", duration.Milliseconds(),
	)

	return frame, duration, nil
}

// compute runs the configured mode on the engine.
func (f *Forecaster) compute(ctx context.Context, engine *forecast.Engine) (*panel.Table, time.Duration, error) {
	start := time.Now()

	var (
		table *panel.Table
		err   error
	)
	switch f.job.Mode {
	case forecast.ModeCV:
		table, err = engine.CrossValidation(ctx, f.job.Horizon, f.job.TestSize, f.job.InputSize)
		if err != nil {
			return nil, 0, fmt.Errorf("cross validation: %w", err)
		}
	default:
		var xreg *panel.Frame
		if f.job.XReg != "" {
			xreg, err = panel.LoadCSV(f.job.XReg, panel.CSVOptions{})
			if err != nil {
				return nil, 0, fmt.Errorf("load xreg: %w", err)
			}
		}
		table, err = engine.Forecast(ctx, f.job.Horizon, xreg, f.job.Levels)
		if err != nil {
			return nil, 0, fmt.Errorf("forecast: %w", err)
		}
	}

	return table, time.Since(start), nil
}

// writeOutput writes the result table to the configured file or stdout.
func (f *Forecaster) writeOutput(table *panel.Table) error {
	switch f.job.Output {
	case "":
		return nil
	case "-":
		return f.encode(f.stdout, table)
	}

	file, err := os.Create(f.job.Output)
	if err != nil {
		return err
	}
	if err := f.encode(file, table); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}

	f.logger.Debug("wrote output", "path", f.job.Output, "format", f.job.OutputFormat, "rows", table.Len())
	return nil
}

func (f *Forecaster) encode(w io.Writer, table *panel.Table) error {
	if f.job.OutputFormat == "arrow" {
		return panel.WriteArrow(w, table)
	}
	return panel.WriteCSV(w, table)
}

func (f *Forecaster) recordError(component, reason string) {
	if f.metrics != nil {
		f.metrics.RecordError(component, reason)
	}
}
