package forecast

import (
	"log/slog"
	"time"
)

// Mode identifies the kind of run a model took part in.
type Mode string

const (
	ModeForecast Mode = "forecast"
	ModeCV       Mode = "cv"
)

// Observer is notified around every model run.
type Observer interface {
	ModelStarted(model string, mode Mode)
	ModelFinished(model string, mode Mode, duration time.Duration, err error)
}

// LogObserver logs model runs at debug level and failures at error level.
func LogObserver(logger *slog.Logger) Observer {
	if logger == nil {
		logger = slog.Default()
	}
	return logObserver{logger: logger}
}

type logObserver struct {
	logger *slog.Logger
}

func (o logObserver) ModelStarted(model string, mode Mode) {
	o.logger.Debug("model started", "model", model, "mode", mode)
}

func (o logObserver) ModelFinished(model string, mode Mode, duration time.Duration, err error) {
	if err != nil {
		o.logger.Error("model failed",
			"model", model,
			"mode", mode,
			"duration_ms", duration.Milliseconds(),
			"error", err,
		)
		return
	}
	o.logger.Debug("model finished",
		"model", model,
		"mode", mode,
		"duration_ms", duration.Milliseconds(),
	)
}

// Observers fans notifications out to every non-nil observer in order.
func Observers(obs ...Observer) Observer {
	out := make(multiObserver, 0, len(obs))
	for _, o := range obs {
		if o != nil {
			out = append(out, o)
		}
	}
	return out
}

type multiObserver []Observer

func (m multiObserver) ModelStarted(model string, mode Mode) {
	for _, o := range m {
		o.ModelStarted(model, mode)
	}
}

func (m multiObserver) ModelFinished(model string, mode Mode, duration time.Duration, err error) {
	for _, o := range m {
		o.ModelFinished(model, mode, duration, err)
	}
}
