// Package cluster sizes parallel work by asking a resource manager how many
// CPUs are available. Local counts the cores of this machine; RedisManager and
// HTTPManager ask a shared registry or a cluster head node.
package cluster

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnavailable wraps any failure to reach or query a resource manager.
	ErrUnavailable = errors.New("resource manager unavailable")

	// ErrNoManager is returned when a cluster address is given without a manager.
	ErrNoManager = errors.New("cluster address given without a resource manager")
)

// Manager reports the compute capacity available for forecasting work.
type Manager interface {
	// EnsureInitialized connects to the manager at address if not already connected.
	EnsureInitialized(ctx context.Context, address string) error

	// AvailableCPUCount returns the number of CPUs that work can be spread over.
	AvailableCPUCount(ctx context.Context) (int, error)
}

// Options configures the managers built by New.
type Options struct {
	RedisPassword string
	RedisDB       int

	// CPUPath is the gjson path of the CPU count in the HTTP status document.
	CPUPath string

	Timeout time.Duration
}

// New creates a manager by kind: "local", "redis" or "http".
func New(kind string, opts Options) (Manager, error) {
	switch kind {
	case "local":
		return Local{}, nil
	case "redis":
		return NewRedisManager(opts.RedisPassword, opts.RedisDB), nil
	case "http":
		return NewHTTPManager(opts.CPUPath, opts.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown cluster manager kind: %s", kind)
	}
}
