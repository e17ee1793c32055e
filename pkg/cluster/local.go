package cluster

import (
	"context"
	"fmt"

	"github.com/shirou/gopsutil/v4/cpu"
)

// Local reports the logical cores of the current machine.
type Local struct{}

// EnsureInitialized is a no-op; the local machine needs no connection.
func (Local) EnsureInitialized(ctx context.Context, address string) error {
	return nil
}

// AvailableCPUCount returns the number of logical cores.
func (Local) AvailableCPUCount(ctx context.Context) (int, error) {
	n, err := cpu.CountsWithContext(ctx, true)
	if err != nil {
		return 0, fmt.Errorf("%w: count local cpus: %v", ErrUnavailable, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: no local cpus reported", ErrUnavailable)
	}
	return n, nil
}
