package cluster

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/tidwall/gjson"
)

// HTTPManager reads available CPUs from a JSON status document served by a
// cluster head node, e.g. {"available": {"CPU": 48}}.
type HTTPManager struct {
	cpuPath string
	client  *http.Client

	mu      sync.RWMutex
	address string
}

// NewHTTPManager creates a manager that extracts the CPU count at cpuPath
// (default "available.CPU").
func NewHTTPManager(cpuPath string, timeout time.Duration) *HTTPManager {
	if cpuPath == "" {
		cpuPath = "available.CPU"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &HTTPManager{
		cpuPath: cpuPath,
		client:  &http.Client{Timeout: timeout},
	}
}

// EnsureInitialized checks that the status document at address is reachable
// and remembers the address.
func (m *HTTPManager) EnsureInitialized(ctx context.Context, address string) error {
	m.mu.RLock()
	ready := m.address != ""
	m.mu.RUnlock()
	if ready {
		return nil
	}
	if address == "" {
		return fmt.Errorf("%w: status address cannot be empty", ErrUnavailable)
	}
	if _, err := m.fetch(ctx, address); err != nil {
		return err
	}

	m.mu.Lock()
	m.address = address
	m.mu.Unlock()
	return nil
}

// AvailableCPUCount fetches the status document and returns the CPU count.
func (m *HTTPManager) AvailableCPUCount(ctx context.Context) (int, error) {
	m.mu.RLock()
	address := m.address
	m.mu.RUnlock()
	if address == "" {
		return 0, fmt.Errorf("%w: not initialized", ErrUnavailable)
	}

	body, err := m.fetch(ctx, address)
	if err != nil {
		return 0, err
	}
	result := gjson.GetBytes(body, m.cpuPath)
	if !result.Exists() {
		return 0, fmt.Errorf("%w: path %q not found in status", ErrUnavailable, m.cpuPath)
	}
	n := int(result.Float())
	if n < 1 {
		return 0, fmt.Errorf("%w: no cpus available", ErrUnavailable)
	}
	return n, nil
}

func (m *HTTPManager) fetch(ctx context.Context, address string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, address, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: create request: %v", ErrUnavailable, err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: http %d from %s", ErrUnavailable, resp.StatusCode, address)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read status: %v", ErrUnavailable, err)
	}
	return body, nil
}
