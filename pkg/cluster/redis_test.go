//go:build integration

package cluster

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/redis"
)

func setupRedis(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	container, err := redis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	endpoint, err := container.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis endpoint: %v", err)
	}
	return strings.TrimPrefix(endpoint, "redis://")
}

func TestRedisManager_RegisterAndCount(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	m := NewRedisManager("", 0)
	defer m.Close()
	if err := m.EnsureInitialized(ctx, addr); err != nil {
		t.Fatalf("EnsureInitialized() error = %v", err)
	}
	if err := m.EnsureInitialized(ctx, addr); err != nil {
		t.Fatalf("second EnsureInitialized() error = %v", err)
	}

	if _, err := m.AvailableCPUCount(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AvailableCPUCount() with no nodes error = %v, want ErrUnavailable", err)
	}

	if err := m.Register(ctx, "node-a", 8, time.Minute); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(ctx, "node-b", 4, time.Minute); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	got, err := m.AvailableCPUCount(ctx)
	if err != nil {
		t.Fatalf("AvailableCPUCount() error = %v", err)
	}
	if got != 12 {
		t.Errorf("AvailableCPUCount() = %d, want 12", got)
	}
}

func TestRedisManager_RegistrationExpires(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	m := NewRedisManager("", 0)
	defer m.Close()
	if err := m.EnsureInitialized(ctx, addr); err != nil {
		t.Fatalf("EnsureInitialized() error = %v", err)
	}

	if err := m.Register(ctx, "short", 2, time.Second); err != nil {
		t.Fatalf("Register() error = %v", err)
	}
	if err := m.Register(ctx, "long", 3, time.Minute); err != nil {
		t.Fatalf("Register() error = %v", err)
	}

	time.Sleep(1500 * time.Millisecond)

	got, err := m.AvailableCPUCount(ctx)
	if err != nil {
		t.Fatalf("AvailableCPUCount() error = %v", err)
	}
	if got != 3 {
		t.Errorf("AvailableCPUCount() = %d, want 3", got)
	}
}

func TestRedisManager_JoinHeartbeatAndLeave(t *testing.T) {
	addr := setupRedis(t)
	ctx := context.Background()

	m := NewRedisManager("", 0)
	defer m.Close()
	if err := m.EnsureInitialized(ctx, addr); err != nil {
		t.Fatalf("EnsureInitialized() error = %v", err)
	}

	// registrations live 1.5s; only the heartbeat keeps the node past that
	leave, err := m.Join(ctx, "worker", 3, 500*time.Millisecond, nil)
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	time.Sleep(2500 * time.Millisecond)

	got, err := m.AvailableCPUCount(ctx)
	if err != nil {
		t.Fatalf("AvailableCPUCount() after heartbeats error = %v", err)
	}
	if got != 3 {
		t.Errorf("AvailableCPUCount() = %d, want 3", got)
	}

	leave()
	leave()
	if _, err := m.AvailableCPUCount(ctx); !errors.Is(err, ErrUnavailable) {
		t.Errorf("AvailableCPUCount() after leave error = %v, want ErrUnavailable", err)
	}
}

func TestRedisManager_InvalidAddress(t *testing.T) {
	m := NewRedisManager("", 0)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := m.EnsureInitialized(ctx, "127.0.0.1:1"); !errors.Is(err, ErrUnavailable) {
		t.Errorf("EnsureInitialized() error = %v, want ErrUnavailable", err)
	}
}
