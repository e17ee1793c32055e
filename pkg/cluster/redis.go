package cluster

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	nodeKeyPrefix = "panelcast:cluster:node:"

	// heartbeatTTLFactor is how many heartbeat intervals a registration outlives.
	heartbeatTTLFactor = 3
)

// RedisManager sums the CPU counts that worker nodes register under
// "panelcast:cluster:node:{name}". Registrations expire with their TTL, so a
// node that stops heartbeating drops out of the total.
type RedisManager struct {
	password string
	db       int

	mu     sync.RWMutex
	client *redis.Client
}

// NewRedisManager creates an unconnected manager; EnsureInitialized connects it.
func NewRedisManager(password string, db int) *RedisManager {
	return &RedisManager{password: password, db: db}
}

// EnsureInitialized connects to the Redis server at address and pings it.
// Calling it again once connected does nothing.
func (m *RedisManager) EnsureInitialized(ctx context.Context, address string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client != nil {
		return nil
	}
	if address == "" {
		return fmt.Errorf("%w: redis address cannot be empty", ErrUnavailable)
	}

	client := redis.NewClient(&redis.Options{
		Addr:         address,
		Password:     m.password,
		DB:           m.db,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return fmt.Errorf("%w: connect to redis at %s: %v", ErrUnavailable, address, err)
	}

	m.client = client
	return nil
}

// Register advertises cpus for node until ttl elapses.
func (m *RedisManager) Register(ctx context.Context, node string, cpus int, ttl time.Duration) error {
	client, err := m.conn()
	if err != nil {
		return err
	}
	if node == "" {
		return errors.New("node name required")
	}
	if cpus < 1 {
		return fmt.Errorf("node %s: cpu count must be >= 1, got %d", node, cpus)
	}
	if err := client.Set(ctx, nodeKeyPrefix+node, cpus, ttl).Err(); err != nil {
		return fmt.Errorf("%w: register node %s: %v", ErrUnavailable, node, err)
	}
	return nil
}

// Deregister removes the registration of node, if any.
func (m *RedisManager) Deregister(ctx context.Context, node string) error {
	client, err := m.conn()
	if err != nil {
		return err
	}
	if err := client.Del(ctx, nodeKeyPrefix+node).Err(); err != nil {
		return fmt.Errorf("%w: deregister node %s: %v", ErrUnavailable, node, err)
	}
	return nil
}

// Join registers node with cpus and refreshes the registration every interval
// until leave is called or ctx is done. A registration lives for three
// intervals, so a single missed refresh does not drop the node.
//
// leave stops the heartbeat and deregisters the node. It is safe to call
// multiple times.
func (m *RedisManager) Join(ctx context.Context, node string, cpus int, interval time.Duration, logger *slog.Logger) (leave func(), err error) {
	if interval <= 0 {
		return nil, fmt.Errorf("heartbeat interval must be positive, got %s", interval)
	}
	if logger == nil {
		logger = slog.Default()
	}

	ttl := heartbeatTTLFactor * interval
	if err := m.Register(ctx, node, cpus, ttl); err != nil {
		return nil, err
	}
	logger.Info("joined cluster", "node", node, "cpus", cpus, "ttl", ttl)

	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := m.Register(ctx, node, cpus, ttl); err != nil && ctx.Err() == nil {
					logger.Warn("cluster heartbeat failed", "node", node, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	leave = func() {
		once.Do(func() {
			cancel()
			<-done

			dctx, dcancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer dcancel()
			if err := m.Deregister(dctx, node); err != nil {
				logger.Warn("failed to leave cluster", "node", node, "error", err)
				return
			}
			logger.Info("left cluster", "node", node)
		})
	}
	return leave, nil
}

// AvailableCPUCount returns the sum of CPUs over all live registrations.
func (m *RedisManager) AvailableCPUCount(ctx context.Context) (int, error) {
	client, err := m.conn()
	if err != nil {
		return 0, err
	}

	var keys []string
	iter := client.Scan(ctx, 0, nodeKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("%w: scan nodes: %v", ErrUnavailable, err)
	}
	if len(keys) == 0 {
		return 0, fmt.Errorf("%w: no nodes registered", ErrUnavailable)
	}

	values, err := client.MGet(ctx, keys...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: read nodes: %v", ErrUnavailable, err)
	}

	total := 0
	for i, v := range values {
		s, ok := v.(string)
		if !ok {
			// expired between SCAN and MGET
			continue
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return 0, fmt.Errorf("node key %s: invalid cpu count %q", keys[i], s)
		}
		total += n
	}
	if total < 1 {
		return 0, fmt.Errorf("%w: no cpus available", ErrUnavailable)
	}
	return total, nil
}

// Close releases the Redis connection. It is safe to call multiple times.
func (m *RedisManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.client == nil {
		return nil
	}
	err := m.client.Close()
	m.client = nil
	return err
}

func (m *RedisManager) conn() (*redis.Client, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.client == nil {
		return nil, fmt.Errorf("%w: not initialized", ErrUnavailable)
	}
	return m.client, nil
}
