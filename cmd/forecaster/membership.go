package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/HatiCode/panelcast/cmd/forecaster/config"
	"github.com/HatiCode/panelcast/pkg/cluster"
)

// joinCluster advertises the cores of this machine in a redis cluster
// registry and keeps the registration alive every interval, so forecasters
// sharing the registry size their pools from the combined capacity.
//
// The returned leave deregisters the node and closes the manager. For other
// managers joinCluster only arranges the close.
func joinCluster(ctx context.Context, mgr cluster.Manager, cfg *config.Config, logger *slog.Logger) (leave func(), err error) {
	release := func() {
		closer, ok := mgr.(interface{ Close() error })
		if !ok {
			return
		}
		if err := closer.Close(); err != nil {
			logger.Error("failed to close cluster manager", "error", err)
		}
	}

	rm, ok := mgr.(*cluster.RedisManager)
	if !ok {
		return release, nil
	}

	if err := rm.EnsureInitialized(ctx, cfg.ClusterAddress); err != nil {
		release()
		return nil, err
	}
	cpus, err := cluster.Local{}.AvailableCPUCount(ctx)
	if err != nil {
		release()
		return nil, err
	}
	stop, err := rm.Join(ctx, nodeName(cfg), cpus, cfg.Interval, logger)
	if err != nil {
		release()
		return nil, err
	}

	return func() {
		stop()
		release()
	}, nil
}

// nodeName is the configured node name, else the hostname, else the run name.
func nodeName(cfg *config.Config) string {
	if cfg.ClusterNode != "" {
		return cfg.ClusterNode
	}
	if host, err := os.Hostname(); err == nil && host != "" {
		return host
	}
	return cfg.RunName
}
