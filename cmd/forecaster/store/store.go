// Package store builds the run store selected by the forecaster configuration.
package store

import (
	"fmt"
	"log/slog"

	"github.com/HatiCode/panelcast/cmd/forecaster/config"
	"github.com/HatiCode/panelcast/pkg/storage"
)

// New returns the memory or Redis store named by cfg.Storage. Redis stores
// keep runs for cfg.RedisTTL; memory stores keep the latest run per name
// without expiry.
func New(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch cfg.Storage {
	case "redis":
		s, err := storage.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisTTL)
		if err != nil {
			return nil, fmt.Errorf("redis store: %w", err)
		}
		logger.Info("using redis storage", "addr", cfg.RedisAddr, "db", cfg.RedisDB, "ttl", cfg.RedisTTL)
		return s, nil
	case "memory", "":
		logger.Info("using in-memory storage")
		return storage.NewMemoryStore(), nil
	default:
		return nil, fmt.Errorf("unknown storage %q", cfg.Storage)
	}
}
