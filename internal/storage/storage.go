// Package storage selects a message store by configured driver.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dkeye/Chat/internal/config"
	"github.com/dkeye/Chat/internal/core"
	"github.com/dkeye/Chat/internal/storage/memory"
	"github.com/dkeye/Chat/internal/storage/postgres"
	"github.com/dkeye/Chat/internal/storage/sqlite"
	"github.com/rs/zerolog/log"
)

// Open returns the store for cfg.Driver and a function releasing it.
func Open(ctx context.Context, cfg config.Storage) (core.Store, func(), error) {
	switch cfg.Driver {
	case "", "memory":
		log.Warn().Str("module", "storage").Msg("using in-memory store, messages are lost on restart")
		return memory.New(), func() {}, nil
	case "sqlite":
		if dir := filepath.Dir(cfg.SQLitePath); dir != "" {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, nil, fmt.Errorf("create sqlite dir: %w", err)
			}
		}
		s, err := sqlite.Open(ctx, cfg.SQLitePath, cfg.AppendRetries)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("module", "storage").Str("path", cfg.SQLitePath).Msg("sqlite store ready")
		return s, func() {
			if err := s.Close(); err != nil {
				log.Error().Err(err).Str("module", "storage").Msg("close sqlite")
			}
		}, nil
	case "postgres":
		s, err := postgres.NewStore(ctx, cfg.DatabaseURL, cfg.AppendRetries)
		if err != nil {
			return nil, nil, err
		}
		log.Info().Str("module", "storage").Msg("postgres store ready")
		return s, s.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}
