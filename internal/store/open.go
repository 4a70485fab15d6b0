package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/besides-508-potenday/na-T-na-AI/internal/config"
)

// Open builds the configured backend and loads its sessions into a Registry.
func Open(ctx context.Context, cfg config.StoreConfig, logger *slog.Logger) (*Registry, error) {
	var (
		backend Backend
		err     error
	)
	switch cfg.Driver {
	case "sqlite":
		backend, err = NewSQLiteBackend(cfg.DBPath)
	case "file":
		backend, err = NewFileBackend(cfg.Dir)
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}

	reg, err := NewRegistry(ctx, backend, logger)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return reg, nil
}
