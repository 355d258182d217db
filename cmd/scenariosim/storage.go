package main

import (
	"fmt"
	"log/slog"

	"github.com/scenariosim/scenariosim/internal/config"
	"github.com/scenariosim/scenariosim/internal/database"
	"github.com/scenariosim/scenariosim/internal/storage"
	"github.com/scenariosim/scenariosim/internal/storage/memory"
	pgstorage "github.com/scenariosim/scenariosim/internal/storage/postgres"
	sqlitestorage "github.com/scenariosim/scenariosim/internal/storage/sqlite"
)

// openStorage creates and initializes the backend selected by storage.type.
func openStorage(cfg config.StorageConfig, dbm *database.Manager, logger *slog.Logger) (storage.Backend, error) {
	backend, err := createStorageBackend(cfg, dbm, logger)
	if err != nil {
		return nil, err
	}
	if err := backend.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize %s storage: %w", cfg.Type, err)
	}
	return backend, nil
}

func createStorageBackend(cfg config.StorageConfig, dbm *database.Manager, logger *slog.Logger) (storage.Backend, error) {
	switch cfg.Type {
	case "postgres":
		logger.Info("Postgres storage backend selected", "host", cfg.Postgres.Host, "database", cfg.Postgres.Database)
		return pgstorage.New(cfg.Postgres, dbm, logger), nil

	case "sqlite":
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			Path:         cfg.SQLite.Path,
			DumpInterval: cfg.SQLite.DumpInterval,
			DumpPath:     cfg.SQLite.DumpPath,
		}, dbm, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		logger.Info("SQLite storage backend selected", "path", cfg.SQLite.Path, "dumpPath", cfg.SQLite.DumpPath)
		return backend, nil

	case "memory", "":
		logger.Info("Memory storage backend selected")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
