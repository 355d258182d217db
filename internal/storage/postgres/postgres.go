// Package postgres implements the storage.Backend interface using GORM/PostgreSQL.
// The connection is opened on Init; all queries go through the embedded GORM backend.
package postgres

import (
	"fmt"
	"log/slog"

	"github.com/scenariosim/scenariosim/internal/config"
	"github.com/scenariosim/scenariosim/internal/database"
	gormstorage "github.com/scenariosim/scenariosim/internal/storage/gorm"
	"github.com/scenariosim/scenariosim/pkg/core"

	"gorm.io/gorm"
)

// Backend implements storage.Backend against a Postgres server.
// Init must succeed before any other method is called.
type Backend struct {
	*gormstorage.Backend
	mgr  *database.Manager
	log  *slog.Logger
	open func() (*gorm.DB, error)
}

// New creates a new Postgres storage backend. No connection is made until Init.
func New(cfg config.PostgresConfig, mgr *database.Manager, logger *slog.Logger) *Backend {
	return newWithOpener(mgr, logger, func() (*gorm.DB, error) {
		return mgr.GetPostgresDB(cfg)
	})
}

func newWithOpener(mgr *database.Manager, logger *slog.Logger, open func() (*gorm.DB, error)) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{mgr: mgr, log: logger, open: open}
}

// Init connects, validates the connection and migrates the schema.
func (b *Backend) Init() error {
	db, err := b.open()
	if err != nil {
		return core.Unavailable("connect", fmt.Errorf("failed to connect to Postgres: %w", err))
	}
	if _, err := database.Ping(db); err != nil {
		return core.Unavailable("connect", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:        db,
		DBManager: b.mgr,
		Logger:    b.log,
	})
	if err := b.Backend.Init(); err != nil {
		return err
	}

	b.log.Info("Connected to Postgres")
	return nil
}

// Close closes the connection if Init opened one.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	return b.Backend.Close()
}
