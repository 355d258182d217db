// Package sqlitestorage implements the storage.Backend interface using SQLite.
// It wraps the GORM backend via composition. The only SQLite-specific concerns are
// opening the database (in-memory unless a file path is configured) and, for the
// in-memory case, a periodic disk dump via VACUUM INTO.
package sqlitestorage

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/scenariosim/scenariosim/internal/database"
	gormstorage "github.com/scenariosim/scenariosim/internal/storage/gorm"

	"gorm.io/gorm"
)

// Config holds configuration for the SQLite storage backend.
type Config struct {
	Path         string        // file database; empty means in-memory
	DumpInterval time.Duration // only used in-memory
	DumpPath     string        // Path for periodic VACUUM INTO dumps
}

// Backend wraps the GORM backend for SQLite-specific behavior.
type Backend struct {
	*gormstorage.Backend
	db       *gorm.DB
	cfg      Config
	mgr      *database.Manager
	log      *slog.Logger
	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a new SQLite storage backend.
func New(cfg Config, mgr *database.Manager, logger *slog.Logger) (*Backend, error) {
	db, err := mgr.GetSqliteDB(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite DB: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	gormBackend := gormstorage.New(gormstorage.Dependencies{
		DB:        db,
		DBManager: mgr,
		Logger:    logger,
	})

	return &Backend{
		Backend:  gormBackend,
		db:       db,
		cfg:      cfg,
		mgr:      mgr,
		log:      logger,
		stopChan: make(chan struct{}),
	}, nil
}

// Init initializes the embedded GORM backend and starts the dump goroutine.
func (b *Backend) Init() error {
	if err := b.Backend.Init(); err != nil {
		return err
	}

	if b.cfg.Path == "" && b.cfg.DumpPath != "" && b.cfg.DumpInterval > 0 {
		b.wg.Add(1)
		go b.dumpLoop()
	}

	return nil
}

// Close stops the dump goroutine, writes a final dump and closes the embedded GORM backend.
func (b *Backend) Close() error {
	b.stopOnce.Do(func() { close(b.stopChan) })
	b.wg.Wait()

	if b.cfg.Path == "" && b.cfg.DumpPath != "" {
		if err := b.Dump(b.cfg.DumpPath); err != nil {
			b.log.Error("Final dump failed", "error", err)
		}
	}
	return b.Backend.Close()
}

// Dump writes a point-in-time copy of the database to path.
func (b *Backend) Dump(path string) error {
	return b.mgr.DumpMemoryDBToDisk(b.db, path)
}

// dumpLoop periodically dumps the in-memory SQLite database to disk via VACUUM INTO.
// VACUUM INTO creates a point-in-time snapshot, so no pause mechanism is needed.
func (b *Backend) dumpLoop() {
	defer b.wg.Done()
	ticker := time.NewTicker(b.cfg.DumpInterval)
	defer ticker.Stop()

	for {
		select {
		case <-b.stopChan:
			return
		case <-ticker.C:
			start := time.Now()
			if err := b.Dump(b.cfg.DumpPath); err != nil {
				b.log.Error("Error dumping to disk", "function", "sqlite:dumpLoop", "error", err)
			} else {
				b.log.Debug("Dumped to disk", "function", "sqlite:dumpLoop", "duration", time.Since(start))
			}
		}
	}
}
