package gormstorage

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/scenariosim/scenariosim/internal/database"
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/internal/storage"
	"github.com/scenariosim/scenariosim/internal/storage/storagetest"
	"github.com/scenariosim/scenariosim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface check
var _ storage.Backend = (*Backend)(nil)

// newTestBackend creates a Backend on a private in-memory SQLite database.
func newTestBackend(t *testing.T) *Backend {
	t.Helper()
	mgr := database.NewManager(zerolog.Nop())
	db, err := mgr.GetSqliteDB("")
	require.NoError(t, err)

	b := New(Dependencies{DB: db, DBManager: mgr})
	require.NoError(t, b.Init())
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestBackend(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Backend {
		return newTestBackend(t)
	})
}

func TestInit_NoDB(t *testing.T) {
	b := New(Dependencies{})
	assert.Error(t, b.Init())
	assert.NoError(t, b.Close())
}

func TestCreateScenario_StoresZeroCount(t *testing.T) {
	b := newTestBackend(t)

	s := storagetest.NewScenario(t, b, "S1", 60)

	var row model.Scenario
	require.NoError(t, b.DB().First(&row, s.ID).Error)
	assert.Equal(t, 0, row.VehicleCount)
}

func TestUpdateScenario_WritesStoredCount(t *testing.T) {
	b := newTestBackend(t)
	s := storagetest.NewScenario(t, b, "S1", 60)

	require.NoError(t, b.UpdateScenario(context.Background(), s.ID, core.ScenarioUpdate{Name: "S1", Time: 60, Vehicles: 12}))

	var row model.Scenario
	require.NoError(t, b.DB().First(&row, s.ID).Error)
	assert.Equal(t, 12, row.VehicleCount, "stored column keeps the written value")

	got, err := b.GetScenario(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, 0, got.Vehicles, "reads report the derived value")
}

func TestClosedDB_StoreUnavailable(t *testing.T) {
	b := newTestBackend(t)
	require.NoError(t, b.Close())

	_, err := b.ListScenarios(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrStoreUnavailable))

	_, err = b.ListVehiclesByScenario(context.Background(), "S1")
	assert.ErrorIs(t, err, core.ErrStoreUnavailable)
}

func TestCountVehiclesByScenario_NoNames(t *testing.T) {
	b := newTestBackend(t)

	counts, err := b.CountVehiclesByScenario(context.Background())
	require.NoError(t, err)
	assert.Empty(t, counts)
}
