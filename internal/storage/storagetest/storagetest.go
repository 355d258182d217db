// Package storagetest holds the behavioral suite every storage.Backend must pass.
package storagetest

import (
	"context"
	"testing"

	"github.com/scenariosim/scenariosim/internal/storage"
	"github.com/scenariosim/scenariosim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, initialized backend. It should register its own cleanup.
type Factory func(t *testing.T) storage.Backend

func f(v float64) *float64 { return &v }

// NewScenario creates a scenario or fails the test.
func NewScenario(t *testing.T, b storage.Backend, name string, time float64) core.Scenario {
	t.Helper()
	s, err := b.CreateScenario(context.Background(), core.ScenarioInput{Name: name, Time: f(time)})
	require.NoError(t, err)
	return s
}

// NewVehicle creates a vehicle or fails the test.
func NewVehicle(t *testing.T, b storage.Backend, scenario, name string, speed, x, y float64, dir core.Direction) core.Vehicle {
	t.Helper()
	v, err := b.CreateVehicle(context.Background(), core.VehicleInput{
		Scenario:  scenario,
		Name:      name,
		Speed:     f(speed),
		PositionX: f(x),
		PositionY: f(y),
		Direction: dir,
	})
	require.NoError(t, err)
	return v
}

// Run executes the suite against backends produced by newBackend.
func Run(t *testing.T, newBackend Factory) {
	ctx := context.Background()

	t.Run("CreateScenario_AssignsIDAndZeroCount", func(t *testing.T) {
		b := newBackend(t)

		s1 := NewScenario(t, b, "S1", 60)
		s2 := NewScenario(t, b, "S2", 30)

		assert.NotZero(t, s1.ID)
		assert.NotEqual(t, s1.ID, s2.ID)
		assert.Equal(t, "S1", s1.Name)
		assert.Equal(t, 60.0, s1.Time)
		assert.Equal(t, 0, s1.Vehicles)
	})

	t.Run("CreateScenario_Validation", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.CreateScenario(ctx, core.ScenarioInput{Time: f(60)})
		assert.ErrorIs(t, err, core.ErrValidation)

		_, err = b.CreateScenario(ctx, core.ScenarioInput{Name: "S1"})
		assert.ErrorIs(t, err, core.ErrValidation)

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		assert.Empty(t, list, "nothing written on validation failure")
	})

	t.Run("CreateScenario_NamesNotUnique", func(t *testing.T) {
		b := newBackend(t)

		NewScenario(t, b, "dup", 1)
		NewScenario(t, b, "dup", 2)

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		assert.Len(t, list, 2)
	})

	t.Run("ListScenarios_StoreOrder", func(t *testing.T) {
		b := newBackend(t)

		a := NewScenario(t, b, "A", 1)
		c := NewScenario(t, b, "C", 3)
		bb := NewScenario(t, b, "B", 2)

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, []uint{a.ID, c.ID, bb.ID}, []uint{list[0].ID, list[1].ID, list[2].ID})
	})

	t.Run("GetScenario", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		NewVehicle(t, b, "S1", "V1", 1, 0, 0, core.DirectionTowards)

		got, err := b.GetScenario(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "S1", got.Name)
		assert.Equal(t, 1, got.Vehicles)

		_, err = b.GetScenario(ctx, s.ID+100)
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("UpdateScenario", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		require.NoError(t, b.UpdateScenario(ctx, s.ID, core.ScenarioUpdate{Name: "S1b", Time: 90, Vehicles: 0}))

		got, err := b.GetScenario(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, "S1b", got.Name)
		assert.Equal(t, 90.0, got.Time)
	})

	t.Run("UpdateScenario_UnknownID", func(t *testing.T) {
		b := newBackend(t)

		err := b.UpdateScenario(ctx, 4242, core.ScenarioUpdate{Name: "x", Time: 1})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("VehicleCount_DerivedNotStored", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		NewScenario(t, b, "S2", 60)
		NewVehicle(t, b, "S1", "V1", 1, 0, 0, core.DirectionTowards)
		NewVehicle(t, b, "S1", "V2", 1, 0, 0, core.DirectionTowards)
		NewVehicle(t, b, "S2", "V3", 1, 0, 0, core.DirectionTowards)

		// a stale stored count must not leak through
		require.NoError(t, b.UpdateScenario(ctx, s.ID, core.ScenarioUpdate{Name: "S1", Time: 60, Vehicles: 99}))

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		counts := map[string]int{}
		for _, sc := range list {
			counts[sc.Name] = sc.Vehicles
		}
		assert.Equal(t, map[string]int{"S1": 2, "S2": 1}, counts)

		live, err := b.CountVehiclesByScenario(ctx, "S1", "S2", "empty")
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"S1": 2, "S2": 1, "empty": 0}, live)
	})

	t.Run("DeleteScenario", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		keep := NewScenario(t, b, "S2", 60)
		require.NoError(t, b.DeleteScenario(ctx, s.ID))

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		require.Len(t, list, 1)
		assert.Equal(t, keep.ID, list[0].ID)

		assert.ErrorIs(t, b.DeleteScenario(ctx, s.ID), core.ErrNotFound)
	})

	t.Run("DeleteScenario_DoesNotCascade", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		v := NewVehicle(t, b, "S1", "V1", 10, 900, 100, core.DirectionTowards)

		require.NoError(t, b.DeleteScenario(ctx, s.ID))

		vehicles, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
		assert.Equal(t, v.ID, vehicles[0].ID)
	})

	t.Run("DeleteAllScenarios", func(t *testing.T) {
		b := newBackend(t)

		NewScenario(t, b, "S1", 1)
		NewScenario(t, b, "S2", 2)
		NewVehicle(t, b, "S2", "V1", 1, 1, 1, core.DirectionUpwards)

		require.NoError(t, b.DeleteAllScenarios(ctx))
		require.NoError(t, b.DeleteAllScenarios(ctx), "deleting an empty table is fine")

		list, err := b.ListScenarios(ctx)
		require.NoError(t, err)
		assert.Empty(t, list)

		vehicles, err := b.ListVehiclesByScenario(ctx, "S2")
		require.NoError(t, err)
		assert.Len(t, vehicles, 1)
	})

	t.Run("RenameOrphansVehicles", func(t *testing.T) {
		b := newBackend(t)

		s := NewScenario(t, b, "S1", 60)
		NewVehicle(t, b, "S1", "V1", 1, 0, 0, core.DirectionTowards)

		require.NoError(t, b.UpdateScenario(ctx, s.ID, core.ScenarioUpdate{Name: "Renamed", Time: 60}))

		got, err := b.GetScenario(ctx, s.ID)
		require.NoError(t, err)
		assert.Equal(t, 0, got.Vehicles)

		renamed, err := b.ListVehiclesByScenario(ctx, "Renamed")
		require.NoError(t, err)
		assert.Empty(t, renamed)

		orphans, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		assert.Len(t, orphans, 1)
	})

	t.Run("CreateVehicle", func(t *testing.T) {
		b := newBackend(t)

		v := NewVehicle(t, b, "S1", "V1", 10, 900, 100, core.DirectionTowards)

		assert.NotZero(t, v.ID)
		assert.Equal(t, "S1", v.Scenario)
		assert.Equal(t, "V1", v.Name)
		assert.Equal(t, 10.0, v.Speed)
		assert.Equal(t, 900.0, v.PositionX)
		assert.Equal(t, 100.0, v.PositionY)
		assert.Equal(t, core.DirectionTowards, v.Direction)
	})

	t.Run("CreateVehicle_Validation", func(t *testing.T) {
		b := newBackend(t)

		_, err := b.CreateVehicle(ctx, core.VehicleInput{
			Scenario:  "S1",
			Name:      "V1",
			PositionX: f(0),
			PositionY: f(0),
			Direction: core.DirectionTowards,
		})
		assert.ErrorIs(t, err, core.ErrValidation)

		vehicles, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		assert.Empty(t, vehicles)
	})

	t.Run("CreateVehicle_NoReferenceOrBoundsCheck", func(t *testing.T) {
		b := newBackend(t)

		v := NewVehicle(t, b, "does-not-exist", "V1", 5, 2000, -50, core.Direction("sideways"))

		vehicles, err := b.ListVehiclesByScenario(ctx, "does-not-exist")
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
		assert.Equal(t, v.ID, vehicles[0].ID)
		assert.Equal(t, 2000.0, vehicles[0].PositionX)
		assert.Equal(t, core.Direction("sideways"), vehicles[0].Direction)
	})

	t.Run("ListVehiclesByScenario_ExactMatch", func(t *testing.T) {
		b := newBackend(t)

		NewVehicle(t, b, "S1", "a", 1, 0, 0, core.DirectionTowards)
		NewVehicle(t, b, "s1", "b", 1, 0, 0, core.DirectionTowards)
		NewVehicle(t, b, "S10", "c", 1, 0, 0, core.DirectionTowards)

		vehicles, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
		assert.Equal(t, "a", vehicles[0].Name)

		none, err := b.ListVehiclesByScenario(ctx, "nope")
		require.NoError(t, err)
		assert.NotNil(t, none)
		assert.Empty(t, none)
	})

	t.Run("UpdateVehicle", func(t *testing.T) {
		b := newBackend(t)

		v := NewVehicle(t, b, "S1", "V1", 10, 900, 100, core.DirectionTowards)
		err := b.UpdateVehicle(ctx, v.ID, core.VehicleUpdate{
			Name:      "V1b",
			PositionX: 0,
			PositionY: 375,
			Speed:     0,
			Direction: core.DirectionDownwards,
		})
		require.NoError(t, err)

		vehicles, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		require.Len(t, vehicles, 1)
		got := vehicles[0]
		assert.Equal(t, "V1b", got.Name)
		assert.Equal(t, 0.0, got.PositionX)
		assert.Equal(t, 375.0, got.PositionY)
		assert.Equal(t, 0.0, got.Speed)
		assert.Equal(t, core.DirectionDownwards, got.Direction)
		assert.Equal(t, "S1", got.Scenario, "scenario reference is not editable")
	})

	t.Run("UpdateVehicle_UnknownID", func(t *testing.T) {
		b := newBackend(t)

		err := b.UpdateVehicle(ctx, 777, core.VehicleUpdate{Name: "x"})
		assert.ErrorIs(t, err, core.ErrNotFound)
	})

	t.Run("DeleteVehicle", func(t *testing.T) {
		b := newBackend(t)

		v := NewVehicle(t, b, "S1", "V1", 1, 0, 0, core.DirectionTowards)
		require.NoError(t, b.DeleteVehicle(ctx, v.ID))

		vehicles, err := b.ListVehiclesByScenario(ctx, "S1")
		require.NoError(t, err)
		assert.Empty(t, vehicles)

		assert.ErrorIs(t, b.DeleteVehicle(ctx, v.ID), core.ErrNotFound)
	})
}
