package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTableNames(t *testing.T) {
	tests := []struct {
		model    interface{ TableName() string }
		expected string
	}{
		{&Scenario{}, "scenarios"},
		{&Vehicle{}, "vehicles"},
	}
	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.model.TableName())
		})
	}
	assert.Len(t, DatabaseModels, len(tests))
}

func TestJSONUsesColumnNames(t *testing.T) {
	b, err := json.Marshal(Vehicle{ID: 1, Scenario: "S1", VehicleName: "V1", Speed: 10, PositionX: 900, PositionY: 100, Direction: "towards"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"scenario":"S1","vehicle_name":"V1","speed":10,"position_x":900,"position_y":100,"direction":"towards"}`, string(b))

	b, err = json.Marshal(Scenario{ID: 2, Name: "Rush Hour", Time: 30, VehicleCount: 4})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":2,"name":"Rush Hour","time":30,"vehicles":4}`, string(b))
}
