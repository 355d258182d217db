package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/scenariosim/scenariosim/internal/broadcast"
	"github.com/scenariosim/scenariosim/internal/logging"
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/internal/simulation"
	"github.com/scenariosim/scenariosim/internal/storage/memory"
	"github.com/scenariosim/scenariosim/pkg/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

type nopHubLogger struct{}

func (nopHubLogger) Debug(string, ...any) {}
func (nopHubLogger) Info(string, ...any)  {}
func (nopHubLogger) Error(string, ...any) {}

type testEnv struct {
	server *httptest.Server
	srv    *Server
	client *Client
	clock  *clockwork.FakeClock
	sims   *simulation.Manager
	hub    *broadcast.Hub
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store := memory.New()
	require.NoError(t, store.Init())

	hub, err := broadcast.New(nopHubLogger{}, 16)
	require.NoError(t, err)

	clock := clockwork.NewFakeClockAt(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	sims := simulation.NewManager(store, simulation.ManagerOptions{
		Clock:     clock,
		Publisher: hub,
	})

	srv := NewServer(Dependencies{
		Store:       store,
		Simulations: sims,
		Hub:         hub,
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		sims.StopAll()
		ts.Close()
	})

	return &testEnv{server: ts, srv: srv, client: New(ts.URL), clock: clock, sims: sims, hub: hub}
}

func f(v float64) *float64 { return &v }

func (e *testEnv) addScenario(t *testing.T, name string, time float64) {
	t.Helper()
	_, err := e.client.CreateScenario(context.Background(), CreateScenarioRequest{Name: name, Time: f(time)})
	require.NoError(t, err)
}

func (e *testEnv) addVehicle(t *testing.T, scenario, name string, speed, x, y float64, dir string) {
	t.Helper()
	_, err := e.client.CreateVehicle(context.Background(), CreateVehicleRequest{
		Scenario:    scenario,
		VehicleName: name,
		Speed:       f(speed),
		PositionX:   f(x),
		PositionY:   f(y),
		Direction:   dir,
	})
	require.NoError(t, err)
}

// raw performs a request without the client, returning status and body.
func (e *testEnv) raw(t *testing.T, method, path, body string) (int, string) {
	t.Helper()
	req, err := http.NewRequest(method, e.server.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(b)
}

func requireStatus(t *testing.T, err error, status int, msg string) {
	t.Helper()
	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, status, se.Status)
	assert.Equal(t, msg, se.Message)
}

func TestHealthcheck(t *testing.T) {
	e := newTestEnv(t)
	assert.NoError(t, e.client.Healthcheck(context.Background()))
}

func TestCreateScenario(t *testing.T) {
	e := newTestEnv(t)

	status, body := e.raw(t, http.MethodPost, "/api/scenarios", `{"name":"S1","time":60}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"message":"Scenario added successfully"}`, body)

	list, err := e.client.ListScenarios(context.Background())
	require.NoError(t, err)
	want := []model.Scenario{{ID: 1, Name: "S1", Time: 60, VehicleCount: 0}}
	if diff := cmp.Diff(want, list); diff != "" {
		t.Errorf("scenarios mismatch (-want +got):\n%s", diff)
	}
}

func TestCreateScenario_ValidationIs500(t *testing.T) {
	e := newTestEnv(t)

	tests := map[string]string{
		"missing time": `{"name":"S1"}`,
		"missing name": `{"time":60}`,
		"empty body":   ``,
		"bad json":     `{"name":`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			status, msg := e.raw(t, http.MethodPost, "/api/scenarios", body)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, errAddScenario, msg)
		})
	}

	list, err := e.client.ListScenarios(context.Background())
	require.NoError(t, err)
	assert.Empty(t, list, "nothing written on validation failure")
}

func TestCreateScenario_ZeroTimeIsPresent(t *testing.T) {
	e := newTestEnv(t)
	status, _ := e.raw(t, http.MethodPost, "/api/scenarios", `{"name":"S0","time":0}`)
	assert.Equal(t, http.StatusCreated, status)
}

func TestListScenarios_DerivedCount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addScenario(t, "S1", 60)
	e.addScenario(t, "S2", 30)
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")
	e.addVehicle(t, "S1", "V2", 10, 100, 100, "upwards")

	// a stored count written through update is never read back
	require.NoError(t, e.client.UpdateScenario(ctx, 2, UpdateScenarioRequest{Name: "S2", Time: 30, Vehicles: 9}))

	list, err := e.client.ListScenarios(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "S1", list[0].Name)
	assert.Equal(t, 2, list[0].VehicleCount)
	assert.Equal(t, 0, list[1].VehicleCount)
}

func TestUpdateScenario(t *testing.T) {
	e := newTestEnv(t)
	e.addScenario(t, "S1", 60)

	status, body := e.raw(t, http.MethodPut, "/api/scenarios/1", `{"name":"S1b","time":90,"vehicles":0}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgScenarioUpdated, body)

	list, err := e.client.ListScenarios(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "S1b", list[0].Name)
	assert.Equal(t, 90.0, list[0].Time)
}

func TestUpdateScenario_UnknownID(t *testing.T) {
	e := newTestEnv(t)
	err := e.client.UpdateScenario(context.Background(), 42, UpdateScenarioRequest{Name: "x"})
	requireStatus(t, err, http.StatusInternalServerError, errUpdateScenario)

	status, msg := e.raw(t, http.MethodPut, "/api/scenarios/abc", `{"name":"x"}`)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, errUpdateScenario, msg)
}

func TestRenameOrphansVehicles(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addScenario(t, "S1", 60)
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	require.NoError(t, e.client.UpdateScenario(ctx, 1, UpdateScenarioRequest{Name: "S1-renamed", Time: 60}))

	list, err := e.client.ListScenarios(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, list[0].VehicleCount)

	orphans, err := e.client.ListVehicles(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, orphans, 1)
}

func TestDeleteScenario_NoCascade(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addScenario(t, "S1", 60)
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	status, body := e.raw(t, http.MethodDelete, "/api/scenarios/1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgScenarioDeleted, body)

	vehicles, err := e.client.ListVehicles(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, vehicles, 1)

	requireStatus(t, e.client.DeleteScenario(ctx, 1), http.StatusInternalServerError, errDeleteScenario)
}

func TestDeleteAllScenarios(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addScenario(t, "S1", 60)
	e.addScenario(t, "S2", 60)
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	status, body := e.raw(t, http.MethodDelete, "/api/scenarios", "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgAllScenariosDeleted, body)

	list, err := e.client.ListScenarios(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)

	vehicles, err := e.client.ListVehicles(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, vehicles, 1)
}

func TestVehicles_WireFormat(t *testing.T) {
	e := newTestEnv(t)
	e.addVehicle(t, "S1", "V1", 10, 900, 100, "towards")

	status, body := e.raw(t, http.MethodGet, "/api/vehicles?scenario=S1", "")
	assert.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, `[{"id":1,"scenario":"S1","vehicle_name":"V1","speed":10,"position_x":900,"position_y":100,"direction":"towards"}]`, body)
}

func TestCreateVehicle_Validation(t *testing.T) {
	e := newTestEnv(t)

	tests := map[string]string{
		"missing scenario":  `{"vehicleName":"V","speed":1,"positionX":1,"positionY":1,"direction":"towards"}`,
		"missing name":      `{"scenario":"S","speed":1,"positionX":1,"positionY":1,"direction":"towards"}`,
		"missing speed":     `{"scenario":"S","vehicleName":"V","positionX":1,"positionY":1,"direction":"towards"}`,
		"missing x":         `{"scenario":"S","vehicleName":"V","speed":1,"positionY":1,"direction":"towards"}`,
		"missing y":         `{"scenario":"S","vehicleName":"V","speed":1,"positionX":1,"direction":"towards"}`,
		"missing direction": `{"scenario":"S","vehicleName":"V","speed":1,"positionX":1,"positionY":1}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			status, msg := e.raw(t, http.MethodPost, "/api/vehicles", body)
			assert.Equal(t, http.StatusInternalServerError, status)
			assert.Equal(t, errAddVehicle, msg)
		})
	}

	status, body := e.raw(t, http.MethodPost, "/api/vehicles",
		`{"scenario":"S","vehicleName":"V","speed":0,"positionX":0,"positionY":0,"direction":"towards"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.JSONEq(t, `{"message":"Vehicle added successfully"}`, body)
}

func TestCreateVehicle_NoReferenceOrBoundsCheck(t *testing.T) {
	e := newTestEnv(t)
	e.addVehicle(t, "ghost", "V1", 10, 5000, -20, "sideways")

	vehicles, err := e.client.ListVehicles(context.Background(), "ghost")
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, 5000.0, vehicles[0].PositionX)
	assert.Equal(t, "sideways", vehicles[0].Direction)
}

func TestListVehicles_ExactMatch(t *testing.T) {
	e := newTestEnv(t)
	e.addVehicle(t, "S1", "V1", 1, 1, 1, "towards")
	e.addVehicle(t, "S10", "V2", 1, 1, 1, "towards")

	vehicles, err := e.client.ListVehicles(context.Background(), "S1")
	require.NoError(t, err)
	require.Len(t, vehicles, 1)
	assert.Equal(t, "V1", vehicles[0].VehicleName)

	none, err := e.client.ListVehicles(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestUpdateAndDeleteVehicle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	status, body := e.raw(t, http.MethodPut, "/api/vehicles/1",
		`{"vehicle_name":"V1b","position_x":0,"position_y":375,"speed":0,"direction":"downwards"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, msgVehicleUpdated, body)

	vehicles, err := e.client.ListVehicles(ctx, "S1")
	require.NoError(t, err)
	want := []model.Vehicle{{ID: 1, Scenario: "S1", VehicleName: "V1b", Speed: 0, PositionX: 0, PositionY: 375, Direction: "downwards"}}
	if diff := cmp.Diff(want, vehicles); diff != "" {
		t.Errorf("vehicle mismatch (-want +got):\n%s", diff)
	}

	require.NoError(t, e.client.DeleteVehicle(ctx, 1))
	requireStatus(t, e.client.DeleteVehicle(ctx, 1), http.StatusInternalServerError, errDeleteVehicle)
	requireStatus(t, e.client.UpdateVehicle(ctx, 1, UpdateVehicleRequest{}), http.StatusInternalServerError, errUpdateVehicle)
}

func TestCORS(t *testing.T) {
	e := newTestEnv(t)

	req, err := http.NewRequest(http.MethodGet, e.server.URL+"/api/scenarios", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "X-Request-Id", resp.Header.Get("Access-Control-Expose-Headers"))

	req, err = http.NewRequest(http.MethodOptions, e.server.URL+"/api/vehicles/1", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "PUT")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Access-Control-Allow-Methods"), "PUT")
}

func TestRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(logging.NewContextHandler(slog.NewTextHandler(&buf, nil), nil))

	store := memory.New()
	require.NoError(t, store.Init())
	srv := NewServer(Dependencies{
		Store:       store,
		Simulations: simulation.NewManager(store, simulation.ManagerOptions{}),
		Logger:      logger,
	})
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	req, err := http.NewRequest(http.MethodDelete, ts.URL+"/api/vehicles/42", nil)
	require.NoError(t, err)
	req.Header.Set(RequestIDHeader, "req-123")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get(RequestIDHeader))
	assert.Contains(t, buf.String(), errDeleteVehicle)
	assert.Contains(t, buf.String(), "request=req-123")

	resp, err = http.Get(ts.URL + "/healthcheck")
	require.NoError(t, err)
	resp.Body.Close()
	assert.NotEmpty(t, resp.Header.Get(RequestIDHeader))
}

func TestSimulation_Lifecycle(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addScenario(t, "S1", 60)
	e.addVehicle(t, "S1", "V1", 10, 900, 100, "towards")

	snap, err := e.client.StartSimulation(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), snap.Tick)
	require.Len(t, snap.Vehicles, 1)
	assert.Regexp(t, `^#[0-9A-F]{6}$`, snap.Vehicles[0].Color)
	assert.NotEmpty(t, snap.SessionID)

	_, err = e.client.StartSimulation(ctx, "S1")
	requireStatus(t, err, http.StatusInternalServerError, errStartSimulation)

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stream, err := e.client.Stream(streamCtx, "S1")
	require.NoError(t, err)

	first := <-stream
	assert.Equal(t, uint64(0), first.Tick)

	e.clock.Advance(simulation.DefaultTickInterval)
	tick1 := <-stream
	assert.Equal(t, 910.0, tick1.Vehicles[0].PositionX)

	e.clock.Advance(simulation.DefaultTickInterval)
	tick2 := <-stream
	assert.Equal(t, uint64(2), tick2.Tick)
	assert.Equal(t, 915.0, tick2.Vehicles[0].PositionX)
	assert.Equal(t, 100.0, tick2.Vehicles[0].PositionY)

	current, err := e.client.GetSimulation(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), current.Tick)

	require.NoError(t, e.client.StopSimulation(ctx, "S1"))
	_, open := <-stream
	assert.False(t, open, "stream ends when the simulation stops")

	_, err = e.client.GetSimulation(ctx, "S1")
	requireStatus(t, err, http.StatusInternalServerError, errFetchSimulation)
	requireStatus(t, e.client.StopSimulation(ctx, "S1"), http.StatusInternalServerError, errStopSimulation)

	// simulated motion never reaches the store
	vehicles, err := e.client.ListVehicles(ctx, "S1")
	require.NoError(t, err)
	assert.Equal(t, 900.0, vehicles[0].PositionX)
}

func TestSimulation_DownwardsOverHTTP(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addVehicle(t, "S2", "V1", 20, 50, 370, "downwards")

	_, err := e.client.StartSimulation(ctx, "S2")
	require.NoError(t, err)

	e.clock.Advance(simulation.DefaultTickInterval)
	require.Eventually(t, func() bool {
		s, err := e.client.GetSimulation(ctx, "S2")
		return err == nil && s.Tick == 1
	}, 2*time.Second, 10*time.Millisecond)

	s, err := e.client.GetSimulation(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, 350.0, s.Vehicles[0].PositionY)

	e.clock.Advance(simulation.DefaultTickInterval)
	require.Eventually(t, func() bool {
		s, err := e.client.GetSimulation(ctx, "S2")
		return err == nil && s.Tick == 2
	}, 2*time.Second, 10*time.Millisecond)

	s, err = e.client.GetSimulation(ctx, "S2")
	require.NoError(t, err)
	assert.Equal(t, 330.0, s.Vehicles[0].PositionY)
}

func TestStream_NotRunning(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.client.Stream(context.Background(), "S1")
	requireStatus(t, err, http.StatusInternalServerError, errFetchSimulation)
}

func nextSnapshot(t *testing.T, stream <-chan Snapshot) Snapshot {
	t.Helper()
	select {
	case snap, ok := <-stream:
		require.True(t, ok, "stream closed")
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for snapshot")
		return Snapshot{}
	}
}

func TestStream_StoppedBeforeSubscribe(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	_, err := e.client.StartSimulation(ctx, "S1")
	require.NoError(t, err)

	// the session ends after the Running check but before the handler subscribes
	e.srv.upgrader.CheckOrigin = func(*http.Request) bool {
		_ = e.sims.Stop("S1")
		return true
	}

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stream, err := e.client.Stream(streamCtx, "S1")
	require.NoError(t, err)

	select {
	case _, open := <-stream:
		assert.False(t, open, "stream ends when the simulation is already stopped")
	case <-time.After(2 * time.Second):
		t.Fatal("stream stayed open after the simulation stopped")
	}
	assert.Eventually(t, func() bool {
		return e.hub.Subscribers("S1") == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestStream_SkipsStaleTicks(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	_, err := e.client.StartSimulation(ctx, "S1")
	require.NoError(t, err)

	streamCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	stream, err := e.client.Stream(streamCtx, "S1")
	require.NoError(t, err)
	assert.Equal(t, uint64(0), nextSnapshot(t, stream).Tick)

	// a tick queued before the joining snapshot was taken
	require.Equal(t, 1, e.hub.Publish(core.Snapshot{Scenario: "S1", Tick: 0}))

	e.clock.Advance(simulation.DefaultTickInterval)
	snap := nextSnapshot(t, stream)
	assert.Equal(t, uint64(1), snap.Tick)
	assert.Equal(t, 110.0, snap.Vehicles[0].PositionX)
}

func TestSnapshotJSON_Fields(t *testing.T) {
	e := newTestEnv(t)
	e.addVehicle(t, "S1", "V1", 10, 100, 100, "towards")

	status, body := e.raw(t, http.MethodPost, "/api/simulations/S1/start", "")
	require.Equal(t, http.StatusCreated, status)

	var raw map[string]any
	require.NoError(t, json.Unmarshal([]byte(body), &raw))
	for _, key := range []string{"sessionId", "scenario", "tick", "at", "vehicles"} {
		assert.Contains(t, raw, key)
	}
	vehicles := raw["vehicles"].([]any)
	v := vehicles[0].(map[string]any)
	for _, key := range []string{"id", "vehicle_name", "position_x", "position_y", "direction", "color"} {
		assert.Contains(t, v, key)
	}
}
