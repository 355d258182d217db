package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/scenariosim/scenariosim/internal/api"
	"github.com/scenariosim/scenariosim/internal/broadcast"
	"github.com/scenariosim/scenariosim/internal/config"
	"github.com/scenariosim/scenariosim/internal/database"
	"github.com/scenariosim/scenariosim/internal/influx"
	"github.com/scenariosim/scenariosim/internal/logging"
	"github.com/scenariosim/scenariosim/internal/simulation"
)

const shutdownTimeout = 10 * time.Second

// serve runs the HTTP API until ctx is cancelled, then stops every session
// before shutting the listener down.
func (a *app) serve(ctx context.Context) error {
	store, err := openStorage(config.GetStorageConfig(), database.NewManager(a.infra), a.logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := store.Close(); err != nil {
			a.logger.Error("Failed to close storage", "error", err)
		}
	}()

	simCfg := config.GetSimulationConfig()
	hub, err := broadcast.New(logging.NewHubLogger(a.infra), simCfg.SubscriberBuffer)
	if err != nil {
		return err
	}

	opts := simulation.ManagerOptions{
		TickInterval: simCfg.TickInterval,
		Publisher:    hub,
		Logger:       a.logger,
	}

	telemetry := influx.NewManager(a.infra, config.GetInfluxConfig())
	switch err := telemetry.Connect(ctx); {
	case errors.Is(err, influx.ErrDisabled):
		a.logger.Debug("InfluxDB session telemetry disabled")
	case err != nil:
		a.logger.Warn("InfluxDB session telemetry unavailable", "error", err)
	default:
		opts.Observer = telemetry
		defer func() {
			if err := telemetry.Close(); err != nil {
				a.logger.Warn("Failed to close InfluxDB", "error", err)
			}
		}()
	}

	sims := simulation.NewManager(store, opts)
	a.sims.Store(sims)

	serverCfg := config.GetServerConfig()
	gin.SetMode(gin.ReleaseMode)
	handler := api.NewServer(api.Dependencies{
		Store:       store,
		Simulations: sims,
		Hub:         hub,
		Logger:      a.logger,
		CORSOrigin:  serverCfg.CORSOrigin,
	}).Handler()

	srv := &http.Server{
		Addr:              serverCfg.Address,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("Listening", "address", serverCfg.Address)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		sims.StopAll()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	a.logger.Info("Shutting down")
	// closing sessions first ends every open stream
	sims.StopAll()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
