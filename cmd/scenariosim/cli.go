package main

import (
	"compress/gzip"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/scenariosim/scenariosim/internal/config"
	"github.com/scenariosim/scenariosim/internal/database"
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/internal/model/convert"
	"github.com/scenariosim/scenariosim/internal/simulation"
	"github.com/scenariosim/scenariosim/internal/storage"
	"github.com/scenariosim/scenariosim/pkg/core"
)

// exportDocument is the content of an exported <scenario>.json.gz file.
type exportDocument struct {
	ExportedAt time.Time        `json:"exportedAt"`
	Version    string           `json:"version"`
	Scenarios  []model.Scenario `json:"scenarios"`
	Vehicles   []model.Vehicle  `json:"vehicles"`
}

func (a *app) export(ctx context.Context, names []string, outDir string) error {
	store, err := openStorage(config.GetStorageConfig(), database.NewManager(a.infra), a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	for _, name := range names {
		start := time.Now()
		path, err := exportScenario(ctx, store, name, outDir)
		if err != nil {
			return fmt.Errorf("export %q: %w", name, err)
		}
		a.logger.Info("Exported scenario", "scenario", name, "path", path, "duration", time.Since(start))
		fmt.Println(path)
	}
	return nil
}

// exportScenario writes every scenario row named name, and the vehicles that
// reference that name, to a gzipped JSON file in outDir.
func exportScenario(ctx context.Context, store storage.Backend, name, outDir string) (string, error) {
	all, err := store.ListScenarios(ctx)
	if err != nil {
		return "", err
	}
	doc := exportDocument{
		ExportedAt: time.Now().UTC(),
		Version:    Version,
		Scenarios:  []model.Scenario{},
	}
	for _, s := range all {
		if s.Name == name {
			doc.Scenarios = append(doc.Scenarios, convert.CoreToScenario(s))
		}
	}

	vehicles, err := store.ListVehiclesByScenario(ctx, name)
	if err != nil {
		return "", err
	}
	doc.Vehicles = make([]model.Vehicle, len(vehicles))
	for i, v := range vehicles {
		doc.Vehicles[i] = convert.CoreToVehicle(v)
	}

	if len(doc.Scenarios) == 0 && len(doc.Vehicles) == 0 {
		return "", fmt.Errorf("no scenario or vehicles named %q", name)
	}

	path := filepath.Join(outDir, exportFileName(name))
	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	if err := writeExport(f, doc); err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	return path, nil
}

// writeExport gzips doc as JSON into w.
func writeExport(w io.Writer, doc exportDocument) error {
	gz := gzip.NewWriter(w)
	if err := json.NewEncoder(gz).Encode(doc); err != nil {
		_ = gz.Close()
		return err
	}
	return gz.Close()
}

// exportFileName keeps letters, digits, dash and underscore.
func exportFileName(name string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	return safe + ".json.gz"
}

func (a *app) simulate(ctx context.Context, scenario, ticksArg string, out io.Writer) error {
	ticks, err := strconv.Atoi(ticksArg)
	if err != nil || ticks < 0 {
		return fmt.Errorf("ticks must be a non-negative integer, got %q", ticksArg)
	}

	store, err := openStorage(config.GetStorageConfig(), database.NewManager(a.infra), a.logger)
	if err != nil {
		return err
	}
	defer store.Close()

	vehicles, err := store.ListVehiclesByScenario(ctx, scenario)
	if err != nil {
		return err
	}

	snap, err := runHeadless(scenario, vehicles, ticks)
	if err != nil {
		return err
	}
	return printSnapshot(out, snap)
}

// runHeadless steps vehicles ticks times and returns the final state. The
// engine runs on a fake clock that is never advanced, so only the explicit
// Tick calls move vehicles.
func runHeadless(scenario string, vehicles []core.Vehicle, ticks int) (core.Snapshot, error) {
	engine, err := simulation.NewEngine(simulation.Options{
		Scenario: scenario,
		Clock:    clockwork.NewFakeClockAt(time.Now()),
	})
	if err != nil {
		return core.Snapshot{}, err
	}

	snap, err := engine.Start(vehicles)
	if err != nil {
		return core.Snapshot{}, err
	}
	defer engine.Stop()

	for i := 0; i < ticks; i++ {
		if snap, err = engine.Tick(); err != nil {
			return core.Snapshot{}, err
		}
	}
	return snap, nil
}

func printSnapshot(out io.Writer, snap core.Snapshot) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scenario %s after %d ticks\n", snap.Scenario, snap.Tick)
	fmt.Fprintln(tw, "ID\tNAME\tDIRECTION\tSPEED\tX\tY")
	for _, v := range snap.Vehicles {
		fmt.Fprintf(tw, "%d\t%s\t%s\t%g\t%g\t%g\n", v.ID, v.Name, v.Direction, v.Speed, v.PositionX, v.PositionY)
	}
	return tw.Flush()
}
