// Package gormstorage implements storage.Backend on top of GORM. The sqlite and
// postgres backends embed it and only differ in how the *gorm.DB is opened.
package gormstorage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
	"github.com/scenariosim/scenariosim/internal/database"
	"github.com/scenariosim/scenariosim/internal/model"
	"github.com/scenariosim/scenariosim/internal/model/convert"
	"github.com/scenariosim/scenariosim/pkg/core"

	"gorm.io/gorm"
)

// Dependencies holds all dependencies for the GORM storage backend.
type Dependencies struct {
	DB        *gorm.DB
	DBManager *database.Manager
	Logger    *slog.Logger
}

// Backend implements storage.Backend using GORM.
type Backend struct {
	deps Dependencies
}

// New creates a new GORM storage backend.
func New(deps Dependencies) *Backend {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.DBManager == nil {
		deps.DBManager = database.NewManager(zerolog.Nop())
	}
	return &Backend{deps: deps}
}

// DB exposes the underlying connection.
func (b *Backend) DB() *gorm.DB {
	return b.deps.DB
}

// Init migrates the schema.
func (b *Backend) Init() error {
	if b.deps.DB == nil {
		return errors.New("gorm backend: no database connection")
	}
	if err := b.deps.DBManager.Setup(b.deps.DB); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}
	return nil
}

// Close closes the underlying connection pool.
func (b *Backend) Close() error {
	if b.deps.DB == nil {
		return nil
	}
	sqlDB, err := b.deps.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (b *Backend) db(ctx context.Context) *gorm.DB {
	return b.deps.DB.WithContext(ctx)
}

// CreateScenario inserts a scenario with a stored vehicle count of zero.
func (b *Backend) CreateScenario(ctx context.Context, in core.ScenarioInput) (core.Scenario, error) {
	if err := in.Validate(); err != nil {
		return core.Scenario{}, err
	}

	row := model.Scenario{Name: in.Name, Time: *in.Time, VehicleCount: 0}
	if err := b.db(ctx).Create(&row).Error; err != nil {
		return core.Scenario{}, core.Unavailable("create scenario", err)
	}
	b.deps.Logger.Debug("Scenario added", "id", row.ID, "name", row.Name)
	return convert.ScenarioToCore(row), nil
}

// GetScenario returns one scenario with its derived vehicle count.
func (b *Backend) GetScenario(ctx context.Context, id uint) (core.Scenario, error) {
	var row model.Scenario
	err := b.db(ctx).Where("id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return core.Scenario{}, &core.NotFoundError{Kind: "scenario", ID: id}
	}
	if err != nil {
		return core.Scenario{}, core.Unavailable("get scenario", err)
	}

	counts, err := b.CountVehiclesByScenario(ctx, row.Name)
	if err != nil {
		return core.Scenario{}, err
	}
	s := convert.ScenarioToCore(row)
	s.Vehicles = counts[row.Name]
	return s, nil
}

// ListScenarios returns every scenario in ID order with derived vehicle counts.
func (b *Backend) ListScenarios(ctx context.Context) ([]core.Scenario, error) {
	var rows []model.Scenario
	if err := b.db(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, core.Unavailable("list scenarios", err)
	}

	names := make([]string, 0, len(rows))
	for _, r := range rows {
		names = append(names, r.Name)
	}
	counts, err := b.CountVehiclesByScenario(ctx, names...)
	if err != nil {
		return nil, err
	}
	return core.WithDerivedCounts(convert.ScenariosToCore(rows), counts), nil
}

// UpdateScenario overwrites name, time and the stored vehicle count.
func (b *Backend) UpdateScenario(ctx context.Context, id uint, u core.ScenarioUpdate) error {
	res := b.db(ctx).Model(&model.Scenario{}).Where("id = ?", id).Updates(convert.ScenarioUpdateColumns(u))
	if res.Error != nil {
		return core.Unavailable("update scenario", res.Error)
	}
	if res.RowsAffected == 0 {
		return &core.NotFoundError{Kind: "scenario", ID: id}
	}
	return nil
}

// DeleteScenario removes one scenario. Vehicles referencing it by name are kept.
func (b *Backend) DeleteScenario(ctx context.Context, id uint) error {
	res := b.db(ctx).Where("id = ?", id).Delete(&model.Scenario{})
	if res.Error != nil {
		return core.Unavailable("delete scenario", res.Error)
	}
	if res.RowsAffected == 0 {
		return &core.NotFoundError{Kind: "scenario", ID: id}
	}
	return nil
}

// DeleteAllScenarios removes every scenario row.
func (b *Backend) DeleteAllScenarios(ctx context.Context) error {
	res := b.db(ctx).Session(&gorm.Session{AllowGlobalUpdate: true}).Delete(&model.Scenario{})
	if res.Error != nil {
		return core.Unavailable("delete all scenarios", res.Error)
	}
	b.deps.Logger.Debug("All scenarios deleted", "rows", res.RowsAffected)
	return nil
}

// CreateVehicle inserts a vehicle. Neither the scenario name nor the position is checked.
func (b *Backend) CreateVehicle(ctx context.Context, in core.VehicleInput) (core.Vehicle, error) {
	if err := in.Validate(); err != nil {
		return core.Vehicle{}, err
	}

	row := convert.CoreToVehicle(in.Vehicle())
	if err := b.db(ctx).Create(&row).Error; err != nil {
		return core.Vehicle{}, core.Unavailable("create vehicle", err)
	}
	b.deps.Logger.Debug("Vehicle added", "id", row.ID, "scenario", row.Scenario)
	return convert.VehicleToCore(row), nil
}

// ListVehiclesByScenario returns vehicles whose scenario name matches exactly, in ID order.
func (b *Backend) ListVehiclesByScenario(ctx context.Context, scenario string) ([]core.Vehicle, error) {
	rows := []model.Vehicle{}
	err := b.db(ctx).Where("scenario = ?", scenario).Order("id ASC").Find(&rows).Error
	if err != nil {
		return nil, core.Unavailable("list vehicles", err)
	}
	return convert.VehiclesToCore(rows), nil
}

type scenarioCount struct {
	Scenario string
	N        int
}

// CountVehiclesByScenario returns the live count for each requested name.
func (b *Backend) CountVehiclesByScenario(ctx context.Context, scenarios ...string) (map[string]int, error) {
	counts := make(map[string]int, len(scenarios))
	if len(scenarios) == 0 {
		return counts, nil
	}
	for _, name := range scenarios {
		counts[name] = 0
	}

	var rows []scenarioCount
	err := b.db(ctx).Model(&model.Vehicle{}).
		Select("scenario, COUNT(*) AS n").
		Where("scenario IN ?", scenarios).
		Group("scenario").
		Scan(&rows).Error
	if err != nil {
		return nil, core.Unavailable("count vehicles", err)
	}
	for _, r := range rows {
		counts[r.Scenario] = r.N
	}
	return counts, nil
}

// UpdateVehicle overwrites the editable fields of a vehicle.
func (b *Backend) UpdateVehicle(ctx context.Context, id uint, u core.VehicleUpdate) error {
	res := b.db(ctx).Model(&model.Vehicle{}).Where("id = ?", id).Updates(convert.VehicleUpdateColumns(u))
	if res.Error != nil {
		return core.Unavailable("update vehicle", res.Error)
	}
	if res.RowsAffected == 0 {
		return &core.NotFoundError{Kind: "vehicle", ID: id}
	}
	return nil
}

// DeleteVehicle removes one vehicle.
func (b *Backend) DeleteVehicle(ctx context.Context, id uint) error {
	res := b.db(ctx).Where("id = ?", id).Delete(&model.Vehicle{})
	if res.Error != nil {
		return core.Unavailable("delete vehicle", res.Error)
	}
	if res.RowsAffected == 0 {
		return &core.NotFoundError{Kind: "vehicle", ID: id}
	}
	return nil
}
