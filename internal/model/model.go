package model

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Scenario{},
	&Vehicle{},
}

// Scenario is a row in the scenarios table.
// VehicleCount is written on create and update but is never read back as truth;
// backends derive the count from the vehicles table instead.
type Scenario struct {
	ID           uint    `json:"id" gorm:"primarykey;autoIncrement"`
	Name         string  `json:"name" gorm:"size:255;not null;index:idx_scenarios_name"`
	Time         float64 `json:"time"`
	VehicleCount int     `json:"vehicles" gorm:"column:vehicles;default:0"`
}

func (*Scenario) TableName() string {
	return "scenarios"
}

// Vehicle is a row in the vehicles table.
// Scenario stores the owning scenario's name. There is no foreign key.
type Vehicle struct {
	ID          uint    `json:"id" gorm:"primarykey;autoIncrement"`
	Scenario    string  `json:"scenario" gorm:"size:255;not null;index:idx_vehicles_scenario"`
	VehicleName string  `json:"vehicle_name" gorm:"size:255;not null"`
	Speed       float64 `json:"speed"`
	PositionX   float64 `json:"position_x"`
	PositionY   float64 `json:"position_y"`
	Direction   string  `json:"direction" gorm:"size:32"`
}

func (*Vehicle) TableName() string {
	return "vehicles"
}
