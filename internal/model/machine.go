package model

import (
	"time"

	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/unique"
)

// Machine is a production rig, keyed by hostname.
type Machine struct {
	Hostname              string         `gorm:"primaryKey;size:255" json:"hostname" binding:"required"`
	Name                  string         `gorm:"size:255;uniqueIndex;not null" json:"name" binding:"required"`
	AutoUpdate            bool           `gorm:"not null;default:false" json:"auto_update"`
	ProductionStep        ProductionStep `gorm:"size:255;not null" json:"production_step"`
	IdealisedCycleTime    uint           `gorm:"not null;default:3600" json:"idealised_cycle_time"`
	PlannedProductionTime uint           `gorm:"not null;default:28800" json:"planned_production_time"`
	RequiredPingInterval  uint           `gorm:"not null;default:600" json:"required_ping_interval"`
}

// PingInterval is the staleness budget of a login session on this machine.
func (m Machine) PingInterval() time.Duration {
	return time.Duration(m.RequiredPingInterval) * time.Second
}

func (m *Machine) BeforeSave(tx *gorm.DB) error {
	if !m.ProductionStep.Valid() {
		return apperr.NewValidation("production_step", "%q is not a valid production step", m.ProductionStep)
	}
	return unique.Check(tx, m, unique.Together("Name"))
}

// Operator is a person running machines.
type Operator struct {
	Code string `gorm:"primaryKey;size:255" json:"code" binding:"required"`
	Name string `gorm:"size:255;uniqueIndex;not null" json:"name" binding:"required"`
}

func (o *Operator) BeforeSave(tx *gorm.DB) error {
	return unique.Check(tx, o, unique.Together("Name"))
}
