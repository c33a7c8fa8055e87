package model

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/unique"
)

// Configuration holds the settings one project applies to a SKU at one production step.
// The step is fixed by the settings kind.
type Configuration struct {
	ID             uint64         `gorm:"primaryKey" json:"id"`
	Kind           string         `gorm:"size:64;not null;index" json:"kind"`
	ProductionStep ProductionStep `gorm:"size:255;not null;uniqueIndex:idx_configurations_step_sku,priority:1" json:"production_step"`
	SkuCode        string         `gorm:"size:255;not null;uniqueIndex:idx_configurations_step_sku,priority:2" json:"sku"`
	SettingsData   datatypes.JSON `gorm:"column:settings" json:"-" binding:"-"`

	Settings ConfigSettings `gorm:"-" json:"settings"`

	// Associations
	Sku Sku `gorm:"foreignKey:SkuCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
}

// NewConfiguration returns an unsaved configuration of a registered kind.
func NewConfiguration(kind, sku string) (*Configuration, error) {
	settings, err := NewConfigSettings(kind)
	if err != nil {
		return nil, err
	}
	return &Configuration{
		Kind:           kind,
		ProductionStep: settings.ProductionStep(),
		SkuCode:        sku,
		Settings:       settings,
	}, nil
}

func (c *Configuration) BeforeSave(tx *gorm.DB) error {
	if c.Settings == nil {
		return fmt.Errorf("configuration %q has no settings and therefore no production step", c.Kind)
	}
	c.ProductionStep = c.Settings.ProductionStep()
	if c.SkuCode == "" {
		return apperr.NewValidation("sku", "This field is required.")
	}

	raw, err := json.Marshal(c.Settings)
	if err != nil {
		return fmt.Errorf("failed to encode %s settings: %w", c.Kind, err)
	}
	c.SettingsData = raw
	return unique.Check(tx, c, unique.Together("ProductionStep", "SkuCode"))
}

func (c *Configuration) AfterFind(tx *gorm.DB) error {
	settings, err := NewConfigSettings(c.Kind)
	if err != nil {
		return err
	}
	if len(c.SettingsData) > 0 {
		if err := json.Unmarshal(c.SettingsData, settings); err != nil {
			return fmt.Errorf("failed to decode %s settings: %w", c.Kind, err)
		}
	}
	c.Settings = settings
	return nil
}
