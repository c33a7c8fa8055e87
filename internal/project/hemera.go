package project

import "production-tracker-backend/internal/model"

type HemeraGreaseDetails struct{}

// HemeraGreaseSettings configures grease dispensing for a SKU.
type HemeraGreaseSettings struct{}

func (*HemeraGreaseSettings) ProductionStep() model.ProductionStep { return model.StepGreasing }

func init() {
	model.RegisterEventKind("hemera_grease", func() model.EventDetails { return &HemeraGreaseDetails{} })
	model.RegisterConfigKind("hemera_grease", func() model.ConfigSettings { return &HemeraGreaseSettings{} })

	Register(Project{
		Name:       "hemera_grease_dispenser",
		Title:      "Hemera greasing rig",
		ItemKind:   model.ItemKindSingle,
		EventKind:  "hemera_grease",
		ConfigKind: "hemera_grease",
	})
}
