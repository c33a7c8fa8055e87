package project

import "production-tracker-backend/internal/model"

// GenericDetails carries nothing beyond the shared event fields.
type GenericDetails struct{}

func init() {
	model.RegisterEventKind("generic", func() model.EventDetails { return &GenericDetails{} })

	Register(Project{
		Name:      "generic",
		Title:     "Generic rig",
		ItemKind:  model.ItemKindBulk,
		EventKind: "generic",
	})
}
