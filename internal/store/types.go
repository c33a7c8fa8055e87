package store

import (
	"time"

	"production-tracker-backend/internal/model"
)

// ItemUpdate holds the item fields a PUT may change. Nil fields are left alone.
type ItemUpdate struct {
	FromBulkID  *uint64   `json:"from_bulk"`
	ContainsIDs *[]uint64 `json:"contains"`
}

// EventFilter narrows an event search. Zero values do not filter.
type EventFilter struct {
	Kind           string
	ItemSku        string
	ItemUID        string
	Machine        string
	ProductionStep model.ProductionStep
	Operator       string
	WorkOrder      string
	FromDate       *time.Time
	// ToDate is inclusive of the whole day.
	ToDate     *time.Time
	Failed     *bool
	Completed  *bool
	FailStates []string
}

// EventPage is one page of an event search, newest first.
type EventPage struct {
	Results []model.Event `json:"results"`
	Page    int           `json:"page"`
	HasNext bool          `json:"has_next"`
	Total   int64         `json:"total"`
}

// PastEventsQuery selects the events summarised by PastEvents.
type PastEventsQuery struct {
	ItemID uint64
	// ItemUID selects the item by UID instead of ItemID. An unknown UID
	// summarises no events rather than failing.
	ItemUID string
	// Kind and ProductionStep are optional.
	Kind           string
	ProductionStep model.ProductionStep
}

// PastEventsSummary counts an item's events by outcome.
type PastEventsSummary struct {
	Events      int64            `json:"events"`
	Completed   int64            `json:"completed"`
	Incompleted int64            `json:"incompleted"`
	Passed      int64            `json:"passed"`
	Failed      int64            `json:"failed"`
	FailState   map[string]int64 `json:"fail_state"`
}

// SkuConfigState is a SKU offered for configuration.
type SkuConfigState struct {
	Code             string `json:"code"`
	HasConfiguration bool   `json:"has_configuration"`
}
