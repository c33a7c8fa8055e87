package model

import (
	"encoding/json"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
)

const (
	FailStateNone    = "None"
	FailStateUnknown = "Unknown"
)

// Event is one production operation performed on an item at a machine by an operator.
// Kind selects the details variant; details that implement LogSource keep
// time-series arrays in step with LogTimepoints.
type Event struct {
	ID              uint64                       `gorm:"primaryKey" json:"id"`
	Kind            string                       `gorm:"size:64;not null;index" json:"kind"`
	ItemID          uint64                       `gorm:"not null;index" json:"item"`
	MachineHostname string                       `gorm:"size:255;not null;index" json:"machine"`
	OperatorCode    string                       `gorm:"size:255;not null;index" json:"operator"`
	WorkOrderCode   string                       `gorm:"size:255;not null;index" json:"work_order"`
	CreatedAt       time.Time                    `gorm:"index" json:"date_created"`
	UpdatedAt       time.Time                    `json:"date_updated"`
	Failed          bool                         `gorm:"not null;default:false" json:"failed"`
	Completed       bool                         `gorm:"not null;default:false" json:"completed"`
	FailState       string                       `gorm:"size:255;not null;default:None" json:"fail_state"`
	LogTimepoints   datatypes.JSONSlice[float64] `json:"log_timepoints"`
	DetailsData     datatypes.JSON               `gorm:"column:details" json:"-" binding:"-"`

	Details EventDetails `gorm:"-" json:"details"`

	// Associations
	Item      Item      `gorm:"constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	Machine   Machine   `gorm:"foreignKey:MachineHostname;references:Hostname;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	Operator  Operator  `gorm:"foreignKey:OperatorCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	WorkOrder WorkOrder `gorm:"foreignKey:WorkOrderCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
}

// NewEvent returns an unsaved event of a registered kind with empty details.
func NewEvent(kind string) (*Event, error) {
	details, err := NewEventDetails(kind)
	if err != nil {
		return nil, err
	}
	return &Event{Kind: kind, Details: details, FailState: FailStateNone}, nil
}

// LogSeries is one named log array.
type LogSeries struct {
	Name string    `json:"name"`
	Data []float64 `json:"data"`
}

// LogResults pairs the event's timepoints with its log arrays.
type LogResults struct {
	Timepoints []float64   `json:"timepoints"`
	Results    []LogSeries `json:"results"`
}

// LogFields returns the log arrays of the details variant, or nil.
func (e *Event) LogFields() []LogField {
	if src, ok := e.Details.(LogSource); ok {
		return src.LogFields()
	}
	return nil
}

// GetLogResults returns the timepoints and every log array labelled with its
// readable name. Any array whose length disagrees with the timepoints is an
// IntegrityError.
func (e *Event) GetLogResults() (*LogResults, error) {
	out := &LogResults{Timepoints: []float64(e.LogTimepoints), Results: []LogSeries{}}
	if out.Timepoints == nil {
		out.Timepoints = []float64{}
	}
	for _, f := range e.LogFields() {
		if len(f.Data) != len(e.LogTimepoints) {
			return nil, &apperr.IntegrityError{Msg: fmt.Sprintf(
				"%s has %d entries but there are %d timepoints", f.Name, len(f.Data), len(e.LogTimepoints))}
		}
		data := f.Data
		if data == nil {
			data = []float64{}
		}
		out.Results = append(out.Results, LogSeries{Name: f.Label, Data: data})
	}
	return out, nil
}

func (e *Event) BeforeSave(tx *gorm.DB) error {
	if e.Details == nil {
		details, err := NewEventDetails(e.Kind)
		if err != nil {
			return err
		}
		e.Details = details
	}

	for _, tp := range e.LogTimepoints {
		if tp < 0 {
			return apperr.NewValidation("log_timepoints", "Timepoints must be non-negative.")
		}
	}

	if e.FailState == "" {
		e.FailState = FailStateNone
	}
	if e.Failed && e.FailState == FailStateNone {
		e.FailState = FailStateUnknown
	}

	raw, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to encode %s details: %w", e.Kind, err)
	}
	e.DetailsData = raw
	return nil
}

func (e *Event) AfterFind(tx *gorm.DB) error {
	details, err := NewEventDetails(e.Kind)
	if err != nil {
		return err
	}
	if len(e.DetailsData) > 0 {
		if err := json.Unmarshal(e.DetailsData, details); err != nil {
			return fmt.Errorf("failed to decode %s details: %w", e.Kind, err)
		}
	}
	e.Details = details
	return nil
}
