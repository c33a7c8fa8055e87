package model

import (
	"strings"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/uid"
)

// WorkOrderPrefixes are the only accepted work order code prefixes.
var WorkOrderPrefixes = []string{"E3D-WO-", "E3D-PO-", "E3D-CR-"}

// Sku identifies a stock-keeping unit.
type Sku struct {
	Code        string `gorm:"primaryKey;size:255" json:"code" binding:"required"`
	Description string `gorm:"type:text" json:"description"`
}

// WorkOrder groups production activity.
type WorkOrder struct {
	Code       string    `gorm:"primaryKey;size:255" json:"code" binding:"required,work_order_code"`
	CreatedAt  time.Time `json:"date_created"`
	UpdatedAt  time.Time `json:"last_updated"`
	IsTestData bool      `gorm:"not null;default:false" json:"is_test_data"`
}

// ValidateWorkOrderCode checks the code prefix.
func ValidateWorkOrderCode(code string) error {
	for _, p := range WorkOrderPrefixes {
		if strings.HasPrefix(code, p) {
			return nil
		}
	}
	return apperr.NewValidation("code",
		"Work Order '%s' does not start with 'E3D-WO-', 'E3D-PO-', or 'E3D-CR-'", code)
}

func (w *WorkOrder) BeforeSave(tx *gorm.DB) error {
	return ValidateWorkOrderCode(w.Code)
}

// UniqueID is a code applied to a single item. MatchesSchemas is derived from
// Code and recomputed on every save.
type UniqueID struct {
	Code           string                      `gorm:"primaryKey;size:255" json:"code" binding:"required"`
	DateCreated    time.Time                   `gorm:"type:date" json:"date_created"`
	MatchesSchemas datatypes.JSONSlice[string] `json:"matches_schemas"`
}

// UpdateSchemas stores the schemas Code satisfies, failing when there are none.
func (u *UniqueID) UpdateSchemas() error {
	matched := uid.MatchAll(u.Code)
	if len(matched) == 0 {
		return apperr.NewValidation("code", "UID code %s doesn't match any known schema!", u.Code)
	}
	u.MatchesSchemas = matched
	return nil
}

func (u *UniqueID) BeforeSave(tx *gorm.DB) error {
	if u.DateCreated.IsZero() {
		u.DateCreated = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return u.UpdateSchemas()
}

// ZeroingLog records a resistance zeroing on a machine.
type ZeroingLog struct {
	ID              uint64    `gorm:"primaryKey" json:"id"`
	Date            time.Time `gorm:"not null" json:"date"`
	Resistance      float64   `gorm:"not null" json:"resistance"`
	MachineHostname string    `gorm:"size:255;not null;index" json:"machine" binding:"required"`
	OperatorCode    string    `gorm:"size:255;not null;index" json:"operator" binding:"required"`

	Machine  Machine  `gorm:"foreignKey:MachineHostname;references:Hostname;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	Operator Operator `gorm:"foreignKey:OperatorCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
}

func (z *ZeroingLog) BeforeCreate(tx *gorm.DB) error {
	if z.Date.IsZero() {
		z.Date = time.Now().UTC()
	}
	return nil
}
