package model

import (
	"fmt"

	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/unique"
)

// ItemKind discriminates the two item variants sharing the items table.
type ItemKind string

const (
	ItemKindBulk   ItemKind = "bulk"
	ItemKindSingle ItemKind = "single"
)

// Item is a tracked unit of production. A bulk item is a batch identified by
// work order and SKU; a single item carries its own unique ID and may be made
// of other items.
type Item struct {
	ID            uint64   `gorm:"primaryKey" json:"id"`
	Kind          ItemKind `gorm:"size:16;not null;index" json:"kind"`
	SkuCode       string   `gorm:"size:255;not null;index;uniqueIndex:idx_items_bulk_identity,priority:2" json:"sku"`
	WorkOrderCode *string  `gorm:"size:255;uniqueIndex:idx_items_bulk_identity,priority:1" json:"work_order,omitempty"`
	UIDCode       *string  `gorm:"size:255;uniqueIndex" json:"uid,omitempty"`
	FromBulkID    *uint64  `gorm:"index" json:"from_bulk,omitempty"`

	// Associations
	Sku       Sku        `gorm:"foreignKey:SkuCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	WorkOrder *WorkOrder `gorm:"foreignKey:WorkOrderCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	UID       *UniqueID  `gorm:"foreignKey:UIDCode;references:Code;constraint:OnDelete:SET NULL" json:"-" binding:"-"`
	FromBulk  *Item      `gorm:"foreignKey:FromBulkID;constraint:OnDelete:SET NULL" json:"-" binding:"-"`
	Contains  []*Item    `gorm:"many2many:item_contents;joinForeignKey:ItemID;joinReferences:PartID" json:"-" binding:"-"`

	// Computed on read.
	ContainsIDs       []uint64 `gorm:"-" json:"contains,omitempty"`
	QuantitySucceeded *int64   `gorm:"-" json:"quantity_succeeded,omitempty"`
}

// NewBulkItem builds an unsaved bulk item.
func NewBulkItem(workOrder, sku string) *Item {
	return &Item{Kind: ItemKindBulk, WorkOrderCode: &workOrder, SkuCode: sku}
}

// NewSingleItem builds an unsaved single item.
func NewSingleItem(uidCode, sku string) *Item {
	return &Item{Kind: ItemKindSingle, UIDCode: &uidCode, SkuCode: sku}
}

func (i *Item) constraints() []unique.Constraint {
	switch i.Kind {
	case ItemKindBulk:
		return []unique.Constraint{{
			Fields: []string{"WorkOrderCode", "SkuCode"},
			Scope:  map[string]any{"kind": string(ItemKindBulk)},
		}}
	case ItemKindSingle:
		return []unique.Constraint{unique.Together("UIDCode")}
	}
	return nil
}

// Validate checks the fields each kind requires.
func (i *Item) Validate() error {
	verr := &apperr.ValidationError{}
	if i.SkuCode == "" {
		verr.Add("sku", "This field is required.")
	}
	switch i.Kind {
	case ItemKindBulk:
		if i.WorkOrderCode == nil || *i.WorkOrderCode == "" {
			verr.Add("work_order", "This field is required.")
		}
		if i.UIDCode != nil {
			verr.Add("uid", "Bulk items cannot carry a unique ID.")
		}
		if i.FromBulkID != nil {
			verr.Add("from_bulk", "Bulk items cannot come from another bulk item.")
		}
		if len(i.ContainsIDs) > 0 {
			verr.Add("contains", "Bulk items cannot contain other items.")
		}
	case ItemKindSingle:
		if i.UIDCode == nil || *i.UIDCode == "" {
			verr.Add("uid", "This field is required.")
		}
		if i.WorkOrderCode != nil {
			verr.Add("work_order", "Single items are not tied to a work order.")
		}
	default:
		verr.Add("kind", fmt.Sprintf("%q is not a valid item kind.", i.Kind))
	}
	if verr.Empty() {
		return nil
	}
	return verr
}

func (i *Item) BeforeSave(tx *gorm.DB) error {
	if err := i.Validate(); err != nil {
		return err
	}
	return unique.Check(tx, i, i.constraints()...)
}

func (i *Item) AfterFind(tx *gorm.DB) error {
	if len(i.Contains) > 0 {
		i.ContainsIDs = make([]uint64, 0, len(i.Contains))
		for _, part := range i.Contains {
			i.ContainsIDs = append(i.ContainsIDs, part.ID)
		}
	}
	return nil
}
