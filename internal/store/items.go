package store

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
)

// GetOrCreateItem resolves an item by its identity fields within its kind.
func (s *gormStore) GetOrCreateItem(ctx context.Context, item *model.Item, identity []string) (*model.Item, bool, error) {
	if err := item.Validate(); err != nil {
		return nil, false, err
	}
	db := s.db.WithContext(ctx)
	if err := checkItemRefs(db, item); err != nil {
		return nil, false, err
	}

	fields := append([]string{"Kind"}, identity...)
	got, created, err := GetOrCreate(ctx, db, item, fields...)
	if err != nil {
		return nil, false, err
	}
	if err := fillItem(db, got); err != nil {
		return nil, false, err
	}
	return got, created, nil
}

func (s *gormStore) GetItem(ctx context.Context, id uint64) (*model.Item, error) {
	db := s.db.WithContext(ctx)
	item, err := loadItem(db, id)
	if err != nil {
		return nil, err
	}
	if err := fillItem(db, item); err != nil {
		return nil, err
	}
	return item, nil
}

// UpdateItem applies upd to the item of the given kind. Identity fields never change.
func (s *gormStore) UpdateItem(ctx context.Context, id uint64, kind model.ItemKind, upd ItemUpdate) (*model.Item, error) {
	var out *model.Item
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var item model.Item
		if err := tx.Where("id = ? AND kind = ?", id, kind).Take(&item).Error; err != nil {
			return notFound(err, "item", id)
		}

		if upd.FromBulkID != nil {
			item.FromBulkID = upd.FromBulkID
		}

		var parts []*model.Item
		if upd.ContainsIDs != nil {
			ids := dedupe(*upd.ContainsIDs)
			for _, partID := range ids {
				if partID == item.ID {
					return apperr.NewValidation("contains", "An item cannot contain itself.")
				}
			}
			if len(ids) > 0 {
				if err := tx.Where("id IN ?", ids).Find(&parts).Error; err != nil {
					return fmt.Errorf("failed to load contained items: %w", err)
				}
				if len(parts) != len(ids) {
					return apperr.NewValidation("contains", "Invalid pk in %v - object does not exist.", ids)
				}
			}
			item.ContainsIDs = ids
		}

		if err := checkItemRefs(tx, &item); err != nil {
			return err
		}
		if err := tx.Omit(clause.Associations).Save(&item).Error; err != nil {
			return err
		}

		if upd.ContainsIDs != nil {
			assoc := tx.Model(&item).Association("Contains")
			if len(parts) == 0 {
				err := assoc.Clear()
				if err != nil {
					return fmt.Errorf("failed to clear contained items: %w", err)
				}
			} else if err := assoc.Replace(parts); err != nil {
				return fmt.Errorf("failed to set contained items: %w", err)
			}
		}

		reloaded, err := loadItem(tx, item.ID)
		if err != nil {
			return err
		}
		out = reloaded
		return fillItem(tx, out)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func loadItem(db *gorm.DB, id uint64) (*model.Item, error) {
	var item model.Item
	if err := db.Preload("Contains").Where("id = ?", id).Take(&item).Error; err != nil {
		return nil, notFound(err, "item", id)
	}
	return &item, nil
}

// fillItem computes the read-only fields of item.
func fillItem(db *gorm.DB, item *model.Item) error {
	if item.Kind != model.ItemKindBulk {
		return nil
	}
	var n int64
	err := db.Model(&model.Event{}).
		Where("item_id = ? AND failed = ? AND completed = ?", item.ID, false, true).
		Count(&n).Error
	if err != nil {
		return fmt.Errorf("failed to count succeeded events for item %d: %w", item.ID, err)
	}
	item.QuantitySucceeded = &n
	return nil
}

func checkItemRefs(db *gorm.DB, item *model.Item) error {
	if err := mustExist(db, &model.Sku{}, "code", item.SkuCode, "sku"); err != nil {
		return err
	}
	if item.WorkOrderCode != nil {
		if err := mustExist(db, &model.WorkOrder{}, "code", *item.WorkOrderCode, "work_order"); err != nil {
			return err
		}
	}
	if item.UIDCode != nil {
		if err := mustExist(db, &model.UniqueID{}, "code", *item.UIDCode, "uid"); err != nil {
			return err
		}
	}
	if item.FromBulkID != nil {
		var n int64
		err := db.Model(&model.Item{}).
			Where("id = ? AND kind = ?", *item.FromBulkID, model.ItemKindBulk).
			Count(&n).Error
		if err != nil {
			return fmt.Errorf("failed to check from_bulk: %w", err)
		}
		if n == 0 {
			return apperr.NewValidation("from_bulk", "Invalid pk \"%d\" - object does not exist.", *item.FromBulkID)
		}
	}
	return nil
}

func dedupe(ids []uint64) []uint64 {
	seen := make(map[uint64]bool, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	return out
}
