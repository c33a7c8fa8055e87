package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/model"
	"production-tracker-backend/internal/record"
)

// GetConfiguration returns the configuration of kind for sku.
func (s *gormStore) GetConfiguration(ctx context.Context, kind, sku string) (*model.Configuration, error) {
	var cfg model.Configuration
	if err := s.db.WithContext(ctx).Where("kind = ? AND sku_code = ?", kind, sku).Take(&cfg).Error; err != nil {
		return nil, notFound(err, kind+" configuration for SKU", sku)
	}
	return &cfg, nil
}

// PutConfiguration creates or updates the configuration of kind for sku from a
// JSON settings object. Fields absent from settings keep their current (or
// default) values. The bool reports whether a row was created.
func (s *gormStore) PutConfiguration(ctx context.Context, kind, sku string, settings []byte) (*model.Configuration, bool, error) {
	var (
		cfg     *model.Configuration
		created bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, &model.Sku{}, "code", sku, "sku"); err != nil {
			return err
		}

		var existing model.Configuration
		err := tx.Where("kind = ? AND sku_code = ?", kind, sku).Take(&existing).Error
		switch {
		case err == nil:
			cfg = &existing
		case errors.Is(err, gorm.ErrRecordNotFound):
			if cfg, err = model.NewConfiguration(kind, sku); err != nil {
				return err
			}
			created = true
		default:
			return fmt.Errorf("failed to look up %s configuration: %w", kind, err)
		}

		if len(settings) > 0 {
			if err := record.Unmarshal(settings, cfg.Settings); err != nil {
				return err
			}
		}
		if err := record.Validate(cfg.Settings); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(cfg).Error
	})
	if err != nil {
		return nil, false, err
	}
	return cfg, created, nil
}

// SearchConfigurableSkus returns SKUs matching terms that either already have a
// configuration of kind, or have no configuration at all for its production step.
func (s *gormStore) SearchConfigurableSkus(ctx context.Context, kind string, terms []string, limit int) ([]SkuConfigState, error) {
	settings, err := model.NewConfigSettings(kind)
	if err != nil {
		return nil, err
	}
	db := s.db.WithContext(ctx)

	var configured []string
	if err := db.Model(&model.Configuration{}).Where("kind = ?", kind).Pluck("sku_code", &configured).Error; err != nil {
		return nil, fmt.Errorf("failed to list configured SKUs: %w", err)
	}
	has := make(map[string]bool, len(configured))
	for _, c := range configured {
		has[c] = true
	}

	sameStep := db.Model(&model.Configuration{}).Select("sku_code").Where("production_step = ?", settings.ProductionStep())
	sameKind := db.Model(&model.Configuration{}).Select("sku_code").Where("kind = ?", kind)

	var skus []model.Sku
	q := termSearch(db.Model(&model.Sku{}), []string{"code"}, terms).
		Where(db.Where("code NOT IN (?)", sameStep).Or("code IN (?)", sameKind))
	if err := q.Order("code").Limit(limit + 1).Find(&skus).Error; err != nil {
		return nil, fmt.Errorf("failed to search configurable SKUs: %w", err)
	}

	out := make([]SkuConfigState, 0, len(skus))
	for _, sku := range skus {
		out = append(out, SkuConfigState{Code: sku.Code, HasConfiguration: has[sku.Code]})
	}
	return out, nil
}
