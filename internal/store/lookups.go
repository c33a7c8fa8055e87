package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"production-tracker-backend/internal/model"
)

func (s *gormStore) GetSku(ctx context.Context, code string) (*model.Sku, error) {
	var sku model.Sku
	if err := s.db.WithContext(ctx).Where("code = ?", code).Take(&sku).Error; err != nil {
		return nil, notFound(err, "SKU", code)
	}
	return &sku, nil
}

func (s *gormStore) GetOperator(ctx context.Context, code string) (*model.Operator, error) {
	var op model.Operator
	if err := s.db.WithContext(ctx).Where("code = ?", code).Take(&op).Error; err != nil {
		return nil, notFound(err, "operator", code)
	}
	return &op, nil
}

func (s *gormStore) GetMachine(ctx context.Context, hostname string) (*model.Machine, error) {
	var m model.Machine
	if err := s.db.WithContext(ctx).Where("hostname = ?", hostname).Take(&m).Error; err != nil {
		return nil, notFound(err, "machine with hostname", hostname)
	}
	return &m, nil
}

// SearchSkus returns at most limit+1 rows, so callers can tell the result was cut short.
func (s *gormStore) SearchSkus(ctx context.Context, terms []string, limit int) ([]model.Sku, error) {
	var skus []model.Sku
	q := termSearch(s.db.WithContext(ctx).Model(&model.Sku{}), []string{"code"}, terms)
	if err := q.Order("code").Limit(limit + 1).Find(&skus).Error; err != nil {
		return nil, fmt.Errorf("failed to search SKUs: %w", err)
	}
	return skus, nil
}

func (s *gormStore) SearchOperators(ctx context.Context, terms []string, limit int) ([]model.Operator, error) {
	var ops []model.Operator
	q := termSearch(s.db.WithContext(ctx).Model(&model.Operator{}), []string{"code", "name"}, terms)
	if err := q.Order("name").Limit(limit + 1).Find(&ops).Error; err != nil {
		return nil, fmt.Errorf("failed to search operators: %w", err)
	}
	return ops, nil
}

func (s *gormStore) SearchMachines(ctx context.Context, terms []string, limit int) ([]model.Machine, error) {
	var machines []model.Machine
	q := termSearch(s.db.WithContext(ctx).Model(&model.Machine{}), []string{"hostname", "name", "production_step"}, terms)
	if err := q.Order("name").Limit(limit + 1).Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to search machines: %w", err)
	}
	return machines, nil
}

func (s *gormStore) CreateZeroingLog(ctx context.Context, z *model.ZeroingLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, &model.Machine{}, "hostname", z.MachineHostname, "machine"); err != nil {
			return err
		}
		if err := mustExist(tx, &model.Operator{}, "code", z.OperatorCode, "operator"); err != nil {
			return err
		}
		return tx.Omit("Machine", "Operator").Create(z).Error
	})
}

func (s *gormStore) GetOrCreateUniqueID(ctx context.Context, u *model.UniqueID, identity []string) (*model.UniqueID, bool, error) {
	return GetOrCreate(ctx, s.db, u, identity...)
}

func (s *gormStore) GetOrCreateWorkOrder(ctx context.Context, w *model.WorkOrder, identity []string) (*model.WorkOrder, bool, error) {
	return GetOrCreate(ctx, s.db, w, identity...)
}

// ClaimUniqueID stores code as a new UniqueID. It reports false when the code is already taken.
func (s *gormStore) ClaimUniqueID(ctx context.Context, code string) (bool, error) {
	db := s.db.WithContext(ctx)
	var n int64
	if err := db.Model(&model.UniqueID{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return false, fmt.Errorf("failed to check unique id %s: %w", code, err)
	}
	if n > 0 {
		return false, nil
	}
	err := db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(&model.UniqueID{Code: code}).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to claim unique id %s: %w", code, err)
	}
	return true, nil
}
