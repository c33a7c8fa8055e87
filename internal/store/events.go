package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/model"
)

// CreateEvent stores a newly started event after checking its references.
// Each within func runs in the same transaction, after the checks and before
// the insert. Any error rolls the event back.
func (s *gormStore) CreateEvent(ctx context.Context, ev *model.Event, within ...func(tx *gorm.DB) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := mustExist(tx, &model.Item{}, "id", ev.ItemID, "item"); err != nil {
			return err
		}
		if err := mustExist(tx, &model.Machine{}, "hostname", ev.MachineHostname, "machine"); err != nil {
			return err
		}
		if err := mustExist(tx, &model.Operator{}, "code", ev.OperatorCode, "operator"); err != nil {
			return err
		}
		if err := mustExist(tx, &model.WorkOrder{}, "code", ev.WorkOrderCode, "work_order"); err != nil {
			return err
		}
		for _, fn := range within {
			if err := fn(tx); err != nil {
				return err
			}
		}
		return tx.Omit(clause.Associations).Create(ev).Error
	})
}

// GetEvent returns the event of the given kind. Events of other kinds are not found.
func (s *gormStore) GetEvent(ctx context.Context, kind string, id uint64) (*model.Event, error) {
	var ev model.Event
	if err := s.db.WithContext(ctx).Where("id = ? AND kind = ?", id, kind).Take(&ev).Error; err != nil {
		return nil, notFound(err, "event", id)
	}
	return &ev, nil
}

// SaveEvent writes every column of ev. References are never rewritten.
func (s *gormStore) SaveEvent(ctx context.Context, ev *model.Event) error {
	return s.db.WithContext(ctx).Omit(clause.Associations, "ItemID", "MachineHostname", "OperatorCode", "WorkOrderCode", "CreatedAt").Save(ev).Error
}

// eventQuery builds a fresh query for f on every call, so counts and pages do not share state.
func (s *gormStore) eventQuery(ctx context.Context, f EventFilter) *gorm.DB {
	db := s.db.WithContext(ctx)
	q := db.Model(&model.Event{})
	if f.Kind != "" {
		q = q.Where("events.kind = ?", f.Kind)
	}
	if f.ItemSku != "" {
		q = q.Where("events.item_id IN (?)",
			db.Model(&model.Item{}).Select("id").Where("LOWER(sku_code) LIKE ? ESCAPE '\\'", containsLike(f.ItemSku)))
	}
	if f.ItemUID != "" {
		q = q.Where("events.item_id IN (?)",
			db.Model(&model.Item{}).Select("id").Where("LOWER(uid_code) LIKE ? ESCAPE '\\'", containsLike(f.ItemUID)))
	}
	if f.Machine != "" {
		q = q.Where("events.machine_hostname = ?", f.Machine)
	}
	if f.ProductionStep != "" {
		q = q.Where("events.machine_hostname IN (?)",
			db.Model(&model.Machine{}).Select("hostname").Where("production_step = ?", f.ProductionStep))
	}
	if f.Operator != "" {
		q = q.Where("events.operator_code = ?", f.Operator)
	}
	if f.WorkOrder != "" {
		q = q.Where("LOWER(events.work_order_code) LIKE ? ESCAPE '\\'", containsLike(f.WorkOrder))
	}
	if f.FromDate != nil {
		q = q.Where("events.created_at >= ?", *f.FromDate)
	}
	if f.ToDate != nil {
		q = q.Where("events.created_at <= ?", f.ToDate.Add(24*time.Hour))
	}
	if f.Failed != nil {
		q = q.Where("events.failed = ?", *f.Failed)
	}
	if f.Completed != nil {
		q = q.Where("events.completed = ?", *f.Completed)
	}
	if len(f.FailStates) > 0 {
		q = q.Where("events.fail_state IN ?", f.FailStates)
	}
	return q
}

func newestFirst(q *gorm.DB) *gorm.DB {
	return q.Order("events.created_at DESC").Order("events.id DESC")
}

func (s *gormStore) CountEvents(ctx context.Context, f EventFilter) (int64, error) {
	var total int64
	if err := s.eventQuery(ctx, f).Count(&total).Error; err != nil {
		return 0, fmt.Errorf("failed to count events: %w", err)
	}
	return total, nil
}

// SearchEvents returns page (0-based) of the events matching f.
func (s *gormStore) SearchEvents(ctx context.Context, f EventFilter, page, pageSize int) (*EventPage, error) {
	if page < 0 {
		page = 0
	}
	total, err := s.CountEvents(ctx, f)
	if err != nil {
		return nil, err
	}

	events := []model.Event{}
	err = newestFirst(s.eventQuery(ctx, f)).
		Offset(page * pageSize).
		Limit(pageSize).
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to search events: %w", err)
	}

	return &EventPage{
		Results: events,
		Page:    page,
		HasNext: int64((page+1)*pageSize) < total,
		Total:   total,
	}, nil
}

// ListEvents returns every event matching f with its item, machine and operator loaded.
func (s *gormStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	var events []model.Event
	err := newestFirst(s.eventQuery(ctx, f)).
		Preload("Item").Preload("Machine").Preload("Operator").
		Find(&events).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	return events, nil
}

// FailStates lists the distinct fail states recorded for kind.
func (s *gormStore) FailStates(ctx context.Context, kind string) ([]string, error) {
	var states []string
	err := s.db.WithContext(ctx).Model(&model.Event{}).
		Where("kind = ?", kind).
		Distinct().
		Pluck("fail_state", &states).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list fail states: %w", err)
	}
	sort.Strings(states)
	return states, nil
}

// PastEvents summarises the outcomes of an item's events.
func (s *gormStore) PastEvents(ctx context.Context, pq PastEventsQuery) (*PastEventsSummary, error) {
	db := s.db.WithContext(ctx)
	out := &PastEventsSummary{FailState: map[string]int64{}}
	if pq.ItemUID != "" {
		var item model.Item
		err := db.Where("uid_code = ?", pq.ItemUID).Take(&item).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to look up item by uid: %w", err)
		}
		pq.ItemID = item.ID
	} else if err := db.Where("id = ?", pq.ItemID).Take(&model.Item{}).Error; err != nil {
		return nil, notFound(err, "item id", pq.ItemID)
	}

	base := func() *gorm.DB {
		q := db.Model(&model.Event{}).Where("events.item_id = ?", pq.ItemID)
		if pq.Kind != "" {
			q = q.Where("events.kind = ?", pq.Kind)
		}
		if pq.ProductionStep != "" {
			q = q.Where("events.machine_hostname IN (?)",
				db.Model(&model.Machine{}).Select("hostname").Where("production_step = ?", pq.ProductionStep))
		}
		return q
	}

	counts := []struct {
		dst   *int64
		where string
		args  []any
	}{
		{&out.Events, "1 = 1", nil},
		{&out.Completed, "events.completed = ?", []any{true}},
		{&out.Incompleted, "events.completed = ?", []any{false}},
		{&out.Passed, "events.completed = ? AND events.failed = ?", []any{true, false}},
		{&out.Failed, "events.failed = ?", []any{true}},
	}
	for _, c := range counts {
		if err := base().Where(c.where, c.args...).Count(c.dst).Error; err != nil {
			return nil, fmt.Errorf("failed to count past events: %w", err)
		}
	}

	var histogram []struct {
		FailState string
		N         int64
	}
	err := base().Select("events.fail_state AS fail_state, COUNT(*) AS n").Group("events.fail_state").Scan(&histogram).Error
	if err != nil {
		return nil, fmt.Errorf("failed to group past events by fail state: %w", err)
	}
	for _, h := range histogram {
		out.FailState[h.FailState] = h.N
	}
	return out, nil
}
