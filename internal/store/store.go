package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/model"
)

// Store defines the interface for all database operations outside machine usage tracking.
type Store interface {
	DB() *gorm.DB

	// Lookups and searches
	GetSku(ctx context.Context, code string) (*model.Sku, error)
	GetOperator(ctx context.Context, code string) (*model.Operator, error)
	GetMachine(ctx context.Context, hostname string) (*model.Machine, error)
	SearchSkus(ctx context.Context, terms []string, limit int) ([]model.Sku, error)
	SearchOperators(ctx context.Context, terms []string, limit int) ([]model.Operator, error)
	SearchMachines(ctx context.Context, terms []string, limit int) ([]model.Machine, error)
	CreateZeroingLog(ctx context.Context, z *model.ZeroingLog) error

	// Unique IDs and work orders
	GetOrCreateUniqueID(ctx context.Context, u *model.UniqueID, identity []string) (*model.UniqueID, bool, error)
	GetOrCreateWorkOrder(ctx context.Context, w *model.WorkOrder, identity []string) (*model.WorkOrder, bool, error)
	ClaimUniqueID(ctx context.Context, code string) (bool, error)

	// Items
	GetOrCreateItem(ctx context.Context, item *model.Item, identity []string) (*model.Item, bool, error)
	GetItem(ctx context.Context, id uint64) (*model.Item, error)
	UpdateItem(ctx context.Context, id uint64, kind model.ItemKind, upd ItemUpdate) (*model.Item, error)

	// Events
	CreateEvent(ctx context.Context, ev *model.Event, within ...func(tx *gorm.DB) error) error
	GetEvent(ctx context.Context, kind string, id uint64) (*model.Event, error)
	SaveEvent(ctx context.Context, ev *model.Event) error
	SearchEvents(ctx context.Context, f EventFilter, page, pageSize int) (*EventPage, error)
	CountEvents(ctx context.Context, f EventFilter) (int64, error)
	ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error)
	FailStates(ctx context.Context, kind string) ([]string, error)
	PastEvents(ctx context.Context, q PastEventsQuery) (*PastEventsSummary, error)

	// Configurations
	GetConfiguration(ctx context.Context, kind, sku string) (*model.Configuration, error)
	PutConfiguration(ctx context.Context, kind, sku string, settings []byte) (*model.Configuration, bool, error)
	SearchConfigurableSkus(ctx context.Context, kind string, terms []string, limit int) ([]SkuConfigState, error)
}

// gormStore implements the Store interface using GORM.
type gormStore struct {
	db *gorm.DB
}

// NewGormStore creates a new GORM-backed store.
func NewGormStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func (s *gormStore) DB() *gorm.DB {
	return s.db
}

// GetOrCreate returns the row matching candidate on the identity fields (Go
// field names), creating candidate when there is none. The bool reports
// whether a row was created.
//
// Creation runs in its own transaction (a savepoint when tx is already one).
// When it loses a race to a concurrent creator, the duplicate-key or uniqueness
// failure resolves to the winner's row.
func GetOrCreate[T any](ctx context.Context, tx *gorm.DB, candidate *T, identity ...string) (*T, bool, error) {
	if len(identity) == 0 {
		return nil, false, errors.New("get-or-create needs at least one identity field")
	}
	tx = tx.WithContext(ctx)
	fields := make([]any, len(identity))
	for i, f := range identity {
		fields[i] = f
	}

	lookup := func() (*T, error) {
		var found T
		if err := tx.Where(candidate, fields...).Take(&found).Error; err != nil {
			return nil, err
		}
		return &found, nil
	}

	found, err := lookup()
	if err == nil {
		return found, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, fmt.Errorf("failed to look up %T: %w", candidate, err)
	}

	err = tx.Transaction(func(inner *gorm.DB) error {
		return inner.Create(candidate).Error
	})
	if err == nil {
		return candidate, true, nil
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) || apperr.IsValidation(err) {
		if winner, ferr := lookup(); ferr == nil {
			return winner, false, nil
		}
	}
	return nil, false, err
}

// notFound translates gorm.ErrRecordNotFound into a NotFoundError.
func notFound(err error, resource string, key any) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(resource, key)
	}
	return err
}

// mustExist reports a missing referenced row as a validation error on field.
func mustExist(tx *gorm.DB, value any, column string, key any, field string) error {
	var n int64
	if err := tx.Model(value).Where(column+" = ?", key).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to check %s: %w", field, err)
	}
	if n == 0 {
		return apperr.NewValidation(field, "Invalid pk \"%v\" - object does not exist.", key)
	}
	return nil
}

// termSearch requires every term to appear, case-insensitively, in at least one of columns.
func termSearch(q *gorm.DB, columns []string, terms []string) *gorm.DB {
	for _, term := range terms {
		like := "%" + escapeLike(strings.ToLower(term)) + "%"
		group := q.Session(&gorm.Session{NewDB: true})
		for i, col := range columns {
			cond := "LOWER(" + col + ") LIKE ? ESCAPE '\\'"
			if i == 0 {
				group = group.Where(cond, like)
			} else {
				group = group.Or(cond, like)
			}
		}
		q = q.Where(group)
	}
	return q
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func containsLike(s string) string {
	return "%" + escapeLike(strings.ToLower(s)) + "%"
}
