package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"production-tracker-backend/internal/apperr"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
)

// Notifier is told about sessions closed because their machine stopped pinging.
type Notifier interface {
	SessionTimedOut(usage model.MachineUsage)
}

// Tracker owns the machine usage sessions. Every read-decide-write sequence
// runs in one transaction holding the machine row lock.
type Tracker struct {
	db       *gorm.DB
	log      *logger.Logger
	now      func() time.Time
	notifier Notifier
}

type Option func(*Tracker)

// WithClock replaces the wall clock.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithNotifier registers n for timeout closes.
func WithNotifier(n Notifier) Option {
	return func(t *Tracker) { t.notifier = n }
}

func NewTracker(db *gorm.DB, log *logger.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		db:  db,
		log: log,
		now: func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// PingRequest is a machine's periodic report of who is using it.
// A nil OperatorCode means the machine is logging out.
type PingRequest struct {
	Hostname     string  `json:"hostname" binding:"required"`
	OperatorCode *string `json:"operator_id"`
	LoggingOut   bool    `json:"logging_out"`
}

// DurationQuery filters ActiveDuration. To covers the whole of its day.
type DurationQuery struct {
	Machine string
	From    *time.Time
	To      *time.Time
}

// LogIn opens a new session for operator on the machine. It does not close a
// session that is already active.
func (t *Tracker) LogIn(ctx context.Context, hostname, operator string) (*model.MachineUsage, error) {
	var usage *model.MachineUsage
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMachine(tx, hostname)
		if err != nil {
			return err
		}
		if err := operatorExists(tx, operator); err != nil {
			return err
		}
		usage, err = openSession(tx, m.Hostname, operator, t.now())
		return err
	})
	if err != nil {
		return nil, err
	}
	return usage, nil
}

// Ping applies a ping by operator to the session with the given id and returns
// the session that is current afterwards.
func (t *Tracker) Ping(ctx context.Context, usageID uint64, operator string, loggingOut bool) (*model.MachineUsage, error) {
	var (
		current  *model.MachineUsage
		timedOut *model.MachineUsage
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var u model.MachineUsage
		if err := tx.Where("id = ?", usageID).Take(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("machine usage", usageID)
			}
			return fmt.Errorf("failed to load machine usage %d: %w", usageID, err)
		}
		m, err := lockMachine(tx, u.MachineHostname)
		if err != nil {
			return err
		}
		// Re-read under the lock.
		if err := tx.Where("id = ?", usageID).Take(&u).Error; err != nil {
			return fmt.Errorf("failed to reload machine usage %d: %w", usageID, err)
		}
		if !loggingOut {
			if err := operatorExists(tx, operator); err != nil {
				return err
			}
		}
		current, timedOut, err = t.apply(tx, m, &u, operator, loggingOut)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.NotifyTimedOut(timedOut)
	return current, nil
}

// LogOut closes the session with the given id. Closed sessions are returned unchanged.
func (t *Tracker) LogOut(ctx context.Context, usageID uint64) (*model.MachineUsage, error) {
	return t.Ping(ctx, usageID, "", true)
}

// MachinePing handles a ping from a machine: logouts close the latest session,
// otherwise the operator is logged in or the latest session is pinged.
func (t *Tracker) MachinePing(ctx context.Context, req PingRequest) (*model.MachineUsage, error) {
	loggingOut := req.LoggingOut || req.OperatorCode == nil
	var operator string
	if req.OperatorCode != nil {
		operator = *req.OperatorCode
	}

	var (
		current  *model.MachineUsage
		timedOut *model.MachineUsage
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		m, err := lockMachine(tx, req.Hostname)
		if err != nil {
			return err
		}
		last, err := latestSession(tx, m.Hostname)
		if err != nil {
			return err
		}

		if loggingOut {
			if last == nil || !last.Active() {
				return apperr.ErrNotLoggedIn
			}
			current, timedOut, err = t.apply(tx, m, last, operator, true)
			return err
		}

		if err := operatorExists(tx, operator); err != nil {
			return err
		}
		if last == nil {
			current, err = openSession(tx, m.Hostname, operator, t.now())
			return err
		}
		current, timedOut, err = t.apply(tx, m, last, operator, false)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.NotifyTimedOut(timedOut)
	return current, nil
}

// RecordActivity notes that operator did work on the machine: a machine that
// has never had a session is logged in, otherwise its latest session is pinged.
func (t *Tracker) RecordActivity(ctx context.Context, hostname, operator string) (*model.MachineUsage, error) {
	var (
		current  *model.MachineUsage
		timedOut *model.MachineUsage
	)
	err := t.db.WithContext(ctx).Transaction(func(tx *gorm.DB) (err error) {
		current, timedOut, err = t.RecordActivityTx(tx, hostname, operator)
		return err
	})
	if err != nil {
		return nil, err
	}
	t.NotifyTimedOut(timedOut)
	return current, nil
}

// RecordActivityTx is RecordActivity inside a transaction owned by the caller.
// A session it closed for timing out is returned as timedOut and must be
// passed to NotifyTimedOut once the transaction commits.
func (t *Tracker) RecordActivityTx(tx *gorm.DB, hostname, operator string) (current, timedOut *model.MachineUsage, err error) {
	m, err := lockMachine(tx, hostname)
	if err != nil {
		return nil, nil, err
	}
	if err := operatorExists(tx, operator); err != nil {
		return nil, nil, err
	}
	last, err := latestSession(tx, m.Hostname)
	if err != nil {
		return nil, nil, err
	}
	if last == nil {
		current, err = openSession(tx, m.Hostname, operator, t.now())
		return current, nil, err
	}
	return t.apply(tx, m, last, operator, false)
}

// CloseStale closes the latest session of every machine that has missed its
// ping window. Logouts are backdated to the last ping plus one interval, as a
// late ping would have done.
func (t *Tracker) CloseStale(ctx context.Context) ([]model.MachineUsage, error) {
	db := t.db.WithContext(ctx)
	var hostnames []string
	err := db.Model(&model.MachineUsage{}).
		Where("logged_out_at IS NULL").
		Distinct().
		Pluck("machine_hostname", &hostnames).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}

	var closed []model.MachineUsage
	for _, hostname := range hostnames {
		var stale *model.MachineUsage
		err := db.Transaction(func(tx *gorm.DB) error {
			m, err := lockMachine(tx, hostname)
			if err != nil {
				return err
			}
			last, err := latestSession(tx, m.Hostname)
			if err != nil || last == nil {
				return err
			}
			tr := Decide(last, last.OperatorCode, false, m.PingInterval(), t.now())
			if !tr.TimedOut {
				return nil
			}
			at := tr.LogoutAt
			if err := tx.Model(last).Update("logged_out_at", at).Error; err != nil {
				return fmt.Errorf("failed to close session: %w", err)
			}
			last.LoggedOutAt = &at
			stale = last
			return nil
		})
		if err != nil {
			return closed, err
		}
		if stale != nil {
			t.NotifyTimedOut(stale)
			closed = append(closed, *stale)
		}
	}
	return closed, nil
}

// LatestSession returns the machine's most recent session, or nil if it never had one.
func (t *Tracker) LatestSession(ctx context.Context, hostname string) (*model.MachineUsage, error) {
	return latestSession(t.db.WithContext(ctx), hostname)
}

// ActiveDuration sums the length of closed sessions matching q. Open sessions
// are left out entirely.
func (t *Tracker) ActiveDuration(ctx context.Context, q DurationQuery) (time.Duration, error) {
	query := t.db.WithContext(ctx).Model(&model.MachineUsage{}).Where("logged_out_at IS NOT NULL")
	if q.Machine != "" {
		query = query.Where("machine_hostname = ?", q.Machine)
	}
	if q.From != nil {
		query = query.Where("logged_in_at >= ?", q.From.UTC())
	}
	if q.To != nil {
		query = query.Where("logged_out_at <= ?", q.To.AddDate(0, 0, 1).UTC())
	}

	var sessions []model.MachineUsage
	if err := query.Find(&sessions).Error; err != nil {
		return 0, fmt.Errorf("failed to list machine usage: %w", err)
	}
	var total time.Duration
	for i := range sessions {
		total += sessions[i].Duration(t.now())
	}
	return total, nil
}

// LoggedInMachines lists machines with an active session, ordered by name.
func (t *Tracker) LoggedInMachines(ctx context.Context) ([]model.Machine, error) {
	db := t.db.WithContext(ctx)
	active := db.Model(&model.MachineUsage{}).Select("machine_hostname").Where("logged_out_at IS NULL")

	machines := []model.Machine{}
	if err := db.Where("hostname IN (?)", active).Order("name").Find(&machines).Error; err != nil {
		return nil, fmt.Errorf("failed to list logged in machines: %w", err)
	}
	return machines, nil
}

// apply writes the transition for a ping on u. It returns the current session
// and, when u was closed by a timeout, u itself.
func (t *Tracker) apply(tx *gorm.DB, m *model.Machine, u *model.MachineUsage, operator string, loggingOut bool) (*model.MachineUsage, *model.MachineUsage, error) {
	now := t.now()
	tr := Decide(u, operator, loggingOut, m.PingInterval(), now)

	if tr.Touch {
		if err := tx.Model(u).Update("last_ping", now).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to record ping: %w", err)
		}
		u.LastPing = now
		return u, nil, nil
	}

	var timedOut *model.MachineUsage
	if tr.Close {
		at := tr.LogoutAt
		if err := tx.Model(u).Update("logged_out_at", at).Error; err != nil {
			return nil, nil, fmt.Errorf("failed to close session: %w", err)
		}
		u.LoggedOutAt = &at
		if tr.TimedOut {
			timedOut = u
		}
	}
	if !tr.Open {
		return u, timedOut, nil
	}
	next, err := openSession(tx, m.Hostname, operator, now)
	if err != nil {
		return nil, nil, err
	}
	return next, timedOut, nil
}

// NotifyTimedOut logs a session closed for timing out and hands it to the
// notifier. A nil session is ignored.
func (t *Tracker) NotifyTimedOut(u *model.MachineUsage) {
	if u == nil {
		return
	}
	t.log.Info("machine session timed out",
		"machine", u.MachineHostname, "operator", u.OperatorCode, "logged_out_at", u.LoggedOutAt)
	if t.notifier != nil {
		t.notifier.SessionTimedOut(*u)
	}
}

// lockMachine loads the machine, holding its row lock where the database supports it.
func lockMachine(tx *gorm.DB, hostname string) (*model.Machine, error) {
	q := tx
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var m model.Machine
	if err := q.Where("hostname = ?", hostname).Take(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("machine with hostname", hostname)
		}
		return nil, fmt.Errorf("failed to lock machine %s: %w", hostname, err)
	}
	return &m, nil
}

func operatorExists(tx *gorm.DB, code string) error {
	var n int64
	if err := tx.Model(&model.Operator{}).Where("code = ?", code).Count(&n).Error; err != nil {
		return fmt.Errorf("failed to look up operator %s: %w", code, err)
	}
	if n == 0 {
		return apperr.NotFound("operator", code)
	}
	return nil
}

func latestSession(tx *gorm.DB, hostname string) (*model.MachineUsage, error) {
	var rows []model.MachineUsage
	err := tx.Where("machine_hostname = ?", hostname).
		Order("logged_in_at DESC").Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load latest session for %s: %w", hostname, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func openSession(tx *gorm.DB, hostname, operator string, now time.Time) (*model.MachineUsage, error) {
	u := &model.MachineUsage{
		MachineHostname: hostname,
		OperatorCode:    operator,
		LoggedInAt:      now,
		LastPing:        now,
	}
	if err := tx.Omit(clause.Associations).Create(u).Error; err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	return u, nil
}
