package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"production-tracker-backend/config"
	"production-tracker-backend/internal/apperr"
	dbpkg "production-tracker-backend/internal/db"
	"production-tracker-backend/internal/logger"
	"production-tracker-backend/internal/model"
)

var t0 = time.Date(2024, 3, 4, 8, 0, 0, 0, time.UTC)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) at(seconds int) {
	c.now = t0.Add(time.Duration(seconds) * time.Second)
}

type recordingNotifier struct{ got []model.MachineUsage }

func (n *recordingNotifier) SessionTimedOut(u model.MachineUsage) { n.got = append(n.got, u) }

func newTestTracker(t *testing.T) (*Tracker, *gorm.DB, *fakeClock, *recordingNotifier) {
	t.Helper()
	gdb, err := dbpkg.Open(&config.DatabaseConfig{Driver: "sqlite", DSN: ":memory:", LogLevel: "silent"})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })
	require.NoError(t, dbpkg.Migrate(gdb))

	for _, v := range []any{
		&model.Machine{Hostname: "press-1", Name: "Press One", ProductionStep: model.StepPressing, RequiredPingInterval: 600},
		&model.Machine{Hostname: "qc-1", Name: "QC One", ProductionStep: model.StepAssemblyQC, RequiredPingInterval: 600},
		&model.Operator{Code: "A", Name: "Alex Reed"},
		&model.Operator{Code: "B", Name: "Jordan Lee"},
	} {
		require.NoError(t, gdb.Create(v).Error)
	}

	clock := &fakeClock{now: t0}
	notifier := &recordingNotifier{}
	return NewTracker(gdb, logger.Nop(), WithClock(clock.Now), WithNotifier(notifier)), gdb, clock, notifier
}

func strPtr(s string) *string { return &s }

func assertTime(t *testing.T, want time.Time, got *time.Time) {
	t.Helper()
	if assert.NotNil(t, got) {
		assert.True(t, want.Equal(*got), "want %s, got %s", want, *got)
	}
}

func sessions(t *testing.T, db *gorm.DB, host string) []model.MachineUsage {
	t.Helper()
	var out []model.MachineUsage
	require.NoError(t, db.Where("machine_hostname = ?", host).Order("id").Find(&out).Error)
	return out
}

func TestDecide(t *testing.T) {
	interval := 10 * time.Minute
	closedAt := t0.Add(time.Minute)
	active := &model.MachineUsage{OperatorCode: "A", LoggedInAt: t0, LastPing: t0}
	closed := &model.MachineUsage{OperatorCode: "A", LoggedInAt: t0, LastPing: t0, LoggedOutAt: &closedAt}

	tests := []struct {
		name       string
		usage      *model.MachineUsage
		operator   string
		loggingOut bool
		after      time.Duration
		want       Transition
	}{
		{"closed session is reopened", closed, "A", false, time.Hour, Transition{Open: true}},
		{"closed session ignores logout", closed, "A", true, time.Hour, Transition{}},
		{"logout within interval closes now", active, "A", true, 5 * time.Minute,
			Transition{Close: true, LogoutAt: t0.Add(5 * time.Minute)}},
		{"late logout is backdated", active, "A", true, time.Hour,
			Transition{Close: true, LogoutAt: t0.Add(interval)}},
		{"same operator within interval", active, "A", false, 9 * time.Minute, Transition{Touch: true}},
		{"other operator within interval", active, "B", false, 9 * time.Minute,
			Transition{Close: true, LogoutAt: t0.Add(9 * time.Minute), Open: true}},
		{"same operator at exactly the interval", active, "A", false, interval,
			Transition{Close: true, LogoutAt: t0.Add(interval), Open: true, TimedOut: true}},
		{"other operator after timeout", active, "B", false, time.Hour,
			Transition{Close: true, LogoutAt: t0.Add(interval), Open: true, TimedOut: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(tt.usage, tt.operator, tt.loggingOut, interval, t0.Add(tt.after))
			assert.Equal(t, tt.want.Close, got.Close)
			assert.Equal(t, tt.want.Open, got.Open)
			assert.Equal(t, tt.want.Touch, got.Touch)
			assert.Equal(t, tt.want.TimedOut, got.TimedOut)
			assert.True(t, tt.want.LogoutAt.Equal(got.LogoutAt), "logout at %s", got.LogoutAt)
		})
	}
}

func TestMachinePing_TimeoutBackdatesLogout(t *testing.T) {
	tr, db, clock, notifier := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	assert.True(t, first.Active())

	clock.at(300)
	again, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.True(t, t0.Add(300*time.Second).Equal(again.LastPing))

	clock.at(950)
	second, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.True(t, t0.Add(950*time.Second).Equal(second.LoggedInAt))

	rows := sessions(t, db, "press-1")
	require.Len(t, rows, 2)
	assertTime(t, t0.Add(900*time.Second), rows[0].LoggedOutAt)
	assert.Nil(t, rows[1].LoggedOutAt)

	require.Len(t, notifier.got, 1)
	assert.Equal(t, first.ID, notifier.got[0].ID)
	assert.Equal(t, "press-1", notifier.got[0].MachineHostname)
}

func TestMachinePing_OperatorHandover(t *testing.T) {
	tr, db, clock, notifier := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)

	clock.at(120)
	next, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("B")})
	require.NoError(t, err)
	assert.Equal(t, "B", next.OperatorCode)

	rows := sessions(t, db, "press-1")
	require.Len(t, rows, 2)
	assertTime(t, t0.Add(120*time.Second), rows[0].LoggedOutAt)
	assert.True(t, rows[1].Active())
	assert.Empty(t, notifier.got)
}

func TestMachinePing_LoggingOut(t *testing.T) {
	tr, db, clock, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1"})
	assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)

	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)

	// Without an operator the ping is a logout, and a late one is backdated.
	clock.at(3600)
	out, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1"})
	require.NoError(t, err)
	assertTime(t, t0.Add(600*time.Second), out.LoggedOutAt)

	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A"), LoggingOut: true})
	assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	assert.Len(t, sessions(t, db, "press-1"), 1)
}

func TestMachinePing_UnknownReferences(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.MachinePing(ctx, PingRequest{Hostname: "nope", OperatorCode: strPtr("A")})
	assert.True(t, apperr.IsNotFound(err))
	assert.ErrorContains(t, err, "nope")

	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("ZZ")})
	assert.True(t, apperr.IsNotFound(err))
	assert.ErrorContains(t, err, "ZZ")
}

func TestPing_ClosedSession(t *testing.T) {
	tr, db, clock, _ := newTestTracker(t)
	ctx := context.Background()

	u, err := tr.LogIn(ctx, "press-1", "A")
	require.NoError(t, err)
	clock.at(60)
	closed, err := tr.LogOut(ctx, u.ID)
	require.NoError(t, err)
	assertTime(t, t0.Add(60*time.Second), closed.LoggedOutAt)

	clock.at(120)
	same, err := tr.LogOut(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.ID, same.ID)
	assertTime(t, t0.Add(60*time.Second), same.LoggedOutAt)

	reopened, err := tr.Ping(ctx, u.ID, "B", false)
	require.NoError(t, err)
	assert.NotEqual(t, u.ID, reopened.ID)
	assert.Equal(t, "B", reopened.OperatorCode)
	assert.Len(t, sessions(t, db, "press-1"), 2)

	_, err = tr.Ping(ctx, 9999, "A", false)
	assert.True(t, apperr.IsNotFound(err))
}

func TestLogIn_DoesNotCloseActiveSession(t *testing.T) {
	tr, db, _, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.LogIn(ctx, "press-1", "A")
	require.NoError(t, err)
	_, err = tr.LogIn(ctx, "press-1", "B")
	require.NoError(t, err)

	rows := sessions(t, db, "press-1")
	require.Len(t, rows, 2)
	assert.True(t, rows[0].Active())
	assert.True(t, rows[1].Active())
}

func TestRecordActivity(t *testing.T) {
	tr, db, clock, _ := newTestTracker(t)
	ctx := context.Background()

	first, err := tr.RecordActivity(ctx, "qc-1", "A")
	require.NoError(t, err)

	clock.at(30)
	same, err := tr.RecordActivity(ctx, "qc-1", "A")
	require.NoError(t, err)
	assert.Equal(t, first.ID, same.ID)

	clock.at(60)
	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "qc-1"})
	require.NoError(t, err)

	// Activity on a logged out machine starts a new session.
	clock.at(90)
	next, err := tr.RecordActivity(ctx, "qc-1", "B")
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, next.ID)
	assert.Len(t, sessions(t, db, "qc-1"), 2)

	latest, err := tr.LatestSession(ctx, "qc-1")
	require.NoError(t, err)
	assert.Equal(t, next.ID, latest.ID)
}

func TestRecordActivityTx_NotifiesOnlyWhenTheCallerCommits(t *testing.T) {
	tr, db, clock, notifier := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.RecordActivity(ctx, "press-1", "A")
	require.NoError(t, err)
	clock.at(700)

	var timedOut *model.MachineUsage
	err = db.Transaction(func(tx *gorm.DB) (err error) {
		_, timedOut, err = tr.RecordActivityTx(tx, "press-1", "A")
		require.NoError(t, err)
		return errors.New("rolled back")
	})
	require.Error(t, err)
	require.NotNil(t, timedOut)
	assert.Empty(t, notifier.got)
	require.Len(t, sessions(t, db, "press-1"), 1)
	assert.True(t, sessions(t, db, "press-1")[0].Active())

	err = db.Transaction(func(tx *gorm.DB) (err error) {
		_, timedOut, err = tr.RecordActivityTx(tx, "press-1", "A")
		return err
	})
	require.NoError(t, err)
	tr.NotifyTimedOut(timedOut)
	assert.Len(t, sessions(t, db, "press-1"), 2)
	assertTime(t, t0.Add(600*time.Second), timedOut.LoggedOutAt)
	assert.Len(t, notifier.got, 1)
}

func TestActiveDuration(t *testing.T) {
	tr, db, clock, _ := newTestTracker(t)
	ctx := context.Background()

	day := func(d int, h int) time.Time { return time.Date(2024, 3, d, h, 0, 0, 0, time.UTC) }
	closed := func(host string, from, to time.Time) {
		u := model.MachineUsage{MachineHostname: host, OperatorCode: "A", LoggedInAt: from, LastPing: to, LoggedOutAt: &to}
		require.NoError(t, db.Create(&u).Error)
	}
	closed("press-1", day(4, 8), day(4, 10))
	closed("press-1", day(5, 8), day(5, 9))
	closed("qc-1", day(5, 12), day(5, 15))
	require.NoError(t, db.Create(&model.MachineUsage{
		MachineHostname: "qc-1", OperatorCode: "B", LoggedInAt: day(6, 8), LastPing: day(6, 8),
	}).Error)
	clock.now = day(6, 20)

	got, err := tr.ActiveDuration(ctx, DurationQuery{})
	require.NoError(t, err)
	assert.Equal(t, 6*time.Hour, got)

	got, err = tr.ActiveDuration(ctx, DurationQuery{Machine: "press-1"})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, got)

	from, to := day(5, 0), day(5, 0)
	got, err = tr.ActiveDuration(ctx, DurationQuery{From: &from, To: &to})
	require.NoError(t, err)
	assert.Equal(t, 4*time.Hour, got)

	// Open sessions never count, however wide the range.
	farFuture := day(30, 0)
	got, err = tr.ActiveDuration(ctx, DurationQuery{Machine: "qc-1", To: &farFuture})
	require.NoError(t, err)
	assert.Equal(t, 3*time.Hour, got)
}

func TestLoggedInMachines(t *testing.T) {
	tr, _, _, _ := newTestTracker(t)
	ctx := context.Background()

	machines, err := tr.LoggedInMachines(ctx)
	require.NoError(t, err)
	assert.Empty(t, machines)

	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "qc-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("B")})
	require.NoError(t, err)
	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1"})
	require.NoError(t, err)

	machines, err = tr.LoggedInMachines(ctx)
	require.NoError(t, err)
	require.Len(t, machines, 1)
	assert.Equal(t, "qc-1", machines[0].Hostname)
}

func TestCloseStale(t *testing.T) {
	tr, db, clock, notifier := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	clock.at(400)
	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "qc-1", OperatorCode: strPtr("B")})
	require.NoError(t, err)

	clock.at(700)
	closed, err := tr.CloseStale(ctx)
	require.NoError(t, err)
	require.Len(t, closed, 1)
	assert.Equal(t, "press-1", closed[0].MachineHostname)
	assertTime(t, t0.Add(600*time.Second), sessions(t, db, "press-1")[0].LoggedOutAt)
	assert.True(t, sessions(t, db, "qc-1")[0].Active())
	require.Len(t, notifier.got, 1)

	// A second sweep finds nothing new.
	closed, err = tr.CloseStale(ctx)
	require.NoError(t, err)
	assert.Empty(t, closed)

	// The next ping after a sweep starts a fresh session.
	clock.at(800)
	current, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	assert.True(t, current.Active())
	assert.Len(t, sessions(t, db, "press-1"), 2)
	assert.Len(t, notifier.got, 1)
}

func TestCloseStale_LateLogoutFindsNoSession(t *testing.T) {
	tr, db, clock, _ := newTestTracker(t)
	ctx := context.Background()

	_, err := tr.MachinePing(ctx, PingRequest{Hostname: "press-1", OperatorCode: strPtr("A")})
	require.NoError(t, err)
	clock.at(700)
	_, err = tr.CloseStale(ctx)
	require.NoError(t, err)

	// The operator's own logout arrives after the sweep closed the session.
	clock.at(750)
	_, err = tr.MachinePing(ctx, PingRequest{Hostname: "press-1", LoggingOut: true})
	assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	require.Len(t, sessions(t, db, "press-1"), 1)
	assertTime(t, t0.Add(600*time.Second), sessions(t, db, "press-1")[0].LoggedOutAt)
}

func TestMachinePing_LocksMachineRowOnPostgres(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{})
	require.NoError(t, err)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT \* FROM "machines" WHERE hostname = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"hostname", "name", "production_step", "required_ping_interval"}).
			AddRow("press-1", "Press One", "Pressing", 600))
	mock.ExpectQuery(`SELECT \* FROM "machine_usages" WHERE machine_hostname = \$1 ORDER BY logged_in_at DESC,\s*id DESC LIMIT`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "machine_hostname", "operator_code", "logged_in_at", "logged_out_at", "last_ping"}))
	mock.ExpectRollback()

	tr := NewTracker(gdb, logger.Nop())
	_, err = tr.MachinePing(context.Background(), PingRequest{Hostname: "press-1"})
	assert.ErrorIs(t, err, apperr.ErrNotLoggedIn)
	assert.NoError(t, mock.ExpectationsWereMet())
}
