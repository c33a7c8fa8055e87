package session

import (
	"time"

	"production-tracker-backend/internal/model"
)

// Transition is what a ping does to a machine's latest session.
type Transition struct {
	// Close ends the current session at LogoutAt.
	Close    bool
	LogoutAt time.Time
	// Open starts a new session for the pinging operator.
	Open bool
	// Touch moves the current session's last ping to now.
	Touch bool
	// TimedOut is set when the session was closed because the machine
	// stopped pinging for longer than its interval.
	TimedOut bool
}

// Decide works out the transition for a ping by operator on session u.
//
// A closed session is reopened unless the ping is a logout. An active session
// is closed no later than one interval after its last ping, so a late logout
// or a timeout is backdated to when the machine was last known to be alive.
func Decide(u *model.MachineUsage, operator string, loggingOut bool, interval time.Duration, now time.Time) Transition {
	if !u.Active() {
		return Transition{Open: !loggingOut}
	}

	logoutAt := u.TimeoutAt(interval)
	if now.Before(logoutAt) {
		logoutAt = now
	}

	switch {
	case loggingOut:
		return Transition{Close: true, LogoutAt: logoutAt}
	case now.Sub(u.LastPing) >= interval:
		return Transition{Close: true, LogoutAt: logoutAt, Open: true, TimedOut: true}
	case operator == u.OperatorCode:
		return Transition{Touch: true}
	default:
		return Transition{Close: true, LogoutAt: logoutAt, Open: true}
	}
}
