package model

import "time"

// MachineUsage is one operator login session on a machine. A session is open
// while LoggedOutAt is nil.
type MachineUsage struct {
	ID              uint64     `gorm:"primaryKey" json:"id"`
	MachineHostname string     `gorm:"size:255;not null;index:idx_usage_machine_login,priority:1" json:"machine"`
	OperatorCode    string     `gorm:"size:255;not null;index" json:"operator"`
	LoggedInAt      time.Time  `gorm:"not null;index:idx_usage_machine_login,priority:2" json:"logged_in_at"`
	LoggedOutAt     *time.Time `json:"logged_out_at"`
	LastPing        time.Time  `gorm:"not null" json:"last_ping"`

	// Associations
	Machine  Machine  `gorm:"foreignKey:MachineHostname;references:Hostname;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
	Operator Operator `gorm:"foreignKey:OperatorCode;references:Code;constraint:OnDelete:CASCADE" json:"-" binding:"-"`
}

// Active reports whether the session is still open.
func (u *MachineUsage) Active() bool {
	return u.LoggedOutAt == nil
}

// Duration is the session length. Open sessions are measured up to now.
func (u *MachineUsage) Duration(now time.Time) time.Duration {
	if u.LoggedOutAt != nil {
		return u.LoggedOutAt.Sub(u.LoggedInAt)
	}
	return now.Sub(u.LoggedInAt)
}

// TimeoutAt is the latest logout time a stale session may be closed at.
func (u *MachineUsage) TimeoutAt(interval time.Duration) time.Time {
	return u.LastPing.Add(interval)
}
