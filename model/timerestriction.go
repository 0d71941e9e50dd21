// model/timerestriction.go
package model

import "time"

// DaySchedule is an allowed window for one day of the week. Times are
// "HH:MM"; End before Start means the window crosses midnight.
type DaySchedule struct {
	DayOfWeek time.Weekday `json:"day_of_week"`
	Start     string       `json:"start"`
	End       string       `json:"end"`
	Enabled   bool         `json:"enabled"`
}

// Holiday overrides the weekly schedule on an exact calendar date.
type Holiday struct {
	Date          string `json:"date"` // "2006-01-02"
	Name          string `json:"name,omitempty"`
	AllowAccess   bool   `json:"allow_access"`
	EmergencyOnly bool   `json:"emergency_only"`
}

type TimeRestriction struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Schedules       []DaySchedule `json:"schedules"`
	Timezone        string        `json:"timezone"`
	Holidays        []Holiday     `json:"holidays,omitempty"`
	AllowBreakGlass bool          `json:"allow_break_glass"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// AfterHoursAccess is a time-boxed grant produced by the after-hours
// approval workflow. Expired grants transition to EXPIRED rather than
// being deleted, preserving the audit trail.
type AfterHoursAccess struct {
	ID         string        `json:"id"`
	UserID     string        `json:"user_id"`
	Reason     string        `json:"reason,omitempty"`
	Status     RequestStatus `json:"status"`
	ApprovedBy string        `json:"approved_by,omitempty"`
	ExpiresAt  *time.Time    `json:"expires_at,omitempty"`
	CreatedAt  time.Time     `json:"created_at"`
	UpdatedAt  time.Time     `json:"updated_at"`
}

func (a *AfterHoursAccess) Expired(now time.Time) bool {
	return a.ExpiresAt != nil && a.ExpiresAt.Before(now)
}
