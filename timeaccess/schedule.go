// timeaccess/schedule.go
package timeaccess

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/harborgrid-justin/lithic-sub009/model"
)

const holidayDateLayout = "2006-01-02"

// parseMinutes converts "HH:MM" to minutes since midnight.
func parseMinutes(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid time %q: want HH:MM", s)
	}
	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour*60 + minute, nil
}

// scheduleAllows reports whether t's time of day falls in the schedule's
// window. A window whose end precedes its start crosses midnight: the
// time matches when it is at or after the start OR at or before the end.
func scheduleAllows(schedule model.DaySchedule, t time.Time) (bool, error) {
	start, err := parseMinutes(schedule.Start)
	if err != nil {
		return false, err
	}
	end, err := parseMinutes(schedule.End)
	if err != nil {
		return false, err
	}
	minutes := t.Hour()*60 + t.Minute()

	if end < start {
		return minutes >= start || minutes <= end, nil
	}
	return minutes >= start && minutes <= end, nil
}

// scheduleFor finds the enabled schedule for t's weekday, nil if none.
func scheduleFor(restriction *model.TimeRestriction, t time.Time) *model.DaySchedule {
	for i := range restriction.Schedules {
		s := &restriction.Schedules[i]
		if s.DayOfWeek == t.Weekday() && s.Enabled {
			return s
		}
	}
	return nil
}

// holidayFor finds a holiday with an exact calendar-date match, nil if none.
func holidayFor(restriction *model.TimeRestriction, t time.Time) *model.Holiday {
	date := t.Format(holidayDateLayout)
	for i := range restriction.Holidays {
		if restriction.Holidays[i].Date == date {
			return &restriction.Holidays[i]
		}
	}
	return nil
}

// localize shifts t into the restriction's timezone, falling back to UTC
// on an unknown zone name.
func localize(restriction *model.TimeRestriction, t time.Time) time.Time {
	if restriction.Timezone == "" {
		return t
	}
	loc, err := time.LoadLocation(restriction.Timezone)
	if err != nil {
		return t.UTC()
	}
	return t.In(loc)
}
