// Package slots defines the clinic's weekly booking template: which weekdays
// the clinic is open and which times of day are bookable. Everything here is
// pure and deterministic; callers supply "today" so admission and tests share
// the same code path.
package slots

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay is a clock time with minute resolution, stored as minutes from
// midnight. It keeps slot arithmetic free of dates and timezones.
type TimeOfDay int

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute())
}

// ParseTimeOfDay accepts "HH:MM" or "HH:MM:SS" (seconds ignored), as produced
// by both the booking UI and Postgres time columns.
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 && len(parts) != 3 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time of day %q", s)
	}
	return TimeOfDay(h*60 + m), nil
}

// Clinic hours: 09:00 inclusive to 17:00 exclusive, every 15 minutes.
const (
	opensAt     = 9 * 60
	closesAt    = 17 * 60
	stepMinutes = 15
)

// OpenWeekdays returns the weekdays the clinic accepts appointments on:
// Sunday through Thursday. Friday and Saturday are closed.
func OpenWeekdays() map[time.Weekday]bool {
	return map[time.Weekday]bool{
		time.Sunday:    true,
		time.Monday:    true,
		time.Tuesday:   true,
		time.Wednesday: true,
		time.Thursday:  true,
	}
}

func IsOpenWeekday(d time.Weekday) bool {
	return d != time.Friday && d != time.Saturday
}

// DaySlots returns every bookable time for an open day in ascending order:
// 09:00, 09:15, ... 16:45.
func DaySlots() []TimeOfDay {
	out := make([]TimeOfDay, 0, (closesAt-opensAt)/stepMinutes)
	for t := opensAt; t < closesAt; t += stepMinutes {
		out = append(out, TimeOfDay(t))
	}
	return out
}

// IsSlotTime reports whether t is one of the values DaySlots enumerates.
func IsSlotTime(t TimeOfDay) bool {
	return t >= opensAt && t < closesAt && int(t)%stepMinutes == 0
}

// IsBookable reports whether (date, t) is a slot the template allows booking:
// the weekday is open, the date is not before today, and t is a template
// slot. Only the calendar day of date and today matter; pass today in the
// clinic's timezone.
func IsBookable(date time.Time, t TimeOfDay, today time.Time) bool {
	if !IsOpenWeekday(date.Weekday()) {
		return false
	}
	if beforeDay(date, today) {
		return false
	}
	return IsSlotTime(t)
}

func beforeDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	if ay != by {
		return ay < by
	}
	if am != bm {
		return am < bm
	}
	return ad < bd
}
