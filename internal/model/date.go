package model

import (
	"strings"
	"time"
)

// DateLayout is the wire format for calendar dates (year-month-day, no zone).
const DateLayout = "2006-01-02"

// Date is a calendar day with no time-of-day or timezone component.
// Internally it is anchored at UTC midnight so day arithmetic never
// crosses a DST boundary.
type Date struct {
	t time.Time
}

// NewDate builds a Date from its components. Out-of-range components are
// normalized the same way time.Date does.
func NewDate(year int, month time.Month, day int) Date {
	return Date{t: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf returns the calendar day of t as observed in t's own location.
func DateOf(t time.Time) Date {
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate parses s as YYYY-MM-DD. The second return value is false for
// blank or malformed input; callers treat that as an absent date.
func ParseDate(s string) (Date, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Date{}, false
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return Date{}, false
	}
	return Date{t: t}, true
}

// ValidDate reports whether year/month/day name a real calendar day
// (2026-02-30 does not) and returns it.
func ValidDate(year, month, day int) (Date, bool) {
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return Date{}, false
	}
	d := NewDate(year, time.Month(month), day)
	if d.t.Year() != year || int(d.t.Month()) != month || d.t.Day() != day {
		return Date{}, false
	}
	return d, true
}

func (d Date) IsZero() bool { return d.t.IsZero() }

func (d Date) Year() int { return d.t.Year() }

func (d Date) Month() time.Month { return d.t.Month() }

func (d Date) Day() int { return d.t.Day() }

// AddDays returns d shifted by n days (n may be negative).
func (d Date) AddDays(n int) Date {
	return Date{t: d.t.AddDate(0, 0, n)}
}

// DaysUntil returns the number of days from d to other (negative if other
// is earlier).
func (d Date) DaysUntil(other Date) int {
	return int(other.t.Sub(d.t).Hours() / 24)
}

func (d Date) Before(other Date) bool { return d.t.Before(other.t) }

func (d Date) After(other Date) bool { return d.t.After(other.t) }

func (d Date) Equal(other Date) bool { return d.t.Equal(other.t) }

// Compare returns -1, 0 or +1, suitable for slices.SortFunc.
func (d Date) Compare(other Date) int { return d.t.Compare(other.t) }

// In returns midnight of the day in loc.
func (d Date) In(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
}

func (d Date) String() string {
	if d.IsZero() {
		return ""
	}
	return d.t.Format(DateLayout)
}

func (d Date) MarshalText() ([]byte, error) {
	return []byte(d.String()), nil
}

func (d *Date) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*d = Date{}
		return nil
	}
	t, err := time.Parse(DateLayout, string(b))
	if err != nil {
		return err
	}
	d.t = t
	return nil
}
