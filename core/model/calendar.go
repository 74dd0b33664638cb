package model

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const dateLayout = "2006-01-02"

// Date is a calendar day without time of day or location. The zero value
// is not a valid date.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar day of t in t's location.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ParseDate parses an ISO-8601 date (YYYY-MM-DD).
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(s))
	if err != nil {
		return Date{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return DateOf(t), nil
}

// IsZero reports whether d is the zero value.
func (d Date) IsZero() bool { return d == Date{} }

// Time returns midnight UTC of the day.
func (d Date) Time() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// AddDays returns the date n days after d (n may be negative).
func (d Date) AddDays(n int) Date { return DateOf(d.Time().AddDate(0, 0, n)) }

// Compare returns -1, 0 or +1 depending on whether d is before, equal to or
// after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Year != o.Year:
		return cmpInt(d.Year, o.Year)
	case d.Month != o.Month:
		return cmpInt(int(d.Month), int(o.Month))
	default:
		return cmpInt(d.Day, o.Day)
	}
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool { return d.Compare(o) < 0 }

// After reports whether d is strictly after o.
func (d Date) After(o Date) bool { return d.Compare(o) > 0 }

// DayOfWeek returns Monday=0 .. Sunday=6.
func (d Date) DayOfWeek() int {
	return (int(d.Time().Weekday()) + 6) % 7
}

func (d Date) String() string { return d.Time().Format(dateLayout) }

// MarshalJSON encodes the date as "YYYY-MM-DD".
func (d Date) MarshalJSON() ([]byte, error) {
	if d.IsZero() {
		return []byte("null"), nil
	}
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD".
func (d *Date) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*d = Date{}
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// TimeSlot is a time of day with minute resolution, stored as minutes since
// midnight.
type TimeSlot int

// NewTimeSlot builds a slot from hour and minute.
func NewTimeSlot(hour, minute int) (TimeSlot, error) {
	if hour < 0 || hour > 23 || minute < 0 || minute > 59 {
		return 0, fmt.Errorf("time slot %02d:%02d out of range", hour, minute)
	}
	return TimeSlot(hour*60 + minute), nil
}

// MustTimeSlot is NewTimeSlot for constants and tests.
func MustTimeSlot(hour, minute int) TimeSlot {
	ts, err := NewTimeSlot(hour, minute)
	if err != nil {
		panic(err)
	}
	return ts
}

// ParseTimeSlot accepts "HH:MM" and "HH:MM:SS"; seconds are dropped.
func ParseTimeSlot(s string) (TimeSlot, error) {
	s = strings.TrimSpace(s)
	layout := "15:04"
	if strings.Count(s, ":") == 2 {
		layout = "15:04:05"
	}
	t, err := time.Parse(layout, s)
	if err != nil {
		return 0, fmt.Errorf("parse time slot %q: %w", s, err)
	}
	return NewTimeSlot(t.Hour(), t.Minute())
}

func (t TimeSlot) Hour() int   { return int(t) / 60 }
func (t TimeSlot) Minute() int { return int(t) % 60 }

// Valid reports whether the slot lies within one day.
func (t TimeSlot) Valid() bool { return t >= 0 && t < 24*60 }

// Clock returns hour*100+minute, the encoding the regressors were trained on.
func (t TimeSlot) Clock() int { return t.Hour()*100 + t.Minute() }

func (t TimeSlot) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

// MarshalJSON encodes the slot as "HH:MM".
func (t TimeSlot) MarshalJSON() ([]byte, error) { return json.Marshal(t.String()) }

// UnmarshalJSON decodes "HH:MM" or "HH:MM:SS".
func (t *TimeSlot) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	v, err := ParseTimeSlot(s)
	if err != nil {
		return err
	}
	*t = v
	return nil
}

func cmpInt(a, b int) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
