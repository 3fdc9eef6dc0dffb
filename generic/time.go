package generic

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// TIME OF DAY - Wall-clock schedule boundaries
// =============================================================================

// TimeOfDay is a wall-clock time expressed in minutes after midnight.
type TimeOfDay int

const minutesPerDay = 24 * 60

// NewTimeOfDay builds hh:mm. It does not validate.
func NewTimeOfDay(hour, minute int) TimeOfDay { return TimeOfDay(hour*60 + minute) }

// ParseTimeOfDay parses "HH:MM" (24h clock).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return 0, fmt.Errorf("invalid time of day %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return NewTimeOfDay(h, m), nil
}

// MustTimeOfDay is ParseTimeOfDay for literals; it panics on bad input.
func MustTimeOfDay(s string) TimeOfDay {
	t, err := ParseTimeOfDay(s)
	if err != nil {
		panic(err)
	}
	return t
}

func (t TimeOfDay) Hour() int   { return int(t) / 60 }
func (t TimeOfDay) Minute() int { return int(t) % 60 }
func (t TimeOfDay) Valid() bool { return t >= 0 && t < minutesPerDay }

func (t TimeOfDay) String() string { return fmt.Sprintf("%02d:%02d", t.Hour(), t.Minute()) }

func (t TimeOfDay) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *TimeOfDay) UnmarshalText(b []byte) error {
	v, err := ParseTimeOfDay(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// On anchors t on the calendar day of date, interpreted in loc. A nil loc
// uses date's own location.
func (t TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = date.Location()
	} else {
		date = date.In(loc)
	}
	y, m, d := date.Date()
	return t.At(y, m, d, loc)
}

// At anchors t on the civil date y-m-d in loc.
func (t TimeOfDay) At(y int, m time.Month, d int, loc *time.Location) time.Time {
	return time.Date(y, m, d, t.Hour(), t.Minute(), 0, 0, loc)
}

// =============================================================================
// TIME UTILITIES
// =============================================================================

const DateLayout = "2006-01-02"

// DateOf truncates t to midnight of its calendar day in its own location.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// ParseDate parses YYYY-MM-DD as a UTC date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: want YYYY-MM-DD", s)
	}
	return t, nil
}

// SameDay reports whether a and b fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// WholeMinutes floors d to whole minutes, never below zero.
func WholeMinutes(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}
