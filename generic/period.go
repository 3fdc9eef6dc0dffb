package generic

import (
	"time"
)

// =============================================================================
// PERIOD - Inclusive date range for listings and reports
// =============================================================================

// Period is an inclusive range of calendar days [Start, End]. A zero Start
// or End leaves that side open.
type Period struct {
	Start time.Time
	End   time.Time
}

// NewPeriod validates that end is not before start.
func NewPeriod(start, end time.Time) (Period, error) {
	p := Period{Start: start, End: end}
	if !start.IsZero() && !end.IsZero() && DateOf(end).Before(DateOf(start)) {
		return Period{}, ErrInvalidPeriod
	}
	return p, nil
}

// ParsePeriod parses optional YYYY-MM-DD bounds.
func ParsePeriod(from, to string) (Period, error) {
	var start, end time.Time
	var err error
	if from != "" {
		if start, err = ParseDate(from); err != nil {
			return Period{}, Invalid("from", err.Error())
		}
	}
	if to != "" {
		if end, err = ParseDate(to); err != nil {
			return Period{}, Invalid("to", err.Error())
		}
	}
	return NewPeriod(start, end)
}

// MonthOf returns the calendar month containing t.
func MonthOf(t time.Time) Period {
	first := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
	return Period{Start: first, End: first.AddDate(0, 1, -1)}
}

// Contains compares by calendar day, ignoring the clock.
func (p Period) Contains(t time.Time) bool {
	day := civil(t)
	if !p.Start.IsZero() && day < civil(p.Start) {
		return false
	}
	if !p.End.IsZero() && day > civil(p.End) {
		return false
	}
	return true
}

// Days returns every day in a closed period. Open periods yield nil.
func (p Period) Days() []time.Time {
	if p.Start.IsZero() || p.End.IsZero() {
		return nil
	}
	var days []time.Time
	for d := DateOf(p.Start); !DateOf(p.End).Before(d); d = d.AddDate(0, 0, 1) {
		days = append(days, d)
	}
	return days
}

func (p Period) String() string {
	format := func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return t.Format(DateLayout)
	}
	return "[" + format(p.Start) + ", " + format(p.End) + "]"
}

// civil encodes a calendar day as yyyymmdd so days compare across zones.
func civil(t time.Time) int {
	y, m, d := t.Date()
	return y*10000 + int(m)*100 + d
}
