/*
Package attendance classifies daily clock-in/clock-out pairs against a
scheduled shift.

PURPOSE:
  A TimeEntry is one employee's working day: an optional clock-in, an
  optional clock-out and the ShiftSchedule in force that day. Classify turns
  it into ClassifiedMinutes (late, undertime, worked, overtime candidate).
  Classified minutes are derived on every read and never stored.

ENTRY LIFECYCLE:
  Entries are never deleted. A clock event fills an empty slot of the entry;
  corrections create a new entry whose SupersedesID points to the one it
  replaces, so historic classifications stay reproducible.

INVARIANTS:
  - One original entry per employee-day (DayKey)
  - An entry is corrected at most once; later fixes correct the correction

SEE ALSO:
  - classify.go: Classify and ClassifyAll
  - service.go: Entry creation, clock events and corrections
  - overtime: Files overtime against the candidate minutes
*/
package attendance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// SHIFT SCHEDULE
// =============================================================================

// ShiftSchedule is the scheduled day for one entry.
type ShiftSchedule struct {
	Start generic.TimeOfDay
	End   generic.TimeOfDay

	// OvertimeThreshold is the instant after which clock-out minutes count as
	// overtime candidates. Nil means the scheduled end.
	OvertimeThreshold *generic.TimeOfDay

	// Location is the wall-clock zone of the shift. Nil uses the zone of the
	// entry's own timestamps.
	Location *time.Location
}

// Overnight reports whether the shift ends on the next calendar day.
func (s ShiftSchedule) Overnight() bool { return s.End <= s.Start }

// Threshold returns the effective overtime threshold.
func (s ShiftSchedule) Threshold() generic.TimeOfDay {
	if s.OvertimeThreshold != nil {
		return *s.OvertimeThreshold
	}
	return s.End
}

// Validate reports out-of-range times with schedule.* field names.
func (s ShiftSchedule) Validate() error {
	v := &generic.ValidationError{}
	if !s.Start.Valid() {
		v.Add("schedule.start", "must be a time of day")
	}
	if !s.End.Valid() {
		v.Add("schedule.end", "must be a time of day")
	}
	if s.Start == s.End {
		v.Add("schedule.end", "must differ from start")
	}
	if s.OvertimeThreshold != nil && !s.OvertimeThreshold.Valid() {
		v.Add("schedule.overtime_threshold", "must be a time of day")
	}
	return v.OrNil()
}

// =============================================================================
// CLOCK EVENTS AND ENTRIES
// =============================================================================

// ClockEvent is one punch of the clock. MediaRef points at an optional
// photo or attachment kept outside the engine.
type ClockEvent struct {
	ID        string
	Timestamp time.Time
	Remarks   string
	MediaRef  string
}

// Direction selects the clock-in or clock-out slot of an entry.
type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// ParseDirection accepts "in" or "out" in any case.
func ParseDirection(s string) (Direction, error) {
	switch d := Direction(strings.ToLower(strings.TrimSpace(s))); d {
	case DirectionIn, DirectionOut:
		return d, nil
	}
	return "", generic.Invalid("direction", fmt.Sprintf("must be %q or %q", DirectionIn, DirectionOut))
}

// TimeEntry is one employee's working day.
type TimeEntry struct {
	ID         generic.TimeEntryID
	EmployeeID generic.EmployeeID

	// Date is the civil work date. Zero falls back to the clock-in date,
	// then the clock-out date.
	Date time.Time

	TimeIn  *ClockEvent
	TimeOut *ClockEvent

	Schedule ShiftSchedule
	ShiftID  string

	// SupersedesID is the entry this one corrects, empty for originals.
	SupersedesID generic.TimeEntryID

	CreatedAt time.Time
	Version   int
}

// WorkDate returns the civil date the schedule is anchored on.
func (e TimeEntry) WorkDate() (time.Time, bool) {
	switch {
	case !e.Date.IsZero():
		return e.Date, true
	case e.TimeIn != nil:
		return e.TimeIn.Timestamp, true
	case e.TimeOut != nil:
		return e.TimeOut.Timestamp, true
	}
	return time.Time{}, false
}

// DayKey identifies the employee-day of the entry as YYYY-MM-DD, empty when
// the entry has neither a date nor a clock event.
func (e TimeEntry) DayKey() string {
	day, ok := e.WorkDate()
	if !ok {
		return ""
	}
	return day.Format(time.DateOnly)
}

// Complete reports whether both clock events are present.
func (e TimeEntry) Complete() bool { return e.TimeIn != nil && e.TimeOut != nil }

// ClassifiedMinutes is derived from an entry and never persisted.
type ClassifiedMinutes struct {
	Late              int `json:"late_minutes"`
	Undertime         int `json:"undertime_minutes"`
	Worked            int `json:"worked_minutes"`
	OvertimeCandidate int `json:"overtime_candidate_minutes"`
}

// =============================================================================
// REPOSITORY
// =============================================================================

// Repository persists time entries. Update is an optimistic write: it
// succeeds only when the stored version equals e.Version and stores
// e.Version+1; otherwise it fails with generic.ErrConcurrentModification.
//
// CreateEntry fails with generic.ErrDuplicateEntry for a second original
// entry on the same employee-day, and with generic.ErrEntrySuperseded when
// e.SupersedesID already has a correction. SupersededBy returns the
// correction of id, or nil when id is current.
type Repository interface {
	CreateEntry(ctx context.Context, e TimeEntry) error
	UpdateEntry(ctx context.Context, e TimeEntry) error
	GetEntry(ctx context.Context, id generic.TimeEntryID) (TimeEntry, error)
	ListEntries(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]TimeEntry, error)
	SupersededBy(ctx context.Context, id generic.TimeEntryID) (*TimeEntry, error)
}
