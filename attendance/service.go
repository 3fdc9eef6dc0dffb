package attendance

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Service owns time entry writes. Mutations on one entry are serialized.
type Service struct {
	Repo  Repository
	Locks *generic.KeyedMutex
	Now   func() time.Time
	NewID generic.IDGenerator
}

// NewService returns a Service over repo with real clock and ids.
func NewService(repo Repository) *Service {
	return &Service{
		Repo:  repo,
		Locks: &generic.KeyedMutex{},
		Now:   time.Now,
		NewID: generic.NewID,
	}
}

// NewEntry is the input for CreateEntry and Correct.
type NewEntry struct {
	EmployeeID generic.EmployeeID
	Date       time.Time
	TimeIn     *ClockEvent
	TimeOut    *ClockEvent
	Schedule   ShiftSchedule
	ShiftID    string
}

func (n NewEntry) validate() error {
	v := &generic.ValidationError{}
	if n.EmployeeID == "" {
		v.Add("employee_id", "is required")
	}
	if n.Date.IsZero() && n.TimeIn == nil && n.TimeOut == nil {
		v.Add("date", "is required when no clock event is given")
	}
	var se *generic.ValidationError
	if errors.As(n.Schedule.Validate(), &se) {
		v.Fields = append(v.Fields, se.Fields...)
	}
	return v.OrNil()
}

// CreateEntry stores the first entry of an employee-day. A day that already
// has an entry fails with generic.ErrDuplicateEntry; fix it with Correct.
func (s *Service) CreateEntry(ctx context.Context, n NewEntry) (TimeEntry, error) {
	if err := n.validate(); err != nil {
		return TimeEntry{}, err
	}
	e := s.build(n)

	unlock := s.Locks.Lock(dayLockKey(e))
	defer unlock()

	if err := s.ensureDayFree(ctx, e); err != nil {
		return TimeEntry{}, err
	}
	if err := s.Repo.CreateEntry(ctx, e); err != nil {
		return TimeEntry{}, fmt.Errorf("create time entry: %w", err)
	}
	return e, nil
}

// Correct creates an entry superseding id. The original is kept. Only the
// latest entry of a correction chain can be corrected; an entry that already
// has a correction fails with generic.ErrEntrySuperseded.
func (s *Service) Correct(ctx context.Context, id generic.TimeEntryID, n NewEntry) (TimeEntry, error) {
	if err := n.validate(); err != nil {
		return TimeEntry{}, err
	}
	unlock := s.Locks.Lock(string(id))
	defer unlock()

	prev, err := s.Repo.GetEntry(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	if prev.EmployeeID != n.EmployeeID {
		return TimeEntry{}, generic.Invalid("employee_id", "must match the corrected entry")
	}
	next, err := s.Repo.SupersededBy(ctx, prev.ID)
	if err != nil {
		return TimeEntry{}, err
	}
	if next != nil {
		return TimeEntry{}, fmt.Errorf("%w: entry %s was corrected by %s", generic.ErrEntrySuperseded, prev.ID, next.ID)
	}

	e := s.build(n)
	e.SupersedesID = prev.ID

	// Moving the entry to another day must not collide with that day's entry.
	if e.DayKey() != prev.DayKey() {
		unlockDay := s.Locks.Lock(dayLockKey(e))
		defer unlockDay()
		if err := s.ensureDayFree(ctx, e); err != nil {
			return TimeEntry{}, err
		}
	}
	if err := s.Repo.CreateEntry(ctx, e); err != nil {
		return TimeEntry{}, fmt.Errorf("create correction: %w", err)
	}
	return e, nil
}

// RecordClock fills the clock-in or clock-out slot of an entry.
func (s *Service) RecordClock(ctx context.Context, id generic.TimeEntryID, dir Direction, ev ClockEvent) (TimeEntry, error) {
	unlock := s.Locks.Lock(string(id))
	defer unlock()

	e, err := s.Repo.GetEntry(ctx, id)
	if err != nil {
		return TimeEntry{}, err
	}
	if ev.ID == "" {
		ev.ID = s.NewID()
	}
	next, err := RecordClockEvent(e, dir, ev)
	if err != nil {
		return TimeEntry{}, err
	}
	if err := s.Repo.UpdateEntry(ctx, next); err != nil {
		return TimeEntry{}, fmt.Errorf("record clock event: %w", err)
	}
	next.Version++
	return next, nil
}

// Get loads one entry, superseded or not.
func (s *Service) Get(ctx context.Context, id generic.TimeEntryID) (TimeEntry, error) {
	return s.Repo.GetEntry(ctx, id)
}


// List returns the employee's current (non-superseded) entries in period.
func (s *Service) List(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]TimeEntry, error) {
	entries, err := s.Repo.ListEntries(ctx, employeeID, period)
	if err != nil {
		return nil, err
	}
	return Current(entries), nil
}

func dayLockKey(e TimeEntry) string {
	return "day:" + string(e.EmployeeID) + "/" + e.DayKey()
}

// ensureDayFree fails when the employee already has an entry on e's day.
func (s *Service) ensureDayFree(ctx context.Context, e TimeEntry) error {
	day, ok := e.WorkDate()
	if !ok {
		return nil
	}
	existing, err := s.Repo.ListEntries(ctx, e.EmployeeID, generic.Period{Start: day, End: day})
	if err != nil {
		return err
	}
	for _, x := range existing {
		if x.DayKey() == e.DayKey() {
			return fmt.Errorf("%w: employee %s has entry %s on %s",
				generic.ErrDuplicateEntry, e.EmployeeID, x.ID, e.DayKey())
		}
	}
	return nil
}

// EntryReader is the read side of Repository used to walk corrections.
type EntryReader interface {
	GetEntry(ctx context.Context, id generic.TimeEntryID) (TimeEntry, error)
	SupersededBy(ctx context.Context, id generic.TimeEntryID) (*TimeEntry, error)
}

// Lineage loads id and then follows SupersedesID back to the original entry.
func Lineage(ctx context.Context, repo EntryReader, id generic.TimeEntryID) ([]TimeEntry, error) {
	var chain []TimeEntry
	seen := make(map[generic.TimeEntryID]bool)
	for id != "" && !seen[id] {
		seen[id] = true
		e, err := repo.GetEntry(ctx, id)
		if err != nil {
			return nil, err
		}
		chain = append(chain, e)
		id = e.SupersedesID
	}
	return chain, nil
}

func (s *Service) build(n NewEntry) TimeEntry {
	e := TimeEntry{
		ID:         generic.TimeEntryID(s.NewID()),
		EmployeeID: n.EmployeeID,
		Date:       n.Date,
		TimeIn:     s.stamp(n.TimeIn),
		TimeOut:    s.stamp(n.TimeOut),
		Schedule:   n.Schedule,
		ShiftID:    n.ShiftID,
		CreatedAt:  s.Now(),
		Version:    1,
	}
	return e
}

func (s *Service) stamp(ev *ClockEvent) *ClockEvent {
	if ev == nil {
		return nil
	}
	c := *ev
	if c.ID == "" {
		c.ID = s.NewID()
	}
	return &c
}

// RecordClockEvent returns e with ev placed in the dir slot. A filled slot
// is never overwritten.
func RecordClockEvent(e TimeEntry, dir Direction, ev ClockEvent) (TimeEntry, error) {
	if ev.Timestamp.IsZero() {
		return e, generic.Invalid("timestamp", "is required")
	}
	switch dir {
	case DirectionIn:
		if e.TimeIn != nil {
			return e, fmt.Errorf("%w: clock-in on entry %s", generic.ErrClockEventExists, e.ID)
		}
		e.TimeIn = &ev
	case DirectionOut:
		if e.TimeOut != nil {
			return e, fmt.Errorf("%w: clock-out on entry %s", generic.ErrClockEventExists, e.ID)
		}
		e.TimeOut = &ev
	default:
		return e, generic.Invalid("direction", fmt.Sprintf("unknown direction %q", dir))
	}
	return e, nil
}
