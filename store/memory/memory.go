// Package memory provides an in-memory implementation of every repository
// (for tests and DB_DRIVER=memory).
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

// Memory keeps every repository in maps behind one RWMutex.
type Memory struct {
	mu           sync.RWMutex
	entries      map[generic.TimeEntryID]attendance.TimeEntry
	overtime     map[generic.RequestID]overtime.Request
	shiftChanges map[generic.RequestID]shiftchange.Request
	leaves       map[leave.RecordID]leave.Record
	transitions  []generic.Transition
}

var (
	_ attendance.Repository  = (*Memory)(nil)
	_ overtime.Repository    = (*Memory)(nil)
	_ shiftchange.Repository = (*Memory)(nil)
	_ leave.Repository       = (*Memory)(nil)
	_ generic.AuditLog       = (*Memory)(nil)
)

// New returns an empty store.
func New() *Memory {
	return &Memory{
		entries:      make(map[generic.TimeEntryID]attendance.TimeEntry),
		overtime:     make(map[generic.RequestID]overtime.Request),
		shiftChanges: make(map[generic.RequestID]shiftchange.Request),
		leaves:       make(map[leave.RecordID]leave.Record),
	}
}

// Reset drops all data.
func (m *Memory) Reset(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[generic.TimeEntryID]attendance.TimeEntry)
	m.overtime = make(map[generic.RequestID]overtime.Request)
	m.shiftChanges = make(map[generic.RequestID]shiftchange.Request)
	m.leaves = make(map[leave.RecordID]leave.Record)
	m.transitions = nil
	return nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func (m *Memory) CreateEntry(_ context.Context, e attendance.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[e.ID]; ok {
		return fmt.Errorf("%w: id %s is taken", generic.ErrDuplicateEntry, e.ID)
	}
	if err := m.entryConflict(e); err != nil {
		return err
	}
	e.Version = 1
	m.entries[e.ID] = cloneEntry(e)
	return nil
}

func (m *Memory) UpdateEntry(_ context.Context, e attendance.TimeEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.entries[e.ID]
	if !ok {
		return generic.NotFound("time entry", string(e.ID))
	}
	if cur.Version != e.Version {
		return generic.ErrConcurrentModification
	}
	if err := m.entryConflict(e); err != nil {
		return err
	}
	e.Version++
	m.entries[e.ID] = cloneEntry(e)
	return nil
}

func (m *Memory) GetEntry(_ context.Context, id generic.TimeEntryID) (attendance.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[id]
	if !ok {
		return attendance.TimeEntry{}, generic.NotFound("time entry", string(id))
	}
	return cloneEntry(e), nil
}

func (m *Memory) ListEntries(_ context.Context, employeeID generic.EmployeeID, period generic.Period) ([]attendance.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []attendance.TimeEntry
	for _, e := range m.entries {
		day, ok := e.WorkDate()
		if e.EmployeeID != employeeID || !ok || !period.Contains(day) {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	sort.Slice(out, func(i, j int) bool {
		di, _ := out[i].WorkDate()
		dj, _ := out[j].WorkDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *Memory) SupersededBy(_ context.Context, id generic.TimeEntryID) (*attendance.TimeEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.SupersedesID == id {
			c := cloneEntry(e)
			return &c, nil
		}
	}
	return nil, nil
}

// entryConflict mirrors the SQL unique indexes: one original entry per
// employee-day and one correction per entry.
func (m *Memory) entryConflict(e attendance.TimeEntry) error {
	for _, x := range m.entries {
		if x.ID == e.ID {
			continue
		}
		if e.SupersedesID != "" && x.SupersedesID == e.SupersedesID {
			return fmt.Errorf("%w: entry %s was corrected by %s", generic.ErrEntrySuperseded, e.SupersedesID, x.ID)
		}
		if e.SupersedesID == "" && x.SupersedesID == "" && e.DayKey() != "" &&
			x.EmployeeID == e.EmployeeID && x.DayKey() == e.DayKey() {
			return fmt.Errorf("%w: employee %s has entry %s on %s", generic.ErrDuplicateEntry, e.EmployeeID, x.ID, e.DayKey())
		}
	}
	return nil
}

func cloneEntry(e attendance.TimeEntry) attendance.TimeEntry {
	if e.TimeIn != nil {
		in := *e.TimeIn
		e.TimeIn = &in
	}
	if e.TimeOut != nil {
		out := *e.TimeOut
		e.TimeOut = &out
	}
	return e
}

// =============================================================================
// OVERTIME REQUESTS
// =============================================================================

func (m *Memory) CreateOvertime(_ context.Context, r overtime.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r.Status() == generic.StatusPending {
		for _, other := range m.overtime {
			if other.TimeEntryID == r.TimeEntryID && other.Status() == generic.StatusPending {
				return &generic.DuplicateRequestError{TimeEntryID: r.TimeEntryID, ExistingID: other.ID, Status: other.Status()}
			}
		}
	}
	r.Version = 1
	m.overtime[r.ID] = cloneOvertime(r)
	return nil
}

func (m *Memory) UpdateOvertime(_ context.Context, r overtime.Request, tr generic.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.overtime[r.ID]
	if !ok {
		return generic.NotFound("overtime request", string(r.ID))
	}
	if cur.Version != r.Version {
		return generic.ErrConcurrentModification
	}
	r.Version++
	m.overtime[r.ID] = cloneOvertime(r)
	m.transitions = append(m.transitions, tr)
	return nil
}

func (m *Memory) GetOvertime(_ context.Context, id generic.RequestID) (overtime.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.overtime[id]
	if !ok {
		return overtime.Request{}, generic.NotFound("overtime request", string(id))
	}
	return cloneOvertime(r), nil
}

func (m *Memory) OvertimeForEntry(_ context.Context, entryID generic.TimeEntryID) ([]overtime.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []overtime.Request
	for _, r := range m.overtime {
		if r.TimeEntryID == entryID {
			out = append(out, cloneOvertime(r))
		}
	}
	sortOvertime(out)
	return out, nil
}

func (m *Memory) ListOvertime(_ context.Context, f overtime.Filter) ([]overtime.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []overtime.Request
	for _, r := range m.overtime {
		if f.Matches(r) {
			out = append(out, cloneOvertime(r))
		}
	}
	sortOvertime(out)
	return out, nil
}

func sortOvertime(rs []overtime.Request) {
	sort.Slice(rs, func(i, j int) bool {
		if !rs[i].FiledAt.Equal(rs[j].FiledAt) {
			return rs[i].FiledAt.Before(rs[j].FiledAt)
		}
		return rs[i].ID < rs[j].ID
	})
}

func cloneOvertime(r overtime.Request) overtime.Request {
	if r.ApprovedMinutes != nil {
		v := *r.ApprovedMinutes
		r.ApprovedMinutes = &v
	}
	r.Approvers.Leaders = append([]string(nil), r.Approvers.Leaders...)
	return r
}

// =============================================================================
// SHIFT CHANGE REQUESTS
// =============================================================================

func (m *Memory) CreateShiftChange(_ context.Context, r shiftchange.Request) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r.Version = 1
	m.shiftChanges[r.ID] = cloneShiftChange(r)
	return nil
}

func (m *Memory) UpdateShiftChange(_ context.Context, r shiftchange.Request, tr generic.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.shiftChanges[r.ID]
	if !ok {
		return generic.NotFound("shift change request", string(r.ID))
	}
	if cur.Version != r.Version {
		return generic.ErrConcurrentModification
	}
	r.Version++
	m.shiftChanges[r.ID] = cloneShiftChange(r)
	m.transitions = append(m.transitions, tr)
	return nil
}

func (m *Memory) GetShiftChange(_ context.Context, id generic.RequestID) (shiftchange.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.shiftChanges[id]
	if !ok {
		return shiftchange.Request{}, generic.NotFound("shift change request", string(id))
	}
	return cloneShiftChange(r), nil
}

func (m *Memory) ListShiftChanges(_ context.Context, f shiftchange.Filter) ([]shiftchange.Request, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []shiftchange.Request
	for _, r := range m.shiftChanges {
		if f.Matches(r) {
			out = append(out, cloneShiftChange(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].FiledAt.Equal(out[j].FiledAt) {
			return out[i].FiledAt.Before(out[j].FiledAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func cloneShiftChange(r shiftchange.Request) shiftchange.Request {
	r.Projects = append([]shiftchange.ProjectAssignment(nil), r.Projects...)
	return r
}

// =============================================================================
// LEAVES
// =============================================================================

func (m *Memory) CreateLeave(_ context.Context, r leave.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.leaves[r.ID]; ok {
		return generic.Invalid("id", fmt.Sprintf("leave %s already exists", r.ID))
	}
	m.leaves[r.ID] = r
	return nil
}

func (m *Memory) GetLeave(_ context.Context, id leave.RecordID) (leave.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.leaves[id]
	if !ok {
		return leave.Record{}, generic.NotFound("leave", string(id))
	}
	return r, nil
}

func (m *Memory) ListLeaves(_ context.Context, f leave.Filter) ([]leave.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []leave.Record
	for _, r := range m.leaves {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (m *Memory) AppendTransition(_ context.Context, t generic.Transition) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transitions = append(m.transitions, t)
	return nil
}

func (m *Memory) Transitions(_ context.Context, f generic.AuditFilter) ([]generic.Transition, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []generic.Transition
	for _, t := range m.transitions {
		if f.Matches(t) {
			out = append(out, t)
		}
	}
	return out, nil
}
