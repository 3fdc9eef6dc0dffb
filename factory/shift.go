/*
Package factory provides JSON to Go shift policy conversion.

PURPOSE:
  Converts JSON shift definitions into attendance.ShiftSchedule values so
  schedules and overtime thresholds are configuration, not code. The API
  resolves a time entry's shift_id through a ShiftFactory.

JSON SCHEMA:
  [
    {
      "id": "day",
      "name": "Day shift",
      "start": "08:00",
      "end": "17:00",
      "overtime_threshold": "19:30",
      "timezone": "Asia/Manila"
    }
  ]

  overtime_threshold and timezone are optional; they default to the
  scheduled end and the timestamps' own zone.

USAGE:
  f := factory.NewShiftFactory()
  if err := f.LoadFile("shifts.json"); err != nil { ... }
  schedule, ok := f.Schedule("day")

SEE ALSO:
  - attendance/types.go: ShiftSchedule
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// ShiftJSON is the JSON representation of a shift policy.
type ShiftJSON struct {
	ID                string `json:"id"`
	Name              string `json:"name"`
	Start             string `json:"start"`
	End               string `json:"end"`
	OvertimeThreshold string `json:"overtime_threshold,omitempty"`
	Timezone          string `json:"timezone,omitempty"`
}

// Shift is a named schedule.
type Shift struct {
	ID       string
	Name     string
	Schedule attendance.ShiftSchedule
}

// =============================================================================
// SHIFT FACTORY
// =============================================================================

// ShiftFactory converts and holds shift policies by id.
type ShiftFactory struct {
	mu     sync.RWMutex
	shifts map[string]Shift
}

// NewShiftFactory returns an empty registry.
func NewShiftFactory() *ShiftFactory {
	return &ShiftFactory{shifts: make(map[string]Shift)}
}

// ParseShift parses a single shift object.
func (f *ShiftFactory) ParseShift(jsonStr string) (Shift, error) {
	var sj ShiftJSON
	if err := json.Unmarshal([]byte(jsonStr), &sj); err != nil {
		return Shift{}, fmt.Errorf("failed to parse shift JSON: %w", err)
	}
	return f.FromJSON(sj)
}

// FromJSON validates sj and builds its schedule.
func (f *ShiftFactory) FromJSON(sj ShiftJSON) (Shift, error) {
	if sj.ID == "" {
		return Shift{}, fmt.Errorf("shift id is required")
	}
	start, err := generic.ParseTimeOfDay(sj.Start)
	if err != nil {
		return Shift{}, fmt.Errorf("shift %s: start: %w", sj.ID, err)
	}
	end, err := generic.ParseTimeOfDay(sj.End)
	if err != nil {
		return Shift{}, fmt.Errorf("shift %s: end: %w", sj.ID, err)
	}
	schedule := attendance.ShiftSchedule{Start: start, End: end}

	if sj.OvertimeThreshold != "" {
		th, err := generic.ParseTimeOfDay(sj.OvertimeThreshold)
		if err != nil {
			return Shift{}, fmt.Errorf("shift %s: overtime_threshold: %w", sj.ID, err)
		}
		schedule.OvertimeThreshold = &th
	}
	if sj.Timezone != "" {
		loc, err := time.LoadLocation(sj.Timezone)
		if err != nil {
			return Shift{}, fmt.Errorf("shift %s: timezone: %w", sj.ID, err)
		}
		schedule.Location = loc
	}
	if err := schedule.Validate(); err != nil {
		return Shift{}, fmt.Errorf("shift %s: %w", sj.ID, err)
	}

	name := sj.Name
	if name == "" {
		name = sj.ID
	}
	return Shift{ID: sj.ID, Name: name, Schedule: schedule}, nil
}

// ToJSON is the inverse of FromJSON.
func (f *ShiftFactory) ToJSON(s Shift) ShiftJSON {
	sj := ShiftJSON{
		ID:    s.ID,
		Name:  s.Name,
		Start: s.Schedule.Start.String(),
		End:   s.Schedule.End.String(),
	}
	if s.Schedule.OvertimeThreshold != nil {
		sj.OvertimeThreshold = s.Schedule.OvertimeThreshold.String()
	}
	if s.Schedule.Location != nil {
		sj.Timezone = s.Schedule.Location.String()
	}
	return sj
}

// Load parses a JSON array of shifts and registers them. Nothing is
// registered when any shift is invalid.
func (f *ShiftFactory) Load(data []byte) error {
	var list []ShiftJSON
	if err := json.Unmarshal(data, &list); err != nil {
		return fmt.Errorf("failed to parse shifts JSON: %w", err)
	}
	parsed := make([]Shift, 0, len(list))
	for _, sj := range list {
		s, err := f.FromJSON(sj)
		if err != nil {
			return err
		}
		parsed = append(parsed, s)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range parsed {
		f.shifts[s.ID] = s
	}
	return nil
}

// LoadFile registers every shift in a JSON file.
func (f *ShiftFactory) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read shifts file: %w", err)
	}
	return f.Load(data)
}

// Register adds or replaces a shift.
func (f *ShiftFactory) Register(s Shift) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shifts[s.ID] = s
}

// Schedule returns the schedule of shift id.
func (f *ShiftFactory) Schedule(id string) (attendance.ShiftSchedule, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.shifts[id]
	return s.Schedule, ok
}

// Shifts returns every registered shift ordered by id.
func (f *ShiftFactory) Shifts() []Shift {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Shift, 0, len(f.shifts))
	for _, s := range f.shifts {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
