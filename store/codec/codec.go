// Package codec converts domain values to and from the column encodings
// shared by the SQL stores.
package codec

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/shiftchange"
)

// TimeLayout is fixed-width UTC so stored timestamps sort as text.
const TimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

func ParseTime(s string) (time.Time, error) { return time.Parse(time.RFC3339Nano, s) }

func FormatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := FormatTime(*t)
	return &s
}

func ParseTimePtr(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := ParseTime(*s)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// FormatDate returns the civil date of t, or nil for the zero time.
func FormatDate(t time.Time) *string {
	if t.IsZero() {
		return nil
	}
	s := t.Format(generic.DateLayout)
	return &s
}

func ParseDate(s *string) (time.Time, error) {
	if s == nil || *s == "" {
		return time.Time{}, nil
	}
	return generic.ParseDate(*s)
}

// =============================================================================
// CLOCK EVENTS
// =============================================================================

// Clock events keep their original offset so entries without a shift
// location classify the same after a round trip.
type clockEvent struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Remarks   string    `json:"remarks,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
}

func EncodeClockEvent(ev *attendance.ClockEvent) (*string, error) {
	if ev == nil {
		return nil, nil
	}
	b, err := json.Marshal(clockEvent{ID: ev.ID, Timestamp: ev.Timestamp, Remarks: ev.Remarks, MediaRef: ev.MediaRef})
	if err != nil {
		return nil, fmt.Errorf("encode clock event: %w", err)
	}
	s := string(b)
	return &s, nil
}

func DecodeClockEvent(s *string) (*attendance.ClockEvent, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	var ce clockEvent
	if err := json.Unmarshal([]byte(*s), &ce); err != nil {
		return nil, fmt.Errorf("decode clock event: %w", err)
	}
	return &attendance.ClockEvent{ID: ce.ID, Timestamp: ce.Timestamp, Remarks: ce.Remarks, MediaRef: ce.MediaRef}, nil
}

// =============================================================================
// SCHEDULES
// =============================================================================

// Schedule is the column form of a ShiftSchedule.
type Schedule struct {
	Start     int
	End       int
	Threshold *int
	Timezone  string
}

func EncodeSchedule(s attendance.ShiftSchedule) Schedule {
	out := Schedule{Start: int(s.Start), End: int(s.End)}
	if s.OvertimeThreshold != nil {
		v := int(*s.OvertimeThreshold)
		out.Threshold = &v
	}
	if s.Location != nil {
		out.Timezone = s.Location.String()
	}
	return out
}

func (s Schedule) Decode() (attendance.ShiftSchedule, error) {
	out := attendance.ShiftSchedule{Start: generic.TimeOfDay(s.Start), End: generic.TimeOfDay(s.End)}
	if s.Threshold != nil {
		th := generic.TimeOfDay(*s.Threshold)
		out.OvertimeThreshold = &th
	}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return attendance.ShiftSchedule{}, fmt.Errorf("decode schedule timezone: %w", err)
		}
		out.Location = loc
	}
	return out, nil
}

// =============================================================================
// APPROVALS
// =============================================================================

// Decision is the column form of one role's DecisionRecord.
type Decision struct {
	Decision  string
	ActorID   string
	DecidedAt *string
}

func EncodeDecision(r generic.DecisionRecord) Decision {
	return Decision{Decision: r.Decision.String(), ActorID: r.ActorID, DecidedAt: FormatTimePtr(r.DecidedAt)}
}

func (d Decision) Decode() (generic.DecisionRecord, error) {
	dec, err := generic.ParseDecision(d.Decision)
	if err != nil {
		return generic.DecisionRecord{}, err
	}
	at, err := ParseTimePtr(d.DecidedAt)
	if err != nil {
		return generic.DecisionRecord{}, err
	}
	return generic.DecisionRecord{Decision: dec, ActorID: d.ActorID, DecidedAt: at}, nil
}

func EncodeStrings(v []string) (string, error) {
	if v == nil {
		v = []string{}
	}
	b, err := json.Marshal(v)
	return string(b), err
}

func DecodeStrings(s string) ([]string, error) {
	if s == "" {
		return nil, nil
	}
	var out []string
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, fmt.Errorf("decode string list: %w", err)
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out, nil
}

type project struct {
	Project string `json:"project"`
	Leader  string `json:"leader"`
}

func EncodeProjects(ps []shiftchange.ProjectAssignment) (string, error) {
	out := make([]project, 0, len(ps))
	for _, p := range ps {
		out = append(out, project{Project: p.ProjectRef, Leader: p.LeaderRef})
	}
	b, err := json.Marshal(out)
	return string(b), err
}

func DecodeProjects(s string) ([]shiftchange.ProjectAssignment, error) {
	var in []project
	if err := json.Unmarshal([]byte(s), &in); err != nil {
		return nil, fmt.Errorf("decode projects: %w", err)
	}
	out := make([]shiftchange.ProjectAssignment, 0, len(in))
	for _, p := range in {
		out = append(out, shiftchange.ProjectAssignment{ProjectRef: p.Project, LeaderRef: p.Leader})
	}
	return out, nil
}
