/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the engine's model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

TIME FORMATS:
  - Instants: RFC 3339 ("2025-03-10T19:45:00+08:00")
  - Dates: "YYYY-MM-DD"
  - Times of day: "HH:MM"

VALIDATION:
  Handlers convert requests into engine inputs; the engine validates them and
  reports field errors that writeError renders under "fields".

SEE ALSO:
  - handlers.go: Uses these types
  - errors.go: ErrorResponse rendering
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
)

// =============================================================================
// TIME ENTRIES
// =============================================================================

// ClockEventDTO is a clock-in or clock-out in requests and responses.
type ClockEventDTO struct {
	ID        string    `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Remarks   string    `json:"remarks,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
}

// ScheduleDTO is an inline shift schedule.
type ScheduleDTO struct {
	Start             generic.TimeOfDay  `json:"start"`
	End               generic.TimeOfDay  `json:"end"`
	OvertimeThreshold *generic.TimeOfDay `json:"overtime_threshold,omitempty"`
	Timezone          string             `json:"timezone,omitempty"`
}

// CreateTimeEntryRequest creates an entry. The schedule comes from shift_id,
// then schedule, then the server default.
type CreateTimeEntryRequest struct {
	EmployeeID string         `json:"employee_id"`
	Date       string         `json:"date,omitempty"`
	TimeIn     *ClockEventDTO `json:"time_in,omitempty"`
	TimeOut    *ClockEventDTO `json:"time_out,omitempty"`
	ShiftID    string         `json:"shift_id,omitempty"`
	Schedule   *ScheduleDTO   `json:"schedule,omitempty"`
	Corrects   string         `json:"corrects,omitempty"` // id of the entry this one replaces
}

// ClockRequest records one clock event.
type ClockRequest struct {
	Direction string    `json:"direction"`
	Timestamp time.Time `json:"timestamp"`
	Remarks   string    `json:"remarks,omitempty"`
	MediaRef  string    `json:"media_ref,omitempty"`
}

// TimeEntryDTO is one daily time record row. Classification is the
// ClassifiedMinutes, or "N/A" when a clock event is missing.
type TimeEntryDTO struct {
	ID             string         `json:"id"`
	EmployeeID     string         `json:"employee_id"`
	Date           string         `json:"date"`
	TimeIn         *ClockEventDTO `json:"time_in"`
	TimeOut        *ClockEventDTO `json:"time_out"`
	Schedule       ScheduleDTO    `json:"schedule"`
	ShiftID        string         `json:"shift_id,omitempty"`
	SupersedesID   string         `json:"supersedes_id,omitempty"`
	Version        int            `json:"version"`
	Classification any            `json:"classification"`
	Overtime       overtime.Cell  `json:"overtime"`
}

// =============================================================================
// OVERTIME
// =============================================================================

// FileOvertimeRequest is the request to file overtime on an entry.
type FileOvertimeRequest struct {
	RequestedMinutes int      `json:"requested_minutes"`
	Remarks          string   `json:"remarks,omitempty"`
	Leaders          []string `json:"leaders,omitempty"`
	Manager          string   `json:"manager,omitempty"`
}

// DecisionRequest records one approver's decision. ActorID is honoured only
// when the server runs without JWT auth.
type DecisionRequest struct {
	Role            string `json:"role"`
	Decision        string `json:"decision"`
	ApprovedMinutes *int   `json:"approved_minutes,omitempty"`
	ActorID         string `json:"actor_id,omitempty"`
}

// DecisionDTO is one role's decision.
type DecisionDTO struct {
	Decision  generic.Decision `json:"decision"`
	ActorID   string           `json:"actor_id,omitempty"`
	DecidedAt *time.Time       `json:"decided_at,omitempty"`
}

// OvertimeDTO represents an overtime request.
type OvertimeDTO struct {
	ID               string         `json:"id"`
	TimeEntryID      string         `json:"time_entry_id"`
	EmployeeID       string         `json:"employee_id"`
	RequestedMinutes int            `json:"requested_minutes"`
	ApprovedMinutes  *int           `json:"approved_minutes"`
	Status           generic.Status `json:"status"`
	Leader           DecisionDTO    `json:"leader"`
	Manager          DecisionDTO    `json:"manager"`
	Leaders          []string       `json:"leaders,omitempty"`
	ManagerRef       string         `json:"manager_ref,omitempty"`
	Remarks          string         `json:"remarks,omitempty"`
	FiledBy          string         `json:"filed_by,omitempty"`
	FiledAt          time.Time      `json:"filed_at"`
	SupersedesID     string         `json:"supersedes_id,omitempty"`
	Version          int            `json:"version"`
}

// =============================================================================
// SHIFT CHANGES
// =============================================================================

// ProjectDTO pairs a project with its leader.
type ProjectDTO struct {
	Project string `json:"project"`
	Leader  string `json:"leader"`
}

// ShiftChangeRequest is the request to file a shift change.
type ShiftChangeRequest struct {
	EmployeeID       string       `json:"employee_id"`
	TimeEntryID      string       `json:"time_entry_id,omitempty"`
	RequestedTimeIn  time.Time    `json:"requested_time_in"`
	RequestedTimeOut time.Time    `json:"requested_time_out"`
	Projects         []ProjectDTO `json:"projects"`
	Manager          string       `json:"manager"`
	Remarks          string       `json:"remarks,omitempty"`
}

// ShiftChangeDTO represents a shift change request.
type ShiftChangeDTO struct {
	ID               string         `json:"id"`
	EmployeeID       string         `json:"employee_id"`
	TimeEntryID      string         `json:"time_entry_id,omitempty"`
	RequestedTimeIn  time.Time      `json:"requested_time_in"`
	RequestedTimeOut time.Time      `json:"requested_time_out"`
	Projects         []ProjectDTO   `json:"projects"`
	Manager          string         `json:"manager"`
	Remarks          string         `json:"remarks,omitempty"`
	Status           generic.Status `json:"status"`
	Leader           DecisionDTO    `json:"leader"`
	ManagerDecision  DecisionDTO    `json:"manager_decision"`
	FiledBy          string         `json:"filed_by,omitempty"`
	FiledAt          time.Time      `json:"filed_at"`
	Version          int            `json:"version"`
}

// =============================================================================
// LEAVES
// =============================================================================

// CreateLeaveRequest is the request to record a leave.
type CreateLeaveRequest struct {
	EmployeeID  string          `json:"employee_id"`
	Date        string          `json:"date"`
	LeaveType   string          `json:"leave_type"`
	IsWithPay   bool            `json:"is_with_pay"`
	NumOfLeaves decimal.Decimal `json:"num_of_leaves"`
	Reason      string          `json:"reason,omitempty"`
}

// CancelLeaveRequest carries an optional cancellation reason.
type CancelLeaveRequest struct {
	Reason string `json:"reason,omitempty"`
}

// LeaveDTO represents a leave record.
type LeaveDTO struct {
	ID          string          `json:"id"`
	EmployeeID  string          `json:"employee_id"`
	Date        string          `json:"date"`
	LeaveType   string          `json:"leave_type"`
	IsWithPay   bool            `json:"is_with_pay"`
	NumOfLeaves decimal.Decimal `json:"num_of_leaves"`
	Reason      string          `json:"reason,omitempty"`
	CancelsID   string          `json:"cancels_id,omitempty"`
}

// LeaveBreakdownResponse is the grouped summary plus the detail table.
type LeaveBreakdownResponse struct {
	Table     []leave.Row     `json:"table"`
	Breakdown leave.Breakdown `json:"breakdown"`
}

// =============================================================================
// AUDIT, SHIFTS, SCENARIOS
// =============================================================================

// TransitionDTO is one audit trail entry.
type TransitionDTO struct {
	RequestID string              `json:"request_id"`
	Kind      generic.RequestKind `json:"kind"`
	Role      generic.Role        `json:"role"`
	Decision  generic.Decision    `json:"decision"`
	ActorID   string              `json:"actor_id,omitempty"`
	From      generic.Status      `json:"from"`
	To        generic.Status      `json:"to"`
	At        time.Time           `json:"at"`
}

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest names the scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func toClockEventDTO(ev *attendance.ClockEvent) *ClockEventDTO {
	if ev == nil {
		return nil
	}
	return &ClockEventDTO{ID: ev.ID, Timestamp: ev.Timestamp, Remarks: ev.Remarks, MediaRef: ev.MediaRef}
}

func (c *ClockEventDTO) toClockEvent() *attendance.ClockEvent {
	if c == nil {
		return nil
	}
	return &attendance.ClockEvent{ID: c.ID, Timestamp: c.Timestamp, Remarks: c.Remarks, MediaRef: c.MediaRef}
}

func toScheduleDTO(s attendance.ShiftSchedule) ScheduleDTO {
	dto := ScheduleDTO{Start: s.Start, End: s.End, OvertimeThreshold: s.OvertimeThreshold}
	if s.Location != nil {
		dto.Timezone = s.Location.String()
	}
	return dto
}

func (s ScheduleDTO) toSchedule() (attendance.ShiftSchedule, error) {
	out := attendance.ShiftSchedule{Start: s.Start, End: s.End, OvertimeThreshold: s.OvertimeThreshold}
	if s.Timezone != "" {
		loc, err := time.LoadLocation(s.Timezone)
		if err != nil {
			return out, generic.Invalid("schedule.timezone", err.Error())
		}
		out.Location = loc
	}
	return out, nil
}

func toTimeEntryDTO(e attendance.TimeEntry) TimeEntryDTO {
	dto := TimeEntryDTO{
		ID:             string(e.ID),
		EmployeeID:     string(e.EmployeeID),
		TimeIn:         toClockEventDTO(e.TimeIn),
		TimeOut:        toClockEventDTO(e.TimeOut),
		Schedule:       toScheduleDTO(e.Schedule),
		ShiftID:        e.ShiftID,
		SupersedesID:   string(e.SupersedesID),
		Version:        e.Version,
		Classification: "N/A",
	}
	if day, ok := e.WorkDate(); ok {
		dto.Date = day.Format(generic.DateLayout)
	}
	return dto
}

func toDecisionDTO(r generic.DecisionRecord) DecisionDTO {
	return DecisionDTO{Decision: r.Decision, ActorID: r.ActorID, DecidedAt: r.DecidedAt}
}

func toOvertimeDTO(r overtime.Request) OvertimeDTO {
	return OvertimeDTO{
		ID:               string(r.ID),
		TimeEntryID:      string(r.TimeEntryID),
		EmployeeID:       string(r.EmployeeID),
		RequestedMinutes: r.RequestedMinutes,
		ApprovedMinutes:  r.ApprovedMinutes,
		Status:           r.Status(),
		Leader:           toDecisionDTO(r.Approval.Leader),
		Manager:          toDecisionDTO(r.Approval.Manager),
		Leaders:          r.Approvers.Leaders,
		ManagerRef:       r.Approvers.Manager,
		Remarks:          r.Remarks,
		FiledBy:          r.FiledBy,
		FiledAt:          r.FiledAt,
		SupersedesID:     string(r.SupersedesID),
		Version:          r.Version,
	}
}

func toOvertimeDTOs(rs []overtime.Request) []OvertimeDTO {
	out := make([]OvertimeDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toOvertimeDTO(r))
	}
	return out
}

func toShiftChangeDTO(r shiftchange.Request) ShiftChangeDTO {
	projects := make([]ProjectDTO, 0, len(r.Projects))
	for _, p := range r.Projects {
		projects = append(projects, ProjectDTO{Project: p.ProjectRef, Leader: p.LeaderRef})
	}
	return ShiftChangeDTO{
		ID:               string(r.ID),
		EmployeeID:       string(r.EmployeeID),
		TimeEntryID:      string(r.TimeEntryID),
		RequestedTimeIn:  r.RequestedTimeIn,
		RequestedTimeOut: r.RequestedTimeOut,
		Projects:         projects,
		Manager:          r.ManagerRef,
		Remarks:          r.Remarks,
		Status:           r.Status(),
		Leader:           toDecisionDTO(r.Approval.Leader),
		ManagerDecision:  toDecisionDTO(r.Approval.Manager),
		FiledBy:          r.FiledBy,
		FiledAt:          r.FiledAt,
		Version:          r.Version,
	}
}

func toShiftChangeDTOs(rs []shiftchange.Request) []ShiftChangeDTO {
	out := make([]ShiftChangeDTO, 0, len(rs))
	for _, r := range rs {
		out = append(out, toShiftChangeDTO(r))
	}
	return out
}

func toLeaveDTO(r leave.Record) LeaveDTO {
	return LeaveDTO{
		ID:          string(r.ID),
		EmployeeID:  string(r.EmployeeID),
		Date:        r.Date.Format(generic.DateLayout),
		LeaveType:   r.LeaveType,
		IsWithPay:   r.IsWithPay,
		NumOfLeaves: r.NumUnits,
		Reason:      r.Reason,
		CancelsID:   string(r.CancelsID),
	}
}

func toTransitionDTO(t generic.Transition) TransitionDTO {
	return TransitionDTO{
		RequestID: string(t.RequestID),
		Kind:      t.Kind,
		Role:      t.Role,
		Decision:  t.Decision,
		ActorID:   t.ActorID,
		From:      t.From,
		To:        t.To,
		At:        t.At,
	}
}
