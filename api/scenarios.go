/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the store with realistic
	attendance data for demos. Each scenario creates time entries, files
	requests and records decisions through the same services the API uses,
	so every row is classified and audited as in production.

AVAILABLE SCENARIOS:

	daily-time-record: Late arrival, overtime candidates, an "N/A" day
	overtime-veto:     Night shift overtime rejected by the leader, refiled
	shift-change:      Multi-project shift change half way through approval
	leave-breakdown:   Mixed leave types with pay and a cancellation

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register the demo shift policies
 3. Create time entries for the current month
 4. File requests and record decisions

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "overtime-veto"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "daily-time-record",
		Name:        "Daily Time Record",
		Description: "Day shift with a late arrival, overtime candidates, a partial approval and a day without clock data",
	},
	{
		ID:          "overtime-veto",
		Name:        "Overtime Veto",
		Description: "Night shift overtime rejected by the leader despite manager approval, then refiled",
	},
	{
		ID:          "shift-change",
		Name:        "Shift Change",
		Description: "Shift change across two projects, one approved and one still pending",
	},
	{
		ID:          "leave-breakdown",
		Name:        "Leave Breakdown",
		Description: "Vacation, sick and emergency leave with and without pay, one cancelled",
	},
}

var demoShifts = []factory.ShiftJSON{
	{ID: "day", Name: "Day Shift", Start: "08:00", End: "17:00", OvertimeThreshold: "17:30", Timezone: "Asia/Manila"},
	{ID: "night", Name: "Night Shift", Start: "22:00", End: "06:00", Timezone: "Asia/Manila"},
}

// demoZone stands in for Asia/Manila when the zone database is missing.
var demoZone = time.FixedZone("PHT", 8*3600)

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	if current == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, ScenarioDTO{ID: current, Name: current})
}

// LoadScenario resets the store and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var load func(context.Context, time.Time) error
	switch req.ScenarioID {
	case "daily-time-record":
		load = h.loadDailyTimeRecordScenario
	case "overtime-veto":
		load = h.loadOvertimeVetoScenario
	case "shift-change":
		load = h.loadShiftChangeScenario
	case "leave-breakdown":
		load = h.loadLeaveBreakdownScenario
	default:
		writeError(w, http.StatusBadRequest, "Unknown scenario", nil)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := h.registerDemoShifts(); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to register shifts", err)
		return
	}
	monthStart := generic.MonthOf(time.Now().In(demoZone)).Start
	if err := load(ctx, monthStart); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

func (h *Handler) registerDemoShifts() error {
	for _, sj := range demoShifts {
		if _, ok := h.Shifts.Schedule(sj.ID); ok {
			continue
		}
		s, err := h.Shifts.FromJSON(sj)
		if err != nil {
			// Without tzdata the zone cannot load; the fixed offset is equivalent.
			sj.Timezone = ""
			if s, err = h.Shifts.FromJSON(sj); err != nil {
				return err
			}
			s.Schedule.Location = demoZone
		}
		h.Shifts.Register(s)
	}
	return nil
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// clock builds a clock event on day at hh:mm in the demo zone, plus
// extraDays for overnight clock-outs.
func clock(day time.Time, hhmm string, extraDays int) *attendance.ClockEvent {
	t := generic.MustTimeOfDay(hhmm)
	return &attendance.ClockEvent{Timestamp: t.At(day.Year(), day.Month(), day.Day()+extraDays, demoZone)}
}

func (h *Handler) demoEntry(ctx context.Context, emp generic.EmployeeID, shiftID string, day time.Time, in, out *attendance.ClockEvent) (attendance.TimeEntry, error) {
	sched, ok := h.Shifts.Schedule(shiftID)
	if !ok {
		return attendance.TimeEntry{}, fmt.Errorf("shift %s not registered", shiftID)
	}
	return h.Entries.CreateEntry(ctx, attendance.NewEntry{
		EmployeeID: emp,
		Date:       day,
		TimeIn:     in,
		TimeOut:    out,
		Schedule:   sched,
		ShiftID:    shiftID,
	})
}

func (h *Handler) loadDailyTimeRecordScenario(ctx context.Context, month time.Time) error {
	const emp = "emp-ana"
	approvers := generic.Approvers{Leaders: []string{"lead-rico"}, Manager: "mgr-sofia"}
	day := func(n int) time.Time { return month.AddDate(0, 0, n) }

	if _, err := h.demoEntry(ctx, emp, "day", day(0), clock(day(0), "07:55", 0), clock(day(0), "17:05", 0)); err != nil {
		return err
	}

	late, err := h.demoEntry(ctx, emp, "day", day(1), clock(day(1), "08:20", 0), clock(day(1), "19:45", 0))
	if err != nil {
		return err
	}
	if _, err := h.Overtime.FileOvertime(ctx, overtime.Filing{
		Entry: late, RequestedMinutes: 120, Remarks: "release cutover", Approvers: approvers, FiledBy: emp,
	}); err != nil {
		return err
	}

	if _, err := h.demoEntry(ctx, emp, "day", day(2), nil, nil); err != nil {
		return err
	}

	long, err := h.demoEntry(ctx, emp, "day", day(3), clock(day(3), "08:00", 0), clock(day(3), "18:30", 0))
	if err != nil {
		return err
	}
	req, err := h.Overtime.FileOvertime(ctx, overtime.Filing{
		Entry: long, RequestedMinutes: 60, Remarks: "month-end close", Approvers: approvers, FiledBy: emp,
	})
	if err != nil {
		return err
	}
	if _, err := h.Overtime.RecordLeaderDecision(ctx, req.ID, generic.DecisionApproved, "lead-rico"); err != nil {
		return err
	}
	approved := 45
	_, err = h.Overtime.RecordManagerDecision(ctx, req.ID, generic.DecisionApproved, &approved, "mgr-sofia")
	return err
}

func (h *Handler) loadOvertimeVetoScenario(ctx context.Context, month time.Time) error {
	const emp = "emp-ben"
	approvers := generic.Approvers{Leaders: []string{"lead-joy"}, Manager: "mgr-sofia"}

	entry, err := h.demoEntry(ctx, emp, "night", month, clock(month, "22:00", 0), clock(month, "07:30", 1))
	if err != nil {
		return err
	}
	first, err := h.Overtime.FileOvertime(ctx, overtime.Filing{
		Entry: entry, RequestedMinutes: 90, Remarks: "incident follow-up", Approvers: approvers, FiledBy: emp,
	})
	if err != nil {
		return err
	}
	if _, err := h.Overtime.RecordManagerDecision(ctx, first.ID, generic.DecisionApproved, nil, "mgr-sofia"); err != nil {
		return err
	}
	if _, err := h.Overtime.RecordLeaderDecision(ctx, first.ID, generic.DecisionRejected, "lead-joy"); err != nil {
		return err
	}

	_, err = h.Overtime.FileOvertime(ctx, overtime.Filing{
		Entry: entry, RequestedMinutes: 60, Remarks: "incident follow-up, handover only", Approvers: approvers, FiledBy: emp,
	})
	return err
}

func (h *Handler) loadShiftChangeScenario(ctx context.Context, month time.Time) error {
	const emp = "emp-cara"
	next := month.AddDate(0, 0, 7)

	done, err := h.ShiftChanges.FileShiftChange(ctx, shiftchange.Filing{
		EmployeeID:       emp,
		RequestedTimeIn:  generic.MustTimeOfDay("10:00").At(month.Year(), month.Month(), month.Day(), demoZone),
		RequestedTimeOut: generic.MustTimeOfDay("19:00").At(month.Year(), month.Month(), month.Day(), demoZone),
		Projects:         []shiftchange.ProjectAssignment{{ProjectRef: "proj-payroll", LeaderRef: "lead-rico"}},
		ManagerRef:       "mgr-sofia",
		Remarks:          "school run",
		FiledBy:          emp,
	})
	if err != nil {
		return err
	}
	if _, _, err := h.ShiftChanges.RecordDecision(ctx, done.ID, generic.RoleLeader, generic.DecisionApproved, "lead-rico"); err != nil {
		return err
	}
	if _, _, err := h.ShiftChanges.RecordDecision(ctx, done.ID, generic.RoleManager, generic.DecisionApproved, "mgr-sofia"); err != nil {
		return err
	}

	open, err := h.ShiftChanges.FileShiftChange(ctx, shiftchange.Filing{
		EmployeeID:       emp,
		RequestedTimeIn:  generic.MustTimeOfDay("13:00").At(next.Year(), next.Month(), next.Day(), demoZone),
		RequestedTimeOut: generic.MustTimeOfDay("22:00").At(next.Year(), next.Month(), next.Day(), demoZone),
		Projects: []shiftchange.ProjectAssignment{
			{ProjectRef: "proj-payroll", LeaderRef: "lead-rico"},
			{ProjectRef: "proj-mobile", LeaderRef: "lead-joy"},
		},
		ManagerRef: "mgr-sofia",
		Remarks:    "overlap with US client calls",
		FiledBy:    emp,
	})
	if err != nil {
		return err
	}
	_, _, err = h.ShiftChanges.RecordDecision(ctx, open.ID, generic.RoleLeader, generic.DecisionApproved, "lead-joy")
	return err
}

func (h *Handler) loadLeaveBreakdownScenario(ctx context.Context, month time.Time) error {
	const emp = "emp-ana"
	records := []leave.NewRecord{
		{Date: month, LeaveType: "Vacation", IsWithPay: true, NumUnits: decimal.NewFromInt(1), Reason: "family trip"},
		{Date: month.AddDate(0, 0, 1), LeaveType: "Vacation", IsWithPay: true, NumUnits: decimal.RequireFromString("0.5"), Reason: "family trip"},
		{Date: month.AddDate(0, 0, 8), LeaveType: "Sick", IsWithPay: true, NumUnits: decimal.NewFromInt(1), Reason: "flu"},
		{Date: month.AddDate(0, 0, 14), LeaveType: "Emergency", IsWithPay: false, NumUnits: decimal.NewFromInt(1), Reason: "house repair"},
		{Date: month.AddDate(0, 0, 20), LeaveType: "Vacation", IsWithPay: false, NumUnits: decimal.NewFromInt(2), Reason: "extended trip"},
	}

	var created []leave.Record
	for _, n := range records {
		n.EmployeeID = emp
		rec, err := h.Leaves.Record(ctx, n)
		if err != nil {
			return err
		}
		created = append(created, rec)
	}
	_, err := h.Leaves.Cancel(ctx, created[1].ID, "plans changed")
	return err
}
