/*
handlers.go - HTTP API handlers for the attendance adjudication engine

PURPOSE:
  Exposes time entries, overtime and shift-change adjudication and the
  leave breakdown via REST API. Handles HTTP request/response, JSON
  serialization, and delegates to the engine packages.

ENDPOINTS:
  Time entries:
    POST   /api/time-entries                    Create entry (or correction)
    GET    /api/time-entries/{id}               Entry with classification
    POST   /api/time-entries/{id}/clock         Record clock-in / clock-out
    GET    /api/employees/{id}/time-entries     Daily time record rows

  Overtime:
    POST   /api/time-entries/{id}/overtime      File overtime
    GET    /api/overtime?status=&employee_id=   List requests
    GET    /api/overtime/{id}                   Request details
    POST   /api/overtime/{id}/decisions         Leader / manager decision

  Shift changes:
    POST   /api/shift-changes                   File shift change
    GET    /api/shift-changes?status=&employee_id=
    GET    /api/shift-changes/{id}
    POST   /api/shift-changes/{id}/decisions

  Leaves:
    POST   /api/leaves                          Record leave
    POST   /api/leaves/{id}/cancel              Cancel leave
    GET    /api/leaves/breakdown                Table + breakdown
    GET    /api/leaves/export.xlsx              Same, as a workbook

  Audit and reference:
    GET    /api/requests/{id}/transitions       Decision history
    GET    /api/shifts                          Configured shift policies

  Scenarios:
    GET    /api/scenarios                       List demo scenarios
    GET    /api/scenarios/current               Currently loaded scenario
    POST   /api/scenarios/load                  Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: every repository plus the audit log
  - Services and adjudicators built on the Store
  - Shifts: shift policies resolved by shift_id

ACTOR:
  With JWT auth enabled the acting user is the token's user_id claim.
  Without it the request body may name actor_id (development only).

ERROR HANDLING:
  See errors.go for the engine error to HTTP status mapping.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - reminder.go: Pending-decision reminders
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/jwtauth/v5"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/factory"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is every repository the API needs.
type Store interface {
	attendance.Repository
	overtime.Repository
	shiftchange.Repository
	leave.Repository
	generic.AuditLog

	// Reset deletes all data before a scenario loads.
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        Store
	Entries      *attendance.Service
	Overtime     *overtime.Adjudicator
	ShiftChanges *shiftchange.Adjudicator
	Leaves       *leave.Service
	Shifts       *factory.ShiftFactory

	// DefaultSchedule applies when a new entry names neither shift nor schedule.
	DefaultSchedule attendance.ShiftSchedule

	// ClassifyWorkers bounds ClassifyAll for employee listings.
	ClassifyWorkers int

	// AuthEnabled makes the token's user_id claim the only actor source.
	AuthEnabled bool

	Logger *slog.Logger

	mu              sync.Mutex
	currentScenario string
}

// NewHandler wires the engine services over store.
func NewHandler(store Store, shifts *factory.ShiftFactory, schedule attendance.ShiftSchedule, logger *slog.Logger) *Handler {
	if shifts == nil {
		shifts = factory.NewShiftFactory()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		Store:           store,
		Entries:         attendance.NewService(store),
		Overtime:        overtime.NewAdjudicator(store, store),
		ShiftChanges:    shiftchange.NewAdjudicator(store),
		Leaves:          leave.NewService(store),
		Shifts:          shifts,
		DefaultSchedule: schedule,
		ClassifyWorkers: 8,
		Logger:          logger,
	}
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return generic.Invalid("body", err.Error())
	}
	return nil
}

// actor returns the acting user for r.
func (h *Handler) actor(r *http.Request, fromBody string) string {
	if !h.AuthEnabled {
		return fromBody
	}
	_, claims, err := jwtauth.FromContext(r.Context())
	if err != nil {
		return ""
	}
	id, _ := claims["user_id"].(string)
	return id
}

// filer returns the acting user for a request filed for emp. With auth on,
// only emp may file for themselves.
func (h *Handler) filer(r *http.Request, emp generic.EmployeeID) (string, error) {
	actor := h.actor(r, string(emp))
	if h.AuthEnabled && actor != string(emp) {
		return "", fmt.Errorf("%w: %s cannot file for %s", generic.ErrNotOwner, actor, emp)
	}
	return actor, nil
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

// schedule resolves the schedule of a new entry: shift_id, then the inline
// schedule, then the default.
func (h *Handler) schedule(req CreateTimeEntryRequest) (attendance.ShiftSchedule, error) {
	if req.ShiftID != "" {
		s, ok := h.Shifts.Schedule(req.ShiftID)
		if !ok {
			return attendance.ShiftSchedule{}, generic.Invalid("shift_id", fmt.Sprintf("unknown shift %q", req.ShiftID))
		}
		return s, nil
	}
	if req.Schedule != nil {
		return req.Schedule.toSchedule()
	}
	return h.DefaultSchedule, nil
}

// CreateTimeEntry creates an entry, or a correction when corrects is set.
func (h *Handler) CreateTimeEntry(w http.ResponseWriter, r *http.Request) {
	var req CreateTimeEntryRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	sched, err := h.schedule(req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	n := attendance.NewEntry{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		TimeIn:     req.TimeIn.toClockEvent(),
		TimeOut:    req.TimeOut.toClockEvent(),
		Schedule:   sched,
		ShiftID:    req.ShiftID,
	}
	if req.Date != "" {
		if n.Date, err = generic.ParseDate(req.Date); err != nil {
			h.writeEngineError(w, r, generic.Invalid("date", err.Error()))
			return
		}
	}

	var e attendance.TimeEntry
	if req.Corrects != "" {
		e, err = h.Entries.Correct(r.Context(), generic.TimeEntryID(req.Corrects), n)
	} else {
		e, err = h.Entries.CreateEntry(r.Context(), n)
	}
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, h.entryRow(r, e))
}

// GetTimeEntry returns one classified row.
func (h *Handler) GetTimeEntry(w http.ResponseWriter, r *http.Request) {
	e, err := h.Entries.Get(r.Context(), generic.TimeEntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entryRow(r, e))
}

// RecordClock fills the clock-in or clock-out slot of an entry.
func (h *Handler) RecordClock(w http.ResponseWriter, r *http.Request) {
	var req ClockRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	dir, err := attendance.ParseDirection(req.Direction)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	e, err := h.Entries.RecordClock(r.Context(), generic.TimeEntryID(chi.URLParam(r, "id")), dir, attendance.ClockEvent{
		Timestamp: req.Timestamp,
		Remarks:   req.Remarks,
		MediaRef:  req.MediaRef,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, h.entryRow(r, e))
}

// ListEmployeeTimeEntries returns the daily time record for an employee.
func (h *Handler) ListEmployeeTimeEntries(w http.ResponseWriter, r *http.Request) {
	period, err := generic.ParsePeriod(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	entries, err := h.Entries.List(r.Context(), generic.EmployeeID(chi.URLParam(r, "id")), period)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	results, err := attendance.ClassifyAll(r.Context(), entries, h.ClassifyWorkers)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}

	rows := make([]TimeEntryDTO, 0, len(results))
	for _, res := range results {
		row, err := h.classifiedRow(r, res)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		rows = append(rows, row)
	}
	writeJSON(w, http.StatusOK, rows)
}

func (h *Handler) entryRow(r *http.Request, e attendance.TimeEntry) TimeEntryDTO {
	m, err := attendance.Classify(e)
	row, rowErr := h.classifiedRow(r, attendance.Result{Entry: e, Minutes: m, Err: err})
	if rowErr != nil {
		h.Logger.WarnContext(r.Context(), "overtime cell unavailable", "time_entry_id", e.ID, "error", rowErr)
	}
	return row
}

// classifiedRow renders one result. Incomplete entries show "N/A".
func (h *Handler) classifiedRow(r *http.Request, res attendance.Result) (TimeEntryDTO, error) {
	row := toTimeEntryDTO(res.Entry)
	switch {
	case res.Err == nil:
		row.Classification = res.Minutes
	case !errors.Is(res.Err, generic.ErrIncompleteData):
		return row, res.Err
	}
	req, err := h.Overtime.ForEntry(r.Context(), res.Entry.ID)
	if err != nil {
		return row, err
	}
	row.Overtime = overtime.CellFor(res.Minutes, req)
	return row, nil
}

// =============================================================================
// OVERTIME
// =============================================================================

// FileOvertime files overtime against an entry.
func (h *Handler) FileOvertime(w http.ResponseWriter, r *http.Request) {
	var req FileOvertimeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	entry, err := h.Entries.Get(r.Context(), generic.TimeEntryID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	filedBy, err := h.filer(r, entry.EmployeeID)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	ot, err := h.Overtime.FileOvertime(r.Context(), overtime.Filing{
		Entry:            entry,
		RequestedMinutes: req.RequestedMinutes,
		Remarks:          req.Remarks,
		Approvers:        generic.Approvers{Leaders: req.Leaders, Manager: req.Manager},
		FiledBy:          filedBy,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toOvertimeDTO(ot))
}

// ListOvertime lists overtime requests.
func (h *Handler) ListOvertime(w http.ResponseWriter, r *http.Request) {
	var f overtime.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := generic.ParseStatus(s)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		f.Status = &st
	}
	if emp := q.Get("employee_id"); emp != "" {
		id := generic.EmployeeID(emp)
		f.EmployeeID = &id
	}
	reqs, err := h.Store.ListOvertime(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOvertimeDTOs(reqs))
}

// GetOvertime returns one overtime request.
func (h *Handler) GetOvertime(w http.ResponseWriter, r *http.Request) {
	req, err := h.Overtime.Get(r.Context(), generic.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toOvertimeDTO(req))
}

func parseDecision(req DecisionRequest) (generic.Role, generic.Decision, error) {
	role, err := generic.ParseRole(req.Role)
	if err != nil {
		return "", 0, err
	}
	d, err := generic.ParseDecision(req.Decision)
	if err != nil {
		return "", 0, err
	}
	return role, d, nil
}

// DecideOvertime records a leader or manager decision.
func (h *Handler) DecideOvertime(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	role, d, err := parseDecision(req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	ot, tr, err := h.Overtime.RecordDecision(r.Context(), overtime.DecisionEvent{
		RequestID:       generic.RequestID(chi.URLParam(r, "id")),
		Role:            role,
		Decision:        d,
		ApprovedMinutes: req.ApprovedMinutes,
		ActorID:         h.actor(r, req.ActorID),
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	if tr.Finalized() {
		h.Logger.InfoContext(r.Context(), "overtime request finalized",
			"request_id", ot.ID, "status", tr.To.String(), "actor_id", tr.ActorID)
	}
	writeJSON(w, http.StatusOK, toOvertimeDTO(ot))
}

// =============================================================================
// SHIFT CHANGES
// =============================================================================

// FileShiftChange files a shift change request.
func (h *Handler) FileShiftChange(w http.ResponseWriter, r *http.Request) {
	var req ShiftChangeRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	projects := make([]shiftchange.ProjectAssignment, 0, len(req.Projects))
	for _, p := range req.Projects {
		projects = append(projects, shiftchange.ProjectAssignment{ProjectRef: p.Project, LeaderRef: p.Leader})
	}
	filedBy, err := h.filer(r, generic.EmployeeID(req.EmployeeID))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	sc, err := h.ShiftChanges.FileShiftChange(r.Context(), shiftchange.Filing{
		EmployeeID:       generic.EmployeeID(req.EmployeeID),
		TimeEntryID:      generic.TimeEntryID(req.TimeEntryID),
		RequestedTimeIn:  req.RequestedTimeIn,
		RequestedTimeOut: req.RequestedTimeOut,
		Projects:         projects,
		ManagerRef:       req.Manager,
		Remarks:          req.Remarks,
		FiledBy:          filedBy,
	})
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftChangeDTO(sc))
}

// ListShiftChanges lists shift change requests.
func (h *Handler) ListShiftChanges(w http.ResponseWriter, r *http.Request) {
	var f shiftchange.Filter
	q := r.URL.Query()
	if s := q.Get("status"); s != "" {
		st, err := generic.ParseStatus(s)
		if err != nil {
			h.writeEngineError(w, r, err)
			return
		}
		f.Status = &st
	}
	if emp := q.Get("employee_id"); emp != "" {
		id := generic.EmployeeID(emp)
		f.EmployeeID = &id
	}
	reqs, err := h.Store.ListShiftChanges(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftChangeDTOs(reqs))
}

// GetShiftChange returns one shift change request.
func (h *Handler) GetShiftChange(w http.ResponseWriter, r *http.Request) {
	sc, err := h.ShiftChanges.Get(r.Context(), generic.RequestID(chi.URLParam(r, "id")))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftChangeDTO(sc))
}

// DecideShiftChange records a leader or manager decision.
func (h *Handler) DecideShiftChange(w http.ResponseWriter, r *http.Request) {
	var req DecisionRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	role, d, err := parseDecision(req)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	sc, _, err := h.ShiftChanges.RecordDecision(r.Context(), generic.RequestID(chi.URLParam(r, "id")), role, d, h.actor(r, req.ActorID))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftChangeDTO(sc))
}

// =============================================================================
// LEAVES
// =============================================================================

// RecordLeave records a leave.
func (h *Handler) RecordLeave(w http.ResponseWriter, r *http.Request) {
	var req CreateLeaveRequest
	if err := decodeBody(r, &req); err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	n := leave.NewRecord{
		EmployeeID: generic.EmployeeID(req.EmployeeID),
		LeaveType:  req.LeaveType,
		IsWithPay:  req.IsWithPay,
		NumUnits:   req.NumOfLeaves,
		Reason:     req.Reason,
	}
	if req.Date != "" {
		d, err := generic.ParseDate(req.Date)
		if err != nil {
			h.writeEngineError(w, r, generic.Invalid("date", err.Error()))
			return
		}
		n.Date = d
	}
	rec, err := h.Leaves.Record(r.Context(), n)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(rec))
}

// CancelLeave cancels a leave by recording its cancellation.
func (h *Handler) CancelLeave(w http.ResponseWriter, r *http.Request) {
	var req CancelLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		h.writeEngineError(w, r, generic.Invalid("body", err.Error()))
		return
	}
	rec, err := h.Leaves.Cancel(r.Context(), leave.RecordID(chi.URLParam(r, "id")), req.Reason)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toLeaveDTO(rec))
}

func leaveFilter(r *http.Request) (leave.Filter, error) {
	q := r.URL.Query()
	period, err := generic.ParsePeriod(q.Get("from"), q.Get("to"))
	if err != nil {
		return leave.Filter{}, err
	}
	f := leave.Filter{Period: period}
	if emp := q.Get("employee_id"); emp != "" {
		id := generic.EmployeeID(emp)
		f.EmployeeID = &id
	}
	return f, nil
}

// LeaveBreakdown returns the grouped summary and the detail table.
func (h *Handler) LeaveBreakdown(w http.ResponseWriter, r *http.Request) {
	f, err := leaveFilter(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	b, rows, err := h.Leaves.Breakdown(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, LeaveBreakdownResponse{Table: rows, Breakdown: b})
}

// ExportLeaves streams the leave table as XLSX.
func (h *Handler) ExportLeaves(w http.ResponseWriter, r *http.Request) {
	f, err := leaveFilter(r)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	b, rows, err := h.Leaves.Breakdown(r.Context(), f)
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="leaves-%s.xlsx"`, time.Now().Format("20060102")))
	if err := leave.WriteXLSX(w, rows, b); err != nil {
		h.Logger.ErrorContext(r.Context(), "leave export failed", "error", err)
	}
}

// =============================================================================
// AUDIT AND SHIFTS
// =============================================================================

// ListTransitions returns the audit trail of a request.
func (h *Handler) ListTransitions(w http.ResponseWriter, r *http.Request) {
	trs, err := h.Store.Transitions(r.Context(), generic.ForRequest(generic.RequestID(chi.URLParam(r, "id"))))
	if err != nil {
		h.writeEngineError(w, r, err)
		return
	}
	out := make([]TransitionDTO, 0, len(trs))
	for _, t := range trs {
		out = append(out, toTransitionDTO(t))
	}
	writeJSON(w, http.StatusOK, out)
}

// ListShifts returns the registered shift policies.
func (h *Handler) ListShifts(w http.ResponseWriter, r *http.Request) {
	shifts := h.Shifts.Shifts()
	out := make([]factory.ShiftJSON, 0, len(shifts))
	for _, s := range shifts {
		out = append(out, h.Shifts.ToJSON(s))
	}
	writeJSON(w, http.StatusOK, out)
}
