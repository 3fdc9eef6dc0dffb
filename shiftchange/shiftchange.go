/*
Package shiftchange files requests to work a different shift and runs them
through the dual-approval state machine.

PURPOSE:
  An employee proposes new clock-in/clock-out times for a day, names the
  projects they work on with each project's leader, and the manager who
  signs off. Project leaders decide as the leader role; the named manager
  decides as the manager role.

SEE ALSO:
  - generic/approval.go: Lifecycle shared with overtime
*/
package shiftchange

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// TYPES
// =============================================================================

// ProjectAssignment names one project worked on the requested shift and the
// leader who decides for it.
type ProjectAssignment struct {
	ProjectRef string
	LeaderRef  string
}

// Request is a proposal to work RequestedTimeIn..RequestedTimeOut instead of
// the scheduled shift. Its status is derived from Approval.
type Request struct {
	ID          generic.RequestID
	EmployeeID  generic.EmployeeID
	TimeEntryID generic.TimeEntryID // empty when not tied to an entry

	RequestedTimeIn  time.Time
	RequestedTimeOut time.Time

	Projects   []ProjectAssignment
	ManagerRef string
	Remarks    string

	Approval generic.Approval
	FiledBy  string
	FiledAt  time.Time
	Version  int
}

// Status derives the request status from both decisions.
func (r Request) Status() generic.Status { return r.Approval.Status() }

// Approvers derives the deciding users from the project leaders and the
// manager.
func (r Request) Approvers() generic.Approvers {
	ap := generic.Approvers{Manager: r.ManagerRef}
	seen := make(map[string]bool, len(r.Projects))
	for _, p := range r.Projects {
		if p.LeaderRef != "" && !seen[p.LeaderRef] {
			seen[p.LeaderRef] = true
			ap.Leaders = append(ap.Leaders, p.LeaderRef)
		}
	}
	return ap
}

// Filter narrows ListShiftChanges. Nil fields match everything.
type Filter struct {
	EmployeeID  *generic.EmployeeID
	Status      *generic.Status
	FiledBefore *time.Time
}

// Matches reports whether r passes every set field.
func (f Filter) Matches(r Request) bool {
	if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
		return false
	}
	if f.Status != nil && r.Status() != *f.Status {
		return false
	}
	if f.FiledBefore != nil && !r.FiledAt.Before(*f.FiledBefore) {
		return false
	}
	return true
}

// Repository persists shift-change requests. UpdateShiftChange has the same
// atomic, version-checked contract as overtime.Repository.
type Repository interface {
	CreateShiftChange(ctx context.Context, r Request) error
	UpdateShiftChange(ctx context.Context, r Request, tr generic.Transition) error
	GetShiftChange(ctx context.Context, id generic.RequestID) (Request, error)
	ListShiftChanges(ctx context.Context, filter Filter) ([]Request, error)
}

// =============================================================================
// FILING
// =============================================================================

// Filing is the input of FileShiftChange. FiledBy is the acting user, empty
// when the host does not authenticate.
type Filing struct {
	EmployeeID       generic.EmployeeID
	TimeEntryID      generic.TimeEntryID
	RequestedTimeIn  time.Time
	RequestedTimeOut time.Time
	Projects         []ProjectAssignment
	ManagerRef       string
	Remarks          string
	FiledBy          string
}

// Validate reports every field problem at once.
func (f Filing) Validate() error {
	v := &generic.ValidationError{}
	if strings.TrimSpace(string(f.EmployeeID)) == "" {
		v.Add("employee_id", "is required")
	}
	if f.RequestedTimeIn.IsZero() {
		v.Add("requested_time_in", "is required")
	}
	if f.RequestedTimeOut.IsZero() {
		v.Add("requested_time_out", "is required")
	}
	if !f.RequestedTimeIn.IsZero() && !f.RequestedTimeOut.IsZero() && !f.RequestedTimeIn.Before(f.RequestedTimeOut) {
		v.Add("requested_time_out", "must be after requested time in")
	}
	if len(f.Projects) == 0 {
		v.Add("projects", "at least one project is required")
	}
	for i, p := range f.Projects {
		if strings.TrimSpace(p.ProjectRef) == "" {
			v.Add(fmt.Sprintf("projects[%d].project", i), "is required")
		}
		if strings.TrimSpace(p.LeaderRef) == "" {
			v.Add(fmt.Sprintf("projects[%d].leader", i), "is required")
		}
	}
	return v.OrNil()
}

// =============================================================================
// ADJUDICATOR
// =============================================================================

// Adjudicator files shift-change requests and records decisions on them.
// Mutations on one request are serialized.
type Adjudicator struct {
	Requests Repository
	Locks    *generic.KeyedMutex
	Now      func() time.Time
	NewID    generic.IDGenerator
}

// NewAdjudicator builds an adjudicator over repo.
func NewAdjudicator(repo Repository) *Adjudicator {
	return &Adjudicator{
		Requests: repo,
		Locks:    &generic.KeyedMutex{},
		Now:      time.Now,
		NewID:    generic.NewID,
	}
}

// FileShiftChange validates f and stores it as a pending request.
func (a *Adjudicator) FileShiftChange(ctx context.Context, f Filing) (Request, error) {
	if err := f.Validate(); err != nil {
		return Request{}, err
	}
	req := Request{
		ID:               generic.RequestID(a.NewID()),
		EmployeeID:       f.EmployeeID,
		TimeEntryID:      f.TimeEntryID,
		RequestedTimeIn:  f.RequestedTimeIn,
		RequestedTimeOut: f.RequestedTimeOut,
		Projects:         append([]ProjectAssignment(nil), f.Projects...),
		ManagerRef:       f.ManagerRef,
		Remarks:          f.Remarks,
		Approval:         generic.NewApproval(),
		FiledBy:          f.FiledBy,
		FiledAt:          a.Now(),
		Version:          1,
	}
	if err := a.Requests.CreateShiftChange(ctx, req); err != nil {
		return Request{}, fmt.Errorf("create shift change request: %w", err)
	}
	return req, nil
}

// RecordDecision applies one approver's decision. The employee and the filer
// of the request cannot decide it.
func (a *Adjudicator) RecordDecision(ctx context.Context, id generic.RequestID, role generic.Role, d generic.Decision, actorID string) (Request, generic.Transition, error) {
	unlock := a.Locks.Lock(string(id))
	defer unlock()

	req, err := a.Requests.GetShiftChange(ctx, id)
	if err != nil {
		return Request{}, generic.Transition{}, err
	}
	if err := generic.RefuseOwnRequest(actorID, req.FiledBy, string(req.EmployeeID)); err != nil {
		return Request{}, generic.Transition{}, err
	}
	if err := req.Approvers().Authorize(role, actorID); err != nil {
		return Request{}, generic.Transition{}, err
	}

	approval, tr, err := req.Approval.Apply(role, d, actorID, a.Now())
	if err != nil {
		if fin, ok := err.(*generic.AlreadyFinalizedError); ok {
			fin.RequestID = req.ID
		}
		return Request{}, generic.Transition{}, err
	}
	tr.RequestID = req.ID
	tr.Kind = generic.KindShiftChange

	next := req
	next.Approval = approval
	if err := a.Requests.UpdateShiftChange(ctx, next, tr); err != nil {
		return Request{}, generic.Transition{}, fmt.Errorf("save shift change decision: %w", err)
	}
	next.Version++
	return next, tr, nil
}

// Get loads one request.
func (a *Adjudicator) Get(ctx context.Context, id generic.RequestID) (Request, error) {
	return a.Requests.GetShiftChange(ctx, id)
}

// ListPending lists requests still waiting for a decision.
func (a *Adjudicator) ListPending(ctx context.Context) ([]Request, error) {
	pending := generic.StatusPending
	return a.Requests.ListShiftChanges(ctx, Filter{Status: &pending})
}

// ListByEmployee lists every request of employeeID.
func (a *Adjudicator) ListByEmployee(ctx context.Context, employeeID generic.EmployeeID) ([]Request, error) {
	return a.Requests.ListShiftChanges(ctx, Filter{EmployeeID: &employeeID})
}

// StalePending lists requests still pending that were filed before cutoff.
func (a *Adjudicator) StalePending(ctx context.Context, cutoff time.Time) ([]Request, error) {
	pending := generic.StatusPending
	return a.Requests.ListShiftChanges(ctx, Filter{Status: &pending, FiledBefore: &cutoff})
}
