package overtime

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// ADJUDICATOR
// =============================================================================

// Adjudicator files and decides overtime requests. Entries resolves the
// correction chain of a time entry so that one employee-day carries at most
// one pending or approved request however often it is corrected.
type Adjudicator struct {
	Requests Repository
	Entries  attendance.EntryReader
	Locks    *generic.KeyedMutex
	Now      func() time.Time
	NewID    generic.IDGenerator
}

// NewAdjudicator builds an adjudicator over the overtime and time entry
// repositories (usually the same store).
func NewAdjudicator(repo Repository, entries attendance.EntryReader) *Adjudicator {
	return &Adjudicator{
		Requests: repo,
		Entries:  entries,
		Locks:    &generic.KeyedMutex{},
		Now:      time.Now,
		NewID:    generic.NewID,
	}
}

// Filing is the input of FileOvertime.
type Filing struct {
	Entry            attendance.TimeEntry
	RequestedMinutes int
	Remarks          string
	Approvers        generic.Approvers
	FiledBy          string
}

// FileOvertime validates a claim against the entry's classification and
// stores it as a pending request. The entry must be the latest of its
// correction chain, and no entry of the chain may hold a pending or approved
// request.
func (a *Adjudicator) FileOvertime(ctx context.Context, f Filing) (Request, error) {
	minutes, err := attendance.Classify(f.Entry)
	if err != nil {
		return Request{}, err
	}
	if minutes.OvertimeCandidate == 0 {
		return Request{}, fmt.Errorf("time entry %s: %w", f.Entry.ID, generic.ErrNoCandidateMinutes)
	}
	if f.RequestedMinutes <= 0 {
		return Request{}, generic.Invalid("requested_minutes", "must be greater than zero")
	}
	if f.RequestedMinutes > minutes.OvertimeCandidate {
		return Request{}, &generic.ExceedsCandidateError{
			Requested: f.RequestedMinutes,
			Candidate: minutes.OvertimeCandidate,
		}
	}

	chain := []attendance.TimeEntry{f.Entry}
	if f.Entry.SupersedesID != "" {
		older, err := attendance.Lineage(ctx, a.Entries, f.Entry.SupersedesID)
		if err != nil {
			return Request{}, fmt.Errorf("load corrected entries: %w", err)
		}
		chain = append(chain, older...)
	}

	// Filings for one employee-day serialize on the original entry.
	unlock := a.Locks.Lock("entry:" + string(chain[len(chain)-1].ID))
	defer unlock()

	next, err := a.Entries.SupersededBy(ctx, f.Entry.ID)
	if err != nil {
		return Request{}, fmt.Errorf("load corrections: %w", err)
	}
	if next != nil {
		return Request{}, fmt.Errorf("%w: entry %s was corrected by %s", generic.ErrEntrySuperseded, f.Entry.ID, next.ID)
	}

	var supersedes *Request
	for _, e := range chain {
		existing, err := a.Requests.OvertimeForEntry(ctx, e.ID)
		if err != nil {
			return Request{}, fmt.Errorf("load overtime requests: %w", err)
		}
		for _, r := range existing {
			if r.blocksRefiling() {
				return Request{}, &generic.DuplicateRequestError{
					TimeEntryID: e.ID,
					ExistingID:  r.ID,
					Status:      r.Status(),
				}
			}
			if supersedes == nil || r.FiledAt.After(supersedes.FiledAt) {
				supersedes = &r
			}
		}
	}

	req := Request{
		ID:               generic.RequestID(a.NewID()),
		TimeEntryID:      f.Entry.ID,
		EmployeeID:       f.Entry.EmployeeID,
		RequestedMinutes: f.RequestedMinutes,
		Approval:         generic.NewApproval(),
		Approvers:        f.Approvers,
		Remarks:          f.Remarks,
		FiledBy:          f.FiledBy,
		FiledAt:          a.Now(),
		Version:          1,
	}
	if supersedes != nil {
		req.SupersedesID = supersedes.ID
	}
	if err := a.Requests.CreateOvertime(ctx, req); err != nil {
		return Request{}, fmt.Errorf("create overtime request: %w", err)
	}
	return req, nil
}

// DecisionEvent is one approver's verdict. ApprovedMinutes applies only
// when the decision completes the approval; nil means the requested minutes.
type DecisionEvent struct {
	RequestID       generic.RequestID
	Role            generic.Role
	Decision        generic.Decision
	ApprovedMinutes *int
	ActorID         string
}

// RecordDecision applies a leader or manager decision. On any error the
// stored request is unchanged.
func (a *Adjudicator) RecordDecision(ctx context.Context, ev DecisionEvent) (Request, generic.Transition, error) {
	unlock := a.Locks.Lock("request:" + string(ev.RequestID))
	defer unlock()

	req, err := a.Requests.GetOvertime(ctx, ev.RequestID)
	if err != nil {
		return Request{}, generic.Transition{}, err
	}
	if err := generic.RefuseOwnRequest(ev.ActorID, req.FiledBy, string(req.EmployeeID)); err != nil {
		return Request{}, generic.Transition{}, err
	}
	if err := req.Approvers.Authorize(ev.Role, ev.ActorID); err != nil {
		return Request{}, generic.Transition{}, err
	}

	approval, tr, err := req.Approval.Apply(ev.Role, ev.Decision, ev.ActorID, a.Now())
	if err != nil {
		var fin *generic.AlreadyFinalizedError
		if errors.As(err, &fin) {
			fin.RequestID = req.ID
		}
		return Request{}, generic.Transition{}, err
	}
	tr.RequestID = req.ID
	tr.Kind = generic.KindOvertime

	if ev.ApprovedMinutes != nil && (*ev.ApprovedMinutes < 0 || *ev.ApprovedMinutes > req.RequestedMinutes) {
		return Request{}, generic.Transition{}, &generic.InvalidApprovalError{
			Approved:  *ev.ApprovedMinutes,
			Requested: req.RequestedMinutes,
		}
	}

	next := req
	next.Approval = approval
	if tr.To == generic.StatusApproved {
		approved := req.RequestedMinutes
		if ev.ApprovedMinutes != nil {
			approved = *ev.ApprovedMinutes
		}
		next.ApprovedMinutes = &approved
	}

	if err := a.Requests.UpdateOvertime(ctx, next, tr); err != nil {
		return Request{}, generic.Transition{}, fmt.Errorf("save overtime decision: %w", err)
	}
	next.Version++
	return next, tr, nil
}

// RecordLeaderDecision records the leader's decision.
func (a *Adjudicator) RecordLeaderDecision(ctx context.Context, id generic.RequestID, d generic.Decision, actorID string) (Request, error) {
	r, _, err := a.RecordDecision(ctx, DecisionEvent{RequestID: id, Role: generic.RoleLeader, Decision: d, ActorID: actorID})
	return r, err
}

// RecordManagerDecision records the manager's decision. approvedMinutes
// may trim the claim; nil approves the requested minutes.
func (a *Adjudicator) RecordManagerDecision(ctx context.Context, id generic.RequestID, d generic.Decision, approvedMinutes *int, actorID string) (Request, error) {
	r, _, err := a.RecordDecision(ctx, DecisionEvent{
		RequestID:       id,
		Role:            generic.RoleManager,
		Decision:        d,
		ApprovedMinutes: approvedMinutes,
		ActorID:         actorID,
	})
	return r, err
}

// =============================================================================
// QUERIES
// =============================================================================

// Get loads one request.
func (a *Adjudicator) Get(ctx context.Context, id generic.RequestID) (Request, error) {
	return a.Requests.GetOvertime(ctx, id)
}

// ForEntry returns the latest request filed on an entry or, when it has
// none, on the nearest entry it corrects. Nil when there is none.
func (a *Adjudicator) ForEntry(ctx context.Context, entryID generic.TimeEntryID) (*Request, error) {
	reqs, err := a.Requests.OvertimeForEntry(ctx, entryID)
	if err != nil {
		return nil, err
	}
	if len(reqs) > 0 {
		latest := reqs[len(reqs)-1]
		return &latest, nil
	}

	chain, err := attendance.Lineage(ctx, a.Entries, entryID)
	if generic.IsNotFound(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	for _, e := range chain[1:] {
		reqs, err := a.Requests.OvertimeForEntry(ctx, e.ID)
		if err != nil {
			return nil, err
		}
		if len(reqs) > 0 {
			latest := reqs[len(reqs)-1]
			return &latest, nil
		}
	}
	return nil, nil
}

// ListPending lists requests still waiting for a decision.
func (a *Adjudicator) ListPending(ctx context.Context) ([]Request, error) {
	pending := generic.StatusPending
	return a.Requests.ListOvertime(ctx, Filter{Status: &pending})
}

// ListByEmployee lists every request of employeeID.
func (a *Adjudicator) ListByEmployee(ctx context.Context, employeeID generic.EmployeeID) ([]Request, error) {
	return a.Requests.ListOvertime(ctx, Filter{EmployeeID: &employeeID})
}

// StalePending lists requests still pending that were filed before cutoff.
func (a *Adjudicator) StalePending(ctx context.Context, cutoff time.Time) ([]Request, error) {
	pending := generic.StatusPending
	return a.Requests.ListOvertime(ctx, Filter{Status: &pending, FiledBefore: &cutoff})
}
