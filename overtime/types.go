/*
Package overtime files overtime requests against classified time entries
and adjudicates them through leader and manager decisions.

PURPOSE:
  An employee may claim up to the overtime-candidate minutes of a time
  entry. The claim stays pending until both approvers have decided; the
  manager may approve fewer minutes than requested.

INVARIANTS:
  - 0 <= ApprovedMinutes <= RequestedMinutes, set only when approved
  - At most one pending or approved request per time entry
  - A refiling after rejection links to the rejected request (SupersedesID)

SEE ALSO:
  - generic/approval.go: The shared dual-approval state machine
  - attendance/classify.go: Source of overtime-candidate minutes
*/
package overtime

import (
	"context"
	"time"

	"github.com/warp/attendance-engine/generic"
)

// Request is an overtime claim on one time entry.
type Request struct {
	ID          generic.RequestID
	TimeEntryID generic.TimeEntryID
	EmployeeID  generic.EmployeeID

	RequestedMinutes int
	ApprovedMinutes  *int

	Approval  generic.Approval
	Approvers generic.Approvers

	Remarks      string
	FiledBy      string
	FiledAt      time.Time
	SupersedesID generic.RequestID
	Version      int
}

// Status derives the request status from its two decisions.
func (r Request) Status() generic.Status { return r.Approval.Status() }

// IsOpen reports whether decisions are still accepted.
func (r Request) IsOpen() bool { return !r.Approval.IsTerminal() }

// blocksRefiling reports whether r prevents a new filing on the same entry.
func (r Request) blocksRefiling() bool { return r.Status() != generic.StatusRejected }

// Filter narrows ListOvertime. Nil fields match everything.
type Filter struct {
	EmployeeID  *generic.EmployeeID
	Status      *generic.Status
	FiledBefore *time.Time
}

// Matches reports whether r passes f.
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

// Repository persists overtime requests.
//
// CreateOvertime fails with generic.ErrDuplicateOpenRequest when the entry
// already has a pending request. UpdateOvertime stores r and appends tr in
// one atomic step; it requires the stored version to equal r.Version and
// writes r.Version+1, failing with generic.ErrConcurrentModification
// otherwise. List results are ordered by FiledAt.
type Repository interface {
	CreateOvertime(ctx context.Context, r Request) error
	UpdateOvertime(ctx context.Context, r Request, tr generic.Transition) error
	GetOvertime(ctx context.Context, id generic.RequestID) (Request, error)
	OvertimeForEntry(ctx context.Context, entryID generic.TimeEntryID) ([]Request, error)
	ListOvertime(ctx context.Context, filter Filter) ([]Request, error)
}
