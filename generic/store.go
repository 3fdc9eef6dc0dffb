/*
store.go - Persistence contract for the approval audit trail

PURPOSE:
  Every accepted decision produces a Transition. The AuditLog keeps them
  append-only so a request's history can be replayed and shown to users
  ("who approved what, when").

APPEND-ONLY CONTRACT:
  - AppendTransition(): the ONLY write operation
  - NO Update() or Delete() methods exist

IMPLEMENTATIONS:
  - store/memory: In-memory for tests and DB_DRIVER=memory
  - store/sqlite: transitions table
  - store/postgres: transitions table via pgx

SEE ALSO:
  - approval.go: Transition
  - overtime/repository.go, shiftchange/repository.go: Request persistence
*/
package generic

import (
	"context"
	"time"
)

// =============================================================================
// AUDIT LOG - Tracks who decided what when
// =============================================================================

// AuditLog stores transitions. Append-only.
type AuditLog interface {
	AppendTransition(ctx context.Context, t Transition) error
	Transitions(ctx context.Context, filter AuditFilter) ([]Transition, error)
}

// AuditFilter narrows a transitions query. Nil fields match everything.
type AuditFilter struct {
	RequestID *RequestID
	Kind      *RequestKind
	ActorID   *string
	From      *time.Time
	To        *time.Time
}

// Matches applies the filter to a single transition.
func (f AuditFilter) Matches(t Transition) bool {
	if f.RequestID != nil && t.RequestID != *f.RequestID {
		return false
	}
	if f.Kind != nil && t.Kind != *f.Kind {
		return false
	}
	if f.ActorID != nil && t.ActorID != *f.ActorID {
		return false
	}
	if f.From != nil && t.At.Before(*f.From) {
		return false
	}
	if f.To != nil && t.At.After(*f.To) {
		return false
	}
	return true
}

// ForRequest is a filter on a single request id.
func ForRequest(id RequestID) AuditFilter { return AuditFilter{RequestID: &id} }
