/*
approval.go - Dual approval state machine (leader + manager)

PURPOSE:
  Overtime and shift-change requests are decided by two independent
  approvers: a team leader and a manager. Each role records a tri-state
  Decision; the request Status is derived from the pair and is never
  stored on its own.

STATE TABLE:
  ┌──────────────┬──────────────┬──────────┐
  │ leader       │ manager      │ status   │
  ├──────────────┼──────────────┼──────────┤
  │ undecided    │ any          │ pending  │
  │ any          │ undecided    │ pending  │
  │ approved     │ approved     │ approved │
  │ rejected     │ rejected     │ rejected │
  │ approved     │ rejected     │ rejected │
  │ rejected     │ approved     │ rejected │  leader veto
  └──────────────┴──────────────┴──────────┘

LIFECYCLE:
  pending ──(both approve)──▶ approved   (terminal)
  pending ──(any rejection, both decided)──▶ rejected (terminal)

  While the request is still pending a role may replace its own earlier
  decision. Once terminal, every further decision fails with
  ErrAlreadyFinalized.

INDEPENDENCE:
  One actor never decides both roles of a request, and nobody decides a
  request they filed or that is about their own time (ErrNotApprover).

PURITY:
  Approval.Apply returns the next Approval and the Transition describing
  the change. The receiver is never modified; callers persist the result
  (under a KeyedMutex and an optimistic version check).

SEE ALSO:
  - overtime/adjudicator.go: Adds approved-minutes rules on top
  - shiftchange/shiftchange.go: Uses the machine unchanged
  - store.go: AuditLog persisting Transitions
*/
package generic

import (
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

// =============================================================================
// DECISION - What one approver said
// =============================================================================

// Decision is the tri-state verdict of a single approver. The zero value is
// DecisionUndecided.
type Decision uint8

const (
	DecisionUndecided Decision = iota
	DecisionApproved
	DecisionRejected
)

// String returns the lowercase decision name.
func (d Decision) String() string {
	switch d {
	case DecisionApproved:
		return "approved"
	case DecisionRejected:
		return "rejected"
	default:
		return "undecided"
	}
}

// ParseDecision accepts "approved"/"approve", "rejected"/"reject" and
// "undecided" (or empty).
func ParseDecision(s string) (Decision, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "undecided":
		return DecisionUndecided, nil
	case "approved", "approve":
		return DecisionApproved, nil
	case "rejected", "reject":
		return DecisionRejected, nil
	}
	return DecisionUndecided, Invalid("decision", fmt.Sprintf("unknown decision %q", s))
}

func (d Decision) MarshalText() ([]byte, error) { return []byte(d.String()), nil }

func (d *Decision) UnmarshalText(b []byte) error {
	v, err := ParseDecision(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// =============================================================================
// STATUS - Derived from the two decisions
// =============================================================================

// Status is the request-level state. The zero value is StatusPending.
type Status uint8

const (
	StatusPending Status = iota
	StatusApproved
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusApproved:
		return "approved"
	case StatusRejected:
		return "rejected"
	default:
		return "pending"
	}
}

// ParseStatus parses a status name, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending":
		return StatusPending, nil
	case "approved":
		return StatusApproved, nil
	case "rejected", "disapproved":
		return StatusRejected, nil
	}
	return StatusPending, Invalid("status", fmt.Sprintf("unknown status %q", s))
}

func (s Status) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Status) UnmarshalText(b []byte) error {
	v, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// IsTerminal reports whether no further decisions are accepted.
func (s Status) IsTerminal() bool { return s != StatusPending }

// DeriveStatus is the pure status function of the two decisions.
func DeriveStatus(leader, manager Decision) Status {
	switch {
	case leader == DecisionUndecided || manager == DecisionUndecided:
		return StatusPending
	case leader == DecisionApproved && manager == DecisionApproved:
		return StatusApproved
	default:
		return StatusRejected
	}
}

// =============================================================================
// ROLE
// =============================================================================

// Role is the approver slot a decision fills.
type Role string

const (
	RoleLeader  Role = "leader"
	RoleManager Role = "manager"
)

// ParseRole parses leader or manager, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleLeader, RoleManager:
		return r, nil
	}
	return "", Invalid("role", fmt.Sprintf("unknown role %q", s))
}

// =============================================================================
// APPROVAL - The pair of decisions
// =============================================================================

// DecisionRecord is one role's decision with who made it and when.
type DecisionRecord struct {
	Decision  Decision
	ActorID   string
	DecidedAt *time.Time
}

// Approval holds the leader and manager decisions of a request.
type Approval struct {
	Leader  DecisionRecord
	Manager DecisionRecord
}

// NewApproval returns an approval with both roles undecided.
func NewApproval() Approval { return Approval{} }

// Status derives the request status from both decisions.
func (a Approval) Status() Status { return DeriveStatus(a.Leader.Decision, a.Manager.Decision) }

// IsTerminal reports whether the approval is final.
func (a Approval) IsTerminal() bool { return a.Status().IsTerminal() }

// Get returns the record for a role.
func (a Approval) Get(role Role) DecisionRecord {
	if role == RoleManager {
		return a.Manager
	}
	return a.Leader
}

// Apply records decision for role and returns the resulting approval. A
// known actor who already decided the other role is refused with
// ErrNotApprover.
func (a Approval) Apply(role Role, decision Decision, actorID string, at time.Time) (Approval, Transition, error) {
	from := a.Status()
	if from.IsTerminal() {
		return a, Transition{}, &AlreadyFinalizedError{Status: from}
	}
	if decision == DecisionUndecided {
		return a, Transition{}, Invalid("decision", "must be approved or rejected")
	}

	rec := DecisionRecord{Decision: decision, ActorID: actorID, DecidedAt: &at}
	next := a
	switch role {
	case RoleLeader:
		next.Leader = rec
	case RoleManager:
		next.Manager = rec
	default:
		return a, Transition{}, Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	other := RoleManager
	if role == RoleManager {
		other = RoleLeader
	}
	if actorID != "" && a.Get(other).ActorID == actorID {
		return a, Transition{}, fmt.Errorf("%w: %s already decided as %s", ErrNotApprover, actorID, other)
	}

	tr := Transition{
		Role:     role,
		Decision: decision,
		ActorID:  actorID,
		From:     from,
		To:       next.Status(),
		At:       at,
	}
	return next, tr, nil
}

// =============================================================================
// APPROVERS - Who may decide for each role
// =============================================================================

// Approvers names the users allowed to decide each role. Empty fields leave
// the role open to any actor.
type Approvers struct {
	Leaders []string
	Manager string
}

// Authorize refuses a known actor who is not named for role. An anonymous
// actor is accepted; the host decides whether anonymous decisions are allowed.
func (ap Approvers) Authorize(role Role, actorID string) error {
	if actorID == "" {
		return nil
	}
	switch role {
	case RoleLeader:
		if len(ap.Leaders) == 0 || slices.Contains(ap.Leaders, actorID) {
			return nil
		}
	case RoleManager:
		if ap.Manager == "" || ap.Manager == actorID {
			return nil
		}
	default:
		return Invalid("role", fmt.Sprintf("unknown role %q", role))
	}
	return fmt.Errorf("%w: %s cannot decide as %s", ErrNotApprover, actorID, role)
}

// RefuseOwnRequest refuses an actor who is one of the parties of a request
// (its employee or filer). An anonymous actor is accepted.
func RefuseOwnRequest(actorID string, parties ...string) error {
	if actorID != "" && slices.Contains(parties, actorID) {
		return fmt.Errorf("%w: %s cannot decide their own request", ErrNotApprover, actorID)
	}
	return nil
}

// =============================================================================
// TRANSITION - Audit record of a decision
// =============================================================================

// Transition records one accepted decision.
type Transition struct {
	RequestID RequestID
	Kind      RequestKind
	Role      Role
	Decision  Decision
	ActorID   string
	From      Status
	To        Status
	At        time.Time
}

// Finalized reports whether this decision closed the request.
func (t Transition) Finalized() bool { return !t.From.IsTerminal() && t.To.IsTerminal() }

// =============================================================================
// KEYED MUTEX - Per-entity serialization
// =============================================================================

// KeyedMutex serializes work per key. Keys are released once no goroutine
// holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// Lock blocks until key is held and returns its unlock function.
func (k *KeyedMutex) Lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		k.mu.Lock()
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}

// Len returns the number of keys currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}
