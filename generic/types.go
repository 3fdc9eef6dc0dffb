/*
Package generic provides the domain-agnostic core of the adjudication engine.

PURPOSE:
  This package contains the pieces shared by every attendance workflow:
  identifiers, the error taxonomy, wall-clock time-of-day arithmetic and the
  dual-approval state machine used by both overtime and shift-change
  requests. Domain packages (attendance, overtime, shiftchange, leave) build
  on these types; this package knows nothing about any of them.

KEY CONCEPTS IN THIS FILE (types.go):
  - Typed identifiers (EmployeeID, RequestID, TimeEntryID)
  - RequestKind: which workflow a request or transition belongs to
  - IDGenerator: pluggable id source (uuid v7 by default)

DESIGN PRINCIPLES:
  1. Purity: classification and status derivation have no hidden state
  2. Immutability: decisions produce new values, callers commit them
  3. Type Safety: strong typing for ids prevents mixing entries and requests
  4. Auditability: every decision yields a Transition for the audit log

USAGE:
  approval := generic.NewApproval()
  next, tr, err := approval.Apply(generic.RoleLeader, generic.DecisionApproved, "lead-1", now)
  if err != nil { ... }
  fmt.Println(next.Status()) // pending until the manager decides

SEE ALSO:
  - approval.go: Decision, Status and the state machine
  - errors.go: Error taxonomy shared by all adjudicators
  - time.go: TimeOfDay and date anchoring helpers
*/
package generic

import (
	"github.com/google/uuid"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// Identifiers are opaque strings.
type (
	EmployeeID  string
	TimeEntryID string
	RequestID   string
)

// RequestKind names the workflow a request belongs to.
type RequestKind string

const (
	KindOvertime    RequestKind = "overtime"
	KindShiftChange RequestKind = "shift_change"
)

func (k RequestKind) String() string { return string(k) }

// =============================================================================
// ID GENERATION
// =============================================================================

// IDGenerator returns a fresh unique identifier.
type IDGenerator func() string

// NewID returns a time-ordered UUIDv7 string, falling back to a random v4
// when the v7 clock sequence cannot be read.
func NewID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}
