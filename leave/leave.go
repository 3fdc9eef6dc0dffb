/*
Package leave folds leave records into per-type breakdowns for reports.

PURPOSE:
  Leaves are recorded as they are taken; a cancelled leave keeps its record
  and gains a cancellation record (CancelsID set, units negated). The
  breakdown nets both, so aggregating any permutation of the same records
  gives the same result.

BREAKDOWN:
  Groups are keyed by (LeaveType, IsWithPay) and sorted by type, with-pay
  first. Groups that net to zero count and zero units are dropped.

SEE ALSO:
  - export.go: XLSX export of the leave table and breakdown
*/
package leave

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// RECORDS
// =============================================================================

// RecordID identifies a leave record.
type RecordID string

// Record is one leave entry. Cancellations are records too, never deletions.
type Record struct {
	ID         RecordID
	EmployeeID generic.EmployeeID
	Date       time.Time
	LeaveType  string
	IsWithPay  bool
	NumUnits   decimal.Decimal
	Reason     string

	// CancelsID marks a cancellation of another record.
	CancelsID RecordID
	CreatedAt time.Time
}

// IsCancellation reports whether r cancels another record.
func (r Record) IsCancellation() bool { return r.CancelsID != "" }

// =============================================================================
// AGGREGATION
// =============================================================================

// Group sums the effective leaves of one type and pay flag.
type Group struct {
	LeaveType string          `json:"leave_type"`
	IsWithPay bool            `json:"is_with_pay"`
	Count     int             `json:"count"`
	Units     decimal.Decimal `json:"units"`
}

// Totals is a count and unit sum across groups.
type Totals struct {
	Count int             `json:"count"`
	Units decimal.Decimal `json:"units"`
}

func (t *Totals) add(g Group) {
	t.Count += g.Count
	t.Units = t.Units.Add(g.Units)
}

// Breakdown is the grouped leave summary of a period. Cancelled records
// and their cancellations are excluded.
type Breakdown struct {
	Groups     []Group `json:"groups"`
	WithPay    Totals  `json:"with_pay"`
	WithoutPay Totals  `json:"without_pay"`
	Total      Totals  `json:"total"`
}

type groupKey struct {
	leaveType string
	withPay   bool
}

// Aggregate is a pure, order-independent fold over records.
func Aggregate(records []Record) Breakdown {
	groups := make(map[groupKey]*Group)
	for _, r := range records {
		k := groupKey{leaveType: r.LeaveType, withPay: r.IsWithPay}
		g, ok := groups[k]
		if !ok {
			g = &Group{LeaveType: r.LeaveType, IsWithPay: r.IsWithPay, Units: decimal.Zero}
			groups[k] = g
		}
		if r.IsCancellation() {
			g.Count--
		} else {
			g.Count++
		}
		g.Units = g.Units.Add(r.NumUnits)
	}

	b := Breakdown{
		Groups:     make([]Group, 0, len(groups)),
		WithPay:    Totals{Units: decimal.Zero},
		WithoutPay: Totals{Units: decimal.Zero},
		Total:      Totals{Units: decimal.Zero},
	}
	for _, g := range groups {
		if g.Count == 0 && g.Units.IsZero() {
			continue
		}
		b.Groups = append(b.Groups, *g)
		if g.IsWithPay {
			b.WithPay.add(*g)
		} else {
			b.WithoutPay.add(*g)
		}
		b.Total.add(*g)
	}
	sort.Slice(b.Groups, func(i, j int) bool {
		if b.Groups[i].LeaveType != b.Groups[j].LeaveType {
			return b.Groups[i].LeaveType < b.Groups[j].LeaveType
		}
		return b.Groups[i].IsWithPay && !b.Groups[j].IsWithPay
	})
	return b
}

// =============================================================================
// TABLE
// =============================================================================

// Row is one line of the leave table.
type Row struct {
	ID        RecordID        `json:"id"`
	Date      time.Time       `json:"date"`
	LeaveType string          `json:"leave_type"`
	Pay       string          `json:"pay"`
	Reason    string          `json:"reason"`
	Units     decimal.Decimal `json:"num_of_leaves"`
	Cancelled bool            `json:"cancelled"`
}

func payLabel(withPay bool) string {
	if withPay {
		return "With Pay"
	}
	return "Without Pay"
}

// Table lists leaves by date. Cancellation records are folded into the row
// they cancel.
func Table(records []Record) []Row {
	cancelled := make(map[RecordID]bool)
	for _, r := range records {
		if r.IsCancellation() {
			cancelled[r.CancelsID] = true
		}
	}
	rows := make([]Row, 0, len(records))
	for _, r := range records {
		if r.IsCancellation() {
			continue
		}
		rows = append(rows, Row{
			ID:        r.ID,
			Date:      r.Date,
			LeaveType: r.LeaveType,
			Pay:       payLabel(r.IsWithPay),
			Reason:    r.Reason,
			Units:     r.NumUnits,
			Cancelled: cancelled[r.ID],
		})
	}
	sort.SliceStable(rows, func(i, j int) bool {
		if !rows[i].Date.Equal(rows[j].Date) {
			return rows[i].Date.Before(rows[j].Date)
		}
		return rows[i].ID < rows[j].ID
	})
	return rows
}

// =============================================================================
// SERVICE
// =============================================================================

// Filter narrows ListLeaves. A nil EmployeeID matches everyone.
type Filter struct {
	EmployeeID *generic.EmployeeID
	Period     generic.Period
}

// Matches reports whether r passes f.
func (f Filter) Matches(r Record) bool {
	if f.EmployeeID != nil && r.EmployeeID != *f.EmployeeID {
		return false
	}
	return f.Period.Contains(r.Date)
}

// Repository persists leave records.
type Repository interface {
	CreateLeave(ctx context.Context, r Record) error
	GetLeave(ctx context.Context, id RecordID) (Record, error)
	ListLeaves(ctx context.Context, filter Filter) ([]Record, error)
}

// Service records, cancels and summarizes leaves.
type Service struct {
	Repo  Repository
	Locks *generic.KeyedMutex
	Now   func() time.Time
	NewID generic.IDGenerator
}

// NewService returns a Service over repo.
func NewService(repo Repository) *Service {
	return &Service{Repo: repo, Locks: &generic.KeyedMutex{}, Now: time.Now, NewID: generic.NewID}
}

// NewRecord is the input of Record.
type NewRecord struct {
	EmployeeID generic.EmployeeID
	Date       time.Time
	LeaveType  string
	IsWithPay  bool
	NumUnits   decimal.Decimal
	Reason     string
}

func (n NewRecord) validate() error {
	v := &generic.ValidationError{}
	if n.EmployeeID == "" {
		v.Add("employee_id", "is required")
	}
	if n.Date.IsZero() {
		v.Add("date", "is required")
	}
	if strings.TrimSpace(n.LeaveType) == "" {
		v.Add("leave_type", "is required")
	}
	if !n.NumUnits.IsPositive() {
		v.Add("num_of_leaves", "must be greater than zero")
	}
	return v.OrNil()
}

// Record validates n and stores it as a new leave.
func (s *Service) Record(ctx context.Context, n NewRecord) (Record, error) {
	if err := n.validate(); err != nil {
		return Record{}, err
	}
	r := Record{
		ID:         RecordID(s.NewID()),
		EmployeeID: n.EmployeeID,
		Date:       n.Date,
		LeaveType:  strings.TrimSpace(n.LeaveType),
		IsWithPay:  n.IsWithPay,
		NumUnits:   n.NumUnits,
		Reason:     n.Reason,
		CreatedAt:  s.Now(),
	}
	if err := s.Repo.CreateLeave(ctx, r); err != nil {
		return Record{}, fmt.Errorf("create leave: %w", err)
	}
	return r, nil
}

// Cancel appends a cancellation of id. A leave is cancelled at most once.
func (s *Service) Cancel(ctx context.Context, id RecordID, reason string) (Record, error) {
	unlock := s.Locks.Lock(string(id))
	defer unlock()

	orig, err := s.Repo.GetLeave(ctx, id)
	if err != nil {
		return Record{}, err
	}
	if orig.IsCancellation() {
		return Record{}, generic.Invalid("id", "a cancellation cannot be cancelled")
	}
	siblings, err := s.Repo.ListLeaves(ctx, Filter{EmployeeID: &orig.EmployeeID})
	if err != nil {
		return Record{}, err
	}
	for _, r := range siblings {
		if r.CancelsID == id {
			return Record{}, fmt.Errorf("leave %s: %w", id, generic.ErrAlreadyFinalized)
		}
	}

	c := Record{
		ID:         RecordID(s.NewID()),
		EmployeeID: orig.EmployeeID,
		Date:       orig.Date,
		LeaveType:  orig.LeaveType,
		IsWithPay:  orig.IsWithPay,
		NumUnits:   orig.NumUnits.Neg(),
		Reason:     reason,
		CancelsID:  orig.ID,
		CreatedAt:  s.Now(),
	}
	if err := s.Repo.CreateLeave(ctx, c); err != nil {
		return Record{}, fmt.Errorf("create leave cancellation: %w", err)
	}
	return c, nil
}

// Breakdown aggregates the leaves matching filter.
func (s *Service) Breakdown(ctx context.Context, filter Filter) (Breakdown, []Row, error) {
	records, err := s.Repo.ListLeaves(ctx, filter)
	if err != nil {
		return Breakdown{}, nil, err
	}
	return Aggregate(records), Table(records), nil
}
