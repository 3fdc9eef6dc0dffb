/*
Package postgres implements every repository on PostgreSQL through a pgx
connection pool. It mirrors store/sqlite table for table; use it when more
than one server shares the data.

CONCURRENCY:
  - idx_unique_open_overtime keeps one pending overtime request per entry
    across all servers.
  - idx_unique_day_entry and idx_unique_correction keep one original entry
    per employee-day and one correction per entry.
  - Updates are version-checked inside a transaction that also appends the
    decision to transitions.
*/
package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
	"github.com/warp/attendance-engine/store/codec"
)

// Store implements every repository on a pgx pool.
type Store struct {
	Pool *pgxpool.Pool
}

var (
	_ attendance.Repository  = (*Store)(nil)
	_ overtime.Repository    = (*Store)(nil)
	_ shiftchange.Repository = (*Store)(nil)
	_ leave.Repository       = (*Store)(nil)
	_ generic.AuditLog       = (*Store)(nil)
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, arguments ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// New connects, pings and migrates.
func New(ctx context.Context, dsn string) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	// Connection pool settings
	config.MaxConns = 25
	config.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	s := &Store{Pool: pool}
	if err := s.Migrate(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() { s.Pool.Close() }

// Reset truncates every table (for demo scenarios and tests).
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, `TRUNCATE transitions, overtime_requests, shift_change_requests, leaves, time_entries RESTART IDENTITY`)
	return err
}

// Migrate creates the schema if missing.
func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.Pool.Exec(ctx, schema)
	return err
}

const schema = `
CREATE TABLE IF NOT EXISTS time_entries (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	work_date DATE,
	time_in_json TEXT,
	time_out_json TEXT,
	schedule_start INTEGER NOT NULL,
	schedule_end INTEGER NOT NULL,
	overtime_threshold INTEGER,
	timezone TEXT NOT NULL DEFAULT '',
	shift_id TEXT NOT NULL DEFAULT '',
	supersedes_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);
ALTER TABLE time_entries ADD COLUMN IF NOT EXISTS day_key TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_time_entries_employee ON time_entries(employee_id);
CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_day_entry ON time_entries(employee_id, day_key)
	WHERE supersedes_id = '' AND day_key <> '';
CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_correction ON time_entries(supersedes_id)
	WHERE supersedes_id <> '';

CREATE TABLE IF NOT EXISTS overtime_requests (
	id TEXT PRIMARY KEY,
	time_entry_id TEXT NOT NULL,
	employee_id TEXT NOT NULL,
	requested_minutes INTEGER NOT NULL,
	approved_minutes INTEGER,
	status TEXT NOT NULL DEFAULT 'pending',
	leader_decision TEXT NOT NULL DEFAULT 'undecided',
	leader_actor TEXT NOT NULL DEFAULT '',
	leader_decided_at TIMESTAMPTZ,
	manager_decision TEXT NOT NULL DEFAULT 'undecided',
	manager_actor TEXT NOT NULL DEFAULT '',
	manager_decided_at TIMESTAMPTZ,
	leaders_json TEXT NOT NULL DEFAULT '[]',
	manager_ref TEXT NOT NULL DEFAULT '',
	remarks TEXT NOT NULL DEFAULT '',
	filed_by TEXT NOT NULL DEFAULT '',
	filed_at TIMESTAMPTZ NOT NULL,
	supersedes_id TEXT NOT NULL DEFAULT '',
	version INTEGER NOT NULL DEFAULT 1
);
CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_open_overtime
	ON overtime_requests(time_entry_id) WHERE status = 'pending';
CREATE INDEX IF NOT EXISTS idx_overtime_employee ON overtime_requests(employee_id);
CREATE INDEX IF NOT EXISTS idx_overtime_status ON overtime_requests(status);

CREATE TABLE IF NOT EXISTS shift_change_requests (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	time_entry_id TEXT NOT NULL DEFAULT '',
	requested_time_in TIMESTAMPTZ NOT NULL,
	requested_time_out TIMESTAMPTZ NOT NULL,
	projects_json TEXT NOT NULL,
	manager_ref TEXT NOT NULL,
	remarks TEXT NOT NULL DEFAULT '',
	status TEXT NOT NULL DEFAULT 'pending',
	leader_decision TEXT NOT NULL DEFAULT 'undecided',
	leader_actor TEXT NOT NULL DEFAULT '',
	leader_decided_at TIMESTAMPTZ,
	manager_decision TEXT NOT NULL DEFAULT 'undecided',
	manager_actor TEXT NOT NULL DEFAULT '',
	manager_decided_at TIMESTAMPTZ,
	filed_at TIMESTAMPTZ NOT NULL,
	version INTEGER NOT NULL DEFAULT 1
);
ALTER TABLE shift_change_requests ADD COLUMN IF NOT EXISTS filed_by TEXT NOT NULL DEFAULT '';
CREATE INDEX IF NOT EXISTS idx_shift_change_employee ON shift_change_requests(employee_id);
CREATE INDEX IF NOT EXISTS idx_shift_change_status ON shift_change_requests(status);

CREATE TABLE IF NOT EXISTS leaves (
	id TEXT PRIMARY KEY,
	employee_id TEXT NOT NULL,
	date DATE NOT NULL,
	leave_type TEXT NOT NULL,
	is_with_pay BOOLEAN NOT NULL DEFAULT FALSE,
	num_units NUMERIC(10, 2) NOT NULL,
	reason TEXT NOT NULL DEFAULT '',
	cancels_id TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_leaves_employee_date ON leaves(employee_id, date);
CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_leave_cancellation
	ON leaves(cancels_id) WHERE cancels_id <> '';

CREATE TABLE IF NOT EXISTS transitions (
	seq BIGSERIAL PRIMARY KEY,
	request_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	role TEXT NOT NULL,
	decision TEXT NOT NULL,
	actor_id TEXT NOT NULL DEFAULT '',
	from_status TEXT NOT NULL,
	to_status TEXT NOT NULL,
	at TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_transitions_request ON transitions(request_id);
`

// WithTransaction executes fn inside a database transaction.
func (s *Store) WithTransaction(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback(ctx)
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			return fmt.Errorf("rollback error: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// versioned runs an UPDATE ... WHERE id = $n AND version = $m and appends
// tr when the row was written.
func (s *Store) versioned(ctx context.Context, table, kind, id, query string, args []any, tr *generic.Transition) error {
	return s.WithTransaction(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return fmt.Errorf("failed to update %s: %w", kind, err)
		}
		if tag.RowsAffected() == 0 {
			var exists bool
			if err := tx.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM "+table+" WHERE id = $1)", id).Scan(&exists); err != nil {
				return err
			}
			if !exists {
				return generic.NotFound(kind, id)
			}
			return generic.ErrConcurrentModification
		}
		if tr == nil {
			return nil
		}
		return appendTransition(ctx, tx, *tr)
	})
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

const entryColumns = `id, employee_id, work_date, time_in_json, time_out_json,
	schedule_start, schedule_end, overtime_threshold, timezone,
	shift_id, supersedes_id, created_at, version`

func datePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return &d
}

func (s *Store) CreateEntry(ctx context.Context, e attendance.TimeEntry) error {
	in, err := codec.EncodeClockEvent(e.TimeIn)
	if err != nil {
		return err
	}
	out, err := codec.EncodeClockEvent(e.TimeOut)
	if err != nil {
		return err
	}
	sch := codec.EncodeSchedule(e.Schedule)

	query := `INSERT INTO time_entries (` + entryColumns + `, day_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, 1, $13)`
	_, err = s.Pool.Exec(ctx, query,
		string(e.ID), string(e.EmployeeID), datePtr(e.Date), in, out,
		sch.Start, sch.End, sch.Threshold, sch.Timezone,
		e.ShiftID, string(e.SupersedesID), e.CreatedAt, e.DayKey(),
	)
	if err != nil {
		if cerr := entryConflict(err, e); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to create time entry: %w", err)
	}
	return nil
}

// entryConflict maps the time_entries unique indexes to engine errors.
func entryConflict(err error, e attendance.TimeEntry) error {
	switch {
	case isUniqueViolation(err, "idx_unique_correction"):
		return fmt.Errorf("%w: entry %s already has a correction", generic.ErrEntrySuperseded, e.SupersedesID)
	case isUniqueViolation(err, "idx_unique_day_entry"):
		return fmt.Errorf("%w: employee %s on %s", generic.ErrDuplicateEntry, e.EmployeeID, e.DayKey())
	case isUniqueViolation(err, "time_entries_pkey"):
		return fmt.Errorf("%w: id %s is taken", generic.ErrDuplicateEntry, e.ID)
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, e attendance.TimeEntry) error {
	in, err := codec.EncodeClockEvent(e.TimeIn)
	if err != nil {
		return err
	}
	out, err := codec.EncodeClockEvent(e.TimeOut)
	if err != nil {
		return err
	}
	sch := codec.EncodeSchedule(e.Schedule)

	query := `
		UPDATE time_entries SET
			work_date = $1, time_in_json = $2, time_out_json = $3,
			schedule_start = $4, schedule_end = $5, overtime_threshold = $6, timezone = $7,
			shift_id = $8, supersedes_id = $9, day_key = $10, version = version + 1
		WHERE id = $11 AND version = $12
	`
	args := []any{
		datePtr(e.Date), in, out,
		sch.Start, sch.End, sch.Threshold, sch.Timezone,
		e.ShiftID, string(e.SupersedesID), e.DayKey(), string(e.ID), e.Version,
	}
	err = s.versioned(ctx, "time_entries", "time entry", string(e.ID), query, args, nil)
	if cerr := entryConflict(err, e); cerr != nil {
		return cerr
	}
	return err
}

func (s *Store) GetEntry(ctx context.Context, id generic.TimeEntryID) (attendance.TimeEntry, error) {
	es, err := queryEntries(ctx, s.Pool, `SELECT `+entryColumns+` FROM time_entries WHERE id = $1`, string(id))
	if err != nil {
		return attendance.TimeEntry{}, err
	}
	if len(es) == 0 {
		return attendance.TimeEntry{}, generic.NotFound("time entry", string(id))
	}
	return es[0], nil
}

func (s *Store) ListEntries(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]attendance.TimeEntry, error) {
	all, err := queryEntries(ctx, s.Pool,
		`SELECT `+entryColumns+` FROM time_entries WHERE employee_id = $1 ORDER BY created_at, id`,
		string(employeeID))
	if err != nil {
		return nil, err
	}
	var out []attendance.TimeEntry
	for _, e := range all {
		if day, ok := e.WorkDate(); ok && period.Contains(day) {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		di, _ := out[i].WorkDate()
		dj, _ := out[j].WorkDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (s *Store) SupersededBy(ctx context.Context, id generic.TimeEntryID) (*attendance.TimeEntry, error) {
	es, err := queryEntries(ctx, s.Pool, `SELECT `+entryColumns+` FROM time_entries WHERE supersedes_id = $1`, string(id))
	if err != nil || len(es) == 0 {
		return nil, err
	}
	return &es[0], nil
}

func queryEntries(ctx context.Context, q querier, query string, args ...any) ([]attendance.TimeEntry, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []attendance.TimeEntry
	for rows.Next() {
		var (
			e                   attendance.TimeEntry
			id, emp, shift, sup string
			date                *time.Time
			in, out             *string
			sch                 codec.Schedule
		)
		if err := rows.Scan(&id, &emp, &date, &in, &out,
			&sch.Start, &sch.End, &sch.Threshold, &sch.Timezone,
			&shift, &sup, &e.CreatedAt, &e.Version); err != nil {
			return nil, err
		}
		e.ID = generic.TimeEntryID(id)
		e.EmployeeID = generic.EmployeeID(emp)
		e.ShiftID = shift
		e.SupersedesID = generic.TimeEntryID(sup)
		if date != nil {
			e.Date = *date
		}
		if e.TimeIn, err = codec.DecodeClockEvent(in); err != nil {
			return nil, err
		}
		if e.TimeOut, err = codec.DecodeClockEvent(out); err != nil {
			return nil, err
		}
		if e.Schedule, err = sch.Decode(); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// =============================================================================
// OVERTIME REQUESTS
// =============================================================================

const overtimeColumns = `id, time_entry_id, employee_id, requested_minutes, approved_minutes,
	leader_decision, leader_actor, leader_decided_at,
	manager_decision, manager_actor, manager_decided_at,
	leaders_json, manager_ref, remarks, filed_by, filed_at, supersedes_id, version`

func (s *Store) CreateOvertime(ctx context.Context, r overtime.Request) error {
	leaders, err := codec.EncodeStrings(r.Approvers.Leaders)
	if err != nil {
		return err
	}
	query := `INSERT INTO overtime_requests (` + overtimeColumns + `, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, 1, $18)`

	_, err = s.Pool.Exec(ctx, query,
		string(r.ID), string(r.TimeEntryID), string(r.EmployeeID), r.RequestedMinutes, r.ApprovedMinutes,
		r.Approval.Leader.Decision.String(), r.Approval.Leader.ActorID, r.Approval.Leader.DecidedAt,
		r.Approval.Manager.Decision.String(), r.Approval.Manager.ActorID, r.Approval.Manager.DecidedAt,
		leaders, r.Approvers.Manager, r.Remarks, r.FiledBy, r.FiledAt, string(r.SupersedesID),
		r.Status().String(),
	)
	if err != nil {
		if isUniqueViolation(err, "idx_unique_open_overtime") {
			dup := &generic.DuplicateRequestError{TimeEntryID: r.TimeEntryID, Status: generic.StatusPending}
			var existing string
			if s.Pool.QueryRow(ctx,
				`SELECT id FROM overtime_requests WHERE time_entry_id = $1 AND status = 'pending'`,
				string(r.TimeEntryID)).Scan(&existing) == nil {
				dup.ExistingID = generic.RequestID(existing)
			}
			return dup
		}
		return fmt.Errorf("failed to create overtime request: %w", err)
	}
	return nil
}

func (s *Store) UpdateOvertime(ctx context.Context, r overtime.Request, tr generic.Transition) error {
	leaders, err := codec.EncodeStrings(r.Approvers.Leaders)
	if err != nil {
		return err
	}
	query := `
		UPDATE overtime_requests SET
			requested_minutes = $1, approved_minutes = $2, status = $3,
			leader_decision = $4, leader_actor = $5, leader_decided_at = $6,
			manager_decision = $7, manager_actor = $8, manager_decided_at = $9,
			leaders_json = $10, manager_ref = $11, remarks = $12,
			version = version + 1
		WHERE id = $13 AND version = $14
	`
	args := []any{
		r.RequestedMinutes, r.ApprovedMinutes, r.Status().String(),
		r.Approval.Leader.Decision.String(), r.Approval.Leader.ActorID, r.Approval.Leader.DecidedAt,
		r.Approval.Manager.Decision.String(), r.Approval.Manager.ActorID, r.Approval.Manager.DecidedAt,
		leaders, r.Approvers.Manager, r.Remarks,
		string(r.ID), r.Version,
	}
	return s.versioned(ctx, "overtime_requests", "overtime request", string(r.ID), query, args, &tr)
}

func (s *Store) GetOvertime(ctx context.Context, id generic.RequestID) (overtime.Request, error) {
	rs, err := queryOvertime(ctx, s.Pool, `SELECT `+overtimeColumns+` FROM overtime_requests WHERE id = $1`, string(id))
	if err != nil {
		return overtime.Request{}, err
	}
	if len(rs) == 0 {
		return overtime.Request{}, generic.NotFound("overtime request", string(id))
	}
	return rs[0], nil
}

func (s *Store) OvertimeForEntry(ctx context.Context, entryID generic.TimeEntryID) ([]overtime.Request, error) {
	return queryOvertime(ctx, s.Pool,
		`SELECT `+overtimeColumns+` FROM overtime_requests WHERE time_entry_id = $1 ORDER BY filed_at, id`,
		string(entryID))
}

func (s *Store) ListOvertime(ctx context.Context, f overtime.Filter) ([]overtime.Request, error) {
	where, args := requestWhere(f.EmployeeID, f.Status, f.FiledBefore)
	return queryOvertime(ctx, s.Pool,
		`SELECT `+overtimeColumns+` FROM overtime_requests`+where+` ORDER BY filed_at, id`, args...)
}

func queryOvertime(ctx context.Context, q querier, query string, args ...any) ([]overtime.Request, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overtime requests: %w", err)
	}
	defer rows.Close()

	var out []overtime.Request
	for rows.Next() {
		var (
			r                   overtime.Request
			id, entry, emp, sup string
			ld, md              string
			leaders             string
		)
		if err := rows.Scan(&id, &entry, &emp, &r.RequestedMinutes, &r.ApprovedMinutes,
			&ld, &r.Approval.Leader.ActorID, &r.Approval.Leader.DecidedAt,
			&md, &r.Approval.Manager.ActorID, &r.Approval.Manager.DecidedAt,
			&leaders, &r.Approvers.Manager, &r.Remarks, &r.FiledBy, &r.FiledAt, &sup, &r.Version); err != nil {
			return nil, err
		}
		r.ID = generic.RequestID(id)
		r.TimeEntryID = generic.TimeEntryID(entry)
		r.EmployeeID = generic.EmployeeID(emp)
		r.SupersedesID = generic.RequestID(sup)
		if r.Approval.Leader.Decision, err = generic.ParseDecision(ld); err != nil {
			return nil, err
		}
		if r.Approval.Manager.Decision, err = generic.ParseDecision(md); err != nil {
			return nil, err
		}
		if r.Approvers.Leaders, err = codec.DecodeStrings(leaders); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// SHIFT CHANGE REQUESTS
// =============================================================================

const shiftChangeColumns = `id, employee_id, time_entry_id, requested_time_in, requested_time_out,
	projects_json, manager_ref, remarks,
	leader_decision, leader_actor, leader_decided_at,
	manager_decision, manager_actor, manager_decided_at,
	filed_by, filed_at, version`

func (s *Store) CreateShiftChange(ctx context.Context, r shiftchange.Request) error {
	projects, err := codec.EncodeProjects(r.Projects)
	if err != nil {
		return err
	}
	query := `INSERT INTO shift_change_requests (` + shiftChangeColumns + `, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, 1, $17)`

	_, err = s.Pool.Exec(ctx, query,
		string(r.ID), string(r.EmployeeID), string(r.TimeEntryID), r.RequestedTimeIn, r.RequestedTimeOut,
		projects, r.ManagerRef, r.Remarks,
		r.Approval.Leader.Decision.String(), r.Approval.Leader.ActorID, r.Approval.Leader.DecidedAt,
		r.Approval.Manager.Decision.String(), r.Approval.Manager.ActorID, r.Approval.Manager.DecidedAt,
		r.FiledBy, r.FiledAt, r.Status().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to create shift change request: %w", err)
	}
	return nil
}

func (s *Store) UpdateShiftChange(ctx context.Context, r shiftchange.Request, tr generic.Transition) error {
	query := `
		UPDATE shift_change_requests SET
			status = $1, remarks = $2,
			leader_decision = $3, leader_actor = $4, leader_decided_at = $5,
			manager_decision = $6, manager_actor = $7, manager_decided_at = $8,
			version = version + 1
		WHERE id = $9 AND version = $10
	`
	args := []any{
		r.Status().String(), r.Remarks,
		r.Approval.Leader.Decision.String(), r.Approval.Leader.ActorID, r.Approval.Leader.DecidedAt,
		r.Approval.Manager.Decision.String(), r.Approval.Manager.ActorID, r.Approval.Manager.DecidedAt,
		string(r.ID), r.Version,
	}
	return s.versioned(ctx, "shift_change_requests", "shift change request", string(r.ID), query, args, &tr)
}

func (s *Store) GetShiftChange(ctx context.Context, id generic.RequestID) (shiftchange.Request, error) {
	rs, err := queryShiftChanges(ctx, s.Pool, `SELECT `+shiftChangeColumns+` FROM shift_change_requests WHERE id = $1`, string(id))
	if err != nil {
		return shiftchange.Request{}, err
	}
	if len(rs) == 0 {
		return shiftchange.Request{}, generic.NotFound("shift change request", string(id))
	}
	return rs[0], nil
}

func (s *Store) ListShiftChanges(ctx context.Context, f shiftchange.Filter) ([]shiftchange.Request, error) {
	where, args := requestWhere(f.EmployeeID, f.Status, f.FiledBefore)
	return queryShiftChanges(ctx, s.Pool,
		`SELECT `+shiftChangeColumns+` FROM shift_change_requests`+where+` ORDER BY filed_at, id`, args...)
}

func queryShiftChanges(ctx context.Context, q querier, query string, args ...any) ([]shiftchange.Request, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift change requests: %w", err)
	}
	defer rows.Close()

	var out []shiftchange.Request
	for rows.Next() {
		var (
			r                        shiftchange.Request
			id, emp, entry, projects string
			ld, md                   string
		)
		if err := rows.Scan(&id, &emp, &entry, &r.RequestedTimeIn, &r.RequestedTimeOut,
			&projects, &r.ManagerRef, &r.Remarks,
			&ld, &r.Approval.Leader.ActorID, &r.Approval.Leader.DecidedAt,
			&md, &r.Approval.Manager.ActorID, &r.Approval.Manager.DecidedAt,
			&r.FiledBy, &r.FiledAt, &r.Version); err != nil {
			return nil, err
		}
		r.ID = generic.RequestID(id)
		r.EmployeeID = generic.EmployeeID(emp)
		r.TimeEntryID = generic.TimeEntryID(entry)
		if r.Projects, err = codec.DecodeProjects(projects); err != nil {
			return nil, err
		}
		if r.Approval.Leader.Decision, err = generic.ParseDecision(ld); err != nil {
			return nil, err
		}
		if r.Approval.Manager.Decision, err = generic.ParseDecision(md); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// requestWhere numbers placeholders from $1.
func requestWhere(emp *generic.EmployeeID, status *generic.Status, filedBefore *time.Time) (string, []any) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if emp != nil {
		add("employee_id = $%d", string(*emp))
	}
	if status != nil {
		add("status = $%d", status.String())
	}
	if filedBefore != nil {
		add("filed_at < $%d", *filedBefore)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// =============================================================================
// LEAVES
// =============================================================================

// num_units round-trips as text so shopspring/decimal keeps exact values.
const leaveColumns = `id, employee_id, date, leave_type, is_with_pay, num_units::text, reason, cancels_id, created_at`

func (s *Store) CreateLeave(ctx context.Context, r leave.Record) error {
	query := `
		INSERT INTO leaves (id, employee_id, date, leave_type, is_with_pay, num_units, reason, cancels_id, created_at)
		VALUES ($1, $2, $3, $4, $5, CAST($6::text AS NUMERIC), $7, $8, $9)
	`
	_, err := s.Pool.Exec(ctx, query,
		string(r.ID), string(r.EmployeeID), datePtr(r.Date), r.LeaveType, r.IsWithPay,
		r.NumUnits.String(), r.Reason, string(r.CancelsID), r.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err, "idx_unique_leave_cancellation") {
			return fmt.Errorf("leave %s: %w", r.CancelsID, generic.ErrAlreadyFinalized)
		}
		return fmt.Errorf("failed to create leave: %w", err)
	}
	return nil
}

func (s *Store) GetLeave(ctx context.Context, id leave.RecordID) (leave.Record, error) {
	rs, err := queryLeaves(ctx, s.Pool, `SELECT `+leaveColumns+` FROM leaves WHERE id = $1`, string(id))
	if err != nil {
		return leave.Record{}, err
	}
	if len(rs) == 0 {
		return leave.Record{}, generic.NotFound("leave", string(id))
	}
	return rs[0], nil
}

func (s *Store) ListLeaves(ctx context.Context, f leave.Filter) ([]leave.Record, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.EmployeeID != nil {
		add("employee_id = $%d", string(*f.EmployeeID))
	}
	if d := datePtr(f.Period.Start); d != nil {
		add("date >= $%d", *d)
	}
	if d := datePtr(f.Period.End); d != nil {
		add("date <= $%d", *d)
	}

	query := `SELECT ` + leaveColumns + ` FROM leaves`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date, id"
	return queryLeaves(ctx, s.Pool, query, args...)
}

func queryLeaves(ctx context.Context, q querier, query string, args ...any) ([]leave.Record, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var out []leave.Record
	for rows.Next() {
		var (
			r                       leave.Record
			id, emp, units, cancels string
		)
		if err := rows.Scan(&id, &emp, &r.Date, &r.LeaveType, &r.IsWithPay, &units, &r.Reason, &cancels, &r.CreatedAt); err != nil {
			return nil, err
		}
		r.ID = leave.RecordID(id)
		r.EmployeeID = generic.EmployeeID(emp)
		r.CancelsID = leave.RecordID(cancels)
		if r.NumUnits, err = decimal.NewFromString(units); err != nil {
			return nil, fmt.Errorf("leave %s: invalid units %q: %w", id, units, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// =============================================================================
// AUDIT LOG
// =============================================================================

func (s *Store) AppendTransition(ctx context.Context, t generic.Transition) error {
	return appendTransition(ctx, s.Pool, t)
}

func appendTransition(ctx context.Context, q querier, t generic.Transition) error {
	_, err := q.Exec(ctx, `
		INSERT INTO transitions (request_id, kind, role, decision, actor_id, from_status, to_status, at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		string(t.RequestID), string(t.Kind), string(t.Role), t.Decision.String(),
		t.ActorID, t.From.String(), t.To.String(), t.At,
	)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (s *Store) Transitions(ctx context.Context, f generic.AuditFilter) ([]generic.Transition, error) {
	var conds []string
	var args []any
	add := func(cond string, v any) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if f.RequestID != nil {
		add("request_id = $%d", string(*f.RequestID))
	}
	if f.Kind != nil {
		add("kind = $%d", string(*f.Kind))
	}
	if f.ActorID != nil {
		add("actor_id = $%d", *f.ActorID)
	}
	if f.From != nil {
		add("at >= $%d", *f.From)
	}
	if f.To != nil {
		add("at <= $%d", *f.To)
	}

	query := `SELECT request_id, kind, role, decision, actor_id, from_status, to_status, at FROM transitions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq"

	rows, err := s.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transition
	for rows.Next() {
		var t generic.Transition
		var reqID, kind, role, decision, from, to string
		if err := rows.Scan(&reqID, &kind, &role, &decision, &t.ActorID, &from, &to, &t.At); err != nil {
			return nil, err
		}
		t.RequestID = generic.RequestID(reqID)
		t.Kind = generic.RequestKind(kind)
		t.Role = generic.Role(role)
		if t.Decision, err = generic.ParseDecision(decision); err != nil {
			return nil, err
		}
		if t.From, err = generic.ParseStatus(from); err != nil {
			return nil, err
		}
		if t.To, err = generic.ParseStatus(to); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == constraint
}
