/*
sqlite.go - SQLite persistence layer

PURPOSE:
  Implements every repository with SQLite. Suitable for single-server
  deployments and development; store/postgres serves shared deployments.

INTERFACES IMPLEMENTED:
  - attendance.Repository: Time entries
  - overtime.Repository: Overtime requests
  - shiftchange.Repository: Shift-change requests
  - leave.Repository: Leave records
  - generic.AuditLog: Append-only approval transitions

KEY TABLES:
  time_entries:          One row per employee working day (and correction)
  overtime_requests:     Overtime claims with both decisions
  shift_change_requests: Shift proposals, projects kept as JSON
  leaves:                Leave records, units kept as decimal text
  transitions:           Append-only decision history

INDEXES:
  - idx_unique_open_overtime: At most one pending request per time entry.
    status is written from the derived approval status on every write.
  - idx_unique_day_entry: One original entry per employee and day_key.
  - idx_unique_correction: An entry is superseded at most once.
  - Lookup indexes on employee and status columns.

OPTIMISTIC CONCURRENCY:
  Updates run "UPDATE ... WHERE id = ? AND version = ?" inside a transaction
  together with the transition insert. Zero affected rows means another
  writer got there first (generic.ErrConcurrentModification).

WAL MODE:
  Enabled via the connection string for concurrent readers during writes.

USAGE:
  store, err := sqlite.New("attendance.db")
  defer store.Close()
  adj := overtime.NewAdjudicator(store, store)

MIGRATION:
  Schema is created via migrate() on startup. For schema changes, add
  ALTER TABLE statements.
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
	"github.com/warp/attendance-engine/store/codec"
)

// Store implements every repository using SQLite.
type Store struct {
	db *sql.DB
}

var (
	_ attendance.Repository  = (*Store)(nil)
	_ overtime.Repository    = (*Store)(nil)
	_ shiftchange.Repository = (*Store)(nil)
	_ leave.Repository       = (*Store)(nil)
	_ generic.AuditLog       = (*Store)(nil)
)

// New creates a new SQLite store.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// Each connection to :memory: is its own database.
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Reset deletes all data (for demo scenarios and tests).
func (s *Store) Reset(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"transitions", "overtime_requests", "shift_change_requests", "leaves", "time_entries"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("reset %s: %w", table, err)
			}
		}
		return nil
	})
}

func (s *Store) migrate() error {
	schema := `
	-- Time entries (never deleted; corrections point at what they replace)
	CREATE TABLE IF NOT EXISTS time_entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		work_date TEXT,
		time_in_json TEXT,
		time_out_json TEXT,
		schedule_start INTEGER NOT NULL,
		schedule_end INTEGER NOT NULL,
		overtime_threshold INTEGER,
		timezone TEXT NOT NULL DEFAULT '',
		shift_id TEXT NOT NULL DEFAULT '',
		supersedes_id TEXT NOT NULL DEFAULT '',
		day_key TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_time_entries_employee
		ON time_entries(employee_id);

	-- CRITICAL: one original entry per employee-day, one correction per entry
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_day_entry
		ON time_entries(employee_id, day_key)
		WHERE supersedes_id = '' AND day_key != '';
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_correction
		ON time_entries(supersedes_id)
		WHERE supersedes_id != '';

	-- Overtime requests
	CREATE TABLE IF NOT EXISTS overtime_requests (
		id TEXT PRIMARY KEY,
		time_entry_id TEXT NOT NULL,
		employee_id TEXT NOT NULL,
		requested_minutes INTEGER NOT NULL,
		approved_minutes INTEGER,
		status TEXT NOT NULL DEFAULT 'pending',
		leader_decision TEXT NOT NULL DEFAULT 'undecided',
		leader_actor TEXT NOT NULL DEFAULT '',
		leader_decided_at TEXT,
		manager_decision TEXT NOT NULL DEFAULT 'undecided',
		manager_actor TEXT NOT NULL DEFAULT '',
		manager_decided_at TEXT,
		leaders_json TEXT NOT NULL DEFAULT '[]',
		manager_ref TEXT NOT NULL DEFAULT '',
		remarks TEXT NOT NULL DEFAULT '',
		filed_by TEXT NOT NULL DEFAULT '',
		filed_at TEXT NOT NULL,
		supersedes_id TEXT NOT NULL DEFAULT '',
		version INTEGER NOT NULL DEFAULT 1
	);

	-- CRITICAL: one pending request per time entry
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_open_overtime
		ON overtime_requests(time_entry_id)
		WHERE status = 'pending';

	CREATE INDEX IF NOT EXISTS idx_overtime_entry
		ON overtime_requests(time_entry_id);
	CREATE INDEX IF NOT EXISTS idx_overtime_employee
		ON overtime_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_overtime_status
		ON overtime_requests(status);

	-- Shift-change requests
	CREATE TABLE IF NOT EXISTS shift_change_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		time_entry_id TEXT NOT NULL DEFAULT '',
		requested_time_in TEXT NOT NULL,
		requested_time_out TEXT NOT NULL,
		projects_json TEXT NOT NULL,
		manager_ref TEXT NOT NULL,
		remarks TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL DEFAULT 'pending',
		leader_decision TEXT NOT NULL DEFAULT 'undecided',
		leader_actor TEXT NOT NULL DEFAULT '',
		leader_decided_at TEXT,
		manager_decision TEXT NOT NULL DEFAULT 'undecided',
		manager_actor TEXT NOT NULL DEFAULT '',
		manager_decided_at TEXT,
		filed_by TEXT NOT NULL DEFAULT '',
		filed_at TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1
	);

	CREATE INDEX IF NOT EXISTS idx_shift_change_employee
		ON shift_change_requests(employee_id);
	CREATE INDEX IF NOT EXISTS idx_shift_change_status
		ON shift_change_requests(status);

	-- Leaves (cancellations are rows with cancels_id set)
	CREATE TABLE IF NOT EXISTS leaves (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		date TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		is_with_pay BOOLEAN NOT NULL DEFAULT FALSE,
		num_units TEXT NOT NULL,
		reason TEXT NOT NULL DEFAULT '',
		cancels_id TEXT NOT NULL DEFAULT '',
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_leaves_employee_date
		ON leaves(employee_id, date);
	CREATE UNIQUE INDEX IF NOT EXISTS idx_unique_leave_cancellation
		ON leaves(cancels_id)
		WHERE cancels_id != '';

	-- Decision history (append-only)
	CREATE TABLE IF NOT EXISTS transitions (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		request_id TEXT NOT NULL,
		kind TEXT NOT NULL,
		role TEXT NOT NULL,
		decision TEXT NOT NULL,
		actor_id TEXT NOT NULL DEFAULT '',
		from_status TEXT NOT NULL,
		to_status TEXT NOT NULL,
		at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_transitions_request
		ON transitions(request_id);
	`

	_, err := s.db.Exec(schema)
	return err
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// withTx runs fn in a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// checkVersioned turns a zero-row versioned UPDATE into NotFound or a
// concurrent modification.
func checkVersioned(ctx context.Context, tx *sql.Tx, res sql.Result, table, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	var exists int
	err = tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+table+" WHERE id = ?", id).Scan(&exists)
	if err != nil {
		return err
	}
	if exists == 0 {
		return generic.NotFound(kind, id)
	}
	return generic.ErrConcurrentModification
}

// =============================================================================
// TIME ENTRIES (attendance.Repository)
// =============================================================================

const entryColumns = `id, employee_id, work_date, time_in_json, time_out_json,
	schedule_start, schedule_end, overtime_threshold, timezone,
	shift_id, supersedes_id, created_at, version`

func entryArgs(e attendance.TimeEntry) ([]any, error) {
	in, err := codec.EncodeClockEvent(e.TimeIn)
	if err != nil {
		return nil, err
	}
	out, err := codec.EncodeClockEvent(e.TimeOut)
	if err != nil {
		return nil, err
	}
	sch := codec.EncodeSchedule(e.Schedule)
	return []any{
		codec.FormatDate(e.Date), in, out,
		sch.Start, sch.End, sch.Threshold, sch.Timezone,
		e.ShiftID, string(e.SupersedesID),
	}, nil
}

// entryConflict maps a unique-index violation on time_entries to the
// matching engine error.
func entryConflict(err error, e attendance.TimeEntry) error {
	se, ok := uniqueConstraintError(err)
	if !ok {
		return nil
	}
	switch {
	case strings.Contains(se.Error(), "time_entries.supersedes_id"):
		return fmt.Errorf("%w: entry %s already has a correction", generic.ErrEntrySuperseded, e.SupersedesID)
	case strings.Contains(se.Error(), "time_entries.day_key"):
		return fmt.Errorf("%w: employee %s on %s", generic.ErrDuplicateEntry, e.EmployeeID, e.DayKey())
	}
	return fmt.Errorf("%w: id %s is taken", generic.ErrDuplicateEntry, e.ID)
}

func (s *Store) CreateEntry(ctx context.Context, e attendance.TimeEntry) error {
	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	query := `INSERT INTO time_entries (` + entryColumns + `, day_key)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`

	args = append([]any{string(e.ID), string(e.EmployeeID)}, args...)
	args = append(args, codec.FormatTime(e.CreatedAt), e.DayKey())
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		if cerr := entryConflict(err, e); cerr != nil {
			return cerr
		}
		return fmt.Errorf("failed to insert time entry: %w", err)
	}
	return nil
}

func (s *Store) UpdateEntry(ctx context.Context, e attendance.TimeEntry) error {
	args, err := entryArgs(e)
	if err != nil {
		return err
	}
	query := `
		UPDATE time_entries SET
			work_date = ?, time_in_json = ?, time_out_json = ?,
			schedule_start = ?, schedule_end = ?, overtime_threshold = ?, timezone = ?,
			shift_id = ?, supersedes_id = ?, day_key = ?, version = version + 1
		WHERE id = ? AND version = ?
	`
	args = append(args, e.DayKey(), string(e.ID), e.Version)

	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, args...)
		if err != nil {
			if cerr := entryConflict(err, e); cerr != nil {
				return cerr
			}
			return fmt.Errorf("failed to update time entry: %w", err)
		}
		return checkVersioned(ctx, tx, res, "time_entries", "time entry", string(e.ID))
	})
}

func (s *Store) GetEntry(ctx context.Context, id generic.TimeEntryID) (attendance.TimeEntry, error) {
	entries, err := s.queryEntries(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE id = ?`, string(id))
	if err != nil {
		return attendance.TimeEntry{}, err
	}
	if len(entries) == 0 {
		return attendance.TimeEntry{}, generic.NotFound("time entry", string(id))
	}
	return entries[0], nil
}

// ListEntries filters by employee in SQL and by work date in Go, since the
// work date of an undated entry comes from its clock events.
func (s *Store) ListEntries(ctx context.Context, employeeID generic.EmployeeID, period generic.Period) ([]attendance.TimeEntry, error) {
	all, err := s.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM time_entries WHERE employee_id = ? ORDER BY created_at ASC, id ASC`,
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
	sortEntries(out)
	return out, nil
}

func (s *Store) SupersededBy(ctx context.Context, id generic.TimeEntryID) (*attendance.TimeEntry, error) {
	entries, err := s.queryEntries(ctx, `SELECT `+entryColumns+` FROM time_entries WHERE supersedes_id = ?`, string(id))
	if err != nil || len(entries) == 0 {
		return nil, err
	}
	return &entries[0], nil
}

func (s *Store) queryEntries(ctx context.Context, query string, args ...any) ([]attendance.TimeEntry, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query time entries: %w", err)
	}
	defer rows.Close()

	var entries []attendance.TimeEntry
	for rows.Next() {
		var (
			e                   attendance.TimeEntry
			id, emp, shift, sup string
			date, in, out       *string
			sch                 codec.Schedule
			createdAt           string
		)
		if err := rows.Scan(&id, &emp, &date, &in, &out,
			&sch.Start, &sch.End, &sch.Threshold, &sch.Timezone,
			&shift, &sup, &createdAt, &e.Version); err != nil {
			return nil, err
		}

		e.ID = generic.TimeEntryID(id)
		e.EmployeeID = generic.EmployeeID(emp)
		e.ShiftID = shift
		e.SupersedesID = generic.TimeEntryID(sup)
		if e.Date, err = codec.ParseDate(date); err != nil {
			return nil, err
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
		if e.CreatedAt, err = codec.ParseTime(createdAt); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}

	return entries, rows.Err()
}

func sortEntries(es []attendance.TimeEntry) {
	sort.SliceStable(es, func(i, j int) bool {
		di, _ := es[i].WorkDate()
		dj, _ := es[j].WorkDate()
		if !di.Equal(dj) {
			return di.Before(dj)
		}
		return es[i].CreatedAt.Before(es[j].CreatedAt)
	})
}

// =============================================================================
// OVERTIME REQUESTS (overtime.Repository)
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
	ld, md := codec.EncodeDecision(r.Approval.Leader), codec.EncodeDecision(r.Approval.Manager)

	query := `
		INSERT INTO overtime_requests (` + overtimeColumns + `, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(r.ID), string(r.TimeEntryID), string(r.EmployeeID),
		r.RequestedMinutes, r.ApprovedMinutes,
		ld.Decision, ld.ActorID, ld.DecidedAt,
		md.Decision, md.ActorID, md.DecidedAt,
		leaders, r.Approvers.Manager, r.Remarks, r.FiledBy,
		codec.FormatTime(r.FiledAt), string(r.SupersedesID),
		r.Status().String(),
	)
	if err != nil {
		if isOpenOvertimeError(err) {
			return s.duplicateOvertime(ctx, r.TimeEntryID)
		}
		return fmt.Errorf("failed to insert overtime request: %w", err)
	}
	return nil
}

func (s *Store) duplicateOvertime(ctx context.Context, entryID generic.TimeEntryID) error {
	dup := &generic.DuplicateRequestError{TimeEntryID: entryID, Status: generic.StatusPending}
	var existing string
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM overtime_requests WHERE time_entry_id = ? AND status = 'pending'`,
		string(entryID)).Scan(&existing)
	if err == nil {
		dup.ExistingID = generic.RequestID(existing)
	}
	return dup
}

func (s *Store) UpdateOvertime(ctx context.Context, r overtime.Request, tr generic.Transition) error {
	leaders, err := codec.EncodeStrings(r.Approvers.Leaders)
	if err != nil {
		return err
	}
	ld, md := codec.EncodeDecision(r.Approval.Leader), codec.EncodeDecision(r.Approval.Manager)

	query := `
		UPDATE overtime_requests SET
			requested_minutes = ?, approved_minutes = ?, status = ?,
			leader_decision = ?, leader_actor = ?, leader_decided_at = ?,
			manager_decision = ?, manager_actor = ?, manager_decided_at = ?,
			leaders_json = ?, manager_ref = ?, remarks = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			r.RequestedMinutes, r.ApprovedMinutes, r.Status().String(),
			ld.Decision, ld.ActorID, ld.DecidedAt,
			md.Decision, md.ActorID, md.DecidedAt,
			leaders, r.Approvers.Manager, r.Remarks,
			string(r.ID), r.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update overtime request: %w", err)
		}
		if err := checkVersioned(ctx, tx, res, "overtime_requests", "overtime request", string(r.ID)); err != nil {
			return err
		}
		return appendTransition(ctx, tx, tr)
	})
}

func (s *Store) GetOvertime(ctx context.Context, id generic.RequestID) (overtime.Request, error) {
	rs, err := s.queryOvertime(ctx, `SELECT `+overtimeColumns+` FROM overtime_requests WHERE id = ?`, string(id))
	if err != nil {
		return overtime.Request{}, err
	}
	if len(rs) == 0 {
		return overtime.Request{}, generic.NotFound("overtime request", string(id))
	}
	return rs[0], nil
}

func (s *Store) OvertimeForEntry(ctx context.Context, entryID generic.TimeEntryID) ([]overtime.Request, error) {
	return s.queryOvertime(ctx,
		`SELECT `+overtimeColumns+` FROM overtime_requests WHERE time_entry_id = ? ORDER BY filed_at ASC, id ASC`,
		string(entryID))
}

func (s *Store) ListOvertime(ctx context.Context, f overtime.Filter) ([]overtime.Request, error) {
	where, args := requestWhere(f.EmployeeID, f.Status, f.FiledBefore)
	return s.queryOvertime(ctx,
		`SELECT `+overtimeColumns+` FROM overtime_requests`+where+` ORDER BY filed_at ASC, id ASC`,
		args...)
}

func (s *Store) queryOvertime(ctx context.Context, query string, args ...any) ([]overtime.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query overtime requests: %w", err)
	}
	defer rows.Close()

	var requests []overtime.Request
	for rows.Next() {
		var (
			r                   overtime.Request
			id, entry, emp, sup string
			ld, md              codec.Decision
			leaders, filedAt    string
		)
		if err := rows.Scan(&id, &entry, &emp, &r.RequestedMinutes, &r.ApprovedMinutes,
			&ld.Decision, &ld.ActorID, &ld.DecidedAt,
			&md.Decision, &md.ActorID, &md.DecidedAt,
			&leaders, &r.Approvers.Manager, &r.Remarks, &r.FiledBy, &filedAt, &sup, &r.Version); err != nil {
			return nil, err
		}

		r.ID = generic.RequestID(id)
		r.TimeEntryID = generic.TimeEntryID(entry)
		r.EmployeeID = generic.EmployeeID(emp)
		r.SupersedesID = generic.RequestID(sup)
		if r.Approval, err = decodeApproval(ld, md); err != nil {
			return nil, err
		}
		if r.Approvers.Leaders, err = codec.DecodeStrings(leaders); err != nil {
			return nil, err
		}
		if r.FiledAt, err = codec.ParseTime(filedAt); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

// =============================================================================
// SHIFT CHANGE REQUESTS (shiftchange.Repository)
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
	ld, md := codec.EncodeDecision(r.Approval.Leader), codec.EncodeDecision(r.Approval.Manager)

	query := `
		INSERT INTO shift_change_requests (` + shiftChangeColumns + `, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)
	`
	_, err = s.db.ExecContext(ctx, query,
		string(r.ID), string(r.EmployeeID), string(r.TimeEntryID),
		codec.FormatTime(r.RequestedTimeIn), codec.FormatTime(r.RequestedTimeOut),
		projects, r.ManagerRef, r.Remarks,
		ld.Decision, ld.ActorID, ld.DecidedAt,
		md.Decision, md.ActorID, md.DecidedAt,
		r.FiledBy, codec.FormatTime(r.FiledAt), r.Status().String(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert shift change request: %w", err)
	}
	return nil
}

func (s *Store) UpdateShiftChange(ctx context.Context, r shiftchange.Request, tr generic.Transition) error {
	ld, md := codec.EncodeDecision(r.Approval.Leader), codec.EncodeDecision(r.Approval.Manager)

	query := `
		UPDATE shift_change_requests SET
			status = ?, remarks = ?,
			leader_decision = ?, leader_actor = ?, leader_decided_at = ?,
			manager_decision = ?, manager_actor = ?, manager_decided_at = ?,
			version = version + 1
		WHERE id = ? AND version = ?
	`
	return s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query,
			r.Status().String(), r.Remarks,
			ld.Decision, ld.ActorID, ld.DecidedAt,
			md.Decision, md.ActorID, md.DecidedAt,
			string(r.ID), r.Version,
		)
		if err != nil {
			return fmt.Errorf("failed to update shift change request: %w", err)
		}
		if err := checkVersioned(ctx, tx, res, "shift_change_requests", "shift change request", string(r.ID)); err != nil {
			return err
		}
		return appendTransition(ctx, tx, tr)
	})
}

func (s *Store) GetShiftChange(ctx context.Context, id generic.RequestID) (shiftchange.Request, error) {
	rs, err := s.queryShiftChanges(ctx, `SELECT `+shiftChangeColumns+` FROM shift_change_requests WHERE id = ?`, string(id))
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
	return s.queryShiftChanges(ctx,
		`SELECT `+shiftChangeColumns+` FROM shift_change_requests`+where+` ORDER BY filed_at ASC, id ASC`,
		args...)
}

func (s *Store) queryShiftChanges(ctx context.Context, query string, args ...any) ([]shiftchange.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query shift change requests: %w", err)
	}
	defer rows.Close()

	var requests []shiftchange.Request
	for rows.Next() {
		var (
			r                        shiftchange.Request
			id, emp, entry           string
			in, out, projects, filed string
			ld, md                   codec.Decision
		)
		if err := rows.Scan(&id, &emp, &entry, &in, &out,
			&projects, &r.ManagerRef, &r.Remarks,
			&ld.Decision, &ld.ActorID, &ld.DecidedAt,
			&md.Decision, &md.ActorID, &md.DecidedAt,
			&r.FiledBy, &filed, &r.Version); err != nil {
			return nil, err
		}

		r.ID = generic.RequestID(id)
		r.EmployeeID = generic.EmployeeID(emp)
		r.TimeEntryID = generic.TimeEntryID(entry)
		if r.RequestedTimeIn, err = codec.ParseTime(in); err != nil {
			return nil, err
		}
		if r.RequestedTimeOut, err = codec.ParseTime(out); err != nil {
			return nil, err
		}
		if r.Projects, err = codec.DecodeProjects(projects); err != nil {
			return nil, err
		}
		if r.Approval, err = decodeApproval(ld, md); err != nil {
			return nil, err
		}
		if r.FiledAt, err = codec.ParseTime(filed); err != nil {
			return nil, err
		}
		requests = append(requests, r)
	}

	return requests, rows.Err()
}

// requestWhere builds the WHERE clause shared by both request tables.
func requestWhere(emp *generic.EmployeeID, status *generic.Status, filedBefore *time.Time) (string, []any) {
	var conds []string
	var args []any
	if emp != nil {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(*emp))
	}
	if status != nil {
		conds = append(conds, "status = ?")
		args = append(args, status.String())
	}
	if filedBefore != nil {
		conds = append(conds, "filed_at < ?")
		args = append(args, codec.FormatTime(*filedBefore))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func decodeApproval(ld, md codec.Decision) (generic.Approval, error) {
	leader, err := ld.Decode()
	if err != nil {
		return generic.Approval{}, err
	}
	manager, err := md.Decode()
	if err != nil {
		return generic.Approval{}, err
	}
	return generic.Approval{Leader: leader, Manager: manager}, nil
}

// =============================================================================
// LEAVES (leave.Repository)
// =============================================================================

const leaveColumns = `id, employee_id, date, leave_type, is_with_pay, num_units, reason, cancels_id, created_at`

func (s *Store) CreateLeave(ctx context.Context, r leave.Record) error {
	query := `INSERT INTO leaves (` + leaveColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		string(r.ID), string(r.EmployeeID), codec.FormatDate(r.Date),
		r.LeaveType, r.IsWithPay, r.NumUnits.String(), r.Reason,
		string(r.CancelsID), codec.FormatTime(r.CreatedAt),
	)
	if err != nil {
		if isUniqueConstraintError(err) && r.IsCancellation() {
			return fmt.Errorf("leave %s: %w", r.CancelsID, generic.ErrAlreadyFinalized)
		}
		return fmt.Errorf("failed to insert leave: %w", err)
	}
	return nil
}

func (s *Store) GetLeave(ctx context.Context, id leave.RecordID) (leave.Record, error) {
	rs, err := s.queryLeaves(ctx, `SELECT `+leaveColumns+` FROM leaves WHERE id = ?`, string(id))
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
	if f.EmployeeID != nil {
		conds = append(conds, "employee_id = ?")
		args = append(args, string(*f.EmployeeID))
	}
	if from := codec.FormatDate(f.Period.Start); from != nil {
		conds = append(conds, "date >= ?")
		args = append(args, *from)
	}
	if to := codec.FormatDate(f.Period.End); to != nil {
		conds = append(conds, "date <= ?")
		args = append(args, *to)
	}

	query := `SELECT ` + leaveColumns + ` FROM leaves`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY date ASC, id ASC"

	return s.queryLeaves(ctx, query, args...)
}

func (s *Store) queryLeaves(ctx context.Context, query string, args ...any) ([]leave.Record, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leaves: %w", err)
	}
	defer rows.Close()

	var records []leave.Record
	for rows.Next() {
		var (
			r                           leave.Record
			id, emp, units, cancels, at string
			date                        *string
		)
		if err := rows.Scan(&id, &emp, &date, &r.LeaveType, &r.IsWithPay, &units, &r.Reason, &cancels, &at); err != nil {
			return nil, err
		}

		r.ID = leave.RecordID(id)
		r.EmployeeID = generic.EmployeeID(emp)
		r.CancelsID = leave.RecordID(cancels)
		if r.Date, err = codec.ParseDate(date); err != nil {
			return nil, err
		}
		if r.NumUnits, err = decimal.NewFromString(units); err != nil {
			return nil, fmt.Errorf("leave %s: invalid units %q: %w", id, units, err)
		}
		if r.CreatedAt, err = codec.ParseTime(at); err != nil {
			return nil, err
		}
		records = append(records, r)
	}

	return records, rows.Err()
}

// =============================================================================
// AUDIT LOG (generic.AuditLog)
// =============================================================================

func (s *Store) AppendTransition(ctx context.Context, t generic.Transition) error {
	return appendTransition(ctx, s.db, t)
}

func appendTransition(ctx context.Context, db execer, t generic.Transition) error {
	query := `
		INSERT INTO transitions (request_id, kind, role, decision, actor_id, from_status, to_status, at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := db.ExecContext(ctx, query,
		string(t.RequestID), string(t.Kind), string(t.Role), t.Decision.String(),
		t.ActorID, t.From.String(), t.To.String(), codec.FormatTime(t.At),
	)
	if err != nil {
		return fmt.Errorf("failed to append transition: %w", err)
	}
	return nil
}

func (s *Store) Transitions(ctx context.Context, f generic.AuditFilter) ([]generic.Transition, error) {
	var conds []string
	var args []any
	if f.RequestID != nil {
		conds = append(conds, "request_id = ?")
		args = append(args, string(*f.RequestID))
	}
	if f.Kind != nil {
		conds = append(conds, "kind = ?")
		args = append(args, string(*f.Kind))
	}
	if f.ActorID != nil {
		conds = append(conds, "actor_id = ?")
		args = append(args, *f.ActorID)
	}
	if f.From != nil {
		conds = append(conds, "at >= ?")
		args = append(args, codec.FormatTime(*f.From))
	}
	if f.To != nil {
		conds = append(conds, "at <= ?")
		args = append(args, codec.FormatTime(*f.To))
	}

	query := `SELECT request_id, kind, role, decision, actor_id, from_status, to_status, at FROM transitions`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY seq ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transitions: %w", err)
	}
	defer rows.Close()

	var out []generic.Transition
	for rows.Next() {
		var reqID, kind, role, decision, from, to, at string
		var t generic.Transition
		if err := rows.Scan(&reqID, &kind, &role, &decision, &t.ActorID, &from, &to, &at); err != nil {
			return nil, err
		}
		if t, err = decodeTransition(t, reqID, kind, role, decision, from, to, at); err != nil {
			return nil, err
		}
		out = append(out, t)
	}

	return out, rows.Err()
}

func decodeTransition(t generic.Transition, reqID, kind, role, decision, from, to, at string) (generic.Transition, error) {
	var err error
	t.RequestID = generic.RequestID(reqID)
	t.Kind = generic.RequestKind(kind)
	t.Role = generic.Role(role)
	if t.Decision, err = generic.ParseDecision(decision); err != nil {
		return t, err
	}
	if t.From, err = generic.ParseStatus(from); err != nil {
		return t, err
	}
	if t.To, err = generic.ParseStatus(to); err != nil {
		return t, err
	}
	t.At, err = codec.ParseTime(at)
	return t, err
}

// Helper functions

// uniqueConstraintError unwraps a UNIQUE or PRIMARY KEY violation.
func uniqueConstraintError(err error) (sqlite3.Error, bool) {
	var se sqlite3.Error
	if !errors.As(err, &se) {
		return se, false
	}
	return se, se.ExtendedCode == sqlite3.ErrConstraintUnique ||
		se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}

func isUniqueConstraintError(err error) bool {
	_, ok := uniqueConstraintError(err)
	return ok
}

// isOpenOvertimeError matches the partial index on pending requests. SQLite
// names the indexed columns rather than the index.
func isOpenOvertimeError(err error) bool {
	se, ok := uniqueConstraintError(err)
	return ok && strings.Contains(se.Error(), "overtime_requests.time_entry_id")
}
