package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
)

// newTestStore connects to TEST_DATABASE_URL and empties every table.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(s.Close)

	require.NoError(t, s.Reset(ctx))
	return s
}

var workDay = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func lateEntry(id generic.TimeEntryID) attendance.TimeEntry {
	return attendance.TimeEntry{
		ID:         id,
		EmployeeID: "emp-1",
		Date:       workDay,
		TimeIn:     &attendance.ClockEvent{ID: "in-1", Timestamp: workDay.Add(8*time.Hour + 15*time.Minute)},
		TimeOut:    &attendance.ClockEvent{ID: "out-1", Timestamp: workDay.Add(19*time.Hour + 45*time.Minute)},
		Schedule: attendance.ShiftSchedule{
			Start: generic.MustTimeOfDay("08:00"),
			End:   generic.MustTimeOfDay("17:00"),
		},
		CreatedAt: workDay,
		Version:   1,
	}
}

func TestPostgres_EntryAndOvertime(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	e := lateEntry("te-1")
	require.NoError(t, s.CreateEntry(ctx, e))
	got, err := s.GetEntry(ctx, "te-1")
	require.NoError(t, err)
	assert.Equal(t, "2025-03-10", got.Date.Format(generic.DateLayout))

	adj := overtime.NewAdjudicator(s, s)
	req, err := adj.FileOvertime(ctx, overtime.Filing{Entry: got, RequestedMinutes: 120})
	require.NoError(t, err)

	dup := req
	dup.ID = "ot-dup"
	var dupErr *generic.DuplicateRequestError
	require.ErrorAs(t, s.CreateOvertime(ctx, dup), &dupErr)
	assert.Equal(t, req.ID, dupErr.ExistingID)

	_, err = adj.RecordLeaderDecision(ctx, req.ID, generic.DecisionApproved, "")
	require.NoError(t, err)
	_, err = adj.RecordManagerDecision(ctx, req.ID, generic.DecisionApproved, nil, "")
	require.NoError(t, err)

	final, err := s.GetOvertime(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusApproved, final.Status())
	require.NotNil(t, final.ApprovedMinutes)
	assert.Equal(t, 120, *final.ApprovedMinutes)

	history, err := s.Transitions(ctx, generic.ForRequest(req.ID))
	require.NoError(t, err)
	assert.Len(t, history, 2)

	stale := final
	stale.Version = 1
	assert.ErrorIs(t, s.UpdateOvertime(ctx, stale, generic.Transition{}), generic.ErrConcurrentModification)
}

func TestPostgres_EntryUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateEntry(ctx, lateEntry("te-1")))

	assert.ErrorIs(t, s.CreateEntry(ctx, lateEntry("te-2")), generic.ErrDuplicateEntry)

	fix := lateEntry("te-3")
	fix.SupersedesID = "te-1"
	require.NoError(t, s.CreateEntry(ctx, fix))
	fork := lateEntry("te-4")
	fork.SupersedesID = "te-1"
	assert.ErrorIs(t, s.CreateEntry(ctx, fork), generic.ErrEntrySuperseded)

	next, err := s.SupersededBy(ctx, "te-1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, generic.TimeEntryID("te-3"), next.ID)
}

func TestPostgres_LeaveUnitsAreExact(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := leave.NewService(s)

	r, err := svc.Record(ctx, leave.NewRecord{
		EmployeeID: "emp-1", Date: workDay, LeaveType: "Vacation", IsWithPay: true, NumUnits: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	got, err := s.GetLeave(ctx, r.ID)
	require.NoError(t, err)
	assert.True(t, got.NumUnits.Equal(decimal.RequireFromString("0.5")))

	_, err = svc.Cancel(ctx, r.ID, "")
	require.NoError(t, err)
	b, _, err := svc.Breakdown(ctx, leave.Filter{Period: generic.MonthOf(workDay)})
	require.NoError(t, err)
	assert.Empty(t, b.Groups)
}
