package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/overtime"
	"github.com/warp/attendance-engine/shiftchange"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

var (
	manila  = time.FixedZone("PHT", 8*3600)
	workDay = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)
)

func lateEntry(id generic.TimeEntryID) attendance.TimeEntry {
	th := generic.MustTimeOfDay("17:30")
	return attendance.TimeEntry{
		ID:         id,
		EmployeeID: "emp-1",
		Date:       workDay,
		TimeIn:     &attendance.ClockEvent{ID: "in-1", Timestamp: time.Date(2025, 3, 10, 8, 15, 0, 0, manila), Remarks: "traffic"},
		TimeOut:    &attendance.ClockEvent{ID: "out-1", Timestamp: time.Date(2025, 3, 10, 19, 45, 0, 0, manila)},
		Schedule: attendance.ShiftSchedule{
			Start:             generic.MustTimeOfDay("08:00"),
			End:               generic.MustTimeOfDay("17:00"),
			OvertimeThreshold: &th,
		},
		ShiftID:   "day",
		CreatedAt: time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Version:   1,
	}
}

// =============================================================================
// TIME ENTRIES
// =============================================================================

func TestStore_EntryRoundTripClassifiesTheSame(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := lateEntry("te-1")

	require.NoError(t, s.CreateEntry(ctx, e))
	got, err := s.GetEntry(ctx, "te-1")
	require.NoError(t, err)

	assert.Equal(t, 1, got.Version)
	assert.Equal(t, "2025-03-10", got.Date.Format(generic.DateLayout))
	require.NotNil(t, got.TimeIn)
	assert.True(t, e.TimeIn.Timestamp.Equal(got.TimeIn.Timestamp))
	assert.Equal(t, "traffic", got.TimeIn.Remarks)
	require.NotNil(t, got.Schedule.OvertimeThreshold)
	assert.Equal(t, "17:30", got.Schedule.OvertimeThreshold.String())

	want, err := attendance.Classify(e)
	require.NoError(t, err)
	have, err := attendance.Classify(got)
	require.NoError(t, err)
	assert.Equal(t, want, have)
}

func TestStore_UpdateEntryIsVersionChecked(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	e := lateEntry("te-1")
	e.TimeOut = nil
	require.NoError(t, s.CreateEntry(ctx, e))

	// GIVEN: two writers read version 1
	e.TimeOut = &attendance.ClockEvent{ID: "out-1", Timestamp: time.Date(2025, 3, 10, 18, 0, 0, 0, manila)}

	// WHEN: both write
	require.NoError(t, s.UpdateEntry(ctx, e))
	err := s.UpdateEntry(ctx, e)

	// THEN: the second fails
	assert.ErrorIs(t, err, generic.ErrConcurrentModification)

	got, err := s.GetEntry(ctx, "te-1")
	require.NoError(t, err)
	assert.Equal(t, 2, got.Version)
	assert.NotNil(t, got.TimeOut)

	missing := lateEntry("te-404")
	assert.ErrorIs(t, s.UpdateEntry(ctx, missing), generic.ErrNotFound)
	_, err = s.GetEntry(ctx, "te-404")
	assert.True(t, generic.IsNotFound(err))
}

func TestStore_ListEntriesByPeriod(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for i, day := range []int{12, 10, 20} {
		e := lateEntry(generic.TimeEntryID("te-" + string(rune('a'+i))))
		e.Date = time.Date(2025, time.March, day, 0, 0, 0, 0, time.UTC)
		require.NoError(t, s.CreateEntry(ctx, e))
	}
	other := lateEntry("te-x")
	other.EmployeeID = "emp-2"
	require.NoError(t, s.CreateEntry(ctx, other))

	p, err := generic.ParsePeriod("2025-03-01", "2025-03-15")
	require.NoError(t, err)
	got, err := s.ListEntries(ctx, "emp-1", p)
	require.NoError(t, err)

	require.Len(t, got, 2)
	assert.Equal(t, generic.TimeEntryID("te-b"), got[0].ID)
	assert.Equal(t, generic.TimeEntryID("te-a"), got[1].ID)
}

func TestStore_OneOriginalPerDayAndOneCorrection(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateEntry(ctx, lateEntry("te-1")))

	// WHEN: the id or the employee-day is reused
	taken := lateEntry("te-1")
	taken.Date = workDay.AddDate(0, 0, 1)
	assert.ErrorIs(t, s.CreateEntry(ctx, taken), generic.ErrDuplicateEntry)
	assert.ErrorIs(t, s.CreateEntry(ctx, lateEntry("te-2")), generic.ErrDuplicateEntry)

	// WHEN: the entry is corrected twice
	fix := lateEntry("te-3")
	fix.SupersedesID = "te-1"
	require.NoError(t, s.CreateEntry(ctx, fix))
	fork := lateEntry("te-4")
	fork.SupersedesID = "te-1"

	// THEN: the second correction is refused
	assert.ErrorIs(t, s.CreateEntry(ctx, fork), generic.ErrEntrySuperseded)

	next, err := s.SupersededBy(ctx, "te-1")
	require.NoError(t, err)
	require.NotNil(t, next)
	assert.Equal(t, generic.TimeEntryID("te-3"), next.ID)
	none, err := s.SupersededBy(ctx, "te-3")
	require.NoError(t, err)
	assert.Nil(t, none)

	chain, err := attendance.Lineage(ctx, s, "te-3")
	require.NoError(t, err)
	assert.Len(t, chain, 2)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestStore_OvertimeLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	adj := overtime.NewAdjudicator(s, s)

	req, err := adj.FileOvertime(ctx, overtime.Filing{
		Entry:            lateEntry("te-1"),
		RequestedMinutes: 120,
		Approvers:        generic.Approvers{Leaders: []string{"lead-1"}, Manager: "mgr-1"},
	})
	require.NoError(t, err)

	_, err = adj.FileOvertime(ctx, overtime.Filing{Entry: lateEntry("te-1"), RequestedMinutes: 60})
	assert.ErrorIs(t, err, generic.ErrDuplicateOpenRequest)

	_, err = adj.RecordLeaderDecision(ctx, req.ID, generic.DecisionApproved, "lead-1")
	require.NoError(t, err)
	final, err := adj.RecordManagerDecision(ctx, req.ID, generic.DecisionApproved, intPtr(90), "mgr-1")
	require.NoError(t, err)

	got, err := s.GetOvertime(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusApproved, got.Status())
	require.NotNil(t, got.ApprovedMinutes)
	assert.Equal(t, 90, *got.ApprovedMinutes)
	assert.Equal(t, final.Version, got.Version)
	assert.Equal(t, []string{"lead-1"}, got.Approvers.Leaders)
	require.NotNil(t, got.Approval.Manager.DecidedAt)

	history, err := s.Transitions(ctx, generic.ForRequest(req.ID))
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, generic.RoleLeader, history[0].Role)
	assert.Equal(t, generic.StatusApproved, history[1].To)
	assert.True(t, history[1].Finalized())

	approved := generic.StatusApproved
	list, err := s.ListOvertime(ctx, overtime.Filter{Status: &approved})
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestStore_PendingIndexRejectsSecondOpenRequest(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	first := overtime.Request{ID: "ot-1", TimeEntryID: "te-1", EmployeeID: "emp-1", RequestedMinutes: 30, FiledAt: workDay}
	require.NoError(t, s.CreateOvertime(ctx, first))

	second := first
	second.ID = "ot-2"
	err := s.CreateOvertime(ctx, second)

	var dup *generic.DuplicateRequestError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, generic.RequestID("ot-1"), dup.ExistingID)

	// A rejected request frees the slot.
	first.Version = 1
	first.Approval.Leader.Decision = generic.DecisionRejected
	first.Approval.Manager.Decision = generic.DecisionApproved
	require.NoError(t, s.UpdateOvertime(ctx, first, generic.Transition{RequestID: "ot-1", Kind: generic.KindOvertime, At: workDay}))
	require.NoError(t, s.CreateOvertime(ctx, second))

	assert.ErrorIs(t, s.UpdateOvertime(ctx, first, generic.Transition{}), generic.ErrConcurrentModification)

	all, err := s.OvertimeForEntry(ctx, "te-1")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

// =============================================================================
// SHIFT CHANGES
// =============================================================================

func TestStore_ShiftChangeRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	adj := shiftchange.NewAdjudicator(s)

	req, err := adj.FileShiftChange(ctx, shiftchange.Filing{
		EmployeeID:       "emp-1",
		RequestedTimeIn:  workDay.Add(10 * time.Hour),
		RequestedTimeOut: workDay.Add(19 * time.Hour),
		Projects: []shiftchange.ProjectAssignment{
			{ProjectRef: "proj-a", LeaderRef: "lead-1"},
			{ProjectRef: "proj-b", LeaderRef: "lead-2"},
		},
		ManagerRef: "mgr-1",
	})
	require.NoError(t, err)

	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionRejected, "lead-2")
	require.NoError(t, err)
	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionApproved, "mgr-1")
	require.NoError(t, err)

	got, err := s.GetShiftChange(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusRejected, got.Status())
	assert.Equal(t, req.Projects, got.Projects)
	assert.True(t, req.RequestedTimeIn.Equal(got.RequestedTimeIn))

	pending, err := adj.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	kind := generic.KindShiftChange
	history, err := s.Transitions(ctx, generic.AuditFilter{Kind: &kind})
	require.NoError(t, err)
	assert.Len(t, history, 2)
}

// =============================================================================
// LEAVES
// =============================================================================

func TestStore_LeavesBreakdown(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	svc := leave.NewService(s)

	vac, err := svc.Record(ctx, leave.NewRecord{
		EmployeeID: "emp-1", Date: workDay, LeaveType: "Vacation", IsWithPay: true, NumUnits: decimal.RequireFromString("1.5"),
	})
	require.NoError(t, err)
	_, err = svc.Record(ctx, leave.NewRecord{
		EmployeeID: "emp-1", Date: workDay.AddDate(0, 1, 0), LeaveType: "Sick", NumUnits: decimal.NewFromInt(1),
	})
	require.NoError(t, err)

	got, err := s.GetLeave(ctx, vac.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.5", got.NumUnits.String())
	assert.True(t, got.IsWithPay)

	_, err = svc.Cancel(ctx, vac.ID, "")
	require.NoError(t, err)

	emp := generic.EmployeeID("emp-1")
	b, rows, err := svc.Breakdown(ctx, leave.Filter{EmployeeID: &emp, Period: generic.MonthOf(workDay)})
	require.NoError(t, err)
	assert.Empty(t, b.Groups)
	require.Len(t, rows, 1)
	assert.True(t, rows[0].Cancelled)

	b, _, err = svc.Breakdown(ctx, leave.Filter{EmployeeID: &emp})
	require.NoError(t, err)
	assert.Equal(t, "1", b.Total.Units.String())
	assert.Equal(t, 1, b.WithoutPay.Count)
}

func TestStore_ResetEmptiesEveryTable(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateEntry(ctx, lateEntry("te-1")))
	require.NoError(t, s.CreateOvertime(ctx, overtime.Request{ID: "ot-1", TimeEntryID: "te-1", EmployeeID: "emp-1", RequestedMinutes: 30, FiledAt: workDay}))

	require.NoError(t, s.Reset(ctx))

	_, err := s.GetEntry(ctx, "te-1")
	assert.True(t, generic.IsNotFound(err))
	all, err := s.ListOvertime(ctx, overtime.Filter{})
	require.NoError(t, err)
	assert.Empty(t, all)

	// The open-request index no longer sees the deleted request.
	require.NoError(t, s.CreateOvertime(ctx, overtime.Request{ID: "ot-2", TimeEntryID: "te-1", EmployeeID: "emp-1", RequestedMinutes: 30, FiledAt: workDay}))
}

func intPtr(v int) *int { return &v }
