package attendance_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/store/memory"
)

func newService() *attendance.Service {
	return attendance.NewService(memory.New())
}

func TestService_ClockInThenOut(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	// GIVEN: an entry created at the start of the day
	e, err := svc.CreateEntry(ctx, attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()})
	require.NoError(t, err)

	// WHEN: both clock events arrive
	_, err = svc.RecordClock(ctx, e.ID, attendance.DirectionIn, attendance.ClockEvent{Timestamp: at(workDay, "08:15")})
	require.NoError(t, err)
	e, err = svc.RecordClock(ctx, e.ID, attendance.DirectionOut, attendance.ClockEvent{Timestamp: at(workDay, "19:45"), Remarks: "release"})
	require.NoError(t, err)

	// THEN: the stored entry classifies like the one passed in
	stored, err := svc.Get(ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Version, stored.Version)
	assert.NotEmpty(t, stored.TimeOut.ID)
	assert.Equal(t, "release", stored.TimeOut.Remarks)

	m, err := attendance.Classify(stored)
	require.NoError(t, err)
	assert.Equal(t, 165, m.OvertimeCandidate)
}

func TestService_SecondClockInRejected(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	e, err := svc.CreateEntry(ctx, attendance.NewEntry{
		EmployeeID: "emp-1",
		TimeIn:     clock(at(workDay, "08:00")),
		Schedule:   dayShift(),
	})
	require.NoError(t, err)

	_, err = svc.RecordClock(ctx, e.ID, attendance.DirectionIn, attendance.ClockEvent{Timestamp: at(workDay, "08:05")})
	assert.ErrorIs(t, err, generic.ErrClockEventExists)
}

func TestService_CreateValidates(t *testing.T) {
	_, err := newService().CreateEntry(context.Background(), attendance.NewEntry{})

	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.True(t, ve.Has("employee_id"))
	assert.True(t, ve.Has("date"))
	assert.True(t, ve.Has("schedule.end"))
}

func TestService_CorrectionSupersedes(t *testing.T) {
	ctx := context.Background()
	svc := newService()

	orig, err := svc.CreateEntry(ctx, attendance.NewEntry{
		EmployeeID: "emp-1",
		Date:       workDay,
		TimeIn:     clock(at(workDay, "10:00")),
		Schedule:   dayShift(),
	})
	require.NoError(t, err)

	fix, err := svc.Correct(ctx, orig.ID, attendance.NewEntry{
		EmployeeID: "emp-1",
		Date:       workDay,
		TimeIn:     clock(at(workDay, "08:00")),
		TimeOut:    clock(at(workDay, "17:00")),
		Schedule:   dayShift(),
	})
	require.NoError(t, err)
	assert.Equal(t, orig.ID, fix.SupersedesID)

	period, err := generic.ParsePeriod("2025-03-01", "2025-03-31")
	require.NoError(t, err)
	current, err := svc.List(ctx, "emp-1", period)
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, fix.ID, current[0].ID)

	// the original is kept for audit
	_, err = svc.Get(ctx, orig.ID)
	assert.NoError(t, err)

	_, err = svc.Correct(ctx, orig.ID, attendance.NewEntry{EmployeeID: "emp-2", Date: workDay, Schedule: dayShift()})
	assert.ErrorIs(t, err, generic.ErrValidation)
}

func TestService_OneEntryPerEmployeeDay(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	day := attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()}

	_, err := svc.CreateEntry(ctx, day)
	require.NoError(t, err)

	// WHEN: a second entry is created for the same day
	_, err = svc.CreateEntry(ctx, day)
	// THEN: it is refused
	assert.ErrorIs(t, err, generic.ErrDuplicateEntry)

	// AND: another employee or another day is fine
	_, err = svc.CreateEntry(ctx, attendance.NewEntry{EmployeeID: "emp-2", Date: workDay, Schedule: dayShift()})
	assert.NoError(t, err)
	_, err = svc.CreateEntry(ctx, attendance.NewEntry{EmployeeID: "emp-1", Date: workDay.AddDate(0, 0, 1), Schedule: dayShift()})
	assert.NoError(t, err)
}

func TestService_ConcurrentCreatesAdmitOne(t *testing.T) {
	svc := newService()
	var wg sync.WaitGroup
	var created atomic.Int32

	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateEntry(context.Background(), attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()})
			if err == nil {
				created.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), created.Load())
}

func TestService_OnlyTheLatestEntryIsCorrected(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	day := attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()}

	orig, err := svc.CreateEntry(ctx, day)
	require.NoError(t, err)
	first, err := svc.Correct(ctx, orig.ID, day)
	require.NoError(t, err)

	// WHEN: the original is corrected again
	_, err = svc.Correct(ctx, orig.ID, day)
	// THEN: the chain does not fork
	assert.ErrorIs(t, err, generic.ErrEntrySuperseded)

	// AND: the latest entry can still be corrected
	second, err := svc.Correct(ctx, first.ID, day)
	require.NoError(t, err)

	chain, err := attendance.Lineage(ctx, svc.Repo, second.ID)
	require.NoError(t, err)
	require.Len(t, chain, 3)
	assert.Equal(t, []generic.TimeEntryID{second.ID, first.ID, orig.ID}, []generic.TimeEntryID{chain[0].ID, chain[1].ID, chain[2].ID})

	current, err := svc.List(ctx, "emp-1", generic.Period{Start: workDay, End: workDay})
	require.NoError(t, err)
	require.Len(t, current, 1)
	assert.Equal(t, second.ID, current[0].ID)
}

func TestService_CorrectionCannotMoveOntoTakenDay(t *testing.T) {
	ctx := context.Background()
	svc := newService()
	next := workDay.AddDate(0, 0, 1)

	orig, err := svc.CreateEntry(ctx, attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()})
	require.NoError(t, err)
	_, err = svc.CreateEntry(ctx, attendance.NewEntry{EmployeeID: "emp-1", Date: next, Schedule: dayShift()})
	require.NoError(t, err)

	_, err = svc.Correct(ctx, orig.ID, attendance.NewEntry{EmployeeID: "emp-1", Date: next, Schedule: dayShift()})
	assert.ErrorIs(t, err, generic.ErrDuplicateEntry)

	// the original stays correctable
	_, err = svc.Correct(ctx, orig.ID, attendance.NewEntry{EmployeeID: "emp-1", Date: workDay, Schedule: dayShift()})
	assert.NoError(t, err)
}

func TestService_UnknownEntry(t *testing.T) {
	_, err := newService().RecordClock(context.Background(), "missing", attendance.DirectionIn,
		attendance.ClockEvent{Timestamp: at(workDay, "08:00")})
	assert.True(t, generic.IsNotFound(err))
}

func TestRecordClockEvent_IsPure(t *testing.T) {
	e := entry(nil, nil, dayShift())
	next, err := attendance.RecordClockEvent(e, attendance.DirectionIn, attendance.ClockEvent{Timestamp: at(workDay, "08:00")})
	require.NoError(t, err)

	assert.Nil(t, e.TimeIn)
	assert.NotNil(t, next.TimeIn)

	_, err = attendance.RecordClockEvent(e, attendance.Direction("sideways"), attendance.ClockEvent{Timestamp: at(workDay, "08:00")})
	assert.ErrorIs(t, err, generic.ErrValidation)
}
