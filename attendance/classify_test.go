package attendance_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var workDay = time.Date(2025, time.March, 10, 0, 0, 0, 0, time.UTC)

func at(day time.Time, hhmm string) time.Time {
	return generic.MustTimeOfDay(hhmm).On(day, nil)
}

func clock(ts time.Time) *attendance.ClockEvent {
	return &attendance.ClockEvent{Timestamp: ts}
}

func dayShift() attendance.ShiftSchedule {
	return attendance.ShiftSchedule{
		Start: generic.MustTimeOfDay("08:00"),
		End:   generic.MustTimeOfDay("17:00"),
	}
}

func entry(in, out *attendance.ClockEvent, schedule attendance.ShiftSchedule) attendance.TimeEntry {
	return attendance.TimeEntry{ID: "te-1", EmployeeID: "emp-1", Date: workDay, TimeIn: in, TimeOut: out, Schedule: schedule}
}

// =============================================================================
// SCENARIOS
// =============================================================================

func TestClassify_LateWithOvertime(t *testing.T) {
	// GIVEN: an 08:00-17:00 shift with the threshold at 17:00
	threshold := generic.MustTimeOfDay("17:00")
	s := dayShift()
	s.OvertimeThreshold = &threshold

	// WHEN: the employee clocks in at 08:15 and out at 19:45
	m, err := attendance.Classify(entry(clock(at(workDay, "08:15")), clock(at(workDay, "19:45")), s))

	// THEN: 15 late, no undertime, 165 overtime candidate minutes
	require.NoError(t, err)
	assert.Equal(t, 15, m.Late)
	assert.Equal(t, 0, m.Undertime)
	assert.Equal(t, 165, m.OvertimeCandidate)
	assert.Equal(t, 690, m.Worked)
}

func TestClassify_EarlyLeave(t *testing.T) {
	m, err := attendance.Classify(entry(clock(at(workDay, "07:50")), clock(at(workDay, "16:20")), dayShift()))
	require.NoError(t, err)

	assert.Equal(t, 0, m.Late, "early arrival is never negative lateness")
	assert.Equal(t, 40, m.Undertime)
	assert.Equal(t, 0, m.OvertimeCandidate)
	assert.Equal(t, 510, m.Worked)
}

func TestClassify_ThresholdAfterEnd(t *testing.T) {
	// The source system only counted overtime after 19:30.
	threshold := generic.MustTimeOfDay("19:30")
	s := dayShift()
	s.OvertimeThreshold = &threshold

	m, err := attendance.Classify(entry(clock(at(workDay, "08:00")), clock(at(workDay, "19:45")), s))
	require.NoError(t, err)
	assert.Equal(t, 15, m.OvertimeCandidate)

	m, err = attendance.Classify(entry(clock(at(workDay, "08:00")), clock(at(workDay, "19:00")), s))
	require.NoError(t, err)
	assert.Equal(t, 0, m.OvertimeCandidate)
}

func TestClassify_FloorsPartialMinutes(t *testing.T) {
	in := at(workDay, "08:00").Add(59 * time.Second)
	out := at(workDay, "17:01").Add(30 * time.Second)

	m, err := attendance.Classify(entry(clock(in), clock(out), dayShift()))
	require.NoError(t, err)

	assert.Equal(t, 0, m.Late)
	assert.Equal(t, 1, m.OvertimeCandidate)
	assert.Equal(t, 540, m.Worked) // 9h00m31s
}

// =============================================================================
// MISSING DATA
// =============================================================================

func TestClassify_NoClockEventsIsIncomplete(t *testing.T) {
	_, err := attendance.Classify(entry(nil, nil, dayShift()))

	require.ErrorIs(t, err, generic.ErrIncompleteData)
	var ie *generic.IncompleteDataError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, generic.TimeEntryID("te-1"), ie.TimeEntryID)
}

func TestClassify_OnlyClockIn(t *testing.T) {
	m, err := attendance.Classify(entry(clock(at(workDay, "08:30")), nil, dayShift()))
	require.NoError(t, err)

	assert.Equal(t, attendance.ClassifiedMinutes{Late: 30}, m)
}

func TestClassify_OnlyClockOut(t *testing.T) {
	m, err := attendance.Classify(entry(nil, clock(at(workDay, "18:00")), dayShift()))
	require.NoError(t, err)

	assert.Equal(t, attendance.ClassifiedMinutes{OvertimeCandidate: 60}, m)
}

func TestClassify_WorkDateFallsBackToClockIn(t *testing.T) {
	e := entry(clock(at(workDay, "09:00")), clock(at(workDay, "17:00")), dayShift())
	e.Date = time.Time{}

	m, err := attendance.Classify(e)
	require.NoError(t, err)
	assert.Equal(t, 60, m.Late)
}

// =============================================================================
// OVERNIGHT AND ROLLOVER
// =============================================================================

func TestClassify_OvernightShift(t *testing.T) {
	// GIVEN: a 22:00-06:00 shift
	s := attendance.ShiftSchedule{Start: generic.MustTimeOfDay("22:00"), End: generic.MustTimeOfDay("06:00")}
	nextDay := workDay.AddDate(0, 0, 1)

	// WHEN: clock-in 22:10, clock-out 06:45 the next morning
	m, err := attendance.Classify(entry(clock(at(workDay, "22:10")), clock(at(nextDay, "06:45")), s))

	// THEN: end and threshold are anchored on the next day
	require.NoError(t, err)
	assert.Equal(t, 10, m.Late)
	assert.Equal(t, 515, m.Worked)
	assert.Equal(t, 0, m.Undertime)
	assert.Equal(t, 45, m.OvertimeCandidate)
}

func TestClassify_MidnightRollover(t *testing.T) {
	// GIVEN: a clock-out stamped with the work date although it happened
	// after midnight
	m, err := attendance.Classify(entry(clock(at(workDay, "09:00")), clock(at(workDay, "00:30")), dayShift()))

	// THEN: it is read as 00:30 the following day
	require.NoError(t, err)
	assert.Equal(t, 930, m.Worked)
	assert.Equal(t, 450, m.OvertimeCandidate)
}

func TestClassify_NoRolloverBeyondWindow(t *testing.T) {
	// 07:00 is one hour before 08:00; +24h would be 23h later, outside the window.
	m, err := attendance.Classify(entry(clock(at(workDay, "08:00")), clock(at(workDay, "07:00")), dayShift()))
	require.NoError(t, err)

	assert.Equal(t, 0, m.Worked)
	assert.Equal(t, 600, m.Undertime)
	assert.Equal(t, 0, m.OvertimeCandidate)
}

func TestClassify_ShiftLocation(t *testing.T) {
	manila := time.FixedZone("PHT", 8*3600)
	s := dayShift()
	s.Location = manila

	// 00:15 UTC is 08:15 in Manila
	e := entry(clock(time.Date(2025, time.March, 10, 0, 15, 0, 0, time.UTC)),
		clock(time.Date(2025, time.March, 10, 9, 0, 0, 0, time.UTC)), s)

	m, err := attendance.Classify(e)
	require.NoError(t, err)
	assert.Equal(t, 15, m.Late)
	assert.Equal(t, 0, m.Undertime)
	assert.Equal(t, 0, m.OvertimeCandidate)
}

// =============================================================================
// PROPERTIES
// =============================================================================

func TestClassify_WorkedIsExactDifference(t *testing.T) {
	start := at(workDay, "05:00")
	for offset := 0; offset < 16*60; offset += 37 {
		for length := 0; length <= 16*60-offset; length += 53 {
			in := start.Add(time.Duration(offset) * time.Minute)
			out := in.Add(time.Duration(length) * time.Minute)

			m, err := attendance.Classify(entry(clock(in), clock(out), dayShift()))
			require.NoError(t, err)
			require.Equal(t, length, m.Worked, "in=%s out=%s", in, out)
		}
	}
}

func TestClassify_LatePositiveIffAfterStart(t *testing.T) {
	start := at(workDay, "08:00")
	for delta := -90; delta <= 90; delta += 15 {
		in := start.Add(time.Duration(delta) * time.Minute)
		m, err := attendance.Classify(entry(clock(in), nil, dayShift()))
		require.NoError(t, err)
		assert.Equal(t, delta > 0, m.Late > 0, "delta=%d", delta)
	}
}

// =============================================================================
// BATCH
// =============================================================================

func TestClassifyAll_KeepsOrderAndRowErrors(t *testing.T) {
	entries := []attendance.TimeEntry{
		entry(clock(at(workDay, "08:15")), clock(at(workDay, "17:00")), dayShift()),
		entry(nil, nil, dayShift()),
		entry(clock(at(workDay, "08:00")), clock(at(workDay, "18:00")), dayShift()),
	}

	results, err := attendance.ClassifyAll(context.Background(), entries, 2)
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.Equal(t, 15, results[0].Minutes.Late)
	assert.ErrorIs(t, results[1].Err, generic.ErrIncompleteData)
	assert.Equal(t, 60, results[2].Minutes.OvertimeCandidate)
}

func TestClassifyAll_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := attendance.ClassifyAll(ctx, []attendance.TimeEntry{entry(nil, nil, dayShift())}, 1)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestCurrent_DropsSuperseded(t *testing.T) {
	orig := attendance.TimeEntry{ID: "te-1"}
	fix := attendance.TimeEntry{ID: "te-2", SupersedesID: "te-1"}
	other := attendance.TimeEntry{ID: "te-3"}

	got := attendance.Current([]attendance.TimeEntry{orig, fix, other})

	require.Len(t, got, 2)
	assert.Equal(t, generic.TimeEntryID("te-2"), got[0].ID)
	assert.Equal(t, generic.TimeEntryID("te-3"), got[1].ID)
}
