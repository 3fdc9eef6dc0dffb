package leave_test

import (
	"bytes"
	"context"
	"math/rand"
	"strconv"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/leave"
	"github.com/warp/attendance-engine/store/memory"
)

func date(d int) time.Time { return time.Date(2025, time.March, d, 0, 0, 0, 0, time.UTC) }

func rec(id string, d int, typ string, withPay bool, units string) leave.Record {
	return leave.Record{
		ID:         leave.RecordID(id),
		EmployeeID: "emp-1",
		Date:       date(d),
		LeaveType:  typ,
		IsWithPay:  withPay,
		NumUnits:   decimal.RequireFromString(units),
	}
}

func sample() []leave.Record {
	return []leave.Record{
		rec("l1", 3, "Vacation", true, "1"),
		rec("l2", 4, "Sick", true, "0.5"),
		rec("l3", 5, "Vacation", false, "2"),
		rec("l4", 6, "Vacation", true, "1"),
		rec("l5", 7, "Emergency", false, "1"),
	}
}

// groupsText renders groups for comparison independent of decimal internals.
func groupsText(b leave.Breakdown) []string {
	var out []string
	for _, g := range b.Groups {
		pay := "without"
		if g.IsWithPay {
			pay = "with"
		}
		out = append(out, g.LeaveType+"/"+pay+"/"+strconv.Itoa(g.Count)+"/"+g.Units.String())
	}
	return out
}

// =============================================================================
// AGGREGATE
// =============================================================================

func TestAggregate_Empty(t *testing.T) {
	b := leave.Aggregate(nil)

	assert.Empty(t, b.Groups)
	assert.Equal(t, 0, b.Total.Count)
	assert.True(t, b.Total.Units.IsZero())
	assert.True(t, b.WithPay.Units.IsZero())
	assert.True(t, b.WithoutPay.Units.IsZero())
}

func TestAggregate_GroupsAndTotals(t *testing.T) {
	b := leave.Aggregate(sample())

	assert.Equal(t, []string{
		"Emergency/without/1/1",
		"Sick/with/1/0.5",
		"Vacation/with/2/2",
		"Vacation/without/1/2",
	}, groupsText(b))
	assert.Equal(t, 3, b.WithPay.Count)
	assert.Equal(t, "2.5", b.WithPay.Units.String())
	assert.Equal(t, 2, b.WithoutPay.Count)
	assert.Equal(t, "3", b.WithoutPay.Units.String())
	assert.Equal(t, 5, b.Total.Count)
	assert.Equal(t, "5.5", b.Total.Units.String())
}

func TestAggregate_OrderIndependent(t *testing.T) {
	records := sample()
	want := leave.Aggregate(records)
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 20; i++ {
		shuffled := append([]leave.Record(nil), records...)
		rng.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })

		got := leave.Aggregate(shuffled)
		assert.Equal(t, groupsText(want), groupsText(got))
		assert.Equal(t, want.Total.Units.String(), got.Total.Units.String())
	}
}

func TestAggregate_CancellationNetsOut(t *testing.T) {
	records := sample()
	cancel := rec("c1", 7, "Emergency", false, "-1")
	cancel.CancelsID = "l5"

	b := leave.Aggregate(append(records, cancel))

	assert.NotContains(t, groupsText(b), "Emergency/without/1/1")
	assert.Len(t, b.Groups, 3)
	assert.Equal(t, 4, b.Total.Count)
	assert.Equal(t, "4.5", b.Total.Units.String())
}

// =============================================================================
// TABLE AND EXPORT
// =============================================================================

func TestTable_SortedWithCancelledFlag(t *testing.T) {
	records := sample()
	cancel := rec("c1", 7, "Emergency", false, "-1")
	cancel.CancelsID = "l5"
	records = append([]leave.Record{cancel}, records...)

	rows := leave.Table(records)

	require.Len(t, rows, 5)
	assert.Equal(t, leave.RecordID("l1"), rows[0].ID)
	assert.Equal(t, "With Pay", rows[0].Pay)
	assert.Equal(t, "Without Pay", rows[2].Pay)
	assert.True(t, rows[4].Cancelled)
	assert.False(t, rows[0].Cancelled)
}

func TestWriteXLSX(t *testing.T) {
	records := sample()
	var buf bytes.Buffer

	require.NoError(t, leave.WriteXLSX(&buf, leave.Table(records), leave.Aggregate(records)))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(leave.SheetLeaves)
	require.NoError(t, err)
	require.Len(t, rows, 6)
	assert.Equal(t, "Date", rows[0][0])
	assert.Equal(t, "2025-03-03", rows[1][0])
	assert.Equal(t, "Vacation", rows[1][1])

	summary, err := f.GetRows(leave.SheetBreakdown)
	require.NoError(t, err)
	require.Len(t, summary, 1+4+3)
	assert.Equal(t, "Total", summary[len(summary)-1][0])
	assert.Equal(t, "5", summary[len(summary)-1][2])
}

// =============================================================================
// SERVICE
// =============================================================================

func TestService_RecordCancelBreakdown(t *testing.T) {
	ctx := context.Background()
	svc := leave.NewService(memory.New())

	vac, err := svc.Record(ctx, leave.NewRecord{
		EmployeeID: "emp-1", Date: date(3), LeaveType: "Vacation", IsWithPay: true, NumUnits: decimal.NewFromInt(1),
	})
	require.NoError(t, err)
	_, err = svc.Record(ctx, leave.NewRecord{
		EmployeeID: "emp-1", Date: date(4), LeaveType: "Sick", IsWithPay: true, NumUnits: decimal.RequireFromString("0.5"),
	})
	require.NoError(t, err)

	c, err := svc.Cancel(ctx, vac.ID, "plans changed")
	require.NoError(t, err)
	assert.Equal(t, vac.ID, c.CancelsID)
	assert.Equal(t, "-1", c.NumUnits.String())

	_, err = svc.Cancel(ctx, vac.ID, "again")
	assert.ErrorIs(t, err, generic.ErrAlreadyFinalized)
	_, err = svc.Cancel(ctx, c.ID, "undo")
	assert.ErrorIs(t, err, generic.ErrValidation)

	emp := generic.EmployeeID("emp-1")
	b, rows, err := svc.Breakdown(ctx, leave.Filter{EmployeeID: &emp})
	require.NoError(t, err)
	assert.Equal(t, []string{"Sick/with/1/0.5"}, groupsText(b))
	assert.Len(t, rows, 2)
}

func TestService_RecordValidates(t *testing.T) {
	_, err := leave.NewService(memory.New()).Record(context.Background(), leave.NewRecord{NumUnits: decimal.NewFromInt(-1)})

	var ve *generic.ValidationError
	require.ErrorAs(t, err, &ve)
	for _, field := range []string{"employee_id", "date", "leave_type", "num_of_leaves"} {
		assert.True(t, ve.Has(field), field)
	}
}
