package shiftchange_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/shiftchange"
	"github.com/warp/attendance-engine/store/memory"
)

var day = time.Date(2025, time.March, 12, 0, 0, 0, 0, time.UTC)

func validFiling() shiftchange.Filing {
	return shiftchange.Filing{
		EmployeeID:       "emp-1",
		RequestedTimeIn:  day.Add(10 * time.Hour),
		RequestedTimeOut: day.Add(19 * time.Hour),
		Projects: []shiftchange.ProjectAssignment{
			{ProjectRef: "proj-a", LeaderRef: "lead-1"},
			{ProjectRef: "proj-b", LeaderRef: "lead-2"},
			{ProjectRef: "proj-c", LeaderRef: "lead-1"},
		},
		ManagerRef: "mgr-1",
		Remarks:    "school run",
	}
}

func newAdjudicator() *shiftchange.Adjudicator {
	return shiftchange.NewAdjudicator(memory.New())
}

// =============================================================================
// FILING
// =============================================================================

func TestFileShiftChange_Valid(t *testing.T) {
	req, err := newAdjudicator().FileShiftChange(context.Background(), validFiling())
	require.NoError(t, err)

	assert.Equal(t, generic.StatusPending, req.Status())
	assert.Equal(t, []string{"lead-1", "lead-2"}, req.Approvers().Leaders)
	assert.Equal(t, "mgr-1", req.Approvers().Manager)
}

func TestFileShiftChange_ValidationDetails(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*shiftchange.Filing)
		field  string
	}{
		{"no projects", func(f *shiftchange.Filing) { f.Projects = nil }, "projects"},
		{"missing project ref", func(f *shiftchange.Filing) { f.Projects[1].ProjectRef = "" }, "projects[1].project"},
		{"missing leader", func(f *shiftchange.Filing) { f.Projects[0].LeaderRef = " " }, "projects[0].leader"},
		{"missing employee", func(f *shiftchange.Filing) { f.EmployeeID = "" }, "employee_id"},
		{"out before in", func(f *shiftchange.Filing) { f.RequestedTimeOut = f.RequestedTimeIn }, "requested_time_out"},
		{"missing time in", func(f *shiftchange.Filing) { f.RequestedTimeIn = time.Time{} }, "requested_time_in"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFiling()
			tt.mutate(&f)

			_, err := newAdjudicator().FileShiftChange(context.Background(), f)

			require.ErrorIs(t, err, generic.ErrValidation)
			var ve *generic.ValidationError
			require.ErrorAs(t, err, &ve)
			assert.True(t, ve.Has(tt.field), "fields: %v", ve.ToMap())
		})
	}
}

// =============================================================================
// DECISIONS
// =============================================================================

func TestShiftChange_Lifecycle(t *testing.T) {
	ctx := context.Background()
	adj := newAdjudicator()
	req, err := adj.FileShiftChange(ctx, validFiling())
	require.NoError(t, err)

	// GIVEN: a project leader approves
	req, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionApproved, "lead-2")
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPending, req.Status())

	// WHEN: the manager approves
	req, tr, err := adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionApproved, "mgr-1")
	require.NoError(t, err)

	// THEN: the request is approved and closed
	assert.Equal(t, generic.StatusApproved, req.Status())
	assert.Equal(t, generic.KindShiftChange, tr.Kind)
	assert.True(t, tr.Finalized())

	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionRejected, "mgr-1")
	assert.ErrorIs(t, err, generic.ErrAlreadyFinalized)

	pending, err := adj.ListPending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestShiftChange_LeaderVeto(t *testing.T) {
	ctx := context.Background()
	adj := newAdjudicator()
	req, err := adj.FileShiftChange(ctx, validFiling())
	require.NoError(t, err)

	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionApproved, "mgr-1")
	require.NoError(t, err)
	req, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionRejected, "lead-1")
	require.NoError(t, err)

	assert.Equal(t, generic.StatusRejected, req.Status())
}

func TestShiftChange_OnlyNamedApprovers(t *testing.T) {
	ctx := context.Background()
	adj := newAdjudicator()
	req, err := adj.FileShiftChange(ctx, validFiling())
	require.NoError(t, err)

	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionApproved, "lead-9")
	assert.ErrorIs(t, err, generic.ErrNotApprover)

	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionApproved, "lead-1")
	assert.ErrorIs(t, err, generic.ErrNotApprover)

	mine, err := adj.ListByEmployee(ctx, "emp-1")
	require.NoError(t, err)
	require.Len(t, mine, 1)
	assert.Equal(t, generic.StatusPending, mine[0].Status())
}

func TestShiftChange_DecisionsAreIndependent(t *testing.T) {
	ctx := context.Background()
	adj := newAdjudicator()

	// GIVEN: the employee and the filer are both named as project leaders,
	// and lead-1 is named for both roles
	f := validFiling()
	f.Projects[1].LeaderRef = "emp-1"
	f.Projects[2].LeaderRef = "lead-3"
	f.FiledBy = "lead-3"
	f.ManagerRef = "lead-1"
	req, err := adj.FileShiftChange(ctx, f)
	require.NoError(t, err)
	assert.Equal(t, "lead-3", req.FiledBy)

	// WHEN/THEN: neither the filer nor the employee may decide
	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionApproved, "lead-3")
	assert.ErrorIs(t, err, generic.ErrNotApprover)
	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionApproved, "emp-1")
	assert.ErrorIs(t, err, generic.ErrNotApprover)

	// WHEN: lead-1 approves as leader and then tries the manager role
	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleLeader, generic.DecisionApproved, "lead-1")
	require.NoError(t, err)
	_, _, err = adj.RecordDecision(ctx, req.ID, generic.RoleManager, generic.DecisionApproved, "lead-1")

	// THEN: the second sign-off is refused and the request stays pending
	assert.ErrorIs(t, err, generic.ErrNotApprover)
	stored, err := adj.Get(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.StatusPending, stored.Status())
}
