package overtime_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
	"github.com/warp/attendance-engine/overtime"
)

func decided(leader, manager generic.Decision, approved *int) *overtime.Request {
	return &overtime.Request{
		RequestedMinutes: 120,
		ApprovedMinutes:  approved,
		Approval: generic.Approval{
			Leader:  generic.DecisionRecord{Decision: leader},
			Manager: generic.DecisionRecord{Decision: manager},
		},
	}
}

func TestCellFor(t *testing.T) {
	u, a, r := generic.DecisionUndecided, generic.DecisionApproved, generic.DecisionRejected
	withCandidate := attendance.ClassifiedMinutes{OvertimeCandidate: 165}

	tests := []struct {
		name string
		m    attendance.ClassifiedMinutes
		req  *overtime.Request
		want overtime.Cell
	}{
		{"no overtime", attendance.ClassifiedMinutes{}, nil, overtime.Cell{State: overtime.CellNone}},
		{"claimable", withCandidate, nil, overtime.Cell{State: overtime.CellCandidate, Minutes: 165, CanFile: true}},
		{"pending", withCandidate, decided(a, u, nil), overtime.Cell{State: overtime.CellPending, Minutes: 120}},
		{"approved", withCandidate, decided(a, a, intPtr(90)), overtime.Cell{State: overtime.CellApproved, Minutes: 90}},
		{"rejected", withCandidate, decided(a, r, nil), overtime.Cell{State: overtime.CellRejected, Minutes: 120, CanFile: true}},
		{"leader veto", withCandidate, decided(r, a, nil), overtime.Cell{State: overtime.CellRejected, Minutes: 120, CanFile: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, overtime.CellFor(tt.m, tt.req))
		})
	}
}
