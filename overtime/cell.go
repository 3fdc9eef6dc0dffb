package overtime

import (
	"github.com/warp/attendance-engine/attendance"
	"github.com/warp/attendance-engine/generic"
)

// CellState is the overtime column of a daily time record.
type CellState string

const (
	CellNone      CellState = "none"      // nothing to claim
	CellCandidate CellState = "candidate" // claimable, not filed
	CellPending   CellState = "pending"
	CellApproved  CellState = "approved"
	CellRejected  CellState = "rejected"
)

// Cell is what the overtime column shows for one entry.
type Cell struct {
	State   CellState `json:"state"`
	Minutes int       `json:"minutes"`
	CanFile bool      `json:"can_file"`
}

// CellFor renders the overtime column from the classification and the
// latest request on the entry (nil when none was filed).
//
// Approved shows approved minutes; pending and rejected show the requested
// minutes. A rejected request leaves the entry fileable again.
func CellFor(classified attendance.ClassifiedMinutes, req *Request) Cell {
	if req == nil {
		if classified.OvertimeCandidate == 0 {
			return Cell{State: CellNone}
		}
		return Cell{State: CellCandidate, Minutes: classified.OvertimeCandidate, CanFile: true}
	}

	switch req.Status() {
	case generic.StatusApproved:
		m := req.RequestedMinutes
		if req.ApprovedMinutes != nil {
			m = *req.ApprovedMinutes
		}
		return Cell{State: CellApproved, Minutes: m}
	case generic.StatusRejected:
		return Cell{State: CellRejected, Minutes: req.RequestedMinutes, CanFile: classified.OvertimeCandidate > 0}
	default:
		return Cell{State: CellPending, Minutes: req.RequestedMinutes}
	}
}
