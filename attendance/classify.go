package attendance

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/warp/attendance-engine/generic"
)

// rolloverWindow bounds how far past its reference a next-day clock-out may
// land before it is treated as bad data instead of an overnight shift.
const rolloverWindow = 16 * time.Hour

// =============================================================================
// CLASSIFY
// =============================================================================

// Classify computes the minute buckets of a time entry. It is a pure
// function of the clock events and the schedule.
//
//	late              = in  - start          (0 without clock-in)
//	worked            = out - in             (0 unless both present)
//	undertime         = end - out            (0 without clock-out)
//	overtimeCandidate = out - threshold      (0 without clock-out)
//
// Every bucket is clamped at zero and floored to whole minutes.
func Classify(e TimeEntry) (ClassifiedMinutes, error) {
	if e.TimeIn == nil && e.TimeOut == nil {
		return ClassifiedMinutes{}, &generic.IncompleteDataError{TimeEntryID: e.ID}
	}

	start, end, threshold := e.Schedule.anchor(e)
	var out ClassifiedMinutes

	if e.TimeIn != nil {
		out.Late = generic.WholeMinutes(e.TimeIn.Timestamp.Sub(start))
	}

	if e.TimeOut != nil {
		ref := start
		if e.TimeIn != nil {
			ref = e.TimeIn.Timestamp
		}
		clockOut := rollover(e.TimeOut.Timestamp, ref)

		if e.TimeIn != nil {
			out.Worked = generic.WholeMinutes(clockOut.Sub(e.TimeIn.Timestamp))
		}
		out.Undertime = generic.WholeMinutes(end.Sub(clockOut))
		out.OvertimeCandidate = generic.WholeMinutes(clockOut.Sub(threshold))
	}

	return out, nil
}

// rollover moves a clock-out that reads earlier than ref to the next day
// when that lands it within the rollover window.
func rollover(clockOut, ref time.Time) time.Time {
	if !clockOut.Before(ref) {
		return clockOut
	}
	next := clockOut.Add(24 * time.Hour)
	if next.Sub(ref) < rolloverWindow {
		return next
	}
	return clockOut
}

// anchor returns the scheduled start, end and overtime threshold instants
// of the entry's work date.
func (s ShiftSchedule) anchor(e TimeEntry) (start, end, threshold time.Time) {
	loc := s.Location
	if loc == nil {
		loc = entryLocation(e)
	}

	var y int
	var m time.Month
	var d int
	if !e.Date.IsZero() {
		y, m, d = e.Date.Date()
	} else {
		day, _ := e.WorkDate()
		y, m, d = day.In(loc).Date()
	}

	start = s.Start.At(y, m, d, loc)
	end = s.End.At(y, m, d, loc)
	if s.Overnight() {
		end = end.AddDate(0, 0, 1)
	}

	th := s.Threshold()
	threshold = th.At(y, m, d, loc)
	if th <= s.Start {
		threshold = threshold.AddDate(0, 0, 1)
	}
	return start, end, threshold
}

func entryLocation(e TimeEntry) *time.Location {
	switch {
	case e.TimeIn != nil:
		return e.TimeIn.Timestamp.Location()
	case e.TimeOut != nil:
		return e.TimeOut.Timestamp.Location()
	case !e.Date.IsZero():
		return e.Date.Location()
	}
	return time.UTC
}

// =============================================================================
// BATCH CLASSIFICATION
// =============================================================================

// Result is the classification of one entry in a batch. Err is set per row
// (typically ErrIncompleteData, rendered as "N/A").
type Result struct {
	Entry   TimeEntry
	Minutes ClassifiedMinutes
	Err     error
}

// ClassifyAll classifies entries concurrently with at most limit workers
// (limit <= 0 means unbounded). Results keep the input order. Only context
// cancellation fails the batch.
func ClassifyAll(ctx context.Context, entries []TimeEntry, limit int) ([]Result, error) {
	results := make([]Result, len(entries))
	g, ctx := errgroup.WithContext(ctx)
	if limit > 0 {
		g.SetLimit(limit)
	}

	for i := range entries {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			m, err := Classify(entries[i])
			results[i] = Result{Entry: entries[i], Minutes: m, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Current drops entries superseded by another entry in the same slice.
func Current(entries []TimeEntry) []TimeEntry {
	superseded := make(map[generic.TimeEntryID]bool)
	for _, e := range entries {
		if e.SupersedesID != "" {
			superseded[e.SupersedesID] = true
		}
	}
	out := make([]TimeEntry, 0, len(entries))
	for _, e := range entries {
		if !superseded[e.ID] {
			out = append(out, e)
		}
	}
	return out
}
