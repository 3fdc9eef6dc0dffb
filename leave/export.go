package leave

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/warp/attendance-engine/generic"
)

const (
	SheetLeaves    = "Leaves"
	SheetBreakdown = "Breakdown"
)

var (
	leaveHeader     = []any{"Date", "Leave Type", "Pay", "Reason", "No. of Leaves", "Status"}
	breakdownHeader = []any{"Leave Type", "Pay", "Count", "Units"}
)

// WriteXLSX writes the leave table and its breakdown as a two-sheet workbook.
func WriteXLSX(w io.Writer, rows []Row, b Breakdown) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetLeaves); err != nil {
		return fmt.Errorf("rename sheet: %w", err)
	}
	if _, err := f.NewSheet(SheetBreakdown); err != nil {
		return fmt.Errorf("create breakdown sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("create header style: %w", err)
	}

	if err := writeRow(f, SheetLeaves, 1, leaveHeader); err != nil {
		return err
	}
	for i, r := range rows {
		status := "Filed"
		if r.Cancelled {
			status = "Cancelled"
		}
		line := []any{r.Date.Format(generic.DateLayout), r.LeaveType, r.Pay, r.Reason, r.Units.InexactFloat64(), status}
		if err := writeRow(f, SheetLeaves, i+2, line); err != nil {
			return err
		}
	}

	if err := writeRow(f, SheetBreakdown, 1, breakdownHeader); err != nil {
		return err
	}
	row := 2
	for _, g := range b.Groups {
		line := []any{g.LeaveType, payLabel(g.IsWithPay), g.Count, g.Units.InexactFloat64()}
		if err := writeRow(f, SheetBreakdown, row, line); err != nil {
			return err
		}
		row++
	}
	totals := []struct {
		label string
		t     Totals
	}{
		{"Total With Pay", b.WithPay},
		{"Total Without Pay", b.WithoutPay},
		{"Total", b.Total},
	}
	for _, t := range totals {
		if err := writeRow(f, SheetBreakdown, row, []any{t.label, "", t.t.Count, t.t.Units.InexactFloat64()}); err != nil {
			return err
		}
		row++
	}

	for _, sheet := range []string{SheetLeaves, SheetBreakdown} {
		if err := f.SetRowStyle(sheet, 1, 1, headerStyle); err != nil {
			return fmt.Errorf("style header of %s: %w", sheet, err)
		}
	}
	f.SetActiveSheet(0)

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("write %s row %d: %w", sheet, row, err)
	}
	return nil
}
