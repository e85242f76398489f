// Package report shapes revenue figures for display and renders them as
// spreadsheet workbooks for the manager.
package report

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"
)

const sheetName = "Revenue"

// Entry is one closed order counted in a revenue report.
type Entry struct {
	OrderID  string
	CourtID  string
	ClosedAt time.Time
	Total    int64
}

// Revenue is the result of a revenue query over a date range.
type Revenue struct {
	Start   time.Time
	End     time.Time
	Total   int64
	Entries []Entry
}

// FormatVND renders an amount with thousands grouped by spaces, e.g.
// 1500000 as "1 500 000".
func FormatVND(amount int64) string {
	digits := strconv.FormatInt(amount, 10)
	sign := ""
	if strings.HasPrefix(digits, "-") {
		sign, digits = "-", digits[1:]
	}

	var b strings.Builder
	b.WriteString(sign)
	lead := len(digits) % 3
	if lead == 0 {
		lead = 3
	}
	b.WriteString(digits[:lead])
	for i := lead; i < len(digits); i += 3 {
		b.WriteByte(' ')
		b.WriteString(digits[i : i+3])
	}
	return b.String()
}

// WriteWorkbook renders the report as an .xlsx workbook into w. Dates are
// printed in loc.
func WriteWorkbook(w io.Writer, rev Revenue, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(sheetName)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("drop default sheet: %w", err)
	}

	title := fmt.Sprintf("Period: %s - %s", rev.Start.In(loc).Format("02.01.2006"), rev.End.In(loc).Format("02.01.2006"))
	if err := f.SetCellValue(sheetName, "A1", title); err != nil {
		return err
	}
	if err := f.MergeCell(sheetName, "A1", "D1"); err != nil {
		return err
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	headers := []string{"Closed", "Order", "Court", "Total (VND)"}
	for i, header := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 2)
		if err := f.SetCellValue(sheetName, cell, header); err != nil {
			return err
		}
	}
	if err := f.SetCellStyle(sheetName, "A2", "D2", headerStyle); err != nil {
		return err
	}

	row := 3
	for _, entry := range rev.Entries {
		values := []any{
			entry.ClosedAt.In(loc).Format("02.01.2006 15:04"),
			entry.OrderID,
			entry.CourtID,
			entry.Total,
		}
		for col, value := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row)
			if err := f.SetCellValue(sheetName, cell, value); err != nil {
				return err
			}
		}
		row++
	}

	totalStyle, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("total style: %w", err)
	}
	totalLabel, _ := excelize.CoordinatesToCellName(3, row)
	totalCell, _ := excelize.CoordinatesToCellName(4, row)
	if err := f.SetCellValue(sheetName, totalLabel, "Total"); err != nil {
		return err
	}
	if err := f.SetCellValue(sheetName, totalCell, rev.Total); err != nil {
		return err
	}
	if err := f.SetCellStyle(sheetName, totalLabel, totalCell, totalStyle); err != nil {
		return err
	}

	_ = f.SetColWidth(sheetName, "A", "A", 20)
	_ = f.SetColWidth(sheetName, "B", "C", 28)
	_ = f.SetColWidth(sheetName, "D", "D", 16)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
