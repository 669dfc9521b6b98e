package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/progress"
)

const sheetName = "Master"

func writeXLSX(w io.Writer, records []models.MasterRecord, reporter progress.Reporter) (err error) {
	f := excelize.NewFile()
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return err
	}

	sw, err := f.NewStreamWriter(sheetName)
	if err != nil {
		return err
	}

	header, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E0E0E0"}, Pattern: 1},
	})
	if err != nil {
		return err
	}
	if err := sw.SetColWidth(1, 1, 32); err != nil {
		return err
	}
	if err := sw.SetColWidth(2, len(Columns), 16); err != nil {
		return err
	}

	cells := make([]interface{}, len(Columns))
	for i, c := range Columns {
		cells[i] = excelize.Cell{StyleID: header, Value: c}
	}
	if err := sw.SetRow("A1", cells); err != nil {
		return err
	}

	reporter.Start(int64(len(records)), "Writing XLSX")
	for i, rec := range records {
		values := row(rec)
		cells := make([]interface{}, len(values))
		for j, v := range values {
			cells[j] = v
		}
		// is_* columns are written as real booleans so spreadsheet filters work
		cells[7], cells[8], cells[9] = rec.IsTR, rec.IsMFM, rec.IsNYSS

		axis, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(axis, cells); err != nil {
			reporter.Error(err)
			return fmt.Errorf("row %d: %w", i+2, err)
		}
		if (i+1)%500 == 0 {
			reporter.Update(int64(i + 1))
		}
	}
	reporter.Update(int64(len(records)))
	reporter.Finish()

	if err := sw.Flush(); err != nil {
		return err
	}
	_, err = f.WriteTo(w)
	return err
}
