package export

import (
	"encoding/csv"
	"io"

	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/progress"
)

func writeCSV(w io.Writer, records []models.MasterRecord, reporter progress.Reporter) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return err
	}

	reporter.Start(int64(len(records)), "Writing CSV")
	for i, rec := range records {
		if err := cw.Write(row(rec)); err != nil {
			reporter.Error(err)
			return err
		}
		if (i+1)%500 == 0 {
			reporter.Update(int64(i + 1))
		}
	}
	reporter.Update(int64(len(records)))
	reporter.Finish()

	cw.Flush()
	return cw.Error()
}
