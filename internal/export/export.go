// Package export renders activity records as spreadsheets.
package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/activity-cli/internal/model"
)

// Supported formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

// UnknownStaff labels records with no resolved staff member.
const UnknownStaff = "Unknown"

// Columns is the header row of every export.
var Columns = []string{
	"Date",
	"Staff",
	"Description",
	"Planned",
	"Executed",
	"Confidence",
	"Status",
}

// ContentType returns the MIME type for format.
func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Write renders records in the given format.
func Write(w io.Writer, format string, records []model.ActivityRecord, staffNames map[string]string) error {
	switch format {
	case FormatXLSX, "":
		return WriteXLSX(w, records, staffNames)
	case FormatCSV:
		return WriteCSV(w, records, staffNames)
	default:
		return eris.Errorf("export: unknown format %q", format)
	}
}

// WriteCSV writes records as CSV with a header row.
func WriteCSV(w io.Writer, records []model.ActivityRecord, staffNames map[string]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Columns); err != nil {
		return eris.Wrap(err, "export: write csv header")
	}
	for _, rec := range records {
		if err := cw.Write(buildRow(rec, staffNames)); err != nil {
			return eris.Wrapf(err, "export: write csv row %s", rec.ID)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "export: flush csv")
}

// WriteXLSX writes records to a single-sheet workbook.
func WriteXLSX(w io.Writer, records []model.ActivityRecord, staffNames map[string]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Activities")
	if err != nil {
		return eris.Wrap(err, "export: add sheet")
	}

	addRow(sheet, Columns)
	for _, rec := range records {
		addRow(sheet, buildRow(rec, staffNames))
	}

	return eris.Wrap(f.Write(w), "export: write xlsx")
}

func addRow(sheet *xlsx.Sheet, values []string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}

// buildRow maps a record to the export columns.
func buildRow(rec model.ActivityRecord, staffNames map[string]string) []string {
	date := ""
	if rec.ActivityDate != nil {
		date = rec.ActivityDate.String()
	}

	staff := UnknownStaff
	if rec.StaffID != nil {
		if name, ok := staffNames[*rec.StaffID]; ok {
			staff = name
		}
	}

	return []string{
		date,                                            // Date
		staff,                                           // Staff
		rec.Description,                                 // Description
		flatten(model.Deref(rec.PlannedActivities)),     // Planned
		flatten(model.Deref(rec.ExecutedActivities)),    // Executed
		strconv.FormatFloat(rec.Confidence, 'f', 2, 64), // Confidence
		rec.Status,                                      // Status
	}
}

func flatten(s string) string {
	return strings.ReplaceAll(s, "\n", "; ")
}
