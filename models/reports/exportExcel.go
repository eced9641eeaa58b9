package reports

import (
	"fmt"

	"bitbucket.org/milpaydata/lesaudit_backend/models"
	"bitbucket.org/milpaydata/lesaudit_backend/utils"
	"github.com/xuri/excelize/v2"
)

// BuildWaterfallWorkbook renders the full breakdown to a spreadsheet for the
// "take this to finance" workflow. Callers gate access by tier before calling.
func BuildWaterfallWorkbook(audit *models.Audit, rows []WaterfallRow) (*excelize.File, error) {
	f := excelize.NewFile()
	const sheet = "Sheet1"
	if _, err := f.NewSheet(sheet); err != nil {
		return nil, err
	}

	f.SetCellValue(sheet, "A1", fmt.Sprintf("Pay audit %02d/%d", audit.Month, audit.Year))
	f.SetCellValue(sheet, "B1", string(audit.Profile.Paygrade))

	// Headers
	f.SetCellValue(sheet, "A2", "Component")
	f.SetCellValue(sheet, "B2", "Section")
	f.SetCellValue(sheet, "C2", "Expected")
	f.SetCellValue(sheet, "D2", "Actual")
	f.SetCellValue(sheet, "E2", "Delta")
	f.SetCellValue(sheet, "F2", "Exact")

	for i, row := range rows {
		r := i + 3
		f.SetCellValue(sheet, "A"+fmt.Sprint(r), row.Label)
		f.SetCellValue(sheet, "B"+fmt.Sprint(r), string(row.Section))
		if row.ExpectedCents != nil {
			f.SetCellValue(sheet, "C"+fmt.Sprint(r), utils.FormatCents(*row.ExpectedCents))
		}
		f.SetCellValue(sheet, "D"+fmt.Sprint(r), utils.FormatCents(row.ActualCents))
		if row.DeltaCents != nil {
			f.SetCellValue(sheet, "E"+fmt.Sprint(r), utils.FormatCents(*row.DeltaCents))
		}
		if row.Exact {
			f.SetCellValue(sheet, "F"+fmt.Sprint(r), "exact")
		} else {
			f.SetCellValue(sheet, "F"+fmt.Sprint(r), "estimate")
		}
	}

	return f, nil
}
