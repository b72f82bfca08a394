package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"

	"github.com/polyfab/polyfab/internal/production"
)

const ledgerSheet = "Job Orders"

// WriteLedgerXLSX streams the job order ledger as a styled workbook.
func WriteLedgerXLSX(w io.Writer, orders []production.JobOrderWithMetrics) error {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(ledgerSheet)
	if err != nil {
		return err
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#D3D3D3"}, Pattern: 1},
	})
	if err != nil {
		return err
	}

	for i, header := range ledgerHeader {
		cell := fmt.Sprintf("%s1", column(i))
		if err := f.SetCellValue(ledgerSheet, cell, header); err != nil {
			return err
		}
		if err := f.SetCellStyle(ledgerSheet, cell, cell, headerStyle); err != nil {
			return err
		}
	}

	for rowIdx, row := range ledgerRows(orders) {
		for colIdx, value := range row {
			cell := fmt.Sprintf("%s%d", column(colIdx), rowIdx+2)
			if err := f.SetCellValue(ledgerSheet, cell, value); err != nil {
				return err
			}
		}
	}

	for i := range ledgerHeader {
		col := column(i)
		if err := f.SetColWidth(ledgerSheet, col, col, 16); err != nil {
			return err
		}
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return err
	}

	return f.Write(w)
}

func column(i int) string {
	name, err := excelize.ColumnNumberToName(i + 1)
	if err != nil {
		return "A"
	}
	return name
}
