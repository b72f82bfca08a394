// Package export serialises the job order ledger to CSV, XLSX and PDF.
package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"

	"github.com/polyfab/polyfab/internal/production"
)

var ledgerHeader = []string{
	"Code", "Customer", "Product", "Target (kg)", "Extruded (kg)", "Produced (kg)",
	"Waste (kg)", "Completion %", "Waste %", "Production Status", "Status",
}

func ledgerRows(orders []production.JobOrderWithMetrics) [][]string {
	rows := make([][]string, 0, len(orders))
	for _, order := range orders {
		m := order.Metrics
		rows = append(rows, []string{
			order.Code,
			order.CustomerName,
			order.ProductName,
			formatFloat(order.TargetQty),
			formatFloat(m.ExtrudingTotal),
			formatFloat(m.ProducedTotal),
			formatFloat(m.WasteTotal),
			formatFloat(m.CompletionPct),
			formatFloat(m.WastePct),
			string(m.ProductionStatus),
			string(order.Status),
		})
	}
	return rows
}

// WriteLedgerCSV serialises job orders with their reconciled metrics.
// legacyEncoding transcodes the output to Windows-1252 for the shop's
// old spreadsheet installs, substituting characters the codepage lacks.
func WriteLedgerCSV(w io.Writer, orders []production.JobOrderWithMetrics, legacyEncoding bool) error {
	out := w
	if legacyEncoding {
		encoder := encoding.ReplaceUnsupported(charmap.Windows1252.NewEncoder())
		encoded := transform.NewWriter(w, encoder)
		defer encoded.Close()
		out = encoded
	}
	writer := csv.NewWriter(out)
	defer writer.Flush()

	if err := writer.Write(ledgerHeader); err != nil {
		return err
	}
	for _, row := range ledgerRows(orders) {
		if err := writer.Write(row); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteRollsCSV serialises one job order's roll ledger.
func WriteRollsCSV(w io.Writer, rolls []production.Roll) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()

	if err := writer.Write([]string{"Roll #", "Extruding (kg)", "Printing (kg)", "Cutting (kg)", "Status"}); err != nil {
		return err
	}
	for _, roll := range rolls {
		if err := writer.Write([]string{
			strconv.Itoa(roll.RollNumber),
			formatOptional(roll.ExtrudingQty),
			formatOptional(roll.PrintingQty),
			formatOptional(roll.CuttingQty),
			string(roll.Status),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatFloat(*v)
}
