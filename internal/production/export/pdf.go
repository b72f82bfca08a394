package export

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/polyfab/polyfab/internal/production"
)

// PDFRenderer converts HTML into a PDF document.
type PDFRenderer interface {
	RenderHTML(ctx context.Context, html string) ([]byte, error)
}

// BuildLedgerHTML renders the job order ledger as a printable report.
func BuildLedgerHTML(orders []production.JobOrderWithMetrics, generatedAt time.Time) string {
	var b strings.Builder
	b.WriteString(`<!DOCTYPE html><html><head><meta charset="utf-8"><style>
body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; }
h1 { font-size: 18px; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #999; padding: 4px 6px; text-align: left; }
th { background: #eee; }
td.num { text-align: right; }
</style></head><body>`)
	b.WriteString("<h1>Production Ledger</h1>")
	fmt.Fprintf(&b, "<p>Generated %s</p>", generatedAt.Format("2006-01-02 15:04 MST"))
	b.WriteString("<table><thead><tr>")
	for _, header := range ledgerHeader {
		fmt.Fprintf(&b, "<th>%s</th>", html.EscapeString(header))
	}
	b.WriteString("</tr></thead><tbody>")
	for _, row := range ledgerRows(orders) {
		b.WriteString("<tr>")
		for i, value := range row {
			class := ""
			if i >= 3 && i <= 8 {
				class = ` class="num"`
			}
			fmt.Fprintf(&b, "<td%s>%s</td>", class, html.EscapeString(value))
		}
		b.WriteString("</tr>")
	}
	b.WriteString("</tbody></table></body></html>")
	return b.String()
}

// RenderLedgerPDF builds the ledger report and converts it via the
// renderer (Gotenberg in production).
func RenderLedgerPDF(ctx context.Context, renderer PDFRenderer, orders []production.JobOrderWithMetrics, generatedAt time.Time) ([]byte, error) {
	return renderer.RenderHTML(ctx, BuildLedgerHTML(orders, generatedAt))
}
