package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/polyfab/polyfab/internal/production"
)

func sampleOrders() []production.JobOrderWithMetrics {
	return []production.JobOrderWithMetrics{
		{
			JobOrder: production.JobOrder{
				Code:         "JO-1001",
				CustomerName: "Sari Mart",
				ProductName:  "HD Bag 28x40",
				TargetQty:    500,
				Status:       production.OrderStatusInProgress,
			},
			Metrics: production.Snapshot{
				ExtrudingTotal:   60,
				ProducedTotal:    55,
				WasteTotal:       5,
				CompletionPct:    11,
				WastePct:         8.33,
				ProductionStatus: production.ProductionStatusInProgress,
				HasData:          true,
			},
		},
	}
}

func TestWriteLedgerCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, sampleOrders(), false))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "Code", records[0][0])
	require.Equal(t, "JO-1001", records[1][0])
	require.Equal(t, "55.00", records[1][5])
	require.Equal(t, "5.00", records[1][6])
	require.Equal(t, "In Progress", records[1][9])
}

func TestWriteLedgerCSVLegacyEncoding(t *testing.T) {
	orders := sampleOrders()
	orders[0].CustomerName = "Café Müller"
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerCSV(&buf, orders, true))

	// Windows-1252 single-byte output: é is 0xE9, ü is 0xFC.
	require.Contains(t, buf.String(), "Caf\xe9 M\xfcller")
}

func TestWriteRollsCSVBlanksMissingStages(t *testing.T) {
	extruded := 60.0
	var buf bytes.Buffer
	require.NoError(t, WriteRollsCSV(&buf, []production.Roll{
		{RollNumber: 1, ExtrudingQty: &extruded, Status: production.RollStatusForPrinting},
	}))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Equal(t, []string{"1", "60.00", "", "", "FOR_PRINTING"}, records[1])
}

func TestWriteLedgerXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLedgerXLSX(&buf, sampleOrders()))

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ledgerSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.Equal(t, "Code", rows[0][0])
	require.Equal(t, "JO-1001", rows[1][0])
}

func TestBuildLedgerHTMLEscapes(t *testing.T) {
	orders := sampleOrders()
	orders[0].CustomerName = `<b>Sari & Co</b>`
	html := BuildLedgerHTML(orders, time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC))

	require.Contains(t, html, "Production Ledger")
	require.Contains(t, html, "&lt;b&gt;Sari &amp; Co&lt;/b&gt;")
	require.NotContains(t, html, "<b>Sari")
}

type stubSource struct {
	orders []production.JobOrderWithMetrics
}

func (s stubSource) ListOrders(_ context.Context, _ production.ListFilter) ([]production.JobOrderWithMetrics, int, error) {
	return s.orders, len(s.orders), nil
}

type stubRenderer struct{}

func (stubRenderer) RenderHTML(_ context.Context, _ string) ([]byte, error) {
	return []byte("%PDF-1.4 stub"), nil
}

func newExportRouter(t *testing.T) chi.Router {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	handler := NewHandler(logger, stubSource{orders: sampleOrders()}, stubRenderer{})
	handler.WithNow(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return r
}

func TestHandleExportCSV(t *testing.T) {
	r := newExportRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/job-orders/export?format=csv", nil))

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Header().Get("Content-Type"), "text/csv")
	require.Contains(t, rec.Header().Get("Content-Disposition"), "job-orders-20260314-0900.csv")
	require.True(t, strings.HasPrefix(rec.Body.String(), "Code,"))
}

func TestHandleExportPDF(t *testing.T) {
	r := newExportRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/job-orders/export?format=pdf", nil))

	require.Equal(t, 200, rec.Code)
	require.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(rec.Body.String(), "%PDF"))
}

func TestHandleExportRejectsUnknownFormat(t *testing.T) {
	r := newExportRouter(t)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest("GET", "/job-orders/export?format=docx", nil))

	require.Equal(t, 400, rec.Code)
}
