package jobs

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/polyfab/polyfab/internal/inventory"
)

type stubRefresher struct {
	active    []int64
	refreshed []int64
	failFor   int64
}

func (s *stubRefresher) RefreshMetrics(_ context.Context, orderID int64) error {
	if orderID == s.failFor {
		return errors.New("refresh failed")
	}
	s.refreshed = append(s.refreshed, orderID)
	return nil
}

func (s *stubRefresher) ActiveOrderIDs(_ context.Context) ([]int64, error) {
	return s.active, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMetricsRefreshSingleOrder(t *testing.T) {
	refresher := &stubRefresher{}
	handler := NewMetricsRefreshHandler(refresher, discard())

	task, err := NewMetricsRefreshTask(MetricsRefreshPayload{JobOrderID: 42})
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{42}, refresher.refreshed)
}

func TestMetricsRefreshAllActiveSkipsFailures(t *testing.T) {
	refresher := &stubRefresher{active: []int64{1, 2, 3}, failFor: 2}
	handler := NewMetricsRefreshHandler(refresher, discard())

	task, err := NewMetricsRefreshTask(MetricsRefreshPayload{})
	require.NoError(t, err)

	// One failed order does not fail the run.
	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, []int64{1, 3}, refresher.refreshed)
}

func TestMetricsRefreshBadPayloadSkipsRetry(t *testing.T) {
	handler := NewMetricsRefreshHandler(&stubRefresher{}, discard())

	task := asynq.NewTask(TaskMetricsRefresh, []byte("{not json"))
	err := handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

type stubScanner struct {
	items []inventory.LowStockItem
	err   error
}

func (s stubScanner) ListLowStock(context.Context) ([]inventory.LowStockItem, error) {
	return s.items, s.err
}

func TestLowStockScan(t *testing.T) {
	scanner := stubScanner{items: []inventory.LowStockItem{
		{Material: inventory.Material{Code: "HDPE-01", ReorderLevel: 500}, Balance: inventory.Balance{Qty: 120}},
	}}
	handler := NewLowStockScanHandler(scanner, discard())

	task, err := NewLowStockScanTask()
	require.NoError(t, err)
	require.NoError(t, handler(context.Background(), task))
}

func TestLowStockScanPropagatesError(t *testing.T) {
	scanner := stubScanner{err: errors.New("db down")}
	handler := NewLowStockScanHandler(scanner, discard())

	task, err := NewLowStockScanTask()
	require.NoError(t, err)
	require.Error(t, handler(context.Background(), task))
}
