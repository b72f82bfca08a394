package dashboard

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/production"
)

type stubProduction struct {
	orders map[int64]production.JobOrderWithMetrics
	calls  atomic.Int64
}

func (s *stubProduction) ActiveOrderIDs(_ context.Context) ([]int64, error) {
	ids := []int64{}
	for id := range s.orders {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *stubProduction) GetOrder(_ context.Context, id int64) (production.JobOrderWithMetrics, error) {
	s.calls.Add(1)
	order, ok := s.orders[id]
	if !ok {
		return production.JobOrderWithMetrics{}, production.ErrNotFound
	}
	return order, nil
}

type stubStock struct {
	items []inventory.LowStockItem
}

func (s stubStock) ListLowStock(_ context.Context) ([]inventory.LowStockItem, error) {
	return s.items, nil
}

func orderFixture(id int64, target, extruded, produced, waste, completion float64, status production.ProductionStatus) production.JobOrderWithMetrics {
	return production.JobOrderWithMetrics{
		JobOrder: production.JobOrder{ID: id, Code: "JO-" + string(rune('0'+id)), TargetQty: target},
		Metrics: production.Snapshot{
			ExtrudingTotal:   extruded,
			ProducedTotal:    produced,
			WasteTotal:       waste,
			CompletionPct:    completion,
			WastePct:         0,
			ProductionStatus: status,
			HasData:          extruded != 0 || produced != 0,
		},
	}
}

func newTestService(t *testing.T) (*Service, *stubProduction, *Cache) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewCache(client, time.Minute)

	orders := &stubProduction{orders: map[int64]production.JobOrderWithMetrics{
		1: orderFixture(1, 500, 60, 55, 5, 11, production.ProductionStatusInProgress),
		2: orderFixture(2, 100, 100, 100, 0, 100, production.ProductionStatusCompleted),
		3: orderFixture(3, 200, 0, 0, 0, 0, production.ProductionStatusNotStarted),
	}}
	stock := stubStock{items: []inventory.LowStockItem{{}}}
	return NewService(orders, stock, cache), orders, cache
}

func TestSummaryAggregates(t *testing.T) {
	svc, _, _ := newTestService(t)

	summary, err := svc.Summary(context.Background())
	require.NoError(t, err)

	require.Equal(t, 3, summary.ActiveOrders)
	require.Equal(t, 1, summary.CompletedOrders)
	require.Equal(t, 800.0, summary.TotalTargetKg)
	require.Equal(t, 155.0, summary.TotalProducedKg)
	require.Equal(t, 160.0, summary.TotalExtrudedKg)
	require.Equal(t, 5.0, summary.TotalWasteKg)
	// Orders without data stay out of the averages.
	require.InDelta(t, 55.5, summary.AvgCompletionPct, 1e-9)
	require.Equal(t, 1, summary.LowStockCount)
	require.Len(t, summary.Orders, 3)
	require.Equal(t, int64(1), summary.Orders[0].ID)
}

func TestSummaryIsCached(t *testing.T) {
	svc, orders, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Summary(ctx)
	require.NoError(t, err)
	first := orders.calls.Load()

	_, err = svc.Summary(ctx)
	require.NoError(t, err)
	require.Equal(t, first, orders.calls.Load())
}

func TestInvalidateBumpsVersion(t *testing.T) {
	svc, orders, cache := newTestService(t)
	ctx := context.Background()

	_, err := svc.Summary(ctx)
	require.NoError(t, err)
	first := orders.calls.Load()

	before, err := cache.Version(ctx)
	require.NoError(t, err)
	require.NoError(t, svc.Invalidate(ctx))
	after, err := cache.Version(ctx)
	require.NoError(t, err)
	require.Equal(t, before+1, after)

	// A bumped version forces a recompute.
	_, err = svc.Summary(ctx)
	require.NoError(t, err)
	require.Greater(t, orders.calls.Load(), first)
}
