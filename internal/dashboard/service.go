package dashboard

import (
	"context"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/production"
)

// maxConcurrentReconciles bounds parallel ledger walks per request.
const maxConcurrentReconciles = 8

// Summary is the floor-wide aggregate for the overview screen.
type Summary struct {
	ActiveOrders     int     `json:"active_orders"`
	CompletedOrders  int     `json:"completed_orders"`
	TotalTargetKg    float64 `json:"total_target_kg"`
	TotalProducedKg  float64 `json:"total_produced_kg"`
	TotalExtrudedKg  float64 `json:"total_extruded_kg"`
	TotalWasteKg     float64 `json:"total_waste_kg"`
	AvgCompletionPct float64 `json:"avg_completion_pct"`
	AvgWastePct      float64 `json:"avg_waste_pct"`
	LowStockCount    int     `json:"low_stock_count"`

	Orders []OrderSummary `json:"orders"`
}

// OrderSummary is one active order's reconciled position.
type OrderSummary struct {
	ID               int64                       `json:"id"`
	Code             string                      `json:"code"`
	CustomerName     string                      `json:"customer_name"`
	ProductName      string                      `json:"product_name"`
	TargetQty        float64                     `json:"quantity"`
	ProductionStatus production.ProductionStatus `json:"production_status"`
	Metrics          production.Snapshot         `json:"metrics"`
}

// ProductionSource supplies reconciled orders.
type ProductionSource interface {
	ActiveOrderIDs(ctx context.Context) ([]int64, error)
	GetOrder(ctx context.Context, id int64) (production.JobOrderWithMetrics, error)
}

// StockSource supplies low stock alerts.
type StockSource interface {
	ListLowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// Service computes dashboard aggregates, memoised through the
// version-bumped cache.
type Service struct {
	orders ProductionSource
	stock  StockSource
	cache  *Cache
}

// NewService builds the dashboard service. cache may be nil in tests.
func NewService(orders ProductionSource, stock StockSource, cache *Cache) *Service {
	return &Service{orders: orders, stock: stock, cache: cache}
}

// Summary returns the cached floor aggregate, computing it on miss.
func (s *Service) Summary(ctx context.Context) (Summary, error) {
	key, err := s.cache.BuildKey(ctx, "dashboard", "summary")
	if err != nil {
		return Summary{}, err
	}
	var summary Summary
	err = s.cache.FetchJSON(ctx, key, &summary, func(ctx context.Context) (interface{}, error) {
		return s.compute(ctx)
	})
	return summary, err
}

// Invalidate bumps the cache version after a production event.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}

// compute walks every active order's roll ledger in parallel and folds
// the snapshots into one aggregate.
func (s *Service) compute(ctx context.Context) (Summary, error) {
	ids, err := s.orders.ActiveOrderIDs(ctx)
	if err != nil {
		return Summary{}, err
	}

	var mu sync.Mutex
	orders := make([]OrderSummary, 0, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentReconciles)
	for _, id := range ids {
		g.Go(func() error {
			order, err := s.orders.GetOrder(gctx, id)
			if err != nil {
				return err
			}
			entry := OrderSummary{
				ID:               order.ID,
				Code:             order.Code,
				CustomerName:     order.CustomerName,
				ProductName:      order.ProductName,
				TargetQty:        order.TargetQty,
				ProductionStatus: order.Metrics.ProductionStatus,
				Metrics:          order.Metrics,
			}
			mu.Lock()
			orders = append(orders, entry)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Summary{}, err
	}
	sort.Slice(orders, func(i, j int) bool { return orders[i].ID < orders[j].ID })

	summary := Summary{Orders: orders, ActiveOrders: len(orders)}
	withData := 0
	for _, order := range orders {
		summary.TotalTargetKg += order.TargetQty
		summary.TotalProducedKg += order.Metrics.ProducedTotal
		summary.TotalExtrudedKg += order.Metrics.ExtrudingTotal
		summary.TotalWasteKg += order.Metrics.WasteTotal
		if order.Metrics.ProductionStatus == production.ProductionStatusCompleted {
			summary.CompletedOrders++
		}
		if order.Metrics.HasData {
			withData++
			summary.AvgCompletionPct += order.Metrics.CompletionPct
			summary.AvgWastePct += order.Metrics.WastePct
		}
	}
	if withData > 0 {
		summary.AvgCompletionPct /= float64(withData)
		summary.AvgWastePct /= float64(withData)
	}

	if s.stock != nil {
		items, err := s.stock.ListLowStock(ctx)
		if err != nil {
			return Summary{}, err
		}
		summary.LowStockCount = len(items)
	}
	return summary, nil
}
