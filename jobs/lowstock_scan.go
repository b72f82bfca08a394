package jobs

import (
	"context"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/polyfab/polyfab/internal/inventory"
)

// StockScanner is the slice of the inventory service the low-stock scan
// needs.
type StockScanner interface {
	ListLowStock(ctx context.Context) ([]inventory.LowStockItem, error)
}

// NewLowStockScanHandler builds the handler for TaskLowStockScan.
func NewLowStockScanHandler(service StockScanner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		items, err := service.ListLowStock(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			logger.Warn("material below reorder level",
				slog.String("code", item.Material.Code),
				slog.Float64("qty", item.Balance.Qty),
				slog.Float64("reorder_level", item.Material.ReorderLevel))
		}
		logger.Info("low stock scan done", slog.Int("alerts", len(items)))
		return nil
	}
}

var _ StockScanner = (*inventory.Service)(nil)
