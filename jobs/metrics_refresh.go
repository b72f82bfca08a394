package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/polyfab/polyfab/internal/production"
)

// ProductionRefresher is the slice of the production service the
// refresh job needs.
type ProductionRefresher interface {
	RefreshMetrics(ctx context.Context, orderID int64) error
	ActiveOrderIDs(ctx context.Context) ([]int64, error)
}

// NewMetricsRefreshHandler builds the handler for TaskMetricsRefresh.
// Per-order failures are logged and skipped so one broken ledger does
// not starve the rest of the nightly run.
func NewMetricsRefreshHandler(service ProductionRefresher, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload MetricsRefreshPayload
		if len(t.Payload()) > 0 {
			if err := json.Unmarshal(t.Payload(), &payload); err != nil {
				return asynq.SkipRetry
			}
		}
		if payload.JobOrderID > 0 {
			if err := service.RefreshMetrics(ctx, payload.JobOrderID); err != nil {
				logger.Error("metrics refresh failed",
					slog.Int64("job_order_id", payload.JobOrderID),
					slog.Any("error", err))
				return err
			}
			return nil
		}
		ids, err := service.ActiveOrderIDs(ctx)
		if err != nil {
			return err
		}
		failures := 0
		for _, id := range ids {
			if err := service.RefreshMetrics(ctx, id); err != nil {
				failures++
				logger.Error("metrics refresh failed",
					slog.Int64("job_order_id", id),
					slog.Any("error", err))
			}
		}
		logger.Info("metrics refresh done",
			slog.Int("orders", len(ids)),
			slog.Int("failures", failures))
		return nil
	}
}

var _ ProductionRefresher = (*production.Service)(nil)
