// Package integration fans committed domain events out to the live
// feed, the dashboard cache, and the background queue.
package integration

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/production"
	"github.com/polyfab/polyfab/jobs"
)

// Broadcaster pushes events to connected floor displays.
type Broadcaster interface {
	BroadcastRollStage(jobOrderID, rollID int64, stage string, quantity float64, at time.Time)
	BroadcastOrderChange(jobOrderID int64, action string, at time.Time)
}

// Invalidator bumps the dashboard cache version.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// StageCounter records stage transitions in metrics.
type StageCounter interface {
	CountRollStage(stage string)
}

// Enqueuer submits background refresh jobs.
type Enqueuer interface {
	EnqueueMetricsRefresh(ctx context.Context, payload jobs.MetricsRefreshPayload) (*asynq.TaskInfo, error)
}

// Hooks wires domain events from operational modules into the shared
// surfaces. Every fan-out is best effort: the triggering write has
// already committed, so failures are logged and swallowed.
type Hooks struct {
	logger    *slog.Logger
	live      Broadcaster
	dashboard Invalidator
	metrics   StageCounter
	queue     Enqueuer
}

// NewHooks constructs integration hooks. Any dependency may be nil; the
// corresponding fan-out is skipped.
func NewHooks(logger *slog.Logger, live Broadcaster, dashboard Invalidator, metrics StageCounter, queue Enqueuer) *Hooks {
	return &Hooks{logger: logger, live: live, dashboard: dashboard, metrics: metrics, queue: queue}
}

func (h *Hooks) invalidate(ctx context.Context) {
	if h.dashboard == nil {
		return
	}
	if err := h.dashboard.Invalidate(ctx); err != nil {
		h.logger.Warn("integration: dashboard invalidate", slog.Any("error", err))
	}
}

// HandleRollStage fans a committed roll transition out to the floor
// displays, metrics, and the dashboard cache. A metrics refresh for the
// order is queued as well; the mutation already refreshed the cached
// totals in its own transaction, so the job is a reconciliation sweep
// for anything that raced it.
func (h *Hooks) HandleRollStage(ctx context.Context, evt production.RollStageEvent) error {
	if h == nil {
		return nil
	}
	if h.live != nil {
		h.live.BroadcastRollStage(evt.JobOrderID, evt.RollID, string(evt.Stage), evt.Quantity, evt.OccurredAt)
	}
	if h.metrics != nil {
		h.metrics.CountRollStage(string(evt.Stage))
	}
	h.invalidate(ctx)
	if h.queue != nil {
		if _, err := h.queue.EnqueueMetricsRefresh(ctx, jobs.MetricsRefreshPayload{JobOrderID: evt.JobOrderID}); err != nil {
			h.logger.Warn("integration: enqueue metrics refresh", slog.Any("error", err))
		}
	}
	return nil
}

// HandleOrderChanged fans a job order header change out to the floor
// displays and the dashboard cache. Deletes also queue a metrics
// refresh so stale cached totals on sibling views age out promptly.
func (h *Hooks) HandleOrderChanged(ctx context.Context, evt production.OrderChangedEvent) error {
	if h == nil {
		return nil
	}
	if h.live != nil {
		h.live.BroadcastOrderChange(evt.JobOrderID, evt.Action, evt.OccurredAt)
	}
	h.invalidate(ctx)
	if evt.Action == "deleted" && h.queue != nil {
		if _, err := h.queue.EnqueueMetricsRefresh(ctx, jobs.MetricsRefreshPayload{}); err != nil {
			h.logger.Warn("integration: enqueue metrics refresh", slog.Any("error", err))
		}
	}
	return nil
}

// HandleMovementPosted invalidates the dashboard after a stock movement.
func (h *Hooks) HandleMovementPosted(ctx context.Context, evt inventory.MovementPostedEvent) error {
	if h == nil {
		return nil
	}
	h.invalidate(ctx)
	return nil
}

// HandleLowStock surfaces a reorder alert in the log and on the floor
// displays.
func (h *Hooks) HandleLowStock(ctx context.Context, evt inventory.LowStockEvent) error {
	if h == nil {
		return nil
	}
	h.logger.Warn("material below reorder level",
		slog.String("code", evt.MaterialCode),
		slog.Float64("qty", evt.BalanceQty),
		slog.Float64("reorder_level", evt.ReorderLevel))
	h.invalidate(ctx)
	return nil
}

var _ production.IntegrationHandler = (*Hooks)(nil)
var _ inventory.IntegrationHandler = (*Hooks)(nil)
