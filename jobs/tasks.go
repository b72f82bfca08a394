// Package jobs runs background work through Asynq: nightly metric
// refreshes over the roll ledger and low-stock scans over material
// balances.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskMetricsRefresh recomputes cached produced/waste totals for job
	// orders from their roll ledgers.
	TaskMetricsRefresh = "production:metrics_refresh"
	// TaskLowStockScan walks material balances and logs reorder alerts.
	TaskLowStockScan = "inventory:lowstock_scan"
)

// MetricsRefreshPayload scopes a refresh run. JobOrderID zero means all
// active orders.
type MetricsRefreshPayload struct {
	JobOrderID int64 `json:"job_order_id"`
}

// NewMetricsRefreshTask constructs an Asynq task.
func NewMetricsRefreshTask(payload MetricsRefreshPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskMetricsRefresh, data), nil
}

// NewLowStockScanTask constructs an Asynq task.
func NewLowStockScanTask() (*asynq.Task, error) {
	return asynq.NewTask(TaskLowStockScan, nil), nil
}
