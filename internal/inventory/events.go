package inventory

import (
	"context"
	"time"
)

// MovementPostedEvent is emitted after a stock movement commits.
type MovementPostedEvent struct {
	Code       string
	Type       MovementType
	MaterialID int64
	Qty        float64
	BalanceQty float64
	PostedAt   time.Time
}

// LowStockEvent is emitted when a committed movement leaves a material
// at or below its reorder level.
type LowStockEvent struct {
	MaterialID   int64
	MaterialCode string
	BalanceQty   float64
	ReorderLevel float64
	ObservedAt   time.Time
}

// IntegrationHandler receives inventory events after commit. Errors are
// logged by the caller and never roll the movement back.
type IntegrationHandler interface {
	HandleMovementPosted(ctx context.Context, evt MovementPostedEvent) error
	HandleLowStock(ctx context.Context, evt LowStockEvent) error
}
