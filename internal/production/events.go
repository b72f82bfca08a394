package production

import (
	"context"
	"time"
)

// RollStage identifies which lifecycle step an event describes.
type RollStage string

const (
	RollStageExtruded RollStage = "extruded"
	RollStagePrinted  RollStage = "printed"
	RollStageCut      RollStage = "cut"
	RollStageReceived RollStage = "received"
)

// RollStageEvent is emitted after a roll mutation has been committed and
// the job order's cached totals refreshed. Integrations fan it out to the
// live feed, the dashboard cache, and the metrics refresh queue.
type RollStageEvent struct {
	JobOrderID int64
	RollID     int64
	RollNumber int
	Stage      RollStage
	Quantity   float64
	ActorID    int64
	OccurredAt time.Time
}

// OrderChangedEvent signals that a job order header changed (create,
// update, workflow transition, delete).
type OrderChangedEvent struct {
	JobOrderID int64
	Action     string
	OccurredAt time.Time
}

// IntegrationHandler receives production events. Failures are logged by
// the caller, never surfaced to the submitting operator: the ledger write
// has already committed.
type IntegrationHandler interface {
	HandleRollStage(ctx context.Context, evt RollStageEvent) error
	HandleOrderChanged(ctx context.Context, evt OrderChangedEvent) error
}
