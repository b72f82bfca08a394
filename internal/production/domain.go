package production

import (
	"errors"
	"time"
)

// ProductionStatus labels how far a job order has progressed on the floor.
// It is maintained by planners on the job order itself and is not derived
// from the reconciled ratios.
type ProductionStatus string

const (
	ProductionStatusNotStarted   ProductionStatus = "Not Started"
	ProductionStatusInProgress   ProductionStatus = "In Progress"
	ProductionStatusCompleted    ProductionStatus = "Completed"
	ProductionStatusOverproduced ProductionStatus = "Overproduced"
)

// OrderStatus is the workflow state of a job order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusInProgress OrderStatus = "in_progress"
	OrderStatusCompleted  OrderStatus = "completed"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// RollStatus is the stage a roll is waiting for next.
type RollStatus string

const (
	RollStatusForPrinting  RollStatus = "FOR_PRINTING"
	RollStatusForCutting   RollStatus = "FOR_CUTTING"
	RollStatusForReceiving RollStatus = "FOR_RECEIVING"
	RollStatusReceived     RollStatus = "RECEIVED"
)

// JobOrder is a production work order for a target output weight.
// ProducedQty and WasteQty are server-cached derivations over the roll
// ledger and may lag it; Reconcile recomputes them from rolls on demand.
type JobOrder struct {
	ID               int64             `json:"id"`
	Code             string            `json:"code"`
	CustomerName     string            `json:"customer_name"`
	ProductName      string            `json:"product_name"`
	TargetQty        float64           `json:"quantity"`
	ProducedQty      *float64          `json:"produced_quantity,omitempty"`
	WasteQty         *float64          `json:"waste_quantity,omitempty"`
	ProductionStatus ProductionStatus  `json:"production_status"`
	Status           OrderStatus       `json:"status"`
	MachineID        *int64            `json:"machine_id,omitempty"`
	Notes            *string           `json:"notes,omitempty"`
	CreatedBy        int64             `json:"created_by"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	Rolls            []Roll            `json:"rolls,omitempty"`
}

// Roll is a physical unit of output tracked through the production stages.
// Stage quantities are nullable: a value exists only once its stage ran.
type Roll struct {
	ID           int64      `json:"id"`
	JobOrderID   int64      `json:"job_order_id"`
	RollNumber   int        `json:"roll_number"`
	ExtrudingQty *float64   `json:"extruding_qty,omitempty"`
	PrintingQty  *float64   `json:"printing_qty,omitempty"`
	CuttingQty   *float64   `json:"cutting_qty,omitempty"`
	Status       RollStatus `json:"status"`
	QRRef        string     `json:"qr_ref,omitempty"`
	ExtrudedBy   int64      `json:"extruded_by"`
	ExtrudedAt   time.Time  `json:"extruded_at"`
	PrintedBy    *int64     `json:"printed_by,omitempty"`
	PrintedAt    *time.Time `json:"printed_at,omitempty"`
	CutBy        *int64     `json:"cut_by,omitempty"`
	CutAt        *time.Time `json:"cut_at,omitempty"`
	ReceivedBy   *int64     `json:"received_by,omitempty"`
	ReceivedAt   *time.Time `json:"received_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// JobOrderWithMetrics pairs a job order row with its reconciled snapshot
// for list views and exports.
type JobOrderWithMetrics struct {
	JobOrder
	Metrics Snapshot `json:"metrics"`
}

// ListFilter narrows job order listings.
type ListFilter struct {
	Status           *OrderStatus
	ProductionStatus *ProductionStatus
	MachineID        *int64
	Limit            int
	Offset           int
}

var (
	// ErrNotFound indicates a missing job order or roll.
	ErrNotFound = errors.New("production: not found")
	// ErrStageOrder is returned when a roll transition skips or repeats a stage.
	ErrStageOrder = errors.New("production: roll is not at the required stage")
	// ErrTerminalStatus rejects mutations against completed or cancelled job orders.
	ErrTerminalStatus = errors.New("production: job order status is terminal")
	// ErrInvalidQuantity rejects non-positive stage weights.
	ErrInvalidQuantity = errors.New("production: quantity must be greater than zero")
	// ErrInvalidTransition rejects workflow status moves the lifecycle does not allow.
	ErrInvalidTransition = errors.New("production: invalid status transition")
)

// nextStatus returns the stage a roll advances to, in lifecycle order.
func nextStatus(s RollStatus) (RollStatus, bool) {
	switch s {
	case RollStatusForPrinting:
		return RollStatusForCutting, true
	case RollStatusForCutting:
		return RollStatusForReceiving, true
	case RollStatusForReceiving:
		return RollStatusReceived, true
	default:
		return s, false
	}
}
