// Package inventory tracks raw material stock for the factory floor:
// resin, masterbatch, ink and solvent consumed by extrusion, printing
// and mixing.
package inventory

import (
	"errors"
	"time"
)

// MovementType enumerates supported stock movements.
type MovementType string

const (
	// MovementTypeIn represents an inbound receipt from a supplier.
	MovementTypeIn MovementType = "IN"
	// MovementTypeOut represents consumption by production or mixing.
	MovementTypeOut MovementType = "OUT"
	// MovementTypeAdjust indicates manual stocktake corrections.
	MovementTypeAdjust MovementType = "ADJUST"
)

// MaterialCategory groups raw materials by their role in the process.
type MaterialCategory string

const (
	CategoryResin       MaterialCategory = "resin"
	CategoryMasterbatch MaterialCategory = "masterbatch"
	CategoryInk         MaterialCategory = "ink"
	CategorySolvent     MaterialCategory = "solvent"
	CategoryOther       MaterialCategory = "other"
)

// Material is a raw material master record.
type Material struct {
	ID           int64            `json:"id"`
	Code         string           `json:"code"`
	Name         string           `json:"name"`
	Category     MaterialCategory `json:"category"`
	Unit         string           `json:"unit"`
	ReorderLevel float64          `json:"reorder_level"`
	CreatedAt    time.Time        `json:"created_at"`
	UpdatedAt    time.Time        `json:"updated_at"`
}

// Movement models one posted stock movement.
type Movement struct {
	ID         int64        `json:"id"`
	Code       string       `json:"code"`
	Type       MovementType `json:"type"`
	MaterialID int64        `json:"material_id"`
	Qty        float64      `json:"qty"`
	UnitCost   float64      `json:"unit_cost"`
	RefModule  string       `json:"ref_module,omitempty"`
	RefID      string       `json:"ref_id,omitempty"`
	Note       string       `json:"note,omitempty"`
	PostedAt   time.Time    `json:"posted_at"`
	CreatedBy  int64        `json:"created_by"`
}

// Balance summarises on-hand stock per material with its moving-average
// unit cost.
type Balance struct {
	MaterialID int64     `json:"material_id"`
	Qty        float64   `json:"qty"`
	AvgCost    float64   `json:"avg_cost"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// StockCardEntry describes one line of a material's stock card.
type StockCardEntry struct {
	MovementCode string       `json:"movement_code"`
	Type         MovementType `json:"type"`
	PostedAt     time.Time    `json:"posted_at"`
	QtyIn        float64      `json:"qty_in"`
	QtyOut       float64      `json:"qty_out"`
	BalanceQty   float64      `json:"balance_qty"`
	UnitCost     float64      `json:"unit_cost"`
	BalanceCost  float64      `json:"balance_cost"`
	Note         string       `json:"note,omitempty"`
}

// StockCardFilter narrows stock card queries.
type StockCardFilter struct {
	MaterialID int64
	From       time.Time
	To         time.Time
	Limit      int
}

// LowStockItem pairs a material with its current balance when the
// balance sits at or below the reorder level.
type LowStockItem struct {
	Material Material `json:"material"`
	Balance  Balance  `json:"balance"`
}

// ReceiveInput posts an inbound receipt.
type ReceiveInput struct {
	Code       string
	MaterialID int64
	Qty        float64
	UnitCost   float64
	Note       string
	ActorID    int64
	RefModule  string
	RefID      string
}

// IssueInput posts an outbound consumption.
type IssueInput struct {
	Code       string
	MaterialID int64
	Qty        float64
	Note       string
	ActorID    int64
	RefModule  string
	RefID      string
}

// AdjustInput posts a stocktake correction; Qty may be negative.
type AdjustInput struct {
	Code       string
	MaterialID int64
	Qty        float64
	UnitCost   float64
	Note       string
	ActorID    int64
}

var (
	// ErrMaterialNotFound indicates an unknown material id or code.
	ErrMaterialNotFound = errors.New("inventory: material not found")
	// ErrBalanceNotFound indicates no balance row exists yet.
	ErrBalanceNotFound = errors.New("inventory: balance not found")
	// ErrNegativeStock rejects movements that would drive stock below zero.
	ErrNegativeStock = errors.New("inventory: insufficient stock")
	// ErrInvalidQuantity rejects zero or wrongly signed quantities.
	ErrInvalidQuantity = errors.New("inventory: invalid quantity")
	// ErrInvalidUnitCost rejects negative unit costs.
	ErrInvalidUnitCost = errors.New("inventory: invalid unit cost")
	// ErrDuplicateCode indicates a material code collision.
	ErrDuplicateCode = errors.New("inventory: material code already exists")
)
