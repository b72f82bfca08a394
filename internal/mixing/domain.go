// Package mixing manages resin blend formulas and the batches mixed
// from them before extrusion.
package mixing

import (
	"errors"
	"time"
)

// Formula is a named blend recipe. Line percentages sum to 100.
type Formula struct {
	ID        int64         `json:"id"`
	Code      string        `json:"code"`
	Name      string        `json:"name"`
	Active    bool          `json:"active"`
	Lines     []FormulaLine `json:"lines"`
	CreatedBy int64         `json:"created_by"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// FormulaLine allocates a share of the batch weight to one material.
type FormulaLine struct {
	ID         int64   `json:"id"`
	FormulaID  int64   `json:"formula_id"`
	MaterialID int64   `json:"material_id"`
	Percent    float64 `json:"percent"`
}

// Batch is one mixed load prepared for a job order.
type Batch struct {
	ID         int64       `json:"id"`
	Code       string      `json:"code"`
	FormulaID  int64       `json:"formula_id"`
	JobOrderID *int64      `json:"job_order_id,omitempty"`
	TotalKg    float64     `json:"total_kg"`
	Lines      []BatchLine `json:"lines"`
	MixedBy    int64       `json:"mixed_by"`
	MixedAt    time.Time   `json:"mixed_at"`
}

// BatchLine is the actual weight of one material issued into a batch.
type BatchLine struct {
	ID         int64   `json:"id"`
	BatchID    int64   `json:"batch_id"`
	MaterialID int64   `json:"material_id"`
	Qty        float64 `json:"qty"`
}

var (
	// ErrNotFound indicates a missing formula or batch.
	ErrNotFound = errors.New("mixing: not found")
	// ErrPercentSum rejects formulas whose lines do not sum to 100%.
	ErrPercentSum = errors.New("mixing: line percentages must sum to 100")
	// ErrNoLines rejects formulas without any lines.
	ErrNoLines = errors.New("mixing: formula requires at least one line")
	// ErrInactiveFormula rejects batches against retired formulas.
	ErrInactiveFormula = errors.New("mixing: formula is inactive")
	// ErrInvalidWeight rejects non-positive batch weights.
	ErrInvalidWeight = errors.New("mixing: batch weight must be greater than zero")
	// ErrDuplicateMaterial rejects formulas listing a material twice.
	ErrDuplicateMaterial = errors.New("mixing: material listed more than once")
)
