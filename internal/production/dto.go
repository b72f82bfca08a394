package production

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// Qty is a kilogram weight that tolerates sloppy upstream encodings:
// JSON numbers, numeric strings (including thousands separators from
// spreadsheet pastes), null, and garbage all decode without error, with
// anything non-numeric coerced to zero so a single bad field cannot sink
// a whole submission.
type Qty float64

// UnmarshalJSON implements tolerant numeric decoding.
func (q *Qty) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*q = 0
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err == nil {
		*q = Qty(f)
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			*q = Qty(f)
			return nil
		}
	}
	*q = 0
	return nil
}

// Float returns the coerced value.
func (q Qty) Float() float64 { return float64(q) }

type CreateJobOrderRequest struct {
	Code         string  `json:"code" validate:"required,max=40"`
	CustomerName string  `json:"customer_name" validate:"required,max=120"`
	ProductName  string  `json:"product_name" validate:"required,max=120"`
	Quantity     Qty     `json:"quantity" validate:"gt=0"`
	MachineID    *int64  `json:"machine_id,omitempty" validate:"omitempty,gt=0"`
	Notes        *string `json:"notes,omitempty"`
}

type UpdateJobOrderRequest struct {
	CustomerName     *string           `json:"customer_name,omitempty" validate:"omitempty,max=120"`
	ProductName      *string           `json:"product_name,omitempty" validate:"omitempty,max=120"`
	Quantity         *Qty              `json:"quantity,omitempty" validate:"omitempty,gt=0"`
	ProductionStatus *ProductionStatus `json:"production_status,omitempty" validate:"omitempty,oneof='Not Started' 'In Progress' Completed Overproduced"`
	MachineID        *int64            `json:"machine_id,omitempty" validate:"omitempty,gt=0"`
	Notes            *string           `json:"notes,omitempty"`
}

type UpdateOrderStatusRequest struct {
	Status OrderStatus `json:"status" validate:"required,oneof=pending in_progress completed cancelled"`
}

type CreateRollRequest struct {
	ExtrudingQty Qty `json:"extruding_qty" validate:"gt=0"`
}

// StageQtyRequest carries the weight recorded at a printing or cutting
// station.
type StageQtyRequest struct {
	Quantity Qty `json:"quantity" validate:"gt=0"`
}

// UpdateRollRequest corrects stage weights after the fact. Only weights
// for stages the roll has already passed may be set.
type UpdateRollRequest struct {
	ExtrudingQty *Qty `json:"extruding_qty,omitempty" validate:"omitempty,gt=0"`
	PrintingQty  *Qty `json:"printing_qty,omitempty" validate:"omitempty,gt=0"`
	CuttingQty   *Qty `json:"cutting_qty,omitempty" validate:"omitempty,gt=0"`
}
