// Package machines keeps the registry of floor equipment job orders
// are scheduled onto.
package machines

import (
	"errors"
	"time"
)

// MachineType classifies equipment by production stage.
type MachineType string

const (
	TypeExtruder MachineType = "extruder"
	TypePrinter  MachineType = "printer"
	TypeCutter   MachineType = "cutter"
	TypeMixer    MachineType = "mixer"
)

// MachineStatus is the operational state of a machine.
type MachineStatus string

const (
	StatusActive      MachineStatus = "active"
	StatusMaintenance MachineStatus = "maintenance"
	StatusRetired     MachineStatus = "retired"
)

// Machine is one registered piece of equipment.
type Machine struct {
	ID            int64         `json:"id"`
	Code          string        `json:"code"`
	Name          string        `json:"name"`
	Type          MachineType   `json:"type"`
	Status        MachineStatus `json:"status"`
	CapacityKgDay float64       `json:"capacity_kg_day,omitempty"`
	Notes         *string       `json:"notes,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

var (
	// ErrNotFound indicates an unknown machine.
	ErrNotFound = errors.New("machines: not found")
	// ErrDuplicateCode indicates a machine code collision.
	ErrDuplicateCode = errors.New("machines: code already exists")
	// ErrRetired rejects assignments to retired machines.
	ErrRetired = errors.New("machines: machine is retired")
)

// validStatusChange blocks reactivating retired machines directly; a
// retired unit returns through maintenance after inspection.
func validStatusChange(from, to MachineStatus) bool {
	if from == to {
		return true
	}
	if from == StatusRetired {
		return to == StatusMaintenance
	}
	return true
}
