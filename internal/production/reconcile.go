package production

import "math"

// Snapshot is the reconciled view of a job order's roll ledger. It is the
// only shape downstream consumers (lists, dashboard, exports, live feed)
// may read production metrics from.
type Snapshot struct {
	ExtrudingTotal   float64          `json:"extruding_total"`
	ProducedTotal    float64          `json:"produced_total"`
	WasteTotal       float64          `json:"waste_total"`
	CompletionPct    float64          `json:"completion_pct"`
	WastePct         float64          `json:"waste_pct"`
	ProductionStatus ProductionStatus `json:"production_status"`
	HasData          bool             `json:"has_data"`
}

// Reconcile derives production metrics for one job order from its full
// roll set. It is a pure function: deterministic for identical inputs,
// no writes, no panics on partial rolls (missing stage weights count as
// zero), and no division by zero.
//
// Cached totals on the job order win when set: ProducedQty when non-zero,
// WasteQty whenever present. Otherwise produced weight is the sum of
// cutting weights over received rolls, and waste is the extruded weight
// that never became received product, clamped at zero. Waste is only
// derivable once at least one roll has been received; until then the
// extruded material is still in flight, not waste.
func Reconcile(order JobOrder, rolls []Roll) Snapshot {
	var extruded float64
	for _, roll := range rolls {
		extruded += qty(roll.ExtrudingQty)
	}

	produced := 0.0
	producedFromRolls := false
	if order.ProducedQty != nil && *order.ProducedQty != 0 {
		produced = *order.ProducedQty
	} else {
		producedFromRolls = true
		for _, roll := range rolls {
			if roll.Status == RollStatusReceived {
				produced += qty(roll.CuttingQty)
			}
		}
	}

	waste := 0.0
	switch {
	case order.WasteQty != nil:
		waste = *order.WasteQty
	case producedFromRolls && anyReceived(rolls):
		waste = math.Max(0, extruded-produced)
	}
	if waste < 0 {
		waste = 0
	}

	completion := 0.0
	if order.TargetQty > 0 {
		completion = produced / order.TargetQty * 100
	}
	wastePct := 0.0
	if extruded > 0 {
		wastePct = waste / extruded * 100
	}

	status := order.ProductionStatus
	if status == "" {
		status = ProductionStatusNotStarted
	}

	return Snapshot{
		ExtrudingTotal:   extruded,
		ProducedTotal:    produced,
		WasteTotal:       waste,
		CompletionPct:    completion,
		WastePct:         wastePct,
		ProductionStatus: status,
		HasData:          extruded != 0 || produced != 0,
	}
}

// RollTotals sums the roll-derived produced and waste weights, ignoring
// any cached values on the job order. The service uses it as the single
// source when refreshing the cached columns, so the cached and live paths
// cannot diverge.
func RollTotals(rolls []Roll) (produced, waste float64) {
	var extruded float64
	for _, roll := range rolls {
		extruded += qty(roll.ExtrudingQty)
		if roll.Status == RollStatusReceived {
			produced += qty(roll.CuttingQty)
		}
	}
	if anyReceived(rolls) {
		waste = math.Max(0, extruded-produced)
	}
	return produced, waste
}

func anyReceived(rolls []Roll) bool {
	for _, roll := range rolls {
		if roll.Status == RollStatusReceived {
			return true
		}
	}
	return false
}

func qty(v *float64) float64 {
	if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
		return 0
	}
	return *v
}
