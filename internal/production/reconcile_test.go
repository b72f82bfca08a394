package production

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func fptr(v float64) *float64 { return &v }

func TestReconcileEmptyLedger(t *testing.T) {
	snap := Reconcile(JobOrder{TargetQty: 100}, nil)
	require.False(t, snap.HasData)
	require.Zero(t, snap.ExtrudingTotal)
	require.Zero(t, snap.ProducedTotal)
	require.Zero(t, snap.WasteTotal)
	require.Zero(t, snap.CompletionPct)
	require.Zero(t, snap.WastePct)
	require.Equal(t, ProductionStatusNotStarted, snap.ProductionStatus)
}

func TestReconcileExtrudedOnly(t *testing.T) {
	// A roll that has only been extruded carries no produced or waste
	// weight yet; the extruded material is still in flight.
	rolls := []Roll{{ExtrudingQty: fptr(50), Status: RollStatusForPrinting}}
	snap := Reconcile(JobOrder{TargetQty: 100}, rolls)
	require.True(t, snap.HasData)
	require.InDelta(t, 50, snap.ExtrudingTotal, 0.0001)
	require.Zero(t, snap.ProducedTotal)
	require.Zero(t, snap.WasteTotal)
	require.Zero(t, snap.CompletionPct)
	require.Zero(t, snap.WastePct)
}

func TestReconcileReceivedRoll(t *testing.T) {
	rolls := []Roll{{ExtrudingQty: fptr(60), CuttingQty: fptr(55), Status: RollStatusReceived}}
	snap := Reconcile(JobOrder{TargetQty: 100}, rolls)
	require.InDelta(t, 60, snap.ExtrudingTotal, 0.0001)
	require.InDelta(t, 55, snap.ProducedTotal, 0.0001)
	require.InDelta(t, 5, snap.WasteTotal, 0.0001)
	require.InDelta(t, 55, snap.CompletionPct, 0.0001)
	require.InDelta(t, 8.3333, snap.WastePct, 0.001)
	require.True(t, snap.HasData)
}

func TestReconcileZeroTarget(t *testing.T) {
	rolls := []Roll{{ExtrudingQty: fptr(10), CuttingQty: fptr(10), Status: RollStatusReceived}}
	snap := Reconcile(JobOrder{TargetQty: 0}, rolls)
	require.Zero(t, snap.CompletionPct)
	require.Zero(t, snap.WasteTotal)
}

func TestReconcilePrefersCachedProduced(t *testing.T) {
	order := JobOrder{TargetQty: 200, ProducedQty: fptr(120), WasteQty: fptr(7)}
	rolls := []Roll{{ExtrudingQty: fptr(50), CuttingQty: fptr(40), Status: RollStatusReceived}}
	snap := Reconcile(order, rolls)
	require.InDelta(t, 120, snap.ProducedTotal, 0.0001)
	require.InDelta(t, 7, snap.WasteTotal, 0.0001)
	require.InDelta(t, 60, snap.CompletionPct, 0.0001)
}

func TestReconcileZeroCacheFallsBackToRolls(t *testing.T) {
	order := JobOrder{TargetQty: 100, ProducedQty: fptr(0)}
	rolls := []Roll{{ExtrudingQty: fptr(30), CuttingQty: fptr(28), Status: RollStatusReceived}}
	snap := Reconcile(order, rolls)
	require.InDelta(t, 28, snap.ProducedTotal, 0.0001)
	require.InDelta(t, 2, snap.WasteTotal, 0.0001)
}

func TestReconcileWasteNeverNegative(t *testing.T) {
	// Cutting can register heavier than extrusion after a correction;
	// waste clamps at zero rather than going negative.
	rolls := []Roll{{ExtrudingQty: fptr(40), CuttingQty: fptr(45), Status: RollStatusReceived}}
	snap := Reconcile(JobOrder{TargetQty: 100}, rolls)
	require.Zero(t, snap.WasteTotal)

	order := JobOrder{TargetQty: 100, WasteQty: fptr(-3)}
	snap = Reconcile(order, rolls)
	require.Zero(t, snap.WasteTotal)
}

func TestReconcileMissingStageWeights(t *testing.T) {
	rolls := []Roll{
		{Status: RollStatusForPrinting},
		{ExtrudingQty: fptr(20), Status: RollStatusReceived},
		{ExtrudingQty: fptr(25), CuttingQty: fptr(22), Status: RollStatusReceived},
	}
	snap := Reconcile(JobOrder{TargetQty: 50}, rolls)
	require.InDelta(t, 45, snap.ExtrudingTotal, 0.0001)
	require.InDelta(t, 22, snap.ProducedTotal, 0.0001)
	require.InDelta(t, 23, snap.WasteTotal, 0.0001)
}

func TestReconcileKeepsStoredProductionStatus(t *testing.T) {
	order := JobOrder{TargetQty: 100, ProductionStatus: ProductionStatusInProgress}
	rolls := []Roll{{ExtrudingQty: fptr(100), CuttingQty: fptr(100), Status: RollStatusReceived}}
	snap := Reconcile(order, rolls)
	// The label is author-set and never recomputed from the ratios, so a
	// fully produced order can legitimately still read "In Progress".
	require.Equal(t, ProductionStatusInProgress, snap.ProductionStatus)
	require.InDelta(t, 100, snap.CompletionPct, 0.0001)
}

func TestReconcileIdempotent(t *testing.T) {
	order := JobOrder{TargetQty: 100, ProductionStatus: ProductionStatusInProgress}
	rolls := []Roll{
		{ExtrudingQty: fptr(60), CuttingQty: fptr(55), Status: RollStatusReceived},
		{ExtrudingQty: fptr(30), Status: RollStatusForCutting},
	}
	first := Reconcile(order, rolls)
	second := Reconcile(order, rolls)
	require.Equal(t, first, second)
}

func TestReconcileCompletionNotCapped(t *testing.T) {
	rolls := []Roll{{ExtrudingQty: fptr(150), CuttingQty: fptr(140), Status: RollStatusReceived}}
	snap := Reconcile(JobOrder{TargetQty: 100}, rolls)
	require.InDelta(t, 140, snap.CompletionPct, 0.0001)
}

func TestRollTotalsMatchesReconcile(t *testing.T) {
	rolls := []Roll{
		{ExtrudingQty: fptr(60), CuttingQty: fptr(55), Status: RollStatusReceived},
		{ExtrudingQty: fptr(40), Status: RollStatusForReceiving},
	}
	produced, waste := RollTotals(rolls)
	snap := Reconcile(JobOrder{TargetQty: 100}, rolls)
	require.InDelta(t, snap.ProducedTotal, produced, 0.0001)
	require.InDelta(t, snap.WasteTotal, waste, 0.0001)
}

func TestRollTotalsNoReceivedRolls(t *testing.T) {
	produced, waste := RollTotals([]Roll{{ExtrudingQty: fptr(80), Status: RollStatusForCutting}})
	require.Zero(t, produced)
	require.Zero(t, waste)
}
