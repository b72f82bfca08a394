package mixing

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polyfab/polyfab/internal/inventory"
)

type memRepo struct {
	formulas    map[int64]*Formula
	batches     map[int64]*Batch
	nextFormula int64
	nextBatch   int64
}

func newMemRepo() *memRepo {
	return &memRepo{formulas: map[int64]*Formula{}, batches: map[int64]*Batch{}, nextFormula: 1, nextBatch: 1}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetFormula(_ context.Context, id int64) (Formula, error) {
	formula, ok := m.formulas[id]
	if !ok {
		return Formula{}, ErrNotFound
	}
	return *formula, nil
}

func (m *memRepo) ListFormulas(_ context.Context, activeOnly bool) ([]Formula, error) {
	out := []Formula{}
	for _, formula := range m.formulas {
		if activeOnly && !formula.Active {
			continue
		}
		out = append(out, *formula)
	}
	return out, nil
}

func (m *memRepo) GetBatch(_ context.Context, id int64) (Batch, error) {
	batch, ok := m.batches[id]
	if !ok {
		return Batch{}, ErrNotFound
	}
	return *batch, nil
}

func (m *memRepo) ListBatches(_ context.Context, jobOrderID *int64, _, _ int) ([]Batch, int, error) {
	out := []Batch{}
	for _, batch := range m.batches {
		if jobOrderID != nil && (batch.JobOrderID == nil || *batch.JobOrderID != *jobOrderID) {
			continue
		}
		out = append(out, *batch)
	}
	return out, len(out), nil
}

func (m *memRepo) InsertFormula(_ context.Context, formula Formula) (int64, error) {
	id := m.nextFormula
	m.nextFormula++
	formula.ID = id
	m.formulas[id] = &formula
	return id, nil
}

func (m *memRepo) ReplaceFormulaLines(_ context.Context, formulaID int64, lines []FormulaLine) error {
	formula, ok := m.formulas[formulaID]
	if !ok {
		return ErrNotFound
	}
	formula.Lines = lines
	return nil
}

func (m *memRepo) GetFormulaForUpdate(ctx context.Context, id int64) (Formula, error) {
	return m.GetFormula(ctx, id)
}

func (m *memRepo) UpdateFormula(_ context.Context, formula Formula) error {
	stored, ok := m.formulas[formula.ID]
	if !ok {
		return ErrNotFound
	}
	formula.Lines = stored.Lines
	m.formulas[formula.ID] = &formula
	return nil
}

func (m *memRepo) InsertBatch(_ context.Context, batch Batch) (int64, error) {
	id := m.nextBatch
	m.nextBatch++
	batch.ID = id
	m.batches[id] = &batch
	return id, nil
}

func (m *memRepo) InsertBatchLines(_ context.Context, batchID int64, lines []BatchLine) error {
	batch, ok := m.batches[batchID]
	if !ok {
		return ErrNotFound
	}
	batch.Lines = lines
	return nil
}

type stubIssuer struct {
	issued []inventory.IssueInput
	fail   error
}

func (s *stubIssuer) Issue(_ context.Context, input inventory.IssueInput) (inventory.StockCardEntry, error) {
	if s.fail != nil {
		return inventory.StockCardEntry{}, s.fail
	}
	s.issued = append(s.issued, input)
	return inventory.StockCardEntry{MovementCode: input.Code}, nil
}

func newTestService(t *testing.T) (*Service, *memRepo, *stubIssuer) {
	t.Helper()
	repo := newMemRepo()
	issuer := &stubIssuer{}
	svc := NewService(repo, issuer, nil)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })
	return svc, repo, issuer
}

func validLines() []FormulaLine {
	return []FormulaLine{
		{MaterialID: 1, Percent: 80},
		{MaterialID: 2, Percent: 15},
		{MaterialID: 3, Percent: 5},
	}
}

func TestCreateFormulaValidatesPercentSum(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateFormula(ctx, Formula{Code: "F1", Name: "HD Clear", Lines: []FormulaLine{
		{MaterialID: 1, Percent: 80},
		{MaterialID: 2, Percent: 15},
	}}, 1)
	require.ErrorIs(t, err, ErrPercentSum)

	_, err = svc.CreateFormula(ctx, Formula{Code: "F1", Name: "HD Clear", Lines: nil}, 1)
	require.ErrorIs(t, err, ErrNoLines)

	formula, err := svc.CreateFormula(ctx, Formula{Code: "F1", Name: "HD Clear", Lines: validLines()}, 1)
	require.NoError(t, err)
	require.True(t, formula.Active)
	require.Len(t, formula.Lines, 3)
}

func TestCreateFormulaRejectsDuplicateMaterial(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateFormula(context.Background(), Formula{Code: "F1", Name: "X", Lines: []FormulaLine{
		{MaterialID: 1, Percent: 50},
		{MaterialID: 1, Percent: 50},
	}}, 1)
	require.ErrorIs(t, err, ErrDuplicateMaterial)
}

func TestCreateFormulaToleratesFloatDrift(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.CreateFormula(context.Background(), Formula{Code: "F1", Name: "X", Lines: []FormulaLine{
		{MaterialID: 1, Percent: 33.33},
		{MaterialID: 2, Percent: 33.33},
		{MaterialID: 3, Percent: 33.34},
	}}, 1)
	require.NoError(t, err)
}

func TestMixBatchSplitsWeightByPercent(t *testing.T) {
	svc, _, issuer := newTestService(t)
	ctx := context.Background()

	formula, err := svc.CreateFormula(ctx, Formula{Code: "F1", Name: "HD Clear", Lines: validLines()}, 1)
	require.NoError(t, err)

	jobOrderID := int64(42)
	batch, err := svc.MixBatch(ctx, formula.ID, &jobOrderID, 200, 9)
	require.NoError(t, err)

	require.Len(t, batch.Lines, 3)
	require.InDelta(t, 160.0, batch.Lines[0].Qty, 1e-9)
	require.InDelta(t, 30.0, batch.Lines[1].Qty, 1e-9)
	require.InDelta(t, 10.0, batch.Lines[2].Qty, 1e-9)

	require.Len(t, issuer.issued, 3)
	require.Equal(t, "mixing", issuer.issued[0].RefModule)
	require.Equal(t, 160.0, issuer.issued[0].Qty)
}

func TestMixBatchRejectsInactiveFormula(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	formula, err := svc.CreateFormula(ctx, Formula{Code: "F1", Name: "X", Lines: validLines()}, 1)
	require.NoError(t, err)
	_, err = svc.UpdateFormula(ctx, formula.ID, "", false, validLines(), 1)
	require.NoError(t, err)

	_, err = svc.MixBatch(ctx, formula.ID, nil, 100, 1)
	require.ErrorIs(t, err, ErrInactiveFormula)
}

func TestMixBatchPropagatesStockError(t *testing.T) {
	svc, _, issuer := newTestService(t)
	ctx := context.Background()

	formula, err := svc.CreateFormula(ctx, Formula{Code: "F1", Name: "X", Lines: validLines()}, 1)
	require.NoError(t, err)

	issuer.fail = inventory.ErrNegativeStock
	_, err = svc.MixBatch(ctx, formula.ID, nil, 100, 1)
	require.ErrorIs(t, err, inventory.ErrNegativeStock)
}

func TestMixBatchRejectsZeroWeight(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, err := svc.MixBatch(context.Background(), 1, nil, 0, 1)
	require.ErrorIs(t, err, ErrInvalidWeight)
}
