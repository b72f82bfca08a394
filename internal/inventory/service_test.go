package inventory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/polyfab/polyfab/internal/shared"
)

type memRepo struct {
	materials    map[int64]*Material
	balances     map[int64]*Balance
	cards        map[int64][]StockCardEntry
	nextMaterial int64
	nextMovement int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		materials:    map[int64]*Material{},
		balances:     map[int64]*Balance{},
		cards:        map[int64][]StockCardEntry{},
		nextMaterial: 1,
		nextMovement: 1,
	}
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetMaterial(_ context.Context, id int64) (Material, error) {
	material, ok := m.materials[id]
	if !ok {
		return Material{}, ErrMaterialNotFound
	}
	return *material, nil
}

func (m *memRepo) GetMaterialByCode(_ context.Context, code string) (Material, error) {
	for _, material := range m.materials {
		if material.Code == code {
			return *material, nil
		}
	}
	return Material{}, ErrMaterialNotFound
}

func (m *memRepo) ListMaterials(_ context.Context, _, _ int) ([]Material, int, error) {
	out := []Material{}
	for _, material := range m.materials {
		out = append(out, *material)
	}
	return out, len(out), nil
}

func (m *memRepo) GetBalance(_ context.Context, materialID int64) (Balance, error) {
	balance, ok := m.balances[materialID]
	if !ok {
		return Balance{}, ErrBalanceNotFound
	}
	return *balance, nil
}

func (m *memRepo) GetStockCard(_ context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	return m.cards[filter.MaterialID], nil
}

func (m *memRepo) ListLowStock(_ context.Context) ([]LowStockItem, error) {
	items := []LowStockItem{}
	for id, material := range m.materials {
		balance, ok := m.balances[id]
		if !ok {
			continue
		}
		if material.ReorderLevel > 0 && balance.Qty <= material.ReorderLevel {
			items = append(items, LowStockItem{Material: *material, Balance: *balance})
		}
	}
	return items, nil
}

func (m *memRepo) InsertMaterial(_ context.Context, material Material) (int64, error) {
	for _, existing := range m.materials {
		if existing.Code == material.Code {
			return 0, ErrDuplicateCode
		}
	}
	id := m.nextMaterial
	m.nextMaterial++
	material.ID = id
	m.materials[id] = &material
	return id, nil
}

func (m *memRepo) UpdateMaterial(_ context.Context, material Material) error {
	if _, ok := m.materials[material.ID]; !ok {
		return ErrMaterialNotFound
	}
	m.materials[material.ID] = &material
	return nil
}

func (m *memRepo) GetMaterialForUpdate(ctx context.Context, id int64) (Material, error) {
	return m.GetMaterial(ctx, id)
}

func (m *memRepo) GetBalanceForUpdate(ctx context.Context, materialID int64) (Balance, error) {
	return m.GetBalance(ctx, materialID)
}

func (m *memRepo) UpsertBalance(_ context.Context, balance Balance) error {
	m.balances[balance.MaterialID] = &balance
	return nil
}

func (m *memRepo) InsertMovement(_ context.Context, _ Movement) (int64, error) {
	id := m.nextMovement
	m.nextMovement++
	return id, nil
}

func (m *memRepo) InsertCardEntry(_ context.Context, entry StockCardEntry, materialID, _ int64) error {
	m.cards[materialID] = append(m.cards[materialID], entry)
	return nil
}

type memIdempotency struct {
	keys map[string]bool
}

func (m *memIdempotency) CheckAndInsert(_ context.Context, key, _ string) error {
	if m.keys == nil {
		m.keys = map[string]bool{}
	}
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdempotency) Delete(_ context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

type recordingIntegration struct {
	movements []MovementPostedEvent
	lowStock  []LowStockEvent
}

func (r *recordingIntegration) HandleMovementPosted(_ context.Context, evt MovementPostedEvent) error {
	r.movements = append(r.movements, evt)
	return nil
}

func (r *recordingIntegration) HandleLowStock(_ context.Context, evt LowStockEvent) error {
	r.lowStock = append(r.lowStock, evt)
	return nil
}

func newTestService(t *testing.T) (*Service, *memRepo, *recordingIntegration) {
	t.Helper()
	repo := newMemRepo()
	integration := &recordingIntegration{}
	svc := NewService(repo, nil, &memIdempotency{}, ServiceConfig{}, integration)
	svc.WithNow(func() time.Time { return time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC) })
	return svc, repo, integration
}

func seedMaterial(t *testing.T, svc *Service, reorder float64) Material {
	t.Helper()
	material, err := svc.CreateMaterial(context.Background(), Material{
		Code:         "LDPE-01",
		Name:         "LDPE Resin",
		Category:     CategoryResin,
		ReorderLevel: reorder,
	}, 1)
	require.NoError(t, err)
	return material
}

func TestReceiveComputesMovingAverage(t *testing.T) {
	svc, repo, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 100, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)
	entry, err := svc.Receive(ctx, ReceiveInput{Code: "RC-2", MaterialID: material.ID, Qty: 100, UnitCost: 20, ActorID: 1})
	require.NoError(t, err)

	require.Equal(t, 200.0, entry.BalanceQty)
	require.InDelta(t, 15.0, entry.BalanceCost, 1e-9)
	require.InDelta(t, 15.0, repo.balances[material.ID].AvgCost, 1e-9)
}

func TestIssueUsesAverageCostAndGuardsNegative(t *testing.T) {
	svc, _, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 12, ActorID: 1})
	require.NoError(t, err)

	entry, err := svc.Issue(ctx, IssueInput{Code: "IS-1", MaterialID: material.ID, Qty: 20, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, 30.0, entry.BalanceQty)
	require.InDelta(t, 12.0, entry.UnitCost, 1e-9)

	_, err = svc.Issue(ctx, IssueInput{Code: "IS-2", MaterialID: material.ID, Qty: 31, ActorID: 1})
	require.ErrorIs(t, err, ErrNegativeStock)
}

func TestIssueToZeroResetsAverage(t *testing.T) {
	svc, repo, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 12, ActorID: 1})
	require.NoError(t, err)
	entry, err := svc.Issue(ctx, IssueInput{Code: "IS-1", MaterialID: material.ID, Qty: 50, ActorID: 1})
	require.NoError(t, err)

	require.Equal(t, 0.0, entry.BalanceQty)
	require.Equal(t, 0.0, repo.balances[material.ID].AvgCost)
}

func TestAdjustAllowsNegativeQuantity(t *testing.T) {
	svc, _, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)

	entry, err := svc.Adjust(ctx, AdjustInput{Code: "AJ-1", MaterialID: material.ID, Qty: -5, ActorID: 1})
	require.NoError(t, err)
	require.Equal(t, 45.0, entry.BalanceQty)
	require.Equal(t, 5.0, entry.QtyOut)

	_, err = svc.Adjust(ctx, AdjustInput{Code: "AJ-2", MaterialID: material.ID, Qty: 0, ActorID: 1})
	require.ErrorIs(t, err, ErrInvalidQuantity)
}

func TestDuplicateMovementRejected(t *testing.T) {
	svc, _, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)
	_, err = svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 10, ActorID: 1})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestFailedMovementReleasesIdempotencyKey(t *testing.T) {
	svc, _, _ := newTestService(t)
	material := seedMaterial(t, svc, 0)
	ctx := context.Background()

	// Issue on empty stock fails inside the transaction.
	_, err := svc.Issue(ctx, IssueInput{Code: "IS-1", MaterialID: material.ID, Qty: 10, ActorID: 1})
	require.ErrorIs(t, err, ErrNegativeStock)

	// The key must be free for a retry once stock arrives.
	_, err = svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)
	_, err = svc.Issue(ctx, IssueInput{Code: "IS-1", MaterialID: material.ID, Qty: 10, ActorID: 1})
	require.NoError(t, err)
}

func TestLowStockEventEmitted(t *testing.T) {
	svc, _, integration := newTestService(t)
	material := seedMaterial(t, svc, 20)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 50, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)
	require.Empty(t, integration.lowStock)

	_, err = svc.Issue(ctx, IssueInput{Code: "IS-1", MaterialID: material.ID, Qty: 35, ActorID: 1})
	require.NoError(t, err)
	require.Len(t, integration.lowStock, 1)
	require.Equal(t, 15.0, integration.lowStock[0].BalanceQty)
	require.Equal(t, "LDPE-01", integration.lowStock[0].MaterialCode)
}

func TestCreateMaterialRejectsDuplicateCode(t *testing.T) {
	svc, _, _ := newTestService(t)
	seedMaterial(t, svc, 0)

	_, err := svc.CreateMaterial(context.Background(), Material{Code: "LDPE-01", Name: "Dup"}, 1)
	require.ErrorIs(t, err, ErrDuplicateCode)
}

func TestListLowStock(t *testing.T) {
	svc, _, _ := newTestService(t)
	material := seedMaterial(t, svc, 100)
	ctx := context.Background()

	_, err := svc.Receive(ctx, ReceiveInput{Code: "RC-1", MaterialID: material.ID, Qty: 40, UnitCost: 10, ActorID: 1})
	require.NoError(t, err)

	items, err := svc.ListLowStock(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, material.ID, items[0].Material.ID)
}
