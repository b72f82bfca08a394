package inventory

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/polyfab/polyfab/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetMaterial(ctx context.Context, id int64) (Material, error)
	GetMaterialByCode(ctx context.Context, code string) (Material, error)
	ListMaterials(ctx context.Context, limit, offset int) ([]Material, int, error)
	GetBalance(ctx context.Context, materialID int64) (Balance, error)
	GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error)
	ListLowStock(ctx context.Context) ([]LowStockItem, error)
}

// TxRepository exposes the transactional operations used by movements.
type TxRepository interface {
	InsertMaterial(ctx context.Context, material Material) (int64, error)
	UpdateMaterial(ctx context.Context, material Material) error
	GetMaterialForUpdate(ctx context.Context, id int64) (Material, error)
	GetBalanceForUpdate(ctx context.Context, materialID int64) (Balance, error)
	UpsertBalance(ctx context.Context, balance Balance) error
	InsertMovement(ctx context.Context, movement Movement) (int64, error)
	InsertCardEntry(ctx context.Context, entry StockCardEntry, materialID, movementID int64) error
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards against duplicated submissions.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service coordinates material stock operations. Balances carry a
// moving-average cost; every movement rewrites the average inside the
// same transaction as the movement row.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	idempotency IdempotencyPort
	allowNeg    bool
	integration IntegrationHandler
	now         func() time.Time
}

// ServiceConfig groups optional settings.
type ServiceConfig struct {
	AllowNegativeStock bool
}

// NewService builds Service.
func NewService(repo RepositoryPort, audit AuditPort, idem IdempotencyPort, cfg ServiceConfig, integration IntegrationHandler) *Service {
	return &Service{
		repo:        repo,
		audit:       audit,
		idempotency: idem,
		allowNeg:    cfg.AllowNegativeStock,
		integration: integration,
		now:         time.Now,
	}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// WithIntegration installs the event fan-out after construction.
func (s *Service) WithIntegration(handler IntegrationHandler) {
	s.integration = handler
}

// CreateMaterial registers a raw material master record.
func (s *Service) CreateMaterial(ctx context.Context, material Material, actorID int64) (Material, error) {
	if material.Code == "" || material.Name == "" {
		return Material{}, errors.New("inventory: code and name required")
	}
	if material.Unit == "" {
		material.Unit = "kg"
	}
	if material.Category == "" {
		material.Category = CategoryOther
	}
	if material.ReorderLevel < 0 {
		return Material{}, ErrInvalidQuantity
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertMaterial(ctx, material)
		if err != nil {
			return err
		}
		material.ID = id
		return nil
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, actorID, "material:create", material.ID, map[string]any{"code": material.Code})
	return material, nil
}

// UpdateMaterial edits master data fields.
func (s *Service) UpdateMaterial(ctx context.Context, material Material, actorID int64) (Material, error) {
	if material.ID == 0 {
		return Material{}, ErrMaterialNotFound
	}
	if material.ReorderLevel < 0 {
		return Material{}, ErrInvalidQuantity
	}
	var updated Material
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetMaterialForUpdate(ctx, material.ID)
		if err != nil {
			return err
		}
		if material.Name != "" {
			current.Name = material.Name
		}
		if material.Category != "" {
			current.Category = material.Category
		}
		if material.Unit != "" {
			current.Unit = material.Unit
		}
		current.ReorderLevel = material.ReorderLevel
		if err := tx.UpdateMaterial(ctx, current); err != nil {
			return err
		}
		updated = current
		return nil
	})
	if err != nil {
		return Material{}, err
	}
	s.recordAudit(ctx, actorID, "material:update", updated.ID, nil)
	return updated, nil
}

// GetMaterial loads one material with its balance.
func (s *Service) GetMaterial(ctx context.Context, id int64) (Material, Balance, error) {
	material, err := s.repo.GetMaterial(ctx, id)
	if err != nil {
		return Material{}, Balance{}, err
	}
	balance, err := s.repo.GetBalance(ctx, id)
	if err != nil && !errors.Is(err, ErrBalanceNotFound) {
		return Material{}, Balance{}, err
	}
	if errors.Is(err, ErrBalanceNotFound) {
		balance = Balance{MaterialID: id}
	}
	return material, balance, nil
}

// ListMaterials pages through the material master.
func (s *Service) ListMaterials(ctx context.Context, limit, offset int) ([]Material, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListMaterials(ctx, limit, offset)
}

// Receive posts an inbound receipt and raises the moving-average cost
// toward the receipt's unit cost.
func (s *Service) Receive(ctx context.Context, input ReceiveInput) (StockCardEntry, error) {
	if input.Qty <= 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if input.UnitCost < 0 {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:       input.Code,
		MaterialID: input.MaterialID,
		QtyChange:  input.Qty,
		UnitCost:   input.UnitCost,
		Type:       MovementTypeIn,
		Note:       input.Note,
		ActorID:    input.ActorID,
		RefModule:  input.RefModule,
		RefID:      input.RefID,
	})
}

// Issue posts an outbound consumption at the current average cost.
func (s *Service) Issue(ctx context.Context, input IssueInput) (StockCardEntry, error) {
	if input.Qty <= 0 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	return s.postMovement(ctx, movementParams{
		Code:       input.Code,
		MaterialID: input.MaterialID,
		QtyChange:  -input.Qty,
		Type:       MovementTypeOut,
		Note:       input.Note,
		ActorID:    input.ActorID,
		RefModule:  input.RefModule,
		RefID:      input.RefID,
	})
}

// Adjust posts a stocktake correction in either direction.
func (s *Service) Adjust(ctx context.Context, input AdjustInput) (StockCardEntry, error) {
	if math.Abs(input.Qty) < 1e-9 {
		return StockCardEntry{}, ErrInvalidQuantity
	}
	if input.Qty > 0 && input.UnitCost < 0 {
		return StockCardEntry{}, ErrInvalidUnitCost
	}
	return s.postMovement(ctx, movementParams{
		Code:       input.Code,
		MaterialID: input.MaterialID,
		QtyChange:  input.Qty,
		UnitCost:   input.UnitCost,
		Type:       MovementTypeAdjust,
		Note:       input.Note,
		ActorID:    input.ActorID,
	})
}

// GetStockCard lists stock card entries for one material.
func (s *Service) GetStockCard(ctx context.Context, filter StockCardFilter) ([]StockCardEntry, error) {
	if filter.MaterialID == 0 {
		return nil, ErrMaterialNotFound
	}
	if filter.Limit <= 0 || filter.Limit > 1000 {
		filter.Limit = 500
	}
	return s.repo.GetStockCard(ctx, filter)
}

// ListLowStock returns materials at or below their reorder level. The
// worker's nightly scan uses this to raise alerts.
func (s *Service) ListLowStock(ctx context.Context) ([]LowStockItem, error) {
	return s.repo.ListLowStock(ctx)
}

type movementParams struct {
	Code       string
	MaterialID int64
	QtyChange  float64
	UnitCost   float64
	Type       MovementType
	Note       string
	ActorID    int64
	RefModule  string
	RefID      string
}

func (s *Service) postMovement(ctx context.Context, params movementParams) (StockCardEntry, error) {
	if params.MaterialID == 0 {
		return StockCardEntry{}, ErrMaterialNotFound
	}
	now := s.now().UTC()
	code := params.Code
	if code == "" {
		code = fmt.Sprintf("MV-%d", now.UnixNano())
	}
	if params.RefID != "" {
		if _, err := uuid.Parse(params.RefID); err != nil {
			return StockCardEntry{}, fmt.Errorf("inventory: invalid ref id: %w", err)
		}
	}

	key := fmt.Sprintf("%s:%s:%d", params.Type, code, params.MaterialID)
	insertedKey := false
	if s.idempotency != nil {
		if err := s.idempotency.CheckAndInsert(ctx, key, "inventory"); err != nil {
			return StockCardEntry{}, err
		}
		insertedKey = true
	}

	var card StockCardEntry
	var material Material
	var newQty float64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		material, err = tx.GetMaterialForUpdate(ctx, params.MaterialID)
		if err != nil {
			return err
		}
		balance, err := tx.GetBalanceForUpdate(ctx, params.MaterialID)
		if err != nil && !errors.Is(err, ErrBalanceNotFound) {
			return err
		}
		if errors.Is(err, ErrBalanceNotFound) {
			balance = Balance{MaterialID: params.MaterialID}
		}
		qtyChange := params.QtyChange
		newQty = balance.Qty + qtyChange
		if !s.allowNeg && newQty < -0.0001 {
			return ErrNegativeStock
		}
		var unitCost, newAvg float64
		if qtyChange > 0 {
			unitCost = params.UnitCost
			totalCost := balance.Qty*balance.AvgCost + qtyChange*unitCost
			if newQty != 0 {
				newAvg = totalCost / newQty
			}
		} else {
			unitCost = balance.AvgCost
			if math.Abs(newQty) < 0.0001 {
				newQty = 0
			}
			if newQty <= 0 {
				newAvg = 0
			} else {
				newAvg = balance.AvgCost
			}
		}
		movementID, err := tx.InsertMovement(ctx, Movement{
			Code:       code,
			Type:       params.Type,
			MaterialID: params.MaterialID,
			Qty:        qtyChange,
			UnitCost:   unitCost,
			RefModule:  params.RefModule,
			RefID:      params.RefID,
			Note:       params.Note,
			PostedAt:   now,
			CreatedBy:  params.ActorID,
		})
		if err != nil {
			return err
		}
		balance.Qty = newQty
		balance.AvgCost = newAvg
		if err := tx.UpsertBalance(ctx, balance); err != nil {
			return err
		}
		card = StockCardEntry{
			MovementCode: code,
			Type:         params.Type,
			PostedAt:     now,
			QtyIn:        math.Max(qtyChange, 0),
			QtyOut:       math.Max(-qtyChange, 0),
			BalanceQty:   newQty,
			UnitCost:     unitCost,
			BalanceCost:  newAvg,
			Note:         params.Note,
		}
		return tx.InsertCardEntry(ctx, card, params.MaterialID, movementID)
	})
	if err != nil {
		if insertedKey {
			_ = s.idempotency.Delete(ctx, key)
		}
		return StockCardEntry{}, err
	}

	s.recordAudit(ctx, params.ActorID, "movement:"+string(params.Type), params.MaterialID, map[string]any{
		"code": code, "qty": params.QtyChange,
	})
	if s.integration != nil {
		_ = s.integration.HandleMovementPosted(ctx, MovementPostedEvent{
			Code:       code,
			Type:       params.Type,
			MaterialID: params.MaterialID,
			Qty:        params.QtyChange,
			BalanceQty: newQty,
			PostedAt:   now,
		})
		if material.ReorderLevel > 0 && newQty <= material.ReorderLevel {
			_ = s.integration.HandleLowStock(ctx, LowStockEvent{
				MaterialID:   material.ID,
				MaterialCode: material.Code,
				BalanceQty:   newQty,
				ReorderLevel: material.ReorderLevel,
				ObservedAt:   now,
			})
		}
	}
	return card, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "inventory",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
