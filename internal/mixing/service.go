package mixing

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/polyfab/polyfab/internal/inventory"
	"github.com/polyfab/polyfab/internal/shared"
)

// percentTolerance absorbs float drift when checking the 100% sum.
const percentTolerance = 0.01

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetFormula(ctx context.Context, id int64) (Formula, error)
	ListFormulas(ctx context.Context, activeOnly bool) ([]Formula, error)
	GetBatch(ctx context.Context, id int64) (Batch, error)
	ListBatches(ctx context.Context, jobOrderID *int64, limit, offset int) ([]Batch, int, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	InsertFormula(ctx context.Context, formula Formula) (int64, error)
	ReplaceFormulaLines(ctx context.Context, formulaID int64, lines []FormulaLine) error
	GetFormulaForUpdate(ctx context.Context, id int64) (Formula, error)
	UpdateFormula(ctx context.Context, formula Formula) error
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	InsertBatchLines(ctx context.Context, batchID int64, lines []BatchLine) error
}

// StockIssuer consumes raw material for a batch. The inventory service
// implements it; batches reference their movements through RefID.
type StockIssuer interface {
	Issue(ctx context.Context, input inventory.IssueInput) (inventory.StockCardEntry, error)
}

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates formulas and batch mixing.
type Service struct {
	repo  RepositoryPort
	stock StockIssuer
	audit AuditPort
	now   func() time.Time
}

// NewService builds the mixing service.
func NewService(repo RepositoryPort, stock StockIssuer, audit AuditPort) *Service {
	return &Service{repo: repo, stock: stock, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// CreateFormula registers a blend recipe after validating its lines.
func (s *Service) CreateFormula(ctx context.Context, formula Formula, actorID int64) (Formula, error) {
	if err := validateLines(formula.Lines); err != nil {
		return Formula{}, err
	}
	formula.Active = true
	formula.CreatedBy = actorID
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertFormula(ctx, formula)
		if err != nil {
			return err
		}
		formula.ID = id
		return tx.ReplaceFormulaLines(ctx, id, formula.Lines)
	})
	if err != nil {
		return Formula{}, err
	}
	s.recordAudit(ctx, actorID, "formula:create", formula.ID, map[string]any{"code": formula.Code})
	return formula, nil
}

// UpdateFormula replaces a formula's name, active flag and lines.
func (s *Service) UpdateFormula(ctx context.Context, id int64, name string, active bool, lines []FormulaLine, actorID int64) (Formula, error) {
	if err := validateLines(lines); err != nil {
		return Formula{}, err
	}
	var updated Formula
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		formula, err := tx.GetFormulaForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if name != "" {
			formula.Name = name
		}
		formula.Active = active
		if err := tx.UpdateFormula(ctx, formula); err != nil {
			return err
		}
		if err := tx.ReplaceFormulaLines(ctx, id, lines); err != nil {
			return err
		}
		formula.Lines = lines
		updated = formula
		return nil
	})
	if err != nil {
		return Formula{}, err
	}
	s.recordAudit(ctx, actorID, "formula:update", id, nil)
	return updated, nil
}

// GetFormula loads one formula with its lines.
func (s *Service) GetFormula(ctx context.Context, id int64) (Formula, error) {
	return s.repo.GetFormula(ctx, id)
}

// ListFormulas lists recipes, optionally active ones only.
func (s *Service) ListFormulas(ctx context.Context, activeOnly bool) ([]Formula, error) {
	return s.repo.ListFormulas(ctx, activeOnly)
}

// MixBatch weighs out a batch from a formula and issues each component
// from raw material stock. Issues run after the batch commits; a failed
// issue is reported with the failing material named.
func (s *Service) MixBatch(ctx context.Context, formulaID int64, jobOrderID *int64, totalKg float64, actorID int64) (Batch, error) {
	if totalKg <= 0 {
		return Batch{}, ErrInvalidWeight
	}
	formula, err := s.repo.GetFormula(ctx, formulaID)
	if err != nil {
		return Batch{}, err
	}
	if !formula.Active {
		return Batch{}, ErrInactiveFormula
	}

	now := s.now().UTC()
	batch := Batch{
		Code:       fmt.Sprintf("MIX-%s-%d", now.Format("20060102"), now.UnixNano()%1e6),
		FormulaID:  formulaID,
		JobOrderID: jobOrderID,
		TotalKg:    totalKg,
		MixedBy:    actorID,
		MixedAt:    now,
	}
	for _, line := range formula.Lines {
		batch.Lines = append(batch.Lines, BatchLine{
			MaterialID: line.MaterialID,
			Qty:        totalKg * line.Percent / 100,
		})
	}

	batchRef := uuid.NewString()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertBatch(ctx, batch)
		if err != nil {
			return err
		}
		batch.ID = id
		return tx.InsertBatchLines(ctx, id, batch.Lines)
	})
	if err != nil {
		return Batch{}, err
	}

	// Stock issues run after the batch header commits; each carries the
	// batch reference so the stock card ties back to the mix.
	for _, line := range batch.Lines {
		_, err := s.stock.Issue(ctx, inventory.IssueInput{
			Code:       fmt.Sprintf("%s-M%d", batch.Code, line.MaterialID),
			MaterialID: line.MaterialID,
			Qty:        line.Qty,
			Note:       "batch " + batch.Code,
			ActorID:    actorID,
			RefModule:  "mixing",
			RefID:      batchRef,
		})
		if err != nil {
			return Batch{}, fmt.Errorf("mixing: issue material %d: %w", line.MaterialID, err)
		}
	}

	s.recordAudit(ctx, actorID, "batch:mix", batch.ID, map[string]any{"code": batch.Code, "total_kg": totalKg})
	return batch, nil
}

// GetBatch loads one batch with its lines.
func (s *Service) GetBatch(ctx context.Context, id int64) (Batch, error) {
	return s.repo.GetBatch(ctx, id)
}

// ListBatches pages batches, optionally scoped to one job order.
func (s *Service) ListBatches(ctx context.Context, jobOrderID *int64, limit, offset int) ([]Batch, int, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListBatches(ctx, jobOrderID, limit, offset)
}

func validateLines(lines []FormulaLine) error {
	if len(lines) == 0 {
		return ErrNoLines
	}
	seen := map[int64]bool{}
	sum := 0.0
	for _, line := range lines {
		if line.MaterialID == 0 || line.Percent <= 0 {
			return fmt.Errorf("%w: material and positive percent required", ErrPercentSum)
		}
		if seen[line.MaterialID] {
			return ErrDuplicateMaterial
		}
		seen[line.MaterialID] = true
		sum += line.Percent
	}
	if math.Abs(sum-100) > percentTolerance {
		return fmt.Errorf("%w: got %.2f", ErrPercentSum, sum)
	}
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "mixing",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
