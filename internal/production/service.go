package production

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/polyfab/polyfab/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrder(ctx context.Context, id int64) (JobOrder, error)
	ListOrders(ctx context.Context, filter ListFilter) ([]JobOrder, int, error)
	ListRolls(ctx context.Context, orderID int64) ([]Roll, error)
	ListActiveOrderIDs(ctx context.Context) ([]int64, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetOrderForUpdate(ctx context.Context, id int64) (JobOrder, error)
	InsertOrder(ctx context.Context, order JobOrder) (int64, error)
	UpdateOrder(ctx context.Context, order JobOrder) error
	UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus) error
	UpdateCachedTotals(ctx context.Context, id int64, produced, waste float64) error
	DeleteOrder(ctx context.Context, id int64) error
	GetRollForUpdate(ctx context.Context, rollID int64) (Roll, error)
	NextRollNumber(ctx context.Context, orderID int64) (int, error)
	InsertRoll(ctx context.Context, roll Roll) (int64, error)
	UpdateRoll(ctx context.Context, roll Roll) error
	DeleteRoll(ctx context.Context, rollID int64) error
	ListRolls(ctx context.Context, orderID int64) ([]Roll, error)
}

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates job order and roll operations. Every roll mutation
// refreshes the job order's cached produced/waste columns inside the same
// transaction, so the cache can only ever trail the ledger between the
// commit and the next read, never contradict it.
type Service struct {
	repo        RepositoryPort
	audit       AuditPort
	integration IntegrationHandler
	now         func() time.Time
}

// NewService builds the production service.
func NewService(repo RepositoryPort, audit AuditPort, integration IntegrationHandler) *Service {
	return &Service{repo: repo, audit: audit, integration: integration, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// WithIntegration installs the event fan-out after construction. The
// dashboard reads through this service, so the hooks can only be built
// once the service exists.
func (s *Service) WithIntegration(handler IntegrationHandler) {
	s.integration = handler
}

// CreateOrder registers a new job order in pending state.
func (s *Service) CreateOrder(ctx context.Context, req CreateJobOrderRequest, actorID int64) (JobOrder, error) {
	if req.Quantity.Float() <= 0 {
		return JobOrder{}, ErrInvalidQuantity
	}
	order := JobOrder{
		Code:             req.Code,
		CustomerName:     req.CustomerName,
		ProductName:      req.ProductName,
		TargetQty:        req.Quantity.Float(),
		ProductionStatus: ProductionStatusNotStarted,
		Status:           OrderStatusPending,
		MachineID:        req.MachineID,
		Notes:            req.Notes,
		CreatedBy:        actorID,
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.InsertOrder(ctx, order)
		if err != nil {
			return err
		}
		order.ID = id
		return nil
	})
	if err != nil {
		return JobOrder{}, err
	}
	s.recordAudit(ctx, actorID, "joborder:create", order.ID, map[string]any{"code": order.Code, "quantity": order.TargetQty})
	s.emitOrderChanged(ctx, order.ID, "created")
	return order, nil
}

// GetOrder loads a job order with its rolls and a freshly reconciled
// snapshot.
func (s *Service) GetOrder(ctx context.Context, id int64) (JobOrderWithMetrics, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return JobOrderWithMetrics{}, err
	}
	rolls, err := s.repo.ListRolls(ctx, id)
	if err != nil {
		return JobOrderWithMetrics{}, err
	}
	order.Rolls = rolls
	return JobOrderWithMetrics{JobOrder: order, Metrics: Reconcile(order, rolls)}, nil
}

// ListOrders returns job orders matching the filter, each with its
// snapshot reconciled from the live roll ledger.
func (s *Service) ListOrders(ctx context.Context, filter ListFilter) ([]JobOrderWithMetrics, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	orders, total, err := s.repo.ListOrders(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	result := make([]JobOrderWithMetrics, 0, len(orders))
	for _, order := range orders {
		rolls, err := s.repo.ListRolls(ctx, order.ID)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, JobOrderWithMetrics{JobOrder: order, Metrics: Reconcile(order, rolls)})
	}
	return result, total, nil
}

// UpdateOrder applies header changes, including the author-set production
// status label.
func (s *Service) UpdateOrder(ctx context.Context, id int64, req UpdateJobOrderRequest, actorID int64) (JobOrder, error) {
	var updated JobOrder
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusCompleted || order.Status == OrderStatusCancelled {
			return ErrTerminalStatus
		}
		if req.CustomerName != nil {
			order.CustomerName = *req.CustomerName
		}
		if req.ProductName != nil {
			order.ProductName = *req.ProductName
		}
		if req.Quantity != nil {
			if req.Quantity.Float() <= 0 {
				return ErrInvalidQuantity
			}
			order.TargetQty = req.Quantity.Float()
		}
		if req.ProductionStatus != nil {
			order.ProductionStatus = *req.ProductionStatus
		}
		if req.MachineID != nil {
			order.MachineID = req.MachineID
		}
		if req.Notes != nil {
			order.Notes = req.Notes
		}
		if err := tx.UpdateOrder(ctx, order); err != nil {
			return err
		}
		updated = order
		return nil
	})
	if err != nil {
		return JobOrder{}, err
	}
	s.recordAudit(ctx, actorID, "joborder:update", id, map[string]any{"quantity": updated.TargetQty})
	s.emitOrderChanged(ctx, id, "updated")
	return updated, nil
}

// UpdateOrderStatus moves the workflow state forward. Completed and
// cancelled are terminal.
func (s *Service) UpdateOrderStatus(ctx context.Context, id int64, status OrderStatus, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !validOrderTransition(order.Status, status) {
			if order.Status == OrderStatusCompleted || order.Status == OrderStatusCancelled {
				return ErrTerminalStatus
			}
			return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, order.Status, status)
		}
		return tx.UpdateOrderStatus(ctx, id, status)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "joborder:status", id, map[string]any{"status": string(status)})
	s.emitOrderChanged(ctx, id, "status_changed")
	return nil
}

// DeleteOrder removes a pending job order. Orders with recorded rolls
// must be cancelled instead so the ledger stays auditable.
func (s *Service) DeleteOrder(ctx context.Context, id int64, actorID int64) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.Status != OrderStatusPending {
			return fmt.Errorf("%w: only pending orders can be deleted", ErrInvalidTransition)
		}
		rolls, err := tx.ListRolls(ctx, id)
		if err != nil {
			return err
		}
		if len(rolls) > 0 {
			return errors.New("production: order has rolls, cancel it instead")
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "joborder:delete", id, nil)
	s.emitOrderChanged(ctx, id, "deleted")
	return nil
}

// CreateRoll records the extrusion of a new roll against a job order.
func (s *Service) CreateRoll(ctx context.Context, orderID int64, req CreateRollRequest, actorID int64) (Roll, error) {
	if req.ExtrudingQty.Float() <= 0 {
		return Roll{}, ErrInvalidQuantity
	}
	var roll Roll
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusCompleted || order.Status == OrderStatusCancelled {
			return ErrTerminalStatus
		}
		number, err := tx.NextRollNumber(ctx, orderID)
		if err != nil {
			return err
		}
		extruded := req.ExtrudingQty.Float()
		now := s.now().UTC()
		roll = Roll{
			JobOrderID:   orderID,
			RollNumber:   number,
			ExtrudingQty: &extruded,
			Status:       RollStatusForPrinting,
			ExtrudedBy:   actorID,
			ExtrudedAt:   now,
		}
		id, err := tx.InsertRoll(ctx, roll)
		if err != nil {
			return err
		}
		roll.ID = id
		return s.refreshTotals(ctx, tx, orderID)
	})
	if err != nil {
		return Roll{}, err
	}
	s.recordAudit(ctx, actorID, "roll:extrude", roll.ID, map[string]any{"job_order_id": orderID, "qty": req.ExtrudingQty.Float()})
	s.emitRollStage(ctx, roll, RollStageExtruded, req.ExtrudingQty.Float(), actorID)
	return roll, nil
}

// RecordPrinting advances a roll from the printing station.
func (s *Service) RecordPrinting(ctx context.Context, rollID int64, req StageQtyRequest, actorID int64) (Roll, error) {
	return s.advanceRoll(ctx, rollID, RollStatusForPrinting, RollStagePrinted, req.Quantity.Float(), actorID,
		func(roll *Roll, q float64, at time.Time) {
			roll.PrintingQty = &q
			roll.PrintedBy = &actorID
			roll.PrintedAt = &at
		})
}

// RecordCutting advances a roll from the cutting station and records the
// final usable weight.
func (s *Service) RecordCutting(ctx context.Context, rollID int64, req StageQtyRequest, actorID int64) (Roll, error) {
	return s.advanceRoll(ctx, rollID, RollStatusForCutting, RollStageCut, req.Quantity.Float(), actorID,
		func(roll *Roll, q float64, at time.Time) {
			roll.CuttingQty = &q
			roll.CutBy = &actorID
			roll.CutAt = &at
		})
}

// ReceiveRoll marks a cut roll as received into the warehouse, which is
// the point its cutting weight starts counting as produced output.
func (s *Service) ReceiveRoll(ctx context.Context, rollID int64, actorID int64) (Roll, error) {
	return s.advanceRoll(ctx, rollID, RollStatusForReceiving, RollStageReceived, 0, actorID,
		func(roll *Roll, _ float64, at time.Time) {
			roll.ReceivedBy = &actorID
			roll.ReceivedAt = &at
		})
}

func (s *Service) advanceRoll(ctx context.Context, rollID int64, from RollStatus, stage RollStage, quantity float64, actorID int64, apply func(*Roll, float64, time.Time)) (Roll, error) {
	if stage != RollStageReceived && quantity <= 0 {
		return Roll{}, ErrInvalidQuantity
	}
	var roll Roll
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		roll, err = tx.GetRollForUpdate(ctx, rollID)
		if err != nil {
			return err
		}
		if roll.Status != from {
			return fmt.Errorf("%w: have %s, need %s", ErrStageOrder, roll.Status, from)
		}
		next, ok := nextStatus(roll.Status)
		if !ok {
			return ErrStageOrder
		}
		order, err := tx.GetOrderForUpdate(ctx, roll.JobOrderID)
		if err != nil {
			return err
		}
		if order.Status == OrderStatusCompleted || order.Status == OrderStatusCancelled {
			return ErrTerminalStatus
		}
		apply(&roll, quantity, s.now().UTC())
		roll.Status = next
		if err := tx.UpdateRoll(ctx, roll); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, roll.JobOrderID)
	})
	if err != nil {
		return Roll{}, err
	}
	s.recordAudit(ctx, actorID, "roll:"+string(stage), rollID, map[string]any{"job_order_id": roll.JobOrderID, "qty": quantity})
	s.emitRollStage(ctx, roll, stage, quantity, actorID)
	return roll, nil
}

// UpdateRoll corrects stage weights already recorded on a roll. Weights
// for stages the roll has not reached stay untouchable.
func (s *Service) UpdateRoll(ctx context.Context, rollID int64, req UpdateRollRequest, actorID int64) (Roll, error) {
	var roll Roll
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		roll, err = tx.GetRollForUpdate(ctx, rollID)
		if err != nil {
			return err
		}
		if req.ExtrudingQty != nil {
			q := req.ExtrudingQty.Float()
			if q <= 0 {
				return ErrInvalidQuantity
			}
			roll.ExtrudingQty = &q
		}
		if req.PrintingQty != nil {
			if roll.PrintedAt == nil {
				return fmt.Errorf("%w: printing has not run", ErrStageOrder)
			}
			q := req.PrintingQty.Float()
			if q <= 0 {
				return ErrInvalidQuantity
			}
			roll.PrintingQty = &q
		}
		if req.CuttingQty != nil {
			if roll.CutAt == nil {
				return fmt.Errorf("%w: cutting has not run", ErrStageOrder)
			}
			q := req.CuttingQty.Float()
			if q <= 0 {
				return ErrInvalidQuantity
			}
			roll.CuttingQty = &q
		}
		if err := tx.UpdateRoll(ctx, roll); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, roll.JobOrderID)
	})
	if err != nil {
		return Roll{}, err
	}
	s.recordAudit(ctx, actorID, "roll:correct", rollID, map[string]any{"job_order_id": roll.JobOrderID})
	s.emitOrderChanged(ctx, roll.JobOrderID, "roll_corrected")
	return roll, nil
}

// DeleteRoll removes a mis-scanned roll and refreshes the order totals.
func (s *Service) DeleteRoll(ctx context.Context, rollID int64, actorID int64) error {
	var orderID int64
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		roll, err := tx.GetRollForUpdate(ctx, rollID)
		if err != nil {
			return err
		}
		orderID = roll.JobOrderID
		if err := tx.DeleteRoll(ctx, rollID); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, orderID)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actorID, "roll:delete", rollID, map[string]any{"job_order_id": orderID})
	s.emitOrderChanged(ctx, orderID, "roll_deleted")
	return nil
}

// RefreshMetrics recomputes and persists the cached totals for one job
// order from its live roll ledger. The worker runs this nightly across
// active orders as a safety net against drift.
func (s *Service) RefreshMetrics(ctx context.Context, orderID int64) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		return s.refreshTotals(ctx, tx, orderID)
	})
}

// ActiveOrderIDs lists job orders still moving through production.
func (s *Service) ActiveOrderIDs(ctx context.Context) ([]int64, error) {
	return s.repo.ListActiveOrderIDs(ctx)
}

// refreshTotals writes the roll-derived produced/waste weights to the
// job order's cached columns inside the current transaction.
func (s *Service) refreshTotals(ctx context.Context, tx TxRepository, orderID int64) error {
	rolls, err := tx.ListRolls(ctx, orderID)
	if err != nil {
		return err
	}
	produced, waste := RollTotals(rolls)
	return tx.UpdateCachedTotals(ctx, orderID, produced, waste)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "production",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}

func (s *Service) emitRollStage(ctx context.Context, roll Roll, stage RollStage, quantity float64, actorID int64) {
	if s.integration == nil {
		return
	}
	_ = s.integration.HandleRollStage(ctx, RollStageEvent{
		JobOrderID: roll.JobOrderID,
		RollID:     roll.ID,
		RollNumber: roll.RollNumber,
		Stage:      stage,
		Quantity:   quantity,
		ActorID:    actorID,
		OccurredAt: s.now().UTC(),
	})
}

func (s *Service) emitOrderChanged(ctx context.Context, orderID int64, action string) {
	if s.integration == nil {
		return
	}
	_ = s.integration.HandleOrderChanged(ctx, OrderChangedEvent{
		JobOrderID: orderID,
		Action:     action,
		OccurredAt: s.now().UTC(),
	})
}

func validOrderTransition(from, to OrderStatus) bool {
	switch from {
	case OrderStatusPending:
		return to == OrderStatusInProgress || to == OrderStatusCancelled
	case OrderStatusInProgress:
		return to == OrderStatusCompleted || to == OrderStatusCancelled
	default:
		return false
	}
}
