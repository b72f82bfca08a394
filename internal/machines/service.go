package machines

import (
	"context"
	"errors"
	"fmt"

	"github.com/polyfab/polyfab/internal/shared"
)

// RepositoryPort abstracts persistence for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Machine, error)
	List(ctx context.Context, filter ListFilter) ([]Machine, int, error)
}

// TxRepository exposes the transactional operations used by the service.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id int64) (Machine, error)
	Insert(ctx context.Context, machine Machine) (int64, error)
	Update(ctx context.Context, machine Machine) error
}

// ListFilter narrows machine listings.
type ListFilter struct {
	Type   *MachineType
	Status *MachineStatus
	Limit  int
	Offset int
}

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the machine registry.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService builds the machines service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// Create registers a machine.
func (s *Service) Create(ctx context.Context, machine Machine, actorID int64) (Machine, error) {
	if machine.Code == "" || machine.Name == "" {
		return Machine{}, errors.New("machines: code and name required")
	}
	if machine.Status == "" {
		machine.Status = StatusActive
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		id, err := tx.Insert(ctx, machine)
		if err != nil {
			return err
		}
		machine.ID = id
		return nil
	})
	if err != nil {
		return Machine{}, err
	}
	s.recordAudit(ctx, actorID, "machine:create", machine.ID, map[string]any{"code": machine.Code})
	return machine, nil
}

// Update edits a machine, enforcing the status lifecycle.
func (s *Service) Update(ctx context.Context, id int64, patch Machine, actorID int64) (Machine, error) {
	var updated Machine
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		machine, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if patch.Name != "" {
			machine.Name = patch.Name
		}
		if patch.Type != "" {
			machine.Type = patch.Type
		}
		if patch.Status != "" {
			if !validStatusChange(machine.Status, patch.Status) {
				return fmt.Errorf("%w: %s -> %s not allowed", ErrRetired, machine.Status, patch.Status)
			}
			machine.Status = patch.Status
		}
		if patch.CapacityKgDay > 0 {
			machine.CapacityKgDay = patch.CapacityKgDay
		}
		if patch.Notes != nil {
			machine.Notes = patch.Notes
		}
		if err := tx.Update(ctx, machine); err != nil {
			return err
		}
		updated = machine
		return nil
	})
	if err != nil {
		return Machine{}, err
	}
	s.recordAudit(ctx, actorID, "machine:update", id, map[string]any{"status": string(updated.Status)})
	return updated, nil
}

// Get loads one machine.
func (s *Service) Get(ctx context.Context, id int64) (Machine, error) {
	return s.repo.Get(ctx, id)
}

// List pages the registry.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Machine, int, error) {
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repo.List(ctx, filter)
}

// EnsureAssignable verifies a machine can take a new job order.
func (s *Service) EnsureAssignable(ctx context.Context, id int64) error {
	machine, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if machine.Status == StatusRetired {
		return ErrRetired
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
		Entity:   "machines",
		EntityID: fmt.Sprintf("%d", entityID),
		Meta:     meta,
	})
}
