package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/polyfab/polyfab/internal/shared"
)

// ErrRefMismatch indicates a token whose reference no longer matches
// the roll, e.g. after a reprint.
var ErrRefMismatch = errors.New("tracking: token does not match roll")

// ScanEvent records one station scan of a roll QR code.
type ScanEvent struct {
	ID         int64     `json:"id"`
	RollID     int64     `json:"roll_id"`
	JobOrderID int64     `json:"job_order_id"`
	Station    string    `json:"station"`
	ScannedBy  int64     `json:"scanned_by"`
	ScannedAt  time.Time `json:"scanned_at"`
}

// RollRef resolves the stored QR reference for a roll.
type RollRef interface {
	QRRefForRoll(ctx context.Context, rollID int64) (string, error)
}

// ScanStore persists scan events.
type ScanStore interface {
	InsertScan(ctx context.Context, event ScanEvent) (int64, error)
	ListScans(ctx context.Context, rollID int64) ([]ScanEvent, error)
}

// LabelStore resolves roll ownership and persists freshly issued refs.
type LabelStore interface {
	RollOrder(ctx context.Context, rollID int64) (int64, error)
	SetRollRef(ctx context.Context, rollID int64, ref string) error
}

// AuditPort records mutations for the audit trail.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service verifies scanned tokens against the roll ledger and keeps the
// scan history.
type Service struct {
	sealer *Sealer
	rolls  RollRef
	scans  ScanStore
	labels LabelStore
	audit  AuditPort
	now    func() time.Time
}

// NewService builds the tracking service.
func NewService(sealer *Sealer, rolls RollRef, scans ScanStore, labels LabelStore, audit AuditPort) *Service {
	return &Service{sealer: sealer, rolls: rolls, scans: scans, labels: labels, audit: audit, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// IssueToken mints a QR token for a roll. The caller persists the
// returned ref on the roll row.
func (s *Service) IssueToken(rollID, jobOrderID int64) (string, string, error) {
	return s.sealer.Issue(rollID, jobOrderID)
}

// Label holds a printable QR token for a roll.
type Label struct {
	RollID     int64  `json:"roll_id"`
	JobOrderID int64  `json:"job_order_id"`
	Token      string `json:"token"`
}

// IssueLabel mints a token for an existing roll and stores its ref, so
// any previously printed label for the roll stops verifying.
func (s *Service) IssueLabel(ctx context.Context, rollID, actorID int64) (Label, error) {
	if s.labels == nil {
		return Label{}, errors.New("tracking: label store not configured")
	}
	orderID, err := s.labels.RollOrder(ctx, rollID)
	if err != nil {
		return Label{}, err
	}
	token, ref, err := s.sealer.Issue(rollID, orderID)
	if err != nil {
		return Label{}, err
	}
	if err := s.labels.SetRollRef(ctx, rollID, ref); err != nil {
		return Label{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "label",
			Entity:   "tracking",
			EntityID: fmt.Sprintf("%d", rollID),
		})
	}
	return Label{RollID: rollID, JobOrderID: orderID, Token: token}, nil
}

// VerifyScan opens a scanned token, checks it against the roll's stored
// reference and records the scan.
func (s *Service) VerifyScan(ctx context.Context, token, station string, actorID int64) (ScanEvent, error) {
	claim, err := s.sealer.Open(token)
	if err != nil {
		return ScanEvent{}, err
	}
	storedRef, err := s.rolls.QRRefForRoll(ctx, claim.RollID)
	if err != nil {
		return ScanEvent{}, err
	}
	if storedRef == "" || storedRef != claim.Ref {
		return ScanEvent{}, ErrRefMismatch
	}
	event := ScanEvent{
		RollID:     claim.RollID,
		JobOrderID: claim.JobOrderID,
		Station:    station,
		ScannedBy:  actorID,
		ScannedAt:  s.now().UTC(),
	}
	id, err := s.scans.InsertScan(ctx, event)
	if err != nil {
		return ScanEvent{}, err
	}
	event.ID = id
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "scan:" + station,
			Entity:   "tracking",
			EntityID: fmt.Sprintf("%d", claim.RollID),
		})
	}
	return event, nil
}

// ScanHistory lists recorded scans for one roll, oldest first.
func (s *Service) ScanHistory(ctx context.Context, rollID int64) ([]ScanEvent, error) {
	return s.scans.ListScans(ctx, rollID)
}
