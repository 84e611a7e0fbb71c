package core

import (
	"context"
	"sort"

	"freshchain/pkg/domain"
)

// BatchProjection is the full read-only view of a batch handed to external
// viewers, shaped after the on-chain history tuple the customer page reads.
type BatchProjection struct {
	ID            uint64                 `json:"id"`
	Name          string                 `json:"name"`
	Quantity      int                    `json:"quantity"`
	ProductClass  string                 `json:"product_class"`
	Expiry        string                 `json:"expiry"`
	Collateral    uint64                 `json:"collateral"`
	RequiredStake uint64                 `json:"required_stake"`
	Producer      domain.Identity        `json:"producer"`
	CurrentOwner  domain.Identity        `json:"current_owner"`
	Stage         domain.Role            `json:"stage"`
	Status        domain.BatchStatus     `json:"status"`
	Outcome       domain.Outcome         `json:"outcome"`
	Violation     bool                   `json:"violation"`
	Escrow        *domain.EscrowReceipt  `json:"escrow,omitempty"`
	SensorLog     []domain.SensorReading `json:"sensor_log"`
	CustodyTrail  []domain.CustodyEvent  `json:"custody_trail"`
}

// Project builds the external read-only projection of a batch.
func Project(b domain.Batch) BatchProjection {
	return BatchProjection{
		ID:            b.ID,
		Name:          b.Name,
		Quantity:      b.Quantity,
		ProductClass:  b.ProductClass,
		Expiry:        b.Expiry.Format("2006-01-02"),
		Collateral:    b.Collateral,
		RequiredStake: b.RequiredStake,
		Producer:      b.Producer,
		CurrentOwner:  b.CurrentOwner,
		Stage:         b.Stage,
		Status:        b.Status,
		Outcome:       b.Outcome,
		Violation:     b.Violation,
		Escrow:        b.Escrow,
		SensorLog:     b.SensorLog,
		CustodyTrail:  b.CustodyTrail,
	}
}

// GetBatch returns the full projection of a batch. Reads are public by
// design: traceability queries carry no caller identity.
func (s *Service) GetBatch(ctx context.Context, id uint64) (BatchProjection, error) {
	var out BatchProjection
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		b, ok := v.FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		out = Project(b)
		return nil
	})
	return out, err
}

// SensorHistory returns the append-only telemetry log of a batch.
func (s *Service) SensorHistory(ctx context.Context, id uint64) ([]domain.SensorReading, error) {
	var out []domain.SensorReading
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		b, ok := v.FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		out = b.SensorLog
		return nil
	})
	return out, err
}

// CustodyTrail returns the ordered custody hand-offs of a batch.
func (s *Service) CustodyTrail(ctx context.Context, id uint64) ([]domain.CustodyEvent, error) {
	var out []domain.CustodyEvent
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		b, ok := v.FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		out = b.CustodyTrail
		return nil
	})
	return out, err
}

// ListBatches returns projections of all batches ordered by ID.
func (s *Service) ListBatches(ctx context.Context) ([]BatchProjection, error) {
	var out []BatchProjection
	err := s.store.View(ctx, func(v domain.TransactionView) error {
		batches := v.ListBatches()
		sort.Slice(batches, func(i, j int) bool { return batches[i].ID < batches[j].ID })
		out = make([]BatchProjection, 0, len(batches))
		for _, b := range batches {
			out = append(out, Project(b))
		}
		return nil
	})
	return out, err
}

// EscrowLedgerState returns the committed staking counters.
func (s *Service) EscrowLedgerState() domain.EscrowLedger {
	return s.store.Ledger()
}
