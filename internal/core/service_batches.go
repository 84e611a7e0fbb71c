package core

import (
	"context"

	"freshchain/pkg/domain"
)

// NewBatch carries the producer-supplied parameters for batch creation.
type NewBatch struct {
	ID            uint64
	Name          string
	Quantity      int
	ShelfLifeDays int
	ProductClass  string
	// RequiredStake is the collateral demanded at the first custody
	// transfer. Zero selects the service-wide default.
	RequiredStake uint64
}

// CreateBatch registers a new batch owned by the calling producer. The ID is
// caller-supplied and must never have been used before.
func (s *Service) CreateBatch(ctx context.Context, caller domain.Identity, input NewBatch) (domain.Batch, error) {
	started := s.clock.Now()
	var created domain.Batch
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if err := pausedGuard(reg); err != nil {
			return err
		}
		if !reg.HasRole(caller, RoleProducer) {
			return domain.BatchError(domain.KindNotAuthorized, input.ID, "caller is not a registered producer")
		}
		if input.Name == "" {
			return domain.BatchError(domain.KindInvalidState, input.ID, "batch name is required")
		}
		if input.Quantity <= 0 {
			return domain.BatchError(domain.KindInvalidState, input.ID, "quantity must be positive")
		}
		if input.ShelfLifeDays <= 0 {
			return domain.BatchError(domain.KindInvalidState, input.ID, "shelf life must be positive")
		}
		if _, exists := tx.Snapshot().FindBatch(input.ID); exists {
			return domain.BatchError(domain.KindDuplicateID, input.ID, "batch id already exists")
		}
		required := input.RequiredStake
		if required == 0 {
			required = s.defaultStake
		}
		class := input.ProductClass
		if class == "" {
			class = "default"
		}
		now := s.clock.Now()
		batch := domain.Batch{
			ID:            input.ID,
			Name:          input.Name,
			Quantity:      input.Quantity,
			ProductClass:  class,
			Expiry:        now.AddDate(0, 0, input.ShelfLifeDays),
			Producer:      caller,
			CurrentOwner:  caller,
			Stage:         RoleProducer,
			RequiredStake: required,
			Status:        StatusCreated,
			Outcome:       OutcomePending,
		}
		var err error
		created, err = tx.CreateBatch(batch)
		return err
	})
	s.finish(ctx, "create_batch", domain.EntityBatch, batchID(input.ID), caller, started, err)
	return created, err
}

// TransferCustody hands a batch from its current owner to newOwner. The new
// owner must hold the role of the next stage in the fixed custody chain. The
// first transfer away from the producer must carry the required collateral
// stake; every later transfer must carry none.
func (s *Service) TransferCustody(ctx context.Context, caller domain.Identity, id uint64, newOwner domain.Identity, stake uint64) (domain.Batch, error) {
	started := s.clock.Now()
	var updated domain.Batch
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if err := pausedGuard(reg); err != nil {
			return err
		}
		batch, ok := tx.Snapshot().FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		if batch.Status == StatusFinalized {
			return domain.BatchError(domain.KindBatchFinalized, id, "batch custody has ended")
		}
		if batch.CurrentOwner != caller {
			return domain.BatchError(domain.KindNotAuthorized, id, "caller is not the current owner")
		}
		next, ok := domain.NextStage(batch.Stage)
		if !ok {
			return domain.BatchError(domain.KindInvalidStageTransition, id, "custody chain is complete")
		}
		if !reg.HasRole(newOwner, next) {
			return domain.BatchError(domain.KindNotAuthorizedRole, id, "new owner lacks the "+string(next)+" role")
		}
		first := batch.Status == StatusCreated
		if first {
			if batch.Collateral != 0 {
				return domain.BatchError(domain.KindAlreadyStaked, id, "collateral already staked")
			}
			if stake == 0 || stake < batch.RequiredStake {
				return domain.BatchError(domain.KindMissingStake, id, "first transfer requires the collateral stake")
			}
		} else if stake != 0 {
			return domain.BatchError(domain.KindUnexpectedStake, id, "stake only accompanies the first transfer")
		}
		now := s.clock.Now()
		var err error
		updated, err = tx.UpdateBatch(id, func(b *domain.Batch) error {
			if first {
				b.Collateral = stake
				b.Status = StatusInTransit
				ledger := tx.Ledger()
				ledger.TotalStaked += stake
				tx.PutLedger(ledger)
			}
			b.CustodyTrail = append(b.CustodyTrail, domain.CustodyEvent{
				From:  b.CurrentOwner,
				To:    newOwner,
				Actor: caller,
				Stage: next,
				Stake: stake,
				At:    now,
			})
			b.CurrentOwner = newOwner
			b.Stage = next
			return nil
		})
		return err
	})
	s.finish(ctx, "transfer_custody", domain.EntityBatch, batchID(id), caller, started, err)
	return updated, err
}

// AppendSensorReading appends one environmental reading to a batch in
// transit. Only the current owner may log readings. A reading outside the
// declared safety band for the batch's product class sets the violation
// flag; the flag never reverts.
func (s *Service) AppendSensorReading(ctx context.Context, caller domain.Identity, id uint64, reading domain.SensorReading) (domain.Batch, error) {
	started := s.clock.Now()
	var updated domain.Batch
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if err := pausedGuard(reg); err != nil {
			return err
		}
		batch, ok := tx.Snapshot().FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		if batch.Status != StatusInTransit {
			return domain.BatchError(domain.KindInvalidState, id, "sensor data is only accepted in transit")
		}
		if batch.CurrentOwner != caller {
			return domain.BatchError(domain.KindNotAuthorized, id, "caller is not the current owner")
		}
		if reading.Timestamp.IsZero() {
			reading.Timestamp = s.clock.Now()
		}
		var err error
		updated, err = tx.UpdateBatch(id, func(b *domain.Batch) error {
			b.SensorLog = append(b.SensorLog, reading)
			if band, ok := s.band(b.ProductClass); ok && !band.Contains(reading) {
				b.Violation = true
			}
			return nil
		})
		return err
	})
	s.finish(ctx, "append_sensor_reading", domain.EntityBatch, batchID(id), caller, started, err)
	return updated, err
}

// Finalize ends a batch's custody lifecycle with the retailer's inspection
// verdict and releases the escrowed collateral exactly once. A clean batch
// (accepted, no violation) refunds the producer; otherwise the configured
// forfeiture policy selects the beneficiary.
func (s *Service) Finalize(ctx context.Context, caller domain.Identity, id uint64, accepted bool) (domain.Batch, error) {
	started := s.clock.Now()
	var updated domain.Batch
	_, err := s.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		reg := tx.Registry()
		if err := pausedGuard(reg); err != nil {
			return err
		}
		batch, ok := tx.Snapshot().FindBatch(id)
		if !ok {
			return domain.BatchError(domain.KindNotFound, id, "unknown batch")
		}
		if batch.Status == StatusFinalized {
			return domain.BatchError(domain.KindBatchFinalized, id, "batch already finalized")
		}
		if batch.Status != StatusInTransit {
			return domain.BatchError(domain.KindInvalidState, id, "batch has not entered transit")
		}
		if batch.CurrentOwner != caller {
			return domain.BatchError(domain.KindNotAuthorized, id, "caller is not the current owner")
		}
		if !reg.HasRole(caller, RoleRetailer) {
			return domain.BatchError(domain.KindNotAuthorizedRole, id, "finalization requires the retailer role")
		}
		if batch.Escrow != nil {
			return domain.BatchError(domain.KindAlreadyReleased, id, "collateral already released")
		}
		outcome := OutcomeAccepted
		if !accepted {
			outcome = OutcomeRejected
		}
		payee, forfeited := s.releasePayee(batch, caller, accepted)
		now := s.clock.Now()
		var err error
		updated, err = tx.UpdateBatch(id, func(b *domain.Batch) error {
			amount := b.Collateral
			b.Status = StatusFinalized
			b.Outcome = outcome
			b.Collateral = 0
			b.Escrow = &domain.EscrowReceipt{
				Payee:      payee,
				Amount:     amount,
				Forfeited:  forfeited,
				ReleasedAt: now,
			}
			ledger := tx.Ledger()
			ledger.TotalReleased += amount
			tx.PutLedger(ledger)
			return nil
		})
		return err
	})
	s.finish(ctx, "finalize_batch", domain.EntityBatch, batchID(id), caller, started, err)
	return updated, err
}

// releasePayee applies the escrow policy: clean batches refund the producer,
// tainted ones follow the configured forfeiture beneficiary.
func (s *Service) releasePayee(batch domain.Batch, retailer domain.Identity, accepted bool) (domain.Identity, bool) {
	if accepted && !batch.Violation {
		return batch.Producer, false
	}
	switch s.policy.ForfeitTo {
	case ForfeitToProducer:
		return batch.Producer, true
	case ForfeitBurn:
		return "", true
	default:
		return retailer, true
	}
}
