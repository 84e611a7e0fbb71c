// Package memory provides an in-memory implementation of the custody ledger
// persistence contract, used for tests and as the transactional engine that
// the durable backends wrap.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"freshchain/pkg/domain"
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

type ledgerState struct {
	registry domain.Registry
	batches  map[uint64]domain.Batch
	escrow   domain.EscrowLedger
}

func newLedgerState(admin domain.Identity) ledgerState {
	return ledgerState{
		registry: domain.NewRegistry(admin),
		batches:  make(map[uint64]domain.Batch),
	}
}

func (s ledgerState) clone() ledgerState {
	cloned := ledgerState{
		registry: s.registry.Clone(),
		batches:  make(map[uint64]domain.Batch, len(s.batches)),
		escrow:   s.escrow,
	}
	for id, b := range s.batches {
		cloned.batches[id] = b.Clone()
	}
	return cloned
}

// Store provides a transactional clone-on-write store for the custody ledger.
type Store struct {
	mu     sync.RWMutex
	state  ledgerState
	engine *domain.RulesEngine
	nowFn  func() time.Time
}

// NewStore constructs a store owned by the given administrator and guarded
// by the provided rules engine.
func NewStore(admin domain.Identity, engine *domain.RulesEngine) *Store {
	if engine == nil {
		engine = domain.NewRulesEngine()
	}
	return &Store{
		state:  newLedgerState(admin),
		engine: engine,
		nowFn:  func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the store clock. Intended for tests.
func (s *Store) SetClock(nowFn func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if nowFn != nil {
		s.nowFn = nowFn
	}
}

// Transaction represents a mutation set applied to the store state.
type Transaction struct {
	state   *ledgerState
	changes []domain.Change
	now     time.Time
}

// view exposes a read-only snapshot of transactional state.
type view struct {
	state *ledgerState
}

// ListBatches returns all batches within the snapshot.
func (v view) ListBatches() []domain.Batch {
	out := make([]domain.Batch, 0, len(v.state.batches))
	for _, b := range v.state.batches {
		out = append(out, b.Clone())
	}
	return out
}

// FindBatch retrieves a batch by ID from the snapshot.
func (v view) FindBatch(id uint64) (domain.Batch, bool) {
	b, ok := v.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// Registry returns the role registry within the snapshot.
func (v view) Registry() domain.Registry {
	return v.state.registry.Clone()
}

// Ledger returns the escrow counters within the snapshot.
func (v view) Ledger() domain.EscrowLedger {
	return v.state.escrow
}

// RunInTransaction executes fn within a transactional copy of the store
// state. The rules engine evaluates the accumulated changes against the
// candidate state; blocking violations discard the copy, so a failed
// operation has no partial effect.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	candidate := s.state.clone()
	tx := &Transaction{
		state: &candidate,
		now:   s.nowFn(),
	}

	if err := fn(tx); err != nil {
		return domain.Result{}, err
	}

	var result domain.Result
	if s.engine != nil {
		res, err := s.engine.Evaluate(ctx, view{state: &candidate}, tx.changes)
		if err != nil {
			return domain.Result{}, err
		}
		result = res
		if res.HasBlocking() {
			return res, domain.RuleViolationError{Result: res}
		}
	}

	s.state = candidate
	return result, nil
}

// View executes fn against a read-only snapshot of the store state.
func (s *Store) View(_ context.Context, fn func(domain.TransactionView) error) error {
	s.mu.RLock()
	snapshot := s.state.clone()
	s.mu.RUnlock()
	return fn(view{state: &snapshot})
}

// Snapshot returns a read-only view of the transactional state.
func (tx *Transaction) Snapshot() domain.TransactionView {
	return view{state: tx.state}
}

// Registry returns the registry as of the transaction start.
func (tx *Transaction) Registry() domain.Registry {
	return tx.state.registry.Clone()
}

// PutRegistry replaces the registry within the transaction.
func (tx *Transaction) PutRegistry(r domain.Registry) {
	before := tx.state.registry.Clone()
	tx.state.registry = r.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityRegistry, Action: domain.ActionUpdate, Before: before, After: r.Clone()})
}

// Ledger returns the escrow counters as of the transaction start.
func (tx *Transaction) Ledger() domain.EscrowLedger {
	return tx.state.escrow
}

// PutLedger replaces the escrow counters within the transaction.
func (tx *Transaction) PutLedger(l domain.EscrowLedger) {
	before := tx.state.escrow
	tx.state.escrow = l
	tx.recordChange(domain.Change{Entity: domain.EntityEscrow, Action: domain.ActionUpdate, Before: before, After: l})
}

func (tx *Transaction) recordChange(change domain.Change) {
	tx.changes = append(tx.changes, change)
}

// CreateBatch stores a new batch within the transaction. Batch IDs are
// caller-supplied and unique forever; batches are never deleted, so the
// batch map doubles as the tombstone set.
func (tx *Transaction) CreateBatch(b domain.Batch) (domain.Batch, error) {
	if _, exists := tx.state.batches[b.ID]; exists {
		return domain.Batch{}, fmt.Errorf("batch %d already exists", b.ID)
	}
	b.CreatedAt = tx.now
	b.UpdatedAt = tx.now
	tx.state.batches[b.ID] = b.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionCreate, After: b.Clone()})
	return b.Clone(), nil
}

// UpdateBatch mutates a batch using the provided mutator function.
func (tx *Transaction) UpdateBatch(id uint64, mutator func(*domain.Batch) error) (domain.Batch, error) {
	current, ok := tx.state.batches[id]
	if !ok {
		return domain.Batch{}, fmt.Errorf("batch %d not found", id)
	}
	before := current.Clone()
	if err := mutator(&current); err != nil {
		return domain.Batch{}, err
	}
	current.ID = id
	current.UpdatedAt = tx.now
	tx.state.batches[id] = current.Clone()
	tx.recordChange(domain.Change{Entity: domain.EntityBatch, Action: domain.ActionUpdate, Before: before, After: current.Clone()})
	return current.Clone(), nil
}

// Read helpers ---------------------------------------------------------------

// GetBatch retrieves a batch by ID from committed state.
func (s *Store) GetBatch(id uint64) (domain.Batch, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.state.batches[id]
	if !ok {
		return domain.Batch{}, false
	}
	return b.Clone(), true
}

// ListBatches returns all batches from committed state.
func (s *Store) ListBatches() []domain.Batch {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.Batch, 0, len(s.state.batches))
	for _, b := range s.state.batches {
		out = append(out, b.Clone())
	}
	return out
}

// Registry returns the committed role registry.
func (s *Store) Registry() domain.Registry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.registry.Clone()
}

// Ledger returns the committed escrow counters.
func (s *Store) Ledger() domain.EscrowLedger {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.escrow
}

// ExportState serializes the committed state for durable backends.
func (s *Store) ExportState() domain.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := domain.Snapshot{
		Registry: s.state.registry.Clone(),
		Batches:  make(map[uint64]domain.Batch, len(s.state.batches)),
		Ledger:   s.state.escrow,
	}
	for id, b := range s.state.batches {
		snap.Batches[id] = b.Clone()
	}
	return snap
}

// ImportState replaces the committed state from a snapshot. Used by durable
// backends when hydrating at open.
func (s *Store) ImportState(snap domain.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	state := ledgerState{
		registry: snap.Registry.Clone(),
		batches:  make(map[uint64]domain.Batch, len(snap.Batches)),
		escrow:   snap.Ledger,
	}
	for id, b := range snap.Batches {
		state.batches[id] = b.Clone()
	}
	s.state = state
}
