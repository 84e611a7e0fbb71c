package domain

import "context"

// Transaction exposes the ledger operations that a persistence
// implementation must support within an atomic scope.
type Transaction interface {
	Snapshot() TransactionView
	Registry() Registry
	PutRegistry(Registry)
	Ledger() EscrowLedger
	PutLedger(EscrowLedger)
	CreateBatch(Batch) (Batch, error)
	UpdateBatch(id uint64, mutator func(*Batch) error) (Batch, error)
}

// TransactionView provides read-only access to snapshot data.
type TransactionView interface {
	ListBatches() []Batch
	FindBatch(id uint64) (Batch, bool)
	Registry() Registry
	Ledger() EscrowLedger
}

// PersistentStore is a minimal abstraction over durable backends. Mutations
// run with the effect of total ordering; a failed transaction leaves no
// partial state. Reads observe a single atomic snapshot.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
	GetBatch(id uint64) (Batch, bool)
	ListBatches() []Batch
	Registry() Registry
	Ledger() EscrowLedger
}

// Snapshot is the serialized form of the full ledger state, used by durable
// backends and offline validators.
type Snapshot struct {
	Registry Registry         `json:"registry"`
	Batches  map[uint64]Batch `json:"batches"`
	Ledger   EscrowLedger     `json:"ledger"`
}
