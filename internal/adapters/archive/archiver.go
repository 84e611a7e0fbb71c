// Package archive exports passports of finalized batches to an object store
// so downstream consumers can read the full custody record without touching
// the ledger.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"freshchain/internal/core"
	"freshchain/internal/infra/blob"
	"freshchain/pkg/domain"
)

// Passport is the archived form of a finalized batch: the full projection
// plus archive metadata.
type Passport struct {
	Batch      core.BatchProjection `json:"batch"`
	ArchivedAt time.Time            `json:"archived_at"`
	Version    int                  `json:"version"`
}

// passportVersion bumps when the archived JSON shape changes.
const passportVersion = 1

// Archiver exports batch passports asynchronously.
type Archiver struct {
	store blob.Store
	audit core.AuditRecorder

	queueMu sync.RWMutex
	stopped bool
	queue   chan domain.Batch

	mu   sync.RWMutex
	done map[uint64]blob.Info

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs an archiver writing to the supplied object store.
func New(store blob.Store, audit core.AuditRecorder) *Archiver {
	if audit == nil {
		audit = noopAudit{}
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Archiver{
		store:  store,
		audit:  audit,
		queue:  make(chan domain.Batch, 32),
		done:   make(map[uint64]blob.Info),
		ctx:    ctx,
		cancel: cancel,
	}
}

type noopAudit struct{}

func (noopAudit) Record(context.Context, core.AuditEntry) {}

// Start begins processing archive requests.
func (a *Archiver) Start() {
	a.wg.Add(1)
	go a.loop()
}

// Stop halts intake, exports everything already queued, and waits for the
// worker to finish.
func (a *Archiver) Stop(ctx context.Context) error {
	a.queueMu.Lock()
	if !a.stopped {
		a.stopped = true
		a.cancel()
	}
	a.queueMu.Unlock()
	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue schedules a finalized batch for export. Non-finalized batches are
// rejected; a full queue is reported rather than blocking the caller.
func (a *Archiver) Enqueue(batch domain.Batch) error {
	if batch.Status != domain.StatusFinalized {
		return fmt.Errorf("batch %d is not finalized", batch.ID)
	}
	a.queueMu.RLock()
	defer a.queueMu.RUnlock()
	if a.stopped {
		return fmt.Errorf("archiver is stopped")
	}
	select {
	case a.queue <- batch.Clone():
		return nil
	default:
		return fmt.Errorf("archive queue is full")
	}
}

// Key returns the object key used for a batch passport.
func Key(id uint64) string {
	return fmt.Sprintf("passports/%d.json", id)
}

// Archived returns the object info for an exported batch, if present.
func (a *Archiver) Archived(id uint64) (blob.Info, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	info, ok := a.done[id]
	return info, ok
}

func (a *Archiver) loop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.ctx.Done():
			a.drain()
			return
		case batch := <-a.queue:
			a.export(a.ctx, batch)
		}
	}
}

// drain exports passports that were queued before shutdown. Intake is closed
// by then, so the queue only shrinks.
func (a *Archiver) drain() {
	ctx := context.WithoutCancel(a.ctx)
	for {
		select {
		case batch := <-a.queue:
			a.export(ctx, batch)
		default:
			return
		}
	}
}

func (a *Archiver) export(ctx context.Context, batch domain.Batch) {
	started := time.Now()
	info, err := a.exportOne(ctx, batch)
	entry := core.AuditEntry{
		Operation: "archive_passport",
		Entity:    domain.EntityBatch,
		EntityID:  fmt.Sprintf("%d", batch.ID),
		Status:    core.AuditStatusSuccess,
		Duration:  time.Since(started),
		Timestamp: time.Now().UTC(),
	}
	if err != nil {
		entry.Status = core.AuditStatusError
	} else {
		a.mu.Lock()
		a.done[batch.ID] = info
		a.mu.Unlock()
	}
	a.audit.Record(ctx, entry)
}

func (a *Archiver) exportOne(ctx context.Context, batch domain.Batch) (blob.Info, error) {
	passport := Passport{
		Batch:      core.Project(batch),
		ArchivedAt: time.Now().UTC(),
		Version:    passportVersion,
	}
	payload, err := json.MarshalIndent(passport, "", "  ")
	if err != nil {
		return blob.Info{}, fmt.Errorf("encode passport: %w", err)
	}
	info, err := a.store.Put(ctx, Key(batch.ID), payload, "application/json")
	if err != nil {
		return blob.Info{}, fmt.Errorf("store passport: %w", err)
	}
	return info, nil
}
