// Package sqlite provides a snapshotting SQLite-backed persistent store. It
// reuses the in-memory transactional engine and writes the full ledger state
// as JSON buckets after every successful commit.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"freshchain/internal/infra/persistence/memory"
	"freshchain/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

// Store persists the in-memory state to a single SQLite table as JSON blobs.
type Store struct {
	*memory.Store
	db   *sql.DB
	mu   sync.Mutex
	path string
}

// NewStore constructs a snapshotting SQLite-backed persistent store. When an
// existing snapshot is present it wins over the supplied admin identity.
func NewStore(path string, admin domain.Identity, engine *domain.RulesEngine) (*Store, error) {
	if path == "" {
		path = "freshchain.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil && !errors.Is(err, os.ErrExist) {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS state (
		bucket TEXT PRIMARY KEY,
		payload BLOB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	s := &Store{Store: memory.NewStore(admin, engine), db: db, path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

const (
	bucketRegistry = "registry"
	bucketBatches  = "batches"
	bucketLedger   = "ledger"
)

func (s *Store) load() error {
	rows, err := s.db.Query(`SELECT bucket, payload FROM state`)
	if err != nil {
		return fmt.Errorf("select state: %w", err)
	}
	defer func() { _ = rows.Close() }()
	payloads := map[string][]byte{}
	for rows.Next() {
		var bucket string
		var payload []byte
		if err := rows.Scan(&bucket, &payload); err != nil {
			return fmt.Errorf("scan: %w", err)
		}
		payloads[bucket] = payload
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate state: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}
	snapshot := domain.Snapshot{}
	if raw, ok := payloads[bucketRegistry]; ok {
		if err := json.Unmarshal(raw, &snapshot.Registry); err != nil {
			return fmt.Errorf("decode registry: %w", err)
		}
	}
	if raw, ok := payloads[bucketBatches]; ok {
		if err := json.Unmarshal(raw, &snapshot.Batches); err != nil {
			return fmt.Errorf("decode batches: %w", err)
		}
	}
	if raw, ok := payloads[bucketLedger]; ok {
		if err := json.Unmarshal(raw, &snapshot.Ledger); err != nil {
			return fmt.Errorf("decode ledger: %w", err)
		}
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist() (retErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snapshot := s.ExportState()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()
	write := func(bucket string, value any) error {
		payload, err := json.Marshal(value)
		if err != nil {
			return fmt.Errorf("encode %s: %w", bucket, err)
		}
		_, err = tx.Exec(`INSERT INTO state(bucket, payload) VALUES(?, ?)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, payload)
		if err != nil {
			return fmt.Errorf("write %s: %w", bucket, err)
		}
		return nil
	}
	if err := write(bucketRegistry, snapshot.Registry); err != nil {
		return err
	}
	if err := write(bucketBatches, snapshot.Batches); err != nil {
		return err
	}
	if err := write(bucketLedger, snapshot.Ledger); err != nil {
		return err
	}
	return tx.Commit()
}

// RunInTransaction applies fn in memory, then snapshots to SQLite when the
// commit succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(); err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}
