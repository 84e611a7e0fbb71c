// Package postgres provides a Postgres-backed persistent store that mirrors
// the in-memory semantics and snapshots the ledger state after each commit.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"freshchain/internal/infra/persistence/memory"
	"freshchain/pkg/domain"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver
)

// Compile-time contract assertion.
var _ domain.PersistentStore = (*Store)(nil)

const (
	driverName = "pgx"
	defaultDSN = "postgres://localhost/freshchain?sslmode=disable"
)

// Store persists state to Postgres while reusing the in-memory
// implementation for transactions.
type Store struct {
	*memory.Store
	db *sql.DB
}

// NewStore opens a Postgres-backed store using the provided DSN (falls back
// to defaultDSN), ensures the snapshot table exists, and hydrates the
// in-memory store from any existing snapshot.
func NewStore(dsn string, admin domain.Identity, engine *domain.RulesEngine) (*Store, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS ledger_state (
		bucket TEXT PRIMARY KEY,
		payload JSONB NOT NULL
	)`); err != nil {
		return nil, fmt.Errorf("create state table: %w", err)
	}
	mem := memory.NewStore(admin, engine)
	s := &Store{Store: mem, db: db}
	if err := s.load(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Store) load(ctx context.Context) error {
	rows, err := s.db.QueryContext(ctx, `SELECT bucket, payload FROM ledger_state`)
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
	var snapshot domain.Snapshot
	decode := func(bucket string, out any) error {
		raw, ok := payloads[bucket]
		if !ok {
			return nil
		}
		if err := json.Unmarshal(raw, out); err != nil {
			return fmt.Errorf("decode %s: %w", bucket, err)
		}
		return nil
	}
	if err := decode("registry", &snapshot.Registry); err != nil {
		return err
	}
	if err := decode("batches", &snapshot.Batches); err != nil {
		return err
	}
	if err := decode("ledger", &snapshot.Ledger); err != nil {
		return err
	}
	s.ImportState(snapshot)
	return nil
}

func (s *Store) persist(ctx context.Context) (retErr error) {
	snapshot := s.ExportState()
	tx, err := s.db.BeginTx(ctx, nil)
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
		_, err = tx.ExecContext(ctx, `INSERT INTO ledger_state(bucket, payload) VALUES($1, $2)
			ON CONFLICT(bucket) DO UPDATE SET payload = excluded.payload`, bucket, payload)
		if err != nil {
			return fmt.Errorf("write %s: %w", bucket, err)
		}
		return nil
	}
	if err := write("registry", snapshot.Registry); err != nil {
		return err
	}
	if err := write("batches", snapshot.Batches); err != nil {
		return err
	}
	if err := write("ledger", snapshot.Ledger); err != nil {
		return err
	}
	return tx.Commit()
}

// RunInTransaction applies fn in memory, then snapshots to Postgres when the
// commit succeeds.
func (s *Store) RunInTransaction(ctx context.Context, fn func(domain.Transaction) error) (domain.Result, error) {
	res, err := s.Store.RunInTransaction(ctx, fn)
	if err != nil {
		return res, err
	}
	if err := s.persist(ctx); err != nil {
		return res, fmt.Errorf("persist snapshot: %w", err)
	}
	return res, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
