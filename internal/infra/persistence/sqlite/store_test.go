package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"

	"freshchain/internal/infra/persistence/sqlite"
	"freshchain/pkg/domain"
)

func TestStateSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")

	store, err := sqlite.NewStore(path, "admin", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		reg := tx.Registry()
		reg.Grant("alice", domain.RoleProducer)
		tx.PutRegistry(reg)
		tx.PutLedger(domain.EscrowLedger{TotalStaked: 100, TotalReleased: 40})
		_, err := tx.CreateBatch(domain.Batch{
			ID:         200,
			Name:       "Spinach",
			Quantity:   100,
			Status:     domain.StatusInTransit,
			Collateral: 60,
			SensorLog:  []domain.SensorReading{{Temperature: 4, Humidity: 60, Location: "dock"}},
		})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, "someone-else", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()

	reg := reopened.Registry()
	if reg.Admin != "admin" {
		t.Fatalf("stored admin must win over the open parameter, got %q", reg.Admin)
	}
	if !reg.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("role grant did not survive reopen")
	}
	batch, ok := reopened.GetBatch(200)
	if !ok {
		t.Fatalf("batch did not survive reopen")
	}
	if batch.Name != "Spinach" || batch.Collateral != 60 || len(batch.SensorLog) != 1 {
		t.Fatalf("batch fields lost on reopen: %+v", batch)
	}
	ledger := reopened.Ledger()
	if ledger.TotalStaked != 100 || ledger.TotalReleased != 40 {
		t.Fatalf("ledger lost on reopen: %+v", ledger)
	}
}

func TestEmptyDatabaseBootstrapsAdmin(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fresh.db")
	store, err := sqlite.NewStore(path, "bootstrap-admin", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer func() { _ = store.Close() }()
	if store.Registry().Admin != "bootstrap-admin" {
		t.Fatalf("empty database must adopt the supplied admin")
	}
	if store.Path() != path {
		t.Fatalf("Path = %q, want %q", store.Path(), path)
	}
}

func TestFailedTransactionIsNotPersisted(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := sqlite.NewStore(path, "admin", nil)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{ID: 1, Name: "x", Status: domain.StatusCreated}); err != nil {
			return err
		}
		return context.Canceled
	}); err == nil {
		t.Fatalf("expected the transaction error")
	}
	if err := store.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	reopened, err := sqlite.NewStore(path, "admin", nil)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = reopened.Close() }()
	if _, ok := reopened.GetBatch(1); ok {
		t.Fatalf("failed transaction must not reach the database")
	}
}
