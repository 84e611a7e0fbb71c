package memory_test

import (
	"context"
	"errors"
	"testing"

	"freshchain/internal/infra/persistence/memory"
	"freshchain/pkg/domain"
)

func TestTransactionRollsBackOnError(t *testing.T) {
	store := memory.NewStore("admin", nil)
	boom := errors.New("boom")
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		if _, err := tx.CreateBatch(domain.Batch{ID: 1, Name: "spinach", Status: domain.StatusCreated}); err != nil {
			return err
		}
		reg := tx.Registry()
		reg.Grant("alice", domain.RoleProducer)
		tx.PutRegistry(reg)
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected the transaction error, got %v", err)
	}
	if _, ok := store.GetBatch(1); ok {
		t.Fatalf("failed transaction left a batch behind")
	}
	if store.Registry().HasRole("alice", domain.RoleProducer) {
		t.Fatalf("failed transaction left a role grant behind")
	}
}

type blockEverything struct{}

func (blockEverything) Name() string { return "block_everything" }

func (blockEverything) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	if len(changes) > 0 {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "block_everything",
			Severity: domain.SeverityBlock,
			Message:  "nothing may change",
		})
	}
	return res, nil
}

func TestBlockingRuleDiscardsCommit(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockEverything{})
	store := memory.NewStore("admin", engine)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBatch(domain.Batch{ID: 1, Name: "spinach", Status: domain.StatusCreated})
		return err
	})
	var verr domain.RuleViolationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected a rule violation error, got %v", err)
	}
	if len(verr.Result.Violations) != 1 {
		t.Fatalf("expected 1 violation, got %d", len(verr.Result.Violations))
	}
	if _, ok := store.GetBatch(1); ok {
		t.Fatalf("blocked transaction must have no effect")
	}
}

func TestCreateBatchRejectsDuplicateID(t *testing.T) {
	store := memory.NewStore("admin", nil)
	create := func() error {
		_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
			_, err := tx.CreateBatch(domain.Batch{ID: 9, Name: "kale", Status: domain.StatusCreated})
			return err
		})
		return err
	}
	if err := create(); err != nil {
		t.Fatalf("first create failed: %v", err)
	}
	if err := create(); err == nil {
		t.Fatalf("expected duplicate id to be rejected")
	}
}

func TestUpdateBatchAppliesMutator(t *testing.T) {
	store := memory.NewStore("admin", nil)
	_, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBatch(domain.Batch{ID: 3, Name: "kale", Quantity: 10, Status: domain.StatusCreated})
		return err
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err = store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		updated, err := tx.UpdateBatch(3, func(b *domain.Batch) error {
			b.Quantity = 8
			return nil
		})
		if err != nil {
			return err
		}
		if updated.Quantity != 8 {
			t.Fatalf("mutator result not reflected, quantity %d", updated.Quantity)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	got, ok := store.GetBatch(3)
	if !ok || got.Quantity != 8 {
		t.Fatalf("committed state not updated: %+v", got)
	}
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.UpdateBatch(99, func(*domain.Batch) error { return nil })
		return err
	}); err == nil {
		t.Fatalf("updating a missing batch must fail")
	}
}

func TestViewObservesSnapshotCopies(t *testing.T) {
	store := memory.NewStore("admin", nil)
	if _, err := store.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		_, err := tx.CreateBatch(domain.Batch{
			ID:        5,
			Name:      "spinach",
			Status:    domain.StatusCreated,
			SensorLog: []domain.SensorReading{{Temperature: 4, Humidity: 60}},
		})
		return err
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	err := store.View(context.Background(), func(v domain.TransactionView) error {
		b, ok := v.FindBatch(5)
		if !ok {
			t.Fatalf("batch missing from view")
		}
		b.SensorLog[0].Temperature = 99
		b.Name = "tampered"
		return nil
	})
	if err != nil {
		t.Fatalf("view: %v", err)
	}
	got, _ := store.GetBatch(5)
	if got.Name != "spinach" || got.SensorLog[0].Temperature != 4 {
		t.Fatalf("view mutation leaked into committed state: %+v", got)
	}
}

func TestExportImportRoundTrip(t *testing.T) {
	src := memory.NewStore("admin", nil)
	if _, err := src.RunInTransaction(context.Background(), func(tx domain.Transaction) error {
		reg := tx.Registry()
		reg.Grant("alice", domain.RoleProducer)
		reg.Paused = true
		tx.PutRegistry(reg)
		tx.PutLedger(domain.EscrowLedger{TotalStaked: 100, TotalReleased: 100})
		_, err := tx.CreateBatch(domain.Batch{ID: 11, Name: "berries", Status: domain.StatusCreated})
		return err
	}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	dst := memory.NewStore("other", nil)
	dst.ImportState(src.ExportState())

	reg := dst.Registry()
	if reg.Admin != "admin" || !reg.Paused || !reg.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("registry did not survive the round trip: %+v", reg)
	}
	if _, ok := dst.GetBatch(11); !ok {
		t.Fatalf("batch did not survive the round trip")
	}
	if dst.Ledger().TotalStaked != 100 {
		t.Fatalf("ledger did not survive the round trip: %+v", dst.Ledger())
	}
}
