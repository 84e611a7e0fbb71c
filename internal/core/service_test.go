package core_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"freshchain/internal/core"
	"freshchain/internal/infra/persistence/memory"
	"freshchain/pkg/domain"
)

const (
	admin        = domain.Identity("admin")
	producerA    = domain.Identity("producer-a")
	transportB   = domain.Identity("transporter-b")
	distributorC = domain.Identity("distributor-c")
	retailerD    = domain.Identity("retailer-d")
)

var testClock = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, opts ...core.Option) *core.Service {
	t.Helper()
	store := memory.NewStore(admin, core.NewDefaultRulesEngine())
	base := []core.Option{
		core.WithClock(core.ClockFunc(func() time.Time { return testClock })),
		core.WithSafetyBands(map[string]domain.SafetyBand{
			"leafy": {TempMin: 0, TempMax: 8, HumMin: 20, HumMax: 95},
		}),
		core.WithDefaultRequiredStake(100),
	}
	return core.NewService(store, append(base, opts...)...)
}

func registerChain(t *testing.T, svc *core.Service) {
	t.Helper()
	ctx := context.Background()
	if err := svc.RegisterProducer(ctx, admin, producerA); err != nil {
		t.Fatalf("register producer: %v", err)
	}
	if err := svc.RegisterTransporter(ctx, admin, transportB); err != nil {
		t.Fatalf("register transporter: %v", err)
	}
	if err := svc.RegisterDistributor(ctx, admin, distributorC); err != nil {
		t.Fatalf("register distributor: %v", err)
	}
	if err := svc.RegisterRetailer(ctx, admin, retailerD); err != nil {
		t.Fatalf("register retailer: %v", err)
	}
}

func createSpinach(t *testing.T, svc *core.Service) domain.Batch {
	t.Helper()
	batch, err := svc.CreateBatch(context.Background(), producerA, core.NewBatch{
		ID:            200,
		Name:          "Spinach",
		Quantity:      100,
		ShelfLifeDays: 14,
		ProductClass:  "leafy",
	})
	if err != nil {
		t.Fatalf("create batch: %v", err)
	}
	return batch
}

func TestFullCustodyLifecycleWithViolation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)

	batch := createSpinach(t, svc)
	if batch.Status != domain.StatusCreated || batch.Stage != domain.RoleProducer {
		t.Fatalf("unexpected fresh batch: %+v", batch)
	}
	if batch.RequiredStake != 100 {
		t.Fatalf("default required stake not applied: %d", batch.RequiredStake)
	}
	if want := testClock.AddDate(0, 0, 14); !batch.Expiry.Equal(want) {
		t.Fatalf("expiry = %v, want %v", batch.Expiry, want)
	}

	batch, err := svc.TransferCustody(ctx, producerA, 200, transportB, 100)
	if err != nil {
		t.Fatalf("first transfer: %v", err)
	}
	if batch.Status != domain.StatusInTransit || batch.CurrentOwner != transportB {
		t.Fatalf("unexpected state after first transfer: %+v", batch)
	}
	if batch.Collateral != 100 {
		t.Fatalf("collateral not locked: %d", batch.Collateral)
	}
	if svc.EscrowLedgerState().Outstanding() != 100 {
		t.Fatalf("escrow ledger did not record the stake")
	}

	batch, err = svc.AppendSensorReading(ctx, transportB, 200, domain.SensorReading{
		Temperature: 4, Humidity: 60, Location: "warehouse-1",
	})
	if err != nil {
		t.Fatalf("safe reading: %v", err)
	}
	if batch.Violation {
		t.Fatalf("in-band reading must not trip the violation flag")
	}

	batch, err = svc.AppendSensorReading(ctx, transportB, 200, domain.SensorReading{
		Temperature: 25, Humidity: 60, Location: "truck-7",
	})
	if err != nil {
		t.Fatalf("hot reading: %v", err)
	}
	if !batch.Violation {
		t.Fatalf("out-of-band reading must trip the violation flag")
	}

	if _, err = svc.TransferCustody(ctx, transportB, 200, distributorC, 0); err != nil {
		t.Fatalf("second transfer: %v", err)
	}
	batch, err = svc.TransferCustody(ctx, distributorC, 200, retailerD, 0)
	if err != nil {
		t.Fatalf("third transfer: %v", err)
	}
	if !batch.Violation {
		t.Fatalf("violation flag must persist across transfers")
	}
	if len(batch.CustodyTrail) != 3 {
		t.Fatalf("expected 3 custody events, got %d", len(batch.CustodyTrail))
	}

	batch, err = svc.Finalize(ctx, retailerD, 200, true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if batch.Status != domain.StatusFinalized || batch.Outcome != domain.OutcomeAccepted {
		t.Fatalf("unexpected finalized state: %+v", batch)
	}
	if batch.Collateral != 0 {
		t.Fatalf("collateral must be released at finalization")
	}
	if batch.Escrow == nil || !batch.Escrow.Forfeited || batch.Escrow.Payee != retailerD {
		t.Fatalf("violated batch must forfeit to the retailer: %+v", batch.Escrow)
	}
	if batch.Escrow.Amount != 100 {
		t.Fatalf("released amount = %d, want 100", batch.Escrow.Amount)
	}
	ledger := svc.EscrowLedgerState()
	if ledger.TotalStaked != 100 || ledger.TotalReleased != 100 || ledger.Outstanding() != 0 {
		t.Fatalf("escrow counters off after release: %+v", ledger)
	}

	if _, err := svc.Finalize(ctx, retailerD, 200, true); !errors.Is(err, domain.ErrBatchFinalized) {
		t.Fatalf("double finalize = %v, want batch_finalized", err)
	}
	if _, err := svc.TransferCustody(ctx, retailerD, 200, retailerD, 0); !errors.Is(err, domain.ErrBatchFinalized) {
		t.Fatalf("transfer after finalize = %v, want batch_finalized", err)
	}
}

func TestCleanDeliveryRefundsProducer(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	mustTransfer(t, svc, producerA, transportB, 100)
	mustTransfer(t, svc, transportB, distributorC, 0)
	mustTransfer(t, svc, distributorC, retailerD, 0)

	batch, err := svc.Finalize(ctx, retailerD, 200, true)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if batch.Escrow == nil || batch.Escrow.Forfeited || batch.Escrow.Payee != producerA {
		t.Fatalf("clean delivery must refund the producer: %+v", batch.Escrow)
	}
}

func TestRejectedDeliveryForfeits(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	mustTransfer(t, svc, producerA, transportB, 100)
	mustTransfer(t, svc, transportB, distributorC, 0)
	mustTransfer(t, svc, distributorC, retailerD, 0)

	batch, err := svc.Finalize(ctx, retailerD, 200, false)
	if err != nil {
		t.Fatalf("finalize: %v", err)
	}
	if batch.Outcome != domain.OutcomeRejected {
		t.Fatalf("outcome = %s, want rejected", batch.Outcome)
	}
	if batch.Escrow == nil || !batch.Escrow.Forfeited || batch.Escrow.Payee != retailerD {
		t.Fatalf("rejected delivery must forfeit: %+v", batch.Escrow)
	}
}

func TestForfeitPolicyVariants(t *testing.T) {
	cases := []struct {
		name      string
		policy    core.ForfeitBeneficiary
		wantPayee domain.Identity
	}{
		{"producer keeps stake", core.ForfeitToProducer, producerA},
		{"burn leaves no payee", core.ForfeitBurn, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := newTestService(t, core.WithEscrowPolicy(core.EscrowPolicy{ForfeitTo: tc.policy}))
			ctx := context.Background()
			registerChain(t, svc)
			createSpinach(t, svc)
			mustTransfer(t, svc, producerA, transportB, 100)
			mustTransfer(t, svc, transportB, distributorC, 0)
			mustTransfer(t, svc, distributorC, retailerD, 0)
			batch, err := svc.Finalize(ctx, retailerD, 200, false)
			if err != nil {
				t.Fatalf("finalize: %v", err)
			}
			if batch.Escrow.Payee != tc.wantPayee || !batch.Escrow.Forfeited {
				t.Fatalf("payee = %q forfeited = %v, want payee %q", batch.Escrow.Payee, batch.Escrow.Forfeited, tc.wantPayee)
			}
		})
	}
}

func mustTransfer(t *testing.T, svc *core.Service, from, to domain.Identity, stake uint64) {
	t.Helper()
	if _, err := svc.TransferCustody(context.Background(), from, 200, to, stake); err != nil {
		t.Fatalf("transfer %s -> %s: %v", from, to, err)
	}
}

func TestRegisterRoleRequiresAdmin(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	if err := svc.RegisterProducer(ctx, producerA, producerA); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("non-admin register = %v, want not_authorized", err)
	}
	if svc.IsAuthorized(producerA, domain.RoleProducer) {
		t.Fatalf("failed register must not grant the role")
	}
	if err := svc.RegisterRole(ctx, admin, domain.Role("auditor"), producerA); !errors.Is(err, domain.ErrNotAuthorizedRole) {
		t.Fatalf("unknown role = %v, want not_authorized_role", err)
	}
}

func TestCreateBatchValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)

	if _, err := svc.CreateBatch(ctx, transportB, core.NewBatch{ID: 1, Name: "x", Quantity: 1, ShelfLifeDays: 1}); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("non-producer create = %v, want not_authorized", err)
	}
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: 1, Quantity: 1, ShelfLifeDays: 1}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("missing name = %v, want invalid_state", err)
	}
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: 1, Name: "x", ShelfLifeDays: 1}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("zero quantity = %v, want invalid_state", err)
	}
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: 1, Name: "x", Quantity: 1}); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("zero shelf life = %v, want invalid_state", err)
	}

	createSpinach(t, svc)
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: 200, Name: "y", Quantity: 1, ShelfLifeDays: 1}); !errors.Is(err, domain.ErrDuplicateID) {
		t.Fatalf("duplicate id = %v, want duplicate_id", err)
	}
}

func TestTransferStakeRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	if _, err := svc.TransferCustody(ctx, producerA, 200, transportB, 0); !errors.Is(err, domain.ErrMissingStake) {
		t.Fatalf("stakeless first transfer = %v, want missing_stake", err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 200, transportB, 50); !errors.Is(err, domain.ErrMissingStake) {
		t.Fatalf("underfunded first transfer = %v, want missing_stake", err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 200, distributorC, 100); !errors.Is(err, domain.ErrNotAuthorizedRole) {
		t.Fatalf("skip-stage transfer = %v, want not_authorized_role", err)
	}

	mustTransfer(t, svc, producerA, transportB, 100)

	if _, err := svc.TransferCustody(ctx, transportB, 200, distributorC, 100); !errors.Is(err, domain.ErrUnexpectedStake) {
		t.Fatalf("staked second transfer = %v, want unexpected_stake", err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 200, distributorC, 0); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("previous owner transfer = %v, want not_authorized", err)
	}
	if _, err := svc.TransferCustody(ctx, transportB, 999, distributorC, 0); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("unknown batch = %v, want not_found", err)
	}
}

func TestSensorReadingRules(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	reading := domain.SensorReading{Temperature: 4, Humidity: 60}
	if _, err := svc.AppendSensorReading(ctx, producerA, 200, reading); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("reading before transit = %v, want invalid_state", err)
	}
	mustTransfer(t, svc, producerA, transportB, 100)
	if _, err := svc.AppendSensorReading(ctx, producerA, 200, reading); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("non-owner reading = %v, want not_authorized", err)
	}
	batch, err := svc.AppendSensorReading(ctx, transportB, 200, reading)
	if err != nil {
		t.Fatalf("owner reading: %v", err)
	}
	if !batch.SensorLog[0].Timestamp.Equal(testClock) {
		t.Fatalf("zero timestamp must default to the service clock")
	}
}

func TestUnknownProductClassNeverViolates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{
		ID: 201, Name: "Durian", Quantity: 5, ShelfLifeDays: 7, ProductClass: "exotic",
	}); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 201, transportB, 100); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	batch, err := svc.AppendSensorReading(ctx, transportB, 201, domain.SensorReading{Temperature: 40, Humidity: 99})
	if err != nil {
		t.Fatalf("reading: %v", err)
	}
	if batch.Violation {
		t.Fatalf("class without a declared band must never violate")
	}
}

func TestPauseGatesEveryMutation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	if _, err := svc.TogglePause(ctx, producerA); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("non-admin toggle = %v, want not_authorized", err)
	}
	paused, err := svc.TogglePause(ctx, admin)
	if err != nil || !paused {
		t.Fatalf("toggle on = %v %v", paused, err)
	}
	if !svc.IsPaused() {
		t.Fatalf("pause state not visible")
	}

	if err := svc.RegisterProducer(ctx, admin, "newcomer"); !errors.Is(err, domain.ErrSystemPaused) {
		t.Fatalf("paused register = %v, want system_paused", err)
	}
	if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: 300, Name: "x", Quantity: 1, ShelfLifeDays: 1}); !errors.Is(err, domain.ErrSystemPaused) {
		t.Fatalf("paused create = %v, want system_paused", err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 200, transportB, 100); !errors.Is(err, domain.ErrSystemPaused) {
		t.Fatalf("paused transfer = %v, want system_paused", err)
	}
	if _, err := svc.AppendSensorReading(ctx, producerA, 200, domain.SensorReading{}); !errors.Is(err, domain.ErrSystemPaused) {
		t.Fatalf("paused reading = %v, want system_paused", err)
	}
	if _, err := svc.Finalize(ctx, retailerD, 200, true); !errors.Is(err, domain.ErrSystemPaused) {
		t.Fatalf("paused finalize = %v, want system_paused", err)
	}

	// Reads stay open and the state is untouched while paused.
	batches, err := svc.ListBatches(ctx)
	if err != nil || len(batches) != 1 {
		t.Fatalf("paused list = %d batches, %v", len(batches), err)
	}
	if batches[0].Status != domain.StatusCreated {
		t.Fatalf("paused mutations must leave state unchanged")
	}

	paused, err = svc.TogglePause(ctx, admin)
	if err != nil || paused {
		t.Fatalf("toggle off = %v %v", paused, err)
	}
	if _, err := svc.TransferCustody(ctx, producerA, 200, transportB, 100); err != nil {
		t.Fatalf("transfer after resume: %v", err)
	}
}

func TestConcurrentTransfersElectOneWinner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	const racers = 16
	errs := make([]error, racers)
	var wg sync.WaitGroup
	wg.Add(racers)
	for i := 0; i < racers; i++ {
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.TransferCustody(ctx, producerA, 200, transportB, 100)
		}(i)
	}
	wg.Wait()

	winners := 0
	for i, err := range errs {
		switch {
		case err == nil:
			winners++
		case errors.Is(err, domain.ErrNotAuthorized):
			// Loser observed the committed hand-off: producerA no longer owns.
		default:
			t.Fatalf("racer %d failed with %v, want not_authorized", i, err)
		}
	}
	if winners != 1 {
		t.Fatalf("expected exactly one winning transfer, got %d", winners)
	}

	batch, err := svc.GetBatch(ctx, 200)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if batch.CurrentOwner != transportB || batch.Stage != domain.RoleTransporter || batch.Status != domain.StatusInTransit {
		t.Fatalf("post-state inconsistent: %+v", batch)
	}
	if batch.Collateral != 100 {
		t.Fatalf("collateral staked %d times the required amount", batch.Collateral/100)
	}
	if len(batch.CustodyTrail) != 1 {
		t.Fatalf("expected a single custody event, got %d", len(batch.CustodyTrail))
	}
	ledger := svc.EscrowLedgerState()
	if ledger.TotalStaked != 100 || ledger.Outstanding() != 100 {
		t.Fatalf("escrow counters must record exactly one stake: %+v", ledger)
	}
}

func TestFinalizeRequiresRetailerOwner(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)

	if _, err := svc.Finalize(ctx, retailerD, 200, true); !errors.Is(err, domain.ErrInvalidState) {
		t.Fatalf("finalize before transit = %v, want invalid_state", err)
	}
	mustTransfer(t, svc, producerA, transportB, 100)
	if _, err := svc.Finalize(ctx, retailerD, 200, true); !errors.Is(err, domain.ErrNotAuthorized) {
		t.Fatalf("non-owner finalize = %v, want not_authorized", err)
	}
	if _, err := svc.Finalize(ctx, transportB, 200, true); !errors.Is(err, domain.ErrNotAuthorizedRole) {
		t.Fatalf("non-retailer finalize = %v, want not_authorized_role", err)
	}
}

func TestQueries(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	createSpinach(t, svc)
	mustTransfer(t, svc, producerA, transportB, 100)
	if _, err := svc.AppendSensorReading(ctx, transportB, 200, domain.SensorReading{Temperature: 4, Humidity: 60, Location: "dock"}); err != nil {
		t.Fatalf("reading: %v", err)
	}

	proj, err := svc.GetBatch(ctx, 200)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if proj.Name != "Spinach" || proj.Status != domain.StatusInTransit {
		t.Fatalf("unexpected projection: %+v", proj)
	}
	if want := testClock.AddDate(0, 0, 14).Format("2006-01-02"); proj.Expiry != want {
		t.Fatalf("expiry = %s, want %s", proj.Expiry, want)
	}

	log, err := svc.SensorHistory(ctx, 200)
	if err != nil || len(log) != 1 || log[0].Location != "dock" {
		t.Fatalf("sensor history = %+v, %v", log, err)
	}
	trail, err := svc.CustodyTrail(ctx, 200)
	if err != nil || len(trail) != 1 || trail[0].To != transportB {
		t.Fatalf("custody trail = %+v, %v", trail, err)
	}
	if _, err := svc.GetBatch(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing batch = %v, want not_found", err)
	}
	if _, err := svc.SensorHistory(ctx, 999); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("missing sensor history = %v, want not_found", err)
	}
	if svc.Admin() != admin {
		t.Fatalf("admin identity lost")
	}
	if _, ok := svc.Store().GetBatch(200); !ok {
		t.Fatalf("store accessor must expose committed state")
	}
}

func TestListBatchesSortedByID(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	registerChain(t, svc)
	for _, id := range []uint64{30, 10, 20} {
		if _, err := svc.CreateBatch(ctx, producerA, core.NewBatch{ID: id, Name: "x", Quantity: 1, ShelfLifeDays: 1}); err != nil {
			t.Fatalf("create %d: %v", id, err)
		}
	}
	batches, err := svc.ListBatches(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(batches) != 3 {
		t.Fatalf("expected 3 batches, got %d", len(batches))
	}
	for i, want := range []uint64{10, 20, 30} {
		if batches[i].ID != want {
			t.Fatalf("batches[%d].ID = %d, want %d", i, batches[i].ID, want)
		}
	}
}

func TestAuditTrailRecordsOperations(t *testing.T) {
	audit := core.NewMemoryAuditRecorder()
	svc := newTestService(t, core.WithAuditRecorder(audit))
	ctx := context.Background()
	if err := svc.RegisterProducer(ctx, admin, producerA); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, err := svc.CreateBatch(ctx, transportB, core.NewBatch{ID: 1, Name: "x", Quantity: 1, ShelfLifeDays: 1}); err == nil {
		t.Fatalf("expected rejection")
	}

	entries := audit.Entries()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[0].Operation != "register_role" || entries[0].Status != core.AuditStatusSuccess {
		t.Fatalf("unexpected first entry: %+v", entries[0])
	}
	if entries[1].Operation != "create_batch" || entries[1].Status != core.AuditStatusError {
		t.Fatalf("unexpected second entry: %+v", entries[1])
	}
	if entries[1].Kind != domain.KindNotAuthorized {
		t.Fatalf("audit entry lost the error kind: %+v", entries[1])
	}
	if entries[1].Actor != transportB || entries[1].EntityID != "1" {
		t.Fatalf("audit entry lost actor or entity id: %+v", entries[1])
	}
}

func TestMetricsRecorderObservesOperations(t *testing.T) {
	rec := core.NewExpvarMetricsRecorder("")
	svc := newTestService(t, core.WithMetricsRecorder(rec))
	registerChain(t, svc)
	if err := svc.RegisterProducer(context.Background(), producerA, producerA); err == nil {
		t.Fatalf("expected rejection")
	}
	stats, ok := rec.Operation("register_role")
	if !ok {
		t.Fatalf("register_role was never observed")
	}
	if stats.Commits != 4 || stats.Rejections != 1 {
		t.Fatalf("register_role stats = %+v", stats)
	}
	snap := rec.Snapshot()
	if len(snap) != 1 || snap[0].Operation != "register_role" {
		t.Fatalf("snapshot = %+v", snap)
	}
}
