package domain_test

import (
	"testing"
	"time"

	"freshchain/pkg/domain"
)

func TestNextStageWalksTheChain(t *testing.T) {
	stage := domain.RoleProducer
	want := []domain.Role{domain.RoleTransporter, domain.RoleDistributor, domain.RoleRetailer}
	for _, expected := range want {
		next, ok := domain.NextStage(stage)
		if !ok {
			t.Fatalf("expected a next stage after %s", stage)
		}
		if next != expected {
			t.Fatalf("expected %s after %s, got %s", expected, stage, next)
		}
		stage = next
	}
	if _, ok := domain.NextStage(domain.RoleRetailer); ok {
		t.Fatalf("retailer must be the terminal stage")
	}
	if _, ok := domain.NextStage(domain.Role("auditor")); ok {
		t.Fatalf("unknown roles must not have a next stage")
	}
}

func TestSafetyBandContains(t *testing.T) {
	band := domain.SafetyBand{TempMin: 0, TempMax: 8, HumMin: 20, HumMax: 90}
	cases := []struct {
		name    string
		reading domain.SensorReading
		want    bool
	}{
		{"inside", domain.SensorReading{Temperature: 4, Humidity: 60}, true},
		{"temp min boundary", domain.SensorReading{Temperature: 0, Humidity: 20}, true},
		{"temp max boundary", domain.SensorReading{Temperature: 8, Humidity: 90}, true},
		{"too warm", domain.SensorReading{Temperature: 25, Humidity: 60}, false},
		{"too cold", domain.SensorReading{Temperature: -2, Humidity: 60}, false},
		{"too dry", domain.SensorReading{Temperature: 4, Humidity: 10}, false},
		{"too humid", domain.SensorReading{Temperature: 4, Humidity: 95}, false},
	}
	for _, tc := range cases {
		if got := band.Contains(tc.reading); got != tc.want {
			t.Fatalf("%s: Contains = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestRegistryGrantAndHasRole(t *testing.T) {
	reg := domain.NewRegistry("admin")
	if reg.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("fresh registry must have no members")
	}
	reg.Grant("alice", domain.RoleProducer)
	if !reg.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("grant did not take effect")
	}
	if reg.HasRole("alice", domain.RoleRetailer) {
		t.Fatalf("grant must be role-scoped")
	}
	reg.Grant("alice", domain.RoleProducer)
	if !reg.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("re-grant must be a no-op, not a removal")
	}
	if reg.HasRole("alice", domain.Role("auditor")) {
		t.Fatalf("unknown role must never match")
	}
}

func TestRegistryCloneIsIndependent(t *testing.T) {
	reg := domain.NewRegistry("admin")
	reg.Grant("alice", domain.RoleProducer)
	cp := reg.Clone()
	cp.Grant("bob", domain.RoleProducer)
	cp.Paused = true
	if reg.HasRole("bob", domain.RoleProducer) {
		t.Fatalf("grant on clone leaked into original")
	}
	if reg.Paused {
		t.Fatalf("pause on clone leaked into original")
	}
	if !cp.HasRole("alice", domain.RoleProducer) {
		t.Fatalf("clone lost existing member")
	}
}

func TestBatchCloneDetachesReferences(t *testing.T) {
	original := domain.Batch{
		ID:        7,
		SensorLog: []domain.SensorReading{{Temperature: 4, Humidity: 60}},
		CustodyTrail: []domain.CustodyEvent{
			{From: "a", To: "b", Stage: domain.RoleTransporter},
		},
		Escrow: &domain.EscrowReceipt{Payee: "a", Amount: 10},
	}
	cp := original.Clone()
	cp.SensorLog[0].Temperature = 99
	cp.CustodyTrail[0].To = "c"
	cp.Escrow.Amount = 0
	if original.SensorLog[0].Temperature != 4 {
		t.Fatalf("sensor log shared between clone and original")
	}
	if original.CustodyTrail[0].To != "b" {
		t.Fatalf("custody trail shared between clone and original")
	}
	if original.Escrow.Amount != 10 {
		t.Fatalf("escrow receipt shared between clone and original")
	}
}

func TestEscrowLedgerOutstanding(t *testing.T) {
	ledger := domain.EscrowLedger{TotalStaked: 500, TotalReleased: 200}
	if got := ledger.Outstanding(); got != 300 {
		t.Fatalf("Outstanding = %d, want 300", got)
	}
}

func TestResultMergeAndHasBlocking(t *testing.T) {
	var combined domain.Result
	combined.Merge(domain.Result{})
	if combined.HasBlocking() {
		t.Fatalf("empty result must not block")
	}
	combined.Merge(domain.Result{Violations: []domain.Violation{{Rule: "x", Severity: domain.SeverityWarn}}})
	if combined.HasBlocking() {
		t.Fatalf("warn severity must not block")
	}
	combined.Merge(domain.Result{Violations: []domain.Violation{{Rule: "y", Severity: domain.SeverityBlock}}})
	if !combined.HasBlocking() {
		t.Fatalf("block severity must block")
	}
	if len(combined.Violations) != 2 {
		t.Fatalf("expected 2 merged violations, got %d", len(combined.Violations))
	}
}

func TestBatchCloneCopiesTimestamps(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	b := domain.Batch{ID: 1, CreatedAt: now, UpdatedAt: now}
	cp := b.Clone()
	if !cp.CreatedAt.Equal(now) || !cp.UpdatedAt.Equal(now) {
		t.Fatalf("clone altered timestamps")
	}
}
