// Command snapshot-check validates the invariants of a persisted custody
// ledger snapshot without starting the daemon. It exits non-zero when the
// stored state violates an invariant the rules engine would have blocked.
package main

import (
	"flag"
	"fmt"
	"os"

	"freshchain/internal/core"
	"freshchain/pkg/domain"
)

func main() {
	driver := flag.String("driver", "sqlite", "storage driver: sqlite|postgres")
	dbPath := flag.String("db", "freshchain.db", "sqlite database path")
	dsn := flag.String("dsn", "", "postgres DSN (driver=postgres)")
	flag.Parse()

	store, err := core.OpenStorage(core.StorageDriver(*driver), core.StorageOptions{
		SQLitePath:  *dbPath,
		PostgresDSN: *dsn,
	}, "snapshot-check", core.NewDefaultRulesEngine())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer closeStore(store)

	problems := check(store.Registry(), store.ListBatches(), store.Ledger())
	if len(problems) == 0 {
		fmt.Println("snapshot ok")
		return
	}
	for _, p := range problems {
		fmt.Fprintln(os.Stderr, p)
	}
	os.Exit(1)
}

func closeStore(store core.PersistentStore) {
	type closer interface{ Close() error }
	if c, ok := store.(closer); ok {
		_ = c.Close()
	}
}

func check(reg domain.Registry, batches []domain.Batch, ledger domain.EscrowLedger) []string {
	var problems []string
	report := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if reg.Admin == "" {
		report("registry: missing administrator identity")
	}

	var outstanding uint64
	for _, b := range batches {
		switch b.Status {
		case domain.StatusCreated, domain.StatusInTransit, domain.StatusFinalized:
		default:
			report("batch %d: unknown status %q", b.ID, b.Status)
		}
		switch b.Outcome {
		case domain.OutcomePending, domain.OutcomeAccepted, domain.OutcomeRejected:
		default:
			report("batch %d: unknown outcome %q", b.ID, b.Outcome)
		}
		if b.Collateral != 0 && b.Status != domain.StatusInTransit {
			report("batch %d: collateral held outside transit", b.ID)
		}
		outstanding += b.Collateral
		if b.Status == domain.StatusFinalized {
			if b.Escrow == nil {
				report("batch %d: finalized without escrow receipt", b.ID)
			}
			if b.Outcome == domain.OutcomePending {
				report("batch %d: finalized with pending outcome", b.ID)
			}
		} else if b.Outcome != domain.OutcomePending {
			report("batch %d: outcome recorded before finalization", b.ID)
		}
		if b.Status != domain.StatusCreated && len(b.CustodyTrail) == 0 {
			report("batch %d: left creation without a custody event", b.ID)
		}
		if b.Violation && len(b.SensorLog) == 0 {
			report("batch %d: violation flagged without sensor readings", b.ID)
		}
		if b.Producer == "" {
			report("batch %d: missing producer identity", b.ID)
		}
	}

	if ledger.TotalReleased > ledger.TotalStaked {
		report("ledger: released %d exceeds staked %d", ledger.TotalReleased, ledger.TotalStaked)
	}
	if outstanding != ledger.Outstanding() {
		report("ledger: outstanding collateral %d does not match counters %d", outstanding, ledger.Outstanding())
	}
	return problems
}
