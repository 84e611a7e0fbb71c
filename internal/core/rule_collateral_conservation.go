package core

import (
	"context"
	"fmt"

	"freshchain/pkg/domain"
)

// CollateralConservationRule verifies that no transaction creates or
// destroys escrowed value: the collateral outstanding across all batches
// must equal the ledger's staked-minus-released counters, and collateral may
// only be held by batches in transit.
func CollateralConservationRule() domain.Rule {
	return collateralConservationRule{}
}

type collateralConservationRule struct{}

func (collateralConservationRule) Name() string { return "collateral_conservation" }

func (collateralConservationRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	var outstanding uint64
	for _, b := range view.ListBatches() {
		outstanding += b.Collateral
		if b.Collateral != 0 && b.Status != StatusInTransit {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "collateral_conservation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d holds collateral while %s", b.ID, b.Status),
				Entity:   domain.EntityBatch,
				EntityID: batchID(b.ID),
			})
		}
	}
	ledger := view.Ledger()
	if ledger.TotalReleased > ledger.TotalStaked {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "collateral_conservation",
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("escrow released %d exceeds staked %d", ledger.TotalReleased, ledger.TotalStaked),
			Entity:   domain.EntityEscrow,
		})
	} else if outstanding != ledger.Outstanding() {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "collateral_conservation",
			Severity: SeverityBlock,
			Message:  fmt.Sprintf("outstanding collateral %d does not match escrow ledger %d", outstanding, ledger.Outstanding()),
			Entity:   domain.EntityEscrow,
		})
	}
	return res, nil
}
