package core

import (
	"context"
	"fmt"

	"freshchain/pkg/domain"
)

// StageTransitionRule blocks any batch status movement that is not a single
// forward step of Created -> InTransit -> Finalized, and freezes finalized
// batches entirely.
func StageTransitionRule() domain.Rule {
	return stageTransitionRule{}
}

type stageTransitionRule struct{}

var statusOrder = map[domain.BatchStatus]int{
	StatusCreated:   0,
	StatusInTransit: 1,
	StatusFinalized: 2,
}

func (stageTransitionRule) Name() string { return "stage_transition" }

func (stageTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, hasAfter := batchChange(change)
		if !hasAfter {
			continue
		}
		if _, valid := statusOrder[after.Status]; !valid {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "stage_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d is set to invalid status %s", after.ID, after.Status),
				Entity:   domain.EntityBatch,
				EntityID: batchID(after.ID),
			})
			continue
		}
		if !hasBefore {
			// Creation must start at the beginning of the chain.
			if after.Status != StatusCreated {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "stage_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("batch %d created in status %s", after.ID, after.Status),
					Entity:   domain.EntityBatch,
					EntityID: batchID(after.ID),
				})
			}
			continue
		}
		if statusOrder[after.Status] < statusOrder[before.Status] {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "stage_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d cannot move from %s back to %s", after.ID, before.Status, after.Status),
				Entity:   domain.EntityBatch,
				EntityID: batchID(after.ID),
			})
		}
		if before.Status == StatusFinalized {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "stage_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d is finalized and immutable", before.ID),
				Entity:   domain.EntityBatch,
				EntityID: batchID(before.ID),
			})
		}
	}
	return res, nil
}
