package core

import (
	"context"
	"fmt"

	"freshchain/pkg/domain"
)

// StickyViolationRule blocks any commit that clears a batch's violation
// flag: once a reading breached the safety band, the breach is permanent.
func StickyViolationRule() domain.Rule {
	return stickyViolationRule{}
}

type stickyViolationRule struct{}

func (stickyViolationRule) Name() string { return "sticky_violation" }

func (stickyViolationRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		before, after, hasBefore, hasAfter := batchChange(change)
		if !hasBefore || !hasAfter {
			continue
		}
		if before.Violation && !after.Violation {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "sticky_violation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d violation flag cannot be cleared", after.ID),
				Entity:   domain.EntityBatch,
				EntityID: batchID(after.ID),
			})
		}
		if len(after.SensorLog) < len(before.SensorLog) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "sticky_violation",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d sensor log is append-only", after.ID),
				Entity:   domain.EntityBatch,
				EntityID: batchID(after.ID),
			})
		}
	}
	return res, nil
}
