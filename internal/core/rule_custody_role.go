package core

import (
	"context"
	"fmt"

	"freshchain/pkg/domain"
)

// CustodyRoleRule blocks commits that leave a batch owned by an identity
// missing the role of its custody stage. The service checks this at the entry
// point; the rule is the commit-time backstop.
func CustodyRoleRule() domain.Rule {
	return custodyRoleRule{}
}

type custodyRoleRule struct{}

func (custodyRoleRule) Name() string { return "custody_role" }

func (custodyRoleRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	reg := view.Registry()
	for _, change := range changes {
		before, after, hasBefore, hasAfter := batchChange(change)
		if !hasAfter {
			continue
		}
		if hasBefore && before.CurrentOwner == after.CurrentOwner && before.Stage == after.Stage {
			continue
		}
		// The producer stage is implicit ownership at creation and needs no
		// registry membership check beyond the service gate.
		if !hasBefore && after.Stage == RoleProducer {
			continue
		}
		if !reg.HasRole(after.CurrentOwner, after.Stage) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "custody_role",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("batch %d owner %s lacks the %s role", after.ID, after.CurrentOwner, after.Stage),
				Entity:   domain.EntityBatch,
				EntityID: batchID(after.ID),
			})
		}
	}
	return res, nil
}
