package core

import "freshchain/pkg/domain"

// NewDefaultRulesEngine builds a rules engine with the built-in invariant
// set. The service enforces the same constraints up front; the rules are the
// commit-time backstop that keeps money and custody state from diverging
// even if an entry point regresses.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(StageTransitionRule())
	engine.Register(StickyViolationRule())
	engine.Register(CollateralConservationRule())
	engine.Register(CustodyRoleRule())
	return engine
}

// batchChange extracts the typed batch payloads of a change record.
func batchChange(change domain.Change) (before, after domain.Batch, hasBefore, hasAfter bool) {
	if change.Entity != domain.EntityBatch {
		return
	}
	if b, ok := change.Before.(domain.Batch); ok {
		before, hasBefore = b, true
	}
	if b, ok := change.After.(domain.Batch); ok {
		after, hasAfter = b, true
	}
	return
}
