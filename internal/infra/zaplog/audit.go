package zaplog

import (
	"context"

	"go.uber.org/zap"

	"freshchain/internal/core"
)

// AuditRecorder writes audit entries to a zap logger as structured events.
type AuditRecorder struct {
	s *zap.SugaredLogger
}

// NewAuditRecorder wraps the given zap logger for audit output.
func NewAuditRecorder(l *zap.Logger) *AuditRecorder {
	if l == nil {
		l = zap.NewNop()
	}
	return &AuditRecorder{s: l.Sugar()}
}

// Record emits one audit entry at info level.
func (r *AuditRecorder) Record(_ context.Context, entry core.AuditEntry) {
	r.s.Infow("audit",
		"operation", entry.Operation,
		"entity", entry.Entity,
		"entity_id", entry.EntityID,
		"actor", entry.Actor,
		"status", entry.Status,
		"error_kind", entry.Kind,
		"duration", entry.Duration,
		"timestamp", entry.Timestamp,
	)
}
