package core

import (
	"context"
	"errors"
	"strconv"
	"time"

	"freshchain/pkg/domain"
)

// ForfeitBeneficiary selects who receives the collateral of a rejected or
// violated batch at finalization.
type ForfeitBeneficiary string

// Supported forfeiture beneficiaries.
const (
	// ForfeitToRetailer pays the collateral to the finalizing retailer.
	ForfeitToRetailer ForfeitBeneficiary = "retailer"
	// ForfeitToProducer refunds the collateral to the producer regardless
	// of outcome.
	ForfeitToProducer ForfeitBeneficiary = "producer"
	// ForfeitBurn destroys the collateral: it is released from escrow with
	// no payee.
	ForfeitBurn ForfeitBeneficiary = "burn"
)

// EscrowPolicy configures collateral release at finalization. A clean
// outcome (accepted, no violation) always refunds the producer; the policy
// only decides the beneficiary otherwise.
type EscrowPolicy struct {
	ForfeitTo ForfeitBeneficiary
}

// DefaultEscrowPolicy forfeits tainted collateral to the finalizing retailer.
func DefaultEscrowPolicy() EscrowPolicy {
	return EscrowPolicy{ForfeitTo: ForfeitToRetailer}
}

// Service exposes the custody and escrow entry points of the ledger. Every
// mutating operation executes atomically: the store clones state, the
// operation applies, the rules engine gates the commit, and a failure leaves
// no partial effect.
type Service struct {
	store        domain.PersistentStore
	bands        map[string]domain.SafetyBand
	policy       EscrowPolicy
	defaultStake uint64
	logger       Logger
	audit        AuditRecorder
	metrics      MetricsRecorder
	clock        Clock
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithLogger injects a structured logger.
func WithLogger(l Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithAuditRecorder injects an audit trail recorder.
func WithAuditRecorder(a AuditRecorder) Option {
	return func(s *Service) {
		if a != nil {
			s.audit = a
		}
	}
}

// WithMetricsRecorder injects a metrics recorder.
func WithMetricsRecorder(m MetricsRecorder) Option {
	return func(s *Service) {
		if m != nil {
			s.metrics = m
		}
	}
}

// WithClock overrides the service clock. Intended for tests.
func WithClock(c Clock) Option {
	return func(s *Service) {
		if c != nil {
			s.clock = c
		}
	}
}

// WithSafetyBands declares the safe sensor ranges per product class. A batch
// whose class has no declared band never trips the violation flag.
func WithSafetyBands(bands map[string]domain.SafetyBand) Option {
	return func(s *Service) {
		s.bands = make(map[string]domain.SafetyBand, len(bands))
		for class, band := range bands {
			s.bands[class] = band
		}
	}
}

// WithEscrowPolicy overrides the forfeiture policy.
func WithEscrowPolicy(p EscrowPolicy) Option {
	return func(s *Service) {
		s.policy = p
	}
}

// WithDefaultRequiredStake sets the stake required at first transfer for
// batches created without an explicit requirement.
func WithDefaultRequiredStake(amount uint64) Option {
	return func(s *Service) {
		s.defaultStake = amount
	}
}

// NewService constructs a service backed by the supplied store.
func NewService(store domain.PersistentStore, opts ...Option) *Service {
	s := &Service{
		store:   store,
		bands:   map[string]domain.SafetyBand{},
		policy:  DefaultEscrowPolicy(),
		logger:  noopLogger{},
		audit:   noopAuditRecorder{},
		metrics: noopMetricsRecorder{},
		clock:   ClockFunc(func() time.Time { return time.Now().UTC() }),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store returns the underlying persistent store.
func (s *Service) Store() domain.PersistentStore {
	return s.store
}

func (s *Service) band(class string) (domain.SafetyBand, bool) {
	band, ok := s.bands[class]
	return band, ok
}

func (s *Service) finish(ctx context.Context, operation string, entity domain.EntityType, entityID string, actor domain.Identity, started time.Time, err error) {
	duration := s.clock.Now().Sub(started)
	s.metrics.Observe(ctx, operation, err == nil, duration)
	entry := AuditEntry{
		Operation: operation,
		Entity:    entity,
		EntityID:  entityID,
		Actor:     actor,
		Status:    AuditStatusSuccess,
		Duration:  duration,
		Timestamp: s.clock.Now(),
	}
	if err != nil {
		entry.Status = AuditStatusError
		var derr *domain.Error
		if errors.As(err, &derr) {
			entry.Kind = derr.Kind
		}
		s.logger.Warn("operation rejected", "operation", operation, "entity_id", entityID, "error", err)
	} else {
		s.logger.Debug("operation committed", "operation", operation, "entity_id", entityID)
	}
	s.audit.Record(ctx, entry)
}

func batchID(id uint64) string {
	return strconv.FormatUint(id, 10)
}

func pausedGuard(reg domain.Registry) error {
	if reg.Paused {
		return domain.RegistryError(domain.KindSystemPaused, "emergency pause is active")
	}
	return nil
}
