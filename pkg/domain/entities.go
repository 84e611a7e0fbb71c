// Package domain defines the core persistent entities, value types, and
// rule evaluation primitives used by freshchain.
package domain

import "time"

// Identity is an opaque, globally unique address of an acting party.
// Comparison is exact; the core never normalizes or case-folds it.
type Identity string

// EntityType identifies the type of record stored in the custody ledger.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityBatch identifies a perishable-goods batch record.
	EntityBatch EntityType = "batch"
	// EntityRegistry identifies the singleton role registry record.
	EntityRegistry EntityType = "registry"
	// EntityEscrow identifies the singleton escrow ledger record.
	EntityEscrow EntityType = "escrow"
)

// Role tags a custody-chain participant class.
type Role string

// Custody-chain roles in fixed stage order.
const (
	RoleProducer    Role = "producer"
	RoleTransporter Role = "transporter"
	RoleDistributor Role = "distributor"
	RoleRetailer    Role = "retailer"
)

// Roles lists all custody roles in stage order.
func Roles() []Role {
	return []Role{RoleProducer, RoleTransporter, RoleDistributor, RoleRetailer}
}

// NextStage returns the role required of the receiving party when custody
// leaves the given stage. The chain is fixed: producer -> transporter ->
// distributor -> retailer. ok is false when the stage is terminal.
func NextStage(current Role) (Role, bool) {
	switch current {
	case RoleProducer:
		return RoleTransporter, true
	case RoleTransporter:
		return RoleDistributor, true
	case RoleDistributor:
		return RoleRetailer, true
	default:
		return "", false
	}
}

// BatchStatus represents the custody lifecycle state of a batch.
type BatchStatus string

// Batch lifecycle states. Status only ever advances forward.
const (
	StatusCreated   BatchStatus = "created"
	StatusInTransit BatchStatus = "in_transit"
	StatusFinalized BatchStatus = "finalized"
)

// Outcome records the retailer inspection verdict. Meaningful only once a
// batch is finalized.
type Outcome string

// Inspection outcomes.
const (
	OutcomePending  Outcome = "pending"
	OutcomeAccepted Outcome = "accepted"
	OutcomeRejected Outcome = "rejected"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// SensorReading is one immutable environmental measurement appended to a
// batch's telemetry log while in transit.
type SensorReading struct {
	Timestamp   time.Time `json:"timestamp"`
	Temperature int       `json:"temperature"`
	Humidity    int       `json:"humidity"`
	Location    string    `json:"location"`
}

// SafetyBand declares the inclusive safe ranges for sensor readings of a
// product class. Readings outside the band trip the batch violation flag.
type SafetyBand struct {
	TempMin int `json:"temp_min" toml:"temp_min"`
	TempMax int `json:"temp_max" toml:"temp_max"`
	HumMin  int `json:"hum_min" toml:"hum_min"`
	HumMax  int `json:"hum_max" toml:"hum_max"`
}

// Contains reports whether the reading falls inside the band.
func (b SafetyBand) Contains(r SensorReading) bool {
	if r.Temperature < b.TempMin || r.Temperature > b.TempMax {
		return false
	}
	if r.Humidity < b.HumMin || r.Humidity > b.HumMax {
		return false
	}
	return true
}

// CustodyEvent records one ownership hand-off in a batch's custody trail.
type CustodyEvent struct {
	From  Identity  `json:"from"`
	To    Identity  `json:"to"`
	Actor Identity  `json:"actor"`
	Stage Role      `json:"stage"`
	Stake uint64    `json:"stake,omitempty"`
	At    time.Time `json:"at"`
}

// EscrowReceipt records the single collateral release of a finalized batch.
type EscrowReceipt struct {
	Payee      Identity  `json:"payee"`
	Amount     uint64    `json:"amount"`
	Forfeited  bool      `json:"forfeited"`
	ReleasedAt time.Time `json:"released_at"`
}

// Batch is a perishable-goods batch tracked through the custody chain.
// Amounts are denominated in the smallest currency unit.
type Batch struct {
	ID            uint64          `json:"id"`
	Name          string          `json:"name"`
	Quantity      int             `json:"quantity"`
	ProductClass  string          `json:"product_class"`
	Expiry        time.Time       `json:"expiry"`
	Producer      Identity        `json:"producer"`
	CurrentOwner  Identity        `json:"current_owner"`
	Stage         Role            `json:"stage"`
	Collateral    uint64          `json:"collateral"`
	RequiredStake uint64          `json:"required_stake"`
	Status        BatchStatus     `json:"status"`
	Outcome       Outcome         `json:"outcome"`
	Violation     bool            `json:"violation"`
	SensorLog     []SensorReading `json:"sensor_log"`
	CustodyTrail  []CustodyEvent  `json:"custody_trail"`
	Escrow        *EscrowReceipt  `json:"escrow,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// Registry is the singleton record holding the administrator identity, the
// four role membership sets, and the emergency-pause switch.
type Registry struct {
	Admin        Identity              `json:"admin"`
	Producers    map[Identity]struct{} `json:"producers"`
	Transporters map[Identity]struct{} `json:"transporters"`
	Distributors map[Identity]struct{} `json:"distributors"`
	Retailers    map[Identity]struct{} `json:"retailers"`
	Paused       bool                  `json:"paused"`
}

// NewRegistry constructs a registry owned by the given administrator.
func NewRegistry(admin Identity) Registry {
	return Registry{
		Admin:        admin,
		Producers:    make(map[Identity]struct{}),
		Transporters: make(map[Identity]struct{}),
		Distributors: make(map[Identity]struct{}),
		Retailers:    make(map[Identity]struct{}),
	}
}

func (r Registry) members(role Role) map[Identity]struct{} {
	switch role {
	case RoleProducer:
		return r.Producers
	case RoleTransporter:
		return r.Transporters
	case RoleDistributor:
		return r.Distributors
	case RoleRetailer:
		return r.Retailers
	default:
		return nil
	}
}

// HasRole reports whether id is a member of the given role set.
func (r Registry) HasRole(id Identity, role Role) bool {
	set := r.members(role)
	if set == nil {
		return false
	}
	_, ok := set[id]
	return ok
}

// Grant adds id to the role set. Re-granting an existing member is a no-op.
func (r *Registry) Grant(id Identity, role Role) {
	set := r.members(role)
	if set == nil {
		return
	}
	set[id] = struct{}{}
}

// Clone returns a deep copy of the registry.
func (r Registry) Clone() Registry {
	cp := r
	cp.Producers = cloneSet(r.Producers)
	cp.Transporters = cloneSet(r.Transporters)
	cp.Distributors = cloneSet(r.Distributors)
	cp.Retailers = cloneSet(r.Retailers)
	return cp
}

func cloneSet(in map[Identity]struct{}) map[Identity]struct{} {
	out := make(map[Identity]struct{}, len(in))
	for k := range in {
		out[k] = struct{}{}
	}
	return out
}

// EscrowLedger holds the monotone staking counters backing the conservation
// invariant: outstanding collateral across all batches must always equal
// TotalStaked - TotalReleased.
type EscrowLedger struct {
	TotalStaked   uint64 `json:"total_staked"`
	TotalReleased uint64 `json:"total_released"`
}

// Outstanding returns the value currently locked in escrow.
func (l EscrowLedger) Outstanding() uint64 {
	return l.TotalStaked - l.TotalReleased
}

// Clone returns a deep copy of the batch, detaching all reference fields.
func (b Batch) Clone() Batch {
	cp := b
	cp.SensorLog = append([]SensorReading(nil), b.SensorLog...)
	cp.CustodyTrail = append([]CustodyEvent(nil), b.CustodyTrail...)
	if b.Escrow != nil {
		receipt := *b.Escrow
		cp.Escrow = &receipt
	}
	return cp
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity EntityType
	Action Action
	Before any
	After  any
}

// Action indicates the type of modification performed.
type Action string

// Change actions captured in the audit trail.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	return "transaction blocked by rules"
}
