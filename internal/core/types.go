package core

import "freshchain/pkg/domain"

type (
	Identity        = domain.Identity
	Role            = domain.Role
	EntityType      = domain.EntityType
	BatchStatus     = domain.BatchStatus
	Outcome         = domain.Outcome
	Severity        = domain.Severity
	Batch           = domain.Batch
	SensorReading   = domain.SensorReading
	SafetyBand      = domain.SafetyBand
	CustodyEvent    = domain.CustodyEvent
	EscrowReceipt   = domain.EscrowReceipt
	EscrowLedger    = domain.EscrowLedger
	Registry        = domain.Registry
	Change          = domain.Change
	Action          = domain.Action
	Violation       = domain.Violation
	Result          = domain.Result
	Rule            = domain.Rule
	RulesEngine     = domain.RulesEngine
	RuleView        = domain.RuleView
	Transaction     = domain.Transaction
	TransactionView = domain.TransactionView
	PersistentStore = domain.PersistentStore
)

const (
	RoleProducer    = domain.RoleProducer
	RoleTransporter = domain.RoleTransporter
	RoleDistributor = domain.RoleDistributor
	RoleRetailer    = domain.RoleRetailer
)

const (
	StatusCreated   = domain.StatusCreated
	StatusInTransit = domain.StatusInTransit
	StatusFinalized = domain.StatusFinalized
)

const (
	OutcomePending  = domain.OutcomePending
	OutcomeAccepted = domain.OutcomeAccepted
	OutcomeRejected = domain.OutcomeRejected
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
