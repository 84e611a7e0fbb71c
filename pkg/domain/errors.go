package domain

import (
	"fmt"
	"strconv"
)

// ErrorKind classifies a rejected ledger operation. Every failure surfaced
// by the core carries a kind plus the batch it concerns so callers can
// render an actionable message; the core never formats for display.
type ErrorKind string

// Failure taxonomy for custody and escrow operations.
const (
	KindNotAuthorized          ErrorKind = "not_authorized"
	KindNotAuthorizedRole      ErrorKind = "not_authorized_role"
	KindSystemPaused           ErrorKind = "system_paused"
	KindDuplicateID            ErrorKind = "duplicate_id"
	KindInvalidStageTransition ErrorKind = "invalid_stage_transition"
	KindUnexpectedStake        ErrorKind = "unexpected_stake"
	KindMissingStake           ErrorKind = "missing_stake"
	KindAlreadyStaked          ErrorKind = "already_staked"
	KindAlreadyReleased        ErrorKind = "already_released"
	KindInvalidState           ErrorKind = "invalid_state"
	KindBatchFinalized         ErrorKind = "batch_finalized"
	KindNotFound               ErrorKind = "not_found"
)

// Error is the typed failure returned by every rejected operation.
type Error struct {
	Kind   ErrorKind
	Entity EntityType
	ID     string
	Detail string
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.ID != "" {
		msg = fmt.Sprintf("%s: %s %s", msg, e.Entity, e.ID)
	}
	if e.Detail != "" {
		msg = msg + ": " + e.Detail
	}
	return msg
}

// Is matches errors of the same kind, and, when the target names an ID, the
// same entity ID. This makes sentinel comparison via errors.Is work.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	if t.ID != "" && (t.ID != e.ID || t.Entity != e.Entity) {
		return false
	}
	return true
}

// Sentinels for errors.Is checks.
var (
	ErrNotAuthorized          = &Error{Kind: KindNotAuthorized}
	ErrNotAuthorizedRole      = &Error{Kind: KindNotAuthorizedRole}
	ErrSystemPaused           = &Error{Kind: KindSystemPaused}
	ErrDuplicateID            = &Error{Kind: KindDuplicateID}
	ErrInvalidStageTransition = &Error{Kind: KindInvalidStageTransition}
	ErrUnexpectedStake        = &Error{Kind: KindUnexpectedStake}
	ErrMissingStake           = &Error{Kind: KindMissingStake}
	ErrAlreadyStaked          = &Error{Kind: KindAlreadyStaked}
	ErrAlreadyReleased        = &Error{Kind: KindAlreadyReleased}
	ErrInvalidState           = &Error{Kind: KindInvalidState}
	ErrBatchFinalized         = &Error{Kind: KindBatchFinalized}
	ErrNotFound               = &Error{Kind: KindNotFound}
)

// BatchError builds a typed failure scoped to a batch.
func BatchError(kind ErrorKind, id uint64, detail string) *Error {
	return &Error{Kind: kind, Entity: EntityBatch, ID: strconv.FormatUint(id, 10), Detail: detail}
}

// RegistryError builds a typed failure scoped to the role registry.
func RegistryError(kind ErrorKind, detail string) *Error {
	return &Error{Kind: kind, Entity: EntityRegistry, Detail: detail}
}
