// Package status defines the closed error taxonomy shared by every engine.
// Callers branch on Kind; user-facing reason codes travel in Reason.
package status

import (
	"errors"
	"fmt"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindValidation
	KindNotFound
	KindConflict
	KindForbidden
	KindBusy
	KindInfrastructure
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindBusy:
		return "busy"
	case KindInfrastructure:
		return "infrastructure"
	default:
		return "unknown"
	}
}

// Machine-readable reason codes. Stable strings exposed to API clients and
// reused as eligibility/redemption result reasons.
const (
	ReasonCapacityExceeded    = "capacity_exceeded"
	ReasonInvalidInput        = "invalid_input"
	ReasonInvalidState        = "invalid_state_transition"
	ReasonInvalidFormat       = "invalid_format"
	ReasonWrongEvent          = "wrong_event"
	ReasonAlreadyUsed         = "already_used"
	ReasonTicketCancelled     = "ticket_cancelled"
	ReasonTicketNotFound      = "ticket_not_found"
	ReasonNotTransferable     = "not_transferable"
	ReasonNotOwner            = "not_owner"
	ReasonSelfTransfer        = "self_transfer"
	ReasonRecipientIneligible = "recipient_ineligible"
	ReasonTransfersDisabled   = "transfers_disabled"
	ReasonDeadlinePassed      = "transfer_deadline_passed"
	ReasonBlackoutWindow      = "transfer_blackout_window"
	ReasonTransferLimit       = "transfer_limit_exceeded"
	ReasonCooldownActive      = "transfer_cooldown_active"
	ReasonLockBusy            = "lock_busy"
)

type Error struct {
	Kind   Kind
	Reason string
	Msg    string
	err    error
}

func (e *Error) Error() string {
	if e.err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.err }

// Is matches another *Error with the same kind and, when the target carries
// one, the same reason. Message text is ignored.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return e.Kind == t.Kind && (t.Reason == "" || e.Reason == t.Reason)
}

func Validation(reason, msg string) *Error {
	return &Error{Kind: KindValidation, Reason: reason, Msg: msg}
}

func NotFound(reason, msg string) *Error {
	return &Error{Kind: KindNotFound, Reason: reason, Msg: msg}
}

func Conflict(reason, msg string) *Error {
	return &Error{Kind: KindConflict, Reason: reason, Msg: msg}
}

func Forbidden(reason, msg string) *Error {
	return &Error{Kind: KindForbidden, Reason: reason, Msg: msg}
}

func Busy(msg string) *Error {
	return &Error{Kind: KindBusy, Reason: ReasonLockBusy, Msg: msg}
}

func Infrastructure(msg string, err error) *Error {
	return &Error{Kind: KindInfrastructure, Msg: msg, err: err}
}

// KindOf reports the kind of err, or KindUnknown for errors outside the
// taxonomy (callers treat those as infrastructure failures).
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ReasonOf extracts the machine reason code, empty when not tagged.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Reason
	}
	return ""
}

// Retryable reports whether the caller may retry the same request after
// backing off. Only lock contention qualifies.
func Retryable(err error) bool {
	return KindOf(err) == KindBusy
}
