package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind enumerates the failure categories the engine reacts to.
// Kinds, not Go types, drive retry/terminal classification so callers
// switch on Kind() rather than on concrete error types.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindRateLimited
	KindSlowMode
	KindNetworkTransient
	KindAuthFailed
	KindAccessDenied
	KindInvalidData
	KindValidationFailed
	KindSizeLimitExceeded
	KindDiskFull
	KindIndexConstraintRace
	KindCancelled
)

func (k ErrorKind) String() string {
	switch k {
	case KindRateLimited:
		return "rate_limited"
	case KindSlowMode:
		return "slow_mode"
	case KindNetworkTransient:
		return "network_transient"
	case KindAuthFailed:
		return "auth_failed"
	case KindAccessDenied:
		return "access_denied"
	case KindInvalidData:
		return "invalid_data"
	case KindValidationFailed:
		return "validation_failed"
	case KindSizeLimitExceeded:
		return "size_limit_exceeded"
	case KindDiskFull:
		return "disk_full"
	case KindIndexConstraintRace:
		return "index_constraint_race"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error wraps a cause with a Kind so retry/terminal policy can dispatch on
// it with errors.As instead of matching concrete error types.
type Error struct {
	Kind ErrorKind
	// Wait is the server-advised wait duration for KindRateLimited /
	// KindSlowMode; zero for all other kinds.
	Wait time.Duration
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error of the given kind wrapping err.
func NewError(kind ErrorKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// NewWaitError builds a KindRateLimited or KindSlowMode error carrying the
// server-advised wait.
func NewWaitError(kind ErrorKind, wait time.Duration, err error) *Error {
	return &Error{Kind: kind, Wait: wait, Err: err}
}

// KindOf extracts the Kind of err, defaulting to KindUnknown when err is
// not (or does not wrap) a *Error.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Retryable reports whether errors of this kind are worth retrying.
func (k ErrorKind) Retryable() bool {
	switch k {
	case KindRateLimited, KindSlowMode, KindNetworkTransient:
		return true
	default:
		return false
	}
}
