package domain

import (
	"errors"
	"fmt"
)

var (
	ErrGroupNotFound     = errors.New("group not found")
	ErrPartyNotFound     = errors.New("party not found")
	ErrPartyExists       = errors.New("owner already has an active party")
	ErrPartyCorrupt      = errors.New("party member lists out of lock-step")
	ErrStoreUnavailable  = errors.New("session store unavailable")
	ErrVersionConflict   = errors.New("group record was modified concurrently")
	ErrSecretNotFound    = errors.New("secret not found")
	ErrResourceNotFound  = errors.New("platform resource not found")
	ErrPlatformRejected  = errors.New("platform rejected the request")
	ErrUnknownSignalKind = errors.New("unknown signal kind")
)

// ValidationError is a user-facing rejection raised before any state changes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

// ActuatorError reports a failed platform call after its retries ran out.
type ActuatorError struct {
	Op  string
	Err error
}

func (e *ActuatorError) Error() string {
	return fmt.Sprintf("platform %s: %v", e.Op, e.Err)
}

func (e *ActuatorError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err carries a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}
