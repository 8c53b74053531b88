package fasttester

import (
	"errors"
	"fmt"
)

var (
	ErrClosed                   = errors.New("fasttester: harness is closed")
	ErrProcessFailed            = errors.New("fasttester: transaction processing failed")
	ErrSignerLength             = errors.New("fasttester: signer buffer length mismatch")
	ErrInvalidKeypair           = errors.New("fasttester: keypair must be 64 bytes")
	ErrNoInstructions           = errors.New("fasttester: transaction has no instructions")
	ErrU64Overflow              = errors.New("fasttester: value does not fit in u64")
	ErrInvalidLength            = errors.New("fasttester: argument has invalid length")
	ErrIntrospectionUnsupported = errors.New("fasttester: engine does not expose account state")
	ErrAccountNotFound          = errors.New("fasttester: account not found")
)

// ProcessError is returned when the engine reports a non-zero status for a transaction.
type ProcessError struct {
	Status  uint8
	Failure *EngineFailure // Optional reason, when the engine reports one
}

func (e *ProcessError) Error() string {
	if e.Failure != nil && e.Failure.ErrorType != "" {
		return fmt.Sprintf("fasttester: process returned status %d: %s", e.Status, e.Failure.ErrorType)
	}
	return fmt.Sprintf("fasttester: process returned status %d", e.Status)
}

func (e *ProcessError) Is(target error) bool {
	return target == ErrProcessFailed
}

// InitError means the engine could not be loaded or initialized. There is no recovery.
type InitError struct {
	Stage string
	Cause error
}

func (e *InitError) Error() string {
	return fmt.Sprintf("fasttester: engine init failed at %s: %v", e.Stage, e.Cause)
}

func (e *InitError) Unwrap() error {
	return e.Cause
}
