package memengine

import (
	"errors"
	"fmt"

	"github.com/mgpai22/fasttester"
)

// Failure kinds reported through fasttester.EngineFailure.ErrorType.
const (
	FailureInvalidMessage           = "InvalidMessage"
	FailureInvalidKeypair           = "InvalidKeypair"
	FailureMissingSignature         = "MissingSignature"
	FailureKeypairPubkeyMismatch    = "KeypairPubkeyMismatch"
	FailureSignatureFailure         = "SignatureFailure"
	FailureMissingRequiredSignature = "MissingRequiredSignature"
	FailureAccountNotWritable       = "AccountNotWritable"
	FailureNotEnoughAccountKeys     = "NotEnoughAccountKeys"
	FailureInsufficientFunds        = "InsufficientFunds"
	FailureAccountAlreadyInUse      = "AccountAlreadyInUse"
	FailureInvalidAccountOwner      = "InvalidAccountOwner"
	FailureInvalidArgument          = "InvalidArgument"
	FailureArithmeticOverflow       = "ArithmeticOverflow"
	FailureInvalidInstructionData   = "InvalidInstructionData"
	FailureUnsupportedProgram       = "UnsupportedProgram"
)

// txError is a transaction failure of a known kind.
type txError struct {
	Kind        string
	Instruction int // -1 when the failure is not tied to an instruction
	Detail      string
}

func (e *txError) Error() string {
	if e.Instruction >= 0 {
		return fmt.Sprintf("instruction %d: %s: %s", e.Instruction, e.Kind, e.Detail)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Detail)
}

func txFail(kind, format string, args ...any) *txError {
	return &txError{Kind: kind, Instruction: -1, Detail: fmt.Sprintf(format, args...)}
}

func toFailure(err error) *fasttester.EngineFailure {
	var te *txError
	if errors.As(err, &te) {
		return &fasttester.EngineFailure{ErrorType: te.Kind, Logs: []string{te.Error()}}
	}
	return &fasttester.EngineFailure{ErrorType: "Unknown", Logs: []string{err.Error()}}
}
