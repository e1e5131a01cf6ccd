// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrorCode identifies a kind of protocol error.
type ErrorCode int

// These constants are used to identify a specific ProtocolError.
const (
	// ErrRoundNotFound indicates a request for an unknown round.
	ErrRoundNotFound ErrorCode = iota

	// ErrWrongPhase indicates a request the round does not accept in its
	// current phase.
	ErrWrongPhase

	// ErrInputSpent indicates an input that is already spent.
	ErrInputSpent

	// ErrInputUnconfirmed indicates an input whose transaction is not
	// confirmed.
	ErrInputUnconfirmed

	// ErrInputImmature indicates an immature coinbase input.
	ErrInputImmature

	// ErrWrongOwnershipProof indicates an ownership proof that does not
	// verify.
	ErrWrongOwnershipProof

	// ErrTooManyInputs indicates a round that is full.
	ErrTooManyInputs

	// ErrNotEnoughFunds indicates an input below the allowed amount.
	ErrNotEnoughFunds

	// ErrTooMuchFunds indicates an input above the allowed amount.
	ErrTooMuchFunds

	// ErrNonUniqueInputs indicates an input registered twice.
	ErrNonUniqueInputs

	// ErrInputBanned indicates an input in prison.
	ErrInputBanned

	// ErrInputLongBanned indicates an input serving a long ban.
	ErrInputLongBanned

	// ErrInputNotWhitelisted indicates an input that did not sign the
	// round a blame round was created for.
	ErrInputNotWhitelisted

	// ErrAliceNotFound indicates an unknown Alice id.
	ErrAliceNotFound

	// ErrIncorrectRequestedVsizeCredentials indicates a vsize delta that
	// does not match what the registration allows.
	ErrIncorrectRequestedVsizeCredentials

	// ErrTooMuchVsize indicates an input whose vsize does not fit the
	// per Alice allocation.
	ErrTooMuchVsize

	// ErrScriptNotAllowed indicates a script type the round does not
	// accept.
	ErrScriptNotAllowed

	// ErrIncorrectRequestedAmountCredentials indicates an amount delta
	// that does not match what the registration allows.
	ErrIncorrectRequestedAmountCredentials

	// ErrWrongCoinjoinSignature indicates a witness that does not
	// satisfy the input script.
	ErrWrongCoinjoinSignature

	// ErrAliceAlreadyRegistered indicates an input registered in
	// another round.
	ErrAliceAlreadyRegistered

	// ErrNonStandardInput indicates an input script the coordinator
	// cannot estimate.
	ErrNonStandardInput

	// ErrNonStandardOutput indicates an output that is dust or otherwise
	// not relayable.
	ErrNonStandardOutput

	// ErrDeltaNotZero indicates a reissuance that creates or destroys
	// value.
	ErrDeltaNotZero

	// ErrWrongNumberOfCreds indicates credential requests of the wrong
	// size.
	ErrWrongNumberOfCreds

	// ErrCryptoException indicates a credential request the issuer
	// rejected.
	ErrCryptoException

	// ErrAliceAlreadySignalled indicates a repeated ready to sign
	// signal.
	ErrAliceAlreadySignalled

	// ErrAliceAlreadyConfirmedConnection indicates a repeated
	// confirmation after the real credentials were issued.
	ErrAliceAlreadyConfirmedConnection

	// ErrAlreadyRegisteredScript indicates an output script that is
	// already in the transaction.
	ErrAlreadyRegisteredScript

	// ErrSignatureTooLong indicates an oversized witness.
	ErrSignatureTooLong

	// ErrWitnessAlreadyProvided indicates an input that is already
	// signed.
	ErrWitnessAlreadyProvided

	// ErrInsufficientFees indicates outputs that do not leave enough
	// for the mining fee.
	ErrInsufficientFees

	// ErrSizeLimitExceeded indicates a transaction that would exceed
	// the maximum standard size.
	ErrSizeLimitExceeded
)

// Map of ErrorCode values back to their wire names.
var errorCodeStrings = map[ErrorCode]string{
	ErrRoundNotFound:                       "RoundNotFound",
	ErrWrongPhase:                          "WrongPhase",
	ErrInputSpent:                          "InputSpent",
	ErrInputUnconfirmed:                    "InputUnconfirmed",
	ErrInputImmature:                       "InputImmature",
	ErrWrongOwnershipProof:                 "WrongOwnershipProof",
	ErrTooManyInputs:                       "TooManyInputs",
	ErrNotEnoughFunds:                      "NotEnoughFunds",
	ErrTooMuchFunds:                        "TooMuchFunds",
	ErrNonUniqueInputs:                     "NonUniqueInputs",
	ErrInputBanned:                         "InputBanned",
	ErrInputLongBanned:                     "InputLongBanned",
	ErrInputNotWhitelisted:                 "InputNotWhitelisted",
	ErrAliceNotFound:                       "AliceNotFound",
	ErrIncorrectRequestedVsizeCredentials:  "IncorrectRequestedVsizeCredentials",
	ErrTooMuchVsize:                        "TooMuchVsize",
	ErrScriptNotAllowed:                    "ScriptNotAllowed",
	ErrIncorrectRequestedAmountCredentials: "IncorrectRequestedAmountCredentials",
	ErrWrongCoinjoinSignature:              "WrongCoinjoinSignature",
	ErrAliceAlreadyRegistered:              "AliceAlreadyRegistered",
	ErrNonStandardInput:                    "NonStandardInput",
	ErrNonStandardOutput:                   "NonStandardOutput",
	ErrDeltaNotZero:                        "DeltaNotZero",
	ErrWrongNumberOfCreds:                  "WrongNumberOfCreds",
	ErrCryptoException:                     "CryptoException",
	ErrAliceAlreadySignalled:               "AliceAlreadySignalled",
	ErrAliceAlreadyConfirmedConnection:     "AliceAlreadyConfirmedConnection",
	ErrAlreadyRegisteredScript:             "AlreadyRegisteredScript",
	ErrSignatureTooLong:                    "SignatureTooLong",
	ErrWitnessAlreadyProvided:              "WitnessAlreadyProvided",
	ErrInsufficientFees:                    "InsufficientFees",
	ErrSizeLimitExceeded:                   "SizeLimitExceeded",
}

// String returns the ErrorCode as its wire name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// ParseErrorCode returns the ErrorCode with the given wire name.
func ParseErrorCode(s string) (ErrorCode, error) {
	for code, name := range errorCodeStrings {
		if name == s {
			return code, nil
		}
	}

	return 0, fmt.Errorf("unknown error code %q", s)
}

// ExceptionData is additional machine readable context of a protocol
// error.
type ExceptionData interface {
	exceptionData()
}

// EmptyExceptionData carries no data.
type EmptyExceptionData struct{}

func (EmptyExceptionData) exceptionData() {}

// InputBannedExceptionData tells the client until when its input is
// banned.
type InputBannedExceptionData struct {
	BannedUntil time.Time
}

func (InputBannedExceptionData) exceptionData() {}

// WrongPhaseExceptionData tells the client the round's current phase.
type WrongPhaseExceptionData struct {
	CurrentPhase Phase
}

func (WrongPhaseExceptionData) exceptionData() {}

// ProtocolError is an error the coordinator reports to clients.
type ProtocolError struct {
	ErrorCode     ErrorCode     // Describes the kind of error
	Description   string        // Human readable description of the issue
	ExceptionData ExceptionData // Optional structured context
	Err           error         // Underlying error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *ProtocolError) Error() string {
	desc := e.Description
	if desc == "" {
		desc = e.ErrorCode.String()
	}
	if e.Err != nil {
		return desc + ": " + e.Err.Error()
	}

	return desc
}

// Unwrap returns the underlying error.
func (e *ProtocolError) Unwrap() error {
	return e.Err
}

// NewProtocolError creates a ProtocolError without exception data.
func NewProtocolError(c ErrorCode, format string,
	args ...any) *ProtocolError {

	return &ProtocolError{
		ErrorCode:     c,
		Description:   fmt.Sprintf(format, args...),
		ExceptionData: EmptyExceptionData{},
	}
}

// WrongPhaseError reports a request made in the wrong phase.
func WrongPhaseError(roundID fmt.Stringer, current Phase) *ProtocolError {
	return &ProtocolError{
		ErrorCode: ErrWrongPhase,
		Description: fmt.Sprintf("round %v is in phase %v", roundID,
			current),
		ExceptionData: WrongPhaseExceptionData{CurrentPhase: current},
	}
}

// AsProtocolError returns the ProtocolError in err's chain, if any.
func AsProtocolError(err error) (*ProtocolError, bool) {
	var perr *ProtocolError
	if errors.As(err, &perr) {
		return perr, true
	}

	return nil, false
}

// IsErrorCode reports whether err is a ProtocolError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	perr, ok := AsProtocolError(err)
	return ok && perr.ErrorCode == code
}
