// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"errors"
	"fmt"
)

// ErrorCode identifies a kind of credential error.
type ErrorCode int

// These constants are used to identify a specific CryptoError.
const (
	// ErrInvalidNumberOfRequestedCredentials indicates a request that does
	// not ask for exactly NumberOfCredentials credentials.
	ErrInvalidNumberOfRequestedCredentials ErrorCode = iota

	// ErrInvalidNumberOfPresentedCredentials indicates a request that
	// presents neither zero nor NumberOfCredentials credentials, or a null
	// request presenting any.
	ErrInvalidNumberOfPresentedCredentials

	// ErrInvalidBitCommitment indicates an issuance request whose bit
	// commitments do not match the range proof width.
	ErrInvalidBitCommitment

	// ErrSerialNumberAlreadyUsed indicates a presented credential whose
	// serial number was already seen by the issuer.
	ErrSerialNumberAlreadyUsed

	// ErrSerialNumberDuplicated indicates a request presenting the same
	// credential twice.
	ErrSerialNumberDuplicated

	// ErrNegativeBalance indicates a request that would make the issuer's
	// balance negative.
	ErrNegativeBalance

	// ErrCoordinatorReceivedInvalidProofs indicates a request whose proofs
	// failed verification.
	ErrCoordinatorReceivedInvalidProofs

	// ErrClientReceivedInvalidProofs indicates a response whose issuance
	// proofs failed verification.
	ErrClientReceivedInvalidProofs

	// ErrIssuedCredentialNumberMismatch indicates a response with a
	// different number of credentials than requested.
	ErrIssuedCredentialNumberMismatch

	// ErrValueOutOfRange indicates a requested value outside of
	// [0, MaxAmount].
	ErrValueOutOfRange

	// ErrNullCredentialRequestNotAllowed indicates a request presenting no
	// credentials while claiming a non-zero balance change.
	ErrNullCredentialRequestNotAllowed
)

// Map of ErrorCode values back to their constant names for pretty printing.
var errorCodeStrings = map[ErrorCode]string{
	ErrInvalidNumberOfRequestedCredentials: "InvalidNumberOfRequestedCredentials",
	ErrInvalidNumberOfPresentedCredentials: "InvalidNumberOfPresentedCredentials",
	ErrInvalidBitCommitment:                "InvalidBitCommitment",
	ErrSerialNumberAlreadyUsed:             "SerialNumberAlreadyUsed",
	ErrSerialNumberDuplicated:              "SerialNumberDuplicated",
	ErrNegativeBalance:                     "NegativeBalance",
	ErrCoordinatorReceivedInvalidProofs:    "CoordinatorReceivedInvalidProofs",
	ErrClientReceivedInvalidProofs:         "ClientReceivedInvalidProofs",
	ErrIssuedCredentialNumberMismatch:      "IssuedCredentialNumberMismatch",
	ErrValueOutOfRange:                     "ValueOutOfRange",
	ErrNullCredentialRequestNotAllowed:     "NullCredentialRequestNotAllowed",
}

// String returns the ErrorCode as a human-readable name.
func (e ErrorCode) String() string {
	if s := errorCodeStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown ErrorCode (%d)", int(e))
}

// CryptoError describes a credential request or response that was
// rejected.
type CryptoError struct {
	ErrorCode   ErrorCode // Describes the kind of error
	Description string    // Human readable description of the issue
}

// Error satisfies the error interface and prints human-readable errors.
func (e *CryptoError) Error() string {
	return fmt.Sprintf("%v: %s", e.ErrorCode, e.Description)
}

// cryptoError creates a CryptoError given a set of arguments.
func cryptoError(c ErrorCode, format string, args ...any) *CryptoError {
	return &CryptoError{
		ErrorCode:   c,
		Description: fmt.Sprintf(format, args...),
	}
}

// IsErrorCode reports whether err is a CryptoError with the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	var cerr *CryptoError
	return errors.As(err, &cerr) && cerr.ErrorCode == code
}
