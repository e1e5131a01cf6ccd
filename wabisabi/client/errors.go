// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"fmt"
)

var (
	// ErrTooManyCredentials is returned when a request would present or
	// request more credentials than a request carries.
	ErrTooManyCredentials = errors.New("too many credentials")

	// ErrUnbalancedReissuance is returned when a reissuance would create
	// amount or vsize value.
	ErrUnbalancedReissuance = errors.New("reissuance does not balance")

	// ErrNotConfirmed is returned when an input's real credentials are
	// needed before its connection was confirmed.
	ErrNotConfirmed = errors.New("connection not confirmed")

	// ErrRoundEnded is returned when a round ends while the client
	// waits for one of its phases.
	ErrRoundEnded = errors.New("round ended")

	// ErrRoundGone is returned when the coordinator stops reporting a
	// round the client waits for.
	ErrRoundGone = errors.New("round no longer reported")

	// ErrUnknownScript is returned when the key chain does not own a
	// script it is asked to sign or prove.
	ErrUnknownScript = errors.New("script not owned by key chain")
)

// CoinjoinError identifies why the client could not take part in a
// coinjoin.
type CoinjoinError int

// These constants are used to identify a specific CoinJoinClientError.
const (
	// ErrMiningFeeRateTooHigh indicates the round pays more fees than
	// the client accepts.
	ErrMiningFeeRateTooHigh CoinjoinError = iota

	// ErrMinInputCountTooLow indicates the round could end with fewer
	// participants than the client accepts.
	ErrMinInputCountTooLow

	// ErrNoCoinsEligibleToMix indicates no candidate coin can join the
	// round.
	ErrNoCoinsEligibleToMix

	// ErrCoinsRejected indicates the coordinator rejected every coin.
	ErrCoinsRejected

	// ErrUserWasntInRound indicates no coin of the client made it into
	// the coinjoin.
	ErrUserWasntInRound

	// ErrCoordinatorLiedAboutInputs indicates the coinjoin does not
	// spend the inputs the coordinator accepted from the client.
	ErrCoordinatorLiedAboutInputs

	// ErrBackendNotSynchronized indicates the wallet cannot judge its
	// coins yet.
	ErrBackendNotSynchronized

	// ErrAllCoinsPrivate indicates every coin reached the anonymity
	// target.
	ErrAllCoinsPrivate

	// ErrRandomlySkippedRound indicates the round was skipped because of
	// its fee rate.
	ErrRandomlySkippedRound

	// ErrNoSupportedScriptType indicates the round registers no output
	// type the wallet can create.
	ErrNoSupportedScriptType

	// ErrCoinTooLarge indicates a selected coin exceeds the round's
	// suggested maximum.
	ErrCoinTooLarge
)

// Map of CoinjoinError values back to their constant names for pretty
// printing.
var coinjoinErrorStrings = map[CoinjoinError]string{
	ErrMiningFeeRateTooHigh:       "MiningFeeRateTooHigh",
	ErrMinInputCountTooLow:        "MinInputCountTooLow",
	ErrNoCoinsEligibleToMix:       "NoCoinsEligibleToMix",
	ErrCoinsRejected:              "CoinsRejected",
	ErrUserWasntInRound:           "UserWasntInRound",
	ErrCoordinatorLiedAboutInputs: "CoordinatorLiedAboutInputs",
	ErrBackendNotSynchronized:     "BackendNotSynchronized",
	ErrAllCoinsPrivate:            "AllCoinsPrivate",
	ErrRandomlySkippedRound:       "RandomlySkippedRound",
	ErrNoSupportedScriptType:      "NoSupportedScriptType",
	ErrCoinTooLarge:               "CoinTooLarge",
}

// String returns the CoinjoinError as a human-readable name.
func (e CoinjoinError) String() string {
	if s := coinjoinErrorStrings[e]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown CoinjoinError (%d)", int(e))
}

// CoinJoinClientError describes why a coinjoin attempt did not start or
// did not complete. It never leaves the wallet's coins registered.
type CoinJoinClientError struct {
	Kind        CoinjoinError
	Description string
	Err         error
}

// Error satisfies the error interface and prints human-readable errors.
func (e *CoinJoinClientError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%v: %s: %v", e.Kind, e.Description, e.Err)
	}
	return fmt.Sprintf("%v: %s", e.Kind, e.Description)
}

// Unwrap returns the underlying error, if any.
func (e *CoinJoinClientError) Unwrap() error {
	return e.Err
}

func clientError(kind CoinjoinError, format string,
	args ...interface{}) *CoinJoinClientError {

	return &CoinJoinClientError{
		Kind:        kind,
		Description: fmt.Sprintf(format, args...),
	}
}

// IsCoinjoinError reports whether err is a CoinJoinClientError of kind.
func IsCoinjoinError(err error, kind CoinjoinError) bool {
	var e *CoinJoinClientError
	return errors.As(err, &e) && e.Kind == kind
}
