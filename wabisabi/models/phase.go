// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import "fmt"

// Phase is the phase of a round. Rounds only move forward through the
// phases.
type Phase int

// The phases of a round in order.
const (
	PhaseInputRegistration Phase = iota
	PhaseConnectionConfirmation
	PhaseOutputRegistration
	PhaseTransactionSigning
	PhaseEnded
)

var phaseStrings = map[Phase]string{
	PhaseInputRegistration:      "InputRegistration",
	PhaseConnectionConfirmation: "ConnectionConfirmation",
	PhaseOutputRegistration:     "OutputRegistration",
	PhaseTransactionSigning:     "TransactionSigning",
	PhaseEnded:                  "Ended",
}

// String returns the phase name.
func (p Phase) String() string {
	if s, ok := phaseStrings[p]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Phase (%d)", int(p))
}

// EndRoundState tells how a round ended.
type EndRoundState int

// These constants describe the possible outcomes of a round.
const (
	EndRoundStateNone EndRoundState = iota
	EndRoundStateTransactionBroadcasted
	EndRoundStateTransactionBroadcastFailed
	EndRoundStateAbortedWithError
	EndRoundStateAbortedNotEnoughAlices
	EndRoundStateAbortedNotEnoughAlicesSigned
	EndRoundStateNotAllAlicesSign
	EndRoundStateAbortedNotAllAlicesConfirmed
	EndRoundStateAbortedLoadBalancing
)

var endRoundStateStrings = map[EndRoundState]string{
	EndRoundStateNone:                         "None",
	EndRoundStateTransactionBroadcasted:       "TransactionBroadcasted",
	EndRoundStateTransactionBroadcastFailed:   "TransactionBroadcastFailed",
	EndRoundStateAbortedWithError:             "AbortedWithError",
	EndRoundStateAbortedNotEnoughAlices:       "AbortedNotEnoughAlices",
	EndRoundStateAbortedNotEnoughAlicesSigned: "AbortedNotEnoughAlicesSigned",
	EndRoundStateNotAllAlicesSign:             "NotAllAlicesSign",
	EndRoundStateAbortedNotAllAlicesConfirmed: "AbortedNotAllAlicesConfirmed",
	EndRoundStateAbortedLoadBalancing:         "AbortedLoadBalancing",
}

// String returns the outcome name.
func (e EndRoundState) String() string {
	if s, ok := endRoundStateStrings[e]; ok {
		return s
	}
	return fmt.Sprintf("Unknown EndRoundState (%d)", int(e))
}

// parseName looks up the constant with the given name.
func parseName[T comparable](names map[T]string, kind, s string) (T, error) {
	for v, name := range names {
		if name == s {
			return v, nil
		}
	}

	var zero T
	return zero, fmt.Errorf("unknown %s %q", kind, s)
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	parsed, err := parseName(phaseStrings, "phase", string(text))
	if err != nil {
		return err
	}
	*p = parsed

	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (e EndRoundState) MarshalText() ([]byte, error) {
	return []byte(e.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (e *EndRoundState) UnmarshalText(text []byte) error {
	parsed, err := parseName(endRoundStateStrings, "end round state",
		string(text))
	if err != nil {
		return err
	}
	*e = parsed

	return nil
}
