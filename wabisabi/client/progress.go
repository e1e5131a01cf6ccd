// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// ProgressKind identifies a step of a coinjoin attempt.
type ProgressKind int

// These constants describe the steps a coinjoin attempt reports.
const (
	ProgressWaitingForRound ProgressKind = iota
	ProgressWaitingForBlameRound
	ProgressEnteringInputRegistrationPhase
	ProgressEnteringOutputRegistrationPhase
	ProgressEnteringCriticalPhase
	ProgressLeavingCriticalPhase
	ProgressRoundEnded
	ProgressCoinJoinCompleted
)

var progressKindStrings = map[ProgressKind]string{
	ProgressWaitingForRound:                 "WaitingForRound",
	ProgressWaitingForBlameRound:            "WaitingForBlameRound",
	ProgressEnteringInputRegistrationPhase:  "EnteringInputRegistrationPhase",
	ProgressEnteringOutputRegistrationPhase: "EnteringOutputRegistrationPhase",
	ProgressEnteringCriticalPhase:           "EnteringCriticalPhase",
	ProgressLeavingCriticalPhase:            "LeavingCriticalPhase",
	ProgressRoundEnded:                      "RoundEnded",
	ProgressCoinJoinCompleted:               "CoinJoinCompleted",
}

// String returns the step name.
func (k ProgressKind) String() string {
	if s, ok := progressKindStrings[k]; ok {
		return s
	}
	return fmt.Sprintf("Unknown ProgressKind (%d)", int(k))
}

// ProgressEvent reports a step of a coinjoin attempt.
type ProgressEvent struct {
	Kind    ProgressKind
	RoundID chainhash.Hash
	Time    time.Time

	// EndRoundState is set for ProgressRoundEnded.
	EndRoundState models.EndRoundState

	// Result is set for ProgressCoinJoinCompleted.
	Result CoinJoinResult
}

// String returns a log friendly description of the event.
func (e ProgressEvent) String() string {
	switch e.Kind {
	case ProgressWaitingForRound:
		return e.Kind.String()

	case ProgressRoundEnded:
		return fmt.Sprintf("%v %v (%v)", e.Kind,
			models.ShortID(e.RoundID), e.EndRoundState)
	}

	return fmt.Sprintf("%v %v", e.Kind, models.ShortID(e.RoundID))
}
