// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/lightningnetwork/lnd/fn/v2"
)

var (
	// ErrNoRoundCreated is returned when rebuilding a coinjoin from
	// events that do not start with RoundCreated.
	ErrNoRoundCreated = errors.New("first event is not RoundCreated")

	// ErrStaleCheckpoint is returned when a delta refers to events the
	// previous state does not have.
	ErrStaleCheckpoint = errors.New("round state delta does not match " +
		"the known state")
)

// ShortID returns the abbreviated round id used in log lines.
func ShortID(id chainhash.Hash) string {
	return id.String()[:8]
}

// CoinjoinStateDelta carries the part of a coinjoin a client does not know
// yet. The first Skip events are the ones the client already holds.
type CoinjoinStateDelta struct {
	Skip      int
	Events    []Event
	Signing   bool
	Witnesses map[int]wire.TxWitness
}

// RoundState is the client visible projection of a round.
type RoundState struct {
	ID      chainhash.Hash
	BlameOf fn.Option[chainhash.Hash]

	AmountCredentialIssuerParameters wabisabi.CredentialIssuerParameters
	VsizeCredentialIssuerParameters  wabisabi.CredentialIssuerParameters

	Phase         Phase
	EndRoundState EndRoundState

	InputRegistrationStart   time.Time
	InputRegistrationTimeout time.Duration

	// CoinjoinState is nil when the state only carries Delta.
	CoinjoinState MultipartyTransactionState
	Delta         *CoinjoinStateDelta
}

// RoundStateCheckpoint tells the coordinator how many coinjoin events a
// client knows of a round.
type RoundStateCheckpoint struct {
	RoundID chainhash.Hash
	StateID int
}

// IsBlame reports whether the round is the blame round of another round.
func (r *RoundState) IsBlame() bool {
	return r.BlameOf.IsSome()
}

// InputRegistrationEnd is the time input registration times out.
func (r *RoundState) InputRegistrationEnd() time.Time {
	return r.InputRegistrationStart.Add(r.InputRegistrationTimeout)
}

// Parameters returns the round's parameters. The state must be complete.
func (r *RoundState) Parameters() *RoundParameters {
	return r.CoinjoinState.Parameters()
}

// Checkpoint returns the checkpoint a client holding r sends.
func (r *RoundState) Checkpoint() RoundStateCheckpoint {
	c := RoundStateCheckpoint{RoundID: r.ID}
	if r.CoinjoinState != nil {
		c.StateID = len(r.CoinjoinState.Events())
	}

	return c
}

// Signing returns the signing state if the coinjoin is being signed.
func (r *RoundState) Signing() (*SigningState, bool) {
	s, ok := r.CoinjoinState.(*SigningState)
	return s, ok
}

// WithCheckpoint returns a copy of r holding only what a client knowing
// the first known events is missing.
func (r *RoundState) WithCheckpoint(known int) *RoundState {
	events := r.CoinjoinState.Events()
	if known < 0 || known > len(events) {
		known = 0
	}

	delta := &CoinjoinStateDelta{
		Skip:   known,
		Events: append([]Event(nil), events[known:]...),
	}
	if s, ok := r.CoinjoinState.(*SigningState); ok {
		delta.Signing = true
		delta.Witnesses = s.Witnesses()
	}

	c := *r
	c.CoinjoinState = nil
	c.Delta = delta

	return &c
}

// Merge rebuilds the complete state of a delta-only r from prev, the state
// of the same round the client held before. prev may be nil when the delta
// carries every event.
func (r *RoundState) Merge(prev *RoundState) (*RoundState, error) {
	if r.Delta == nil {
		return r, nil
	}

	var events []Event
	if r.Delta.Skip > 0 {
		if prev == nil || prev.CoinjoinState == nil ||
			prev.ID != r.ID {

			return nil, ErrStaleCheckpoint
		}
		known := prev.CoinjoinState.Events()
		if len(known) < r.Delta.Skip {
			return nil, ErrStaleCheckpoint
		}
		events = append(events, known[:r.Delta.Skip]...)
	}
	events = append(events, r.Delta.Events...)

	state, err := RebuildState(events, r.Delta.Signing, r.Delta.Witnesses)
	if err != nil {
		return nil, fmt.Errorf("round %v: %w", ShortID(r.ID), err)
	}

	c := *r
	c.CoinjoinState = state
	c.Delta = nil

	return &c, nil
}

// RebuildState replays events into a coinjoin state. Events are trusted:
// they were validated by the coordinator when they were recorded.
func RebuildState(events []Event, signing bool,
	witnesses map[int]wire.TxWitness) (MultipartyTransactionState, error) {

	if len(events) == 0 {
		return nil, ErrNoRoundCreated
	}
	created, ok := events[0].(RoundCreated)
	if !ok {
		return nil, ErrNoRoundCreated
	}

	state := NewConstructionState(created.Parameters)
	for i, e := range events[1:] {
		switch e.(type) {
		case InputAdded, OutputAdded:
			state = state.apply(e)

		default:
			return nil, fmt.Errorf("unexpected event %T at %d", e,
				i+1)
		}
	}
	if !signing {
		return state, nil
	}

	signingState := state.Finalize()
	for i, w := range witnesses {
		var err error
		signingState, err = signingState.AddWitness(i, w)
		if err != nil {
			return nil, err
		}
	}

	return signingState, nil
}

// CreateAmountCredentialClient returns a credential client for the
// round's amount credentials.
func (r *RoundState) CreateAmountCredentialClient(
	rnd randomness.WasabiRandom) *wabisabi.Client {

	return wabisabi.NewClient(r.AmountCredentialIssuerParameters,
		r.Parameters().MaxAmountCredentialValue(), rnd)
}

// CreateVsizeCredentialClient returns a credential client for the round's
// vsize credentials.
func (r *RoundState) CreateVsizeCredentialClient(
	rnd randomness.WasabiRandom) *wabisabi.Client {

	return wabisabi.NewClient(r.VsizeCredentialIssuerParameters,
		r.Parameters().MaxVsizeCredentialValue(), rnd)
}
