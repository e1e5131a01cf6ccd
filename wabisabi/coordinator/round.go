// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// roundIDTag domain separates round id hashes.
var roundIDTag = []byte("WabiSabi/round")

// TimeFrame is the period a phase may last.
type TimeFrame struct {
	Start    time.Time
	Duration time.Duration
}

// End returns when the time frame ends.
func (t TimeFrame) End() time.Time {
	return t.Start.Add(t.Duration)
}

// HasExpired reports whether the time frame ended before now.
func (t TimeFrame) HasExpired(now time.Time) bool {
	return !t.Start.IsZero() && now.After(t.End())
}

// Round is the coordinator's state of one coinjoin attempt. Rounds are
// only mutated by the arena while it holds its lock.
type Round struct {
	ID         chainhash.Hash
	BlameOf    fn.Option[chainhash.Hash]
	Parameters *models.RoundParameters

	Phase         models.Phase
	EndRoundState models.EndRoundState

	AmountIssuer *wabisabi.CredentialIssuer
	VsizeIssuer  *wabisabi.CredentialIssuer

	CoinjoinState models.MultipartyTransactionState

	Alices []*Alice
	Bobs   []*Bob

	InputRegistrationTimeFrame      TimeFrame
	ConnectionConfirmationTimeFrame TimeFrame
	OutputRegistrationTimeFrame     TimeFrame
	TransactionSigningTimeFrame     TimeFrame

	// Ended is when the round reached PhaseEnded.
	Ended time.Time

	// whitelist holds the only inputs a blame round accepts.
	whitelist map[wire.OutPoint]struct{}

	commitmentData []byte
}

// newRound creates a round in input registration with fresh credential
// issuers.
func newRound(params *models.RoundParameters, rnd randomness.WasabiRandom,
	now time.Time) *Round {

	amountKey := wabisabi.NewCredentialIssuerSecretKey(rnd)
	vsizeKey := wabisabi.NewCredentialIssuerSecretKey(rnd)

	r := &Round{
		BlameOf:    fn.None[chainhash.Hash](),
		Parameters: params,
		Phase:      models.PhaseInputRegistration,
		AmountIssuer: wabisabi.NewCredentialIssuer(amountKey,
			params.MaxAmountCredentialValue(), rnd),
		VsizeIssuer: wabisabi.NewCredentialIssuer(vsizeKey,
			params.MaxVsizeCredentialValue(), rnd),
		CoinjoinState: models.NewConstructionState(params),
		InputRegistrationTimeFrame: TimeFrame{
			Start:    now,
			Duration: params.StandardInputRegistrationTimeout,
		},
	}
	r.ID = r.calculateID()
	r.commitmentData = models.CommitmentData(
		params.CoordinationIdentifier, r.ID,
	)

	return r
}

// newBlameRound creates the blame round of blamed, accepting only the
// given inputs.
func newBlameRound(params *models.RoundParameters, blamed *Round,
	whitelist []wire.OutPoint, rnd randomness.WasabiRandom,
	now time.Time) *Round {

	r := newRound(params, rnd, now)
	r.BlameOf = fn.Some(blamed.ID)
	r.InputRegistrationTimeFrame.Duration =
		params.BlameInputRegistrationTimeout
	r.whitelist = make(map[wire.OutPoint]struct{}, len(whitelist))
	for _, op := range whitelist {
		r.whitelist[op] = struct{}{}
	}

	// The id commits to the blamed round.
	r.ID = r.calculateID()
	r.commitmentData = models.CommitmentData(
		params.CoordinationIdentifier, r.ID,
	)

	return r
}

// calculateID hashes what identifies the round: the issuer keys, the
// coordinator, the start time and the blamed round.
func (r *Round) calculateID() chainhash.Hash {
	amount := r.AmountIssuer.Parameters()
	vsize := r.VsizeIssuer.Parameters()

	var start [8]byte
	binary.BigEndian.PutUint64(start[:],
		uint64(r.InputRegistrationTimeFrame.Start.UnixNano()))

	var blameOf chainhash.Hash
	r.BlameOf.WhenSome(func(h chainhash.Hash) {
		blameOf = h
	})

	return *chainhash.TaggedHash(roundIDTag,
		[]byte(r.Parameters.CoordinationIdentifier),
		amount.Cw.Bytes(), amount.I.Bytes(),
		vsize.Cw.Bytes(), vsize.I.Bytes(),
		start[:], blameOf[:],
	)
}

// String returns the short round id.
func (r *Round) String() string {
	return models.ShortID(r.ID)
}

// IsBlameRound reports whether the round is a blame round.
func (r *Round) IsBlameRound() bool {
	return r.BlameOf.IsSome()
}

// CommitmentData is what ownership proofs for the round commit to.
func (r *Round) CommitmentData() []byte {
	return r.commitmentData
}

// IsWhitelisted reports whether op may register in the round.
func (r *Round) IsWhitelisted(op wire.OutPoint) bool {
	if !r.IsBlameRound() {
		return true
	}
	_, ok := r.whitelist[op]
	return ok
}

// IsInputRegistrationEnded reports whether the round stops accepting
// inputs, because it timed out or is full.
func (r *Round) IsInputRegistrationEnded(now time.Time) bool {
	if r.Phase != models.PhaseInputRegistration {
		return true
	}
	if r.InputRegistrationTimeFrame.HasExpired(now) {
		return true
	}
	if len(r.Alices) >= r.Parameters.MaxInputCountByRound {
		return true
	}

	return r.IsBlameRound() && len(r.Alices) == len(r.whitelist)
}

// SetPhase moves the round to phase. Phases only move forward.
func (r *Round) SetPhase(phase models.Phase, now time.Time) {
	if phase <= r.Phase {
		panic(fmt.Sprintf("round %v: phase %v after %v", r, phase,
			r.Phase))
	}

	log.Infof("Round (%v): phase changed from %v to %v", r, r.Phase,
		phase)

	r.Phase = phase
	switch phase {
	case models.PhaseConnectionConfirmation:
		r.ConnectionConfirmationTimeFrame = TimeFrame{
			Start:    now,
			Duration: r.Parameters.ConnectionConfirmationTimeout,
		}

	case models.PhaseOutputRegistration:
		r.OutputRegistrationTimeFrame = TimeFrame{
			Start:    now,
			Duration: r.Parameters.OutputRegistrationTimeout,
		}

	case models.PhaseTransactionSigning:
		r.TransactionSigningTimeFrame = TimeFrame{
			Start:    now,
			Duration: r.Parameters.TransactionSigningTimeout,
		}

	case models.PhaseEnded:
		r.Ended = now
	}
}

// EndRound ends the round with state.
func (r *Round) EndRound(state models.EndRoundState, now time.Time) {
	r.EndRoundState = state
	r.SetPhase(models.PhaseEnded, now)

	log.Infof("Round (%v): ended with %v", r, state)
}

// Construction returns the coinjoin under construction.
func (r *Round) Construction() (*models.ConstructionState, error) {
	s, ok := r.CoinjoinState.(*models.ConstructionState)
	if !ok {
		return nil, models.WrongPhaseError(r, r.Phase)
	}
	return s, nil
}

// Signing returns the coinjoin being signed.
func (r *Round) Signing() (*models.SigningState, error) {
	s, ok := r.CoinjoinState.(*models.SigningState)
	if !ok {
		return nil, models.WrongPhaseError(r, r.Phase)
	}
	return s, nil
}

// Alice returns the Alice with the given id.
func (r *Round) Alice(id uuid.UUID) (*Alice, error) {
	for _, a := range r.Alices {
		if a.ID == id {
			return a, nil
		}
	}

	return nil, models.NewProtocolError(models.ErrAliceNotFound,
		"round %v has no alice %v", r, id)
}

// AliceByOutpoint returns the Alice registering op, if any.
func (r *Round) AliceByOutpoint(op wire.OutPoint) (*Alice, bool) {
	for _, a := range r.Alices {
		if a.Coin.Outpoint == op {
			return a, true
		}
	}

	return nil, false
}

// removeAlices removes the Alices matching drop and returns them.
func (r *Round) removeAlices(drop func(*Alice) bool) []*Alice {
	var removed []*Alice
	kept := r.Alices[:0]
	for _, a := range r.Alices {
		if drop(a) {
			removed = append(removed, a)
			continue
		}
		kept = append(kept, a)
	}
	r.Alices = kept

	return removed
}

// State returns the client visible projection of the round.
func (r *Round) State() *models.RoundState {
	return &models.RoundState{
		ID:                               r.ID,
		BlameOf:                          r.BlameOf,
		AmountCredentialIssuerParameters: r.AmountIssuer.Parameters(),
		VsizeCredentialIssuerParameters:  r.VsizeIssuer.Parameters(),
		Phase:                            r.Phase,
		EndRoundState:                    r.EndRoundState,
		InputRegistrationStart:           r.InputRegistrationTimeFrame.Start,
		InputRegistrationTimeout:         r.InputRegistrationTimeFrame.Duration,
		CoinjoinState:                    r.CoinjoinState,
	}
}
