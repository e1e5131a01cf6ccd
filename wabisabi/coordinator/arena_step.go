// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// Step advances every round whose phase completed or timed out, drops
// expired rounds and makes sure a round accepts inputs.
func (a *Arena) Step(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()

	a.expireRounds(now)
	a.stepInputRegistration(ctx, now)
	a.stepConnectionConfirmation(now)
	a.stepOutputRegistration(now)
	a.stepTransactionSigning(ctx, now)
	a.ensureInputRegistrationRound(ctx, now)

	released, err := a.cfg.Prison.ReleaseEligible(now)
	if err != nil {
		return err
	}
	if released > 0 {
		log.Infof("Released %d %s from prison", released,
			pickNoun(released, "input", "inputs"))
	}

	return nil
}

// roundsIn returns the rounds in phase.
func (a *Arena) roundsIn(phase models.Phase) []*Round {
	var rounds []*Round
	for _, r := range a.rounds {
		if r.Phase == phase {
			rounds = append(rounds, r)
		}
	}

	return rounds
}

// expireRounds forgets rounds that ended more than RoundExpiryTimeout
// ago.
func (a *Arena) expireRounds(now time.Time) {
	kept := a.rounds[:0]
	for _, r := range a.rounds {
		if r.Phase == models.PhaseEnded &&
			now.Sub(r.Ended) > a.cfg.Config.RoundExpiryTimeout {

			log.Debugf("Round (%v): expired", r)
			continue
		}
		kept = append(kept, r)
	}
	a.rounds = kept
}

// isSpent reports whether op is no longer unspent. Backend errors count
// as unspent.
func (a *Arena) isSpent(ctx context.Context, op wire.OutPoint) bool {
	info, err := a.cfg.RPC.GetTxOut(ctx, op, true)
	if err != nil {
		log.Warnf("Unable to check input %v: %v", op, err)
		return false
	}

	return info == nil
}

// punish bans op and logs failures.
func (a *Arena) punish(r *Round, op wire.OutPoint, reason Reason,
	now time.Time) {

	if _, err := a.cfg.Prison.Punish(op, reason, r.ID, now); err != nil {
		log.Errorf("Round (%v): unable to ban %v: %v", r, op, err)
	}
}

func (a *Arena) stepInputRegistration(ctx context.Context, now time.Time) {
	for _, r := range a.roundsIn(models.PhaseInputRegistration) {
		expired := r.removeAlices(func(alice *Alice) bool {
			return now.After(alice.Deadline)
		})
		for _, alice := range expired {
			log.Debugf("Round (%v): alice %v missed her heartbeat",
				r, alice.ID)
		}

		if !r.IsInputRegistrationEnded(now) {
			continue
		}

		spent := r.removeAlices(func(alice *Alice) bool {
			return a.isSpent(ctx, alice.Coin.Outpoint)
		})
		for _, alice := range spent {
			log.Infof("Round (%v): input %v was spent during "+
				"input registration", r, alice.Coin.Outpoint)
		}

		if len(r.Alices) >= r.Parameters.MinInputCountByRound {
			r.SetPhase(models.PhaseConnectionConfirmation, now)
			continue
		}

		state := models.EndRoundStateAbortedNotEnoughAlices
		if a.otherStandardRoundRegistering(r) {
			state = models.EndRoundStateAbortedLoadBalancing
		}
		log.Infof("Round (%v): %d %s registered, %d needed", r,
			len(r.Alices), pickNoun(len(r.Alices), "input", "inputs"),
			r.Parameters.MinInputCountByRound)
		r.EndRound(state, now)
	}
}

// otherStandardRoundRegistering reports whether a standard round other
// than r accepts inputs.
func (a *Arena) otherStandardRoundRegistering(r *Round) bool {
	for _, other := range a.roundsIn(models.PhaseInputRegistration) {
		if other != r && !other.IsBlameRound() {
			return true
		}
	}

	return false
}

func (a *Arena) stepConnectionConfirmation(now time.Time) {
	for _, r := range a.roundsIn(models.PhaseConnectionConfirmation) {
		allConfirmed := true
		for _, alice := range r.Alices {
			allConfirmed = allConfirmed && alice.ConfirmedConnection
		}
		if !allConfirmed &&
			!r.ConnectionConfirmationTimeFrame.HasExpired(now) {

			continue
		}

		unconfirmed := r.removeAlices(func(alice *Alice) bool {
			return !alice.ConfirmedConnection
		})
		for _, alice := range unconfirmed {
			a.punish(r, alice.Coin.Outpoint, ReasonFailedToConfirm,
				now)
		}

		if len(r.Alices) < r.Parameters.MinInputCountByRound {
			r.EndRound(models.EndRoundStateAbortedNotAllAlicesConfirmed,
				now)
			continue
		}

		state, err := r.Construction()
		if err != nil {
			log.Errorf("Round (%v): %v", r, err)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}
		for _, alice := range r.Alices {
			state, err = state.AddInput(alice.Coin,
				alice.OwnershipProof, r.CommitmentData())
			if err != nil {
				break
			}
		}
		if err != nil {
			log.Errorf("Round (%v): unable to add inputs: %v", r, err)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}

		r.CoinjoinState = state
		r.SetPhase(models.PhaseOutputRegistration, now)
	}
}

func (a *Arena) stepOutputRegistration(now time.Time) {
	for _, r := range a.roundsIn(models.PhaseOutputRegistration) {
		allReady := true
		for _, alice := range r.Alices {
			allReady = allReady && alice.ReadyToSign
		}
		if !allReady && !r.OutputRegistrationTimeFrame.HasExpired(now) {
			continue
		}

		state, err := r.Construction()
		if err != nil {
			log.Errorf("Round (%v): %v", r, err)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}

		if len(state.Outputs()) == 0 {
			log.Warnf("Round (%v): no outputs were registered", r)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}

		// The shared overhead is left to the rounding remainders of
		// the participants.
		fee := r.Parameters.MiningFeeRate.FeeForVSize(
			state.EstimatedVsize() - models.SharedOverhead,
		)
		if state.Balance() < fee {
			log.Warnf("Round (%v): balance %v does not pay the "+
				"fee %v", r, state.Balance(), fee)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}

		signing := state.Finalize()
		r.CoinjoinState = signing

		log.Infof("Round (%v): coinjoin of %d %s and %d %s at %v",
			r, len(signing.Inputs()),
			pickNoun(len(signing.Inputs()), "input", "inputs"),
			len(signing.Outputs()),
			pickNoun(len(signing.Outputs()), "output", "outputs"),
			signing.EffectiveFeeRate())

		r.SetPhase(models.PhaseTransactionSigning, now)
	}
}

func (a *Arena) stepTransactionSigning(ctx context.Context, now time.Time) {
	for _, r := range a.roundsIn(models.PhaseTransactionSigning) {
		state, err := r.Signing()
		if err != nil {
			log.Errorf("Round (%v): %v", r, err)
			r.EndRound(models.EndRoundStateAbortedWithError, now)
			continue
		}

		switch {
		case state.IsFullySigned():
			a.broadcast(ctx, r, state, now)

		case r.TransactionSigningTimeFrame.HasExpired(now):
			a.blame(ctx, r, state, now)
		}
	}
}

// broadcast publishes the signed coinjoin of r.
func (a *Arena) broadcast(ctx context.Context, r *Round,
	state *models.SigningState, now time.Time) {

	tx := state.CreateTransaction()
	txid, err := a.cfg.RPC.SendRawTransaction(ctx, tx)
	if err != nil {
		log.Errorf("Round (%v): unable to broadcast coinjoin %v: %v",
			r, tx.TxHash(), err)
		r.EndRound(models.EndRoundStateTransactionBroadcastFailed, now)
		return
	}

	log.Infof("Round (%v): broadcast coinjoin %v", r, txid)
	log.Tracef("Round (%v): coinjoin %v", r, newLogClosure(func() string {
		return spewTx(tx)
	}))

	r.EndRound(models.EndRoundStateTransactionBroadcasted, now)

	if a.cfg.CoinJoinIDs == nil {
		return
	}
	if _, err := a.cfg.CoinJoinIDs.TryAdd(ctx, *txid, r.ID, now); err != nil {
		log.Errorf("Round (%v): unable to record coinjoin %v: %v", r,
			txid, err)
	}
}

// blame bans the inputs of r that did not sign and, when enough inputs
// did, creates a blame round only they may join.
func (a *Arena) blame(ctx context.Context, r *Round,
	state *models.SigningState, now time.Time) {

	for _, coin := range state.UnsignedInputs() {
		reason := ReasonFailedToSign
		if a.isSpent(ctx, coin.Outpoint) {
			reason = ReasonDoubleSpent
		}
		a.punish(r, coin.Outpoint, reason, now)
	}

	signed := state.SignedInputs()
	if len(signed) < r.Parameters.MinInputCountByRound {
		r.EndRound(models.EndRoundStateAbortedNotEnoughAlicesSigned, now)
		return
	}
	r.EndRound(models.EndRoundStateNotAllAlicesSign, now)

	whitelist := make([]wire.OutPoint, len(signed))
	for i := range signed {
		whitelist[i] = signed[i].Outpoint
	}

	params := a.cfg.Config.roundParameters(r.Parameters.MiningFeeRate,
		r.Parameters.MaxSuggestedAmount, true)
	blameRound := newBlameRound(params, r, whitelist, a.cfg.Random, now)
	a.rounds = append(a.rounds, blameRound)

	log.Infof("Round (%v): blame round %v created for %d %s", r,
		blameRound, len(whitelist),
		pickNoun(len(whitelist), "input", "inputs"))
}

// ensureInputRegistrationRound creates a standard round when none
// accepts inputs.
func (a *Arena) ensureInputRegistrationRound(ctx context.Context,
	now time.Time) {

	for _, r := range a.roundsIn(models.PhaseInputRegistration) {
		if !r.IsBlameRound() {
			return
		}
	}

	params := a.cfg.Config.roundParameters(a.miningFeeRate(ctx),
		a.maxSuggestedAmount(), false)
	r := newRound(params, a.cfg.Random, now)
	a.rounds = append(a.rounds, r)
	a.roundsCreated++

	log.Infof("Round (%v): created with fee rate %v, suggesting at "+
		"most %v", r,
		params.MiningFeeRate, params.MaxSuggestedAmount)
}

// miningFeeRate estimates the fee rate of a new round.
func (a *Arena) miningFeeRate(ctx context.Context) unit.SatPerKVByte {
	cfg := a.cfg.Config
	feeRate, err := a.cfg.RPC.EstimateSmartFee(ctx, cfg.ConfirmationTarget)
	if err != nil {
		log.Warnf("Unable to estimate fee rate, using %v: %v",
			cfg.FallbackMiningFeeRate, err)
		return cfg.FallbackMiningFeeRate
	}

	return feeRate
}
