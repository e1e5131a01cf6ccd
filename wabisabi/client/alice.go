// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
)

// AliceClient is one coin registered as an input of a round.
type AliceClient struct {
	ID   uuid.UUID
	Coin *coins.SmartCoin

	arena      *ArenaClient
	updater    *RoundStateUpdater
	keyChain   KeyChain
	params     *models.RoundParameters
	scriptType models.ScriptType

	zero      Credentials
	real      Credentials
	confirmed bool
}

// RegisterAlice registers coin as an input of the round described by
// state.
func RegisterAlice(ctx context.Context, arena *ArenaClient,
	updater *RoundStateUpdater, state *models.RoundState,
	coin *coins.SmartCoin, keyChain KeyChain) (*AliceClient, error) {

	params := state.Parameters()
	commitment := models.CommitmentData(params.CoordinationIdentifier,
		state.ID)
	proof, err := keyChain.OwnershipProof(coin, commitment)
	if err != nil {
		return nil, err
	}

	id, zero, err := arena.RegisterInput(ctx, coin.Outpoint, proof)
	if err != nil {
		return nil, err
	}
	coin.SetCoinJoinInProgress(true)

	scriptType, _ := coin.ScriptType()

	log.Infof("Round (%v): registered %v as alice %v",
		models.ShortID(state.ID), coin, id)

	return &AliceClient{
		ID:         id,
		Coin:       coin,
		arena:      arena,
		updater:    updater,
		keyChain:   keyChain,
		params:     params,
		scriptType: scriptType,
		zero:       zero,
	}, nil
}

// EffectiveValue is the amount the Alice brings to the round.
func (a *AliceClient) EffectiveValue() btcutil.Amount {
	return a.params.InputEffectiveValue(a.Coin.Amount(), a.scriptType)
}

// VsizeAllocation is the vsize the Alice may spend on outputs.
func (a *AliceClient) VsizeAllocation() int64 {
	return a.params.VsizeAllocation(a.scriptType)
}

// Confirmed reports whether the Alice holds her real credentials.
func (a *AliceClient) Confirmed() bool {
	return a.confirmed
}

// Credentials returns the real credentials issued at confirmation.
func (a *AliceClient) Credentials() (Credentials, error) {
	if !a.confirmed {
		return Credentials{}, ErrNotConfirmed
	}

	return a.real, nil
}

// ConfirmConnection keeps the Alice registered with a heartbeat every
// interval until the round reaches connection confirmation, then
// exchanges her zero credentials for real ones.
func (a *AliceClient) ConfirmConnection(ctx context.Context,
	interval time.Duration) error {

	roundID := a.arena.RoundID()
	amounts := []int64{int64(a.EffectiveValue())}
	vsizes := []int64{a.VsizeAllocation()}

	for {
		res, err := a.arena.ConfirmConnection(ctx, a.ID, amounts,
			vsizes, a.zero)
		if err != nil {
			return err
		}
		if res.Confirmed {
			a.real = res.Real
			a.confirmed = true

			log.Debugf("Round (%v): alice %v confirmed her "+
				"connection", models.ShortID(roundID), a.ID)

			return nil
		}

		waitCtx, cancel := context.WithTimeout(ctx, interval)
		_, err = a.updater.AwaitPhase(waitCtx, roundID,
			models.PhaseConnectionConfirmation)
		cancel()

		switch {
		case err == nil:

		case errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil:
			// Heartbeat.

		default:
			return err
		}
	}
}

// RemoveInput unregisters the Alice and releases her coin.
func (a *AliceClient) RemoveInput(ctx context.Context) error {
	if err := a.arena.RemoveInput(ctx, a.ID); err != nil {
		return err
	}
	a.Coin.SetCoinJoinInProgress(false)

	log.Infof("Round (%v): unregistered %v",
		models.ShortID(a.arena.RoundID()), a.Coin)

	return nil
}

// ReadyToSign signals that the Alice's outputs are registered.
func (a *AliceClient) ReadyToSign(ctx context.Context) error {
	return a.arena.ReadyToSign(ctx, a.ID)
}

// Sign signs the Alice's input of the coinjoin being signed. A witness the
// coordinator already holds is not an error.
func (a *AliceClient) Sign(ctx context.Context,
	signing *models.SigningState) error {

	index, ok := signing.InputIndex(a.Coin.Outpoint)
	if !ok {
		return clientError(ErrCoordinatorLiedAboutInputs,
			"coinjoin does not spend %v", a.Coin.Outpoint)
	}

	tx := signing.CreateUnsignedTransaction()
	witness, err := a.keyChain.Sign(tx, index, a.Coin,
		signing.PrevOutputFetcher())
	if err != nil {
		return err
	}

	err = a.arena.SignTransaction(ctx, index, witness)
	if models.IsErrorCode(err, models.ErrWitnessAlreadyProvided) {
		return nil
	}

	return err
}

// Release marks the Alice's coin as no longer registered.
func (a *AliceClient) Release() {
	a.Coin.SetCoinJoinInProgress(false)
}

// isRoundFatal records what a failed request says about coin and reports
// whether the failure concerns the whole round rather than the coin.
func isRoundFatal(coin *coins.SmartCoin, err error) bool {
	pe, ok := models.AsProtocolError(err)
	if !ok {
		return false
	}

	switch pe.ErrorCode {
	case models.ErrRoundNotFound, models.ErrWrongPhase:
		return true

	case models.ErrInputBanned, models.ErrInputLongBanned:
		data, ok := pe.ExceptionData.(models.InputBannedExceptionData)
		if ok {
			coin.SetBannedUntil(data.BannedUntil)
		}
		log.Infof("Coin %v is banned until %v", coin,
			coin.BannedUntil())

	case models.ErrAliceAlreadyRegistered:
		log.Infof("Coin %v is already registered", coin)

	default:
		log.Infof("Coin %v was rejected: %v", coin, err)
	}

	return false
}
