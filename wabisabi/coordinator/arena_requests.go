// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

const (
	// maxP2WPKHWitnessSize is the largest standard P2WPKH witness: a
	// signature of at most 73 bytes and a 33 byte key, each with its
	// length prefix, and the item count.
	maxP2WPKHWitnessSize = 109

	// maxTaprootWitnessSize is the largest key path spend witness: a
	// 65 byte signature with its length prefix and the item count.
	maxTaprootWitnessSize = 67
)

// requireZero rejects credential requests that are not null requests.
func requireZero(reqs ...*wabisabi.CredentialsRequest) error {
	for _, req := range reqs {
		if req == nil {
			return models.NewProtocolError(
				models.ErrWrongNumberOfCreds,
				"missing zero credential request",
			)
		}
		if !req.IsNullRequest() {
			return models.NewProtocolError(models.ErrDeltaNotZero,
				"zero credential request has delta %d",
				req.Delta)
		}
	}

	return nil
}

// fetchCoin looks up the registered input on chain.
func (a *Arena) fetchCoin(ctx context.Context,
	op wire.OutPoint) (models.Coin, error) {

	info, err := a.cfg.RPC.GetTxOut(ctx, op, true)
	if err != nil {
		return models.Coin{}, fmt.Errorf("unable to fetch input %v: %w",
			op, err)
	}

	switch {
	case info == nil:
		return models.Coin{}, models.NewProtocolError(
			models.ErrInputSpent, "input %v is spent", op,
		)

	case info.Coinbase && info.Confirmations <
		int64(a.cfg.Config.Network.CoinbaseMaturity):

		return models.Coin{}, models.NewProtocolError(
			models.ErrInputImmature, "coinbase input %v is immature",
			op,
		)

	case info.Confirmations == 0:
		return models.Coin{}, models.NewProtocolError(
			models.ErrInputUnconfirmed, "input %v is unconfirmed", op,
		)
	}

	return models.Coin{Outpoint: op, TxOut: info.TxOut}, nil
}

// checkPrison rejects banned inputs.
func (a *Arena) checkPrison(op wire.OutPoint) error {
	until, long, banned, err := a.cfg.Prison.BannedUntil(op, a.now())
	if err != nil {
		return err
	}
	if !banned {
		return nil
	}

	code := models.ErrInputBanned
	if long {
		code = models.ErrInputLongBanned
	}

	return &models.ProtocolError{
		ErrorCode:   code,
		Description: fmt.Sprintf("input %v is banned", op),
		ExceptionData: models.InputBannedExceptionData{
			BannedUntil: until,
		},
	}
}

// checkInputRegistration returns the round req registers coin with if it
// accepts the input. The caller must hold the lock.
func (a *Arena) checkInputRegistration(req *models.InputRegistrationRequest,
	coin models.Coin, now time.Time) (*Round, error) {

	r, err := a.roundInPhase(req.RoundID, models.PhaseInputRegistration)
	if err != nil {
		return nil, err
	}
	if r.IsInputRegistrationEnded(now) {
		return nil, models.WrongPhaseError(r, r.Phase)
	}

	for _, other := range a.rounds {
		if other.Phase == models.PhaseEnded {
			continue
		}
		if _, ok := other.AliceByOutpoint(req.Input); ok {
			return nil, models.NewProtocolError(
				models.ErrAliceAlreadyRegistered,
				"input %v already registered in round %v",
				req.Input, other,
			)
		}
	}
	if !r.IsWhitelisted(req.Input) {
		return nil, models.NewProtocolError(
			models.ErrInputNotWhitelisted,
			"input %v did not sign the blamed round", req.Input,
		)
	}

	// The input is only added to the coinjoin once its connection is
	// confirmed, this validates it against the current state.
	state, err := r.Construction()
	if err != nil {
		return nil, err
	}
	_, err = state.AddInput(coin, req.OwnershipProof, r.CommitmentData())
	if err != nil {
		return nil, err
	}
	if r.Parameters.VsizeAllocation(coin.ScriptType()) < 0 {
		return nil, models.NewProtocolError(models.ErrTooMuchVsize,
			"input %v does not fit the vsize allocation", req.Input)
	}

	return r, nil
}

// RegisterInput registers an input with a round and issues zero value
// credentials to its Alice.
func (a *Arena) RegisterInput(ctx context.Context,
	req *models.InputRegistrationRequest) (
	*models.InputRegistrationResponse, error) {

	// The backend is queried without holding the lock.
	coin, err := a.fetchCoin(ctx, req.Input)
	if err != nil {
		return nil, err
	}
	if err := a.checkPrison(req.Input); err != nil {
		return nil, err
	}
	err = requireZero(req.ZeroAmountCredentialRequests,
		req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	r, err := a.checkInputRegistration(req, coin, a.now())
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prepared, err := prepareCredentials(
		credentialRequest{r.AmountIssuer, req.ZeroAmountCredentialRequests},
		credentialRequest{r.VsizeIssuer, req.ZeroVsizeCredentialRequests},
	)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.now()
	if _, err := a.checkInputRegistration(req, coin, now); err != nil {
		return nil, err
	}
	resps, err := commitCredentials(prepared)
	if err != nil {
		return nil, err
	}

	alice := newAlice(coin, req.OwnershipProof)
	alice.extendDeadline(now, a.cfg.Config.ConnectionConfirmationHeartbeat)
	r.Alices = append(r.Alices, alice)

	log.Infof("Round (%v): alice %v registered %v (%v)", r, alice.ID,
		req.Input, coin.Amount())

	return &models.InputRegistrationResponse{
		AliceID:           alice.ID,
		AmountCredentials: resps[0],
		VsizeCredentials:  resps[1],
	}, nil
}

// checkConfirmation returns the round and the Alice confirming her
// connection if the round accepts the request. The caller must hold the
// lock.
func (a *Arena) checkConfirmation(req *models.ConnectionConfirmationRequest) (
	*Round, *Alice, error) {

	r, err := a.roundInPhase(req.RoundID, models.PhaseInputRegistration,
		models.PhaseConnectionConfirmation)
	if err != nil {
		return nil, nil, err
	}
	alice, err := r.Alice(req.AliceID)
	if err != nil {
		return nil, nil, err
	}
	if r.Phase == models.PhaseInputRegistration {
		return r, alice, nil
	}

	if alice.ConfirmedConnection {
		return nil, nil, models.NewProtocolError(
			models.ErrAliceAlreadyConfirmedConnection,
			"alice %v already confirmed her connection", alice.ID,
		)
	}

	if req.RealAmountCredentialRequests == nil ||
		req.RealVsizeCredentialRequests == nil {

		return nil, nil, models.NewProtocolError(
			models.ErrWrongNumberOfCreds,
			"missing real credential request",
		)
	}
	amount := alice.RemainingAmountCredentials(r.Parameters)
	if req.RealAmountCredentialRequests.Delta != amount {
		return nil, nil, models.NewProtocolError(
			models.ErrIncorrectRequestedAmountCredentials,
			"requested %d amount credentials, expected %d",
			req.RealAmountCredentialRequests.Delta, amount,
		)
	}
	vsize := alice.RemainingVsizeCredentials(r.Parameters)
	if req.RealVsizeCredentialRequests.Delta != vsize {
		return nil, nil, models.NewProtocolError(
			models.ErrIncorrectRequestedVsizeCredentials,
			"requested %d vsize credentials, expected %d",
			req.RealVsizeCredentialRequests.Delta, vsize,
		)
	}

	return r, alice, nil
}

// ConfirmConnection keeps an Alice registered during input registration
// and issues her real credentials during connection confirmation.
func (a *Arena) ConfirmConnection(_ context.Context,
	req *models.ConnectionConfirmationRequest) (
	*models.ConnectionConfirmationResponse, error) {

	err := requireZero(req.ZeroAmountCredentialRequests,
		req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	r, _, err := a.checkConfirmation(req)
	var phase models.Phase
	if err == nil {
		phase = r.Phase
	}
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	reqs := []credentialRequest{
		{r.AmountIssuer, req.ZeroAmountCredentialRequests},
		{r.VsizeIssuer, req.ZeroVsizeCredentialRequests},
	}
	if phase == models.PhaseConnectionConfirmation {
		reqs = append(reqs,
			credentialRequest{
				r.AmountIssuer, req.RealAmountCredentialRequests,
			},
			credentialRequest{
				r.VsizeIssuer, req.RealVsizeCredentialRequests,
			},
		)
	}
	prepared, err := prepareCredentials(reqs...)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	_, alice, err := a.checkConfirmation(req)
	if err != nil {
		return nil, err
	}

	// The credentials were prepared for the phase the request arrived
	// in.
	if r.Phase != phase {
		return nil, models.WrongPhaseError(r, r.Phase)
	}

	resps, err := commitCredentials(prepared)
	if err != nil {
		return nil, err
	}

	resp := &models.ConnectionConfirmationResponse{
		ZeroAmountCredentials: resps[0],
		ZeroVsizeCredentials:  resps[1],
	}
	if phase == models.PhaseInputRegistration {
		alice.extendDeadline(a.now(),
			a.cfg.Config.ConnectionConfirmationHeartbeat)

		return resp, nil
	}

	resp.RealAmountCredentials = resps[2]
	resp.RealVsizeCredentials = resps[3]
	alice.ConfirmedConnection = true

	log.Debugf("Round (%v): alice %v confirmed her connection", r,
		alice.ID)

	return resp, nil
}

// RemoveInput unregisters an Alice during input registration. Removing
// an unknown Alice succeeds.
func (a *Arena) RemoveInput(_ context.Context,
	req *models.InputsRemovalRequest) error {

	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.roundInPhase(req.RoundID, models.PhaseInputRegistration)
	if err != nil {
		return err
	}

	removed := r.removeAlices(func(alice *Alice) bool {
		return alice.ID == req.AliceID
	})
	if len(removed) > 0 {
		log.Infof("Round (%v): alice %v unregistered %v", r,
			req.AliceID, removed[0].Coin.Outpoint)
	}

	return nil
}

// checkOutput returns the round req registers an output with and the
// coinjoin including it if the round accepts the output. The caller must
// hold the lock.
func (a *Arena) checkOutput(req *models.OutputRegistrationRequest) (*Round,
	*models.ConstructionState, error) {

	r, err := a.roundInPhase(req.RoundID, models.PhaseOutputRegistration)
	if err != nil {
		return nil, nil, err
	}

	scriptType, ok := models.ScriptTypeOf(req.Script)
	if !ok || !models.ContainsScriptType(r.Parameters.AllowedOutputTypes,
		scriptType) {

		return nil, nil, models.NewProtocolError(
			models.ErrScriptNotAllowed, "output script type not allowed",
		)
	}
	for _, bob := range r.Bobs {
		if bytes.Equal(bob.Script, req.Script) {
			return nil, nil, models.NewProtocolError(
				models.ErrAlreadyRegisteredScript,
				"output script already registered",
			)
		}
	}

	if req.AmountCredentialRequests == nil ||
		req.VsizeCredentialRequests == nil {

		return nil, nil, models.NewProtocolError(
			models.ErrWrongNumberOfCreds, "missing credential request",
		)
	}
	outputVsize := int64(scriptType.OutputVsize())
	if -req.VsizeCredentialRequests.Delta != outputVsize {
		return nil, nil, models.NewProtocolError(
			models.ErrIncorrectRequestedVsizeCredentials,
			"presented %d vsize credentials, output needs %d",
			-req.VsizeCredentialRequests.Delta, outputVsize,
		)
	}

	fee := r.Parameters.MiningFeeRate.FeeForVSize(scriptType.OutputVsize())
	value := btcutil.Amount(-req.AmountCredentialRequests.Delta) - fee
	out := wire.TxOut{Value: int64(value), PkScript: req.Script}

	state, err := r.Construction()
	if err != nil {
		return nil, nil, err
	}
	next, err := state.AddOutput(out)
	if err != nil {
		return nil, nil, err
	}

	return r, next, nil
}

// RegisterOutput adds an output paid for with amount and vsize
// credentials.
func (a *Arena) RegisterOutput(_ context.Context,
	req *models.OutputRegistrationRequest) error {

	a.mu.Lock()
	r, _, err := a.checkOutput(req)
	a.mu.Unlock()
	if err != nil {
		return err
	}

	prepared, err := prepareCredentials(
		credentialRequest{r.AmountIssuer, req.AmountCredentialRequests},
		credentialRequest{r.VsizeIssuer, req.VsizeCredentialRequests},
	)
	if err != nil {
		return err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	// Outputs registered meanwhile change the coinjoin the output is
	// added to.
	_, next, err := a.checkOutput(req)
	if err != nil {
		return err
	}
	if _, err := commitCredentials(prepared); err != nil {
		return err
	}

	credentialAmount := -req.AmountCredentialRequests.Delta
	r.CoinjoinState = next
	r.Bobs = append(r.Bobs, &Bob{
		Script:           req.Script,
		CredentialAmount: credentialAmount,
	})

	log.Debugf("Round (%v): output of %v registered", r,
		btcutil.Amount(next.Outputs()[len(next.Outputs())-1].Value))

	return nil
}

// checkReissuance returns the round a reissuance is made in if it accepts
// the request. The caller must hold the lock.
func (a *Arena) checkReissuance(
	req *models.ReissueCredentialRequest) (*Round, error) {

	return a.roundInPhase(req.RoundID, models.PhaseConnectionConfirmation,
		models.PhaseOutputRegistration)
}

// ReissueCredentials exchanges credentials for new ones of the same total
// value.
func (a *Arena) ReissueCredentials(_ context.Context,
	req *models.ReissueCredentialRequest) (
	*models.ReissueCredentialResponse, error) {

	for _, cr := range []*wabisabi.CredentialsRequest{
		req.RealAmountCredentialRequests,
		req.RealVsizeCredentialRequests,
	} {
		if cr == nil {
			return nil, models.NewProtocolError(
				models.ErrWrongNumberOfCreds,
				"missing real credential request",
			)
		}
		if cr.Delta != 0 {
			return nil, models.NewProtocolError(
				models.ErrDeltaNotZero,
				"reissuance has delta %d", cr.Delta,
			)
		}
	}
	err := requireZero(req.ZeroAmountCredentialRequests,
		req.ZeroVsizeCredentialRequests)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	r, err := a.checkReissuance(req)
	a.mu.Unlock()
	if err != nil {
		return nil, err
	}

	prepared, err := prepareCredentials(
		credentialRequest{r.AmountIssuer, req.RealAmountCredentialRequests},
		credentialRequest{r.VsizeIssuer, req.RealVsizeCredentialRequests},
		credentialRequest{r.AmountIssuer, req.ZeroAmountCredentialRequests},
		credentialRequest{r.VsizeIssuer, req.ZeroVsizeCredentialRequests},
	)
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.checkReissuance(req); err != nil {
		return nil, err
	}
	resps, err := commitCredentials(prepared)
	if err != nil {
		return nil, err
	}

	return &models.ReissueCredentialResponse{
		RealAmountCredentials: resps[0],
		RealVsizeCredentials:  resps[1],
		ZeroAmountCredentials: resps[2],
		ZeroVsizeCredentials:  resps[3],
	}, nil
}

// ReadyToSign records that an Alice registered all her outputs. Repeated
// signals are accepted.
func (a *Arena) ReadyToSign(_ context.Context,
	req *models.ReadyToSignRequestRequest) error {

	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.roundInPhase(req.RoundID, models.PhaseOutputRegistration)
	if err != nil {
		return err
	}
	alice, err := r.Alice(req.AliceID)
	if err != nil {
		return err
	}
	alice.ReadyToSign = true

	return nil
}

// SignTransaction adds the witness of one coinjoin input.
func (a *Arena) SignTransaction(_ context.Context,
	req *models.TransactionSignaturesRequest) error {

	a.mu.Lock()
	defer a.mu.Unlock()

	r, err := a.roundInPhase(req.RoundID, models.PhaseTransactionSigning)
	if err != nil {
		return err
	}
	state, err := r.Signing()
	if err != nil {
		return err
	}

	inputs := state.Inputs()
	if req.InputIndex < 0 || req.InputIndex >= len(inputs) {
		return models.NewProtocolError(models.ErrWrongCoinjoinSignature,
			"input index %d out of range", req.InputIndex)
	}

	maxSize := maxP2WPKHWitnessSize
	if inputs[req.InputIndex].ScriptType() == models.ScriptTypeTaproot {
		maxSize = maxTaprootWitnessSize
	}
	if req.Witness.SerializeSize() > maxSize {
		return models.NewProtocolError(models.ErrSignatureTooLong,
			"witness of input %d is %d bytes", req.InputIndex,
			req.Witness.SerializeSize())
	}

	if err := state.VerifyWitness(req.InputIndex, req.Witness); err != nil {
		return err
	}
	next, err := state.AddWitness(req.InputIndex, req.Witness)
	if err != nil {
		return err
	}
	r.CoinjoinState = next

	log.Debugf("Round (%v): input %d signed", r, req.InputIndex)

	return nil
}
