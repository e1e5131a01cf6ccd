// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/coins"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/client/decomposition"
	"github.com/btcsuite/wabisabi/wabisabi/client/graph"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"golang.org/x/sync/errgroup"
)

// CoinJoinClient takes part in coinjoin rounds on behalf of a wallet.
type CoinJoinClient struct {
	cfg      *Config
	selector *CoinJoinCoinSelector

	mu sync.Mutex

	// attempted holds the rounds the client already joined or skipped.
	attempted map[chainhash.Hash]time.Time
}

// NewCoinJoinClient returns a client for the coordinator of cfg.
func NewCoinJoinClient(cfg *Config) (*CoinJoinClient, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &CoinJoinClient{
		cfg:       cfg,
		selector:  NewCoinJoinCoinSelector(cfg.AnonScoreTarget, cfg.Random),
		attempted: make(map[chainhash.Hash]time.Time),
	}, nil
}

func (c *CoinJoinClient) now() time.Time {
	return c.cfg.Clock()
}

// notify sends e to the progress channel, if any.
func (c *CoinJoinClient) notify(ctx context.Context, e ProgressEvent) {
	e.Time = c.now()
	log.Debugf("Coinjoin progress: %v", e)

	if c.cfg.Progress == nil {
		return
	}

	select {
	case c.cfg.Progress <- e:
	case <-ctx.Done():
	}
}

// markAttempted records that round id was joined or skipped and forgets
// rounds attempted long ago.
func (c *CoinJoinClient) markAttempted(id chainhash.Hash) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for old, at := range c.attempted {
		if now.Sub(at) > 24*time.Hour {
			delete(c.attempted, old)
		}
	}
	c.attempted[id] = now
}

func (c *CoinJoinClient) wasAttempted(id chainhash.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.attempted[id]
	return ok
}

// StartCoinJoin joins the next standard round with coins picked from
// coinCandidates and, if that round is disrupted, its blame rounds. When
// stopWhenAllMixed is set no round is joined once every candidate is
// private.
func (c *CoinJoinClient) StartCoinJoin(ctx context.Context,
	coinCandidates func() coins.CoinSet,
	stopWhenAllMixed bool) (CoinJoinResult, error) {

	c.notify(ctx, ProgressEvent{Kind: ProgressWaitingForRound})

	state, err := c.waitForRound(ctx)
	if err != nil {
		return nil, err
	}
	c.markAttempted(state.ID)

	roundID := state.ID
	params := state.Parameters()

	candidates := coinCandidates().Available(c.now())
	if stopWhenAllMixed &&
		len(candidates.NonPrivate(c.cfg.AnonScoreTarget)) == 0 {

		return nil, clientError(ErrAllCoinsPrivate,
			"all %d %s reached anonymity score %v", len(candidates),
			pickNoun(len(candidates), "coin", "coins"),
			c.cfg.AnonScoreTarget)
	}

	var medians *FeeRateMedians
	if c.cfg.FeeRateMedians != nil {
		medians = c.cfg.FeeRateMedians()
	}
	if c.cfg.SkipFactors.ShouldSkipRoundRandomly(c.cfg.Random,
		params.MiningFeeRate, medians) {

		return nil, clientError(ErrRandomlySkippedRound,
			"round %v skipped at %v", models.ShortID(roundID),
			params.MiningFeeRate)
	}

	selected := c.selector.SelectCoinsForRound(candidates, params)
	if len(selected) == 0 {
		return nil, clientError(ErrNoCoinsEligibleToMix,
			"none of %d %s can join round %v", len(candidates),
			pickNoun(len(candidates), "coin", "coins"),
			models.ShortID(roundID))
	}

	result, err := c.startRound(ctx, state, selected)
	for blames := 0; err == nil && blames < c.cfg.MaxBlameRounds; blames++ {
		disrupted, ok := result.(*DisruptedCoinJoinResult)
		if !ok || len(disrupted.SignedCoins) == 0 {
			break
		}

		c.notify(ctx, ProgressEvent{
			Kind:    ProgressWaitingForBlameRound,
			RoundID: disrupted.RoundID,
		})

		blameState, berr := c.waitForBlameRound(ctx, disrupted.RoundID,
			params)
		if berr != nil {
			log.Infof("Round (%v): no blame round: %v",
				models.ShortID(disrupted.RoundID), berr)
			break
		}
		c.markAttempted(blameState.ID)

		result, err = c.startRound(ctx, blameState,
			disrupted.SignedCoins)
	}

	if result != nil {
		c.notify(ctx, ProgressEvent{
			Kind:    ProgressCoinJoinCompleted,
			RoundID: result.Round(),
			Result:  result,
		})
	}

	return result, err
}

// waitForRound waits for a standard round accepting inputs long enough to
// be joined.
func (c *CoinJoinClient) waitForRound(
	ctx context.Context) (*models.RoundState, error) {

	return c.cfg.Updater.CreateRoundAwaiter(ctx,
		func(s *models.RoundState) bool {
			if s.Phase != models.PhaseInputRegistration ||
				s.IsBlame() || s.CoinjoinState == nil {

				return false
			}
			if c.wasAttempted(s.ID) {
				return false
			}

			left := s.InputRegistrationEnd().Sub(c.now())
			return left >= c.cfg.MinRegistrationTime
		},
	)
}

// waitForBlameRound waits for the blame round of round id.
func (c *CoinJoinClient) waitForBlameRound(ctx context.Context,
	id chainhash.Hash,
	params *models.RoundParameters) (*models.RoundState, error) {

	ctx, cancel := context.WithTimeout(ctx,
		params.BlameInputRegistrationTimeout)
	defer cancel()

	return c.cfg.Updater.CreateRoundAwaiter(ctx,
		func(s *models.RoundState) bool {
			return s.Phase == models.PhaseInputRegistration &&
				s.CoinjoinState != nil &&
				s.BlameOf.UnwrapOr(chainhash.Hash{}) == id
		},
	)
}

// checkRound decides whether the round state describes can be joined with
// selected and returns the script type of the outputs to register.
func (c *CoinJoinClient) checkRound(state *models.RoundState,
	selected coins.CoinSet) (models.ScriptType, error) {

	params := state.Parameters()

	maxRate := c.cfg.MaxCoinJoinMiningFeeRate
	if maxRate.Rat != nil && params.MiningFeeRate.GreaterThan(maxRate) {
		return 0, clientError(ErrMiningFeeRateTooHigh,
			"round fee rate %v above %v", params.MiningFeeRate,
			maxRate)
	}

	if !state.IsBlame() &&
		params.MinInputCountByRound < c.cfg.AbsoluteMinInputCount {

		return 0, clientError(ErrMinInputCountTooLow,
			"round needs %d inputs, at least %d required",
			params.MinInputCountByRound,
			c.cfg.AbsoluteMinInputCount)
	}

	var (
		outputType models.ScriptType
		found      bool
	)
	for _, t := range c.cfg.OutputProvider.SupportedScriptTypes() {
		if models.ContainsScriptType(params.AllowedOutputTypes, t) {
			outputType, found = t, true
			break
		}
	}
	if !found {
		return 0, clientError(ErrNoSupportedScriptType,
			"round allows outputs of types %v", params.AllowedOutputTypes)
	}

	if params.MaxSuggestedAmount > 0 {
		for _, coin := range selected {
			if coin.Amount() > params.MaxSuggestedAmount {
				return 0, clientError(ErrCoinTooLarge,
					"coin %v above suggested %v", coin,
					params.MaxSuggestedAmount)
			}
		}
	}

	return outputType, nil
}

// startRound takes part in the round state describes with selected.
func (c *CoinJoinClient) startRound(ctx context.Context,
	state *models.RoundState, selected coins.CoinSet) (CoinJoinResult,
	error) {

	roundID := state.ID
	params := state.Parameters()
	margin := c.cfg.TimeoutMargin

	outputType, err := c.checkRound(state, selected)
	if err != nil {
		return nil, err
	}

	arena := NewArenaClient(state, c.cfg.Handler, c.cfg.Random)
	bob := NewBobClient(arena)

	c.notify(ctx, ProgressEvent{
		Kind:    ProgressEnteringInputRegistrationPhase,
		RoundID: roundID,
	})

	alices, err := c.registerCoins(ctx, arena, state, selected)
	if err != nil {
		return nil, err
	}
	if len(alices) == 0 {
		return nil, clientError(ErrCoinsRejected,
			"no coin of %d registered in round %v", len(selected),
			models.ShortID(roundID))
	}
	defer func() {
		for _, alice := range alices {
			alice.Release()
		}
	}()

	log.Infof("Round (%v): %d %s confirmed", models.ShortID(roundID),
		len(alices), pickNoun(len(alices), "input", "inputs"))

	awaitCtx, cancel := context.WithTimeout(ctx,
		params.ConnectionConfirmationTimeout+margin)
	defer cancel()

	orState, err := c.cfg.Updater.AwaitPhase(awaitCtx, roundID,
		models.PhaseOutputRegistration)
	switch {
	case errors.Is(err, ErrRoundEnded):
		c.notifyEnded(ctx, orState)
		return c.failed(orState), nil

	case err != nil:
		return nil, err
	}

	c.notify(ctx, ProgressEvent{
		Kind:    ProgressEnteringOutputRegistrationPhase,
		RoundID: roundID,
	})

	orCtx, cancel := context.WithTimeout(ctx,
		params.OutputRegistrationTimeout+margin)
	defer cancel()

	outputs, err := c.registerOutputs(orCtx, orState, bob, alices,
		outputType)
	if err != nil {
		log.Errorf("Round (%v): unable to register outputs: %v",
			models.ShortID(roundID), err)

		// Without its outputs the wallet must not sign.
		return &FailedCoinJoinResult{RoundID: roundID}, err
	}
	c.readyToSign(orCtx, alices)

	c.notify(ctx, ProgressEvent{
		Kind:    ProgressEnteringCriticalPhase,
		RoundID: roundID,
	})
	defer c.notify(ctx, ProgressEvent{
		Kind:    ProgressLeavingCriticalPhase,
		RoundID: roundID,
	})

	tsState, err := c.cfg.Updater.AwaitPhase(orCtx, roundID,
		models.PhaseTransactionSigning)
	switch {
	case errors.Is(err, ErrRoundEnded):
		c.notifyEnded(ctx, tsState)
		return c.failed(tsState), nil

	case err != nil:
		return nil, err
	}

	signing, ok := tsState.Signing()
	if !ok {
		return nil, fmt.Errorf("round %v is signing without a signed "+
			"state", models.ShortID(roundID))
	}

	signCtx, cancel := context.WithTimeout(ctx,
		params.TransactionSigningTimeout+margin)
	defer cancel()

	signed := c.signCoinJoin(signCtx, signing, alices, outputs)

	endState, err := c.cfg.Updater.AwaitPhase(signCtx, roundID,
		models.PhaseEnded)
	if err != nil {
		return nil, err
	}
	c.notifyEnded(ctx, endState)

	switch endState.EndRoundState {
	case models.EndRoundStateTransactionBroadcasted:
		if len(signed) == 0 {
			return c.failed(endState), clientError(
				ErrUserWasntInRound, "round %v broadcast "+
					"without the wallet's inputs",
				models.ShortID(roundID))
		}

		scripts := make([][]byte, len(outputs))
		for i := range outputs {
			scripts[i] = outputs[i].PkScript
		}

		log.Infof("Round (%v): coinjoin %v broadcast",
			models.ShortID(roundID),
			signing.CreateUnsignedTransaction().TxHash())

		return &SuccessfulCoinJoinResult{
			RoundID:          roundID,
			Coins:            coinsOf(alices),
			OutputScripts:    scripts,
			UnsignedCoinJoin: signing.CreateUnsignedTransaction(),
		}, nil

	case models.EndRoundStateNotAllAlicesSign:
		return &DisruptedCoinJoinResult{
			RoundID:     roundID,
			SignedCoins: signed,
		}, nil
	}

	return c.failed(endState), nil
}

// failed returns the result of a round ending without a coinjoin of the
// wallet.
func (c *CoinJoinClient) failed(
	state *models.RoundState) *FailedCoinJoinResult {

	return &FailedCoinJoinResult{
		RoundID:       state.ID,
		EndRoundState: state.EndRoundState,
	}
}

func (c *CoinJoinClient) notifyEnded(ctx context.Context,
	state *models.RoundState) {

	if state == nil {
		return
	}

	c.notify(ctx, ProgressEvent{
		Kind:          ProgressRoundEnded,
		RoundID:       state.ID,
		EndRoundState: state.EndRoundState,
	})
}

// registerCoins registers and confirms selected, each coin at a random time
// before input registration ends. Coins the coordinator rejects are left
// out. A round fatal error stops every registration still running.
func (c *CoinJoinClient) registerCoins(ctx context.Context,
	arena *ArenaClient, state *models.RoundState,
	selected coins.CoinSet) ([]*AliceClient, error) {

	params := state.Parameters()
	irEnd := state.InputRegistrationEnd()
	margin := c.cfg.TimeoutMargin

	regParent, abortRegistrations := context.WithCancelCause(ctx)
	defer abortRegistrations(nil)
	regCtx, cancelReg := context.WithDeadline(regParent, irEnd)
	defer cancelReg()

	confParent, abortConfirmations := context.WithCancelCause(ctx)
	defer abortConfirmations(nil)
	confCtx, cancelConf := context.WithDeadline(confParent,
		irEnd.Add(params.ConnectionConfirmationTimeout+margin))
	defer cancelConf()

	heartbeat := params.ConnectionConfirmationTimeout / 2
	dates := scheduleDates(c.cfg.Random, len(selected), c.now(),
		irEnd.Add(-margin), c.cfg.MaximumRequestDelay)

	registered := make([]*AliceClient, len(selected))

	var g errgroup.Group
	for i, coin := range selected {
		i, coin := i, coin

		g.Go(func() error {
			err := sleep(regCtx, dates[i].Sub(c.now()))
			if err != nil {
				return nil
			}

			alice, err := RegisterAlice(regCtx, arena,
				c.cfg.Updater, state, coin, c.cfg.KeyChain)
			if err != nil {
				if isRoundFatal(coin, err) {
					abortRegistrations(err)
				}
				return nil
			}

			err = alice.ConfirmConnection(confCtx, heartbeat)
			if err != nil {
				log.Warnf("Round (%v): %v did not confirm: %v",
					models.ShortID(state.ID), coin, err)

				if isRoundFatal(coin, err) {
					abortRegistrations(err)
					abortConfirmations(err)
				}
				c.unregister(alice)

				return nil
			}

			registered[i] = alice
			return nil
		})
	}
	_ = g.Wait()

	alices := make([]*AliceClient, 0, len(registered))
	for _, alice := range registered {
		if alice != nil {
			alices = append(alices, alice)
		}
	}

	if err := ctx.Err(); err != nil {
		for _, alice := range alices {
			alice.Release()
		}

		return nil, err
	}

	if cause := context.Cause(confParent); cause != nil {
		for _, alice := range alices {
			alice.Release()
		}

		return nil, fmt.Errorf("round %v aborted: %w",
			models.ShortID(state.ID), cause)
	}

	return alices, nil
}

// unregister releases alice's coin, removing her from the round while it
// still accepts inputs.
func (c *CoinJoinClient) unregister(alice *AliceClient) {
	defer alice.Release()

	state, ok := c.cfg.Updater.RoundState(alice.arena.RoundID())
	if !ok || state.Phase != models.PhaseInputRegistration {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(),
		c.cfg.TimeoutMargin)
	defer cancel()

	if err := alice.RemoveInput(ctx); err != nil {
		log.Debugf("Unable to unregister %v: %v", alice.Coin, err)
	}
}

// registerOutputs decomposes the value of alices, plans the credential
// flow to the resulting outputs and registers them. It returns the outputs
// the coinjoin must contain.
func (c *CoinJoinClient) registerOutputs(ctx context.Context,
	state *models.RoundState, bob *BobClient, alices []*AliceClient,
	outputType models.ScriptType) ([]wire.TxOut, error) {

	params := state.Parameters()

	ours := make(map[wire.OutPoint]struct{}, len(alices))
	var (
		mine   []btcutil.Amount
		others []btcutil.Amount
		vsize  int64
	)
	for _, alice := range alices {
		ours[alice.Coin.Outpoint] = struct{}{}
		mine = append(mine, alice.EffectiveValue())
		vsize += alice.VsizeAllocation()
	}
	for _, in := range state.CoinjoinState.Inputs() {
		if _, ok := ours[in.Outpoint]; ok {
			continue
		}
		others = append(others,
			params.InputEffectiveValue(in.Amount(), in.ScriptType()))
	}

	decomposer := decomposition.NewAmountDecomposer(
		decomposition.AmountDecomposerConfig{
			FeeRate:              params.MiningFeeRate,
			MinRelayTxFee:        params.MinRelayTxFee.FeeForVSize(1000),
			AllowedOutputAmounts: params.AllowedOutputAmounts,
			AvailableVsize:       unit.VByte(vsize),
			OutputType:           outputType,
		},
	)
	amounts, err := decomposer.Decompose(mine, others)
	if err != nil {
		return nil, err
	}

	scripts, err := c.cfg.OutputProvider.NextScripts(len(amounts),
		outputType)
	if err != nil {
		return nil, err
	}

	inputValues := make([][]int64, len(alices))
	for i, alice := range alices {
		inputValues[i] = []int64{
			int64(alice.EffectiveValue()), alice.VsizeAllocation(),
		}
	}
	outputVsize := int64(outputType.OutputVsize())
	outputValues := make([][]int64, len(amounts))
	expected := make([]wire.TxOut, len(amounts))
	for i, amount := range amounts {
		outputValues[i] = []int64{
			int64(params.OutputEffectiveCost(amount, outputType)),
			outputVsize,
		}
		expected[i] = wire.TxOut{
			Value:    int64(amount),
			PkScript: scripts[i],
		}
	}

	g, err := graph.ResolveCredentialDependencies(inputValues,
		outputValues)
	if err != nil {
		return nil, err
	}

	log.Debugf("Round (%v): registering %d %s through %d requests",
		models.ShortID(state.ID), len(amounts),
		pickNoun(len(amounts), "output", "outputs"), len(g.Vertices))

	outputErrs, err := NewDependencyGraphTaskScheduler(g).Run(ctx, alices,
		bob, scripts)
	for _, oerr := range outputErrs {
		if oerr != nil {
			log.Warnf("Round (%v): %v", models.ShortID(state.ID),
				oerr)
		}
	}
	if err != nil {
		return nil, err
	}

	return expected, nil
}

// readyToSign tells the coordinator that alices registered their outputs.
func (c *CoinJoinClient) readyToSign(ctx context.Context,
	alices []*AliceClient) {

	var g errgroup.Group
	for _, alice := range alices {
		alice := alice

		g.Go(func() error {
			if err := alice.ReadyToSign(ctx); err != nil {
				log.Warnf("Alice %v is not ready to sign: %v",
					alice.ID, err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

// signCoinJoin signs the inputs of alices in the coinjoin being signed. If
// the coinjoin does not look like the one the wallet agreed to, one input
// is left unsigned so the round fails into its blame round. It returns
// the coins signed.
func (c *CoinJoinClient) signCoinJoin(ctx context.Context,
	signing *models.SigningState, alices []*AliceClient,
	expected []wire.TxOut) coins.CoinSet {

	roundID := models.ShortID(alices[0].arena.RoundID())

	honest := true
	if !SanityCheck(expected, signing.CreateUnsignedTransaction()) {
		log.Warnf("Round (%v): coinjoin is missing outputs", roundID)
		honest = false
	}
	if !feeRateHonest(signing) {
		log.Warnf("Round (%v): coinjoin pays %v instead of %v",
			roundID, signing.EffectiveFeeRate(),
			signing.Parameters().MiningFeeRate)
		honest = false
	}
	if !c.cfg.AllowSoloCoinjoining && isSolo(signing, alices) {
		log.Warnf("Round (%v): coinjoin only spends the wallet's "+
			"coins", roundID)
		honest = false
	}

	toSign := alices
	if !honest {
		skip := c.cfg.Random.GetInt(0, len(alices))
		toSign = make([]*AliceClient, 0, len(alices)-1)
		toSign = append(toSign, alices[:skip]...)
		toSign = append(toSign, alices[skip+1:]...)
	}

	var (
		mu     sync.Mutex
		signed coins.CoinSet
		g      errgroup.Group
	)
	for _, alice := range toSign {
		alice := alice

		g.Go(func() error {
			if err := alice.Sign(ctx, signing); err != nil {
				log.Errorf("Round (%v): unable to sign %v: %v",
					roundID, alice.Coin, err)
				return nil
			}

			mu.Lock()
			signed = append(signed, alice.Coin)
			mu.Unlock()

			return nil
		})
	}
	_ = g.Wait()

	log.Infof("Round (%v): signed %d of %d %s", roundID, len(signed),
		len(alices), pickNoun(len(alices), "input", "inputs"))

	return signed
}

// SanityCheck reports whether tx pays at least the value of every expected
// output to its script.
func SanityCheck(expected []wire.TxOut, tx *wire.MsgTx) bool {
	for _, want := range expected {
		var paid int64
		for _, out := range tx.TxOut {
			if bytes.Equal(out.PkScript, want.PkScript) {
				paid += out.Value
			}
		}

		var required int64
		for _, other := range expected {
			if bytes.Equal(other.PkScript, want.PkScript) {
				required += other.Value
			}
		}

		if paid < required {
			return false
		}
	}

	return true
}

// feeRateHonest reports whether the coinjoin pays at least nine tenths of
// the round's mining fee rate for what it does not share.
func feeRateHonest(signing *models.SigningState) bool {
	vsize := signing.EstimatedVsize()
	if vsize > models.SharedOverhead {
		vsize -= models.SharedOverhead
	}

	paid := unit.NewSatPerKVByte(signing.Balance(), vsize)
	agreed := signing.Parameters().MiningFeeRate.Scale(9, 10)

	return paid.GreaterThanOrEqual(agreed)
}

// isSolo reports whether every input of the coinjoin belongs to alices.
func isSolo(signing *models.SigningState, alices []*AliceClient) bool {
	ours := make(map[wire.OutPoint]struct{}, len(alices))
	for _, alice := range alices {
		ours[alice.Coin.Outpoint] = struct{}{}
	}

	for _, in := range signing.Inputs() {
		if _, ok := ours[in.Outpoint]; !ok {
			return false
		}
	}

	return true
}

func coinsOf(alices []*AliceClient) coins.CoinSet {
	set := make(coins.CoinSet, len(alices))
	for i, alice := range alices {
		set[i] = alice.Coin
	}

	return set
}
