// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/lightningnetwork/lnd/ticker"
)

// ErrArenaShuttingDown is returned by requests made after Stop.
var ErrArenaShuttingDown = errors.New("arena shutting down")

// CoinJoinIDs records the coinjoins the coordinator broadcast.
type CoinJoinIDs interface {
	TryAdd(ctx context.Context, txid, roundID chainhash.Hash,
		now time.Time) (bool, error)
}

// ArenaConfig holds the dependencies of an Arena.
type ArenaConfig struct {
	// Config is the round policy.
	Config *Config

	// RPC is the bitcoind backend inputs are checked against and
	// coinjoins are broadcast to.
	RPC RPCClient

	// Prison bans misbehaving inputs.
	Prison *Prison

	// CoinJoinIDs records broadcast coinjoins. It may be nil.
	CoinJoinIDs CoinJoinIDs

	// Random is the source of the credential issuers' randomness.
	Random randomness.WasabiRandom

	// Clock returns the current time. It defaults to time.Now.
	Clock func() time.Time

	// StepTicker drives Step. It defaults to a ticker firing every
	// Config.StepInterval.
	StepTicker ticker.Ticker
}

// Arena owns the coordinator's rounds. Client requests and the periodic
// step that advances rounds through their phases are serialized by its
// lock.
type Arena struct {
	cfg ArenaConfig

	mu     sync.Mutex
	rounds []*Round

	// roundsCreated counts the standard rounds created so far and drives
	// the suggested maximum amount.
	roundsCreated int

	started sync.Once
	stopped sync.Once
	quit    chan struct{}
	wg      sync.WaitGroup
}

// NewArena creates an arena. No rounds exist until the first step.
func NewArena(cfg ArenaConfig) (*Arena, error) {
	if cfg.Config == nil {
		return nil, errors.New("no config")
	}
	if err := cfg.Config.Validate(); err != nil {
		return nil, err
	}
	if cfg.RPC == nil {
		return nil, errors.New("no rpc client")
	}
	if cfg.Prison == nil {
		return nil, errors.New("no prison")
	}
	if cfg.Random == nil {
		cfg.Random = randomness.NewSecureRandom()
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.StepTicker == nil {
		cfg.StepTicker = ticker.New(cfg.Config.StepInterval)
	}

	return &Arena{
		cfg:  cfg,
		quit: make(chan struct{}),
	}, nil
}

// Start runs a first step and then steps on every tick until Stop.
func (a *Arena) Start() error {
	var err error
	a.started.Do(func() {
		log.Infof("Starting arena")

		err = a.Step(context.Background())
		if err != nil {
			return
		}

		a.cfg.StepTicker.Resume()

		a.wg.Add(1)
		go a.stepHandler()
	})

	return err
}

// Stop stops stepping and waits for the running step to finish.
func (a *Arena) Stop() {
	a.stopped.Do(func() {
		log.Infof("Stopping arena")

		close(a.quit)
		a.wg.Wait()
		a.cfg.StepTicker.Stop()
	})
}

// stepHandler steps the arena on every tick.
//
// NOTE: This must be run as a goroutine.
func (a *Arena) stepHandler() {
	defer a.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-a.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	for {
		select {
		case <-a.cfg.StepTicker.Ticks():
			if err := a.Step(ctx); err != nil {
				log.Errorf("Unable to step arena: %v", err)
			}

		case <-a.quit:
			return
		}
	}
}

// now returns the arena's current time.
func (a *Arena) now() time.Time {
	return a.cfg.Clock()
}

// Rounds returns the client visible states of all rounds.
func (a *Arena) Rounds() []*models.RoundState {
	a.mu.Lock()
	defer a.mu.Unlock()

	states := make([]*models.RoundState, len(a.rounds))
	for i, r := range a.rounds {
		states[i] = r.State()
	}

	return states
}

// GetStatus returns the state of every round the coordinator still
// reports, each holding only what the client's checkpoint misses.
func (a *Arena) GetStatus(_ context.Context,
	req *models.RoundStateRequest) (*models.RoundStateResponse, error) {

	a.mu.Lock()
	defer a.mu.Unlock()

	resp := &models.RoundStateResponse{
		RoundStates: make([]*models.RoundState, 0, len(a.rounds)),
	}
	for _, r := range a.rounds {
		state := r.State().WithCheckpoint(req.Checkpoint(r.ID))
		resp.RoundStates = append(resp.RoundStates, state)
	}

	return resp, nil
}

// round returns the round with the given id. The caller must hold the
// lock.
func (a *Arena) round(id chainhash.Hash) (*Round, error) {
	for _, r := range a.rounds {
		if r.ID == id {
			return r, nil
		}
	}

	return nil, models.NewProtocolError(models.ErrRoundNotFound,
		"round %v not found", models.ShortID(id))
}

// roundInPhase returns the round with the given id if it is in one of
// phases. The caller must hold the lock.
func (a *Arena) roundInPhase(id chainhash.Hash,
	phases ...models.Phase) (*Round, error) {

	r, err := a.round(id)
	if err != nil {
		return nil, err
	}
	for _, p := range phases {
		if r.Phase == p {
			return r, nil
		}
	}

	return nil, models.WrongPhaseError(r, r.Phase)
}

// maxSuggestedAmount returns the amount suggested for the next standard
// round. It doubles with every round until it reaches the largest input
// and then starts over.
func (a *Arena) maxSuggestedAmount() btcutil.Amount {
	cfg := a.cfg.Config
	amount := cfg.MaxSuggestedAmountBase
	for i := 0; i < a.roundsCreated; i++ {
		if amount >= cfg.AllowedInputAmounts.Max {
			a.roundsCreated = 0
			amount = cfg.MaxSuggestedAmountBase
			break
		}
		amount *= 2
	}
	if amount > cfg.AllowedInputAmounts.Max {
		amount = cfg.AllowedInputAmounts.Max
	}

	return amount
}

// credentialError reports a rejected credential request as a protocol
// error.
func credentialError(err error) error {
	var cerr *wabisabi.CryptoError
	if !errors.As(err, &cerr) {
		return err
	}

	code := models.ErrCryptoException
	switch cerr.ErrorCode {
	case wabisabi.ErrInvalidNumberOfRequestedCredentials,
		wabisabi.ErrInvalidNumberOfPresentedCredentials:

		code = models.ErrWrongNumberOfCreds
	}

	return &models.ProtocolError{
		ErrorCode:     code,
		Description:   "credential request rejected",
		ExceptionData: models.EmptyExceptionData{},
		Err:           err,
	}
}

// credentialRequest is a credential request and the issuer it is made to.
type credentialRequest struct {
	issuer *wabisabi.CredentialIssuer
	req    *wabisabi.CredentialsRequest
}

// prepareCredentials verifies the requests and creates their credentials.
// It must be called without holding the lock: verifying proofs is the
// expensive part of every request.
func prepareCredentials(reqs ...credentialRequest) (
	[]*wabisabi.PreparedResponse, error) {

	prepared := make([]*wabisabi.PreparedResponse, len(reqs))
	for i, cr := range reqs {
		if cr.req == nil {
			return nil, models.NewProtocolError(
				models.ErrWrongNumberOfCreds,
				"missing credential request",
			)
		}

		p, err := cr.issuer.PrepareResponse(cr.req)
		if err != nil {
			return nil, credentialError(err)
		}
		prepared[i] = p
	}

	return prepared, nil
}

// commitCredentials commits prepared responses in order. The caller must
// hold the lock and have checked again that the round still accepts the
// request.
func commitCredentials(prepared []*wabisabi.PreparedResponse) (
	[]*wabisabi.CredentialsResponse, error) {

	resps := make([]*wabisabi.CredentialsResponse, len(prepared))
	for i, p := range prepared {
		resp, err := p.Commit()
		if err != nil {
			return nil, credentialError(err)
		}
		resps[i] = resp
	}

	return resps, nil
}
