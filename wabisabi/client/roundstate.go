// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/lightningnetwork/lnd/ticker"
)

// DefaultRoundStatePollInterval is how often the coordinator is asked for
// the state of its rounds.
const DefaultRoundStatePollInterval = 5 * time.Second

// ErrUpdaterStopped is returned by awaiters when the updater stops.
var ErrUpdaterStopped = errors.New("round state updater stopped")

type awaitResult struct {
	state *models.RoundState
	err   error
}

// roundAwaiter waits for a round state satisfying predicate, of one round
// if roundID is set.
type roundAwaiter struct {
	roundID   fn.Option[chainhash.Hash]
	predicate func(*models.RoundState) bool
	result    chan awaitResult
}

// RoundStateUpdater polls the coordinator for the state of its rounds and
// wakes up the tasks waiting for a round to reach some state.
type RoundStateUpdater struct {
	handler RequestHandler
	ticker  ticker.Ticker

	// updateMu serializes polls.
	updateMu sync.Mutex

	mu       sync.Mutex
	polled   bool
	states   map[chainhash.Hash]*models.RoundState
	awaiters map[*roundAwaiter]struct{}

	started sync.Once
	stopped sync.Once

	quit chan struct{}
	wg   sync.WaitGroup
}

// NewRoundStateUpdater returns an updater polling handler on every tick
// of t. A nil t polls every DefaultRoundStatePollInterval.
func NewRoundStateUpdater(handler RequestHandler,
	t ticker.Ticker) *RoundStateUpdater {

	if t == nil {
		t = ticker.New(DefaultRoundStatePollInterval)
	}

	return &RoundStateUpdater{
		handler:  handler,
		ticker:   t,
		states:   make(map[chainhash.Hash]*models.RoundState),
		awaiters: make(map[*roundAwaiter]struct{}),
		quit:     make(chan struct{}),
	}
}

// Start begins polling.
func (u *RoundStateUpdater) Start() error {
	u.started.Do(func() {
		u.ticker.Resume()

		u.wg.Add(1)
		go u.pollHandler()
	})

	return nil
}

// Stop stops polling and fails every pending awaiter.
func (u *RoundStateUpdater) Stop() {
	u.stopped.Do(func() {
		close(u.quit)
		u.ticker.Stop()
		u.wg.Wait()
	})
}

// pollHandler updates the round states on every tick.
//
// NOTE: This must be run as a goroutine.
func (u *RoundStateUpdater) pollHandler() {
	defer u.wg.Done()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-u.quit:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := u.Update(ctx); err != nil {
		log.Debugf("Unable to fetch round states: %v", err)
	}

	for {
		select {
		case <-u.ticker.Ticks():
			if err := u.Update(ctx); err != nil {
				log.Debugf("Unable to fetch round states: %v",
					err)
			}

		case <-u.quit:
			return
		}
	}
}

// Update fetches the round states once.
func (u *RoundStateUpdater) Update(ctx context.Context) error {
	u.updateMu.Lock()
	defer u.updateMu.Unlock()

	u.mu.Lock()
	req := &models.RoundStateRequest{
		RoundCheckpoints: make([]models.RoundStateCheckpoint, 0,
			len(u.states)),
	}
	for _, s := range u.states {
		req.RoundCheckpoints = append(req.RoundCheckpoints,
			s.Checkpoint())
	}
	u.mu.Unlock()

	resp, err := u.handler.GetStatus(ctx, req)
	if err != nil {
		return err
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	next := make(map[chainhash.Hash]*models.RoundState,
		len(resp.RoundStates))
	for _, s := range resp.RoundStates {
		full, err := s.Merge(u.states[s.ID])
		if err != nil {
			// Dropped so the next poll asks for the whole state.
			log.Warnf("Round (%v): %v", models.ShortID(s.ID), err)
			continue
		}
		next[s.ID] = full
	}
	u.states = next
	u.polled = true

	for a := range u.awaiters {
		u.tryResolve(a)
	}

	return nil
}

// tryResolve completes a if the known states allow it. The caller must
// hold mu.
func (u *RoundStateUpdater) tryResolve(a *roundAwaiter) {
	if a.roundID.IsSome() {
		id := a.roundID.UnwrapOr(chainhash.Hash{})
		state, ok := u.states[id]
		switch {
		case !ok && u.polled:
			u.resolve(a, awaitResult{err: ErrRoundGone})

		case ok && a.predicate(state):
			u.resolve(a, awaitResult{state: state})
		}

		return
	}

	for _, state := range u.states {
		if a.predicate(state) {
			u.resolve(a, awaitResult{state: state})
			return
		}
	}
}

// resolve delivers r to a and forgets it. The caller must hold mu.
func (u *RoundStateUpdater) resolve(a *roundAwaiter, r awaitResult) {
	delete(u.awaiters, a)
	a.result <- r
}

func (u *RoundStateUpdater) await(ctx context.Context,
	a *roundAwaiter) (*models.RoundState, error) {

	a.result = make(chan awaitResult, 1)

	u.mu.Lock()
	u.awaiters[a] = struct{}{}
	u.tryResolve(a)
	u.mu.Unlock()

	select {
	case r := <-a.result:
		return r.state, r.err

	case <-ctx.Done():
		u.mu.Lock()
		delete(u.awaiters, a)
		u.mu.Unlock()

		return nil, ctx.Err()

	case <-u.quit:
		return nil, ErrUpdaterStopped
	}
}

// CreateRoundAwaiter waits until any round satisfies predicate.
func (u *RoundStateUpdater) CreateRoundAwaiter(ctx context.Context,
	predicate func(*models.RoundState) bool) (*models.RoundState, error) {

	return u.await(ctx, &roundAwaiter{
		roundID:   fn.None[chainhash.Hash](),
		predicate: predicate,
	})
}

// AwaitRound waits until round id satisfies predicate. It fails with
// ErrRoundGone if the coordinator stops reporting the round.
func (u *RoundStateUpdater) AwaitRound(ctx context.Context,
	id chainhash.Hash,
	predicate func(*models.RoundState) bool) (*models.RoundState, error) {

	return u.await(ctx, &roundAwaiter{
		roundID:   fn.Some(id),
		predicate: predicate,
	})
}

// AwaitPhase waits until round id reaches phase or ends. It fails with
// ErrRoundEnded if the round ended before reaching phase.
func (u *RoundStateUpdater) AwaitPhase(ctx context.Context,
	id chainhash.Hash, phase models.Phase) (*models.RoundState, error) {

	state, err := u.AwaitRound(ctx, id, func(s *models.RoundState) bool {
		return s.Phase >= phase
	})
	if err != nil {
		return nil, err
	}
	if state.Phase == models.PhaseEnded && phase != models.PhaseEnded {
		return state, ErrRoundEnded
	}

	return state, nil
}

// RoundState returns the last known state of round id.
func (u *RoundStateUpdater) RoundState(
	id chainhash.Hash) (*models.RoundState, bool) {

	u.mu.Lock()
	defer u.mu.Unlock()

	s, ok := u.states[id]
	return s, ok
}

// RoundStates returns the last known states.
func (u *RoundStateUpdater) RoundStates() []*models.RoundState {
	u.mu.Lock()
	defer u.mu.Unlock()

	states := make([]*models.RoundState, 0, len(u.states))
	for _, s := range u.states {
		states = append(states, s)
	}

	return states
}
