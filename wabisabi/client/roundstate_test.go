// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/lightningnetwork/lnd/ticker"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func testRoundState(id byte, phase models.Phase) *models.RoundState {
	return &models.RoundState{
		ID:                       chainhash.Hash{id},
		Phase:                    phase,
		InputRegistrationStart:   time.Now(),
		InputRegistrationTimeout: time.Hour,
		CoinjoinState: models.NewConstructionState(
			testRoundParameters(),
		),
	}
}

func statusResponse(states ...*models.RoundState) *models.RoundStateResponse {
	return &models.RoundStateResponse{RoundStates: states}
}

// TestRoundStateUpdaterAwaitPhase follows a round through its phases.
func TestRoundStateUpdaterAwaitPhase(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	round := testRoundState(1, models.PhaseInputRegistration)

	advanced := *round
	advanced.Phase = models.PhaseOutputRegistration

	ended := *round
	ended.Phase = models.PhaseEnded
	ended.EndRoundState = models.EndRoundStateAbortedNotEnoughAlices

	handler := &mockHandler{}
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(round), nil,
	).Once()
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(&advanced), nil,
	).Once()
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(&ended), nil,
	).Once()
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(), nil,
	).Once()

	u := NewRoundStateUpdater(handler, ticker.NewForce(time.Hour))
	require.NoError(t, u.Update(ctx))

	// A phase the round already reached resolves at once.
	s, err := u.AwaitPhase(ctx, round.ID, models.PhaseInputRegistration)
	require.NoError(t, err)
	require.Equal(t, round.ID, s.ID)

	result := make(chan error, 1)
	go func() {
		_, err := u.AwaitPhase(ctx, round.ID,
			models.PhaseConnectionConfirmation)
		result <- err
	}()

	require.NoError(t, u.Update(ctx))

	select {
	case err := <-result:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("awaiter not resolved")
	}

	require.NoError(t, u.Update(ctx))
	s, err = u.AwaitPhase(ctx, round.ID, models.PhaseTransactionSigning)
	require.ErrorIs(t, err, ErrRoundEnded)
	require.Equal(t, models.EndRoundStateAbortedNotEnoughAlices,
		s.EndRoundState)

	require.NoError(t, u.Update(ctx))
	_, err = u.AwaitPhase(ctx, round.ID, models.PhaseEnded)
	require.ErrorIs(t, err, ErrRoundGone)
	require.Empty(t, u.RoundStates())

	handler.AssertExpectations(t)
}

// TestRoundStateUpdaterCheckpoints checks that polls send the number of
// events known of every round.
func TestRoundStateUpdaterCheckpoints(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	round := testRoundState(2, models.PhaseInputRegistration)

	handler := &mockHandler{}
	handler.On("GetStatus", mock.MatchedBy(
		func(req *models.RoundStateRequest) bool {
			return len(req.RoundCheckpoints) == 0
		},
	)).Return(statusResponse(round), nil).Once()
	handler.On("GetStatus", mock.MatchedBy(
		func(req *models.RoundStateRequest) bool {
			return req.Checkpoint(round.ID) == 1
		},
	)).Return(statusResponse(round.WithCheckpoint(1)), nil).Once()

	u := NewRoundStateUpdater(handler, ticker.NewForce(time.Hour))
	require.NoError(t, u.Update(ctx))
	require.NoError(t, u.Update(ctx))

	s, ok := u.RoundState(round.ID)
	require.True(t, ok)
	require.Len(t, s.CoinjoinState.Events(), 1)

	handler.AssertExpectations(t)
}

// TestRoundStateUpdaterStop checks that stopping the updater fails the
// pending awaiters.
func TestRoundStateUpdaterStop(t *testing.T) {
	t.Parallel()

	handler := &mockHandler{}
	handler.On("GetStatus", mock.Anything).Return(
		statusResponse(), nil,
	).Maybe()

	u := NewRoundStateUpdater(handler, ticker.NewForce(time.Hour))
	require.NoError(t, u.Start())

	result := make(chan error, 1)
	go func() {
		_, err := u.CreateRoundAwaiter(context.Background(),
			func(*models.RoundState) bool { return false })
		result <- err
	}()

	ctx, cancel := context.WithTimeout(context.Background(),
		10*time.Millisecond)
	defer cancel()
	_, err := u.CreateRoundAwaiter(ctx,
		func(*models.RoundState) bool { return false })
	require.ErrorIs(t, err, context.DeadlineExceeded)

	u.Stop()

	select {
	case err := <-result:
		require.ErrorIs(t, err, ErrUpdaterStopped)
	case <-time.After(5 * time.Second):
		t.Fatal("awaiter not resolved")
	}
}
