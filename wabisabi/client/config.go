// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"errors"
	"time"

	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

const (
	// DefaultAnonScoreTarget is the anonymity score a coin needs to be
	// considered private.
	DefaultAnonScoreTarget = 5

	// DefaultAbsoluteMinInputCount is the fewest inputs a round must
	// require for the wallet to join it.
	DefaultAbsoluteMinInputCount = 21

	// DefaultMaximumRequestDelay bounds how far input registrations are
	// spread out.
	DefaultMaximumRequestDelay = 10 * time.Second

	// DefaultTimeoutMargin is added to the deadlines published by the
	// coordinator to tolerate latency.
	DefaultTimeoutMargin = 10 * time.Second

	// DefaultMinRegistrationTime is the least input registration time a
	// round must have left to be joined.
	DefaultMinRegistrationTime = 20 * time.Second

	// DefaultMaxBlameRounds caps how many blame rounds follow a
	// disrupted round.
	DefaultMaxBlameRounds = 1
)

// Config holds the dependencies and policy of a CoinJoinClient.
type Config struct {
	// Handler is the coordinator.
	Handler RequestHandler

	// Updater tracks the round states of Handler. It must be started.
	Updater *RoundStateUpdater

	// KeyChain proves ownership of and signs for the wallet's coins.
	KeyChain KeyChain

	// OutputProvider hands out the scripts coinjoin outputs pay to.
	OutputProvider OutputProvider

	// Random drives coin selection, request timing and credential
	// randomness. It defaults to a secure source.
	Random randomness.WasabiRandom

	// Clock returns the current time. It defaults to time.Now.
	Clock func() time.Time

	AnonScoreTarget float64

	// MaxCoinJoinMiningFeeRate is the highest mining fee rate of a
	// round the wallet joins. A nil rate means no limit.
	MaxCoinJoinMiningFeeRate unit.SatPerKVByte

	AbsoluteMinInputCount int

	// AllowSoloCoinjoining lets the wallet sign coinjoins spending only
	// its own coins.
	AllowSoloCoinjoining bool

	MaximumRequestDelay time.Duration
	TimeoutMargin       time.Duration
	MinRegistrationTime time.Duration
	MaxBlameRounds      int

	SkipFactors CoinjoinSkipFactors

	// FeeRateMedians returns the historical fee rates the skip factors
	// compare against. It may be nil.
	FeeRateMedians func() *FeeRateMedians

	// Progress receives the progress events of every attempt. It may be
	// nil.
	Progress chan<- ProgressEvent
}

// DefaultConfig returns the default client policy.
func DefaultConfig() *Config {
	return &Config{
		AnonScoreTarget:       DefaultAnonScoreTarget,
		AbsoluteMinInputCount: DefaultAbsoluteMinInputCount,
		MaximumRequestDelay:   DefaultMaximumRequestDelay,
		TimeoutMargin:         DefaultTimeoutMargin,
		MinRegistrationTime:   DefaultMinRegistrationTime,
		MaxBlameRounds:        DefaultMaxBlameRounds,
		SkipFactors:           NoSkip,
	}
}

// validate checks the config and fills in defaults.
func (c *Config) validate() error {
	switch {
	case c.Handler == nil:
		return errors.New("no request handler")

	case c.Updater == nil:
		return errors.New("no round state updater")

	case c.KeyChain == nil:
		return errors.New("no key chain")

	case c.OutputProvider == nil:
		return errors.New("no output provider")

	case c.AnonScoreTarget < 1:
		return errors.New("anonymity score target must be at least 1")
	}

	if c.Random == nil {
		c.Random = randomness.NewSecureRandom()
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}

	return nil
}
