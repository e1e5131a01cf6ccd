// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// Config holds the coordinator's policy. Rounds snapshot it into their
// RoundParameters when they are created.
type Config struct {
	// Network is the network rounds are coordinated on.
	Network *netparams.Params

	// FallbackMiningFeeRate is used when the backend cannot estimate a
	// fee rate.
	FallbackMiningFeeRate unit.SatPerKVByte

	// MinRelayTxFee is the relay fee outputs are dust checked against.
	MinRelayTxFee unit.SatPerKVByte

	// ConfirmationTarget is the block target fee rates are estimated
	// for.
	ConfirmationTarget int64

	MaxInputCountByRound           int
	MinInputCountByRoundMultiplier float64

	AllowedInputAmounts  models.MoneyRange
	AllowedOutputAmounts models.MoneyRange
	AllowedInputTypes    []models.ScriptType
	AllowedOutputTypes   []models.ScriptType

	// MaxSuggestedAmountBase is the smallest amount suggested to clients
	// as the most a round should be joined with. The suggestion doubles
	// with every round until it reaches the largest allowed input.
	MaxSuggestedAmountBase btcutil.Amount

	StandardInputRegistrationTimeout  time.Duration
	ConnectionConfirmationTimeout     time.Duration
	OutputRegistrationTimeout         time.Duration
	TransactionSigningTimeout         time.Duration
	BlameInputRegistrationTimeout     time.Duration
	FailFastOutputRegistrationTimeout time.Duration
	FailFastTransactionSigningTimeout time.Duration

	// RoundExpiryTimeout is how long ended rounds are still reported to
	// clients.
	RoundExpiryTimeout time.Duration

	// ConnectionConfirmationHeartbeat is how long an Alice stays
	// registered during input registration without confirming her
	// connection again.
	ConnectionConfirmationHeartbeat time.Duration

	ReleaseUTXOFromPrisonAfter        time.Duration
	ReleaseUTXOFromPrisonAfterLongBan time.Duration

	MaxVsizeAllocationPerAlice int64

	// CoordinationIdentifier is committed to by ownership proofs.
	CoordinationIdentifier string

	// StepInterval is how often the arena advances its rounds.
	StepInterval time.Duration
}

// DefaultConfig returns the default coordinator policy for network.
func DefaultConfig(network *netparams.Params) *Config {
	types := []models.ScriptType{
		models.ScriptTypeP2WPKH, models.ScriptTypeTaproot,
	}

	return &Config{
		Network:                        network,
		FallbackMiningFeeRate:          unit.SatsPerKVByte(10_000),
		MinRelayTxFee:                  unit.SatsPerKVByte(1_000),
		ConfirmationTarget:             108,
		MaxInputCountByRound:           100,
		MinInputCountByRoundMultiplier: 0.5,
		AllowedInputAmounts: models.MoneyRange{
			Min: 5_000,
			Max: 43_000 * btcutil.SatoshiPerBitcoin,
		},
		AllowedOutputAmounts: models.MoneyRange{
			Min: 5_000,
			Max: 43_000 * btcutil.SatoshiPerBitcoin,
		},
		AllowedInputTypes:                 types,
		AllowedOutputTypes:                types,
		MaxSuggestedAmountBase:            btcutil.SatoshiPerBitcoin / 10,
		StandardInputRegistrationTimeout:  time.Hour,
		ConnectionConfirmationTimeout:     time.Minute,
		OutputRegistrationTimeout:         time.Minute,
		TransactionSigningTimeout:         time.Minute,
		BlameInputRegistrationTimeout:     3 * time.Minute,
		FailFastOutputRegistrationTimeout: 3 * time.Minute,
		FailFastTransactionSigningTimeout: time.Minute,
		RoundExpiryTimeout:                5 * time.Minute,
		ConnectionConfirmationHeartbeat:   time.Minute,
		ReleaseUTXOFromPrisonAfter:        time.Hour,
		ReleaseUTXOFromPrisonAfterLongBan: 30 * 24 * time.Hour,
		MaxVsizeAllocationPerAlice:        255,
		CoordinationIdentifier:            "CoinJoinCoordinatorIdentifier",
		StepInterval:                      time.Second,
	}
}

// MinInputCountByRound is the number of inputs a round needs to proceed.
func (c *Config) MinInputCountByRound() int {
	n := int(math.Floor(float64(c.MaxInputCountByRound) *
		c.MinInputCountByRoundMultiplier))
	if n < 1 {
		n = 1
	}

	return n
}

// Validate checks the policy for inconsistencies.
func (c *Config) Validate() error {
	switch {
	case c.Network == nil:
		return errors.New("no network")

	case c.MaxInputCountByRound < 1:
		return errors.New("max input count by round must be positive")

	case c.MinInputCountByRoundMultiplier <= 0 ||
		c.MinInputCountByRoundMultiplier > 1:

		return fmt.Errorf("min input count multiplier %v not in (0, 1]",
			c.MinInputCountByRoundMultiplier)

	case c.AllowedInputAmounts.Min > c.AllowedInputAmounts.Max:
		return errors.New("empty allowed input amount range")

	case c.AllowedOutputAmounts.Min > c.AllowedOutputAmounts.Max:
		return errors.New("empty allowed output amount range")

	case len(c.AllowedInputTypes) == 0 || len(c.AllowedOutputTypes) == 0:
		return errors.New("no allowed script types")

	case c.MaxVsizeAllocationPerAlice <= int64(maxInputVsize(c)):
		return fmt.Errorf("vsize allocation %d does not cover an input",
			c.MaxVsizeAllocationPerAlice)

	case c.StepInterval <= 0:
		return errors.New("step interval must be positive")
	}

	return nil
}

func maxInputVsize(c *Config) unit.VByte {
	var vsize unit.VByte
	for _, t := range c.AllowedInputTypes {
		if v := t.InputVsize(); v > vsize {
			vsize = v
		}
	}

	return vsize
}

// roundParameters snapshots the policy for a new round.
func (c *Config) roundParameters(feeRate unit.SatPerKVByte,
	maxSuggested btcutil.Amount, blame bool) *models.RoundParameters {

	p := &models.RoundParameters{
		Network:                          c.Network,
		MiningFeeRate:                    feeRate,
		MinRelayTxFee:                    c.MinRelayTxFee,
		MaxInputCountByRound:             c.MaxInputCountByRound,
		MinInputCountByRound:             c.MinInputCountByRound(),
		AllowedInputAmounts:              c.AllowedInputAmounts,
		AllowedOutputAmounts:             c.AllowedOutputAmounts,
		AllowedInputTypes:                c.AllowedInputTypes,
		AllowedOutputTypes:               c.AllowedOutputTypes,
		StandardInputRegistrationTimeout: c.StandardInputRegistrationTimeout,
		ConnectionConfirmationTimeout:    c.ConnectionConfirmationTimeout,
		OutputRegistrationTimeout:        c.OutputRegistrationTimeout,
		TransactionSigningTimeout:        c.TransactionSigningTimeout,
		BlameInputRegistrationTimeout:    c.BlameInputRegistrationTimeout,
		MaxVsizeAllocationPerAlice:       c.MaxVsizeAllocationPerAlice,
		MaxSuggestedAmount:               maxSuggested,
		MaxTransactionSize:               models.StandardTransactionVsize,
		CoordinationIdentifier:           c.CoordinationIdentifier,
	}
	if blame {
		p.OutputRegistrationTimeout = c.FailFastOutputRegistrationTimeout
		p.TransactionSigningTimeout = c.FailFastTransactionSigningTimeout
	}

	return p.Clone()
}
