// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// FeeRateMedians are the median coinjoin fee rates of recent periods.
// Unknown medians are nil.
type FeeRateMedians struct {
	Daily   *unit.SatPerKVByte
	Weekly  *unit.SatPerKVByte
	Monthly *unit.SatPerKVByte
}

// CoinjoinSkipFactors are the probabilities of joining a round whose fee
// rate exceeds the daily, weekly and monthly medians.
type CoinjoinSkipFactors struct {
	Daily   float64
	Weekly  float64
	Monthly float64
}

// NoSkip never skips a round.
var NoSkip = CoinjoinSkipFactors{Daily: 1, Weekly: 1, Monthly: 1}

// probability returns the chance of joining a round paying feeRate.
func (f CoinjoinSkipFactors) probability(feeRate unit.SatPerKVByte,
	medians *FeeRateMedians) float64 {

	if medians == nil {
		medians = &FeeRateMedians{}
	}

	p := 1.0
	for _, m := range []struct {
		median *unit.SatPerKVByte
		factor float64
	}{
		{medians.Daily, f.Daily},
		{medians.Weekly, f.Weekly},
		{medians.Monthly, f.Monthly},
	} {
		if m.median == nil || feeRate.GreaterThan(*m.median) {
			p *= m.factor
		}
	}

	return p
}

// ShouldSkipRoundRandomly decides whether to sit out a round paying
// feeRate. Rounds more expensive than recent medians are joined with the
// probability of the matching factors.
func (f CoinjoinSkipFactors) ShouldSkipRoundRandomly(
	rnd randomness.WasabiRandom, feeRate unit.SatPerKVByte,
	medians *FeeRateMedians) bool {

	if f == NoSkip {
		return false
	}

	const resolution = 10_000
	p := f.probability(feeRate, medians)

	return rnd.GetInt(0, resolution) >= int(p*resolution)
}
