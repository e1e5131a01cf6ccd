// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package unit provides a set of types for dealing with bitcoin units.
package unit

import (
	"fmt"
	"math"
	"math/big"

	"github.com/btcsuite/btcd/btcutil"
)

const (
	// SatsPerKilo is the number of satoshis in a kilo-satoshi.
	SatsPerKilo = 1000

	// floatStringPrecision is the number of decimal places to use when
	// converting a fee rate to a string.
	floatStringPrecision = 3
)

// SatPerKVByte represents a fee rate in sat/kvb. The fee rate is encoded as
// a big.Rat to allow for fractional (sub-satoshi per vbyte) fee rates.
type SatPerKVByte struct {
	*big.Rat
}

// NewSatPerKVByte creates a new fee rate in sat/kvb from a fee paid for the
// given vsize.
func NewSatPerKVByte(fee btcutil.Amount, vb VByte) SatPerKVByte {
	if vb == 0 {
		return SatPerKVByte{big.NewRat(0, 1)}
	}

	return SatPerKVByte{
		big.NewRat(int64(fee)*SatsPerKilo, safeUint64ToInt64(uint64(vb))),
	}
}

// SatsPerKVByte returns a fee rate of sats satoshis per kvb.
func SatsPerKVByte(sats int64) SatPerKVByte {
	return SatPerKVByte{big.NewRat(sats, 1)}
}

// ParseSatPerKVByte parses a decimal fee rate in sat/kvb.
func ParseSatPerKVByte(s string) (SatPerKVByte, error) {
	r, ok := new(big.Rat).SetString(s)
	if !ok || r.Sign() < 0 {
		return SatPerKVByte{}, fmt.Errorf("invalid fee rate %q", s)
	}

	return SatPerKVByte{r}, nil
}

// rat returns the underlying rational, treating a nil rate as zero.
func (s SatPerKVByte) rat() *big.Rat {
	if s.Rat == nil {
		return new(big.Rat)
	}

	return s.Rat
}

// FeeForVSize calculates the fee resulting from this fee rate and the given
// vsize in vbytes, rounding up to the next satoshi.
func (s SatPerKVByte) FeeForVSize(vbytes VByte) btcutil.Amount {
	fee := new(big.Rat).Mul(
		s.rat(),
		big.NewRat(safeUint64ToInt64(uint64(vbytes)), SatsPerKilo),
	)

	num := new(big.Int).Set(fee.Num())
	den := fee.Denom()
	num.Add(num, den)
	num.Sub(num, big.NewInt(1))
	num.Div(num, den)

	return btcutil.Amount(num.Int64())
}

// Scale returns the fee rate multiplied by num/den.
func (s SatPerKVByte) Scale(num, den int64) SatPerKVByte {
	return SatPerKVByte{new(big.Rat).Mul(s.rat(), big.NewRat(num, den))}
}

// String returns a human-readable string of the fee rate.
func (s SatPerKVByte) String() string {
	return s.rat().FloatString(floatStringPrecision) + " sat/kvb"
}

// MarshalText encodes the fee rate as a decimal number of sat/kvb.
func (s SatPerKVByte) MarshalText() ([]byte, error) {
	return []byte(s.rat().FloatString(floatStringPrecision)), nil
}

// UnmarshalText decodes a decimal number of sat/kvb.
func (s *SatPerKVByte) UnmarshalText(text []byte) error {
	parsed, err := ParseSatPerKVByte(string(text))
	if err != nil {
		return err
	}
	*s = parsed

	return nil
}

// Equal returns true if the fee rate is equal to the other fee rate.
func (s SatPerKVByte) Equal(other SatPerKVByte) bool {
	return s.rat().Cmp(other.rat()) == 0
}

// GreaterThan returns true if the fee rate is greater than the other fee rate.
func (s SatPerKVByte) GreaterThan(other SatPerKVByte) bool {
	return s.rat().Cmp(other.rat()) > 0
}

// LessThan returns true if the fee rate is less than the other fee rate.
func (s SatPerKVByte) LessThan(other SatPerKVByte) bool {
	return s.rat().Cmp(other.rat()) < 0
}

// GreaterThanOrEqual returns true if the fee rate is greater than or equal to
// the other fee rate.
func (s SatPerKVByte) GreaterThanOrEqual(other SatPerKVByte) bool {
	return s.rat().Cmp(other.rat()) >= 0
}

// LessThanOrEqual returns true if the fee rate is less than or equal to the
// other fee rate.
func (s SatPerKVByte) LessThanOrEqual(other SatPerKVByte) bool {
	return s.rat().Cmp(other.rat()) <= 0
}

// safeUint64ToInt64 converts a uint64 to an int64, capping at math.MaxInt64.
func safeUint64ToInt64(u uint64) int64 {
	if u > math.MaxInt64 {
		return math.MaxInt64
	}

	return int64(u)
}
