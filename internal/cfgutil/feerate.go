// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package cfgutil

import (
	"strings"

	"github.com/btcsuite/wabisabi/pkg/unit"
)

// FeeRateFlag embeds a unit.SatPerKVByte and implements the flags.Marshaler
// and Unmarshaler interfaces. Values are satoshis per kilo virtual byte, or
// satoshis per virtual byte when suffixed with "sat/vb".
type FeeRateFlag struct {
	unit.SatPerKVByte
}

// NewFeeRateFlag creates a FeeRateFlag with a default fee rate.
func NewFeeRateFlag(defaultValue unit.SatPerKVByte) *FeeRateFlag {
	return &FeeRateFlag{defaultValue}
}

// MarshalFlag satisfies the flags.Marshaler interface.
func (f *FeeRateFlag) MarshalFlag() (string, error) {
	if f.Rat == nil {
		return "0", nil
	}
	return f.Rat.RatString(), nil
}

// UnmarshalFlag satisfies the flags.Unmarshaler interface.
func (f *FeeRateFlag) UnmarshalFlag(value string) error {
	value = strings.ToLower(strings.TrimSpace(value))

	multiplier := int64(1)
	if v, ok := strings.CutSuffix(value, "sat/vb"); ok {
		value, multiplier = v, 1000
	} else {
		value = strings.TrimSuffix(value, "sat/kvb")
	}

	rate, err := unit.ParseSatPerKVByte(strings.TrimSpace(value))
	if err != nil {
		return err
	}

	f.SatPerKVByte = rate.Scale(multiplier, 1)
	return nil
}
