// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package unit

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/stretchr/testify/require"
)

// TestFeeForVSize checks that fees are rounded up to the next satoshi.
func TestFeeForVSize(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		rate  SatPerKVByte
		vsize VByte
		fee   btcutil.Amount
	}{
		{
			name:  "exact",
			rate:  SatsPerKVByte(1000),
			vsize: 69,
			fee:   69,
		},
		{
			name:  "round up",
			rate:  SatsPerKVByte(1500),
			vsize: 69,
			fee:   104,
		},
		{
			name:  "sub satoshi",
			rate:  SatsPerKVByte(1),
			vsize: 1,
			fee:   1,
		},
		{
			name:  "zero rate",
			rate:  SatsPerKVByte(0),
			vsize: 1000,
			fee:   0,
		},
		{
			name:  "nil rate",
			rate:  SatPerKVByte{},
			vsize: 1000,
			fee:   0,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.fee, tc.rate.FeeForVSize(tc.vsize))
		})
	}
}

func TestFeeRateComparison(t *testing.T) {
	t.Parallel()

	a := NewSatPerKVByte(100, 50)
	b := SatsPerKVByte(2000)
	require.True(t, a.Equal(b))
	require.True(t, a.GreaterThanOrEqual(b))
	require.True(t, a.Scale(9, 10).LessThan(b))
	require.True(t, b.GreaterThan(a.Scale(9, 10)))
	require.Equal(t, "2000.000 sat/kvb", b.String())
}

func TestFeeRateText(t *testing.T) {
	t.Parallel()

	rate := NewSatPerKVByte(1, 3)
	text, err := rate.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "333.333", string(text))

	var parsed SatPerKVByte
	require.NoError(t, parsed.UnmarshalText([]byte("12.5")))
	require.True(t, parsed.Equal(NewSatPerKVByte(25, 2000)))

	require.Error(t, parsed.UnmarshalText([]byte("-1")))
	require.Error(t, parsed.UnmarshalText([]byte("abc")))
}

func TestTxSizeConversion(t *testing.T) {
	t.Parallel()

	require.Equal(t, VByte(2), WeightUnit(5).ToVB())
	require.Equal(t, VByte(1), WeightUnit(4).ToVB())
	require.Equal(t, WeightUnit(400), VByte(100).ToWU())
	require.Equal(t, "100 vb", VByte(100).String())
	require.Equal(t, "5 wu", WeightUnit(5).String())
}
