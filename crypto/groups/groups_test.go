// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package groups

import (
	"bytes"
	"testing"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/stretchr/testify/require"
)

// TestGroupArithmetic checks the basic group laws the proof system relies
// on.
func TestGroupArithmetic(t *testing.T) {
	t.Parallel()

	two := ScalarFromUint64(2)
	three := ScalarFromUint64(3)
	five := Add(&two, &three)

	g2 := Gg.Mul(&two)
	g3 := Gg.Mul(&three)
	require.True(t, g2.Add(g3).Equal(Gg.Mul(&five)))
	require.True(t, g3.Sub(g2).Equal(Gg))
	require.True(t, Gg.Sub(Gg).IsInfinity())
	require.True(t, Gg.Add(Gg.Negate()).IsInfinity())
	require.True(t, Infinity().Add(Gh).Equal(Gh))

	var zero secp256k1.ModNScalar
	require.True(t, Gh.Mul(&zero).IsInfinity())
	require.True(t, Infinity().Mul(&five).IsInfinity())
}

// TestGeneratorsDistinct makes sure none of the derived generators collide.
func TestGeneratorsDistinct(t *testing.T) {
	t.Parallel()

	gens := GroupElementVector{G, Gw, Gwp, Gx0, Gx1, GV, Gg, Gh, Ga, Gs}
	for i := range gens {
		require.False(t, gens[i].IsInfinity())
		for j := i + 1; j < len(gens); j++ {
			require.Falsef(t, gens[i].Equal(gens[j]),
				"generators %d and %d collide", i, j)
		}
	}

	// Derivation is deterministic and picks the even y coordinate.
	require.True(t, FromText("WabiSabi_Gg").Equal(Gg))
	require.Equal(t, byte(0x02), Gg.Bytes()[0])
}

// TestElementEncoding round trips finite points and the point at infinity.
func TestElementEncoding(t *testing.T) {
	t.Parallel()

	seven := ScalarFromUint64(7)
	for _, e := range []GroupElement{G, Gs.Mul(&seven), Infinity()} {
		b := e.Bytes()
		require.Len(t, b, ElementSize)

		parsed, err := FromBytes(b)
		require.NoError(t, err)
		require.True(t, parsed.Equal(e))
	}

	require.Equal(t, make([]byte, ElementSize), Infinity().Bytes())

	_, err := FromBytes(make([]byte, 32))
	require.ErrorIs(t, err, ErrInvalidPoint)

	bad := bytes.Repeat([]byte{0xff}, ElementSize)
	bad[0] = 0x02
	_, err = FromBytes(bad)
	require.ErrorIs(t, err, ErrInvalidPoint)
}

// TestScalarEncoding checks that overflowing scalars are rejected rather
// than reduced.
func TestScalarEncoding(t *testing.T) {
	t.Parallel()

	// The group order itself overflows.
	_, err := ScalarFromHex("fffffffffffffffffffffffffffffffe" +
		"baaedce6af48a03bbfd25e8cd0364141")
	require.ErrorIs(t, err, ErrScalarOverflow)

	s, err := ScalarFromHex("fffffffffffffffffffffffffffffffe" +
		"baaedce6af48a03bbfd25e8cd0364140")
	require.NoError(t, err)

	// n-1 is -1.
	one := ScalarFromUint64(1)
	sum := Add(&s, &one)
	require.True(t, sum.IsZero())

	_, err = ScalarFromBytes(make([]byte, 31))
	require.ErrorIs(t, err, ErrInvalidScalarLength)

	minusFive := ScalarFromInt64(-5)
	five := ScalarFromUint64(5)
	sum = Add(&minusFive, &five)
	require.True(t, sum.IsZero())

	p := PowerOfTwo(10)
	k := ScalarFromUint64(1024)
	require.True(t, p.Equals(&k))
}

func TestMultiplyAdd(t *testing.T) {
	t.Parallel()

	a, b := ScalarFromUint64(11), ScalarFromUint64(13)
	got := GroupElementVector{Gg, Gh}.MultiplyAdd(ScalarVector{a, b})
	require.True(t, got.Equal(Gg.Mul(&a).Add(Gh.Mul(&b))))

	require.Panics(t, func() {
		GroupElementVector{Gg}.MultiplyAdd(ScalarVector{a, b})
	})
}
