// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

// TestPrisonBans checks the length of bans for first and repeated
// offenses.
func TestPrisonBans(t *testing.T) {
	t.Parallel()

	now := time.Unix(1_700_000_000, 0)
	roundID := chainhash.Hash{7}

	testCases := []struct {
		name      string
		reasons   []Reason
		wantLong  bool
		wantUntil time.Duration
	}{
		{
			name:      "failed to confirm",
			reasons:   []Reason{ReasonFailedToConfirm},
			wantUntil: time.Hour,
		},
		{
			name:      "failed to sign",
			reasons:   []Reason{ReasonFailedToSign},
			wantUntil: time.Hour,
		},
		{
			name:      "double spent",
			reasons:   []Reason{ReasonDoubleSpent},
			wantLong:  true,
			wantUntil: 30 * 24 * time.Hour,
		},
		{
			name: "repeated offense",
			reasons: []Reason{
				ReasonFailedToConfirm, ReasonFailedToSign,
			},
			wantLong:  true,
			wantUntil: 30 * 24 * time.Hour,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			p := newTestPrison(t)
			op := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 3}

			for _, reason := range tc.reasons {
				_, err := p.Punish(op, reason, roundID, now)
				require.NoError(t, err)
			}

			until, long, banned, err := p.BannedUntil(op, now)
			require.NoError(t, err)
			require.True(t, banned)
			require.Equal(t, tc.wantLong, long)
			require.Equal(t, now.Add(tc.wantUntil), until)

			// Other outpoints are free.
			other := wire.OutPoint{Hash: chainhash.Hash{1}, Index: 4}
			_, _, banned, err = p.BannedUntil(other, now)
			require.NoError(t, err)
			require.False(t, banned)

			_, _, banned, err = p.BannedUntil(op,
				now.Add(tc.wantUntil))
			require.NoError(t, err)
			require.False(t, banned)
		})
	}
}

// TestPrisonReleaseEligible checks that released offenders are removed and
// a later offense is a first offense again.
func TestPrisonReleaseEligible(t *testing.T) {
	t.Parallel()

	p := newTestPrison(t)
	now := time.Unix(1_700_000_000, 0)

	short := wire.OutPoint{Hash: chainhash.Hash{1}}
	long := wire.OutPoint{Hash: chainhash.Hash{2}}

	_, err := p.Punish(short, ReasonFailedToSign, chainhash.Hash{}, now)
	require.NoError(t, err)
	o, err := p.Punish(long, ReasonDoubleSpent, chainhash.Hash{}, now)
	require.NoError(t, err)
	require.True(t, o.LongBan)

	offenders, err := p.Offenders()
	require.NoError(t, err)
	require.Len(t, offenders, 2)

	later := now.Add(2 * time.Hour)
	released, err := p.ReleaseEligible(later)
	require.NoError(t, err)
	require.Equal(t, 1, released)

	offenders, err = p.Offenders()
	require.NoError(t, err)
	require.Len(t, offenders, 1)
	require.Equal(t, long, offenders[0].Outpoint)
	require.Equal(t, ReasonDoubleSpent, offenders[0].Reason)
	require.True(t, offenders[0].Started.Equal(now))

	o, err = p.Punish(short, ReasonFailedToConfirm, chainhash.Hash{},
		later)
	require.NoError(t, err)
	require.False(t, o.LongBan)
}

// TestPrisonRelease checks that a pardoned input may register again.
func TestPrisonRelease(t *testing.T) {
	t.Parallel()

	p := newTestPrison(t)
	now := time.Unix(1_700_000_000, 0)
	op := wire.OutPoint{Hash: chainhash.Hash{3}, Index: 1}

	found, err := p.Release(op)
	require.NoError(t, err)
	require.False(t, found)

	_, err = p.Punish(op, ReasonDoubleSpent, chainhash.Hash{}, now)
	require.NoError(t, err)

	_, _, banned, err := p.BannedUntil(op, now)
	require.NoError(t, err)
	require.True(t, banned)

	found, err = p.Release(op)
	require.NoError(t, err)
	require.True(t, found)

	_, _, banned, err = p.BannedUntil(op, now)
	require.NoError(t, err)
	require.False(t, banned)
}
