// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package serialization

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/require"
)

func TestTimeSpan(t *testing.T) {
	t.Parallel()

	tests := []struct {
		d    time.Duration
		text string
	}{
		{0, "0d 0h 0m 0s"},
		{90 * time.Second, "0d 0h 1m 30s"},
		{26*time.Hour + 3*time.Minute + 4*time.Second, "1d 2h 3m 4s"},
		{-5 * time.Minute, "-0d 0h 5m 0s"},
	}
	for _, test := range tests {
		require.Equal(t, test.text, FormatTimeSpan(test.d))

		d, err := ParseTimeSpan(test.text)
		require.NoError(t, err)
		require.Equal(t, test.d, d)
	}

	_, err := ParseTimeSpan("01:00:00")
	require.Error(t, err)

	var span TimeSpan
	require.NoError(t, json.Unmarshal([]byte(`"0d 1h 0m 0s"`), &span))
	require.Equal(t, TimeSpan(time.Hour), span)
}

func TestFieldsCasing(t *testing.T) {
	t.Parallel()

	f, err := Decode([]byte(`{"roundId":1,"AliceId":2,"Gone":null}`))
	require.NoError(t, err)

	var v int
	require.NoError(t, f.Get("roundId", &v))
	require.Equal(t, 1, v)
	require.NoError(t, f.Get("aliceId", &v))
	require.Equal(t, 2, v)

	require.False(t, f.Has("gone"))
	require.ErrorIs(t, f.Get("missing", &v), ErrMissingProperty)
	require.NoError(t, f.GetOptional("missing", &v))

	_, err = Decode([]byte(`[1,2]`))
	require.Error(t, err)
}

func TestObjectOrder(t *testing.T) {
	t.Parallel()

	body, err := json.Marshal(NewObject().Set("b", 1).Set("a", "x"))
	require.NoError(t, err)
	require.Equal(t, `{"b":1,"a":"x"}`, string(body))
}

func TestTextEncodings(t *testing.T) {
	t.Parallel()

	op := OutPoint{Hash: chainhash.HashH([]byte("tx")), Index: 258}
	text, err := op.MarshalText()
	require.NoError(t, err)
	require.Len(t, text, 72)
	require.Equal(t, "02010000", string(text[64:]))

	var decodedOp OutPoint
	require.NoError(t, decodedOp.UnmarshalText(text))
	require.Equal(t, op, decodedOp)
	require.Error(t, decodedOp.UnmarshalText(text[:70]))

	h := Hash(chainhash.HashH([]byte("round")))
	text, err = h.MarshalText()
	require.NoError(t, err)
	require.Equal(t, chainhash.Hash(h).String(), string(text))

	var decodedHash Hash
	require.NoError(t, decodedHash.UnmarshalText(text))
	require.Equal(t, h, decodedHash)
	require.Error(t, decodedHash.UnmarshalText(text[:10]))

	w := Witness(wire.TxWitness{{1, 2, 3}, {}, {4}})
	text, err = w.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "0303010203000104", string(text))

	var decodedWitness Witness
	require.NoError(t, decodedWitness.UnmarshalText(text))
	require.Equal(t, w, decodedWitness)
	require.Error(t, decodedWitness.UnmarshalText([]byte("0301")))

	out := wire.TxOut{Value: 5000, PkScript: []byte{0x51, 0x20}}
	body, err := json.Marshal(EncodeTxOut(&out))
	require.NoError(t, err)
	require.Equal(t, `{"value":5000,"scriptPubKey":"5120"}`, string(body))

	decodedOut, err := DecodeTxOut([]byte(`{"Value":5000,"ScriptPubKey":"5120"}`))
	require.NoError(t, err)
	require.Equal(t, out, decodedOut)
}
