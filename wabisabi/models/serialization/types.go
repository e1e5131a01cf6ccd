// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package serialization

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// TimeSpan is a duration encoded as "{d}d {h}h {m}m {s}s".
type TimeSpan time.Duration

// FormatTimeSpan formats d with second precision.
func FormatTimeSpan(d time.Duration) string {
	total := int64(d / time.Second)
	sign := ""
	if total < 0 {
		sign = "-"
		total = -total
	}

	days := total / 86400
	hours := total % 86400 / 3600
	minutes := total % 3600 / 60
	seconds := total % 60

	return fmt.Sprintf("%s%dd %dh %dm %ds", sign, days, hours, minutes,
		seconds)
}

// ParseTimeSpan parses the format produced by FormatTimeSpan.
func ParseTimeSpan(s string) (time.Duration, error) {
	neg := strings.HasPrefix(s, "-")
	var days, hours, minutes, seconds int64
	n, err := fmt.Sscanf(strings.TrimPrefix(s, "-"), "%dd %dh %dm %ds",
		&days, &hours, &minutes, &seconds)
	if err != nil || n != 4 {
		return 0, fmt.Errorf("invalid time span %q", s)
	}

	d := time.Duration(days)*24*time.Hour +
		time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second
	if neg {
		d = -d
	}

	return d, nil
}

// MarshalJSON implements json.Marshaler.
func (t TimeSpan) MarshalJSON() ([]byte, error) {
	return json.Marshal(FormatTimeSpan(time.Duration(t)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (t *TimeSpan) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	d, err := ParseTimeSpan(s)
	if err != nil {
		return err
	}
	*t = TimeSpan(d)

	return nil
}

// Scalar is a hex encoded scalar.
type Scalar secp256k1.ModNScalar

// MarshalText implements encoding.TextMarshaler.
func (s Scalar) MarshalText() ([]byte, error) {
	m := secp256k1.ModNScalar(s)
	return []byte(groups.ScalarHex(&m)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Scalar) UnmarshalText(text []byte) error {
	m, err := groups.ScalarFromHex(string(text))
	if err != nil {
		return err
	}
	*s = Scalar(m)

	return nil
}

// Scalars converts a scalar vector for encoding.
func Scalars(v groups.ScalarVector) []Scalar {
	out := make([]Scalar, len(v))
	for i := range v {
		out[i] = Scalar(v[i])
	}

	return out
}

// ScalarVector converts decoded scalars back to a vector.
func ScalarVector(v []Scalar) groups.ScalarVector {
	out := make(groups.ScalarVector, len(v))
	for i := range v {
		out[i] = secp256k1.ModNScalar(v[i])
	}

	return out
}

// HexBytes is a byte slice encoded as a hex string.
type HexBytes []byte

// MarshalText implements encoding.TextMarshaler.
func (h HexBytes) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(h)), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *HexBytes) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	*h = b

	return nil
}

// OutPoint is an outpoint encoded as the hex of its 36 byte serialization:
// the transaction hash followed by the little endian output index.
type OutPoint wire.OutPoint

// MarshalText implements encoding.TextMarshaler.
func (o OutPoint) MarshalText() ([]byte, error) {
	var buf [36]byte
	copy(buf[:32], o.Hash[:])
	buf[32] = byte(o.Index)
	buf[33] = byte(o.Index >> 8)
	buf[34] = byte(o.Index >> 16)
	buf[35] = byte(o.Index >> 24)

	return []byte(hex.EncodeToString(buf[:])), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (o *OutPoint) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	if len(b) != 36 {
		return fmt.Errorf("outpoint must be 36 bytes, got %d", len(b))
	}

	copy(o.Hash[:], b[:32])
	o.Index = uint32(b[32]) | uint32(b[33])<<8 | uint32(b[34])<<16 |
		uint32(b[35])<<24

	return nil
}

// Witness is a transaction witness encoded as the hex of its wire
// serialization.
type Witness wire.TxWitness

// MarshalText implements encoding.TextMarshaler.
func (w Witness) MarshalText() ([]byte, error) {
	var buf bytes.Buffer
	if err := wire.WriteVarInt(&buf, 0, uint64(len(w))); err != nil {
		return nil, err
	}
	for _, item := range w {
		if err := wire.WriteVarBytes(&buf, 0, item); err != nil {
			return nil, err
		}
	}

	return []byte(hex.EncodeToString(buf.Bytes())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (w *Witness) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}

	r := bytes.NewReader(b)
	n, err := wire.ReadVarInt(r, 0)
	if err != nil {
		return err
	}
	if n > uint64(len(b)) {
		return fmt.Errorf("witness with %d items", n)
	}

	witness := make(wire.TxWitness, n)
	for i := range witness {
		witness[i], err = wire.ReadVarBytes(r, 0, wire.MaxMessagePayload,
			"witness item")
		if err != nil {
			return err
		}
	}
	if r.Len() != 0 {
		return fmt.Errorf("%d trailing witness bytes", r.Len())
	}
	*w = Witness(witness)

	return nil
}

// Hash is a uint256 encoded as byte reversed hex, the way transaction ids
// are displayed.
type Hash chainhash.Hash

// MarshalText implements encoding.TextMarshaler.
func (h Hash) MarshalText() ([]byte, error) {
	return []byte(chainhash.Hash(h).String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (h *Hash) UnmarshalText(text []byte) error {
	parsed, err := chainhash.NewHashFromStr(string(text))
	if err != nil {
		return err
	}
	if len(text) != chainhash.MaxHashStringSize {
		return fmt.Errorf("hash must be %d hex characters",
			chainhash.MaxHashStringSize)
	}
	*h = Hash(*parsed)

	return nil
}

// EncodeTxOut describes a transaction output.
func EncodeTxOut(out *wire.TxOut) *Object {
	return NewObject().
		Set("value", out.Value).
		Set("scriptPubKey", HexBytes(out.PkScript))
}

// DecodeTxOut parses a transaction output.
func DecodeTxOut(data []byte) (wire.TxOut, error) {
	var (
		out    wire.TxOut
		script HexBytes
	)

	f, err := Decode(data)
	if err != nil {
		return out, err
	}
	if err := f.Get("value", &out.Value); err != nil {
		return out, err
	}
	if err := f.Get("scriptPubKey", &script); err != nil {
		return out, err
	}
	out.PkScript = script

	return out, nil
}
