// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi"
	s "github.com/btcsuite/wabisabi/wabisabi/models/serialization"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// ProtocolErrorType is the type of error bodies carrying a protocol error.
const ProtocolErrorType = "ProtocolError"

func getHash(f s.Fields, name string) (chainhash.Hash, error) {
	var h s.Hash
	err := f.Get(name, &h)

	return chainhash.Hash(h), err
}

func getCredentialsRequest(f s.Fields,
	name string) (*wabisabi.CredentialsRequest, error) {

	raw, err := f.Raw(name)
	if err != nil {
		return nil, err
	}
	r, err := s.DecodeCredentialsRequest(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return r, nil
}

func getCredentialsResponse(f s.Fields,
	name string) (*wabisabi.CredentialsResponse, error) {

	raw, err := f.Raw(name)
	if err != nil {
		return nil, err
	}
	r, err := s.DecodeCredentialsResponse(raw)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	return r, nil
}

// getOptionalCredentialsResponse returns nil if name is absent or null.
func getOptionalCredentialsResponse(f s.Fields,
	name string) (*wabisabi.CredentialsResponse, error) {

	if !f.Has(name) {
		return nil, nil
	}

	return getCredentialsResponse(f, name)
}

func encodeRequest(r *wabisabi.CredentialsRequest) any {
	if r == nil {
		return nil
	}
	return s.EncodeCredentialsRequest(r)
}

func encodeResponse(r *wabisabi.CredentialsResponse) any {
	if r == nil {
		return nil
	}
	return s.EncodeCredentialsResponse(r)
}

// MarshalText implements encoding.TextMarshaler.
func (p OwnershipProof) MarshalText() ([]byte, error) {
	return []byte(hex.EncodeToString(p.Bytes())), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *OwnershipProof) UnmarshalText(text []byte) error {
	b, err := hex.DecodeString(string(text))
	if err != nil {
		return err
	}
	parsed, err := ParseOwnershipProof(b)
	if err != nil {
		return err
	}
	*p = *parsed

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *InputRegistrationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(r.RoundID)).
		Set("input", s.OutPoint(r.Input)).
		Set("ownershipProof", r.OwnershipProof).
		Set("zeroAmountCredentialRequests",
			encodeRequest(r.ZeroAmountCredentialRequests)).
		Set("zeroVsizeCredentialRequests",
			encodeRequest(r.ZeroVsizeCredentialRequests)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *InputRegistrationRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	var (
		input s.OutPoint
		proof OwnershipProof
	)
	if r.RoundID, err = getHash(f, "roundId"); err != nil {
		return err
	}
	if err := f.Get("input", &input); err != nil {
		return err
	}
	if err := f.Get("ownershipProof", &proof); err != nil {
		return err
	}
	r.Input = wire.OutPoint(input)
	r.OwnershipProof = &proof

	r.ZeroAmountCredentialRequests, err = getCredentialsRequest(f,
		"zeroAmountCredentialRequests")
	if err != nil {
		return err
	}
	r.ZeroVsizeCredentialRequests, err = getCredentialsRequest(f,
		"zeroVsizeCredentialRequests")

	return err
}

// MarshalJSON implements json.Marshaler.
func (r *InputRegistrationResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("aliceId", r.AliceID).
		Set("amountCredentials", encodeResponse(r.AmountCredentials)).
		Set("vsizeCredentials", encodeResponse(r.VsizeCredentials)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *InputRegistrationResponse) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}
	if err := f.Get("aliceId", &r.AliceID); err != nil {
		return err
	}
	r.AmountCredentials, err = getCredentialsResponse(f,
		"amountCredentials")
	if err != nil {
		return err
	}
	r.VsizeCredentials, err = getCredentialsResponse(f, "vsizeCredentials")

	return err
}

// MarshalJSON implements json.Marshaler.
func (r *ConnectionConfirmationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(r.RoundID)).
		Set("aliceId", r.AliceID).
		Set("zeroAmountCredentialRequests",
			encodeRequest(r.ZeroAmountCredentialRequests)).
		Set("realAmountCredentialRequests",
			encodeRequest(r.RealAmountCredentialRequests)).
		Set("zeroVsizeCredentialRequests",
			encodeRequest(r.ZeroVsizeCredentialRequests)).
		Set("realVsizeCredentialRequests",
			encodeRequest(r.RealVsizeCredentialRequests)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ConnectionConfirmationRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}
	if r.RoundID, err = getHash(f, "roundId"); err != nil {
		return err
	}
	if err := f.Get("aliceId", &r.AliceID); err != nil {
		return err
	}

	fields := []struct {
		name string
		dst  **wabisabi.CredentialsRequest
	}{
		{"zeroAmountCredentialRequests", &r.ZeroAmountCredentialRequests},
		{"realAmountCredentialRequests", &r.RealAmountCredentialRequests},
		{"zeroVsizeCredentialRequests", &r.ZeroVsizeCredentialRequests},
		{"realVsizeCredentialRequests", &r.RealVsizeCredentialRequests},
	}
	for _, field := range fields {
		if *field.dst, err = getCredentialsRequest(f, field.name); err != nil {
			return err
		}
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *ConnectionConfirmationResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("zeroAmountCredentials", encodeResponse(r.ZeroAmountCredentials)).
		Set("zeroVsizeCredentials", encodeResponse(r.ZeroVsizeCredentials)).
		Set("realAmountCredentials", encodeResponse(r.RealAmountCredentials)).
		Set("realVsizeCredentials", encodeResponse(r.RealVsizeCredentials)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ConnectionConfirmationResponse) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	r.ZeroAmountCredentials, err = getCredentialsResponse(f,
		"zeroAmountCredentials")
	if err != nil {
		return err
	}
	r.ZeroVsizeCredentials, err = getCredentialsResponse(f,
		"zeroVsizeCredentials")
	if err != nil {
		return err
	}
	r.RealAmountCredentials, err = getOptionalCredentialsResponse(f,
		"realAmountCredentials")
	if err != nil {
		return err
	}
	r.RealVsizeCredentials, err = getOptionalCredentialsResponse(f,
		"realVsizeCredentials")

	return err
}

// encodeAliceRequest encodes the requests only identifying a round and an
// Alice.
func encodeAliceRequest(roundID chainhash.Hash, aliceID uuid.UUID) ([]byte,
	error) {

	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(roundID)).
		Set("aliceId", aliceID))
}

func decodeAliceRequest(data []byte) (chainhash.Hash, uuid.UUID, error) {
	var aliceID uuid.UUID

	f, err := s.Decode(data)
	if err != nil {
		return chainhash.Hash{}, aliceID, err
	}
	roundID, err := getHash(f, "roundId")
	if err != nil {
		return roundID, aliceID, err
	}
	err = f.Get("aliceId", &aliceID)

	return roundID, aliceID, err
}

// MarshalJSON implements json.Marshaler.
func (r *InputsRemovalRequest) MarshalJSON() ([]byte, error) {
	return encodeAliceRequest(r.RoundID, r.AliceID)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *InputsRemovalRequest) UnmarshalJSON(data []byte) error {
	var err error
	r.RoundID, r.AliceID, err = decodeAliceRequest(data)
	return err
}

// MarshalJSON implements json.Marshaler.
func (r *ReadyToSignRequestRequest) MarshalJSON() ([]byte, error) {
	return encodeAliceRequest(r.RoundID, r.AliceID)
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ReadyToSignRequestRequest) UnmarshalJSON(data []byte) error {
	var err error
	r.RoundID, r.AliceID, err = decodeAliceRequest(data)
	return err
}

// MarshalJSON implements json.Marshaler.
func (r *OutputRegistrationRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(r.RoundID)).
		Set("script", s.HexBytes(r.Script)).
		Set("amountCredentialRequests",
			encodeRequest(r.AmountCredentialRequests)).
		Set("vsizeCredentialRequests",
			encodeRequest(r.VsizeCredentialRequests)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *OutputRegistrationRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}
	if r.RoundID, err = getHash(f, "roundId"); err != nil {
		return err
	}

	var script s.HexBytes
	if err := f.Get("script", &script); err != nil {
		return err
	}
	r.Script = script

	r.AmountCredentialRequests, err = getCredentialsRequest(f,
		"amountCredentialRequests")
	if err != nil {
		return err
	}
	r.VsizeCredentialRequests, err = getCredentialsRequest(f,
		"vsizeCredentialRequests")

	return err
}

// MarshalJSON implements json.Marshaler.
func (r *ReissueCredentialRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(r.RoundID)).
		Set("realAmountCredentialRequests",
			encodeRequest(r.RealAmountCredentialRequests)).
		Set("realVsizeCredentialRequests",
			encodeRequest(r.RealVsizeCredentialRequests)).
		Set("zeroAmountCredentialRequests",
			encodeRequest(r.ZeroAmountCredentialRequests)).
		Set("zeroVsizeCredentialsRequests",
			encodeRequest(r.ZeroVsizeCredentialRequests)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ReissueCredentialRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}
	if r.RoundID, err = getHash(f, "roundId"); err != nil {
		return err
	}

	fields := []struct {
		name string
		dst  **wabisabi.CredentialsRequest
	}{
		{"realAmountCredentialRequests", &r.RealAmountCredentialRequests},
		{"realVsizeCredentialRequests", &r.RealVsizeCredentialRequests},
		{"zeroAmountCredentialRequests", &r.ZeroAmountCredentialRequests},
		{"zeroVsizeCredentialsRequests", &r.ZeroVsizeCredentialRequests},
	}
	for _, field := range fields {
		if *field.dst, err = getCredentialsRequest(f, field.name); err != nil {
			return err
		}
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *ReissueCredentialResponse) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("realAmountCredentials", encodeResponse(r.RealAmountCredentials)).
		Set("realVsizeCredentials", encodeResponse(r.RealVsizeCredentials)).
		Set("zeroAmountCredentials", encodeResponse(r.ZeroAmountCredentials)).
		Set("zeroVsizeCredentials", encodeResponse(r.ZeroVsizeCredentials)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *ReissueCredentialResponse) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	fields := []struct {
		name string
		dst  **wabisabi.CredentialsResponse
	}{
		{"realAmountCredentials", &r.RealAmountCredentials},
		{"realVsizeCredentials", &r.RealVsizeCredentials},
		{"zeroAmountCredentials", &r.ZeroAmountCredentials},
		{"zeroVsizeCredentials", &r.ZeroVsizeCredentials},
	}
	for _, field := range fields {
		if *field.dst, err = getCredentialsResponse(f, field.name); err != nil {
			return err
		}
	}

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *TransactionSignaturesRequest) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("roundId", s.Hash(r.RoundID)).
		Set("inputIndex", r.InputIndex).
		Set("witness", s.Witness(r.Witness)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *TransactionSignaturesRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}
	if r.RoundID, err = getHash(f, "roundId"); err != nil {
		return err
	}
	if err := f.Get("inputIndex", &r.InputIndex); err != nil {
		return err
	}

	var witness s.Witness
	if err := f.Get("witness", &witness); err != nil {
		return err
	}
	r.Witness = wire.TxWitness(witness)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (r *RoundStateRequest) MarshalJSON() ([]byte, error) {
	checkpoints := make([]*s.Object, len(r.RoundCheckpoints))
	for i, c := range r.RoundCheckpoints {
		checkpoints[i] = s.NewObject().
			Set("roundId", s.Hash(c.RoundID)).
			Set("stateId", c.StateID)
	}

	return json.Marshal(s.NewObject().
		Set("roundCheckpoints", checkpoints))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoundStateRequest) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	r.RoundCheckpoints, err = s.DecodeList(f, "roundCheckpoints",
		func(raw []byte) (RoundStateCheckpoint, error) {
			var c RoundStateCheckpoint

			f, err := s.Decode(raw)
			if err != nil {
				return c, err
			}
			if c.RoundID, err = getHash(f, "roundId"); err != nil {
				return c, err
			}
			err = f.Get("stateId", &c.StateID)

			return c, err
		})

	return err
}

// MarshalJSON implements json.Marshaler.
func (r *RoundStateResponse) MarshalJSON() ([]byte, error) {
	states := r.RoundStates
	if states == nil {
		states = []*RoundState{}
	}

	return json.Marshal(s.NewObject().Set("roundStates", states))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *RoundStateResponse) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	r.RoundStates, err = s.DecodeList(f, "roundStates",
		func(raw []byte) (*RoundState, error) {
			var rs RoundState
			err := rs.UnmarshalJSON(raw)
			return &rs, err
		})

	return err
}

// MarshalJSON implements json.Marshaler.
func (r MoneyRange) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("min", int64(r.Min)).
		Set("max", int64(r.Max)))
}

// UnmarshalJSON implements json.Unmarshaler.
func (r *MoneyRange) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	var lo, hi int64
	if err := f.Get("min", &lo); err != nil {
		return err
	}
	if err := f.Get("max", &hi); err != nil {
		return err
	}
	r.Min, r.Max = btcutil.Amount(lo), btcutil.Amount(hi)

	return nil
}

// MarshalJSON implements json.Marshaler.
func (p *RoundParameters) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.NewObject().
		Set("network", p.Network.Name).
		Set("miningFeeRate", p.MiningFeeRate).
		Set("minRelayTxFee", p.MinRelayTxFee).
		Set("maxInputCountByRound", p.MaxInputCountByRound).
		Set("minInputCountByRound", p.MinInputCountByRound).
		Set("allowedInputAmounts", p.AllowedInputAmounts).
		Set("allowedOutputAmounts", p.AllowedOutputAmounts).
		Set("allowedInputTypes", p.AllowedInputTypes).
		Set("allowedOutputTypes", p.AllowedOutputTypes).
		Set("standardInputRegistrationTimeout",
			s.TimeSpan(p.StandardInputRegistrationTimeout)).
		Set("connectionConfirmationTimeout",
			s.TimeSpan(p.ConnectionConfirmationTimeout)).
		Set("outputRegistrationTimeout",
			s.TimeSpan(p.OutputRegistrationTimeout)).
		Set("transactionSigningTimeout",
			s.TimeSpan(p.TransactionSigningTimeout)).
		Set("blameInputRegistrationTimeout",
			s.TimeSpan(p.BlameInputRegistrationTimeout)).
		Set("maxVsizeAllocationPerAlice", p.MaxVsizeAllocationPerAlice).
		Set("maxSuggestedAmount", int64(p.MaxSuggestedAmount)).
		Set("maxTransactionSize", p.MaxTransactionSize).
		Set("coordinationIdentifier", p.CoordinationIdentifier))
}

// UnmarshalJSON implements json.Unmarshaler.
func (p *RoundParameters) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	var network string
	if err := f.Get("network", &network); err != nil {
		return err
	}
	if p.Network, err = netparams.ByName(network); err != nil {
		return err
	}

	var (
		timeouts    [5]s.TimeSpan
		maxSuggest  int64
		miningFee   unit.SatPerKVByte
		minRelayFee unit.SatPerKVByte
	)
	fields := []struct {
		name string
		dst  any
	}{
		{"miningFeeRate", &miningFee},
		{"minRelayTxFee", &minRelayFee},
		{"maxInputCountByRound", &p.MaxInputCountByRound},
		{"minInputCountByRound", &p.MinInputCountByRound},
		{"allowedInputAmounts", &p.AllowedInputAmounts},
		{"allowedOutputAmounts", &p.AllowedOutputAmounts},
		{"allowedInputTypes", &p.AllowedInputTypes},
		{"allowedOutputTypes", &p.AllowedOutputTypes},
		{"standardInputRegistrationTimeout", &timeouts[0]},
		{"connectionConfirmationTimeout", &timeouts[1]},
		{"outputRegistrationTimeout", &timeouts[2]},
		{"transactionSigningTimeout", &timeouts[3]},
		{"blameInputRegistrationTimeout", &timeouts[4]},
		{"maxVsizeAllocationPerAlice", &p.MaxVsizeAllocationPerAlice},
		{"maxSuggestedAmount", &maxSuggest},
		{"maxTransactionSize", &p.MaxTransactionSize},
		{"coordinationIdentifier", &p.CoordinationIdentifier},
	}
	for _, field := range fields {
		if err := f.Get(field.name, field.dst); err != nil {
			return err
		}
	}

	p.MiningFeeRate = miningFee
	p.MinRelayTxFee = minRelayFee
	p.StandardInputRegistrationTimeout = time.Duration(timeouts[0])
	p.ConnectionConfirmationTimeout = time.Duration(timeouts[1])
	p.OutputRegistrationTimeout = time.Duration(timeouts[2])
	p.TransactionSigningTimeout = time.Duration(timeouts[3])
	p.BlameInputRegistrationTimeout = time.Duration(timeouts[4])
	p.MaxSuggestedAmount = btcutil.Amount(maxSuggest)

	return nil
}

// The names of the event types on the wire.
const (
	roundCreatedType = "RoundCreated"
	inputAddedType   = "InputAdded"
	outputAddedType  = "OutputAdded"
)

func encodeEvent(e Event) (*s.Object, error) {
	switch e := e.(type) {
	case RoundCreated:
		return s.NewObject().
			Set("type", roundCreatedType).
			Set("roundParameters", e.Parameters), nil

	case InputAdded:
		coin := s.NewObject().
			Set("outpoint", s.OutPoint(e.Coin.Outpoint)).
			Set("txOut", s.EncodeTxOut(&e.Coin.TxOut))

		return s.NewObject().
			Set("type", inputAddedType).
			Set("coin", coin).
			Set("ownershipProof", e.OwnershipProof), nil

	case OutputAdded:
		return s.NewObject().
			Set("type", outputAddedType).
			Set("output", s.EncodeTxOut(&e.Output)), nil
	}

	return nil, fmt.Errorf("unknown event %T", e)
}

func decodeEvent(data []byte) (Event, error) {
	f, err := s.Decode(data)
	if err != nil {
		return nil, err
	}

	var typ string
	if err := f.Get("type", &typ); err != nil {
		return nil, err
	}

	switch typ {
	case roundCreatedType:
		var params RoundParameters
		if err := f.Get("roundParameters", &params); err != nil {
			return nil, err
		}
		return RoundCreated{Parameters: &params}, nil

	case inputAddedType:
		raw, err := f.Raw("coin")
		if err != nil {
			return nil, err
		}
		coinFields, err := s.Decode(raw)
		if err != nil {
			return nil, err
		}

		var (
			outpoint s.OutPoint
			proof    OwnershipProof
		)
		if err := coinFields.Get("outpoint", &outpoint); err != nil {
			return nil, err
		}
		rawOut, err := coinFields.Raw("txOut")
		if err != nil {
			return nil, err
		}
		txOut, err := s.DecodeTxOut(rawOut)
		if err != nil {
			return nil, err
		}
		if err := f.Get("ownershipProof", &proof); err != nil {
			return nil, err
		}

		return InputAdded{
			Coin: Coin{
				Outpoint: wire.OutPoint(outpoint),
				TxOut:    txOut,
			},
			OwnershipProof: &proof,
		}, nil

	case outputAddedType:
		raw, err := f.Raw("output")
		if err != nil {
			return nil, err
		}
		out, err := s.DecodeTxOut(raw)
		if err != nil {
			return nil, err
		}
		return OutputAdded{Output: out}, nil
	}

	return nil, fmt.Errorf("unknown event type %q", typ)
}

func encodeDelta(d *CoinjoinStateDelta) (*s.Object, error) {
	events := make([]*s.Object, len(d.Events))
	for i, e := range d.Events {
		var err error
		if events[i], err = encodeEvent(e); err != nil {
			return nil, err
		}
	}

	indices := make([]int, 0, len(d.Witnesses))
	for i := range d.Witnesses {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	witnesses := make([]*s.Object, len(indices))
	for j, i := range indices {
		witnesses[j] = s.NewObject().
			Set("inputIndex", i).
			Set("witness", s.Witness(d.Witnesses[i]))
	}

	typ := "ConstructionState"
	if d.Signing {
		typ = "SigningState"
	}

	return s.NewObject().
		Set("type", typ).
		Set("skip", d.Skip).
		Set("events", events).
		Set("witnesses", witnesses), nil
}

func decodeDelta(data []byte) (*CoinjoinStateDelta, error) {
	f, err := s.Decode(data)
	if err != nil {
		return nil, err
	}

	var (
		d   CoinjoinStateDelta
		typ string
	)
	if err := f.Get("type", &typ); err != nil {
		return nil, err
	}
	switch typ {
	case "ConstructionState":
	case "SigningState":
		d.Signing = true
	default:
		return nil, fmt.Errorf("unknown coinjoin state %q", typ)
	}

	if err := f.Get("skip", &d.Skip); err != nil {
		return nil, err
	}
	if d.Events, err = s.DecodeList(f, "events", decodeEvent); err != nil {
		return nil, err
	}

	type indexedWitness struct {
		index   int
		witness wire.TxWitness
	}
	witnesses, err := s.DecodeList(f, "witnesses",
		func(raw []byte) (indexedWitness, error) {
			var (
				iw indexedWitness
				w  s.Witness
			)
			f, err := s.Decode(raw)
			if err != nil {
				return iw, err
			}
			if err := f.Get("inputIndex", &iw.index); err != nil {
				return iw, err
			}
			err = f.Get("witness", &w)
			iw.witness = wire.TxWitness(w)

			return iw, err
		})
	if err != nil {
		return nil, err
	}
	if len(witnesses) > 0 {
		d.Witnesses = make(map[int]wire.TxWitness, len(witnesses))
		for _, iw := range witnesses {
			d.Witnesses[iw.index] = iw.witness
		}
	}

	return &d, nil
}

// MarshalJSON implements json.Marshaler. A complete state is sent as a
// delta skipping nothing.
func (r *RoundState) MarshalJSON() ([]byte, error) {
	delta := r.Delta
	if delta == nil {
		delta = r.WithCheckpoint(0).Delta
	}
	coinjoin, err := encodeDelta(delta)
	if err != nil {
		return nil, err
	}

	var blameOf any
	r.BlameOf.WhenSome(func(h chainhash.Hash) {
		blameOf = s.Hash(h)
	})

	return json.Marshal(s.NewObject().
		Set("id", s.Hash(r.ID)).
		Set("blameOf", blameOf).
		Set("amountCredentialIssuerParameters",
			s.EncodeIssuerParameters(&r.AmountCredentialIssuerParameters)).
		Set("vsizeCredentialIssuerParameters",
			s.EncodeIssuerParameters(&r.VsizeCredentialIssuerParameters)).
		Set("phase", r.Phase).
		Set("endRoundState", r.EndRoundState).
		Set("inputRegistrationStart", r.InputRegistrationStart).
		Set("inputRegistrationTimeout",
			s.TimeSpan(r.InputRegistrationTimeout)).
		Set("coinjoinState", coinjoin))
}

// UnmarshalJSON implements json.Unmarshaler. States whose delta skips no
// event are complete; others must be merged with the state known before.
func (r *RoundState) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	if r.ID, err = getHash(f, "id"); err != nil {
		return err
	}
	r.BlameOf = fn.None[chainhash.Hash]()
	if f.Has("blameOf") {
		blameOf, err := getHash(f, "blameOf")
		if err != nil {
			return err
		}
		r.BlameOf = fn.Some(blameOf)
	}

	for _, field := range []struct {
		name string
		dst  *wabisabi.CredentialIssuerParameters
	}{
		{"amountCredentialIssuerParameters",
			&r.AmountCredentialIssuerParameters},
		{"vsizeCredentialIssuerParameters",
			&r.VsizeCredentialIssuerParameters},
	} {
		raw, err := f.Raw(field.name)
		if err != nil {
			return err
		}
		if *field.dst, err = s.DecodeIssuerParameters(raw); err != nil {
			return fmt.Errorf("%s: %w", field.name, err)
		}
	}

	var timeout s.TimeSpan
	if err := f.Get("phase", &r.Phase); err != nil {
		return err
	}
	if err := f.Get("endRoundState", &r.EndRoundState); err != nil {
		return err
	}
	if err := f.Get("inputRegistrationStart",
		&r.InputRegistrationStart); err != nil {

		return err
	}
	if err := f.Get("inputRegistrationTimeout", &timeout); err != nil {
		return err
	}
	r.InputRegistrationTimeout = time.Duration(timeout)

	raw, err := f.Raw("coinjoinState")
	if err != nil {
		return err
	}
	if r.Delta, err = decodeDelta(raw); err != nil {
		return fmt.Errorf("coinjoinState: %w", err)
	}
	r.CoinjoinState = nil

	if r.Delta.Skip == 0 {
		merged, err := r.Merge(nil)
		if err != nil {
			return err
		}
		*r = *merged
	}

	return nil
}

// The names of the exception data types on the wire.
const (
	emptyExceptionDataType       = "EmptyExceptionData"
	inputBannedExceptionDataType = "InputBannedExceptionData"
	wrongPhaseExceptionDataType  = "WrongPhaseExceptionData"
)

func encodeExceptionData(d ExceptionData) *s.Object {
	switch d := d.(type) {
	case InputBannedExceptionData:
		return s.NewObject().
			Set("type", inputBannedExceptionDataType).
			Set("bannedUntil", d.BannedUntil)

	case WrongPhaseExceptionData:
		return s.NewObject().
			Set("type", wrongPhaseExceptionDataType).
			Set("currentPhase", d.CurrentPhase)
	}

	return s.NewObject().Set("type", emptyExceptionDataType)
}

func decodeExceptionData(data []byte) (ExceptionData, error) {
	f, err := s.Decode(data)
	if err != nil {
		return nil, err
	}

	var typ string
	if err := f.Get("type", &typ); err != nil {
		return nil, err
	}

	switch typ {
	case inputBannedExceptionDataType:
		var d InputBannedExceptionData
		err := f.Get("bannedUntil", &d.BannedUntil)
		return d, err

	case wrongPhaseExceptionDataType:
		var d WrongPhaseExceptionData
		err := f.Get("currentPhase", &d.CurrentPhase)
		return d, err
	}

	return EmptyExceptionData{}, nil
}

// MarshalJSON encodes the error as the body of a failed request.
func (e *ProtocolError) MarshalJSON() ([]byte, error) {
	data := e.ExceptionData
	if data == nil {
		data = EmptyExceptionData{}
	}

	return json.Marshal(s.NewObject().
		Set("type", ProtocolErrorType).
		Set("errorCode", e.ErrorCode.String()).
		Set("description", e.Error()).
		Set("exceptionData", encodeExceptionData(data)))
}

// UnmarshalJSON decodes the body of a failed request.
func (e *ProtocolError) UnmarshalJSON(data []byte) error {
	f, err := s.Decode(data)
	if err != nil {
		return err
	}

	var typ, code string
	if err := f.Get("type", &typ); err != nil {
		return err
	}
	if typ != ProtocolErrorType {
		return fmt.Errorf("error of type %q is not a protocol error", typ)
	}
	if err := f.Get("errorCode", &code); err != nil {
		return err
	}
	if e.ErrorCode, err = ParseErrorCode(code); err != nil {
		return err
	}
	if err := f.GetOptional("description", &e.Description); err != nil {
		return err
	}

	e.ExceptionData = EmptyExceptionData{}
	if f.Has("exceptionData") {
		raw, err := f.Raw("exceptionData")
		if err != nil {
			return err
		}
		if e.ExceptionData, err = decodeExceptionData(raw); err != nil {
			return err
		}
	}

	return nil
}
