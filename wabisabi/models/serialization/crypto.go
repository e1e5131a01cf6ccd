// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package serialization

import (
	"encoding/json"
	"fmt"

	"github.com/btcsuite/wabisabi/crypto/groups"
	zk "github.com/btcsuite/wabisabi/crypto/zeroknowledge"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// Each credential type has an Encode function returning its schema and a
// Decode function accepting the raw JSON produced by it.

// EncodeProof describes a proof.
func EncodeProof(p *zk.Proof) *Object {
	return NewObject().
		Set("publicNonces", p.PublicNonces).
		Set("responses", Scalars(p.Responses))
}

// DecodeProof parses a proof.
func DecodeProof(data []byte) (*zk.Proof, error) {
	f, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var (
		nonces    groups.GroupElementVector
		responses []Scalar
	)
	if err := f.Get("publicNonces", &nonces); err != nil {
		return nil, err
	}
	if err := f.Get("responses", &responses); err != nil {
		return nil, err
	}

	return &zk.Proof{
		PublicNonces: nonces,
		Responses:    ScalarVector(responses),
	}, nil
}

func encodeProofs(proofs []*zk.Proof) []*Object {
	out := make([]*Object, len(proofs))
	for i, p := range proofs {
		out[i] = EncodeProof(p)
	}

	return out
}

// DecodeList decodes the list property name element by element.
func DecodeList[T any](f Fields, name string,
	decode func([]byte) (T, error)) ([]T, error) {

	var raws []json.RawMessage
	if err := f.Get(name, &raws); err != nil {
		return nil, err
	}

	out := make([]T, len(raws))
	for i, raw := range raws {
		v, err := decode(raw)
		if err != nil {
			return nil, fmt.Errorf("%s[%d]: %w", name, i, err)
		}
		out[i] = v
	}

	return out, nil
}

// EncodeMAC describes a MAC.
func EncodeMAC(m *wabisabi.MAC) *Object {
	return NewObject().
		Set("t", Scalar(m.T)).
		Set("v", m.V)
}

// DecodeMAC parses a MAC.
func DecodeMAC(data []byte) (wabisabi.MAC, error) {
	f, err := Decode(data)
	if err != nil {
		return wabisabi.MAC{}, err
	}

	var (
		t Scalar
		v groups.GroupElement
	)
	if err := f.Get("t", &t); err != nil {
		return wabisabi.MAC{}, err
	}
	if err := f.Get("v", &v); err != nil {
		return wabisabi.MAC{}, err
	}

	return wabisabi.MAC{T: secp256k1.ModNScalar(t), V: v}, nil
}

// EncodeIssuanceRequest describes an issuance request.
func EncodeIssuanceRequest(r *wabisabi.IssuanceRequest) *Object {
	commitments := r.BitCommitments
	if commitments == nil {
		commitments = groups.GroupElementVector{}
	}

	return NewObject().
		Set("ma", r.Ma).
		Set("bitCommitments", commitments)
}

// DecodeIssuanceRequest parses an issuance request.
func DecodeIssuanceRequest(data []byte) (wabisabi.IssuanceRequest, error) {
	var r wabisabi.IssuanceRequest

	f, err := Decode(data)
	if err != nil {
		return r, err
	}
	if err := f.Get("ma", &r.Ma); err != nil {
		return r, err
	}
	if err := f.Get("bitCommitments", &r.BitCommitments); err != nil {
		return r, err
	}

	return r, nil
}

// EncodeCredentialPresentation describes a credential presentation.
func EncodeCredentialPresentation(p *wabisabi.CredentialPresentation) *Object {
	return NewObject().
		Set("ca", p.Ca).
		Set("cx0", p.Cx0).
		Set("cx1", p.Cx1).
		Set("cV", p.CV).
		Set("s", p.S)
}

// DecodeCredentialPresentation parses a credential presentation.
func DecodeCredentialPresentation(
	data []byte) (wabisabi.CredentialPresentation, error) {

	var p wabisabi.CredentialPresentation

	f, err := Decode(data)
	if err != nil {
		return p, err
	}

	fields := []struct {
		name string
		dst  *groups.GroupElement
	}{
		{"ca", &p.Ca}, {"cx0", &p.Cx0}, {"cx1", &p.Cx1},
		{"cV", &p.CV}, {"s", &p.S},
	}
	for _, field := range fields {
		if err := f.Get(field.name, field.dst); err != nil {
			return p, err
		}
	}

	return p, nil
}

// EncodeCredentialsRequest describes a credentials request.
func EncodeCredentialsRequest(r *wabisabi.CredentialsRequest) *Object {
	presented := make([]*Object, len(r.Presented))
	for i := range r.Presented {
		presented[i] = EncodeCredentialPresentation(&r.Presented[i])
	}
	requested := make([]*Object, len(r.Requested))
	for i := range r.Requested {
		requested[i] = EncodeIssuanceRequest(&r.Requested[i])
	}

	return NewObject().
		Set("delta", r.Delta).
		Set("presented", presented).
		Set("requested", requested).
		Set("proofs", encodeProofs(r.Proofs))
}

// DecodeCredentialsRequest parses a credentials request.
func DecodeCredentialsRequest(
	data []byte) (*wabisabi.CredentialsRequest, error) {

	f, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var r wabisabi.CredentialsRequest
	if err := f.Get("delta", &r.Delta); err != nil {
		return nil, err
	}
	r.Presented, err = DecodeList(f, "presented",
		DecodeCredentialPresentation)
	if err != nil {
		return nil, err
	}
	r.Requested, err = DecodeList(f, "requested", DecodeIssuanceRequest)
	if err != nil {
		return nil, err
	}
	r.Proofs, err = DecodeList(f, "proofs", DecodeProof)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// EncodeCredentialsResponse describes a credentials response.
func EncodeCredentialsResponse(r *wabisabi.CredentialsResponse) *Object {
	macs := make([]*Object, len(r.IssuedCredentials))
	for i := range r.IssuedCredentials {
		macs[i] = EncodeMAC(&r.IssuedCredentials[i])
	}

	return NewObject().
		Set("issuedCredentials", macs).
		Set("proofs", encodeProofs(r.Proofs))
}

// DecodeCredentialsResponse parses a credentials response.
func DecodeCredentialsResponse(
	data []byte) (*wabisabi.CredentialsResponse, error) {

	f, err := Decode(data)
	if err != nil {
		return nil, err
	}

	var r wabisabi.CredentialsResponse
	r.IssuedCredentials, err = DecodeList(f, "issuedCredentials", DecodeMAC)
	if err != nil {
		return nil, err
	}
	r.Proofs, err = DecodeList(f, "proofs", DecodeProof)
	if err != nil {
		return nil, err
	}

	return &r, nil
}

// EncodeIssuerParameters describes credential issuer parameters.
func EncodeIssuerParameters(p *wabisabi.CredentialIssuerParameters) *Object {
	return NewObject().
		Set("cw", p.Cw).
		Set("i", p.I)
}

// DecodeIssuerParameters parses credential issuer parameters.
func DecodeIssuerParameters(
	data []byte) (wabisabi.CredentialIssuerParameters, error) {

	var p wabisabi.CredentialIssuerParameters

	f, err := Decode(data)
	if err != nil {
		return p, err
	}
	if err := f.Get("cw", &p.Cw); err != nil {
		return p, err
	}
	if err := f.Get("i", &p.I); err != nil {
		return p, err
	}

	return p, nil
}
