// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package wabisabi

import (
	"testing"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/stretchr/testify/require"
)

// testMaxAmount keeps range proofs small so the tests stay fast.
const testMaxAmount = 1000

type harness struct {
	issuer *CredentialIssuer
	client *Client
}

func newHarness(t *testing.T, seed uint64) *harness {
	t.Helper()

	rnd := randomness.NewInsecureRandomFromSeed(seed)
	sk := NewCredentialIssuerSecretKey(rnd)
	issuer := NewCredentialIssuer(sk, testMaxAmount, rnd)
	client := NewClient(issuer.Parameters(), testMaxAmount, rnd)

	return &harness{issuer: issuer, client: client}
}

// zeroCredentials runs a null request.
func (h *harness) zeroCredentials(t *testing.T) []*Credential {
	t.Helper()

	req, validation, err := h.client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	require.True(t, req.IsNullRequest())

	resp, err := h.issuer.HandleRequest(req)
	require.NoError(t, err)

	creds, err := h.client.HandleResponse(resp, validation)
	require.NoError(t, err)
	require.Len(t, creds, NumberOfCredentials)

	return creds
}

// exchange presents creds and requests amounts.
func (h *harness) exchange(t *testing.T, amounts []int64,
	creds []*Credential) []*Credential {

	t.Helper()

	req, validation, err := h.client.CreateRequest(amounts, creds)
	require.NoError(t, err)

	resp, err := h.issuer.HandleRequest(req)
	require.NoError(t, err)

	issued, err := h.client.HandleResponse(resp, validation)
	require.NoError(t, err)

	return issued
}

func TestMAC(t *testing.T) {
	t.Parallel()

	rnd := randomness.NewInsecureRandomFromSeed(10)
	sk := NewCredentialIssuerSecretKey(rnd)
	r := rnd.GetScalar()
	ma := pedersenCommitment(42, &r)
	tv := rnd.GetScalar()

	mac := ComputeMAC(sk, ma, &tv)
	require.True(t, mac.Verify(sk, ma))
	require.False(t, mac.Verify(sk, pedersenCommitment(43, &r)))

	other := NewCredentialIssuerSecretKey(rnd)
	require.False(t, mac.Verify(other, ma))
}

func TestSecretKeySerialization(t *testing.T) {
	t.Parallel()

	rnd := randomness.NewInsecureRandomFromSeed(11)
	sk := NewCredentialIssuerSecretKey(rnd)

	parsed, err := SecretKeyFromBytes(sk.Bytes())
	require.NoError(t, err)
	want := sk.ComputeCredentialIssuerParameters()
	got := parsed.ComputeCredentialIssuerParameters()
	require.True(t, want.Cw.Equal(got.Cw))
	require.True(t, want.I.Equal(got.I))

	parsed.Zero()
	require.True(t, parsed.W.IsZero())
	require.True(t, parsed.Ya.IsZero())

	_, err = SecretKeyFromBytes(make([]byte, 10))
	require.Error(t, err)
}

// TestCredentialLifecycle registers value, reissues it and spends it while
// tracking the issuer's balance.
func TestCredentialLifecycle(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 1)

	zeros := h.zeroCredentials(t)
	for _, c := range zeros {
		require.Zero(t, c.Value)
	}
	require.Zero(t, h.issuer.Balance())

	funded := h.exchange(t, []int64{100}, zeros)
	require.Equal(t, int64(100), funded[0].Value)
	require.Zero(t, funded[1].Value)
	require.Equal(t, int64(100), h.issuer.Balance())

	split := h.exchange(t, []int64{60, 40}, funded)
	require.Equal(t, int64(60), split[0].Value)
	require.Equal(t, int64(40), split[1].Value)
	require.Equal(t, int64(100), h.issuer.Balance())

	spent := h.exchange(t, nil, split)
	require.Zero(t, spent[0].Value+spent[1].Value)
	require.Zero(t, h.issuer.Balance())

	require.Len(t, h.issuer.Ledger(), 4)
}

// TestSerialNumberReuse makes sure a credential cannot be presented twice
// and that rejected requests leave no trace.
func TestSerialNumberReuse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 2)
	zeros := h.zeroCredentials(t)
	funded := h.exchange(t, []int64{10}, zeros)

	before := h.issuer.Balance()
	ledger := len(h.issuer.Ledger())

	req, _, err := h.client.CreateRequest([]int64{10}, zeros)
	require.NoError(t, err)
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err, ErrSerialNumberAlreadyUsed), err)

	// Presenting the same credential twice in one request.
	_, _, err = h.client.CreateRequest([]int64{20}, []*Credential{
		funded[0], funded[0],
	})
	require.True(t, IsErrorCode(err, ErrSerialNumberDuplicated), err)

	req, _, err = h.client.CreateRequest([]int64{10}, funded)
	require.NoError(t, err)
	req.Presented[1] = req.Presented[0]
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err, ErrSerialNumberDuplicated), err)

	require.Equal(t, before, h.issuer.Balance())
	require.Len(t, h.issuer.Ledger(), ledger)
}

// TestPreparedResponses checks that prepared requests change nothing
// until committed and that of two requests presenting the same
// credentials only the first committed succeeds.
func TestPreparedResponses(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4)
	zeros := h.zeroCredentials(t)
	balance := h.issuer.Balance()
	ledger := len(h.issuer.Ledger())

	first, validation, err := h.client.CreateRequest([]int64{7}, zeros)
	require.NoError(t, err)
	second, _, err := h.client.CreateRequest([]int64{7}, zeros)
	require.NoError(t, err)

	preparedFirst, err := h.issuer.PrepareResponse(first)
	require.NoError(t, err)
	preparedSecond, err := h.issuer.PrepareResponse(second)
	require.NoError(t, err)
	require.Equal(t, balance, h.issuer.Balance())
	require.Len(t, h.issuer.Ledger(), ledger)

	resp, err := preparedFirst.Commit()
	require.NoError(t, err)
	creds, err := h.client.HandleResponse(resp, validation)
	require.NoError(t, err)
	require.Equal(t, int64(7), creds[0].Value)
	require.Equal(t, balance+7, h.issuer.Balance())

	_, err = preparedSecond.Commit()
	require.True(t, IsErrorCode(err, ErrSerialNumberAlreadyUsed), err)

	_, err = preparedFirst.Commit()
	require.Error(t, err)
	require.Equal(t, balance+7, h.issuer.Balance())
	require.Len(t, h.issuer.Ledger(), ledger+1)
}

func TestInvalidRequests(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 3)
	zeros := h.zeroCredentials(t)

	// Claiming more value than the proofs support.
	req, _, err := h.client.CreateRequest([]int64{5}, zeros)
	require.NoError(t, err)
	req.Delta = 6
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err,
		ErrCoordinatorReceivedInvalidProofs), err)

	// Too few requested credentials.
	req, _, err = h.client.CreateRequest([]int64{5}, zeros)
	require.NoError(t, err)
	req.Requested = req.Requested[:1]
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err,
		ErrInvalidNumberOfRequestedCredentials), err)

	// Too few presented credentials.
	req, _, err = h.client.CreateRequest([]int64{5}, zeros)
	require.NoError(t, err)
	req.Presented = req.Presented[:1]
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err,
		ErrInvalidNumberOfPresentedCredentials), err)

	// A null request may not move value.
	req, _, err = h.client.CreateRequestForZeroAmount()
	require.NoError(t, err)
	req.Delta = 5
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err,
		ErrNullCredentialRequestNotAllowed), err)

	// Truncated bit commitments.
	req, _, err = h.client.CreateRequest([]int64{5}, zeros)
	require.NoError(t, err)
	req.Requested[0].BitCommitments = req.Requested[0].BitCommitments[1:]
	_, err = h.issuer.HandleRequest(req)
	require.True(t, IsErrorCode(err, ErrInvalidBitCommitment), err)

	// Values outside of the range are refused by the client.
	_, _, err = h.client.CreateRequest([]int64{testMaxAmount + 1}, zeros)
	require.True(t, IsErrorCode(err, ErrValueOutOfRange), err)
	_, _, err = h.client.CreateRequest([]int64{-1}, zeros)
	require.True(t, IsErrorCode(err, ErrValueOutOfRange), err)

	// None of the above consumed the zero credentials.
	h.exchange(t, []int64{5}, zeros)
}

// TestForeignIssuerResponse checks that a client refuses credentials
// issued with a key other than the one it was configured with.
func TestForeignIssuerResponse(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 4)
	rogue := newHarness(t, 5)

	req, validation, err := h.client.CreateRequestForZeroAmount()
	require.NoError(t, err)

	resp, err := rogue.issuer.HandleRequest(req)
	require.NoError(t, err)

	_, err = h.client.HandleResponse(resp, validation)
	require.True(t, IsErrorCode(err, ErrClientReceivedInvalidProofs), err)

	resp.IssuedCredentials = resp.IssuedCredentials[:1]
	_, err = h.client.HandleResponse(resp, validation)
	require.True(t, IsErrorCode(err,
		ErrIssuedCredentialNumberMismatch), err)
}

// TestBalanceUpdates checks that the balance is the sum of accepted
// deltas and never becomes negative.
func TestBalanceUpdates(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 6)

	deltas := []int64{5, 7, -3, -9, 4, -20, 1}
	var expected int64
	for _, d := range deltas {
		err := h.issuer.UpdateBalance(d)
		if expected+d < 0 {
			require.True(t, IsErrorCode(err, ErrNegativeBalance))
			continue
		}
		require.NoError(t, err)
		expected += d
		require.Equal(t, expected, h.issuer.Balance())
	}
}

func TestPresentationZ(t *testing.T) {
	t.Parallel()

	h := newHarness(t, 7)
	creds := h.zeroCredentials(t)

	rnd := randomness.NewInsecureRandomFromSeed(8)
	z := rnd.GetScalar()
	p := creds[0].Present(&z)

	require.True(t, p.ComputeZ(h.issuer.sk).Equal(
		h.issuer.Parameters().I.Mul(&z)))
	require.True(t, p.S.Equal(groups.Gs.Mul(&creds[0].Randomness)))
}
