// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
)

// K is the number of credentials every request presents and requests per
// credential type.
const K = wabisabi.NumberOfCredentials

// Credentials holds the amount and vsize credentials issued by one
// response.
type Credentials struct {
	Amount []*wabisabi.Credential
	Vsize  []*wabisabi.Credential
}

// ConfirmationResult is the outcome of a connection confirmation.
type ConfirmationResult struct {
	// Confirmed is set when the coordinator issued the real credentials,
	// which it does only once per input.
	Confirmed bool

	// Real holds the real credentials if Confirmed.
	Real Credentials

	// Zero holds the zero value credentials issued with every
	// confirmation.
	Zero Credentials
}

// ArenaClient turns credential operations on one round into coordinator
// requests and validates the credentials issued in return.
type ArenaClient struct {
	roundID chainhash.Hash
	amount  *wabisabi.Client
	vsize   *wabisabi.Client
	handler RequestHandler
}

// NewArenaClient returns a client for the round described by state.
func NewArenaClient(state *models.RoundState, handler RequestHandler,
	rnd randomness.WasabiRandom) *ArenaClient {

	return &ArenaClient{
		roundID: state.ID,
		amount:  state.CreateAmountCredentialClient(rnd),
		vsize:   state.CreateVsizeCredentialClient(rnd),
		handler: handler,
	}
}

// RoundID returns the round the client makes requests for.
func (c *ArenaClient) RoundID() chainhash.Hash {
	return c.roundID
}

// Handler returns the coordinator the client talks to.
func (c *ArenaClient) Handler() RequestHandler {
	return c.handler
}

// zeroRequests creates zero value requests for both credential types.
func (c *ArenaClient) zeroRequests() (*wabisabi.CredentialsRequest,
	*wabisabi.ResponseValidation, *wabisabi.CredentialsRequest,
	*wabisabi.ResponseValidation, error) {

	amountReq, amountV, err := c.amount.CreateRequestForZeroAmount()
	if err != nil {
		return nil, nil, nil, nil, err
	}
	vsizeReq, vsizeV, err := c.vsize.CreateRequestForZeroAmount()
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return amountReq, amountV, vsizeReq, vsizeV, nil
}

// handle validates the two responses of a credential type pair.
func (c *ArenaClient) handle(amountResp *wabisabi.CredentialsResponse,
	amountV *wabisabi.ResponseValidation,
	vsizeResp *wabisabi.CredentialsResponse,
	vsizeV *wabisabi.ResponseValidation) (Credentials, error) {

	if amountResp == nil || vsizeResp == nil {
		return Credentials{}, fmt.Errorf("round %v: missing "+
			"credentials in response", models.ShortID(c.roundID))
	}

	amount, err := c.amount.HandleResponse(amountResp, amountV)
	if err != nil {
		return Credentials{}, err
	}
	vsize, err := c.vsize.HandleResponse(vsizeResp, vsizeV)
	if err != nil {
		return Credentials{}, err
	}

	return Credentials{Amount: amount, Vsize: vsize}, nil
}

func checkCounts(values []int64, presented []*wabisabi.Credential) error {
	if len(values) > K || len(presented) > K {
		return fmt.Errorf("%w: %d requested, %d presented",
			ErrTooManyCredentials, len(values), len(presented))
	}

	return nil
}

func sumValues(values []int64) int64 {
	var sum int64
	for _, v := range values {
		sum += v
	}

	return sum
}

func sumCredentials(creds []*wabisabi.Credential) int64 {
	var sum int64
	for _, c := range creds {
		sum += c.Value
	}

	return sum
}

// RegisterInput registers op with its ownership proof and returns the id
// of the Alice and her zero value credentials.
func (c *ArenaClient) RegisterInput(ctx context.Context, op wire.OutPoint,
	proof *models.OwnershipProof) (uuid.UUID, Credentials, error) {

	amountReq, amountV, vsizeReq, vsizeV, err := c.zeroRequests()
	if err != nil {
		return uuid.Nil, Credentials{}, err
	}

	resp, err := c.handler.RegisterInput(ctx,
		&models.InputRegistrationRequest{
			RoundID:                      c.roundID,
			Input:                        op,
			OwnershipProof:               proof,
			ZeroAmountCredentialRequests: amountReq,
			ZeroVsizeCredentialRequests:  vsizeReq,
		})
	if err != nil {
		return uuid.Nil, Credentials{}, err
	}

	creds, err := c.handle(resp.AmountCredentials, amountV,
		resp.VsizeCredentials, vsizeV)
	if err != nil {
		return uuid.Nil, Credentials{}, err
	}

	return resp.AliceID, creds, nil
}

// ConfirmConnection confirms the connection of an Alice, presenting her
// zero credentials and requesting amounts and vsizes. The result tells
// whether the coordinator answered with the real credentials or only
// with zero ones.
func (c *ArenaClient) ConfirmConnection(ctx context.Context,
	aliceID uuid.UUID, amounts, vsizes []int64,
	presented Credentials) (*ConfirmationResult, error) {

	if err := checkCounts(amounts, presented.Amount); err != nil {
		return nil, err
	}
	if err := checkCounts(vsizes, presented.Vsize); err != nil {
		return nil, err
	}

	realAmountReq, realAmountV, err := c.amount.CreateRequest(amounts,
		presented.Amount)
	if err != nil {
		return nil, err
	}
	realVsizeReq, realVsizeV, err := c.vsize.CreateRequest(vsizes,
		presented.Vsize)
	if err != nil {
		return nil, err
	}
	zeroAmountReq, zeroAmountV, zeroVsizeReq, zeroVsizeV, err :=
		c.zeroRequests()
	if err != nil {
		return nil, err
	}

	resp, err := c.handler.ConfirmConnection(ctx,
		&models.ConnectionConfirmationRequest{
			RoundID:                      c.roundID,
			AliceID:                      aliceID,
			ZeroAmountCredentialRequests: zeroAmountReq,
			RealAmountCredentialRequests: realAmountReq,
			ZeroVsizeCredentialRequests:  zeroVsizeReq,
			RealVsizeCredentialRequests:  realVsizeReq,
		})
	if err != nil {
		return nil, err
	}

	result := &ConfirmationResult{}
	result.Zero, err = c.handle(resp.ZeroAmountCredentials, zeroAmountV,
		resp.ZeroVsizeCredentials, zeroVsizeV)
	if err != nil {
		return nil, err
	}
	if !resp.IsConfirmed() {
		return result, nil
	}

	result.Real, err = c.handle(resp.RealAmountCredentials, realAmountV,
		resp.RealVsizeCredentials, realVsizeV)
	if err != nil {
		return nil, err
	}
	result.Confirmed = true

	return result, nil
}

// RemoveInput unregisters an Alice.
func (c *ArenaClient) RemoveInput(ctx context.Context,
	aliceID uuid.UUID) error {

	return c.handler.RemoveInput(ctx, &models.InputsRemovalRequest{
		RoundID: c.roundID,
		AliceID: aliceID,
	})
}

// ReissueCredentials exchanges presented credentials for credentials of
// the requested values. The amounts must add up to the presented amount,
// the vsizes must not exceed the presented vsize.
func (c *ArenaClient) ReissueCredentials(ctx context.Context, amounts,
	vsizes []int64, presented Credentials) (Credentials, error) {

	if err := checkCounts(amounts, presented.Amount); err != nil {
		return Credentials{}, err
	}
	if err := checkCounts(vsizes, presented.Vsize); err != nil {
		return Credentials{}, err
	}
	if sumValues(amounts) != sumCredentials(presented.Amount) {
		return Credentials{}, fmt.Errorf("%w: requested %d of %d "+
			"amount", ErrUnbalancedReissuance, sumValues(amounts),
			sumCredentials(presented.Amount))
	}
	if sumValues(vsizes) > sumCredentials(presented.Vsize) {
		return Credentials{}, fmt.Errorf("%w: requested %d of %d "+
			"vsize", ErrUnbalancedReissuance, sumValues(vsizes),
			sumCredentials(presented.Vsize))
	}

	realAmountReq, realAmountV, err := c.amount.CreateRequest(amounts,
		presented.Amount)
	if err != nil {
		return Credentials{}, err
	}
	realVsizeReq, realVsizeV, err := c.vsize.CreateRequest(vsizes,
		presented.Vsize)
	if err != nil {
		return Credentials{}, err
	}

	return c.reissue(ctx, realAmountReq, realAmountV, realVsizeReq,
		realVsizeV)
}

// RequestZeroCredentials obtains K zero value credentials of each type
// without presenting any.
func (c *ArenaClient) RequestZeroCredentials(
	ctx context.Context) (Credentials, error) {

	amountReq, amountV, vsizeReq, vsizeV, err := c.zeroRequests()
	if err != nil {
		return Credentials{}, err
	}

	return c.reissue(ctx, amountReq, amountV, vsizeReq, vsizeV)
}

func (c *ArenaClient) reissue(ctx context.Context,
	amountReq *wabisabi.CredentialsRequest,
	amountV *wabisabi.ResponseValidation,
	vsizeReq *wabisabi.CredentialsRequest,
	vsizeV *wabisabi.ResponseValidation) (Credentials, error) {

	zeroAmountReq, zeroAmountV, zeroVsizeReq, zeroVsizeV, err :=
		c.zeroRequests()
	if err != nil {
		return Credentials{}, err
	}

	resp, err := c.handler.ReissueCredentials(ctx,
		&models.ReissueCredentialRequest{
			RoundID:                      c.roundID,
			RealAmountCredentialRequests: amountReq,
			RealVsizeCredentialRequests:  vsizeReq,
			ZeroAmountCredentialRequests: zeroAmountReq,
			ZeroVsizeCredentialRequests:  zeroVsizeReq,
		})
	if err != nil {
		return Credentials{}, err
	}

	if _, err := c.handle(resp.ZeroAmountCredentials, zeroAmountV,
		resp.ZeroVsizeCredentials, zeroVsizeV); err != nil {

		return Credentials{}, err
	}

	return c.handle(resp.RealAmountCredentials, amountV,
		resp.RealVsizeCredentials, vsizeV)
}

// RegisterOutput registers script paid with every presented credential.
func (c *ArenaClient) RegisterOutput(ctx context.Context, script []byte,
	presented Credentials) error {

	if err := checkCounts(nil, presented.Amount); err != nil {
		return err
	}
	if err := checkCounts(nil, presented.Vsize); err != nil {
		return err
	}

	amountReq, _, err := c.amount.CreateRequest(nil, presented.Amount)
	if err != nil {
		return err
	}
	vsizeReq, _, err := c.vsize.CreateRequest(nil, presented.Vsize)
	if err != nil {
		return err
	}

	return c.handler.RegisterOutput(ctx, &models.OutputRegistrationRequest{
		RoundID:                  c.roundID,
		Script:                   script,
		AmountCredentialRequests: amountReq,
		VsizeCredentialRequests:  vsizeReq,
	})
}

// ReadyToSign signals that the outputs of an Alice are registered.
func (c *ArenaClient) ReadyToSign(ctx context.Context,
	aliceID uuid.UUID) error {

	return c.handler.ReadyToSign(ctx, &models.ReadyToSignRequestRequest{
		RoundID: c.roundID,
		AliceID: aliceID,
	})
}

// SignTransaction provides the witness of coinjoin input index.
func (c *ArenaClient) SignTransaction(ctx context.Context, index int,
	witness wire.TxWitness) error {

	return c.handler.SignTransaction(ctx,
		&models.TransactionSignaturesRequest{
			RoundID:    c.roundID,
			InputIndex: index,
			Witness:    witness,
		})
}
