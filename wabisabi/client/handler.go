// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package client implements the participant side of WabiSabi coinjoins:
// registering coins, exchanging credentials for outputs and signing the
// resulting transaction.
package client

import (
	"context"

	"github.com/btcsuite/wabisabi/wabisabi/models"
)

// RequestHandler is a coordinator the client talks to, either in process
// or over the network.
type RequestHandler interface {
	// GetStatus returns the state of the coordinator's rounds.
	GetStatus(ctx context.Context, req *models.RoundStateRequest) (
		*models.RoundStateResponse, error)

	// RegisterInput registers a coin in a round.
	RegisterInput(ctx context.Context,
		req *models.InputRegistrationRequest) (
		*models.InputRegistrationResponse, error)

	// ConfirmConnection keeps an input registered and eventually
	// exchanges it for real credentials.
	ConfirmConnection(ctx context.Context,
		req *models.ConnectionConfirmationRequest) (
		*models.ConnectionConfirmationResponse, error)

	// RemoveInput unregisters an input.
	RemoveInput(ctx context.Context, req *models.InputsRemovalRequest) error

	// RegisterOutput registers an output paid with credentials.
	RegisterOutput(ctx context.Context,
		req *models.OutputRegistrationRequest) error

	// ReissueCredentials exchanges credentials for others.
	ReissueCredentials(ctx context.Context,
		req *models.ReissueCredentialRequest) (
		*models.ReissueCredentialResponse, error)

	// ReadyToSign signals that an input's outputs are registered.
	ReadyToSign(ctx context.Context,
		req *models.ReadyToSignRequestRequest) error

	// SignTransaction provides the witness of an input.
	SignTransaction(ctx context.Context,
		req *models.TransactionSignaturesRequest) error
}
