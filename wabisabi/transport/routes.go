// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package transport carries WabiSabi requests over HTTP. The Server exposes
// a coordinator and the Client implements the participant's view of it,
// optionally through a SOCKS5 proxy such as Tor.
package transport

// The paths of the coordinator's endpoints. Every request is a POST with a
// JSON body.
const (
	StatusPath                 = "/wabisabi/status"
	InputRegistrationPath      = "/wabisabi/input-registration"
	ConnectionConfirmationPath = "/wabisabi/connection-confirmation"
	InputUnregistrationPath    = "/wabisabi/input-unregistration"
	CredentialIssuancePath     = "/wabisabi/credential-issuance"
	OutputRegistrationPath     = "/wabisabi/output-registration"
	ReadyToSignPath            = "/wabisabi/ready-to-sign"
	TransactionSignaturePath   = "/wabisabi/transaction-signature"
)

// maxRequestSize specifies the maximum number of bytes in a request or
// response body.  This is currently limited to 4MB.
const maxRequestSize = 1024 * 1024 * 4
