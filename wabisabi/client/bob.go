// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import "context"

// BobClient registers outputs and reissues credentials. Its requests are
// not linked to any Alice.
type BobClient struct {
	arena *ArenaClient
}

// NewBobClient returns a BobClient making requests through arena.
func NewBobClient(arena *ArenaClient) *BobClient {
	return &BobClient{arena: arena}
}

// RegisterOutput registers script paid with the presented credentials.
func (b *BobClient) RegisterOutput(ctx context.Context, script []byte,
	presented Credentials) error {

	return b.arena.RegisterOutput(ctx, script, presented)
}

// Reissue exchanges the presented credentials for credentials of the
// requested values.
func (b *BobClient) Reissue(ctx context.Context, amounts, vsizes []int64,
	presented Credentials) (Credentials, error) {

	return b.arena.ReissueCredentials(ctx, amounts, vsizes, presented)
}

// RequestZeroCredentials obtains zero value credentials.
func (b *BobClient) RequestZeroCredentials(
	ctx context.Context) (Credentials, error) {

	return b.arena.RequestZeroCredentials(ctx)
}
