// Copyright (c) 2015 The btcsuite developers
// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zero contains functions to clear secret material from memory:
// byte slices, fixed size arrays and curve scalars.
package zero

import "github.com/decred/dcrd/dcrec/secp256k1/v4"

// Bytes sets all bytes in the passed slice to zero.  This is used to
// explicitly clear private key material from memory.
func Bytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// Bytea32 clears the 32-byte array by filling it with the zero value.
// This is used to explicitly clear private key material from memory.
func Bytea32(b *[32]byte) {
	*b = [32]byte{}
}

// Scalars sets every passed scalar to zero.
func Scalars(scalars ...*secp256k1.ModNScalar) {
	for _, s := range scalars {
		s.Zero()
	}
}
