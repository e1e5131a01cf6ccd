// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package randomness provides the sources of randomness used by the proof
// system and by the coinjoin client when spreading requests over time.
package randomness

import (
	"encoding/binary"
	"sync"

	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/chacha20"
)

// SeedSize is the required length of seeds for NewInsecureRandom.
const SeedSize = chacha20.KeySize

// WasabiRandom is a source of randomness.
type WasabiRandom interface {
	// GetBytes fills buf with random bytes.
	GetBytes(buf []byte)

	// GetScalar returns a random scalar that did not overflow the group
	// order. The scalar may be zero with negligible probability, callers
	// that require a non-zero scalar must check for it.
	GetScalar() secp256k1.ModNScalar

	// GetInt returns a random integer in [from, to). It panics if
	// to <= from.
	GetInt(from, to int) int
}

// scalarFrom draws 32 byte buffers from r until one of them is a canonical
// scalar.
func scalarFrom(r WasabiRandom) secp256k1.ModNScalar {
	var (
		buf [32]byte
		s   secp256k1.ModNScalar
	)
	for {
		r.GetBytes(buf[:])
		if overflow := s.SetBytes(&buf); overflow == 0 {
			return s
		}
	}
}

// SecureRandom draws from the operating system backed cryptographically
// secure generator.
type SecureRandom struct{}

// A compile time check to ensure SecureRandom implements WasabiRandom.
var _ WasabiRandom = (*SecureRandom)(nil)

// NewSecureRandom returns a cryptographically secure WasabiRandom.
func NewSecureRandom() *SecureRandom {
	return &SecureRandom{}
}

// GetBytes fills buf with random bytes.
func (*SecureRandom) GetBytes(buf []byte) {
	rand.Read(buf)
}

// GetScalar returns a random canonical scalar.
func (s *SecureRandom) GetScalar() secp256k1.ModNScalar {
	return scalarFrom(s)
}

// GetInt returns a random integer in [from, to).
func (*SecureRandom) GetInt(from, to int) int {
	if to <= from {
		panic("randomness: empty range")
	}
	return from + rand.IntN(to-from)
}

// InsecureRandom is a seeded ChaCha20 keystream. It is deterministic for a
// given seed which makes it suitable for tests and for non-secret decisions
// such as request timing. It must never be used to generate secrets that
// protect funds or privacy.
type InsecureRandom struct {
	mu     sync.Mutex
	cipher *chacha20.Cipher
}

// A compile time check to ensure InsecureRandom implements WasabiRandom.
var _ WasabiRandom = (*InsecureRandom)(nil)

// NewInsecureRandom creates a deterministic generator from a 32 byte seed.
// This will panic if the length of seed is not SeedSize bytes.
func NewInsecureRandom(seed []byte) *InsecureRandom {
	if len(seed) != SeedSize {
		panic("randomness: bad seed length")
	}

	nonce := make([]byte, chacha20.NonceSize)
	cipher, err := chacha20.NewUnauthenticatedCipher(seed, nonce)
	if err != nil {
		panic(err)
	}

	return &InsecureRandom{cipher: cipher}
}

// NewInsecureRandomFromSeed is a convenience constructor that expands a
// small integer seed into a generator.
func NewInsecureRandomFromSeed(seed uint64) *InsecureRandom {
	var key [SeedSize]byte
	binary.LittleEndian.PutUint64(key[:8], seed)
	return NewInsecureRandom(key[:])
}

// GetBytes fills buf with keystream bytes.
func (r *InsecureRandom) GetBytes(buf []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Zero the source such that the destination is written with just the
	// keystream.
	for i := range buf {
		buf[i] = 0
	}
	r.cipher.XORKeyStream(buf, buf)
}

// GetScalar returns a canonical scalar drawn from the keystream.
func (r *InsecureRandom) GetScalar() secp256k1.ModNScalar {
	return scalarFrom(r)
}

// GetInt returns an integer in [from, to). The modulo bias is irrelevant for
// the small ranges this is used with.
func (r *InsecureRandom) GetInt(from, to int) int {
	if to <= from {
		panic("randomness: empty range")
	}

	var buf [8]byte
	r.GetBytes(buf[:])
	n := binary.LittleEndian.Uint64(buf[:]) % uint64(to-from)

	return from + int(n)
}
