// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package zeroknowledge implements non-interactive sigma protocols proving
// knowledge of a representation of group elements. Several statements can
// be proven together over one Fiat-Shamir transcript, which makes the
// resulting proofs valid only as a whole and only in the order they were
// created.
package zeroknowledge

import (
	"errors"
	"fmt"

	"github.com/btcsuite/wabisabi/crypto/groups"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

var (
	// ErrInvalidArgument is returned when a statement, witness or proof is
	// malformed: zero secrets, points at infinity where a real point is
	// required, or mismatched dimensions.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrInvalidOperation is returned when well formed inputs cannot be
	// used together, for example a witness that does not satisfy the
	// statement it is paired with.
	ErrInvalidOperation = errors.New("invalid operation")
)

// Equation states that Public is the sum of the witness scalars multiplied
// by the corresponding Generators.
type Equation struct {
	Public     groups.GroupElement
	Generators groups.GroupElementVector
}

// NewEquation is a convenience constructor.
func NewEquation(public groups.GroupElement,
	generators ...groups.GroupElement) Equation {

	return Equation{Public: public, Generators: generators}
}

// Holds reports whether the witness satisfies the equation.
func (e *Equation) Holds(witness groups.ScalarVector) bool {
	return e.Generators.MultiplyAdd(witness).Equal(e.Public)
}

// verify checks Σ s_j·G_j == R + c·P.
func (e *Equation) verify(nonce groups.GroupElement,
	challenge *secp256k1.ModNScalar, responses groups.ScalarVector) bool {

	lhs := e.Generators.MultiplyAdd(responses)
	rhs := nonce.Add(e.Public.Mul(challenge))

	return lhs.Equal(rhs)
}

// Statement is a conjunction of equations sharing one witness vector. Each
// column of the generator matrix corresponds to one secret; a point at
// infinity in a cell means the secret does not appear in that equation.
type Statement struct {
	Equations []Equation
}

// NewStatement validates the shape of the equations and groups them into a
// statement.
func NewStatement(equations ...Equation) (*Statement, error) {
	if len(equations) == 0 {
		return nil, fmt.Errorf("%w: statement without equations",
			ErrInvalidArgument)
	}

	width := len(equations[0].Generators)
	if width == 0 {
		return nil, fmt.Errorf("%w: equation without generators",
			ErrInvalidArgument)
	}

	for i := range equations {
		eq := &equations[i]
		if len(eq.Generators) != width {
			return nil, fmt.Errorf("%w: equation %d has %d generators, "+
				"expected %d", ErrInvalidArgument, i,
				len(eq.Generators), width)
		}

		hasGenerator := false
		for _, g := range eq.Generators {
			if !g.IsInfinity() {
				hasGenerator = true
				break
			}
		}
		if !hasGenerator {
			return nil, fmt.Errorf("%w: equation %d only has generators "+
				"at infinity", ErrInvalidArgument, i)
		}
	}

	return &Statement{Equations: equations}, nil
}

// NewDLStatement returns the statement P = x·g.
func NewDLStatement(public, generator groups.GroupElement) (*Statement,
	error) {

	if public.IsInfinity() || generator.IsInfinity() {
		return nil, fmt.Errorf("%w: point at infinity", ErrInvalidArgument)
	}

	return NewStatement(NewEquation(public, generator))
}

// Width returns the number of witness scalars the statement relates.
func (s *Statement) Width() int {
	return len(s.Equations[0].Generators)
}

// verify checks a proof against the statement given the challenge.
func (s *Statement) verify(p *Proof, challenge *secp256k1.ModNScalar) bool {
	if len(p.PublicNonces) != len(s.Equations) ||
		len(p.Responses) != s.Width() {

		return false
	}

	for i := range s.Equations {
		if !s.Equations[i].verify(p.PublicNonces[i], challenge,
			p.Responses) {

			return false
		}
	}

	return true
}

// Knowledge pairs a statement with a witness satisfying it.
type Knowledge struct {
	Statement *Statement
	Witness   groups.ScalarVector
}

// NewKnowledge checks that witness satisfies every equation of statement.
func NewKnowledge(statement *Statement,
	witness groups.ScalarVector) (*Knowledge, error) {

	if statement == nil {
		return nil, fmt.Errorf("%w: nil statement", ErrInvalidArgument)
	}
	if len(witness) != statement.Width() {
		return nil, fmt.Errorf("%w: witness has %d scalars, statement "+
			"relates %d", ErrInvalidArgument, len(witness),
			statement.Width())
	}

	for i := range statement.Equations {
		if !statement.Equations[i].Holds(witness) {
			return nil, fmt.Errorf("%w: witness does not satisfy "+
				"equation %d", ErrInvalidOperation, i)
		}
	}

	return &Knowledge{Statement: statement, Witness: witness}, nil
}
