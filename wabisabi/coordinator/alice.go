// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package coordinator

import (
	"time"

	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/google/uuid"
)

// Alice is an input registered in a round.
type Alice struct {
	ID             uuid.UUID
	Coin           models.Coin
	OwnershipProof *models.OwnershipProof

	// Deadline is when the Alice is dropped during input registration
	// unless she confirms her connection again.
	Deadline time.Time

	ConfirmedConnection bool
	ReadyToSign         bool
}

func newAlice(coin models.Coin, proof *models.OwnershipProof) *Alice {
	return &Alice{
		ID:             uuid.New(),
		Coin:           coin,
		OwnershipProof: proof,
	}
}

// ScriptType returns the script type of the registered coin.
func (a *Alice) ScriptType() models.ScriptType {
	return a.Coin.ScriptType()
}

// RemainingAmountCredentials is the amount credential value the Alice
// receives when confirming her connection.
func (a *Alice) RemainingAmountCredentials(p *models.RoundParameters) int64 {
	return int64(p.InputEffectiveValue(a.Coin.Amount(), a.ScriptType()))
}

// RemainingVsizeCredentials is the vsize credential value the Alice
// receives when confirming her connection.
func (a *Alice) RemainingVsizeCredentials(p *models.RoundParameters) int64 {
	return p.VsizeAllocation(a.ScriptType())
}

// extendDeadline moves the Alice's deadline to now plus d.
func (a *Alice) extendDeadline(now time.Time, d time.Duration) {
	a.Deadline = now.Add(d)
}

// Bob is an output registered in a round.
type Bob struct {
	Script []byte

	// CredentialAmount is the amount credential value presented for the
	// output, its value plus its fee.
	CredentialAmount int64
}
