// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package decomposition splits amounts into outputs of standard
// denominations so they blend with the outputs of other participants.
package decomposition

import (
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
)

// ErrNoDenominations is returned when a decomposer has no denomination to
// decompose into.
var ErrNoDenominations = errors.New("no denominations")

// sortDescending returns a sorted copy of amounts without duplicates,
// largest first.
func sortDescending(amounts []btcutil.Amount) []btcutil.Amount {
	sorted := append([]btcutil.Amount(nil), amounts...)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] > sorted[j]
	})

	unique := sorted[:0]
	for i, a := range sorted {
		if i == 0 || a != sorted[i-1] {
			unique = append(unique, a)
		}
	}

	return unique
}

// GreedyDecomposer decomposes amounts into the largest denominations that
// fit.
type GreedyDecomposer struct {
	denominations []btcutil.Amount
}

// NewGreedyDecomposer returns a decomposer using denominations.
func NewGreedyDecomposer(
	denominations []btcutil.Amount) (*GreedyDecomposer, error) {

	if len(denominations) == 0 {
		return nil, ErrNoDenominations
	}

	return &GreedyDecomposer{
		denominations: sortDescending(denominations),
	}, nil
}

// Denominations returns the denominations, largest first.
func (d *GreedyDecomposer) Denominations() []btcutil.Amount {
	return d.denominations
}

// Decompose returns the outputs amount is split into, largest first. Each
// output costs costPerOutput on top of its value, and the outputs with
// their costs never exceed amount. What remains is less than the smallest
// denomination plus its cost.
func (d *GreedyDecomposer) Decompose(amount,
	costPerOutput btcutil.Amount) []btcutil.Amount {

	var outputs []btcutil.Amount
	remaining := amount
	for _, denom := range d.denominations {
		for denom+costPerOutput <= remaining {
			outputs = append(outputs, denom)
			remaining -= denom + costPerOutput
		}
	}

	return outputs
}
