// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package decomposition

import "github.com/btcsuite/btcd/btcutil"

// StandardDenominations returns the denominations outputs are decomposed
// into that lie within [lo, hi]: the powers of two and three, two times
// the powers of three, and one, two and five times the powers of ten.
func StandardDenominations(lo, hi btcutil.Amount) []btcutil.Amount {
	var denoms []btcutil.Amount
	add := func(a float64) {
		amount := btcutil.Amount(a)
		if amount >= lo && amount <= hi {
			denoms = append(denoms, amount)
		}
	}

	limit := float64(btcutil.MaxSatoshi)
	for p := 1.0; p <= limit; p *= 2 {
		add(p)
	}
	for p := 1.0; p <= limit; p *= 3 {
		add(p)
		add(2 * p)
	}
	for p := 1.0; p <= limit; p *= 10 {
		add(p)
		add(2 * p)
		add(5 * p)
	}

	return sortDescending(denoms)
}

// frequencies counts how often each denomination appears when amounts are
// greedily decomposed.
func frequencies(d *GreedyDecomposer, amounts []btcutil.Amount,
	costPerOutput btcutil.Amount) map[btcutil.Amount]int {

	counts := make(map[btcutil.Amount]int)
	for _, amount := range amounts {
		for _, out := range d.Decompose(amount, costPerOutput) {
			counts[out]++
		}
	}

	return counts
}
