// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package decomposition

import (
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// Decomposition is a set of outputs, largest first.
type Decomposition struct {
	Outputs []btcutil.Amount
	Total   btcutil.Amount
}

// Cost returns the value of the outputs plus what it costs to create
// them.
func (d Decomposition) Cost(costPerOutput btcutil.Amount) btcutil.Amount {
	return d.Total + btcutil.Amount(len(d.Outputs))*costPerOutput
}

// CombinationsOfASize returns every way to pick size denominations,
// repetitions allowed and order ignored. Each combination is largest
// first.
func CombinationsOfASize(denominations []btcutil.Amount,
	size int) [][]btcutil.Amount {

	denoms := sortDescending(denominations)

	var (
		combinations [][]btcutil.Amount
		current      = make([]btcutil.Amount, 0, size)
		pick         func(start int)
	)
	pick = func(start int) {
		if len(current) == size {
			combinations = append(combinations,
				append([]btcutil.Amount(nil), current...))
			return
		}
		for i := start; i < len(denoms); i++ {
			current = append(current, denoms[i])
			pick(i)
			current = current[:len(current)-1]
		}
	}
	if size > 0 {
		pick(0)
	}

	return combinations
}

// PossibleDecompositions holds the decompositions of up to a number of
// outputs, at most one per total value: the one with the fewest outputs.
type PossibleDecompositions struct {
	decompositions []Decomposition
}

// NewPossibleDecompositions enumerates the decompositions into at most
// maxOutputs denominations totalling at most maxTotal. When a number of
// outputs allows more than limit new totals only the largest limit are
// kept and extended.
func NewPossibleDecompositions(denominations []btcutil.Amount,
	maxTotal btcutil.Amount, maxOutputs, limit int) *PossibleDecompositions {

	denoms := sortDescending(denominations)
	seen := make(map[btcutil.Amount]struct{})

	var all []Decomposition
	layer := []Decomposition{{}}
	for size := 1; size <= maxOutputs && len(layer) > 0; size++ {
		var (
			next    []Decomposition
			inLayer = make(map[btcutil.Amount]struct{})
		)
		for _, d := range layer {
			for _, denom := range denoms {
				n := len(d.Outputs)
				if n > 0 && denom > d.Outputs[n-1] {
					continue
				}

				total := d.Total + denom
				if total > maxTotal {
					continue
				}
				if _, ok := seen[total]; ok {
					continue
				}
				if _, ok := inLayer[total]; ok {
					continue
				}
				inLayer[total] = struct{}{}

				outputs := make([]btcutil.Amount, n+1)
				copy(outputs, d.Outputs)
				outputs[n] = denom
				next = append(next, Decomposition{
					Outputs: outputs,
					Total:   total,
				})
			}
		}

		if limit > 0 && len(next) > limit {
			sort.Slice(next, func(i, j int) bool {
				return next[i].Total > next[j].Total
			})
			next = next[:limit]
		}

		// Only the kept totals block larger decompositions.
		for _, d := range next {
			seen[d.Total] = struct{}{}
		}

		all = append(all, next...)
		layer = next
	}

	sort.SliceStable(all, func(i, j int) bool {
		if all[i].Total != all[j].Total {
			return all[i].Total > all[j].Total
		}
		return len(all[i].Outputs) < len(all[j].Outputs)
	})

	return &PossibleDecompositions{decompositions: all}
}

// Len returns the number of decompositions.
func (p *PossibleDecompositions) Len() int {
	return len(p.decompositions)
}

// GetByTotalValue returns the decompositions costing at most
// maximumEffectiveCost, when outputs of vsizePerOutput are paid at
// feeRate, and totalling at least minimumTotalValue, largest total first.
// When none reaches minimumTotalValue the largest affordable one is
// returned alone.
func (p *PossibleDecompositions) GetByTotalValue(maximumEffectiveCost,
	minimumTotalValue btcutil.Amount, feeRate unit.SatPerKVByte,
	vsizePerOutput unit.VByte) []Decomposition {

	costPerOutput := feeRate.FeeForVSize(vsizePerOutput)

	var (
		matches []Decomposition
		best    *Decomposition
	)
	for i := range p.decompositions {
		d := p.decompositions[i]
		if d.Cost(costPerOutput) > maximumEffectiveCost {
			continue
		}
		if best == nil {
			best = &p.decompositions[i]
		}
		if d.Total >= minimumTotalValue {
			matches = append(matches, d)
		}
	}

	if len(matches) == 0 && best != nil {
		return []Decomposition{*best}
	}

	return matches
}
