// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package decomposition

import (
	"errors"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/wabisabi/pkg/unit"
	"github.com/btcsuite/wabisabi/wabisabi/models"
)

const (
	// DefaultMaxOutputs is the most outputs a participant registers.
	DefaultMaxOutputs = 8

	// possibleDenominations is how many of the preferred denominations
	// are combined exhaustively.
	possibleDenominations = 10

	// possibleLimit bounds the decompositions kept per output count.
	possibleLimit = 300
)

// ErrAmountTooSmall is returned when the inputs cannot pay for a single
// output of the smallest allowed amount.
var ErrAmountTooSmall = errors.New("amount too small to decompose")

// AmountDecomposerConfig describes the round an AmountDecomposer decomposes
// for.
type AmountDecomposerConfig struct {
	// FeeRate is the mining fee rate of the round.
	FeeRate unit.SatPerKVByte

	// MinRelayTxFee is used to decide whether a change output is dust.
	MinRelayTxFee btcutil.Amount

	// AllowedOutputAmounts bounds every output value.
	AllowedOutputAmounts models.MoneyRange

	// AvailableVsize is the vsize the participant's credentials allow
	// for outputs.
	AvailableVsize unit.VByte

	// OutputType is the script type of the registered outputs.
	OutputType models.ScriptType

	// MaxOutputs caps the number of outputs. Zero means
	// DefaultMaxOutputs.
	MaxOutputs int
}

// AmountDecomposer picks output values for a participant, favouring the
// denominations other participants are likely to create as well.
type AmountDecomposer struct {
	cfg AmountDecomposerConfig
}

// NewAmountDecomposer returns a decomposer for the round cfg describes.
func NewAmountDecomposer(cfg AmountDecomposerConfig) *AmountDecomposer {
	if cfg.MaxOutputs <= 0 {
		cfg.MaxOutputs = DefaultMaxOutputs
	}

	return &AmountDecomposer{cfg: cfg}
}

// costPerOutput is the mining fee paid for every output.
func (d *AmountDecomposer) costPerOutput() btcutil.Amount {
	return d.cfg.FeeRate.FeeForVSize(d.cfg.OutputType.OutputVsize())
}

// maxOutputs is the output count permitted by both the configuration and
// the available vsize.
func (d *AmountDecomposer) maxOutputs() int {
	n := int(d.cfg.AvailableVsize / d.cfg.OutputType.OutputVsize())
	if n > d.cfg.MaxOutputs {
		n = d.cfg.MaxOutputs
	}

	return n
}

// templateScript returns a witness program shaped like the outputs the
// decomposer creates.
func (d *AmountDecomposer) templateScript() []byte {
	if d.cfg.OutputType == models.ScriptTypeTaproot {
		script := make([]byte, 34)
		script[0], script[1] = txscript.OP_1, txscript.OP_DATA_32

		return script
	}

	script := make([]byte, 22)
	script[1] = txscript.OP_DATA_20

	return script
}

// isDust reports whether an output of amount is below the minimum output
// or would be considered dust by relaying nodes.
func (d *AmountDecomposer) isDust(amount btcutil.Amount) bool {
	if amount < d.cfg.AllowedOutputAmounts.Min {
		return true
	}

	out := wire.NewTxOut(int64(amount), d.templateScript())

	return txrules.IsDustOutput(out, d.cfg.MinRelayTxFee)
}

// Decompose returns the output values for inputs whose effective values
// are myInputs, given the effective values of the other participants'
// inputs. Outputs are returned largest first and together with their
// fees never cost more than the sum of myInputs.
func (d *AmountDecomposer) Decompose(myInputs,
	othersInputs []btcutil.Amount) ([]btcutil.Amount, error) {

	var available btcutil.Amount
	for _, in := range myInputs {
		available += in
	}

	cost := d.costPerOutput()
	maxOutputs := d.maxOutputs()
	if maxOutputs == 0 || d.isDust(available-cost) {
		return nil, ErrAmountTooSmall
	}

	// Denominations a single output can afford.
	var denoms []btcutil.Amount
	all := StandardDenominations(d.cfg.AllowedOutputAmounts.Min,
		d.cfg.AllowedOutputAmounts.Max)
	for _, denom := range all {
		if denom+cost <= available {
			denoms = append(denoms, denom)
		}
	}

	preferred := d.preferredDenominations(denoms, othersInputs, cost)

	var candidates [][]btcutil.Amount

	// Greedy over the preferred denominations, leaving a slot for change.
	if len(preferred) > 0 {
		greedy, err := NewGreedyDecomposer(preferred)
		if err != nil {
			return nil, err
		}

		outs := greedy.Decompose(available, cost)
		if len(outs) > maxOutputs {
			outs = outs[:maxOutputs]
		}
		candidates = append(candidates, outs)
		if len(outs) == maxOutputs && maxOutputs > 1 {
			candidates = append(candidates, outs[:maxOutputs-1])
		}
	}

	// Exhaustive search over the most preferred denominations.
	top := preferred
	if len(top) > possibleDenominations {
		top = top[:possibleDenominations]
	}
	if len(top) > 0 {
		possible := NewPossibleDecompositions(
			top, available, maxOutputs, possibleLimit,
		)
		found := possible.GetByTotalValue(
			available, available-d.cfg.AllowedOutputAmounts.Min,
			d.cfg.FeeRate, d.cfg.OutputType.OutputVsize(),
		)
		for i := 0; i < len(found) && i < 5; i++ {
			candidates = append(candidates, found[i].Outputs)
		}
	}

	// A lone change output is always a valid fallback.
	candidates = append(candidates, nil)

	// Value that ends up neither in a standard denomination nor in fees
	// is penalized, so the lone change output is only a last resort.
	var (
		best      []btcutil.Amount
		bestScore btcutil.Amount
	)
	for _, c := range candidates {
		outs, change := d.withChange(c, available, maxOutputs)
		if len(outs) == 0 {
			continue
		}

		loss := available - btcutil.Amount(len(outs))*cost
		for _, o := range outs {
			loss -= o
		}
		if loss < 0 {
			continue
		}

		score := loss + change
		if best == nil || score < bestScore ||
			(score == bestScore && len(outs) < len(best)) {

			best, bestScore = outs, score
		}
	}

	if best == nil {
		return nil, ErrAmountTooSmall
	}

	return best, nil
}

// preferredDenominations returns the denominations that appear at least
// twice when others' inputs are decomposed greedily. If none do, all
// denominations are returned.
func (d *AmountDecomposer) preferredDenominations(denoms,
	othersInputs []btcutil.Amount, cost btcutil.Amount) []btcutil.Amount {

	if len(denoms) == 0 {
		return nil
	}

	greedy, err := NewGreedyDecomposer(denoms)
	if err != nil {
		return denoms
	}
	counts := frequencies(greedy, othersInputs, cost)

	var preferred []btcutil.Amount
	for _, denom := range denoms {
		if counts[denom] >= 2 {
			preferred = append(preferred, denom)
		}
	}
	if len(preferred) == 0 {
		return denoms
	}

	return preferred
}

// withChange returns outs plus a change output for whatever remains, if
// there is room and the change would not be dust. The change value is
// returned as well, zero when none was added.
func (d *AmountDecomposer) withChange(outs []btcutil.Amount,
	available btcutil.Amount, maxOutputs int) ([]btcutil.Amount,
	btcutil.Amount) {

	cost := d.costPerOutput()
	remaining := available
	for _, o := range outs {
		remaining -= o + cost
	}

	result := append([]btcutil.Amount(nil), outs...)
	change := remaining - cost
	if len(result) >= maxOutputs || d.isDust(change) ||
		change > d.cfg.AllowedOutputAmounts.Max {

		change = 0
	} else {
		result = append(result, change)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i] > result[j]
	})

	return result, change
}
