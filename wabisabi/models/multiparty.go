// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package models

import (
	"bytes"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/btcutil/psbt"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/wallet/txrules"
	"github.com/btcsuite/wabisabi/pkg/unit"
)

// SharedOverhead is the vsize of the transaction fields not belonging to
// any input or output: version, locktime, counts and the segwit marker.
const SharedOverhead unit.VByte = 11

// Coin is a transaction output registered as an input.
type Coin struct {
	Outpoint wire.OutPoint
	TxOut    wire.TxOut
}

// Amount returns the value of the coin.
func (c *Coin) Amount() btcutil.Amount {
	return btcutil.Amount(c.TxOut.Value)
}

// ScriptType returns the script type of the coin; coins in a round are
// always of a known type.
func (c *Coin) ScriptType() ScriptType {
	t, _ := ScriptTypeOf(c.TxOut.PkScript)
	return t
}

// Event is a change of a coinjoin under construction.
type Event interface {
	event()
}

// RoundCreated is the first event of every coinjoin.
type RoundCreated struct {
	Parameters *RoundParameters
}

// InputAdded records a registered input.
type InputAdded struct {
	Coin           Coin
	OwnershipProof *OwnershipProof
}

// OutputAdded records a registered output.
type OutputAdded struct {
	Output wire.TxOut
}

func (RoundCreated) event() {}
func (InputAdded) event()   {}
func (OutputAdded) event()  {}

// MultipartyTransactionState is the state of a coinjoin: either a
// ConstructionState or a SigningState. States are immutable, every change
// returns a new state.
type MultipartyTransactionState interface {
	// Parameters returns the parameters of the round.
	Parameters() *RoundParameters

	// Events returns the events the state was built from.
	Events() []Event

	// Inputs returns the registered inputs.
	Inputs() []Coin

	// Outputs returns the registered outputs.
	Outputs() []wire.TxOut
}

// ConstructionState is a coinjoin accepting inputs and outputs.
type ConstructionState struct {
	params  *RoundParameters
	events  []Event
	inputs  []Coin
	outputs []wire.TxOut
}

// A compile time check to ensure both states implement
// MultipartyTransactionState.
var (
	_ MultipartyTransactionState = (*ConstructionState)(nil)
	_ MultipartyTransactionState = (*SigningState)(nil)
)

// NewConstructionState returns an empty coinjoin for params.
func NewConstructionState(params *RoundParameters) *ConstructionState {
	return &ConstructionState{
		params: params,
		events: []Event{RoundCreated{Parameters: params}},
	}
}

// Parameters returns the parameters of the round.
func (s *ConstructionState) Parameters() *RoundParameters { return s.params }

// Events returns the events the state was built from.
func (s *ConstructionState) Events() []Event { return s.events }

// Inputs returns the registered inputs in registration order.
func (s *ConstructionState) Inputs() []Coin { return s.inputs }

// Outputs returns the registered outputs in registration order.
func (s *ConstructionState) Outputs() []wire.TxOut { return s.outputs }

// apply returns a copy of s with e applied and recorded.
func (s *ConstructionState) apply(e Event) *ConstructionState {
	next := &ConstructionState{
		params:  s.params,
		events:  append(append([]Event(nil), s.events...), e),
		inputs:  s.inputs,
		outputs: s.outputs,
	}

	switch e := e.(type) {
	case InputAdded:
		next.inputs = append(append([]Coin(nil), s.inputs...), e.Coin)

	case OutputAdded:
		next.outputs = append(append([]wire.TxOut(nil), s.outputs...),
			e.Output)
	}

	return next
}

// AddInput validates and adds an input. commitmentData is what the
// ownership proof must commit to.
func (s *ConstructionState) AddInput(coin Coin, proof *OwnershipProof,
	commitmentData []byte) (*ConstructionState, error) {

	t, ok := ScriptTypeOf(coin.TxOut.PkScript)
	if !ok || !ContainsScriptType(s.params.AllowedInputTypes, t) {
		return nil, NewProtocolError(ErrScriptNotAllowed,
			"input script type not allowed")
	}

	amount := coin.Amount()
	switch {
	case amount < s.params.AllowedInputAmounts.Min:
		return nil, NewProtocolError(ErrNotEnoughFunds,
			"input amount %v below %v", amount,
			s.params.AllowedInputAmounts.Min)

	case amount > s.params.AllowedInputAmounts.Max:
		return nil, NewProtocolError(ErrTooMuchFunds,
			"input amount %v above %v", amount,
			s.params.AllowedInputAmounts.Max)
	}

	for _, in := range s.inputs {
		if in.Outpoint == coin.Outpoint {
			return nil, NewProtocolError(ErrNonUniqueInputs,
				"input %v already registered", coin.Outpoint)
		}
	}

	if len(s.inputs) >= s.params.MaxInputCountByRound {
		return nil, NewProtocolError(ErrTooManyInputs,
			"round already has %d inputs", len(s.inputs))
	}

	if proof == nil || !proof.Verify(coin.TxOut.PkScript, commitmentData) {
		return nil, NewProtocolError(ErrWrongOwnershipProof,
			"ownership proof of %v does not verify", coin.Outpoint)
	}

	return s.apply(InputAdded{Coin: coin, OwnershipProof: proof}), nil
}

// AddOutput validates and adds an output.
func (s *ConstructionState) AddOutput(out wire.TxOut) (*ConstructionState,
	error) {

	t, ok := ScriptTypeOf(out.PkScript)
	if !ok || !ContainsScriptType(s.params.AllowedOutputTypes, t) {
		return nil, NewProtocolError(ErrScriptNotAllowed,
			"output script type not allowed")
	}

	amount := btcutil.Amount(out.Value)
	switch {
	case amount < s.params.AllowedOutputAmounts.Min:
		return nil, NewProtocolError(ErrNotEnoughFunds,
			"output amount %v below %v", amount,
			s.params.AllowedOutputAmounts.Min)

	case amount > s.params.AllowedOutputAmounts.Max:
		return nil, NewProtocolError(ErrTooMuchFunds,
			"output amount %v above %v", amount,
			s.params.AllowedOutputAmounts.Max)
	}

	relayFee := s.params.MinRelayTxFee.FeeForVSize(1000)
	if txrules.IsDustOutput(&out, relayFee) {
		return nil, NewProtocolError(ErrNonStandardOutput,
			"output amount %v is dust", amount)
	}

	next := s.apply(OutputAdded{Output: out})
	if int64(next.EstimatedVsize()) > s.params.MaxTransactionSize {
		return nil, NewProtocolError(ErrSizeLimitExceeded,
			"transaction would exceed %d vbytes",
			s.params.MaxTransactionSize)
	}

	return next, nil
}

// Balance returns the value of the inputs minus the value of the outputs.
func (s *ConstructionState) Balance() btcutil.Amount {
	return balance(s.inputs, s.outputs)
}

// EstimatedVsize estimates the vsize of the signed transaction.
func (s *ConstructionState) EstimatedVsize() unit.VByte {
	return estimatedVsize(s.inputs, s.outputs)
}

// EffectiveFeeRate returns the fee rate the transaction pays if the
// balance is left to miners.
func (s *ConstructionState) EffectiveFeeRate() unit.SatPerKVByte {
	return unit.NewSatPerKVByte(s.Balance(), s.EstimatedVsize())
}

// Finalize fixes the inputs and outputs and orders them deterministically
// for signing.
func (s *ConstructionState) Finalize() *SigningState {
	inputs := append([]Coin(nil), s.inputs...)
	sort.SliceStable(inputs, func(i, j int) bool {
		a, b := &inputs[i], &inputs[j]
		if a.TxOut.Value != b.TxOut.Value {
			return a.TxOut.Value > b.TxOut.Value
		}
		if c := bytes.Compare(a.Outpoint.Hash[:], b.Outpoint.Hash[:]); c != 0 {
			return c < 0
		}
		return a.Outpoint.Index < b.Outpoint.Index
	})

	return &SigningState{
		params:    s.params,
		events:    s.events,
		inputs:    inputs,
		outputs:   mergeOutputs(s.outputs),
		witnesses: make(map[int]wire.TxWitness),
	}
}

// mergeOutputs sums outputs paying to the same script and orders them by
// value, then script.
func mergeOutputs(outputs []wire.TxOut) []wire.TxOut {
	byScript := make(map[string]int)
	merged := make([]wire.TxOut, 0, len(outputs))
	for _, out := range outputs {
		if i, ok := byScript[string(out.PkScript)]; ok {
			merged[i].Value += out.Value
			continue
		}
		byScript[string(out.PkScript)] = len(merged)
		merged = append(merged, out)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if merged[i].Value != merged[j].Value {
			return merged[i].Value > merged[j].Value
		}
		return bytes.Compare(merged[i].PkScript, merged[j].PkScript) < 0
	})

	return merged
}

func balance(inputs []Coin, outputs []wire.TxOut) btcutil.Amount {
	var total btcutil.Amount
	for i := range inputs {
		total += inputs[i].Amount()
	}
	for i := range outputs {
		total -= btcutil.Amount(outputs[i].Value)
	}

	return total
}

func estimatedVsize(inputs []Coin, outputs []wire.TxOut) unit.VByte {
	vsize := SharedOverhead
	for i := range inputs {
		vsize += inputs[i].ScriptType().InputVsize()
	}
	for i := range outputs {
		t, _ := ScriptTypeOf(outputs[i].PkScript)
		vsize += t.OutputVsize()
	}

	return vsize
}

// SigningState is a finalized coinjoin collecting witnesses.
type SigningState struct {
	params    *RoundParameters
	events    []Event
	inputs    []Coin
	outputs   []wire.TxOut
	witnesses map[int]wire.TxWitness
}

// Parameters returns the parameters of the round.
func (s *SigningState) Parameters() *RoundParameters { return s.params }

// Events returns the events the state was built from.
func (s *SigningState) Events() []Event { return s.events }

// Inputs returns the inputs in transaction order.
func (s *SigningState) Inputs() []Coin { return s.inputs }

// Outputs returns the merged outputs in transaction order.
func (s *SigningState) Outputs() []wire.TxOut { return s.outputs }

// Witnesses returns a copy of the witnesses collected so far by input
// index.
func (s *SigningState) Witnesses() map[int]wire.TxWitness {
	w := make(map[int]wire.TxWitness, len(s.witnesses))
	for k, v := range s.witnesses {
		w[k] = v
	}

	return w
}

// Balance returns the value of the inputs minus the value of the outputs.
func (s *SigningState) Balance() btcutil.Amount {
	return balance(s.inputs, s.outputs)
}

// EstimatedVsize estimates the vsize of the signed transaction.
func (s *SigningState) EstimatedVsize() unit.VByte {
	return estimatedVsize(s.inputs, s.outputs)
}

// EffectiveFeeRate returns the fee rate the transaction pays.
func (s *SigningState) EffectiveFeeRate() unit.SatPerKVByte {
	return unit.NewSatPerKVByte(s.Balance(), s.EstimatedVsize())
}

// InputIndex returns the transaction index of the input spending op.
func (s *SigningState) InputIndex(op wire.OutPoint) (int, bool) {
	for i := range s.inputs {
		if s.inputs[i].Outpoint == op {
			return i, true
		}
	}

	return 0, false
}

// IsInputSigned reports whether input i has a witness.
func (s *SigningState) IsInputSigned(i int) bool {
	_, ok := s.witnesses[i]
	return ok
}

// IsFullySigned reports whether every input has a witness.
func (s *SigningState) IsFullySigned() bool {
	return len(s.witnesses) == len(s.inputs)
}

// UnsignedInputs returns the inputs still missing a witness.
func (s *SigningState) UnsignedInputs() []Coin {
	var unsigned []Coin
	for i := range s.inputs {
		if !s.IsInputSigned(i) {
			unsigned = append(unsigned, s.inputs[i])
		}
	}

	return unsigned
}

// SignedInputs returns the inputs that have a witness.
func (s *SigningState) SignedInputs() []Coin {
	var signed []Coin
	for i := range s.inputs {
		if s.IsInputSigned(i) {
			signed = append(signed, s.inputs[i])
		}
	}

	return signed
}

// AddWitness records the witness of input index.
func (s *SigningState) AddWitness(index int,
	witness wire.TxWitness) (*SigningState, error) {

	if index < 0 || index >= len(s.inputs) {
		return nil, NewProtocolError(ErrWrongCoinjoinSignature,
			"input index %d out of range", index)
	}
	if s.IsInputSigned(index) {
		return nil, NewProtocolError(ErrWitnessAlreadyProvided,
			"input %d already signed", index)
	}

	next := *s
	next.witnesses = s.Witnesses()
	next.witnesses[index] = witness

	return &next, nil
}

// CreateUnsignedTransaction builds the coinjoin without witnesses.
func (s *SigningState) CreateUnsignedTransaction() *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	for i := range s.inputs {
		tx.AddTxIn(wire.NewTxIn(&s.inputs[i].Outpoint, nil, nil))
	}
	for i := range s.outputs {
		out := s.outputs[i]
		tx.AddTxOut(wire.NewTxOut(out.Value, out.PkScript))
	}

	return tx
}

// CreateTransaction builds the coinjoin with every witness collected so
// far.
func (s *SigningState) CreateTransaction() *wire.MsgTx {
	tx := s.CreateUnsignedTransaction()
	for i, w := range s.witnesses {
		tx.TxIn[i].Witness = w
	}

	return tx
}

// PrevOutputFetcher returns a fetcher for the outputs spent by the
// coinjoin.
func (s *SigningState) PrevOutputFetcher() *txscript.MultiPrevOutFetcher {
	prevOuts := make(map[wire.OutPoint]*wire.TxOut, len(s.inputs))
	for i := range s.inputs {
		out := s.inputs[i].TxOut
		prevOuts[s.inputs[i].Outpoint] = &out
	}

	return txscript.NewMultiPrevOutFetcher(prevOuts)
}

// VerifyWitness checks that witness satisfies the script of input index.
func (s *SigningState) VerifyWitness(index int,
	witness wire.TxWitness) error {

	if index < 0 || index >= len(s.inputs) {
		return NewProtocolError(ErrWrongCoinjoinSignature,
			"input index %d out of range", index)
	}

	tx := s.CreateUnsignedTransaction()
	tx.TxIn[index].Witness = witness

	fetcher := s.PrevOutputFetcher()
	sigHashes := txscript.NewTxSigHashes(tx, fetcher)
	prevOut := s.inputs[index].TxOut

	vm, err := txscript.NewEngine(prevOut.PkScript, tx, index,
		txscript.StandardVerifyFlags, nil, sigHashes, prevOut.Value,
		fetcher)
	if err != nil {
		return &ProtocolError{
			ErrorCode:     ErrWrongCoinjoinSignature,
			Description:   fmt.Sprintf("input %d", index),
			ExceptionData: EmptyExceptionData{},
			Err:           err,
		}
	}
	if err := vm.Execute(); err != nil {
		return &ProtocolError{
			ErrorCode:     ErrWrongCoinjoinSignature,
			Description:   fmt.Sprintf("input %d", index),
			ExceptionData: EmptyExceptionData{},
			Err:           err,
		}
	}

	return nil
}

// UnsignedPacket returns the coinjoin as a PSBT carrying the spent outputs,
// for signers that work on PSBTs.
func (s *SigningState) UnsignedPacket() (*psbt.Packet, error) {
	packet, err := psbt.NewFromUnsignedTx(s.CreateUnsignedTransaction())
	if err != nil {
		return nil, err
	}

	for i := range s.inputs {
		out := s.inputs[i].TxOut
		packet.Inputs[i].WitnessUtxo = &out
	}

	return packet, nil
}
