// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package graph

import (
	"testing"

	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/davecgh/go-spew/spew"
	"github.com/stretchr/testify/require"
)

// requireReissuancesIssue checks that every reissuance passes value on to
// another request.
func requireReissuancesIssue(t *testing.T, g *DependencyGraph) {
	t.Helper()

	for _, n := range g.Nodes(NodeReissuance) {
		var issued int64
		for _, ct := range CredentialTypes {
			for _, e := range g.OutEdges(n, ct) {
				issued += e.Value
			}
		}
		require.Positive(t, issued, "%v issues nothing", n)
	}
}

// TestResolveLiteralCases checks the size of the plans of small inputs
// and outputs.
func TestResolveLiteralCases(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name     string
		inputs   [][]int64
		outputs  [][]int64
		vertices int
	}{
		{
			name:     "one to one",
			inputs:   [][]int64{{1, 1}},
			outputs:  [][]int64{{1, 1}},
			vertices: 2,
		},
		{
			name:     "one to three",
			inputs:   [][]int64{{3, 3}},
			outputs:  [][]int64{{1, 1}, {1, 1}, {1, 1}},
			vertices: 8,
		},
		{
			name:     "two to one",
			inputs:   [][]int64{{1, 1}, {1, 1}},
			outputs:  [][]int64{{2, 2}},
			vertices: 3,
		},
		{
			name:     "one to two",
			inputs:   [][]int64{{2, 2}},
			outputs:  [][]int64{{1, 1}, {1, 1}},
			vertices: 4,
		},
		{
			name:     "leftover value",
			inputs:   [][]int64{{10, 10}},
			outputs:  [][]int64{{3, 3}},
			vertices: 3,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			g, err := ResolveCredentialDependencies(tc.inputs,
				tc.outputs)
			require.NoError(t, err)
			require.NoError(t, g.Validate(), spew.Sdump(g))
			require.Len(t, g.Vertices, tc.vertices, spew.Sdump(g))
			requireReissuancesIssue(t, g)
			require.Len(t, g.Nodes(NodeInput), len(tc.inputs))
			require.Len(t, g.Nodes(NodeOutput), len(tc.outputs))

			for _, out := range g.Nodes(NodeOutput) {
				for _, ct := range CredentialTypes {
					require.Zero(t, g.Balance(out, ct))
				}
			}
		})
	}
}

// TestResolveErrors checks the inputs and outputs that cannot be
// planned.
func TestResolveErrors(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name    string
		inputs  [][]int64
		outputs [][]int64
		err     error
	}{
		{
			name:    "negative",
			inputs:  [][]int64{{-1, 1}},
			outputs: [][]int64{{1, 1}},
			err:     ErrNegativeValue,
		},
		{
			name:    "dimension",
			inputs:  [][]int64{{1}},
			outputs: [][]int64{{1, 1}},
			err:     ErrWrongDimension,
		},
		{
			name:    "amount exceeded",
			inputs:  [][]int64{{1, 5}},
			outputs: [][]int64{{2, 1}},
			err:     ErrInsufficientInputs,
		},
		{
			name:    "vsize exceeded",
			inputs:  [][]int64{{5, 1}},
			outputs: [][]int64{{2, 2}},
			err:     ErrInsufficientInputs,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := ResolveCredentialDependencies(tc.inputs,
				tc.outputs)
			require.ErrorIs(t, err, tc.err)
		})
	}
}

// TestResolveRandom checks the plan invariants for many combinations of
// input and output counts and values.
func TestResolveRandom(t *testing.T) {
	t.Parallel()

	rnd := randomness.NewInsecureRandomFromSeed(42)
	for nIn := 1; nIn <= 8; nIn++ {
		for nOut := 1; nOut <= 8; nOut++ {
			inputs := make([][]int64, nIn)
			var total [numCredentialTypes]int64
			for i := range inputs {
				inputs[i] = []int64{
					int64(rnd.GetInt(nOut, 1_000_000)),
					int64(rnd.GetInt(nOut, 255)),
				}
				total[0] += inputs[i][0]
				total[1] += inputs[i][1]
			}

			// Spread at most the total over the outputs.
			outputs := make([][]int64, nOut)
			for i := range outputs {
				outputs[i] = []int64{
					int64(rnd.GetInt(1, int(total[0])/nOut+1)),
					int64(rnd.GetInt(1, int(total[1])/nOut+1)),
				}
			}

			g, err := ResolveCredentialDependencies(inputs, outputs)
			require.NoError(t, err)
			require.NoError(t, g.Validate(), "%d inputs %d outputs",
				nIn, nOut)
			requireReissuancesIssue(t, g)
		}
	}
}

// TestResolveSplitsInParallel checks that two inputs paying five equal
// outputs split their value without idle or deeply chained requests.
func TestResolveSplitsInParallel(t *testing.T) {
	t.Parallel()

	inputs := [][]int64{{50_000_000, 255}, {50_000_000, 255}}
	outputs := make([][]int64, 5)
	for i := range outputs {
		outputs[i] = []int64{19_000_000, 31}
	}

	g, err := ResolveCredentialDependencies(inputs, outputs)
	require.NoError(t, err)
	require.NoError(t, g.Validate(), spew.Sdump(g))
	requireReissuancesIssue(t, g)

	require.Len(t, g.Nodes(NodeReissuance), 6)
	require.Len(t, g.Nodes(NodeNullReissuance), 5)

	memo := make(map[*RequestNode]int)
	for _, n := range g.Vertices {
		require.LessOrEqual(t, g.depth(n, memo), 4, "%v", n)
	}
}

// TestPositivesPreferSpareCredentials checks that of two holders of the
// same value the one with more credentials left to issue pays first.
func TestPositivesPreferSpareCredentials(t *testing.T) {
	t.Parallel()

	g := &DependencyGraph{}
	spent := g.addNode(NodeInput, 0, [numCredentialTypes]int64{10, 0})
	out := g.addNode(NodeOutput, 0, [numCredentialTypes]int64{-5, 0})
	g.addEdge(spent, out, CredentialTypeAmount, 5)
	fresh := g.addNode(NodeInput, 1, [numCredentialTypes]int64{5, 0})

	positives := g.positives(CredentialTypeAmount)
	require.Len(t, positives, 2)
	require.Equal(t, fresh, positives[0].node)
	require.Equal(t, spent, positives[1].node)

	// A holder on its last credential covers a smaller need only
	// through a split.
	node, ok := g.cover(positives[1:], 3, CredentialTypeAmount)
	require.False(t, ok)
	require.Nil(t, node)

	node, ok = g.cover(positives, 3, CredentialTypeAmount)
	require.True(t, ok)
	require.Equal(t, fresh, node)
}
