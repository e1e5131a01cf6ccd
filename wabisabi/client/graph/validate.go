// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package graph

import "fmt"

// Validate checks that every request presents and receives a valid
// number of credentials and that no request gives away more than it
// holds.
func (g *DependencyGraph) Validate() error {
	for _, t := range CredentialTypes {
		for _, e := range g.edges[t] {
			if e.Value < 0 {
				return fmt.Errorf("%v edge %v -> %v has negative "+
					"value %d", t, e.From, e.To, e.Value)
			}
		}

		for _, n := range g.Vertices {
			in := len(g.InEdges(n, t))
			out := len(g.OutEdges(n, t))
			balance := g.Balance(n, t)

			switch {
			case in != n.maxInDegree():
				return fmt.Errorf("%v presents %d %v credentials, "+
					"expected %d", n, in, t, n.maxInDegree())

			case out > n.maxOutDegree():
				return fmt.Errorf("%v issues %d %v credentials, "+
					"at most %d allowed", n, out, t,
					n.maxOutDegree())

			case balance < 0:
				return fmt.Errorf("%v has negative %v balance %d",
					n, t, balance)

			case out == K && balance != 0:
				return fmt.Errorf("%v issues all %v credentials "+
					"but keeps %d", n, t, balance)

			case n.Kind == NodeNullReissuance && out > 0 &&
				g.hasValue(n, t):

				return fmt.Errorf("%v issues value", n)
			}
		}
	}

	return g.checkAcyclic()
}

// hasValue reports whether n issues a non-zero credential of type t.
func (g *DependencyGraph) hasValue(n *RequestNode, t CredentialType) bool {
	for _, e := range g.OutEdges(n, t) {
		if e.Value != 0 {
			return true
		}
	}

	return false
}

// checkAcyclic verifies that the requests can be ordered so each only
// presents credentials issued before it.
func (g *DependencyGraph) checkAcyclic() error {
	const (
		unvisited = iota
		visiting
		done
	)

	state := make([]int, len(g.Vertices))
	var visit func(n *RequestNode) error
	visit = func(n *RequestNode) error {
		switch state[n.ID] {
		case visiting:
			return fmt.Errorf("cycle through %v", n)
		case done:
			return nil
		}

		state[n.ID] = visiting
		for _, t := range CredentialTypes {
			for _, e := range g.OutEdges(n, t) {
				if err := visit(e.To); err != nil {
					return err
				}
			}
		}
		state[n.ID] = done

		return nil
	}

	for _, n := range g.Vertices {
		if err := visit(n); err != nil {
			return err
		}
	}

	return nil
}
