// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package graph plans how credentials flow from the inputs of a
// participant to its outputs when every request may present and receive
// at most K credentials of each type.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/btcsuite/wabisabi/wabisabi"
)

// K is the number of credentials of each type every request presents and
// receives.
const K = wabisabi.NumberOfCredentials

var (
	// ErrNegativeValue is returned when an input or output value is
	// negative.
	ErrNegativeValue = errors.New("negative value")

	// ErrWrongDimension is returned when a node does not have a value
	// for every credential type.
	ErrWrongDimension = errors.New("wrong number of credential values")

	// ErrInsufficientInputs is returned when the outputs need more of a
	// credential type than the inputs provide.
	ErrInsufficientInputs = errors.New("outputs exceed inputs")
)

// CredentialType is a kind of credential.
type CredentialType int

// The credential types of a round.
const (
	CredentialTypeAmount CredentialType = iota
	CredentialTypeVsize

	numCredentialTypes
)

// CredentialTypes lists every credential type.
var CredentialTypes = []CredentialType{
	CredentialTypeAmount, CredentialTypeVsize,
}

// String returns the credential type name.
func (t CredentialType) String() string {
	switch t {
	case CredentialTypeAmount:
		return "Amount"
	case CredentialTypeVsize:
		return "Vsize"
	default:
		return fmt.Sprintf("Unknown CredentialType (%d)", int(t))
	}
}

// NodeKind is the request a node stands for.
type NodeKind int

// The kinds of requests.
const (
	// NodeInput is an input registration. It receives no credentials
	// and issues its value.
	NodeInput NodeKind = iota

	// NodeOutput is an output registration. It presents K credentials
	// of each type and issues none.
	NodeOutput

	// NodeReissuance presents K credentials of each type and issues new
	// ones of the same total value.
	NodeReissuance

	// NodeNullReissuance presents nothing and issues zero value
	// credentials only.
	NodeNullReissuance
)

// String returns the node kind name.
func (k NodeKind) String() string {
	switch k {
	case NodeInput:
		return "Input"
	case NodeOutput:
		return "Output"
	case NodeReissuance:
		return "Reissuance"
	case NodeNullReissuance:
		return "NullReissuance"
	default:
		return fmt.Sprintf("Unknown NodeKind (%d)", int(k))
	}
}

// RequestNode is one request of the plan.
type RequestNode struct {
	ID   int
	Kind NodeKind

	// Index is the position of an input or output node among the
	// inputs or outputs the graph was resolved for.
	Index int

	// initial is the value an input provides, or the negated value an
	// output needs, per credential type.
	initial [numCredentialTypes]int64
}

// Value returns the value an input provides or an output needs of type
// t.
func (n *RequestNode) Value(t CredentialType) int64 {
	if n.initial[t] < 0 {
		return -n.initial[t]
	}
	return n.initial[t]
}

// maxInDegree is the number of credentials of each type the node's
// request presents.
func (n *RequestNode) maxInDegree() int {
	switch n.Kind {
	case NodeOutput, NodeReissuance:
		return K
	default:
		return 0
	}
}

// maxOutDegree is the number of credentials of each type the node's
// request receives.
func (n *RequestNode) maxOutDegree() int {
	if n.Kind == NodeOutput {
		return 0
	}
	return K
}

// String returns a short description of the node.
func (n *RequestNode) String() string {
	return fmt.Sprintf("%v#%d", n.Kind, n.ID)
}

// CredentialDependency is a credential issued by one request and
// presented by another.
type CredentialDependency struct {
	From  *RequestNode
	To    *RequestNode
	Type  CredentialType
	Value int64
}

// DependencyGraph is a plan of requests whose credentials flow along its
// edges. It has no cycles.
type DependencyGraph struct {
	Vertices []*RequestNode

	edges [numCredentialTypes][]*CredentialDependency
}

func (g *DependencyGraph) addNode(kind NodeKind, index int,
	initial [numCredentialTypes]int64) *RequestNode {

	n := &RequestNode{
		ID:      len(g.Vertices),
		Kind:    kind,
		Index:   index,
		initial: initial,
	}
	g.Vertices = append(g.Vertices, n)

	return n
}

func (g *DependencyGraph) addEdge(from, to *RequestNode, t CredentialType,
	value int64) {

	g.edges[t] = append(g.edges[t], &CredentialDependency{
		From:  from,
		To:    to,
		Type:  t,
		Value: value,
	})
}

// Nodes returns the nodes of kind in order.
func (g *DependencyGraph) Nodes(kind NodeKind) []*RequestNode {
	var nodes []*RequestNode
	for _, n := range g.Vertices {
		if n.Kind == kind {
			nodes = append(nodes, n)
		}
	}

	return nodes
}

// Edges returns every edge of type t.
func (g *DependencyGraph) Edges(t CredentialType) []*CredentialDependency {
	return g.edges[t]
}

// InEdges returns the credentials of type t n presents.
func (g *DependencyGraph) InEdges(n *RequestNode,
	t CredentialType) []*CredentialDependency {

	var edges []*CredentialDependency
	for _, e := range g.edges[t] {
		if e.To == n {
			edges = append(edges, e)
		}
	}

	return edges
}

// OutEdges returns the credentials of type t n issues to other requests.
func (g *DependencyGraph) OutEdges(n *RequestNode,
	t CredentialType) []*CredentialDependency {

	var edges []*CredentialDependency
	for _, e := range g.edges[t] {
		if e.From == n {
			edges = append(edges, e)
		}
	}

	return edges
}

// Balance returns what n holds of type t: its initial value plus what it
// is presented minus what it issues to other requests.
func (g *DependencyGraph) Balance(n *RequestNode, t CredentialType) int64 {
	balance := n.initial[t]
	for _, e := range g.edges[t] {
		if e.To == n {
			balance += e.Value
		}
		if e.From == n {
			balance -= e.Value
		}
	}

	return balance
}

func (g *DependencyGraph) remainingInDegree(n *RequestNode,
	t CredentialType) int {

	return n.maxInDegree() - len(g.InEdges(n, t))
}

func (g *DependencyGraph) remainingOutDegree(n *RequestNode,
	t CredentialType) int {

	return n.maxOutDegree() - len(g.OutEdges(n, t))
}

// ResolveCredentialDependencies plans the requests turning inputs into
// outputs. Every input and output has one value per credential type.
func ResolveCredentialDependencies(inputs,
	outputs [][]int64) (*DependencyGraph, error) {

	var sums [numCredentialTypes]int64
	g := &DependencyGraph{}
	for _, nodes := range []struct {
		kind   NodeKind
		values [][]int64
		sign   int64
	}{
		{NodeInput, inputs, 1},
		{NodeOutput, outputs, -1},
	} {
		for i, values := range nodes.values {
			if len(values) != int(numCredentialTypes) {
				return nil, fmt.Errorf("%v %d: %w", nodes.kind,
					i, ErrWrongDimension)
			}

			var initial [numCredentialTypes]int64
			for t, v := range values {
				if v < 0 {
					return nil, fmt.Errorf("%v %d: %w",
						nodes.kind, i, ErrNegativeValue)
				}
				initial[t] = nodes.sign * v
				sums[t] += nodes.sign * v
			}
			g.addNode(nodes.kind, i, initial)
		}
	}
	for _, t := range CredentialTypes {
		if sums[t] < 0 {
			return nil, fmt.Errorf("%v credentials: %w", t,
				ErrInsufficientInputs)
		}
	}

	for _, t := range CredentialTypes {
		g.resolveCredentials(t)
	}
	g.resolveZeroCredentials()

	return g, nil
}

// balanced is a node and its balance of one credential type.
type balanced struct {
	node    *RequestNode
	balance int64
}

// positives returns the nodes that can still issue value of type t,
// largest balance first. Of equal balances the node with more credentials
// left to issue comes first.
func (g *DependencyGraph) positives(t CredentialType) []balanced {
	var nodes []balanced
	for _, n := range g.Vertices {
		b := g.Balance(n, t)
		if b > 0 && g.remainingOutDegree(n, t) > 0 {
			nodes = append(nodes, balanced{n, b})
		}
	}
	sort.SliceStable(nodes, func(i, j int) bool {
		if nodes[i].balance != nodes[j].balance {
			return nodes[i].balance > nodes[j].balance
		}
		return g.remainingOutDegree(nodes[i].node, t) >
			g.remainingOutDegree(nodes[j].node, t)
	})

	return nodes
}

// largestNegative returns the node missing the most value of type t.
func (g *DependencyGraph) largestNegative(t CredentialType) (balanced,
	bool) {

	var (
		largest balanced
		found   bool
	)
	for _, n := range g.Vertices {
		b := g.Balance(n, t)
		if b < 0 && (!found || b < largest.balance) {
			largest = balanced{n, b}
			found = true
		}
	}

	return largest, found
}

// cover returns the positive that can pay need of type t with a single
// credential and keep a credential for what it has left. An exact match
// is preferred, then the smallest balance that suffices.
func (g *DependencyGraph) cover(positives []balanced, need int64,
	t CredentialType) (*RequestNode, bool) {

	var best *balanced
	for i := range positives {
		p := &positives[i]
		switch {
		case p.balance == need:
			return p.node, true

		case p.balance < need:
			continue

		case g.remainingOutDegree(p.node, t) < 2:
			continue
		}

		if best == nil || p.balance < best.balance {
			best = p
		}
	}
	if best == nil {
		return nil, false
	}

	return best.node, true
}

// resolveCredentials adds edges of type t until no node misses value.
// The node missing the most is served first.
func (g *DependencyGraph) resolveCredentials(t CredentialType) {
	for {
		neg, ok := g.largestNegative(t)
		if !ok {
			return
		}
		need := -neg.balance

		positives := g.positives(t)
		if p, ok := g.cover(positives, need, t); ok {
			g.addEdge(p, neg.node, t, need)
			continue
		}

		// With a slot to spare the largest holder that fits is drained
		// into the node.
		if g.remainingInDegree(neg.node, t) > 1 {
			drained := false
			for _, p := range positives {
				if p.balance < need {
					g.addEdge(p.node, neg.node, t, p.balance)
					drained = true
					break
				}
			}
			if drained {
				continue
			}
		}

		// Otherwise a reissuance splits the credential of a holder
		// that has no slot left to keep its change, or combines the
		// largest holders, and pays the node when it can.
		r := g.addNode(NodeReissuance, -1, [numCredentialTypes]int64{})
		var combined int64
		if positives[0].balance >= need {
			g.addEdge(positives[0].node, r, t, positives[0].balance)
			combined = positives[0].balance
		} else {
			for _, p := range positives {
				if len(g.InEdges(r, t)) == K || combined >= need {
					break
				}
				g.addEdge(p.node, r, t, p.balance)
				combined += p.balance
			}
		}
		if combined >= need {
			g.addEdge(r, neg.node, t, need)
		}
	}
}

// canIssueZero reports whether n can give away a zero value credential of
// type t without being left with value and no credential to hold it.
func (g *DependencyGraph) canIssueZero(n *RequestNode,
	t CredentialType) bool {

	remaining := g.remainingOutDegree(n, t)
	if remaining == 0 {
		return false
	}

	return remaining > 1 || g.Balance(n, t) == 0
}

// depth returns the number of requests on the longest chain of
// credentials ending at n, n included.
func (g *DependencyGraph) depth(n *RequestNode,
	memo map[*RequestNode]int) int {

	if d, ok := memo[n]; ok {
		return d
	}

	d := 1
	for _, t := range CredentialTypes {
		for _, e := range g.InEdges(n, t) {
			d = max(d, g.depth(e.From, memo)+1)
		}
	}
	memo[n] = d

	return d
}

// resolveZeroCredentials completes every request with zero value
// credentials so each presents exactly K of every type. Spare credentials
// of the inputs are used first, then those of the reissuances, and null
// reissuances are added only when neither has any left.
func (g *DependencyGraph) resolveZeroCredentials() {
	var nulls []*RequestNode
	for _, t := range CredentialTypes {
		for _, n := range g.Vertices {
			for g.remainingInDegree(n, t) > 0 {
				source := g.zeroSource(n, t, nulls)
				if source == nil {
					source = g.addNode(NodeNullReissuance, -1,
						[numCredentialTypes]int64{})
					nulls = append(nulls, source)
				}
				g.addEdge(source, n, t, 0)
			}
		}
	}
}

// zeroSource returns a request able to issue a zero value credential of
// type t to n. A reissuance qualifies only when it comes earlier in every
// chain than n, so n does not wait longer and the plan stays acyclic. Of
// those the shallowest is picked.
func (g *DependencyGraph) zeroSource(n *RequestNode, t CredentialType,
	nulls []*RequestNode) *RequestNode {

	for _, source := range g.Vertices {
		if source.Kind == NodeInput && g.canIssueZero(source, t) {
			return source
		}
	}

	var (
		memo      = make(map[*RequestNode]int)
		maxDepth  = g.depth(n, memo)
		best      *RequestNode
		bestDepth int
	)
	for _, source := range g.Vertices {
		if source.Kind != NodeReissuance || !g.canIssueZero(source, t) {
			continue
		}

		d := g.depth(source, memo)
		if d >= maxDepth || (best != nil && d >= bestDepth) {
			continue
		}
		best, bestDepth = source, d
	}
	if best != nil {
		return best
	}

	for _, source := range nulls {
		if g.canIssueZero(source, t) {
			return source
		}
	}

	return nil
}
