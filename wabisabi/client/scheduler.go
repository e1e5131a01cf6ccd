// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package client

import (
	"context"
	"fmt"

	"github.com/btcsuite/wabisabi/wabisabi"
	"github.com/btcsuite/wabisabi/wabisabi/client/graph"
	"golang.org/x/sync/errgroup"
)

// credentialPromise is a credential one request hands to another once it
// was issued.
type credentialPromise struct {
	done chan struct{}
	cred *wabisabi.Credential
}

func newCredentialPromise() *credentialPromise {
	return &credentialPromise{done: make(chan struct{})}
}

func (p *credentialPromise) resolve(cred *wabisabi.Credential) {
	p.cred = cred
	close(p.done)
}

func (p *credentialPromise) wait(
	ctx context.Context) (*wabisabi.Credential, error) {

	select {
	case <-p.done:
		return p.cred, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OutputRegistrationError is the failure of one output registration.
type OutputRegistrationError struct {
	Index  int
	Script []byte
	Err    error
}

// Error returns the output and why it failed.
func (e *OutputRegistrationError) Error() string {
	return fmt.Sprintf("output %d: %v", e.Index, e.Err)
}

// Unwrap returns the registration error.
func (e *OutputRegistrationError) Unwrap() error {
	return e.Err
}

// DependencyGraphTaskScheduler runs the requests of a credential
// dependency graph, each as soon as the credentials it presents are
// issued.
type DependencyGraphTaskScheduler struct {
	graph    *graph.DependencyGraph
	promises map[*graph.CredentialDependency]*credentialPromise
}

// NewDependencyGraphTaskScheduler returns a scheduler for g.
func NewDependencyGraphTaskScheduler(
	g *graph.DependencyGraph) *DependencyGraphTaskScheduler {

	s := &DependencyGraphTaskScheduler{
		graph:    g,
		promises: make(map[*graph.CredentialDependency]*credentialPromise),
	}
	for _, t := range graph.CredentialTypes {
		for _, e := range g.Edges(t) {
			s.promises[e] = newCredentialPromise()
		}
	}

	return s
}

// awaitInputs waits for the credentials node presents.
func (s *DependencyGraphTaskScheduler) awaitInputs(ctx context.Context,
	node *graph.RequestNode) (Credentials, error) {

	var creds Credentials
	for _, t := range graph.CredentialTypes {
		for _, e := range s.graph.InEdges(node, t) {
			cred, err := s.promises[e].wait(ctx)
			if err != nil {
				return Credentials{}, err
			}
			if t == graph.CredentialTypeAmount {
				creds.Amount = append(creds.Amount, cred)
			} else {
				creds.Vsize = append(creds.Vsize, cred)
			}
		}
	}

	return creds, nil
}

// requested returns the values node requests of type t: one per out
// edge, followed by what it keeps when it has a credential to spare.
func (s *DependencyGraphTaskScheduler) requested(node *graph.RequestNode,
	t graph.CredentialType) []int64 {

	edges := s.graph.OutEdges(node, t)
	values := make([]int64, 0, K)
	for _, e := range edges {
		values = append(values, e.Value)
	}
	if len(values) < K {
		if balance := s.graph.Balance(node, t); balance > 0 {
			values = append(values, balance)
		}
	}

	return values
}

// fulfill hands the credentials issued to node to its dependents. The
// i-th credential of a type goes to the i-th out edge of that type.
func (s *DependencyGraphTaskScheduler) fulfill(node *graph.RequestNode,
	issued Credentials) error {

	for _, t := range graph.CredentialTypes {
		creds := issued.Amount
		if t == graph.CredentialTypeVsize {
			creds = issued.Vsize
		}

		edges := s.graph.OutEdges(node, t)
		if len(creds) < len(edges) {
			return fmt.Errorf("%v: %d %v credentials for %d "+
				"dependents", node, len(creds), t, len(edges))
		}
		for i, e := range edges {
			if creds[i].Value != e.Value {
				return fmt.Errorf("%v: credential of %d for "+
					"dependency of %d", node, creds[i].Value,
					e.Value)
			}
			s.promises[e].resolve(creds[i])
		}
	}

	return nil
}

// matchCredentials orders held so that it starts with credentials of
// values. It fails if held lacks one of them.
func matchCredentials(held []*wabisabi.Credential,
	values []int64) ([]*wabisabi.Credential, bool) {

	used := make([]bool, len(held))
	ordered := make([]*wabisabi.Credential, 0, len(held))
	for _, v := range values {
		found := false
		for i, c := range held {
			if !used[i] && c.Value == v {
				used[i] = true
				ordered = append(ordered, c)
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	for i, c := range held {
		if !used[i] {
			ordered = append(ordered, c)
		}
	}

	return ordered, true
}

// runInput hands an Alice's real credentials to the requests depending
// on them, reissuing them first when they do not have the values the
// graph planned.
func (s *DependencyGraphTaskScheduler) runInput(ctx context.Context,
	node *graph.RequestNode, alice *AliceClient, bob *BobClient) error {

	held, err := alice.Credentials()
	if err != nil {
		return err
	}

	amounts := s.requested(node, graph.CredentialTypeAmount)
	vsizes := s.requested(node, graph.CredentialTypeVsize)

	amountCreds, okAmount := matchCredentials(held.Amount, amounts)
	vsizeCreds, okVsize := matchCredentials(held.Vsize, vsizes)
	if okAmount && okVsize {
		return s.fulfill(node, Credentials{
			Amount: amountCreds,
			Vsize:  vsizeCreds,
		})
	}

	issued, err := bob.Reissue(ctx, amounts, vsizes, held)
	if err != nil {
		return err
	}

	return s.fulfill(node, issued)
}

// runReissuance exchanges the credentials a reissuance node is presented
// for the ones its dependents need.
func (s *DependencyGraphTaskScheduler) runReissuance(ctx context.Context,
	node *graph.RequestNode, bob *BobClient) error {

	presented, err := s.awaitInputs(ctx, node)
	if err != nil {
		return err
	}

	issued, err := bob.Reissue(ctx,
		s.requested(node, graph.CredentialTypeAmount),
		s.requested(node, graph.CredentialTypeVsize), presented)
	if err != nil {
		return err
	}

	return s.fulfill(node, issued)
}

// runNullReissuance obtains zero value credentials for the nodes that
// lack them.
func (s *DependencyGraphTaskScheduler) runNullReissuance(
	ctx context.Context, node *graph.RequestNode, bob *BobClient) error {

	issued, err := bob.RequestZeroCredentials(ctx)
	if err != nil {
		return err
	}

	return s.fulfill(node, issued)
}

// Run executes every request of the graph. Input node i spends the
// credentials of alices[i], output node i registers scripts[i]. A failed
// request cancels the others. Failed output registrations are reported
// individually, indexed like scripts.
func (s *DependencyGraphTaskScheduler) Run(ctx context.Context,
	alices []*AliceClient, bob *BobClient,
	scripts [][]byte) ([]error, error) {

	if n := len(s.graph.Nodes(graph.NodeInput)); n != len(alices) {
		return nil, fmt.Errorf("graph has %d inputs, %d alices", n,
			len(alices))
	}
	if n := len(s.graph.Nodes(graph.NodeOutput)); n != len(scripts) {
		return nil, fmt.Errorf("graph has %d outputs, %d scripts", n,
			len(scripts))
	}

	outputErrs := make([]error, len(scripts))

	g, gctx := errgroup.WithContext(ctx)
	for _, node := range s.graph.Vertices {
		node := node

		g.Go(func() error {
			switch node.Kind {
			case graph.NodeInput:
				return s.runInput(gctx, node,
					alices[node.Index], bob)

			case graph.NodeReissuance:
				return s.runReissuance(gctx, node, bob)

			case graph.NodeNullReissuance:
				return s.runNullReissuance(gctx, node, bob)
			}

			presented, err := s.awaitInputs(gctx, node)
			if err != nil {
				return err
			}
			err = bob.RegisterOutput(gctx, scripts[node.Index],
				presented)
			if err != nil {
				err = &OutputRegistrationError{
					Index:  node.Index,
					Script: scripts[node.Index],
					Err:    err,
				}
				outputErrs[node.Index] = err
			}

			return err
		})
	}

	return outputErrs, g.Wait()
}
