// Copyright (c) 2013-2015 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netparams

import (
	"fmt"

	"github.com/btcsuite/btcd/chaincfg"
)

// Params is used to group parameters for various networks such as the main
// network and test networks.
type Params struct {
	*chaincfg.Params

	// RPCClientPort is the default bitcoind RPC port of the network.
	RPCClientPort string

	// CoordinatorPort is the default port the coordinator listens on.
	CoordinatorPort string
}

// MainNetParams contains parameters specific running the coordinator and
// bitcoind on the main network (wire.MainNet).
var MainNetParams = Params{
	Params:          &chaincfg.MainNetParams,
	RPCClientPort:   "8332",
	CoordinatorPort: "37127",
}

// TestNet3Params contains parameters specific running the coordinator and
// bitcoind on the test network (version 3) (wire.TestNet3).
var TestNet3Params = Params{
	Params:          &chaincfg.TestNet3Params,
	RPCClientPort:   "18332",
	CoordinatorPort: "37128",
}

// TestNet4Params contains parameters specific running the coordinator and
// bitcoind on the test network (version 4).
var TestNet4Params = Params{
	Params:          &TestNet4ChainParams,
	RPCClientPort:   "48332",
	CoordinatorPort: "37130",
}

// RegressionNetParams contains parameters specific to the regression test
// network (wire.TestNet).
var RegressionNetParams = Params{
	Params:          &chaincfg.RegressionNetParams,
	RPCClientPort:   "18443",
	CoordinatorPort: "37129",
}

// SimNetParams contains parameters specific to the simulation test network
// (wire.SimNet).
var SimNetParams = Params{
	Params:          &chaincfg.SimNetParams,
	RPCClientPort:   "18556",
	CoordinatorPort: "37131",
}

// SigNetParams contains parameters specific to the default signet.
var SigNetParams = Params{
	Params:          &chaincfg.SigNetParams,
	RPCClientPort:   "38332",
	CoordinatorPort: "37132",
}

var allParams = []*Params{
	&MainNetParams, &TestNet3Params, &TestNet4Params,
	&RegressionNetParams, &SimNetParams, &SigNetParams,
}

// ByName returns the parameters of the network with the given name.
func ByName(name string) (*Params, error) {
	for _, p := range allParams {
		if p.Name == name {
			return p, nil
		}
	}

	return nil, fmt.Errorf("unknown network %q", name)
}
