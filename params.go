// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import "github.com/btcsuite/wabisabi/netparams"

// activeNet is the network rounds are coordinated on. It is selected by
// the network flags on startup.
var activeNet = &netparams.MainNetParams
