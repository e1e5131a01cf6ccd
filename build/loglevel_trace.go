// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build !nolog && trace

package build

// LogLevel specifies the default log level.
var LogLevel = "trace"
