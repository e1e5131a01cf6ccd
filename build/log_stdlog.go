// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

//go:build stdlog && !nolog

package build

// LoggingType is a log type that writes to stdout.
const LoggingType = LogTypeStdOut
