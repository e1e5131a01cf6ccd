// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package build holds the logging settings chosen at build time.
package build

import (
	"os"

	"github.com/btcsuite/btclog"
)

// LogType is an indicating the type of logging specified by the build flag.
type LogType byte

const (
	// LogTypeNone indicates no logging.
	LogTypeNone LogType = iota

	// LogTypeStdOut all logging is written directly to stdout.
	LogTypeStdOut

	// LogTypeDefault logs through the daemon's log backend.
	LogTypeDefault
)

// String returns a human readable identifier for the logging type.
func (t LogType) String() string {
	switch t {
	case LogTypeNone:
		return "none"
	case LogTypeStdOut:
		return "stdout"
	case LogTypeDefault:
		return "default"
	default:
		return "unknown"
	}
}

// NewSubLogger constructs a new subsystem log for the logging type the
// binary was built with. genSubLogger creates loggers on the daemon's
// backend; without it, logging is disabled.
func NewSubLogger(subsystem string,
	genSubLogger func(string) btclog.Logger) btclog.Logger {

	switch LoggingType {
	case LogTypeDefault:
		if genSubLogger != nil {
			return genSubLogger(subsystem)
		}

	// Logging to stdout is used in tests. The loggers do not share a
	// backend since all output is written to stdout anyway.
	case LogTypeStdOut:
		backend := btclog.NewBackend(os.Stdout)
		logger := backend.Logger(subsystem)

		level, _ := btclog.LevelFromString(LogLevel)
		logger.SetLevel(level)

		return logger
	}

	return btclog.Disabled
}
