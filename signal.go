// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// interruptSignals defines the signals that are handled to do a clean
// shutdown.
var interruptSignals = []os.Signal{os.Interrupt, syscall.SIGTERM}

// shutdownListener listens for interrupt signals. It returns a context that
// is canceled when one is received.
func shutdownListener() context.Context {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		interruptChannel := make(chan os.Signal, 1)
		signal.Notify(interruptChannel, interruptSignals...)

		sig := <-interruptChannel
		log.Infof("Received signal (%s).  Shutting down...", sig)
		cancel()

		// Keep telling the user the shutdown is in progress.
		for sig := range interruptChannel {
			log.Infof("Received signal (%s).  Already shutting "+
				"down...", sig)
		}
	}()

	return ctx
}
