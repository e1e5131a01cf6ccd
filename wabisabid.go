// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcwallet/walletdb"
	"github.com/btcsuite/wabisabi/chain"
	"github.com/btcsuite/wabisabi/crypto/randomness"
	"github.com/btcsuite/wabisabi/internal/cfgutil"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/btcsuite/wabisabi/wabisabi/transport"

	// Register the bolt database driver under name "bdb".
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
)

var (
	cfg *config
)

func main() {
	// Work around defer not working after os.Exit.
	if err := wabisabiMain(); err != nil {
		os.Exit(1)
	}
}

// wabisabiMain is a work-around main function that is required since
// deferred functions (such as log flushing) are not called with calls to
// os.Exit.  Instead, main runs this function and checks for a non-nil error,
// at which point any defers have already run, and if the error is non-nil,
// the program can be exited with an error exit status.
func wabisabiMain() error {
	// Load configuration and parse command line.  This function also
	// sets the log levels of all subsystems.
	tcfg, err := loadConfig(os.Args[1:])
	if err != nil {
		return err
	}
	cfg = tcfg
	activeNet = cfg.params

	logFile := filepath.Join(cfg.LogDir, defaultLogFilename)
	if err := initLogRotator(logFile); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	defer func() {
		if logRotator != nil {
			logRotator.Close()
		}
	}()

	log.Infof("Version %s", version())

	policy, err := cfg.coordinatorConfig()
	if err != nil {
		log.Errorf("%v", err)
		return err
	}

	ctx := shutdownListener()

	netDir := cfg.netDir()
	if err := os.MkdirAll(netDir, 0700); err != nil {
		log.Errorf("Unable to create data directory: %v", err)
		return err
	}

	db, err := openPrisonDB(cfg.prisonDBPath(), cfg.DBTimeout)
	if err != nil {
		log.Errorf("Unable to open prison database: %v", err)
		return err
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Errorf("Unable to close prison database: %v", err)
		}
	}()

	prison, err := coordinator.NewPrison(db, policy.ReleaseUTXOFromPrisonAfter,
		policy.ReleaseUTXOFromPrisonAfterLongBan)
	if err != nil {
		log.Errorf("Unable to load prison: %v", err)
		return err
	}

	coinJoinIDs, err := coordinator.OpenCoinJoinIDStore(ctx,
		cfg.CoinJoinDBDriver, cfg.coinJoinDSN())
	if err != nil {
		log.Errorf("Unable to open coinjoin database: %v", err)
		return err
	}
	defer func() {
		if err := coinJoinIDs.Close(); err != nil {
			log.Errorf("Unable to close coinjoin database: %v", err)
		}
	}()

	rpc, err := startChainClient()
	if err != nil {
		log.Errorf("Unable to connect to bitcoind: %v", err)
		return err
	}
	defer rpc.Stop()

	arena, err := coordinator.NewArena(coordinator.ArenaConfig{
		Config:      policy,
		RPC:         rpc,
		Prison:      prison,
		CoinJoinIDs: coinJoinIDs,
		Random:      randomness.NewSecureRandom(),
	})
	if err != nil {
		log.Errorf("Unable to create arena: %v", err)
		return err
	}
	if err := arena.Start(); err != nil {
		log.Errorf("Unable to start arena: %v", err)
		return err
	}
	defer arena.Stop()

	listeners, err := makeListeners(cfg.Listeners)
	if err != nil {
		log.Errorf("Unable to listen: %v", err)
		return err
	}
	server := transport.NewServer(cfg.transportOptions(), arena, listeners)
	defer server.Stop()

	<-ctx.Done()
	log.Info("Stopping the coordinator...")

	return nil
}

// openPrisonDB opens the prison database at path, creating it if it does
// not exist yet.
func openPrisonDB(path string, timeout time.Duration) (walletdb.DB, error) {
	exists, err := cfgutil.FileExists(path)
	if err != nil {
		return nil, err
	}

	if exists {
		return walletdb.Open("bdb", path, true, timeout, false)
	}

	log.Infof("Creating prison database %v", path)

	return walletdb.Create("bdb", path, true, timeout, false)
}

// startChainClient connects to the configured bitcoind node.
func startChainClient() (*chain.BitcoindClient, error) {
	var certs []byte
	if !cfg.DisableClientTLS && cfg.CAFile.Value != "" {
		var err error
		certs, err = os.ReadFile(cfg.CAFile.Value)
		if err != nil {
			return nil, fmt.Errorf("cannot read certificates: %w", err)
		}
	}

	rpc, err := chain.NewBitcoindClient(&chain.BitcoindConfig{
		ChainParams:  activeNet.Params,
		Host:         cfg.RPCConnect,
		User:         cfg.RPCUser,
		Pass:         cfg.RPCPass,
		Certificates: certs,
		DisableTLS:   cfg.DisableClientTLS,
	})
	if err != nil {
		return nil, err
	}

	if err := rpc.Start(); err != nil {
		rpc.Stop()
		return nil, err
	}

	return rpc, nil
}

// makeListeners listens on every address, closing the listeners already
// created when one fails.
func makeListeners(addrs []string) ([]net.Listener, error) {
	listeners := make([]net.Listener, 0, len(addrs))
	for _, addr := range addrs {
		lis, err := net.Listen("tcp", addr)
		if err != nil {
			for _, l := range listeners {
				_ = l.Close()
			}

			return nil, fmt.Errorf("unable to listen on %s: %w", addr,
				err)
		}
		listeners = append(listeners, lis)
	}

	return listeners, nil
}
