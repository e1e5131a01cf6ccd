// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// prisonctl lists and releases the inputs a stopped wabisabid banned.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/btcsuite/btcwallet/walletdb"
	_ "github.com/btcsuite/btcwallet/walletdb/bdb"
	"github.com/btcsuite/wabisabi/internal/prompt"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/jessevdk/go-flags"
)

const defaultNet = "mainnet"

var datadir = btcutil.AppDataDir("wabisabid", false)

// options are the command line flags.
type options struct {
	Force         bool          `short:"f" long:"force" description:"Release without prompt"`
	List          bool          `short:"l" long:"list" description:"List the banned inputs and exit"`
	DBPath        string        `long:"db" description:"Path to the prison database"`
	DBTimeout     time.Duration `long:"dbtimeout" description:"Timeout for opening the database"`
	Release       []string      `long:"release" description:"Outpoint (txid:index) to release -- May be specified multiple times; every banned input is released when none is given"`
	BanPeriod     time.Duration `long:"banperiod" description:"Ban period wabisabid is configured with"`
	LongBanPeriod time.Duration `long:"longbanperiod" description:"Long ban period wabisabid is configured with"`
}

// parseOutPoint parses an outpoint in its txid:index form.
func parseOutPoint(s string) (*wire.OutPoint, error) {
	txid, index, ok := strings.Cut(s, ":")
	if !ok {
		return nil, errors.New("missing output index")
	}

	hash, err := chainhash.NewHashFromStr(txid)
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseUint(index, 10, 32)
	if err != nil {
		return nil, err
	}

	return wire.NewOutPoint(hash, uint32(n)), nil
}

func defaultOptions() *options {
	policy := coordinator.DefaultConfig(nil)

	return &options{
		DBPath:        filepath.Join(datadir, defaultNet, "prison.db"),
		DBTimeout:     10 * time.Second,
		BanPeriod:     policy.ReleaseUTXOFromPrisonAfter,
		LongBanPeriod: policy.ReleaseUTXOFromPrisonAfterLongBan,
	}
}

func main() {
	os.Exit(mainInt(os.Args[1:], os.Stdin, os.Stdout))
}

func mainInt(args []string, in io.Reader, out io.Writer) int {
	opts := defaultOptions()
	if _, err := flags.ParseArgs(opts, args); err != nil {
		return 1
	}

	// Parse the outpoints up front so a typo does not leave the prison
	// half released.
	outpoints := make([]wire.OutPoint, 0, len(opts.Release))
	for _, s := range opts.Release {
		op, err := parseOutPoint(s)
		if err != nil {
			fmt.Fprintf(out, "Invalid outpoint %q: %v\n", s, err)
			return 1
		}
		outpoints = append(outpoints, *op)
	}

	fmt.Fprintln(out, "Database path:", opts.DBPath)
	_, err := os.Stat(opts.DBPath)
	if os.IsNotExist(err) {
		fmt.Fprintln(out, "Database file does not exist")
		return 1
	}

	db, err := walletdb.Open("bdb", opts.DBPath, true, opts.DBTimeout,
		false)
	if err != nil {
		fmt.Fprintln(out, "Failed to open database:", err)
		return 1
	}
	defer db.Close()

	prison, err := coordinator.NewPrison(db, opts.BanPeriod,
		opts.LongBanPeriod)
	if err != nil {
		fmt.Fprintln(out, "Failed to open prison:", err)
		return 1
	}

	offenders, err := prison.Offenders()
	if err != nil {
		fmt.Fprintln(out, "Failed to read prison:", err)
		return 1
	}

	if opts.List {
		now := time.Now()
		for _, o := range offenders {
			until, _, banned, err := prison.BannedUntil(o.Outpoint, now)
			if err != nil {
				fmt.Fprintln(out, "Failed to read prison:", err)
				return 1
			}

			status := "released at next cleanup"
			if banned {
				status = "banned until " + until.Format(time.RFC3339)
			}
			fmt.Fprintf(out, "%v %v round %v: %s\n", o.Outpoint,
				o.Reason, o.RoundID, status)
		}
		fmt.Fprintf(out, "%d banned inputs\n", len(offenders))

		return 0
	}

	if len(outpoints) == 0 {
		for _, o := range offenders {
			outpoints = append(outpoints, o.Outpoint)
		}
	}
	if len(outpoints) == 0 {
		fmt.Fprintln(out, "No banned inputs")
		return 0
	}

	if !opts.Force {
		reader := bufio.NewReader(in)
		q := fmt.Sprintf("Release %d inputs from prison?", len(outpoints))
		ok, err := prompt.Confirm(reader, out, q, "n")
		if err != nil {
			// Exit on EOF.
			fmt.Fprintln(out)
			return 0
		}
		if !ok {
			return 0
		}
	}

	released := 0
	for _, op := range outpoints {
		found, err := prison.Release(op)
		if err != nil {
			fmt.Fprintf(out, "Failed to release %v: %v\n", op, err)
			return 1
		}
		if !found {
			fmt.Fprintf(out, "%v is not banned\n", op)
			continue
		}
		released++
	}
	fmt.Fprintf(out, "Released %d inputs\n", released)

	return 0
}
