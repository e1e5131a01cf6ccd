// Copyright (c) 2025 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/wabisabi/internal/cfgutil"
	"github.com/btcsuite/wabisabi/netparams"
	"github.com/btcsuite/wabisabi/wabisabi/coordinator"
	"github.com/btcsuite/wabisabi/wabisabi/models"
	"github.com/btcsuite/wabisabi/wabisabi/transport"
	flags "github.com/jessevdk/go-flags"
)

const (
	defaultCAFilename     = "bitcoind.cert"
	defaultConfigFilename = "wabisabid.conf"
	defaultLogLevel       = "info"
	defaultLogDirname     = "logs"
	defaultLogFilename    = "wabisabid.log"
	defaultDBTimeout      = 60 * time.Second
	defaultCoinJoinDriver = "sqlite"

	prisonDBName   = "prison.db"
	coinJoinDBName = "coinjoins.sqlite"
)

var (
	wabisabidHomeDir  = btcutil.AppDataDir("wabisabid", false)
	defaultConfigFile = filepath.Join(wabisabidHomeDir, defaultConfigFilename)
	defaultAppDataDir = wabisabidHomeDir
	defaultLogDir     = filepath.Join(wabisabidHomeDir, defaultLogDirname)
)

type config struct {
	// General application behavior
	ConfigFile  *cfgutil.ExplicitString `short:"C" long:"configfile" description:"Path to configuration file"`
	ShowVersion bool                    `short:"V" long:"version" description:"Display version information and exit"`
	AppDataDir  *cfgutil.ExplicitString `short:"A" long:"appdata" description:"Application data directory for the prison and coinjoin databases"`
	TestNet3    bool                    `long:"testnet" description:"Use the test Bitcoin network (version 3)"`
	TestNet4    bool                    `long:"testnet4" description:"Use the test Bitcoin network (version 4)"`
	RegTest     bool                    `long:"regtest" description:"Use the regression test network"`
	SimNet      bool                    `long:"simnet" description:"Use the simulation test network"`
	SigNet      bool                    `long:"signet" description:"Use the signet test network"`
	DebugLevel  string                  `short:"d" long:"debuglevel" description:"Logging level for all subsystems {trace, debug, info, warn, error, critical} -- You may also specify <subsystem>=<level>,<subsystem2>=<level>,... to set the log level for individual subsystems -- Use show to list available subsystems"`
	LogDir      string                  `long:"logdir" description:"Directory to log output"`
	DBTimeout   time.Duration           `long:"dbtimeout" description:"The timeout value to use when opening the prison database"`

	// Coinjoin id store options
	CoinJoinDBDriver string `long:"coinjoindbdriver" description:"Database the ids of broadcast coinjoins are recorded in" choice:"sqlite" choice:"pgx"`
	CoinJoinDBDSN    string `long:"coinjoindbdsn" description:"Data source name of the coinjoin database (default: a sqlite file in the network data directory)"`

	// Bitcoind RPC client options
	RPCConnect       string                  `short:"c" long:"rpcconnect" description:"Hostname/IP and port of the bitcoind RPC server to connect to (default localhost:8332, testnet: localhost:18332, regtest: localhost:18443)"`
	RPCUser          string                  `short:"u" long:"rpcuser" description:"Username for bitcoind authentication"`
	RPCPass          string                  `short:"P" long:"rpcpass" default-mask:"-" description:"Password for bitcoind authentication"`
	CAFile           *cfgutil.ExplicitString `long:"cafile" description:"File containing root certificates to authenticate a TLS connection with bitcoind"`
	DisableClientTLS bool                    `long:"noclienttls" description:"Disable TLS for the RPC client -- NOTE: This is only allowed if the RPC client is connecting to localhost"`

	// Coordinator server options
	Listeners   []string      `long:"listen" description:"Listen for client connections on this interface/port (default port: 37127, testnet: 37128, regtest: 37129, testnet4: 37130, simnet: 37131, signet: 37132)"`
	MaxClients  int64         `long:"maxclients" description:"Max number of requests served concurrently"`
	ReadTimeout time.Duration `long:"readtimeout" description:"Time allowed for reading a client request"`

	// Round policy options
	FallbackFeeRate         *cfgutil.FeeRateFlag `long:"fallbackfeerate" description:"Mining fee rate used when bitcoind cannot estimate one (sat/kvB, or sat/vB when suffixed)"`
	MinRelayTxFee           *cfgutil.FeeRateFlag `long:"minrelaytxfee" description:"Relay fee outputs are checked against for dust (sat/kvB, or sat/vB when suffixed)"`
	ConfTarget              int64                `long:"conftarget" description:"Block target the mining fee rate of rounds is estimated for"`
	MaxInputCount           int                  `long:"maxinputcount" description:"Maximum number of inputs of a round"`
	MinInputCountMultiplier float64              `long:"mininputcountmultiplier" description:"Fraction of the maximum input count a round needs to proceed"`
	MinInputAmount          *cfgutil.AmountFlag  `long:"mininputamount" description:"Smallest input accepted"`
	MaxInputAmount          *cfgutil.AmountFlag  `long:"maxinputamount" description:"Largest input accepted"`
	MinOutputAmount         *cfgutil.AmountFlag  `long:"minoutputamount" description:"Smallest output accepted"`
	MaxOutputAmount         *cfgutil.AmountFlag  `long:"maxoutputamount" description:"Largest output accepted"`
	MaxSuggestedAmountBase  *cfgutil.AmountFlag  `long:"maxsuggestedamountbase" description:"Smallest maximum amount suggested to clients"`
	ScriptTypes             []string             `long:"scripttype" description:"Script type allowed for inputs and outputs {P2WPKH, Taproot} -- May be specified multiple times"`
	MaxVsizePerAlice        int64                `long:"maxvsizeperalice" description:"Virtual size every registered input is allocated"`
	CoordinationIdentifier  string               `long:"coordinationid" description:"Identifier committed to by ownership proofs"`

	// Round timeouts
	InputRegTimeout      time.Duration `long:"inputregtimeout" description:"Duration of the input registration phase"`
	ConnConfTimeout      time.Duration `long:"connconftimeout" description:"Duration of the connection confirmation phase"`
	OutputRegTimeout     time.Duration `long:"outputregtimeout" description:"Duration of the output registration phase"`
	SigningTimeout       time.Duration `long:"signingtimeout" description:"Duration of the transaction signing phase"`
	BlameInputRegTimeout time.Duration `long:"blameinputregtimeout" description:"Duration of the input registration phase of blame rounds"`
	RoundExpiry          time.Duration `long:"roundexpiry" description:"How long ended rounds are still reported to clients"`
	StepInterval         time.Duration `long:"stepinterval" description:"How often rounds are advanced"`

	// Prison options
	BanPeriod     time.Duration `long:"banperiod" description:"How long misbehaving inputs are banned"`
	LongBanPeriod time.Duration `long:"longbanperiod" description:"How long inputs failing to sign are banned"`

	// params is the network selected by the network flags.
	params *netparams.Params
}

// defaultConfig returns the configuration used before the config file and
// command line options are applied.
func defaultConfig() *config {
	policy := coordinator.DefaultConfig(&netparams.MainNetParams)
	opts := transport.DefaultOptions()

	scriptTypes := make([]string, 0, len(policy.AllowedInputTypes))
	for _, t := range policy.AllowedInputTypes {
		scriptTypes = append(scriptTypes, t.String())
	}

	return &config{
		ConfigFile:              cfgutil.NewExplicitString(defaultConfigFile),
		AppDataDir:              cfgutil.NewExplicitString(defaultAppDataDir),
		DebugLevel:              defaultLogLevel,
		LogDir:                  defaultLogDir,
		DBTimeout:               defaultDBTimeout,
		CoinJoinDBDriver:        defaultCoinJoinDriver,
		CAFile:                  cfgutil.NewExplicitString(""),
		MaxClients:              opts.MaxClients,
		ReadTimeout:             opts.ReadTimeout,
		FallbackFeeRate:         cfgutil.NewFeeRateFlag(policy.FallbackMiningFeeRate),
		MinRelayTxFee:           cfgutil.NewFeeRateFlag(policy.MinRelayTxFee),
		ConfTarget:              policy.ConfirmationTarget,
		MaxInputCount:           policy.MaxInputCountByRound,
		MinInputCountMultiplier: policy.MinInputCountByRoundMultiplier,
		MinInputAmount:          cfgutil.NewAmountFlag(policy.AllowedInputAmounts.Min),
		MaxInputAmount:          cfgutil.NewAmountFlag(policy.AllowedInputAmounts.Max),
		MinOutputAmount:         cfgutil.NewAmountFlag(policy.AllowedOutputAmounts.Min),
		MaxOutputAmount:         cfgutil.NewAmountFlag(policy.AllowedOutputAmounts.Max),
		MaxSuggestedAmountBase:  cfgutil.NewAmountFlag(policy.MaxSuggestedAmountBase),
		ScriptTypes:             scriptTypes,
		MaxVsizePerAlice:        policy.MaxVsizeAllocationPerAlice,
		CoordinationIdentifier:  policy.CoordinationIdentifier,
		InputRegTimeout:         policy.StandardInputRegistrationTimeout,
		ConnConfTimeout:         policy.ConnectionConfirmationTimeout,
		OutputRegTimeout:        policy.OutputRegistrationTimeout,
		SigningTimeout:          policy.TransactionSigningTimeout,
		BlameInputRegTimeout:    policy.BlameInputRegistrationTimeout,
		RoundExpiry:             policy.RoundExpiryTimeout,
		StepInterval:            policy.StepInterval,
		BanPeriod:               policy.ReleaseUTXOFromPrisonAfter,
		LongBanPeriod:           policy.ReleaseUTXOFromPrisonAfterLongBan,
	}
}

// cleanAndExpandPath expands environment variables and leading ~ in the
// passed path, cleans the result, and returns it.
func cleanAndExpandPath(path string) string {
	return cfgutil.CleanAndExpandPath(path, filepath.Dir(wabisabidHomeDir))
}

// netDir returns the directory the databases of the selected network are
// stored in.
func (c *config) netDir() string {
	return filepath.Join(c.AppDataDir.Value, c.params.Name)
}

// prisonDBPath returns the path of the prison database.
func (c *config) prisonDBPath() string {
	return filepath.Join(c.netDir(), prisonDBName)
}

// coinJoinDSN returns the data source name of the coinjoin id store.
func (c *config) coinJoinDSN() string {
	if c.CoinJoinDBDSN != "" {
		return c.CoinJoinDBDSN
	}

	return filepath.Join(c.netDir(), coinJoinDBName)
}

// coordinatorConfig builds the round policy of the coordinator.
func (c *config) coordinatorConfig() (*coordinator.Config, error) {
	policy := coordinator.DefaultConfig(c.params)

	types := make([]models.ScriptType, 0, len(c.ScriptTypes))
	for _, s := range c.ScriptTypes {
		t, err := models.ParseScriptType(s)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}

	policy.FallbackMiningFeeRate = c.FallbackFeeRate.SatPerKVByte
	policy.MinRelayTxFee = c.MinRelayTxFee.SatPerKVByte
	policy.ConfirmationTarget = c.ConfTarget
	policy.MaxInputCountByRound = c.MaxInputCount
	policy.MinInputCountByRoundMultiplier = c.MinInputCountMultiplier
	policy.AllowedInputAmounts = models.MoneyRange{
		Min: c.MinInputAmount.Amount,
		Max: c.MaxInputAmount.Amount,
	}
	policy.AllowedOutputAmounts = models.MoneyRange{
		Min: c.MinOutputAmount.Amount,
		Max: c.MaxOutputAmount.Amount,
	}
	policy.AllowedInputTypes = types
	policy.AllowedOutputTypes = types
	policy.MaxSuggestedAmountBase = c.MaxSuggestedAmountBase.Amount
	policy.MaxVsizeAllocationPerAlice = c.MaxVsizePerAlice
	policy.CoordinationIdentifier = c.CoordinationIdentifier
	policy.StandardInputRegistrationTimeout = c.InputRegTimeout
	policy.ConnectionConfirmationTimeout = c.ConnConfTimeout
	policy.OutputRegistrationTimeout = c.OutputRegTimeout
	policy.TransactionSigningTimeout = c.SigningTimeout
	policy.BlameInputRegistrationTimeout = c.BlameInputRegTimeout
	policy.RoundExpiryTimeout = c.RoundExpiry
	policy.StepInterval = c.StepInterval
	policy.ReleaseUTXOFromPrisonAfter = c.BanPeriod
	policy.ReleaseUTXOFromPrisonAfterLongBan = c.LongBanPeriod

	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid round policy: %w", err)
	}

	return policy, nil
}

// transportOptions returns the options of the coordinator's server.
func (c *config) transportOptions() *transport.Options {
	return &transport.Options{
		MaxClients:  c.MaxClients,
		ReadTimeout: c.ReadTimeout,
	}
}

// loadConfig initializes and parses the config using a config file and
// command line options.
//
// The configuration proceeds as follows:
//  1. Start with a default config with sane settings
//  2. Pre-parse the command line to check for an alternative config file
//  3. Load configuration file overwriting defaults with any specified options
//  4. Parse CLI options and overwrite/add any specified options
//
// The above results in wabisabid functioning properly without any config
// settings while still allowing the user to override settings with config
// files and command line options.  Command line options always take
// precedence.
func loadConfig(args []string) (*config, error) {
	cfg := defaultConfig()

	// Pre-parse the command line options to see if an alternative config
	// file or the version flag was specified.
	preCfg := *cfg
	preParser := flags.NewParser(&preCfg, flags.Default)
	_, err := preParser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			preParser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	// Show the version and exit if the version flag was specified.
	funcName := "loadConfig"
	appName := filepath.Base(os.Args[0])
	appName = strings.TrimSuffix(appName, filepath.Ext(appName))
	usageMessage := fmt.Sprintf("Use %s -h to show usage", appName)
	if preCfg.ShowVersion {
		fmt.Println(appName, "version", version())
		os.Exit(0)
	}

	// A config file next to an alternative data directory takes
	// precedence over the default one.
	configFile := preCfg.ConfigFile.Value
	if !preCfg.ConfigFile.ExplicitlySet() &&
		preCfg.AppDataDir.ExplicitlySet() {

		configFile = filepath.Join(
			cleanAndExpandPath(preCfg.AppDataDir.Value),
			defaultConfigFilename,
		)
	}

	// Load additional config from file.
	var configFileError error
	parser := flags.NewParser(cfg, flags.Default)
	configFilePath := cleanAndExpandPath(configFile)
	err = flags.NewIniParser(parser).ParseFile(configFilePath)
	if err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) || preCfg.ConfigFile.ExplicitlySet() {
			fmt.Fprintln(os.Stderr, err)
			parser.WriteHelp(os.Stderr)
			return nil, err
		}
		configFileError = err
	}

	// Parse command line options again to ensure they take precedence.
	_, err = parser.ParseArgs(args)
	if err != nil {
		var e *flags.Error
		if !errors.As(err, &e) || e.Type != flags.ErrHelp {
			parser.WriteHelp(os.Stderr)
		}
		return nil, err
	}

	// Warn about missing config file after the final command line parse
	// succeeds.  This prevents the warning on help messages and invalid
	// options.
	if configFileError != nil {
		log.Warnf("%v", configFileError)
	}

	// Choose the active network params based on the selected network.
	// Multiple networks can't be selected simultaneously.
	numNets := 0
	cfg.params = &netparams.MainNetParams
	if cfg.TestNet3 {
		cfg.params = &netparams.TestNet3Params
		numNets++
	}
	if cfg.TestNet4 {
		cfg.params = &netparams.TestNet4Params
		numNets++
	}
	if cfg.RegTest {
		cfg.params = &netparams.RegressionNetParams
		numNets++
	}
	if cfg.SimNet {
		cfg.params = &netparams.SimNetParams
		numNets++
	}
	if cfg.SigNet {
		cfg.params = &netparams.SigNetParams
		numNets++
	}
	if numNets > 1 {
		str := "%s: The testnet, testnet4, regtest, simnet and signet " +
			"params can't be used together -- choose one"
		err := fmt.Errorf(str, funcName)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	cfg.AppDataDir.Value = cleanAndExpandPath(cfg.AppDataDir.Value)

	// Append the network type to the log directory so it is "namespaced"
	// per network.
	cfg.LogDir = cleanAndExpandPath(cfg.LogDir)
	cfg.LogDir = filepath.Join(cfg.LogDir, cfg.params.Name)

	// Special show command to list supported subsystems and exit.
	if cfg.DebugLevel == "show" {
		fmt.Println("Supported subsystems", supportedSubsystems())
		os.Exit(0)
	}

	// Parse, validate, and set debug log level(s).
	if err := parseAndSetDebugLevels(cfg.DebugLevel); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	if cfg.RPCConnect == "" {
		cfg.RPCConnect = net.JoinHostPort("localhost",
			cfg.params.RPCClientPort)
	}

	// Add default port to connect flag if missing.
	cfg.RPCConnect, err = cfgutil.NormalizeAddress(cfg.RPCConnect,
		cfg.params.RPCClientPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid rpcconnect network address: "+
			"%v\n", err)
		return nil, err
	}

	localhostListeners := map[string]struct{}{
		"localhost": {},
		"127.0.0.1": {},
		"::1":       {},
	}
	RPCHost, _, err := net.SplitHostPort(cfg.RPCConnect)
	if err != nil {
		return nil, err
	}
	if cfg.DisableClientTLS {
		if _, ok := localhostListeners[RPCHost]; !ok {
			str := "%s: the --noclienttls option may not be used " +
				"when connecting RPC to non localhost addresses: %s"
			err := fmt.Errorf(str, funcName, cfg.RPCConnect)
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, usageMessage)
			return nil, err
		}
	} else if !cfg.CAFile.ExplicitlySet() {
		// If CAFile is unset, choose either the copy in the data
		// directory or none so the system roots are used.
		cafile := filepath.Join(cfg.AppDataDir.Value, defaultCAFilename)
		exists, err := cfgutil.FileExists(cafile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return nil, err
		}
		if exists {
			cfg.CAFile.Value = cafile
		}
	} else {
		cfg.CAFile.Value = cleanAndExpandPath(cfg.CAFile.Value)
	}

	// Default to listening on localhost only.
	if len(cfg.Listeners) == 0 {
		addrs, err := net.LookupHost("localhost")
		if err != nil {
			return nil, err
		}
		cfg.Listeners = make([]string, 0, len(addrs))
		for _, addr := range addrs {
			addr = net.JoinHostPort(addr, cfg.params.CoordinatorPort)
			cfg.Listeners = append(cfg.Listeners, addr)
		}
	}

	// Add default port to all listener addresses if needed and remove
	// duplicate addresses.
	cfg.Listeners, err = cfgutil.NormalizeAddresses(cfg.Listeners,
		cfg.params.CoordinatorPort)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid network address in listeners: "+
			"%v\n", err)
		return nil, err
	}

	if cfg.MaxClients < 1 {
		err := fmt.Errorf("%s: maxclients must be positive", funcName)
		fmt.Fprintln(os.Stderr, err)
		return nil, err
	}

	// Validate the round policy up front so a bad option is reported
	// before any database is opened.
	if _, err := cfg.coordinatorConfig(); err != nil {
		err := fmt.Errorf("%s: %w", funcName, err)
		fmt.Fprintln(os.Stderr, err)
		fmt.Fprintln(os.Stderr, usageMessage)
		return nil, err
	}

	return cfg, nil
}
