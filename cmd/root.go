package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"flashtrade/config"
	"flashtrade/pkg/cache"
	"flashtrade/pkg/chain"
	"flashtrade/pkg/dex"
	"flashtrade/pkg/dex/oneclick"
	"flashtrade/pkg/logging"
	"flashtrade/pkg/metrics"
	"flashtrade/pkg/registry"
	"flashtrade/pkg/router"
	"flashtrade/pkg/types"
)

var rootCmd = &cobra.Command{
	Use:   "flashtrade",
	Short: "Quote, compare and execute token swaps across DEX venues",
	Long: `flashtrade queries every active exchange venue in the registry through a
uniform adapter, compares their quotes and submits swaps on the best one.

Examples:
  flashtrade venues
  flashtrade quote 1 WETH to USDC
  flashtrade price WETH USDC
  flashtrade swap 1 WETH to USDC --slippage 50 --recipient 0x...
  flashtrade monitor WETH/USDC DAI/USDC --interval 30s`,
	Version: "0.1.0",
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "Output in JSON format")
	rootCmd.PersistentFlags().StringP("network", "n", "", "Network to use (default from configuration)")
}

// app bundles the collaborators a command needs.
type app struct {
	cfg      *config.Config
	log      zerolog.Logger
	network  config.Network
	registry *registry.Registry
	client   *chain.Client
	signer   chain.Signer
	oneclick *oneclick.Client
	router   *router.Router
	json     bool
	verbose  bool
}

// newApp loads configuration and the registry. Commands that talk to
// venues call connect afterwards.
func newApp(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg}
	a.verbose, _ = cmd.Flags().GetBool("verbose")
	a.json, _ = cmd.Flags().GetBool("json")

	level := cfg.Log.Level
	if a.verbose {
		level = "debug"
	} else if !cfg.Features.EnableDebugMode && level == "debug" {
		level = "info"
	}
	a.log = logging.NewLogger(level, cfg.Log.Pretty)

	networkName, _ := cmd.Flags().GetString("network")
	a.network, err = cfg.SelectNetwork(networkName)
	if err != nil {
		return nil, err
	}

	a.registry, err = registry.New(cfg.Registry.Path)
	if err != nil {
		return nil, err
	}
	return a, nil
}

// connect dials the RPC endpoint and builds the router with an adapter for
// every venue deployed on the selected network.
func (a *app) connect(ctx context.Context) error {
	client, err := chain.Dial(ctx, a.network.RPCURL, a.network.ChainID, chain.Options{
		CallTimeout: a.cfg.RPC.CallTimeout,
		RateLimit:   a.cfg.RPC.RateLimit,
		Burst:       a.cfg.RPC.Burst,
	}, a.log)
	if err != nil {
		return err
	}
	a.client = client

	if a.cfg.Wallet.PrivateKey != "" {
		signer, err := chain.NewKeySigner(a.cfg.Wallet.PrivateKey)
		if err != nil {
			return err
		}
		a.signer = signer
	}

	if a.cfg.OneClick.JWTToken != "" {
		a.oneclick = oneclick.NewClient(a.cfg.OneClick.BaseURL, a.cfg.OneClick.JWTToken, a.cfg.OneClick.Timeout, a.log)
	}

	var quoteCache cache.QuoteCache = cache.NewMemory(a.cfg.Cache.TTL)
	if a.cfg.Cache.RedisAddr != "" {
		rc := cache.NewRedis(cache.RedisOptions{
			Addr:     a.cfg.Cache.RedisAddr,
			Password: a.cfg.Cache.RedisPassword,
			DB:       a.cfg.Cache.RedisDB,
			TTL:      a.cfg.Cache.TTL,
		})
		if err := rc.Ping(ctx); err != nil {
			a.log.Warn().Err(err).Msg("redis unavailable, using in-process quote cache")
		} else {
			quoteCache = rc
		}
	}

	if a.cfg.Metrics.Addr != "" {
		if srv, err := metrics.Serve(a.cfg.Metrics.Addr, a.log); err != nil {
			a.log.Warn().Err(err).Msg("metrics endpoint disabled")
		} else {
			a.log.Info().Str("addr", srv.Addr).Msg("serving metrics")
		}
	}

	a.router = router.New(a.registry, a.log, router.WithCache(quoteCache))
	factory := &router.Factory{
		ChainID:     a.network.ChainID,
		Client:      a.client,
		Signer:      a.signer,
		ReceiptWait: a.cfg.RPC.ReceiptWait,
		Wrap:        metrics.Instrument,
		Log:         a.log,
	}
	if a.oneclick != nil {
		factory.OneClick = a.oneclick
	}
	for _, err := range factory.Populate(a.router) {
		a.log.Debug().Err(err).Msg("venue unavailable")
	}
	return nil
}

func (a *app) close() {
	if a.client != nil {
		a.client.Close()
	}
}

// token resolves a symbol or address on the selected network.
func (a *app) token(query string) (types.Token, error) {
	return a.registry.FindToken(a.network.ChainID, query)
}

// venue returns the adapter registered for id, without metrics wrapping.
func (a *app) venue(id string) (dex.Adapter, error) {
	adapter, ok := a.router.Adapter(id)
	if !ok {
		return nil, fmt.Errorf("venue '%s' is not available on %s", id, a.network.Name)
	}
	if u, ok := adapter.(interface{ Unwrap() dex.Adapter }); ok {
		return u.Unwrap(), nil
	}
	return adapter, nil
}

func (a *app) spin(suffix string) func() {
	if a.json {
		return func() {}
	}
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " " + suffix
	s.Start()
	return s.Stop
}

func commandContext(cmd *cobra.Command, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

func printError(err error) {
	if kind := dex.KindOf(err); kind != "" {
		color.Red("\nError [%s]: %v\n", kind, err)
		return
	}
	if errors.Is(err, registry.ErrNotFound) {
		color.Red("\nError: %v\n", err)
		color.Yellow("Hint: list known tokens with 'flashtrade tokens'\n")
		return
	}
	fmt.Printf("\nError: %v\n\n", err)
}

func printSuccess(message string) {
	color.Green("\n%s\n", message)
}

func printJSON(v interface{}) {
	jsonData, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(jsonData))
}
