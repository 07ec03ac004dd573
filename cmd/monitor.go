package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/monitor"
	"flashtrade/pkg/parser"
)

var (
	monitorAmount   string
	monitorInterval time.Duration
)

var monitorCmd = &cobra.Command{
	Use:   "monitor <token-a>/<token-b> [...]",
	Short: "Watch quotes for token pairs",
	Long: `Poll every active venue for the given pairs and print the best quote of
each round until interrupted. Requires FLASHTRADE_FEATURES_ENABLE_PRICE_MONITORING=true.

Examples:
  flashtrade monitor WETH/USDC
  flashtrade monitor WETH/USDC DAI/USDC --amount 10 --interval 1m`,
	Args: cobra.MinimumNArgs(1),
	Run:  runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)

	monitorCmd.Flags().StringVar(&monitorAmount, "amount", "1", "Input amount quoted for every pair")
	monitorCmd.Flags().DurationVar(&monitorInterval, "interval", monitor.DefaultInterval, "Polling interval (minimum 5s)")
}

func runMonitor(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	if !a.cfg.Features.EnablePriceMonitoring {
		printError(fmt.Errorf("price monitoring is disabled. Set FLASHTRADE_FEATURES_ENABLE_PRICE_MONITORING=true to enable it"))
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	m := monitor.New(a.router, func(s monitor.Snapshot) { printSnapshot(a, s) }, a.log)
	m.SetInterval(monitorInterval)

	for _, arg := range args {
		from, to, err := parser.ParsePair(arg)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		tokenIn, tokenOut, err := a.pair(from, to)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		if err := m.Watch(monitor.Pair{TokenIn: tokenIn, TokenOut: tokenOut, Amount: monitorAmount}); err != nil {
			printError(err)
			os.Exit(1)
		}
	}

	if !a.json {
		color.Green("\nMonitoring %d pair(s) on %s every %s. Press Ctrl+C to stop.\n", len(args), a.network.Name, m.Interval())
	}
	if err := m.Start(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	<-ctx.Done()
	m.Stop()
	if !a.json {
		fmt.Println("\nMonitor stopped.")
	}
}

func printSnapshot(a *app, s monitor.Snapshot) {
	if a.json {
		printJSON(map[string]interface{}{
			"at":     s.At,
			"pair":   s.Pair.String(),
			"quotes": quoteRows(s.Quotes),
		})
		return
	}

	stamp := s.At.Format("15:04:05")
	if s.Err != nil {
		fmt.Printf("[%s] %-24s %s\n", stamp, s.Pair, color.RedString("%v", s.Err))
		return
	}
	best, ok := s.Best()
	if !ok {
		reason := "no venue quoted"
		if len(s.Quotes) > 0 {
			reason = dex.KindOf(s.Quotes[0].Err)
		}
		fmt.Printf("[%s] %-24s %s\n", stamp, s.Pair, color.YellowString("%s", reason))
		return
	}
	fmt.Printf("[%s] %-24s %s %s on %s (impact %.2f%%, %d venue(s))\n", stamp, s.Pair,
		color.CyanString("%s", best.Quote.AmountOut), s.Pair.TokenOut, best.VenueID,
		best.Quote.PriceImpact, len(s.Quotes))
}
