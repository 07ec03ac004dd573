package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/parser"
	"flashtrade/pkg/router"
	"flashtrade/pkg/types"
)

var liquidityVenue string

var quoteCmd = &cobra.Command{
	Use:   "quote <amount> <token-in> to <token-out>",
	Short: "Compare quotes from every active venue",
	Long: `Ask every active venue on the selected network how much of the output
token the input amount buys.

Examples:
  flashtrade quote 1 WETH to USDC
  flashtrade quote 2500 USDC to DAI --network ethereum`,
	Args: cobra.MinimumNArgs(1),
	Run:  runQuote,
}

var priceCmd = &cobra.Command{
	Use:   "price <token-a> <token-b>",
	Short: "Show the spot price of token A in token B on each venue",
	Args:  cobra.ExactArgs(2),
	Run:   runPrice,
}

var liquidityCmd = &cobra.Command{
	Use:   "liquidity <token-a> <token-b>",
	Short: "Show pool reserves of a pair on each venue",
	Args:  cobra.ExactArgs(2),
	Run:   runLiquidity,
}

func init() {
	rootCmd.AddCommand(quoteCmd, priceCmd, liquidityCmd)

	liquidityCmd.Flags().StringVar(&liquidityVenue, "venue", "", "Only query this venue")
}

func runQuote(cmd *cobra.Command, args []string) {
	trade, err := parser.ParseTradeCommand(strings.Join(args, " "))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	tokenIn, tokenOut, err := a.pair(trade.From, trade.To)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	stop := a.spin("Fetching quotes...")
	quotes, err := a.router.Quotes(ctx, tokenIn, tokenOut, trade.Amount)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(quoteRows(quotes))
		return
	}
	displayQuotes(trade.Amount, tokenIn, tokenOut, quotes)
}

type quoteRow struct {
	router.VenueQuote
	Error string `json:"error,omitempty"`
	Kind  string `json:"error_kind,omitempty"`
}

func quoteRows(quotes []router.VenueQuote) []quoteRow {
	rows := make([]quoteRow, 0, len(quotes))
	for _, q := range quotes {
		row := quoteRow{VenueQuote: q}
		if q.Err != nil {
			row.Error = q.Err.Error()
			row.Kind = dex.KindOf(q.Err)
		}
		rows = append(rows, row)
	}
	return rows
}

func displayQuotes(amount string, tokenIn, tokenOut types.Token, quotes []router.VenueQuote) {
	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("  QUOTES: %s %s -> %s", amount, tokenIn, tokenOut)
	fmt.Println(strings.Repeat("=", 80))

	if len(quotes) == 0 {
		color.Yellow("\n  No active venue supports this pair.\n")
		return
	}

	for i, q := range quotes {
		if q.Err != nil {
			fmt.Printf("  %-14s %s\n", q.VenueID, color.RedString("%s: %v", dex.KindOf(q.Err), q.Err))
			continue
		}
		line := fmt.Sprintf("  %-14s %s %s  impact %.2f%%  fee %d bps", q.VenueID,
			q.Quote.AmountOut, tokenOut, q.Quote.PriceImpact, q.FeeBps)
		if len(q.Quote.Path) > 2 {
			line += fmt.Sprintf("  via %d pools", len(q.Quote.Path)-1)
		}
		if q.Cached {
			line += "  (cached)"
		}
		if i == 0 {
			color.Cyan("%s  best", line)
		} else {
			fmt.Println(line)
		}
	}
	fmt.Println(strings.Repeat("=", 80) + "\n")
}

func runPrice(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	base, quote, err := a.pair(parser.NormalizeToken(args[0]), parser.NormalizeToken(args[1]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	type priceRow struct {
		Venue string           `json:"venue"`
		Price *decimal.Decimal `json:"price,omitempty"`
		Error string           `json:"error,omitempty"`
	}

	stop := a.spin("Fetching prices...")
	var rows []priceRow
	for _, adapter := range a.router.Venues(a.network.ChainID) {
		price, err := adapter.GetTokenPrice(ctx, base, quote)
		row := priceRow{Venue: adapter.ID()}
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Price = &price
		}
		rows = append(rows, row)
	}
	stop()

	if a.json {
		printJSON(rows)
		return
	}

	fmt.Println()
	color.Green("  1 %s in %s", base, quote)
	fmt.Println(strings.Repeat("-", 60))
	for _, row := range rows {
		if row.Price == nil {
			fmt.Printf("  %-14s %s\n", row.Venue, color.RedString("%s", row.Error))
			continue
		}
		fmt.Printf("  %-14s %s\n", row.Venue, row.Price.StringFixed(6))
	}
	fmt.Println()
}

func runLiquidity(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	x, y, err := a.pair(parser.NormalizeToken(args[0]), parser.NormalizeToken(args[1]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	adapters := a.router.Venues(a.network.ChainID)
	if liquidityVenue != "" {
		adapter, err := a.venue(liquidityVenue)
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		adapters = []dex.Adapter{adapter}
	}

	type liquidityRow struct {
		Venue     string           `json:"venue"`
		Liquidity *types.Liquidity `json:"liquidity,omitempty"`
		FeeBps    uint32           `json:"fee_bps"`
		Error     string           `json:"error,omitempty"`
	}

	stop := a.spin("Fetching reserves...")
	var rows []liquidityRow
	for _, adapter := range adapters {
		row := liquidityRow{Venue: adapter.ID()}
		liq, err := adapter.GetLiquidity(ctx, x, y)
		if err != nil {
			row.Error = err.Error()
		} else {
			row.Liquidity = liq
			row.FeeBps, _ = adapter.GetSwapFee(ctx, x, y)
		}
		rows = append(rows, row)
	}
	stop()

	if a.json {
		printJSON(rows)
		return
	}

	fmt.Println()
	color.Green("  %s / %s reserves", x, y)
	fmt.Println(strings.Repeat("-", 80))
	for _, row := range rows {
		if row.Liquidity == nil {
			fmt.Printf("  %-14s %s\n", row.Venue, color.RedString("%s", row.Error))
			continue
		}
		fmt.Printf("  %-14s %s %s / %s %s  ~$%.0f  fee %d bps\n", row.Venue,
			row.Liquidity.Token0Reserves, x, row.Liquidity.Token1Reserves, y,
			row.Liquidity.TotalLiquidityUSD, row.FeeBps)
	}
	fmt.Println()
}

func (a *app) pair(from, to string) (types.Token, types.Token, error) {
	tokenIn, err := a.token(from)
	if err != nil {
		return types.Token{}, types.Token{}, err
	}
	tokenOut, err := a.token(to)
	if err != nil {
		return types.Token{}, types.Token{}, err
	}
	return tokenIn, tokenOut, nil
}
