package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flashtrade/pkg/dex"
	"flashtrade/pkg/dex/uniswapv2"
	"flashtrade/pkg/parser"
	"flashtrade/pkg/types"
)

var (
	swapVenue     string
	slippageBps   uint32
	recipientAddr string
	deadlineIn    time.Duration
	noConfirm     bool
)

var swapCmd = &cobra.Command{
	Use:   "swap <amount> <token-in> to <token-out>",
	Short: "Swap tokens on the best venue",
	Long: `Quote every active venue, pick the best output and submit one swap.

IMPORTANT:
  - FLASHTRADE_FEATURES_ENABLE_ARBITRAGE_EXECUTION=true enables submission
  - FLASHTRADE_WALLET_PRIVATE_KEY must be set; the swap is signed with it
  - Constant-product venues need an allowance first: flashtrade approve <venue> <token> <amount>
  - The swap is not submitted when the venue's simulated output falls below the slippage floor

Examples:
  flashtrade swap 1 WETH to USDC
  flashtrade swap 1 WETH to USDC --venue sushiswap --slippage 100
  flashtrade swap 2500 USDC to WETH --recipient 0x... --deadline 5m --yes`,
	Args: cobra.MinimumNArgs(1),
	Run:  runSwap,
}

var approveCmd = &cobra.Command{
	Use:   "approve <venue> <token> <amount>",
	Short: "Allow a venue's router to spend a token",
	Args:  cobra.ExactArgs(3),
	Run:   runApprove,
}

func init() {
	rootCmd.AddCommand(swapCmd, approveCmd)

	swapCmd.Flags().StringVar(&swapVenue, "venue", "", "Venue to use instead of the best quote")
	swapCmd.Flags().Uint32Var(&slippageBps, "slippage", 50, "Accepted slippage in basis points")
	swapCmd.Flags().StringVar(&recipientAddr, "recipient", "", "Recipient address (default: the wallet address)")
	swapCmd.Flags().DurationVar(&deadlineIn, "deadline", dex.DefaultDeadline, "Time until the swap expires")
	swapCmd.Flags().BoolVarP(&noConfirm, "yes", "y", false, "Skip confirmation prompt")
}

func runSwap(cmd *cobra.Command, args []string) {
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

	if err := a.cfg.CheckExecution(); err != nil {
		printError(err)
		os.Exit(1)
	}

	tokenIn, tokenOut, err := a.pair(trade.From, trade.To)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, deadlineIn+time.Minute)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
	if a.signer == nil {
		printError(fmt.Errorf("wallet not configured. Please set FLASHTRADE_WALLET_PRIVATE_KEY"))
		os.Exit(1)
	}

	recipient := recipientAddr
	if recipient == "" {
		recipient = a.signer.Address().Hex()
	}

	stop := a.spin("Fetching quotes...")
	var route *types.TradeRoute
	if swapVenue != "" {
		route, err = a.router.RouteVia(ctx, swapVenue, tokenIn, tokenOut, trade.Amount)
	} else {
		route, err = a.router.BestRoute(ctx, tokenIn, tokenOut, trade.Amount)
	}
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	minOut, err := dex.MinOutput(route.AmountOut, slippageBps)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(map[string]interface{}{"route": route, "min_amount_out": minOut, "recipient": recipient})
	} else {
		displayRoute(route, minOut, recipient)
	}

	if !noConfirm && !a.json {
		if !confirmSwap() {
			fmt.Println("\nSwap cancelled.")
			os.Exit(0)
		}
	}

	deadline := time.Now().Add(deadlineIn)
	stop = a.spin("Submitting swap...")
	res, err := a.router.Execute(ctx, route, slippageBps, recipient, &deadline)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(res)
		if !res.Success {
			os.Exit(1)
		}
		return
	}

	if !res.Success {
		color.Red("\nSwap failed [%s]: %s", res.ErrorKind, res.Error)
		if res.TransactionHash != "" {
			fmt.Printf("  Transaction: %s\n", res.TransactionHash)
		}
		fmt.Println()
		os.Exit(1)
	}

	color.Green("\nSwap submitted!")
	fmt.Printf("  Transaction: %s\n", color.CyanString(res.TransactionHash))
	fmt.Printf("  Expected:    %s %s\n", res.AmountOut, tokenOut)
	fmt.Println("\nYou can monitor the transaction using:")
	color.Cyan("  flashtrade status %s\n", res.TransactionHash)
}

func displayRoute(route *types.TradeRoute, minOut, recipient string) {
	hop := route.Hops[0]

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                     SWAP ROUTE")
	fmt.Println(strings.Repeat("=", 60))

	fmt.Printf("\n  Venue:          %s\n", color.CyanString(hop.VenueID))
	fmt.Printf("  From:           %s %s\n", route.AmountIn, color.YellowString(hop.TokenIn.Symbol))
	fmt.Printf("  To:             ~%s %s\n", route.AmountOut, color.YellowString(hop.TokenOut.Symbol))
	fmt.Printf("  Minimum out:    %s %s (%d bps slippage)\n", minOut, hop.TokenOut.Symbol, slippageBps)
	fmt.Printf("  Price impact:   %.2f%%\n", route.PriceImpact)
	fmt.Printf("  Fee:            %d bps\n", route.FeeBps)
	fmt.Printf("  Recipient:      %s\n", recipient)

	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func confirmSwap() bool {
	reader := bufio.NewReader(os.Stdin)
	fmt.Print("\nProceed with swap? (y/N): ")

	response, err := reader.ReadString('\n')
	if err != nil {
		return false
	}

	response = strings.TrimSpace(strings.ToLower(response))
	return response == "y" || response == "yes"
}

func runApprove(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	if err := a.cfg.CheckExecution(); err != nil {
		printError(err)
		os.Exit(1)
	}

	token, err := a.token(parser.NormalizeToken(args[1]))
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, 2*time.Minute)
	defer cancel()
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	adapter, err := a.venue(args[0])
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	pool, ok := adapter.(*uniswapv2.Adapter)
	if !ok {
		printError(fmt.Errorf("venue '%s' does not take token approvals", args[0]))
		os.Exit(1)
	}

	stop := a.spin("Submitting approval...")
	hash, err := pool.Approve(ctx, token, args[2])
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(map[string]string{"venue": args[0], "token": token.Address, "spender": pool.RouterAddress().Hex(), "tx": hash})
		return
	}
	printSuccess(fmt.Sprintf("Approved %s %s for %s (%s)\n  Transaction: %s",
		args[2], token, args[0], shortAddress(pool.RouterAddress()), hash))
}

func shortAddress(addr common.Address) string {
	hex := addr.Hex()
	return hex[:6] + "..." + hex[len(hex)-4:]
}
