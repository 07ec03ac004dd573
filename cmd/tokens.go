package cmd

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flashtrade/pkg/dex/oneclick"
	"flashtrade/pkg/types"
)

var (
	filterSymbol string
	listOneClick bool
	tokenName    string
)

var tokensCmd = &cobra.Command{
	Use:     "tokens",
	Aliases: []string{"list-tokens", "ls"},
	Short:   "List known tokens",
	Long: `List the tokens in the registry for the selected network.

Examples:
  flashtrade tokens
  flashtrade tokens --symbol USD
  flashtrade tokens --oneclick
  flashtrade tokens add 0x514910771AF9Ca656af840dff83E8264EcF986CA LINK`,
	Args: cobra.NoArgs,
	Run:  runListTokens,
}

var tokensAddCmd = &cobra.Command{
	Use:   "add <address> <symbol> [decimals]",
	Short: "Add or update a token in the registry",
	Long: `Add or update a token. When decimals are omitted they are read from the
token contract.`,
	Args: cobra.RangeArgs(2, 3),
	Run:  runAddToken,
}

func init() {
	rootCmd.AddCommand(tokensCmd)
	tokensCmd.AddCommand(tokensAddCmd)

	tokensCmd.Flags().StringVar(&filterSymbol, "symbol", "", "Filter by token symbol")
	tokensCmd.Flags().BoolVar(&listOneClick, "oneclick", false, "List the tokens the 1Click service routes on this network")
	tokensAddCmd.Flags().StringVar(&tokenName, "name", "", "Token display name")
}

func runListTokens(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	if listOneClick {
		listOneClickTokens(cmd, a)
		return
	}

	tokens := a.registry.Tokens(a.network.ChainID)
	if filterSymbol != "" {
		var filtered []types.Token
		for _, t := range tokens {
			if strings.Contains(strings.ToUpper(t.Symbol), strings.ToUpper(filterSymbol)) {
				filtered = append(filtered, t)
			}
		}
		tokens = filtered
	}

	if a.json {
		printJSON(tokens)
		return
	}

	if len(tokens) == 0 {
		fmt.Println("\nNo tokens found matching the criteria.")
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 80))
	color.Green("  TOKENS ON %s", strings.ToUpper(a.network.Name))
	fmt.Println(strings.Repeat("=", 80))
	for _, t := range tokens {
		fmt.Printf("  %-10s  %2d decimals  %s\n", color.YellowString(t.Symbol), t.Decimals, t.Address)
	}
	fmt.Println(strings.Repeat("=", 80))
	fmt.Printf("Total: %d tokens\n\n", len(tokens))
}

func listOneClickTokens(cmd *cobra.Command, a *app) {
	if a.cfg.OneClick.JWTToken == "" {
		printError(fmt.Errorf("1Click JWT token not found. Please set FLASHTRADE_ONECLICK_JWT_TOKEN"))
		os.Exit(1)
	}
	blockchain, ok := oneclick.Blockchains[a.network.ChainID]
	if !ok {
		printError(fmt.Errorf("1Click does not serve %s", a.network.Name))
		os.Exit(1)
	}

	ctx, cancel := commandContext(cmd, time.Minute)
	defer cancel()

	client := oneclick.NewClient(a.cfg.OneClick.BaseURL, a.cfg.OneClick.JWTToken, a.cfg.OneClick.Timeout, a.log)
	stop := a.spin("Fetching supported tokens...")
	assets, err := client.Tokens(ctx)
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	var filtered []oneclick.Asset
	for _, asset := range assets {
		if !strings.EqualFold(asset.Blockchain, blockchain) {
			continue
		}
		if filterSymbol != "" && !strings.Contains(strings.ToUpper(asset.Symbol), strings.ToUpper(filterSymbol)) {
			continue
		}
		filtered = append(filtered, asset)
	}
	sort.Slice(filtered, func(i, j int) bool { return filtered[i].Symbol < filtered[j].Symbol })

	if a.json {
		printJSON(filtered)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 90))
	color.Green("  1CLICK TOKENS ON %s", strings.ToUpper(blockchain))
	fmt.Println(strings.Repeat("=", 90))
	for _, asset := range filtered {
		address := asset.ContractAddress
		if len(address) > 44 {
			address = address[:41] + "..."
		}
		fmt.Printf("  %-10s  %2d decimals  %s\n", color.YellowString(asset.Symbol), asset.Decimals, address)
	}
	fmt.Println(strings.Repeat("=", 90))
	fmt.Printf("Total: %d tokens\n\n", len(filtered))
}

func runAddToken(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	token := types.Token{
		Address: args[0],
		Symbol:  strings.ToUpper(args[1]),
		Name:    tokenName,
		ChainID: a.network.ChainID,
	}

	if len(args) == 3 {
		decimals, err := strconv.ParseInt(args[2], 10, 32)
		if err != nil {
			printError(fmt.Errorf("invalid decimals %q", args[2]))
			os.Exit(1)
		}
		token.Decimals = int32(decimals)
	} else {
		if !common.IsHexAddress(token.Address) {
			printError(fmt.Errorf("invalid token address %q", token.Address))
			os.Exit(1)
		}
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()
		if err := a.connect(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
		decimals, err := a.client.Decimals(ctx, common.HexToAddress(token.Address))
		if err != nil {
			printError(err)
			os.Exit(1)
		}
		token.Decimals = int32(decimals)
	}

	if err := a.registry.UpsertToken(token); err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(token)
		return
	}
	printSuccess(fmt.Sprintf("Saved %s (%d decimals) on %s", token.Symbol, token.Decimals, a.network.Name))
}
