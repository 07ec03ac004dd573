package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flashtrade/pkg/dex/oneclick"
)

var (
	intentAddress string
	waitStatus    bool
)

var statusCmd = &cobra.Command{
	Use:   "status [tx-hash]",
	Short: "Check the status of a swap",
	Long: `Check a submitted swap transaction, or a 1Click intent by its deposit
address.

Examples:
  flashtrade status 0x5c50...
  flashtrade status 0x5c50... --wait
  flashtrade status --intent 0xDepositAddress --wait`,
	Args: cobra.MaximumNArgs(1),
	Run:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)

	statusCmd.Flags().StringVar(&intentAddress, "intent", "", "1Click deposit address to check")
	statusCmd.Flags().BoolVarP(&waitStatus, "wait", "w", false, "Wait until the swap settles")
}

func runStatus(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	timeout := 30 * time.Second
	if waitStatus {
		timeout = 30 * time.Minute
	}
	ctx, cancel := commandContext(cmd, timeout)
	defer cancel()

	if intentAddress != "" {
		intentStatus(ctx, a, waitStatus)
		return
	}
	if len(args) != 1 {
		printError(fmt.Errorf("transaction hash or --intent is required"))
		os.Exit(1)
	}

	hash := common.HexToHash(args[0])
	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}

	stop := a.spin("Fetching receipt...")
	var receipt *ethtypes.Receipt
	if waitStatus {
		receipt, err = a.client.WaitReceipt(ctx, hash, 3*time.Second)
	} else {
		receipt, err = a.client.Receipt(ctx, hash)
	}
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	status := "PENDING"
	if receipt != nil {
		status = "SUCCESS"
		if receipt.Status == ethtypes.ReceiptStatusFailed {
			status = "REVERTED"
		}
	}

	if a.json {
		out := map[string]interface{}{"hash": hash.Hex(), "status": status}
		if receipt != nil {
			out["block"] = receipt.BlockNumber.Uint64()
			out["gas_used"] = receipt.GasUsed
		}
		printJSON(out)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                  TRANSACTION STATUS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Hash:     %s\n", hash.Hex())
	fmt.Printf("  Status:   %s\n", colorStatus(status))
	if receipt != nil {
		fmt.Printf("  Block:    %d\n", receipt.BlockNumber.Uint64())
		fmt.Printf("  Gas used: %d\n", receipt.GasUsed)
	}
	if a.network.Explorer != "" {
		fmt.Printf("  Explorer: %s/tx/%s\n", a.network.Explorer, hash.Hex())
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func intentStatus(ctx context.Context, a *app, wait bool) {
	if a.cfg.OneClick.JWTToken == "" {
		printError(fmt.Errorf("1Click JWT token not found. Please set FLASHTRADE_ONECLICK_JWT_TOKEN"))
		os.Exit(1)
	}

	if err := a.connect(ctx); err != nil {
		printError(err)
		os.Exit(1)
	}
	adapter, err := a.venue("oneclick")
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	intents, ok := adapter.(*oneclick.Adapter)
	if !ok {
		printError(fmt.Errorf("venue 'oneclick' is not a 1Click adapter"))
		os.Exit(1)
	}

	stop := a.spin("Checking intent status...")
	var status *oneclick.ExecutionStatus
	if wait {
		status, err = intents.WaitStatus(ctx, intentAddress, 5*time.Second)
	} else {
		status, err = intents.Status(ctx, intentAddress)
	}
	stop()
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if a.json {
		printJSON(status)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 60))
	color.Green("                    INTENT STATUS")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("\n  Deposit:  %s\n", intentAddress)
	fmt.Printf("  Status:   %s\n", colorStatus(status.Status))
	if !status.UpdatedAt.IsZero() {
		fmt.Printf("  Updated:  %s\n", status.UpdatedAt.Format(time.RFC3339))
	}
	if status.AmountIn != "" {
		fmt.Printf("  In:       %s\n", status.AmountIn)
	}
	if status.AmountOut != "" {
		fmt.Printf("  Out:      %s\n", status.AmountOut)
	}
	for _, h := range status.OriginTxHashes {
		fmt.Printf("  Origin:   %s\n", h)
	}
	for _, h := range status.DestinationHashes {
		fmt.Printf("  Dest:     %s\n", h)
	}
	fmt.Println("\n" + strings.Repeat("=", 60) + "\n")
}

func colorStatus(status string) string {
	switch status {
	case "SUCCESS", "COMPLETED":
		return color.GreenString("%s", status)
	case "FAILED", "REFUNDED", "REVERTED":
		return color.RedString("%s", status)
	default:
		return color.YellowString("%s", status)
	}
}
