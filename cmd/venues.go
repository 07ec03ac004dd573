package cmd

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"flashtrade/pkg/types"
)

var checkReady bool

var venuesCmd = &cobra.Command{
	Use:     "venues",
	Aliases: []string{"dexes"},
	Short:   "List exchange venues and their status",
	Long: `List every venue in the registry for the selected network.

Examples:
  flashtrade venues
  flashtrade venues --check
  flashtrade venues disable sushiswap
  flashtrade venues enable sushiswap`,
	Args: cobra.NoArgs,
	Run:  runVenues,
}

var venuesEnableCmd = &cobra.Command{
	Use:   "enable <venue-id>",
	Short: "Include a venue in routing",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setVenueActive(cmd, args[0], true) },
}

var venuesDisableCmd = &cobra.Command{
	Use:   "disable <venue-id>",
	Short: "Exclude a venue from routing",
	Args:  cobra.ExactArgs(1),
	Run:   func(cmd *cobra.Command, args []string) { setVenueActive(cmd, args[0], false) },
}

func init() {
	rootCmd.AddCommand(venuesCmd)
	venuesCmd.AddCommand(venuesEnableCmd, venuesDisableCmd)

	venuesCmd.Flags().BoolVar(&checkReady, "check", false, "Check that each active venue is reachable")
}

type venueRow struct {
	types.DEX
	Ready *bool `json:"ready,omitempty"`
}

func runVenues(cmd *cobra.Command, args []string) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}
	defer a.close()

	rows := make([]venueRow, 0)
	for _, d := range a.registry.DEXes() {
		if d.SupportsChain(a.network.ChainID) {
			rows = append(rows, venueRow{DEX: d})
		}
	}

	if checkReady {
		ctx, cancel := commandContext(cmd, 30*time.Second)
		defer cancel()

		if err := a.connect(ctx); err != nil {
			printError(err)
			os.Exit(1)
		}
		stop := a.spin("Checking venues...")
		for i := range rows {
			if !rows[i].Active {
				continue
			}
			adapter, ok := a.router.Adapter(rows[i].ID)
			ready := ok && adapter.IsReady(ctx)
			rows[i].Ready = &ready
		}
		stop()
	}

	if a.json {
		printJSON(rows)
		return
	}

	fmt.Println("\n" + strings.Repeat("=", 70))
	color.Green("  VENUES ON %s (chain %d)", strings.ToUpper(a.network.Name), a.network.ChainID)
	fmt.Println(strings.Repeat("=", 70))

	if len(rows) == 0 {
		fmt.Println("\nNo venues are deployed on this network.")
		return
	}
	for _, row := range rows {
		state := color.RedString("inactive")
		if row.Active {
			state = color.GreenString("active")
		}
		fmt.Printf("  %-14s %-22s %-10s %4d bps  %s\n", row.ID, row.Name, row.Protocol, row.FeeBps, state)
		if row.Ready != nil {
			if *row.Ready {
				color.Green("  %14s reachable", "")
			} else {
				color.Yellow("  %14s unreachable", "")
			}
		}
	}
	fmt.Println(strings.Repeat("=", 70))
	fmt.Printf("Registry: %s\n\n", a.registry.Path())
}

func setVenueActive(cmd *cobra.Command, id string, active bool) {
	a, err := newApp(cmd)
	if err != nil {
		printError(err)
		os.Exit(1)
	}

	if err := a.registry.SetActive(id, active); err != nil {
		printError(err)
		os.Exit(1)
	}

	state := "disabled"
	if active {
		state = "enabled"
	}
	if a.json {
		printJSON(map[string]interface{}{"id": id, "active": active})
		return
	}
	printSuccess(fmt.Sprintf("Venue '%s' %s. Routing picks the change up on the next quote.", id, state))
}
