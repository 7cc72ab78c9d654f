// Command gatewayctl is the gateway's admin CLI: read-only store queries
// plus a manual reconciliation trigger, generalized from the teacher's
// standalone tools/migrate_state.go and tools/backfill_bridge*.go
// (each its own flag-parsed main) into a single Cobra binary with one
// subcommand per operation, the way NimbleMarkets-dbn-go's
// cmd/dbn-go-hist structures its Databento Hist API client.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chidi150c/tradegateway/internal/config"
	"github.com/chidi150c/tradegateway/internal/store"
	"github.com/chidi150c/tradegateway/internal/venue"
)

var configFile string

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gatewayctl",
	Short: "gatewayctl inspects and reconciles trade-gateway state.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "config.yaml", "path to config.yaml (optional)")
	rootCmd.AddCommand(positionsCmd, syncCmd, webhookCmd)
}

func openStore() (*store.Client, error) {
	loader, err := config.New(configFile)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	cfg := loader.Current()
	return store.New(cfg.Database.DSN)
}

var positionsCmd = &cobra.Command{
	Use:     "positions <user> <venue>",
	Aliases: []string{"pos"},
	Short:   "List a user's stored open positions for a venue",
	Args:    cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		positions, err := st.ListPositions(context.Background(), args[0], args[1])
		if err != nil {
			return err
		}
		if len(positions) == 0 {
			fmt.Println("no open positions")
			return nil
		}
		for _, p := range positions {
			fmt.Printf("%s\t%s\tqty=%s\tentry=%s\topened=%s\n", p.Symbol, p.Side, p.Quantity, p.EntryPrice, p.OpenedAt.Format("2006-01-02T15:04:05Z"))
		}
		return nil
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync <user> <venue>",
	Short: "Trigger a manual reconciliation against the venue's live positions",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		registry := venue.NewRegistry(st, 16)
		adapter, err := registry.Resolve(context.Background(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("resolve adapter (register venue factories in cmd/gateway first): %w", err)
		}
		live, err := adapter.GetPositions(context.Background())
		if err != nil {
			return fmt.Errorf("fetch live positions: %w", err)
		}
		fmt.Printf("%d live position(s) at venue; use the running gateway's /positions/%s/sync endpoint to reconcile the in-process tracker.\n", len(live), args[0])
		return nil
	},
}

var webhookCmd = &cobra.Command{
	Use:   "webhook <request-id>",
	Short: "Print one webhook audit row (without its raw body's secret, which is never stored)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var id uint
		if _, err := fmt.Sscanf(args[0], "%d", &id); err != nil {
			return fmt.Errorf("invalid request id %q", args[0])
		}
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()
		rec, err := st.GetWebhookRequest(context.Background(), id)
		if err != nil {
			return err
		}
		fmt.Printf("id=%d user=%s venue=%s symbol=%s status=%s received=%s\n",
			rec.ID, rec.User, rec.Venue, rec.Symbol, rec.Status, rec.ReceivedAt.Format("2006-01-02T15:04:05Z"))
		if rec.FailureNote != "" {
			fmt.Printf("failure: %s\n", rec.FailureNote)
		}
		return nil
	},
}
