package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/cmd/dataloader/commands"
	"github.com/teranos/dataloader/logger"
)

var rootCmd = &cobra.Command{
	Use:   "dataloader",
	Short: "dataloader - job configuration lifecycle for data loading",
	Long: `dataloader - job configuration lifecycle for data loading.

dataloader keeps versioned job configurations that move a source resource
into a target resource, publishes immutable snapshots of them and hands
deployed bundles to a scheduler.

Available commands:
  am       - Manage dataloader configuration ("I am")
  db       - Migrate and inspect the configuration store
  job      - Draft, publish, deploy and inspect job configurations
  resource - Manage the connection catalog
  mapping  - Manage field mappings
  queue    - Inspect the local scheduler queue
  server   - Start the HTTP API

Examples:
  dataloader am show                       # Show current configuration
  dataloader resource add -f orders-db.yaml
  dataloader job draft -f orders.yaml      # Save a draft
  dataloader job publish --id <draft-id>   # Publish it as v1.0
  dataloader job deploy <published-id>     # Deploy and submit
  dataloader server                        # Serve the HTTP API`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := am.LoadDotEnv(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}

		verbosity, _ := cmd.Flags().GetCount("verbose")
		jsonLogs := false
		if cfg, err := am.Load(); err == nil {
			jsonLogs = cfg.Log.JSON
			if verbosity == 0 {
				verbosity = cfg.Log.Verbosity
			}
		}
		if err := logger.Initialize(jsonLogs, verbosity); err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if actor, _ := cmd.Flags().GetString("actor"); strings.TrimSpace(actor) != "" {
			cmd.SetContext(logger.WithActor(cmd.Context(), actor))
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logger.Cleanup()
	},
}

func init() {
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase output verbosity (repeat for more detail: -v, -vv, -vvv)")
	rootCmd.PersistentFlags().Bool("json", false, "Output results as JSON")
	rootCmd.PersistentFlags().String("actor", "", "Actor recorded on created and updated records (default from config)")

	rootCmd.AddCommand(commands.AmCmd)
	rootCmd.AddCommand(commands.DbCmd)
	rootCmd.AddCommand(commands.JobCmd)
	rootCmd.AddCommand(commands.ResourceCmd)
	rootCmd.AddCommand(commands.MappingCmd)
	rootCmd.AddCommand(commands.QueueCmd)
	rootCmd.AddCommand(commands.ServerCmd)
	rootCmd.AddCommand(commands.VersionCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
