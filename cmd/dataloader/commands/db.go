package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/display"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/sym"
)

// DbCmd represents the db (database) command
var DbCmd = &cobra.Command{
	Use:   "db",
	Short: sym.DB + " Manage the configuration store",
	Long: sym.DB + ` db — Manage the configuration store

Apply schema migrations and show how many job configurations, lineages and
catalog entries the store holds.

Examples:
  dataloader db migrate           # Apply pending migrations
  dataloader db stats             # Show store statistics`,
}

var dbMigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending schema migrations",
	RunE:  runDbMigrate,
}

var dbStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show store statistics",
	RunE:  runDbStats,
}

func init() {
	DbCmd.AddCommand(dbMigrateCmd)
	DbCmd.AddCommand(dbStatsCmd)
}

func runDbMigrate(cmd *cobra.Command, args []string) error {
	cfg, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Fprintf(cmd.OutOrStdout(), "%s %s store is migrated\n", sym.DB, driverName(cfg))
	return nil
}

// StoreStats counts what the configuration store holds
type StoreStats struct {
	Driver      string         `json:"driver"`
	Records     map[string]int `json:"records"`
	Lineages    int            `json:"lineages"`
	Resources   int            `json:"resources"`
	Mappings    int            `json:"mappings"`
	Deployments int            `json:"deployments"`
	Activity    int            `json:"activity"`
}

func runDbStats(cmd *cobra.Command, args []string) error {
	cfg, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	stats := StoreStats{Driver: driverName(cfg), Records: map[string]int{}}

	rows, err := database.QueryContext(cmd.Context(), `SELECT state, COUNT(*) FROM job_configs GROUP BY state`)
	if err != nil {
		return errors.Wrap(err, "failed to count job configurations")
	}
	defer rows.Close()
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return errors.Wrap(err, "failed to scan job configuration counts")
		}
		stats.Records[state] = n
	}
	if err := rows.Err(); err != nil {
		return errors.Wrap(err, "failed to count job configurations")
	}

	for table, dest := range map[string]*int{
		"job_references":        &stats.Lineages,
		"resources":             &stats.Resources,
		"mappings":              &stats.Mappings,
		"scheduled_deployments": &stats.Deployments,
		"activity_log":          &stats.Activity,
	} {
		if err := database.QueryRowContext(cmd.Context(), `SELECT COUNT(*) FROM `+table).Scan(dest); err != nil {
			return errors.Wrapf(err, "failed to count %s", table)
		}
	}

	if display.ShouldOutputJSON(cmd) {
		return display.OutputJSON(stats)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Store Statistics\n", sym.DB)
	fmt.Fprintf(out, "━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━\n\n")
	fmt.Fprintf(out, "Driver:        %s\n", stats.Driver)
	if stats.Driver != "postgres" {
		fmt.Fprintf(out, "Path:          %s\n", cfg.GetDatabasePath())
	}
	fmt.Fprintf(out, "Lineages:      %d\n", stats.Lineages)
	fmt.Fprintf(out, "  %s Drafts:     %d\n", sym.Draft, stats.Records["DRAFT"])
	fmt.Fprintf(out, "  %s Published:  %d\n", sym.Published, stats.Records["PUBLISHED"])
	fmt.Fprintf(out, "  %s Deployed:   %d\n", sym.Deployed, stats.Records["DEPLOYED"])
	fmt.Fprintf(out, "Resources:     %d\n", stats.Resources)
	fmt.Fprintf(out, "Mappings:      %d\n", stats.Mappings)
	fmt.Fprintf(out, "Queued:        %d\n", stats.Deployments)
	fmt.Fprintf(out, "Activity:      %d events\n", stats.Activity)
	return nil
}
