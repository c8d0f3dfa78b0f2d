package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teranos/dataloader/am"
	"github.com/teranos/dataloader/errors"
	"github.com/teranos/dataloader/logger"
	"github.com/teranos/dataloader/server"
	"github.com/teranos/dataloader/sym"
	"github.com/teranos/dataloader/version"
)

// ServerCmd starts the HTTP API
var ServerCmd = &cobra.Command{
	Use:     "server",
	Aliases: []string{"serve"},
	Short:   sym.Server + " Start the dataloader HTTP API",
	Long: sym.Server + ` server — HTTP API

Serve the job configuration lifecycle and the catalog over JSON/HTTP.
The port comes from server.port (default 8742); if it is taken the next
free port is used. Changes to the config file are picked up while running
for log verbosity, allowed origins and the scheduler timeout.`,
	RunE: runServer,
}

var serverPort int

func init() {
	ServerCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "Port to listen on (overrides server.port)")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, database, err := openDatabase()
	if err != nil {
		return err
	}
	defer database.Close()

	port := cfg.GetServerPort()
	if serverPort != 0 {
		port = serverPort
	}

	srv, err := server.New(database, cfg, logger.ComponentLogger("server"))
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}
	srv.WatchConfig(am.GetViper().ConfigFileUsed())

	printStartupBanner(cfg, port)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Start(port)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case err := <-errChan:
		if err != nil {
			return errors.Wrap(err, "server failed to start")
		}
		return nil
	case <-sigChan:
		pterm.Info.Println("\nShutting down gracefully (press Ctrl+C again to force)...")

		shutdownDone := make(chan error, 1)
		go func() {
			shutdownDone <- srv.Stop()
		}()

		select {
		case err := <-shutdownDone:
			if err != nil {
				return fmt.Errorf("shutdown error: %w", err)
			}
			pterm.Success.Println("Server stopped cleanly")
			return nil
		case <-sigChan:
			pterm.Warning.Println("\nForce shutdown - exiting immediately")
			os.Exit(1)
			return nil
		}
	}
}

func printStartupBanner(cfg *am.Config, port int) {
	pterm.DefaultSection.Printf("%s dataloader %s", sym.Server, version.Get().Version)

	store := cfg.GetDatabasePath()
	if cfg.Database.Driver == am.DriverPostgres {
		store = "postgres"
	}
	rows := pterm.TableData{
		{"Port", fmt.Sprintf("%d", port)},
		{sym.DB + " Store", store},
		{sym.Scheduler + " Scheduler", cfg.Scheduler.Mode},
	}
	if cfg.Scheduler.Mode == am.SchedulerHTTP {
		rows = append(rows, []string{"Scheduler URL", cfg.Scheduler.URL})
	}
	if err := pterm.DefaultTable.WithData(rows).Render(); err != nil {
		pterm.Warning.Printf("Failed to render banner: %v\n", err)
	}
}
