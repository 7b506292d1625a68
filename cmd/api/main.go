// Package main is the entrypoint for the ridesplit API server.
package main

import (
	"fmt"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/ridesplit/ridesplit/internal/config"
)

var (
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd runs the API server when no subcommand is given.
var rootCmd = &cobra.Command{
	Use:   "ridesplit",
	Short: "ridesplit - airport rideshare groups for students",
	Long: `ridesplit matches riders heading to the same airport terminal into
shared car groups on fixed 30 minute departure slots, hosts the group chat,
and splits the fare once someone uploads the receipt.

Run without arguments to start the API server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return err
		}
		logger = newLogger(cfg.LogLevel, cfg.LogFormat)
		return nil
	},
	RunE: runServe,
}

func init() {
	migrateCmd.Flags().BoolVar(&migrateDown, "down", false, "roll back every migration instead of applying them")
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")
	rootCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(cleanupCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
