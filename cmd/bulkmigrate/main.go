package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "bulkmigrate",
	Short: "Postgres-to-Postgres table migration engine",
	// With no subcommand, start the HTTP+WebSocket server exactly as
	// `serve` does.
	RunE: runServe,
}

func main() {
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(serveCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
