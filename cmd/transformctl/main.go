// Package main implements the transformctl CLI for driving a transformd
// server: listing repositories, starting transformation sessions and
// following their progress.
package main

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	// serverURL is the base URL for the transformd HTTP server
	serverURL string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "transformctl",
	Short: "CLI for transformd server operations",
	Long: `transformctl is a command-line interface for the transformd HTTP server.
It starts transformation sessions, follows their event streams and lists
the repositories available to a GitHub token.`,
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8090", "transformd server URL")
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(watchCmd)
}
