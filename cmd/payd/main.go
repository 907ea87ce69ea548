package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/groblegark/payd/internal/ui"
)

var (
	serverURL  string
	authToken  string
	jsonOutput bool
)

func defaultServerURL() string {
	if s := os.Getenv("PAYD_SERVER_URL"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

var rootCmd = &cobra.Command{
	Use:   "payd <command>",
	Short: "Payment account lifecycle service",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if !ui.ShouldUseColor() {
			ui.ForceNoColor()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", defaultServerURL(), "server base URL")
	rootCmd.PersistentFlags().StringVar(&authToken, "token", os.Getenv("PAYD_AUTH_TOKEN"), "bearer token for admin endpoints")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON instead of tables")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(circuitsCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
