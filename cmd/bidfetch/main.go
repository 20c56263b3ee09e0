package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor = os.Getenv("NO_COLOR") != ""

var rootCmd = &cobra.Command{
	Use:   "bidfetch",
	Short: "Scrape purchase orders, artwork and messages from the vendor portal",
	Long: `bidfetch logs into the vendor portal with a headless browser, scrapes
purchase orders, line items, artwork files and buyer messages, and keeps them
in a local SQLite store served over REST and MCP.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", noColor, "disable colored output")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)
	rootCmd.AddCommand(fetchCmd)
	rootCmd.AddCommand(downloadCmd)
	rootCmd.AddCommand(messagesCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(ordersCmd)
	rootCmd.AddCommand(itemsCmd)
	rootCmd.AddCommand(qcReportCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		printError("%v", err)
		os.Exit(1)
	}
}
