// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "gh-productivity",
	Short: "A CLI tool to track a user's GitHub activity.",
	Long: `gh-productivity aggregates a user's activity (commits across all
branches, pull requests, reviews, issues, line changes) across every
repository in a GitHub organization or personal account within a time
window, and renders the result as console, text and SVG reports.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A local .env file fills in missing environment variables;
		// the real environment always wins.
		godotenv.Load()
	},
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	// Add a persistent flag for verbose output, available to all commands.
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
}
