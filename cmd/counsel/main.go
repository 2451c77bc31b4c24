package main

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "counsel",
	Short: "Legal document analysis with a team of specialist agents",
	Long: `counsel runs a local analysis server that ingests legal documents into a
vector knowledge base and answers questions about them through a team of
role-scoped agents (researcher, analyst, strategist).

Typical flow:
  counsel start                                 # run the server (foreground)
  counsel session open                          # open a session with your API keys
  counsel ingest <session-id> --file lease.pdf  # index a document
  counsel analyze <session-id> --mode contract-review`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(sessionCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(documentsCmd)
	rootCmd.AddCommand(analysesCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
