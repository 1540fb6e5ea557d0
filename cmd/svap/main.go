// Package main provides the svap CLI: run stages, seed reference data,
// inspect status, approve gates, ingest documents, and export results.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "svap",
	Short: "Structural Vulnerability Analysis Pipeline",
	Long: `SVAP analyzes policy corpora for structural vulnerability to exploitation:
it extracts enforcement cases, distills a vulnerability taxonomy, scores
policies against it, and generates exploitation predictions and detection
patterns, with human review gates between the reasoning stages.`,
}

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
