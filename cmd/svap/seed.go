package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/seed"
)

var seedDir string

var seedCommand = &cobra.Command{
	Use:   "seed",
	Short: "Load curated taxonomy and policy scan targets",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := newCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := ensureRun(ctx, env)
		if err != nil {
			return err
		}

		res, err := seed.Load(ctx, env.store, seedDir, runID, env.logger)
		if err != nil {
			return err
		}

		fmt.Println("Seed data loaded successfully.")
		fmt.Printf("  Taxonomy qualities: %d\n", res.Taxonomy)
		fmt.Printf("  Policies:           %d\n", res.Policies)
		return nil
	},
}

func init() {
	seedCommand.Flags().StringVar(&seedDir, "dir", "./seed_data", "Directory holding taxonomy.json and policies.json")
	rootCmd.AddCommand(seedCommand)
}
