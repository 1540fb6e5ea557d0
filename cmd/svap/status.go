package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/stages"
)

var statusRunID string

var statusCommand = &cobra.Command{
	Use:   "status",
	Short: "Show the status of every pipeline stage",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := newCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.resolveRun(ctx, statusRunID)
		if err != nil {
			return err
		}

		rows, err := env.store.PipelineStatus(ctx, runID)
		if err != nil {
			return err
		}
		byStage := make(map[int]string)
		errs := make(map[int]string)
		for _, row := range rows {
			byStage[row.Stage] = row.Status
			if row.ErrorMessage != nil {
				errs[row.Stage] = *row.ErrorMessage
			}
		}

		fmt.Printf("Run: %s\n\n", runID)
		for _, s := range stages.All() {
			status, ok := byStage[s.Number]
			if !ok {
				status = pipeline.StatusNone.String()
			}
			fmt.Printf("  %3d  %-36s %s\n", s.Number, s.Name, status)
			if msg, ok := errs[s.Number]; ok {
				fmt.Printf("       error: %s\n", msg)
			}
		}
		return nil
	},
}

func init() {
	statusCommand.Flags().StringVar(&statusRunID, "run", "", "Run ID (defaults to the latest run)")
	rootCmd.AddCommand(statusCommand)
}
