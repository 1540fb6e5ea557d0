package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/pipeline"
)

var (
	approveStage int
	approveRunID string
)

var approveCommand = &cobra.Command{
	Use:   "approve",
	Short: "Approve a human review gate",
	Long: `Resolves a stage parked at awaiting_approval. For the taxonomy gate,
approve or reject individual draft qualities first via the API; this command
then releases the stage so downstream stages may run.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		env, err := newCLIEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		runID, err := env.resolveRun(ctx, approveRunID)
		if err != nil {
			return err
		}

		gates := pipeline.NewGateCoordinator(env.store, env.logger)
		token, err := gates.ResumeOnApproval(ctx, runID, approveStage)
		if err != nil {
			if errors.Is(err, pipeline.ErrGateNotReady) {
				return fmt.Errorf("stage %d is not awaiting approval", approveStage)
			}
			return err
		}

		fmt.Printf("Stage %d approved.\n", approveStage)
		if token != "" {
			fmt.Printf("Continuation token: %s\n", token)
		}
		return nil
	},
}

func init() {
	approveCommand.Flags().IntVar(&approveStage, "stage", 0, "Stage to approve")
	approveCommand.Flags().StringVar(&approveRunID, "run", "", "Run ID (defaults to the latest run)")
	_ = approveCommand.MarkFlagRequired("stage")
	rootCmd.AddCommand(approveCommand)
}
