package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/stages"
)

var (
	runStage string
	runRunID string
	runNotes string
)

var runCommand = &cobra.Command{
	Use:   "run",
	Short: "Run pipeline stages synchronously",
	Long: `Runs a single stage, or every stage in order with --stage all. Execution
stops at a human review gate; resolve it with 'svap approve' and run again.
Without --run, a new run is created when none exists, otherwise the latest
run is continued.`,
	RunE: runPipelineCmd,
}

func init() {
	runCommand.Flags().StringVar(&runStage, "stage", "", "Stage number (1-6, 40-42) or 'all'")
	runCommand.Flags().StringVar(&runRunID, "run", "", "Run ID (defaults to the latest run)")
	runCommand.Flags().StringVar(&runNotes, "notes", "", "Notes recorded on a newly created run")
	_ = runCommand.MarkFlagRequired("stage")
	rootCmd.AddCommand(runCommand)
}

func runPipelineCmd(cmd *cobra.Command, _ []string) error {
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

	stageEnv, err := env.stageEnv(ctx)
	if err != nil {
		return err
	}
	orchestrator := pipeline.NewOrchestrator(env.store, env.logger)

	var toRun []stages.Stage
	if runStage == "all" {
		toRun = stages.All()
	} else {
		n, err := strconv.Atoi(runStage)
		if err != nil {
			return fmt.Errorf("invalid stage %q", runStage)
		}
		stage, ok := stages.ByNumber(n)
		if !ok {
			return fmt.Errorf("unknown stage %d", n)
		}
		toRun = []stages.Stage{stage}
	}

	for _, stage := range toRun {
		// Continuing a run: skip stages already satisfied.
		if runStage == "all" {
			status, err := env.store.CurrentStageStatus(ctx, runID, stage.Number)
			if err != nil {
				return err
			}
			if status.Satisfied() {
				fmt.Printf("Stage %d (%s): already %s, skipping\n", stage.Number, stage.Name, status.String())
				continue
			}
		}

		fmt.Printf("Stage %d: %s\n", stage.Number, stage.Name)
		err := orchestrator.RunStage(ctx, runID, stage.Number, func(ctx context.Context, runID string) error {
			return stage.Run(ctx, stageEnv, runID)
		})
		if err != nil {
			var prereqErr *pipeline.PrerequisiteError
			if errors.As(err, &prereqErr) {
				return fmt.Errorf("stage %d blocked: stage %d is %s (approve or run it first)",
					prereqErr.Stage, prereqErr.Prerequisite, prereqErr.Status.String())
			}
			return err
		}

		status, err := env.store.CurrentStageStatus(ctx, runID, stage.Number)
		if err != nil {
			return err
		}
		if status == pipeline.StatusAwaitingApproval {
			fmt.Printf("\nStage %d is awaiting human review.\n", stage.Number)
			fmt.Printf("Review the drafts, then: svap approve --stage %d\n", stage.Number)
			return nil
		}
	}

	fmt.Println("\nDone.")
	return nil
}

// ensureRun continues the latest run, creating one when none exists.
func ensureRun(ctx context.Context, env *cliEnv) (string, error) {
	if runRunID != "" {
		return runRunID, nil
	}
	latest, err := env.store.LatestRun(ctx)
	if err == nil {
		return latest, nil
	}
	if !errors.Is(err, pipeline.ErrNoRun) {
		return "", err
	}

	runID := "run_" + time.Now().Format("20060102_150405")
	snapshot, err := json.Marshal(env.cfg.Pipeline)
	if err != nil {
		return "", err
	}
	if err := env.store.CreateRun(ctx, runID, snapshot, runNotes); err != nil {
		return "", err
	}
	fmt.Printf("Created pipeline run %s\n", runID)
	return runID, nil
}
