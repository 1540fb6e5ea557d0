package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// Sub-stage prerequisites. Everything else requires stage N-1; stage 1 has
// no prerequisite.
var prerequisites = map[int]int{40: 3, 41: 40, 42: 41}

// Prerequisite returns the stage that must be completed or approved before
// the given stage may run. The second return is false when the stage has no
// prerequisite.
func Prerequisite(stage int) (int, bool) {
	if p, ok := prerequisites[stage]; ok {
		return p, true
	}
	if stage > 1 {
		return stage - 1, true
	}
	return 0, false
}

// StageFunc is one stage's business logic. It must drive its own terminal
// transition (complete, fail, or awaiting approval) exactly once before
// returning nil; a returned error means no terminal transition happened and
// the orchestrator records the failure.
type StageFunc func(ctx context.Context, runID string) error

// Orchestrator drives stage execution for a run: prerequisite checks first,
// then the stage's business logic, with a guarantee that no attempt is left
// running after an error escapes the stage.
type Orchestrator struct {
	log    StageLog
	logger *slog.Logger
}

func NewOrchestrator(log StageLog, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{log: log, logger: logger}
}

// RunStage executes one stage. Stages of the same run are expected to run
// strictly sequentially; concurrency lives inside stage logic via Dispatch.
func (o *Orchestrator) RunStage(ctx context.Context, runID string, stage int, logic StageFunc) (err error) {
	if prereq, required := Prerequisite(stage); required {
		status, serr := o.log.CurrentStageStatus(ctx, runID, prereq)
		if serr != nil {
			return fmt.Errorf("check prerequisite of stage %d: %w", stage, serr)
		}
		if !status.Satisfied() {
			return &PrerequisiteError{Stage: stage, Prerequisite: prereq, Status: status}
		}
	}

	current, serr := o.log.CurrentStageStatus(ctx, runID, stage)
	if serr != nil {
		return fmt.Errorf("check current status of stage %d: %w", stage, serr)
	}
	if current == StatusRunning {
		return fmt.Errorf("stage %d: %w", stage, ErrStageRunning)
	}

	if err := o.log.StartStage(ctx, runID, stage); err != nil {
		return fmt.Errorf("start stage %d: %w", stage, err)
	}
	o.logger.Info("stage started", "run_id", runID, "stage", stage)

	// A panic escaping stage logic must not leave the attempt running.
	defer func() {
		if r := recover(); r != nil {
			o.recordFailure(runID, stage, fmt.Sprintf("panic: %v", r))
			panic(r)
		}
	}()

	if lerr := logic(ctx, runID); lerr != nil {
		o.recordFailure(runID, stage, lerr.Error())
		return &StageLogicError{Stage: stage, Err: lerr}
	}

	o.logger.Info("stage finished", "run_id", runID, "stage", stage)
	return nil
}

// recordFailure transitions the running attempt to failed. Uses a fresh
// context so a canceled stage still gets its terminal record.
func (o *Orchestrator) recordFailure(runID string, stage int, errorText string) {
	if _, ferr := o.log.FailStage(context.Background(), runID, stage, errorText); ferr != nil {
		o.logger.Error("could not record stage failure",
			"run_id", runID, "stage", stage, "error", ferr)
	}
}
