package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestAppendAndReadLatest(t *testing.T) {
	// After any sequence of transitions, current status equals the status
	// the last call established.
	ctx := context.Background()
	log := &memLog{}
	run := "run_1"

	steps := []struct {
		apply func() error
		want  Status
	}{
		{func() error { return log.StartStage(ctx, run, 1) }, StatusRunning},
		{func() error { _, err := log.FailStage(ctx, run, 1, "first try"); return err }, StatusFailed},
		{func() error { return log.StartStage(ctx, run, 1) }, StatusRunning},
		{func() error { _, err := log.CompleteStage(ctx, run, 1, nil); return err }, StatusCompleted},
		{func() error { return log.StartStage(ctx, run, 1) }, StatusRunning},
		{func() error { _, err := log.MarkAwaitingApproval(ctx, run, 1); return err }, StatusAwaitingApproval},
	}

	for i, s := range steps {
		if err := s.apply(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
		got, err := log.CurrentStageStatus(ctx, run, 1)
		if err != nil {
			t.Fatalf("step %d status: %v", i, err)
		}
		if got != s.want {
			t.Fatalf("step %d: status = %q, want %q", i, got, s.want)
		}
	}
}

func TestApproveStageIdempotent(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	run := "run_1"

	// Not awaiting approval: zero rows.
	if n, _ := log.ApproveStage(ctx, run, 2); n != 0 {
		t.Fatalf("approve before any attempt changed %d rows, want 0", n)
	}

	log.StartStage(ctx, run, 2)
	log.MarkAwaitingApproval(ctx, run, 2)

	if n, _ := log.ApproveStage(ctx, run, 2); n != 1 {
		t.Fatalf("first approve changed %d rows, want 1", n)
	}
	if n, _ := log.ApproveStage(ctx, run, 2); n != 0 {
		t.Fatalf("second approve changed %d rows, want 0", n)
	}

	status, _ := log.CurrentStageStatus(ctx, run, 2)
	if status != StatusApproved {
		t.Fatalf("status = %q, want approved", status)
	}
}

func TestPrerequisite(t *testing.T) {
	tests := []struct {
		stage    int
		want     int
		required bool
	}{
		{1, 0, false},
		{2, 1, true},
		{3, 2, true},
		{4, 3, true},
		{5, 4, true},
		{6, 5, true},
		{40, 3, true},
		{41, 40, true},
		{42, 41, true},
	}
	for _, tt := range tests {
		got, required := Prerequisite(tt.stage)
		if required != tt.required || (required && got != tt.want) {
			t.Errorf("Prerequisite(%d) = (%d, %v), want (%d, %v)",
				tt.stage, got, required, tt.want, tt.required)
		}
	}
}

func TestRunStageFirstStageCompletes(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	err := orch.RunStage(ctx, run, 1, func(ctx context.Context, runID string) error {
		_, err := log.CompleteStage(ctx, runID, 1, nil)
		return err
	})
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}

	status, _ := log.CurrentStageStatus(ctx, run, 1)
	if status != StatusCompleted {
		t.Fatalf("status = %q, want completed", status)
	}
}

func TestRunStagePrerequisiteNotSatisfied(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	// Stage 2 parked at its gate; stage 3 must refuse to run.
	log.StartStage(ctx, run, 2)
	log.MarkAwaitingApproval(ctx, run, 2)

	err := orch.RunStage(ctx, run, 3, func(context.Context, string) error {
		t.Fatal("stage logic ran despite unsatisfied prerequisite")
		return nil
	})

	var perr *PrerequisiteError
	if !errors.As(err, &perr) {
		t.Fatalf("error = %v, want PrerequisiteError", err)
	}
	if perr.Prerequisite != 2 || perr.Status != StatusAwaitingApproval {
		t.Fatalf("error names stage %d status %q, want stage 2 awaiting_approval",
			perr.Prerequisite, perr.Status)
	}

	if status, _ := log.CurrentStageStatus(ctx, run, 3); status != StatusNone {
		t.Fatalf("stage 3 status = %q, want not attempted", status)
	}
}

func TestRunStageApprovedPrerequisiteSatisfies(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	log.StartStage(ctx, run, 2)
	log.MarkAwaitingApproval(ctx, run, 2)
	log.ApproveStage(ctx, run, 2)

	err := orch.RunStage(ctx, run, 3, func(ctx context.Context, runID string) error {
		_, err := log.CompleteStage(ctx, runID, 3, nil)
		return err
	})
	if err != nil {
		t.Fatalf("RunStage: %v", err)
	}
}

func TestRunStageErrorRecordsFailure(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	stageErr := errors.New("reasoning call exploded")
	err := orch.RunStage(ctx, run, 1, func(context.Context, string) error {
		return stageErr
	})

	var lerr *StageLogicError
	if !errors.As(err, &lerr) {
		t.Fatalf("error = %v, want StageLogicError", err)
	}
	if !errors.Is(err, stageErr) {
		t.Fatal("original error not preserved in chain")
	}

	status, _ := log.CurrentStageStatus(ctx, run, 1)
	if status != StatusFailed {
		t.Fatalf("status = %q, want failed", status)
	}
	if got := log.lastError(run, 1); !strings.Contains(got, "reasoning call exploded") {
		t.Fatalf("recorded error = %q, want original text preserved", got)
	}
}

func TestRunStagePanicRecordsFailure(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	func() {
		defer func() {
			if recover() == nil {
				t.Fatal("panic was swallowed")
			}
		}()
		orch.RunStage(ctx, run, 1, func(context.Context, string) error {
			panic("stage blew up")
		})
	}()

	status, _ := log.CurrentStageStatus(ctx, run, 1)
	if status != StatusFailed {
		t.Fatalf("status = %q, want failed", status)
	}
}

func TestRunStageRejectsDuplicateStart(t *testing.T) {
	ctx := context.Background()
	log := &memLog{}
	orch := NewOrchestrator(log, discardLogger())
	run := "run_1"

	log.StartStage(ctx, run, 1)

	err := orch.RunStage(ctx, run, 1, func(context.Context, string) error {
		t.Fatal("stage logic ran while a running attempt existed")
		return nil
	})
	if !errors.Is(err, ErrStageRunning) {
		t.Fatalf("error = %v, want ErrStageRunning", err)
	}
}
