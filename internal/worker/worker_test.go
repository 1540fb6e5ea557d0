package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/stages"
	"github.com/svap-labs/svap/internal/store/postgres"
)

// memGateLog is an in-memory pipeline.GateStore recording transitions.
type memGateLog struct {
	statuses map[int]pipeline.Status
	tokens   map[int]string
	tokenErr error
}

func newMemGateLog() *memGateLog {
	return &memGateLog{statuses: make(map[int]pipeline.Status), tokens: make(map[int]string)}
}

func (m *memGateLog) StartStage(_ context.Context, _ string, stage int) error {
	m.statuses[stage] = pipeline.StatusRunning
	return nil
}

func (m *memGateLog) CompleteStage(_ context.Context, _ string, stage int, _ []byte) (int64, error) {
	m.statuses[stage] = pipeline.StatusCompleted
	return 1, nil
}

func (m *memGateLog) FailStage(_ context.Context, _ string, stage int, _ string) (int64, error) {
	m.statuses[stage] = pipeline.StatusFailed
	return 1, nil
}

func (m *memGateLog) MarkAwaitingApproval(_ context.Context, _ string, stage int) (int64, error) {
	m.statuses[stage] = pipeline.StatusAwaitingApproval
	return 1, nil
}

func (m *memGateLog) ApproveStage(_ context.Context, _ string, stage int) (int64, error) {
	m.statuses[stage] = pipeline.StatusApproved
	return 1, nil
}

func (m *memGateLog) CurrentStageStatus(_ context.Context, _ string, stage int) (pipeline.Status, error) {
	return m.statuses[stage], nil
}

func (m *memGateLog) StoreGateToken(_ context.Context, _ string, stage int, token string) error {
	if m.tokenErr != nil {
		return m.tokenErr
	}
	m.tokens[stage] = token
	return nil
}

func (m *memGateLog) LatestGateToken(_ context.Context, _ string, stage int) (string, error) {
	return m.tokens[stage], nil
}

// failingStore errors on the first call stage 1 makes. The embedded interface
// covers the methods this test never reaches.
type failingStore struct {
	stages.Store
}

func (failingStore) ListDocuments(context.Context, string) ([]postgres.Document, error) {
	return nil, errors.New("database gone")
}

func testRunner(log *memGateLog, env *stages.Env) *Runner {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(pipeline.NewOrchestrator(log, logger), pipeline.NewGateCoordinator(log, logger), env, logger)
}

func TestHandleGateParksStageAndStoresToken(t *testing.T) {
	log := newMemGateLog()
	r := testRunner(log, nil)

	msg := queue.StageMessage{RunID: "run_1", Stage: 2, Trigger: "gate", Gate: true, TaskToken: "tok-123"}
	if err := r.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	if log.statuses[2] != pipeline.StatusAwaitingApproval {
		t.Errorf("stage status = %v, want awaiting_approval", log.statuses[2])
	}
	if log.tokens[2] != "tok-123" {
		t.Errorf("stored token = %q, want tok-123", log.tokens[2])
	}
}

func TestHandleGateTokenRoundTrip(t *testing.T) {
	log := newMemGateLog()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	gates := pipeline.NewGateCoordinator(log, logger)
	r := New(pipeline.NewOrchestrator(log, logger), gates, nil, logger)

	msg := queue.StageMessage{RunID: "run_1", Stage: 5, Gate: true, TaskToken: "continuation-abc"}
	if err := r.Handle(context.Background(), msg); err != nil {
		t.Fatalf("handle: %v", err)
	}

	token, err := gates.ResumeOnApproval(context.Background(), "run_1", 5)
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if token != "continuation-abc" {
		t.Errorf("approval returned token %q, want continuation-abc", token)
	}
}

func TestHandleGateStoreFailureStaysPending(t *testing.T) {
	log := newMemGateLog()
	log.tokenErr = errors.New("write failed")
	r := testRunner(log, nil)

	msg := queue.StageMessage{RunID: "run_1", Stage: 2, Gate: true, TaskToken: "tok"}
	if err := r.Handle(context.Background(), msg); err == nil {
		t.Error("a failed token write must propagate so the message is redelivered")
	}
}

func TestHandleUnknownStageConsumesMessage(t *testing.T) {
	r := testRunner(newMemGateLog(), nil)
	if err := r.Handle(context.Background(), queue.StageMessage{RunID: "run_1", Stage: 99}); err != nil {
		t.Errorf("unknown stage should be dropped, got %v", err)
	}
}

func TestHandleStageFailureConsumesMessage(t *testing.T) {
	log := newMemGateLog()
	env := &stages.Env{
		Store:  failingStore{},
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	r := testRunner(log, env)

	err := r.Handle(context.Background(), queue.StageMessage{RunID: "run_1", Stage: 1, Trigger: "api"})
	if err != nil {
		t.Errorf("stage failure is terminal in the stage log, handle must return nil, got %v", err)
	}
	if log.statuses[1] != pipeline.StatusFailed {
		t.Errorf("stage status = %v, want failed", log.statuses[1])
	}
}
