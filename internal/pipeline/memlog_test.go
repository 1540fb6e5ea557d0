package pipeline

import (
	"context"
	"sync"
)

// memLog is an in-memory GateStore mirroring the persistent layer's
// semantics: append-only attempts, most-recent-wins status, transitions that
// touch only the latest record in the expected state.
type memLog struct {
	mu      sync.Mutex
	entries []memEntry
}

type memEntry struct {
	runID   string
	stage   int
	status  Status
	token   string
	errText string
}

func (m *memLog) StartStage(_ context.Context, runID string, stage int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, memEntry{runID: runID, stage: stage, status: StatusRunning})
	return nil
}

// transition updates the most recent entry for (run, stage) currently in
// from, returning rows affected.
func (m *memLog) transition(runID string, stage int, from, to Status, errText string) int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := &m.entries[i]
		if e.runID == runID && e.stage == stage && e.status == from {
			e.status = to
			e.errText = errText
			return 1
		}
		if e.runID == runID && e.stage == stage {
			return 0
		}
	}
	return 0
}

func (m *memLog) CompleteStage(_ context.Context, runID string, stage int, _ []byte) (int64, error) {
	return m.transition(runID, stage, StatusRunning, StatusCompleted, ""), nil
}

func (m *memLog) FailStage(_ context.Context, runID string, stage int, errText string) (int64, error) {
	return m.transition(runID, stage, StatusRunning, StatusFailed, errText), nil
}

func (m *memLog) MarkAwaitingApproval(_ context.Context, runID string, stage int) (int64, error) {
	return m.transition(runID, stage, StatusRunning, StatusAwaitingApproval, ""), nil
}

func (m *memLog) ApproveStage(_ context.Context, runID string, stage int) (int64, error) {
	return m.transition(runID, stage, StatusAwaitingApproval, StatusApproved, ""), nil
}

func (m *memLog) CurrentStageStatus(_ context.Context, runID string, stage int) (Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].runID == runID && m.entries[i].stage == stage {
			return m.entries[i].status, nil
		}
	}
	return StatusNone, nil
}

func (m *memLog) StoreGateToken(_ context.Context, runID string, stage int, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].runID == runID && m.entries[i].stage == stage {
			m.entries[i].token = token
			return nil
		}
	}
	return nil
}

func (m *memLog) LatestGateToken(_ context.Context, runID string, stage int) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		e := m.entries[i]
		if e.runID == runID && e.stage == stage && e.token != "" {
			return e.token, nil
		}
	}
	return "", nil
}

func (m *memLog) lastError(runID string, stage int) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.entries) - 1; i >= 0; i-- {
		if m.entries[i].runID == runID && m.entries[i].stage == stage {
			return m.entries[i].errText
		}
	}
	return ""
}
