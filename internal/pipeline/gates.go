package pipeline

import (
	"context"
	"fmt"
	"log/slog"
)

// GateCoordinator manages human approval gates. Only the small configured
// set of gated stages ever reaches awaiting_approval; every other stage
// transitions straight from running to completed or failed.
type GateCoordinator struct {
	store  GateStore
	logger *slog.Logger
}

func NewGateCoordinator(store GateStore, logger *slog.Logger) *GateCoordinator {
	return &GateCoordinator{store: store, logger: logger}
}

// RegisterGate records an external coordinator pausing at a gate: a fresh
// attempt is opened, immediately parked at awaiting_approval, and the
// coordinator's continuation token is persisted on it for later resumption.
func (g *GateCoordinator) RegisterGate(ctx context.Context, runID string, stage int, token string) error {
	if err := g.store.StartStage(ctx, runID, stage); err != nil {
		return fmt.Errorf("register gate for stage %d: %w", stage, err)
	}
	if _, err := g.store.MarkAwaitingApproval(ctx, runID, stage); err != nil {
		return fmt.Errorf("register gate for stage %d: %w", stage, err)
	}
	if token != "" {
		if err := g.store.StoreGateToken(ctx, runID, stage, token); err != nil {
			return fmt.Errorf("register gate for stage %d: %w", stage, err)
		}
	}
	g.logger.Info("gate registered", "run_id", runID, "stage", stage)
	return nil
}

// ResumeOnApproval approves the gate and returns the stored continuation
// token, or "" when none was stored (synchronous execution, nothing to
// resume). Returns ErrGateNotReady when the stage is not awaiting approval.
func (g *GateCoordinator) ResumeOnApproval(ctx context.Context, runID string, stage int) (string, error) {
	status, err := g.store.CurrentStageStatus(ctx, runID, stage)
	if err != nil {
		return "", fmt.Errorf("approve stage %d: %w", stage, err)
	}
	if status != StatusAwaitingApproval {
		return "", fmt.Errorf("stage %d status is %q: %w", stage, status.String(), ErrGateNotReady)
	}

	n, err := g.store.ApproveStage(ctx, runID, stage)
	if err != nil {
		return "", fmt.Errorf("approve stage %d: %w", stage, err)
	}
	if n == 0 {
		// Lost a race with another approver; the gate is already resolved.
		return "", fmt.Errorf("stage %d: %w", stage, ErrGateNotReady)
	}

	token, err := g.store.LatestGateToken(ctx, runID, stage)
	if err != nil {
		return "", fmt.Errorf("approve stage %d: %w", stage, err)
	}
	g.logger.Info("gate approved", "run_id", runID, "stage", stage, "has_token", token != "")
	return token, nil
}
