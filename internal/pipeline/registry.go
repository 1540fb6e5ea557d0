package pipeline

import "context"

// StageLog is the append-only stage execution history. A new attempt always
// inserts a fresh running record; terminal transitions touch only the most
// recent record in the expected state and report rows changed so callers can
// distinguish a real transition from an idempotent no-op.
type StageLog interface {
	StartStage(ctx context.Context, runID string, stage int) error
	CompleteStage(ctx context.Context, runID string, stage int, metadata []byte) (int64, error)
	FailStage(ctx context.Context, runID string, stage int, errorText string) (int64, error)
	MarkAwaitingApproval(ctx context.Context, runID string, stage int) (int64, error)
	ApproveStage(ctx context.Context, runID string, stage int) (int64, error)
	CurrentStageStatus(ctx context.Context, runID string, stage int) (Status, error)
}

// GateStore extends the stage log with continuation-token persistence. The
// token is opaque; it is stored and returned, never interpreted.
type GateStore interface {
	StageLog
	StoreGateToken(ctx context.Context, runID string, stage int, token string) error
	LatestGateToken(ctx context.Context, runID string, stage int) (string, error)
}

// Ledger records the input digest last used to process each (stage, entity).
type Ledger interface {
	HashesForStage(ctx context.Context, stage int) (map[string]string, error)
	RecordProcessed(ctx context.Context, stage int, entityID, digest, runID string) error
}
