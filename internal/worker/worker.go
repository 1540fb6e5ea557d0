// Package worker turns stage stream messages into orchestrated stage runs
// and gate registrations.
package worker

import (
	"context"
	"log/slog"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/stages"
)

// Runner is a consumer handler binding the orchestrator, the gate
// coordinator, and the stage environment to the stream message format.
type Runner struct {
	orch   *pipeline.Orchestrator
	gates  *pipeline.GateCoordinator
	env    *stages.Env
	logger *slog.Logger
}

func New(orch *pipeline.Orchestrator, gates *pipeline.GateCoordinator, env *stages.Env, logger *slog.Logger) *Runner {
	return &Runner{orch: orch, gates: gates, env: env, logger: logger}
}

// Handle processes one stage message. A gate registration returns its error,
// so a failed token write leaves the message pending for redelivery. A stage
// execution returns nil even on stage failure: the terminal outcome is
// already in the stage log, and rerunning is an explicit operator action.
func (r *Runner) Handle(ctx context.Context, msg queue.StageMessage) error {
	if msg.Gate {
		r.logger.Info("registering gate",
			slog.String("run_id", msg.RunID), slog.Int("stage", msg.Stage),
			slog.Bool("has_token", msg.TaskToken != ""))
		return r.gates.RegisterGate(ctx, msg.RunID, msg.Stage, msg.TaskToken)
	}

	stage, ok := stages.ByNumber(msg.Stage)
	if !ok {
		r.logger.Error("unknown stage in message", slog.Int("stage", msg.Stage))
		return nil
	}
	r.logger.Info("executing stage",
		slog.String("run_id", msg.RunID), slog.Int("stage", msg.Stage),
		slog.String("name", stage.Name), slog.String("trigger", msg.Trigger))

	err := r.orch.RunStage(ctx, msg.RunID, msg.Stage, func(ctx context.Context, runID string) error {
		return stage.Run(ctx, r.env, runID)
	})
	if err != nil {
		r.logger.Error("stage failed",
			slog.String("run_id", msg.RunID), slog.Int("stage", msg.Stage),
			slog.String("error", err.Error()))
	}
	return nil
}
