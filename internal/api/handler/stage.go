package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/queue"
	"github.com/svap-labs/svap/internal/stages"
	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/pkg/apierr"
)

type StageHandler struct {
	logger   *slog.Logger
	store    *store.Store
	producer *queue.Producer
	gates    *pipeline.GateCoordinator
}

func NewStageHandler(logger *slog.Logger, s *store.Store, producer *queue.Producer, gates *pipeline.GateCoordinator) *StageHandler {
	return &StageHandler{logger: logger, store: s, producer: producer, gates: gates}
}

// Run validates preconditions and enqueues the stage for a worker. The
// worker re-checks through the orchestrator; this check only gives the
// caller fast feedback.
func (h *StageHandler) Run(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	stageParam := chi.URLParam(r, "stage")
	stageNum, err := strconv.Atoi(stageParam)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidStage(stageParam))
		return
	}
	if _, ok := stages.ByNumber(stageNum); !ok {
		writeAPIError(w, h.logger, apierr.InvalidStage(stageParam))
		return
	}
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.RunNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	if prereq, ok := pipeline.Prerequisite(stageNum); ok {
		status, err := h.store.CurrentStageStatus(r.Context(), runID, prereq)
		if err != nil {
			writeAPIError(w, h.logger, apierr.InternalError(err))
			return
		}
		if !status.Satisfied() {
			writeAPIError(w, h.logger,
				apierr.PrerequisiteNotSatisfied(stageNum, prereq, status.String()))
			return
		}
	}
	current, err := h.store.CurrentStageStatus(r.Context(), runID, stageNum)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	if current == pipeline.StatusRunning {
		writeAPIError(w, h.logger, apierr.StageAlreadyRunning(stageNum))
		return
	}

	msgID, err := h.producer.Enqueue(r.Context(), queue.StageMessage{
		RunID: runID, Stage: stageNum, Trigger: "api",
	})
	if err != nil {
		writeAPIError(w, h.logger, apierr.StageEnqueueFailed(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID, "stage": stageNum, "message_id": msgID,
	})
}

// Gate registers an external coordinator pausing at a review gate. The
// registration is queued like any stage message; a worker parks the stage at
// awaiting_approval and persists the continuation token, which Approve later
// hands back.
func (h *StageHandler) Gate(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	stageParam := chi.URLParam(r, "stage")
	stageNum, err := strconv.Atoi(stageParam)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidStage(stageParam))
		return
	}
	if _, ok := stages.ByNumber(stageNum); !ok {
		writeAPIError(w, h.logger, apierr.InvalidStage(stageParam))
		return
	}
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.RunNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	var req struct {
		TaskToken string `json:"task_token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}

	msgID, err := h.producer.EnqueueGate(r.Context(), runID, stageNum, req.TaskToken)
	if err != nil {
		writeAPIError(w, h.logger, apierr.StageEnqueueFailed(err))
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"run_id": runID, "stage": stageNum, "message_id": msgID,
	})
}

// Approve resolves a human review gate. The approving attempt becomes the
// stage's terminal record; if a coordinator parked a continuation token,
// the token is returned so the caller can resume it.
func (h *StageHandler) Approve(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	stageParam := chi.URLParam(r, "stage")
	stageNum, err := strconv.Atoi(stageParam)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InvalidStage(stageParam))
		return
	}

	token, err := h.gates.ResumeOnApproval(r.Context(), runID, stageNum)
	if err != nil {
		if errors.Is(err, pipeline.ErrGateNotReady) {
			writeAPIError(w, h.logger, apierr.GateNotReady(stageNum))
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	resp := map[string]any{"run_id": runID, "stage": stageNum, "status": "approved"}
	if token != "" {
		resp["task_token"] = token
	}
	writeJSON(w, http.StatusOK, resp)
}
