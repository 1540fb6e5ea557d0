package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/svap-labs/svap/internal/pipeline"
	"github.com/svap-labs/svap/internal/stages"
	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/pkg/apierr"
)

type RunHandler struct {
	logger         *slog.Logger
	store          *store.Store
	configSnapshot []byte
}

func NewRunHandler(logger *slog.Logger, s *store.Store, configSnapshot []byte) *RunHandler {
	return &RunHandler{logger: logger, store: s, configSnapshot: configSnapshot}
}

type createRunRequest struct {
	RunID string `json:"run_id"`
	Notes string `json:"notes"`
}

func (h *RunHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createRunRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeAPIError(w, h.logger, apierr.InvalidRequestBody())
			return
		}
	}
	runID := req.RunID
	if runID == "" {
		runID = NewRunID(time.Now())
	}

	if err := h.store.CreateRun(r.Context(), runID, h.configSnapshot, req.Notes); err != nil {
		if errors.Is(err, pipeline.ErrDuplicateRun) {
			writeAPIError(w, h.logger, apierr.DuplicateRun(runID))
		} else {
			writeAPIError(w, h.logger, apierr.RunCreateFailed(err))
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"run_id": runID})
}

func (h *RunHandler) List(w http.ResponseWriter, r *http.Request) {
	runs, err := h.store.ListRuns(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.RunListFailed(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": runs, "total": len(runs)})
}

func (h *RunHandler) Latest(w http.ResponseWriter, r *http.Request) {
	runID, err := h.store.LatestRun(r.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrNoRun) {
			writeAPIError(w, h.logger, apierr.NoRuns())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}
	run, err := h.store.GetRun(r.Context(), runID)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

// Status renders the latest attempt per stage, with never-attempted stages
// shown as not_started.
func (h *RunHandler) Status(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.RunNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	rows, err := h.store.PipelineStatus(r.Context(), runID)
	if err != nil {
		writeAPIError(w, h.logger, apierr.StatusQueryFailed(err))
		return
	}

	type stageStatus struct {
		Stage  int    `json:"stage"`
		Name   string `json:"name"`
		Status string `json:"status"`
		Error  string `json:"error,omitempty"`
	}
	byStage := make(map[int]stageStatus)
	for _, row := range rows {
		ss := stageStatus{Stage: row.Stage, Status: row.Status}
		if row.ErrorMessage != nil {
			ss.Error = *row.ErrorMessage
		}
		byStage[row.Stage] = ss
	}

	var out []stageStatus
	for _, s := range stages.All() {
		ss, ok := byStage[s.Number]
		if !ok {
			ss = stageStatus{Stage: s.Number, Status: pipeline.StatusNone.String()}
		}
		ss.Name = s.Name
		out = append(out, ss)
	}

	writeJSON(w, http.StatusOK, map[string]any{"run_id": runID, "stages": out})
}

// NewRunID derives a timestamped run identifier.
func NewRunID(now time.Time) string {
	return "run_" + now.Format("20060102_150405")
}
