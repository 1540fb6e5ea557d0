package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/svap-labs/svap/internal/store/postgres"
	"github.com/svap-labs/svap/pkg/apierr"
)

// AdminStore is the slice of the store the admin surface uses. *store.Store
// satisfies it with transaction-wrapped deletes.
type AdminStore interface {
	GetRun(ctx context.Context, runID string) (postgres.PipelineRun, error)
	DeleteRun(ctx context.Context, runID string) error
	WipeCorpus(ctx context.Context) error
}

// AdminHandler exposes destructive maintenance operations.
type AdminHandler struct {
	logger *slog.Logger
	store  AdminStore
}

func NewAdminHandler(logger *slog.Logger, s AdminStore) *AdminHandler {
	return &AdminHandler{logger: logger, store: s}
}

// DeleteRun removes a run and everything derived from it.
func (h *AdminHandler) DeleteRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.RunNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	if err := h.store.DeleteRun(r.Context(), runID); err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	h.logger.Info("run deleted", "run_id", runID)
	writeJSON(w, http.StatusOK, map[string]string{"run_id": runID, "status": "deleted"})
}

// WipeCorpus clears the extraction corpus and every derived result. Run
// history survives.
func (h *AdminHandler) WipeCorpus(w http.ResponseWriter, r *http.Request) {
	if err := h.store.WipeCorpus(r.Context()); err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	h.logger.Info("corpus wiped")
	writeJSON(w, http.StatusOK, map[string]string{"status": "corpus_wiped"})
}
