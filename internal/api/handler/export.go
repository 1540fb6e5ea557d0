package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/svap-labs/svap/internal/export"
	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/pkg/apierr"
)

type ExportHandler struct {
	logger   *slog.Logger
	store    *store.Store
	exporter *export.Exporter
}

func NewExportHandler(logger *slog.Logger, s *store.Store, exporter *export.Exporter) *ExportHandler {
	return &ExportHandler{logger: logger, store: s, exporter: exporter}
}

// Export writes the run's artifacts. ?format=json produces the full dump;
// the default is the markdown report.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	if _, err := h.store.GetRun(r.Context(), runID); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.RunNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.InternalError(err))
		}
		return
	}

	var (
		res export.Result
		err error
	)
	format := r.URL.Query().Get("format")
	if format == "json" {
		res, err = h.exporter.JSON(r.Context(), runID)
	} else {
		format = "markdown"
		res, err = h.exporter.Markdown(r.Context(), runID)
	}
	if err != nil {
		writeAPIError(w, h.logger, apierr.ExportFailed(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"run_id": runID, "format": format, "path": res.Path, "object": res.Object,
	})
}
