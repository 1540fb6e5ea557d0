package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"

	"github.com/svap-labs/svap/internal/store"
	"github.com/svap-labs/svap/pkg/apierr"
)

// ReviewHandler serves the analyst review surface: the taxonomy queue and
// the generated results downstream of it.
type ReviewHandler struct {
	logger *slog.Logger
	store  *store.Store
}

func NewReviewHandler(logger *slog.Logger, s *store.Store) *ReviewHandler {
	return &ReviewHandler{logger: logger, store: s}
}

func (h *ReviewHandler) ListTaxonomy(w http.ResponseWriter, r *http.Request) {
	taxonomy, err := h.store.ListTaxonomy(r.Context())
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"taxonomy": taxonomy, "total": len(taxonomy)})
}

type reviewRequest struct {
	Status string `json:"status"`
	Notes  string `json:"notes"`
}

func (h *ReviewHandler) ReviewQuality(w http.ResponseWriter, r *http.Request) {
	qualityID := chi.URLParam(r, "qualityID")

	var req reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if !slices.Contains([]string{"approved", "rejected", "draft"}, req.Status) {
		writeAPIError(w, h.logger, apierr.InvalidReviewStatus())
		return
	}

	if err := h.store.UpdateQualityReview(r.Context(), qualityID, req.Status, req.Notes); err != nil {
		if apierr.IsNotFound(err) {
			writeAPIError(w, h.logger, apierr.QualityNotFound())
		} else {
			writeAPIError(w, h.logger, apierr.ReviewUpdateFailed(err))
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"quality_id": qualityID, "status": req.Status})
}

func (h *ReviewHandler) ListPredictions(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	predictions, err := h.store.ListPredictions(r.Context(), runID)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"predictions": predictions, "total": len(predictions)})
}

func (h *ReviewHandler) ListAssessments(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	assessments, err := h.store.ListQualityAssessments(r.Context(), runID)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"assessments": assessments, "total": len(assessments)})
}

func (h *ReviewHandler) ListPatterns(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	patterns, err := h.store.ListDetectionPatterns(r.Context(), runID)
	if err != nil {
		writeAPIError(w, h.logger, apierr.InternalError(err))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"patterns": patterns, "total": len(patterns)})
}
