package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"slices"

	"github.com/svap-labs/svap/internal/rag"
	"github.com/svap-labs/svap/pkg/apierr"
)

var docTypes = []string{"enforcement", "policy", "guidance", "report", "other"}

type DocumentHandler struct {
	logger   *slog.Logger
	ingester *rag.Ingester
}

func NewDocumentHandler(logger *slog.Logger, ingester *rag.Ingester) *DocumentHandler {
	return &DocumentHandler{logger: logger, ingester: ingester}
}

type ingestRequest struct {
	Filename string          `json:"filename"`
	DocType  string          `json:"doc_type"`
	Text     string          `json:"text"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (h *DocumentHandler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIError(w, h.logger, apierr.InvalidRequestBody())
		return
	}
	if req.Filename == "" || req.Text == "" {
		writeAPIError(w, h.logger, apierr.DocumentRequired())
		return
	}
	if req.DocType == "" {
		req.DocType = "other"
	}
	if !slices.Contains(docTypes, req.DocType) {
		writeAPIError(w, h.logger, apierr.InvalidDocType())
		return
	}

	docID, chunks, err := h.ingester.IngestText(r.Context(), req.Text, req.Filename, req.DocType, req.Metadata)
	if err != nil {
		writeAPIError(w, h.logger, apierr.IngestFailed(err))
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"doc_id": docID, "filename": req.Filename, "doc_type": req.DocType, "chunks": chunks,
	})
}
