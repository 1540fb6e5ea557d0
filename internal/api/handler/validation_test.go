package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/svap-labs/svap/pkg/apierr"
)

func decodeError(t *testing.T, w *httptest.ResponseRecorder) apierr.ErrorResponse {
	t.Helper()
	var resp apierr.ErrorResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return resp
}

func TestDocumentHandler_Ingest_InvalidBody(t *testing.T) {
	dh := &DocumentHandler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader([]byte("invalid")))
	w := httptest.NewRecorder()

	dh.Ingest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidRequestBody {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidRequestBody, resp.Error.Code)
	}
}

func TestDocumentHandler_Ingest_MissingText(t *testing.T) {
	dh := &DocumentHandler{}
	body, _ := json.Marshal(map[string]string{
		"filename": "case.txt",
		"text":     "",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	w := httptest.NewRecorder()

	dh.Ingest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeDocumentRequired {
		t.Errorf("expected code %s, got %s", apierr.CodeDocumentRequired, resp.Error.Code)
	}
}

func TestDocumentHandler_Ingest_InvalidDocType(t *testing.T) {
	dh := &DocumentHandler{}
	body, _ := json.Marshal(map[string]string{
		"filename": "case.txt",
		"text":     "some enforcement text",
		"doc_type": "screenplay",
	})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/documents", bytes.NewReader(body))
	w := httptest.NewRecorder()

	dh.Ingest(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidDocType {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidDocType, resp.Error.Code)
	}
}

func TestStageHandler_Run_InvalidStage(t *testing.T) {
	// No chi route context, so the stage URL param resolves to "".
	sh := &StageHandler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/runs/run_x/stages/abc/run", nil)
	w := httptest.NewRecorder()

	sh.Run(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidStage {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidStage, resp.Error.Code)
	}
}

func TestReviewHandler_ReviewQuality_InvalidBody(t *testing.T) {
	rh := &ReviewHandler{}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/taxonomy/Q1/review", bytes.NewReader([]byte("{")))
	w := httptest.NewRecorder()

	rh.ReviewQuality(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidRequestBody {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidRequestBody, resp.Error.Code)
	}
}

func TestReviewHandler_ReviewQuality_InvalidStatus(t *testing.T) {
	rh := &ReviewHandler{}
	body, _ := json.Marshal(map[string]string{"status": "maybe"})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/taxonomy/Q1/review", bytes.NewReader(body))
	w := httptest.NewRecorder()

	rh.ReviewQuality(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", w.Code)
	}
	if resp := decodeError(t, w); resp.Error.Code != apierr.CodeInvalidReviewStatus {
		t.Errorf("expected code %s, got %s", apierr.CodeInvalidReviewStatus, resp.Error.Code)
	}
}
