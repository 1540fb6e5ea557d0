package apierr

import (
	"fmt"
	"net/http"
)

// --- Common ---

func InvalidRequestBody() *Error {
	return New(CodeInvalidRequestBody, http.StatusBadRequest, "Invalid request body")
}

func InternalError(cause error) *Error {
	return Wrap(CodeInternalError, http.StatusInternalServerError, "Internal server error", cause)
}

// --- Runs ---

func RunNotFound() *Error {
	return New(CodeRunNotFound, http.StatusNotFound, "Pipeline run not found")
}

func DuplicateRun(runID string) *Error {
	return New(CodeDuplicateRun, http.StatusConflict, "Pipeline run "+runID+" already exists")
}

func RunCreateFailed(cause error) *Error {
	return Wrap(CodeRunCreateFailed, http.StatusInternalServerError, "Failed to create pipeline run", cause)
}

func RunListFailed(cause error) *Error {
	return Wrap(CodeRunListFailed, http.StatusInternalServerError, "Failed to list pipeline runs", cause)
}

func NoRuns() *Error {
	return New(CodeNoRuns, http.StatusNotFound, "No pipeline runs exist yet")
}

// --- Stages ---

func InvalidStage(stage string) *Error {
	return New(CodeInvalidStage, http.StatusBadRequest, "Unknown pipeline stage: "+stage)
}

func PrerequisiteNotSatisfied(stage, prerequisite int, status string) *Error {
	return New(CodePrerequisiteNotSatisfied, http.StatusConflict,
		fmt.Sprintf("Stage %d requires stage %d to be completed or approved (currently %s)",
			stage, prerequisite, status))
}

func StageAlreadyRunning(stage int) *Error {
	return New(CodeStageAlreadyRunning, http.StatusConflict,
		fmt.Sprintf("Stage %d already has a running attempt", stage))
}

func GateNotReady(stage int) *Error {
	return New(CodeGateNotReady, http.StatusConflict,
		fmt.Sprintf("Stage %d is not awaiting approval", stage))
}

func StageEnqueueFailed(cause error) *Error {
	return Wrap(CodeStageEnqueueFailed, http.StatusInternalServerError, "Failed to enqueue stage job", cause)
}

func StatusQueryFailed(cause error) *Error {
	return Wrap(CodeStatusQueryFailed, http.StatusInternalServerError, "Failed to read pipeline status", cause)
}

// --- Documents ---

func DocumentRequired() *Error {
	return New(CodeDocumentRequired, http.StatusBadRequest, "Document text and filename are required")
}

func InvalidDocType() *Error {
	return New(CodeInvalidDocType, http.StatusBadRequest,
		"doc_type must be one of: enforcement, policy, guidance, report, other")
}

func IngestFailed(cause error) *Error {
	return Wrap(CodeIngestFailed, http.StatusInternalServerError, "Failed to ingest document", cause)
}

// --- Review ---

func QualityNotFound() *Error {
	return New(CodeQualityNotFound, http.StatusNotFound, "Taxonomy quality not found")
}

func InvalidReviewStatus() *Error {
	return New(CodeInvalidReviewStatus, http.StatusBadRequest,
		"review_status must be one of: approved, rejected, draft")
}

func ReviewUpdateFailed(cause error) *Error {
	return Wrap(CodeReviewUpdateFailed, http.StatusInternalServerError, "Failed to update review status", cause)
}

// --- Export ---

func ExportFailed(cause error) *Error {
	return Wrap(CodeExportFailed, http.StatusInternalServerError, "Failed to export results", cause)
}

// --- Health ---

func DatabaseNotReady() *Error {
	return New(CodeDatabaseNotReady, http.StatusServiceUnavailable, "Database not ready")
}
