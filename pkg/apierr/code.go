package apierr

// Code is a machine-readable error code returned in API responses.
type Code string

// Common errors.
const (
	CodeInvalidRequestBody Code = "INVALID_REQUEST_BODY"
	CodeInternalError      Code = "INTERNAL_ERROR"
)

// Run errors.
const (
	CodeRunNotFound     Code = "RUN_NOT_FOUND"
	CodeDuplicateRun    Code = "DUPLICATE_RUN"
	CodeRunCreateFailed Code = "RUN_CREATE_FAILED"
	CodeRunListFailed   Code = "RUN_LIST_FAILED"
	CodeNoRuns          Code = "NO_RUNS"
)

// Stage errors.
const (
	CodeInvalidStage             Code = "INVALID_STAGE"
	CodePrerequisiteNotSatisfied Code = "PREREQUISITE_NOT_SATISFIED"
	CodeStageAlreadyRunning      Code = "STAGE_ALREADY_RUNNING"
	CodeGateNotReady             Code = "GATE_NOT_READY"
	CodeStageEnqueueFailed       Code = "STAGE_ENQUEUE_FAILED"
	CodeStatusQueryFailed        Code = "STATUS_QUERY_FAILED"
)

// Document errors.
const (
	CodeDocumentRequired Code = "DOCUMENT_REQUIRED"
	CodeInvalidDocType   Code = "INVALID_DOC_TYPE"
	CodeIngestFailed     Code = "INGEST_FAILED"
)

// Review errors.
const (
	CodeQualityNotFound     Code = "QUALITY_NOT_FOUND"
	CodeInvalidReviewStatus Code = "INVALID_REVIEW_STATUS"
	CodeReviewUpdateFailed  Code = "REVIEW_UPDATE_FAILED"
)

// Export errors.
const (
	CodeExportFailed Code = "EXPORT_FAILED"
)

// Health errors.
const (
	CodeDatabaseNotReady Code = "DATABASE_NOT_READY"
)
