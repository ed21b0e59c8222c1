// Package errors is the error model shared by the CLI, the HTTP API and the TUI.
//
// Every failure that reaches a user is an *AppError carrying a code. The code
// decides the category, severity, retry policy and HTTP status through a single
// table, so the three front ends agree on how serious a failure is. Handlers
// for each front end live in handlers.go.
//
// INTEGRATION POINTS:
// - internal/api: HTTPErrorHandler writes AppErrors as JSON with a mapped status
// - internal/cli: CLIErrorHandler prints them with a severity prefix
// - internal/ui: TUIErrorHandler picks the status-bar icon and message
// - internal/service: ErrorRecovery decides whether an archive upload is retried
package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorCode identifies a kind of failure
type ErrorCode string

const (
	ErrCodeValidation    ErrorCode = "VALIDATION_ERROR"
	ErrCodeInvalidInput  ErrorCode = "INVALID_INPUT"
	ErrCodeNotFound      ErrorCode = "NOT_FOUND"
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"

	ErrCodeStorageFailure ErrorCode = "STORAGE_FAILURE"

	// Document state
	ErrCodeEmptyContent      ErrorCode = "EMPTY_CONTENT"
	ErrCodeNestedPlaceholder ErrorCode = "NESTED_PLACEHOLDER"
	ErrCodeDraftFinalized    ErrorCode = "DRAFT_FINALIZED"
	ErrCodeSanitizeResidue   ErrorCode = "SANITIZE_RESIDUE"

	// Export pipeline
	ErrCodeExportFailed ErrorCode = "EXPORT_FAILED"
	ErrCodeRenderFailed ErrorCode = "RENDER_FAILED"
)

type ErrorSeverity string

const (
	SeverityInfo     ErrorSeverity = "info"
	SeverityWarning  ErrorSeverity = "warning"
	SeverityError    ErrorSeverity = "error"
	SeverityCritical ErrorSeverity = "critical"
)

type ErrorCategory string

const (
	CategoryValidation ErrorCategory = "validation"
	CategoryService    ErrorCategory = "service"
	CategoryStorage    ErrorCategory = "storage"
	CategoryDocument   ErrorCategory = "document"
	CategoryExport     ErrorCategory = "export"
	CategorySystem     ErrorCategory = "system"
)

type classification struct {
	category  ErrorCategory
	severity  ErrorSeverity
	retryable bool
	status    int
}

var classes = map[ErrorCode]classification{
	ErrCodeValidation:        {CategoryValidation, SeverityWarning, false, http.StatusBadRequest},
	ErrCodeInvalidInput:      {CategoryValidation, SeverityWarning, false, http.StatusBadRequest},
	ErrCodeNotFound:          {CategoryService, SeverityInfo, false, http.StatusNotFound},
	ErrCodeInternalError:     {CategoryService, SeverityCritical, false, http.StatusInternalServerError},
	ErrCodeStorageFailure:    {CategoryStorage, SeverityError, true, http.StatusInternalServerError},
	ErrCodeEmptyContent:      {CategoryDocument, SeverityWarning, false, http.StatusUnprocessableEntity},
	ErrCodeNestedPlaceholder: {CategoryDocument, SeverityWarning, false, http.StatusUnprocessableEntity},
	ErrCodeSanitizeResidue:   {CategoryDocument, SeverityError, false, http.StatusUnprocessableEntity},
	ErrCodeDraftFinalized:    {CategoryDocument, SeverityWarning, false, http.StatusConflict},
	ErrCodeExportFailed:      {CategoryExport, SeverityCritical, true, http.StatusBadGateway},
	ErrCodeRenderFailed:      {CategoryExport, SeverityError, true, http.StatusBadGateway},
}

func classify(code ErrorCode) classification {
	if c, ok := classes[code]; ok {
		return c
	}
	return classification{CategorySystem, SeverityError, false, http.StatusInternalServerError}
}

// AppError is a classified application error
type AppError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Severity  ErrorSeverity          `json:"severity"`
	Category  ErrorCategory          `json:"category"`
	Cause     error                  `json:"-"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Retryable bool                   `json:"retryable"`
}

func (e *AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Cause }

func (e *AppError) IsRetryable() bool { return e.Retryable }

// WithContext attaches a key/value pair that is logged and, for the API,
// returned in the error body
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

func (e *AppError) WithDetails(details string) *AppError {
	e.Details = details
	return e
}

func NewAppError(code ErrorCode, message string) *AppError {
	return Wrap(nil, code, message)
}

// Wrap classifies err under code. A nil err gives an AppError without a cause.
func Wrap(err error, code ErrorCode, message string) *AppError {
	c := classify(code)
	return &AppError{
		Code:      code,
		Message:   message,
		Severity:  c.severity,
		Category:  c.category,
		Cause:     err,
		Timestamp: time.Now(),
		Retryable: c.retryable,
	}
}

// IsAppError reports whether err is or wraps an AppError
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError finds the AppError in err's chain. Unclassified errors become
// internal errors.
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return Wrap(err, ErrCodeInternalError, "unexpected error")
}

// HasCode reports whether err's chain holds an AppError with code
func HasCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

func ValidationError(message string) *AppError {
	return NewAppError(ErrCodeValidation, message)
}

func NotFoundError(resource string) *AppError {
	return NewAppError(ErrCodeNotFound, resource+" not found")
}

func InternalError(message string) *AppError {
	return NewAppError(ErrCodeInternalError, message)
}

func StorageError(operation string, err error) *AppError {
	return Wrap(err, ErrCodeStorageFailure, "storage failed: "+operation)
}

func EmptyContentError() *AppError {
	return NewAppError(ErrCodeEmptyContent, "document has no content to export")
}

func DraftFinalizedError(id string) *AppError {
	return NewAppError(ErrCodeDraftFinalized, fmt.Sprintf("draft %q is finalized and can no longer be edited", id))
}

func NestedPlaceholderError(field string) *AppError {
	return NewAppError(ErrCodeNestedPlaceholder, fmt.Sprintf("value for %q must not contain a {{placeholder}}", field)).
		WithContext("field", field)
}

// ExportError is returned when every export strategy failed. The message
// points the user at the HTML download.
func ExportError(err error) *AppError {
	return Wrap(err, ErrCodeExportFailed, "could not export the document as PDF; download it as HTML instead")
}

func RenderError(strategy string, err error) *AppError {
	return Wrap(err, ErrCodeRenderFailed, fmt.Sprintf("%s export failed", strategy)).
		WithContext("strategy", strategy)
}
