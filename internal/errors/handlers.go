package errors

import (
	"encoding/json"
	stderrors "errors"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// zapFields flattens an AppError for structured logging
func zapFields(e *AppError) []zap.Field {
	fields := []zap.Field{
		zap.String("code", string(e.Code)),
		zap.String("severity", string(e.Severity)),
		zap.String("category", string(e.Category)),
	}
	if e.Details != "" {
		fields = append(fields, zap.String("details", e.Details))
	}
	if e.Cause != nil {
		fields = append(fields, zap.NamedError("cause", e.Cause))
	}
	if len(e.Context) > 0 {
		fields = append(fields, zap.Any("context", e.Context))
	}
	return fields
}

var severityLabels = map[ErrorSeverity]string{
	SeverityCritical: "❌ CRITICAL: ",
	SeverityError:    "❌ ERROR: ",
	SeverityWarning:  "⚠️  WARNING: ",
	SeverityInfo:     "ℹ️  INFO: ",
}

// CLIErrorHandler turns errors into the one-line messages docfill prints on
// stderr. Verbose adds the details line and debug logging.
type CLIErrorHandler struct {
	Verbose bool
	Logger  *zap.Logger
}

func NewCLIErrorHandler(verbose bool, logger *zap.Logger) *CLIErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CLIErrorHandler{Verbose: verbose, Logger: logger}
}

// HandleError logs err when verbose and returns it formatted for the terminal
func (h *CLIErrorHandler) HandleError(err error) error {
	appErr := GetAppError(err)
	if h.Verbose {
		h.Logger.Debug(appErr.Message, zapFields(appErr)...)
	}
	return stderrors.New(h.FormatError(appErr))
}

func (h *CLIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)
	msg := appErr.Message
	if h.Verbose && appErr.Details != "" {
		msg += "\n   " + appErr.Details
	}
	label, ok := severityLabels[appErr.Severity]
	if !ok {
		label = "❌ "
	}
	return label + msg
}

// HTTPErrorHandler writes AppErrors as {"error": {...}} JSON responses
type HTTPErrorHandler struct {
	// IncludeDetails adds details and context to response bodies
	IncludeDetails bool
	Logger         *zap.Logger
}

func NewHTTPErrorHandler(includeDetails bool, logger *zap.Logger) *HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPErrorHandler{IncludeDetails: includeDetails, Logger: logger}
}

type errorBody struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Category  ErrorCategory          `json:"category"`
	Severity  ErrorSeverity          `json:"severity"`
	Details   string                 `json:"details,omitempty"`
	Context   map[string]interface{} `json:"context,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
}

// WriteHTTPError logs err and writes it with the status its code maps to.
// Server-side failures log at error level, client mistakes at info.
func (h *HTTPErrorHandler) WriteHTTPError(w http.ResponseWriter, err error) {
	appErr := GetAppError(err)
	status := h.StatusCode(appErr)

	if status >= http.StatusInternalServerError {
		h.Logger.Error(appErr.Message, append(zapFields(appErr), zap.Int("status", status))...)
	} else {
		h.Logger.Info(appErr.Message, append(zapFields(appErr), zap.Int("status", status))...)
	}

	body := errorBody{
		Code:      appErr.Code,
		Message:   appErr.Message,
		Category:  appErr.Category,
		Severity:  appErr.Severity,
		Timestamp: appErr.Timestamp,
	}
	if h.IncludeDetails {
		body.Details = appErr.Details
		body.Context = appErr.Context
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]errorBody{"error": body})
}

// StatusCode maps an AppError's code to an HTTP status
func (h *HTTPErrorHandler) StatusCode(appErr *AppError) int {
	return classify(appErr.Code).status
}

// TUIErrorHandler formats errors for the status bar
type TUIErrorHandler struct {
	ShowDetails bool
}

func NewTUIErrorHandler(showDetails bool) *TUIErrorHandler {
	return &TUIErrorHandler{ShowDetails: showDetails}
}

func (h *TUIErrorHandler) FormatError(err error) string {
	appErr := GetAppError(err)
	if h.ShowDetails && appErr.Details != "" {
		return appErr.Message + " (" + appErr.Details + ")"
	}
	return appErr.Message
}

// GetErrorStyle returns the icon and foreground colour for err's severity
func (h *TUIErrorHandler) GetErrorStyle(err error) (icon, color string) {
	switch GetAppError(err).Severity {
	case SeverityCritical:
		return "🔥", "#ff0000"
	case SeverityWarning:
		return "⚠️", "#feca57"
	case SeverityInfo:
		return "ℹ️", "#48cae4"
	default:
		return "❌", "#ff6b6b"
	}
}

// ErrorRecovery retries retryable failures with exponential backoff
type ErrorRecovery struct {
	MaxRetries int
	RetryDelay int // seconds before the first retry
}

func NewErrorRecovery(maxRetries int, retryDelaySeconds int) *ErrorRecovery {
	return &ErrorRecovery{MaxRetries: maxRetries, RetryDelay: retryDelaySeconds}
}

// ShouldRetry reports whether attempt may run after err
func (r *ErrorRecovery) ShouldRetry(err error, attempt int) bool {
	return attempt < r.MaxRetries && GetAppError(err).IsRetryable()
}

// GetRetryDelay returns RetryDelay doubled once per previous attempt
func (r *ErrorRecovery) GetRetryDelay(attempt int) int {
	return r.RetryDelay << attempt
}
