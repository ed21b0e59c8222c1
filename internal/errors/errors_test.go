package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetAppErrorUnwrapsChain(t *testing.T) {
	base := EmptyContentError()
	wrapped := fmt.Errorf("exporting draft: %w", base)

	got := GetAppError(wrapped)
	assert.Same(t, base, got)
	assert.True(t, IsAppError(wrapped))
	assert.True(t, HasCode(wrapped, ErrCodeEmptyContent))
	assert.False(t, HasCode(wrapped, ErrCodeExportFailed))
}

func TestGetAppErrorConvertsPlainErrors(t *testing.T) {
	got := GetAppError(fmt.Errorf("boom"))
	assert.Equal(t, ErrCodeInternalError, got.Code)
	assert.Equal(t, SeverityCritical, got.Severity)
}

func TestCategorization(t *testing.T) {
	tests := []struct {
		code      ErrorCode
		category  ErrorCategory
		retryable bool
	}{
		{ErrCodeEmptyContent, CategoryDocument, false},
		{ErrCodeDraftFinalized, CategoryDocument, false},
		{ErrCodeExportFailed, CategoryExport, true},
		{ErrCodeRenderFailed, CategoryExport, true},
		{ErrCodeNotFound, CategoryService, false},
		{ErrCodeStorageFailure, CategoryStorage, true},
		{ErrCodeValidation, CategoryValidation, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			e := NewAppError(tt.code, "x")
			assert.Equal(t, tt.category, e.Category)
			assert.Equal(t, tt.retryable, e.IsRetryable())
		})
	}
}

func TestWriteHTTPError(t *testing.T) {
	h := NewHTTPErrorHandler(true, nil)

	tests := []struct {
		err    error
		status int
	}{
		{ValidationError("bad"), http.StatusBadRequest},
		{NotFoundError("Draft"), http.StatusNotFound},
		{EmptyContentError(), http.StatusUnprocessableEntity},
		{DraftFinalizedError("d1"), http.StatusConflict},
		{ExportError(fmt.Errorf("all failed")), http.StatusBadGateway},
		{fmt.Errorf("unknown"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.WriteHTTPError(rec, tt.err)
		assert.Equal(t, tt.status, rec.Code, tt.err.Error())
		assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	}
}

func TestCLIFormatIncludesDetailsWhenVerbose(t *testing.T) {
	err := ValidationError("Form has errors").WithDetails("Party Name is required")

	quiet := NewCLIErrorHandler(false, nil).FormatError(err)
	loud := NewCLIErrorHandler(true, nil).FormatError(err)

	assert.NotContains(t, quiet, "Party Name")
	assert.Contains(t, loud, "Party Name is required")
	require.True(t, strings.HasPrefix(loud, "⚠️  WARNING"))
}

func TestErrorRecoveryBackoff(t *testing.T) {
	r := NewErrorRecovery(3, 1)
	assert.True(t, r.ShouldRetry(StorageError("put", fmt.Errorf("x")), 0))
	assert.False(t, r.ShouldRetry(StorageError("put", fmt.Errorf("x")), 3))
	assert.False(t, r.ShouldRetry(ValidationError("x"), 0))
	assert.Equal(t, 4, r.GetRetryDelay(2))
}

func TestHTTPErrorBodyHidesDetailsUnlessAsked(t *testing.T) {
	err := NestedPlaceholderError("purpose").WithDetails("value was {{x}}")

	for _, include := range []bool{false, true} {
		rec := httptest.NewRecorder()
		NewHTTPErrorHandler(include, nil).WriteHTTPError(rec, err)

		var body struct {
			Error struct {
				Code     string                 `json:"code"`
				Category string                 `json:"category"`
				Details  string                 `json:"details"`
				Context  map[string]interface{} `json:"context"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
		assert.Equal(t, "NESTED_PLACEHOLDER", body.Error.Code)
		assert.Equal(t, "document", body.Error.Category)
		if include {
			assert.Equal(t, "value was {{x}}", body.Error.Details)
			assert.Equal(t, "purpose", body.Error.Context["field"])
		} else {
			assert.Empty(t, body.Error.Details)
			assert.Nil(t, body.Error.Context)
		}
	}
}
