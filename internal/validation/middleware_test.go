package validation

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRouter(rv *RequestValidator, schema string, seen *map[string]interface{}, body *string) http.Handler {
	r := chi.NewRouter()
	r.With(rv.ValidateRequest(schema)).Post("/drafts/{id}/fields", func(w http.ResponseWriter, req *http.Request) {
		*seen = ValidatedData(req)
		b, _ := io.ReadAll(req.Body)
		*body = string(b)
		w.WriteHeader(http.StatusNoContent)
	})
	return r
}

func TestValidateRequestPassesBodyThrough(t *testing.T) {
	var seen map[string]interface{}
	var body string
	h := newRouter(NewRequestValidator(nil), "update_fields", &seen, &body)

	payload := `{"values":{"party_name":"Acme"}}`
	req := httptest.NewRequest(http.MethodPost, "/drafts/d1/fields", strings.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, payload, body)
	assert.Contains(t, seen, "values")
}

func TestValidateRequestRejects(t *testing.T) {
	var seen map[string]interface{}
	var body string
	h := newRouter(NewRequestValidator(nil), "update_fields", &seen, &body)

	tests := []string{
		`{}`,
		`{"values":{"bad-name":"x"}}`,
		`{"values":{"n":5}}`,
		`not json`,
	}
	for _, payload := range tests {
		req := httptest.NewRequest(http.MethodPost, "/drafts/d1/fields", strings.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code, payload)
		var resp map[string]interface{}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Contains(t, resp, "error")
	}
}

func TestValidatorSchemas(t *testing.T) {
	v := NewValidator()

	ok := v.Validate("create_draft", map[string]interface{}{"template_id": "mutual-nda", "filename": "nda-acme"})
	assert.True(t, ok.Valid)

	bad := v.Validate("create_draft", map[string]interface{}{"template_id": "../etc", "filename": "a/b"})
	assert.False(t, bad.Valid)
	assert.Len(t, bad.Errors, 2)

	filter := v.Validate("template_filter", map[string]interface{}{"status": "archived"})
	assert.False(t, filter.Valid)

	missing := v.Validate("nope", nil)
	assert.Equal(t, "SCHEMA_NOT_FOUND", missing.Errors[0].Code)
}

func TestValidateIdentifier(t *testing.T) {
	assert.NoError(t, ValidateIdentifier("mutual-nda_v2"))
	assert.Error(t, ValidateIdentifier(""))
	assert.Error(t, ValidateIdentifier("a b"))
	assert.Error(t, ValidateTags([]string{"ok", " "}))
}
