package validation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/errors"
)

// maxBodyBytes bounds request bodies read by the validator
const maxBodyBytes = 4 << 20

type validatedKey struct{}

// RequestValidator checks API requests against the named schemas before the
// handler runs. Rejected requests get a 400 with the per-parameter errors.
type RequestValidator struct {
	validator *Validator
	errors    *errors.HTTPErrorHandler
	logger    *zap.Logger
}

// NewRequestValidator creates the middleware factory. Its error bodies always
// list every rejected parameter; it never writes server-side failures.
func NewRequestValidator(logger *zap.Logger) *RequestValidator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestValidator{
		validator: NewValidator(),
		errors:    errors.NewHTTPErrorHandler(true, logger),
		logger:    logger,
	}
}

// ValidateRequest returns chi middleware for one schema. The merged query,
// path and JSON body parameters are checked, and the converted values are
// stored on the request context. The body is left readable for the handler.
func (rv *RequestValidator) ValidateRequest(schemaName string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			params, err := requestParams(r)
			if err != nil {
				rv.errors.WriteHTTPError(w, errors.GetAppError(err))
				return
			}

			result := rv.validator.Validate(schemaName, params)
			if !result.Valid {
				rv.logger.Debug("request rejected",
					zap.String("schema", schemaName),
					zap.String("path", r.URL.Path),
					zap.Int("errors", len(result.Errors)))
				rv.errors.WriteHTTPError(w, result.ToAppError())
				return
			}

			ctx := context.WithValue(r.Context(), validatedKey{}, result.GetValidatedData())
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ValidatedData returns the values stored by ValidateRequest, if any
func ValidatedData(r *http.Request) map[string]interface{} {
	data, _ := r.Context().Value(validatedKey{}).(map[string]interface{})
	return data
}

// requestParams merges query values, chi URL params and a JSON body.
// Later sources win.
func requestParams(r *http.Request) (map[string]interface{}, error) {
	params := make(map[string]interface{})

	for key, values := range r.URL.Query() {
		switch len(values) {
		case 0:
		case 1:
			params[key] = values[0]
		default:
			params[key] = values
		}
	}

	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		for i, key := range rctx.URLParams.Keys {
			if key != "*" && i < len(rctx.URLParams.Values) {
				params[key] = rctx.URLParams.Values[i]
			}
		}
	}

	switch r.Method {
	case http.MethodPost, http.MethodPut, http.MethodPatch:
		if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
			break
		}
		body, err := peekJSON(r)
		if err != nil {
			return nil, err
		}
		for key, value := range body {
			params[key] = value
		}
	}
	return params, nil
}

// peekJSON decodes the request body and replaces it with an unread copy
func peekJSON(r *http.Request) (map[string]interface{}, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	r.Body.Close()
	if err != nil {
		return nil, errors.ValidationError("could not read request body")
	}
	r.Body = io.NopCloser(bytes.NewReader(raw))

	out := make(map[string]interface{})
	if len(bytes.TrimSpace(raw)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.ValidationError("request body is not a JSON object").WithDetails(err.Error())
	}
	return out, nil
}

// ValidateIdentifier accepts template and draft IDs: 1-200 ASCII letters,
// digits, hyphens or underscores
func ValidateIdentifier(id string) error {
	switch {
	case id == "":
		return errors.ValidationError("identifier is empty")
	case len(id) > 200:
		return errors.ValidationError("identifier is longer than 200 characters")
	case !idPattern.MatchString(id):
		return errors.ValidationError(fmt.Sprintf("identifier %q may only contain letters, digits, '-' and '_'", id))
	}
	return nil
}

// ValidateTags checks tag filters from the query string or CLI flags
func ValidateTags(tags []string) error {
	if len(tags) > 20 {
		return errors.ValidationError("at most 20 tags may be given")
	}
	for i, tag := range tags {
		if strings.TrimSpace(tag) == "" {
			return errors.ValidationError(fmt.Sprintf("tag %d is empty", i+1))
		}
		if len(tag) > 50 {
			return errors.ValidationError(fmt.Sprintf("tag %q is longer than 50 characters", tag))
		}
	}
	return nil
}
