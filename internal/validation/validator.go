// Package validation checks what users type into templates and what clients
// send to the API.
//
// Two independent checkers live here. The field engine (fields.go) applies a
// template's FieldSpec rules to entered values in a fixed order: required,
// then length, then pattern, then type. The request checker in this file
// holds one schema per API operation and converts loosely typed request
// parameters (query strings, path params, JSON bodies) into the types the
// handlers read back through ValidatedData.
//
// INTEGRATION POINTS:
// - internal/service/service.go: UpdateDraftFields and FinalizeDraft run ValidateAll()
// - internal/api/server.go: routes are wrapped with RequestValidator.ValidateRequest(schema)
// - internal/ui/form.go: LiveValidate() drives inline errors once a field is touched
// - internal/importer: PatternError() and ValidateIdentifier() gate imported templates
package validation

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/doclast/docfill/internal/errors"
)

// Param kinds understood by the request checker
const (
	KindString = "string"
	KindBool   = "bool"
	KindList   = "list"
	KindObject = "object"
)

// Param describes one request parameter
type Param struct {
	Name     string
	Kind     string
	Required bool
	MaxLen   int
	Pattern  *regexp.Regexp
	OneOf    []string
	Check    func(interface{}) error
}

// Schema is the set of parameters one operation accepts. Rules see the raw
// request data after every parameter passed.
type Schema struct {
	Name   string
	Params []Param
	Rules  []func(map[string]interface{}) error
}

// ValidationError is a single rejected parameter
type ValidationError struct {
	Field   string      `json:"field"`
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Value   interface{} `json:"value,omitempty"`
}

// ValidationResult is the outcome of checking one request
type ValidationResult struct {
	Valid  bool                   `json:"valid"`
	Errors []ValidationError      `json:"errors,omitempty"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

func (r *ValidationResult) reject(field, code, msg string, value interface{}) {
	r.Valid = false
	r.Errors = append(r.Errors, ValidationError{Field: field, Code: code, Message: msg, Value: value})
}

// Validator holds the request schemas by name
type Validator struct {
	schemas map[string]*Schema
}

// NewValidator returns a validator with the docfill API schemas registered
func NewValidator() *Validator {
	v := &Validator{schemas: make(map[string]*Schema)}
	for _, s := range requestSchemas() {
		v.RegisterSchema(s)
	}
	return v
}

func (v *Validator) RegisterSchema(schema *Schema) {
	v.schemas[schema.Name] = schema
}

// Validate checks data against the named schema. Converted values for the
// parameters that passed are collected in the result's Data.
func (v *Validator) Validate(schemaName string, data map[string]interface{}) *ValidationResult {
	result := &ValidationResult{Valid: true, Data: make(map[string]interface{})}

	schema, ok := v.schemas[schemaName]
	if !ok {
		result.reject("schema", "SCHEMA_NOT_FOUND", fmt.Sprintf("no request schema named %q", schemaName), nil)
		return result
	}

	for _, p := range schema.Params {
		raw := data[p.Name]
		if raw == nil || raw == "" {
			if p.Required {
				result.reject(p.Name, "REQUIRED_FIELD_MISSING", fmt.Sprintf("%s is required", p.Name), nil)
			}
			continue
		}

		value, err := convert(p.Kind, raw)
		if err != nil {
			result.reject(p.Name, "INVALID_TYPE", fmt.Sprintf("%s %v", p.Name, err), raw)
			continue
		}
		if code, msg := p.check(value); code != "" {
			result.reject(p.Name, code, msg, value)
			continue
		}
		result.Data[p.Name] = value
	}

	if !result.Valid {
		return result
	}
	for _, rule := range schema.Rules {
		if err := rule(data); err != nil {
			result.reject("schema", "SCHEMA_RULE_VIOLATION", err.Error(), nil)
		}
	}
	return result
}

// check applies the string constraints and the custom check to a converted value
func (p Param) check(value interface{}) (code, msg string) {
	if s, ok := value.(string); ok {
		switch {
		case p.MaxLen > 0 && len(s) > p.MaxLen:
			return "MAX_LENGTH_VIOLATION", fmt.Sprintf("%s is longer than %d characters", p.Name, p.MaxLen)
		case p.Pattern != nil && s != "" && !p.Pattern.MatchString(s):
			return "PATTERN_MISMATCH", fmt.Sprintf("%s has an invalid format", p.Name)
		case len(p.OneOf) > 0 && !contains(p.OneOf, s):
			return "INVALID_OPTION", fmt.Sprintf("%s must be one of: %s", p.Name, strings.Join(p.OneOf, ", "))
		}
	}
	if p.Check != nil {
		if err := p.Check(value); err != nil {
			return "CUSTOM_VALIDATION_FAILED", fmt.Sprintf("%s: %v", p.Name, err)
		}
	}
	return "", ""
}

func contains(list []string, s string) bool {
	for _, item := range list {
		if item == s {
			return true
		}
	}
	return false
}

// convert coerces query-string and JSON values into the parameter's kind
func convert(kind string, raw interface{}) (interface{}, error) {
	switch kind {
	case KindString:
		if s, ok := raw.(string); ok {
			return s, nil
		}
		return fmt.Sprint(raw), nil
	case KindBool:
		switch b := raw.(type) {
		case bool:
			return b, nil
		case string:
			if parsed, err := strconv.ParseBool(b); err == nil {
				return parsed, nil
			}
		}
		return nil, fmt.Errorf("must be true or false")
	case KindList:
		switch l := raw.(type) {
		case []interface{}:
			return l, nil
		case []string:
			out := make([]interface{}, len(l))
			for i, s := range l {
				out[i] = s
			}
			return out, nil
		case string:
			// ?tags=a,b
			var out []interface{}
			for _, part := range strings.Split(l, ",") {
				if part = strings.TrimSpace(part); part != "" {
					out = append(out, part)
				}
			}
			return out, nil
		}
		return nil, fmt.Errorf("must be a list")
	case KindObject:
		if m, ok := raw.(map[string]interface{}); ok {
			return m, nil
		}
		return nil, fmt.Errorf("must be an object")
	}
	return raw, nil
}

var (
	idPattern   = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)
	wordPattern = regexp.MustCompile(`^\w+$`)
)

func requestSchemas() []*Schema {
	details := []Param{
		{Name: "name", Kind: KindString, MaxLen: 500},
		{Name: "filename", Kind: KindString, MaxLen: 255, Check: checkFilename},
		{Name: "description", Kind: KindString, MaxLen: 2000},
	}

	return []*Schema{
		{
			Name:   "create_draft",
			Params: append([]Param{{Name: "template_id", Kind: KindString, Required: true, MaxLen: 200, Pattern: idPattern}}, details...),
		},
		{
			Name:   "update_details",
			Params: append(append([]Param{}, details...), Param{Name: "content", Kind: KindString, MaxLen: 1 << 20}),
		},
		{
			Name:   "update_fields",
			Params: []Param{{Name: "values", Kind: KindObject, Required: true}},
			Rules:  []func(map[string]interface{}) error{checkFieldValues},
		},
		{
			Name: "template_filter",
			Params: []Param{
				{Name: "status", Kind: KindString, OneOf: []string{"verified", "draft", "all"}},
				{Name: "type", Kind: KindString, MaxLen: 100},
				{Name: "tags", Kind: KindList},
				{Name: "query", Kind: KindString, MaxLen: 1000},
			},
		},
		{
			Name: "export_draft",
			Params: []Param{
				{Name: "strategy", Kind: KindString, OneOf: []string{"", "rasterize", "structured", "print"}},
				{Name: "archive", Kind: KindBool},
			},
		},
	}
}

func checkFilename(value interface{}) error {
	name, _ := value.(string)
	if strings.ContainsAny(name, `/\:*?"<>|`) {
		return fmt.Errorf("must not contain path separators or reserved characters")
	}
	return nil
}

// checkFieldValues requires values to map field names to strings
func checkFieldValues(data map[string]interface{}) error {
	values, _ := data["values"].(map[string]interface{})
	for name, raw := range values {
		if !wordPattern.MatchString(name) {
			return fmt.Errorf("field name %q contains invalid characters", name)
		}
		if _, ok := raw.(string); !ok && raw != nil {
			return fmt.Errorf("value for %q must be a string", name)
		}
	}
	return nil
}

// ToAppError converts a failed result into a validation AppError listing
// every rejected parameter in its details
func (r *ValidationResult) ToAppError() *errors.AppError {
	if r.Valid {
		return nil
	}
	if len(r.Errors) == 0 {
		return errors.ValidationError("request is invalid")
	}

	parts := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		parts[i] = e.Field + ": " + e.Message
	}
	return errors.ValidationError(r.Errors[0].Message).
		WithDetails(strings.Join(parts, "; ")).
		WithContext("validation_errors", r.Errors)
}

// GetValidatedData returns the converted data, or nil when the request failed
func (r *ValidationResult) GetValidatedData() map[string]interface{} {
	if !r.Valid {
		return nil
	}
	return r.Data
}
