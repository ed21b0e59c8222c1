// Package api/openapi serves the OpenAPI 3.0 description of the docfill API
// and a Swagger UI page for exploring it.
//
// INTEGRATION POINTS:
// - internal/api/server.go: every route registered in Routes() is listed in getOpenAPISpec()
// - internal/validation/validator.go: request bodies mirror the built-in request schemas
// - internal/errors/handlers.go: ErrorResponse matches the body HTTPErrorHandler.WriteHTTPError() writes
// - Swagger UI CDN: handleOpenAPI loads its assets from unpkg.com
package api

import (
	"encoding/json"
	"net/http"
)

const swaggerPage = `<!DOCTYPE html>
<html>
<head>
    <title>docfill API Documentation</title>
    <link rel="stylesheet" type="text/css" href="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui.css" />
    <style>
        html { box-sizing: border-box; overflow-y: scroll; }
        *, *:before, *:after { box-sizing: inherit; }
        body { margin:0; background: #fafafa; }
    </style>
</head>
<body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@4.15.5/swagger-ui-bundle.js"></script>
    <script>
        window.onload = function() {
            SwaggerUIBundle({
                url: '/api/openapi.json',
                dom_id: '#swagger-ui',
                deepLinking: true,
                presets: [SwaggerUIBundle.presets.apis]
            });
        };
    </script>
</body>
</html>`

// handleOpenAPI serves the OpenAPI documentation interface
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(swaggerPage))
}

// handleOpenAPISpec serves the OpenAPI JSON specification
func (s *Server) handleOpenAPISpec(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(getOpenAPISpec())
}

func ref(name string) map[string]interface{} {
	return map[string]interface{}{"$ref": "#/components/schemas/" + name}
}

func jsonContent(schema map[string]interface{}) map[string]interface{} {
	return map[string]interface{}{
		"application/json": map[string]interface{}{"schema": schema},
	}
}

// operation builds one path operation. A nil body means no request body.
func operation(summary string, params []map[string]interface{}, body map[string]interface{}, ok string, okSchema map[string]interface{}) map[string]interface{} {
	responses := map[string]interface{}{
		ok: map[string]interface{}{
			"description": "Success",
			"content":     jsonContent(okSchema),
		},
		"default": map[string]interface{}{
			"description": "Error",
			"content":     jsonContent(ref("ErrorResponse")),
		},
	}
	op := map[string]interface{}{
		"summary":   summary,
		"responses": responses,
	}
	if len(params) > 0 {
		op["parameters"] = params
	}
	if body != nil {
		op["requestBody"] = map[string]interface{}{
			"required": true,
			"content":  jsonContent(body),
		}
	}
	return op
}

func param(name, in, kind, description string) map[string]interface{} {
	return map[string]interface{}{
		"name":        name,
		"in":          in,
		"required":    in == "path",
		"description": description,
		"schema":      map[string]interface{}{"type": kind},
	}
}

func object(props map[string]interface{}, required ...string) map[string]interface{} {
	schema := map[string]interface{}{
		"type":       "object",
		"properties": props,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	return schema
}

func str() map[string]interface{} { return map[string]interface{}{"type": "string"} }

// getOpenAPISpec returns the OpenAPI 3.0 specification
func getOpenAPISpec() map[string]interface{} {
	draftID := param("id", "path", "string", "Draft ID")
	envelope := ref("APIResponse")

	fileResponse := func(summary string, contentType string) map[string]interface{} {
		return map[string]interface{}{
			"summary": summary,
			"responses": map[string]interface{}{
				"200": map[string]interface{}{
					"description": "Exported file",
					"content": map[string]interface{}{
						contentType: map[string]interface{}{
							"schema": map[string]interface{}{"type": "string", "format": "binary"},
						},
					},
				},
				"default": map[string]interface{}{
					"description": "Error",
					"content":     jsonContent(ref("ErrorResponse")),
				},
			},
		}
	}

	exportOp := fileResponse("Export the draft as PDF", "application/pdf")
	exportOp["parameters"] = []map[string]interface{}{
		draftID,
		param("strategy", "query", "string", "Pin one strategy: rasterize, structured or print"),
		param("archive", "query", "boolean", "Also store the file in the configured archive"),
	}
	htmlOp := fileResponse("Download the draft as standalone HTML", "text/html")
	htmlOp["parameters"] = []map[string]interface{}{draftID}

	return map[string]interface{}{
		"openapi": "3.0.3",
		"info": map[string]interface{}{
			"title":       "docfill API",
			"description": "Fill document templates, autosave drafts and export them to PDF",
			"version":     Version,
		},
		"servers": []map[string]interface{}{
			{"url": "http://localhost:8080/api/v1", "description": "Development server"},
		},
		"paths": map[string]interface{}{
			"/health": map[string]interface{}{
				"get": operation("Health check", nil, nil, "200", envelope),
			},
			"/templates": map[string]interface{}{
				"get": operation("List templates", []map[string]interface{}{
					param("status", "query", "string", "verified (default), draft or all"),
					param("type", "query", "string", "Document type"),
					param("tags", "query", "string", "Comma-separated tags, all must match"),
					param("query", "query", "string", "Substring match on name and tags"),
					param("search", "query", "string", "Fuzzy search; overrides the other filters"),
				}, nil, "200", envelope),
			},
			"/templates/{id}": map[string]interface{}{
				"get": operation("Get a template", []map[string]interface{}{param("id", "path", "string", "Template ID")}, nil, "200", envelope),
			},
			"/tags": map[string]interface{}{
				"get": operation("List template tags", nil, nil, "200", envelope),
			},
			"/drafts": map[string]interface{}{
				"get":  operation("List drafts", nil, nil, "200", envelope),
				"post": operation("Create a draft", nil, ref("CreateDraftRequest"), "201", envelope),
			},
			"/drafts/{id}": map[string]interface{}{
				"get":    operation("Get a draft", []map[string]interface{}{draftID}, nil, "200", envelope),
				"patch":  operation("Update draft details", []map[string]interface{}{draftID}, ref("UpdateDetailsRequest"), "200", envelope),
				"delete": operation("Delete a draft", []map[string]interface{}{draftID}, nil, "200", envelope),
			},
			"/drafts/{id}/fields": map[string]interface{}{
				"put": operation("Update field values", []map[string]interface{}{draftID}, ref("UpdateFieldsRequest"), "200", envelope),
			},
			"/drafts/{id}/validate": map[string]interface{}{
				"get": operation("Validate every field", []map[string]interface{}{draftID}, nil, "200", envelope),
			},
			"/drafts/{id}/preview": map[string]interface{}{
				"get": operation("Render the draft", []map[string]interface{}{
					draftID,
					param("decorated", "query", "boolean", "Wrap filled values in locked-field markup"),
				}, nil, "200", envelope),
			},
			"/drafts/{id}/export":      map[string]interface{}{"post": exportOp},
			"/drafts/{id}/export.html": map[string]interface{}{"get": htmlOp},
			"/drafts/{id}/finalize": map[string]interface{}{
				"post": operation("Finalize the draft into a document", []map[string]interface{}{draftID}, nil, "201", envelope),
			},
			"/drafts/{id}/restore": map[string]interface{}{
				"post": operation("Restore the emergency backup", []map[string]interface{}{draftID}, nil, "200", envelope),
			},
			"/drafts/{id}/autosave": map[string]interface{}{
				"get": operation("Autosave status", []map[string]interface{}{draftID}, nil, "200", envelope),
			},
			"/documents": map[string]interface{}{
				"get": operation("List finalized documents", nil, nil, "200", envelope),
			},
		},
		"components": map[string]interface{}{
			"schemas": map[string]interface{}{
				"APIResponse": object(map[string]interface{}{
					"success":   map[string]interface{}{"type": "boolean"},
					"data":      map[string]interface{}{},
					"message":   str(),
					"timestamp": map[string]interface{}{"type": "string", "format": "date-time"},
				}, "success", "timestamp"),
				"ErrorResponse": object(map[string]interface{}{
					"error": object(map[string]interface{}{
						"code":     str(),
						"message":  str(),
						"details":  str(),
						"category": str(),
						"severity": str(),
					}),
				}),
				"CreateDraftRequest": object(map[string]interface{}{
					"template_id": str(),
					"name":        str(),
					"filename":    str(),
					"description": str(),
				}, "template_id"),
				"UpdateDetailsRequest": object(map[string]interface{}{
					"name":        str(),
					"filename":    str(),
					"description": str(),
					"content":     str(),
				}),
				"UpdateFieldsRequest": object(map[string]interface{}{
					"values": map[string]interface{}{
						"type":                 "object",
						"additionalProperties": str(),
					},
				}, "values"),
			},
		},
	}
}
