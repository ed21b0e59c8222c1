package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclast/docfill/internal/autosave"
	"github.com/doclast/docfill/internal/config"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/service"
	"github.com/doclast/docfill/internal/storage"
)

const ndaID = "non-disclosure-agreement"

type fakeStrategy struct{ name string }

func (f fakeStrategy) Name() string { return f.name }
func (f fakeStrategy) CanRun(context.Context) bool { return true }
func (f fakeStrategy) Run(context.Context, *export.Job) (*export.Result, error) {
	return &export.Result{Data: []byte("%PDF-1.4 " + f.name), Pages: 1}, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	return newTestServerWith(t, config.Default().Server)
}

func newTestServerWith(t *testing.T, cfg config.ServerConfig) (*httptest.Server, string) {
	t.Helper()
	store, err := storage.NewStorage(t.TempDir())
	require.NoError(t, err)

	exports := t.TempDir()
	pipeline := export.NewPipeline([]export.Strategy{
		fakeStrategy{name: export.Rasterize},
		fakeStrategy{name: export.Structured},
	})
	svc := service.New(store,
		service.WithPipeline(pipeline),
		service.WithArchive(storage.NewLocalArchive(exports)),
		service.WithAutosave(autosave.Options{Debounce: 10 * time.Millisecond}),
		service.WithRecovery(errors.NewErrorRecovery(1, 0)),
	)
	require.NoError(t, svc.InitLibrary())
	t.Cleanup(func() { svc.Close() })

	srv := httptest.NewServer(NewServer(svc, cfg, nil).Routes())
	t.Cleanup(srv.Close)
	return srv, exports
}

func do(t *testing.T, method, url string, body interface{}) *http.Response {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, url, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	if v != nil {
		require.NoError(t, json.Unmarshal(env.Data, v))
	}
}

func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	var body errorBody
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body.Error.Code
}

func createDraft(t *testing.T, base string) string {
	t.Helper()
	resp := do(t, http.MethodPost, base+"/api/v1/drafts", map[string]string{
		"template_id": ndaID,
		"name":        "Acme NDA",
		"filename":    "acme-nda",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var draft struct {
		ID       string `json:"id"`
		Filename string `json:"filename"`
	}
	decode(t, resp, &draft)
	require.NotEmpty(t, draft.ID)
	assert.Equal(t, "acme-nda", draft.Filename)
	return draft.ID
}

func fillValues() map[string]string {
	return map[string]string{
		"effectiveDate":          "2025-12-05",
		"disclosingPartyName":    "Acme Corp",
		"disclosingPartyAddress": "1 Market Street, Springfield",
		"disclosingPartyEmail":   "legal@acme.example",
		"receivingPartyName":     "Jane Roe",
		"receivingPartyAddress":  "22 Elm Road, Shelbyville",
		"receivingPartyEmail":    "jane@roe.example",
		"purpose":                "Evaluating a joint venture for regional logistics",
	}
}

func TestHealth(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var health struct {
		Status     string   `json:"status"`
		Strategies []string `json:"strategies"`
		Archive    string   `json:"archive"`
	}
	decode(t, resp, &health)
	assert.Equal(t, "ok", health.Status)
	assert.Equal(t, []string{export.Rasterize, export.Structured}, health.Strategies)
	assert.Equal(t, "local", health.Archive)
}

func TestTemplateRoutes(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/v1/templates?tags=nda,legal", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var templates []struct {
		ID string `json:"id"`
	}
	decode(t, resp, &templates)
	require.Len(t, templates, 1)
	assert.Equal(t, ndaID, templates[0].ID)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/templates?status=draft", nil)
	decode(t, resp, &templates)
	assert.Empty(t, templates)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/templates?status=bogus", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/templates?search=disclosure", nil)
	decode(t, resp, &templates)
	assert.Len(t, templates, 1)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/templates/"+ndaID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/templates/missing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(t, resp))

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/tags", nil)
	var tags []string
	decode(t, resp, &tags)
	assert.Contains(t, tags, "nda")
}

func TestCreateDraftValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodPost, srv.URL+"/api/v1/drafts", map[string]string{"name": "no template"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/drafts", map[string]string{
		"template_id": ndaID,
		"filename":    "../escape",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, srv.URL+"/api/v1/drafts", map[string]string{"template_id": "missing"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestDraftLifecycle(t *testing.T) {
	srv, exports := newTestServer(t)
	id := createDraft(t, srv.URL)
	draftURL := srv.URL + "/api/v1/drafts/" + id

	resp := do(t, http.MethodGet, draftURL+"/validate", nil)
	var report struct {
		Valid  bool              `json:"valid"`
		Errors map[string]string `json:"errors"`
	}
	decode(t, resp, &report)
	assert.False(t, report.Valid)
	assert.Contains(t, report.Errors, "purpose")

	values := fillValues()
	values["receivingPartyEmail"] = "not-an-email"
	resp = do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{"values": values})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var update struct {
		Errors map[string]string `json:"errors"`
	}
	decode(t, resp, &update)
	assert.Contains(t, update.Errors, "receivingPartyEmail")

	resp = do(t, http.MethodPost, draftURL+"/finalize", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{
		"values": map[string]string{"receivingPartyEmail": "jane@roe.example"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, draftURL+"/preview", nil)
	var preview struct {
		HTML      string   `json:"html"`
		Remaining []string `json:"remaining"`
	}
	decode(t, resp, &preview)
	assert.Contains(t, preview.HTML, "Acme Corp")
	assert.Empty(t, preview.Remaining)

	resp = do(t, http.MethodPost, draftURL+"/finalize", nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var finalized struct {
		Document struct {
			ID       string `json:"id"`
			Location string `json:"location"`
			Strategy string `json:"strategy"`
		} `json:"document"`
	}
	decode(t, resp, &finalized)
	assert.Equal(t, export.Rasterize, finalized.Document.Strategy)
	assert.FileExists(t, finalized.Document.Location)
	assert.Contains(t, finalized.Document.Location, exports)

	resp = do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{
		"values": map[string]string{"purpose": "Something else entirely"},
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "DRAFT_FINALIZED", errorCode(t, resp))

	resp = do(t, http.MethodGet, srv.URL+"/api/v1/documents", nil)
	var docs []struct {
		DraftID string `json:"draft_id"`
	}
	decode(t, resp, &docs)
	require.Len(t, docs, 1)
	assert.Equal(t, id, docs[0].DraftID)
}

func TestUpdateFieldsRejectsBadBodies(t *testing.T) {
	srv, _ := newTestServer(t)
	draftURL := srv.URL + "/api/v1/drafts/" + createDraft(t, srv.URL)

	resp := do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{
		"values": map[string]interface{}{"purpose": 42},
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{
		"values": map[string]string{"purpose": "see {{effectiveDate}}"},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "NESTED_PLACEHOLDER", errorCode(t, resp))
}

func TestErrorDetailsOnlyWhenConfigured(t *testing.T) {
	nested := map[string]interface{}{
		"values": map[string]string{"purpose": "see {{effectiveDate}}"},
	}
	errorJSON := func(cfg config.ServerConfig) map[string]interface{} {
		srv, _ := newTestServerWith(t, cfg)
		resp := do(t, http.MethodPut, srv.URL+"/api/v1/drafts/"+createDraft(t, srv.URL)+"/fields", nested)
		require.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
		var body map[string]map[string]interface{}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		return body["error"]
	}

	cfg := config.Default().Server
	assert.False(t, cfg.ErrorDetails)
	hidden := errorJSON(cfg)
	assert.Equal(t, "NESTED_PLACEHOLDER", hidden["code"])
	assert.NotContains(t, hidden, "context")

	cfg.ErrorDetails = true
	shown := errorJSON(cfg)
	assert.Equal(t, map[string]interface{}{"field": "purpose"}, shown["context"])
}

func TestExportRoutes(t *testing.T) {
	srv, exports := newTestServer(t)
	draftURL := srv.URL + "/api/v1/drafts/" + createDraft(t, srv.URL)

	resp := do(t, http.MethodPut, draftURL+"/fields", map[string]interface{}{"values": fillValues()})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodPost, draftURL+"/export", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
	assert.Equal(t, export.Rasterize, resp.Header.Get("X-Export-Strategy"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), `filename="acme-nda.pdf"`)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-1.4 rasterize", string(body))

	resp = do(t, http.MethodPost, draftURL+"/export?strategy=structured&archive=true", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.Structured, resp.Header.Get("X-Export-Strategy"))
	location := resp.Header.Get("X-Archive-Location")
	require.NotEmpty(t, location)
	assert.Contains(t, location, exports)
	_, err = os.Stat(location)
	assert.NoError(t, err)

	resp = do(t, http.MethodPost, draftURL+"/export?strategy=print", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodPost, draftURL+"/export?strategy=laser", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = do(t, http.MethodGet, draftURL+"/export.html", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "Jane Roe")
}

func TestDeleteDraftAndUnknownRoutes(t *testing.T) {
	srv, _ := newTestServer(t)
	draftURL := srv.URL + "/api/v1/drafts/" + createDraft(t, srv.URL)

	resp := do(t, http.MethodPatch, draftURL, map[string]string{"name": "Renamed"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var draft struct {
		Name string `json:"name"`
	}
	decode(t, resp, &draft)
	assert.Equal(t, "Renamed", draft.Name)

	resp = do(t, http.MethodGet, draftURL+"/autosave", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodDelete, draftURL, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = do(t, http.MethodGet, draftURL, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodDelete, draftURL, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodGet, srv.URL+"/api/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = do(t, http.MethodOptions, srv.URL+"/api/v1/drafts", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestOpenAPIDocuments(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := do(t, http.MethodGet, srv.URL+"/api/openapi.json", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var spec struct {
		OpenAPI string                 `json:"openapi"`
		Paths   map[string]interface{} `json:"paths"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&spec))
	assert.Equal(t, "3.0.3", spec.OpenAPI)
	for _, path := range []string{"/drafts", "/drafts/{id}/fields", "/drafts/{id}/export", "/documents"} {
		assert.Contains(t, spec.Paths, path)
	}

	resp = do(t, http.MethodGet, srv.URL+"/api/docs", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/html")
}
