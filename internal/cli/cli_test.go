package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const ndaID = "non-disclosure-agreement"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("DOCFILL_DIR", dir)
	t.Setenv("DOCFILL_EXPORT_PRIMARY", "structured")
	t.Setenv("DOCFILL_ARCHIVE", "local")
	t.Setenv("DOCFILL_LOG_LEVEL", "error")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := Run(context.Background(), "test", args, &stdout, &stderr)
	return stdout.String(), err
}

func mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := run(t, args...)
	require.NoError(t, err, "docfill %s", strings.Join(args, " "))
	return out
}

func newDraft(t *testing.T) string {
	t.Helper()
	return strings.TrimSpace(mustRun(t, "draft", "new", ndaID, "--name", "Acme NDA", "--filename", "acme-nda", "--format", "ids"))
}

func TestInitWritesConfig(t *testing.T) {
	dir := setupEnv(t)

	out := mustRun(t, "init")
	assert.Contains(t, out, "Library ready at "+dir)
	assert.FileExists(t, filepath.Join(dir, "config.yaml"))
	assert.FileExists(t, filepath.Join(dir, "templates", ndaID+".html"))

	// A second run keeps the existing file.
	out = mustRun(t, "init")
	assert.NotContains(t, out, "Wrote")
}

func TestTemplateCommands(t *testing.T) {
	setupEnv(t)

	assert.Equal(t, ndaID+"\n", mustRun(t, "templates", "list", "--format", "ids"))
	assert.Equal(t, ndaID+"\n", mustRun(t, "templates", "list", "--tag", "nda", "--format", "ids"))
	assert.Empty(t, mustRun(t, "templates", "list", "--tag", "lease", "--format", "ids"))
	assert.Contains(t, mustRun(t, "templates", "search", "disclosure"), "Non Disclosure Agreement")

	out := mustRun(t, "templates", "show", ndaID)
	assert.Contains(t, out, "effectiveDate")
	assert.Contains(t, out, "(required)")

	var tags []string
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "templates", "tags", "--format", "json")), &tags))
	assert.Contains(t, tags, "legal")

	_, err := run(t, "templates", "show", "missing")
	assert.Error(t, err)
}

func TestDraftSetAndValidate(t *testing.T) {
	setupEnv(t)
	id := newDraft(t)
	require.NotEmpty(t, id)

	_, err := run(t, "draft", "validate", id)
	require.Error(t, err)

	out := mustRun(t, "draft", "set", id, "disclosingPartyEmail=nope", "purpose=short")
	assert.Contains(t, out, "Saved 2 field(s)")
	assert.Contains(t, out, "disclosingPartyEmail: Please enter a valid email address")

	// Invalid values are stored, not dropped.
	out = mustRun(t, "draft", "show", id)
	assert.Contains(t, out, "nope")

	_, err = run(t, "draft", "set", id, "unknownField=x")
	assert.Error(t, err)
	_, err = run(t, "draft", "set", id, "missing-equals")
	assert.Error(t, err)
}

func TestDraftExportAndFinalize(t *testing.T) {
	setupEnv(t)
	id := newDraft(t)

	args := []string{"draft", "set", id,
		"effectiveDate=2025-12-05",
		"disclosingPartyName=Acme Corp",
		"disclosingPartyAddress=1 Market Street, Springfield",
		"disclosingPartyEmail=legal@acme.example",
		"receivingPartyName=Jane Roe",
		"receivingPartyAddress=22 Elm Road, Shelbyville",
		"receivingPartyEmail=jane@roe.example",
		"purpose=Evaluating a joint venture for regional logistics",
	}
	out := mustRun(t, args...)
	assert.NotContains(t, out, ":")
	assert.Contains(t, mustRun(t, "draft", "validate", id), "All fields are valid")
	assert.Contains(t, mustRun(t, "draft", "preview", id), "Acme Corp")

	outDir := t.TempDir()
	path := strings.TrimSpace(mustRun(t, "draft", "export", id, "--output", outDir, "--format", "ids"))
	assert.Equal(t, filepath.Join(outDir, "acme-nda.pdf"), path)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))

	_, err = run(t, "draft", "export", id, "--strategy", "laser")
	assert.Error(t, err)

	html := strings.TrimSpace(mustRun(t, "draft", "html", id, "--output", outDir, "--format", "ids"))
	assert.Equal(t, filepath.Join(outDir, "acme-nda.html"), html)

	var doc struct {
		ID       string `json:"id"`
		Location string `json:"location"`
		Strategy string `json:"strategy"`
	}
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, "draft", "finalize", id, "--format", "json")), &doc))
	assert.Equal(t, "structured", doc.Strategy)
	assert.FileExists(t, doc.Location)

	_, err = run(t, "draft", "set", id, "purpose=Changed after the fact entirely")
	assert.Error(t, err)

	assert.Equal(t, doc.ID+"\n", mustRun(t, "documents", "--format", "ids"))
}

func TestDraftListAndDelete(t *testing.T) {
	setupEnv(t)
	id := newDraft(t)

	assert.Contains(t, mustRun(t, "draft", "list"), "Acme NDA")
	assert.Contains(t, mustRun(t, "draft", "restore", id), "No backup to restore")

	mustRun(t, "draft", "delete", id)
	assert.Empty(t, mustRun(t, "draft", "list", "--format", "ids"))

	_, err := run(t, "draft", "show", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestVersion(t *testing.T) {
	setupEnv(t)
	assert.Equal(t, "docfill test\n", mustRun(t, "version"))
}

func TestTemplatesImport(t *testing.T) {
	setupEnv(t)
	src := t.TempDir()
	memo := "---\nname: Memo\nfields:\n  - name: to\n    label: To\n---\n<p>To: {{to}}</p>\n"
	require.NoError(t, os.WriteFile(filepath.Join(src, "memo.html"), []byte(memo), 0644))

	out := mustRun(t, "templates", "import", src, "--dry-run")
	assert.Contains(t, out, "Would import memo (draft)")
	assert.NotContains(t, mustRun(t, "templates", "list", "--status", "all", "--format", "ids"), "memo")

	assert.Contains(t, mustRun(t, "templates", "import", src, "--tag", "internal"), "Imported memo (draft)")
	assert.Equal(t, "memo\n", mustRun(t, "templates", "list", "--status", "draft", "--format", "ids"))
	assert.Contains(t, mustRun(t, "templates", "import", src), "Skipped memo")

	require.NoError(t, os.WriteFile(filepath.Join(src, "bad.html"), []byte("no frontmatter"), 0644))
	_, err := run(t, "templates", "import", src)
	assert.Error(t, err)
}
