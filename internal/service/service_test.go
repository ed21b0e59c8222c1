package service

import (
	"context"
	stderrors "errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/doclast/docfill/internal/autosave"
	"github.com/doclast/docfill/internal/errors"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/storage"
)

const ndaID = "non-disclosure-agreement"

// recordingStrategy returns a fixed PDF and remembers the HTML it was given
type recordingStrategy struct {
	mu   sync.Mutex
	seen []string
}

func (r *recordingStrategy) Name() string { return export.Structured }
func (r *recordingStrategy) CanRun(context.Context) bool { return true }
func (r *recordingStrategy) Run(_ context.Context, job *export.Job) (*export.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, job.HTML)
	return &export.Result{Data: []byte("%PDF-1.4 fake"), Pages: 1}, nil
}

func (r *recordingStrategy) last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.seen) == 0 {
		return ""
	}
	return r.seen[len(r.seen)-1]
}

// flakyArchive fails a number of times before storing in memory
type flakyArchive struct {
	failures int32
	calls    atomic.Int32
}

func (a *flakyArchive) Kind() string { return "flaky" }
func (a *flakyArchive) Put(_ context.Context, name string, _ []byte, _ string) (string, error) {
	if a.calls.Add(1) <= a.failures {
		return "", stderrors.New("bucket unreachable")
	}
	return "mem://" + name, nil
}

type fixture struct {
	svc      *Service
	store    *storage.Storage
	strategy *recordingStrategy
	exports  string
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	store, err := storage.NewStorage(t.TempDir())
	require.NoError(t, err)

	strategy := &recordingStrategy{}
	exports := t.TempDir()
	base := []Option{
		WithPipeline(export.NewPipeline([]export.Strategy{strategy})),
		WithArchive(storage.NewLocalArchive(exports)),
		WithAutosave(autosave.Options{Debounce: 10 * time.Millisecond}),
		WithRecovery(errors.NewErrorRecovery(3, 0)),
	}
	svc := New(store, append(base, opts...)...)
	require.NoError(t, svc.InitLibrary())
	t.Cleanup(func() { svc.Close() })
	return &fixture{svc: svc, store: store, strategy: strategy, exports: exports}
}

func validValues() map[string]string {
	return map[string]string{
		"effectiveDate":          "2025-12-05",
		"disclosingPartyName":    "Acme Corp",
		"disclosingPartyAddress": "1 Market Street, Springfield",
		"disclosingPartyEmail":   "Legal@Acme.example",
		"receivingPartyName":     "Jane Roe",
		"receivingPartyAddress":  "22 Elm Road, Shelbyville",
		"receivingPartyEmail":    "jane@roe.example",
		"purpose":                "Evaluating a joint venture for regional logistics",
	}
}

func TestTemplateCatalogue(t *testing.T) {
	f := newFixture(t)

	templates, err := f.svc.ListTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)

	found, err := f.svc.SearchTemplates("disclosure")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, ndaID, found[0].ID)

	none, err := f.svc.SearchTemplates("zzzz")
	require.NoError(t, err)
	assert.Empty(t, none)

	filtered, err := f.svc.FilterTemplates(models.TemplateFilter{Tags: []string{"NDA"}, Type: "agreement"})
	require.NoError(t, err)
	assert.Len(t, filtered, 1)

	filtered, err = f.svc.FilterTemplates(models.TemplateFilter{Status: models.StatusDraft})
	require.NoError(t, err)
	assert.Empty(t, filtered)

	tags, err := f.svc.AllTags()
	require.NoError(t, err)
	assert.Equal(t, []string{"agreement", "confidential", "legal", "nda"}, tags)

	tmpl, err := f.svc.GetTemplate(ndaID)
	require.NoError(t, err)
	assert.Contains(t, tmpl.Content, "{{purpose}}")

	// Mutating a returned template leaves the catalogue alone.
	templates[0].Name = "changed"
	again, err := f.svc.ListTemplates()
	require.NoError(t, err)
	assert.Equal(t, "Non Disclosure Agreement", again[0].Name)

	_, err = f.svc.GetTemplate("missing")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestCreateDraft(t *testing.T) {
	f := newFixture(t)

	d, err := f.svc.CreateDraft(ndaID, "  ")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDraftName, d.Name)
	assert.Equal(t, models.DraftOpen, d.Status)
	assert.Len(t, d.FieldValues, 8)
	assert.NotEmpty(t, d.ID)

	drafts, err := f.svc.ListDrafts()
	require.NoError(t, err)
	assert.Len(t, drafts, 1)

	_, err = f.svc.CreateDraft("missing", "x")
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestUpdateDraftFieldsAutosaves(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)

	update, err := f.svc.UpdateDraftFields(d.ID, map[string]string{
		"disclosingPartyName":  "Acme <Corp>",
		"disclosingPartyEmail": "not-an-email",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme Corp", update.Draft.FieldValues["disclosingPartyName"])
	assert.Equal(t, "Please enter a valid email address", update.Errors["disclosingPartyEmail"])
	assert.NotContains(t, update.Errors, "disclosingPartyName")

	// Invalid values are still kept.
	assert.Equal(t, "not-an-email", update.Draft.FieldValues["disclosingPartyEmail"])

	assert.Eventually(t, func() bool {
		stored, err := f.store.LoadDraft(d.ID)
		return err == nil && stored.FieldValues["disclosingPartyEmail"] == "not-an-email"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool { return f.svc.AutosaveStatus(d.ID) != "" }, time.Second, 10*time.Millisecond)

	_, err = f.svc.UpdateDraftFields(d.ID, map[string]string{"nope": "x"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	_, err = f.svc.UpdateDraftFields(d.ID, map[string]string{"purpose": "see {{other}}"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNestedPlaceholder))

	_, err = f.svc.UpdateDraftFields("missing", map[string]string{"purpose": "x"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
}

func TestUpdateDraftDetails(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)

	name, filename, content := "", "acme-nda.pdf", "<p>Edited body</p>"
	updated, err := f.svc.UpdateDraftDetails(d.ID, DraftDetails{Name: &name, Filename: &filename, Content: &content})
	require.NoError(t, err)
	assert.Equal(t, models.DefaultDraftName, updated.Name)
	assert.Equal(t, "acme-nda", updated.Filename)

	rendered, err := f.svc.PreviewDraft(d.ID, false)
	require.NoError(t, err)
	assert.Equal(t, content, rendered.HTML)

	text, err := f.svc.PreviewText(d.ID, 80)
	require.NoError(t, err)
	assert.Contains(t, text, "Edited body")
}

func TestEditedContentLosesScripts(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)

	content := `<p>Edited</p><script>fetch("http://169.254.169.254/")</script><img src=x onerror="alert(1)">`
	_, err = f.svc.UpdateDraftDetails(d.ID, DraftDetails{Content: &content})
	require.NoError(t, err)

	rendered, err := f.svc.PreviewDraft(d.ID, false)
	require.NoError(t, err)
	assert.NotContains(t, rendered.HTML, "<script")
	assert.NotContains(t, rendered.HTML, "onerror")

	_, err = f.svc.ExportDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Contains(t, f.strategy.last(), "Edited")
	assert.NotContains(t, f.strategy.last(), "<script")
	assert.NotContains(t, f.strategy.last(), "onerror")
}

func TestPreviewAndExport(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraftFields(d.ID, map[string]string{"disclosingPartyName": "Acme Corp"})
	require.NoError(t, err)

	plain, err := f.svc.PreviewDraft(d.ID, false)
	require.NoError(t, err)
	assert.Contains(t, plain.HTML, "Acme Corp")
	assert.Contains(t, plain.Remaining, "purpose")

	decorated, err := f.svc.PreviewDraft(d.ID, true)
	require.NoError(t, err)
	assert.Contains(t, decorated.HTML, "locked-field-node")

	res, err := f.svc.ExportDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme NDA.pdf", res.Filename)
	assert.Equal(t, export.Structured, res.Strategy)
	assert.Contains(t, f.strategy.last(), "Acme Corp")
	assert.NotContains(t, f.strategy.last(), "locked-field-node")

	html, err := f.svc.ExportDraftHTML(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Acme NDA.html", html.Filename)
	assert.Contains(t, string(html.Data), "Acme Corp")
}

func TestFinalizeDraft(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)

	_, _, err = f.svc.FinalizeDraft(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeValidation))

	_, err = f.svc.UpdateDraftFields(d.ID, validValues())
	require.NoError(t, err)

	doc, res, err := f.svc.FinalizeDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, d.ID, doc.DraftID)
	assert.Equal(t, int64(len(res.Data)), doc.Size)
	assert.FileExists(t, doc.Location)
	data, err := os.ReadFile(doc.Location)
	require.NoError(t, err)
	assert.Equal(t, res.Data, data)

	stored, err := f.store.LoadDraft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, models.DraftFinalized, stored.Status)
	assert.Equal(t, "legal@acme.example", stored.FieldValues["disclosingPartyEmail"])

	_, err = f.svc.UpdateDraftFields(d.ID, map[string]string{"purpose": "another purpose entirely"})
	assert.True(t, errors.HasCode(err, errors.ErrCodeDraftFinalized))
	_, _, err = f.svc.FinalizeDraft(context.Background(), d.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeDraftFinalized))

	docs, err := f.svc.ListDocuments()
	require.NoError(t, err)
	require.Len(t, docs, 1)
	assert.Equal(t, doc.ID, docs[0].ID)
}

func TestFinalizeRetriesArchive(t *testing.T) {
	archive := &flakyArchive{failures: 2}
	f := newFixture(t, WithArchive(archive))
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraftFields(d.ID, validValues())
	require.NoError(t, err)

	doc, _, err := f.svc.FinalizeDraft(context.Background(), d.ID)
	require.NoError(t, err)
	assert.Equal(t, "mem://Acme NDA.pdf", doc.Location)
	assert.Equal(t, int32(3), archive.calls.Load())
}

func TestFinalizeGivesUpOnArchive(t *testing.T) {
	archive := &flakyArchive{failures: 100}
	f := newFixture(t, WithArchive(archive))
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraftFields(d.ID, validValues())
	require.NoError(t, err)

	_, _, err = f.svc.FinalizeDraft(context.Background(), d.ID)
	require.Error(t, err)
	assert.True(t, errors.HasCode(err, errors.ErrCodeStorageFailure))
	assert.Equal(t, int32(3), archive.calls.Load())

	// The draft stays editable when finalizing fails.
	got, err := f.svc.GetDraft(d.ID)
	require.NoError(t, err)
	assert.False(t, got.IsFinalized())
}

func TestRestoreBackup(t *testing.T) {
	now := time.Date(2025, 12, 5, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, WithClock(func() time.Time { return now }),
		WithAutosave(autosave.Options{Debounce: 10 * time.Millisecond, Now: func() time.Time { return now }}))
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)

	values, err := f.svc.RestoreBackup(d.ID)
	require.NoError(t, err)
	assert.Nil(t, values)

	require.NoError(t, f.store.SaveBackup(&models.EmergencyBackup{
		FormKey:   formKey(d.ID),
		Data:      map[string]string{"purpose": "Recovered purpose of the disclosure"},
		Timestamp: now.Add(-time.Hour),
	}))

	values, err = f.svc.RestoreBackup(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recovered purpose of the disclosure", values["purpose"])

	got, err := f.svc.GetDraft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Recovered purpose of the disclosure", got.FieldValues["purpose"])

	backup, err := f.store.LoadBackup(formKey(d.ID))
	require.NoError(t, err)
	assert.Nil(t, backup)
}

func TestDeleteDraft(t *testing.T) {
	f := newFixture(t)
	d, err := f.svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)
	_, err = f.svc.UpdateDraftFields(d.ID, map[string]string{"purpose": "x"})
	require.NoError(t, err)

	require.NoError(t, f.svc.DeleteDraft(d.ID))
	_, err = f.svc.GetDraft(d.ID)
	assert.True(t, errors.HasCode(err, errors.ErrCodeNotFound))
	assert.True(t, errors.HasCode(f.svc.DeleteDraft(d.ID), errors.ErrCodeNotFound))
}

func TestCloseFlushesPendingEdits(t *testing.T) {
	defer goleak.VerifyNone(t)

	store, err := storage.NewStorage(t.TempDir())
	require.NoError(t, err)
	svc := New(store,
		WithPipeline(export.NewPipeline([]export.Strategy{&recordingStrategy{}})),
		WithAutosave(autosave.Options{Debounce: time.Hour}))
	require.NoError(t, svc.InitLibrary())

	d, err := svc.CreateDraft(ndaID, "Acme NDA")
	require.NoError(t, err)
	_, err = svc.UpdateDraftFields(d.ID, map[string]string{"purpose": "Saved on shutdown for later review"})
	require.NoError(t, err)

	stored, err := store.LoadDraft(d.ID)
	require.NoError(t, err)
	assert.Empty(t, stored.FieldValues["purpose"], "debounce has not fired yet")

	require.NoError(t, svc.Close())

	reopened, err := storage.NewStorage(store.BaseDir())
	require.NoError(t, err)
	stored, err = reopened.LoadDraft(d.ID)
	require.NoError(t, err)
	assert.Equal(t, "Saved on shutdown for later review", stored.FieldValues["purpose"])
}
