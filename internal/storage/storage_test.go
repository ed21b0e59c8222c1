package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doclast/docfill/internal/models"
)

func newTestStorage(t *testing.T, opts ...Option) *Storage {
	t.Helper()
	s, err := NewStorage(t.TempDir(), opts...)
	require.NoError(t, err)
	require.NoError(t, s.InitLibrary())
	t.Cleanup(func() { s.Close() })
	return s
}

func TestInitLibrarySeedsSampleTemplate(t *testing.T) {
	s := newTestStorage(t)

	templates, err := s.ListTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)

	nda := templates[0]
	assert.Equal(t, "non-disclosure-agreement", nda.ID)
	assert.Equal(t, "Non Disclosure Agreement", nda.Name)
	assert.Len(t, nda.Fields, 8)
	assert.Empty(t, nda.Content, "listing leaves the body out")

	full, err := s.LoadTemplate(nda.FilePath)
	require.NoError(t, err)
	assert.Contains(t, full.Content, "{{disclosingPartyName}}")
	assert.Empty(t, full.UnknownTokens())

	field, ok := full.Field("disclosingPartyEmail")
	require.True(t, ok)
	assert.Equal(t, models.FieldEmail, field.Type)
	assert.Equal(t, 100, field.Validation.MaxLength)
}

func TestInitLibraryKeepsExistingTemplates(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "templates")
	require.NoError(t, os.MkdirAll(dir, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "mine.md"), []byte("---\nname: Mine\nfields: []\n---\n# Hello\n"), 0644))

	s, err := NewStorage(root)
	require.NoError(t, err)
	require.NoError(t, s.InitLibrary())

	templates, err := s.ListTemplates()
	require.NoError(t, err)
	require.Len(t, templates, 1)
	assert.Equal(t, "mine", templates[0].ID)
	assert.Equal(t, models.FormatMarkdown, templates[0].Format)
}

func TestSaveTemplateRoundTrip(t *testing.T) {
	s := newTestStorage(t)

	tmpl := &models.Template{
		ID:      "letter",
		Name:    "Letter",
		Format:  models.FormatHTML,
		Fields:  []models.FieldSpec{{Name: "recipient", Label: "Recipient", Required: true}},
		Content: "<p>Dear {{recipient}},</p>",
	}
	require.NoError(t, s.SaveTemplate(tmpl))
	assert.Equal(t, filepath.Join("templates", "letter.html"), tmpl.FilePath)

	loaded, err := s.LoadTemplate(tmpl.FilePath)
	require.NoError(t, err)
	assert.Equal(t, tmpl.Content, loaded.Content)
	assert.Equal(t, tmpl.Fields, loaded.Fields)

	templates, err := s.ListTemplates()
	require.NoError(t, err)
	assert.Len(t, templates, 2)

	require.NoError(t, s.DeleteTemplate(loaded))
	templates, err = s.ListTemplates()
	require.NoError(t, err)
	assert.Len(t, templates, 1)
}

func TestParseTemplateFileErrors(t *testing.T) {
	_, err := parseTemplateFile([]byte("<p>no frontmatter</p>"))
	assert.Error(t, err)

	_, err = parseTemplateFile([]byte("---\nname: x\n<p>body</p>\n"))
	assert.ErrorContains(t, err, "unterminated")
}

func TestParseTemplateFileLineEndings(t *testing.T) {
	tmpl, err := parseTemplateFile([]byte("---\r\nname: Memo\r\nfields: []\r\n---\r\n\r\n<p>To {{to}}</p>\r\n"))
	require.NoError(t, err)
	assert.Equal(t, "Memo", tmpl.Name)
	assert.Equal(t, "<p>To {{to}}</p>", tmpl.Content)

	parsed, err := ParseTemplate("notes/memo.md", []byte("---\nname: Memo\n---\n# Hi\n\n"))
	require.NoError(t, err)
	assert.Equal(t, "memo", parsed.ID)
	assert.Equal(t, models.FormatMarkdown, parsed.Format)
	assert.Equal(t, "# Hi\n", parsed.Content)
}

func TestListTemplatesUsesCache(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.ListTemplates()
	require.NoError(t, err)
	assert.Equal(t, 1, s.cache.Len())

	// A fresh instance reads the cache file written by the first listing.
	s2, err := NewStorage(s.BaseDir())
	require.NoError(t, err)
	assert.Equal(t, 1, s2.cache.Len())

	s.InvalidateTemplate(filepath.Join(s.TemplatesDir(), "non-disclosure-agreement.html"))
	assert.Equal(t, 0, s.cache.Len())
}

func TestRecordsOnEachBackend(t *testing.T) {
	backends := []struct {
		name string
		open func(t *testing.T) KV
	}{
		{
			name: "file",
			open: func(t *testing.T) KV { return NewFileKV(t.TempDir()) },
		},
		{
			name: "sqlite",
			open: func(t *testing.T) KV {
				kv, err := OpenSQLiteKV(filepath.Join(t.TempDir(), "docfill.db"))
				require.NoError(t, err)
				return kv
			},
		},
	}

	for _, backend := range backends {
		t.Run(backend.name, func(t *testing.T) {
			s := newTestStorage(t, WithKV(backend.open(t)))
			now := time.Date(2025, 12, 5, 10, 0, 0, 0, time.UTC)

			older := &models.DocumentDraft{ID: "d1", TemplateID: "nda", Name: "First",
				FieldValues: map[string]string{"purpose": "x"}, Status: models.DraftOpen,
				CreatedAt: now, UpdatedAt: now}
			newer := &models.DocumentDraft{ID: "d2", TemplateID: "nda", Name: "Second",
				FieldValues: map[string]string{}, Status: models.DraftOpen,
				CreatedAt: now, UpdatedAt: now.Add(time.Hour)}
			require.NoError(t, s.SaveDraft(older))
			require.NoError(t, s.SaveDraft(newer))

			got, err := s.LoadDraft("d1")
			require.NoError(t, err)
			assert.Equal(t, "x", got.FieldValues["purpose"])

			drafts, err := s.ListDrafts()
			require.NoError(t, err)
			require.Len(t, drafts, 2)
			assert.Equal(t, "d2", drafts[0].ID)

			require.NoError(t, s.DeleteDraft("d1"))
			_, err = s.LoadDraft("d1")
			assert.ErrorIs(t, err, ErrNotFound)
			assert.ErrorIs(t, s.DeleteDraft("d1"), ErrNotFound)

			doc := &models.Document{ID: "doc1", DraftID: "d2", Filename: "second.pdf", CreatedAt: now}
			require.NoError(t, s.SaveDocument(doc))
			docs, err := s.ListDocuments()
			require.NoError(t, err)
			require.Len(t, docs, 1)
			assert.Equal(t, "second.pdf", docs[0].Filename)

			backup, err := s.LoadBackup("draft-d2")
			require.NoError(t, err)
			assert.Nil(t, backup)

			require.NoError(t, s.SaveBackup(&models.EmergencyBackup{FormKey: "draft-d2",
				Data: map[string]string{"purpose": "y"}, Timestamp: now}))
			backup, err = s.LoadBackup("draft-d2")
			require.NoError(t, err)
			require.NotNil(t, backup)
			assert.Equal(t, "y", backup.Data["purpose"])

			require.NoError(t, s.DeleteBackup("draft-d2"))
			require.NoError(t, s.DeleteBackup("draft-d2"))
		})
	}
}

func TestKVRejectsBadKeys(t *testing.T) {
	kv := NewFileKV(t.TempDir())
	assert.Error(t, kv.Put("drafts", "../escape", []byte("{}")))
	assert.Error(t, kv.Put("drafts", "", []byte("{}")))
	assert.Error(t, kv.Put("a/b", "key", []byte("{}")))
}

func TestOpenKV(t *testing.T) {
	kv, err := OpenKV("file", t.TempDir(), "")
	require.NoError(t, err)
	assert.IsType(t, &FileKV{}, kv)

	kv, err = OpenKV("sqlite", "", ":memory:")
	require.NoError(t, err)
	assert.IsType(t, &SQLiteKV{}, kv)
	require.NoError(t, kv.Close())

	_, err = OpenKV("redis", "", "")
	assert.Error(t, err)
}
