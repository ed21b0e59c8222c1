// Package importer copies template files from a directory into the library.
//
// Each file is parsed and checked before anything is written: the ID must be
// a valid identifier, every {{token}} in the body needs a field, and field
// names must be unique. Files that fail are reported and skipped.
package importer

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/models"
	"github.com/doclast/docfill/internal/storage"
	"github.com/doclast/docfill/internal/validation"
)

// Options controls an import run
type Options struct {
	// Tags are added to every imported template
	Tags []string
	// Status replaces the status of every imported template when set
	Status    string
	Overwrite bool
	DryRun    bool
}

// Result lists what an import did
type Result struct {
	Imported []*models.Template `json:"imported"`
	Skipped  []string           `json:"skipped,omitempty"` // IDs already in the library
	Errors   []error            `json:"-"`
}

// ErrorMessages returns the errors as strings
func (r *Result) ErrorMessages() []string {
	out := make([]string, len(r.Errors))
	for i, err := range r.Errors {
		out[i] = err.Error()
	}
	return out
}

// Importer writes templates into a storage's library
type Importer struct {
	store  *storage.Storage
	logger *zap.Logger
}

func New(store *storage.Storage, logger *zap.Logger) *Importer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Importer{store: store, logger: logger.Named("importer")}
}

// ImportDir walks dir and imports every template file in it
func (i *Importer) ImportDir(dir string, opts Options) (*Result, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to open import directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory", dir)
	}

	existing, err := i.existingIDs()
	if err != nil {
		return nil, err
	}

	result := &Result{}
	seen := make(map[string]string)
	err = filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !storage.IsTemplateFile(path) {
			return nil
		}

		tmpl, err := i.importFile(path, opts)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		if first, dup := seen[tmpl.ID]; dup {
			result.Errors = append(result.Errors, fmt.Errorf("%s: template ID %q also used by %s", path, tmpl.ID, first))
			return nil
		}
		seen[tmpl.ID] = path

		if existing[tmpl.ID] && !opts.Overwrite {
			result.Skipped = append(result.Skipped, tmpl.ID)
			return nil
		}
		if !opts.DryRun {
			if err := i.store.SaveTemplate(tmpl); err != nil {
				result.Errors = append(result.Errors, fmt.Errorf("%s: %w", path, err))
				return nil
			}
		}
		result.Imported = append(result.Imported, tmpl)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk import directory: %w", err)
	}

	i.logger.Info("templates imported",
		zap.String("dir", dir),
		zap.Int("imported", len(result.Imported)),
		zap.Int("skipped", len(result.Skipped)),
		zap.Int("failed", len(result.Errors)),
		zap.Bool("dry_run", opts.DryRun))
	return result, nil
}

func (i *Importer) existingIDs() (map[string]bool, error) {
	templates, err := i.store.ListTemplates()
	if err != nil {
		return nil, fmt.Errorf("failed to list library templates: %w", err)
	}
	ids := make(map[string]bool, len(templates))
	for _, t := range templates {
		ids[t.ID] = true
	}
	return ids, nil
}

func (i *Importer) importFile(path string, opts Options) (*models.Template, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	tmpl, err := storage.ParseTemplate(path, content)
	if err != nil {
		return nil, err
	}
	if err := Check(tmpl); err != nil {
		return nil, err
	}

	tmpl.Tags = cleanTags(append(tmpl.Tags, opts.Tags...))
	switch {
	case opts.Status != "":
		tmpl.Status = opts.Status
	case tmpl.Status == "":
		// Unreviewed until someone marks it verified
		tmpl.Status = models.StatusDraft
	}
	// Saved under the library's own templates directory
	tmpl.FilePath = ""
	return tmpl, nil
}

// Check rejects templates the library could not fill
func Check(tmpl *models.Template) error {
	if err := validation.ValidateIdentifier(tmpl.ID); err != nil {
		return err
	}
	if strings.TrimSpace(tmpl.Name) == "" {
		return fmt.Errorf("template %q has no name", tmpl.ID)
	}
	if strings.TrimSpace(tmpl.Content) == "" {
		return fmt.Errorf("template %q has no content", tmpl.ID)
	}

	names := make(map[string]bool, len(tmpl.Fields))
	for _, f := range tmpl.Fields {
		if f.Name == "" {
			return fmt.Errorf("template %q has a field without a name", tmpl.ID)
		}
		if names[f.Name] {
			return fmt.Errorf("template %q declares field %q twice", tmpl.ID, f.Name)
		}
		names[f.Name] = true
		if err := validation.PatternError(f); err != nil {
			return fmt.Errorf("field %q: invalid pattern: %w", f.Name, err)
		}
	}
	if unknown := tmpl.UnknownTokens(); len(unknown) > 0 {
		return fmt.Errorf("template %q uses tokens without a field: %s", tmpl.ID, strings.Join(unknown, ", "))
	}
	return nil
}

// cleanTags lowercases, trims and de-duplicates tags
func cleanTags(tags []string) []string {
	var out []string
	seen := make(map[string]bool)
	for _, tag := range tags {
		tag = strings.ToLower(strings.TrimSpace(tag))
		if tag == "" || seen[tag] {
			continue
		}
		seen[tag] = true
		out = append(out, tag)
	}
	return out
}
