package storage

import (
	"bytes"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/doclast/docfill/internal/models"
)

var frontmatterDelim = []byte("---")

// IsTemplateFile reports whether path has a template extension
func IsTemplateFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".md":
		return true
	}
	return false
}

// ParseTemplate reads a template file's YAML frontmatter and body. Format
// and ID default from the file name.
func ParseTemplate(name string, content []byte) (*models.Template, error) {
	tmpl, err := parseTemplateFile(content)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}
	if tmpl.Format == "" {
		tmpl.Format = models.FormatHTML
		if strings.EqualFold(filepath.Ext(name), ".md") {
			tmpl.Format = models.FormatMarkdown
		}
	}
	if tmpl.ID == "" {
		base := filepath.Base(name)
		tmpl.ID = strings.TrimSuffix(base, filepath.Ext(base))
	}
	return tmpl, nil
}

// parseTemplateFile splits "---\n<yaml>\n---\n<body>". Leading blank lines
// of the body are dropped.
func parseTemplateFile(content []byte) (*models.Template, error) {
	lines := bytes.Split(bytes.ReplaceAll(content, []byte("\r\n"), []byte("\n")), []byte("\n"))
	if len(lines) == 0 || !bytes.Equal(bytes.TrimSpace(lines[0]), frontmatterDelim) {
		return nil, fmt.Errorf("missing frontmatter delimiter")
	}

	end := -1
	for i := 1; i < len(lines); i++ {
		if bytes.Equal(bytes.TrimSpace(lines[i]), frontmatterDelim) {
			end = i
			break
		}
	}
	if end < 0 {
		return nil, fmt.Errorf("unterminated frontmatter")
	}

	var tmpl models.Template
	if err := yaml.Unmarshal(bytes.Join(lines[1:end], []byte("\n")), &tmpl); err != nil {
		return nil, fmt.Errorf("invalid frontmatter: %w", err)
	}
	body := bytes.Join(lines[end+1:], []byte("\n"))
	tmpl.Content = strings.TrimLeft(strings.TrimSuffix(string(body), "\n"), " \t\n")
	return &tmpl, nil
}

func serializeTemplate(tmpl *models.Template) ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(frontmatterDelim)
	buf.WriteByte('\n')

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(tmpl); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	buf.Write(frontmatterDelim)
	buf.WriteByte('\n')

	if tmpl.Content != "" {
		buf.WriteByte('\n')
		buf.WriteString(strings.TrimRight(tmpl.Content, "\n"))
		buf.WriteByte('\n')
	}
	return buf.Bytes(), nil
}

// LoadTemplate reads a template, body included. path is relative to the
// library root.
func (s *Storage) LoadTemplate(path string) (*models.Template, error) {
	content, err := os.ReadFile(filepath.Join(s.rootPath, path))
	if err != nil {
		return nil, fmt.Errorf("failed to read template file: %w", err)
	}
	tmpl, err := ParseTemplate(path, content)
	if err != nil {
		return nil, err
	}
	tmpl.FilePath = path
	return tmpl, nil
}

// SaveTemplate writes tmpl to its FilePath, or to templates/<id>.<ext> when
// it has none yet
func (s *Storage) SaveTemplate(tmpl *models.Template) error {
	if tmpl.FilePath == "" {
		ext := ".html"
		if tmpl.Format == models.FormatMarkdown {
			ext = ".md"
		}
		tmpl.FilePath = filepath.Join("templates", tmpl.ID+ext)
	}

	content, err := serializeTemplate(tmpl)
	if err != nil {
		return fmt.Errorf("failed to serialize template %s: %w", tmpl.ID, err)
	}
	fullPath := filepath.Join(s.rootPath, tmpl.FilePath)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0755); err != nil {
		return err
	}
	if err := os.WriteFile(fullPath, content, 0644); err != nil {
		return fmt.Errorf("failed to write template %s: %w", tmpl.ID, err)
	}
	return nil
}

func (s *Storage) DeleteTemplate(tmpl *models.Template) error {
	if err := os.Remove(filepath.Join(s.rootPath, tmpl.FilePath)); err != nil {
		return fmt.Errorf("failed to delete template %s: %w", tmpl.ID, err)
	}
	s.cache.Delete(tmpl.FilePath)
	return nil
}

// ListTemplates returns every template in the library sorted by name, without
// bodies. Unchanged files come from the metadata cache. Files that fail to
// parse are logged and skipped.
func (s *Storage) ListTemplates() ([]*models.Template, error) {
	dir := s.TemplatesDir()
	templates := []*models.Template{}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return templates, nil
	}

	seen := make(map[string]bool)
	dirty := false
	walkErr := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !IsTemplateFile(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		rel, _ := filepath.Rel(s.rootPath, path)
		seen[rel] = true

		if meta, ok := s.cache.Get(rel, info); ok {
			templates = append(templates, meta)
			return nil
		}

		tmpl, err := s.LoadTemplate(rel)
		if err != nil {
			s.logger.Warn("skipping template", zap.String("path", rel), zap.Error(err))
			return nil
		}
		if unknown := tmpl.UnknownTokens(); len(unknown) > 0 {
			s.logger.Warn("template has tokens without a field",
				zap.String("template", tmpl.ID), zap.Strings("tokens", unknown))
		}
		s.cache.Set(rel, info, tmpl)
		dirty = true

		tmpl.Content = ""
		templates = append(templates, tmpl)
		return nil
	})

	if s.cache.Retain(seen) {
		dirty = true
	}
	if dirty {
		if err := s.cache.Save(); err != nil {
			s.logger.Warn("failed to save template cache", zap.Error(err))
		}
	}

	sort.Slice(templates, func(i, j int) bool { return templates[i].Name < templates[j].Name })
	return templates, walkErr
}

// InvalidateTemplate drops the cached metadata for an absolute template path
func (s *Storage) InvalidateTemplate(fullPath string) {
	if rel, err := filepath.Rel(s.rootPath, fullPath); err == nil {
		s.cache.Delete(rel)
	}
}
