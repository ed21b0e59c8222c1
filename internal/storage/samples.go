package storage

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

//go:embed samples/*
var sampleFS embed.FS

// seedSamples copies the bundled templates into an empty templates
// directory. A library that already holds templates is left alone.
func (s *Storage) seedSamples() error {
	dir := s.TemplatesDir()
	existing, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range existing {
		if !e.IsDir() && IsTemplateFile(e.Name()) {
			return nil
		}
	}

	samples, err := fs.ReadDir(sampleFS, "samples")
	if err != nil {
		return err
	}
	for _, e := range samples {
		data, err := sampleFS.ReadFile("samples/" + e.Name())
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, e.Name()), data, 0644); err != nil {
			return fmt.Errorf("failed to seed %s: %w", e.Name(), err)
		}
		s.logger.Info("seeded sample template", zap.String("file", e.Name()))
	}
	return nil
}
