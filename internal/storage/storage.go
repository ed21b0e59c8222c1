package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/models"
)

// KV namespaces
const (
	nsDrafts    = "drafts"
	nsDocuments = "documents"
	nsBackups   = "backups"
)

// backupPrefix prefixes emergency backup keys
const backupPrefix = "emergency-backup-"

// Storage handles file system operations for templates and the key-value
// records for drafts, documents and emergency backups
type Storage struct {
	rootPath string
	cache    *MetadataCache
	kv       KV
	logger   *zap.Logger
}

// Option configures Storage
type Option func(*Storage)

// WithKV sets the record backend. The default stores JSON files under the
// library root.
func WithKV(kv KV) Option {
	return func(s *Storage) { s.kv = kv }
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(s *Storage) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// DefaultRoot returns the library location: $DOCFILL_DIR or ~/.docfill
func DefaultRoot() (string, error) {
	if dir := os.Getenv("DOCFILL_DIR"); dir != "" {
		return dir, nil
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".docfill"), nil
}

// NewStorage creates a new storage instance
func NewStorage(rootPath string, opts ...Option) (*Storage, error) {
	if rootPath == "" {
		root, err := DefaultRoot()
		if err != nil {
			return nil, err
		}
		rootPath = root
	}

	s := &Storage{rootPath: rootPath, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("storage")
	if s.kv == nil {
		s.kv = NewFileKV(rootPath)
	}

	s.cache = NewMetadataCache(rootPath)
	if err := s.cache.Load(); err != nil {
		// The cache is optional.
		s.logger.Warn("failed to load metadata cache", zap.Error(err))
	}

	return s, nil
}

// InitLibrary creates the directory structure and seeds the sample templates
// into an empty library
func (s *Storage) InitLibrary() error {
	dirs := []string{
		s.rootPath,
		filepath.Join(s.rootPath, "templates"),
		filepath.Join(s.rootPath, nsDrafts),
		filepath.Join(s.rootPath, nsDocuments),
		filepath.Join(s.rootPath, nsBackups),
		filepath.Join(s.rootPath, "exports"),
		filepath.Join(s.rootPath, ".docfill", "cache"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return s.seedSamples()
}

// BaseDir returns the root path of the storage
func (s *Storage) BaseDir() string {
	return s.rootPath
}

// TemplatesDir returns the directory templates are loaded from
func (s *Storage) TemplatesDir() string {
	return filepath.Join(s.rootPath, "templates")
}

// ExportsDir returns the default local archive directory
func (s *Storage) ExportsDir() string {
	return filepath.Join(s.rootPath, "exports")
}

// Close releases the record backend
func (s *Storage) Close() error {
	return s.kv.Close()
}

// SaveDraft stores a draft
func (s *Storage) SaveDraft(draft *models.DocumentDraft) error {
	return s.putJSON(nsDrafts, draft.ID, draft)
}

// LoadDraft returns a draft or ErrNotFound
func (s *Storage) LoadDraft(id string) (*models.DocumentDraft, error) {
	var draft models.DocumentDraft
	if err := s.getJSON(nsDrafts, id, &draft); err != nil {
		return nil, err
	}
	return &draft, nil
}

// ListDrafts returns all drafts, most recently updated first
func (s *Storage) ListDrafts() ([]*models.DocumentDraft, error) {
	entries, err := s.kv.List(nsDrafts)
	if err != nil {
		return nil, err
	}
	drafts := make([]*models.DocumentDraft, 0, len(entries))
	for _, e := range entries {
		var d models.DocumentDraft
		if err := json.Unmarshal(e.Value, &d); err != nil {
			s.logger.Warn("skipping unreadable draft", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		drafts = append(drafts, &d)
	}
	sort.Slice(drafts, func(i, j int) bool { return drafts[i].UpdatedAt.After(drafts[j].UpdatedAt) })
	return drafts, nil
}

// DeleteDraft removes a draft
func (s *Storage) DeleteDraft(id string) error {
	return s.kv.Delete(nsDrafts, id)
}

// SaveDocument stores a finalized document record
func (s *Storage) SaveDocument(doc *models.Document) error {
	return s.putJSON(nsDocuments, doc.ID, doc)
}

// LoadDocument returns a document record or ErrNotFound
func (s *Storage) LoadDocument(id string) (*models.Document, error) {
	var doc models.Document
	if err := s.getJSON(nsDocuments, id, &doc); err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns all document records, newest first
func (s *Storage) ListDocuments() ([]*models.Document, error) {
	entries, err := s.kv.List(nsDocuments)
	if err != nil {
		return nil, err
	}
	docs := make([]*models.Document, 0, len(entries))
	for _, e := range entries {
		var d models.Document
		if err := json.Unmarshal(e.Value, &d); err != nil {
			s.logger.Warn("skipping unreadable document", zap.String("key", e.Key), zap.Error(err))
			continue
		}
		docs = append(docs, &d)
	}
	sort.Slice(docs, func(i, j int) bool { return docs[i].CreatedAt.After(docs[j].CreatedAt) })
	return docs, nil
}

// SaveBackup writes an emergency backup
func (s *Storage) SaveBackup(backup *models.EmergencyBackup) error {
	return s.putJSON(nsBackups, backupPrefix+backup.FormKey, backup)
}

// LoadBackup returns the emergency backup for a form, or nil if none exists
func (s *Storage) LoadBackup(formKey string) (*models.EmergencyBackup, error) {
	var backup models.EmergencyBackup
	err := s.getJSON(nsBackups, backupPrefix+formKey, &backup)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &backup, nil
}

// DeleteBackup removes the emergency backup for a form
func (s *Storage) DeleteBackup(formKey string) error {
	err := s.kv.Delete(nsBackups, backupPrefix+formKey)
	if errors.Is(err, ErrNotFound) {
		return nil
	}
	return err
}

func (s *Storage) putJSON(ns, key string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s/%s: %w", ns, key, err)
	}
	return s.kv.Put(ns, key, data)
}

func (s *Storage) getJSON(ns, key string, v interface{}) error {
	data, err := s.kv.Get(ns, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s/%s: %w", ns, key, err)
	}
	return nil
}
