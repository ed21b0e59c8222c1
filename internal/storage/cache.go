package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/doclast/docfill/internal/models"
)

// indexEntry is one template file's frontmatter, valid while the file's
// modification time and size are unchanged
type indexEntry struct {
	Template models.Template `json:"template"`
	ModTime  time.Time       `json:"mod_time"`
	Size     int64           `json:"size"`
}

// MetadataCache persists parsed template frontmatter so listing the library
// does not re-read every file. Keys are paths relative to the library root.
type MetadataCache struct {
	path    string
	mu      sync.RWMutex
	entries map[string]indexEntry
}

func NewMetadataCache(rootPath string) *MetadataCache {
	return &MetadataCache{
		path:    filepath.Join(rootPath, ".docfill", "cache", "templates.json"),
		entries: make(map[string]indexEntry),
	}
}

// Load reads the cache file. A missing or unreadable file leaves the cache empty.
func (c *MetadataCache) Load() error {
	data, err := os.ReadFile(c.path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read template cache: %w", err)
	}

	entries := make(map[string]indexEntry)
	if json.Unmarshal(data, &entries) != nil {
		return nil
	}
	c.mu.Lock()
	c.entries = entries
	c.mu.Unlock()
	return nil
}

func (c *MetadataCache) Save() error {
	c.mu.RLock()
	data, err := json.Marshal(c.entries)
	c.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("failed to encode template cache: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return err
	}
	return os.WriteFile(c.path, data, 0644)
}

// Get returns a content-free copy of the cached template when info still
// matches the file it was read from
func (c *MetadataCache) Get(relPath string, info os.FileInfo) (*models.Template, bool) {
	c.mu.RLock()
	e, ok := c.entries[relPath]
	c.mu.RUnlock()
	if !ok || e.Size != info.Size() || !e.ModTime.Equal(info.ModTime()) {
		return nil, false
	}
	t := e.Template.Clone()
	t.FilePath = relPath
	return t, true
}

func (c *MetadataCache) Set(relPath string, info os.FileInfo, tmpl *models.Template) {
	meta := tmpl.Clone()
	meta.Content = ""
	c.mu.Lock()
	c.entries[relPath] = indexEntry{Template: *meta, ModTime: info.ModTime(), Size: info.Size()}
	c.mu.Unlock()
}

func (c *MetadataCache) Delete(relPath string) {
	c.mu.Lock()
	delete(c.entries, relPath)
	c.mu.Unlock()
}

func (c *MetadataCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Retain drops entries whose path is not in keep and reports whether any were dropped
func (c *MetadataCache) Retain(keep map[string]bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	dropped := false
	for p := range c.entries {
		if !keep[p] {
			delete(c.entries, p)
			dropped = true
		}
	}
	return dropped
}
