package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// FileKV stores each record as a JSON file: <root>/<ns>/<key>.json
type FileKV struct {
	root string
	mu   sync.RWMutex
}

// NewFileKV creates a file backend rooted at root
func NewFileKV(root string) *FileKV {
	return &FileKV{root: root}
}

func (f *FileKV) path(ns, key string) string {
	return filepath.Join(f.root, ns, key+".json")
}

func (f *FileKV) Get(ns, key string) ([]byte, error) {
	if err := checkKey(ns, key); err != nil {
		return nil, err
	}
	f.mu.RLock()
	defer f.mu.RUnlock()

	data, err := os.ReadFile(f.path(ns, key))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%s/%s: %w", ns, key, ErrNotFound)
	}
	return data, err
}

// Put writes through a temporary file so readers never see a partial record
func (f *FileKV) Put(ns, key string, value []byte) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	dir := filepath.Join(f.root, ns)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+key+"-*.tmp")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(value); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), f.path(ns, key))
}

func (f *FileKV) Delete(ns, key string) error {
	if err := checkKey(ns, key); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	err := os.Remove(f.path(ns, key))
	if os.IsNotExist(err) {
		return fmt.Errorf("%s/%s: %w", ns, key, ErrNotFound)
	}
	return err
}

func (f *FileKV) List(ns string) ([]Entry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()

	files, err := os.ReadDir(filepath.Join(f.root, ns))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var entries []Entry
	for _, file := range files {
		name := file.Name()
		if file.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(f.root, ns, name))
		if err != nil {
			return nil, err
		}
		entries = append(entries, Entry{Key: strings.TrimSuffix(name, ".json"), Value: data})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Key < entries[j].Key })
	return entries, nil
}

func (f *FileKV) Close() error { return nil }
