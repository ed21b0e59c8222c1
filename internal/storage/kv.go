package storage

import (
	"errors"
	"fmt"
	"regexp"
)

// ErrNotFound is returned when a key does not exist
var ErrNotFound = errors.New("not found")

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]*$`)

// Entry is one stored record
type Entry struct {
	Key   string
	Value []byte
}

// KV stores opaque records grouped by namespace
type KV interface {
	Get(ns, key string) ([]byte, error)
	Put(ns, key string, value []byte) error
	Delete(ns, key string) error
	// List returns every entry of a namespace ordered by key
	List(ns string) ([]Entry, error)
	Close() error
}

func checkKey(ns, key string) error {
	if !keyPattern.MatchString(ns) {
		return fmt.Errorf("invalid namespace %q", ns)
	}
	if !keyPattern.MatchString(key) || len(key) > 200 {
		return fmt.Errorf("invalid key %q", key)
	}
	return nil
}

// OpenKV opens the backend named by kind: "file" or "sqlite"
func OpenKV(kind, root, sqlitePath string) (KV, error) {
	switch kind {
	case "", "file":
		return NewFileKV(root), nil
	case "sqlite":
		return OpenSQLiteKV(sqlitePath)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", kind)
	}
}
