package storage

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatcherReportsTemplateChanges(t *testing.T) {
	s := newTestStorage(t)
	_, err := s.ListTemplates()
	require.NoError(t, err)
	require.Equal(t, 1, s.cache.Len())

	var mu sync.Mutex
	var changed []string
	w, err := NewWatcher(s, func(path string) {
		mu.Lock()
		defer mu.Unlock()
		changed = append(changed, filepath.Base(path))
	})
	require.NoError(t, err)
	w.debounceDur = 60 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	path := filepath.Join(s.TemplatesDir(), "non-disclosure-agreement.html")
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, append(data, []byte("\n<p>amended</p>\n")...), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(s.TemplatesDir(), "notes.txt"), []byte("ignored"), 0644))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(changed) > 0
	}, 2*time.Second, 20*time.Millisecond)

	mu.Lock()
	assert.Contains(t, changed, "non-disclosure-agreement.html")
	assert.NotContains(t, changed, "notes.txt")
	mu.Unlock()
	assert.Equal(t, 0, s.cache.Len())
}
