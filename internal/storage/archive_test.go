package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalArchiveNeverOverwrites(t *testing.T) {
	dir := t.TempDir()
	a := NewLocalArchive(dir)
	ctx := context.Background()

	first, err := a.Put(ctx, "contract.pdf", []byte("one"), "application/pdf")
	require.NoError(t, err)
	second, err := a.Put(ctx, "contract.pdf", []byte("two"), "application/pdf")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, "contract.pdf"), first)
	assert.Equal(t, filepath.Join(dir, "contract-1.pdf"), second)

	data, err := os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "two", string(data))
	assert.Equal(t, "local", a.Kind())
}

func TestLocalArchiveHonoursContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewLocalArchive(t.TempDir()).Put(ctx, "x.pdf", nil, "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSafeObjectName(t *testing.T) {
	tests := map[string]string{
		"contract.pdf":       "contract.pdf",
		"../../etc/passwd":   "passwd",
		"My NDA (final).pdf": "My_NDA__final_.pdf",
		`dir\sub\file.html`:  "file.html",
		"..":                 "document",
	}
	for in, want := range tests {
		assert.Equal(t, want, safeObjectName(in), in)
	}
}

func TestMinioArchive(t *testing.T) {
	_, err := NewMinioArchive(MinioConfig{Endpoint: "localhost:9000"})
	assert.Error(t, err, "bucket is required")

	a, err := NewMinioArchive(MinioConfig{Endpoint: "localhost:9000", Bucket: "exports", Prefix: "docfill/"})
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2025, 12, 5, 23, 0, 0, 0, time.UTC) }

	assert.Equal(t, "minio", a.Kind())
	assert.Equal(t, "docfill/2025/12/05/my_nda.pdf", a.ObjectName("my nda.pdf"))
	assert.Equal(t, "http://localhost:9000/exports/docfill/x.pdf", a.PublicURL("docfill/x.pdf"))
}
