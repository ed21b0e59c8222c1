package storage

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Archive receives exported files
type Archive interface {
	// Put stores data under name and returns where it can be found
	Put(ctx context.Context, name string, data []byte, contentType string) (string, error)
	Kind() string
}

// LocalArchive writes exports into a directory
type LocalArchive struct {
	dir string
}

// NewLocalArchive creates an archive rooted at dir
func NewLocalArchive(dir string) *LocalArchive {
	return &LocalArchive{dir: dir}
}

func (a *LocalArchive) Kind() string { return "local" }

// Put writes the file, adding a numeric suffix rather than overwriting
func (a *LocalArchive) Put(ctx context.Context, name string, data []byte, _ string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := os.MkdirAll(a.dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create archive directory: %w", err)
	}

	name = safeObjectName(name)
	ext := filepath.Ext(name)
	base := strings.TrimSuffix(name, ext)
	path := filepath.Join(a.dir, name)
	for i := 1; ; i++ {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if os.IsExist(err) {
			path = filepath.Join(a.dir, fmt.Sprintf("%s-%d%s", base, i, ext))
			continue
		}
		if err != nil {
			return "", fmt.Errorf("failed to create archive file: %w", err)
		}
		if _, err := f.Write(data); err != nil {
			f.Close()
			return "", fmt.Errorf("failed to write archive file: %w", err)
		}
		return path, f.Close()
	}
}

// MinioConfig configures the object-store archive
type MinioConfig struct {
	Endpoint   string `yaml:"endpoint"`
	AccessKey  string `yaml:"access_key"`
	SecretKey  string `yaml:"secret_key"`
	Bucket     string `yaml:"bucket"`
	UseSSL     bool   `yaml:"use_ssl"`
	ExpireDays int    `yaml:"expire_days"`
	// Prefix is prepended to every object name
	Prefix string `yaml:"prefix"`
}

// MinioArchive uploads exports to an S3-compatible bucket
type MinioArchive struct {
	client *minio.Client
	cfg    MinioConfig
	now    func() time.Time
}

// NewMinioArchive creates the client. No request is made until EnsureBucket
// or Put.
func NewMinioArchive(cfg MinioConfig) (*MinioArchive, error) {
	if cfg.Endpoint == "" || cfg.Bucket == "" {
		return nil, fmt.Errorf("minio archive needs an endpoint and a bucket")
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return &MinioArchive{client: client, cfg: cfg, now: time.Now}, nil
}

func (a *MinioArchive) Kind() string { return "minio" }

// EnsureBucket creates the bucket if it doesn't exist
func (a *MinioArchive) EnsureBucket(ctx context.Context) error {
	exists, err := a.client.BucketExists(ctx, a.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("failed to check bucket: %w", err)
	}
	if !exists {
		if err := a.client.MakeBucket(ctx, a.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
	}
	return nil
}

// ObjectName places a file under a dated prefix
func (a *MinioArchive) ObjectName(name string) string {
	return a.cfg.Prefix + a.now().UTC().Format("2006/01/02/") + safeObjectName(name)
}

// Put uploads the file and returns a presigned URL, or the public URL when
// presigning is disabled (ExpireDays <= 0)
func (a *MinioArchive) Put(ctx context.Context, name string, data []byte, contentType string) (string, error) {
	object := a.ObjectName(name)
	_, err := a.client.PutObject(ctx, a.cfg.Bucket, object, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload file: %w", err)
	}

	if a.cfg.ExpireDays <= 0 {
		return a.PublicURL(object), nil
	}
	expiry := time.Duration(a.cfg.ExpireDays) * 24 * time.Hour
	u, err := a.client.PresignedGetObject(ctx, a.cfg.Bucket, object, expiry, nil)
	if err != nil {
		return "", fmt.Errorf("failed to generate presigned URL: %w", err)
	}
	return u.String(), nil
}

// PublicURL returns a public URL for the object (if bucket policy allows)
func (a *MinioArchive) PublicURL(object string) string {
	protocol := "http"
	if a.cfg.UseSSL {
		protocol = "https"
	}
	return fmt.Sprintf("%s://%s/%s/%s", protocol, a.cfg.Endpoint, a.cfg.Bucket, object)
}

// safeObjectName keeps only the base name and replaces characters that are
// awkward in paths and URLs
func safeObjectName(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	out := strings.Trim(b.String(), ".")
	if out == "" {
		return "document"
	}
	return out
}
