package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/doclast/docfill/internal/autosave"
	"github.com/doclast/docfill/internal/browser"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/export/printpdf"
	"github.com/doclast/docfill/internal/export/rasterize"
	"github.com/doclast/docfill/internal/storage"
)

// FileName is the config file looked up in the library directory
const FileName = "config.yaml"

// Archive kinds
const (
	ArchiveNone  = "none"
	ArchiveLocal = "local"
	ArchiveMinio = "minio"
)

type Config struct {
	// Dir is the library directory; empty means storage.DefaultRoot
	Dir      string         `yaml:"dir"`
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Archive  ArchiveConfig  `yaml:"archive"`
	Export   ExportConfig   `yaml:"export"`
	Browser  browser.Config `yaml:"browser"`
	Autosave AutosaveConfig `yaml:"autosave"`
	Log      LogConfig      `yaml:"log"`
}

type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	// Watch reloads template metadata when files change
	Watch bool `yaml:"watch"`
	// ErrorDetails adds error details and context to API error bodies
	ErrorDetails bool `yaml:"error_details"`
}

type StorageConfig struct {
	Backend    string `yaml:"backend"` // "file" or "sqlite"
	SQLitePath string `yaml:"sqlite_path"`
}

type ArchiveConfig struct {
	Kind  string              `yaml:"kind"`
	Dir   string              `yaml:"dir"`
	Minio storage.MinioConfig `yaml:"minio"`
}

type ExportConfig struct {
	// Primary is the first strategy tried: "rasterize" or "structured"
	Primary string `yaml:"primary"`
	// Fallback enables the print strategy after the primary fails
	Fallback         bool          `yaml:"fallback"`
	StrictSanitize   bool          `yaml:"strict_sanitize"`
	Scale            float64       `yaml:"scale"`
	KeepWithNext     float64       `yaml:"keep_with_next"`
	MarginMM         float64       `yaml:"margin_mm"`
	PrintSettle      time.Duration `yaml:"print_settle"`
	PrintGrace       time.Duration `yaml:"print_grace"`
	ImageConcurrency int           `yaml:"image_concurrency"`
	ImageTimeout     time.Duration `yaml:"image_timeout"`
}

type AutosaveConfig struct {
	Debounce    time.Duration `yaml:"debounce"`
	SaveTimeout time.Duration `yaml:"save_timeout"`
	BackupTTL   time.Duration `yaml:"backup_ttl"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "console"
}

// Default returns the built-in configuration
func Default() *Config {
	ras := rasterize.DefaultOptions()
	pr := printpdf.DefaultOptions()
	as := autosave.DefaultOptions()
	return &Config{
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 2 * time.Minute,
		},
		Storage: StorageConfig{Backend: "file"},
		Archive: ArchiveConfig{
			Kind:  ArchiveLocal,
			Minio: storage.MinioConfig{ExpireDays: 7},
		},
		Export: ExportConfig{
			Primary:          export.Rasterize,
			Fallback:         true,
			StrictSanitize:   true,
			Scale:            ras.Scale,
			KeepWithNext:     ras.KeepWithNext,
			MarginMM:         pr.MarginMM,
			PrintSettle:      pr.Settle,
			PrintGrace:       pr.Grace,
			ImageConcurrency: 4,
			ImageTimeout:     15 * time.Second,
		},
		Browser: browser.DefaultConfig(),
		Autosave: AutosaveConfig{
			Debounce:    as.Debounce,
			SaveTimeout: as.SaveTimeout,
			BackupTTL:   as.BackupTTL,
		},
		Log: LogConfig{Level: "info", Format: "console"},
	}
}

// Load reads the config file at path over the defaults, then applies
// DOCFILL_* environment overrides. An empty path looks for config.yaml in
// the library directory; a missing file there is not an error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if dir := os.Getenv("DOCFILL_DIR"); dir != "" {
		cfg.Dir = dir
	}

	explicit := path != ""
	if !explicit {
		root := cfg.Dir
		if root == "" {
			var err error
			if root, err = storage.DefaultRoot(); err != nil {
				return nil, err
			}
		}
		path = filepath.Join(root, FileName)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv() error {
	str := map[string]*string{
		"DOCFILL_DIR":              &c.Dir,
		"DOCFILL_ADDR":             &c.Server.Addr,
		"DOCFILL_STORAGE_BACKEND":  &c.Storage.Backend,
		"DOCFILL_SQLITE_PATH":      &c.Storage.SQLitePath,
		"DOCFILL_ARCHIVE":          &c.Archive.Kind,
		"DOCFILL_EXPORT_PRIMARY":   &c.Export.Primary,
		"DOCFILL_BROWSER_BIN":      &c.Browser.Bin,
		"DOCFILL_BROWSER_URL":      &c.Browser.DebuggerURL,
		"DOCFILL_LOG_LEVEL":        &c.Log.Level,
		"DOCFILL_LOG_FORMAT":       &c.Log.Format,
		"DOCFILL_MINIO_ENDPOINT":   &c.Archive.Minio.Endpoint,
		"DOCFILL_MINIO_ACCESS_KEY": &c.Archive.Minio.AccessKey,
		"DOCFILL_MINIO_SECRET_KEY": &c.Archive.Minio.SecretKey,
		"DOCFILL_MINIO_BUCKET":     &c.Archive.Minio.Bucket,
	}
	for key, dst := range str {
		if v, ok := os.LookupEnv(key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv("DOCFILL_ERROR_DETAILS"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCFILL_ERROR_DETAILS: %w", err)
		}
		c.Server.ErrorDetails = b
	}
	if v, ok := os.LookupEnv("DOCFILL_STRICT_SANITIZE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("DOCFILL_STRICT_SANITIZE: %w", err)
		}
		c.Export.StrictSanitize = b
	}
	if v, ok := os.LookupEnv("DOCFILL_EXPORT_SCALE"); ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("DOCFILL_EXPORT_SCALE: %w", err)
		}
		c.Export.Scale = f
	}
	if v, ok := os.LookupEnv("DOCFILL_AUTOSAVE_DEBOUNCE"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("DOCFILL_AUTOSAVE_DEBOUNCE: %w", err)
		}
		c.Autosave.Debounce = d
	}
	return nil
}

// Validate rejects values the rest of the program cannot work with
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case "file", "sqlite":
	default:
		return fmt.Errorf("storage.backend must be file or sqlite, got %q", c.Storage.Backend)
	}
	switch c.Archive.Kind {
	case ArchiveNone, ArchiveLocal:
	case ArchiveMinio:
		if c.Archive.Minio.Endpoint == "" || c.Archive.Minio.Bucket == "" {
			return fmt.Errorf("archive.minio needs endpoint and bucket")
		}
	default:
		return fmt.Errorf("unknown archive kind %q", c.Archive.Kind)
	}
	switch c.Export.Primary {
	case export.Rasterize, export.Structured:
	default:
		return fmt.Errorf("export.primary must be %s or %s, got %q", export.Rasterize, export.Structured, c.Export.Primary)
	}
	if c.Export.Scale <= 0 || c.Export.Scale > 4 {
		return fmt.Errorf("export.scale must be in (0, 4], got %v", c.Export.Scale)
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "console":
	default:
		return fmt.Errorf("log.format must be json or console, got %q", c.Log.Format)
	}
	return nil
}

// LibraryDir resolves the library directory
func (c *Config) LibraryDir() (string, error) {
	if c.Dir != "" {
		return c.Dir, nil
	}
	return storage.DefaultRoot()
}

// SQLitePath returns the database path, defaulting into the library
func (c *Config) SQLitePath(root string) string {
	if c.Storage.SQLitePath != "" {
		return c.Storage.SQLitePath
	}
	return filepath.Join(root, "docfill.db")
}

// RasterizeOptions converts the export settings
func (c *Config) RasterizeOptions() rasterize.Options {
	opts := rasterize.DefaultOptions()
	opts.Scale = c.Export.Scale
	opts.KeepWithNext = c.Export.KeepWithNext
	return opts
}

// PrintOptions converts the export settings
func (c *Config) PrintOptions() printpdf.Options {
	return printpdf.Options{
		Settle:   c.Export.PrintSettle,
		Grace:    c.Export.PrintGrace,
		MarginMM: c.Export.MarginMM,
	}
}

// AutosaveOptions converts the autosave settings
func (c *Config) AutosaveOptions() autosave.Options {
	return autosave.Options{
		Debounce:    c.Autosave.Debounce,
		SaveTimeout: c.Autosave.SaveTimeout,
		BackupTTL:   c.Autosave.BackupTTL,
	}
}
