package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/doclast/docfill/internal/browser"
	"github.com/doclast/docfill/internal/config"
	"github.com/doclast/docfill/internal/export"
	"github.com/doclast/docfill/internal/export/images"
	"github.com/doclast/docfill/internal/export/printpdf"
	"github.com/doclast/docfill/internal/export/rasterize"
	"github.com/doclast/docfill/internal/export/structured"
	"github.com/doclast/docfill/internal/storage"
)

// FromConfig builds the storage, the export pipeline and the archive
// described by cfg and returns a service over them
func FromConfig(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Service, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	root, err := cfg.LibraryDir()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve library directory: %w", err)
	}

	kv, err := storage.OpenKV(cfg.Storage.Backend, root, cfg.SQLitePath(root))
	if err != nil {
		return nil, fmt.Errorf("failed to open record store: %w", err)
	}
	store, err := storage.NewStorage(root, storage.WithKV(kv), storage.WithLogger(logger))
	if err != nil {
		kv.Close()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	manager := browser.NewManager(cfg.Browser, logger)
	pipeline := BuildPipeline(cfg, manager, logger)

	archive, err := buildArchive(ctx, cfg, store, logger)
	if err != nil {
		store.Close()
		return nil, err
	}

	return New(store,
		WithPipeline(pipeline),
		WithArchive(archive),
		WithLogger(logger),
		WithAutosave(cfg.AutosaveOptions()),
		WithCloser(manager.Close),
	), nil
}

// BuildPipeline orders the strategies: the configured primary, then the
// print fallback when enabled
func BuildPipeline(cfg *config.Config, surfaces browser.Factory, logger *zap.Logger) *export.Pipeline {
	var strategies []export.Strategy
	switch cfg.Export.Primary {
	case export.Structured:
		opts := structured.DefaultRenderOptions()
		opts.MarginMM = cfg.Export.MarginMM
		strategies = append(strategies, structured.New(opts, logger))
	default:
		inliner := images.NewInliner(images.NewHTTPFetcher(cfg.Export.ImageTimeout), cfg.Export.ImageConcurrency, logger)
		strategies = append(strategies, rasterize.New(surfaces, inliner, cfg.RasterizeOptions(), logger))
	}
	if cfg.Export.Fallback {
		strategies = append(strategies, printpdf.New(surfaces, cfg.PrintOptions(), logger))
	}
	return export.NewPipeline(strategies,
		export.WithLogger(logger),
		export.WithStrictSanitize(cfg.Export.StrictSanitize))
}

func buildArchive(ctx context.Context, cfg *config.Config, store *storage.Storage, logger *zap.Logger) (storage.Archive, error) {
	switch cfg.Archive.Kind {
	case config.ArchiveNone:
		return nil, nil
	case config.ArchiveMinio:
		a, err := storage.NewMinioArchive(cfg.Archive.Minio)
		if err != nil {
			return nil, err
		}
		if err := a.EnsureBucket(ctx); err != nil {
			// Not fatal: uploads are retried
			logger.Warn("failed to ensure archive bucket", zap.String("bucket", cfg.Archive.Minio.Bucket), zap.Error(err))
		}
		return a, nil
	default:
		dir := cfg.Archive.Dir
		if dir == "" {
			dir = store.ExportsDir()
		}
		return storage.NewLocalArchive(dir), nil
	}
}
