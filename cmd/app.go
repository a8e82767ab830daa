package cmd

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/archive"
	"github.com/JakeFAU/htmlshot/internal/browser"
	"github.com/JakeFAU/htmlshot/internal/config"
	"github.com/JakeFAU/htmlshot/internal/hash/sha256"
	"github.com/JakeFAU/htmlshot/internal/presets"
	"github.com/JakeFAU/htmlshot/internal/render"
	"github.com/JakeFAU/htmlshot/internal/storage"
	"github.com/JakeFAU/htmlshot/internal/storage/gcs"
	"github.com/JakeFAU/htmlshot/internal/storage/local"
	"github.com/JakeFAU/htmlshot/internal/storage/memory"
	"github.com/JakeFAU/htmlshot/internal/templates"
)

// app is the assembled render stack shared by serve and render.
type app struct {
	presets *presets.Table
	service *render.Service
	closers []func() error
	logger  *zap.Logger
}

func newApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app, error) {
	a := &app{logger: logger}

	a.presets = presets.Load(cfg.Assets.PresetsPath, logger.Named("presets"))

	var tpl render.TemplateRenderer
	if cfg.Assets.TemplatesDir != "" {
		tpl = templates.NewProvider(cfg.Assets.TemplatesDir, logger.Named("templates"))
	}

	archiver, closeStore, err := newArchiver(ctx, cfg.Archive, logger.Named("archive"))
	if err != nil {
		return nil, err
	}
	if closeStore != nil {
		a.closers = append(a.closers, closeStore)
	}

	if cfg.Network.BlockExternal && cfg.Network.AllowURL {
		logger.Warn("BLOCK_EXTERNAL and ALLOW_URL are both set; URL renders will fail to load")
	}

	launcher := browser.NewLauncher(browser.Config{ExecPath: cfg.Chrome.Path}, logger.Named("browser"))
	sessions := render.NewSessionManager(launcher, logger.Named("session"))
	a.service = render.NewService(render.Options{
		Limits: render.Limits{
			MaxWidth:  cfg.Render.MaxWidth,
			MaxHeight: cfg.Render.MaxHeight,
			MaxPixels: cfg.Render.MaxPixels,
		},
		DefaultDPR: cfg.Render.DefaultDPR,
		Policy: render.NetworkPolicy{
			BlockExternal: cfg.Network.BlockExternal,
			AllowURL:      cfg.Network.AllowURL,
			Allowlist:     render.NewAllowlist(cfg.Allowlist()),
		},
		MaxConcurrency: cfg.Render.MaxConcurrency,
		URLHostQPS:     cfg.Network.URLHostQPS,
	}, sessions, a.presets, tpl, archiver, logger.Named("render"))
	a.closers = append([]func() error{a.service.Close}, a.closers...)

	return a, nil
}

// Close shuts the browser down before releasing storage clients.
func (a *app) Close() {
	for _, closeFn := range a.closers {
		if err := closeFn(); err != nil {
			a.logger.Warn("shutdown step failed", zap.Error(err))
		}
	}
}

func newArchiver(ctx context.Context, cfg config.ArchiveConfig, logger *zap.Logger) (render.Archiver, func() error, error) {
	var (
		store   storage.BlobStore
		closeFn func() error
	)
	switch cfg.Backend {
	case config.ArchiveOff:
		return nil, nil, nil
	case config.ArchiveMemory:
		store = memory.NewBlobStore()
	case config.ArchiveLocal:
		dir, err := local.New(local.Config{BaseDir: cfg.Dir})
		if err != nil {
			return nil, nil, fmt.Errorf("open local archive: %w", err)
		}
		store = dir
	case config.ArchiveGCS:
		bucket, err := gcs.Open(ctx, gcs.Config{Bucket: cfg.Bucket})
		if err != nil {
			return nil, nil, fmt.Errorf("open gcs archive: %w", err)
		}
		store, closeFn = bucket, bucket.Close
	default:
		return nil, nil, fmt.Errorf("unknown archive backend %q", cfg.Backend)
	}
	logger.Info("archiving renders", zap.String("backend", cfg.Backend))
	return archive.New(store, sha256.New(), logger), closeFn, nil
}
