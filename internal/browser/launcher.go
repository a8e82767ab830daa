// Package browser drives headless Chrome through chromedp and implements the
// render engine contracts.
package browser

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

// Config controls how Chrome is started.
type Config struct {
	// ExecPath overrides Chrome discovery; empty uses chromedp's lookup.
	ExecPath string
	// Headful runs a visible window, for local debugging only.
	Headful bool
}

// Launcher starts Chrome processes.
type Launcher struct {
	cfg    Config
	logger *zap.Logger
}

// NewLauncher builds a Launcher.
func NewLauncher(cfg Config, logger *zap.Logger) *Launcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Launcher{cfg: cfg, logger: logger}
}

// Launch starts a browser and waits for it to accept commands.
func (l *Launcher) Launch(ctx context.Context) (render.Engine, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), l.allocatorOptions()...)
	sugar := l.logger.Sugar()
	browserCtx, browserCancel := chromedp.NewContext(allocCtx,
		chromedp.WithErrorf(sugar.Debugf),
	)

	// The first Run starts the process. It must run on browserCtx itself:
	// a derived context would take the browser down when it is cancelled.
	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(browserCtx)
	}()

	start := time.Now()
	select {
	case err := <-started:
		if err != nil {
			browserCancel()
			allocCancel()
			return nil, fmt.Errorf("start chrome: %w", err)
		}
	case <-ctx.Done():
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", ctx.Err())
	}

	l.logger.Debug("chrome started",
		zap.String("exec_path", l.cfg.ExecPath),
		zap.Duration("elapsed", time.Since(start)),
	)
	return &engine{
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		allocCancel:   allocCancel,
		logger:        l.logger,
	}, nil
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts,
		chromedp.NoSandbox,
		chromedp.DisableGPU,
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-site-isolation-trials", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("font-render-hinting", "none"),
	)
	if l.cfg.Headful {
		opts = append(opts, chromedp.Flag("headless", false))
	}
	if path := l.execPath(); path != "" {
		opts = append(opts, chromedp.ExecPath(path))
	}
	return opts
}

func (l *Launcher) execPath() string {
	if l.cfg.ExecPath != "" {
		return l.cfg.ExecPath
	}
	return os.Getenv("CHROME_PATH")
}
