package browser

import (
	"context"
	"fmt"
	"sync"

	"github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

type engine struct {
	browserCtx    context.Context
	browserCancel context.CancelFunc
	allocCancel   context.CancelFunc
	logger        *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

// Alive reports whether the browser process still answers.
func (e *engine) Alive(ctx context.Context) bool {
	if e.browserCtx.Err() != nil {
		return false
	}
	c := chromedp.FromContext(e.browserCtx)
	if c == nil || c.Browser == nil {
		return false
	}
	var res browser.GetVersionReturns
	if err := cdp.Execute(cdp.WithExecutor(ctx, c.Browser), browser.CommandGetVersion, nil, &res); err != nil {
		e.logger.Debug("liveness probe failed", zap.Error(err))
		return false
	}
	return true
}

// OpenContext creates an incognito-style browser context. The context is
// materialized when its first page is opened.
func (e *engine) OpenContext(_ context.Context, opts render.ContextOptions) (render.BrowsingContext, error) {
	if err := e.browserCtx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", render.ErrEngineClosed, err)
	}
	tabCtx, cancel := chromedp.NewContext(e.browserCtx, chromedp.WithNewBrowserContext())
	return &browsingContext{
		engine: e,
		tabCtx: tabCtx,
		cancel: cancel,
		opts:   opts,
		logger: e.logger,
	}, nil
}

// Close shuts the browser down and reaps the process.
func (e *engine) Close() error {
	e.closeOnce.Do(func() {
		if e.browserCtx.Err() == nil {
			if err := chromedp.Cancel(e.browserCtx); err != nil {
				e.closeErr = fmt.Errorf("cancel browser: %w", err)
			}
		}
		e.browserCancel()
		e.allocCancel()
	})
	return e.closeErr
}

// closedErr classifies err against this engine.
func (e *engine) closedErr(err error) error {
	return classify(err, e.browserCtx, nil)
}
