package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

var errPageOpen = errors.New("browsing context already has a page")

type browsingContext struct {
	engine *engine
	tabCtx context.Context
	cancel context.CancelFunc
	opts   render.ContextOptions
	logger *zap.Logger

	mu     sync.Mutex
	opened bool

	closeOnce sync.Once
	closeErr  error
}

// NewPage materializes the browser context with its single tab and arms
// request interception before anything loads.
func (b *browsingContext) NewPage(ctx context.Context) (render.Page, error) {
	b.mu.Lock()
	if b.opened {
		b.mu.Unlock()
		return nil, errPageOpen
	}
	b.opened = true
	b.mu.Unlock()

	started := make(chan error, 1)
	go func() {
		started <- chromedp.Run(b.tabCtx)
	}()
	select {
	case err := <-started:
		if err != nil {
			return nil, b.engine.closedErr(fmt.Errorf("open tab: %w", err))
		}
	case <-ctx.Done():
		b.cancel()
		return nil, fmt.Errorf("open tab: %w", ctx.Err())
	}

	p := newChromePage(b.tabCtx, b.engine, b.opts.Policy, b.logger)
	if err := p.setup(ctx, b.opts); err != nil {
		if cerr := p.Close(); cerr != nil {
			b.logger.Debug("close page after failed setup", zap.Error(cerr))
		}
		return nil, err
	}
	return p, nil
}

// Close disposes the tab and its browser context.
func (b *browsingContext) Close() error {
	b.closeOnce.Do(func() {
		if b.engine.browserCtx.Err() == nil && b.tabCtx.Err() == nil {
			if err := chromedp.Cancel(b.tabCtx); err != nil {
				b.closeErr = fmt.Errorf("dispose browser context: %w", err)
			}
		}
		b.cancel()
	})
	return b.closeErr
}
