package browser

import (
	"context"
	"errors"
	"fmt"

	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/htmlshot/internal/render"
)

// classify wraps err as render.ErrEngineClosed when the engine itself reports
// it is gone: the browser context ended, the tab context ended underneath a
// live request, or chromedp reports its connection channel closed. Error text
// is never inspected since it carries caller URLs and page content.
func classify(err error, browserCtx, tabCtx context.Context) error {
	if err == nil || errors.Is(err, render.ErrEngineClosed) {
		return err
	}
	switch {
	case browserCtx != nil && browserCtx.Err() != nil:
	case tabCtx != nil && tabCtx.Err() != nil:
	case errors.Is(err, chromedp.ErrChannelClosed):
	default:
		return err
	}
	return fmt.Errorf("%w: %w", render.ErrEngineClosed, err)
}
