package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

const (
	pollInterval = 50 * time.Millisecond

	readyStateJS   = `document.readyState + '|' + location.href`
	fullPageDimsJS = `(() => {
  const d = document.documentElement, b = document.body || d;
  return [Math.max(d.scrollWidth, b.scrollWidth, d.clientWidth), Math.max(d.scrollHeight, b.scrollHeight, d.clientHeight)];
})()`
)

type chromePage struct {
	tabCtx  context.Context
	engine  *engine
	policy  render.NetworkPolicy
	tracker *inflightTracker
	logger  *zap.Logger

	listenCtx     context.Context
	stopListening context.CancelFunc

	closeOnce sync.Once
}

func newChromePage(tabCtx context.Context, e *engine, policy render.NetworkPolicy, logger *zap.Logger) *chromePage {
	listenCtx, stop := context.WithCancel(tabCtx)
	return &chromePage{
		tabCtx:        tabCtx,
		engine:        e,
		policy:        policy,
		tracker:       newInflightTracker(),
		logger:        logger,
		listenCtx:     listenCtx,
		stopListening: stop,
	}
}

func (p *chromePage) setup(ctx context.Context, opts render.ContextOptions) error {
	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return fmt.Errorf("%w: tab has no target", render.ErrRenderFailed)
	}
	chromedp.ListenTarget(p.listenCtx, p.onEvent)

	actions := []chromedp.Action{
		network.Enable(),
		fetch.Enable().WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}),
	}
	if opts.Width > 0 && opts.Height > 0 {
		dpr := opts.DeviceScaleFactor
		if dpr <= 0 {
			dpr = 1
		}
		actions = append(actions, emulation.SetDeviceMetricsOverride(int64(opts.Width), int64(opts.Height), dpr, false))
	}
	if err := p.run(ctx, actions...); err != nil {
		return fmt.Errorf("prepare page: %w", err)
	}
	return nil
}

func (p *chromePage) onEvent(ev any) {
	p.tracker.handle(ev)
	if paused, ok := ev.(*fetch.EventRequestPaused); ok {
		// Listeners must not block the event loop.
		go p.decide(paused)
	}
}

func (p *chromePage) decide(ev *fetch.EventRequestPaused) {
	if p.listenCtx.Err() != nil {
		return
	}
	c := chromedp.FromContext(p.tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	execCtx := cdp.WithExecutor(p.listenCtx, c.Target)
	rawURL := ""
	if ev.Request != nil {
		rawURL = ev.Request.URL
	}

	var err error
	if p.policy.ShouldAllow(rawURL) {
		err = fetch.ContinueRequest(ev.RequestID).Do(execCtx)
	} else {
		p.logger.Debug("request blocked", zap.String("url", truncate(rawURL, 200)))
		err = fetch.FailRequest(ev.RequestID, network.ErrorReasonBlockedByClient).Do(execCtx)
	}
	if err != nil && p.listenCtx.Err() == nil {
		p.logger.Debug("resolve paused request", zap.Error(err))
	}
}

// run executes actions on the tab, bounded by ctx's deadline and cancellation.
func (p *chromePage) run(ctx context.Context, actions ...chromedp.Action) error {
	var (
		runCtx context.Context
		cancel context.CancelFunc
	)
	if deadline, ok := ctx.Deadline(); ok {
		runCtx, cancel = context.WithDeadline(p.tabCtx, deadline)
	} else {
		runCtx, cancel = context.WithCancel(p.tabCtx)
	}
	defer cancel()
	stopForward := forwardCancel(ctx, cancel)
	defer stopForward()

	if err := chromedp.Run(runCtx, actions...); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && runCtx.Err() != nil {
			return p.closedErr(fmt.Errorf("%w (%v)", ctxErr, err))
		}
		return p.closedErr(err)
	}
	return nil
}

func (p *chromePage) SetViewport(ctx context.Context, width, height int, dpr float64) error {
	return p.run(ctx, emulation.SetDeviceMetricsOverride(int64(width), int64(height), dpr, false))
}

func (p *chromePage) EmulateScreenMedia(ctx context.Context) error {
	return p.run(ctx, emulation.SetEmulatedMedia().WithMedia("screen"))
}

func (p *chromePage) SetContent(ctx context.Context, markup string, until render.WaitUntil) error {
	p.tracker.reset()
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		tree, err := page.GetFrameTree().Do(ctx)
		if err != nil {
			return fmt.Errorf("frame tree: %w", err)
		}
		if err := page.SetDocumentContent(tree.Frame.ID, markup).Do(ctx); err != nil {
			return fmt.Errorf("set document content: %w", err)
		}
		return nil
	}))
	if err != nil {
		return err
	}
	return p.waitReady(ctx, until, false)
}

func (p *chromePage) Navigate(ctx context.Context, targetURL string, until render.WaitUntil) error {
	p.tracker.reset()
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var res page.NavigateReturns
		if err := cdp.Execute(ctx, page.CommandNavigate, page.Navigate(targetURL), &res); err != nil {
			return fmt.Errorf("navigate: %w", err)
		}
		if res.ErrorText != "" {
			return fmt.Errorf("navigate %s: %s", targetURL, res.ErrorText)
		}
		return nil
	}))
	if err != nil {
		return err
	}
	return p.waitReady(ctx, until, true)
}

// waitReady polls the document until until holds. Evaluation errors while a
// navigation swaps execution contexts are expected and retried.
func (p *chromePage) waitReady(ctx context.Context, until render.WaitUntil, skipBlank bool) error {
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		var state string
		err := p.run(ctx, chromedp.Evaluate(readyStateJS, &state))
		switch {
		case err == nil:
			if readyFor(state, until, skipBlank, p.tracker.idle(idleWindow)) {
				return nil
			}
		case ctx.Err() != nil:
			return fmt.Errorf("wait for %s: %w", until, ctx.Err())
		default:
			if classified := p.closedErr(err); classified != err {
				return classified
			}
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("wait for %s: %w", until, ctx.Err())
		case <-ticker.C:
		}
	}
}

// readyFor interprets a "readyState|href" probe.
func readyFor(state string, until render.WaitUntil, skipBlank, networkIdle bool) bool {
	readyState, href, _ := strings.Cut(state, "|")
	if skipBlank && href == "about:blank" {
		return false
	}
	switch until {
	case render.WaitDOMContentLoaded:
		return readyState == "interactive" || readyState == "complete"
	case render.WaitLoad:
		return readyState == "complete"
	default:
		return readyState == "complete" && networkIdle
	}
}

func (p *chromePage) AddStyle(ctx context.Context, css string) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(styleScript(css), &ok))
}

func (p *chromePage) WaitVisible(ctx context.Context, selector string) error {
	return p.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *chromePage) OverrideDevicePixelRatio(ctx context.Context, dpr float64) error {
	var ok bool
	return p.run(ctx, chromedp.Evaluate(dprScript(dpr), &ok))
}

func (p *chromePage) Capture(ctx context.Context, opts render.CaptureOptions) ([]byte, error) {
	var data []byte
	err := p.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if opts.OmitBackground {
			if err := cdp.Execute(ctx, emulation.CommandSetDefaultBackgroundColorOverride, transparentBackground, nil); err != nil {
				return fmt.Errorf("transparent background: %w", err)
			}
		}

		params := page.CaptureScreenshot().
			WithFormat(screenshotFormat(opts.Format)).
			WithFromSurface(true)
		if opts.Quality != nil && opts.Format.SupportsQuality() {
			params = params.WithQuality(int64(*opts.Quality))
		}
		switch {
		case opts.Clip != nil:
			params = params.
				WithClip(&page.Viewport{X: opts.Clip.X, Y: opts.Clip.Y, Width: opts.Clip.Width, Height: opts.Clip.Height, Scale: 1}).
				WithCaptureBeyondViewport(true)
		case opts.FullPage:
			var dims []float64
			if err := chromedp.Evaluate(fullPageDimsJS, &dims).Do(ctx); err != nil {
				return fmt.Errorf("measure page: %w", err)
			}
			if len(dims) == 2 && dims[0] > 0 && dims[1] > 0 {
				params = params.
					WithClip(&page.Viewport{Width: dims[0], Height: dims[1], Scale: 1}).
					WithCaptureBeyondViewport(true)
			}
		}

		buf, err := params.Do(ctx)
		if err != nil {
			return fmt.Errorf("capture screenshot: %w", err)
		}
		data = buf
		return nil
	}))
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Close stops interception. The tab belongs to the browsing context, which
// closes it together with the context.
func (p *chromePage) Close() error {
	p.closeOnce.Do(p.stopListening)
	return nil
}

// closedErr classifies err against the engine and this page's tab.
func (p *chromePage) closedErr(err error) error {
	return classify(err, p.engine.browserCtx, p.tabCtx)
}

var transparentBackground = map[string]any{
	"color": map[string]any{"r": 0, "g": 0, "b": 0, "a": 0},
}

func screenshotFormat(f render.Format) page.CaptureScreenshotFormat {
	switch f {
	case render.FormatJPEG:
		return page.CaptureScreenshotFormatJpeg
	case render.FormatWebP:
		return page.CaptureScreenshotFormatWebp
	default:
		return page.CaptureScreenshotFormatPng
	}
}

func styleScript(css string) string {
	quoted, _ := json.Marshal(css) //nolint:errcheck // strings always marshal
	return fmt.Sprintf(`(() => {
  const s = document.createElement('style');
  s.textContent = %s;
  (document.head || document.documentElement).appendChild(s);
  return true;
})()`, quoted)
}

func dprScript(dpr float64) string {
	return fmt.Sprintf(`(() => {
  Object.defineProperty(window, 'devicePixelRatio', { get: () => %g, configurable: true });
  return true;
})()`, dpr)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

// forwardCancel cancels a derived context when parent is done.
func forwardCancel(parent context.Context, cancel context.CancelFunc) func() {
	if parent == nil {
		return func() {}
	}
	done := make(chan struct{})
	go func() {
		select {
		case <-parent.Done():
			cancel()
		case <-done:
		}
	}()
	return func() { close(done) }
}
