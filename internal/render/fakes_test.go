package render

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// fakeLauncher hands out fakeEngines and counts launches.
type fakeLauncher struct {
	launches atomic.Int32
	err      error
	// pageErrs is consumed one per page Capture call across all engines.
	mu       sync.Mutex
	captures []error
	engines  []*fakeEngine
	gate     chan struct{}
}

func (l *fakeLauncher) Launch(ctx context.Context) (Engine, error) {
	l.launches.Add(1)
	if l.gate != nil {
		select {
		case <-l.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if l.err != nil {
		return nil, l.err
	}
	e := &fakeEngine{launcher: l}
	e.alive.Store(true)
	l.mu.Lock()
	l.engines = append(l.engines, e)
	l.mu.Unlock()
	return e, nil
}

func (l *fakeLauncher) nextCaptureErr() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.captures) == 0 {
		return nil
	}
	err := l.captures[0]
	l.captures = l.captures[1:]
	return err
}

func (l *fakeLauncher) totals() (contextsOpened, contextsClosed, pagesOpened, pagesClosed int32) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.engines {
		contextsOpened += e.contextsOpened.Load()
		contextsClosed += e.contextsClosed.Load()
		pagesOpened += e.pagesOpened.Load()
		pagesClosed += e.pagesClosed.Load()
	}
	return
}

type fakeEngine struct {
	launcher *fakeLauncher
	alive    atomic.Bool
	closed   atomic.Int32
	openErr  error

	contextsOpened atomic.Int32
	contextsClosed atomic.Int32
	pagesOpened    atomic.Int32
	pagesClosed    atomic.Int32
	lastOpts       atomic.Value
}

func (e *fakeEngine) Alive(context.Context) bool { return e.alive.Load() }

func (e *fakeEngine) OpenContext(_ context.Context, opts ContextOptions) (BrowsingContext, error) {
	if e.openErr != nil {
		return nil, e.openErr
	}
	e.contextsOpened.Add(1)
	e.lastOpts.Store(opts)
	return &fakeContext{engine: e}, nil
}

func (e *fakeEngine) Close() error {
	e.closed.Add(1)
	e.alive.Store(false)
	return nil
}

type fakeContext struct {
	engine  *fakeEngine
	pageErr error
}

func (c *fakeContext) NewPage(context.Context) (Page, error) {
	if c.pageErr != nil {
		return nil, c.pageErr
	}
	c.engine.pagesOpened.Add(1)
	return &fakePage{engine: c.engine}, nil
}

func (c *fakeContext) Close() error {
	c.engine.contextsClosed.Add(1)
	return nil
}

// fakePage records the calls the pipeline makes.
type fakePage struct {
	engine *fakeEngine

	mu        sync.Mutex
	calls     []string
	capture   CaptureOptions
	loadErr   error
	waitErr   error
	blockLoad bool
	data      []byte
	// captureBudget is the time left on the capture context's deadline.
	captureBudget time.Duration
}

func (p *fakePage) record(call string) {
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.mu.Unlock()
}

func (p *fakePage) Calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.calls...)
}

func (p *fakePage) SetViewport(context.Context, int, int, float64) error {
	p.record("viewport")
	return nil
}

func (p *fakePage) EmulateScreenMedia(context.Context) error {
	p.record("media")
	return nil
}

func (p *fakePage) load(ctx context.Context, call string) error {
	p.record(call)
	if p.blockLoad {
		<-ctx.Done()
		return ctx.Err()
	}
	return p.loadErr
}

func (p *fakePage) SetContent(ctx context.Context, _ string, _ WaitUntil) error {
	return p.load(ctx, "setContent")
}

func (p *fakePage) Navigate(ctx context.Context, _ string, _ WaitUntil) error {
	return p.load(ctx, "navigate")
}

func (p *fakePage) AddStyle(context.Context, string) error {
	p.record("addStyle")
	return nil
}

func (p *fakePage) WaitVisible(ctx context.Context, _ string) error {
	p.record("waitVisible")
	if p.waitErr != nil {
		return p.waitErr
	}
	return nil
}

func (p *fakePage) OverrideDevicePixelRatio(context.Context, float64) error {
	p.record("dpr")
	return nil
}

func (p *fakePage) Capture(ctx context.Context, opts CaptureOptions) ([]byte, error) {
	p.record("capture")
	p.mu.Lock()
	p.capture = opts
	if deadline, ok := ctx.Deadline(); ok {
		p.captureBudget = time.Until(deadline)
	}
	p.mu.Unlock()
	if p.engine != nil && p.engine.launcher != nil {
		if err := p.engine.launcher.nextCaptureErr(); err != nil {
			return nil, err
		}
	}
	if p.data != nil {
		return p.data, nil
	}
	return []byte("image"), nil
}

func (p *fakePage) Close() error {
	if p.engine != nil {
		p.engine.pagesClosed.Add(1)
	}
	return nil
}

// fakePresets is a PresetLookup backed by maps.
type fakePresets struct {
	sizes map[string]Size
	clips map[string]Clip
}

func (f fakePresets) Size(name string) (Size, bool) {
	s, ok := f.sizes[name]
	return s, ok
}

func (f fakePresets) Clip(name string) (Clip, bool) {
	c, ok := f.clips[name]
	return c, ok
}

var testPresets = fakePresets{
	sizes: map[string]Size{"twitter_card": {Width: 1200, Height: 630}},
	clips: map[string]Clip{"header": {X: 0, Y: 0, Width: 1200, Height: 200}},
}

type fakeTemplates map[string]string

func (f fakeTemplates) Render(name string, _ map[string]any) (string, error) {
	out, ok := f[name]
	if !ok {
		return "", errors.New("template not found")
	}
	return out, nil
}

func intPtr(v int) *int { return &v }

func floatPtr(v float64) *float64 { return &v }
