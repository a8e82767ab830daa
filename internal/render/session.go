package render

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/JakeFAU/htmlshot/internal/metrics"
)

const (
	probeTimeout  = 2 * time.Second
	launchTimeout = 30 * time.Second
)

// SessionManager owns the single shared engine. The handle is replaced, never
// repaired: a dead engine is dropped and a fresh one launched. Concurrent
// callers that find the engine dead share one launch.
type SessionManager struct {
	launcher Launcher
	logger   *zap.Logger

	mu     sync.RWMutex
	engine Engine
	closed bool

	launches singleflight.Group
}

// NewSessionManager builds a manager; the engine is launched on first Acquire.
func NewSessionManager(launcher Launcher, logger *zap.Logger) *SessionManager {
	if logger == nil {
		logger = zap.NewNop()
	}
	metrics.Init()
	return &SessionManager{
		launcher: launcher,
		logger:   logger,
	}
}

// Acquire returns the live engine, launching one if needed.
func (m *SessionManager) Acquire(ctx context.Context) (Engine, error) {
	m.mu.RLock()
	current, closed := m.engine, m.closed
	m.mu.RUnlock()
	if closed {
		return nil, fmt.Errorf("%w: session manager closed", ErrEngineUnavailable)
	}

	if current != nil {
		probeCtx, cancel := context.WithTimeout(ctx, probeTimeout)
		alive := current.Alive(probeCtx)
		cancel()
		if alive {
			return current, nil
		}
		m.logger.Warn("engine failed liveness probe; relaunching")
	}
	return m.relaunch(ctx, current)
}

func (m *SessionManager) relaunch(ctx context.Context, stale Engine) (Engine, error) {
	ch := m.launches.DoChan("launch", func() (any, error) {
		m.mu.RLock()
		current := m.engine
		m.mu.RUnlock()
		if current != nil && current != stale {
			// Someone else already replaced the stale handle.
			return current, nil
		}

		launchCtx, cancel := context.WithTimeout(context.Background(), launchTimeout)
		defer cancel()
		start := time.Now()
		engine, err := m.launcher.Launch(launchCtx)
		if err != nil {
			metrics.ObserveEngineLaunch("error")
			return nil, fmt.Errorf("%w: %w", ErrEngineUnavailable, err)
		}
		metrics.ObserveEngineLaunch("ok")
		m.logger.Info("engine launched", zap.Duration("elapsed", time.Since(start)))

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			m.closeEngine(engine)
			return nil, fmt.Errorf("%w: session manager closed", ErrEngineUnavailable)
		}
		old := m.engine
		m.engine = engine
		m.mu.Unlock()
		if old != nil {
			go m.closeEngine(old)
		}
		return engine, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		engine, ok := res.Val.(Engine)
		if !ok {
			return nil, fmt.Errorf("%w: unexpected launch result %T", ErrEngineUnavailable, res.Val)
		}
		return engine, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for launch: %w", ErrEngineUnavailable, ctx.Err())
	}
}

// Invalidate drops engine if it is still the current handle. The next Acquire
// launches a replacement.
func (m *SessionManager) Invalidate(engine Engine) {
	if engine == nil {
		return
	}
	m.mu.Lock()
	if m.engine != engine {
		m.mu.Unlock()
		return
	}
	m.engine = nil
	m.mu.Unlock()
	m.logger.Warn("engine invalidated")
	go m.closeEngine(engine)
}

// WithPage opens a browsing context and page on engine, runs fn, and always
// closes the page and then the context, whatever fn returns.
func (m *SessionManager) WithPage(ctx context.Context, engine Engine, opts ContextOptions, fn func(Page) error) error {
	bctx, err := engine.OpenContext(ctx, opts)
	if err != nil {
		return openError("open browsing context", err)
	}
	defer func() {
		if cerr := bctx.Close(); cerr != nil {
			m.logger.Debug("close browsing context", zap.Error(cerr))
		}
	}()

	page, err := bctx.NewPage(ctx)
	if err != nil {
		return openError("open page", err)
	}
	defer func() {
		if cerr := page.Close(); cerr != nil {
			m.logger.Debug("close page", zap.Error(cerr))
		}
	}()

	return fn(page)
}

// Close shuts the engine down. Later Acquire calls fail.
func (m *SessionManager) Close() error {
	m.mu.Lock()
	engine := m.engine
	m.engine = nil
	m.closed = true
	m.mu.Unlock()
	if engine == nil {
		return nil
	}
	if err := engine.Close(); err != nil {
		return fmt.Errorf("close engine: %w", err)
	}
	return nil
}

func (m *SessionManager) closeEngine(engine Engine) {
	if err := engine.Close(); err != nil {
		m.logger.Warn("close engine", zap.Error(err))
	}
}

func openError(step string, err error) error {
	if errors.Is(err, ErrEngineClosed) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRenderFailed, step, err)
}
