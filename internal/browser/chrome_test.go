package browser

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/render"
)

func chromePath(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping chrome test in short mode")
	}
	if p := os.Getenv("CHROME_PATH"); p != "" {
		return p
	}
	for _, name := range []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "headless-shell"} {
		if p, err := exec.LookPath(name); err == nil {
			return p
		}
	}
	t.Skipf("chrome not installed")
	return ""
}

func TestChromeRender(t *testing.T) {
	path := chromePath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	launcher := NewLauncher(Config{ExecPath: path}, zap.NewNop())
	sessions := render.NewSessionManager(launcher, zap.NewNop())
	defer func() { _ = sessions.Close() }()

	engine, err := sessions.Acquire(ctx)
	require.NoError(t, err)
	assert.True(t, engine.Alive(ctx))

	again, err := sessions.Acquire(ctx)
	require.NoError(t, err)
	assert.Same(t, engine, again)

	pipeline := render.NewPipeline(zap.NewNop())
	job := render.Job{
		Content:   render.Content{Kind: render.ContentHTML, Markup: `<html><head></head><body style="margin:0;background:#f00"><h1 id="t">hi</h1></body></html>`},
		Geometry:  render.Geometry{Width: 320, Height: 200},
		DPR:       2,
		Format:    render.FormatPNG,
		WaitUntil: render.WaitNetworkIdle,
		WaitFor:   &render.WaitFor{Selector: "#t"},
		Timeout:   20 * time.Second,
	}

	var data []byte
	err = sessions.WithPage(ctx, engine, render.ContextOptions{DeviceScaleFactor: 2, Width: 320, Height: 200}, func(p render.Page) error {
		var runErr error
		data, runErr = pipeline.Run(ctx, p, job)
		return runErr
	})
	require.NoError(t, err)
	require.True(t, bytes.HasPrefix(data, []byte("\x89PNG")))

	// External requests are refused under the default policy.
	blocked := job
	blocked.Content = render.Content{Kind: render.ContentURL, Target: "http://127.0.0.1:1/websocket"}
	blocked.WaitFor = nil
	blocked.Timeout = 5 * time.Second
	err = sessions.WithPage(ctx, engine, render.ContextOptions{Width: 320, Height: 200, Policy: render.NetworkPolicy{BlockExternal: true}}, func(p render.Page) error {
		_, runErr := pipeline.Run(ctx, p, blocked)
		return runErr
	})
	require.Error(t, err)
	assert.False(t, errors.Is(err, render.ErrEngineClosed))
}

func TestChromePageThenContextClose(t *testing.T) {
	path := chromePath(t)

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	launcher := NewLauncher(Config{ExecPath: path}, zap.NewNop())
	engine, err := launcher.Launch(ctx)
	require.NoError(t, err)
	defer func() { _ = engine.Close() }()

	bctx, err := engine.OpenContext(ctx, render.ContextOptions{Width: 200, Height: 100})
	require.NoError(t, err)
	p, err := bctx.NewPage(ctx)
	require.NoError(t, err)
	require.NoError(t, p.SetContent(ctx, "<p>x</p>", render.WaitLoad))

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	require.NoError(t, bctx.Close())
	assert.True(t, engine.Alive(ctx))
}
