package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Job is a fully resolved render, ready for the pipeline.
type Job struct {
	Content        Content
	Geometry       Geometry
	DPR            float64
	Format         Format
	Quality        int
	FullPage       bool
	OmitBackground bool
	WaitUntil      WaitUntil
	WaitFor        *WaitFor
	Timeout        time.Duration
}

// Pipeline drives one page from empty to captured image. Steps run in a fixed
// order and never branch back.
type Pipeline struct {
	logger *zap.Logger
}

// NewPipeline builds a Pipeline.
func NewPipeline(logger *zap.Logger) *Pipeline {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{logger: logger}
}

// Run executes the pipeline and returns the encoded image.
func (p *Pipeline) Run(ctx context.Context, page Page, job Job) ([]byte, error) {
	geo := job.Geometry
	if err := page.SetViewport(ctx, geo.Width, geo.Height, job.DPR); err != nil {
		return nil, stepError("set viewport", err)
	}
	if err := page.EmulateScreenMedia(ctx); err != nil {
		return nil, stepError("emulate media", err)
	}

	// Every later suspension point gets the full timeout on its own; the
	// numeric delay is not one of them.
	timeout := job.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	start := time.Now()
	if err := p.load(ctx, page, job, timeout); err != nil {
		return nil, err
	}
	p.logger.Debug("content loaded",
		zap.Stringer("kind", job.Content.Kind),
		zap.String("wait_until", string(job.WaitUntil)),
		zap.Duration("elapsed", time.Since(start)),
	)

	if err := p.extraWait(ctx, page, job.WaitFor, timeout); err != nil {
		return nil, err
	}

	return p.capture(ctx, page, job, timeout)
}

func (p *Pipeline) capture(ctx context.Context, page Page, job Job, timeout time.Duration) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// Viewport is set again because loading can resize it; the pixel ratio is
	// patched only now so layout during load saw the native value.
	geo := job.Geometry
	if err := page.SetViewport(ctx, geo.Width, geo.Height, job.DPR); err != nil {
		return nil, stepError("reset viewport", err)
	}
	if err := page.OverrideDevicePixelRatio(ctx, job.DPR); err != nil {
		return nil, stepError("override device pixel ratio", err)
	}

	data, err := page.Capture(ctx, captureOptions(job))
	if err != nil {
		return nil, stepError("capture", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: capture returned no data", ErrRenderFailed)
	}
	return data, nil
}

func (p *Pipeline) load(ctx context.Context, page Page, job Job, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var err error
	switch job.Content.Kind {
	case ContentHTML:
		err = page.SetContent(ctx, job.Content.Markup, job.WaitUntil)
	case ContentURL:
		err = page.Navigate(ctx, job.Content.Target, job.WaitUntil)
	default:
		return fmt.Errorf("%w: unknown content kind %d", ErrRenderFailed, job.Content.Kind)
	}
	if err != nil {
		if timedOut(ctx, err) {
			return fmt.Errorf("%w: %s not reached: %w", ErrContentLoadTimeout, job.WaitUntil, err)
		}
		return stepError("load content", err)
	}
	if job.Content.Kind == ContentURL && job.Content.CSS != "" {
		if err := page.AddStyle(ctx, job.Content.CSS); err != nil {
			return stepError("inject css", err)
		}
	}
	return nil
}

func (p *Pipeline) extraWait(ctx context.Context, page Page, wait *WaitFor, timeout time.Duration) error {
	switch {
	case wait == nil:
		return nil
	case wait.Delay != nil:
		delay := time.Duration(*wait.Delay) * time.Millisecond
		if delay <= 0 {
			return nil
		}
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-timer.C:
			return nil
		case <-ctx.Done():
			return fmt.Errorf("%w: waiting %s: %w", ErrRenderFailed, delay, ctx.Err())
		}
	case wait.Selector != "":
		ctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		if err := page.WaitVisible(ctx, wait.Selector); err != nil {
			if timedOut(ctx, err) {
				return fmt.Errorf("%w: %q: %w", ErrSelectorWaitTimeout, wait.Selector, err)
			}
			return stepError("wait for selector", err)
		}
	}
	return nil
}

func captureOptions(job Job) CaptureOptions {
	opts := CaptureOptions{
		Format:         job.Format,
		FullPage:       job.FullPage,
		OmitBackground: job.OmitBackground,
	}
	if opts.Format == "" {
		opts.Format = FormatPNG
	}
	if opts.Format.SupportsQuality() {
		quality := job.Quality
		if quality <= 0 {
			quality = DefaultQuality
		}
		opts.Quality = &quality
	}
	if job.Geometry.Clip != nil {
		clip := *job.Geometry.Clip
		opts.Clip = &clip
		opts.FullPage = false
	}
	return opts
}

// stepError wraps err as ErrRenderFailed unless the engine itself went away,
// which must stay distinguishable for the retry controller.
func stepError(step string, err error) error {
	if errors.Is(err, ErrEngineClosed) {
		return fmt.Errorf("%s: %w", step, err)
	}
	return fmt.Errorf("%w: %s: %w", ErrRenderFailed, step, err)
}

func timedOut(ctx context.Context, err error) bool {
	if errors.Is(err, ErrEngineClosed) {
		return false
	}
	return errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded)
}
