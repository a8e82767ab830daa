package render

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/htmlshot/internal/metrics"
	"github.com/JakeFAU/htmlshot/internal/policy/ratelimit"
)

// Archiver stores a finished image and returns where it went.
type Archiver interface {
	Archive(ctx context.Context, format Format, data []byte) (string, error)
}

// Options holds the service-wide render settings.
type Options struct {
	Limits     Limits
	DefaultDPR float64
	Policy     NetworkPolicy
	// MaxConcurrency bounds in-flight renders; zero means unbounded.
	MaxConcurrency int
	// URLHostQPS rate-limits URL renders per target host; zero disables it.
	URLHostQPS float64
	Retry      RetryPolicy
}

// Service validates and resolves requests, then renders them through the
// retry controller.
type Service struct {
	opts      Options
	sessions  *SessionManager
	retry     *RetryController
	presets   PresetLookup
	templates TemplateRenderer
	archiver  Archiver
	logger    *zap.Logger

	sem   chan struct{}
	hosts *ratelimit.Limiter
}

// NewService wires a Service. presets, templates and archiver may be nil.
func NewService(
	opts Options,
	sessions *SessionManager,
	presets PresetLookup,
	templates TemplateRenderer,
	archiver Archiver,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.DefaultDPR <= 0 {
		opts.DefaultDPR = 1
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = DefaultRetryPolicy()
	}
	metrics.Init()
	var sem chan struct{}
	if opts.MaxConcurrency > 0 {
		sem = make(chan struct{}, opts.MaxConcurrency)
	}
	var hosts *ratelimit.Limiter
	if opts.URLHostQPS > 0 {
		hosts = ratelimit.New(ratelimit.Config{RPS: opts.URLHostQPS, Burst: 1})
	}
	return &Service{
		opts:      opts,
		sessions:  sessions,
		retry:     NewRetryController(sessions, NewPipeline(logger.Named("pipeline")), opts.Retry, logger.Named("retry")),
		presets:   presets,
		templates: templates,
		archiver:  archiver,
		logger:    logger,
		sem:       sem,
		hosts:     hosts,
	}
}

// Render produces an image for req.
func (s *Service) Render(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	format := req.OutputFormat()
	result, err := s.render(ctx, req)
	metrics.ObserveRender(string(format), ErrorKind(err), time.Since(start))
	if err != nil {
		s.logger.Info("render failed",
			zap.String("format", string(format)),
			zap.String("kind", ErrorKind(err)),
			zap.Error(err),
		)
		return Result{}, err
	}
	s.logger.Debug("render complete",
		zap.String("format", string(format)),
		zap.Int("bytes", len(result.Data)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (s *Service) render(ctx context.Context, req Request) (Result, error) {
	if err := req.Validate(); err != nil {
		return Result{}, err
	}
	geo, err := ResolveGeometry(req, s.presets, s.opts.Limits)
	if err != nil {
		return Result{}, err
	}
	content, err := ResolveContent(req, s.templates, s.opts.Policy)
	if err != nil {
		return Result{}, err
	}
	job := s.buildJob(req, geo, content)

	release, err := s.acquireSlot(ctx)
	if err != nil {
		return Result{}, err
	}
	defer release()

	if content.Kind == ContentURL {
		if err := s.waitHostBudget(ctx, content.Target); err != nil {
			return Result{}, fmt.Errorf("%w: url rate limit: %w", ErrRenderFailed, err)
		}
	}

	metrics.IncInflightRenders()
	defer metrics.DecInflightRenders()

	data, err := s.retry.Execute(ctx, job, ContextOptions{
		DeviceScaleFactor: job.DPR,
		Width:             geo.Width,
		Height:            geo.Height,
		Policy:            s.opts.Policy,
	})
	if err != nil {
		return Result{}, err
	}

	result := Result{Data: data, Format: job.Format}
	if s.archiver != nil {
		uri, err := s.archiver.Archive(ctx, job.Format, data)
		if err != nil {
			s.logger.Warn("archive render", zap.Error(err))
		} else {
			result.ArchiveURI = uri
		}
	}
	return result, nil
}

// RenderHTML returns the markup a request would load, without the engine.
// Only html and template sources qualify.
func (s *Service) RenderHTML(_ context.Context, req Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	content, err := ResolveContent(req, s.templates, s.opts.Policy)
	if err != nil {
		return "", err
	}
	if content.Kind != ContentHTML {
		return "", fmt.Errorf("%w: html output needs html or templateName", ErrValidation)
	}
	return content.Markup, nil
}

// Close releases the shared engine.
func (s *Service) Close() error {
	return s.sessions.Close()
}

func (s *Service) buildJob(req Request, geo Geometry, content Content) Job {
	dpr := s.opts.DefaultDPR
	if req.DPR != nil {
		dpr = *req.DPR
	}
	quality := DefaultQuality
	if req.Quality != nil {
		quality = *req.Quality
	}
	return Job{
		Content:        content,
		Geometry:       geo,
		DPR:            dpr,
		Format:         req.OutputFormat(),
		Quality:        quality,
		FullPage:       req.FullPage,
		OmitBackground: req.OmitBackground,
		WaitUntil:      req.LoadCondition(),
		WaitFor:        req.WaitFor,
		Timeout:        req.TimeoutBudget(),
	}
}

func (s *Service) acquireSlot(ctx context.Context) (func(), error) {
	if s.sem == nil {
		return func() {}, nil
	}
	select {
	case s.sem <- struct{}{}:
		return func() { <-s.sem }, nil
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: waiting for render slot: %w", ErrRenderFailed, ctx.Err())
	}
}

func (s *Service) waitHostBudget(ctx context.Context, rawURL string) error {
	if s.hosts == nil {
		return nil
	}
	return s.hosts.Wait(ctx, rawURL) //nolint:wrapcheck // wrapped by caller
}

// ErrorKind maps an error to a short label for logs and metrics.
func ErrorKind(err error) string {
	kinds := []struct {
		target error
		label  string
	}{
		{ErrValidation, "validation"},
		{ErrUnknownPreset, "unknown_preset"},
		{ErrSizeBudgetExceeded, "size_budget_exceeded"},
		{ErrURLRenderingDisabled, "url_rendering_disabled"},
		{ErrURLNotAllowlisted, "url_not_allowlisted"},
		{ErrNoContentSource, "no_content_source"},
		{ErrTemplateFailed, "template_failed"},
		{ErrContentLoadTimeout, "content_load_timeout"},
		{ErrSelectorWaitTimeout, "selector_wait_timeout"},
		{ErrEngineUnavailable, "engine_unavailable"},
		{ErrEngineClosed, "engine_closed"},
		{ErrRenderFailed, "render_failed"},
	}
	if err == nil {
		return "ok"
	}
	for _, k := range kinds {
		if errors.Is(err, k.target) {
			return k.label
		}
	}
	return "error"
}
