package render

import "errors"

// Sentinel errors for render failures. Callers match them with errors.Is.
var (
	ErrValidation           = errors.New("invalid request")
	ErrUnknownPreset        = errors.New("unknown preset")
	ErrSizeBudgetExceeded   = errors.New("requested size exceeds pixel budget")
	ErrURLRenderingDisabled = errors.New("url rendering is disabled")
	ErrURLNotAllowlisted    = errors.New("url host is not allowlisted")
	ErrNoContentSource      = errors.New("one of html, templateName or url is required")
	ErrTemplateFailed       = errors.New("template rendering failed")
	ErrContentLoadTimeout   = errors.New("timed out waiting for content to load")
	ErrSelectorWaitTimeout  = errors.New("timed out waiting for selector")
	ErrEngineUnavailable    = errors.New("rendering engine unavailable")

	// ErrEngineClosed marks failures caused by the browser process going away.
	// It is the only error the retry controller retries.
	ErrEngineClosed = errors.New("rendering engine closed")

	ErrRenderFailed = errors.New("render failed")
)
