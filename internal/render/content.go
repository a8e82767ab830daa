package render

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// TemplateRenderer compiles a named template with data into markup.
type TemplateRenderer interface {
	Render(name string, data map[string]any) (string, error)
}

var headCloseRe = regexp.MustCompile(`(?i)</head\s*>`)

// ResolveContent picks the content source. Precedence is templateName, then
// html, then url; the first non-empty source wins.
func ResolveContent(req Request, templates TemplateRenderer, policy NetworkPolicy) (Content, error) {
	switch {
	case strings.TrimSpace(req.TemplateName) != "":
		if templates == nil {
			return Content{}, fmt.Errorf("%w: templates are not configured", ErrTemplateFailed)
		}
		markup, err := templates.Render(req.TemplateName, req.TemplateData)
		if err != nil {
			return Content{}, fmt.Errorf("%w: %w", ErrTemplateFailed, err)
		}
		return Content{Kind: ContentHTML, Markup: InjectCSS(markup, req.CSS)}, nil
	case req.HTML != "":
		return Content{Kind: ContentHTML, Markup: InjectCSS(req.HTML, req.CSS)}, nil
	case strings.TrimSpace(req.URL) != "":
		target, err := checkURL(strings.TrimSpace(req.URL), policy)
		if err != nil {
			return Content{}, err
		}
		return Content{Kind: ContentURL, Target: target, CSS: req.CSS}, nil
	default:
		return Content{}, ErrNoContentSource
	}
}

func checkURL(raw string, policy NetworkPolicy) (string, error) {
	if !policy.AllowURL {
		return "", ErrURLRenderingDisabled
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported scheme %q", ErrURLNotAllowlisted, u.Scheme)
	}
	if !policy.Allowlist.AllowsHost(u.Hostname()) {
		return "", fmt.Errorf("%w: %s", ErrURLNotAllowlisted, u.Hostname())
	}
	return u.String(), nil
}

// InjectCSS places a style block right before the first closing head tag.
// Markup without one is returned unchanged.
func InjectCSS(markup, css string) string {
	if strings.TrimSpace(css) == "" {
		return markup
	}
	loc := headCloseRe.FindStringIndex(markup)
	if loc == nil {
		return markup
	}
	var b strings.Builder
	b.Grow(len(markup) + len(css) + len("<style></style>"))
	b.WriteString(markup[:loc[0]])
	b.WriteString("<style>")
	b.WriteString(css)
	b.WriteString("</style>")
	b.WriteString(markup[loc[0]:])
	return b.String()
}
