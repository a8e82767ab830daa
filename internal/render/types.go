package render

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Format is the encoded image type produced by a render.
type Format string

// Supported output formats.
const (
	FormatPNG  Format = "png"
	FormatJPEG Format = "jpeg"
	FormatWebP Format = "webp"
)

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	return "image/" + string(f)
}

// Extension returns the file extension used when the image is written out.
func (f Format) Extension() string {
	if f == FormatJPEG {
		return "jpg"
	}
	return string(f)
}

// SupportsQuality reports whether the encoder honours a quality setting.
func (f Format) SupportsQuality() bool {
	return f == FormatJPEG || f == FormatWebP
}

// WaitUntil names the document readiness condition a load waits for.
type WaitUntil string

// Load conditions.
const (
	WaitLoad             WaitUntil = "load"
	WaitDOMContentLoaded WaitUntil = "domcontentloaded"
	WaitNetworkIdle      WaitUntil = "networkidle"
)

// Request defaults.
const (
	DefaultWidth   = 1200
	DefaultHeight  = 630
	DefaultQuality = 90
	DefaultTimeout = 15 * time.Second
	MaxTimeout     = 60 * time.Second
	MaxWaitDelay   = 30 * time.Second
)

// Clip is a capture sub-rectangle in CSS pixels.
type Clip struct {
	X      float64 `json:"x" yaml:"x" validate:"min=0"`
	Y      float64 `json:"y" yaml:"y" validate:"min=0"`
	Width  float64 `json:"width" yaml:"width" validate:"gt=0"`
	Height float64 `json:"height" yaml:"height" validate:"gt=0"`
}

// Size is a named width/height pair from the preset table.
type Size struct {
	Width  int `json:"width" yaml:"width"`
	Height int `json:"height" yaml:"height"`
}

// WaitFor is the optional post-load wait: either a fixed delay or a selector
// that must become visible. On the wire it is a number of milliseconds or a
// selector string.
type WaitFor struct {
	Delay    *int   `validate:"omitempty,min=0,max=30000"`
	Selector string `validate:"omitempty,max=1024"`
}

// UnmarshalJSON accepts a number, a numeric string, or a selector string.
func (w *WaitFor) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	var ms float64
	if err := json.Unmarshal(data, &ms); err == nil {
		delay := int(ms)
		w.Delay = &delay
		return nil
	}
	var raw string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("waitFor must be milliseconds or a CSS selector")
	}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil
	}
	if delay, err := strconv.Atoi(raw); err == nil {
		w.Delay = &delay
		return nil
	}
	w.Selector = raw
	return nil
}

// MarshalJSON mirrors UnmarshalJSON.
func (w WaitFor) MarshalJSON() ([]byte, error) {
	switch {
	case w.Delay != nil:
		return json.Marshal(*w.Delay)
	case w.Selector != "":
		return json.Marshal(w.Selector)
	default:
		return []byte("null"), nil
	}
}

// Request is one render call as received from HTTP or the CLI.
type Request struct {
	HTML         string         `json:"html,omitempty"`
	TemplateName string         `json:"templateName,omitempty" validate:"omitempty,max=128"`
	TemplateData map[string]any `json:"templateData,omitempty"`
	URL          string         `json:"url,omitempty" validate:"omitempty,url"`

	Width      *int   `json:"width,omitempty" validate:"omitempty,min=1"`
	Height     *int   `json:"height,omitempty" validate:"omitempty,min=1"`
	SizePreset string `json:"sizePreset,omitempty"`
	Clip       *Clip  `json:"clip,omitempty" validate:"omitempty"`
	ClipPreset string `json:"clipPreset,omitempty"`

	DPR            *float64 `json:"dpr,omitempty" validate:"omitempty,gt=0,lte=4"`
	Format         Format   `json:"format,omitempty" validate:"omitempty,oneof=png jpeg webp"`
	Quality        *int     `json:"quality,omitempty" validate:"omitempty,min=1,max=100"`
	FullPage       bool     `json:"fullPage,omitempty"`
	OmitBackground bool     `json:"omitBackground,omitempty"`
	CSS            string   `json:"css,omitempty"`

	WaitUntil WaitUntil `json:"waitUntil,omitempty" validate:"omitempty,oneof=load domcontentloaded networkidle"`
	WaitFor   *WaitFor  `json:"waitFor,omitempty" validate:"omitempty"`
	Timeout   *int      `json:"timeout,omitempty" validate:"omitempty,min=0,max=60000"`
}

// OutputFormat returns the requested format, defaulting to PNG.
func (r Request) OutputFormat() Format {
	if r.Format == "" {
		return FormatPNG
	}
	return r.Format
}

// LoadCondition returns the requested wait condition, defaulting to networkidle.
func (r Request) LoadCondition() WaitUntil {
	if r.WaitUntil == "" {
		return WaitNetworkIdle
	}
	return r.WaitUntil
}

// TimeoutBudget returns the per-request time budget. Zero means default.
func (r Request) TimeoutBudget() time.Duration {
	if r.Timeout == nil || *r.Timeout <= 0 {
		return DefaultTimeout
	}
	return time.Duration(*r.Timeout) * time.Millisecond
}

// Geometry is the resolved viewport and optional capture clip.
type Geometry struct {
	Width  int
	Height int
	Clip   *Clip
}

// ContentKind tags the variant held by Content.
type ContentKind int

// Content variants.
const (
	ContentHTML ContentKind = iota + 1
	ContentURL
)

func (k ContentKind) String() string {
	switch k {
	case ContentHTML:
		return "html"
	case ContentURL:
		return "url"
	default:
		return "unknown"
	}
}

// Content is the resolved content instruction for the pipeline.
type Content struct {
	Kind   ContentKind
	Markup string
	Target string
	// CSS is only set for URL content; markup already carries injected CSS.
	CSS string
}

// Result is a finished render.
type Result struct {
	Data       []byte
	Format     Format
	ArchiveURI string
}
