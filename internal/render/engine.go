package render

import "context"

// Launcher starts a new rendering engine process.
type Launcher interface {
	Launch(ctx context.Context) (Engine, error)
}

// Engine is one running browser process shared by every request.
type Engine interface {
	// Alive probes the process. A false result means the handle must be replaced.
	Alive(ctx context.Context) bool
	// OpenContext creates an isolated browsing context with opts applied.
	OpenContext(ctx context.Context, opts ContextOptions) (BrowsingContext, error)
	Close() error
}

// ContextOptions configures a browsing context.
type ContextOptions struct {
	DeviceScaleFactor float64
	Width             int
	Height            int
	Policy            NetworkPolicy
}

// BrowsingContext is an isolated cookie/storage session owned by one request.
type BrowsingContext interface {
	NewPage(ctx context.Context) (Page, error)
	Close() error
}

// Page is the narrow set of operations the pipeline drives.
type Page interface {
	SetViewport(ctx context.Context, width, height int, dpr float64) error
	EmulateScreenMedia(ctx context.Context) error
	SetContent(ctx context.Context, markup string, until WaitUntil) error
	Navigate(ctx context.Context, target string, until WaitUntil) error
	AddStyle(ctx context.Context, css string) error
	WaitVisible(ctx context.Context, selector string) error
	OverrideDevicePixelRatio(ctx context.Context, dpr float64) error
	Capture(ctx context.Context, opts CaptureOptions) ([]byte, error)
	Close() error
}

// CaptureOptions are passed to the engine's screenshot call. Quality is nil
// for formats without a quality knob.
type CaptureOptions struct {
	Format         Format
	Quality        *int
	FullPage       bool
	OmitBackground bool
	Clip           *Clip
}
