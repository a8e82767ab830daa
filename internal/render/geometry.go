package render

import "fmt"

// Limits bounds the logical viewport of any render.
type Limits struct {
	MaxWidth  int
	MaxHeight int
	MaxPixels int
}

// PresetLookup resolves named sizes and clips.
type PresetLookup interface {
	Size(name string) (Size, bool)
	Clip(name string) (Clip, bool)
}

// ResolveGeometry turns the request's size fields into a concrete viewport.
// It has no side effects and runs before any engine resource is acquired.
func ResolveGeometry(req Request, presets PresetLookup, limits Limits) (Geometry, error) {
	width, height := DefaultWidth, DefaultHeight
	if req.Width != nil {
		width = *req.Width
	}
	if req.Height != nil {
		height = *req.Height
	}
	if req.SizePreset != "" {
		size, ok := lookupSize(presets, req.SizePreset)
		if !ok {
			return Geometry{}, fmt.Errorf("%w: sizePreset %q", ErrUnknownPreset, req.SizePreset)
		}
		width, height = size.Width, size.Height
	}

	if limits.MaxWidth > 0 {
		width = min(width, limits.MaxWidth)
	}
	if limits.MaxHeight > 0 {
		height = min(height, limits.MaxHeight)
	}
	if limits.MaxPixels > 0 && width*height > limits.MaxPixels {
		return Geometry{}, fmt.Errorf("%w: %dx%d is %d pixels, limit is %d",
			ErrSizeBudgetExceeded, width, height, width*height, limits.MaxPixels)
	}

	geo := Geometry{Width: width, Height: height}
	if req.Clip != nil {
		clip := *req.Clip
		geo.Clip = &clip
	}
	if req.ClipPreset != "" {
		clip, ok := lookupClip(presets, req.ClipPreset)
		if !ok {
			return Geometry{}, fmt.Errorf("%w: clipPreset %q", ErrUnknownPreset, req.ClipPreset)
		}
		geo.Clip = &clip
	}
	return geo, nil
}

func lookupSize(presets PresetLookup, name string) (Size, bool) {
	if presets == nil {
		return Size{}, false
	}
	return presets.Size(name)
}

func lookupClip(presets PresetLookup, name string) (Clip, bool) {
	if presets == nil {
		return Clip{}, false
	}
	return presets.Clip(name)
}
