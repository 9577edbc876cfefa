package resource

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/forge/handle"
)

// Rect is an axis-aligned pixel rectangle with its origin at the top
// left of the surface.
type Rect struct {
	X, Y          int32
	Width, Height uint32
}

// SurfaceDesc describes a presentable surface: the viewport, scissor
// and clear state applied when a frame's entries target it.
type SurfaceDesc struct {
	// Label is an optional debug name.
	Label string

	// Width and Height are the surface dimensions in pixels.
	Width  uint32
	Height uint32

	// Viewport restricts rendering. The zero value means the whole
	// surface.
	Viewport Rect

	// Scissor enables the scissor test for the given rectangle.
	Scissor *Rect

	// ClearColor clears the color attachment at the start of the frame.
	// Nil loads the previous contents.
	ClearColor *gputypes.Color

	// ClearDepth clears the depth attachment at the start of the frame.
	ClearDepth *float32
}

// Kind implements Descriptor.
func (SurfaceDesc) Kind() handle.Kind { return handle.KindSurface }

// SizeBytes implements Descriptor. Surfaces own no GPU memory of their
// own; attachments belong to the swapchain or a render target.
func (SurfaceDesc) SizeBytes() int { return 0 }

// Validate implements Descriptor.
func (d SurfaceDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return ErrBadDimensions
	}
	return nil
}

// EffectiveViewport returns the viewport, defaulting to the full
// surface when unset.
func (d SurfaceDesc) EffectiveViewport() Rect {
	if d.Viewport.Width == 0 || d.Viewport.Height == 0 {
		return Rect{Width: d.Width, Height: d.Height}
	}
	return d.Viewport
}
