package resource

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/forge/handle"
)

// TextureDesc describes a sampled 2D texture.
type TextureDesc struct {
	// Label is an optional debug name.
	Label string

	// Width and Height are the texture dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the texel format. The zero value defaults to RGBA8Unorm.
	Format gputypes.TextureFormat

	// MipLevelCount is the number of mip levels. Zero means 1.
	MipLevelCount uint32

	// Pixels is the optional initial payload, tightly packed rows in
	// Format order. Nil creates an uninitialized texture.
	Pixels []byte
}

// Kind implements Descriptor.
func (TextureDesc) Kind() handle.Kind { return handle.KindTexture }

// SizeBytes implements Descriptor.
func (d TextureDesc) SizeBytes() int {
	return int(d.Width) * int(d.Height) * formatBytes(d.format())
}

// Validate implements Descriptor.
func (d TextureDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return ErrBadDimensions
	}
	if d.Pixels != nil {
		expect := int(d.Width) * int(d.Height) * formatBytes(d.format())
		if len(d.Pixels) < expect {
			return ErrBadDimensions
		}
	}
	return nil
}

func (d TextureDesc) format() gputypes.TextureFormat {
	if d.Format == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatRGBA8Unorm
	}
	return d.Format
}

// ResolvedFormat returns the effective texel format, applying the
// RGBA8Unorm default.
func (d TextureDesc) ResolvedFormat() gputypes.TextureFormat { return d.format() }

// formatBytes returns the per-texel byte size of the formats the core
// accounts for. Unknown formats are assumed to be 4 bytes; the estimate
// only feeds eviction budgeting, not uploads.
func formatBytes(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 4
	}
}

// RenderTargetDesc describes an offscreen render target: a color
// attachment with an optional depth/stencil attachment.
type RenderTargetDesc struct {
	// Label is an optional debug name.
	Label string

	// Width and Height are the attachment dimensions in pixels.
	Width  uint32
	Height uint32

	// Format is the color attachment format. The zero value defaults to
	// BGRA8Unorm, the common swapchain format.
	Format gputypes.TextureFormat

	// DepthStencil enables a Depth24PlusStencil8 attachment.
	DepthStencil bool

	// SampleCount is the MSAA sample count. Zero means 1.
	SampleCount uint32
}

// Kind implements Descriptor.
func (RenderTargetDesc) Kind() handle.Kind { return handle.KindRenderTarget }

// SizeBytes implements Descriptor.
func (d RenderTargetDesc) SizeBytes() int {
	samples := int(d.SampleCount)
	if samples == 0 {
		samples = 1
	}
	n := int(d.Width) * int(d.Height) * 4 * samples
	if d.DepthStencil {
		n *= 2
	}
	return n
}

// Validate implements Descriptor.
func (d RenderTargetDesc) Validate() error {
	if d.Width == 0 || d.Height == 0 {
		return ErrBadDimensions
	}
	return nil
}

// ResolvedFormat returns the effective color format, applying the
// BGRA8Unorm default.
func (d RenderTargetDesc) ResolvedFormat() gputypes.TextureFormat {
	if d.Format == gputypes.TextureFormatUndefined {
		return gputypes.TextureFormatBGRA8Unorm
	}
	return d.Format
}
