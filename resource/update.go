package resource

import (
	"image"

	"github.com/gogpu/forge/handle"
)

// Update is a partial, deferred modification of an existing resource.
// Updates are applied at frame resolution, after any Create for the
// same target submitted in the same frame.
type Update interface {
	// Kind returns the resource category the update applies to.
	Kind() handle.Kind

	// Validate checks the update for internal consistency.
	Validate() error
}

// TextureUpdate replaces a contiguous subregion of a 2D texture.
type TextureUpdate struct {
	// Region is the destination rectangle in texels.
	Region image.Rectangle

	// Pixels is the tightly packed payload for Region, in the texture's
	// format.
	Pixels []byte
}

// Kind implements Update.
func (TextureUpdate) Kind() handle.Kind { return handle.KindTexture }

// Validate implements Update.
func (u TextureUpdate) Validate() error {
	if u.Region.Empty() || len(u.Pixels) == 0 {
		return ErrEmptyDescriptor
	}
	// The format is not known until the update meets its texture, but a
	// tightly packed payload must at least split into Region.Dy() equal
	// rows.
	if len(u.Pixels)%u.Region.Dy() != 0 {
		return ErrBadDimensions
	}
	return nil
}

// MeshUpdate rewrites a byte range of a mesh's vertex and/or index
// buffer. Offsets are in bytes from the start of the respective buffer.
type MeshUpdate struct {
	VertexOffset uint64
	VertexData   []byte

	IndexOffset uint64
	IndexData   []byte
}

// Kind implements Update.
func (MeshUpdate) Kind() handle.Kind { return handle.KindMesh }

// Validate implements Update.
func (u MeshUpdate) Validate() error {
	if len(u.VertexData) == 0 && len(u.IndexData) == 0 {
		return ErrEmptyDescriptor
	}
	return nil
}

// SurfaceUpdate replaces a surface's viewport, scissor or clear state.
// Nil fields keep the current value; this mirrors how viewport and
// scissor changes arrive between frames without recreating the surface.
type SurfaceUpdate struct {
	Viewport     *Rect
	Scissor      *Rect
	ClearScissor bool
}

// Kind implements Update.
func (SurfaceUpdate) Kind() handle.Kind { return handle.KindSurface }

// Validate implements Update.
func (u SurfaceUpdate) Validate() error {
	if u.Viewport == nil && u.Scissor == nil && !u.ClearScissor {
		return ErrEmptyDescriptor
	}
	return nil
}
