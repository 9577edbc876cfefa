// Package command provides the per-producer draw command buffer.
//
// Entries are stateless draw descriptors: each one fully specifies the
// pipeline state, resource bindings and draw parameters it depends on,
// independent of any previously submitted entry. A Buffer belongs to
// exactly one producer goroutine per frame and is merged with its
// siblings at the frame boundary, so appending never contends with
// other producers or with the render thread.
package command

import (
	"errors"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/forge/handle"
)

// ErrInvalidBinding is returned by Append when a referenced handle's
// kind does not match the slot it is bound to. The check is eager so a
// malformed entry never reaches the device visitor.
var ErrInvalidBinding = errors.New("command: handle kind does not match binding")

// ErrStaleEntry is returned by Append when one of the entry's handles
// no longer resolves, so it could not be pinned.
var ErrStaleEntry = errors.New("command: entry references a stale handle")

// PipelineState is the fixed-function and program state one entry draws
// with. The struct is comparable; the device visitor uses equality
// against its last-applied state to skip redundant backend calls.
type PipelineState struct {
	// Shader is the program to draw with. Kind must be KindShader.
	Shader handle.Handle

	// Target is the surface or render target the draw lands in.
	Target handle.Handle

	// BlendEnabled turns on color blending with the Blend state below.
	BlendEnabled bool

	// Blend is the blend configuration when BlendEnabled is set.
	Blend gputypes.BlendState

	// DepthWrite enables depth buffer writes.
	DepthWrite bool

	// DepthCompare is the depth test function. The zero value disables
	// the depth test (compare Always).
	DepthCompare gputypes.CompareFunction

	// Cull selects which triangle faces are discarded.
	Cull gputypes.CullMode

	// FrontFace defines the winding of front faces.
	FrontFace gputypes.FrontFace
}

// MaxBindSlots is the number of addressable shader binding slots.
const MaxBindSlots = 16

// Binding attaches a resource to a numbered shader slot.
type Binding struct {
	// Slot is the shader binding slot.
	Slot uint8

	// Handle references the bound resource: a texture, or a render
	// target sampled as input.
	Handle handle.Handle
}

// DrawParams selects what geometry an entry draws.
type DrawParams struct {
	// Mesh is the vertex/index source. Kind must be KindMesh.
	Mesh handle.Handle

	// FirstIndex and IndexCount select an index range. IndexCount zero
	// draws the whole mesh.
	FirstIndex uint32
	IndexCount uint32

	// InstanceCount zero draws one instance.
	InstanceCount uint32
}

// Entry is one stateless draw descriptor. Entries are immutable once
// appended to a Buffer.
type Entry struct {
	// Key establishes draw order; see SortKey.
	Key SortKey

	// State is the complete pipeline state for this draw.
	State PipelineState

	// Bindings are the entry's resource bindings, in slot order.
	Bindings []Binding

	// Draw selects the geometry.
	Draw DrawParams
}

// validate checks every handle kind against the slot it occupies.
func (e *Entry) validate() error {
	if e.State.Shader.Kind() != handle.KindShader {
		return ErrInvalidBinding
	}
	if k := e.State.Target.Kind(); k != handle.KindSurface && k != handle.KindRenderTarget {
		return ErrInvalidBinding
	}
	if e.Draw.Mesh.Kind() != handle.KindMesh {
		return ErrInvalidBinding
	}
	for _, b := range e.Bindings {
		if b.Slot >= MaxBindSlots {
			return ErrInvalidBinding
		}
		if k := b.Handle.Kind(); k != handle.KindTexture && k != handle.KindRenderTarget {
			return ErrInvalidBinding
		}
	}
	return nil
}

// EachHandle calls fn for every resource handle the entry references:
// shader, target, mesh, then bindings in order.
func (e *Entry) EachHandle(fn func(handle.Handle)) {
	fn(e.State.Shader)
	fn(e.State.Target)
	fn(e.Draw.Mesh)
	for _, b := range e.Bindings {
		fn(b.Handle)
	}
}
