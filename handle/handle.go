// Package handle provides generational resource handles.
//
// A Handle is an opaque, copyable value addressing a slot in the resource
// registry. It carries no ownership: the registry owns the underlying
// resource, and a handle may outlive it. The generation tag makes stale
// handles detectable after a slot has been recycled, so a dangling handle
// resolves to "not found" instead of an unrelated resource.
package handle

import "fmt"

// Kind identifies the resource category a handle addresses.
// A handle of the wrong kind is rejected at binding time rather than
// silently reinterpreted.
type Kind uint8

const (
	// KindInvalid is the zero Kind; no valid handle carries it.
	KindInvalid Kind = iota

	// KindTexture identifies sampled texture resources.
	KindTexture

	// KindMesh identifies vertex/index buffer pairs.
	KindMesh

	// KindShader identifies compiled shader programs.
	KindShader

	// KindRenderTarget identifies offscreen render targets.
	KindRenderTarget

	// KindSurface identifies presentable surfaces (viewport, scissor,
	// clear state).
	KindSurface
)

// kindNames maps Kind values to their string representation.
var kindNames = [...]string{
	KindInvalid:      "invalid",
	KindTexture:      "texture",
	KindMesh:         "mesh",
	KindShader:       "shader",
	KindRenderTarget: "render_target",
	KindSurface:      "surface",
}

// String returns the string representation of a Kind.
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Handle is a weak reference to a registry slot: an index into the slot
// table plus a generation tag that invalidates the handle once the slot
// is recycled. Handles are comparable and safe to copy; the zero value
// is the nil handle.
//
// Generations start at 1, so a zero-valued Handle never matches a live
// slot.
type Handle struct {
	index      uint32
	generation uint32
	kind       Kind
}

// New constructs a handle from its parts. Only the registry mints
// handles; everything else copies them around.
func New(index, generation uint32, kind Kind) Handle {
	return Handle{index: index, generation: generation, kind: kind}
}

// Nil is the invalid handle.
var Nil = Handle{}

// Index returns the registry slot index.
func (h Handle) Index() uint32 { return h.index }

// Generation returns the generation tag.
func (h Handle) Generation() uint32 { return h.generation }

// Kind returns the resource category.
func (h Handle) Kind() Kind { return h.kind }

// IsValid reports whether h has been initialized. It says nothing about
// whether the underlying resource is still alive; use the registry for
// that.
func (h Handle) IsValid() bool {
	return h.generation != 0
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return fmt.Sprintf("%s(%d, %d)", h.kind, h.index, h.generation)
}
