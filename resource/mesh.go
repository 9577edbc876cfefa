package resource

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/forge/handle"
)

// VertexAttribute describes one attribute within a vertex layout.
type VertexAttribute struct {
	// ShaderLocation is the attribute location in the shader.
	ShaderLocation uint32

	// Format is the attribute data format.
	Format gputypes.VertexFormat

	// Offset is the byte offset from the start of the vertex.
	Offset uint64
}

// VertexLayout describes the memory layout of one vertex buffer.
type VertexLayout struct {
	// ArrayStride is the byte stride between consecutive vertices.
	ArrayStride uint64

	// StepMode is the input rate. The zero value is per-vertex.
	StepMode gputypes.VertexStepMode

	// Attributes are the attributes sourced from this buffer.
	Attributes []VertexAttribute
}

// MeshDesc describes a vertex/index buffer pair.
type MeshDesc struct {
	// Label is an optional debug name.
	Label string

	// Layout describes the vertex memory layout.
	Layout VertexLayout

	// Topology is the primitive assembly mode. The zero value defaults
	// to a triangle list.
	Topology gputypes.PrimitiveTopology

	// IndexFormat is the index element format. Ignored when IndexData is
	// empty.
	IndexFormat gputypes.IndexFormat

	// VertexData is the raw vertex payload.
	VertexData []byte

	// IndexData is the optional raw index payload. Empty means
	// non-indexed drawing.
	IndexData []byte
}

// Kind implements Descriptor.
func (MeshDesc) Kind() handle.Kind { return handle.KindMesh }

// SizeBytes implements Descriptor.
func (d MeshDesc) SizeBytes() int {
	return len(d.VertexData) + len(d.IndexData)
}

// Validate implements Descriptor.
func (d MeshDesc) Validate() error {
	if len(d.VertexData) == 0 {
		return ErrEmptyDescriptor
	}
	if d.Layout.ArrayStride == 0 {
		return ErrBadDimensions
	}
	if uint64(len(d.VertexData))%d.Layout.ArrayStride != 0 {
		return ErrBadDimensions
	}
	if len(d.IndexData) > 0 && len(d.IndexData)%d.indexBytes() != 0 {
		return ErrBadDimensions
	}
	return nil
}

// VertexCount returns the number of vertices in the payload.
func (d MeshDesc) VertexCount() uint32 {
	if d.Layout.ArrayStride == 0 {
		return 0
	}
	return uint32(uint64(len(d.VertexData)) / d.Layout.ArrayStride)
}

// IndexCount returns the number of indices in the payload.
func (d MeshDesc) IndexCount() uint32 {
	return uint32(len(d.IndexData) / d.indexBytes())
}

func (d MeshDesc) indexBytes() int {
	if d.IndexFormat == gputypes.IndexFormatUint32 {
		return 4
	}
	return 2
}
