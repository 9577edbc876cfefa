package resource

import "github.com/gogpu/forge/handle"

// ShaderDesc describes a shader program. Exactly one of WGSL or SPIRV
// must be set; when both are present the precompiled SPIRV wins and the
// WGSL source is kept only as a debugging aid.
type ShaderDesc struct {
	// Label is an optional debug name.
	Label string

	// WGSL is shader source compiled at resolve time.
	WGSL string

	// SPIRV is a precompiled shader blob, little-endian 32-bit words.
	SPIRV []uint32

	// VertexEntry is the vertex entry point. Empty defaults to "vs_main".
	VertexEntry string

	// FragmentEntry is the fragment entry point. Empty defaults to
	// "fs_main".
	FragmentEntry string
}

// Kind implements Descriptor.
func (ShaderDesc) Kind() handle.Kind { return handle.KindShader }

// SizeBytes implements Descriptor.
func (d ShaderDesc) SizeBytes() int {
	return len(d.WGSL) + 4*len(d.SPIRV)
}

// Validate implements Descriptor.
func (d ShaderDesc) Validate() error {
	if d.WGSL == "" && len(d.SPIRV) == 0 {
		return ErrEmptyDescriptor
	}
	return nil
}

// VertexEntryPoint returns the effective vertex entry point.
func (d ShaderDesc) VertexEntryPoint() string {
	if d.VertexEntry == "" {
		return "vs_main"
	}
	return d.VertexEntry
}

// FragmentEntryPoint returns the effective fragment entry point.
func (d ShaderDesc) FragmentEntryPoint() string {
	if d.FragmentEntry == "" {
		return "fs_main"
	}
	return d.FragmentEntry
}
