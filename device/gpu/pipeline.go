// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"math/bits"
	"strings"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/naga"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/resource"
)

// pipelineKey identifies one compiled pipeline variant. Two draws share
// a pipeline when their state, target format, vertex layout and bind
// slot usage all match.
type pipelineKey struct {
	state    command.PipelineState
	format   gputypes.TextureFormat
	hasDepth bool
	layout   string
	topology gputypes.PrimitiveTopology
	slotMask uint16
}

// bindLayouts is the bind group layout and pipeline layout shared by
// all pipelines with the same slot usage.
type bindLayouts struct {
	group hal.BindGroupLayout
	pipe  hal.PipelineLayout
}

// pipelineCache builds render pipelines on demand and reuses them for
// the lifetime of their shader. Used only from the render goroutine.
type pipelineCache struct {
	dev       hal.Device
	pipelines map[pipelineKey]hal.RenderPipeline
	layouts   map[uint16]bindLayouts
}

func newPipelineCache(dev hal.Device) *pipelineCache {
	return &pipelineCache{
		dev:       dev,
		pipelines: make(map[pipelineKey]hal.RenderPipeline),
		layouts:   make(map[uint16]bindLayouts),
	}
}

func (c *pipelineCache) get(st command.PipelineState, s *shader, t *target, mesh *resource.MeshDesc, slotMask uint16) (hal.RenderPipeline, error) {
	key := pipelineKey{
		state:    st,
		format:   t.format,
		hasDepth: t.depthView != nil,
		layout:   layoutFingerprint(&mesh.Layout),
		topology: mesh.Topology,
		slotMask: slotMask,
	}
	if pl, ok := c.pipelines[key]; ok {
		return pl, nil
	}
	pl, err := c.build(key, st, s, mesh)
	if err != nil {
		return nil, err
	}
	c.pipelines[key] = pl
	return pl, nil
}

func (c *pipelineCache) build(key pipelineKey, st command.PipelineState, s *shader, mesh *resource.MeshDesc) (hal.RenderPipeline, error) {
	bl, err := c.bindLayoutsFor(key.slotMask)
	if err != nil {
		return nil, err
	}

	var blend *gputypes.BlendState
	if st.BlendEnabled {
		b := st.Blend
		blend = &b
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  s.desc.Label + "_pipeline",
		Layout: bl.pipe,
		Vertex: hal.VertexState{
			Module:     s.module,
			EntryPoint: s.desc.VertexEntryPoint(),
			Buffers:    vertexBuffers(&mesh.Layout),
		},
		Fragment: &hal.FragmentState{
			Module:     s.module,
			EntryPoint: s.desc.FragmentEntryPoint(),
			Targets: []gputypes.ColorTargetState{{
				Format:    key.format,
				Blend:     blend,
				WriteMask: gputypes.ColorWriteMaskAll,
			}},
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  mesh.Topology,
			CullMode:  st.Cull,
			FrontFace: st.FrontFace,
		},
		Multisample: gputypes.MultisampleState{
			Count: 1,
			Mask:  0xFFFFFFFF,
		},
	}

	if key.hasDepth {
		compare := st.DepthCompare
		if compare == 0 {
			compare = gputypes.CompareFunctionAlways
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            gputypes.TextureFormatDepth24PlusStencil8,
			DepthWriteEnabled: st.DepthWrite,
			DepthCompare:      compare,
			StencilFront: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilBack: hal.StencilFaceState{
				Compare:     gputypes.CompareFunctionAlways,
				FailOp:      hal.StencilOperationKeep,
				DepthFailOp: hal.StencilOperationKeep,
				PassOp:      hal.StencilOperationKeep,
			},
			StencilReadMask:  0x00,
			StencilWriteMask: 0x00,
		}
	}

	pl, err := c.dev.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return pl, nil
}

// bindLayoutsFor returns the layouts for a bind slot mask, creating
// them on first use. Every used slot is a sampled 2D texture visible to
// the fragment stage.
func (c *pipelineCache) bindLayoutsFor(slotMask uint16) (bindLayouts, error) {
	if bl, ok := c.layouts[slotMask]; ok {
		return bl, nil
	}

	entries := make([]gputypes.BindGroupLayoutEntry, 0, bits.OnesCount16(slotMask))
	for slot := 0; slot < command.MaxBindSlots; slot++ {
		if slotMask&(1<<slot) == 0 {
			continue
		}
		entries = append(entries, gputypes.BindGroupLayoutEntry{
			Binding:    uint32(slot),
			Visibility: gputypes.ShaderStageFragment,
			Texture: &gputypes.TextureBindingLayout{
				SampleType:    gputypes.TextureSampleTypeFloat,
				ViewDimension: gputypes.TextureViewDimension2D,
			},
		})
	}

	group, err := c.dev.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   fmt.Sprintf("forge_bind_layout_%04x", slotMask),
		Entries: entries,
	})
	if err != nil {
		return bindLayouts{}, fmt.Errorf("create bind group layout: %w", err)
	}

	var groups []hal.BindGroupLayout
	if len(entries) > 0 {
		groups = []hal.BindGroupLayout{group}
	}
	pipe, err := c.dev.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            fmt.Sprintf("forge_pipe_layout_%04x", slotMask),
		BindGroupLayouts: groups,
	})
	if err != nil {
		c.dev.DestroyBindGroupLayout(group)
		return bindLayouts{}, fmt.Errorf("create pipeline layout: %w", err)
	}

	bl := bindLayouts{group: group, pipe: pipe}
	c.layouts[slotMask] = bl
	return bl, nil
}

// dropShader evicts pipelines compiled against a destroyed shader.
func (c *pipelineCache) dropShader(h handle.Handle) {
	for key, pl := range c.pipelines {
		if key.state.Shader == h {
			c.dev.DestroyRenderPipeline(pl)
			delete(c.pipelines, key)
		}
	}
}

func (c *pipelineCache) clear() {
	for key, pl := range c.pipelines {
		c.dev.DestroyRenderPipeline(pl)
		delete(c.pipelines, key)
	}
	for mask, bl := range c.layouts {
		c.dev.DestroyPipelineLayout(bl.pipe)
		c.dev.DestroyBindGroupLayout(bl.group)
		delete(c.layouts, mask)
	}
}

// buildBindGroup creates the frame-transient bind group for the
// currently bound slots.
func (d *Device) buildBindGroup(f *frameState) (hal.BindGroup, error) {
	bl, err := d.pipelines.bindLayoutsFor(f.slotMask)
	if err != nil {
		return nil, err
	}

	entries := make([]gputypes.BindGroupEntry, 0, bits.OnesCount16(f.slotMask))
	for slot := 0; slot < command.MaxBindSlots; slot++ {
		if f.slotMask&(1<<slot) == 0 {
			continue
		}
		view, err := d.boundView(f.bound[slot])
		if err != nil {
			return nil, err
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding: uint32(slot),
			Resource: gputypes.TextureViewBinding{
				TextureView: view.NativeHandle(),
			},
		})
	}

	bg, err := d.dev.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   "forge_bind",
		Layout:  bl.group,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("create bind group: %w", err)
	}
	return bg, nil
}

// boundView resolves the texture view behind a bindable handle. Render
// targets bound as input are sampled through their color attachment.
func (d *Device) boundView(h handle.Handle) (hal.TextureView, error) {
	switch h.Kind() {
	case handle.KindTexture:
		if t, ok := d.textures[h]; ok {
			return t.view, nil
		}
	case handle.KindRenderTarget:
		if t, ok := d.targets[h]; ok {
			return t.view, nil
		}
	}
	return nil, ErrUnknownObject
}

// vertexBuffers converts a mesh layout to the HAL form.
func vertexBuffers(l *resource.VertexLayout) []gputypes.VertexBufferLayout {
	attrs := make([]gputypes.VertexAttribute, len(l.Attributes))
	for i, a := range l.Attributes {
		attrs[i] = gputypes.VertexAttribute{
			Format:         a.Format,
			Offset:         a.Offset,
			ShaderLocation: a.ShaderLocation,
		}
	}
	return []gputypes.VertexBufferLayout{{
		ArrayStride: l.ArrayStride,
		StepMode:    l.StepMode,
		Attributes:  attrs,
	}}
}

// layoutFingerprint flattens a vertex layout into a comparable string
// for pipeline cache keys.
func layoutFingerprint(l *resource.VertexLayout) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d:%d", l.ArrayStride, l.StepMode)
	for _, a := range l.Attributes {
		fmt.Fprintf(&b, ";%d:%d:%d", a.ShaderLocation, a.Format, a.Offset)
	}
	return b.String()
}

// compileModule builds the HAL shader module for a descriptor. WGSL
// sources compile through naga to SPIR-V so every backend receives the
// form it handles best; precompiled SPIR-V passes through untouched.
func compileModule(dev hal.Device, desc resource.ShaderDesc) (hal.ShaderModule, error) {
	code := desc.SPIRV
	if len(code) == 0 {
		spirvBytes, err := naga.Compile(desc.WGSL)
		if err != nil {
			return nil, fmt.Errorf("compile shader %q: %w", desc.Label, err)
		}
		// SPIR-V is little-endian 32-bit words.
		code = make([]uint32, len(spirvBytes)/4)
		for i := range code {
			code[i] = uint32(spirvBytes[i*4]) |
				uint32(spirvBytes[i*4+1])<<8 |
				uint32(spirvBytes[i*4+2])<<16 |
				uint32(spirvBytes[i*4+3])<<24
		}
	}
	module, err := dev.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("create shader module %q: %w", desc.Label, err)
	}
	return module, nil
}
