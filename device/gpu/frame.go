// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package gpu

import (
	"fmt"
	"time"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/handle"
)

// gpuTimeout bounds the fence wait at frame submission.
const gpuTimeout = 5 * time.Second

// frameState is the encoding state of the frame in flight.
type frameState struct {
	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder

	targetHandle handle.Handle
	target       *target

	shader   *shader
	state    command.PipelineState
	haveSt   bool
	pipeline hal.RenderPipeline

	bound     [command.MaxBindSlots]handle.Handle
	slotMask  uint16
	bindDirty bool

	// bindGroups created this frame; destroyed after the fence wait.
	bindGroups []hal.BindGroup
}

// BeginFrame implements device.Device.
func (d *Device) BeginFrame() error {
	encoder, err := d.dev.CreateCommandEncoder(&hal.CommandEncoderDescriptor{
		Label: "forge_frame_encoder",
	})
	if err != nil {
		return fmt.Errorf("create command encoder: %w", err)
	}
	if err := encoder.BeginEncoding("forge_frame"); err != nil {
		return fmt.Errorf("begin encoding: %w", err)
	}
	d.frame = frameState{encoder: encoder}
	for _, t := range d.targets {
		t.cleared = false
	}
	return nil
}

// ApplyState implements device.Device. A target change closes the
// current render pass and opens one on the new target; the pipeline
// itself is realized lazily at the next Draw, when the mesh's vertex
// layout is known.
func (d *Device) ApplyState(st command.PipelineState) error {
	s, t, err := d.lookupState(st)
	if err != nil {
		return err
	}
	f := &d.frame
	if f.pass == nil || f.targetHandle != st.Target {
		d.endPass()
		d.beginPass(st.Target, t)
	}
	f.shader = s
	f.state = st
	f.haveSt = true
	f.pipeline = nil
	return nil
}

// Bind implements device.Device.
func (d *Device) Bind(slot uint8, h handle.Handle) error {
	f := &d.frame
	switch h.Kind() {
	case handle.KindTexture:
		if _, ok := d.textures[h]; !ok {
			return ErrUnknownObject
		}
	case handle.KindRenderTarget:
		if _, ok := d.targets[h]; !ok {
			return ErrUnknownObject
		}
	default:
		return fmt.Errorf("gpu: handle %s is not bindable", h)
	}
	f.bound[slot] = h
	f.slotMask |= 1 << slot
	f.bindDirty = true
	return nil
}

// Draw implements device.Device.
func (d *Device) Draw(p command.DrawParams) error {
	f := &d.frame
	if !f.haveSt || f.pass == nil {
		return fmt.Errorf("gpu: draw without pipeline state")
	}
	m, ok := d.meshes[p.Mesh]
	if !ok {
		return ErrUnknownObject
	}

	if f.pipeline == nil {
		pl, err := d.pipelines.get(f.state, f.shader, f.target, &m.desc, f.slotMask)
		if err != nil {
			return err
		}
		f.pass.SetPipeline(pl)
		f.pipeline = pl
	}

	if f.bindDirty && f.slotMask != 0 {
		bg, err := d.buildBindGroup(f)
		if err != nil {
			return err
		}
		f.pass.SetBindGroup(0, bg, nil)
		f.bindGroups = append(f.bindGroups, bg)
		f.bindDirty = false
	}

	f.pass.SetVertexBuffer(0, m.vbuf, 0)

	instances := p.InstanceCount
	if instances == 0 {
		instances = 1
	}
	if m.ibuf != nil {
		f.pass.SetIndexBuffer(m.ibuf, m.desc.IndexFormat, 0)
		count := p.IndexCount
		if count == 0 {
			count = m.desc.IndexCount()
		}
		f.pass.DrawIndexed(count, instances, p.FirstIndex, 0, 0)
	} else {
		count := p.IndexCount
		if count == 0 {
			count = m.desc.VertexCount()
		}
		f.pass.Draw(count, instances, p.FirstIndex, 0)
	}
	return nil
}

// EndFrame implements device.Device. It submits the frame's command
// buffer and blocks until the GPU signals the fence, then releases the
// frame's transient bind groups.
func (d *Device) EndFrame() error {
	f := &d.frame
	d.endPass()

	if f.encoder == nil {
		return nil
	}
	cmdBuf, err := f.encoder.EndEncoding()
	if err != nil {
		d.discardFrame()
		return fmt.Errorf("end encoding: %w", err)
	}
	defer d.dev.FreeCommandBuffer(cmdBuf)

	fence, err := d.dev.CreateFence()
	if err != nil {
		d.discardFrame()
		return fmt.Errorf("create fence: %w", err)
	}
	defer d.dev.DestroyFence(fence)

	if err := d.queue.Submit([]hal.CommandBuffer{cmdBuf}, fence, 1); err != nil {
		d.discardFrame()
		return fmt.Errorf("submit: %w", err)
	}
	ok, err := d.dev.Wait(fence, 1, gpuTimeout)
	if err != nil || !ok {
		d.discardFrame()
		return fmt.Errorf("wait for GPU: ok=%v err=%w", ok, err)
	}

	d.discardFrame()
	return nil
}

// beginPass opens a render pass on t. The first pass on a target each
// frame clears it; later passes load the previous contents.
func (d *Device) beginPass(th handle.Handle, t *target) {
	f := &d.frame

	colorLoad := gputypes.LoadOpClear
	depthLoad := gputypes.LoadOpClear
	if t.cleared {
		colorLoad = gputypes.LoadOpLoad
		depthLoad = gputypes.LoadOpLoad
	}
	rpDesc := &hal.RenderPassDescriptor{
		Label: "forge_pass",
		ColorAttachments: []hal.RenderPassColorAttachment{{
			View:       t.view,
			LoadOp:     colorLoad,
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: t.clearColor,
		}},
	}
	if t.depthView != nil {
		rpDesc.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              t.depthView,
			DepthLoadOp:       depthLoad,
			DepthStoreOp:      gputypes.StoreOpStore,
			DepthClearValue:   t.clearDepth,
			StencilLoadOp:     gputypes.LoadOpClear,
			StencilStoreOp:    gputypes.StoreOpDiscard,
			StencilClearValue: 0,
		}
	}

	rp := f.encoder.BeginRenderPass(rpDesc)
	t.cleared = true

	vp := t.viewport
	rp.SetViewport(float32(vp.X), float32(vp.Y), float32(vp.Width), float32(vp.Height), 0, 1)
	if sc := t.scissor; sc != nil {
		rp.SetScissorRect(clampU32(sc.X), clampU32(sc.Y), sc.Width, sc.Height)
	}

	f.pass = rp
	f.targetHandle = th
	f.target = t
	f.pipeline = nil
	f.bindDirty = f.slotMask != 0
}

func (d *Device) endPass() {
	f := &d.frame
	if f.pass != nil {
		f.pass.End()
		f.pass = nil
	}
}

// discardFrame drops transient per-frame state and destroys the
// frame's bind groups.
func (d *Device) discardFrame() {
	f := &d.frame
	for _, bg := range f.bindGroups {
		d.dev.DestroyBindGroup(bg)
	}
	d.frame = frameState{}
}

func clampU32(v int32) uint32 {
	if v < 0 {
		return 0
	}
	return uint32(v)
}
