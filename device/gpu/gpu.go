// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package gpu implements the device backend on gogpu/wgpu's HAL. It
// owns the native resources behind every handle and encodes one
// command buffer per frame, submitted with a fence wait at EndFrame.
package gpu

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/device"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/internal/noplog"
	"github.com/gogpu/forge/resource"
)

var (
	// ErrNoProvider is returned when the provider does not expose HAL
	// device and queue types.
	ErrNoProvider = errors.New("gpu: provider does not expose HAL types")

	// ErrUnknownObject is returned when a call references a handle with
	// no backing native resource.
	ErrUnknownObject = errors.New("gpu: unknown object")
)

// halProvider is the side interface a device provider (typically a
// gpucontext.DeviceProvider from the host application) must implement
// for direct HAL access. The any signatures keep providers free of a
// HAL dependency.
type halProvider interface {
	HalDevice() any
	HalQueue() any
}

// texture is the native state behind a KindTexture handle.
type texture struct {
	tex    hal.Texture
	view   hal.TextureView
	desc   resource.TextureDesc
	format gputypes.TextureFormat
}

// mesh is the native state behind a KindMesh handle.
type mesh struct {
	vbuf hal.Buffer
	ibuf hal.Buffer
	desc resource.MeshDesc
}

// shader is the native state behind a KindShader handle. Modules are
// compiled WGSL → SPIR-V up front so every HAL backend gets the form it
// prefers.
type shader struct {
	module hal.ShaderModule
	desc   resource.ShaderDesc
}

// target is the native state behind a KindRenderTarget or KindSurface
// handle: a color attachment, an optional depth attachment, and the
// raster state draws into it use.
type target struct {
	color     hal.Texture
	view      hal.TextureView
	depth     hal.Texture
	depthView hal.TextureView
	format    gputypes.TextureFormat

	width, height uint32
	viewport      resource.Rect
	scissor       *resource.Rect
	clearColor    gputypes.Color
	clearDepth    float32

	// cleared flips after the target's first pass each frame, so later
	// passes load instead of clearing.
	cleared bool
}

// Device is the HAL-backed backend. All device.Device methods run on
// the render goroutine.
type Device struct {
	dev   hal.Device
	queue hal.Queue
	log   *slog.Logger

	textures map[handle.Handle]*texture
	meshes   map[handle.Handle]*mesh
	shaders  map[handle.Handle]*shader
	targets  map[handle.Handle]*target

	pipelines *pipelineCache
	frame     frameState
}

// init registers the gpu backend when a provider has been installed.
func init() {
	device.Register(device.NameGPU, func() (device.Device, error) {
		p := currentProvider()
		if p == nil {
			return nil, ErrNoProvider
		}
		return New(p)
	})
}

// New creates a HAL-backed device from a shared device provider. The
// provider must implement HalDevice() any and HalQueue() any returning
// hal.Device and hal.Queue.
func New(provider any) (*Device, error) {
	hp, ok := provider.(halProvider)
	if !ok {
		return nil, ErrNoProvider
	}
	dev, ok := hp.HalDevice().(hal.Device)
	if !ok || dev == nil {
		return nil, ErrNoProvider
	}
	queue, ok := hp.HalQueue().(hal.Queue)
	if !ok || queue == nil {
		return nil, ErrNoProvider
	}
	d := &Device{
		dev:      dev,
		queue:    queue,
		log:      noplog.New(),
		textures: make(map[handle.Handle]*texture),
		meshes:   make(map[handle.Handle]*mesh),
		shaders:  make(map[handle.Handle]*shader),
		targets:  make(map[handle.Handle]*target),
	}
	d.pipelines = newPipelineCache(dev)
	return d, nil
}

// SetLogger configures the device's logger. Pass nil to silence it.
func (d *Device) SetLogger(l *slog.Logger) {
	if l == nil {
		l = noplog.New()
	}
	d.log = l
}

// Name implements device.Device.
func (d *Device) Name() string { return device.NameGPU }

// CreateObject implements device.Device.
func (d *Device) CreateObject(h handle.Handle, desc resource.Descriptor) error {
	switch dd := desc.(type) {
	case resource.TextureDesc:
		return d.createTexture(h, dd)
	case resource.MeshDesc:
		return d.createMesh(h, dd)
	case resource.ShaderDesc:
		return d.createShader(h, dd)
	case resource.RenderTargetDesc:
		return d.createTarget(h, dd.Label, dd.Width, dd.Height, dd.ResolvedFormat(), dd.DepthStencil, nil, nil)
	case resource.SurfaceDesc:
		return d.createSurface(h, dd)
	default:
		return fmt.Errorf("gpu: unsupported descriptor %T", desc)
	}
}

func (d *Device) createTexture(h handle.Handle, desc resource.TextureDesc) error {
	format := desc.ResolvedFormat()
	tex, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          hal.Extent3D{Width: desc.Width, Height: desc.Height, DepthOrArrayLayers: 1},
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create texture: %w", err)
	}
	view, err := d.dev.CreateTextureView(tex, &hal.TextureViewDescriptor{
		Label: desc.Label + "_view",
	})
	if err != nil {
		d.dev.DestroyTexture(tex)
		return fmt.Errorf("create texture view: %w", err)
	}
	if len(desc.Pixels) > 0 {
		d.writePixels(tex, desc.Width, desc.Height, 0, 0, desc.Pixels, format)
	}
	d.textures[h] = &texture{tex: tex, view: view, desc: desc, format: format}
	return nil
}

func (d *Device) createMesh(h handle.Handle, desc resource.MeshDesc) error {
	vbuf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
		Label: desc.Label + "_vertices",
		Size:  alignCopy(uint64(len(desc.VertexData))),
		Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return fmt.Errorf("create vertex buffer: %w", err)
	}
	d.queue.WriteBuffer(vbuf, 0, desc.VertexData)

	m := &mesh{vbuf: vbuf, desc: desc}
	if len(desc.IndexData) > 0 {
		ibuf, err := d.dev.CreateBuffer(&hal.BufferDescriptor{
			Label: desc.Label + "_indices",
			Size:  alignCopy(uint64(len(desc.IndexData))),
			Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			d.dev.DestroyBuffer(vbuf)
			return fmt.Errorf("create index buffer: %w", err)
		}
		d.queue.WriteBuffer(ibuf, 0, desc.IndexData)
		m.ibuf = ibuf
	}
	d.meshes[h] = m
	return nil
}

func (d *Device) createShader(h handle.Handle, desc resource.ShaderDesc) error {
	module, err := compileModule(d.dev, desc)
	if err != nil {
		return err
	}
	d.shaders[h] = &shader{module: module, desc: desc}
	return nil
}

func (d *Device) createSurface(h handle.Handle, desc resource.SurfaceDesc) error {
	clearColor := gputypes.Color{R: 0, G: 0, B: 0, A: 1}
	if desc.ClearColor != nil {
		clearColor = *desc.ClearColor
	}
	var clearDepth *float32
	if desc.ClearDepth != nil {
		clearDepth = desc.ClearDepth
	}
	if err := d.createTarget(h, desc.Label, desc.Width, desc.Height,
		gputypes.TextureFormatBGRA8Unorm, clearDepth != nil, &clearColor, clearDepth); err != nil {
		return err
	}
	t := d.targets[h]
	t.viewport = desc.EffectiveViewport()
	t.scissor = desc.Scissor
	return nil
}

func (d *Device) createTarget(h handle.Handle, label string, width, height uint32, format gputypes.TextureFormat, withDepth bool, clearColor *gputypes.Color, clearDepth *float32) error {
	color, err := d.dev.CreateTexture(&hal.TextureDescriptor{
		Label:         label + "_color",
		Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gputypes.TextureDimension2D,
		Format:        format,
		Usage:         gputypes.TextureUsageRenderAttachment | gputypes.TextureUsageTextureBinding | gputypes.TextureUsageCopySrc,
	})
	if err != nil {
		return fmt.Errorf("create color attachment: %w", err)
	}
	view, err := d.dev.CreateTextureView(color, &hal.TextureViewDescriptor{
		Label: label + "_color_view",
	})
	if err != nil {
		d.dev.DestroyTexture(color)
		return fmt.Errorf("create color view: %w", err)
	}

	t := &target{
		color:      color,
		view:       view,
		format:     format,
		width:      width,
		height:     height,
		viewport:   resource.Rect{Width: width, Height: height},
		clearColor: gputypes.Color{R: 0, G: 0, B: 0, A: 1},
		clearDepth: 1.0,
	}
	if clearColor != nil {
		t.clearColor = *clearColor
	}
	if clearDepth != nil {
		t.clearDepth = *clearDepth
	}

	if withDepth {
		depth, err := d.dev.CreateTexture(&hal.TextureDescriptor{
			Label:         label + "_depth",
			Size:          hal.Extent3D{Width: width, Height: height, DepthOrArrayLayers: 1},
			MipLevelCount: 1,
			SampleCount:   1,
			Dimension:     gputypes.TextureDimension2D,
			Format:        gputypes.TextureFormatDepth24PlusStencil8,
			Usage:         gputypes.TextureUsageRenderAttachment,
		})
		if err != nil {
			d.dev.DestroyTextureView(view)
			d.dev.DestroyTexture(color)
			return fmt.Errorf("create depth attachment: %w", err)
		}
		depthView, err := d.dev.CreateTextureView(depth, &hal.TextureViewDescriptor{
			Label: label + "_depth_view",
		})
		if err != nil {
			d.dev.DestroyTexture(depth)
			d.dev.DestroyTextureView(view)
			d.dev.DestroyTexture(color)
			return fmt.Errorf("create depth view: %w", err)
		}
		t.depth = depth
		t.depthView = depthView
	}

	d.targets[h] = t
	return nil
}

// UpdateObject implements device.Device.
func (d *Device) UpdateObject(h handle.Handle, upd resource.Update) error {
	switch u := upd.(type) {
	case resource.TextureUpdate:
		t, ok := d.textures[h]
		if !ok {
			return ErrUnknownObject
		}
		r := u.Region
		want := r.Dx() * r.Dy() * texelBytes(t.format)
		if len(u.Pixels) != want {
			return fmt.Errorf("gpu: texture update payload is %d bytes, want %d for a %dx%d region of %v",
				len(u.Pixels), want, r.Dx(), r.Dy(), t.format)
		}
		d.writePixels(t.tex, uint32(r.Dx()), uint32(r.Dy()),
			uint32(r.Min.X), uint32(r.Min.Y), u.Pixels, t.format)
		return nil
	case resource.MeshUpdate:
		m, ok := d.meshes[h]
		if !ok {
			return ErrUnknownObject
		}
		if len(u.VertexData) > 0 {
			d.queue.WriteBuffer(m.vbuf, u.VertexOffset, u.VertexData)
		}
		if len(u.IndexData) > 0 {
			if m.ibuf == nil {
				return fmt.Errorf("gpu: mesh %s has no index buffer", h)
			}
			d.queue.WriteBuffer(m.ibuf, u.IndexOffset, u.IndexData)
		}
		return nil
	case resource.SurfaceUpdate:
		t, ok := d.targets[h]
		if !ok {
			return ErrUnknownObject
		}
		if u.Viewport != nil {
			t.viewport = *u.Viewport
		}
		if u.Scissor != nil {
			t.scissor = u.Scissor
		}
		if u.ClearScissor {
			t.scissor = nil
		}
		return nil
	default:
		return fmt.Errorf("gpu: unsupported update %T", upd)
	}
}

// DestroyObject implements device.Device.
func (d *Device) DestroyObject(h handle.Handle) {
	switch h.Kind() {
	case handle.KindTexture:
		if t, ok := d.textures[h]; ok {
			d.dev.DestroyTextureView(t.view)
			d.dev.DestroyTexture(t.tex)
			delete(d.textures, h)
		}
	case handle.KindMesh:
		if m, ok := d.meshes[h]; ok {
			d.dev.DestroyBuffer(m.vbuf)
			if m.ibuf != nil {
				d.dev.DestroyBuffer(m.ibuf)
			}
			delete(d.meshes, h)
		}
	case handle.KindShader:
		if s, ok := d.shaders[h]; ok {
			d.dev.DestroyShaderModule(s.module)
			delete(d.shaders, h)
			d.pipelines.dropShader(h)
		}
	case handle.KindRenderTarget, handle.KindSurface:
		if t, ok := d.targets[h]; ok {
			if t.depthView != nil {
				d.dev.DestroyTextureView(t.depthView)
				d.dev.DestroyTexture(t.depth)
			}
			d.dev.DestroyTextureView(t.view)
			d.dev.DestroyTexture(t.color)
			delete(d.targets, h)
		}
	}
}

// texelBytes returns the per-texel byte size of the formats the
// backend creates textures in. Upload layouts assume tightly packed
// rows of this size.
func texelBytes(f gputypes.TextureFormat) int {
	switch f {
	case gputypes.TextureFormatRGBA8Unorm, gputypes.TextureFormatBGRA8Unorm:
		return 4
	default:
		return 4
	}
}

// writePixels uploads a tightly packed pixel region.
func (d *Device) writePixels(tex hal.Texture, w, h, x, y uint32, pixels []byte, format gputypes.TextureFormat) {
	if w == 0 || h == 0 || len(pixels) == 0 {
		return
	}
	bytesPerRow := uint32(len(pixels)) / h
	d.queue.WriteTexture(
		&hal.ImageCopyTexture{
			Texture:  tex,
			MipLevel: 0,
			Origin:   hal.Origin3D{X: x, Y: y, Z: 0},
		},
		pixels,
		&hal.ImageDataLayout{
			Offset:       0,
			BytesPerRow:  bytesPerRow,
			RowsPerImage: h,
		},
		&hal.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
	)
}

// Close implements device.Device.
func (d *Device) Close() error {
	for h := range d.textures {
		d.DestroyObject(h)
	}
	for h := range d.meshes {
		d.DestroyObject(h)
	}
	for h := range d.shaders {
		d.DestroyObject(h)
	}
	for h := range d.targets {
		d.DestroyObject(h)
	}
	d.pipelines.clear()
	return nil
}

// lookupState resolves the native objects an entry's pipeline state
// references.
func (d *Device) lookupState(st command.PipelineState) (*shader, *target, error) {
	s, ok := d.shaders[st.Shader]
	if !ok {
		return nil, nil, ErrUnknownObject
	}
	t, ok := d.targets[st.Target]
	if !ok {
		return nil, nil, ErrUnknownObject
	}
	return s, t, nil
}

// alignCopy rounds a buffer size up to the 4-byte copy alignment.
func alignCopy(size uint64) uint64 {
	const copyBufferAlignment uint64 = 4
	return (size + copyBufferAlignment - 1) &^ (copyBufferAlignment - 1)
}
