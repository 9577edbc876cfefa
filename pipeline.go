// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package forge

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/device"

	// The headless backend registers itself on import so New always has
	// a fallback device.
	_ "github.com/gogpu/forge/device/headless"

	"github.com/gogpu/forge/frame"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/lifecycle"
	"github.com/gogpu/forge/registry"
	"github.com/gogpu/forge/resource"
)

// ErrClosed is returned when operations are attempted on a closed
// pipeline.
var ErrClosed = errors.New("forge: pipeline is closed")

// Pipeline is the rendering front end. Producers allocate handles and
// submit draw entries from any goroutine; one owner goroutine calls
// Advance once per frame to resolve resources, merge and sort the
// frame, and drain it into the backend device.
//
// Resource and submission methods are safe for concurrent use. Advance
// and Close must be called by a single goroutine, and Advance must not
// overlap BeginFrame calls for the same frame: every producer finishes
// with EndFrame before the owner advances.
type Pipeline struct {
	log   *slog.Logger
	reg   *registry.Registry
	mgr   *lifecycle.Manager
	coord *frame.Coordinator
	vis   *device.Visitor
	dev   device.Device

	mu      sync.Mutex
	inFrame []*command.Buffer
	free    []*command.Buffer
	closed  bool

	producers sync.WaitGroup
}

// New creates a pipeline. Without WithDevice it selects the best
// registered backend: gpu if a shared device provider is installed,
// headless otherwise.
func New(opts ...Option) (*Pipeline, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	log := o.logger
	if log == nil {
		log = Logger()
	}

	dev := o.dev
	if dev == nil {
		var err error
		dev, err = device.Default()
		if err != nil {
			return nil, fmt.Errorf("forge: %w", err)
		}
	}
	log.Info("pipeline created", "backend", dev.Name())

	reg := registry.New(o.capacity)
	mgr := lifecycle.NewManager(reg, log)
	if o.eviction != nil {
		mgr.SetEviction(o.eviction)
	}

	p := &Pipeline{
		log:   log,
		reg:   reg,
		mgr:   mgr,
		coord: frame.NewCoordinator(),
		vis:   device.NewVisitor(dev, reg, log),
		dev:   dev,
	}
	for i := 0; i < o.producers; i++ {
		p.free = append(p.free, command.NewBuffer(reg))
	}
	return p, nil
}

// CreateTexture allocates a texture handle. The handle is usable for
// submission immediately; the backend object appears at the next
// Advance.
func (p *Pipeline) CreateTexture(desc resource.TextureDesc) (handle.Handle, error) {
	return p.create(desc)
}

// CreateMesh allocates a mesh handle.
func (p *Pipeline) CreateMesh(desc resource.MeshDesc) (handle.Handle, error) {
	return p.create(desc)
}

// CreateShader allocates a shader handle.
func (p *Pipeline) CreateShader(desc resource.ShaderDesc) (handle.Handle, error) {
	return p.create(desc)
}

// CreateRenderTarget allocates a render target handle.
func (p *Pipeline) CreateRenderTarget(desc resource.RenderTargetDesc) (handle.Handle, error) {
	return p.create(desc)
}

// CreateSurface allocates a surface handle.
func (p *Pipeline) CreateSurface(desc resource.SurfaceDesc) (handle.Handle, error) {
	return p.create(desc)
}

func (p *Pipeline) create(desc resource.Descriptor) (handle.Handle, error) {
	if p.isClosed() {
		return handle.Nil, ErrClosed
	}
	return p.mgr.Create(desc)
}

// UpdateTexture defers a texture region update to the next Advance.
func (p *Pipeline) UpdateTexture(h handle.Handle, upd resource.TextureUpdate) error {
	return p.update(h, upd)
}

// UpdateMesh defers a vertex/index data update to the next Advance.
func (p *Pipeline) UpdateMesh(h handle.Handle, upd resource.MeshUpdate) error {
	return p.update(h, upd)
}

// UpdateSurface defers a viewport/scissor/clear change to the next
// Advance.
func (p *Pipeline) UpdateSurface(h handle.Handle, upd resource.SurfaceUpdate) error {
	return p.update(h, upd)
}

func (p *Pipeline) update(h handle.Handle, upd resource.Update) error {
	if p.isClosed() {
		return ErrClosed
	}
	return p.mgr.Update(h, upd)
}

// Destroy requests destruction of h. The resource is released at the
// first Advance where no frame entry references it; until then the
// request is carried forward. Destroying a stale or nil handle is a
// no-op.
func (p *Pipeline) Destroy(h handle.Handle) {
	if p.isClosed() || !h.IsValid() {
		return
	}
	p.mgr.Destroy(h)
}

// BeginFrame hands the calling producer a command buffer for this
// frame. The buffer belongs to that goroutine until it is passed back
// via EndFrame. Returns nil on a closed pipeline.
func (p *Pipeline) BeginFrame() *command.Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	var buf *command.Buffer
	if n := len(p.free); n > 0 {
		buf = p.free[n-1]
		p.free = p.free[:n-1]
	} else {
		buf = command.NewBuffer(p.reg)
	}
	p.inFrame = append(p.inFrame, buf)
	p.producers.Add(1)
	return buf
}

// EndFrame marks buf's producer as finished for this frame. Every
// BeginFrame must be matched by exactly one EndFrame before the owner
// calls Advance.
func (p *Pipeline) EndFrame(buf *command.Buffer) {
	if buf == nil {
		return
	}
	p.producers.Done()
}

// Submit is one-shot sugar for a producer with a single entry: it
// appends e to a fresh buffer and immediately ends the frame for it.
func (p *Pipeline) Submit(e command.Entry) error {
	buf := p.BeginFrame()
	if buf == nil {
		return ErrClosed
	}
	err := buf.Append(e)
	p.EndFrame(buf)
	return err
}

// FrameStats summarizes one Advance.
type FrameStats struct {
	// Device is the drain summary: draw calls, state changes, skips.
	Device device.Stats

	// Requeued counts destroy requests carried to the next frame.
	Requeued int

	// LiveBytes is the approximate byte footprint of live resources
	// after resolution.
	LiveBytes int64
}

// Advance runs one frame boundary: it waits for all producers that
// began this frame to end it, resolves pending lifecycle requests in
// submission order, merges and sorts the producers' buffers, and drains
// the result into the device.
//
// Advance must be called by a single owner goroutine. Producers may
// begin the next frame as soon as Advance returns.
func (p *Pipeline) Advance() (FrameStats, error) {
	p.producers.Wait()

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return FrameStats{}, ErrClosed
	}
	bufs := p.inFrame
	p.inFrame = nil
	p.mu.Unlock()

	rep := p.mgr.ResolveFrame()
	merged := p.coord.MergeAndSwap(bufs)

	p.mu.Lock()
	p.free = append(p.free, bufs...)
	p.mu.Unlock()

	var st device.Stats
	p.vis.Apply(rep, &st)
	err := p.vis.Drain(merged, &st)

	p.log.Debug("frame advanced",
		"entries", st.Entries,
		"draws", st.DrawCalls,
		"skipped", st.Skipped,
		"requeued", rep.Requeued)

	return FrameStats{
		Device:    st,
		Requeued:  rep.Requeued,
		LiveBytes: p.mgr.LiveBytes(),
	}, err
}

// HandleInfo is one registry slot in an Inspect snapshot.
type HandleInfo struct {
	Handle handle.Handle
	State  registry.State
	Refs   int32
}

// Inspection is a point-in-time diagnostic snapshot of the pipeline's
// resources.
type Inspection struct {
	// Live counts Live resources per kind.
	Live map[handle.Kind]int

	// LiveBytes is the approximate byte footprint of live resources.
	LiveBytes int64

	// Handles lists every non-free slot.
	Handles []HandleInfo
}

// Inspect returns a diagnostic snapshot. It is safe to call
// concurrently with producers, but counts taken mid-frame are
// approximate.
func (p *Pipeline) Inspect() Inspection {
	ins := Inspection{
		Live:      make(map[handle.Kind]int),
		LiveBytes: p.mgr.LiveBytes(),
	}
	p.reg.ForEach(func(h handle.Handle, st registry.State, refs int32, _ resource.Descriptor) {
		if st == registry.StateLive {
			ins.Live[h.Kind()]++
		}
		ins.Handles = append(ins.Handles, HandleInfo{Handle: h, State: st, Refs: refs})
	})
	return ins
}

// Close tears the pipeline down: unsubmitted buffers are discarded with
// their handle pins released, pending destroys are flushed, and the
// device is closed. Resources still alive are released through the
// device without individual destroy requests.
func (p *Pipeline) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	bufs := p.inFrame
	p.inFrame = nil
	p.mu.Unlock()

	for _, buf := range bufs {
		buf.Discard()
	}

	// Flush destroys that were waiting on the discarded references.
	rep := p.mgr.ResolveFrame()
	var st device.Stats
	p.vis.Apply(rep, &st)

	p.log.Info("pipeline closed", "destroyed", st.Destroyed)
	return p.dev.Close()
}

func (p *Pipeline) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}
