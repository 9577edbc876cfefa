package forge

import (
	"errors"
	"image"
	"sync"
	"testing"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/device/headless"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/lifecycle"
	"github.com/gogpu/forge/registry"
	"github.com/gogpu/forge/resource"
)

// scene is a pipeline over a headless device plus the handles a simple
// frame needs.
type scene struct {
	p      *Pipeline
	dev    *headless.Device
	shader handle.Handle
	target handle.Handle
	mesh   handle.Handle
}

func newScene(t *testing.T, opts ...Option) *scene {
	t.Helper()
	dev := headless.New()
	p, err := New(append(opts, WithDevice(dev))...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	s := &scene{p: p, dev: dev}
	if s.shader, err = p.CreateShader(resource.ShaderDesc{Label: "s", WGSL: "x"}); err != nil {
		t.Fatalf("CreateShader: %v", err)
	}
	if s.target, err = p.CreateSurface(resource.SurfaceDesc{Label: "t", Width: 8, Height: 8}); err != nil {
		t.Fatalf("CreateSurface: %v", err)
	}
	s.mesh, err = p.CreateMesh(resource.MeshDesc{
		Label:      "m",
		VertexData: make([]byte, 48),
		Layout:     resource.VertexLayout{ArrayStride: 16},
	})
	if err != nil {
		t.Fatalf("CreateMesh: %v", err)
	}
	return s
}

func (s *scene) entry(layer uint8) command.Entry {
	return command.Entry{
		Key:   command.MakeSortKey(layer, 0, 0),
		State: command.PipelineState{Shader: s.shader, Target: s.target},
		Draw:  command.DrawParams{Mesh: s.mesh},
	}
}

func TestFrameRoundTrip(t *testing.T) {
	s := newScene(t)

	// Handles from this frame's creates are already submittable: the
	// resolve step runs before the drain in the same Advance.
	if err := s.p.Submit(s.entry(0)); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	st, err := s.p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}

	if st.Device.Created != 3 || st.Device.DrawCalls != 1 {
		t.Errorf("stats = %+v, want 3 creates and 1 draw", st.Device)
	}
	if st.LiveBytes <= 0 {
		t.Errorf("LiveBytes = %d, want > 0", st.LiveBytes)
	}
	c := s.dev.Counters()
	if c.Frames != 1 || c.Creates != 3 || c.Draws != 1 {
		t.Errorf("device counters = %+v", c)
	}
}

func TestDestroyWhileReferencedCarriesForward(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// The frame pins the mesh, so the destroy submitted in the same
	// frame cannot resolve yet.
	buf := s.p.BeginFrame()
	if err := buf.Append(s.entry(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.p.Destroy(s.mesh)
	s.p.EndFrame(buf)

	st, err := s.p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.Requeued != 1 || st.Device.Destroyed != 0 {
		t.Fatalf("stats = %+v, want the destroy requeued", st)
	}
	if !s.dev.Has(s.mesh) {
		t.Fatal("mesh destroyed while a frame referenced it")
	}

	// The drain released the pins, so the carried-over destroy lands
	// on the next boundary.
	st, err = s.p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.Device.Destroyed != 1 || s.dev.Has(s.mesh) {
		t.Errorf("destroy did not land: stats %+v, has=%v", st, s.dev.Has(s.mesh))
	}
	if err := s.p.Submit(s.entry(0)); !errors.Is(err, command.ErrStaleEntry) {
		t.Errorf("Submit with destroyed mesh = %v, want ErrStaleEntry", err)
	}
}

func TestAdvanceWithNoWorkIsANoOp(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	for i := 0; i < 3; i++ {
		st, err := s.p.Advance()
		if err != nil {
			t.Fatalf("empty Advance %d: %v", i, err)
		}
		if st.Device.Entries != 0 || st.Device.DrawCalls != 0 {
			t.Errorf("empty Advance %d produced work: %+v", i, st.Device)
		}
	}
	if c := s.dev.Counters(); c.Frames != 4 {
		t.Errorf("Frames = %d, want 4", c.Frames)
	}
}

func TestConcurrentProducers(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	const producers = 8
	const perProducer = 25
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(layer uint8) {
			defer wg.Done()
			buf := s.p.BeginFrame()
			for j := 0; j < perProducer; j++ {
				if err := buf.Append(s.entry(layer)); err != nil {
					t.Errorf("Append: %v", err)
					break
				}
			}
			s.p.EndFrame(buf)
		}(uint8(i))
	}
	wg.Wait()

	st, err := s.p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.Device.DrawCalls != producers*perProducer {
		t.Errorf("DrawCalls = %d, want %d", st.Device.DrawCalls, producers*perProducer)
	}
	// Identical state everywhere: the sorted drain applies it once.
	if st.Device.StateChanges != 1 {
		t.Errorf("StateChanges = %d, want 1", st.Device.StateChanges)
	}
}

func TestUpdatesResolveAtAdvance(t *testing.T) {
	s := newScene(t)
	tex, err := s.p.CreateTexture(resource.TextureDesc{Label: "x", Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("CreateTexture: %v", err)
	}
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	err = s.p.UpdateTexture(tex, resource.TextureUpdate{
		Region: image.Rect(0, 0, 2, 2),
		Pixels: make([]byte, 2*2*4),
	})
	if err != nil {
		t.Fatalf("UpdateTexture: %v", err)
	}
	if err := s.p.UpdateSurface(s.target, resource.SurfaceUpdate{
		Viewport: &resource.Rect{Width: 4, Height: 4},
	}); err != nil {
		t.Fatalf("UpdateSurface: %v", err)
	}

	st, err := s.p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.Device.Updated != 2 {
		t.Errorf("Updated = %d, want 2", st.Device.Updated)
	}
}

func TestInspect(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	ins := s.p.Inspect()
	if ins.Live[handle.KindShader] != 1 || ins.Live[handle.KindSurface] != 1 || ins.Live[handle.KindMesh] != 1 {
		t.Errorf("Live = %v", ins.Live)
	}
	if ins.LiveBytes <= 0 {
		t.Errorf("LiveBytes = %d, want > 0", ins.LiveBytes)
	}
	for _, hi := range ins.Handles {
		if hi.State != registry.StateLive || hi.Refs != 0 {
			t.Errorf("slot %s: state %v refs %d", hi.Handle, hi.State, hi.Refs)
		}
	}
}

func TestEvictionReclaimsColdTextures(t *testing.T) {
	dev := headless.New()
	p, err := New(WithDevice(dev), WithEviction(lifecycle.NewLRU(128)))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { p.Close() })

	// Three 64-byte textures against a 128-byte budget.
	handles := make([]handle.Handle, 3)
	for i := range handles {
		if handles[i], err = p.CreateTexture(resource.TextureDesc{Width: 4, Height: 4}); err != nil {
			t.Fatalf("CreateTexture: %v", err)
		}
	}
	if _, err := p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}
	// Eviction proposals land on the following boundary.
	st, err := p.Advance()
	if err != nil {
		t.Fatalf("Advance: %v", err)
	}
	if st.Device.Destroyed != 1 {
		t.Errorf("Destroyed = %d, want the oldest texture evicted", st.Device.Destroyed)
	}
	if st.LiveBytes != 128 {
		t.Errorf("LiveBytes = %d, want 128", st.LiveBytes)
	}
	if dev.Has(handles[0]) || !dev.Has(handles[1]) || !dev.Has(handles[2]) {
		t.Error("eviction must reclaim in least-recently-used order")
	}
}

func TestCloseFlushesAndRejects(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.Advance(); err != nil {
		t.Fatalf("Advance: %v", err)
	}

	// An abandoned in-frame buffer must not wedge the shutdown: Close
	// discards it and releases its pins.
	buf := s.p.BeginFrame()
	if err := buf.Append(s.entry(0)); err != nil {
		t.Fatalf("Append: %v", err)
	}
	s.p.EndFrame(buf)
	s.p.Destroy(s.mesh)

	if err := s.p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.p.Close(); err != nil {
		t.Errorf("second Close = %v, want nil", err)
	}

	if _, err := s.p.CreateTexture(resource.TextureDesc{Width: 1, Height: 1}); !errors.Is(err, ErrClosed) {
		t.Errorf("CreateTexture after Close = %v, want ErrClosed", err)
	}
	if err := s.p.Submit(s.entry(0)); !errors.Is(err, ErrClosed) {
		t.Errorf("Submit after Close = %v, want ErrClosed", err)
	}
	if _, err := s.p.Advance(); !errors.Is(err, ErrClosed) {
		t.Errorf("Advance after Close = %v, want ErrClosed", err)
	}
	if s.p.BeginFrame() != nil {
		t.Error("BeginFrame after Close must return nil")
	}
}

func TestCreateValidationIsEager(t *testing.T) {
	s := newScene(t)
	if _, err := s.p.CreateTexture(resource.TextureDesc{Width: 0, Height: 4}); !errors.Is(err, resource.ErrBadDimensions) {
		t.Errorf("CreateTexture(zero width) = %v, want ErrBadDimensions", err)
	}
	if _, err := s.p.CreateShader(resource.ShaderDesc{}); !errors.Is(err, resource.ErrEmptyDescriptor) {
		t.Errorf("CreateShader(empty) = %v, want ErrEmptyDescriptor", err)
	}
}
