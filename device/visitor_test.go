package device

import (
	"errors"
	"testing"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/frame"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/lifecycle"
	"github.com/gogpu/forge/registry"
	"github.com/gogpu/forge/resource"
)

// mockDevice records the call sequence the visitor issues.
type mockDevice struct {
	calls     []string
	failDraw  bool
	destroyed []handle.Handle
}

func (m *mockDevice) Name() string { return "mock" }

func (m *mockDevice) BeginFrame() error { m.calls = append(m.calls, "begin"); return nil }

func (m *mockDevice) EndFrame() error { m.calls = append(m.calls, "end"); return nil }

func (m *mockDevice) CreateObject(h handle.Handle, _ resource.Descriptor) error {
	m.calls = append(m.calls, "create "+h.String())
	return nil
}

func (m *mockDevice) UpdateObject(h handle.Handle, _ resource.Update) error {
	m.calls = append(m.calls, "update "+h.String())
	return nil
}

func (m *mockDevice) DestroyObject(h handle.Handle) {
	m.calls = append(m.calls, "destroy "+h.String())
	m.destroyed = append(m.destroyed, h)
}

func (m *mockDevice) ApplyState(command.PipelineState) error {
	m.calls = append(m.calls, "state")
	return nil
}

func (m *mockDevice) Bind(slot uint8, h handle.Handle) error {
	m.calls = append(m.calls, "bind")
	return nil
}

func (m *mockDevice) Draw(command.DrawParams) error {
	if m.failDraw {
		return errors.New("mock: draw rejected")
	}
	m.calls = append(m.calls, "draw")
	return nil
}

func (m *mockDevice) Close() error { return nil }

// rig wires a registry, lifecycle manager, coordinator and visitor
// around a mock device.
type rig struct {
	reg   *registry.Registry
	mgr   *lifecycle.Manager
	coord *frame.Coordinator
	vis   *Visitor
	dev   *mockDevice
}

func newRig(t *testing.T) *rig {
	t.Helper()
	reg := registry.New(0)
	dev := &mockDevice{}
	return &rig{
		reg:   reg,
		mgr:   lifecycle.NewManager(reg, nil),
		coord: frame.NewCoordinator(),
		vis:   NewVisitor(dev, reg, nil),
		dev:   dev,
	}
}

// liveHandles creates and resolves a shader, surface, mesh and texture.
func (r *rig) liveHandles(t *testing.T) (shader, target, mesh, tex handle.Handle) {
	t.Helper()
	var err error
	if shader, err = r.mgr.Create(resource.ShaderDesc{Label: "s", WGSL: "x"}); err != nil {
		t.Fatalf("create shader: %v", err)
	}
	if target, err = r.mgr.Create(resource.SurfaceDesc{Label: "t", Width: 4, Height: 4}); err != nil {
		t.Fatalf("create surface: %v", err)
	}
	if mesh, err = r.mgr.Create(resource.MeshDesc{Label: "m", VertexData: make([]byte, 12), Layout: resource.VertexLayout{ArrayStride: 12}}); err != nil {
		t.Fatalf("create mesh: %v", err)
	}
	if tex, err = r.mgr.Create(resource.TextureDesc{Label: "x", Width: 2, Height: 2}); err != nil {
		t.Fatalf("create texture: %v", err)
	}
	var st Stats
	r.vis.Apply(r.mgr.ResolveFrame(), &st)
	return
}

func (r *rig) drainEntries(t *testing.T, entries ...command.Entry) Stats {
	t.Helper()
	buf := command.NewBuffer(r.reg)
	for _, e := range entries {
		if err := buf.Append(e); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}
	f := r.coord.MergeAndSwap([]*command.Buffer{buf})
	var st Stats
	if err := r.vis.Drain(f, &st); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	return st
}

func TestDrainIssuesSortedEntries(t *testing.T) {
	r := newRig(t)
	shader, target, mesh, _ := r.liveHandles(t)

	st := r.drainEntries(t,
		command.Entry{
			Key:   command.MakeSortKey(1, 0, 0),
			State: command.PipelineState{Shader: shader, Target: target},
			Draw:  command.DrawParams{Mesh: mesh},
		},
		command.Entry{
			Key:   command.MakeSortKey(0, 0, 0),
			State: command.PipelineState{Shader: shader, Target: target},
			Draw:  command.DrawParams{Mesh: mesh},
		},
	)

	if st.DrawCalls != 2 {
		t.Errorf("DrawCalls = %d, want 2", st.DrawCalls)
	}
	// Identical state across both entries: one ApplyState only.
	if st.StateChanges != 1 {
		t.Errorf("StateChanges = %d, want 1 (state cache)", st.StateChanges)
	}
}

func TestDrainStateCacheIsPerFrame(t *testing.T) {
	r := newRig(t)
	shader, target, mesh, _ := r.liveHandles(t)
	e := command.Entry{
		Key:   command.MakeSortKey(0, 0, 0),
		State: command.PipelineState{Shader: shader, Target: target},
		Draw:  command.DrawParams{Mesh: mesh},
	}

	// Devices drop their applied state at the frame boundary, so the
	// same entry must re-issue its state each frame.
	st1 := r.drainEntries(t, e)
	st2 := r.drainEntries(t, e)
	if st1.StateChanges != 1 || st2.StateChanges != 1 {
		t.Errorf("StateChanges = %d then %d, want 1 then 1", st1.StateChanges, st2.StateChanges)
	}
}

func TestDrainBindCache(t *testing.T) {
	r := newRig(t)
	shader, target, mesh, tex := r.liveHandles(t)
	e := command.Entry{
		Key:      command.MakeSortKey(0, 0, 0),
		State:    command.PipelineState{Shader: shader, Target: target},
		Bindings: []command.Binding{{Slot: 0, Handle: tex}},
		Draw:     command.DrawParams{Mesh: mesh},
	}

	st := r.drainEntries(t, e, e)
	if st.BindChanges != 1 {
		t.Errorf("BindChanges = %d, want 1 (second entry binds the same texture)", st.BindChanges)
	}
}

func TestDrainSkipsStaleEntries(t *testing.T) {
	r := newRig(t)
	shader, target, mesh, tex := r.liveHandles(t)

	buf := command.NewBuffer(r.reg)
	err := buf.Append(command.Entry{
		Key:      command.MakeSortKey(0, 0, 0),
		State:    command.PipelineState{Shader: shader, Target: target},
		Bindings: []command.Binding{{Slot: 0, Handle: tex}},
		Draw:     command.DrawParams{Mesh: mesh},
	})
	if err != nil {
		t.Fatalf("Append: %v", err)
	}

	// The texture dies between submission and drain. Possible when a
	// destroy resolves while an already-merged frame still names it:
	// the drain must skip, not crash.
	r.reg.Release(tex)
	if err := r.reg.Retire(tex); err != nil {
		t.Fatalf("Retire: %v", err)
	}

	f := r.coord.MergeAndSwap([]*command.Buffer{buf})
	var st Stats
	if err := r.vis.Drain(f, &st); err != nil {
		t.Fatalf("Drain: %v", err)
	}
	if st.Skipped != 1 || st.DrawCalls != 0 {
		t.Errorf("Skipped = %d, DrawCalls = %d; want 1 and 0", st.Skipped, st.DrawCalls)
	}
	// Pins for the surviving handles must still be released.
	for _, h := range []handle.Handle{shader, target, mesh} {
		if r.reg.Refs(h) != 0 {
			t.Errorf("handle %s still pinned after skipped drain", h)
		}
	}
}

func TestDrainReleasesPinsOnDeviceError(t *testing.T) {
	r := newRig(t)
	shader, target, mesh, _ := r.liveHandles(t)
	r.dev.failDraw = true

	st := r.drainEntries(t, command.Entry{
		Key:   command.MakeSortKey(0, 0, 0),
		State: command.PipelineState{Shader: shader, Target: target},
		Draw:  command.DrawParams{Mesh: mesh},
	})
	if st.Skipped != 1 {
		t.Errorf("Skipped = %d, want 1", st.Skipped)
	}
	if r.reg.Refs(mesh) != 0 {
		t.Error("pins must be released even when the device rejects the draw")
	}
}

func TestApplyOrderCreatesBeforeDestroys(t *testing.T) {
	r := newRig(t)
	h, err := r.mgr.Create(resource.TextureDesc{Label: "a", Width: 2, Height: 2})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	r.mgr.Destroy(h)

	var st Stats
	r.vis.Apply(r.mgr.ResolveFrame(), &st)

	if st.Created != 1 || st.Destroyed != 1 {
		t.Fatalf("Created = %d, Destroyed = %d; want 1 and 1", st.Created, st.Destroyed)
	}
	want := []string{"create " + h.String(), "destroy " + h.String()}
	if len(r.dev.calls) != 2 || r.dev.calls[0] != want[0] || r.dev.calls[1] != want[1] {
		t.Errorf("calls = %v, want %v", r.dev.calls, want)
	}
}

// frameScopedDevice models a backend that loses its applied state at
// every frame boundary, the way command-encoder devices do: drawing
// before ApplyState is an error.
type frameScopedDevice struct {
	mockDevice
	armed bool
}

func (d *frameScopedDevice) BeginFrame() error {
	d.armed = false
	return d.mockDevice.BeginFrame()
}

func (d *frameScopedDevice) ApplyState(st command.PipelineState) error {
	d.armed = true
	return d.mockDevice.ApplyState(st)
}

func (d *frameScopedDevice) Draw(p command.DrawParams) error {
	if !d.armed {
		return errors.New("mock: draw without pipeline state")
	}
	return d.mockDevice.Draw(p)
}

func TestDrainSteadySceneDrawsEveryFrame(t *testing.T) {
	reg := registry.New(0)
	dev := &frameScopedDevice{}
	r := &rig{
		reg:   reg,
		mgr:   lifecycle.NewManager(reg, nil),
		coord: frame.NewCoordinator(),
		vis:   NewVisitor(dev, reg, nil),
		dev:   &dev.mockDevice,
	}
	shader, target, mesh, _ := r.liveHandles(t)
	e := command.Entry{
		Key:   command.MakeSortKey(0, 0, 0),
		State: command.PipelineState{Shader: shader, Target: target},
		Draw:  command.DrawParams{Mesh: mesh},
	}

	// An unchanged scene must keep drawing on a device that enforces the
	// per-frame envelope, not just on its first frame.
	for i := 0; i < 3; i++ {
		st := r.drainEntries(t, e)
		if st.DrawCalls != 1 || st.StateChanges != 1 || st.Skipped != 0 {
			t.Fatalf("frame %d: DrawCalls=%d StateChanges=%d Skipped=%d, want 1, 1, 0",
				i+1, st.DrawCalls, st.StateChanges, st.Skipped)
		}
	}
}

func TestRegistryFactorySelection(t *testing.T) {
	Register("mock-a", func() (Device, error) { return &mockDevice{}, nil })
	defer Unregister("mock-a")

	d, err := Get("mock-a")
	if err != nil || d == nil {
		t.Fatalf("Get = %v, %v", d, err)
	}
	if _, err := Get("absent"); !errors.Is(err, ErrNoDevice) {
		t.Errorf("Get(absent) = %v, want ErrNoDevice", err)
	}
}
