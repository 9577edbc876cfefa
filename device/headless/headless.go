// Package headless provides a device backend that executes the full
// frame protocol without touching any GPU. It tracks resources and
// counts calls, which makes it the backend for tests, CI, and servers
// that build frames they never present.
package headless

import (
	"errors"
	"sync"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/device"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/resource"
)

// ErrUnknownObject is returned when a call references a handle the
// device never saw a CreateObject for.
var ErrUnknownObject = errors.New("headless: unknown object")

// init registers the headless backend on package import.
func init() {
	device.Register(device.NameHeadless, func() (device.Device, error) {
		return New(), nil
	})
}

// Counters is a snapshot of the calls a headless device has seen.
type Counters struct {
	Frames    int
	Creates   int
	Updates   int
	Destroys  int
	States    int
	Binds     int
	Draws     int
	Instances int
}

// Device is the headless backend. Frame-protocol methods run on the
// render goroutine; Counters and Objects may be read from tests on
// other goroutines.
type Device struct {
	mu       sync.Mutex
	objects  map[handle.Handle]resource.Descriptor
	counters Counters
	inFrame  bool
}

// New creates a headless device.
func New() *Device {
	return &Device{objects: make(map[handle.Handle]resource.Descriptor)}
}

// Name implements device.Device.
func (d *Device) Name() string { return device.NameHeadless }

// BeginFrame implements device.Device.
func (d *Device) BeginFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFrame = true
	return nil
}

// EndFrame implements device.Device.
func (d *Device) EndFrame() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.inFrame = false
	d.counters.Frames++
	return nil
}

// CreateObject implements device.Device.
func (d *Device) CreateObject(h handle.Handle, desc resource.Descriptor) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.objects[h] = desc
	d.counters.Creates++
	return nil
}

// UpdateObject implements device.Device.
func (d *Device) UpdateObject(h handle.Handle, upd resource.Update) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[h]; !ok {
		return ErrUnknownObject
	}
	d.counters.Updates++
	return nil
}

// DestroyObject implements device.Device.
func (d *Device) DestroyObject(h handle.Handle) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[h]; ok {
		delete(d.objects, h)
		d.counters.Destroys++
	}
}

// ApplyState implements device.Device.
func (d *Device) ApplyState(st command.PipelineState) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[st.Shader]; !ok {
		return ErrUnknownObject
	}
	if _, ok := d.objects[st.Target]; !ok {
		return ErrUnknownObject
	}
	d.counters.States++
	return nil
}

// Bind implements device.Device.
func (d *Device) Bind(slot uint8, h handle.Handle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[h]; !ok {
		return ErrUnknownObject
	}
	d.counters.Binds++
	return nil
}

// Draw implements device.Device.
func (d *Device) Draw(p command.DrawParams) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.objects[p.Mesh]; !ok {
		return ErrUnknownObject
	}
	d.counters.Draws++
	n := int(p.InstanceCount)
	if n == 0 {
		n = 1
	}
	d.counters.Instances += n
	return nil
}

// Close implements device.Device.
func (d *Device) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.objects)
	return nil
}

// Counters returns a snapshot of the call counters.
func (d *Device) Counters() Counters {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.counters
}

// ObjectCount returns the number of objects the device holds.
func (d *Device) ObjectCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.objects)
}

// Has reports whether the device holds an object for h.
func (d *Device) Has(h handle.Handle) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.objects[h]
	return ok
}
