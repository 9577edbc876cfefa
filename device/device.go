// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package device defines the backend contract and the single-threaded
// visitor that translates resolved frames into backend calls.
package device

import (
	"errors"
	"sync"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/resource"
)

// ErrNoDevice is returned when no device backend is registered.
var ErrNoDevice = errors.New("device: no backend available")

// Device is implemented by rendering backends. All methods are invoked
// from a single goroutine; implementations need no internal locking for
// the call sequence itself.
//
// Resource calls (CreateObject, UpdateObject, DestroyObject) arrive
// between frames. A frame is BeginFrame, then per-entry ApplyState /
// Bind / Draw sequences, then EndFrame.
type Device interface {
	// Name identifies the backend ("gpu", "headless").
	Name() string

	// BeginFrame prepares the backend for a frame's worth of calls.
	BeginFrame() error

	// EndFrame submits accumulated work and completes the frame.
	EndFrame() error

	// CreateObject realizes the backend resource for h.
	CreateObject(h handle.Handle, desc resource.Descriptor) error

	// UpdateObject applies a partial modification to an existing resource.
	UpdateObject(h handle.Handle, upd resource.Update) error

	// DestroyObject releases the backend resource for h. Unknown handles
	// are ignored.
	DestroyObject(h handle.Handle)

	// ApplyState makes st the active pipeline state. The visitor only
	// calls this when the state actually changes.
	ApplyState(st command.PipelineState) error

	// Bind attaches a resource to a bind slot for subsequent draws.
	Bind(slot uint8, h handle.Handle) error

	// Draw issues one draw call with the active state and bindings.
	Draw(p command.DrawParams) error

	// Close releases everything the backend still holds.
	Close() error
}

// Factory creates a device instance. Returning an error means the
// backend is not usable in this environment.
type Factory func() (Device, error)

// Backend names, in selection priority order.
const (
	NameGPU      = "gpu"
	NameHeadless = "headless"
)

var (
	registryMu sync.RWMutex
	factories  = make(map[string]Factory)
	// First available wins. GPU over headless.
	priority = []string{NameGPU, NameHeadless}
)

// Register registers a device factory under name, typically from an
// init function in a backend package. A factory registered under an
// existing name replaces it.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	factories[name] = f
}

// Unregister removes a factory. Useful for testing.
func Unregister(name string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, name)
}

// Available returns the registered backend names.
func Available() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()

	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	return names
}

// Get instantiates the backend registered under name.
func Get(name string) (Device, error) {
	registryMu.RLock()
	f, ok := factories[name]
	registryMu.RUnlock()
	if !ok {
		return nil, ErrNoDevice
	}
	return f()
}

// Default instantiates the best available backend in priority order,
// skipping backends whose factory fails.
func Default() (Device, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()

	for _, name := range priority {
		if f, ok := factories[name]; ok {
			if d, err := f(); err == nil {
				return d, nil
			}
		}
	}
	for _, f := range factories {
		if d, err := f(); err == nil {
			return d, nil
		}
	}
	return nil, ErrNoDevice
}
