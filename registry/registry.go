// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

// Package registry implements the generational slot table behind
// resource handles.
//
// Every resource is addressed through a handle.Handle; the registry is
// the single authorization point that turns a handle back into resource
// metadata. Slots move Free -> Pending -> Live -> Zombie within one
// lifetime, and a slot's generation changes only when a zombie slot is
// recycled, so a stale handle can never resolve against a reused slot.
//
// Concurrency: slot state transitions are driven by a single writer
// (the lifecycle manager, at frame boundaries) under the registry
// mutex. Reference counts are atomics so producers and the device
// visitor adjust them without taking the write lock.
package registry

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/resource"
)

// Registry errors.
var (
	// ErrOutOfSlots is returned by Allocate when a configured capacity
	// ceiling is exhausted. Retrying after a reclaiming frame may succeed.
	ErrOutOfSlots = errors.New("registry: out of slots")

	// ErrStaleHandle is returned when a handle's generation or kind does
	// not match its slot. Staleness is an expected outcome of deferred
	// destruction, not a fault.
	ErrStaleHandle = errors.New("registry: stale handle")

	// ErrBadState is returned when a transition is requested from the
	// wrong slot state.
	ErrBadState = errors.New("registry: unexpected slot state")

	// ErrBusy is returned by Retire while outstanding draw work still
	// references the slot.
	ErrBusy = errors.New("registry: refcount nonzero")
)

// State is the liveness state of a registry slot.
type State uint8

const (
	// StateFree marks a slot available for allocation.
	StateFree State = iota

	// StatePending marks a slot whose resource creation is deferred to
	// the next frame resolution. Pending handles may already be bound
	// by draw entries.
	StatePending

	// StateLive marks a slot whose backend resource exists.
	StateLive

	// StateZombie marks a destroyed slot awaiting recycling.
	StateZombie
)

var stateNames = [...]string{
	StateFree:    "free",
	StatePending: "pending",
	StateLive:    "live",
	StateZombie:  "zombie",
}

// String returns the string representation of a State.
func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// slot holds one resource's metadata and liveness state. Slots are
// heap-allocated individually so growing the table never moves them
// under a concurrent reader.
type slot struct {
	generation uint32
	state      State
	kind       handle.Kind
	refs       atomic.Int32
	desc       resource.Descriptor
}

// Registry is the generational handle allocator. The zero value is not
// usable; construct with New.
type Registry struct {
	mu       sync.RWMutex
	slots    []*slot
	zombies  map[handle.Kind][]uint32
	live     map[handle.Kind]int
	capacity int
}

// New creates a registry. capacity limits the total number of slots;
// zero or negative means dynamically growable.
func New(capacity int) *Registry {
	return &Registry{
		zombies:  make(map[handle.Kind][]uint32),
		live:     make(map[handle.Kind]int),
		capacity: capacity,
	}
}

// Allocate reserves a slot in Pending state and returns a handle whose
// generation matches the slot. Zombie slots of the same kind are
// recycled first, incrementing their generation so handles from the
// previous lifetime go stale.
func (r *Registry) Allocate(kind handle.Kind, desc resource.Descriptor) (handle.Handle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if frees := r.zombies[kind]; len(frees) > 0 {
		index := frees[len(frees)-1]
		r.zombies[kind] = frees[:len(frees)-1]

		s := r.slots[index]
		s.generation++
		s.state = StatePending
		s.desc = desc
		s.refs.Store(0)
		return handle.New(index, s.generation, kind), nil
	}

	if r.capacity > 0 && len(r.slots) >= r.capacity {
		return handle.Nil, ErrOutOfSlots
	}

	s := &slot{generation: 1, state: StatePending, kind: kind, desc: desc}
	r.slots = append(r.slots, s)
	return handle.New(uint32(len(r.slots)-1), 1, kind), nil
}

// lookup returns the slot for h, or nil when the handle is stale.
// Callers must hold at least the read lock.
func (r *Registry) lookup(h handle.Handle) *slot {
	index := int(h.Index())
	if index >= len(r.slots) {
		return nil
	}
	s := r.slots[index]
	if s.generation != h.Generation() || s.kind != h.Kind() {
		return nil
	}
	return s
}

// Resolve returns the live metadata for h. The second result is false
// when the handle is stale or the slot is not Live; this is the normal
// outcome of resolving a handle after deferred destruction.
func (r *Registry) Resolve(h handle.Handle) (resource.Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookup(h)
	if s == nil || s.state != StateLive {
		return nil, false
	}
	return s.desc, true
}

// State returns the generation-checked slot state for h.
func (r *Registry) State(h handle.Handle) (State, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookup(h)
	if s == nil {
		return StateFree, false
	}
	return s.state, true
}

// MarkLive transitions a Pending slot to Live, optionally replacing its
// descriptor. Only the lifecycle manager calls this, during frame
// resolution.
func (r *Registry) MarkLive(h handle.Handle, desc resource.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.lookup(h)
	if s == nil {
		return ErrStaleHandle
	}
	if s.state != StatePending {
		return ErrBadState
	}
	s.state = StateLive
	if desc != nil {
		s.desc = desc
	}
	r.live[h.Kind()]++
	return nil
}

// SetDescriptor replaces the metadata of a Pending or Live slot. Used
// when an Update request resolves.
func (r *Registry) SetDescriptor(h handle.Handle, desc resource.Descriptor) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.lookup(h)
	if s == nil {
		return ErrStaleHandle
	}
	if s.state != StatePending && s.state != StateLive {
		return ErrBadState
	}
	s.desc = desc
	return nil
}

// Retire transitions a Live (or still Pending) slot to Zombie. It fails
// with ErrBusy while unconsumed draw work references the slot; the
// caller re-queues the destroy for the next frame. The zombie slot is
// recycled lazily by the next Allocate of the same kind.
func (r *Registry) Retire(h handle.Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := r.lookup(h)
	if s == nil {
		return ErrStaleHandle
	}
	if s.state != StateLive && s.state != StatePending {
		return ErrBadState
	}
	if s.refs.Load() != 0 {
		return ErrBusy
	}
	if s.state == StateLive {
		r.live[h.Kind()]--
	}
	s.state = StateZombie
	s.desc = nil
	r.zombies[h.Kind()] = append(r.zombies[h.Kind()], h.Index())
	return nil
}

// AddRef increments the reference count of a Pending or Live slot. It
// reports whether the handle was valid; appending an entry that
// references a stale handle is rejected by the command buffer before
// reaching here.
func (r *Registry) AddRef(h handle.Handle) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookup(h)
	if s == nil || (s.state != StatePending && s.state != StateLive) {
		return false
	}
	s.refs.Add(1)
	return true
}

// Release decrements the reference count after the entry referencing h
// has been retired. Releasing a stale handle is a no-op.
func (r *Registry) Release(h handle.Handle) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookup(h)
	if s == nil {
		return
	}
	if n := s.refs.Add(-1); n < 0 {
		// Unbalanced release; clamp so a later destroy is not blocked
		// forever on a negative count.
		s.refs.Store(0)
	}
}

// Refs returns the current reference count for h, or zero for a stale
// handle.
func (r *Registry) Refs(h handle.Handle) int32 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s := r.lookup(h)
	if s == nil {
		return 0
	}
	return s.refs.Load()
}

// LiveCount returns the number of Live slots of the given kind.
func (r *Registry) LiveCount(kind handle.Kind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.live[kind]
}

// ForEach calls fn for every non-free slot, minting the slot's current
// handle. Used for diagnostics snapshots; fn must not call back into
// the registry.
func (r *Registry) ForEach(fn func(h handle.Handle, state State, refs int32, desc resource.Descriptor)) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for i, s := range r.slots {
		if s.state == StateFree {
			continue
		}
		fn(handle.New(uint32(i), s.generation, s.kind), s.state, s.refs.Load(), s.desc)
	}
}
