// Package lifecycle implements the deferred resource lifecycle queue.
//
// Producers describe intent — create, update, destroy — from any
// goroutine; a single owner applies the accumulated requests against
// the registry once per frame, at the swap boundary. Submission goes
// through sharded staging lists so concurrent producers contend only on
// a shard mutex held for one append, never on a lock spanning the
// frame. Global submission order is reconstructed from per-request
// sequence numbers when the shards are drained.
package lifecycle

import (
	"cmp"
	"errors"
	"log/slog"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/internal/noplog"
	"github.com/gogpu/forge/registry"
	"github.com/gogpu/forge/resource"
)

// ErrKindMismatch is returned when an update's kind does not match the
// target handle's kind.
var ErrKindMismatch = errors.New("lifecycle: update kind does not match handle")

// Op identifies a lifecycle request operation.
type Op uint8

const (
	// OpCreate allocates a resource.
	OpCreate Op = iota
	// OpUpdate modifies an existing resource.
	OpUpdate
	// OpDestroy releases a resource once nothing references it.
	OpDestroy
)

var opNames = [...]string{
	OpCreate:  "create",
	OpUpdate:  "update",
	OpDestroy: "destroy",
}

// String returns the string representation of an Op.
func (o Op) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "unknown"
}

// Request is one pending lifecycle operation.
type Request struct {
	seq    uint64
	Op     Op
	Handle handle.Handle
	Desc   resource.Descriptor
	Update resource.Update
}

// Event records a request applied during frame resolution, for the
// device binding and for diagnostics.
type Event struct {
	Handle handle.Handle
	Desc   resource.Descriptor
	Update resource.Update
}

// Report summarizes one frame resolution.
type Report struct {
	// Created lists handles that became Live this frame, in submission
	// order.
	Created []Event

	// Updated lists resources whose payloads changed this frame.
	Updated []Event

	// Destroyed lists handles retired this frame. Their generations are
	// stale from this point on.
	Destroyed []handle.Handle

	// Requeued counts destroy requests deferred to the next frame
	// because draw work still referenced the target.
	Requeued int
}

// numShards spreads producer submissions across independent mutexes.
// Power of 2 for cheap modulo.
const numShards = 8

type shard struct {
	mu   sync.Mutex
	reqs []Request
}

// Manager owns the deferred lifecycle queue. Submission methods are
// safe for concurrent use; ResolveFrame must be called by exactly one
// goroutine, strictly between the frame barrier and the drain of the
// corresponding frame.
type Manager struct {
	reg    *registry.Registry
	log    *slog.Logger
	shards [numShards]shard
	seq    atomic.Uint64

	// retry holds destroys deferred on a nonzero refcount plus eviction
	// proposals. Touched only by ResolveFrame.
	retry []Request

	evict     Policy
	liveBytes int64
}

// NewManager creates a manager applying requests against reg. log may
// be nil for silent operation.
func NewManager(reg *registry.Registry, log *slog.Logger) *Manager {
	if log == nil {
		log = noplog.New()
	}
	return &Manager{reg: reg, log: log}
}

// SetEviction installs an eviction policy. Pass nil to disable
// proactive eviction (the default).
func (m *Manager) SetEviction(p Policy) { m.evict = p }

// Create allocates a Pending handle immediately and defers the backend
// allocation to the next frame resolution. The handle is valid for
// draw submission right away.
func (m *Manager) Create(desc resource.Descriptor) (handle.Handle, error) {
	if err := desc.Validate(); err != nil {
		return handle.Nil, err
	}
	h, err := m.reg.Allocate(desc.Kind(), desc)
	if err != nil {
		return handle.Nil, err
	}
	m.enqueue(Request{Op: OpCreate, Handle: h, Desc: desc})
	return h, nil
}

// Update defers a partial modification of an existing resource. Within
// one frame, an Update submitted after a Create of the same target is
// applied after the Create resolves.
func (m *Manager) Update(h handle.Handle, upd resource.Update) error {
	if upd.Kind() != h.Kind() {
		return ErrKindMismatch
	}
	if err := upd.Validate(); err != nil {
		return err
	}
	if _, ok := m.reg.State(h); !ok {
		return registry.ErrStaleHandle
	}
	m.enqueue(Request{Op: OpUpdate, Handle: h, Update: upd})
	return nil
}

// Destroy defers destruction of h. The request is honored at the first
// frame resolution where nothing references the resource; until then it
// is re-queued, not failed. Destroying a stale handle is a no-op.
func (m *Manager) Destroy(h handle.Handle) {
	m.enqueue(Request{Op: OpDestroy, Handle: h})
}

func (m *Manager) enqueue(req Request) {
	req.seq = m.seq.Add(1)
	sh := &m.shards[req.seq&(numShards-1)]
	sh.mu.Lock()
	sh.reqs = append(sh.reqs, req)
	sh.mu.Unlock()
}

// ResolveFrame drains the pending requests in submission order and
// applies them against the registry. It must run after all producers
// have finished the frame and before the device visitor drains the
// corresponding back buffer.
func (m *Manager) ResolveFrame() Report {
	pending := m.drain()

	// Deferred destroys from earlier frames run first; they are older
	// than anything submitted this frame.
	reqs := m.retry
	m.retry = nil
	reqs = append(reqs, pending...)

	var rep Report
	for _, req := range reqs {
		switch req.Op {
		case OpCreate:
			m.resolveCreate(req, &rep)
		case OpUpdate:
			m.resolveUpdate(req, &rep)
		case OpDestroy:
			m.resolveDestroy(req, &rep)
		}
	}

	m.propose()
	return rep
}

// drain empties all shards and restores global submission order.
func (m *Manager) drain() []Request {
	var reqs []Request
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		reqs = append(reqs, sh.reqs...)
		sh.reqs = sh.reqs[:0]
		sh.mu.Unlock()
	}
	slices.SortFunc(reqs, func(a, b Request) int {
		return cmp.Compare(a.seq, b.seq)
	})
	return reqs
}

func (m *Manager) resolveCreate(req Request, rep *Report) {
	if err := m.reg.MarkLive(req.Handle, nil); err != nil {
		m.log.Warn("create could not resolve", "handle", req.Handle.String(), "err", err)
		return
	}
	m.liveBytes += int64(req.Desc.SizeBytes())
	if m.evict != nil {
		m.evict.Touch(req.Handle, req.Desc.SizeBytes())
	}
	rep.Created = append(rep.Created, Event{Handle: req.Handle, Desc: req.Desc})
}

func (m *Manager) resolveUpdate(req Request, rep *Report) {
	desc, ok := m.reg.Resolve(req.Handle)
	if !ok {
		m.log.Warn("update target gone", "handle", req.Handle.String())
		return
	}

	// Surface state lives entirely in the registry descriptor; other
	// kinds keep their descriptor and forward the payload to the device.
	if su, isSurface := req.Update.(resource.SurfaceUpdate); isSurface {
		sd := desc.(resource.SurfaceDesc)
		if su.Viewport != nil {
			sd.Viewport = *su.Viewport
		}
		if su.Scissor != nil {
			sd.Scissor = su.Scissor
		}
		if su.ClearScissor {
			sd.Scissor = nil
		}
		if err := m.reg.SetDescriptor(req.Handle, sd); err != nil {
			m.log.Warn("surface update could not resolve", "handle", req.Handle.String(), "err", err)
			return
		}
	}

	if m.evict != nil {
		m.evict.Touch(req.Handle, desc.SizeBytes())
	}
	rep.Updated = append(rep.Updated, Event{Handle: req.Handle, Update: req.Update})
}

func (m *Manager) resolveDestroy(req Request, rep *Report) {
	desc, live := m.reg.Resolve(req.Handle)

	err := m.reg.Retire(req.Handle)
	switch {
	case err == nil:
		if live {
			m.liveBytes -= int64(desc.SizeBytes())
		}
		if m.evict != nil {
			m.evict.Forget(req.Handle)
		}
		rep.Destroyed = append(rep.Destroyed, req.Handle)
	case errors.Is(err, registry.ErrBusy):
		// Outstanding draw work still references the resource. Soft
		// condition: try again next frame.
		m.retry = append(m.retry, req)
		rep.Requeued++
	case errors.Is(err, registry.ErrStaleHandle):
		m.log.Debug("destroy of stale handle ignored", "handle", req.Handle.String())
	default:
		m.log.Warn("destroy could not resolve", "handle", req.Handle.String(), "err", err)
	}
}

// propose asks the eviction policy for zero-refcount victims once the
// live footprint exceeds its budget, and queues them as ordinary
// destroys for the next frame.
func (m *Manager) propose() {
	if m.evict == nil {
		return
	}
	for _, h := range m.evict.Evict(m.liveBytes) {
		if m.reg.Refs(h) != 0 {
			// Evict dropped the victim from its working set; put it back
			// so a resource that is drawn every frame but never updated
			// stays a candidate once its pins drain.
			if desc, ok := m.reg.Resolve(h); ok {
				m.evict.Touch(h, desc.SizeBytes())
			}
			continue
		}
		m.retry = append(m.retry, Request{Op: OpDestroy, Handle: h})
	}
}

// LiveBytes returns the approximate byte footprint of live resources.
func (m *Manager) LiveBytes() int64 { return m.liveBytes }
