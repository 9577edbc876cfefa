package device

import (
	"log/slog"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/frame"
	"github.com/gogpu/forge/handle"
	"github.com/gogpu/forge/internal/noplog"
	"github.com/gogpu/forge/lifecycle"
	"github.com/gogpu/forge/registry"
)

// Stats summarizes one drained frame.
type Stats struct {
	// Entries is the number of entries in the drained frame.
	Entries int

	// DrawCalls is the number of draws issued to the device.
	DrawCalls int

	// StateChanges counts ApplyState calls, i.e. entries whose pipeline
	// state differed from the previous entry's.
	StateChanges int

	// BindChanges counts Bind calls after slot-level redundancy
	// filtering.
	BindChanges int

	// Skipped counts entries dropped because a handle went stale or the
	// device rejected a call. Skipping is a soft integrity condition,
	// never a crash.
	Skipped int

	// Created, Updated and Destroyed count resource operations applied
	// this frame.
	Created   int
	Updated   int
	Destroyed int
}

// Visitor walks resolved lifecycle reports and merged frames, issuing
// backend calls in order. It is single-threaded: exactly one goroutine
// may use a Visitor, after frame resolution and before the next frame's
// producers run.
//
// The visitor caches the last applied pipeline state and the last
// handle bound to each slot, so back-to-back entries sorted next to
// each other by key skip redundant device calls. The caches cover one
// drained frame: devices start every frame with nothing applied, so a
// steady scene re-issues its state once per frame.
type Visitor struct {
	dev Device
	reg *registry.Registry
	log *slog.Logger

	lastState command.PipelineState
	haveState bool
	bound     [command.MaxBindSlots]handle.Handle
}

// NewVisitor creates a visitor issuing calls against dev. log may be
// nil for silent operation.
func NewVisitor(dev Device, reg *registry.Registry, log *slog.Logger) *Visitor {
	if log == nil {
		log = noplog.New()
	}
	return &Visitor{dev: dev, reg: reg, log: log}
}

// Device returns the backend this visitor drives.
func (v *Visitor) Device() Device { return v.dev }

// Apply pushes one frame's resolved lifecycle batch to the device:
// creations first, then updates, then destructions, each in submission
// order. A device failure on one resource is logged and skipped; the
// rest of the batch still applies.
func (v *Visitor) Apply(rep lifecycle.Report, st *Stats) {
	for _, ev := range rep.Created {
		if err := v.dev.CreateObject(ev.Handle, ev.Desc); err != nil {
			v.log.Warn("device create failed", "handle", ev.Handle.String(), "err", err)
			continue
		}
		st.Created++
	}
	for _, ev := range rep.Updated {
		if err := v.dev.UpdateObject(ev.Handle, ev.Update); err != nil {
			v.log.Warn("device update failed", "handle", ev.Handle.String(), "err", err)
			continue
		}
		st.Updated++
	}
	for _, h := range rep.Destroyed {
		v.dev.DestroyObject(h)
		st.Destroyed++
	}
}

// Drain walks the merged frame in sorted order and issues state, bind
// and draw calls. Entries referencing stale handles are skipped with a
// warning. Every entry's handle pins are released, drawn or not.
func (v *Visitor) Drain(f *frame.Frame, st *Stats) error {
	entries := f.Entries()
	st.Entries += len(entries)

	if err := v.dev.BeginFrame(); err != nil {
		f.Discard(v.reg)
		return err
	}

	// BeginFrame left the device with no pipeline state and no bindings;
	// the redundancy caches must match or the first entry of the frame
	// would be issued without them.
	v.haveState = false
	v.bound = [command.MaxBindSlots]handle.Handle{}

	for i := range entries {
		e := &entries[i]
		if !v.entryLive(e) {
			st.Skipped++
			releaseEntry(v.reg, e)
			continue
		}
		if err := v.issue(e, st); err != nil {
			v.log.Warn("draw entry rejected", "key", uint64(e.Key), "err", err)
			st.Skipped++
		}
		releaseEntry(v.reg, e)
	}

	return v.dev.EndFrame()
}

// entryLive reports whether every handle the entry references still
// resolves to a live resource.
func (v *Visitor) entryLive(e *command.Entry) bool {
	live := true
	e.EachHandle(func(h handle.Handle) {
		if !live {
			return
		}
		if _, ok := v.reg.Resolve(h); !ok {
			v.log.Warn("stale handle in frame, entry skipped", "handle", h.String())
			live = false
		}
	})
	return live
}

func (v *Visitor) issue(e *command.Entry, st *Stats) error {
	if !v.haveState || e.State != v.lastState {
		if err := v.dev.ApplyState(e.State); err != nil {
			return err
		}
		v.lastState = e.State
		v.haveState = true
		st.StateChanges++
	}
	for _, b := range e.Bindings {
		if v.bound[b.Slot] == b.Handle {
			continue
		}
		if err := v.dev.Bind(b.Slot, b.Handle); err != nil {
			return err
		}
		v.bound[b.Slot] = b.Handle
		st.BindChanges++
	}
	if err := v.dev.Draw(e.Draw); err != nil {
		return err
	}
	st.DrawCalls++
	return nil
}

func releaseEntry(reg *registry.Registry, e *command.Entry) {
	e.EachHandle(reg.Release)
}
