// Package frame implements the double-buffered frame swap between
// producers and the render thread.
//
// Two Frame instances ping-pong: while the render thread drains the
// immutable back frame, the next merge reuses the other instance's
// storage, so steady-state frames allocate nothing. MergeAndSwap is the
// single synchronization point of the pipeline; the caller guarantees
// every producer has finished appending before invoking it.
package frame

import (
	"cmp"
	"slices"

	"github.com/gogpu/forge/command"
)

// Frame is an immutable, merged, sorted sequence of draw entries for
// one frame. Frames are produced by Coordinator.MergeAndSwap and
// consumed by the device visitor.
type Frame struct {
	entries []command.Entry
}

// Entries returns the sorted entries. The slice is owned by the frame
// and is invalidated by the merge after next.
func (f *Frame) Entries() []command.Entry { return f.entries }

// Len returns the number of entries.
func (f *Frame) Len() int { return len(f.entries) }

// Discard releases every resource pin held by the frame's entries
// without draining them. Used on shutdown so teardown of referenced
// resources can proceed.
func (f *Frame) Discard(refs command.Refs) {
	if refs != nil {
		for i := range f.entries {
			f.entries[i].EachHandle(refs.Release)
		}
	}
	f.entries = f.entries[:0]
}

// Coordinator owns the two frame instances and performs the merge and
// swap at each frame boundary. It is driven from a single goroutine
// (the one running the frame loop); the barrier that keeps producers
// out during the swap lives in the caller.
type Coordinator struct {
	frames [2]Frame
	back   int
}

// NewCoordinator creates a coordinator with empty frames.
func NewCoordinator() *Coordinator {
	return &Coordinator{}
}

// MergeAndSwap concatenates all producer buffers, stable-sorts the
// result by sort key and publishes it as the new back frame. The
// previous back frame's storage is recycled as the merge target, and
// every producer buffer is reset for the next frame.
//
// The sort is stable so entries with equal keys keep their submission
// order as a deterministic tie-break.
func (c *Coordinator) MergeAndSwap(buffers []*command.Buffer) *Frame {
	c.back ^= 1
	f := &c.frames[c.back]
	f.entries = f.entries[:0]

	for _, b := range buffers {
		f.entries = append(f.entries, b.Entries()...)
		b.Reset()
	}

	slices.SortStableFunc(f.entries, func(a, b command.Entry) int {
		return cmp.Compare(a.Key, b.Key)
	})
	return f
}
