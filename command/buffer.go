package command

import "github.com/gogpu/forge/handle"

// Refs is the slice of the registry the buffer needs: pinning resources
// referenced by appended entries so deferred destruction cannot reclaim
// them while draw work is outstanding.
type Refs interface {
	// AddRef pins h. It reports false when h is stale.
	AddRef(h handle.Handle) bool

	// Release undoes one AddRef.
	Release(h handle.Handle)
}

// Buffer is a per-producer, append-only sequence of draw entries for
// one frame.
//
// A Buffer is NOT safe for concurrent use: only the goroutine that
// checked it out with BeginFrame may append. Cross-producer isolation
// comes from every producer owning its own Buffer; the merge at the
// frame barrier is the only point where buffers meet.
type Buffer struct {
	entries []Entry
	refs    Refs
}

// NewBuffer creates an empty buffer. refs may be nil, in which case
// appended entries are validated but not pinned (useful in tests).
func NewBuffer(refs Refs) *Buffer {
	return &Buffer{
		entries: make([]Entry, 0, 64),
		refs:    refs,
	}
}

// Append validates entry and adds it to the buffer. The entry's handle
// kinds are checked eagerly; a kind mismatch returns ErrInvalidBinding,
// a handle that can no longer be pinned returns ErrStaleEntry, and
// nothing is appended in either case. Backing storage grows as needed,
// so Append never fails for capacity reasons.
func (b *Buffer) Append(entry Entry) error {
	if err := entry.validate(); err != nil {
		return err
	}

	if b.refs != nil {
		var pinned []handle.Handle
		ok := true
		entry.EachHandle(func(h handle.Handle) {
			if !ok {
				return
			}
			if !b.refs.AddRef(h) {
				ok = false
				return
			}
			pinned = append(pinned, h)
		})
		if !ok {
			for _, h := range pinned {
				b.refs.Release(h)
			}
			return ErrStaleEntry
		}
	}

	b.entries = append(b.entries, entry)
	return nil
}

// Len returns the number of appended entries.
func (b *Buffer) Len() int { return len(b.entries) }

// Entries exposes the appended entries to the merge step. The slice is
// owned by the buffer; callers must not retain it across Reset.
func (b *Buffer) Entries() []Entry { return b.entries }

// Reset clears the buffer for the next frame, keeping the allocated
// capacity. Reference counts are not touched: pins transfer to the
// merged frame, which releases them after draining.
func (b *Buffer) Reset() {
	b.entries = b.entries[:0]
}

// Discard releases every pin held by the buffer's entries and clears
// it. Used when a frame is abandoned without being drained.
func (b *Buffer) Discard() {
	if b.refs != nil {
		for i := range b.entries {
			b.entries[i].EachHandle(b.refs.Release)
		}
	}
	b.entries = b.entries[:0]
}
