// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package lifecycle

import "github.com/gogpu/forge/handle"

// Policy proposes resources to destroy when the live footprint grows
// past a budget. Policies only nominate victims; the manager still
// refuses candidates with outstanding references and routes the rest
// through the ordinary deferred-destroy path. All methods are called
// from the resolving goroutine only.
type Policy interface {
	// Touch records that h was created or updated this frame, with its
	// approximate byte size.
	Touch(h handle.Handle, size int)

	// Forget drops h from the policy's working set after destruction.
	Forget(h handle.Handle)

	// Evict returns victims to destroy given the current live byte
	// footprint. Returning nil means no eviction is needed.
	Evict(liveBytes int64) []handle.Handle
}

// lruEntry is a node in the recency list.
type lruEntry struct {
	h          handle.Handle
	size       int
	prev, next *lruEntry
}

// LRU evicts the least recently touched resources once the live
// footprint exceeds a byte budget. Pinned kinds (surfaces, render
// targets) are never nominated.
type LRU struct {
	budget  int64
	entries map[handle.Handle]*lruEntry
	root    lruEntry // sentinel: root.next is most recent, root.prev oldest
}

// NewLRU creates an LRU policy with the given byte budget. A budget of
// zero or less disables eviction.
func NewLRU(budget int64) *LRU {
	l := &LRU{
		budget:  budget,
		entries: make(map[handle.Handle]*lruEntry),
	}
	l.root.prev = &l.root
	l.root.next = &l.root
	return l
}

// Touch implements Policy.
func (l *LRU) Touch(h handle.Handle, size int) {
	switch h.Kind() {
	case handle.KindSurface, handle.KindRenderTarget:
		return
	}
	if e, ok := l.entries[h]; ok {
		e.size = size
		l.unlink(e)
		l.pushFront(e)
		return
	}
	e := &lruEntry{h: h, size: size}
	l.entries[h] = e
	l.pushFront(e)
}

// Forget implements Policy.
func (l *LRU) Forget(h handle.Handle) {
	if e, ok := l.entries[h]; ok {
		l.unlink(e)
		delete(l.entries, h)
	}
}

// Evict implements Policy. Victims are removed from the working set
// immediately; the manager re-touches any it declines so they stay
// tracked.
func (l *LRU) Evict(liveBytes int64) []handle.Handle {
	if l.budget <= 0 {
		return nil
	}
	var victims []handle.Handle
	for liveBytes > l.budget {
		e := l.root.prev
		if e == &l.root {
			break
		}
		l.unlink(e)
		delete(l.entries, e.h)
		victims = append(victims, e.h)
		liveBytes -= int64(e.size)
	}
	return victims
}

// Len returns the number of tracked resources.
func (l *LRU) Len() int { return len(l.entries) }

func (l *LRU) pushFront(e *lruEntry) {
	e.prev = &l.root
	e.next = l.root.next
	e.prev.next = e
	e.next.prev = e
}

func (l *LRU) unlink(e *lruEntry) {
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}
