package frame

import (
	"testing"

	"github.com/gogpu/forge/command"
	"github.com/gogpu/forge/handle"
)

// countRefs is a permissive pin counter.
type countRefs struct {
	pins map[handle.Handle]int
}

func newCountRefs() *countRefs { return &countRefs{pins: make(map[handle.Handle]int)} }

func (c *countRefs) AddRef(h handle.Handle) bool { c.pins[h]++; return true }
func (c *countRefs) Release(h handle.Handle)     { c.pins[h]-- }

var (
	shaderH = handle.New(0, 1, handle.KindShader)
	targetH = handle.New(1, 1, handle.KindSurface)
	meshH   = handle.New(2, 1, handle.KindMesh)
)

// entryAt builds an entry whose mesh FirstIndex tags its origin so
// stability can be checked after sorting.
func entryAt(key command.SortKey, tag uint32) command.Entry {
	return command.Entry{
		Key:   key,
		State: command.PipelineState{Shader: shaderH, Target: targetH},
		Draw:  command.DrawParams{Mesh: meshH, FirstIndex: tag},
	}
}

func TestMergeSortsByKey(t *testing.T) {
	refs := newCountRefs()
	b := command.NewBuffer(refs)
	for _, depth := range []float32{0.9, 0.1, 0.5} {
		if err := b.Append(entryAt(command.MakeSortKey(0, 0, depth), 0)); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	c := NewCoordinator()
	f := c.MergeAndSwap([]*command.Buffer{b})

	entries := f.Entries()
	if len(entries) != 3 {
		t.Fatalf("merged %d entries, want 3", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i-1].Key > entries[i].Key {
			t.Fatalf("entries not sorted at %d", i)
		}
	}
}

func TestMergeIsStableAcrossProducers(t *testing.T) {
	// Two producers, 100 entries each, every entry the same key. After
	// the merge, producer A's entries must all precede producer B's and
	// keep their relative order.
	refs := newCountRefs()
	a := command.NewBuffer(refs)
	b := command.NewBuffer(refs)
	key := command.MakeSortKey(1, 1, 0.5)
	for i := 0; i < 100; i++ {
		if err := a.Append(entryAt(key, uint32(i))); err != nil {
			t.Fatalf("Append a: %v", err)
		}
		if err := b.Append(entryAt(key, uint32(100+i))); err != nil {
			t.Fatalf("Append b: %v", err)
		}
	}

	c := NewCoordinator()
	f := c.MergeAndSwap([]*command.Buffer{a, b})

	entries := f.Entries()
	if len(entries) != 200 {
		t.Fatalf("merged %d entries, want 200", len(entries))
	}
	for i, e := range entries {
		if e.Draw.FirstIndex != uint32(i) {
			t.Fatalf("entry %d has tag %d; equal keys must preserve submission order", i, e.Draw.FirstIndex)
		}
	}
}

func TestMergeResetsBuffers(t *testing.T) {
	refs := newCountRefs()
	b := command.NewBuffer(refs)
	if err := b.Append(entryAt(command.MakeSortKey(0, 0, 0), 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	c := NewCoordinator()
	c.MergeAndSwap([]*command.Buffer{b})

	if b.Len() != 0 {
		t.Error("producer buffer should be empty after merge")
	}
	// Pins moved to the frame, not released.
	if refs.pins[meshH] != 1 {
		t.Errorf("mesh pins = %d, want 1 (transferred to frame)", refs.pins[meshH])
	}
}

func TestEmptyMergeYieldsEmptyFrame(t *testing.T) {
	c := NewCoordinator()
	for i := 0; i < 3; i++ {
		f := c.MergeAndSwap(nil)
		if f.Len() != 0 {
			t.Fatalf("cycle %d: empty merge produced %d entries", i, f.Len())
		}
	}
}

func TestPingPongRecyclesFrames(t *testing.T) {
	refs := newCountRefs()
	c := NewCoordinator()

	f1 := c.MergeAndSwap(nil)
	f2 := c.MergeAndSwap(nil)
	f3 := c.MergeAndSwap(nil)

	if f1 == f2 {
		t.Error("consecutive swaps must alternate frames")
	}
	if f1 != f3 {
		t.Error("third swap should reuse the first frame")
	}
	_ = refs
}

func TestFrameDiscardReleasesPins(t *testing.T) {
	refs := newCountRefs()
	b := command.NewBuffer(refs)
	if err := b.Append(entryAt(command.MakeSortKey(0, 0, 0), 0)); err != nil {
		t.Fatalf("Append: %v", err)
	}

	c := NewCoordinator()
	f := c.MergeAndSwap([]*command.Buffer{b})
	f.Discard(refs)

	for h, n := range refs.pins {
		if n != 0 {
			t.Errorf("handle %s still pinned %d times after discard", h, n)
		}
	}
	if f.Len() != 0 {
		t.Error("discarded frame should be empty")
	}
}
