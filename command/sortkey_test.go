package command

import (
	"math"
	"testing"
)

func TestSortKeyFieldRoundTrip(t *testing.T) {
	k := MakeSortKey(3, 512, 0.25)
	if k.Layer() != 3 {
		t.Errorf("Layer() = %d, want 3", k.Layer())
	}
	if k.Material() != 512 {
		t.Errorf("Material() = %d, want 512", k.Material())
	}
	if d := k.Depth(); d < 0.24 || d > 0.26 {
		t.Errorf("Depth() = %f, want ~0.25", d)
	}
}

func TestSortKeyPrecedence(t *testing.T) {
	// Layer dominates material, material dominates depth.
	if MakeSortKey(1, 0, 1.0) <= MakeSortKey(0, math.MaxUint16, 1.0) {
		t.Error("higher layer must sort after any material")
	}
	if MakeSortKey(0, 2, 0.0) <= MakeSortKey(0, 1, 1.0) {
		t.Error("higher material must sort after any depth")
	}
	if MakeSortKey(0, 0, 0.75) <= MakeSortKey(0, 0, 0.25) {
		t.Error("greater depth must produce a greater key")
	}
}

func TestSortKeyDepthClamped(t *testing.T) {
	lo := MakeSortKey(0, 0, -5)
	hi := MakeSortKey(0, 0, 5)
	if lo != MakeSortKey(0, 0, 0) {
		t.Error("depth below 0 should clamp to 0")
	}
	if hi != MakeSortKey(0, 0, 1) {
		t.Error("depth above 1 should clamp to 1")
	}
}

func TestSortKeyDepthNaN(t *testing.T) {
	k := MakeSortKey(2, 9, float32(math.NaN()))
	if k != MakeSortKey(2, 9, 0) {
		t.Error("NaN depth should encode as 0")
	}
}

func TestSortKeyDepthMonotonic(t *testing.T) {
	prev := MakeSortKey(0, 0, 0)
	for i := 1; i <= 100; i++ {
		k := MakeSortKey(0, 0, float32(i)/100)
		if k <= prev {
			t.Fatalf("key at depth %d/100 not greater than previous", i)
		}
		prev = k
	}
}
