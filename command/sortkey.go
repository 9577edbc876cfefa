package command

import "github.com/chewxy/math32"

// SortKey orders draw entries across all producers. Higher-order bits
// dominate, so entries sort by layer first, material second and depth
// last. Draw order is a pure function of the key: producers never rely
// on issue order, and equal keys fall back to submission order through
// the stable merge sort.
//
// Bit layout, most significant first:
//
//	[63:56] layer
//	[55:40] material
//	[39:8]  depth, normalized to [0, 1] and mapped to its float bits
//	[7:0]   reserved
type SortKey uint64

// MakeSortKey packs layer, material and depth into a SortKey. depth is
// clamped to [0, 1]; NaN sorts first. Non-negative float32 values
// compare identically to their bit patterns, which is what makes the
// depth field sortable as an integer.
func MakeSortKey(layer uint8, material uint16, depth float32) SortKey {
	if math32.IsNaN(depth) {
		depth = 0
	}
	depth = math32.Max(0, math32.Min(1, depth))

	key := uint64(layer) << 56
	key |= uint64(material) << 40
	key |= uint64(math32.Float32bits(depth)) << 8
	return SortKey(key)
}

// Layer extracts the layer field.
func (k SortKey) Layer() uint8 { return uint8(k >> 56) }

// Material extracts the material field.
func (k SortKey) Material() uint16 { return uint16(k >> 40) }

// Depth extracts the normalized depth field.
func (k SortKey) Depth() float32 {
	return math32.Float32frombits(uint32(k >> 8))
}
