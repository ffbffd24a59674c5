package permission

import "math/bits"

// RootBit is reserved for the platform root capability. A mask carrying it
// satisfies every Has check.
const RootBit = 63

// Mask is a fixed 64-bit capability set.
type Mask uint64

// Has reports whether bit is set, or whether the mask carries the root bit.
func (m Mask) Has(bit int) bool {
	if bit < 0 || bit >= 64 {
		return false
	}
	if m&(1<<RootBit) != 0 {
		return true
	}
	return m&(1<<uint(bit)) != 0
}

// With returns a copy of m with bit set. Out-of-range bits are ignored.
func (m Mask) With(bit int) Mask {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m | (1 << uint(bit))
}

// Without returns a copy of m with bit cleared.
func (m Mask) Without(bit int) Mask {
	if bit < 0 || bit >= 64 {
		return m
	}
	return m &^ (1 << uint(bit))
}

// IsRoot reports whether the root bit is set.
func (m Mask) IsRoot() bool {
	return m&(1<<RootBit) != 0
}

// Count returns the number of set bits.
func (m Mask) Count() int {
	return bits.OnesCount64(uint64(m))
}

// Raw returns the underlying bit pattern.
func (m Mask) Raw() uint64 {
	return uint64(m)
}
