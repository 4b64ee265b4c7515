package flash

import (
	"golang.org/x/exp/constraints"
)

// lsw will return the low 16 bits of an address
func lsw(addr uint32) uint16 {
	return uint16(addr & 0xffff)
}

// msw will return the high 16 bits of an address
func msw(addr uint32) uint16 {
	return uint16(addr >> 16)
}

// padTo will copy bs into a zero filled buffer that is a multiple of n long
func padTo(bs []byte, n int) []byte {
	size := (len(bs) + n - 1) / n * n
	out := make([]byte, size)
	copy(out, bs)
	return out
}

// min will return the minimum of the two values
func min[T constraints.Ordered](a, b T) T {
	if a < b {
		return a
	}
	return b
}
