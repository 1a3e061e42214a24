// Package seqnum implements the 32-bit wrapping sequence-number arithmetic
// used by TCP: a bidirectional mapping between the wire's 32-bit wrapped
// sequence space and an absolute, monotonically increasing 64-bit index.
package seqnum

import "fmt"

// Wrap32 is a sequence number as carried on the wire: a 32-bit value that
// wraps around modulo 2^32. Arithmetic on Wrap32 is modular; comparisons are
// only meaningful once unwrapped relative to a checkpoint.
type Wrap32 uint32

// Wrap returns the wrapped sequence number corresponding to absolute index n
// relative to zero, i.e. zero + (n mod 2^32).
func Wrap(n uint64, zero Wrap32) Wrap32 {
	return zero + Wrap32(uint32(n))
}

// Add returns the wrapped value offset by delta, itself wrapping modulo 2^32.
func (w Wrap32) Add(delta uint32) Wrap32 {
	return w + Wrap32(delta)
}

// Unwrap returns the absolute 64-bit sequence number closest to checkpoint
// whose wrapped projection relative to zero equals w. Ties break toward the
// smaller non-negative absolute value.
func (w Wrap32) Unwrap(zero Wrap32, checkpoint uint64) uint64 {
	checkpointWrap := Wrap(checkpoint, zero)
	diff := uint32(checkpointWrap - w)
	if diff <= 0x7fffffff && checkpoint >= uint64(diff) {
		return checkpoint - uint64(diff)
	}
	return checkpoint + uint64(uint32(w-checkpointWrap))
}

func (w Wrap32) String() string {
	return fmt.Sprintf("seq(%d)", uint32(w))
}
