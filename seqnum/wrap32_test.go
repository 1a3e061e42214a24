package seqnum

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	tests := []struct {
		n          uint64
		zero       Wrap32
		checkpoint uint64
	}{
		{0, 0, 0},
		{1, 0, 0},
		{1, 0, 1 << 31},
		{1 << 32, 0, 1 << 32},
		{1 << 32, 1, 1 << 32},
	}
	for _, tc := range tests {
		w := Wrap(tc.n, tc.zero)
		got := w.Unwrap(tc.zero, tc.checkpoint)
		if got != tc.n {
			t.Errorf("Wrap(%d,%d).Unwrap(checkpoint=%d) = %d, want %d", tc.n, tc.zero, tc.checkpoint, got, tc.n)
		}
	}
}

func TestUnwrapScenario(t *testing.T) {
	// zero_point = 0xFFFFFFF0, wrapped value carries raw 0x00000010, checkpoint = 2^32+16.
	zero := Wrap32(0xFFFFFFF0)
	w := Wrap32(0x00000010)
	checkpoint := uint64(1)<<32 + 16
	got := w.Unwrap(zero, checkpoint)
	want := uint64(1)<<32 + 32
	if got != want {
		t.Errorf("Unwrap() = %d, want %d", got, want)
	}
}

func TestUnwrapNearestToCheckpoint(t *testing.T) {
	zero := Wrap32(100)
	for n := uint64(0); n < 1000; n++ {
		w := Wrap(n, zero)
		for _, cp := range []uint64{0, n, n + 1 << 20, uint64Max(n, 2000) - n} {
			got := w.Unwrap(zero, cp)
			if Wrap(got, zero) != w {
				t.Fatalf("Unwrap(checkpoint=%d) of Wrap(%d) = %d which does not re-wrap to same value", cp, n, got)
			}
		}
	}
}

func uint64Max(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}
