// Package bytestream implements a bounded, in-order byte buffer with
// separate writer and reader capability views over one owned buffer, plus
// sticky close/error flags. It is the foundation both TCPSender and
// TCPReceiver build their owned streams on.
package bytestream

import "github.com/nereusnet/minnow/internal"

// ByteStream is a fixed-capacity FIFO of bytes. The zero value is not usable;
// construct with New. A ByteStream is not safe for concurrent use: the owning
// endpoint (TCPSender or TCPReceiver) serializes access to both halves.
type ByteStream struct {
	ring    internal.Ring
	pushed  uint64
	popped  uint64
	closed  bool
	errored bool
}

// New returns a ByteStream with the given fixed capacity in bytes.
func New(capacity int) *ByteStream {
	return &ByteStream{ring: internal.Ring{Buf: make([]byte, capacity)}}
}

// Push appends up to AvailableCapacity() bytes of data; any remainder is
// silently dropped. Returns the number of bytes actually appended.
func (bs *ByteStream) Push(data []byte) int {
	if bs.closed || len(data) == 0 {
		return 0
	}
	n := min(len(data), bs.AvailableCapacity())
	if n == 0 {
		return 0
	}
	written, err := bs.ring.Write(data[:n])
	if err != nil {
		return 0
	}
	bs.pushed += uint64(written)
	return written
}

// Close sets the sticky closed flag: no further bytes may be pushed.
func (bs *ByteStream) Close() { bs.closed = true }

// IsClosed reports whether Close has been called.
func (bs *ByteStream) IsClosed() bool { return bs.closed }

// SetError sets the sticky error flag, surfaced to both the writer and
// reader side via HasError.
func (bs *ByteStream) SetError() { bs.errored = true }

// HasError reports whether SetError has been called.
func (bs *ByteStream) HasError() bool { return bs.errored }

// AvailableCapacity returns the number of bytes that can still be pushed
// before the stream reaches its fixed capacity.
func (bs *ByteStream) AvailableCapacity() int { return bs.ring.Free() }

// BytesPushed returns the cumulative number of bytes ever pushed.
func (bs *ByteStream) BytesPushed() uint64 { return bs.pushed }

// BytesPopped returns the cumulative number of bytes ever popped.
func (bs *ByteStream) BytesPopped() uint64 { return bs.popped }

// BytesBuffered returns the number of bytes currently readable.
func (bs *ByteStream) BytesBuffered() int { return bs.ring.Buffered() }

// Peek returns a contiguous view of the front of the buffer into dst,
// without advancing the read position. The returned slice is non-empty iff
// BytesBuffered() > 0 and len(dst) > 0.
func (bs *ByteStream) Peek(dst []byte) []byte {
	n, err := bs.ring.ReadPeek(dst)
	if err != nil {
		return dst[:0]
	}
	return dst[:n]
}

// Pop discards up to min(n, BytesBuffered()) front bytes, advancing the read
// position.
func (bs *ByteStream) Pop(n int) {
	buffered := bs.ring.Buffered()
	toPop := min(n, buffered)
	if toPop == 0 {
		return
	}
	bs.ring.ReadDiscard(toPop)
	bs.popped += uint64(toPop)
}

// IsFinished reports whether the stream is closed and fully drained.
func (bs *ByteStream) IsFinished() bool {
	return bs.closed && bs.ring.Buffered() == 0
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
