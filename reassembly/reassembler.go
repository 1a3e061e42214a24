// Package reassembly merges out-of-order, possibly overlapping byte ranges
// of a stream into the contiguous order a ByteStream writer requires.
package reassembly

import "github.com/nereusnet/minnow/bytestream"

// span is a pending, non-overlapping byte range over absolute stream indices,
// half-open: [first, first+len(data)).
type span struct {
	first int64
	data  []byte
}

func (s span) last() int64 { return s.first + int64(len(s.data)) }

// Reassembler accepts substrings of a byte stream, arriving in any order and
// with any overlap, and pushes contiguous bytes into an owned ByteStream
// writer as soon as they become available.
type Reassembler struct {
	out          *bytestream.ByteStream
	nextIndex    int64 // absolute index of the next byte the writer expects
	pending      []span
	pendingBytes int
	lastIndex    int64
	gotLast      bool
}

// New returns a Reassembler that pushes contiguous bytes into out.
func New(out *bytestream.ByteStream) *Reassembler {
	return &Reassembler{out: out}
}

// PendingBytes returns the total number of bytes held in pending, not-yet-
// contiguous spans.
func (r *Reassembler) PendingBytes() int { return r.pendingBytes }

// Insert accepts a substring of the stream beginning at the absolute index
// firstIndex. If isLast, firstIndex+len(data) marks the end of the stream;
// the first such signal received wins, later ones are ignored.
func (r *Reassembler) Insert(firstIndex int64, data []byte, isLast bool) {
	availFirst := r.nextIndex
	availLast := r.nextIndex + int64(r.out.AvailableCapacity())

	if isLast && !r.gotLast {
		r.lastIndex = firstIndex + int64(len(data))
		r.gotLast = true
	}

	dataFirst, dataLast := firstIndex, firstIndex+int64(len(data))
	if dataFirst >= availLast || dataLast <= availFirst {
		r.checkClose()
		return
	}

	if dataLast > availLast {
		data = data[:availLast-dataFirst]
		dataLast = availLast
	}
	if dataFirst < availFirst {
		data = data[availFirst-dataFirst:]
		dataFirst = availFirst
	}
	// Own a private copy: data may be merged in place below, and must not
	// alias memory the caller (or a pending span) still owns elsewhere.
	data = append([]byte(nil), data...)

	kept := r.pending[:0]
	for _, item := range r.pending {
		if dataFirst > item.last() || dataLast < item.first {
			kept = append(kept, item)
			continue
		}
		// item and (dataFirst,data) overlap or touch: merge, preferring the
		// earliest-received bytes (item's) on conflicting positions.
		var merged []byte
		if item.first < dataFirst {
			merged = item.data
			if item.last() < dataLast {
				merged = append(merged, data[item.last()-dataFirst:]...)
			}
		} else {
			merged = data
			if item.last() > dataLast {
				merged = append(merged, item.data[dataLast-item.first:]...)
			}
			copy(merged[item.first-dataFirst:], item.data)
		}
		data = merged
		if item.first < dataFirst {
			dataFirst = item.first
		}
		dataLast = dataFirst + int64(len(data))
		r.pendingBytes -= len(item.data)
	}
	r.pending = kept

	if dataFirst == r.nextIndex {
		r.out.Push(data)
		r.nextIndex += int64(len(data))
	} else {
		r.pending = append(r.pending, span{first: dataFirst, data: data})
		r.pendingBytes += len(data)
	}

	r.checkClose()
}

func (r *Reassembler) checkClose() {
	if r.gotLast && r.nextIndex == r.lastIndex {
		r.out.Close()
	}
}
