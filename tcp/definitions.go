package tcp

import (
	"math/bits"

	"github.com/nereusnet/minnow/seqnum"
)

// RejectError represents an error that arises during admission of a message
// into the sender or receiver and should never propagate out of this
// package's public operations: every Reject is absorbed internally.
type RejectError struct {
	err string
}

func (e *RejectError) Error() string { return e.err }

func newRejectErr(err string) *RejectError { return &RejectError{err: "reject: " + err} }

// Flags is the TCP flags bit-mask as carried on the wire.
type Flags uint16

const (
	FlagFIN Flags = 1 << iota // FlagFIN - no more data from sender.
	FlagSYN                   // FlagSYN - synchronize sequence numbers.
	FlagRST                   // FlagRST - reset the connection.
	FlagPSH                   // FlagPSH - push function.
	FlagACK                   // FlagACK - acknowledgment field significant.
	FlagURG                   // FlagURG - urgent pointer field significant.
)

const flagMask = 0x3f

// HasAll checks if mask bits are all set in the receiver flags.
func (flags Flags) HasAll(mask Flags) bool { return flags&mask == mask }

// HasAny checks if one or more mask bits are set in receiver flags.
func (flags Flags) HasAny(mask Flags) bool { return flags&mask != 0 }

// Mask returns the flags with non-flag bits unset.
func (flags Flags) Mask() Flags { return flags & flagMask }

func (flags Flags) String() string {
	switch flags.Mask() {
	case 0:
		return "[]"
	case FlagSYN | FlagACK:
		return "[SYN,ACK]"
	case FlagFIN | FlagACK:
		return "[FIN,ACK]"
	case FlagACK:
		return "[ACK]"
	case FlagSYN:
		return "[SYN]"
	case FlagFIN:
		return "[FIN]"
	case FlagRST:
		return "[RST]"
	}
	buf := make([]byte, 0, 2+4*bits.OnesCount16(uint16(flags)))
	buf = append(buf, '[')
	buf = flags.AppendFormat(buf)
	buf = append(buf, ']')
	return string(buf)
}

// AppendFormat appends a human readable flag string to b and returns the
// extended buffer.
func (flags Flags) AppendFormat(b []byte) []byte {
	const strflags = "FIN SYN RST PSH ACK URG "
	const flaglen = 4
	flags = flags.Mask()
	if flags == 0 {
		return b
	}
	first := true
	for flags != 0 {
		i := bits.TrailingZeros16(uint16(flags))
		if !first {
			b = append(b, ',')
		}
		first = false
		b = append(b, strflags[i*flaglen:i*flaglen+3]...)
		flags &= ^(1 << i)
	}
	return b
}

// SenderMessage is a segment as produced by a TCPSender, prior to wire
// encoding: absolute-seqno bookkeeping has already been folded into Seqno.
type SenderMessage struct {
	Seqno   seqnum.Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength is the number of sequence numbers this message consumes:
// SYN + len(Payload) + FIN.
func (m SenderMessage) SequenceLength() int {
	n := len(m.Payload)
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// ReceiverMessage is a TCPReceiver's reply carrying the cumulative ack,
// advertised window and any sticky RST signal.
type ReceiverMessage struct {
	Ackno    seqnum.Wrap32
	HasAckno bool
	Window   uint16
	RST      bool
}
