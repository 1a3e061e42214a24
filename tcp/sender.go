package tcp

import (
	"github.com/nereusnet/minnow/bytestream"
	"github.com/nereusnet/minnow/seqnum"
)

// MaxPayloadSize bounds the payload bytes a Sender places in a single
// segment.
const MaxPayloadSize = 1000

// outstandingSegment is an in-flight segment awaiting acknowledgment,
// expressed in the sender's absolute sequence space (not yet wrapped).
type outstandingSegment struct {
	seqno   uint64
	syn     bool
	fin     bool
	data    []byte
	isEmpty bool // RST-only, untracked marker; never stored in the queue
}

func (s outstandingSegment) length() uint64 {
	n := uint64(len(s.data))
	if s.syn {
		n++
	}
	if s.fin {
		n++
	}
	return n
}

// Sender drains an owned outbound ByteStream into segments, tracks
// outstanding (unacknowledged) segments, and runs an exponential-back-off
// retransmission timer.
type Sender struct {
	stream          *bytestream.ByteStream
	isn             seqnum.Wrap32
	initRTO         uint64
	outqueue        []outstandingSegment
	timer           Timer
	rtoRatio        uint64
	ackBase         uint64
	seqCur          uint64
	window          uint16
	consecutiveRetx uint64
}

// NewSender returns a Sender with a freshly allocated outbound ByteStream.
func NewSender(capacity int, isn seqnum.Wrap32, initialRTOms uint64) *Sender {
	return &Sender{
		stream:   bytestream.New(capacity),
		isn:      isn,
		initRTO:  initialRTOms,
		rtoRatio: 1,
		window:   1, // assume window size is 1 before SYN
	}
}

// Stream returns the outbound ByteStream for the owner to write into.
func (s *Sender) Stream() *bytestream.ByteStream { return s.stream }

// SequenceNumbersInFlight returns seq_current - ack_base: the sum of
// sequence_length over outstanding segments.
func (s *Sender) SequenceNumbersInFlight() uint64 { return s.seqCur - s.ackBase }

// ConsecutiveRetransmissions returns how many consecutive retransmissions
// have happened since the last accepted ack.
func (s *Sender) ConsecutiveRetransmissions() uint64 { return s.consecutiveRetx }

func (s *Sender) transmit(seg outstandingSegment, transmit func(SenderMessage), track bool) {
	transmit(SenderMessage{
		Seqno:   seqnum.Wrap(seg.seqno, s.isn),
		SYN:     seg.syn,
		Payload: seg.data,
		FIN:     seg.fin,
		RST:     seg.isEmpty && s.stream.HasError(),
	})
	if track {
		end := seg.seqno + seg.length()
		if end > s.seqCur {
			s.seqCur = end
		}
		s.outqueue = append(s.outqueue, seg)
		if !s.timer.Started() {
			s.timer.Restart()
		}
	}
}

// Push drains the outbound stream into as many segments as the peer's
// advertised window permits, handing each to transmit.
func (s *Sender) Push(transmit func(SenderMessage)) {
	seg := outstandingSegment{seqno: s.seqCur}

	if s.stream.HasError() {
		seg.isEmpty = true
		s.transmit(seg, transmit, false)
		return
	}

	effectiveWindow := uint64(s.window)
	if effectiveWindow == 0 {
		effectiveWindow = 1 // zero-window probing
	}
	seqWindow := s.ackBase + effectiveWindow
	if seqWindow < s.seqCur {
		return
	}
	maxSeqSize := seqWindow - s.seqCur

	if seg.length() < maxSeqSize {
		seg.syn = s.seqCur == 0
	}

	for s.stream.BytesBuffered() != 0 && maxSeqSize > 0 {
		maxDataSize := maxSeqSize - seg.length()
		if maxDataSize > MaxPayloadSize {
			maxDataSize = MaxPayloadSize
		}
		buf := make([]byte, maxDataSize)
		peeked := s.stream.Peek(buf)
		seg.data = peeked
		s.stream.Pop(len(peeked))

		if seg.length() < maxSeqSize {
			seg.fin = s.stream.IsFinished()
		}

		s.transmit(seg, transmit, true)
		maxSeqSize = seqWindow - s.seqCur
		seg = outstandingSegment{seqno: s.seqCur}
	}

	if s.seqCur <= s.stream.BytesPopped()+1 && seg.length() < maxSeqSize {
		seg.fin = s.stream.IsFinished()
	}
	if seg.length() > 0 {
		s.transmit(seg, transmit, true)
	}
}

// MakeEmptyMessage returns a zero-payload message at the current sequence
// position, for keep-alive/ack-only use by the owner (e.g. Conn).
func (s *Sender) MakeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: seqnum.Wrap(s.seqCur, s.isn),
		RST:   s.stream.HasError(),
	}
}

// Receive processes an inbound ReceiverMessage: updates the advertised
// window, retires acknowledged outstanding segments, and resets the
// retransmission back-off on progress.
func (s *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		s.stream.SetError()
	}
	s.window = msg.Window

	if !msg.HasAckno {
		return
	}
	ackNo := msg.Ackno.Unwrap(s.isn, s.ackBase)
	if ackNo <= s.ackBase || ackNo > s.seqCur {
		return // reject: out of (ack_base, seq_current]
	}

	if s.rtoRatio != 1 {
		s.rtoRatio = 1
		s.consecutiveRetx = 0
		s.timer.Restart()
	}

	for len(s.outqueue) > 0 {
		front := s.outqueue[0]
		if front.seqno+front.length() > ackNo {
			break
		}
		s.ackBase = front.seqno + front.length()
		s.outqueue = s.outqueue[1:]
		s.timer.Restart()
	}
	if len(s.outqueue) == 0 {
		s.timer.Stop()
	}
}

// Tick advances the retransmission timer by msSinceLastTick and, on expiry,
// retransmits the oldest outstanding segment without re-tracking it.
func (s *Sender) Tick(msSinceLastTick uint64, transmit func(SenderMessage)) {
	s.timer.Tick(msSinceLastTick)
	if !s.timer.Expired(s.rtoRatio * s.initRTO) {
		return
	}
	if s.window != 0 {
		s.consecutiveRetx++
		s.rtoRatio *= 2
	}
	s.timer.Restart()
	if len(s.outqueue) > 0 {
		s.transmit(s.outqueue[0], transmit, false)
	}
}
