package tcp

import (
	"github.com/nereusnet/minnow/bytestream"
	"github.com/nereusnet/minnow/reassembly"
	"github.com/nereusnet/minnow/seqnum"
)

// Receiver consumes inbound SenderMessages, feeds a Reassembler, and
// produces the ack/window/RST tuple the peer's sender needs.
type Receiver struct {
	reassembler *reassembly.Reassembler
	stream      *bytestream.ByteStream
	synReceived bool
	zeroPoint   seqnum.Wrap32
	acknoAbs    uint64
}

// NewReceiver returns a Receiver whose reassembled bytes accumulate in a
// freshly allocated ByteStream of the given capacity.
func NewReceiver(capacity int) *Receiver {
	bs := bytestream.New(capacity)
	return &Receiver{
		reassembler: reassembly.New(bs),
		stream:      bs,
	}
}

// Stream returns the ByteStream the receiver pushes reassembled bytes into,
// for the owner to drain.
func (r *Receiver) Stream() *bytestream.ByteStream { return r.stream }

// Receive processes one inbound segment.
func (r *Receiver) Receive(msg SenderMessage) {
	if msg.RST {
		r.stream.SetError()
		return
	}
	if (!r.synReceived && !msg.SYN) || r.stream.HasError() {
		return
	}
	if msg.SYN {
		r.synReceived = true
		r.zeroPoint = msg.Seqno
	}

	var streamIndex int64
	if !msg.SYN {
		streamIndex = int64(msg.Seqno.Unwrap(r.zeroPoint, r.acknoAbs) - 1)
	}

	r.reassembler.Insert(streamIndex, msg.Payload, msg.FIN)
	r.acknoAbs = 1 + r.stream.BytesPushed()
	if r.stream.IsClosed() {
		r.acknoAbs++
	}
}

// Send returns the current ack/window/RST reply. Ackno is only meaningful
// (HasAckno true) once a SYN has been received.
func (r *Receiver) Send() ReceiverMessage {
	msg := ReceiverMessage{
		Window: clampWindow(r.stream.AvailableCapacity()),
		RST:    r.stream.HasError(),
	}
	if r.synReceived {
		msg.Ackno = seqnum.Wrap(r.acknoAbs, r.zeroPoint)
		msg.HasAckno = true
	}
	return msg
}

func clampWindow(n int) uint16 {
	const maxWindow = 0xffff
	if n > maxWindow {
		return maxWindow
	}
	return uint16(n)
}
