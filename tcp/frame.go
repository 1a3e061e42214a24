package tcp

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/nereusnet/minnow"
	"github.com/nereusnet/minnow/seqnum"
)

const sizeHeaderTCP = 20

var errShort = errors.New("tcp: short segment")

// NewFrame returns a Frame with data set to buf. An error is returned if the
// buffer is smaller than the fixed TCP header size.
func NewFrame(buf []byte) (Frame, error) {
	if len(buf) < sizeHeaderTCP {
		return Frame{buf: nil}, errShort
	}
	return Frame{buf: buf}, nil
}

// Frame encapsulates the raw data of a TCP segment and provides accessors
// for the wire header fields. See [RFC9293].
//
// [RFC9293]: https://datatracker.ietf.org/doc/html/rfc9293
type Frame struct {
	buf []byte
}

// RawData returns the underlying slice the frame was created with.
func (tfrm Frame) RawData() []byte { return tfrm.buf }

func (tfrm Frame) SourcePort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[0:2]) }
func (tfrm Frame) SetSourcePort(src uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[0:2], src)
}

func (tfrm Frame) DestinationPort() uint16 { return binary.BigEndian.Uint16(tfrm.buf[2:4]) }
func (tfrm Frame) SetDestinationPort(dst uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[2:4], dst)
}

// Seq returns the wrapped sequence number of the first octet of this
// segment (or the ISN if SYN is set).
func (tfrm Frame) Seq() seqnum.Wrap32 {
	return seqnum.Wrap32(binary.BigEndian.Uint32(tfrm.buf[4:8]))
}
func (tfrm Frame) SetSeq(v seqnum.Wrap32) {
	binary.BigEndian.PutUint32(tfrm.buf[4:8], uint32(v))
}

// Ack returns the wrapped sequence number the sender next expects, valid
// only when the ACK flag is set.
func (tfrm Frame) Ack() seqnum.Wrap32 {
	return seqnum.Wrap32(binary.BigEndian.Uint32(tfrm.buf[8:12]))
}
func (tfrm Frame) SetAck(v seqnum.Wrap32) {
	binary.BigEndian.PutUint32(tfrm.buf[8:12], uint32(v))
}

// OffsetAndFlags returns the data offset (in 32-bit words) and flags fields.
func (tfrm Frame) OffsetAndFlags() (offset uint8, flags Flags) {
	v := binary.BigEndian.Uint16(tfrm.buf[12:14])
	offset = uint8(v >> 12)
	flags = Flags(v).Mask()
	return offset, flags
}

func (tfrm Frame) SetOffsetAndFlags(offset uint8, flags Flags) {
	v := uint16(offset)<<12 | uint16(flags.Mask())
	binary.BigEndian.PutUint16(tfrm.buf[12:14], v)
}

// HeaderLength returns the total header length in bytes including options.
func (tfrm Frame) HeaderLength() int {
	offset, _ := tfrm.OffsetAndFlags()
	return 4 * int(offset)
}

func (tfrm Frame) WindowSize() uint16 { return binary.BigEndian.Uint16(tfrm.buf[14:16]) }
func (tfrm Frame) SetWindowSize(v uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[14:16], v)
}

func (tfrm Frame) CRC() uint16 { return binary.BigEndian.Uint16(tfrm.buf[16:18]) }
func (tfrm Frame) SetCRC(checksum uint16) {
	binary.BigEndian.PutUint16(tfrm.buf[16:18], checksum)
}

func (tfrm Frame) UrgentPtr() uint16      { return binary.BigEndian.Uint16(tfrm.buf[18:20]) }
func (tfrm Frame) SetUrgentPtr(up uint16) { binary.BigEndian.PutUint16(tfrm.buf[18:20], up) }

// Payload returns the data portion of the segment, excluding options.
func (tfrm Frame) Payload() []byte { return tfrm.buf[tfrm.HeaderLength():] }

// ClearHeader zeros out the fixed (non-option) header contents.
func (tfrm Frame) ClearHeader() {
	for i := range tfrm.buf[:sizeHeaderTCP] {
		tfrm.buf[i] = 0
	}
}

// SenderMessage decodes the frame into a SenderMessage (options are not
// interpreted; TCP options negotiation is out of scope for this stack).
func (tfrm Frame) SenderMessage() SenderMessage {
	_, flags := tfrm.OffsetAndFlags()
	return SenderMessage{
		Seqno:   tfrm.Seq(),
		SYN:     flags.HasAny(FlagSYN),
		FIN:     flags.HasAny(FlagFIN),
		RST:     flags.HasAny(FlagRST),
		Payload: tfrm.Payload(),
	}
}

// SetSenderMessage encodes msg into the frame's header fields and copies
// msg.Payload after the fixed header (the frame's buffer must be at least
// sizeHeaderTCP+len(msg.Payload) bytes). ack and window come from the
// receiver side of the same connection, since a SenderMessage alone carries
// no ack/window.
func (tfrm Frame) SetSenderMessage(msg SenderMessage, ack seqnum.Wrap32, hasAck bool, window uint16) int {
	flags := Flags(0)
	if msg.SYN {
		flags |= FlagSYN
	}
	if msg.FIN {
		flags |= FlagFIN
	}
	if msg.RST {
		flags |= FlagRST
	}
	if hasAck {
		flags |= FlagACK
	}
	tfrm.SetSeq(msg.Seqno)
	tfrm.SetAck(ack)
	tfrm.SetOffsetAndFlags(sizeHeaderTCP/4, flags)
	tfrm.SetWindowSize(window)
	tfrm.SetUrgentPtr(0)
	n := copy(tfrm.buf[sizeHeaderTCP:], msg.Payload)
	return sizeHeaderTCP + n
}

func (tfrm Frame) String() string {
	_, flags := tfrm.OffsetAndFlags()
	return fmt.Sprintf("TCP :%d -> :%d seq=%v ack=%v %s len=%d",
		tfrm.SourcePort(), tfrm.DestinationPort(), tfrm.Seq(), tfrm.Ack(), flags, len(tfrm.Payload()))
}

//
// Validation API.
//

// ValidateSize checks the frame's header-length field against the actual
// buffer size.
func (tfrm Frame) ValidateSize(v *minnow.Validator) {
	off := tfrm.HeaderLength()
	if off < sizeHeaderTCP {
		v.AddError(errBadTCPOffset)
	}
	if off > len(tfrm.RawData()) {
		v.AddError(errShort)
	}
}

var errBadTCPOffset = errors.New("tcp: bad data offset")
var errZeroSrcPort = errors.New("tcp: zero source port")
var errZeroDstPort = errors.New("tcp: zero destination port")

// ValidateExceptCRC checks for invalid frame values but does not check CRC.
func (tfrm Frame) ValidateExceptCRC(v *minnow.Validator) {
	tfrm.ValidateSize(v)
	if tfrm.DestinationPort() == 0 {
		v.AddError(errZeroDstPort)
	}
	if tfrm.SourcePort() == 0 {
		v.AddError(errZeroSrcPort)
	}
}
