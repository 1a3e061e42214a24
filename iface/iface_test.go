package iface

import (
	"testing"

	"github.com/nereusnet/minnow/arp"
	"github.com/nereusnet/minnow/ethernet"
)

func newTestPair() (*NetworkInterface, *NetworkInterface, *ChannelOutputPort) {
	port := &ChannelOutputPort{}
	a := New(Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 1},
		IPv4Addr:     [4]byte{10, 0, 0, 1},
		Port:         port,
	})
	b := New(Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 2},
		IPv4Addr:     [4]byte{10, 0, 0, 2},
		Port:         port,
	})
	port.Bind(a)
	port.Bind(b)
	return a, b, port
}

func ipv4Datagram(src, dst [4]byte, payload []byte) []byte {
	buf := make([]byte, 20+len(payload))
	buf[0] = 0x45
	buf[2] = byte(len(buf) >> 8) // total length
	buf[3] = byte(len(buf))
	copy(buf[12:16], src[:])
	copy(buf[16:20], dst[:])
	buf[8] = 64 // TTL
	copy(buf[20:], payload)
	return buf
}

// A frame destined for neither this interface's address nor the broadcast
// address produces no state change.
func TestRecvIgnoresForeignUnicast(t *testing.T) {
	a, _, _ := newTestPair()
	frame := make([]byte, 14+20)
	copy(frame[0:6], []byte{9, 9, 9, 9, 9, 9}) // not a's hwaddr, not broadcast
	efrm, _ := ethernet.NewFrame(frame)
	efrm.SetEtherType(ethernet.TypeIPv4)
	before := a.InboundLen()
	a.Recv(frame)
	if a.InboundLen() != before {
		t.Fatalf("expected no inbound change, got %d", a.InboundLen())
	}
}

// Sending a datagram with no ARP entry queues it and broadcasts exactly one
// ARP request; once a reply arrives, the queued datagram flushes and the
// queue is empty.
func TestARPQueueFlush(t *testing.T) {
	a, b, _ := newTestPair()
	dgram := ipv4Datagram(a.IPv4Addr(), b.IPv4Addr(), []byte("hello"))

	// With a ChannelOutputPort, ARP resolution happens synchronously within
	// this single SendDatagram call: the broadcast request reaches b, b's
	// reply reaches a, and a's flush re-enters SendDatagram before this
	// call returns.
	a.SendDatagram(dgram, b.IPv4Addr())

	if b.ARPTableSize() != 1 {
		t.Fatalf("expected b to learn a's address from the ARP request, got %d entries", b.ARPTableSize())
	}
	if a.ARPTableSize() != 1 {
		t.Fatalf("expected a to learn b's address from the ARP reply, got %d entries", a.ARPTableSize())
	}
	if a.DataQueuedSize() != 0 {
		t.Fatalf("expected a's queue to be empty after the reply flush, got %d", a.DataQueuedSize())
	}
	if b.InboundLen() != 1 {
		t.Fatalf("expected b to receive the flushed datagram, got %d", b.InboundLen())
	}
	got := b.PopInbound()
	if string(got[20:]) != "hello" {
		t.Fatalf("unexpected payload: %q", got[20:])
	}
}

// A second SendDatagram for the same unresolved next hop must not broadcast
// a second ARP request while one is outstanding.
func TestARPRequestSuppressed(t *testing.T) {
	port := &ChannelOutputPort{} // unbound: nothing consumes the broadcasts
	a := New(Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 1},
		IPv4Addr:     [4]byte{10, 0, 0, 1},
		Port:         port,
	})
	dst := [4]byte{10, 0, 0, 9}
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), dst, nil), dst)
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), dst, nil), dst)
	if a.ARPRequestsSent() != 1 {
		t.Fatalf("expected exactly 1 ARP request while one is outstanding, got %d", a.ARPRequestsSent())
	}
	if a.DataQueuedSize() != 2 {
		t.Fatalf("expected both datagrams queued, got %d", a.DataQueuedSize())
	}
}

// arp_waited entries expire after 5000ms, permitting a retried request.
func TestARPWaitExpires(t *testing.T) {
	port := &ChannelOutputPort{}
	a := New(Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 1},
		IPv4Addr:     [4]byte{10, 0, 0, 1},
		Port:         port,
	})
	dst := [4]byte{10, 0, 0, 9}
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), dst, nil), dst)
	a.Tick(4999)
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), dst, nil), dst)
	if a.ARPRequestsSent() != 1 {
		t.Fatalf("expected request still suppressed at 4999ms, got %d", a.ARPRequestsSent())
	}
	a.Tick(2)
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), dst, nil), dst)
	if a.ARPRequestsSent() != 2 {
		t.Fatalf("expected a second request after 5000ms elapsed, got %d", a.ARPRequestsSent())
	}
}

// arp_table entries expire after 30000ms, requiring re-resolution.
func TestARPTableExpires(t *testing.T) {
	a, b, _ := newTestPair()
	a.SendDatagram(ipv4Datagram(a.IPv4Addr(), b.IPv4Addr(), []byte("x")), b.IPv4Addr())
	if a.ARPTableSize() != 1 {
		t.Fatalf("expected a to learn b's address, got %d", a.ARPTableSize())
	}
	a.Tick(29999)
	if a.ARPTableSize() != 1 {
		t.Fatalf("entry should survive up to 29999ms")
	}
	a.Tick(1)
	if a.ARPTableSize() != 0 {
		t.Fatalf("entry should expire at 30000ms, got %d entries", a.ARPTableSize())
	}
}

// An ARP request targeting this interface's own address is answered with a
// unicast reply, not a second broadcast request.
func TestARPRequestAnswered(t *testing.T) {
	a, b, _ := newTestPair()
	buf := make([]byte, 14+28)
	efrm, _ := ethernet.NewFrame(buf)
	bcast := ethernet.BroadcastAddr()
	copy(efrm.DestinationHardwareAddr()[:], bcast[:])
	bh := b.HardwareAddr()
	copy(efrm.SourceHardwareAddr()[:], bh[:])
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, _ := arp.NewFrame(buf[14:])
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	hwS, protoS := afrm.Sender()
	bi := b.IPv4Addr()
	copy(hwS, bh[:])
	copy(protoS, bi[:])
	_, protoT := afrm.Target()
	ai := a.IPv4Addr()
	copy(protoT, ai[:])

	a.Recv(buf)
	if a.ARPRepliesSent() != 1 {
		t.Fatalf("expected exactly 1 ARP reply, got %d", a.ARPRepliesSent())
	}
}
