package router

import (
	"testing"

	"github.com/nereusnet/minnow/iface"
	"github.com/nereusnet/minnow/ipv4"
)

type nullPort struct{}

func (nullPort) Transmit(*iface.NetworkInterface, []byte) {}

func mkDatagram(ttl uint8, dst [4]byte) []byte {
	buf := make([]byte, 20)
	buf[0] = 0x45
	buf[8] = ttl
	copy(buf[16:20], dst[:])
	ifrm, _ := ipv4.NewFrame(buf)
	ifrm.SetTotalLength(uint16(len(buf)))
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())
	return buf
}

func newTestRouter() (*Router, *iface.NetworkInterface, *iface.NetworkInterface) {
	if0 := iface.New(iface.Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 1},
		IPv4Addr:     [4]byte{10, 0, 0, 1},
		Port:         nullPort{},
	})
	if1 := iface.New(iface.Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 2},
		IPv4Addr:     [4]byte{10, 1, 0, 1},
		Port:         nullPort{},
	})
	r := New(nil)
	i0 := r.AddInterface(if0)
	i1 := r.AddInterface(if1)
	r.AddRoute([4]byte{10, 0, 0, 0}, 8, nil, i0)
	r.AddRoute([4]byte{10, 1, 0, 0}, 16, nil, i1)
	return r, if0, if1
}

// pushInbound simulates a datagram having already been accepted into an
// interface's inbound queue by Recv.
func pushInbound(n *iface.NetworkInterface, dgram []byte) {
	// Route()/PopInbound only need InboundLen/PopInbound; simplest path is
	// a loopback Recv through the same interface's own Ethernet address.
	frame := make([]byte, 14+len(dgram))
	hw := n.HardwareAddr()
	copy(frame[0:6], hw[:])
	copy(frame[6:12], hw[:])
	frame[12] = 0x08
	frame[13] = 0x00
	copy(frame[14:], dgram)
	n.Recv(frame)
}

// The longest matching prefix wins: 10.1.0.0/16 beats 10.0.0.0/8 for any
// address inside 10.1.0.0/16.
func TestRouterLongestPrefixMatch(t *testing.T) {
	r, if0, if1 := newTestRouter()

	dg8 := mkDatagram(64, [4]byte{10, 2, 3, 4})
	pushInbound(if0, dg8)
	dg16 := mkDatagram(64, [4]byte{10, 1, 9, 9})
	pushInbound(if1, dg16)

	r.Route()

	if r.Forwarded() != 2 {
		t.Fatalf("expected 2 forwarded datagrams, got %d", r.Forwarded())
	}
	// With no ARP entries, each forwarded datagram waits on the interface
	// its route chose: 10.2.3.4 on if0 (/8), 10.1.9.9 on if1 (/16).
	if if0.DataQueuedSize() != 1 {
		t.Fatalf("expected 1 datagram queued on if0, got %d", if0.DataQueuedSize())
	}
	if if1.DataQueuedSize() != 1 {
		t.Fatalf("expected 1 datagram queued on if1, got %d", if1.DataQueuedSize())
	}
}

// A datagram with TTL<=1 is dropped, never reaching the chosen interface.
func TestRouterDropsExpiredTTL(t *testing.T) {
	r, if0, _ := newTestRouter()
	dg := mkDatagram(1, [4]byte{10, 0, 0, 9})
	pushInbound(if0, dg)

	r.Route()

	if r.DroppedTTL() != 1 {
		t.Fatalf("expected 1 ttl-dropped datagram, got %d", r.DroppedTTL())
	}
	if r.Forwarded() != 0 {
		t.Fatalf("expected 0 forwarded, got %d", r.Forwarded())
	}
}

// Forwarding decrements TTL by one and recomputes the header checksum. The
// destination (10.0.0.9) is wired as a second NetworkInterface sharing if0's
// ChannelOutputPort and already ARP-resolved, so the forwarded datagram can
// be observed on arrival.
func TestRouterDecrementsTTLAndRecomputesChecksum(t *testing.T) {
	port := &iface.ChannelOutputPort{}
	if0 := iface.New(iface.Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 1},
		IPv4Addr:     [4]byte{10, 0, 0, 1},
		Port:         port,
	})
	dstHost := iface.New(iface.Config{
		HardwareAddr: [6]byte{0, 0, 0, 0, 0, 9},
		IPv4Addr:     [4]byte{10, 0, 0, 9},
		Port:         port,
	})
	port.Bind(if0)
	port.Bind(dstHost)

	// Prime if0's ARP cache for 10.0.0.9 via a throwaway resolution.
	if0.SendDatagram(mkDatagram(64, [4]byte{10, 0, 0, 9}), [4]byte{10, 0, 0, 9})
	dstHost.PopInbound() // discard the primer datagram

	r := New(nil)
	i0 := r.AddInterface(if0)
	r.AddRoute([4]byte{10, 0, 0, 0}, 8, nil, i0)

	dg := mkDatagram(64, [4]byte{10, 0, 0, 9})
	pushInbound(if0, dg)

	r.Route()

	if r.Forwarded() != 1 {
		t.Fatalf("expected 1 forwarded, got %d", r.Forwarded())
	}
	got := dstHost.PopInbound()
	if got == nil {
		t.Fatal("expected dstHost to receive the forwarded datagram")
	}
	ifrm, err := ipv4.NewFrame(got)
	if err != nil {
		t.Fatal(err)
	}
	if ifrm.TTL() != 63 {
		t.Fatalf("expected TTL decremented to 63, got %d", ifrm.TTL())
	}
	if ifrm.CRC() != ifrm.CalculateHeaderCRC() {
		t.Fatalf("checksum was not recomputed for the decremented TTL")
	}
}

// A datagram with no matching route is dropped.
func TestRouterDropsUnmatchedDestination(t *testing.T) {
	r, if0, _ := newTestRouter()
	dg := mkDatagram(64, [4]byte{192, 168, 1, 1})
	pushInbound(if0, dg)

	r.Route()

	if r.DroppedNoMatch() != 1 {
		t.Fatalf("expected 1 unmatched drop, got %d", r.DroppedNoMatch())
	}
}
