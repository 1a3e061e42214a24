// Package minnow implements a user-space TCP/IP protocol stack core: a
// reliable byte-stream transport built on top of Ethernet, ARP and IPv4
// framing, and a minimal IPv4 router. The root package holds the wire-level
// enums and checksum machinery shared by the ethernet, arp, ipv4 and tcp
// subpackages.
package minnow

// EtherType identifies the payload protocol carried by an Ethernet frame, or,
// for values <= 1500, the payload length of an untagged 802.3 frame.
type EtherType uint16

// IsSize returns true if the EtherType is actually the size of the payload
// and should NOT be interpreted as an EtherType.
func (et EtherType) IsSize() bool { return et <= 1500 }

// Ethernet type flags used by this stack. Only the subset required to
// bootstrap an IPv4 network (ARP resolution and IPv4 datagrams) is kept;
// the teacher package enumerates dozens more EtherTypes that this module
// has no collaborator for.
const (
	EtherTypeIPv4 EtherType = 0x0800 // IPv4
	EtherTypeARP  EtherType = 0x0806 // ARP
	EtherTypeVLAN EtherType = 0x8100 // VLAN

	// minEthPayload is the minimum payload size for an Ethernet frame, assuming
	// that no 802.1Q VLAN tags are present.
	minEthPayload = 46
)

// IPToS represents the Traffic Class (a.k.a Type of Service).
type IPToS uint8

// DS returns the top 6 bits of the IPv4 ToS holding the Differentiated Services field
// which is used to classify packets.
func (tos IPToS) DS() uint8 { return uint8(tos) >> 2 }

// ECN is the Explicit Congestion Notification which provides congestion control and non-congestion control traffic.
func (tos IPToS) ECN() uint8 { return uint8(tos & 0b11) }

// IPv4Flags holds fragmentation field data of an IPv4 header.
type IPv4Flags uint16

// IsEvil returns true if evil bit set as per [RFC3514].
//
// [RFC3514]: https://datatracker.ietf.org/doc/html/rfc3514
func (f IPv4Flags) IsEvil() bool { return f&0x8000 != 0 }

// DontFragment specifies whether the datagram can not be fragmented.
// This stack neither fragments outgoing datagrams nor reassembles incoming
// fragments (see Non-goals); it does not set DontFragment on datagrams it
// originates and does not inspect the fragmentation fields of inbound ones.
func (f IPv4Flags) DontFragment() bool { return f&0x4000 != 0 }

// MoreFragments is cleared for unfragmented packets.
func (f IPv4Flags) MoreFragments() bool { return f&0x2000 != 0 }

// FragmentOffset specifies the offset of a particular fragment relative to the beginning of the original unfragmented IP datagram.
func (f IPv4Flags) FragmentOffset() uint16 { return uint16(f) & 0x1fff }

const (
	sizeHeaderIPv4      = 20
	sizeHeaderTCP       = 20
	sizeHeaderEthNoVLAN = 14
	sizeHeaderARPv4     = 28
)

// IPProto represents the IP protocol number, restricted to what this stack's
// router and interface actually forward or terminate.
type IPProto uint8

// IP protocol numbers in use by this stack.
const (
	IPProtoICMP IPProto = 1  // Internet Control Message [RFC792]
	IPProtoTCP  IPProto = 6  // Transmission Control [RFC793]
	IPProtoUDP  IPProto = 17 // User Datagram [RFC768], kept for router pass-through of non-TCP traffic
)

func (p IPProto) String() string {
	switch p {
	case IPProtoICMP:
		return "ICMP"
	case IPProtoTCP:
		return "TCP"
	case IPProtoUDP:
		return "UDP"
	default:
		return "IPProto(unknown)"
	}
}

// ARPOp represents the type of ARP packet, either request or reply/response.
type ARPOp uint8

const (
	ARPRequest ARPOp = 1 // request
	ARPReply   ARPOp = 2 // reply
)

func (op ARPOp) String() string {
	switch op {
	case ARPRequest:
		return "request"
	case ARPReply:
		return "reply"
	default:
		return "ARPOp(unknown)"
	}
}
