// Package router implements longest-prefix-match IPv4 forwarding between a
// set of NetworkInterfaces.
package router

import (
	"log/slog"

	"github.com/nereusnet/minnow/iface"
	"github.com/nereusnet/minnow/internal"
	"github.com/nereusnet/minnow/internal/netlog"
	"github.com/nereusnet/minnow/ipv4"
)

// trieNode is one node of the binary routing trie, walked from the
// most-significant bit of a destination address. A node with a non-nil
// entry terminates a configured route at that prefix length.
type trieNode struct {
	children [2]*trieNode
	entry    *routeEntry
}

// routeEntry is the forwarding decision attached to a trie node: the
// next-hop address (zero value for directly-attached networks, where the
// next hop is the datagram's own destination) and which interface carries
// traffic for this route.
type routeEntry struct {
	nextHop      [4]byte
	hasNextHop   bool
	interfaceIdx int
}

// Router forwards IPv4 datagrams arriving on any of its interfaces toward
// whichever interface owns the longest matching route, decrementing TTL and
// recomputing the header checksum as it does.
type Router struct {
	netlog.Logger

	interfaces []*iface.NetworkInterface
	root       trieNode

	droppedTTL     uint64
	droppedNoMatch uint64
	forwarded      uint64
}

// New returns a Router with no interfaces and an empty routing table.
func New(logger *slog.Logger) *Router {
	r := &Router{}
	r.SetLogger(logger)
	return r
}

// AddInterface registers an interface with the router, returning its index
// for use with AddRoute.
func (r *Router) AddInterface(n *iface.NetworkInterface) int {
	r.interfaces = append(r.interfaces, n)
	return len(r.interfaces) - 1
}

// AddRoute installs a forwarding entry for prefix/length. nextHop is nil for
// directly-attached networks, where the router forwards toward the
// datagram's own destination address instead of a gateway.
func (r *Router) AddRoute(prefix [4]byte, length uint8, nextHop *[4]byte, interfaceIdx int) {
	node := &r.root
	full := beU32(prefix)
	for i := uint8(0); i < length; i++ {
		bit := (full >> (31 - i)) & 1
		if node.children[bit] == nil {
			node.children[bit] = &trieNode{}
		}
		node = node.children[bit]
	}
	entry := &routeEntry{interfaceIdx: interfaceIdx}
	if nextHop != nil {
		entry.nextHop = *nextHop
		entry.hasNextHop = true
	}
	node.entry = entry
}

// lookup walks the trie from the MSB of addr, remembering the deepest node
// carrying an entry, and returns it (or nil on no match).
func (r *Router) lookup(addr [4]byte) *routeEntry {
	full := beU32(addr)
	node := &r.root
	var best *routeEntry
	for i := 0; i < 32; i++ {
		if node.entry != nil {
			best = node.entry
		}
		bit := (full >> (31 - i)) & 1
		next := node.children[bit]
		if next == nil {
			break
		}
		node = next
	}
	if node.entry != nil {
		best = node.entry
	}
	return best
}

func beU32(addr [4]byte) uint32 {
	return uint32(addr[0])<<24 | uint32(addr[1])<<16 | uint32(addr[2])<<8 | uint32(addr[3])
}

// Route drains every interface's inbound queue once, forwarding each
// datagram toward the longest matching route: datagrams with TTL<=1 are
// dropped, matched datagrams have their TTL decremented and header checksum
// recomputed before being handed to the chosen interface's SendDatagram.
func (r *Router) Route() {
	for _, in := range r.interfaces {
		for in.InboundLen() > 0 {
			dgram := in.PopInbound()
			r.routeOne(dgram)
		}
	}
}

func (r *Router) routeOne(dgram []byte) {
	ifrm, err := ipv4.NewFrame(dgram)
	if err != nil {
		return
	}
	if ifrm.TTL() <= 1 {
		r.droppedTTL++
		r.Debug("router: dropped ttl-expired datagram")
		return
	}
	dst := *ifrm.DestinationAddr()
	entry := r.lookup(dst)
	if entry == nil {
		r.droppedNoMatch++
		r.Debug("router: no route", internal.SlogAddr4("dst", &dst))
		return
	}
	if entry.interfaceIdx < 0 || entry.interfaceIdx >= len(r.interfaces) {
		r.droppedNoMatch++
		return
	}
	ifrm.SetTTL(ifrm.TTL() - 1)
	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	nextHop := dst
	if entry.hasNextHop {
		nextHop = entry.nextHop
	}
	r.interfaces[entry.interfaceIdx].SendDatagram(dgram, nextHop)
	r.forwarded++
}

// Forwarded returns the count of datagrams successfully forwarded.
func (r *Router) Forwarded() uint64 { return r.forwarded }

// DroppedTTL returns the count of datagrams dropped for TTL exhaustion.
func (r *Router) DroppedTTL() uint64 { return r.droppedTTL }

// DroppedNoMatch returns the count of datagrams dropped for lacking a
// matching route.
func (r *Router) DroppedNoMatch() uint64 { return r.droppedNoMatch }
