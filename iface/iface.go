// Package iface implements NetworkInterface: ARP-resolved IPv4 datagram
// egress/ingress over a shared Ethernet OutputPort.
package iface

import (
	"log/slog"

	"github.com/nereusnet/minnow/arp"
	"github.com/nereusnet/minnow/ethernet"
	"github.com/nereusnet/minnow/internal"
	"github.com/nereusnet/minnow/internal/lrucache"
	"github.com/nereusnet/minnow/internal/netlog"
	"github.com/nereusnet/minnow/ipv4"
)

// arpTableTTLms is the freshness window of a learned (IPv4 -> Ethernet)
// mapping in arp_table.
const arpTableTTLms = 30_000

// arpWaitTTLms bounds how long an outstanding ARP request suppresses a
// retry for the same IPv4 address in arp_waited.
const arpWaitTTLms = 5_000

// cacheSlots bounds the ARP cache and in-flight query table sizes; entries
// are evicted round-robin once full, same as internal/lrucache's design.
const cacheSlots = 64

// OutputPort is the consumed interface a NetworkInterface transmits
// finished Ethernet frames through.
type OutputPort interface {
	Transmit(sender *NetworkInterface, frame []byte)
}

// ChannelOutputPort is a trivial in-memory OutputPort wiring two
// NetworkInterfaces together, for tests and the example command: frames
// transmitted by one of its bound interfaces are delivered to the other's
// Recv.
type ChannelOutputPort struct {
	peers []*NetworkInterface
}

// Bind registers iface as a participant on this port.
func (p *ChannelOutputPort) Bind(iface *NetworkInterface) { p.peers = append(p.peers, iface) }

// Transmit implements OutputPort by handing frame to every bound interface
// other than sender.
func (p *ChannelOutputPort) Transmit(sender *NetworkInterface, frame []byte) {
	for _, peer := range p.peers {
		if peer == sender {
			continue
		}
		cp := make([]byte, len(frame))
		copy(cp, frame)
		peer.Recv(cp)
	}
}

type arpCacheEntry struct {
	hwaddr [6]byte
	ageMs  uint64
}

// NetworkInterface resolves next-hop Ethernet addresses via ARP and moves
// IPv4 datagrams between an owned OutputPort and an inbound queue a Router
// drains.
type NetworkInterface struct {
	netlog.Logger

	hwaddr  [6]byte
	ipaddr  [4]byte
	port    OutputPort
	mtu     int

	inbound    [][]byte
	arpTable   lrucache.Cache[[4]byte, arpCacheEntry]
	arpWaited  lrucache.Cache[[4]byte, uint64]
	dataQueued map[[4]byte][][]byte

	metrics Metrics
}

// Config configures a NetworkInterface.
type Config struct {
	HardwareAddr [6]byte
	IPv4Addr     [4]byte
	Port         OutputPort
	MTU          int
	Logger       *slog.Logger
}

// New returns a NetworkInterface bound to the given OutputPort.
func New(cfg Config) *NetworkInterface {
	mtu := cfg.MTU
	if mtu == 0 {
		mtu = 1500
	}
	n := &NetworkInterface{
		hwaddr:     cfg.HardwareAddr,
		ipaddr:     cfg.IPv4Addr,
		port:       cfg.Port,
		mtu:        mtu,
		arpTable:   lrucache.New[[4]byte, arpCacheEntry](cacheSlots),
		arpWaited:  lrucache.New[[4]byte, uint64](cacheSlots),
		dataQueued: make(map[[4]byte][][]byte),
		metrics:    newMetrics(),
	}
	n.SetLogger(cfg.Logger)
	return n
}

// HardwareAddr returns the interface's own Ethernet address.
func (n *NetworkInterface) HardwareAddr() [6]byte { return n.hwaddr }

// IPv4Addr returns the interface's own IPv4 address.
func (n *NetworkInterface) IPv4Addr() [4]byte { return n.ipaddr }

// InboundLen returns the number of datagrams waiting in the inbound queue
// for a Router to drain.
func (n *NetworkInterface) InboundLen() int { return len(n.inbound) }

// PopInbound removes and returns the oldest queued inbound IPv4 datagram.
func (n *NetworkInterface) PopInbound() []byte {
	if len(n.inbound) == 0 {
		return nil
	}
	dgram := n.inbound[0]
	n.inbound = n.inbound[1:]
	return dgram
}

// SendDatagram transmits dgram (a full IPv4 datagram) toward nextHop. If the
// interface already holds a fresh ARP entry for nextHop, the datagram is
// immediately wrapped in an Ethernet frame and handed to the OutputPort.
// Otherwise it is queued in data_queued and, unless a request is already
// outstanding, an ARP request for nextHop is broadcast.
func (n *NetworkInterface) SendDatagram(dgram []byte, nextHop [4]byte) {
	if entry, ok := n.arpTable.Get(nextHop); ok {
		n.transmitIPv4(dgram, entry.hwaddr)
		n.metrics.datagramsSent.Inc()
		return
	}
	n.dataQueued[nextHop] = append(n.dataQueued[nextHop], dgram)
	n.metrics.datagramsQueued.Inc()
	if _, waiting := n.arpWaited.Get(nextHop); !waiting {
		n.Debug("iface: arp miss, queuing datagram", internal.SlogAddr4("dst", &nextHop))
		n.broadcastARPRequest(nextHop)
		n.arpWaited.Push(nextHop, 0)
	}
}

// Recv accepts an inbound Ethernet frame. Frames not addressed to this
// interface (unicast or broadcast) are silently dropped. IPv4 payloads are
// queued for a Router; ARP payloads update the ARP cache, flush any queued
// datagrams for the sender, and answer requests targeting this interface.
func (n *NetworkInterface) Recv(frame []byte) {
	efrm, err := ethernet.NewFrame(frame)
	if err != nil {
		return
	}
	dst := efrm.DestinationHardwareAddr()
	if !efrm.IsBroadcast() && *dst != n.hwaddr {
		return
	}
	switch efrm.EtherTypeOrSize() {
	case ethernet.TypeIPv4:
		ifrm, err := ipv4.NewFrame(efrm.Payload())
		if err != nil {
			return
		}
		dgram := append([]byte(nil), ifrm.RawData()[:ifrm.TotalLength()]...)
		n.inbound = append(n.inbound, dgram)
		n.metrics.datagramsReceived.Inc()
	case ethernet.TypeARP:
		n.recvARP(efrm)
	}
}

func (n *NetworkInterface) recvARP(efrm ethernet.Frame) {
	afrm, err := arp.NewFrame(efrm.Payload())
	if err != nil {
		return
	}
	senderHW, senderProto := afrm.Sender4()
	n.arpTable.Push(*senderProto, arpCacheEntry{hwaddr: *senderHW})
	n.Trace("iface: arp entry learned", internal.SlogAddr4("ip", senderProto), internal.SlogAddr6("hw", senderHW))
	n.flushQueued(*senderProto, *senderHW)

	if afrm.Operation() != arp.OpRequest {
		return
	}
	_, targetProto := afrm.Target4()
	if *targetProto != n.ipaddr {
		return
	}
	n.replyARP(afrm, *senderHW, *senderProto)
}

func (n *NetworkInterface) flushQueued(ip [4]byte, hw [6]byte) {
	queued := n.dataQueued[ip]
	if len(queued) == 0 {
		return
	}
	delete(n.dataQueued, ip)
	for _, dgram := range queued {
		n.SendDatagram(dgram, ip)
	}
}

func (n *NetworkInterface) broadcastARPRequest(target [4]byte) {
	buf := make([]byte, 14+28)
	efrm, _ := ethernet.NewFrame(buf)
	bcast := ethernet.BroadcastAddr()
	copy(efrm.DestinationHardwareAddr()[:], bcast[:])
	copy(efrm.SourceHardwareAddr()[:], n.hwaddr[:])
	efrm.SetEtherType(ethernet.TypeARP)

	afrm, _ := arp.NewFrame(buf[14:])
	afrm.SetHardware(1, 6)
	afrm.SetProtocol(ethernet.TypeIPv4, 4)
	afrm.SetOperation(arp.OpRequest)
	hwSender, protoSender := afrm.Sender()
	copy(hwSender, n.hwaddr[:])
	copy(protoSender, n.ipaddr[:])
	_, protoTarget := afrm.Target()
	copy(protoTarget, target[:])

	n.port.Transmit(n, buf)
	n.metrics.arpRequestsSent.Inc()
}

func (n *NetworkInterface) replyARP(afrm arp.Frame, dstHW [6]byte, dstIP [4]byte) {
	buf := make([]byte, 14+28)
	efrm, _ := ethernet.NewFrame(buf)
	copy(efrm.DestinationHardwareAddr()[:], dstHW[:])
	copy(efrm.SourceHardwareAddr()[:], n.hwaddr[:])
	efrm.SetEtherType(ethernet.TypeARP)

	replyFrm, _ := arp.NewFrame(buf[14:])
	replyFrm.SetHardware(1, 6)
	replyFrm.SetProtocol(ethernet.TypeIPv4, 4)
	replyFrm.SetOperation(arp.OpReply)
	hwSender, protoSender := replyFrm.Sender()
	copy(hwSender, n.hwaddr[:])
	copy(protoSender, n.ipaddr[:])
	hwTarget, protoTarget := replyFrm.Target()
	copy(hwTarget, dstHW[:])
	copy(protoTarget, dstIP[:])

	n.port.Transmit(n, buf)
	n.metrics.arpRepliesSent.Inc()
}

func (n *NetworkInterface) transmitIPv4(dgram []byte, dstHW [6]byte) {
	buf := make([]byte, 14+len(dgram))
	efrm, _ := ethernet.NewFrame(buf)
	copy(efrm.DestinationHardwareAddr()[:], dstHW[:])
	copy(efrm.SourceHardwareAddr()[:], n.hwaddr[:])
	efrm.SetEtherType(ethernet.TypeIPv4)
	copy(buf[14:], dgram)
	n.port.Transmit(n, buf)
}

// Tick ages arp_waited and arp_table entries by msSinceLastTick, evicting
// any that have reached their TTL (5s and 30s respectively).
func (n *NetworkInterface) Tick(msSinceLastTick uint64) {
	n.arpWaited = ageAndEvict(n.arpWaited, msSinceLastTick, arpWaitTTLms, func(age uint64) uint64 { return age })
	n.arpTable = ageAndEvictEntries(n.arpTable, msSinceLastTick, arpTableTTLms)
}

func ageAndEvict(c lrucache.Cache[[4]byte, uint64], deltaMs, ttlMs uint64, _ func(uint64) uint64) lrucache.Cache[[4]byte, uint64] {
	fresh := lrucache.New[[4]byte, uint64](cacheSlots)
	c.Range(func(k [4]byte, v uint64) {
		v += deltaMs
		if v < ttlMs {
			fresh.Push(k, v)
		}
	})
	return fresh
}

func ageAndEvictEntries(c lrucache.Cache[[4]byte, arpCacheEntry], deltaMs, ttlMs uint64) lrucache.Cache[[4]byte, arpCacheEntry] {
	fresh := lrucache.New[[4]byte, arpCacheEntry](cacheSlots)
	c.Range(func(k [4]byte, v arpCacheEntry) {
		v.ageMs += deltaMs
		if v.ageMs < ttlMs {
			fresh.Push(k, v)
		}
	})
	return fresh
}
