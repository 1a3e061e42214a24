// Command minnow-echo wires a NetworkInterface, a TCP Listener and a TCP
// Conn together into a minimal loopback echo server, driven entirely by a
// single-threaded tick loop: no goroutines, no channels across connections.
package main

import (
	"fmt"
	"log/slog"
	"math/rand"
	"os"
	"time"

	"github.com/nereusnet/minnow"
	"github.com/nereusnet/minnow/iface"
	"github.com/nereusnet/minnow/internal"
	"github.com/nereusnet/minnow/ipv4"
	"github.com/nereusnet/minnow/tcp"
)

const (
	serverPort = 7
	clientPort = 49152
	mtu        = 1500
	tickMillis = 5
)

var (
	serverHW = [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x02}
	clientHW = [6]byte{0xde, 0xad, 0xbe, 0xef, 0x00, 0x01}
	serverIP = [4]byte{10, 0, 0, 2}
	clientIP = [4]byte{10, 0, 0, 1}
)

// connPool is a fixed-size, non-blocking pool of pre-allocated *tcp.Conn, as
// tcp.Listener requires.
type connPool struct {
	conns []tcp.Conn
	free  []*tcp.Conn
}

func newConnPool(n int, logger *slog.Logger) *connPool {
	p := &connPool{conns: make([]tcp.Conn, n)}
	for i := range p.conns {
		p.conns[i].Reset(tcp.ConnConfig{Logger: logger})
		p.free = append(p.free, &p.conns[i])
	}
	return p
}

func (p *connPool) GetConn() *tcp.Conn {
	if len(p.free) == 0 {
		return nil
	}
	c := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	return c
}

func (p *connPool) PutConn(c *tcp.Conn) {
	c.Reset(tcp.ConnConfig{})
	p.free = append(p.free, c)
}

func main() {
	lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	link := &iface.ChannelOutputPort{}
	server := iface.New(iface.Config{HardwareAddr: serverHW, IPv4Addr: serverIP, Port: link, MTU: mtu, Logger: lg})
	client := iface.New(iface.Config{HardwareAddr: clientHW, IPv4Addr: clientIP, Port: link, MTU: mtu, Logger: lg})
	link.Bind(server)
	link.Bind(client)

	pool := newConnPool(4, lg)
	var listener tcp.Listener
	err := listener.Reset(tcp.ListenerConfig{
		Port:    serverPort,
		Pool:    pool,
		LocalIP: serverIP[:],
		Cookies: tcp.SYNCookieConfig{Rand: rand.New(rand.NewSource(1))},
		Logger:  lg,
	})
	if err != nil {
		lg.Error("listener reset", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var clientConn tcp.Conn
	clientConn.Reset(tcp.ConnConfig{Logger: lg})
	if err := clientConn.OpenActive(clientPort, serverPort, clientIP[:], 0); err != nil {
		lg.Error("open active", slog.String("err", err.Error()))
		os.Exit(1)
	}
	clientConn.Write([]byte("ping"))

	var acceptedConn *tcp.Conn
	echoed := false

	for i := range 2000 {
		if i%500 == 0 {
			internal.LogAllocs("echo-loop")
		}
		server.Tick(tickMillis)
		client.Tick(tickMillis)
		listener.Tick(tickMillis, func(c *tcp.Conn, m tcp.SenderMessage) {
			retransmit(c, m, server, serverIP, clientIP)
		})
		clientConn.Tick(tickMillis, func(m tcp.SenderMessage) {
			retransmit(&clientConn, m, client, clientIP, serverIP)
		})

		encapsulateAndSend(&clientConn, client, clientIP, serverIP)
		for _, c := range listener.Connections() {
			encapsulateAndSend(c, server, serverIP, clientIP)
		}

		for server.InboundLen() > 0 {
			dgram := server.PopInbound()
			tfrm, remoteAddr, ok := parseTCPSegment(dgram)
			if ok {
				listener.Demux(tfrm, remoteAddr)
			}
		}
		for client.InboundLen() > 0 {
			dgram := client.PopInbound()
			tfrm, _, ok := parseTCPSegment(dgram)
			if ok {
				clientConn.Demux(tfrm)
			}
		}

		if acceptedConn == nil {
			if c, err := listener.TryAccept(); err == nil {
				acceptedConn = c
				lg.Info("accepted connection", slog.Uint64("rport", uint64(c.RemotePort())))
			}
		}
		if acceptedConn != nil && !echoed && acceptedConn.BufferedInput() > 0 {
			buf := make([]byte, mtu)
			n, _ := acceptedConn.Read(buf)
			acceptedConn.Write(buf[:n])
			echoed = true
			fmt.Printf("server echoed %q\n", buf[:n])
		}
		time.Sleep(time.Microsecond)
	}
}

// parseTCPSegment unwraps an IPv4 datagram carrying a TCP segment, returning
// the segment's Frame view and the sender's raw IPv4 address.
func parseTCPSegment(dgram []byte) (tfrm tcp.Frame, remoteAddr []byte, ok bool) {
	if dgram == nil {
		return tcp.Frame{}, nil, false
	}
	ifrm, err := ipv4.NewFrame(dgram)
	if err != nil || ifrm.Protocol() != minnow.IPProtoTCP {
		return tcp.Frame{}, nil, false
	}
	tfrm, err = tcp.NewFrame(ifrm.Payload())
	if err != nil {
		return tcp.Frame{}, nil, false
	}
	return tfrm, (*ifrm.SourceAddr())[:], true
}

const ipHeaderLen = 20

// encapsulateAndSend drains one outbound TCP segment from conn and sends it.
func encapsulateAndSend(conn *tcp.Conn, n *iface.NetworkInterface, src, dst [4]byte) {
	buf := make([]byte, mtu)
	wrote, err := conn.Encapsulate(buf, ipHeaderLen)
	if err != nil || wrote == 0 {
		return
	}
	wrapIPv4AndSend(n, buf, wrote, src, dst)
}

// retransmit re-renders a SenderMessage handed to Tick's transmit callback
// and sends it, since Tick only carries the message, not a buffer to
// encapsulate it into.
func retransmit(conn *tcp.Conn, msg tcp.SenderMessage, n *iface.NetworkInterface, src, dst [4]byte) {
	buf := make([]byte, mtu)
	wrote, err := conn.EncapsulateMessage(msg, buf, ipHeaderLen)
	if err != nil || wrote == 0 {
		return
	}
	wrapIPv4AndSend(n, buf, wrote, src, dst)
}

// ipID seeds the IPv4 identification field, advanced the same way
// StackIP.DoEncapsulate does it in the original lneto stack: each datagram's
// ID reseeds a small xorshift PRNG from the previous one.
var ipID uint16 = 1

// wrapIPv4AndSend fills buf[:ipHeaderLen] with an IPv4 header over the
// already-encoded TCP segment in buf[ipHeaderLen:wrote], computes both
// checksums, and hands the datagram to n for ARP-resolved delivery.
func wrapIPv4AndSend(n *iface.NetworkInterface, buf []byte, wrote int, src, dst [4]byte) {
	ifrm, _ := ipv4.NewFrame(buf[:wrote])
	ifrm.ClearHeader()
	ifrm.SetVersionAndIHL(4, 5)
	ifrm.SetTotalLength(uint16(wrote))
	ipID = internal.Prand16(ipID)
	ifrm.SetID(ipID)
	ifrm.SetTTL(64)
	ifrm.SetProtocol(minnow.IPProtoTCP)
	copy(ifrm.SourceAddr()[:], src[:])
	copy(ifrm.DestinationAddr()[:], dst[:])

	tfrm, _ := tcp.NewFrame(buf[ipHeaderLen:wrote])
	var crc minnow.CRC791
	ifrm.CRCWriteTCPPseudo(&crc)
	tfrm.SetCRC(crc.PayloadSum16(tfrm.RawData()))

	ifrm.SetCRC(ifrm.CalculateHeaderCRC())

	n.SendDatagram(buf[:wrote], dst)
}
