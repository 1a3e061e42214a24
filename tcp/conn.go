package tcp

import (
	"bytes"
	"errors"
	"io"
	"log/slog"

	"github.com/nereusnet/minnow/internal/netlog"
	"github.com/nereusnet/minnow/seqnum"
	"github.com/rs/xid"
)

// connState tracks the coarse lifecycle of a Conn. Unlike a full RFC9293
// state machine, transitions are driven only by what the Receiver and
// Sender streams report; there is no SYN-RECEIVED vs SYN-SENT distinction
// visible here since that bookkeeping lives in Receiver/Sender already.
type connState uint8

const (
	StateClosed connState = iota
	StateHandshake
	StateEstablished
	StateClosing
	StateTimeWait
)

func (s connState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHandshake:
		return "handshake"
	case StateEstablished:
		return "established"
	case StateClosing:
		return "closing"
	case StateTimeWait:
		return "time-wait"
	default:
		return "unknown"
	}
}

var (
	errNoRemoteAddr = errors.New("tcp: no remote address established")
	errConnClosed   = errors.New("tcp: connection closed")
	errZeroISN      = errors.New("tcp: zero local port")
)

// timeWaitLength is how many initial retransmission timeouts a connection
// lingers in TIME-WAIT before its resources may be reused, matching the
// classic 10x retransmission timeout rule of thumb.
const timeWaitLength = 10

// Conn is one TCP connection: a Receiver and a Sender bound to a fixed
// four-tuple, driven by Demux (inbound segments), Encapsulate (outbound
// segments) and Tick (time advance). Conn itself does not touch goroutines,
// channels or blocking I/O: callers embed it in a single-threaded,
// tick-driven event loop.
type Conn struct {
	netlog.Logger

	recv *Receiver
	send *Sender

	localPort  uint16
	remotePort uint16
	remoteAddr []byte

	connID xid.ID
	state  connState

	timeWaitElapsed uint64
	lastRTOms       uint64
}

// ConnConfig configures buffer sizes for a freshly (re)initialized Conn.
type ConnConfig struct {
	RxCapacity   int
	TxCapacity   int
	InitialRTOms uint64
	Logger       *slog.Logger
}

// Reset reinitializes the connection for reuse from a pool, discarding any
// prior four-tuple and buffered data.
func (conn *Conn) Reset(config ConnConfig) {
	rto := config.InitialRTOms
	if rto == 0 {
		rto = 1000
	}
	conn.recv = NewReceiver(max(config.RxCapacity, 4096))
	conn.send = NewSender(max(config.TxCapacity, 4096), 0, rto)
	conn.lastRTOms = rto
	conn.localPort = 0
	conn.remotePort = 0
	conn.remoteAddr = conn.remoteAddr[:0]
	conn.connID = xid.New()
	conn.state = StateClosed
	conn.timeWaitElapsed = 0
	conn.SetLogger(config.Logger)
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// OpenActive begins an active open: the next Encapsulate will emit the
// initial SYN with sequence number iss.
func (conn *Conn) OpenActive(localPort, remotePort uint16, remoteAddr []byte, iss seqnum.Wrap32) error {
	if localPort == 0 {
		return errZeroISN
	}
	conn.localPort = localPort
	conn.remotePort = remotePort
	conn.remoteAddr = append(conn.remoteAddr[:0], remoteAddr...)
	conn.send = NewSender(cap4k(conn.send), iss, conn.lastRTOms)
	conn.state = StateHandshake
	conn.Debug("conn:open-active", slog.Uint64("lport", uint64(localPort)), slog.Uint64("rport", uint64(remotePort)))
	return nil
}

// OpenListen prepares the connection to respond to a SYN that is then fed
// to it via Demux, replying with SYN-ACK using iss as its own ISN.
func (conn *Conn) OpenListen(localPort uint16, iss seqnum.Wrap32) error {
	if localPort == 0 {
		return errZeroISN
	}
	conn.localPort = localPort
	conn.send = NewSender(cap4k(conn.send), iss, conn.lastRTOms)
	conn.state = StateHandshake
	return nil
}

func cap4k(s *Sender) int {
	if s == nil {
		return 4096
	}
	return s.stream.AvailableCapacity() + s.stream.BytesBuffered()
}

// LocalPort returns the bound local port, or 0 if closed.
func (conn *Conn) LocalPort() uint16 { return conn.localPort }

// RemotePort returns the port of the established/handshaking peer.
func (conn *Conn) RemotePort() uint16 { return conn.remotePort }

// RemoteAddr returns the raw IP address bytes of the peer.
func (conn *Conn) RemoteAddr() []byte { return conn.remoteAddr }

// State returns the coarse connection lifecycle state.
func (conn *Conn) State() connState { return conn.state }

// ConnectionID returns a correlation ID minted on every Reset, letting log
// lines and metrics distinguish a pooled Conn's successive lifetimes.
func (conn *Conn) ConnectionID() xid.ID { return conn.connID }

// Write enqueues b on the outbound byte stream for eventual transmission.
// It never blocks; it returns as many bytes as fit in the available
// capacity.
func (conn *Conn) Write(b []byte) (int, error) {
	if conn.state == StateClosed {
		return 0, errConnClosed
	}
	return conn.send.Stream().Push(b), nil
}

// CloseWrite marks the outbound stream finished, causing a FIN to be sent
// once all buffered data has been transmitted (not necessarily acknowledged).
func (conn *Conn) CloseWrite() error {
	conn.send.Stream().Close()
	if conn.state == StateEstablished {
		conn.state = StateClosing
	}
	return nil
}

// Read drains the inbound byte stream. Returns io.EOF once the peer's FIN
// has been processed and all buffered bytes consumed.
func (conn *Conn) Read(b []byte) (int, error) {
	got := conn.recv.Stream().Peek(b)
	n := len(got)
	conn.recv.Stream().Pop(n)
	if n == 0 && conn.recv.Stream().IsClosed() {
		return 0, io.EOF
	}
	return n, nil
}

// BufferedInput returns the number of bytes available to Read.
func (conn *Conn) BufferedInput() int { return conn.recv.Stream().BytesBuffered() }

// BufferedUnsent returns the number of bytes queued but not yet sent.
func (conn *Conn) BufferedUnsent() int { return conn.send.Stream().BytesBuffered() }

// Demux feeds an inbound segment (already stripped of IP/Ethernet headers)
// to the connection's Receiver and Sender.
func (conn *Conn) Demux(tfrm Frame) error {
	if conn.state == StateClosed {
		return errConnClosed
	}
	msg := tfrm.SenderMessage()
	conn.recv.Receive(msg)
	rmsg := conn.recv.Send()
	_, flags := tfrm.OffsetAndFlags()
	conn.send.Receive(ReceiverMessage{
		Ackno:    tfrm.Ack(),
		HasAckno: flags.HasAny(FlagACK),
		Window:   tfrm.WindowSize(),
		RST:      flags.HasAny(FlagRST),
	})
	conn.advance(rmsg)
	return nil
}

func (conn *Conn) advance(rmsg ReceiverMessage) {
	switch conn.state {
	case StateHandshake:
		if rmsg.HasAckno || conn.recv.synReceived {
			conn.state = StateEstablished
		}
	case StateEstablished, StateClosing:
		if conn.recv.Stream().IsClosed() && conn.send.Stream().IsClosed() && conn.send.SequenceNumbersInFlight() == 0 {
			conn.state = StateTimeWait
			conn.timeWaitElapsed = 0
		}
	}
}

// Encapsulate writes up to one outbound segment into buf[headerOff:],
// returning the total bytes written (header+payload) or 0 if there is
// nothing to send right now.
func (conn *Conn) Encapsulate(buf []byte, headerOff int) (int, error) {
	if conn.state == StateClosed {
		return 0, errConnClosed
	}
	if conn.remotePort == 0 {
		return 0, errNoRemoteAddr
	}
	tfrm, err := NewFrame(buf[headerOff:])
	if err != nil {
		return 0, err
	}
	var out SenderMessage
	var wrote bool
	conn.send.Push(func(m SenderMessage) {
		if !wrote {
			out = m
			wrote = true
		}
	})
	if !wrote {
		return 0, nil
	}
	rmsg := conn.recv.Send()
	n := tfrm.SetSenderMessage(out, rmsg.Ackno, rmsg.HasAckno, rmsg.Window)
	tfrm.SetSourcePort(conn.localPort)
	tfrm.SetDestinationPort(conn.remotePort)
	return headerOff + n, nil
}

// EncapsulateMessage writes msg into buf[headerOff:], stamping it with the
// connection's current port pair and ack/window state. Unlike Encapsulate,
// which drains the next pending segment from the Sender, this re-renders a
// specific SenderMessage already produced elsewhere -- the retransmission
// path driven by Tick's transmit callback only has the original message,
// not the stream position to regenerate it from.
func (conn *Conn) EncapsulateMessage(msg SenderMessage, buf []byte, headerOff int) (int, error) {
	if conn.state == StateClosed {
		return 0, errConnClosed
	}
	tfrm, err := NewFrame(buf[headerOff:])
	if err != nil {
		return 0, err
	}
	rmsg := conn.recv.Send()
	n := tfrm.SetSenderMessage(msg, rmsg.Ackno, rmsg.HasAckno, rmsg.Window)
	tfrm.SetSourcePort(conn.localPort)
	tfrm.SetDestinationPort(conn.remotePort)
	return headerOff + n, nil
}

// Tick advances the retransmission timer and the TIME-WAIT countdown by
// msSinceLastTick.
func (conn *Conn) Tick(msSinceLastTick uint64, transmit func(SenderMessage)) {
	if conn.state == StateClosed {
		return
	}
	conn.send.Tick(msSinceLastTick, transmit)
	if conn.state == StateTimeWait {
		conn.timeWaitElapsed += msSinceLastTick
		if conn.timeWaitElapsed >= timeWaitLength*conn.lastRTOms {
			conn.state = StateClosed
		}
	}
}

// isRemote reports whether remotePort/remoteAddr identifies this conn's peer.
func (conn *Conn) isRemote(remotePort uint16, remoteAddr []byte) bool {
	return conn.remotePort == remotePort && bytes.Equal(conn.remoteAddr, remoteAddr)
}
