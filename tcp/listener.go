package tcp

import (
	"errors"
	"log/slog"

	"github.com/nereusnet/minnow/internal"
	"github.com/nereusnet/minnow/internal/netlog"
	"github.com/nereusnet/minnow/seqnum"
)

// ConnPool hands out and reclaims *Conn instances, mirroring a sync.Pool
// specialized for pre-allocated, reusable TCP connections.
type ConnPool interface {
	GetConn() *Conn
	PutConn(*Conn)
}

// Listener accepts inbound connections on one local port, minting ISNs from
// a SYNCookieJar. Each SYN from an unknown peer takes a Conn from the pool
// at once; the handshake's final ACK is not checked against the cookie.
type Listener struct {
	netlog.Logger

	port     uint16
	pool     ConnPool
	cookies  SYNCookieJar
	incoming []*Conn
	accepted []*Conn
	localIP  []byte
}

var (
	errListenerClosed = errors.New("tcp: listener closed")
	errNotOurPort     = errors.New("tcp: not our port")
	errNilPool        = errors.New("tcp: nil conn pool")
	errStaleSegment   = errors.New("tcp: segment for unknown connection")
)

// ListenerConfig configures a freshly reset Listener.
type ListenerConfig struct {
	Port    uint16
	Pool    ConnPool
	LocalIP []byte
	Cookies SYNCookieConfig
	Logger  *slog.Logger
}

// Reset (re)initializes the listener to accept connections on config.Port.
func (l *Listener) Reset(config ListenerConfig) error {
	if config.Port == 0 {
		return errZeroDstPort
	}
	if config.Pool == nil {
		return errNilPool
	}
	if err := l.cookies.Reset(config.Cookies); err != nil {
		return err
	}
	l.port = config.Port
	l.pool = config.Pool
	l.localIP = append(l.localIP[:0], config.LocalIP...)
	l.incoming = l.incoming[:0]
	l.accepted = l.accepted[:0]
	l.SetLogger(config.Logger)
	return nil
}

// LocalPort returns the bound listening port, or 0 if closed.
func (l *Listener) LocalPort() uint16 { return l.port }

func (l *Listener) isClosed() bool { return l.port == 0 }

// Close releases the listener's port; connections already accepted remain
// valid until individually closed.
func (l *Listener) Close() error {
	if l.isClosed() {
		return errListenerClosed
	}
	l.port = 0
	return nil
}

// NumberReadyToAccept counts incoming connections that finished their
// handshake and are waiting in TryAccept's queue.
func (l *Listener) NumberReadyToAccept() (n int) {
	for _, c := range l.incoming {
		if c != nil && c.State() == StateEstablished {
			n++
		}
	}
	return n
}

// TryAccept removes and returns one established incoming connection.
func (l *Listener) TryAccept() (*Conn, error) {
	if l.isClosed() {
		return nil, errListenerClosed
	}
	l.reap()
	for i, c := range l.incoming {
		if c == nil || c.State() != StateEstablished {
			continue
		}
		l.accepted = append(l.accepted, c)
		l.incoming[i] = nil
		return c, nil
	}
	return nil, errors.New("tcp: no connections ready")
}

// Demux routes an inbound segment to an existing connection or, for a bare
// SYN from an unknown peer, mints a fresh stateless-cookie ISN and spawns a
// new incoming Conn.
func (l *Listener) Demux(tfrm Frame, remoteAddr []byte) error {
	if l.isClosed() {
		return errListenerClosed
	}
	if tfrm.DestinationPort() != l.port {
		return errNotOurPort
	}
	srcPort := tfrm.SourcePort()

	if idx := findConn(l.accepted, srcPort, remoteAddr); idx >= 0 {
		return l.accepted[idx].Demux(tfrm)
	}
	if idx := findConn(l.incoming, srcPort, remoteAddr); idx >= 0 {
		return l.incoming[idx].Demux(tfrm)
	}

	_, flags := tfrm.OffsetAndFlags()
	if !flags.HasAny(FlagSYN) {
		return errStaleSegment
	}

	iss := seqnum.Wrap32(l.cookies.MakeSYNCookie(remoteAddr, l.localIP, srcPort, l.port, uint32(tfrm.Seq())))
	conn := l.pool.GetConn()
	if conn == nil {
		l.Warn("tcplistener:pool-exhausted", slog.Uint64("port", uint64(l.port)))
		return errors.New("tcp: no free connection slots")
	}
	conn.remotePort = srcPort
	conn.remoteAddr = append(conn.remoteAddr[:0], remoteAddr...)
	if err := conn.OpenListen(l.port, iss); err != nil {
		l.pool.PutConn(conn)
		return err
	}
	if err := conn.Demux(tfrm); err != nil {
		l.pool.PutConn(conn)
		return err
	}
	l.incoming = append(l.incoming, conn)
	l.Debug("tcplistener:new-conn", slog.Uint64("port", uint64(l.port)), slog.Uint64("rport", uint64(srcPort)))
	return nil
}

// Connections returns every live (incoming or accepted) connection, for
// callers that need to drive per-connection I/O outside of Tick.
func (l *Listener) Connections() []*Conn {
	conns := make([]*Conn, 0, len(l.incoming)+len(l.accepted))
	for _, c := range l.incoming {
		if c != nil {
			conns = append(conns, c)
		}
	}
	for _, c := range l.accepted {
		if c != nil {
			conns = append(conns, c)
		}
	}
	return conns
}

// Tick advances every managed connection's timers.
func (l *Listener) Tick(msSinceLastTick uint64, transmitFor func(*Conn, SenderMessage)) {
	for _, c := range l.incoming {
		if c != nil {
			c.Tick(msSinceLastTick, func(m SenderMessage) { transmitFor(c, m) })
		}
	}
	for _, c := range l.accepted {
		if c != nil {
			c.Tick(msSinceLastTick, func(m SenderMessage) { transmitFor(c, m) })
		}
	}
}

func (l *Listener) reap() {
	for i, c := range l.incoming {
		if c != nil && (c.State() == StateClosed) {
			l.pool.PutConn(c)
			l.incoming[i] = nil
		}
	}
	l.incoming = internal.DeleteZeroed(l.incoming)
	for i, c := range l.accepted {
		if c != nil && c.State() == StateClosed {
			l.pool.PutConn(c)
			l.accepted[i] = nil
		}
	}
	l.accepted = internal.DeleteZeroed(l.accepted)
}

func findConn(conns []*Conn, remotePort uint16, remoteAddr []byte) int {
	for i, c := range conns {
		if c != nil && c.isRemote(remotePort, remoteAddr) {
			return i
		}
	}
	return -1
}
