package tcp

import (
	"io"
	"testing"
)

// encapsulate drains one pending segment from conn into a fresh buffer and
// returns it as a Frame, or ok=false if nothing was pending.
func encapsulate(t *testing.T, conn *Conn) (Frame, bool) {
	t.Helper()
	buf := make([]byte, 1500)
	n, err := conn.Encapsulate(buf, 0)
	if err != nil {
		t.Fatalf("Encapsulate: %v", err)
	}
	if n == 0 {
		return Frame{}, false
	}
	tfrm, err := NewFrame(buf[:n])
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	return tfrm, true
}

func TestConnActiveOpenHandshakeAndEcho(t *testing.T) {
	var client, server Conn
	client.Reset(ConnConfig{})
	server.Reset(ConnConfig{})

	if err := client.OpenActive(49152, 7, []byte{10, 0, 0, 2}, 100); err != nil {
		t.Fatalf("OpenActive: %v", err)
	}

	syn, ok := encapsulate(t, &client)
	if !ok {
		t.Fatal("client did not emit SYN")
	}
	_, flags := syn.OffsetAndFlags()
	if !flags.HasAll(FlagSYN) || flags.HasAny(FlagACK) {
		t.Fatalf("first client segment flags = %v, want bare SYN", flags)
	}

	server.remotePort = syn.SourcePort()
	server.remoteAddr = []byte{10, 0, 0, 1}
	if err := server.OpenListen(7, 200); err != nil {
		t.Fatalf("OpenListen: %v", err)
	}
	if err := server.Demux(syn); err != nil {
		t.Fatalf("server Demux(SYN): %v", err)
	}
	if server.State() != StateEstablished {
		t.Fatalf("server state after SYN = %v, want established (no data to wait on)", server.State())
	}

	synAck, ok := encapsulate(t, &server)
	if !ok {
		t.Fatal("server did not emit SYN-ACK")
	}
	_, flags = synAck.OffsetAndFlags()
	if !flags.HasAll(FlagSYN | FlagACK) {
		t.Fatalf("server reply flags = %v, want SYN,ACK", flags)
	}

	if err := client.Demux(synAck); err != nil {
		t.Fatalf("client Demux(SYN-ACK): %v", err)
	}
	if client.State() != StateEstablished {
		t.Fatalf("client state = %v, want established", client.State())
	}

	client.Write([]byte("ping"))
	dataSeg, ok := encapsulate(t, &client)
	if !ok {
		t.Fatal("client did not emit data segment")
	}
	if string(dataSeg.Payload()) != "ping" {
		t.Fatalf("payload = %q, want ping", dataSeg.Payload())
	}

	if err := server.Demux(dataSeg); err != nil {
		t.Fatalf("server Demux(data): %v", err)
	}
	if server.BufferedInput() != 4 {
		t.Fatalf("server BufferedInput() = %d, want 4", server.BufferedInput())
	}
	buf := make([]byte, 16)
	n, err := server.Read(buf)
	if err != nil {
		t.Fatalf("server Read: %v", err)
	}
	if string(buf[:n]) != "ping" {
		t.Fatalf("server read %q, want ping", buf[:n])
	}
}

func TestConnWriteAfterCloseFails(t *testing.T) {
	var c Conn
	c.Reset(ConnConfig{})
	if _, err := c.Write([]byte("x")); err != errConnClosed {
		t.Fatalf("Write on closed conn: err = %v, want errConnClosed", err)
	}
}

func TestConnCloseWriteSendsFINAndPeerReadsEOF(t *testing.T) {
	var client, server Conn
	client.Reset(ConnConfig{})
	server.Reset(ConnConfig{})
	client.OpenActive(1, 2, []byte{1, 1, 1, 1}, 0)
	syn, _ := encapsulate(t, &client)

	server.remotePort = syn.SourcePort()
	server.remoteAddr = []byte{2, 2, 2, 2}
	server.OpenListen(2, 0)
	server.Demux(syn)
	synAck, _ := encapsulate(t, &server)
	client.Demux(synAck)

	client.CloseWrite()
	if client.State() != StateClosing {
		t.Fatalf("client state after CloseWrite = %v, want closing", client.State())
	}
	fin, ok := encapsulate(t, &client)
	if !ok {
		t.Fatal("client did not emit FIN")
	}
	_, flags := fin.OffsetAndFlags()
	if !flags.HasAny(FlagFIN) {
		t.Fatalf("final client segment flags = %v, want FIN set", flags)
	}

	if err := server.Demux(fin); err != nil {
		t.Fatalf("server Demux(FIN): %v", err)
	}
	buf := make([]byte, 4)
	if _, err := server.Read(buf); err != io.EOF {
		t.Fatalf("server Read after peer FIN: err = %v, want io.EOF", err)
	}
}

func TestConnEncapsulateRequiresRemotePort(t *testing.T) {
	var c Conn
	c.Reset(ConnConfig{})
	c.state = StateHandshake
	if _, err := c.Encapsulate(make([]byte, 64), 0); err != errNoRemoteAddr {
		t.Fatalf("Encapsulate with no remote port: err = %v, want errNoRemoteAddr", err)
	}
}

func TestConnTickRetransmitsViaCallback(t *testing.T) {
	var c Conn
	c.Reset(ConnConfig{InitialRTOms: 50})
	c.OpenActive(1, 2, []byte{1, 1, 1, 1}, 0)
	if _, ok := encapsulate(t, &c); !ok {
		t.Fatal("no initial SYN segment")
	}

	var retransmitted []SenderMessage
	c.Tick(50, func(m SenderMessage) { retransmitted = append(retransmitted, m) })
	if len(retransmitted) != 1 || !retransmitted[0].SYN {
		t.Fatalf("retransmitted = %+v, want one retransmitted SYN", retransmitted)
	}

	buf := make([]byte, 64)
	n, err := c.EncapsulateMessage(retransmitted[0], buf, 0)
	if err != nil || n == 0 {
		t.Fatalf("EncapsulateMessage: n=%d err=%v", n, err)
	}
	tfrm, err := NewFrame(buf[:n])
	if err != nil {
		t.Fatalf("NewFrame: %v", err)
	}
	if tfrm.SourcePort() != 1 || tfrm.DestinationPort() != 2 {
		t.Fatalf("retransmitted segment ports = %d/%d, want 1/2", tfrm.SourcePort(), tfrm.DestinationPort())
	}
}
