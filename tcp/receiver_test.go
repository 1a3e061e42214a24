package tcp

import (
	"testing"

	"github.com/nereusnet/minnow/seqnum"
)

func TestReceiverHandshake(t *testing.T) {
	r := NewReceiver(4096)
	isn := seqnum.Wrap32(400)

	r.Receive(SenderMessage{Seqno: isn, SYN: true})
	msg := r.Send()
	if !msg.HasAckno {
		t.Fatal("expected ackno present after SYN")
	}
	if msg.Ackno != isn.Add(1) {
		t.Fatalf("Ackno = %v, want %v", msg.Ackno, isn.Add(1))
	}
	if msg.Window == 0 {
		t.Fatal("expected non-zero window")
	}
}

func TestReceiverBeforeSYNIgnoresData(t *testing.T) {
	r := NewReceiver(4096)
	r.Receive(SenderMessage{Seqno: 10, Payload: []byte("x")})
	msg := r.Send()
	if msg.HasAckno {
		t.Fatal("expected no ackno before SYN received")
	}
}

func TestReceiverRSTSetsStreamError(t *testing.T) {
	r := NewReceiver(4096)
	r.Receive(SenderMessage{RST: true})
	if !r.Send().RST {
		t.Fatal("expected RST surfaced after receiving RST")
	}
}

func TestReceiverDataAfterSYN(t *testing.T) {
	r := NewReceiver(4096)
	isn := seqnum.Wrap32(0)
	r.Receive(SenderMessage{Seqno: isn, SYN: true})
	r.Receive(SenderMessage{Seqno: isn.Add(1), Payload: []byte("a")})
	msg := r.Send()
	if msg.Ackno != seqnum.Wrap(2, isn) {
		t.Fatalf("Ackno = %v, want wrap(2)", msg.Ackno)
	}
	buf := make([]byte, 1)
	if string(r.Stream().Peek(buf)) != "a" {
		t.Fatalf("stream content = %q, want %q", r.Stream().Peek(buf), "a")
	}
}
