package iface

import (
	"github.com/nereusnet/minnow/internal"
)

// TapOutputPort adapts a host tun/tap device to OutputPort: frames
// transmitted by the bound NetworkInterface are written to the device, and
// ReadLoop feeds frames arriving on the device back into the interface.
type TapOutputPort struct {
	tap *internal.Tap
}

// NewTapOutputPort wraps an already-opened tap device.
func NewTapOutputPort(tap *internal.Tap) *TapOutputPort {
	return &TapOutputPort{tap: tap}
}

// Transmit implements OutputPort.
func (p *TapOutputPort) Transmit(_ *NetworkInterface, frame []byte) {
	p.tap.Write(frame)
}

// ReadLoop blocks reading frames off the tap device, delivers each to n, and
// calls afterRecv (if non-nil) once per frame so the caller can drain work
// n.Recv queued (e.g. a Router's Route), until Read returns an error
// (including on Close from another goroutine).
func (p *TapOutputPort) ReadLoop(n *NetworkInterface, mtu int, afterRecv func()) error {
	buf := make([]byte, mtu)
	for {
		nread, err := p.tap.Read(buf)
		if err != nil {
			return err
		}
		if nread > 0 {
			n.Recv(buf[:nread])
			if afterRecv != nil {
				afterRecv()
			}
		}
	}
}
