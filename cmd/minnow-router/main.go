// Command minnow-router hosts a NetworkInterface and Router over a real Linux
// tap device. The router has that single interface and a single route, for
// the tap's own 192.168.10.2/24 prefix; the only command-line flag is -tap.
//
//go:build linux && !baremetal

package main

import (
	"flag"
	"log"
	"log/slog"
	"net/netip"
	"os"

	"github.com/nereusnet/minnow/iface"
	"github.com/nereusnet/minnow/internal"
	"github.com/nereusnet/minnow/router"
)

func main() {
	tapName := flag.String("tap", "minnow0", "tap device name to create")
	flag.Parse()

	lg := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ip := netip.MustParsePrefix("192.168.10.2/24")
	tap, err := internal.NewTap(*tapName, ip)
	if err != nil {
		log.Fatalf("opening tap device %s: %v", *tapName, err)
	}
	defer tap.Close()

	mtu, err := tap.MTU()
	if err != nil {
		log.Fatalf("reading tap MTU: %v", err)
	}
	hwaddr, err := tap.HardwareAddress6()
	if err != nil {
		log.Fatalf("reading tap hardware address: %v", err)
	}

	tapPort := iface.NewTapOutputPort(tap)
	uplink := iface.New(iface.Config{
		HardwareAddr: hwaddr,
		IPv4Addr:     ip.Addr().As4(),
		Port:         tapPort,
		MTU:          mtu,
		Logger:       lg,
	})

	r := router.New(lg)
	idx := r.AddInterface(uplink)
	r.AddRoute(ip.Masked().Addr().As4(), uint8(ip.Bits()), nil, idx)

	lg.Info("tap interface up", slog.String("tap", *tapName), slog.String("addr", ip.String()))

	if err := tapPort.ReadLoop(uplink, mtu, r.Route); err != nil {
		log.Fatalf("tap read loop: %v", err)
	}
}
