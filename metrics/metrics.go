// Package metrics exposes NetworkInterface and Router counters as
// Prometheus collectors.
package metrics

import (
	"sync"

	"github.com/nereusnet/minnow/iface"
	"github.com/nereusnet/minnow/router"
	"github.com/prometheus/client_golang/prometheus"
)

type ifaceEntry struct {
	name string
	n    *iface.NetworkInterface
}

// InterfaceCollector reports per-interface counters for every
// NetworkInterface registered with it via Add.
type InterfaceCollector struct {
	mu    sync.Mutex
	descs map[string]*prometheus.Desc
	ifs   []ifaceEntry
}

// NewInterfaceCollector returns an InterfaceCollector with no registered
// interfaces.
func NewInterfaceCollector() *InterfaceCollector {
	return &InterfaceCollector{
		descs: map[string]*prometheus.Desc{
			"datagrams_sent":     prometheus.NewDesc("minnow_iface_datagrams_sent_total", "IPv4 datagrams transmitted after an ARP hit.", []string{"iface"}, nil),
			"datagrams_received": prometheus.NewDesc("minnow_iface_datagrams_received_total", "IPv4 datagrams accepted into the inbound queue.", []string{"iface"}, nil),
			"datagrams_queued":   prometheus.NewDesc("minnow_iface_datagrams_queued", "Datagrams currently parked awaiting ARP resolution.", []string{"iface"}, nil),
			"arp_requests_sent":  prometheus.NewDesc("minnow_iface_arp_requests_sent_total", "ARP requests broadcast by this interface.", []string{"iface"}, nil),
			"arp_replies_sent":   prometheus.NewDesc("minnow_iface_arp_replies_sent_total", "Unicast ARP replies sent by this interface.", []string{"iface"}, nil),
			"arp_table_size":     prometheus.NewDesc("minnow_iface_arp_table_size", "Entries currently held in the ARP cache.", []string{"iface"}, nil),
		},
	}
}

// Add registers a NetworkInterface under name for collection.
func (c *InterfaceCollector) Add(name string, n *iface.NetworkInterface) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ifs = append(c.ifs, ifaceEntry{name: name, n: n})
}

// Describe implements prometheus.Collector.
func (c *InterfaceCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *InterfaceCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range c.ifs {
		ch <- prometheus.MustNewConstMetric(c.descs["datagrams_sent"], prometheus.CounterValue, float64(e.n.DatagramsSent()), e.name)
		ch <- prometheus.MustNewConstMetric(c.descs["datagrams_received"], prometheus.CounterValue, float64(e.n.DatagramsReceived()), e.name)
		ch <- prometheus.MustNewConstMetric(c.descs["datagrams_queued"], prometheus.GaugeValue, float64(e.n.DataQueuedSize()), e.name)
		ch <- prometheus.MustNewConstMetric(c.descs["arp_requests_sent"], prometheus.CounterValue, float64(e.n.ARPRequestsSent()), e.name)
		ch <- prometheus.MustNewConstMetric(c.descs["arp_replies_sent"], prometheus.CounterValue, float64(e.n.ARPRepliesSent()), e.name)
		ch <- prometheus.MustNewConstMetric(c.descs["arp_table_size"], prometheus.GaugeValue, float64(e.n.ARPTableSize()), e.name)
	}
}

// RouterCollector reports a Router's forwarding counters.
type RouterCollector struct {
	r     *router.Router
	descs map[string]*prometheus.Desc
}

// NewRouterCollector returns a RouterCollector reading from r.
func NewRouterCollector(r *router.Router) *RouterCollector {
	return &RouterCollector{
		r: r,
		descs: map[string]*prometheus.Desc{
			"forwarded":        prometheus.NewDesc("minnow_router_forwarded_total", "Datagrams successfully forwarded.", nil, nil),
			"dropped_ttl":      prometheus.NewDesc("minnow_router_dropped_ttl_total", "Datagrams dropped for TTL exhaustion.", nil, nil),
			"dropped_no_match": prometheus.NewDesc("minnow_router_dropped_no_match_total", "Datagrams dropped for lacking a matching route.", nil, nil),
		},
	}
}

// Describe implements prometheus.Collector.
func (c *RouterCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *RouterCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.descs["forwarded"], prometheus.CounterValue, float64(c.r.Forwarded()))
	ch <- prometheus.MustNewConstMetric(c.descs["dropped_ttl"], prometheus.CounterValue, float64(c.r.DroppedTTL()))
	ch <- prometheus.MustNewConstMetric(c.descs["dropped_no_match"], prometheus.CounterValue, float64(c.r.DroppedNoMatch()))
}
