package iface

// counter is a monotonic counter read by the metrics package's Prometheus
// Collector; it is not exported directly to avoid letting callers reset it.
type counter struct{ n uint64 }

func (c *counter) Inc() { c.n++ }

// Metrics holds the counters a metrics.Collector reads from a
// NetworkInterface between Collect calls.
type Metrics struct {
	datagramsSent     counter
	datagramsReceived counter
	datagramsQueued   counter
	arpRequestsSent   counter
	arpRepliesSent    counter
}

func newMetrics() Metrics { return Metrics{} }

// DatagramsSent returns the count of IPv4 datagrams transmitted after an
// immediate ARP hit.
func (n *NetworkInterface) DatagramsSent() uint64 { return n.metrics.datagramsSent.n }

// DatagramsReceived returns the count of IPv4 datagrams accepted into the
// inbound queue.
func (n *NetworkInterface) DatagramsReceived() uint64 { return n.metrics.datagramsReceived.n }

// DatagramsQueued returns the count of datagrams parked in data_queued
// awaiting ARP resolution.
func (n *NetworkInterface) DatagramsQueued() uint64 { return n.metrics.datagramsQueued.n }

// ARPRequestsSent returns the count of ARP requests broadcast by this
// interface.
func (n *NetworkInterface) ARPRequestsSent() uint64 { return n.metrics.arpRequestsSent.n }

// ARPRepliesSent returns the count of unicast ARP replies sent by this
// interface.
func (n *NetworkInterface) ARPRepliesSent() uint64 { return n.metrics.arpRepliesSent.n }

// ARPTableSize returns the number of entries currently tracked in arp_table.
func (n *NetworkInterface) ARPTableSize() int {
	count := 0
	n.arpTable.Range(func([4]byte, arpCacheEntry) { count++ })
	return count
}

// DataQueuedSize returns the total number of datagrams parked across all
// pending next hops in data_queued.
func (n *NetworkInterface) DataQueuedSize() int {
	total := 0
	for _, q := range n.dataQueued {
		total += len(q)
	}
	return total
}
