// Package state holds the types shared between the routing engines and the
// host: addresses, links, forwarding tables, the packet envelope and the
// event contract. It has no protocol logic of its own.
package state

import "time"

// Addr identifies a router. It is opaque to the engines; the host decides
// what the names mean.
type Addr string

// Port is a router-local interface identifier. Ports are unique per router,
// never globally.
type Port int

// Cost is a link or path metric. Costs are strictly positive; a value at or
// above Infinity means unreachable.
type Cost uint16

// Link is one local outgoing interface, owned exclusively by a single
// router instance.
type Link struct {
	Neighbor Addr
	Cost     Cost
}

// LinkTable is the link registry both engines keep: port -> link. It is
// mutated only on link-up and link-down events.
type LinkTable map[Port]Link

// PortFor resolves a neighbour address to the port reaching it.
func (t LinkTable) PortFor(neighbor Addr) (Port, bool) {
	for port, l := range t {
		if l.Neighbor == neighbor {
			return port, true
		}
	}
	return 0, false
}

// Route is one forwarding-table entry.
type Route struct {
	Cost Cost
	Port Port
}

// ForwardingTable maps destination -> (cost, outgoing port). It is derived
// state: recomputation replaces it wholesale, it is never edited in place.
// A destination with no usable path is simply absent.
type ForwardingTable map[Addr]Route

// Sender is the host's transmit primitive. Fire and forget; the engines
// assume nothing about delivery and recover from loss through their
// heartbeats.
type Sender interface {
	Send(port Port, pkt *Packet)
}

// Engine is the event contract implemented by every routing engine. The
// host serializes delivery, one event at a time per router instance, so
// implementations hold no locks. Time is supplied by the host through
// HandleTime and must be monotonic; engines never read a wall clock.
type Engine interface {
	HandlePacket(port Port, pkt *Packet)
	HandleLinkUp(port Port, neighbor Addr, cost Cost)
	HandleLinkDown(port Port)
	HandleTime(now time.Duration)

	// Addr returns the router's own address.
	Addr() Addr
	// Table returns the live forwarding table. Callers must not mutate it.
	Table() ForwardingTable
}

// AddCost adds two costs, saturating at Infinity.
func AddCost(a, b Cost) Cost {
	if c := uint32(a) + uint32(b); c < uint32(Infinity) {
		return Cost(c)
	}
	return Infinity
}
